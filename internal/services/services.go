package services

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/ajharbinger/perfeval/internal/channel"
	"github.com/ajharbinger/perfeval/internal/editor"
	"github.com/ajharbinger/perfeval/internal/logger"
	"github.com/ajharbinger/perfeval/internal/models"
	"github.com/ajharbinger/perfeval/internal/repository"
	"github.com/ajharbinger/perfeval/internal/scoring"
	"github.com/ajharbinger/perfeval/pkg/config"
)

// Services contains all application services
type Services struct {
	Indicator  IndicatorService
	Category   CategoryService
	Model      ModelService
	Rule       RuleService
	Channel    ChannelService
	Evaluation EvaluationService
}

// IndicatorService defines the interface for the indicator library
type IndicatorService interface {
	// List returns indicators filed under categoryID or any of its descendants
	List(ctx context.Context, categoryID, search string) ([]models.Indicator, error)
	Get(ctx context.Context, id string) (*models.Indicator, error)
	Create(ctx context.Context, ind models.Indicator) (*models.Indicator, error)
	Update(ctx context.Context, ind models.Indicator) (*models.Indicator, error)
	Delete(ctx context.Context, id string) error
}

// CategoryService defines the interface for the indicator category tree
type CategoryService interface {
	Tree(ctx context.Context) (models.CategoryTree, error)
	AddRoot(ctx context.Context, name string) (models.CategoryTree, error)
	AddChild(ctx context.Context, parentID, name string) (models.CategoryTree, error)
	Rename(ctx context.Context, id, name string) (models.CategoryTree, error)
	Toggle(ctx context.Context, id string) (models.CategoryTree, error)
	// Delete removes a category and its subtree. It refuses while any
	// indicator is filed under the subtree.
	Delete(ctx context.Context, id string) (models.CategoryTree, error)
}

// ModelService defines the interface for evaluation model management
type ModelService interface {
	List(ctx context.Context) ([]scoring.EvaluationModel, error)
	Get(ctx context.Context, id string) (*scoring.EvaluationModel, error)
	// Save validates and stores a complete model outside the wizard
	Save(ctx context.Context, model scoring.EvaluationModel) (*scoring.EvaluationModel, []scoring.Warning, error)
	Delete(ctx context.Context, id string) error
	Copy(ctx context.Context, id string) (*scoring.EvaluationModel, error)
	History(ctx context.Context, id string) ([]models.ModelVersion, error)
	CheckWeights(ctx context.Context, id string) (*WeightReport, error)
	Evaluate(ctx context.Context, id string, observations map[string]scoring.RawValue) (*scoring.ScoreResult, error)

	// Wizard sessions
	NewDraft(ctx context.Context) (*editor.Draft, error)
	EditDraft(ctx context.Context, id string) (*editor.Draft, error)
	Draft(id uuid.UUID) (*editor.Draft, error)
	SaveDraft(ctx context.Context, id uuid.UUID) (*scoring.EvaluationModel, []scoring.Warning, error)
	CancelDraft(id uuid.UUID) error
	SweepDrafts() int
}

// RuleService evaluates and explains standalone rule configurations
type RuleService interface {
	Types() []RuleTypeInfo
	Describe(rule scoring.Rule) string
	Validate(rule scoring.Rule) error
	Evaluate(rule scoring.Rule, raw scoring.RawValue) (*RuleEvaluation, error)
}

// ChannelService defines the interface for data channels and the archive
type ChannelService interface {
	List(ctx context.Context) ([]models.DataConnection, error)
	Get(ctx context.Context, id string) (*models.DataConnection, error)
	Save(ctx context.Context, conn models.DataConnection) (*models.DataConnection, error)
	Delete(ctx context.Context, id string) error
	Test(ctx context.Context, id string) (*channel.TestResult, error)
	Sync(ctx context.Context, id string) (*channel.TestResult, error)
	Preview(ctx context.Context, indicatorID string) (*channel.Preview, error)
	Health() []channel.HealthStatus

	Records(ctx context.Context, filter models.RecordFilter) ([]models.DataRecord, error)
	ImportRecords(ctx context.Context, sourceID string, r io.Reader) (*ImportResult, error)

	// StartScheduler schedules every stored connection and starts the cron loop
	StartScheduler(ctx context.Context) error
	StopScheduler() context.Context
}

// EvaluationService scores archived batches against a model
type EvaluationService interface {
	Run(ctx context.Context, modelID, batchID string) (*RunReport, error)
	Get(ctx context.Context, id uuid.UUID) (*RunReport, error)
	List(ctx context.Context, limit int) ([]models.EvaluationRun, error)
}

// WeightReport is the live weight check shown while configuring a model
type WeightReport struct {
	ModelID       string                `json:"modelId"`
	ScoringMethod scoring.ScoringMethod `json:"scoringMethod"`
	TotalWeight   float64               `json:"totalWeight"`
	MaxTotal      float64               `json:"maxTotal"`
	Balanced      bool                  `json:"balanced"`
	Warnings      []scoring.Warning     `json:"warnings"`
}

// RuleTypeInfo describes a rule type offered by the editor
type RuleTypeInfo struct {
	Type     scoring.RuleType `json:"type"`
	Label    string           `json:"label"`
	Defaults scoring.Rule     `json:"defaults"`
}

// RuleEvaluation is the result of scoring one value under a standalone rule
type RuleEvaluation struct {
	RuleType    scoring.RuleType `json:"ruleType"`
	Value       scoring.RawValue `json:"value"`
	Score       float64          `json:"score"`
	Scored      bool             `json:"scored"`
	Reason      string           `json:"reason,omitempty"`
	Description string           `json:"description"`
}

// ImportResult summarizes a CSV import into the archive
type ImportResult struct {
	SourceID string   `json:"sourceId"`
	Imported int      `json:"imported"`
	Batches  []string `json:"batches"`
}

// RunReport is an evaluation run with its per-object scores
type RunReport struct {
	Run    models.EvaluationRun `json:"run"`
	Scores []models.ObjectScore `json:"scores"`
}

// Options carries the runtime settings services depend on
type Options struct {
	Logger             logger.Logger
	ChannelTestLatency time.Duration
	ChannelSuccessRate float64
	PreviewDelay       time.Duration
	SyncTimeout        time.Duration
	EvalMaxConcurrent  int
	DraftTTL           time.Duration
}

// OptionsFromConfig maps application configuration onto service options
func OptionsFromConfig(cfg *config.Config, log logger.Logger) Options {
	return Options{
		Logger:             log,
		ChannelTestLatency: cfg.ChannelTestLatency,
		ChannelSuccessRate: cfg.ChannelSuccessRate,
		PreviewDelay:       800 * time.Millisecond,
		SyncTimeout:        time.Minute,
		EvalMaxConcurrent:  cfg.EvalMaxConcurrent,
		DraftTTL:           2 * time.Hour,
	}
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logger.NewNop()
	}
	if o.SyncTimeout <= 0 {
		o.SyncTimeout = time.Minute
	}
	if o.EvalMaxConcurrent < 1 {
		o.EvalMaxConcurrent = 1
	}
	return o
}

// NewServices creates a new Services instance with all dependencies
func NewServices(repos *repository.Repositories, opts Options) *Services {
	opts = opts.withDefaults()
	engine := scoring.NewScoringEngine()

	return &Services{
		Indicator:  newIndicatorService(repos, opts.Logger),
		Category:   newCategoryService(repos, opts.Logger),
		Model:      newModelService(repos, engine, editor.NewSessions(opts.DraftTTL), opts.Logger),
		Rule:       newRuleService(engine),
		Channel:    newChannelService(repos, opts),
		Evaluation: newEvaluationService(repos, engine, opts.EvalMaxConcurrent, opts.Logger),
	}
}
