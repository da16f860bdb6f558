package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ajharbinger/perfeval/internal/models"
	"github.com/ajharbinger/perfeval/internal/scoring"
)

// State is a step of the model wizard
type State string

const (
	StateBasicInfo       State = "BasicInfo"
	StateIndicatorConfig State = "IndicatorConfig"
	StateReviewAndGrades State = "ReviewAndGrades"
	StateSaved           State = "Saved"
	StateCancelled       State = "Cancelled"
)

// Defaults applied to a newly added indicator
const (
	DefaultVersion  = "V1.0"
	DefaultMaxScore = 10
)

var (
	ErrWrongStep         = errors.New("operation not allowed in the current step")
	ErrInvalidTransition = errors.New("no such wizard transition")
	ErrClosed            = errors.New("draft is already saved or cancelled")
	ErrUnknownIndicator  = errors.New("indicator not found in library")
	ErrDuplicate         = errors.New("indicator already in model")
	ErrNotInModel        = errors.New("indicator is not part of the model")
	ErrEvidenceRequired  = errors.New("evidence can only be required when evidence upload is enabled")
)

// IndicatorLibrary resolves indicator ids to library entries
type IndicatorLibrary interface {
	Indicator(id string) (models.Indicator, bool)
}

// ModelStore commits a finished model, replacing any model with the same id
type ModelStore interface {
	Put(ctx context.Context, model scoring.EvaluationModel) error
}

// BasicInfo is the data entered on the first wizard step
type BasicInfo struct {
	Name          string                `json:"name"`
	Description   string                `json:"description"`
	Tags          []string              `json:"tags"`
	ScoringMethod scoring.ScoringMethod `json:"scoringMethod"`
}

// Draft is an in-progress model edit. It owns a private copy of the model;
// nothing reaches the store until Save.
type Draft struct {
	mu        sync.Mutex
	id        uuid.UUID
	state     State
	model     scoring.EvaluationModel
	isNew     bool
	generated map[string]string
	engine    *scoring.ScoringEngine
	lib       IndicatorLibrary
	now       func() time.Time
}

// NewDraft starts a wizard for a new model with the editor defaults
func NewDraft(lib IndicatorLibrary) *Draft {
	return &Draft{
		id:    uuid.New(),
		state: StateBasicInfo,
		model: scoring.EvaluationModel{
			Version:           DefaultVersion,
			Tags:              []string{},
			ScoringMethod:     scoring.MethodWeighted,
			Indicators:        []scoring.ModelIndicatorConfig{},
			GradeLevels:       scoring.DefaultGradeLevels(),
			EnableGradeLevels: true,
			Status:            scoring.StatusDraft,
		},
		isNew:     true,
		generated: make(map[string]string),
		engine:    scoring.NewScoringEngine(),
		lib:       lib,
		now:       time.Now,
	}
}

// EditDraft starts a wizard on a deep copy of an existing model
func EditDraft(model scoring.EvaluationModel, lib IndicatorLibrary) *Draft {
	d := NewDraft(lib)
	d.model = scoring.Clone(model)
	d.isNew = false

	for _, ind := range d.model.Indicators {
		if ind.Rule != nil {
			d.generated[ind.IndicatorID] = d.engine.Describe(ind.Rule)
		}
	}
	return d
}

// ID identifies the draft session
func (d *Draft) ID() uuid.UUID { return d.id }

// State returns the current wizard step
func (d *Draft) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// IsNew reports whether saving will create a model rather than replace one
func (d *Draft) IsNew() bool { return d.isNew }

// Snapshot returns a copy of the model being edited
func (d *Draft) Snapshot() scoring.EvaluationModel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return scoring.Clone(d.model)
}

// TotalWeight is the live weight sum shown while configuring indicators
func (d *Draft) TotalWeight() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return scoring.TotalWeight(d.model)
}

// Warnings lists non-blocking findings for the current draft
func (d *Draft) Warnings() []scoring.Warning {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.engine.Warnings(d.model)
}

func (d *Draft) guard(step State) error {
	if d.state == StateSaved || d.state == StateCancelled {
		return ErrClosed
	}
	if d.state != step {
		return fmt.Errorf("%w: in %s, need %s", ErrWrongStep, d.state, step)
	}
	return nil
}

// SetBasicInfo replaces the name, description, tags and scoring method
func (d *Draft) SetBasicInfo(info BasicInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.guard(StateBasicInfo); err != nil {
		return err
	}
	d.model.Name = info.Name
	d.model.Description = info.Description
	if info.Tags != nil {
		d.model.Tags = append([]string(nil), info.Tags...)
	}
	if info.ScoringMethod != "" {
		d.model.ScoringMethod = info.ScoringMethod
	}
	return nil
}

// AddIndicator binds a library indicator with default weight, max score and
// an empty threshold rule
func (d *Draft) AddIndicator(indicatorID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.guard(StateIndicatorConfig); err != nil {
		return err
	}
	if _, ok := d.lib.Indicator(indicatorID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownIndicator, indicatorID)
	}
	if cfg, _ := d.model.Indicator(indicatorID); cfg != nil {
		return fmt.Errorf("%w: %s", ErrDuplicate, indicatorID)
	}

	rule, _ := scoring.NewRule(scoring.RuleThreshold)
	desc := d.engine.Describe(rule)
	d.model.Indicators = append(d.model.Indicators, scoring.ModelIndicatorConfig{
		IndicatorID:     indicatorID,
		Weight:          0,
		MaxScore:        DefaultMaxScore,
		Rule:            rule,
		ScoringRuleDesc: desc,
	})
	d.generated[indicatorID] = desc
	return nil
}

// RemoveIndicator drops an indicator binding
func (d *Draft) RemoveIndicator(indicatorID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.guard(StateIndicatorConfig); err != nil {
		return err
	}
	_, idx := d.model.Indicator(indicatorID)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotInModel, indicatorID)
	}
	d.model.Indicators = append(d.model.Indicators[:idx:idx], d.model.Indicators[idx+1:]...)
	delete(d.generated, indicatorID)
	return nil
}

func (d *Draft) indicator(indicatorID string) (*scoring.ModelIndicatorConfig, error) {
	if err := d.guard(StateIndicatorConfig); err != nil {
		return nil, err
	}
	cfg, _ := d.model.Indicator(indicatorID)
	if cfg == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotInModel, indicatorID)
	}
	return cfg, nil
}

// SetRule validates and stores a rule. The description is regenerated unless
// the user has edited it away from the previously generated text.
func (d *Draft) SetRule(indicatorID string, rule scoring.Rule) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cfg, err := d.indicator(indicatorID)
	if err != nil {
		return err
	}
	if err := d.engine.Validate(rule); err != nil {
		return err
	}

	cfg.Rule = scoring.CloneRule(rule)
	desc := d.engine.Describe(cfg.Rule)
	if cfg.ScoringRuleDesc == "" || cfg.ScoringRuleDesc == d.generated[indicatorID] {
		cfg.ScoringRuleDesc = desc
	}
	d.generated[indicatorID] = desc
	return nil
}

// SetWeight sets an indicator's weight for WEIGHTED aggregation
func (d *Draft) SetWeight(indicatorID string, weight float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cfg, err := d.indicator(indicatorID)
	if err != nil {
		return err
	}
	cfg.Weight = weight
	return nil
}

// SetMaxScore sets an indicator's cap for SUM aggregation
func (d *Draft) SetMaxScore(indicatorID string, maxScore float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cfg, err := d.indicator(indicatorID)
	if err != nil {
		return err
	}
	cfg.MaxScore = maxScore
	return nil
}

// SetEvidence sets the manual-entry evidence flags. Evidence can only be
// required when upload is enabled.
func (d *Draft) SetEvidence(indicatorID string, enable, require bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cfg, err := d.indicator(indicatorID)
	if err != nil {
		return err
	}
	if require && !enable {
		return ErrEvidenceRequired
	}
	cfg.EnableEvidence = enable
	cfg.RequireEvidence = require
	return nil
}

// SetRuleDescription stores a user-written scoring description
func (d *Draft) SetRuleDescription(indicatorID, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cfg, err := d.indicator(indicatorID)
	if err != nil {
		return err
	}
	cfg.ScoringRuleDesc = text
	return nil
}

// IndicatorUpdate changes several settings of one bound indicator. Nil
// fields are left alone; turning evidence upload off also drops the
// requirement unless RequireEvidence says otherwise.
type IndicatorUpdate struct {
	Rule            scoring.Rule
	Weight          *float64
	MaxScore        *float64
	EnableEvidence  *bool
	RequireEvidence *bool
	Description     *string
}

// UpdateIndicator applies an IndicatorUpdate as one change: every field is
// checked before any is stored, so a rejected update leaves the draft as it was.
func (d *Draft) UpdateIndicator(indicatorID string, u IndicatorUpdate) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cfg, err := d.indicator(indicatorID)
	if err != nil {
		return err
	}

	next := *cfg
	generated := d.generated[indicatorID]
	if u.Rule != nil {
		if err := d.engine.Validate(u.Rule); err != nil {
			return err
		}
		next.Rule = scoring.CloneRule(u.Rule)
		desc := d.engine.Describe(next.Rule)
		if next.ScoringRuleDesc == "" || next.ScoringRuleDesc == generated {
			next.ScoringRuleDesc = desc
		}
		generated = desc
	}
	if u.Weight != nil {
		next.Weight = *u.Weight
	}
	if u.MaxScore != nil {
		next.MaxScore = *u.MaxScore
	}
	if u.EnableEvidence != nil {
		next.EnableEvidence = *u.EnableEvidence
		if !next.EnableEvidence {
			next.RequireEvidence = false
		}
	}
	if u.RequireEvidence != nil {
		next.RequireEvidence = *u.RequireEvidence
	}
	if next.RequireEvidence && !next.EnableEvidence {
		return ErrEvidenceRequired
	}
	if u.Description != nil {
		next.ScoringRuleDesc = *u.Description
	}

	*cfg = next
	if u.Rule != nil {
		d.generated[indicatorID] = generated
	}
	return nil
}

// SetGradeLevelsEnabled toggles grade classification
func (d *Draft) SetGradeLevelsEnabled(enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.guard(StateReviewAndGrades); err != nil {
		return err
	}
	d.model.EnableGradeLevels = enabled
	return nil
}

// SetGradeLevels replaces the grade bands
func (d *Draft) SetGradeLevels(levels []scoring.GradeLevel) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.guard(StateReviewAndGrades); err != nil {
		return err
	}
	if err := scoring.ValidateGradeLevels(levels); err != nil {
		return err
	}
	d.model.GradeLevels = append([]scoring.GradeLevel(nil), levels...)
	return nil
}

// Next validates the current step and advances to the following one
func (d *Draft) Next() (State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case StateBasicInfo:
		if err := scoring.ValidateBasicInfo(d.model); err != nil {
			return d.state, err
		}
		d.state = StateIndicatorConfig
	case StateIndicatorConfig:
		if err := d.engine.ValidateIndicators(d.model); err != nil {
			return d.state, err
		}
		d.state = StateReviewAndGrades
	case StateSaved, StateCancelled:
		return d.state, ErrClosed
	default:
		return d.state, ErrInvalidTransition
	}
	return d.state, nil
}

// Back returns to the previous step without validating or discarding anything
func (d *Draft) Back() (State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case StateIndicatorConfig:
		d.state = StateBasicInfo
	case StateReviewAndGrades:
		d.state = StateIndicatorConfig
	case StateSaved, StateCancelled:
		return d.state, ErrClosed
	default:
		return d.state, ErrInvalidTransition
	}
	return d.state, nil
}

// Save validates the whole model and commits it to store. It is only
// allowed from the review step. Warnings never block the save.
func (d *Draft) Save(ctx context.Context, store ModelStore) (scoring.EvaluationModel, []scoring.Warning, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.guard(StateReviewAndGrades); err != nil {
		return scoring.EvaluationModel{}, nil, err
	}
	if err := d.engine.ValidateModel(d.model); err != nil {
		return scoring.EvaluationModel{}, nil, err
	}

	final := scoring.Clone(d.model)
	if final.ID == "" {
		final.ID = "m-" + uuid.NewString()
	}
	if final.Version == "" {
		final.Version = DefaultVersion
	}
	final.LastUpdated = d.now().Format(scoring.DateLayout)
	final.Status = scoring.StatusActive

	if err := store.Put(ctx, final); err != nil {
		return scoring.EvaluationModel{}, nil, err
	}
	d.state = StateSaved
	return final, d.engine.Warnings(final), nil
}

// Cancel discards the draft. The store is never touched.
func (d *Draft) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateSaved {
		d.state = StateCancelled
	}
}
