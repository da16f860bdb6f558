package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ajharbinger/perfeval/internal/errors"
	"github.com/ajharbinger/perfeval/internal/logger"
	"github.com/ajharbinger/perfeval/internal/metrics"
	"github.com/ajharbinger/perfeval/internal/models"
	"github.com/ajharbinger/perfeval/internal/repository"
	"github.com/ajharbinger/perfeval/internal/scoring"
)

// evaluationServiceImpl scores every object of an archived batch against a model
type evaluationServiceImpl struct {
	repos         *repository.Repositories
	engine        *scoring.ScoringEngine
	maxConcurrent int
	logger        logger.Logger
	now           func() time.Time
}

func newEvaluationService(repos *repository.Repositories, engine *scoring.ScoringEngine, maxConcurrent int, log logger.Logger) EvaluationService {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &evaluationServiceImpl{
		repos:         repos,
		engine:        engine,
		maxConcurrent: maxConcurrent,
		logger:        log,
		now:           time.Now,
	}
}

// Run evaluates batchID against modelID. Records are matched to the model's
// indicators by indicator name; the newest record per object and indicator
// wins. Objects that fail to score are counted, not fatal.
func (s *evaluationServiceImpl) Run(ctx context.Context, modelID, batchID string) (*RunReport, error) {
	const op = "RunEvaluation"

	model, err := s.repos.Model.GetByID(ctx, modelID)
	if err != nil {
		return nil, WrapError(err, fmt.Sprintf("model %s not found", modelID), op)
	}
	if batchID == "" {
		return nil, invalid("batch id is required", op, nil)
	}

	records, err := s.repos.Record.List(ctx, models.RecordFilter{BatchID: batchID})
	if err != nil {
		return nil, WrapError(err, "failed to list batch records", op)
	}
	byName, err := s.indicatorsByName(ctx, *model)
	if err != nil {
		return nil, WrapError(err, "failed to load indicator library", op)
	}
	objects := groupObservations(records, byName)
	if len(objects) == 0 {
		return nil, invalid(fmt.Sprintf("batch %s has no valid records for model %s", batchID, modelID), op, nil)
	}

	names := make([]string, 0, len(objects))
	for name := range objects {
		names = append(names, name)
	}
	sort.Strings(names)

	start := s.now()
	run := &models.EvaluationRun{
		ID:           uuid.New(),
		ModelID:      model.ID,
		BatchID:      batchID,
		Status:       models.RunRunning,
		TotalObjects: len(names),
		StartedAt:    start,
	}
	if err := s.repos.Run.Create(ctx, run); err != nil {
		return nil, WrapError(err, "failed to create evaluation run", op)
	}

	metrics.EvaluationRunsActive.Inc()
	defer metrics.EvaluationRunsActive.Dec()
	log := s.logger.With("run_id", run.ID.String(), "model_id", model.ID, "batch_id", batchID)
	log.Info("Evaluation run started", "objects", len(names))

	var mu sync.Mutex
	scores := make([]models.ObjectScore, 0, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxConcurrent)
	for _, name := range names {
		g.Go(func() error {
			score := models.ObjectScore{RunID: run.ID, ObjectName: name}
			result, err := s.engine.EvaluateModel(*model, objects[name])
			if err != nil {
				score.Error = err.Error()
			} else {
				score.Result = result
				metrics.UnscoredIndicators.Add(float64(len(result.Unscored)))
			}
			if err := s.repos.Run.SaveScore(gctx, score); err != nil {
				return fmt.Errorf("saving score of %s: %w", name, err)
			}

			mu.Lock()
			defer mu.Unlock()
			scores = append(scores, score)
			run.ProcessedObjects++
			if score.Error != "" {
				run.FailedObjects++
			}
			return nil
		})
	}
	runErr := g.Wait()

	completed := s.now()
	run.CompletedAt = &completed
	run.Status = models.RunCompleted
	outcome := metrics.OutcomeSuccess
	if runErr != nil {
		run.Status = models.RunFailed
		run.ErrorMessage = runErr.Error()
		outcome = metrics.OutcomeFailure
	}
	metrics.EvaluationDuration.WithLabelValues("run").Observe(completed.Sub(start).Seconds())
	metrics.ModelEvaluations.WithLabelValues(string(model.ScoringMethod), outcome).Inc()

	if err := s.repos.Run.Update(context.WithoutCancel(ctx), run); err != nil {
		log.Error("Failed to store evaluation run", err)
		return nil, WrapError(err, "failed to update evaluation run", op)
	}
	if runErr != nil {
		log.Error("Evaluation run failed", runErr, "processed", run.ProcessedObjects)
		return nil, WrapError(runErr, "evaluation run failed", op)
	}

	sort.Slice(scores, func(i, j int) bool { return scores[i].ObjectName < scores[j].ObjectName })
	log.Info("Evaluation run completed",
		"processed", run.ProcessedObjects,
		"failed", run.FailedObjects,
		"duration", completed.Sub(start).String())
	return &RunReport{Run: *run, Scores: scores}, nil
}

func (s *evaluationServiceImpl) indicatorsByName(ctx context.Context, m scoring.EvaluationModel) (map[string]string, error) {
	byName := make(map[string]string, len(m.Indicators))
	for _, cfg := range m.Indicators {
		ind, err := s.repos.Indicator.GetByID(ctx, cfg.IndicatorID)
		if stderrors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		byName[ind.Name] = ind.ID
	}
	return byName, nil
}

// groupObservations builds one observation set per object from records
// sorted newest first. Invalid records and unknown indicators are skipped.
func groupObservations(records []models.DataRecord, byName map[string]string) map[string]map[string]scoring.RawValue {
	out := make(map[string]map[string]scoring.RawValue)
	for _, rec := range records {
		if rec.Status != models.RecordValid {
			continue
		}
		id, ok := byName[rec.IndicatorName]
		if !ok {
			continue
		}
		obs, ok := out[rec.ObjectName]
		if !ok {
			obs = make(map[string]scoring.RawValue)
			out[rec.ObjectName] = obs
		}
		if _, seen := obs[id]; !seen {
			obs[id] = rec.Value
		}
	}
	return out
}

// Get retrieves a run with its stored scores
func (s *evaluationServiceImpl) Get(ctx context.Context, id uuid.UUID) (*RunReport, error) {
	run, err := s.repos.Run.GetByID(ctx, id)
	if err != nil {
		return nil, WrapError(err, fmt.Sprintf("evaluation run %s not found", id), "GetEvaluationRun")
	}
	scores, err := s.repos.Run.Scores(ctx, id)
	if err != nil {
		return nil, WrapError(err, "failed to load run scores", "GetEvaluationRun")
	}
	return &RunReport{Run: *run, Scores: scores}, nil
}

// List retrieves the most recent runs, newest first
func (s *evaluationServiceImpl) List(ctx context.Context, limit int) ([]models.EvaluationRun, error) {
	if limit < 0 {
		return nil, errors.InvalidInput("limit must not be negative", nil).WithOperation("ListEvaluationRuns")
	}
	runs, err := s.repos.Run.List(ctx, limit)
	if err != nil {
		return nil, WrapError(err, "failed to list evaluation runs", "ListEvaluationRuns")
	}
	return runs, nil
}
