package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ajharbinger/perfeval/internal/models"
)

// runRepository implements RunRepository
type runRepository struct {
	db dbExecutor
}

// NewRunRepository creates a new evaluation run repository
func NewRunRepository(db dbExecutor) RunRepository {
	return &runRepository{db: db}
}

const runColumns = `id, model_id, batch_id, status, total_objects, processed_objects,
	failed_objects, started_at, completed_at, error_message`

func scanRun(row rowScanner) (*models.EvaluationRun, error) {
	run := &models.EvaluationRun{}
	var completedAt sql.NullTime
	var errorMessage sql.NullString
	err := row.Scan(&run.ID, &run.ModelID, &run.BatchID, &run.Status, &run.TotalObjects,
		&run.ProcessedObjects, &run.FailedObjects, &run.StartedAt, &completedAt, &errorMessage)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	run.ErrorMessage = errorMessage.String
	return run, nil
}

// Create inserts a new run, assigning an id if needed
func (r *runRepository) Create(ctx context.Context, run *models.EvaluationRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	query := `INSERT INTO evaluation_runs (` + runColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.ExecContext(ctx, query, run.ID, run.ModelID, run.BatchID, run.Status,
		run.TotalObjects, run.ProcessedObjects, run.FailedObjects, run.StartedAt,
		run.CompletedAt, nullString(run.ErrorMessage))
	if err != nil {
		return fmt.Errorf("failed to create evaluation run: %w", err)
	}
	return nil
}

// Update stores run progress and completion
func (r *runRepository) Update(ctx context.Context, run *models.EvaluationRun) error {
	query := `
		UPDATE evaluation_runs SET
			status = $2, total_objects = $3, processed_objects = $4, failed_objects = $5,
			completed_at = $6, error_message = $7
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, run.ID, run.Status, run.TotalObjects,
		run.ProcessedObjects, run.FailedObjects, run.CompletedAt, nullString(run.ErrorMessage))
	if err != nil {
		return fmt.Errorf("failed to update evaluation run: %w", err)
	}
	return affected(result, "evaluation run", run.ID.String())
}

// GetByID retrieves a run by id
func (r *runRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.EvaluationRun, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM evaluation_runs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("evaluation run %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get evaluation run: %w", err)
	}
	return run, nil
}

// List retrieves the most recent runs
func (r *runRepository) List(ctx context.Context, limit int) ([]models.EvaluationRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+runColumns+` FROM evaluation_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query evaluation runs: %w", err)
	}
	defer rows.Close()

	runs := []models.EvaluationRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan evaluation run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// SaveScore stores the result for one object of a run
func (r *runRepository) SaveScore(ctx context.Context, score models.ObjectScore) error {
	var result []byte
	if score.Result != nil {
		var err error
		if result, err = json.Marshal(score.Result); err != nil {
			return fmt.Errorf("failed to encode score result: %w", err)
		}
	}
	query := `
		INSERT INTO object_scores (run_id, object_name, result, error) VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id, object_name) DO UPDATE SET result = EXCLUDED.result, error = EXCLUDED.error
	`
	if _, err := r.db.ExecContext(ctx, query, score.RunID, score.ObjectName, result, score.Error); err != nil {
		return fmt.Errorf("failed to save object score: %w", err)
	}
	return nil
}

// Scores retrieves the object results of a run ordered by object name
func (r *runRepository) Scores(ctx context.Context, runID uuid.UUID) ([]models.ObjectScore, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT run_id, object_name, result, error FROM object_scores WHERE run_id = $1 ORDER BY object_name`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query object scores: %w", err)
	}
	defer rows.Close()

	scores := []models.ObjectScore{}
	for rows.Next() {
		var s models.ObjectScore
		var result []byte
		if err := rows.Scan(&s.RunID, &s.ObjectName, &result, &s.Error); err != nil {
			return nil, fmt.Errorf("failed to scan object score: %w", err)
		}
		if len(result) > 0 {
			if err := json.Unmarshal(result, &s.Result); err != nil {
				return nil, fmt.Errorf("failed to decode score of %s: %w", s.ObjectName, err)
			}
		}
		scores = append(scores, s)
	}
	return scores, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
