package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ajharbinger/perfeval/internal/scoring"
)

// modelRepository implements ModelRepository. Indicator configurations and
// grade bands are stored as JSONB; rule configs are schema-checked on load.
type modelRepository struct {
	db dbExecutor
}

// NewModelRepository creates a new evaluation model repository
func NewModelRepository(db dbExecutor) ModelRepository {
	return &modelRepository{db: db}
}

const modelColumns = `id, name, version, tags, description, scoring_method, indicators,
	grade_levels, enable_grade_levels, last_updated, status`

func scanModel(row rowScanner) (*scoring.EvaluationModel, error) {
	m := &scoring.EvaluationModel{}
	var tags, indicators, grades []byte
	err := row.Scan(
		&m.ID, &m.Name, &m.Version, &tags, &m.Description, &m.ScoringMethod,
		&indicators, &grades, &m.EnableGradeLevels, &m.LastUpdated, &m.Status,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(tags, &m.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags of model %s: %w", m.ID, err)
	}
	if err := json.Unmarshal(indicators, &m.Indicators); err != nil {
		return nil, fmt.Errorf("failed to decode indicators of model %s: %w", m.ID, err)
	}
	if err := json.Unmarshal(grades, &m.GradeLevels); err != nil {
		return nil, fmt.Errorf("failed to decode grade levels of model %s: %w", m.ID, err)
	}
	return m, nil
}

// List retrieves every model ordered by id
func (r *modelRepository) List(ctx context.Context) ([]scoring.EvaluationModel, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+modelColumns+` FROM evaluation_models ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query evaluation models: %w", err)
	}
	defer rows.Close()

	out := []scoring.EvaluationModel{}
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan evaluation model: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// GetByID retrieves a model by id
func (r *modelRepository) GetByID(ctx context.Context, id string) (*scoring.EvaluationModel, error) {
	m, err := scanModel(r.db.QueryRowContext(ctx, `SELECT `+modelColumns+` FROM evaluation_models WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("evaluation model %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get evaluation model: %w", err)
	}
	return m, nil
}

// Put inserts or replaces a model in a single statement
func (r *modelRepository) Put(ctx context.Context, m scoring.EvaluationModel) error {
	tags := m.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}
	indicators := m.Indicators
	if indicators == nil {
		indicators = []scoring.ModelIndicatorConfig{}
	}
	indicatorsJSON, err := json.Marshal(indicators)
	if err != nil {
		return fmt.Errorf("failed to encode indicators: %w", err)
	}
	grades := m.GradeLevels
	if grades == nil {
		grades = []scoring.GradeLevel{}
	}
	gradesJSON, err := json.Marshal(grades)
	if err != nil {
		return fmt.Errorf("failed to encode grade levels: %w", err)
	}

	query := `
		INSERT INTO evaluation_models (` + modelColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, version = EXCLUDED.version, tags = EXCLUDED.tags,
			description = EXCLUDED.description, scoring_method = EXCLUDED.scoring_method,
			indicators = EXCLUDED.indicators, grade_levels = EXCLUDED.grade_levels,
			enable_grade_levels = EXCLUDED.enable_grade_levels,
			last_updated = EXCLUDED.last_updated, status = EXCLUDED.status
	`
	_, err = r.db.ExecContext(ctx, query,
		m.ID, m.Name, m.Version, tagsJSON, m.Description, m.ScoringMethod,
		indicatorsJSON, gradesJSON, m.EnableGradeLevels, m.LastUpdated, m.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to save evaluation model: %w", err)
	}
	return nil
}

// Delete removes a model
func (r *modelRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM evaluation_models WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete evaluation model: %w", err)
	}
	return affected(result, "evaluation model", id)
}
