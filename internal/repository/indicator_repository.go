package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/ajharbinger/perfeval/internal/models"
)

// indicatorRepository implements IndicatorRepository
type indicatorRepository struct {
	db dbExecutor
}

// NewIndicatorRepository creates a new indicator repository
func NewIndicatorRepository(db dbExecutor) IndicatorRepository {
	return &indicatorRepository{db: db}
}

const indicatorColumns = `id, name, description, type, source, status, category, unit,
	sample_value, calculation_type, calculation_script`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIndicator(row rowScanner) (*models.Indicator, error) {
	ind := &models.Indicator{}
	var sample []byte
	err := row.Scan(
		&ind.ID, &ind.Name, &ind.Description, &ind.Type, &ind.Source, &ind.Status,
		&ind.Category, &ind.Unit, &sample, &ind.CalculationType, &ind.CalculationScript,
	)
	if err != nil {
		return nil, err
	}
	if len(sample) > 0 {
		if err := json.Unmarshal(sample, &ind.SampleValue); err != nil {
			return nil, fmt.Errorf("failed to decode sample value of indicator %s: %w", ind.ID, err)
		}
	}
	return ind, nil
}

// List retrieves every indicator ordered by id
func (r *indicatorRepository) List(ctx context.Context) ([]models.Indicator, error) {
	query := `SELECT ` + indicatorColumns + ` FROM indicators ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query indicators: %w", err)
	}
	defer rows.Close()

	indicators := []models.Indicator{}
	for rows.Next() {
		ind, err := scanIndicator(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan indicator: %w", err)
		}
		indicators = append(indicators, *ind)
	}
	return indicators, rows.Err()
}

// GetByID retrieves an indicator by id
func (r *indicatorRepository) GetByID(ctx context.Context, id string) (*models.Indicator, error) {
	query := `SELECT ` + indicatorColumns + ` FROM indicators WHERE id = $1`

	ind, err := scanIndicator(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("indicator %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get indicator: %w", err)
	}
	return ind, nil
}

// Create inserts a new indicator
func (r *indicatorRepository) Create(ctx context.Context, ind *models.Indicator) error {
	sample, err := json.Marshal(ind.SampleValue)
	if err != nil {
		return fmt.Errorf("failed to encode sample value: %w", err)
	}

	query := `
		INSERT INTO indicators (` + indicatorColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.db.ExecContext(ctx, query,
		ind.ID, ind.Name, ind.Description, ind.Type, ind.Source, ind.Status,
		ind.Category, ind.Unit, sample, ind.CalculationType, ind.CalculationScript,
	)
	if err != nil {
		return fmt.Errorf("failed to create indicator: %w", err)
	}
	return nil
}

// Update replaces an existing indicator
func (r *indicatorRepository) Update(ctx context.Context, ind *models.Indicator) error {
	sample, err := json.Marshal(ind.SampleValue)
	if err != nil {
		return fmt.Errorf("failed to encode sample value: %w", err)
	}

	query := `
		UPDATE indicators SET
			name = $2, description = $3, type = $4, source = $5, status = $6,
			category = $7, unit = $8, sample_value = $9, calculation_type = $10,
			calculation_script = $11
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query,
		ind.ID, ind.Name, ind.Description, ind.Type, ind.Source, ind.Status,
		ind.Category, ind.Unit, sample, ind.CalculationType, ind.CalculationScript,
	)
	if err != nil {
		return fmt.Errorf("failed to update indicator: %w", err)
	}
	return affected(result, "indicator", ind.ID)
}

// Delete removes an indicator
func (r *indicatorRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM indicators WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete indicator: %w", err)
	}
	return affected(result, "indicator", id)
}

// CountByCategories counts indicators filed under any of the categories
func (r *indicatorRepository) CountByCategories(ctx context.Context, categoryIDs []string) (int, error) {
	if len(categoryIDs) == 0 {
		return 0, nil
	}
	var count int
	query := `SELECT COUNT(*) FROM indicators WHERE category = ANY($1)`
	if err := r.db.QueryRowContext(ctx, query, pq.Array(categoryIDs)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count indicators in categories %s: %w", strings.Join(categoryIDs, ","), err)
	}
	return count, nil
}
