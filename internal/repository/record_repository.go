package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ajharbinger/perfeval/internal/models"
)

// recordRepository implements RecordRepository
type recordRepository struct {
	db dbExecutor
}

// NewRecordRepository creates a new data archive repository
func NewRecordRepository(db dbExecutor) RecordRepository {
	return &recordRepository{db: db}
}

const recordColumns = `id, object_name, indicator_name, value, unit, collection_time,
	batch_id, source_id, status, metadata`

// List retrieves archived records matching the filter, newest first
func (r *recordRepository) List(ctx context.Context, filter models.RecordFilter) ([]models.DataRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM data_records`

	var whereClauses []string
	var args []interface{}
	argIndex := 1

	if filter.SourceID != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("source_id = $%d", argIndex))
		args = append(args, filter.SourceID)
		argIndex++
	}

	if filter.BatchID != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("batch_id = $%d", argIndex))
		args = append(args, filter.BatchID)
		argIndex++
	}

	if filter.DatePrefix != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("collection_time LIKE $%d", argIndex))
		args = append(args, escapeLike(filter.DatePrefix)+"%")
		argIndex++
	}

	if filter.Search != "" {
		whereClauses = append(whereClauses, fmt.Sprintf(
			"(object_name ILIKE $%d OR indicator_name ILIKE $%d OR batch_id ILIKE $%d)",
			argIndex, argIndex, argIndex))
		args = append(args, "%"+escapeLike(filter.Search)+"%")
		argIndex++
	}

	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}
	query += " ORDER BY collection_time DESC, id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query data records: %w", err)
	}
	defer rows.Close()

	records := []models.DataRecord{}
	for rows.Next() {
		var rec models.DataRecord
		var value []byte
		err := rows.Scan(&rec.ID, &rec.ObjectName, &rec.IndicatorName, &value, &rec.Unit,
			&rec.CollectionTime, &rec.BatchID, &rec.SourceID, &rec.Status, &rec.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to scan data record: %w", err)
		}
		if err := json.Unmarshal(value, &rec.Value); err != nil {
			return nil, fmt.Errorf("failed to decode value of record %s: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Insert archives records; existing ids are overwritten
func (r *recordRepository) Insert(ctx context.Context, records []models.DataRecord) error {
	query := `
		INSERT INTO data_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			object_name = EXCLUDED.object_name, indicator_name = EXCLUDED.indicator_name,
			value = EXCLUDED.value, unit = EXCLUDED.unit,
			collection_time = EXCLUDED.collection_time, batch_id = EXCLUDED.batch_id,
			source_id = EXCLUDED.source_id, status = EXCLUDED.status, metadata = EXCLUDED.metadata
	`
	for _, rec := range records {
		value, err := json.Marshal(rec.Value)
		if err != nil {
			return fmt.Errorf("failed to encode value of record %s: %w", rec.ID, err)
		}
		_, err = r.db.ExecContext(ctx, query, rec.ID, rec.ObjectName, rec.IndicatorName, value,
			rec.Unit, rec.CollectionTime, rec.BatchID, rec.SourceID, rec.Status, rec.Metadata)
		if err != nil {
			return fmt.Errorf("failed to insert data record %s: %w", rec.ID, err)
		}
	}
	return nil
}

// DeleteBySource removes every record archived from a connection
func (r *recordRepository) DeleteBySource(ctx context.Context, sourceID string) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM data_records WHERE source_id = $1`, sourceID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete data records: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
