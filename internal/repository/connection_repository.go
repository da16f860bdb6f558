package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ajharbinger/perfeval/internal/models"
)

// connectionRepository implements ConnectionRepository
type connectionRepository struct {
	db dbExecutor
}

// NewConnectionRepository creates a new data connection repository
func NewConnectionRepository(db dbExecutor) ConnectionRepository {
	return &connectionRepository{db: db}
}

const connectionColumns = `id, name, type, host, status, last_sync, description, sync_frequency, config`

func scanConnection(row rowScanner) (*models.DataConnection, error) {
	c := &models.DataConnection{}
	err := row.Scan(&c.ID, &c.Name, &c.Type, &c.Host, &c.Status, &c.LastSync,
		&c.Description, &c.SyncFrequency, &c.Config)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// List retrieves every connection ordered by id
func (r *connectionRepository) List(ctx context.Context) ([]models.DataConnection, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+connectionColumns+` FROM data_connections ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query data connections: %w", err)
	}
	defer rows.Close()

	out := []models.DataConnection{}
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan data connection: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// GetByID retrieves a connection by id
func (r *connectionRepository) GetByID(ctx context.Context, id string) (*models.DataConnection, error) {
	c, err := scanConnection(r.db.QueryRowContext(ctx, `SELECT `+connectionColumns+` FROM data_connections WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("data connection %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get data connection: %w", err)
	}
	return c, nil
}

// Put inserts or replaces a connection
func (r *connectionRepository) Put(ctx context.Context, c models.DataConnection) error {
	query := `
		INSERT INTO data_connections (` + connectionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, type = EXCLUDED.type, host = EXCLUDED.host,
			status = EXCLUDED.status, last_sync = EXCLUDED.last_sync,
			description = EXCLUDED.description, sync_frequency = EXCLUDED.sync_frequency,
			config = EXCLUDED.config
	`
	_, err := r.db.ExecContext(ctx, query, c.ID, c.Name, c.Type, c.Host, c.Status,
		c.LastSync, c.Description, c.SyncFrequency, c.Config)
	if err != nil {
		return fmt.Errorf("failed to save data connection: %w", err)
	}
	return nil
}

// UpdateStatus records the outcome of a test or sync
func (r *connectionRepository) UpdateStatus(ctx context.Context, id string, status models.ConnectionStatus, lastSync string) error {
	query := `UPDATE data_connections SET status = $2, last_sync = COALESCE(NULLIF($3, ''), last_sync) WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, status, lastSync)
	if err != nil {
		return fmt.Errorf("failed to update data connection status: %w", err)
	}
	return affected(result, "data connection", id)
}

// Delete removes a connection and, by cascade, its archived records
func (r *connectionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM data_connections WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete data connection: %w", err)
	}
	return affected(result, "data connection", id)
}
