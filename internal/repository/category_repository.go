package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ajharbinger/perfeval/internal/models"
)

// categoryTreeID keys the single stored category tree
const categoryTreeID = "default"

// categoryRepository implements CategoryRepository. The tree is stored as one
// JSON document so structural edits are a single write.
type categoryRepository struct {
	db dbExecutor
}

// NewCategoryRepository creates a new category repository
func NewCategoryRepository(db dbExecutor) CategoryRepository {
	return &categoryRepository{db: db}
}

// Get loads the category tree; an unsaved tree is empty
func (r *categoryRepository) Get(ctx context.Context) (models.CategoryTree, error) {
	var raw []byte
	err := r.db.QueryRowContext(ctx, `SELECT tree FROM category_trees WHERE id = $1`, categoryTreeID).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.CategoryTree{}, nil
		}
		return nil, fmt.Errorf("failed to get category tree: %w", err)
	}

	var tree models.CategoryTree
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("failed to decode category tree: %w", err)
	}
	return tree, nil
}

// Save replaces the category tree
func (r *categoryRepository) Save(ctx context.Context, tree models.CategoryTree) error {
	raw, err := json.Marshal(tree)
	if err != nil {
		return fmt.Errorf("failed to encode category tree: %w", err)
	}

	query := `
		INSERT INTO category_trees (id, tree, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET tree = EXCLUDED.tree, updated_at = NOW()
	`
	if _, err := r.db.ExecContext(ctx, query, categoryTreeID, raw); err != nil {
		return fmt.Errorf("failed to save category tree: %w", err)
	}
	return nil
}
