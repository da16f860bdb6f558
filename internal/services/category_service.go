package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ajharbinger/perfeval/internal/errors"
	"github.com/ajharbinger/perfeval/internal/logger"
	"github.com/ajharbinger/perfeval/internal/models"
	"github.com/ajharbinger/perfeval/internal/repository"
)

// categoryServiceImpl implements CategoryService. The tree is read, changed
// and written back as a whole under one lock.
type categoryServiceImpl struct {
	mu     sync.Mutex
	repos  *repository.Repositories
	logger logger.Logger
}

func newCategoryService(repos *repository.Repositories, log logger.Logger) CategoryService {
	return &categoryServiceImpl{repos: repos, logger: log}
}

// Tree returns the whole category tree
func (s *categoryServiceImpl) Tree(ctx context.Context) (models.CategoryTree, error) {
	tree, err := s.repos.Category.Get(ctx)
	if err != nil {
		return nil, WrapError(err, "failed to load categories", "GetCategoryTree")
	}
	return tree, nil
}

// AddRoot appends a top-level category
func (s *categoryServiceImpl) AddRoot(ctx context.Context, name string) (models.CategoryTree, error) {
	return s.update(ctx, "AddRootCategory", func(tree models.CategoryTree) (models.CategoryTree, error) {
		name, err := categoryName(name)
		if err != nil {
			return nil, err
		}
		return tree.AddRoot(models.CategoryNode{ID: newCategoryID(), Name: name})
	})
}

// AddChild appends a category under parentID and opens the parent
func (s *categoryServiceImpl) AddChild(ctx context.Context, parentID, name string) (models.CategoryTree, error) {
	return s.update(ctx, "AddChildCategory", func(tree models.CategoryTree) (models.CategoryTree, error) {
		name, err := categoryName(name)
		if err != nil {
			return nil, err
		}
		return tree.AddChild(parentID, models.CategoryNode{ID: newCategoryID(), Name: name})
	})
}

// Rename changes a category's display name
func (s *categoryServiceImpl) Rename(ctx context.Context, id, name string) (models.CategoryTree, error) {
	return s.update(ctx, "RenameCategory", func(tree models.CategoryTree) (models.CategoryTree, error) {
		name, err := categoryName(name)
		if err != nil {
			return nil, err
		}
		return tree.Rename(id, name)
	})
}

// Toggle flips a category's expanded flag
func (s *categoryServiceImpl) Toggle(ctx context.Context, id string) (models.CategoryTree, error) {
	return s.update(ctx, "ToggleCategory", func(tree models.CategoryTree) (models.CategoryTree, error) {
		return tree.Toggle(id)
	})
}

// Delete removes a category subtree when no indicator is filed under it
func (s *categoryServiceImpl) Delete(ctx context.Context, id string) (models.CategoryTree, error) {
	return s.update(ctx, "DeleteCategory", func(tree models.CategoryTree) (models.CategoryTree, error) {
		ids := tree.SubtreeIDs(id)
		if len(ids) == 0 {
			return nil, models.ErrCategoryNotFound
		}
		count, err := s.repos.Indicator.CountByCategories(ctx, ids)
		if err != nil {
			return nil, WrapError(err, "failed to count indicators", "DeleteCategory")
		}
		if count > 0 {
			return nil, errors.Conflict(fmt.Sprintf("category %s still holds %d indicators", id, count), nil)
		}
		return tree.Delete(id)
	})
}

func (s *categoryServiceImpl) update(ctx context.Context, op string, fn func(models.CategoryTree) (models.CategoryTree, error)) (models.CategoryTree, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tree, err := s.repos.Category.Get(ctx)
	if err != nil {
		return nil, WrapError(err, "failed to load categories", op)
	}
	updated, err := fn(tree)
	if err != nil {
		if appErr, ok := errors.As(err); ok {
			return nil, appErr.WithOperation(op)
		}
		if stderrors.Is(err, models.ErrCategoryNotFound) {
			return nil, errors.NotFound("category not found", err).WithOperation(op)
		}
		return nil, errors.ValidationError(err.Error(), err).WithOperation(op)
	}
	if err := s.repos.Category.Save(ctx, updated); err != nil {
		s.logger.Error("Failed to save category tree", err, "operation", op)
		return nil, WrapError(err, "failed to save categories", op)
	}
	return updated, nil
}

func categoryName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.ValidationError("category name is required", nil)
	}
	return name, nil
}

func newCategoryID() string {
	return "cat-" + uuid.NewString()[:8]
}
