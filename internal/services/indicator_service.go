package services

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ajharbinger/perfeval/internal/errors"
	"github.com/ajharbinger/perfeval/internal/logger"
	"github.com/ajharbinger/perfeval/internal/models"
	"github.com/ajharbinger/perfeval/internal/repository"
)

// rootCategory is the catch-all node that lists every indicator
const rootCategory = "root"

// indicatorServiceImpl implements IndicatorService
type indicatorServiceImpl struct {
	repos  *repository.Repositories
	logger logger.Logger
}

func newIndicatorService(repos *repository.Repositories, log logger.Logger) IndicatorService {
	return &indicatorServiceImpl{repos: repos, logger: log}
}

// List retrieves indicators for a category subtree, optionally searched by text
func (s *indicatorServiceImpl) List(ctx context.Context, categoryID, search string) ([]models.Indicator, error) {
	filter := models.IndicatorFilter{Search: search}
	if categoryID != "" && categoryID != rootCategory {
		tree, err := s.repos.Category.Get(ctx)
		if err != nil {
			return nil, WrapError(err, "failed to load categories", "ListIndicators")
		}
		if !tree.Contains(categoryID) {
			return nil, errors.NotFound(fmt.Sprintf("category %s not found", categoryID), models.ErrCategoryNotFound).WithOperation("ListIndicators")
		}
		filter.CategoryIDs = tree.SubtreeIDs(categoryID)
	}

	all, err := s.repos.Indicator.List(ctx)
	if err != nil {
		s.logger.Error("Failed to list indicators", err)
		return nil, WrapError(err, "failed to list indicators", "ListIndicators")
	}

	out := make([]models.Indicator, 0, len(all))
	for _, ind := range all {
		if filter.Matches(ind) {
			out = append(out, ind)
		}
	}
	return out, nil
}

// Get retrieves one indicator
func (s *indicatorServiceImpl) Get(ctx context.Context, id string) (*models.Indicator, error) {
	ind, err := s.repos.Indicator.GetByID(ctx, id)
	if err != nil {
		return nil, WrapError(err, fmt.Sprintf("indicator %s not found", id), "GetIndicator")
	}
	return ind, nil
}

// Create adds an indicator to the library. A missing id is assigned the next
// free numeric id.
func (s *indicatorServiceImpl) Create(ctx context.Context, ind models.Indicator) (*models.Indicator, error) {
	if err := s.check(ctx, &ind, "CreateIndicator"); err != nil {
		return nil, err
	}

	if ind.ID == "" {
		all, err := s.repos.Indicator.List(ctx)
		if err != nil {
			return nil, WrapError(err, "failed to list indicators", "CreateIndicator")
		}
		ind.ID = nextNumericID(all)
	} else if _, err := s.repos.Indicator.GetByID(ctx, ind.ID); err == nil {
		return nil, errors.Conflict(fmt.Sprintf("indicator %s already exists", ind.ID), nil).WithOperation("CreateIndicator")
	}

	if err := s.repos.Indicator.Create(ctx, &ind); err != nil {
		s.logger.Error("Failed to create indicator", err, "indicator_id", ind.ID)
		return nil, WrapError(err, "failed to create indicator", "CreateIndicator")
	}
	s.logger.Info("Indicator created", "indicator_id", ind.ID, "category", ind.Category)
	return &ind, nil
}

// Update replaces an indicator's definition
func (s *indicatorServiceImpl) Update(ctx context.Context, ind models.Indicator) (*models.Indicator, error) {
	if err := s.check(ctx, &ind, "UpdateIndicator"); err != nil {
		return nil, err
	}
	if err := s.repos.Indicator.Update(ctx, &ind); err != nil {
		return nil, WrapError(err, fmt.Sprintf("failed to update indicator %s", ind.ID), "UpdateIndicator")
	}
	return &ind, nil
}

// Delete removes an indicator. Models that reference it keep their binding
// and report it as unscored.
func (s *indicatorServiceImpl) Delete(ctx context.Context, id string) error {
	if err := s.repos.Indicator.Delete(ctx, id); err != nil {
		return WrapError(err, fmt.Sprintf("failed to delete indicator %s", id), "DeleteIndicator")
	}
	s.logger.Info("Indicator deleted", "indicator_id", id)
	return nil
}

func (s *indicatorServiceImpl) check(ctx context.Context, ind *models.Indicator, op string) error {
	if ind.CalculationType == "" && ind.Source == models.SourceCalculated {
		ind.CalculationType = models.CalculationVisual
	}
	if err := ind.Validate(); err != nil {
		return errors.ValidationError(err.Error(), err).WithOperation(op)
	}
	tree, err := s.repos.Category.Get(ctx)
	if err != nil {
		return WrapError(err, "failed to load categories", op)
	}
	if !tree.Contains(ind.Category) {
		return errors.ValidationError(fmt.Sprintf("category %s does not exist", ind.Category), models.ErrCategoryNotFound).WithOperation(op)
	}
	return nil
}

func nextNumericID(existing []models.Indicator) string {
	max := 0
	for _, ind := range existing {
		if n, err := strconv.Atoi(ind.ID); err == nil && n > max {
			max = n
		}
	}
	return strconv.Itoa(max + 1)
}
