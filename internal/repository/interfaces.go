package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ajharbinger/perfeval/internal/models"
	"github.com/ajharbinger/perfeval/internal/scoring"
)

// ErrNotFound is returned when a row does not exist
var ErrNotFound = errors.New("not found")

// IndicatorRepository defines the interface for indicator library access
type IndicatorRepository interface {
	List(ctx context.Context) ([]models.Indicator, error)
	GetByID(ctx context.Context, id string) (*models.Indicator, error)
	Create(ctx context.Context, indicator *models.Indicator) error
	Update(ctx context.Context, indicator *models.Indicator) error
	Delete(ctx context.Context, id string) error

	// CountByCategories counts indicators filed under any of the categories
	CountByCategories(ctx context.Context, categoryIDs []string) (int, error)
}

// CategoryRepository stores the indicator category tree as a whole
type CategoryRepository interface {
	Get(ctx context.Context) (models.CategoryTree, error)
	Save(ctx context.Context, tree models.CategoryTree) error
}

// ModelRepository defines the interface for evaluation model access
type ModelRepository interface {
	List(ctx context.Context) ([]scoring.EvaluationModel, error)
	GetByID(ctx context.Context, id string) (*scoring.EvaluationModel, error)
	// Put inserts or atomically replaces a model
	Put(ctx context.Context, model scoring.EvaluationModel) error
	Delete(ctx context.Context, id string) error
}

// ConnectionRepository defines the interface for data channel access
type ConnectionRepository interface {
	List(ctx context.Context) ([]models.DataConnection, error)
	GetByID(ctx context.Context, id string) (*models.DataConnection, error)
	Put(ctx context.Context, conn models.DataConnection) error
	UpdateStatus(ctx context.Context, id string, status models.ConnectionStatus, lastSync string) error
	Delete(ctx context.Context, id string) error
}

// RecordRepository defines the interface for the data archive
type RecordRepository interface {
	List(ctx context.Context, filter models.RecordFilter) ([]models.DataRecord, error)
	Insert(ctx context.Context, records []models.DataRecord) error
	DeleteBySource(ctx context.Context, sourceID string) (int, error)
}

// RunRepository defines the interface for evaluation runs and their scores
type RunRepository interface {
	Create(ctx context.Context, run *models.EvaluationRun) error
	Update(ctx context.Context, run *models.EvaluationRun) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.EvaluationRun, error)
	List(ctx context.Context, limit int) ([]models.EvaluationRun, error)
	SaveScore(ctx context.Context, score models.ObjectScore) error
	Scores(ctx context.Context, runID uuid.UUID) ([]models.ObjectScore, error)
}

// TransactionManager defines the interface for database transaction management
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(repos *Repositories) error) error
}

// Repositories groups all repository interfaces
type Repositories struct {
	Indicator  IndicatorRepository
	Category   CategoryRepository
	Model      ModelRepository
	Connection ConnectionRepository
	Record     RecordRepository
	Run        RunRepository
	Tx         TransactionManager
}
