package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ajharbinger/perfeval/internal/scoring"
)

// RecordStatus marks whether an archived value passed collection checks
type RecordStatus string

const (
	RecordValid   RecordStatus = "valid"
	RecordInvalid RecordStatus = "invalid"
)

// RecordTimeLayout is the format of DataRecord.CollectionTime
const RecordTimeLayout = "2006-01-02 15:04:05"

// DataRecord is one raw indicator observation archived from a data channel
type DataRecord struct {
	ID             string           `json:"id" db:"id"`
	ObjectName     string           `json:"objectName" db:"object_name"`
	IndicatorName  string           `json:"indicatorName" db:"indicator_name"`
	Value          scoring.RawValue `json:"value" db:"value"`
	Unit           string           `json:"unit" db:"unit"`
	CollectionTime string           `json:"collectionTime" db:"collection_time"`
	BatchID        string           `json:"batchId" db:"batch_id"`
	SourceID       string           `json:"sourceId" db:"source_id"`
	Status         RecordStatus     `json:"status" db:"status"`
	Metadata       string           `json:"metadata" db:"metadata"`
}

// RecordFilter narrows the data archive listing
type RecordFilter struct {
	SourceID   string `form:"source"`
	Search     string `form:"search"`
	DatePrefix string `form:"date"`
	BatchID    string `form:"batch"`
}

// Matches reports whether r passes every set criterion. Search is a
// case-insensitive substring match over object, indicator and batch.
func (f RecordFilter) Matches(r DataRecord) bool {
	if f.SourceID != "" && r.SourceID != f.SourceID {
		return false
	}
	if f.BatchID != "" && r.BatchID != f.BatchID {
		return false
	}
	if f.DatePrefix != "" && !strings.HasPrefix(r.CollectionTime, f.DatePrefix) {
		return false
	}
	if f.Search != "" {
		term := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(r.ObjectName), term) &&
			!strings.Contains(strings.ToLower(r.IndicatorName), term) &&
			!strings.Contains(strings.ToLower(r.BatchID), term) {
			return false
		}
	}
	return true
}

// EvaluationRun tracks one batch evaluation of archived records against a model
type EvaluationRun struct {
	ID               uuid.UUID  `json:"id" db:"id"`
	ModelID          string     `json:"modelId" db:"model_id"`
	BatchID          string     `json:"batchId" db:"batch_id"`
	Status           RunStatus  `json:"status" db:"status"`
	TotalObjects     int        `json:"totalObjects" db:"total_objects"`
	ProcessedObjects int        `json:"processedObjects" db:"processed_objects"`
	FailedObjects    int        `json:"failedObjects" db:"failed_objects"`
	StartedAt        time.Time  `json:"startedAt" db:"started_at"`
	CompletedAt      *time.Time `json:"completedAt,omitempty" db:"completed_at"`
	ErrorMessage     string     `json:"errorMessage,omitempty" db:"error_message"`
}

// RunStatus represents evaluation run status values
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// ObjectScore is the stored result for one evaluated object of a run
type ObjectScore struct {
	RunID      uuid.UUID            `json:"runId" db:"run_id"`
	ObjectName string               `json:"objectName" db:"object_name"`
	Result     *scoring.ScoreResult `json:"result,omitempty" db:"result"`
	Error      string               `json:"error,omitempty" db:"error"`
}

// ModelVersion is one entry of a model's version history
type ModelVersion struct {
	Version     string `json:"version"`
	Date        string `json:"date"`
	Operator    string `json:"operator"`
	Description string `json:"description"`
	IsCurrent   bool   `json:"isCurrent"`
}
