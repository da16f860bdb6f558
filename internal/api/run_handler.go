package api

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ajharbinger/perfeval/internal/errors"
	"github.com/ajharbinger/perfeval/internal/services"
)

const defaultRunLimit = 20

// RunHandler starts and reports batch evaluation runs
type RunHandler struct {
	runs services.EvaluationService
}

// NewRunHandler creates a new run handler
func NewRunHandler(runs services.EvaluationService) *RunHandler {
	return &RunHandler{runs: runs}
}

// RunRequest selects the model and archived batch to evaluate
type RunRequest struct {
	ModelID string `json:"modelId" binding:"required"`
	BatchID string `json:"batchId" binding:"required"`
}

// StartRun evaluates a batch synchronously and returns the report
func (h *RunHandler) StartRun(c *gin.Context) {
	ctx, cancel := requestContext(c, importTimeout)
	defer cancel()

	var req RunRequest
	if !bindJSON(c, &req) {
		return
	}
	report, err := h.runs.Run(ctx, req.ModelID, req.BatchID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, gin.H{"run": report.Run, "scores": report.Scores})
}

// ListRuns returns recent runs, newest first
func (h *RunHandler) ListRuns(c *gin.Context) {
	ctx, cancel := requestContext(c, readTimeout)
	defer cancel()

	limit := defaultRunLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			respondError(c, errors.InvalidInput("limit must be an integer", err))
			return
		}
		limit = n
	}
	runs, err := h.runs.List(ctx, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"runs": runs, "total": len(runs)})
}

// GetRun returns a run with its object scores
func (h *RunHandler) GetRun(c *gin.Context) {
	ctx, cancel := requestContext(c, readTimeout)
	defer cancel()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, errors.InvalidInput("invalid run id", err))
		return
	}
	report, err := h.runs.Get(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"run": report.Run, "scores": report.Scores})
}
