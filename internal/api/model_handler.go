package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ajharbinger/perfeval/internal/scoring"
	"github.com/ajharbinger/perfeval/internal/services"
)

// ModelHandler serves evaluation models and their scoring
type ModelHandler struct {
	models services.ModelService
	rules  services.RuleService
}

// NewModelHandler creates a new model handler
func NewModelHandler(models services.ModelService, rules services.RuleService) *ModelHandler {
	return &ModelHandler{models: models, rules: rules}
}

// ListModels returns every evaluation model
func (h *ModelHandler) ListModels(c *gin.Context) {
	ctx, cancel := requestContext(c, readTimeout)
	defer cancel()

	list, err := h.models.List(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"models": list, "total": len(list)})
}

// GetModel returns one evaluation model
func (h *ModelHandler) GetModel(c *gin.Context) {
	ctx, cancel := requestContext(c, readTimeout)
	defer cancel()

	m, err := h.models.Get(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"model": m})
}

// CreateModel stores a complete model sent in one request
func (h *ModelHandler) CreateModel(c *gin.Context) {
	ctx, cancel := requestContext(c, writeTimeout)
	defer cancel()

	var m scoring.EvaluationModel
	if !bindJSON(c, &m) {
		return
	}
	m.ID = ""
	saved, warnings, err := h.models.Save(ctx, m)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, gin.H{
		"message":  "Model created successfully",
		"model":    saved,
		"warnings": nonNilWarnings(warnings),
	})
}

// UpdateModel replaces a model; the path id wins over the body
func (h *ModelHandler) UpdateModel(c *gin.Context) {
	ctx, cancel := requestContext(c, writeTimeout)
	defer cancel()

	id := c.Param("id")
	if _, err := h.models.Get(ctx, id); err != nil {
		respondError(c, err)
		return
	}

	var m scoring.EvaluationModel
	if !bindJSON(c, &m) {
		return
	}
	m.ID = id
	saved, warnings, err := h.models.Save(ctx, m)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{
		"message":  "Model updated successfully",
		"model":    saved,
		"warnings": nonNilWarnings(warnings),
	})
}

// DeleteModel removes a model
func (h *ModelHandler) DeleteModel(c *gin.Context) {
	ctx, cancel := requestContext(c, writeTimeout)
	defer cancel()

	if err := h.models.Delete(ctx, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CopyModel duplicates a model
func (h *ModelHandler) CopyModel(c *gin.Context) {
	ctx, cancel := requestContext(c, writeTimeout)
	defer cancel()

	dup, err := h.models.Copy(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, gin.H{"message": "Model copied successfully", "model": dup})
}

// GetModelHistory returns a model's version entries
func (h *ModelHandler) GetModelHistory(c *gin.Context) {
	ctx, cancel := requestContext(c, readTimeout)
	defer cancel()

	history, err := h.models.History(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"versions": history})
}

// CheckModelWeights reports the weight total and configuration warnings
func (h *ModelHandler) CheckModelWeights(c *gin.Context) {
	ctx, cancel := requestContext(c, readTimeout)
	defer cancel()

	report, err := h.models.CheckWeights(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"report": report})
}

// IndicatorDescription is the generated rule text of one model indicator
type IndicatorDescription struct {
	IndicatorID string           `json:"indicatorId"`
	RuleType    scoring.RuleType `json:"ruleType"`
	Generated   string           `json:"generated"`
	Stored      string           `json:"stored"`
}

// DescribeModel returns the generated rule text of every indicator next to
// the stored text, which may have been edited by hand
func (h *ModelHandler) DescribeModel(c *gin.Context) {
	ctx, cancel := requestContext(c, readTimeout)
	defer cancel()

	m, err := h.models.Get(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]IndicatorDescription, 0, len(m.Indicators))
	for _, ind := range m.Indicators {
		out = append(out, IndicatorDescription{
			IndicatorID: ind.IndicatorID,
			RuleType:    ind.RuleType(),
			Generated:   h.rules.Describe(ind.Rule),
			Stored:      ind.ScoringRuleDesc,
		})
	}
	respondOK(c, gin.H{"modelId": m.ID, "indicators": out})
}

// EvaluateRequest carries one object's observations keyed by indicator id
type EvaluateRequest struct {
	Observations map[string]scoring.RawValue `json:"observations" binding:"required"`
}

// EvaluateModel scores one set of observations against a model
func (h *ModelHandler) EvaluateModel(c *gin.Context) {
	ctx, cancel := requestContext(c, writeTimeout)
	defer cancel()

	var req EvaluateRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.models.Evaluate(ctx, c.Param("id"), req.Observations)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"result": result})
}

func nonNilWarnings(w []scoring.Warning) []scoring.Warning {
	if w == nil {
		return []scoring.Warning{}
	}
	return w
}
