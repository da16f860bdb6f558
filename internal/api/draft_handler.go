package api

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ajharbinger/perfeval/internal/editor"
	"github.com/ajharbinger/perfeval/internal/errors"
	"github.com/ajharbinger/perfeval/internal/scoring"
	"github.com/ajharbinger/perfeval/internal/services"
)

// DraftHandler drives the three-step model wizard
type DraftHandler struct {
	models services.ModelService
}

// NewDraftHandler creates a new wizard handler
func NewDraftHandler(models services.ModelService) *DraftHandler {
	return &DraftHandler{models: models}
}

// DraftView is the wizard state returned after every step
type DraftView struct {
	ID          uuid.UUID               `json:"id"`
	State       editor.State            `json:"state"`
	IsNew       bool                    `json:"isNew"`
	Model       scoring.EvaluationModel `json:"model"`
	TotalWeight float64                 `json:"totalWeight"`
	Warnings    []scoring.Warning       `json:"warnings"`
}

func viewOf(d *editor.Draft) DraftView {
	return DraftView{
		ID:          d.ID(),
		State:       d.State(),
		IsNew:       d.IsNew(),
		Model:       d.Snapshot(),
		TotalWeight: d.TotalWeight(),
		Warnings:    nonNilWarnings(d.Warnings()),
	}
}

func (h *DraftHandler) draft(c *gin.Context) (*editor.Draft, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, errors.InvalidInput("invalid draft id", err))
		return nil, false
	}
	d, err := h.models.Draft(id)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return d, true
}

// CreateDraft opens a wizard session, on a copy of ?modelId= when given
func (h *DraftHandler) CreateDraft(c *gin.Context) {
	ctx, cancel := requestContext(c, readTimeout)
	defer cancel()

	var (
		d   *editor.Draft
		err error
	)
	if modelID := c.Query("modelId"); modelID != "" {
		d, err = h.models.EditDraft(ctx, modelID)
	} else {
		d, err = h.models.NewDraft(ctx)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, gin.H{"draft": viewOf(d)})
}

// GetDraft returns the current wizard state
func (h *DraftHandler) GetDraft(c *gin.Context) {
	d, ok := h.draft(c)
	if !ok {
		return
	}
	respondOK(c, gin.H{"draft": viewOf(d)})
}

// SetBasicInfo stores the first step's fields
func (h *DraftHandler) SetBasicInfo(c *gin.Context) {
	d, ok := h.draft(c)
	if !ok {
		return
	}
	var info editor.BasicInfo
	if !bindJSON(c, &info) {
		return
	}
	if err := d.SetBasicInfo(info); err != nil {
		respondError(c, inputError(err, "SetBasicInfo"))
		return
	}
	respondOK(c, gin.H{"draft": viewOf(d)})
}

// AddIndicatorRequest names a library indicator to bind
type AddIndicatorRequest struct {
	IndicatorID string `json:"indicatorId" binding:"required"`
}

// AddIndicator binds a library indicator to the draft
func (h *DraftHandler) AddIndicator(c *gin.Context) {
	d, ok := h.draft(c)
	if !ok {
		return
	}
	var req AddIndicatorRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := d.AddIndicator(req.IndicatorID); err != nil {
		respondError(c, inputError(err, "AddIndicator"))
		return
	}
	respondOK(c, gin.H{"draft": viewOf(d)})
}

// RemoveIndicator unbinds an indicator
func (h *DraftHandler) RemoveIndicator(c *gin.Context) {
	d, ok := h.draft(c)
	if !ok {
		return
	}
	if err := d.RemoveIndicator(c.Param("indicatorId")); err != nil {
		respondError(c, inputError(err, "RemoveIndicator"))
		return
	}
	respondOK(c, gin.H{"draft": viewOf(d)})
}

// IndicatorPatch changes some settings of one bound indicator. Absent
// fields are left alone.
type IndicatorPatch struct {
	Weight          *float64          `json:"weight"`
	MaxScore        *float64          `json:"maxScore"`
	RuleType        *scoring.RuleType `json:"ruleType"`
	RuleConfig      json.RawMessage   `json:"ruleConfig"`
	ScoringRuleDesc *string           `json:"scoringRuleDesc"`
	EnableEvidence  *bool             `json:"enableEvidence"`
	RequireEvidence *bool             `json:"requireEvidence"`
}

// UpdateIndicator applies an IndicatorPatch
func (h *DraftHandler) UpdateIndicator(c *gin.Context) {
	d, ok := h.draft(c)
	if !ok {
		return
	}
	var patch IndicatorPatch
	if !bindJSON(c, &patch) {
		return
	}
	id := c.Param("indicatorId")
	if err := applyPatch(d, id, patch); err != nil {
		respondError(c, inputError(err, "UpdateDraftIndicator"))
		return
	}
	respondOK(c, gin.H{"draft": viewOf(d)})
}

func applyPatch(d *editor.Draft, id string, p IndicatorPatch) error {
	update := editor.IndicatorUpdate{
		Weight:          p.Weight,
		MaxScore:        p.MaxScore,
		EnableEvidence:  p.EnableEvidence,
		RequireEvidence: p.RequireEvidence,
		Description:     p.ScoringRuleDesc,
	}
	if p.RuleType != nil {
		rule, err := scoring.UnmarshalRule(*p.RuleType, p.RuleConfig)
		if err != nil {
			return err
		}
		update.Rule = rule
	}
	return d.UpdateIndicator(id, update)
}

// GradesRequest configures the review step's grade classification
type GradesRequest struct {
	Enabled *bool                `json:"enabled"`
	Levels  []scoring.GradeLevel `json:"levels"`
}

// SetGrades toggles grade classification and replaces the bands
func (h *DraftHandler) SetGrades(c *gin.Context) {
	d, ok := h.draft(c)
	if !ok {
		return
	}
	var req GradesRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Enabled != nil {
		if err := d.SetGradeLevelsEnabled(*req.Enabled); err != nil {
			respondError(c, inputError(err, "SetGrades"))
			return
		}
	}
	if req.Levels != nil {
		if err := d.SetGradeLevels(req.Levels); err != nil {
			respondError(c, inputError(err, "SetGrades"))
			return
		}
	}
	respondOK(c, gin.H{"draft": viewOf(d)})
}

// NextStep validates the current step and advances
func (h *DraftHandler) NextStep(c *gin.Context) {
	d, ok := h.draft(c)
	if !ok {
		return
	}
	if _, err := d.Next(); err != nil {
		respondError(c, inputError(err, "NextStep"))
		return
	}
	respondOK(c, gin.H{"draft": viewOf(d)})
}

// PreviousStep goes back one step
func (h *DraftHandler) PreviousStep(c *gin.Context) {
	d, ok := h.draft(c)
	if !ok {
		return
	}
	if _, err := d.Back(); err != nil {
		respondError(c, inputError(err, "PreviousStep"))
		return
	}
	respondOK(c, gin.H{"draft": viewOf(d)})
}

// SaveDraft commits the draft from the review step
func (h *DraftHandler) SaveDraft(c *gin.Context) {
	ctx, cancel := requestContext(c, writeTimeout)
	defer cancel()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, errors.InvalidInput("invalid draft id", err))
		return
	}
	saved, warnings, err := h.models.SaveDraft(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, gin.H{
		"message":  "Model saved successfully",
		"model":    saved,
		"warnings": nonNilWarnings(warnings),
	})
}

// CancelDraft discards the draft
func (h *DraftHandler) CancelDraft(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, errors.InvalidInput("invalid draft id", err))
		return
	}
	if err := h.models.CancelDraft(id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
