package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ajharbinger/perfeval/internal/models"
	"github.com/ajharbinger/perfeval/internal/services"
)

// IndicatorHandler serves the indicator library and its category tree
type IndicatorHandler struct {
	indicators services.IndicatorService
	categories services.CategoryService
	channels   services.ChannelService
}

// NewIndicatorHandler creates a new indicator handler
func NewIndicatorHandler(indicators services.IndicatorService, categories services.CategoryService, channels services.ChannelService) *IndicatorHandler {
	return &IndicatorHandler{indicators: indicators, categories: categories, channels: channels}
}

// ListIndicators returns the indicators of a category subtree, optionally searched
func (h *IndicatorHandler) ListIndicators(c *gin.Context) {
	ctx, cancel := requestContext(c, readTimeout)
	defer cancel()

	list, err := h.indicators.List(ctx, c.Query("category"), c.Query("search"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"indicators": list, "total": len(list)})
}

// GetIndicator returns one indicator
func (h *IndicatorHandler) GetIndicator(c *gin.Context) {
	ctx, cancel := requestContext(c, readTimeout)
	defer cancel()

	ind, err := h.indicators.Get(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"indicator": ind})
}

// CreateIndicator adds an indicator to the library
func (h *IndicatorHandler) CreateIndicator(c *gin.Context) {
	ctx, cancel := requestContext(c, writeTimeout)
	defer cancel()

	var ind models.Indicator
	if !bindJSON(c, &ind) {
		return
	}
	saved, err := h.indicators.Create(ctx, ind)
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, gin.H{"message": "Indicator created successfully", "indicator": saved})
}

// UpdateIndicator replaces an indicator; the path id wins over the body
func (h *IndicatorHandler) UpdateIndicator(c *gin.Context) {
	ctx, cancel := requestContext(c, writeTimeout)
	defer cancel()

	var ind models.Indicator
	if !bindJSON(c, &ind) {
		return
	}
	ind.ID = c.Param("id")
	saved, err := h.indicators.Update(ctx, ind)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"message": "Indicator updated successfully", "indicator": saved})
}

// DeleteIndicator removes an indicator
func (h *IndicatorHandler) DeleteIndicator(c *gin.Context) {
	ctx, cancel := requestContext(c, writeTimeout)
	defer cancel()

	if err := h.indicators.Delete(ctx, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PreviewIndicator returns a week of mock data for an indicator
func (h *IndicatorHandler) PreviewIndicator(c *gin.Context) {
	ctx, cancel := requestContext(c, writeTimeout)
	defer cancel()

	preview, err := h.channels.Preview(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"preview": preview})
}

// CategoryRequest names a new or renamed category
type CategoryRequest struct {
	ParentID string `json:"parentId"`
	Name     string `json:"name"`
}

// GetCategories returns the whole category tree
func (h *IndicatorHandler) GetCategories(c *gin.Context) {
	ctx, cancel := requestContext(c, readTimeout)
	defer cancel()

	tree, err := h.categories.Tree(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"categories": tree})
}

// CreateCategory adds a root category, or a child when parentId is set
func (h *IndicatorHandler) CreateCategory(c *gin.Context) {
	ctx, cancel := requestContext(c, writeTimeout)
	defer cancel()

	var req CategoryRequest
	if !bindJSON(c, &req) {
		return
	}

	var (
		tree models.CategoryTree
		err  error
	)
	if req.ParentID == "" {
		tree, err = h.categories.AddRoot(ctx, req.Name)
	} else {
		tree, err = h.categories.AddChild(ctx, req.ParentID, req.Name)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, gin.H{"categories": tree})
}

// RenameCategory changes a category's name
func (h *IndicatorHandler) RenameCategory(c *gin.Context) {
	ctx, cancel := requestContext(c, writeTimeout)
	defer cancel()

	var req CategoryRequest
	if !bindJSON(c, &req) {
		return
	}
	tree, err := h.categories.Rename(ctx, c.Param("id"), req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"categories": tree})
}

// ToggleCategory flips a category's expanded flag
func (h *IndicatorHandler) ToggleCategory(c *gin.Context) {
	ctx, cancel := requestContext(c, writeTimeout)
	defer cancel()

	tree, err := h.categories.Toggle(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"categories": tree})
}

// DeleteCategory removes a category subtree
func (h *IndicatorHandler) DeleteCategory(c *gin.Context) {
	ctx, cancel := requestContext(c, writeTimeout)
	defer cancel()

	tree, err := h.categories.Delete(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"categories": tree})
}
