package api

import (
	"encoding/json"

	"github.com/gin-gonic/gin"

	"github.com/ajharbinger/perfeval/internal/errors"
	"github.com/ajharbinger/perfeval/internal/scoring"
	"github.com/ajharbinger/perfeval/internal/services"
)

// RuleHandler exposes the rule editor helpers
type RuleHandler struct {
	rules services.RuleService
}

// NewRuleHandler creates a new rule handler
func NewRuleHandler(rules services.RuleService) *RuleHandler {
	return &RuleHandler{rules: rules}
}

// RuleRequest is a standalone rule configuration with an optional value
type RuleRequest struct {
	RuleType   scoring.RuleType `json:"ruleType" binding:"required"`
	RuleConfig json.RawMessage  `json:"ruleConfig"`
	Value      scoring.RawValue `json:"value"`
}

func (h *RuleHandler) bindRule(c *gin.Context) (scoring.Rule, RuleRequest, bool) {
	var req RuleRequest
	if !bindJSON(c, &req) {
		return nil, req, false
	}
	rule, err := scoring.UnmarshalRule(req.RuleType, req.RuleConfig)
	if err != nil {
		respondError(c, inputError(err, "ParseRule"))
		return nil, req, false
	}
	return rule, req, true
}

// GetRuleTypes lists the rule types and their default configurations
func (h *RuleHandler) GetRuleTypes(c *gin.Context) {
	respondOK(c, gin.H{"types": h.rules.Types()})
}

// DescribeRule returns the generated description of a rule
func (h *RuleHandler) DescribeRule(c *gin.Context) {
	rule, req, ok := h.bindRule(c)
	if !ok {
		return
	}
	respondOK(c, gin.H{"ruleType": req.RuleType, "description": h.rules.Describe(rule)})
}

// ValidateRule reports whether a rule configuration is complete
func (h *RuleHandler) ValidateRule(c *gin.Context) {
	rule, req, ok := h.bindRule(c)
	if !ok {
		return
	}
	if err := h.rules.Validate(rule); err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"ruleType": req.RuleType, "valid": true})
}

// EvaluateRule scores one value under a rule
func (h *RuleHandler) EvaluateRule(c *gin.Context) {
	rule, req, ok := h.bindRule(c)
	if !ok {
		return
	}
	if req.Value.IsZero() {
		respondError(c, errors.InvalidInput("value is required", nil))
		return
	}
	result, err := h.rules.Evaluate(rule, req.Value)
	if err != nil {
		respondError(c, err)
		return
	}
	respondOK(c, gin.H{"result": result})
}
