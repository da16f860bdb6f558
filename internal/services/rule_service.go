package services

import (
	stderrors "errors"

	"github.com/ajharbinger/perfeval/internal/scoring"
)

type ruleServiceImpl struct {
	engine *scoring.ScoringEngine
}

func newRuleService(engine *scoring.ScoringEngine) RuleService {
	return &ruleServiceImpl{engine: engine}
}

// Types lists the rule types with their editor defaults
func (s *ruleServiceImpl) Types() []RuleTypeInfo {
	out := make([]RuleTypeInfo, 0, len(scoring.RuleTypes))
	for _, t := range scoring.RuleTypes {
		rule, err := scoring.NewRule(t)
		if err != nil {
			continue
		}
		out = append(out, RuleTypeInfo{Type: t, Label: s.engine.RuleLabel(rule), Defaults: rule})
	}
	return out
}

func (s *ruleServiceImpl) Describe(rule scoring.Rule) string {
	return s.engine.Describe(rule)
}

func (s *ruleServiceImpl) Validate(rule scoring.Rule) error {
	return WrapError(s.engine.Validate(rule), "invalid rule configuration", "ValidateRule")
}

// Evaluate scores one value. A value outside every band is a result with
// Scored false, not an error.
func (s *ruleServiceImpl) Evaluate(rule scoring.Rule, raw scoring.RawValue) (*RuleEvaluation, error) {
	if rule == nil {
		return nil, s.Validate(rule)
	}
	out := &RuleEvaluation{
		RuleType:    rule.Type(),
		Value:       raw,
		Description: s.engine.Describe(rule),
	}
	score, err := s.engine.Evaluate(rule, raw)
	if err != nil {
		if stderrors.Is(err, scoring.ErrUnscored) {
			out.Reason = err.Error()
			return out, nil
		}
		return nil, WrapError(err, "rule evaluation failed", "EvaluateRule")
	}
	out.Score = score
	out.Scored = true
	return out, nil
}
