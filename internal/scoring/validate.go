package scoring

import (
	"fmt"
	"math"
	"strings"
)

// Validate checks a rule configuration and reports every invalid field
func (e *ScoringEngine) Validate(rule Rule) error {
	var errs []FieldError

	switch r := rule.(type) {
	case ThresholdRule:
		for i, b := range r.Bands {
			path := fmt.Sprintf("thresholds.%d", i)
			switch b.Operator {
			case OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
			case OpRange:
				if b.Value2 == nil {
					errs = append(errs, FieldError{Field: path + ".value2", Code: CodeRequired, Message: "range band needs an upper bound"})
				} else if b.Value1 > *b.Value2 {
					errs = append(errs, FieldError{Field: path, Code: CodeInvalidRange, Message: "value1 must not exceed value2"})
				}
			default:
				errs = append(errs, FieldError{Field: path + ".operator", Code: CodeUnknownValue, Message: fmt.Sprintf("unknown operator %q", b.Operator)})
			}
			errs = appendFinite(errs, path+".value1", b.Value1)
			if b.Value2 != nil {
				errs = appendFinite(errs, path+".value2", *b.Value2)
			}
			errs = appendFinite(errs, path+".score", b.Score)
		}
	case RatioRule:
		if r.Mode != RatioProportional && r.Mode != RatioDeduction {
			errs = append(errs, FieldError{Field: "ratioType", Code: CodeUnknownValue, Message: fmt.Sprintf("unknown ratio type %q", r.Mode)})
		}
		errs = appendFinite(errs, "ratioBase", r.Base)
		errs = appendFinite(errs, "ratioCoefficient", r.Coefficient)
		if r.Min != nil {
			errs = appendFinite(errs, "ratioMin", *r.Min)
		}
		if r.Max != nil {
			errs = appendFinite(errs, "ratioMax", *r.Max)
		}
		if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
			errs = append(errs, FieldError{Field: "ratioMin", Code: CodeMinExceedsMax, Message: "ratioMin must not exceed ratioMax"})
		}
	case GradeMapRule:
		seen := make(map[string]bool, len(r.Grades))
		for i, g := range r.Grades {
			path := fmt.Sprintf("gradeMapping.%d", i)
			name := strings.TrimSpace(g.GradeName)
			if name == "" {
				errs = append(errs, FieldError{Field: path + ".gradeName", Code: CodeEmptyGradeName, Message: "grade name must not be empty"})
			} else if seen[g.GradeName] {
				errs = append(errs, FieldError{Field: path + ".gradeName", Code: CodeDuplicate, Message: fmt.Sprintf("grade %q is mapped twice", g.GradeName)})
			}
			seen[g.GradeName] = true
			errs = appendFinite(errs, path+".score", g.Score)
		}
	case DeductionRule:
		errs = appendFinite(errs, "deductionBase", r.Base)
		errs = appendFinite(errs, "deductionPerUnit", r.PerUnit)
		errs = appendFinite(errs, "deductionMin", r.Min)
	case BonusRule:
		errs = appendFinite(errs, "bonusTrigger", r.Trigger)
		errs = appendFinite(errs, "bonusPerUnit", r.PerUnit)
		errs = appendFinite(errs, "bonusCap", r.Cap)
	case nil:
		errs = append(errs, FieldError{Field: "ruleType", Code: CodeRequired, Message: "rule is not configured"})
	default:
		errs = append(errs, FieldError{Field: "ruleType", Code: CodeUnknownValue, Message: fmt.Sprintf("unsupported rule %T", rule)})
	}

	if len(errs) > 0 {
		return newValidationError(errs...)
	}
	return nil
}

func appendFinite(errs []FieldError, field string, v float64) []FieldError {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return append(errs, FieldError{Field: field, Code: CodeNotFinite, Message: "must be a finite number"})
	}
	return errs
}

// ValidateBasicInfo checks the fields entered on the first wizard step
func ValidateBasicInfo(m EvaluationModel) error {
	var errs []FieldError
	if strings.TrimSpace(m.Name) == "" {
		errs = append(errs, FieldError{Field: "name", Code: CodeRequired, Message: "model name is required"})
	}
	if !m.ScoringMethod.Valid() {
		errs = append(errs, FieldError{Field: "scoringMethod", Code: CodeUnknownValue, Message: fmt.Sprintf("unknown scoring method %q", m.ScoringMethod)})
	}
	if len(errs) > 0 {
		return newValidationError(errs...)
	}
	return nil
}

// ValidateIndicators checks every indicator binding of a model
func (e *ScoringEngine) ValidateIndicators(m EvaluationModel) error {
	var errs []FieldError
	seen := make(map[string]bool, len(m.Indicators))

	for i, ind := range m.Indicators {
		path := fmt.Sprintf("indicators.%d", i)
		if ind.IndicatorID == "" {
			errs = append(errs, FieldError{Field: path + ".indicatorId", Code: CodeRequired, Message: "indicator id is required"})
		} else if seen[ind.IndicatorID] {
			errs = append(errs, FieldError{Field: path + ".indicatorId", Code: CodeDuplicate, Message: fmt.Sprintf("indicator %s is configured twice", ind.IndicatorID)})
		}
		seen[ind.IndicatorID] = true

		if math.IsNaN(ind.Weight) || ind.Weight < 0 || ind.Weight > 100 {
			errs = append(errs, FieldError{Field: path + ".weight", Code: CodeOutOfRange, Message: "weight must be between 0 and 100"})
		}
		errs = appendFinite(errs, path+".maxScore", ind.MaxScore)
		if ind.RequireEvidence && !ind.EnableEvidence {
			errs = append(errs, FieldError{Field: path + ".requireEvidence", Code: CodeDependency, Message: "evidence can only be required when evidence upload is enabled"})
		}

		if err := e.Validate(ind.Rule); err != nil {
			if ve, ok := AsValidationError(err); ok {
				errs = append(errs, ve.prefixed(path+".ruleConfig")...)
			} else {
				return err
			}
		}
	}

	if len(errs) > 0 {
		return newValidationError(errs...)
	}
	return nil
}

// ValidateGradeLevels checks that every grade band is well formed
func ValidateGradeLevels(levels []GradeLevel) error {
	var errs []FieldError
	for i, g := range levels {
		path := fmt.Sprintf("gradeLevels.%d", i)
		if strings.TrimSpace(g.Name) == "" {
			errs = append(errs, FieldError{Field: path + ".name", Code: CodeRequired, Message: "grade level name is required"})
		}
		errs = appendFinite(errs, path+".minScore", g.MinScore)
		errs = appendFinite(errs, path+".maxScore", g.MaxScore)
		if g.MinScore > g.MaxScore {
			errs = append(errs, FieldError{Field: path, Code: CodeMinExceedsMax, Message: "minScore must not exceed maxScore"})
		}
	}
	if len(errs) > 0 {
		return newValidationError(errs...)
	}
	return nil
}

// ValidateModel runs every structural check on a model. Weight imbalance and
// grade coverage problems are not errors; see Warnings.
func (e *ScoringEngine) ValidateModel(m EvaluationModel) error {
	var errs []FieldError
	collect := func(err error) error {
		if err == nil {
			return nil
		}
		ve, ok := AsValidationError(err)
		if !ok {
			return err
		}
		errs = append(errs, ve.Errors...)
		return nil
	}

	if err := collect(ValidateBasicInfo(m)); err != nil {
		return err
	}
	if err := collect(e.ValidateIndicators(m)); err != nil {
		return err
	}
	if err := collect(ValidateGradeLevels(m.GradeLevels)); err != nil {
		return err
	}

	if len(errs) > 0 {
		return newValidationError(errs...)
	}
	return nil
}

// Warnings lists the non-blocking findings for a model
func (e *ScoringEngine) Warnings(m EvaluationModel) []Warning {
	var warnings []Warning
	if w := CheckWeights(m); w != nil {
		warnings = append(warnings, w.Warning())
	}
	for _, ind := range m.Indicators {
		if r, ok := ind.Rule.(ThresholdRule); ok && len(r.Bands) == 0 {
			warnings = append(warnings, Warning{Code: WarnEmptyRule, Message: fmt.Sprintf("indicator %s has no threshold bands", ind.IndicatorID)})
		}
		if r, ok := ind.Rule.(GradeMapRule); ok && len(r.Grades) == 0 {
			warnings = append(warnings, Warning{Code: WarnEmptyRule, Message: fmt.Sprintf("indicator %s has no grade mapping", ind.IndicatorID)})
		}
	}
	if m.EnableGradeLevels {
		warnings = append(warnings, CheckGradeCoverage(m.GradeLevels, MaxTotal(m))...)
	}
	return warnings
}
