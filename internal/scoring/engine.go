package scoring

import (
	"fmt"
	"math"
	"strings"
)

// ScoringEngine evaluates and explains indicator scoring rules
type ScoringEngine struct{}

// NewScoringEngine creates a new scoring engine instance
func NewScoringEngine() *ScoringEngine {
	return &ScoringEngine{}
}

// Evaluate converts one raw observation into a score under rule.
// For BONUS rules the result is the bonus amount alone; see ApplyBonus.
func (e *ScoringEngine) Evaluate(rule Rule, raw RawValue) (float64, error) {
	if rule == nil {
		return 0, newValidationError(FieldError{Field: "ruleType", Code: CodeRequired, Message: "rule is not configured"})
	}
	if err := e.Validate(rule); err != nil {
		return 0, err
	}

	if r, ok := rule.(GradeMapRule); ok {
		label, isLabel := raw.Text()
		if !isLabel {
			return 0, typeMismatch(rule.Type(), raw, "a text label")
		}
		return e.evaluateGradeMap(r, label)
	}

	v, isNumber := raw.Float()
	if !isNumber {
		return 0, typeMismatch(rule.Type(), raw, "a number")
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, newValidationError(FieldError{Field: "value", Code: CodeNotFinite, Message: "value must be a finite number"})
	}

	switch r := rule.(type) {
	case ThresholdRule:
		return e.evaluateThreshold(r, v)
	case RatioRule:
		return e.evaluateRatio(r, v), nil
	case DeductionRule:
		return math.Max(r.Base-v*r.PerUnit, r.Min), nil
	case BonusRule:
		return e.evaluateBonus(r, v), nil
	}
	return 0, newValidationError(FieldError{Field: "ruleType", Code: CodeUnknownValue, Message: fmt.Sprintf("unsupported rule %T", rule)})
}

// ApplyBonus adds the bonus earned by raw under rule to base
func (e *ScoringEngine) ApplyBonus(base float64, rule BonusRule, raw RawValue) (float64, error) {
	bonus, err := e.Evaluate(rule, raw)
	if err != nil {
		return base, err
	}
	return base + bonus, nil
}

func (e *ScoringEngine) evaluateThreshold(r ThresholdRule, v float64) (float64, error) {
	for _, band := range r.Bands {
		if bandMatches(band, v) {
			return band.Score, nil
		}
	}
	return 0, &UnscoredError{RuleType: RuleThreshold, Value: Number(v)}
}

func bandMatches(band ThresholdItem, v float64) bool {
	switch band.Operator {
	case OpLess:
		return v < band.Value1
	case OpLessEqual:
		return v <= band.Value1
	case OpGreater:
		return v > band.Value1
	case OpGreaterEqual:
		return v >= band.Value1
	case OpRange:
		return band.Value2 != nil && v >= band.Value1 && v <= *band.Value2
	}
	return false
}

func (e *ScoringEngine) evaluateRatio(r RatioRule, v float64) float64 {
	if r.Mode == RatioDeduction {
		score := r.Base - v*r.Coefficient
		if r.Min != nil && score < *r.Min {
			score = *r.Min
		}
		return score
	}

	score := v * r.Coefficient
	if r.Max != nil && score > *r.Max {
		score = *r.Max
	}
	if r.Min != nil && score < *r.Min {
		score = *r.Min
	}
	return score
}

func (e *ScoringEngine) evaluateGradeMap(r GradeMapRule, label string) (float64, error) {
	for _, g := range r.Grades {
		if g.GradeName == label {
			return g.Score, nil
		}
	}
	return 0, &UnscoredError{RuleType: RuleGradeMap, Value: Label(label)}
}

func (e *ScoringEngine) evaluateBonus(r BonusRule, v float64) float64 {
	if v < r.Trigger {
		return 0
	}
	return math.Min((v-r.Trigger)*r.PerUnit, r.Cap)
}

func typeMismatch(t RuleType, raw RawValue, want string) error {
	got := "no value"
	if _, ok := raw.Float(); ok {
		got = "a number"
	} else if _, ok := raw.Text(); ok {
		got = "a text label"
	}
	return newValidationError(FieldError{
		Field:   "value",
		Code:    CodeTypeMismatch,
		Message: fmt.Sprintf("%s rule expects %s, got %s", t, want, got),
	})
}

// RuleLabel returns the short display name of a rule
func (e *ScoringEngine) RuleLabel(rule Rule) string {
	switch r := rule.(type) {
	case ThresholdRule:
		return "阈值得分"
	case RatioRule:
		if r.Mode == RatioDeduction {
			return "比率扣分"
		}
		return "比率得分"
	case GradeMapRule:
		return "等级映射"
	case DeductionRule:
		return "容错扣分"
	case BonusRule:
		return "附加分"
	}
	return ""
}

// Describe renders a rule as the text shown in the scoring description field.
// The output depends only on the rule's parameters.
func (e *ScoringEngine) Describe(rule Rule) string {
	switch r := rule.(type) {
	case ThresholdRule:
		return describeThreshold(r)
	case RatioRule:
		return describeRatio(r)
	case GradeMapRule:
		return describeGradeMap(r)
	case DeductionRule:
		return fmt.Sprintf("基准分%s分。每违规1次扣%s分。最低得%s分。",
			formatNumber(r.Base), formatNumber(r.PerUnit), formatNumber(r.Min))
	case BonusRule:
		return fmt.Sprintf("当指标达到%s%%时触发加分。每增加1单位加%s分。封顶加%s分。",
			formatNumber(r.Trigger), formatNumber(r.PerUnit), formatNumber(r.Cap))
	}
	return ""
}

func describeThreshold(r ThresholdRule) string {
	if len(r.Bands) == 0 {
		return "暂无阈值配置"
	}
	parts := make([]string, len(r.Bands))
	for i, b := range r.Bands {
		cond := fmt.Sprintf("%s %s", b.Operator, formatNumber(b.Value1))
		if b.Operator == OpRange {
			upper := "?"
			if b.Value2 != nil {
				upper = formatNumber(*b.Value2)
			}
			cond = fmt.Sprintf("%s ~ %s", formatNumber(b.Value1), upper)
		}
		parts[i] = fmt.Sprintf("[%d] 指标值 %s 得 %s分", i+1, cond, formatNumber(b.Score))
	}
	return strings.Join(parts, "; ")
}

func describeRatio(r RatioRule) string {
	if r.Mode == RatioDeduction {
		text := fmt.Sprintf("反向计分：得分 = 基础分(%s) - (指标值 × 系数%s)。",
			formatNumber(r.Base), formatNumber(r.Coefficient))
		if r.Min != nil {
			text += fmt.Sprintf("最低得%s分。", formatNumber(*r.Min))
		}
		return text
	}

	var b strings.Builder
	fmt.Fprintf(&b, "正向计分：得分 = 指标值 × 系数(%s)。", formatNumber(r.Coefficient))
	if r.Min != nil {
		fmt.Fprintf(&b, "最低分%s分", formatNumber(*r.Min))
	}
	if r.Max != nil {
		if r.Min != nil {
			b.WriteString("，")
		}
		fmt.Fprintf(&b, "最高分%s分", formatNumber(*r.Max))
	}
	if r.Min != nil || r.Max != nil {
		b.WriteString("。")
	}
	return b.String()
}

func describeGradeMap(r GradeMapRule) string {
	if len(r.Grades) == 0 {
		return "文本映射：暂无映射"
	}
	pairs := make([]string, len(r.Grades))
	for i, g := range r.Grades {
		pairs[i] = fmt.Sprintf("%s=%s分", g.GradeName, formatNumber(g.Score))
	}
	return "文本映射：" + strings.Join(pairs, "，")
}
