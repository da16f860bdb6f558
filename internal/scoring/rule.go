package scoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// RuleType identifies which scoring formula an indicator uses
type RuleType string

const (
	RuleThreshold RuleType = "THRESHOLD"
	RuleRatio     RuleType = "RATIO"
	RuleGradeMap  RuleType = "GRADE_MAP"
	RuleDeduction RuleType = "DEDUCTION"
	RuleBonus     RuleType = "BONUS"
)

// RuleTypes lists every supported rule type in display order
var RuleTypes = []RuleType{RuleThreshold, RuleRatio, RuleGradeMap, RuleDeduction, RuleBonus}

// Valid reports whether t is a known rule type
func (t RuleType) Valid() bool {
	switch t {
	case RuleThreshold, RuleRatio, RuleGradeMap, RuleDeduction, RuleBonus:
		return true
	}
	return false
}

// Operator is the comparison used by a threshold band
type Operator string

const (
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpRange        Operator = "range"
)

// RatioMode selects the direction of a ratio rule
type RatioMode string

const (
	RatioProportional RatioMode = "PROPORTIONAL"
	RatioDeduction    RatioMode = "DEDUCTION"
)

// Rule is a scoring rule configuration. Only the five variant types in this
// package implement it, so a value can never carry another variant's fields.
type Rule interface {
	Type() RuleType
	isRule()
}

// ThresholdItem is one band of a threshold rule
type ThresholdItem struct {
	ID       string   `json:"id,omitempty"`
	Operator Operator `json:"operator"`
	Value1   float64  `json:"value1"`
	Value2   *float64 `json:"value2,omitempty"`
	Score    float64  `json:"score"`
}

// ThresholdRule scores a value by the first band whose condition holds
type ThresholdRule struct {
	Bands []ThresholdItem `json:"thresholds"`
}

// RatioRule scores a value linearly, either upward or as a deduction from a base
type RatioRule struct {
	Mode        RatioMode `json:"ratioType"`
	Base        float64   `json:"ratioBase"`
	Coefficient float64   `json:"ratioCoefficient"`
	Min         *float64  `json:"ratioMin,omitempty"`
	Max         *float64  `json:"ratioMax,omitempty"`
}

// GradeMapItem maps a qualitative label to a score
type GradeMapItem struct {
	ID        string  `json:"id,omitempty"`
	GradeName string  `json:"gradeName"`
	Score     float64 `json:"score"`
}

// GradeMapRule scores a textual label by exact match
type GradeMapRule struct {
	Grades []GradeMapItem `json:"gradeMapping"`
}

// DeductionRule subtracts a fixed amount per counted violation
type DeductionRule struct {
	Base    float64 `json:"deductionBase"`
	PerUnit float64 `json:"deductionPerUnit"`
	Min     float64 `json:"deductionMin"`
}

// BonusRule awards extra points above a trigger value, up to a cap
type BonusRule struct {
	Trigger float64 `json:"bonusTrigger"`
	PerUnit float64 `json:"bonusPerUnit"`
	Cap     float64 `json:"bonusCap"`
}

func (ThresholdRule) Type() RuleType { return RuleThreshold }
func (RatioRule) Type() RuleType     { return RuleRatio }
func (GradeMapRule) Type() RuleType  { return RuleGradeMap }
func (DeductionRule) Type() RuleType { return RuleDeduction }
func (BonusRule) Type() RuleType     { return RuleBonus }

func (ThresholdRule) isRule() {}
func (RatioRule) isRule()     {}
func (GradeMapRule) isRule()  {}
func (DeductionRule) isRule() {}
func (BonusRule) isRule()     {}

// NewRule returns the zero configuration for a rule type, using the same
// starting values the model editor offers.
func NewRule(t RuleType) (Rule, error) {
	switch t {
	case RuleThreshold:
		return ThresholdRule{Bands: []ThresholdItem{}}, nil
	case RuleRatio:
		return RatioRule{Mode: RatioProportional, Base: 100, Coefficient: 1}, nil
	case RuleGradeMap:
		return GradeMapRule{Grades: []GradeMapItem{}}, nil
	case RuleDeduction:
		return DeductionRule{Base: 10, PerUnit: 1, Min: 0}, nil
	case RuleBonus:
		return BonusRule{Trigger: 100, PerUnit: 1, Cap: 5}, nil
	}
	return nil, fmt.Errorf("unknown rule type %q", t)
}

// MarshalRule encodes the variant-specific configuration of a rule
func MarshalRule(r Rule) (RuleType, []byte, error) {
	if r == nil {
		return "", nil, nil
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal %s rule: %w", r.Type(), err)
	}
	return r.Type(), raw, nil
}

// UnmarshalRule decodes a rule configuration for the given rule type. The
// payload is checked against the rule type's JSON schema first.
func UnmarshalRule(t RuleType, raw []byte) (Rule, error) {
	if !t.Valid() {
		return nil, newValidationError(FieldError{Field: "ruleType", Code: CodeUnknownValue, Message: fmt.Sprintf("unknown rule type %q", t)})
	}
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return NewRule(t)
	}
	if err := ValidateRuleConfig(t, raw); err != nil {
		return nil, err
	}

	switch t {
	case RuleThreshold:
		var r ThresholdRule
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("failed to parse threshold rule: %w", err)
		}
		return r, nil
	case RuleRatio:
		r := RatioRule{Mode: RatioProportional, Base: 100, Coefficient: 1}
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("failed to parse ratio rule: %w", err)
		}
		return r, nil
	case RuleGradeMap:
		var r GradeMapRule
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("failed to parse grade map rule: %w", err)
		}
		return r, nil
	case RuleDeduction:
		r := DeductionRule{Base: 10, PerUnit: 1}
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("failed to parse deduction rule: %w", err)
		}
		return r, nil
	default:
		r := BonusRule{Trigger: 100, PerUnit: 1, Cap: 5}
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("failed to parse bonus rule: %w", err)
		}
		return r, nil
	}
}

// CloneRule returns a copy of r that shares no slices or pointers with it
func CloneRule(r Rule) Rule {
	switch v := r.(type) {
	case ThresholdRule:
		bands := make([]ThresholdItem, len(v.Bands))
		for i, b := range v.Bands {
			b.Value2 = cloneFloat(b.Value2)
			bands[i] = b
		}
		if v.Bands == nil {
			bands = nil
		}
		return ThresholdRule{Bands: bands}
	case RatioRule:
		v.Min = cloneFloat(v.Min)
		v.Max = cloneFloat(v.Max)
		return v
	case GradeMapRule:
		if v.Grades == nil {
			return v
		}
		grades := make([]GradeMapItem, len(v.Grades))
		copy(grades, v.Grades)
		return GradeMapRule{Grades: grades}
	default:
		return r
	}
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// Float returns a pointer to v, for optional rule bounds
func Float(v float64) *float64 {
	return &v
}

type valueKind uint8

const (
	kindNone valueKind = iota
	kindNumber
	kindLabel
)

// RawValue is an observed indicator value: a number for quantitative rules
// or a label for grade mapping.
type RawValue struct {
	kind  valueKind
	num   float64
	label string
}

// Number wraps a numeric observation
func Number(v float64) RawValue {
	return RawValue{kind: kindNumber, num: v}
}

// Label wraps a qualitative observation
func Label(s string) RawValue {
	return RawValue{kind: kindLabel, label: s}
}

// IsZero reports whether no value was supplied
func (v RawValue) IsZero() bool { return v.kind == kindNone }

// Float returns the numeric value if v holds one
func (v RawValue) Float() (float64, bool) {
	return v.num, v.kind == kindNumber
}

// Text returns the label if v holds one
func (v RawValue) Text() (string, bool) {
	return v.label, v.kind == kindLabel
}

func (v RawValue) String() string {
	switch v.kind {
	case kindNumber:
		return formatNumber(v.num)
	case kindLabel:
		return v.label
	}
	return ""
}

// MarshalJSON encodes numbers as JSON numbers and labels as strings
func (v RawValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case kindNumber:
		return json.Marshal(v.num)
	case kindLabel:
		return json.Marshal(v.label)
	}
	return []byte("null"), nil
}

// UnmarshalJSON accepts a JSON number, string or null
func (v *RawValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*v = RawValue{}
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Label(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("raw value must be a number or a string: %w", err)
	}
	*v = Number(f)
	return nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
