package scoring

import (
	"encoding/json"
	"fmt"
	"math"
)

// DateLayout is the format of EvaluationModel.LastUpdated
const DateLayout = "2006-01-02"

// ScoringMethod is how per-indicator scores combine into a model total
type ScoringMethod string

const (
	MethodWeighted ScoringMethod = "WEIGHTED"
	MethodSum      ScoringMethod = "SUM"
)

// Valid reports whether m is a known scoring method
func (m ScoringMethod) Valid() bool {
	return m == MethodWeighted || m == MethodSum
}

// ModelStatus is the lifecycle state shown on a model card
type ModelStatus string

const (
	StatusActive   ModelStatus = "active"
	StatusDraft    ModelStatus = "draft"
	StatusArchived ModelStatus = "archived"
)

// GradeLevel is a named score band used to classify a model total
type GradeLevel struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	MinScore float64 `json:"minScore"`
	MaxScore float64 `json:"maxScore"`
	Color    string  `json:"color"`
}

// Contains reports whether score falls inside the band. Bands are labelled
// on whole points: 80-89 covers [80, 90), so fractional totals between two
// adjacent bands still grade.
func (g GradeLevel) Contains(score float64) bool {
	return score >= g.MinScore && score < g.upperBound()
}

// upperBound is the exclusive end of the band
func (g GradeLevel) upperBound() float64 {
	return math.Floor(g.MaxScore) + 1
}

// DefaultGradeLevels returns the grade bands a new model starts with
func DefaultGradeLevels() []GradeLevel {
	return []GradeLevel{
		{ID: "g1", Name: "优秀", MinScore: 90, MaxScore: 100, Color: "#22c55e"},
		{ID: "g2", Name: "良好", MinScore: 80, MaxScore: 89, Color: "#3b82f6"},
		{ID: "g3", Name: "中等", MinScore: 60, MaxScore: 79, Color: "#eab308"},
		{ID: "g4", Name: "不合格", MinScore: 0, MaxScore: 59, Color: "#ef4444"},
	}
}

// ModelIndicatorConfig binds one indicator to one scoring rule inside a model
type ModelIndicatorConfig struct {
	IndicatorID     string
	Weight          float64 // WEIGHTED only, 0-100
	MaxScore        float64 // SUM only, <= 0 means uncapped
	Rule            Rule
	ScoringRuleDesc string
	EnableEvidence  bool
	RequireEvidence bool
}

type indicatorConfigJSON struct {
	IndicatorID     string          `json:"indicatorId"`
	Weight          float64         `json:"weight"`
	MaxScore        float64         `json:"maxScore"`
	RuleType        RuleType        `json:"ruleType,omitempty"`
	RuleConfig      json.RawMessage `json:"ruleConfig,omitempty"`
	ScoringRuleDesc string          `json:"scoringRuleDesc"`
	EnableEvidence  bool            `json:"enableEvidence"`
	RequireEvidence bool            `json:"requireEvidence"`
}

// MarshalJSON writes the rule as a ruleType discriminator plus ruleConfig
func (c ModelIndicatorConfig) MarshalJSON() ([]byte, error) {
	ruleType, raw, err := MarshalRule(c.Rule)
	if err != nil {
		return nil, err
	}
	return json.Marshal(indicatorConfigJSON{
		IndicatorID:     c.IndicatorID,
		Weight:          c.Weight,
		MaxScore:        c.MaxScore,
		RuleType:        ruleType,
		RuleConfig:      raw,
		ScoringRuleDesc: c.ScoringRuleDesc,
		EnableEvidence:  c.EnableEvidence,
		RequireEvidence: c.RequireEvidence,
	})
}

// UnmarshalJSON reads the ruleType discriminator and decodes the matching variant
func (c *ModelIndicatorConfig) UnmarshalJSON(data []byte) error {
	var aux indicatorConfigJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var rule Rule
	if aux.RuleType != "" {
		r, err := UnmarshalRule(aux.RuleType, aux.RuleConfig)
		if err != nil {
			return fmt.Errorf("indicator %s: %w", aux.IndicatorID, err)
		}
		rule = r
	}

	*c = ModelIndicatorConfig{
		IndicatorID:     aux.IndicatorID,
		Weight:          aux.Weight,
		MaxScore:        aux.MaxScore,
		Rule:            rule,
		ScoringRuleDesc: aux.ScoringRuleDesc,
		EnableEvidence:  aux.EnableEvidence,
		RequireEvidence: aux.RequireEvidence,
	}
	return nil
}

// RuleType returns the configured rule's type, or "" when none is set
func (c ModelIndicatorConfig) RuleType() RuleType {
	if c.Rule == nil {
		return ""
	}
	return c.Rule.Type()
}

// EvaluationModel is a named bundle of indicator rules and an aggregation method
type EvaluationModel struct {
	ID                string                 `json:"id"`
	Name              string                 `json:"name"`
	Version           string                 `json:"version"`
	Tags              []string               `json:"tags"`
	Description       string                 `json:"description"`
	ScoringMethod     ScoringMethod          `json:"scoringMethod"`
	Indicators        []ModelIndicatorConfig `json:"indicators"`
	GradeLevels       []GradeLevel           `json:"gradeLevels"`
	EnableGradeLevels bool                   `json:"enableGradeLevels"`
	LastUpdated       string                 `json:"lastUpdated"`
	Status            ModelStatus            `json:"status"`
}

// Indicator returns the configuration for indicatorID and its position
func (m *EvaluationModel) Indicator(indicatorID string) (*ModelIndicatorConfig, int) {
	for i := range m.Indicators {
		if m.Indicators[i].IndicatorID == indicatorID {
			return &m.Indicators[i], i
		}
	}
	return nil, -1
}

// Clone returns a deep copy of the model
func Clone(m EvaluationModel) EvaluationModel {
	out := m
	if m.Tags != nil {
		out.Tags = append([]string(nil), m.Tags...)
	}
	if m.Indicators != nil {
		out.Indicators = make([]ModelIndicatorConfig, len(m.Indicators))
		for i, ind := range m.Indicators {
			if ind.Rule != nil {
				ind.Rule = CloneRule(ind.Rule)
			}
			out.Indicators[i] = ind
		}
	}
	if m.GradeLevels != nil {
		out.GradeLevels = append([]GradeLevel(nil), m.GradeLevels...)
	}
	return out
}
