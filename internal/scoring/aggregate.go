package scoring

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// weightTolerance absorbs float noise when comparing a weight total to 100
const weightTolerance = 1e-9

// ScoreResult is the outcome of scoring one evaluated object against a model
type ScoreResult struct {
	ModelID       string        `json:"modelId"`
	ModelName     string        `json:"modelName"`
	ScoringMethod ScoringMethod `json:"scoringMethod"`
	Total         float64       `json:"total"`
	Bonus         float64       `json:"bonus"`
	Grade         *GradeLevel   `json:"grade,omitempty"`
	Details       []ScoreDetail `json:"details"`
	Unscored      []string      `json:"unscored,omitempty"`
	Warnings      []Warning     `json:"warnings,omitempty"`
	ScoredAt      time.Time     `json:"scoredAt"`
}

// ScoreDetail is the breakdown for one indicator of a ScoreResult
type ScoreDetail struct {
	IndicatorID  string   `json:"indicatorId"`
	RuleType     RuleType `json:"ruleType"`
	Value        RawValue `json:"value"`
	Score        float64  `json:"score"`
	Contribution float64  `json:"contribution"`
	Scored       bool     `json:"scored"`
	Reason       string   `json:"reason,omitempty"`
}

// TotalWeight sums the configured weights of a model's indicators
func TotalWeight(m EvaluationModel) float64 {
	total := 0.0
	for _, ind := range m.Indicators {
		total += ind.Weight
	}
	return total
}

// CheckWeights reports a weight imbalance for WEIGHTED models whose weights
// do not add up to 100. It returns nil for balanced or SUM models.
func CheckWeights(m EvaluationModel) *WeightImbalanceWarning {
	if m.ScoringMethod != MethodWeighted {
		return nil
	}
	total := TotalWeight(m)
	if math.Abs(total-100) <= weightTolerance {
		return nil
	}
	return &WeightImbalanceWarning{Total: total, Expected: 100}
}

// Aggregate combines per-indicator scores, keyed by indicator id, into a model
// total. Missing scores contribute nothing. BONUS indicators are added on top
// without weighting or capping.
func Aggregate(m EvaluationModel, scores map[string]float64) float64 {
	total := 0.0
	for _, ind := range m.Indicators {
		score, ok := scores[ind.IndicatorID]
		if !ok {
			continue
		}
		total += contribution(m.ScoringMethod, ind, score)
	}
	return total
}

func contribution(method ScoringMethod, ind ModelIndicatorConfig, score float64) float64 {
	if ind.RuleType() == RuleBonus {
		return score
	}
	if method == MethodWeighted {
		return score * ind.Weight / 100
	}
	if ind.MaxScore > 0 && score > ind.MaxScore {
		return ind.MaxScore
	}
	return score
}

// Classify returns the first grade level whose band contains total, or nil
func Classify(total float64, levels []GradeLevel) *GradeLevel {
	for i := range levels {
		if levels[i].Contains(total) {
			g := levels[i]
			return &g
		}
	}
	return nil
}

// MaxTotal is the highest total a model is expected to reach: 100 for WEIGHTED
// models and the sum of capped maxScores for SUM models.
func MaxTotal(m EvaluationModel) float64 {
	if m.ScoringMethod != MethodSum {
		return 100
	}
	total := 0.0
	for _, ind := range m.Indicators {
		if ind.RuleType() == RuleBonus || ind.MaxScore <= 0 {
			continue
		}
		total += ind.MaxScore
	}
	if total == 0 {
		return 100
	}
	return total
}

// CheckGradeCoverage reports gaps and overlaps between grade bands over
// [0, maxTotal], using the same band bounds as Classify: 80-89 followed by
// 90-100 is contiguous, 80-88.5 followed by 90-100 leaves [89, 90) ungraded.
func CheckGradeCoverage(levels []GradeLevel, maxTotal float64) []Warning {
	if len(levels) == 0 {
		return nil
	}
	sorted := append([]GradeLevel(nil), levels...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MinScore < sorted[j].MinScore })

	var warnings []Warning
	if sorted[0].MinScore > 0 {
		warnings = append(warnings, Warning{Code: WarnGradeGap, Message: fmt.Sprintf("scores below %s are not graded", formatNumber(sorted[0].MinScore))})
	}
	for i := 1; i < len(sorted); i++ {
		prev, next := sorted[i-1], sorted[i]
		switch {
		case next.MinScore < prev.upperBound():
			warnings = append(warnings, Warning{Code: WarnGradeOverlap, Message: fmt.Sprintf("grade %s overlaps grade %s", next.Name, prev.Name)})
		case next.MinScore > prev.upperBound():
			warnings = append(warnings, Warning{Code: WarnGradeGap, Message: fmt.Sprintf("scores from %s below %s are not graded", formatNumber(prev.upperBound()), formatNumber(next.MinScore))})
		}
	}
	top := sorted[0].upperBound()
	for _, g := range sorted {
		top = math.Max(top, g.upperBound())
	}
	if top <= maxTotal {
		warnings = append(warnings, Warning{Code: WarnGradeGap, Message: fmt.Sprintf("scores from %s are not graded", formatNumber(top))})
	}
	return warnings
}

// EvaluateModel scores a set of observations, keyed by indicator id, against
// a model. Indicators without an observation or without a matching band are
// reported as unscored and contribute nothing.
func (e *ScoringEngine) EvaluateModel(m EvaluationModel, observations map[string]RawValue) (*ScoreResult, error) {
	if err := e.ValidateModel(m); err != nil {
		return nil, err
	}

	result := &ScoreResult{
		ModelID:       m.ID,
		ModelName:     m.Name,
		ScoringMethod: m.ScoringMethod,
		Details:       make([]ScoreDetail, 0, len(m.Indicators)),
		Warnings:      e.Warnings(m),
		ScoredAt:      time.Now(),
	}

	scores := make(map[string]float64, len(m.Indicators))
	for _, ind := range m.Indicators {
		detail := ScoreDetail{IndicatorID: ind.IndicatorID, RuleType: ind.RuleType()}

		raw, ok := observations[ind.IndicatorID]
		if !ok || raw.IsZero() {
			detail.Reason = "no observation"
			result.Unscored = append(result.Unscored, ind.IndicatorID)
			result.Details = append(result.Details, detail)
			continue
		}
		detail.Value = raw

		score, err := e.Evaluate(ind.Rule, raw)
		if err != nil {
			if errors.Is(err, ErrUnscored) {
				detail.Reason = err.Error()
				result.Unscored = append(result.Unscored, ind.IndicatorID)
				result.Details = append(result.Details, detail)
				continue
			}
			return nil, fmt.Errorf("indicator %s: %w", ind.IndicatorID, err)
		}

		detail.Score = score
		detail.Scored = true
		detail.Contribution = contribution(m.ScoringMethod, ind, score)
		if detail.RuleType == RuleBonus {
			result.Bonus += score
		}
		scores[ind.IndicatorID] = score
		result.Details = append(result.Details, detail)
	}

	result.Total = Aggregate(m, scores)
	if m.EnableGradeLevels {
		result.Grade = Classify(result.Total, m.GradeLevels)
	}
	return result, nil
}
