package editor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajharbinger/perfeval/internal/models"
	"github.com/ajharbinger/perfeval/internal/scoring"
)

type mapLibrary map[string]models.Indicator

func (l mapLibrary) Indicator(id string) (models.Indicator, bool) {
	ind, ok := l[id]
	return ind, ok
}

type memoryStore struct {
	models map[string]scoring.EvaluationModel
	err    error
}

func (s *memoryStore) Put(_ context.Context, m scoring.EvaluationModel) error {
	if s.err != nil {
		return s.err
	}
	if s.models == nil {
		s.models = make(map[string]scoring.EvaluationModel)
	}
	s.models[m.ID] = m
	return nil
}

func library() mapLibrary {
	return mapLibrary{
		"1": {ID: "1", Name: "业务子模块访问情况", Unit: "次/日"},
		"3": {ID: "3", Name: "数据重复率", Unit: "%"},
		"9": {ID: "9", Name: "项目文档合规性", Source: models.SourceManual},
	}
}

func TestNewDraft_Defaults(t *testing.T) {
	d := NewDraft(library())
	m := d.Snapshot()

	assert.Equal(t, StateBasicInfo, d.State())
	assert.Equal(t, "V1.0", m.Version)
	assert.Equal(t, scoring.MethodWeighted, m.ScoringMethod)
	assert.True(t, m.EnableGradeLevels)
	assert.Equal(t, scoring.DefaultGradeLevels(), m.GradeLevels)
	assert.True(t, d.IsNew())
}

func TestDraft_NextGuardsBasicInfo(t *testing.T) {
	d := NewDraft(library())

	state, err := d.Next()
	_, isValidation := scoring.AsValidationError(err)
	assert.True(t, isValidation, "empty name must block the first step")
	assert.Equal(t, StateBasicInfo, state)

	require.NoError(t, d.SetBasicInfo(BasicInfo{Name: "数据资源类评价模型"}))
	state, err = d.Next()
	require.NoError(t, err)
	assert.Equal(t, StateIndicatorConfig, state)
}

func TestDraft_FullWizard(t *testing.T) {
	d := NewDraft(library())
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	require.NoError(t, d.SetBasicInfo(BasicInfo{Name: "数据资源类评价模型", Tags: []string{"数据"}}))
	_, err := d.Next()
	require.NoError(t, err)

	require.NoError(t, d.AddIndicator("1"))
	require.NoError(t, d.AddIndicator("3"))
	assert.ErrorIs(t, d.AddIndicator("1"), ErrDuplicate)
	assert.ErrorIs(t, d.AddIndicator("404"), ErrUnknownIndicator)

	m := d.Snapshot()
	require.Len(t, m.Indicators, 2)
	assert.Equal(t, 0.0, m.Indicators[0].Weight)
	assert.Equal(t, 10.0, m.Indicators[0].MaxScore)
	assert.Equal(t, scoring.RuleThreshold, m.Indicators[0].RuleType())
	assert.Equal(t, "暂无阈值配置", m.Indicators[0].ScoringRuleDesc)

	require.NoError(t, d.SetWeight("1", 60))
	require.NoError(t, d.SetWeight("3", 30))
	assert.Equal(t, 90.0, d.TotalWeight())

	require.NoError(t, d.SetRule("3", scoring.RatioRule{Mode: scoring.RatioDeduction, Base: 100, Coefficient: 2, Min: scoring.Float(60)}))

	_, err = d.Next()
	require.NoError(t, err)
	assert.Equal(t, StateReviewAndGrades, d.State())

	require.NoError(t, d.SetGradeLevelsEnabled(false))

	store := &memoryStore{}
	saved, warnings, err := d.Save(context.Background(), store)
	require.NoError(t, err)

	assert.Equal(t, StateSaved, d.State())
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, "2025-03-10", saved.LastUpdated)
	assert.Equal(t, scoring.StatusActive, saved.Status)
	assert.Contains(t, store.models, saved.ID)
	codes := make([]string, 0, len(warnings))
	for _, w := range warnings {
		codes = append(codes, w.Code)
	}
	assert.Contains(t, codes, scoring.WarnWeightImbalance, "imbalance warns but does not block")
	assert.Contains(t, codes, scoring.WarnEmptyRule)

	assert.ErrorIs(t, d.SetWeight("1", 10), ErrClosed)
}

func TestDraft_SetRuleKeepsEditedDescription(t *testing.T) {
	d := NewDraft(library())
	require.NoError(t, d.SetBasicInfo(BasicInfo{Name: "m"}))
	_, _ = d.Next()
	require.NoError(t, d.AddIndicator("9"))

	grades := scoring.GradeMapRule{Grades: []scoring.GradeMapItem{{GradeName: "优秀", Score: 10}}}
	require.NoError(t, d.SetRule("9", grades))
	assert.Equal(t, "文本映射：优秀=10分", d.Snapshot().Indicators[0].ScoringRuleDesc)

	require.NoError(t, d.SetRuleDescription("9", "专家打分"))
	grades.Grades = append(grades.Grades, scoring.GradeMapItem{GradeName: "良好", Score: 7})
	require.NoError(t, d.SetRule("9", grades))
	assert.Equal(t, "专家打分", d.Snapshot().Indicators[0].ScoringRuleDesc)

	require.NoError(t, d.SetRuleDescription("9", ""))
	require.NoError(t, d.SetRule("9", grades))
	assert.Equal(t, "文本映射：优秀=10分，良好=7分", d.Snapshot().Indicators[0].ScoringRuleDesc)
}

func TestDraft_SetRuleRejectsInvalid(t *testing.T) {
	d := NewDraft(library())
	require.NoError(t, d.SetBasicInfo(BasicInfo{Name: "m"}))
	_, _ = d.Next()
	require.NoError(t, d.AddIndicator("1"))

	err := d.SetRule("1", scoring.ThresholdRule{Bands: []scoring.ThresholdItem{{Operator: scoring.OpRange, Value1: 10, Value2: scoring.Float(1)}}})
	ve, ok := scoring.AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, scoring.CodeInvalidRange, ve.Errors[0].Code)
	assert.Equal(t, scoring.RuleThreshold, d.Snapshot().Indicators[0].RuleType())
}

func TestDraft_BackKeepsData(t *testing.T) {
	d := NewDraft(library())
	require.NoError(t, d.SetBasicInfo(BasicInfo{Name: "m"}))
	_, _ = d.Next()
	require.NoError(t, d.AddIndicator("1"))
	require.NoError(t, d.SetRule("1", scoring.RatioRule{Mode: scoring.RatioProportional, Min: scoring.Float(5), Max: scoring.Float(10), Coefficient: 1}))

	state, err := d.Back()
	require.NoError(t, err)
	assert.Equal(t, StateBasicInfo, state)
	assert.Len(t, d.Snapshot().Indicators, 1)

	_, err = d.Back()
	assert.ErrorIs(t, err, ErrInvalidTransition)

	assert.ErrorIs(t, d.AddIndicator("3"), ErrWrongStep)
}

func TestDraft_EvidenceDependency(t *testing.T) {
	d := NewDraft(library())
	require.NoError(t, d.SetBasicInfo(BasicInfo{Name: "m"}))
	_, _ = d.Next()
	require.NoError(t, d.AddIndicator("9"))

	assert.Error(t, d.SetEvidence("9", false, true))
	require.NoError(t, d.SetEvidence("9", true, true))
	assert.True(t, d.Snapshot().Indicators[0].RequireEvidence)
}

func TestDraft_UpdateIndicatorIsAllOrNothing(t *testing.T) {
	d := NewDraft(library())
	require.NoError(t, d.SetBasicInfo(BasicInfo{Name: "m"}))
	_, _ = d.Next()
	require.NoError(t, d.AddIndicator("9"))
	before := d.Snapshot()

	weight := 40.0
	mustUpload := true
	err := d.UpdateIndicator("9", IndicatorUpdate{
		Rule:            scoring.BonusRule{Trigger: 1, PerUnit: 2, Cap: 10},
		Weight:          &weight,
		RequireEvidence: &mustUpload,
	})
	assert.ErrorIs(t, err, ErrEvidenceRequired)
	assert.Equal(t, before, d.Snapshot(), "a rejected update changes nothing")

	err = d.UpdateIndicator("9", IndicatorUpdate{Rule: scoring.RatioRule{Mode: "nope"}, Weight: &weight})
	assert.Error(t, err)
	assert.Equal(t, before, d.Snapshot())

	enable := true
	err = d.UpdateIndicator("9", IndicatorUpdate{
		Rule:            scoring.BonusRule{Trigger: 1, PerUnit: 2, Cap: 10},
		Weight:          &weight,
		EnableEvidence:  &enable,
		RequireEvidence: &mustUpload,
	})
	assert.NoError(t, err)
	cfg := d.Snapshot().Indicators[0]
	assert.Equal(t, scoring.RuleBonus, cfg.RuleType())
	assert.Equal(t, 40.0, cfg.Weight)
	assert.True(t, cfg.EnableEvidence)
	assert.True(t, cfg.RequireEvidence)
	assert.Equal(t, scoring.NewScoringEngine().Describe(cfg.Rule), cfg.ScoringRuleDesc)

	disable := false
	assert.NoError(t, d.UpdateIndicator("9", IndicatorUpdate{EnableEvidence: &disable}))
	cfg = d.Snapshot().Indicators[0]
	assert.False(t, cfg.EnableEvidence)
	assert.False(t, cfg.RequireEvidence, "turning upload off drops the requirement")

	assert.ErrorIs(t, d.UpdateIndicator("3", IndicatorUpdate{Weight: &weight}), ErrNotInModel)
}

func TestDraft_SaveOnlyFromReview(t *testing.T) {
	d := NewDraft(library())
	require.NoError(t, d.SetBasicInfo(BasicInfo{Name: "m"}))

	store := &memoryStore{}
	_, _, err := d.Save(context.Background(), store)
	assert.ErrorIs(t, err, ErrWrongStep)
	assert.Empty(t, store.models)
}

func TestDraft_SaveStoreFailureKeepsDraftOpen(t *testing.T) {
	d := NewDraft(library())
	require.NoError(t, d.SetBasicInfo(BasicInfo{Name: "m"}))
	_, _ = d.Next()
	_, _ = d.Next()

	_, _, err := d.Save(context.Background(), &memoryStore{err: errors.New("disk full")})
	assert.Error(t, err)
	assert.Equal(t, StateReviewAndGrades, d.State())
}

func TestEditDraft_IsolatedFromOriginal(t *testing.T) {
	original := scoring.EvaluationModel{
		ID:            "m1",
		Name:          "通用业务系统评价模型",
		Version:       "V2.0",
		ScoringMethod: scoring.MethodWeighted,
		Indicators: []scoring.ModelIndicatorConfig{
			{IndicatorID: "1", Weight: 100, Rule: scoring.ThresholdRule{Bands: []scoring.ThresholdItem{{Operator: scoring.OpLess, Value1: 1, Score: 1}}}},
		},
		Status: scoring.StatusActive,
	}

	d := EditDraft(original, library())
	assert.False(t, d.IsNew())
	require.NoError(t, d.SetBasicInfo(BasicInfo{Name: "改名"}))
	_, _ = d.Next()
	require.NoError(t, d.SetWeight("1", 50))

	assert.Equal(t, "通用业务系统评价模型", original.Name)
	assert.Equal(t, 100.0, original.Indicators[0].Weight)

	_, _ = d.Next()
	store := &memoryStore{}
	saved, _, err := d.Save(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, "m1", saved.ID, "editing replaces the model in place")
	assert.Equal(t, "V2.0", saved.Version)
}

func TestDraft_CancelLeavesStoreUntouched(t *testing.T) {
	d := NewDraft(library())
	d.Cancel()

	assert.Equal(t, StateCancelled, d.State())
	_, err := d.Next()
	assert.ErrorIs(t, err, ErrClosed)
}
