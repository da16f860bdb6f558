package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajharbinger/perfeval/internal/editor"
	"github.com/ajharbinger/perfeval/internal/errors"
	"github.com/ajharbinger/perfeval/internal/models"
	"github.com/ajharbinger/perfeval/internal/repository"
	"github.com/ajharbinger/perfeval/internal/scoring"
	"github.com/ajharbinger/perfeval/internal/seed"
)

func newSeeded(t *testing.T, opts Options) (*Services, *repository.Repositories) {
	t.Helper()
	repos := repository.NewMemoryRepositories()
	data, err := seed.Default()
	require.NoError(t, err)
	applied, err := seed.Apply(context.Background(), repos, data)
	require.NoError(t, err)
	require.True(t, applied)
	return NewServices(repos, opts), repos
}

func errorCode(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	appErr, ok := errors.As(err)
	require.True(t, ok, "expected an AppError, got %v", err)
	return appErr.Code
}

func TestIndicatorService_ListExpandsSubtree(t *testing.T) {
	svc, _ := newSeeded(t, Options{})
	ctx := context.Background()

	all, err := svc.Indicator.List(ctx, "root", "")
	require.NoError(t, err)
	assert.Len(t, all, 13)

	cloud, err := svc.Indicator.List(ctx, "c3", "")
	require.NoError(t, err)
	ids := make([]string, 0, len(cloud))
	for _, ind := range cloud {
		ids = append(ids, ind.ID)
	}
	assert.ElementsMatch(t, []string{"11", "12"}, ids)

	searched, err := svc.Indicator.List(ctx, "", "时效")
	require.NoError(t, err)
	assert.Len(t, searched, 2)

	_, err = svc.Indicator.List(ctx, "nope", "")
	assert.Equal(t, errors.ErrCodeNotFound, errorCode(t, err))
}

func TestIndicatorService_Create(t *testing.T) {
	svc, _ := newSeeded(t, Options{})
	ctx := context.Background()

	created, err := svc.Indicator.Create(ctx, models.Indicator{
		Name:     "内存平均使用率",
		Type:     models.Quantitative,
		Source:   models.SourceAuto,
		Status:   true,
		Category: "c3-2",
		Unit:     "%",
	})
	require.NoError(t, err)
	assert.Equal(t, "14", created.ID)

	_, err = svc.Indicator.Create(ctx, models.Indicator{ID: "14", Name: "x", Type: models.Quantitative, Source: models.SourceAuto, Category: "c3-2"})
	assert.Equal(t, errors.ErrCodeConflict, errorCode(t, err))

	_, err = svc.Indicator.Create(ctx, models.Indicator{Name: "x", Type: models.Quantitative, Source: models.SourceAuto, Category: "missing"})
	assert.Equal(t, errors.ErrCodeValidationError, errorCode(t, err))
}

func TestCategoryService_Lifecycle(t *testing.T) {
	svc, _ := newSeeded(t, Options{})
	ctx := context.Background()

	tree, err := svc.Category.AddChild(ctx, "c3", "网络使用情况")
	require.NoError(t, err)
	node, ok := tree.Find("c3")
	require.True(t, ok)
	require.Len(t, node.Children, 4)
	added := node.Children[3]
	assert.Equal(t, "网络使用情况", added.Name)

	tree, err = svc.Category.Rename(ctx, added.ID, "  网络带宽  ")
	require.NoError(t, err)
	renamed, ok := tree.Find(added.ID)
	require.True(t, ok)
	assert.Equal(t, "网络带宽", renamed.Name)

	_, err = svc.Category.Rename(ctx, added.ID, " ")
	assert.Equal(t, errors.ErrCodeValidationError, errorCode(t, err))

	tree, err = svc.Category.Delete(ctx, added.ID)
	require.NoError(t, err)
	assert.False(t, tree.Contains(added.ID))

	_, err = svc.Category.Delete(ctx, "missing")
	assert.Equal(t, errors.ErrCodeNotFound, errorCode(t, err))
}

func TestCategoryService_DeleteRefusesWhileIndicatorsFiled(t *testing.T) {
	svc, _ := newSeeded(t, Options{})
	ctx := context.Background()

	_, err := svc.Category.Delete(ctx, "c3")
	assert.Equal(t, errors.ErrCodeConflict, errorCode(t, err))

	tree, err := svc.Category.Tree(ctx)
	require.NoError(t, err)
	assert.True(t, tree.Contains("c3-1"))
}

func TestModelService_Evaluate(t *testing.T) {
	svc, _ := newSeeded(t, Options{})
	ctx := context.Background()

	result, err := svc.Model.Evaluate(ctx, "m3", map[string]scoring.RawValue{
		"3": scoring.Number(12.5),
		"4": scoring.Number(3.8),
		"5": scoring.Number(98.2),
		"8": scoring.Number(99.9),
	})
	require.NoError(t, err)
	assert.InDelta(t, 89.0, result.Total, 1e-9)
	require.NotNil(t, result.Grade)
	assert.Equal(t, "良好", result.Grade.Name)
	assert.Empty(t, result.Unscored)

	_, err = svc.Model.Evaluate(ctx, "missing", nil)
	assert.Equal(t, errors.ErrCodeNotFound, errorCode(t, err))
}

func TestModelService_CopyAndHistory(t *testing.T) {
	svc, _ := newSeeded(t, Options{})
	ctx := context.Background()

	dup, err := svc.Model.Copy(ctx, "m3")
	require.NoError(t, err)
	assert.NotEqual(t, "m3", dup.ID)
	assert.Equal(t, "数据资源类评价模型 (副本)", dup.Name)
	assert.Equal(t, editor.DefaultVersion, dup.Version)
	assert.Len(t, dup.Indicators, 4)

	list, err := svc.Model.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 5)

	history, err := svc.Model.History(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.True(t, history[0].IsCurrent)
	assert.Equal(t, "V2.0", history[0].Version)
	assert.Equal(t, "V1.5", history[1].Version)
	assert.Equal(t, "V1.0", history[2].Version)

	history, err = svc.Model.History(ctx, "m3")
	require.NoError(t, err)
	assert.Len(t, history, 2)

	history, err = svc.Model.History(ctx, "m4")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestModelService_SaveRejectsUnknownIndicator(t *testing.T) {
	svc, _ := newSeeded(t, Options{})
	ctx := context.Background()

	m, err := svc.Model.Get(ctx, "m4")
	require.NoError(t, err)
	m.ID = ""
	m.Indicators[0].IndicatorID = "404"

	_, _, err = svc.Model.Save(ctx, *m)
	assert.Equal(t, errors.ErrCodeValidationError, errorCode(t, err))
}

func TestModelService_CheckWeights(t *testing.T) {
	svc, _ := newSeeded(t, Options{})
	ctx := context.Background()

	report, err := svc.Model.CheckWeights(ctx, "m3")
	require.NoError(t, err)
	assert.True(t, report.Balanced)
	assert.Equal(t, 100.0, report.TotalWeight)

	m, err := svc.Model.Get(ctx, "m3")
	require.NoError(t, err)
	m.Indicators[0].Weight = 10
	saved, warnings, err := svc.Model.Save(ctx, *m)
	require.NoError(t, err)
	assert.NotEmpty(t, warnings)

	report, err = svc.Model.CheckWeights(ctx, saved.ID)
	require.NoError(t, err)
	assert.False(t, report.Balanced)
	assert.Equal(t, 85.0, report.TotalWeight)
}

func TestModelService_DraftWizard(t *testing.T) {
	svc, _ := newSeeded(t, Options{})
	ctx := context.Background()

	d, err := svc.Model.NewDraft(ctx)
	require.NoError(t, err)

	require.NoError(t, d.SetBasicInfo(editor.BasicInfo{Name: "预算执行评价", ScoringMethod: scoring.MethodWeighted}))
	_, err = d.Next()
	require.NoError(t, err)
	require.NoError(t, d.AddIndicator("13"))
	require.NoError(t, d.SetWeight("13", 100))
	require.NoError(t, d.SetRule("13", scoring.RatioRule{Mode: scoring.RatioProportional, Base: 100, Coefficient: 2, Max: scoring.Float(100)}))
	_, err = d.Next()
	require.NoError(t, err)

	saved, _, err := svc.Model.SaveDraft(ctx, d.ID())
	require.NoError(t, err)
	assert.Equal(t, "预算执行评价", saved.Name)

	stored, err := svc.Model.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Indicators, 1)

	_, err = svc.Model.Draft(d.ID())
	assert.Equal(t, errors.ErrCodeNotFound, errorCode(t, err))
}

func TestModelService_DraftErrors(t *testing.T) {
	svc, _ := newSeeded(t, Options{})
	ctx := context.Background()

	d, err := svc.Model.EditDraft(ctx, "m4")
	require.NoError(t, err)

	_, _, err = svc.Model.SaveDraft(ctx, d.ID())
	assert.Equal(t, errors.ErrCodeConflict, errorCode(t, err), "save is only allowed from the review step")

	require.NoError(t, svc.Model.CancelDraft(d.ID()))
	assert.Equal(t, errors.ErrCodeNotFound, errorCode(t, svc.Model.CancelDraft(d.ID())))

	original, err := svc.Model.Get(ctx, "m4")
	require.NoError(t, err)
	assert.Equal(t, scoring.StatusDraft, original.Status)

	_, err = svc.Model.EditDraft(ctx, "missing")
	assert.Equal(t, errors.ErrCodeNotFound, errorCode(t, err))
}

func TestRuleService_Evaluate(t *testing.T) {
	svc, _ := newSeeded(t, Options{})

	rule := scoring.ThresholdRule{Bands: []scoring.ThresholdItem{
		{ID: "t1", Operator: scoring.OpGreaterEqual, Value1: 95, Score: 100},
	}}

	res, err := svc.Rule.Evaluate(rule, scoring.Number(97))
	require.NoError(t, err)
	assert.True(t, res.Scored)
	assert.Equal(t, 100.0, res.Score)
	assert.Equal(t, "[1] 指标值 >= 95 得 100分", res.Description)

	res, err = svc.Rule.Evaluate(rule, scoring.Number(50))
	require.NoError(t, err)
	assert.False(t, res.Scored)
	assert.NotEmpty(t, res.Reason)

	_, err = svc.Rule.Evaluate(nil, scoring.Number(50))
	assert.Equal(t, errors.ErrCodeValidationError, errorCode(t, err))
}

func TestRuleService_Types(t *testing.T) {
	svc, _ := newSeeded(t, Options{})

	types := svc.Rule.Types()
	require.Len(t, types, len(scoring.RuleTypes))
	for _, info := range types {
		assert.NotEmpty(t, info.Label)
		assert.Equal(t, info.Type, info.Defaults.Type())
	}
}
