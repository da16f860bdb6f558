package channel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajharbinger/perfeval/internal/models"
)

func TestValueRange(t *testing.T) {
	tests := []struct {
		name   string
		ind    models.Indicator
		lo, hi float64
	}{
		{"positive percent", models.Indicator{Name: "数据挂载率", Unit: "%"}, 60, 98},
		{"negative percent", models.Indicator{Name: "数据空缺率", Unit: "%"}, 0, 15},
		{"rate without unit", models.Indicator{Name: "错误率"}, 0, 15},
		{"hours", models.Indicator{Name: "汇聚时效性", Unit: "小时"}, 0.5, 5},
		{"days", models.Indicator{Name: "处理周期", Unit: "天"}, 0.5, 5},
		{"counts", models.Indicator{Name: "业务子模块访问情况", Unit: "次/日"}, 10, 500},
		{"no unit", models.Indicator{Name: "访问量"}, 10, 500},
		{"volume", models.Indicator{Name: "业务子模块数据情况", Unit: "GB"}, 100, 1024},
		{"manual score", models.Indicator{Name: "用户满意度评分", Unit: "分", Source: models.SourceManual}, 70, 95},
		{"fallback", models.Indicator{Name: "综合得分", Unit: "分", Source: models.SourceAuto}, 0, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi := ValueRange(tt.ind.Name, tt.ind.Unit, tt.ind.Source)
			assert.Equal(t, tt.lo, lo)
			assert.Equal(t, tt.hi, hi)
		})
	}
}

func TestPreviewer_Fetch(t *testing.T) {
	p := NewPreviewer(0)
	p.Seed(7)
	p.now = func() time.Time { return time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC) }

	ind := models.Indicator{ID: "5", Name: "数据挂载率", Unit: "%", Source: models.SourceAuto}
	preview, err := p.Fetch(context.Background(), ind)
	require.NoError(t, err)

	assert.Equal(t, "5", preview.IndicatorID)
	require.Len(t, preview.Values, PreviewPeriods)
	assert.Equal(t, []string{"05-14", "05-15", "05-16", "05-17", "05-18", "05-19", "05-20"}, preview.Dates)

	for _, v := range preview.Values {
		assert.GreaterOrEqual(t, v, 60.0)
		assert.LessOrEqual(t, v, 98.0)
		assert.InDelta(t, v, round1(v), 1e-9, "values carry one decimal")
		assert.GreaterOrEqual(t, v, preview.Stats.Min)
		assert.LessOrEqual(t, v, preview.Stats.Max)
	}
	assert.GreaterOrEqual(t, preview.Stats.Avg, preview.Stats.Min)
	assert.LessOrEqual(t, preview.Stats.Avg, preview.Stats.Max)
}

func TestPreviewer_Cancelled(t *testing.T) {
	p := NewPreviewer(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Fetch(ctx, models.Indicator{ID: "1"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSummarize(t *testing.T) {
	stats := summarize([]float64{1, 2, 4})
	assert.Equal(t, PreviewStats{Min: 1, Max: 4, Avg: 2.3}, stats)
	assert.Equal(t, PreviewStats{}, summarize(nil))
}
