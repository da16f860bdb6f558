package channel

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/ajharbinger/perfeval/internal/models"
)

// PreviewPeriods is the number of daily values returned by a preview
const PreviewPeriods = 7

// PreviewStats summarizes the preview values
type PreviewStats struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
}

// Preview is a short mock series for an indicator
type Preview struct {
	IndicatorID string       `json:"indicatorId"`
	Values      []float64    `json:"values"`
	Dates       []string     `json:"dates"`
	Stats       PreviewStats `json:"stats"`
}

// Previewer generates plausible recent values for an indicator
type Previewer struct {
	delay time.Duration
	now   func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewPreviewer creates a previewer that answers after delay
func NewPreviewer(delay time.Duration) *Previewer {
	return &Previewer{
		delay: delay,
		now:   time.Now,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Seed makes the generated values reproducible
func (p *Previewer) Seed(seed int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rnd = rand.New(rand.NewSource(seed))
}

// ValueRange picks the mock value range from an indicator's unit, name and source
func ValueRange(name, unit string, source models.DataSource) (min, max float64) {
	switch {
	case unit == "%" || strings.Contains(name, "率"):
		if strings.Contains(name, "错误") || strings.Contains(name, "空缺") {
			return 0, 15
		}
		return 60, 98
	case strings.Contains(unit, "时") || strings.Contains(unit, "天"):
		return 0.5, 5
	case strings.Contains(unit, "次") || unit == "":
		return 10, 500
	case unit == "MB" || unit == "GB":
		return 100, 1024
	case source == models.SourceManual:
		return 70, 95
	}
	return 0, 100
}

// Fetch returns PreviewPeriods daily values ending today, with MM-DD dates
func (p *Previewer) Fetch(ctx context.Context, ind models.Indicator) (*Preview, error) {
	timer := time.NewTimer(p.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	lo, hi := ValueRange(ind.Name, ind.Unit, ind.Source)
	today := p.now()

	preview := &Preview{
		IndicatorID: ind.ID,
		Values:      make([]float64, PreviewPeriods),
		Dates:       make([]string, PreviewPeriods),
	}

	p.mu.Lock()
	for i := 0; i < PreviewPeriods; i++ {
		day := today.AddDate(0, 0, -(PreviewPeriods - 1 - i))
		preview.Dates[i] = day.Format("01-02")
		preview.Values[i] = round1(p.rnd.Float64()*(hi-lo) + lo)
	}
	p.mu.Unlock()

	preview.Stats = summarize(preview.Values)
	return preview, nil
}

func summarize(values []float64) PreviewStats {
	if len(values) == 0 {
		return PreviewStats{}
	}
	stats := PreviewStats{Min: values[0], Max: values[0]}
	sum := 0.0
	for _, v := range values {
		sum += v
		stats.Min = math.Min(stats.Min, v)
		stats.Max = math.Max(stats.Max, v)
	}
	stats.Avg = round1(sum / float64(len(values)))
	return stats
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
