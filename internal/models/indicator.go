package models

import (
	"fmt"
	"strings"

	"github.com/ajharbinger/perfeval/internal/scoring"
)

// IndicatorType distinguishes measured from judged indicators
type IndicatorType string

const (
	Quantitative IndicatorType = "Quantitative"
	Qualitative  IndicatorType = "Qualitative"
)

// DataSource is where an indicator's raw values come from
type DataSource string

const (
	SourceAuto       DataSource = "AUTO"
	SourceManual     DataSource = "MANUAL"
	SourceCalculated DataSource = "CALCULATED"
)

// Valid reports whether s is a known data source
func (s DataSource) Valid() bool {
	return s == SourceAuto || s == SourceManual || s == SourceCalculated
}

// CalculationType selects how a CALCULATED indicator's formula is authored
type CalculationType string

const (
	CalculationVisual CalculationType = "visual"
	CalculationCode   CalculationType = "code"
)

// Indicator is a metric definition in the indicator library
type Indicator struct {
	ID                string           `json:"id" db:"id"`
	Name              string           `json:"name" db:"name"`
	Description       string           `json:"description" db:"description"`
	Type              IndicatorType    `json:"type" db:"type"`
	Source            DataSource       `json:"source" db:"source"`
	Status            bool             `json:"status" db:"status"`
	Category          string           `json:"category" db:"category"`
	Unit              string           `json:"unit,omitempty" db:"unit"`
	SampleValue       scoring.RawValue `json:"sampleValue" db:"sample_value"`
	CalculationType   CalculationType  `json:"calculationType,omitempty" db:"calculation_type"`
	CalculationScript string           `json:"calculationScript,omitempty" db:"calculation_script"`
}

// Validate checks the indicator's own fields. Category resolution needs the
// category tree and is done by the caller.
func (i *Indicator) Validate() error {
	var problems []string
	if strings.TrimSpace(i.Name) == "" {
		problems = append(problems, "name is required")
	}
	if i.Type != Quantitative && i.Type != Qualitative {
		problems = append(problems, fmt.Sprintf("unknown indicator type %q", i.Type))
	}
	if !i.Source.Valid() {
		problems = append(problems, fmt.Sprintf("unknown data source %q", i.Source))
	}
	if i.Category == "" {
		problems = append(problems, "category is required")
	}
	if i.CalculationType != "" && i.CalculationType != CalculationVisual && i.CalculationType != CalculationCode {
		problems = append(problems, fmt.Sprintf("unknown calculation type %q", i.CalculationType))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid indicator: %s", strings.Join(problems, "; "))
	}
	return nil
}

// IndicatorFilter narrows an indicator listing
type IndicatorFilter struct {
	CategoryIDs []string
	Search      string
	EnabledOnly bool
}

// Matches reports whether ind passes the filter
func (f IndicatorFilter) Matches(ind Indicator) bool {
	if f.EnabledOnly && !ind.Status {
		return false
	}
	if len(f.CategoryIDs) > 0 {
		found := false
		for _, id := range f.CategoryIDs {
			if ind.Category == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Search != "" {
		term := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(ind.Name), term) && !strings.Contains(strings.ToLower(ind.Description), term) {
			return false
		}
	}
	return true
}
