package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/ajharbinger/perfeval/internal/scoring"
	"github.com/ajharbinger/perfeval/internal/seed"
)

var useSamples bool

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <model-id> [indicator=value ...]",
	Short: "Score observations against a model.",
	Long: `Score one set of observations against a model and print the breakdown.

Observations are indicator-id=value pairs. Numeric values are treated as
numbers, anything else as a grade label.

Examples:
  # Score with the sample values of the indicator library
  scorectl evaluate m3 --samples

  # Override single observations
  scorectl evaluate m3 --samples 3=12.5 6=B`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := loadLibrary()
		if err != nil {
			return err
		}
		m, err := findModel(data, args[0])
		if err != nil {
			return err
		}

		observations := map[string]scoring.RawValue{}
		if useSamples {
			observations = sampleObservations(data, m)
		}
		given, err := parseObservations(args[1:])
		if err != nil {
			return err
		}
		for id, v := range given {
			observations[id] = v
		}

		result, err := engine.EvaluateModel(m, observations)
		if err != nil {
			return err
		}
		return writeResult(cmd.OutOrStdout(), result)
	},
}

func init() {
	evaluateCmd.Flags().BoolVar(&useSamples, "samples", false, "start from the library's sample values")
}

// parseObservations turns id=value pairs into raw values
func parseObservations(pairs []string) (map[string]scoring.RawValue, error) {
	out := make(map[string]scoring.RawValue, len(pairs))
	for _, pair := range pairs {
		id, value, ok := strings.Cut(pair, "=")
		id, value = strings.TrimSpace(id), strings.TrimSpace(value)
		if !ok || id == "" || value == "" {
			return nil, fmt.Errorf("observation %q must look like indicator=value", pair)
		}
		if n, err := strconv.ParseFloat(value, 64); err == nil {
			out[id] = scoring.Number(n)
		} else {
			out[id] = scoring.Label(value)
		}
	}
	return out, nil
}

func sampleObservations(data *seed.Data, m scoring.EvaluationModel) map[string]scoring.RawValue {
	samples := make(map[string]scoring.RawValue, len(data.Indicators))
	for _, ind := range data.Indicators {
		samples[ind.ID] = ind.SampleValue
	}
	out := make(map[string]scoring.RawValue, len(m.Indicators))
	for _, ind := range m.Indicators {
		if v, ok := samples[ind.IndicatorID]; ok && !v.IsZero() {
			out[ind.IndicatorID] = v
		}
	}
	return out
}

func writeResult(w io.Writer, result *scoring.ScoreResult) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Indicator", "Rule", "Value", "Score", "Contribution", "Note"})

	var rows [][]string
	for _, d := range result.Details {
		score, contrib := "-", "-"
		if d.Scored {
			score = strconv.FormatFloat(d.Score, 'f', 2, 64)
			contrib = strconv.FormatFloat(d.Contribution, 'f', 2, 64)
		}
		value := "-"
		if !d.Value.IsZero() {
			value = d.Value.String()
		}
		rows = append(rows, []string{d.IndicatorID, string(d.RuleType), value, score, contrib, d.Reason})
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	total := color.New(color.Bold).Sprintf("%.2f", result.Total)
	if _, err := fmt.Fprintf(w, "%s (%s) total: %s\n", result.ModelName, result.ScoringMethod, total); err != nil {
		return err
	}
	if result.Grade != nil {
		if _, err := fmt.Fprintf(w, "Grade: %s\n", okColor.Sprint(result.Grade.Name)); err != nil {
			return err
		}
	}
	if len(result.Unscored) > 0 {
		warnColor.Fprintf(w, "Unscored: %s\n", strings.Join(result.Unscored, ", "))
	}
	for _, warning := range result.Warnings {
		warnColor.Fprintf(w, "Warning [%s]: %s\n", warning.Code, warning.Message)
	}
	return nil
}
