package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"github.com/ajharbinger/perfeval/internal/scoring"
	"github.com/ajharbinger/perfeval/internal/seed"
)

var (
	warnColor = color.New(color.FgYellow, color.Bold)
	okColor   = color.New(color.FgGreen)
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the evaluation models of the library.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		data, err := loadLibrary()
		if err != nil {
			return err
		}
		return writeModels(cmd.OutOrStdout(), data.Models)
	},
}

var describeCmd = &cobra.Command{
	Use:   "describe <model-id>",
	Short: "Show a model's indicators with their generated scoring rules.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := loadLibrary()
		if err != nil {
			return err
		}
		m, err := findModel(data, args[0])
		if err != nil {
			return err
		}
		return writeDescription(cmd.OutOrStdout(), data, m)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate every model of the library and print its warnings.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		data, err := loadLibrary()
		if err != nil {
			return err
		}
		return checkModels(cmd.OutOrStdout(), data.Models)
	},
}

func writeModels(w io.Writer, list []scoring.EvaluationModel) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"ID", "Name", "Version", "Method", "Indicators", "Weight", "Status"})

	var rows [][]string
	for _, m := range list {
		rows = append(rows, []string{
			m.ID,
			m.Name,
			m.Version,
			string(m.ScoringMethod),
			strconv.Itoa(len(m.Indicators)),
			formatWeight(m),
			string(m.Status),
		})
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func formatWeight(m scoring.EvaluationModel) string {
	if m.ScoringMethod != scoring.MethodWeighted {
		return "-"
	}
	total := strconv.FormatFloat(scoring.TotalWeight(m), 'f', -1, 64) + "%"
	if scoring.CheckWeights(m) != nil {
		return warnColor.Sprint(total)
	}
	return total
}

func writeDescription(w io.Writer, data *seed.Data, m scoring.EvaluationModel) error {
	names := make(map[string]string, len(data.Indicators))
	for _, ind := range data.Indicators {
		names[ind.ID] = ind.Name
	}

	if _, err := fmt.Fprintf(w, "%s (%s, %s)\n", m.Name, m.ID, m.ScoringMethod); err != nil {
		return err
	}
	table := tablewriter.NewWriter(w)
	table.Header([]string{"ID", "Indicator", "Weight", "Max", "Rule", "Description"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignLeft
	})

	var rows [][]string
	for _, ind := range m.Indicators {
		rows = append(rows, []string{
			ind.IndicatorID,
			names[ind.IndicatorID],
			strconv.FormatFloat(ind.Weight, 'f', -1, 64),
			strconv.FormatFloat(ind.MaxScore, 'f', -1, 64),
			engine.RuleLabel(ind.Rule),
			engine.Describe(ind.Rule),
		})
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	if m.EnableGradeLevels {
		for _, g := range m.GradeLevels {
			if _, err := fmt.Fprintf(w, "  %s: %g - %g\n", g.Name, g.MinScore, g.MaxScore); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkModels prints each model's validation result and warnings. It
// returns an error when any model is invalid.
func checkModels(w io.Writer, list []scoring.EvaluationModel) error {
	invalid := 0
	for _, m := range list {
		if err := engine.ValidateModel(m); err != nil {
			invalid++
			warnColor.Fprintf(w, "✗ %s %s: %v\n", m.ID, m.Name, err)
			continue
		}
		okColor.Fprintf(w, "✓ %s %s\n", m.ID, m.Name)
		for _, warning := range engine.Warnings(m) {
			fmt.Fprintf(w, "    [%s] %s\n", warning.Code, warning.Message)
		}
	}
	if invalid > 0 {
		return fmt.Errorf("%d of %d models are invalid", invalid, len(list))
	}
	return nil
}
