// scorectl inspects and dry-runs evaluation models from a seed library
// without a running server.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ajharbinger/perfeval/internal/scoring"
	"github.com/ajharbinger/perfeval/internal/seed"
)

var (
	seedFile string
	engine   = scoring.NewScoringEngine()
)

var rootCmd = &cobra.Command{
	Use:           "scorectl",
	Short:         "Inspect and dry-run performance evaluation models.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&seedFile, "seed", "", "seed library YAML (default: the built-in library)")
	rootCmd.AddCommand(modelsCmd, describeCmd, evaluateCmd, checkCmd)
}

// loadLibrary reads --seed, or the embedded library when unset
func loadLibrary() (*seed.Data, error) {
	if seedFile == "" {
		return seed.Default()
	}
	raw, err := os.ReadFile(seedFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return seed.Parse(raw)
}

func findModel(data *seed.Data, id string) (scoring.EvaluationModel, error) {
	for _, m := range data.Models {
		if m.ID == id {
			return m, nil
		}
	}
	return scoring.EvaluationModel{}, fmt.Errorf("model %q not found", id)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		color.New(color.FgRed, color.Bold).Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
