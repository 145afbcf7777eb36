package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/infosage/backend/internal/evaluation"
	"github.com/infosage/backend/internal/llm"
	"github.com/infosage/backend/internal/verdict"
	"github.com/infosage/backend/pkg/config"
)

var (
	datasetPath string
	rulesOnly   bool
	jsonOutput  bool
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Measure verdict accuracy on a labeled dataset",
	Long: `Runs the verdict synthesizer over every item of a YAML dataset and
reports accuracy, a confusion breakdown and per-category scores.

Example:
  factctl evaluate --dataset testdata/claims.yaml
  factctl evaluate --dataset claims.yaml --rules-only --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := evaluation.LoadDataset(datasetPath)
		if err != nil {
			return err
		}

		var gen verdict.Generator
		if !rulesOnly {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			gen = llm.NewClient(cfg.LLM, llm.NewGate(cfg.LLM.MaxConcurrent, cfg.LLM.RequestsPerSecond))
		}

		report, err := evaluation.NewEvaluator(verdict.NewSynthesizer(gen)).Run(cmd.Context(), ds)
		if err != nil {
			return err
		}

		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		fmt.Fprint(cmd.OutOrStdout(), report.String())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringVar(&datasetPath, "dataset", "", "path to a YAML dataset")
	evaluateCmd.Flags().BoolVar(&rulesOnly, "rules-only", false, "skip the LLM stage")
	evaluateCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the full report as JSON")
	_ = evaluateCmd.MarkFlagRequired("dataset")
}
