// Package cmd provides CLI commands for the coldrank harness.
// This file implements the evaluate command running the final test pass.
package cmd

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var (
	evaluateMetric string
	evaluateCutoff int
	evaluateJSON   bool
)

// evaluateCmd scores the best recorded configuration on the test items.
var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate the best configuration on the test set",
	Long: `Select the best configuration from the report by the given metric and
cutoff, evaluate it once over the test ids persisted by "tune", and write
the per-item results to the configured final-metrics file.

Examples:
  coldrank evaluate
  coldrank evaluate --metric ndcg_at_k --cutoff 20
  coldrank evaluate --json | jq '.means'`,
	RunE: runEvaluate,
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().StringVarP(&evaluateMetric, "metric", "m", "precision_at_k", "Metric used to pick the best configuration")
	evaluateCmd.Flags().IntVarP(&evaluateCutoff, "cutoff", "k", 10, "Cutoff used to pick the best configuration")
	evaluateCmd.Flags().BoolVar(&evaluateJSON, "json", false, "Output results as JSON")
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	result, err := rt.tuner.FinalRun(cmd.Context(), evaluateMetric, evaluateCutoff,
		rt.cfg.Report.TestIDs, rt.cfg.Report.FinalMetrics)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if evaluateJSON {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	}

	fmt.Fprintf(w, "%s%sFinal Evaluation%s\n", colorBold, colorCyan, colorReset)
	fmt.Fprintf(w, "%sExperiment:%s %s\n", colorGray, colorReset, result.SourceExperimentID)
	fmt.Fprintf(w, "%sMethod:%s     %s\n", colorGray, colorReset, result.RetrievalMethod)
	fmt.Fprintf(w, "%sDimension:%s  %d\n", colorGray, colorReset, result.Hyperparams.EmbeddingDimension)
	fmt.Fprintf(w, "%sStrength:%s   %v\n", colorGray, colorReset, result.Hyperparams.NormalizationStrength)
	fmt.Fprintf(w, "%sWeights:%s    %v\n", colorGray, colorReset, result.Hyperparams.IterationWeights)
	fmt.Fprintf(w, "%sItems:%s      %d\n\n", colorGray, colorReset, len(result.Items))

	keys := make([]string, 0, len(result.Means))
	for key := range result.Means {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(w, "%s%-18s%s %.4f\n", colorGray, key+":", colorReset, result.Means[key])
	}
	fmt.Fprintf(w, "\n%sWritten:%s %s\n", colorGray, colorReset, rt.cfg.Report.FinalMetrics)
	return nil
}
