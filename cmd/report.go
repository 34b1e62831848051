// Package cmd provides CLI commands for the coldrank harness.
// This file implements the report command for inspecting experiment results.
package cmd

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var (
	reportMetric string
	reportCutoff int
	reportJSON   bool
)

// reportCmd lists recorded experiments.
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Inspect recorded experiment results",
	Long: `List every experiment recorded in the report file in insertion order.

Examples:
  coldrank report
  coldrank report best --metric ndcg_at_k --cutoff 20
  coldrank report --json | jq '.[].metrics'`,
	RunE: runReport,
}

// reportBestCmd shows the best configuration for a metric.
var reportBestCmd = &cobra.Command{
	Use:   "best",
	Short: "Show the best configuration for a metric",
	Long:  `Show the report entry with the maximum value for the given metric and cutoff. Ties keep the earliest-saved entry.`,
	RunE:  runReportBest,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportBestCmd)

	reportCmd.PersistentFlags().BoolVar(&reportJSON, "json", false, "Output as JSON")
	reportBestCmd.Flags().StringVarP(&reportMetric, "metric", "m", "precision_at_k", "Metric name")
	reportBestCmd.Flags().IntVarP(&reportCutoff, "cutoff", "k", 10, "Metric cutoff")
}

func runReport(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	entries, err := rt.report.Entries()
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if reportJSON {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Fprintf(w, "%sNo experiments recorded at %s%s\n", colorYellow, rt.report.Path(), colorReset)
		return nil
	}

	fmt.Fprintf(w, "%s%sExperiments%s  %s\n\n", colorBold, colorCyan, colorReset, rt.report.Path())
	for _, entry := range entries {
		fmt.Fprintf(w, "%s%s%s  method=%s dimension=%d strength=%v weights=%v\n",
			colorGreen, entry.ExperimentID, colorReset,
			entry.RetrievalMethod,
			entry.Hyperparams.EmbeddingDimension,
			entry.Hyperparams.NormalizationStrength,
			entry.Hyperparams.IterationWeights)

		keys := make([]string, 0, len(entry.Metrics))
		for key := range entry.Metrics {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Fprintf(w, "  %s%-18s%s %.4f\n", colorGray, key+":", colorReset, entry.Metrics[key])
		}
		fmt.Fprintln(w)
	}
	return nil
}

func runReportBest(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	best, ok, err := rt.report.BestConfig(reportMetric, reportCutoff)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no entry carries %s at cutoff %d", reportMetric, reportCutoff)
	}

	w := cmd.OutOrStdout()
	if reportJSON {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(best)
	}

	fmt.Fprintf(w, "%s%sBest Configuration%s  by %s at %d\n", colorBold, colorCyan, colorReset, reportMetric, reportCutoff)
	fmt.Fprintf(w, "%sExperiment:%s %s\n", colorGray, colorReset, best.ExperimentID)
	fmt.Fprintf(w, "%sMethod:%s     %s\n", colorGray, colorReset, best.RetrievalMethod)
	fmt.Fprintf(w, "%sDimension:%s  %d\n", colorGray, colorReset, best.Hyperparams.EmbeddingDimension)
	fmt.Fprintf(w, "%sStrength:%s   %v\n", colorGray, colorReset, best.Hyperparams.NormalizationStrength)
	fmt.Fprintf(w, "%sWeights:%s    %v\n", colorGray, colorReset, best.Hyperparams.IterationWeights)

	keys := make([]string, 0, len(best.Metrics))
	for key := range best.Metrics {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(w, "%s%-18s%s %.4f\n", colorGray, key+":", colorReset, best.Metrics[key])
	}
	return nil
}
