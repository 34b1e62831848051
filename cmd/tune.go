// Package cmd provides CLI commands for the coldrank harness.
// This file implements the tune command running the hyperparameter search.
package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adalundhe/coldrank/core/params"
)

var tuneJSON bool

// tuneCmd runs the full hyperparameter search over the validation hold-out.
var tuneCmd = &cobra.Command{
	Use:   "tune",
	Short: "Run the hyperparameter search",
	Long: `Sample eligible items, split them into validation and test sets, and
evaluate every hyperparameter combination in the batch against the
validation items. One report entry is appended per combination per
retrieval method; the test ids are persisted for a later "evaluate" run.

The graph is restored to its exact pre-run shape after every combination.

Examples:
  coldrank tune
  coldrank tune --config experiments/ml100k.yaml --verbose
  coldrank tune --json | jq '.experiments'`,
	RunE: runTune,
}

func init() {
	rootCmd.AddCommand(tuneCmd)
	tuneCmd.Flags().BoolVar(&tuneJSON, "json", false, "Output run summary as JSON")
}

// tuneOutput is the JSON output for tune.
type tuneOutput struct {
	Combinations int      `json:"combinations"`
	Failed       int      `json:"failed"`
	Experiments  []string `json:"experiments"`
	Validation   int      `json:"validation_items"`
	Test         int      `json:"test_items"`
	ReportPath   string   `json:"report_path"`
}

func runTune(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer rt.Close()

	batch, err := params.LoadBatch(rt.cfg.Experiment.Params)
	if err != nil {
		return err
	}

	summary, err := rt.tuner.Run(cmd.Context(), batch,
		rt.cfg.Experiment.SampleRatio,
		rt.cfg.Experiment.TestRatio,
		rt.cfg.Report.TestIDs)
	if err != nil {
		return err
	}

	out := tuneOutput{
		Combinations: summary.Combinations,
		Failed:       summary.Failed,
		Experiments:  summary.Experiments,
		Validation:   len(summary.Split.Validation),
		Test:         len(summary.Split.Test),
		ReportPath:   rt.report.Path(),
	}

	w := cmd.OutOrStdout()
	if tuneJSON {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(out)
	}

	fmt.Fprintf(w, "%s%sTuning Complete%s\n", colorBold, colorCyan, colorReset)
	fmt.Fprintf(w, "%sCombinations:%s %d\n", colorGray, colorReset, out.Combinations)
	if out.Failed > 0 {
		fmt.Fprintf(w, "%sFailed:%s       %s%d%s\n", colorGray, colorReset, colorRed, out.Failed, colorReset)
	}
	fmt.Fprintf(w, "%sExperiments:%s  %d\n", colorGray, colorReset, len(out.Experiments))
	fmt.Fprintf(w, "%sValidation:%s   %d items\n", colorGray, colorReset, out.Validation)
	fmt.Fprintf(w, "%sTest:%s         %d items\n", colorGray, colorReset, out.Test)
	fmt.Fprintf(w, "%sReport:%s       %s\n", colorGray, colorReset, out.ReportPath)
	return nil
}
