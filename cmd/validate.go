// Package cmd provides CLI commands for the coldrank harness.
// This file implements the validate command for hyperparameter batches.
package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adalundhe/coldrank/core/config"
	"github.com/adalundhe/coldrank/core/params"
)

var validateJSON bool

// validateCmd checks a hyperparameter batch file and lists its combinations.
var validateCmd = &cobra.Command{
	Use:   "validate [batch-file]",
	Short: "Validate a hyperparameter batch file",
	Long: `Validate the hyperparameter batch file and print the combinations it
expands to. Without an argument the file configured under experiment.params
is used.

Validation is fail-fast: parallel arrays of unequal length, missing fields,
string-typed numbers, and unsupported retrieval methods all reject the
whole batch.

Examples:
  coldrank validate
  coldrank validate config_params.json
  coldrank validate --json | jq '.combinations'`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "Output combinations as JSON")
}

// validateOutput is the JSON output for validate.
type validateOutput struct {
	Path         string               `json:"path"`
	Combinations []params.Combination `json:"combinations"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		path = cfg.Experiment.Params
	}

	batch, err := params.LoadBatch(path)
	if err != nil {
		if errors.Is(err, params.ErrConfiguration) {
			return fmt.Errorf("batch %s rejected: %w", path, err)
		}
		return err
	}

	out := validateOutput{Path: path}
	for combo := range batch.Combinations() {
		out.Combinations = append(out.Combinations, combo)
	}

	w := cmd.OutOrStdout()
	if validateJSON {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(out)
	}

	fmt.Fprintf(w, "%s%sBatch Valid%s  %s\n", colorBold, colorGreen, colorReset, path)
	fmt.Fprintf(w, "%sCombinations:%s %d\n", colorGray, colorReset, batch.Len())
	fmt.Fprintf(w, "%sMethods:%s      %v\n\n", colorGray, colorReset, batch.Methods())
	for i, combo := range out.Combinations {
		fmt.Fprintf(w, "%s%2d.%s dimension=%d strength=%v weights=%v hops=%d\n",
			colorGray, i+1, colorReset,
			combo.Dimension, combo.NormalizationStrength, combo.IterationWeights, combo.Hops())
	}
	return nil
}
