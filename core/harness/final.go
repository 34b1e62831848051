package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adalundhe/coldrank/core/params"
	"github.com/adalundhe/coldrank/core/report"
	"github.com/adalundhe/coldrank/core/retrieval"
)

var ErrNoBestConfig = errors.New("report has no entry for the requested metric")

// FinalResult is the outcome of evaluating the best configuration on the
// held-back test items. Items lists the items that were actually scored;
// Metrics holds the raw per-item values for every metric key in that order,
// so distributions can be inspected rather than just means.
type FinalResult struct {
	SourceExperimentID string               `json:"source_experiment_id"`
	Hyperparams        report.Hyperparams   `json:"hyperparams"`
	RetrievalMethod    string               `json:"retrieval_method"`
	Items              []string             `json:"items"`
	Metrics            map[string][]float64 `json:"metrics"`
	Means              report.Metrics       `json:"means"`
}

// FinalRun selects the best configuration from the report by the given
// metric and cutoff, evaluates it once over the persisted test ids, and
// writes the per-item results to outPath.
func (t *Tuner) FinalRun(ctx context.Context, metricName string, k int, testIDsPath, outPath string) (*FinalResult, error) {
	best, ok, err := t.report.BestConfig(metricName, k)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s at %d", ErrNoBestConfig, metricName, k)
	}

	method := retrieval.Method(best.RetrievalMethod)
	if !method.IsValid() {
		return nil, fmt.Errorf("%w: %q from experiment %s", retrieval.ErrUnknownMethod, best.RetrievalMethod, best.ExperimentID)
	}
	combo := params.Combination{
		Dimension:             best.Hyperparams.EmbeddingDimension,
		NormalizationStrength: best.Hyperparams.NormalizationStrength,
		IterationWeights:      best.Hyperparams.IterationWeights,
		Methods:               []retrieval.Method{method},
	}

	testIDs, err := ReadTestIDs(testIDsPath)
	if err != nil {
		return nil, err
	}
	if len(testIDs) == 0 {
		return nil, fmt.Errorf("test id list at %s is empty", testIDsPath)
	}

	t.log.Info("final test pass",
		"experiment_id", best.ExperimentID, "method", method,
		"dimension", combo.Dimension, "items", len(testIDs))

	result, err := t.evaluateCombination(ctx, combo, testIDs, t.log)
	if err != nil {
		return nil, err
	}

	final := &FinalResult{
		SourceExperimentID: best.ExperimentID,
		Hyperparams:        best.Hyperparams,
		RetrievalMethod:    method.String(),
		Items:              result.items,
		Metrics:            make(map[string][]float64, 2*len(t.cutoffs)),
		Means:              result.meanMetrics(method, t.cutoffs),
	}
	for _, cutoff := range t.cutoffs {
		final.Metrics[report.MetricKey("precision_at_k", cutoff)] = result.precision[method][cutoff]
		final.Metrics[report.MetricKey("ndcg_at_k", cutoff)] = result.ndcg[method][cutoff]
	}

	if outPath != "" {
		if err := writeFinalResult(outPath, final); err != nil {
			return nil, err
		}
	}
	return final, nil
}

func writeFinalResult(path string, result *FinalResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode final metrics: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create final metrics dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write final metrics: %w", err)
	}
	return nil
}
