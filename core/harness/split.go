// Package harness drives the cold-start evaluation end to end: it holds
// out a sample of items, trains user embeddings per hyperparameter
// combination, scores each held-out item's retrieval, persists the results,
// and promotes the best configuration to a final test-set run.
package harness

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
)

// Split divides the sampled hold-out into the ids used for hyperparameter
// tuning and the ids reserved for the final test pass.
type Split struct {
	Validation []string
	Test       []string
}

// SplitIDs shuffles a copy of ids and reserves round(n * testRatio) of them
// for the test set. The remainder tunes hyperparameters.
func SplitIDs(ids []string, testRatio float64, rng *rand.Rand) Split {
	shuffled := append([]string(nil), ids...)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	testSize := int(math.Round(float64(len(shuffled)) * testRatio))
	if testSize < 0 {
		testSize = 0
	}
	if testSize > len(shuffled) {
		testSize = len(shuffled)
	}
	return Split{
		Test:       shuffled[:testSize],
		Validation: shuffled[testSize:],
	}
}

// WriteTestIDs persists the test ids so the final pass can run in a later
// process.
func WriteTestIDs(path string, ids []string) error {
	data, err := json.MarshalIndent(ids, "", "  ")
	if err != nil {
		return fmt.Errorf("encode test ids: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create test ids dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write test ids: %w", err)
	}
	return nil
}

// ReadTestIDs loads a previously persisted test id list.
func ReadTestIDs(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read test ids: %w", err)
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("decode test ids: %w", err)
	}
	return ids, nil
}
