// Package report persists per-configuration experiment results to an
// append-only, human-readable JSON file and answers best-configuration
// queries over it. The file is read back in full on every append and every
// query; experiment volumes are small enough that this stays cheap.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var ErrCorruptReport = errors.New("corrupt report file")

// legacyCutoffs is the cutoff order older report files used when metrics
// were written as a positional array instead of a keyed object.
var legacyCutoffs = []int{10, 20, 50}

// Hyperparams is the embedding configuration recorded with each entry.
// The retrieval method is recorded separately because one configuration can
// be scored under several methods.
type Hyperparams struct {
	EmbeddingDimension    int       `json:"embeddingDimension"`
	NormalizationStrength float64   `json:"normalizationStrength"`
	IterationWeights      []float64 `json:"iterationWeights"`
}

// Metrics maps metric keys such as "precision_at_10" to values.
//
// Decoding accepts two encodings: the keyed object this package writes, and
// the positional array [p@10, ndcg@10, p@20, ndcg@20, p@50, ndcg@50] found
// in legacy report files.
type Metrics map[string]float64

func (m *Metrics) UnmarshalJSON(data []byte) error {
	var keyed map[string]float64
	if err := json.Unmarshal(data, &keyed); err == nil {
		*m = keyed
		return nil
	}

	var positional []float64
	if err := json.Unmarshal(data, &positional); err != nil {
		return fmt.Errorf("%w: metrics neither keyed nor positional", ErrCorruptReport)
	}
	if len(positional) != 2*len(legacyCutoffs) {
		return fmt.Errorf("%w: positional metrics have %d values, want %d",
			ErrCorruptReport, len(positional), 2*len(legacyCutoffs))
	}
	decoded := make(Metrics, len(positional))
	for i, k := range legacyCutoffs {
		decoded[MetricKey("precision_at_k", k)] = positional[2*i]
		decoded[MetricKey("ndcg_at_k", k)] = positional[2*i+1]
	}
	*m = decoded
	return nil
}

// Entry is one persisted experiment result. Entries are never mutated after
// write.
type Entry struct {
	ExperimentID    string      `json:"experiment_id"`
	Hyperparams     Hyperparams `json:"hyperparams"`
	RetrievalMethod string      `json:"retrieval_method"`
	Metrics         Metrics     `json:"metrics"`
}

// MetricKey builds the stored key for a metric name and cutoff, e.g.
// ("precision_at_k", 10) -> "precision_at_10".
func MetricKey(name string, k int) string {
	switch name {
	case "precision_at_k", "precision":
		return fmt.Sprintf("precision_at_%d", k)
	case "ndcg_at_k", "ndcg":
		return fmt.Sprintf("ndcg_at_%d", k)
	default:
		return fmt.Sprintf("%s_%d", name, k)
	}
}

// Store is the durable report file. Appends are serialized; the file itself
// is rewritten atomically (temp file + rename).
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore wraps the report file at path. The file is created on first save.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the report file location.
func (s *Store) Path() string { return s.path }

// Save appends one entry to the report.
func (s *Store) Save(entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.readAll()
	if err != nil {
		return err
	}
	entries = append(entries, entry)
	return s.writeAll(entries)
}

// Entries returns every stored entry in insertion order.
func (s *Store) Entries() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAll()
}

// BestConfig scans all entries and returns the one with the maximum value
// for the metric at cutoff k. Ties keep the earliest-saved entry. The second
// return is false when the store is empty or no entry carries the key.
func (s *Store) BestConfig(metricName string, k int) (*Entry, bool, error) {
	entries, err := s.Entries()
	if err != nil {
		return nil, false, err
	}

	key := MetricKey(metricName, k)
	var best *Entry
	var bestValue float64
	for i := range entries {
		value, ok := entries[i].Metrics[key]
		if !ok {
			continue
		}
		if best == nil || value > bestValue {
			best = &entries[i]
			bestValue = value
		}
	}
	if best == nil {
		return nil, false, nil
	}
	return best, true, nil
}

func (s *Store) readAll() ([]Entry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptReport, err)
	}
	return entries, nil
}

func (s *Store) writeAll(entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".report-*.json")
	if err != nil {
		return fmt.Errorf("temp report: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close report: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace report: %w", err)
	}
	return nil
}
