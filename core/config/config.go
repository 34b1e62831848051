// Package config loads the harness configuration from YAML. The
// hyperparameter batch lives in its own JSON file (see core/params); this
// file covers everything around it: store locations, sampling knobs, and
// report outputs.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Graph      GraphConfig      `yaml:"graph"`
	Data       DataConfig       `yaml:"data"`
	Experiment ExperimentConfig `yaml:"experiment"`
	Report     ReportConfig     `yaml:"report"`
}

type GraphConfig struct {
	Path string `yaml:"path"`
}

type DataConfig struct {
	Items        string `yaml:"items"`
	Users        string `yaml:"users"`
	Interactions string `yaml:"interactions"`
}

type ExperimentConfig struct {
	// Params locates the hyperparameter batch JSON file.
	Params string `yaml:"params"`

	// SampleRatio is the fraction of eligible items held out per run.
	SampleRatio float64 `yaml:"sample_ratio"`

	// TestRatio is the fraction of the hold-out reserved for the final
	// test pass; the rest tunes hyperparameters.
	TestRatio float64 `yaml:"test_ratio"`

	MinInteractions int   `yaml:"min_interactions"`
	Cutoffs         []int `yaml:"cutoffs"`
	RetrievalLength int   `yaml:"retrieval_length"`
	Seed            int64 `yaml:"seed"`
}

type ReportConfig struct {
	Path         string `yaml:"path"`
	TestIDs      string `yaml:"test_ids"`
	FinalMetrics string `yaml:"final_metrics"`
}

// Default returns the configuration used when a field is absent from the
// file.
func Default() *Config {
	return &Config{
		Graph: GraphConfig{Path: "data/graph.db"},
		Data: DataConfig{
			Items:        "data/items.csv",
			Users:        "data/users.csv",
			Interactions: "data/interactions.csv",
		},
		Experiment: ExperimentConfig{
			Params:          "config_params.json",
			SampleRatio:     0.05,
			TestRatio:       0.5,
			MinInteractions: 50,
			Cutoffs:         []int{10, 20, 50},
			RetrievalLength: 50,
			Seed:            42,
		},
		Report: ReportConfig{
			Path:         "experiments/report.json",
			TestIDs:      "experiments/test_ids.json",
			FinalMetrics: "experiments/final_metrics.json",
		},
	}
}

// Load reads the YAML file at path over the defaults and validates the
// result. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects out-of-range experiment knobs before any graph access.
func (c *Config) Validate() error {
	e := c.Experiment
	if e.SampleRatio <= 0 || e.SampleRatio > 1 {
		return fmt.Errorf("sample_ratio must be in (0, 1], got %v", e.SampleRatio)
	}
	if e.TestRatio < 0 || e.TestRatio >= 1 {
		return fmt.Errorf("test_ratio must be in [0, 1), got %v", e.TestRatio)
	}
	if e.MinInteractions < 0 {
		return fmt.Errorf("min_interactions must not be negative, got %d", e.MinInteractions)
	}
	if e.RetrievalLength <= 0 {
		return fmt.Errorf("retrieval_length must be positive, got %d", e.RetrievalLength)
	}
	if len(e.Cutoffs) == 0 {
		return fmt.Errorf("cutoffs must not be empty")
	}
	for _, k := range e.Cutoffs {
		if k <= 0 {
			return fmt.Errorf("cutoffs must be positive, got %d", k)
		}
	}
	return nil
}
