// Package cmd provides CLI commands for the coldrank harness.
package cmd

import (
	"log/slog"
	"math/rand"
	"os"

	"github.com/spf13/cobra"

	"github.com/adalundhe/coldrank/core/config"
	"github.com/adalundhe/coldrank/core/embedding"
	"github.com/adalundhe/coldrank/core/graph"
	"github.com/adalundhe/coldrank/core/groundtruth"
	"github.com/adalundhe/coldrank/core/harness"
	"github.com/adalundhe/coldrank/core/metrics"
	"github.com/adalundhe/coldrank/core/report"
	"github.com/adalundhe/coldrank/core/sampler"
)

// ANSI color codes for terminal output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

var (
	configPath  string
	rootVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "coldrank",
	Short: "Coldrank - cold-start recommendation evaluation harness",
	Long: `Coldrank evaluates graph-embedding hyperparameters for cold-start item
recommendation: it holds out item nodes, trains user embeddings on the
reduced graph, retrieves users for each cold item, and scores the
retrieval with precision@k and NDCG@k.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&rootVerbose, "verbose", "v", false, "Enable debug logging")
}

// newLogger builds the process logger honoring --verbose.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if rootVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// runtime bundles the collaborators most commands need. Close releases the
// graph store.
type runtime struct {
	cfg    *config.Config
	store  *graph.Store
	src    *groundtruth.Source
	tuner  *harness.Tuner
	report *report.Store
	log    *slog.Logger
}

func (r *runtime) Close() error {
	return r.store.Close()
}

// newRuntime loads configuration and wires the full evaluation stack.
func newRuntime() (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log := newLogger()

	store, err := graph.Open(cfg.Graph.Path)
	if err != nil {
		return nil, err
	}

	src := groundtruth.NewSource(cfg.Data.Interactions)
	rng := rand.New(rand.NewSource(cfg.Experiment.Seed))

	smp := sampler.New(store, src,
		sampler.WithMinInteractions(cfg.Experiment.MinInteractions),
		sampler.WithRand(rng),
		sampler.WithLogger(log))

	provider := embedding.NewProvider(store, embedding.NewFastRP(cfg.Experiment.Seed), log)

	eval, err := metrics.NewEvaluator(src)
	if err != nil {
		store.Close()
		return nil, err
	}

	reports := report.NewStore(cfg.Report.Path)
	tuner := harness.NewTuner(store, smp, provider, eval, reports, harness.TunerOptions{
		Cutoffs:         cfg.Experiment.Cutoffs,
		RetrievalLength: cfg.Experiment.RetrievalLength,
		Rand:            rng,
		Logger:          log,
	})

	return &runtime{
		cfg:    cfg,
		store:  store,
		src:    src,
		tuner:  tuner,
		report: reports,
		log:    log,
	}, nil
}
