package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/google/uuid"

	"github.com/adalundhe/coldrank/core/embedding"
	"github.com/adalundhe/coldrank/core/graph"
	"github.com/adalundhe/coldrank/core/metrics"
	"github.com/adalundhe/coldrank/core/params"
	"github.com/adalundhe/coldrank/core/report"
	"github.com/adalundhe/coldrank/core/retrieval"
	"github.com/adalundhe/coldrank/core/sampler"
)

var ErrNoCombinations = errors.New("hyperparameter batch is empty")

// RestoreError reports that the graph could not be returned to its
// pre-iteration state. The harness refuses to continue past it: every
// later combination would train on a corrupted graph.
type RestoreError struct {
	Before graph.Stats
	After  graph.Stats
	Err    error
}

func (e *RestoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("graph restore failed: %v", e.Err)
	}
	return fmt.Sprintf("graph restore incomplete: %d/%d nodes/edges before, %d/%d after",
		e.Before.Nodes, e.Before.Edges, e.After.Nodes, e.After.Edges)
}

func (e *RestoreError) Unwrap() error { return e.Err }

// ItemSampler is the hold-out surface the tuner drives. *sampler.Sampler
// is the production implementation.
type ItemSampler interface {
	SampleEligible(ctx context.Context, ratio float64) ([]string, error)
	ExtractAndRemove(ctx context.Context, ids []string) ([]sampler.ItemRecord, error)
	ReinsertOne(ctx context.Context, record sampler.ItemRecord) error
	Remove(ctx context.Context, ids []string) error
	RestoreInteractions(ctx context.Context, ids []string) error
}

// TunerOptions carries the experiment knobs the tuner needs beyond its
// collaborators.
type TunerOptions struct {
	Cutoffs         []int
	RetrievalLength int
	Rand            *rand.Rand
	Logger          *slog.Logger
}

// Tuner runs the hyperparameter search. For each combination it removes
// the validation items, trains user embeddings on the reduced graph, scores
// every held-out item one at a time, records mean metrics per retrieval
// method, and restores the graph before moving on.
type Tuner struct {
	store    *graph.Store
	sampler  ItemSampler
	provider *embedding.Provider
	eval     *metrics.Evaluator
	report   *report.Store

	cutoffs         []int
	retrievalLength int
	rng             *rand.Rand
	log             *slog.Logger
}

// NewTuner wires a tuner from its collaborators.
func NewTuner(
	store *graph.Store,
	smp ItemSampler,
	provider *embedding.Provider,
	eval *metrics.Evaluator,
	reports *report.Store,
	opts TunerOptions,
) *Tuner {
	t := &Tuner{
		store:           store,
		sampler:         smp,
		provider:        provider,
		eval:            eval,
		report:          reports,
		cutoffs:         opts.Cutoffs,
		retrievalLength: opts.RetrievalLength,
		rng:             opts.Rand,
		log:             opts.Logger,
	}
	if len(t.cutoffs) == 0 {
		t.cutoffs = []int{10, 20, 50}
	}
	if t.retrievalLength <= 0 {
		t.retrievalLength = 50
	}
	if t.rng == nil {
		t.rng = rand.New(rand.NewSource(rand.Int63()))
	}
	if t.log == nil {
		t.log = slog.Default()
	}
	return t
}

// RunSummary reports what a tuning run accomplished.
type RunSummary struct {
	Combinations int
	Failed       int
	Experiments  []string
	Split        Split
}

// Run executes the full search: sample once, split, then evaluate every
// combination in the batch against the validation items. A combination
// that fails mid-run is logged and skipped; a restore or partway deletion
// failure aborts the whole run.
func (t *Tuner) Run(ctx context.Context, batch *params.Batch, sampleRatio, testRatio float64, testIDsPath string) (*RunSummary, error) {
	if batch.Len() == 0 {
		return nil, ErrNoCombinations
	}

	ids, err := t.sampler.SampleEligible(ctx, sampleRatio)
	if err != nil {
		return nil, err
	}
	split := SplitIDs(ids, testRatio, t.rng)
	if len(split.Validation) == 0 {
		return nil, fmt.Errorf("hold-out of %d items leaves no validation items at test_ratio %v", len(ids), testRatio)
	}
	if testIDsPath != "" {
		if err := WriteTestIDs(testIDsPath, split.Test); err != nil {
			return nil, err
		}
	}
	t.log.Info("sampled hold-out",
		"eligible_sampled", len(ids), "validation", len(split.Validation), "test", len(split.Test))

	summary := &RunSummary{Split: split}
	index := 0
	for combo := range batch.Combinations() {
		index++
		log := t.log.With("combination", index, "dimension", combo.Dimension, "hops", combo.Hops())

		result, err := t.evaluateCombination(ctx, combo, split.Validation, log)
		// Both error kinds mean the graph may not match its pre-iteration
		// shape; continuing would train every later combination on a
		// corrupted graph.
		var restoreErr *RestoreError
		var partialErr *sampler.PartialDeletionError
		if errors.As(err, &restoreErr) || errors.As(err, &partialErr) {
			return summary, err
		}
		if err != nil {
			log.Error("combination failed", "error", err)
			summary.Failed++
			continue
		}

		for _, method := range combo.Methods {
			entry := report.Entry{
				ExperimentID: uuid.NewString(),
				Hyperparams: report.Hyperparams{
					EmbeddingDimension:    combo.Dimension,
					NormalizationStrength: combo.NormalizationStrength,
					IterationWeights:      combo.IterationWeights,
				},
				RetrievalMethod: method.String(),
				Metrics:         result.meanMetrics(method, t.cutoffs),
			}
			if err := t.report.Save(entry); err != nil {
				return summary, fmt.Errorf("save experiment %s: %w", entry.ExperimentID, err)
			}
			summary.Experiments = append(summary.Experiments, entry.ExperimentID)
			log.Info("experiment recorded",
				"experiment_id", entry.ExperimentID, "method", method, "items", result.evaluated, "skipped", result.skipped)
		}
		summary.Combinations++
	}
	return summary, nil
}

// comboResult accumulates per-item metric values for one combination,
// keyed by retrieval method and cutoff.
type comboResult struct {
	precision map[retrieval.Method]map[int][]float64
	ndcg      map[retrieval.Method]map[int][]float64
	items     []string
	evaluated int
	skipped   int
}

func newComboResult(methods []retrieval.Method, cutoffs []int) *comboResult {
	r := &comboResult{
		precision: make(map[retrieval.Method]map[int][]float64, len(methods)),
		ndcg:      make(map[retrieval.Method]map[int][]float64, len(methods)),
	}
	for _, m := range methods {
		r.precision[m] = make(map[int][]float64, len(cutoffs))
		r.ndcg[m] = make(map[int][]float64, len(cutoffs))
	}
	return r
}

func (r *comboResult) record(method retrieval.Method, k int, precision, ndcg float64) {
	r.precision[method][k] = append(r.precision[method][k], precision)
	r.ndcg[method][k] = append(r.ndcg[method][k], ndcg)
}

func (r *comboResult) meanMetrics(method retrieval.Method, cutoffs []int) report.Metrics {
	out := make(report.Metrics, 2*len(cutoffs))
	for _, k := range cutoffs {
		out[report.MetricKey("precision_at_k", k)] = mean(r.precision[method][k])
		out[report.MetricKey("ndcg_at_k", k)] = mean(r.ndcg[method][k])
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// evaluateCombination holds out ids, trains user embeddings once, and scores
// each item individually. The graph is restored to its pre-call state on
// every path; a deletion that fails partway gets a best-effort repair before
// the error surfaces.
func (t *Tuner) evaluateCombination(ctx context.Context, combo params.Combination, ids []string, log *slog.Logger) (*comboResult, error) {
	before, err := t.store.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph counts before hold-out: %w", err)
	}

	records, err := t.sampler.ExtractAndRemove(ctx, ids)
	if err != nil {
		// A partway deletion failure carries the complete records for every
		// item, so a repair can be attempted before surfacing. The error
		// still propagates either way; Run aborts on it.
		var partial *sampler.PartialDeletionError
		if errors.As(err, &partial) {
			t.repairPartialDeletion(ctx, partial, before, log)
		}
		return nil, err
	}

	result := newComboResult(combo.Methods, t.cutoffs)
	runErr := func() error {
		users, err := t.provider.TrainUserEmbeddings(ctx, combo)
		if err != nil {
			return err
		}
		for _, record := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := t.evaluateItem(ctx, combo, record, users, result); err != nil {
				log.Warn("item evaluation failed", "item", record.ID, "error", err)
				result.skipped++
				continue
			}
			result.items = append(result.items, record.ID)
			result.evaluated++
		}
		return nil
	}()

	if err := t.restore(ctx, records, ids, before); err != nil {
		return nil, err
	}
	if runErr != nil {
		return nil, runErr
	}
	if result.evaluated == 0 {
		return nil, fmt.Errorf("no validation item could be evaluated (%d skipped)", result.skipped)
	}
	return result, nil
}

// evaluateItem reinserts one cold item without its interactions, embeds its
// attribute subgraph, retrieves users under every method of the combination,
// scores all cutoffs, and removes the item again. The item never stays in
// the graph past this call, even on error.
func (t *Tuner) evaluateItem(
	ctx context.Context,
	combo params.Combination,
	record sampler.ItemRecord,
	users *retrieval.UserVectorSet,
	result *comboResult,
) error {
	if err := t.sampler.ReinsertOne(ctx, record); err != nil {
		return err
	}
	defer func() {
		if err := t.sampler.Remove(ctx, []string{record.ID}); err != nil {
			t.log.Error("failed to remove item after scoring", "item", record.ID, "error", err)
		}
	}()

	item, err := t.provider.EmbedItemSubgraph(ctx, record.ID, combo.Hops(), combo)
	if err != nil {
		return err
	}

	actual, err := t.eval.ActualUsers(record.ID)
	if err != nil {
		return err
	}

	// Score everything before committing so a failed method or cutoff never
	// leaves the accumulator with a partial row for this item.
	type scored struct {
		method          retrieval.Method
		k               int
		precision, ndcg float64
	}
	var rows []scored
	for _, method := range combo.Methods {
		res, err := retrieval.Retrieve(item, users, method, t.retrievalLength)
		if err != nil {
			return fmt.Errorf("retrieve %s for item %s: %w", method, record.ID, err)
		}
		for _, k := range t.cutoffs {
			precision, err := metrics.PrecisionAtK(res.UserIDs, actual, k)
			if err != nil {
				return err
			}
			ndcg, err := metrics.NDCGAtK(res.UserIDs, actual, k)
			if err != nil {
				return err
			}
			rows = append(rows, scored{method, k, precision, ndcg})
		}
	}
	for _, row := range rows {
		result.record(row.method, row.k, row.precision, row.ndcg)
	}
	return nil
}

// repairPartialDeletion reinserts every record captured before a deletion
// stopped partway and recreates the matching interactions. Best effort: the
// outcome is logged, and the caller surfaces the original error regardless,
// so a partway failure is never silently continued past.
func (t *Tuner) repairPartialDeletion(ctx context.Context, partial *sampler.PartialDeletionError, before graph.Stats, log *slog.Logger) {
	ids := make([]string, 0, len(partial.Extracted))
	for _, record := range partial.Extracted {
		if err := t.sampler.ReinsertOne(ctx, record); err != nil {
			log.Error("repair after partial deletion failed", "item", record.ID, "error", err)
			return
		}
		ids = append(ids, record.ID)
	}
	if err := t.sampler.RestoreInteractions(ctx, ids); err != nil {
		log.Error("repair after partial deletion failed", "error", err)
		return
	}

	after, err := t.store.Counts(ctx)
	if err != nil {
		log.Error("repair after partial deletion unverified", "error", err)
		return
	}
	if after != before {
		log.Error("repair after partial deletion incomplete",
			"nodes_before", before.Nodes, "edges_before", before.Edges,
			"nodes_after", after.Nodes, "edges_after", after.Edges)
		return
	}
	log.Info("graph repaired after partial deletion", "items", len(ids))
}

// restore puts every held-out item back, recreates its interactions, and
// verifies the graph matches its pre-iteration shape.
func (t *Tuner) restore(ctx context.Context, records []sampler.ItemRecord, ids []string, before graph.Stats) error {
	for _, record := range records {
		if err := t.sampler.ReinsertOne(ctx, record); err != nil {
			return &RestoreError{Before: before, Err: err}
		}
	}
	if err := t.sampler.RestoreInteractions(ctx, ids); err != nil {
		return &RestoreError{Before: before, Err: err}
	}

	after, err := t.store.Counts(ctx)
	if err != nil {
		return &RestoreError{Before: before, Err: err}
	}
	if after != before {
		return &RestoreError{Before: before, After: after}
	}
	return nil
}
