// Package metrics computes ranking-quality measures for retrieved user
// lists against ground-truth interactions: precision@k and NDCG@k with
// binary relevance.
package metrics

import (
	"errors"
	"fmt"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/adalundhe/coldrank/core/groundtruth"
)

// ErrInvalidCutoff rejects negative cutoffs before any clamping happens.
var ErrInvalidCutoff = errors.New("cutoff k must not be negative")

const actualUsersCacheSize = 512

// Evaluator scores retrieval results. Ground-truth lookups are cached so
// the actual-user list for an item is computed once and reused across all
// cutoffs and methods.
type Evaluator struct {
	src   *groundtruth.Source
	cache *lru.Cache[string, []string]
}

// NewEvaluator builds an evaluator over the interaction source.
func NewEvaluator(src *groundtruth.Source) (*Evaluator, error) {
	cache, err := lru.New[string, []string](actualUsersCacheSize)
	if err != nil {
		return nil, fmt.Errorf("actual-users cache: %w", err)
	}
	return &Evaluator{src: src, cache: cache}, nil
}

// ActualUsers returns the users who actually interacted with the item, in
// dataset order. An item with no history returns an empty list.
func (e *Evaluator) ActualUsers(itemID string) ([]string, error) {
	if users, ok := e.cache.Get(itemID); ok {
		return users, nil
	}
	users, err := e.src.UsersForItem(itemID)
	if err != nil {
		return nil, fmt.Errorf("actual users for item %s: %w", itemID, err)
	}
	e.cache.Add(itemID, users)
	return users, nil
}

// Evaluate computes both metrics for one retrieved list at one cutoff.
func (e *Evaluator) Evaluate(itemID string, retrieved []string, k int) (precision, ndcg float64, err error) {
	actual, err := e.ActualUsers(itemID)
	if err != nil {
		return 0, 0, err
	}
	precision, err = PrecisionAtK(retrieved, actual, k)
	if err != nil {
		return 0, 0, err
	}
	ndcg, err = NDCGAtK(retrieved, actual, k)
	if err != nil {
		return 0, 0, err
	}
	return precision, ndcg, nil
}

// PrecisionAtK is |retrieved[:k] ∩ actual[:k]| / k with k clamped to the
// number of actual users, rounded to two decimals. A clamped k of zero
// (cold item with no history) yields 0 rather than an error.
//
// Clamping to |actual| rather than to the retrieved length is deliberate:
// it matches the historical report files this harness must stay comparable
// with.
func PrecisionAtK(retrieved, actual []string, k int) (float64, error) {
	if k < 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidCutoff, k)
	}
	k = min(k, len(actual))
	if k == 0 {
		return 0, nil
	}
	retrievedSet := toSet(head(retrieved, k))
	actualSet := toSet(head(actual, k))
	hits := 0
	for user := range retrievedSet {
		if actualSet[user] {
			hits++
		}
	}
	return round2(float64(hits) / float64(k)), nil
}

// NDCGAtK builds a binary relevance vector over retrieved[:k] (1 when the
// user appears in actual[:k]) and normalizes its DCG by the ideal ordering.
// Zero IDCG yields 0. Rounded to two decimals.
func NDCGAtK(retrieved, actual []string, k int) (float64, error) {
	if k < 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidCutoff, k)
	}
	k = min(k, len(actual))
	if k == 0 {
		return 0, nil
	}
	actualSet := toSet(head(actual, k))

	relevance := make([]float64, 0, k)
	for _, user := range head(retrieved, k) {
		if actualSet[user] {
			relevance = append(relevance, 1)
		} else {
			relevance = append(relevance, 0)
		}
	}

	dcg := discountedGain(relevance)
	ideal := append([]float64(nil), relevance...)
	// Binary relevance: the ideal ordering is all hits first.
	sortDescending(ideal)
	idcg := discountedGain(ideal)
	if idcg == 0 {
		return 0, nil
	}
	return round2(dcg / idcg), nil
}

func discountedGain(relevance []float64) float64 {
	var sum float64
	for i, rel := range relevance {
		sum += rel / math.Log2(float64(i)+2)
	}
	return sum
}

func sortDescending(v []float64) {
	// Only ones and zeros: counting is cheaper than comparison sort.
	ones := 0
	for _, x := range v {
		if x == 1 {
			ones++
		}
	}
	for i := range v {
		if i < ones {
			v[i] = 1
		} else {
			v[i] = 0
		}
	}
}

func head(v []string, k int) []string {
	if len(v) > k {
		return v[:k]
	}
	return v
}

func toSet(v []string) map[string]bool {
	set := make(map[string]bool, len(v))
	for _, x := range v {
		set[x] = true
	}
	return set
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
