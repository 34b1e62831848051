// Package sampler manages the reversible removal and reinsertion of item
// nodes for cold-start experiments. It is the sole owner of graph mutation
// during one hyperparameter iteration: whatever it removes it must be able
// to put back exactly, interactions included.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"

	"github.com/adalundhe/coldrank/core/graph"
	"github.com/adalundhe/coldrank/core/groundtruth"
)

// DefaultMinInteractions is the eligibility threshold: items with fewer
// recorded interactions are too sparse to score meaningfully.
const DefaultMinInteractions = 50

var (
	ErrNoEligibleItems = errors.New("no eligible items to sample")
	ErrInvalidRatio    = errors.New("sample ratio must not be negative")
)

// PartialDeletionError reports a deletion that failed partway through.
// The graph is inconsistent at this point; Extracted holds every record
// captured before the failure so nothing is lost for audit or repair.
type PartialDeletionError struct {
	Deleted   int
	Extracted []ItemRecord
	Err       error
}

func (e *PartialDeletionError) Error() string {
	return fmt.Sprintf("deletion stopped after %d of %d items: %v", e.Deleted, len(e.Extracted), e.Err)
}

func (e *PartialDeletionError) Unwrap() error { return e.Err }

// AttributeTriple describes one non-behavioral connection of an item:
// relationship type, attribute label, attribute value.
type AttributeTriple struct {
	RelType string
	Label   string
	Value   string
}

// ItemRecord captures everything needed to recreate an item node and its
// attribute edges. Interaction edges are deliberately absent; they are
// restored from the ground-truth dataset only after scoring.
type ItemRecord struct {
	ID         string
	Title      string
	Attributes []AttributeTriple
}

// Sampler drives hold-out sampling and restoration against the graph store.
type Sampler struct {
	store           *graph.Store
	src             *groundtruth.Source
	minInteractions int
	rng             *rand.Rand
	log             *slog.Logger
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithMinInteractions overrides the eligibility threshold.
func WithMinInteractions(n int) Option {
	return func(s *Sampler) { s.minInteractions = n }
}

// WithRand injects the random source used for sampling. Tests pass a seeded
// source for reproducible picks.
func WithRand(rng *rand.Rand) Option {
	return func(s *Sampler) { s.rng = rng }
}

// WithLogger injects the sampler's logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Sampler) { s.log = log }
}

// New builds a Sampler over the graph store and interaction source.
func New(store *graph.Store, src *groundtruth.Source, opts ...Option) *Sampler {
	s := &Sampler{
		store:           store,
		src:             src,
		minInteractions: DefaultMinInteractions,
		rng:             rand.New(rand.NewSource(rand.Int63())),
		log:             slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SampleEligible picks a uniformly random subset of items that meet the
// minimum-interaction threshold, sized round(total_eligible * ratio).
// A ratio above 1 is capped at the full eligible set. Returns raw item
// identifiers.
func (s *Sampler) SampleEligible(ctx context.Context, ratio float64) ([]string, error) {
	if ratio < 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRatio, ratio)
	}
	nodeIDs, err := s.store.NodesWithMinRelationships(ctx, graph.LabelItem, true, s.minInteractions)
	if err != nil {
		return nil, fmt.Errorf("list eligible items: %w", err)
	}
	if len(nodeIDs) == 0 {
		return nil, ErrNoEligibleItems
	}

	limit := int(math.Round(float64(len(nodeIDs)) * ratio))
	if limit > len(nodeIDs) {
		limit = len(nodeIDs)
	}

	shuffled := append([]string(nil), nodeIDs...)
	s.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	ids := make([]string, 0, limit)
	for _, nodeID := range shuffled[:limit] {
		ids = append(ids, rawItemID(nodeID))
	}
	s.log.Debug("sampled eligible items", "eligible", len(nodeIDs), "sampled", len(ids), "ratio", ratio)
	return ids, nil
}

// ExtractAndRemove captures each item's identifying attributes and outward
// non-behavioral relationships, then detach-deletes the nodes. On a partway
// deletion failure the returned records are still complete for every item,
// wrapped in a PartialDeletionError.
func (s *Sampler) ExtractAndRemove(ctx context.Context, ids []string) ([]ItemRecord, error) {
	records := make([]ItemRecord, 0, len(ids))
	nodeIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		record, err := s.extractOne(ctx, id)
		if err != nil {
			return records, err
		}
		records = append(records, record)
		nodeIDs = append(nodeIDs, graph.ItemNodeID(id))
	}

	deleted, err := s.store.DetachDelete(ctx, nodeIDs)
	if err != nil {
		return records, &PartialDeletionError{Deleted: deleted, Extracted: records, Err: err}
	}
	return records, nil
}

func (s *Sampler) extractOne(ctx context.Context, id string) (ItemRecord, error) {
	nodeID := graph.ItemNodeID(id)
	node, err := s.store.GetNode(ctx, nodeID)
	if err != nil {
		return ItemRecord{}, fmt.Errorf("extract item %s: %w", id, err)
	}
	edges, targets, err := s.store.OutwardAttributes(ctx, nodeID)
	if err != nil {
		return ItemRecord{}, fmt.Errorf("extract attributes of %s: %w", id, err)
	}

	record := ItemRecord{ID: id, Title: node.Name}
	for i, e := range edges {
		record.Attributes = append(record.Attributes, AttributeTriple{
			RelType: e.RelType,
			Label:   targets[i].Label,
			Value:   targets[i].Name,
		})
	}
	return record, nil
}

// ReinsertOne recreates exactly one item node and its attribute edges.
// The title is set only if the node is newly created, and no interaction
// edges are recreated. Safe to call twice for the same record.
func (s *Sampler) ReinsertOne(ctx context.Context, record ItemRecord) error {
	nodeID := graph.ItemNodeID(record.ID)
	if err := s.store.MergeNode(ctx, graph.Node{ID: nodeID, Label: graph.LabelItem, Name: record.Title}); err != nil {
		return fmt.Errorf("reinsert item %s: %w", record.ID, err)
	}
	for _, attr := range record.Attributes {
		attrID := graph.AttributeNodeID(attr.Label, attr.Value)
		if err := s.store.MergeNode(ctx, graph.Node{ID: attrID, Label: attr.Label, Name: attr.Value}); err != nil {
			return fmt.Errorf("reinsert attribute %s of %s: %w", attrID, record.ID, err)
		}
		if err := s.store.MergeEdge(ctx, graph.Edge{SourceID: nodeID, TargetID: attrID, RelType: attr.RelType}); err != nil {
			return fmt.Errorf("reinsert edge %s of %s: %w", attr.RelType, record.ID, err)
		}
	}
	return nil
}

// Remove detach-deletes items without extracting them first. Used inside
// the per-item loop, where the record is already held.
func (s *Sampler) Remove(ctx context.Context, ids []string) error {
	nodeIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		nodeIDs = append(nodeIDs, graph.ItemNodeID(id))
	}
	if _, err := s.store.DetachDelete(ctx, nodeIDs); err != nil {
		return fmt.Errorf("remove items: %w", err)
	}
	return nil
}

// RestoreInteractions recreates the behavioral user-item edges for the
// given items from the ground-truth dataset. Must run strictly after the
// evaluation loop for those items: ground truth stays hidden during scoring.
func (s *Sampler) RestoreInteractions(ctx context.Context, ids []string) error {
	pairs, err := s.src.PairsForItems(ids)
	if err != nil {
		return fmt.Errorf("load interactions for restore: %w", err)
	}
	for _, pair := range pairs {
		edge := graph.Edge{
			SourceID:   graph.UserNodeID(pair.UserID),
			TargetID:   graph.ItemNodeID(pair.ItemID),
			RelType:    graph.RelInteracted,
			Behavioral: true,
		}
		if err := s.store.MergeEdge(ctx, edge); err != nil {
			return fmt.Errorf("restore interaction %s->%s: %w", pair.UserID, pair.ItemID, err)
		}
	}
	s.log.Debug("restored interactions", "items", len(ids), "edges", len(pairs))
	return nil
}

func rawItemID(nodeID string) string {
	return strings.TrimPrefix(nodeID, graph.LabelItem+":")
}
