package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/adalundhe/coldrank/core/graph"
	"github.com/adalundhe/coldrank/core/params"
	"github.com/adalundhe/coldrank/core/retrieval"
)

// Provider requests embeddings from an engine on behalf of the harness.
type Provider struct {
	store  *graph.Store
	engine Engine
	log    *slog.Logger
}

// NewProvider builds a provider over the graph store and an engine.
func NewProvider(store *graph.Store, engine Engine, log *slog.Logger) *Provider {
	if log == nil {
		log = slog.Default()
	}
	return &Provider{store: store, engine: engine, log: log}
}

// TrainUserEmbeddings projects the full graph, runs one embedding pass, and
// returns the vectors of user-labeled nodes keyed by raw user identifier.
// Rebuilt once per hyperparameter combination: removing items changes the
// trainable graph.
func (p *Provider) TrainUserEmbeddings(ctx context.Context, combo params.Combination) (*retrieval.UserVectorSet, error) {
	proj, err := p.store.FullProjection(ctx)
	if err != nil {
		return nil, fmt.Errorf("full graph projection: %w", err)
	}

	vectors, err := p.engine.Stream(ctx, proj, combo)
	if err != nil {
		return nil, &EngineError{Op: "train user embeddings", Err: err}
	}

	userLabel := make(map[string]bool, len(proj.Nodes))
	for _, n := range proj.Nodes {
		if n.Label == graph.LabelUser {
			userLabel[n.ID] = true
		}
	}

	var ids []string
	var vecs [][]float32
	for _, nv := range vectors {
		if !userLabel[nv.ID] {
			continue
		}
		ids = append(ids, strings.TrimPrefix(nv.ID, graph.LabelUser+":"))
		vecs = append(vecs, nv.Vector)
	}

	set, err := retrieval.NewUserVectorSet(ids, vecs)
	if err != nil {
		return nil, fmt.Errorf("assemble user vector set: %w", err)
	}
	p.log.Debug("trained user embeddings",
		"users", set.Len(), "dimension", combo.Dimension, "hops", combo.Hops())
	return set, nil
}

// EmbedItemSubgraph projects the item's neighborhood within hops steps,
// runs one embedding pass over just that subgraph, and extracts the vector
// for the item itself. The hop radius equals the iteration-weight length of
// the active combination.
func (p *Provider) EmbedItemSubgraph(ctx context.Context, itemID string, hops int, combo params.Combination) (retrieval.ItemVector, error) {
	nodeID := graph.ItemNodeID(itemID)
	proj, err := p.store.SubgraphProjection(ctx, nodeID, hops)
	if err != nil {
		return retrieval.ItemVector{}, fmt.Errorf("subgraph projection for %s: %w", itemID, err)
	}

	vectors, err := p.engine.Stream(ctx, proj, combo)
	if err != nil {
		return retrieval.ItemVector{}, &EngineError{Op: "embed item " + itemID, Err: err}
	}

	for _, nv := range vectors {
		if nv.ID == nodeID {
			return retrieval.ItemVector{ID: itemID, Vector: nv.Vector}, nil
		}
	}
	return retrieval.ItemVector{}, fmt.Errorf("item %s: %w", itemID, ErrMissingEmbedding)
}
