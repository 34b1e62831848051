// Package embedding adapts the graph to an embedding engine and back:
// full-graph user embeddings for retrieval, and single-item subgraph
// embeddings for held-out items. The engine itself is opaque to the
// harness; it receives a projection and hyperparameters and returns
// node-vector pairs.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/adalundhe/coldrank/core/graph"
	"github.com/adalundhe/coldrank/core/params"
)

// NodeVector is one embedded node as returned by an engine.
type NodeVector struct {
	ID     string
	Vector []float32
}

// Engine runs one embedding pass over a projection. Implementations must be
// deterministic for identical inputs; the harness never retries a failed
// pass.
type Engine interface {
	Stream(ctx context.Context, proj *graph.Projection, combo params.Combination) ([]NodeVector, error)
}

// ErrMissingEmbedding signals that the target node was absent from the
// engine output, e.g. the item was disconnected within its hop radius.
var ErrMissingEmbedding = errors.New("no embedding for target node")

// EngineError wraps a downstream engine failure. Embedding passes are
// expensive and not safely retryable, so the error propagates as-is.
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("embedding engine: %s: %v", e.Op, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }
