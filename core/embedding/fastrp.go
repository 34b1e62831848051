package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/blas/blas32"

	"github.com/adalundhe/coldrank/core/graph"
	"github.com/adalundhe/coldrank/core/params"
)

// FastRP is an in-process fast-random-projection engine. Node vectors start
// as sparse random projections seeded from the node id, get scaled by
// degree to the configured normalization strength, and are then averaged
// over neighbors once per hop, with each hop's contribution weighted by the
// matching iteration weight.
//
// Two properties the harness depends on: identical projections and
// hyperparameters always produce identical vectors, and a node's initial
// projection depends only on its id, never on graph size or node order.
type FastRP struct {
	seed int64
}

// NewFastRP creates an engine with the given base seed.
func NewFastRP(seed int64) *FastRP {
	return &FastRP{seed: seed}
}

// Stream implements Engine.
func (f *FastRP) Stream(ctx context.Context, proj *graph.Projection, combo params.Combination) ([]NodeVector, error) {
	if combo.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", combo.Dimension)
	}
	if combo.Hops() == 0 {
		return nil, fmt.Errorf("iteration weights must not be empty")
	}
	if len(proj.Nodes) == 0 {
		return nil, nil
	}

	dim := combo.Dimension
	n := len(proj.Nodes)

	index := make(map[string]int, n)
	for i, node := range proj.Nodes {
		index[node.ID] = i
	}
	neighbors := make([][]int, n)
	for _, e := range proj.Edges {
		s, sok := index[e.SourceID]
		t, tok := index[e.TargetID]
		if !sok || !tok {
			continue
		}
		neighbors[s] = append(neighbors[s], t)
		neighbors[t] = append(neighbors[t], s)
	}

	current := make([][]float32, n)
	for i, node := range proj.Nodes {
		current[i] = f.initialProjection(node.ID, dim)
		if deg := len(neighbors[i]); deg > 0 && combo.NormalizationStrength != 0 {
			scale := float32(math.Pow(float64(deg), combo.NormalizationStrength))
			blas32.Scal(scale, rowVec(current[i]))
		}
	}

	acc := make([][]float32, n)
	for i := range acc {
		acc[i] = make([]float32, dim)
	}

	next := make([][]float32, n)
	for i := range next {
		next[i] = make([]float32, dim)
	}

	for _, weight := range combo.IterationWeights {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		propagate(current, next, neighbors)
		for i := range next {
			normalizeRow(next[i])
			blas32.Axpy(float32(weight), rowVec(next[i]), rowVec(acc[i]))
		}
		current, next = next, current
	}

	out := make([]NodeVector, n)
	for i, node := range proj.Nodes {
		normalizeRow(acc[i])
		out[i] = NodeVector{ID: node.ID, Vector: acc[i]}
	}
	return out, nil
}

// initialProjection builds the sparse random start vector for one node.
// Seeding from a hash of the node id keeps the vector stable regardless of
// which projection the node appears in.
func (f *FastRP) initialProjection(nodeID string, dim int) []float32 {
	h := fnv.New64a()
	h.Write([]byte(nodeID))
	rng := rand.New(rand.NewSource(f.seed ^ int64(h.Sum64())))

	// Sparse projection values in {+sqrt(3), 0, -sqrt(3)} with
	// probabilities 1/6, 2/3, 1/6.
	sqrt3 := float32(math.Sqrt(3))
	v := make([]float32, dim)
	for i := range v {
		switch r := rng.Float64(); {
		case r < 1.0/6.0:
			v[i] = sqrt3
		case r < 2.0/6.0:
			v[i] = -sqrt3
		}
	}
	return v
}

// propagate sets each row of dst to the mean of its neighbors' rows in src.
// Isolated nodes get a zero row.
func propagate(src, dst [][]float32, neighbors [][]int) {
	for i := range dst {
		clear(dst[i])
		if len(neighbors[i]) == 0 {
			continue
		}
		for _, j := range neighbors[i] {
			blas32.Axpy(1, rowVec(src[j]), rowVec(dst[i]))
		}
		blas32.Scal(1/float32(len(neighbors[i])), rowVec(dst[i]))
	}
}

func normalizeRow(v []float32) {
	if norm := blas32.Nrm2(rowVec(v)); norm > 0 {
		blas32.Scal(1/norm, rowVec(v))
	}
}

func rowVec(v []float32) blas32.Vector {
	return blas32.Vector{N: len(v), Inc: 1, Data: v}
}
