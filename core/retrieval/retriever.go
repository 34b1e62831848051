// Package retrieval ranks user embedding vectors against a single item
// vector and returns the closest users in order. It is the vector-search
// step of the cold-start evaluation loop.
package retrieval

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/viterin/vek/vek32"
)

// Method selects the similarity/distance computation used for ranking.
type Method string

const (
	// MethodCosine ranks users by descending cosine similarity.
	MethodCosine Method = "cosine"

	// MethodEuclidean ranks users by ascending Euclidean distance.
	MethodEuclidean Method = "euclidean"
)

// Methods returns all supported retrieval methods.
func Methods() []Method {
	return []Method{MethodCosine, MethodEuclidean}
}

// IsValid reports whether the method is a supported value.
func (m Method) IsValid() bool {
	switch m {
	case MethodCosine, MethodEuclidean:
		return true
	default:
		return false
	}
}

func (m Method) String() string {
	return string(m)
}

var (
	ErrUnknownMethod     = errors.New("unknown retrieval method")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrEmptyVectorSet    = errors.New("empty user vector set")
)

// UserVectorSet holds user identifiers and their embedding vectors as
// parallel arrays. Vectors are stored in one flat buffer so that scoring
// walks contiguous memory.
//
// The set is rebuilt once per hyperparameter combination and is read-only
// during the per-item evaluation loop.
type UserVectorSet struct {
	ids  []string
	flat []float32
	dim  int
}

// NewUserVectorSet builds a set from parallel id/vector slices. All vectors
// must share the same dimensionality.
func NewUserVectorSet(ids []string, vectors [][]float32) (*UserVectorSet, error) {
	if len(ids) != len(vectors) {
		return nil, fmt.Errorf("ids (%d) and vectors (%d) are not parallel", len(ids), len(vectors))
	}
	if len(ids) == 0 {
		return &UserVectorSet{}, nil
	}
	dim := len(vectors[0])
	flat := make([]float32, 0, len(vectors)*dim)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("vector for %s has dim %d, want %d: %w", ids[i], len(v), dim, ErrDimensionMismatch)
		}
		flat = append(flat, v...)
	}
	out := &UserVectorSet{ids: append([]string(nil), ids...), flat: flat, dim: dim}
	return out, nil
}

// Len returns the number of users in the set.
func (s *UserVectorSet) Len() int {
	if s == nil || s.dim == 0 {
		return 0
	}
	return len(s.ids)
}

// Dim returns the embedding dimensionality.
func (s *UserVectorSet) Dim() int { return s.dim }

// IDs returns the user identifiers in storage order.
func (s *UserVectorSet) IDs() []string { return s.ids }

// Vector returns the i-th user vector as a slice into the flat buffer.
func (s *UserVectorSet) Vector(i int) []float32 {
	return s.flat[i*s.dim : (i+1)*s.dim]
}

// ItemVector is one embedded item, produced from a subgraph projection
// centered on that item.
type ItemVector struct {
	ID     string
	Vector []float32
}

// Result is an ordered retrieval outcome for one item.
type Result struct {
	ItemID  string
	UserIDs []string
}

// Retrieve scores every user vector against the item vector and returns the
// top users for the method: highest cosine similarity first, or smallest
// Euclidean distance first. The requested length is capped to the number of
// available users. Ordering is deterministic; score ties keep the storage
// order of the set (stable sort).
func Retrieve(item ItemVector, users *UserVectorSet, method Method, length int) (Result, error) {
	if !method.IsValid() {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}
	n := users.Len()
	if n == 0 {
		return Result{}, ErrEmptyVectorSet
	}
	if users.Dim() != len(item.Vector) {
		return Result{}, fmt.Errorf("item dim %d vs user dim %d: %w", len(item.Vector), users.Dim(), ErrDimensionMismatch)
	}
	if length > n {
		length = n
	}
	if length < 0 {
		length = 0
	}

	scores := make([]float64, n)
	switch method {
	case MethodCosine:
		qMag := math.Sqrt(float64(vek32.Dot(item.Vector, item.Vector)))
		for i := range n {
			scores[i] = cosineSimilarity(item.Vector, users.Vector(i), qMag)
		}
	case MethodEuclidean:
		qq := float64(vek32.Dot(item.Vector, item.Vector))
		for i := range n {
			scores[i] = euclideanDistance(item.Vector, users.Vector(i), qq)
		}
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if method == MethodCosine {
		sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })
	} else {
		sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] < scores[order[b]] })
	}

	out := Result{ItemID: item.ID, UserIDs: make([]string, 0, length)}
	for _, idx := range order[:length] {
		out.UserIDs = append(out.UserIDs, users.ids[idx])
	}
	return out, nil
}

// cosineSimilarity returns 0 when either vector has zero magnitude.
func cosineSimilarity(q, v []float32, qMag float64) float64 {
	vMag := math.Sqrt(float64(vek32.Dot(v, v)))
	if qMag == 0 || vMag == 0 {
		return 0
	}
	return float64(vek32.Dot(q, v)) / (qMag * vMag)
}

func euclideanDistance(q, v []float32, qq float64) float64 {
	d := qq - 2*float64(vek32.Dot(q, v)) + float64(vek32.Dot(v, v))
	if d < 0 {
		d = 0
	}
	return math.Sqrt(d)
}
