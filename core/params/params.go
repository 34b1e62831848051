// Package params validates a hyperparameter batch and expands it into the
// concrete combinations the tuner evaluates. The batch is four parallel
// arrays: one configuration per index across dimensions, normalization
// strengths, and iteration-weight lists, plus a shared list of retrieval
// methods applied to every configuration.
package params

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"

	"github.com/adalundhe/coldrank/core/retrieval"
)

// ErrConfiguration is the root of all batch validation failures. Callers can
// errors.Is against it to distinguish fatal config problems from runtime ones.
var ErrConfiguration = errors.New("invalid hyperparameter batch")

// MissingFieldError reports an absent or null required field.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}

func (e *MissingFieldError) Unwrap() error { return ErrConfiguration }

// LengthMismatchError reports parallel arrays of unequal length. All three
// lengths are named so the offending field is obvious.
type LengthMismatchError struct {
	Dimensions int
	Strengths  int
	Weights    int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("inconsistent lengths: embeddingDimension=%d normalizationStrength=%d iterationWeights=%d",
		e.Dimensions, e.Strengths, e.Weights)
}

func (e *LengthMismatchError) Unwrap() error { return ErrConfiguration }

// UnsupportedMethodError reports retrieval methods outside the allowed set.
type UnsupportedMethodError struct {
	Methods []string
}

func (e *UnsupportedMethodError) Error() string {
	return fmt.Sprintf("unsupported method(s): %v", e.Methods)
}

func (e *UnsupportedMethodError) Unwrap() error { return ErrConfiguration }

// Combination is one fully-specified hyperparameter set. The hop count of
// the subgraph projection equals the length of its iteration weights.
type Combination struct {
	Dimension             int       `json:"embeddingDimension"`
	NormalizationStrength float64   `json:"normalizationStrength"`
	IterationWeights      []float64 `json:"iterationWeights"`

	// Methods is the shared retrieval method list; every method is
	// evaluated against the same embedding.
	Methods []retrieval.Method `json:"method"`
}

// Hops returns the neighborhood radius implied by the iteration weights.
func (c Combination) Hops() int { return len(c.IterationWeights) }

// Batch is a validated hyperparameter specification. Construct with
// ParseBatch or LoadBatch; immutable afterwards.
type Batch struct {
	dimensions []int
	strengths  []float64
	weights    [][]float64
	methods    []retrieval.Method
}

// ParseBatch decodes and validates a JSON hyperparameter batch. Validation
// is fail-fast: any violation rejects the whole batch. Pointer slices in the
// decode target distinguish absent fields from empty ones; string-typed
// entries in the numeric fields surface as decode type errors rather than
// silent coercions.
func ParseBatch(data []byte) (*Batch, error) {
	var raw struct {
		Dimensions *[]int       `json:"embeddingDimension"`
		Strengths  *[]float64   `json:"normalizationStrength"`
		Weights    *[][]float64 `json:"iterationWeights"`
		Methods    *[]string    `json:"method"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, fmt.Errorf("%w: field %q holds %s, want %s", ErrConfiguration, typeErr.Field, typeErr.Value, typeErr.Type)
		}
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	switch {
	case raw.Dimensions == nil:
		return nil, &MissingFieldError{Field: "embeddingDimension"}
	case raw.Strengths == nil:
		return nil, &MissingFieldError{Field: "normalizationStrength"}
	case raw.Weights == nil:
		return nil, &MissingFieldError{Field: "iterationWeights"}
	case raw.Methods == nil:
		return nil, &MissingFieldError{Field: "method"}
	}

	if len(*raw.Dimensions) != len(*raw.Strengths) || len(*raw.Strengths) != len(*raw.Weights) {
		return nil, &LengthMismatchError{
			Dimensions: len(*raw.Dimensions),
			Strengths:  len(*raw.Strengths),
			Weights:    len(*raw.Weights),
		}
	}

	methods := make([]retrieval.Method, 0, len(*raw.Methods))
	var rejected []string
	for _, m := range *raw.Methods {
		method := retrieval.Method(m)
		if !method.IsValid() {
			rejected = append(rejected, m)
			continue
		}
		methods = append(methods, method)
	}
	if len(rejected) > 0 {
		return nil, &UnsupportedMethodError{Methods: rejected}
	}
	if len(methods) == 0 {
		return nil, &MissingFieldError{Field: "method"}
	}

	return &Batch{
		dimensions: *raw.Dimensions,
		strengths:  *raw.Strengths,
		weights:    *raw.Weights,
		methods:    methods,
	}, nil
}

// LoadBatch reads and validates a hyperparameter batch file.
func LoadBatch(path string) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hyperparameter batch: %w", err)
	}
	return ParseBatch(data)
}

// Len returns the number of combinations the batch expands to.
func (b *Batch) Len() int { return len(b.dimensions) }

// Methods returns the shared retrieval method list.
func (b *Batch) Methods() []retrieval.Method { return b.methods }

// Combinations returns a lazy, restartable sequence of combinations, one per
// index position across the parallel arrays.
func (b *Batch) Combinations() iter.Seq[Combination] {
	return func(yield func(Combination) bool) {
		for i := range b.dimensions {
			c := Combination{
				Dimension:             b.dimensions[i],
				NormalizationStrength: b.strengths[i],
				IterationWeights:      b.weights[i],
				Methods:               b.methods,
			}
			if !yield(c) {
				return
			}
		}
	}
}
