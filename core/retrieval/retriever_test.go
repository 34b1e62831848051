package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustSet(t *testing.T, ids []string, vectors [][]float32) *UserVectorSet {
	t.Helper()
	set, err := NewUserVectorSet(ids, vectors)
	require.NoError(t, err)
	return set
}

func TestRetrieveCosine(t *testing.T) {
	set := mustSet(t,
		[]string{"101", "102", "103"},
		[][]float32{{0.1, 0.2}, {0.9, 0.8}, {0.2, 0.1}},
	)
	item := ItemVector{ID: "42", Vector: []float32{0.8, 0.7}}

	res, err := Retrieve(item, set, MethodCosine, 2)
	require.NoError(t, err)

	assert.Equal(t, "42", res.ItemID)
	require.Len(t, res.UserIDs, 2)
	assert.Equal(t, "102", res.UserIDs[0], "closest direction match ranks first")
	assert.Equal(t, "103", res.UserIDs[1])
}

func TestRetrieveEuclidean(t *testing.T) {
	set := mustSet(t,
		[]string{"201", "202", "203"},
		[][]float32{{1.0, 1.0}, {0.0, 0.0}, {0.5, 0.5}},
	)
	item := ItemVector{ID: "7", Vector: []float32{0.6, 0.6}}

	res, err := Retrieve(item, set, MethodEuclidean, 2)
	require.NoError(t, err)

	require.Len(t, res.UserIDs, 2)
	assert.Equal(t, "203", res.UserIDs[0], "smallest distance ranks first")
	assert.Equal(t, "201", res.UserIDs[1])
}

func TestRetrieveCapsLength(t *testing.T) {
	set := mustSet(t, []string{"1", "2"}, [][]float32{{1, 0}, {0, 1}})
	res, err := Retrieve(ItemVector{ID: "x", Vector: []float32{1, 0}}, set, MethodCosine, 50)
	require.NoError(t, err)
	assert.Len(t, res.UserIDs, 2)
}

func TestRetrieveDeterministic(t *testing.T) {
	set := mustSet(t,
		[]string{"a", "b", "c", "d"},
		[][]float32{{1, 0}, {0, 1}, {1, 0}, {0.5, 0.5}},
	)
	item := ItemVector{ID: "x", Vector: []float32{1, 0}}

	first, err := Retrieve(item, set, MethodCosine, 4)
	require.NoError(t, err)
	for range 10 {
		again, err := Retrieve(item, set, MethodCosine, 4)
		require.NoError(t, err)
		assert.Equal(t, first.UserIDs, again.UserIDs)
	}
	// a and c tie exactly; stable sort keeps storage order.
	assert.Equal(t, []string{"a", "c", "d", "b"}, first.UserIDs)
}

func TestRetrieveErrors(t *testing.T) {
	set := mustSet(t, []string{"1"}, [][]float32{{1, 0}})

	t.Run("unknown method", func(t *testing.T) {
		_, err := Retrieve(ItemVector{Vector: []float32{1, 0}}, set, Method("manhattan"), 1)
		assert.ErrorIs(t, err, ErrUnknownMethod)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := Retrieve(ItemVector{Vector: []float32{1, 0, 0}}, set, MethodCosine, 1)
		assert.ErrorIs(t, err, ErrDimensionMismatch)
	})

	t.Run("empty set", func(t *testing.T) {
		empty := mustSet(t, nil, nil)
		_, err := Retrieve(ItemVector{Vector: []float32{1, 0}}, empty, MethodCosine, 1)
		assert.ErrorIs(t, err, ErrEmptyVectorSet)
	})
}

func TestRetrieveZeroMagnitude(t *testing.T) {
	set := mustSet(t, []string{"1", "2"}, [][]float32{{0, 0}, {1, 0}})
	res, err := Retrieve(ItemVector{ID: "x", Vector: []float32{1, 0}}, set, MethodCosine, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "1"}, res.UserIDs, "zero vector scores 0 and ranks last")
}

func TestNewUserVectorSetValidation(t *testing.T) {
	_, err := NewUserVectorSet([]string{"1", "2"}, [][]float32{{1, 0}})
	assert.Error(t, err)

	_, err = NewUserVectorSet([]string{"1", "2"}, [][]float32{{1, 0}, {1, 0, 0}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
