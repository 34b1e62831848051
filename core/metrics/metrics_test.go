package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/coldrank/core/groundtruth"
)

func evaluatorWith(t *testing.T, csv string) *Evaluator {
	t.Helper()
	path := filepath.Join(t.TempDir(), "interactions.csv")
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))
	eval, err := NewEvaluator(groundtruth.NewSource(path))
	require.NoError(t, err)
	return eval
}

func TestActualUsers(t *testing.T) {
	eval := evaluatorWith(t, "userId,itemId\n1,10\n2,10\n3,10\n4,20\n5,20\n")

	users, err := eval.ActualUsers("10")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, users)

	// Second lookup comes from the cache and stays identical.
	again, err := eval.ActualUsers("10")
	require.NoError(t, err)
	assert.Equal(t, users, again)
}

func TestEvaluateReferenceCase(t *testing.T) {
	eval := evaluatorWith(t, "userId,itemId\n1,10\n2,10\n3,10\n4,20\n5,20\n")

	precision, ndcg, err := eval.Evaluate("10", []string{"2", "6", "1", "7", "3"}, 3)
	require.NoError(t, err)

	// actual = {1,2,3}; retrieved[:3] = [2,6,1] -> 2 hits of 3.
	assert.InDelta(t, 0.67, precision, 0.005)
	// relevance [1,0,1] vs ideal [1,1,0].
	assert.GreaterOrEqual(t, ndcg, 0.91)
	assert.LessOrEqual(t, ndcg, 0.92)
}

func TestPrecisionAtK(t *testing.T) {
	t.Run("clamps to actual size", func(t *testing.T) {
		// |actual| = 2, k = 10 -> effective k = 2, retrieved[:2] vs actual[:2].
		p, err := PrecisionAtK([]string{"1", "9"}, []string{"1", "2"}, 10)
		require.NoError(t, err)
		assert.Equal(t, 0.5, p)
	})

	t.Run("empty actual degrades to zero", func(t *testing.T) {
		p, err := PrecisionAtK([]string{"1", "2"}, nil, 10)
		require.NoError(t, err)
		assert.Zero(t, p)
	})

	t.Run("perfect retrieval", func(t *testing.T) {
		p, err := PrecisionAtK([]string{"1", "2", "3"}, []string{"1", "2", "3"}, 3)
		require.NoError(t, err)
		assert.Equal(t, 1.0, p)
	})

	t.Run("negative k rejected", func(t *testing.T) {
		_, err := PrecisionAtK([]string{"1"}, []string{"1"}, -1)
		assert.ErrorIs(t, err, ErrInvalidCutoff)
	})

	t.Run("rounded to two decimals", func(t *testing.T) {
		p, err := PrecisionAtK([]string{"1", "9", "8"}, []string{"1", "2", "3"}, 3)
		require.NoError(t, err)
		assert.Equal(t, 0.33, p)
	})
}

func TestNDCGAtK(t *testing.T) {
	t.Run("hit ranked first beats hit ranked last", func(t *testing.T) {
		first, err := NDCGAtK([]string{"1", "9", "8"}, []string{"1", "2", "3"}, 3)
		require.NoError(t, err)
		last, err := NDCGAtK([]string{"9", "8", "1"}, []string{"1", "2", "3"}, 3)
		require.NoError(t, err)
		assert.Greater(t, first, last)
	})

	t.Run("perfect ordering scores one", func(t *testing.T) {
		n, err := NDCGAtK([]string{"1", "2", "3"}, []string{"1", "2", "3"}, 3)
		require.NoError(t, err)
		assert.Equal(t, 1.0, n)
	})

	t.Run("no hits scores zero", func(t *testing.T) {
		n, err := NDCGAtK([]string{"7", "8", "9"}, []string{"1", "2", "3"}, 3)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("empty actual degrades to zero", func(t *testing.T) {
		n, err := NDCGAtK([]string{"1", "2"}, nil, 5)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("negative k rejected", func(t *testing.T) {
		_, err := NDCGAtK([]string{"1"}, []string{"1"}, -3)
		assert.ErrorIs(t, err, ErrInvalidCutoff)
	})
}
