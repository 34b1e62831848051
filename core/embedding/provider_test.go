package embedding

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/coldrank/core/graph"
	"github.com/adalundhe/coldrank/core/params"
)

type stubEngine struct {
	vectors []NodeVector
	err     error
	calls   int
}

func (s *stubEngine) Stream(_ context.Context, proj *graph.Projection, _ params.Combination) ([]NodeVector, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.vectors != nil {
		return s.vectors, nil
	}
	out := make([]NodeVector, 0, len(proj.Nodes))
	for i, node := range proj.Nodes {
		out = append(out, NodeVector{ID: node.ID, Vector: []float32{float32(i), 1}})
	}
	return out, nil
}

func providerFixture(t *testing.T, engine Engine) (*Provider, *graph.Store) {
	t.Helper()
	ctx := context.Background()

	store, err := graph.Open(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	nodes := []graph.Node{
		{ID: graph.ItemNodeID("10"), Label: graph.LabelItem, Name: "Heat"},
		{ID: graph.UserNodeID("1"), Label: graph.LabelUser, Name: "1"},
		{ID: graph.UserNodeID("2"), Label: graph.LabelUser, Name: "2"},
		{ID: graph.AttributeNodeID("genre", "Action"), Label: "genre", Name: "Action"},
	}
	for _, n := range nodes {
		require.NoError(t, store.MergeNode(ctx, n))
	}
	edges := []graph.Edge{
		{SourceID: graph.ItemNodeID("10"), TargetID: graph.AttributeNodeID("genre", "Action"), RelType: "HAS_GENRE"},
		{SourceID: graph.UserNodeID("1"), TargetID: graph.ItemNodeID("10"), RelType: graph.RelInteracted, Behavioral: true},
	}
	for _, e := range edges {
		require.NoError(t, store.MergeEdge(ctx, e))
	}

	return NewProvider(store, engine, nil), store
}

func testCombo() params.Combination {
	return params.Combination{Dimension: 2, IterationWeights: []float64{1.0}}
}

func TestTrainUserEmbeddingsFiltersUsers(t *testing.T) {
	provider, _ := providerFixture(t, &stubEngine{})

	set, err := provider.TrainUserEmbeddings(context.Background(), testCombo())
	require.NoError(t, err)

	assert.Equal(t, 2, set.Len(), "only user-labeled nodes survive the filter")
	assert.ElementsMatch(t, []string{"1", "2"}, set.IDs(), "raw user ids, not node ids")
}

func TestTrainUserEmbeddingsEngineFailure(t *testing.T) {
	boom := errors.New("projection exploded")
	provider, _ := providerFixture(t, &stubEngine{err: boom})

	_, err := provider.TrainUserEmbeddings(context.Background(), testCombo())
	require.Error(t, err)

	var engineErr *EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.ErrorIs(t, err, boom)
}

func TestEmbedItemSubgraph(t *testing.T) {
	provider, _ := providerFixture(t, &stubEngine{})

	vec, err := provider.EmbedItemSubgraph(context.Background(), "10", 1, testCombo())
	require.NoError(t, err)
	assert.Equal(t, "10", vec.ID)
	assert.Len(t, vec.Vector, 2)
}

func TestEmbedItemSubgraphMissingTarget(t *testing.T) {
	// Engine output omits the item node.
	engine := &stubEngine{vectors: []NodeVector{{ID: graph.UserNodeID("1"), Vector: []float32{1, 2}}}}
	provider, _ := providerFixture(t, engine)

	_, err := provider.EmbedItemSubgraph(context.Background(), "10", 1, testCombo())
	assert.ErrorIs(t, err, ErrMissingEmbedding)
}

func TestEmbedItemSubgraphMissingNode(t *testing.T) {
	provider, _ := providerFixture(t, &stubEngine{})

	_, err := provider.EmbedItemSubgraph(context.Background(), "999", 1, testCombo())
	assert.ErrorIs(t, err, graph.ErrNodeNotFound)
}
