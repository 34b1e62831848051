package sampler

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/coldrank/core/graph"
	"github.com/adalundhe/coldrank/core/groundtruth"
)

// fixture builds a small graph: items 10 and 20 with genre/release
// attributes, three users, and interaction edges mirrored in the CSV.
func fixture(t *testing.T) (*graph.Store, *groundtruth.Source) {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	store, err := graph.Open(filepath.Join(dir, "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	nodes := []graph.Node{
		{ID: graph.ItemNodeID("10"), Label: graph.LabelItem, Name: "Heat"},
		{ID: graph.ItemNodeID("20"), Label: graph.LabelItem, Name: "Alien"},
		{ID: graph.UserNodeID("1"), Label: graph.LabelUser, Name: "1"},
		{ID: graph.UserNodeID("2"), Label: graph.LabelUser, Name: "2"},
		{ID: graph.UserNodeID("3"), Label: graph.LabelUser, Name: "3"},
		{ID: graph.AttributeNodeID("genre", "Action"), Label: "genre", Name: "Action"},
		{ID: graph.AttributeNodeID("release", "1995"), Label: "release", Name: "1995"},
	}
	for _, n := range nodes {
		require.NoError(t, store.MergeNode(ctx, n))
	}

	attrEdges := []graph.Edge{
		{SourceID: graph.ItemNodeID("10"), TargetID: graph.AttributeNodeID("genre", "Action"), RelType: "HAS_GENRE"},
		{SourceID: graph.ItemNodeID("10"), TargetID: graph.AttributeNodeID("release", "1995"), RelType: "RELEASED"},
		{SourceID: graph.ItemNodeID("20"), TargetID: graph.AttributeNodeID("genre", "Action"), RelType: "HAS_GENRE"},
	}
	for _, e := range attrEdges {
		require.NoError(t, store.MergeEdge(ctx, e))
	}

	interactions := []groundtruth.Pair{
		{UserID: "1", ItemID: "10"},
		{UserID: "2", ItemID: "10"},
		{UserID: "3", ItemID: "10"},
		{UserID: "1", ItemID: "20"},
		{UserID: "2", ItemID: "20"},
	}
	var csv strings.Builder
	csv.WriteString("userId,itemId\n")
	for _, p := range interactions {
		fmt.Fprintf(&csv, "%s,%s\n", p.UserID, p.ItemID)
		require.NoError(t, store.MergeEdge(ctx, graph.Edge{
			SourceID:   graph.UserNodeID(p.UserID),
			TargetID:   graph.ItemNodeID(p.ItemID),
			RelType:    graph.RelInteracted,
			Behavioral: true,
		}))
	}

	csvPath := filepath.Join(dir, "interactions.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(csv.String()), 0o644))
	return store, groundtruth.NewSource(csvPath)
}

func newSampler(store *graph.Store, src *groundtruth.Source, minInteractions int) *Sampler {
	return New(store, src,
		WithMinInteractions(minInteractions),
		WithRand(rand.New(rand.NewSource(1))),
		WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))),
	)
}

func TestSampleEligible(t *testing.T) {
	store, src := fixture(t)
	ctx := context.Background()

	t.Run("threshold filters sparse items", func(t *testing.T) {
		s := newSampler(store, src, 3)
		ids, err := s.SampleEligible(ctx, 1.0)
		require.NoError(t, err)
		assert.Equal(t, []string{"10"}, ids, "only item 10 has 3 interactions")
	})

	t.Run("ratio sizes the sample", func(t *testing.T) {
		s := newSampler(store, src, 2)
		ids, err := s.SampleEligible(ctx, 0.5)
		require.NoError(t, err)
		assert.Len(t, ids, 1)
	})

	t.Run("no eligible items", func(t *testing.T) {
		s := newSampler(store, src, 100)
		_, err := s.SampleEligible(ctx, 0.5)
		assert.ErrorIs(t, err, ErrNoEligibleItems)
	})

	t.Run("negative ratio rejected", func(t *testing.T) {
		s := newSampler(store, src, 2)
		_, err := s.SampleEligible(ctx, -0.1)
		assert.ErrorIs(t, err, ErrInvalidRatio)
	})

	t.Run("ratio above one capped", func(t *testing.T) {
		s := newSampler(store, src, 2)
		ids, err := s.SampleEligible(ctx, 1.5)
		require.NoError(t, err)
		assert.Len(t, ids, 2)
	})
}

func TestExtractAndRemove(t *testing.T) {
	store, src := fixture(t)
	ctx := context.Background()
	s := newSampler(store, src, 2)

	records, err := s.ExtractAndRemove(ctx, []string{"10"})
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "10", rec.ID)
	assert.Equal(t, "Heat", rec.Title)
	require.Len(t, rec.Attributes, 2)
	assert.Equal(t, AttributeTriple{RelType: "HAS_GENRE", Label: "genre", Value: "Action"}, rec.Attributes[0])
	assert.Equal(t, AttributeTriple{RelType: "RELEASED", Label: "release", Value: "1995"}, rec.Attributes[1])

	_, err = store.GetNode(ctx, graph.ItemNodeID("10"))
	assert.ErrorIs(t, err, graph.ErrNodeNotFound)
}

func TestHoldOutRestoreRoundTrip(t *testing.T) {
	store, src := fixture(t)
	ctx := context.Background()
	s := newSampler(store, src, 2)

	before, err := store.Counts(ctx)
	require.NoError(t, err)

	ids := []string{"10", "20"}
	records, err := s.ExtractAndRemove(ctx, ids)
	require.NoError(t, err)
	require.Len(t, records, 2)

	mid, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Nodes-2, mid.Nodes)
	assert.Less(t, mid.Edges, before.Edges)

	for _, rec := range records {
		require.NoError(t, s.ReinsertOne(ctx, rec))
	}
	require.NoError(t, s.RestoreInteractions(ctx, ids))

	after, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after, "graph identical to pre-sampling state")

	node, err := store.GetNode(ctx, graph.ItemNodeID("10"))
	require.NoError(t, err)
	assert.Equal(t, "Heat", node.Name)

	behavioral, err := store.EdgeCount(ctx, graph.ItemNodeID("10"), true)
	require.NoError(t, err)
	assert.Equal(t, int64(3), behavioral)
}

func TestReinsertOneIdempotent(t *testing.T) {
	store, src := fixture(t)
	ctx := context.Background()
	s := newSampler(store, src, 2)

	records, err := s.ExtractAndRemove(ctx, []string{"10"})
	require.NoError(t, err)

	require.NoError(t, s.ReinsertOne(ctx, records[0]))
	countAfterFirst, err := store.EdgeCount(ctx, graph.ItemNodeID("10"), false)
	require.NoError(t, err)

	require.NoError(t, s.ReinsertOne(ctx, records[0]))
	countAfterSecond, err := store.EdgeCount(ctx, graph.ItemNodeID("10"), false)
	require.NoError(t, err)

	assert.Equal(t, countAfterFirst, countAfterSecond, "no duplicate edges on second reinsert")
}

func TestReinsertOmitsInteractions(t *testing.T) {
	store, src := fixture(t)
	ctx := context.Background()
	s := newSampler(store, src, 2)

	records, err := s.ExtractAndRemove(ctx, []string{"10"})
	require.NoError(t, err)
	require.NoError(t, s.ReinsertOne(ctx, records[0]))

	behavioral, err := store.EdgeCount(ctx, graph.ItemNodeID("10"), true)
	require.NoError(t, err)
	assert.Zero(t, behavioral, "ground truth stays hidden until RestoreInteractions")
}

func TestExtractMissingItem(t *testing.T) {
	store, src := fixture(t)
	s := newSampler(store, src, 2)

	_, err := s.ExtractAndRemove(context.Background(), []string{"999"})
	assert.ErrorIs(t, err, graph.ErrNodeNotFound)
}
