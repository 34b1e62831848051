// Package ingest loads the MovieLens-style CSV datasets into the graph
// store. Every write is an idempotent merge, so re-running ingestion over
// an existing graph is safe.
//
// Expected files:
//
//	items.csv         itemId,title,releaseDate,genres   (genres pipe-separated)
//	users.csv         userId,age,gender,occupation,zipcode
//	interactions.csv  userId,itemId
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/adalundhe/coldrank/core/graph"
	"github.com/adalundhe/coldrank/core/groundtruth"
)

// Relationship types produced by ingestion.
const (
	RelHasGenre      = "HAS_GENRE"
	RelReleased      = "RELEASED"
	RelHasAge        = "HAS_AGE"
	RelHasGender     = "HAS_GENDER"
	RelHasOccupation = "HAS_OCCUPATION"
	RelResides       = "RESIDES"
)

// Loader writes CSV datasets into the graph store.
type Loader struct {
	store *graph.Store
	log   *slog.Logger
}

// NewLoader builds a loader over the store.
func NewLoader(store *graph.Store, log *slog.Logger) *Loader {
	if log == nil {
		log = slog.Default()
	}
	return &Loader{store: store, log: log}
}

// LoadItems ingests item nodes and their attribute edges.
func (l *Loader) LoadItems(ctx context.Context, path string) (int, error) {
	count := 0
	err := forEachRow(path, 4, func(row []string) error {
		itemID, title, release, genres := row[0], row[1], row[2], row[3]
		nodeID := graph.ItemNodeID(itemID)
		if err := l.store.MergeNode(ctx, graph.Node{ID: nodeID, Label: graph.LabelItem, Name: title}); err != nil {
			return err
		}
		if release != "" {
			if err := l.mergeAttribute(ctx, nodeID, RelReleased, "release", release); err != nil {
				return err
			}
		}
		for _, genre := range splitPipe(genres) {
			if err := l.mergeAttribute(ctx, nodeID, RelHasGenre, "genre", genre); err != nil {
				return err
			}
		}
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("load items: %w", err)
	}
	l.log.Info("loaded items", "count", count, "path", path)
	return count, nil
}

// LoadUsers ingests user nodes and their demographic attribute edges.
func (l *Loader) LoadUsers(ctx context.Context, path string) (int, error) {
	attrs := []struct {
		rel   string
		label string
		col   int
	}{
		{RelHasAge, "age", 1},
		{RelHasGender, "gender", 2},
		{RelHasOccupation, "occupation", 3},
		{RelResides, "zipcode", 4},
	}

	count := 0
	err := forEachRow(path, 5, func(row []string) error {
		userID := row[0]
		nodeID := graph.UserNodeID(userID)
		if err := l.store.MergeNode(ctx, graph.Node{ID: nodeID, Label: graph.LabelUser, Name: userID}); err != nil {
			return err
		}
		for _, a := range attrs {
			if row[a.col] == "" {
				continue
			}
			if err := l.mergeAttribute(ctx, nodeID, a.rel, a.label, row[a.col]); err != nil {
				return err
			}
		}
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("load users: %w", err)
	}
	l.log.Info("loaded users", "count", count, "path", path)
	return count, nil
}

// LoadInteractions ingests the behavioral user-item edges from the same
// file the evaluator later scores against.
func (l *Loader) LoadInteractions(ctx context.Context, src *groundtruth.Source) (int, error) {
	count := 0
	err := forEachRow(src.Path(), 2, func(row []string) error {
		edge := graph.Edge{
			SourceID:   graph.UserNodeID(row[0]),
			TargetID:   graph.ItemNodeID(row[1]),
			RelType:    graph.RelInteracted,
			Behavioral: true,
		}
		if err := l.store.MergeEdge(ctx, edge); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("load interactions: %w", err)
	}
	l.log.Info("loaded interactions", "count", count, "path", src.Path())
	return count, nil
}

func (l *Loader) mergeAttribute(ctx context.Context, sourceID, relType, label, value string) error {
	attrID := graph.AttributeNodeID(label, value)
	if err := l.store.MergeNode(ctx, graph.Node{ID: attrID, Label: label, Name: value}); err != nil {
		return err
	}
	return l.store.MergeEdge(ctx, graph.Edge{SourceID: sourceID, TargetID: attrID, RelType: relType})
}

func forEachRow(path string, fields int, visit func([]string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = fields
	if _, err := r.Read(); err != nil { // header
		if err == io.EOF {
			return nil
		}
		return err
	}
	for {
		row, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := visit(row); err != nil {
			return err
		}
	}
}

func splitPipe(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, "|") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
