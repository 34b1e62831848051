// Package graph provides the SQLite-backed knowledge graph the evaluation
// harness mutates and restores. It exposes exactly the operation categories
// the harness needs: counting/sampling nodes by label and minimum
// relationship count, detach-deleting nodes, merging nodes and edges
// idempotently by key, and parameterized reads for projections.
package graph

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Node labels with fixed meaning to the harness. Attribute nodes use
// free-form labels (genre, release, age, ...).
const (
	LabelItem = "item"
	LabelUser = "user"
)

// RelInteracted is the behavioral user-item relationship type.
const RelInteracted = "INTERACTED"

var (
	ErrNodeNotFound = errors.New("node not found")
	ErrClosed       = errors.New("graph store closed")
)

// Node is one graph node. ID is globally unique; by convention prefixed
// with the label (item:10, user:1, genre:Action).
type Node struct {
	ID    string
	Label string
	Name  string
}

// Edge is one typed relationship. Behavioral edges carry interaction ground
// truth; attribute edges carry everything else.
type Edge struct {
	SourceID   string
	TargetID   string
	RelType    string
	Behavioral bool
}

// Stats is a node/edge census used to verify hold-out/restore round trips.
type Stats struct {
	Nodes int64
	Edges int64
}

// Store wraps the SQLite database holding the graph.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the graph database at path and applies
// the schema. Use ":memory:" for an ephemeral graph.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open graph db: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply graph schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close releases the underlying database. Closing twice returns ErrClosed.
func (s *Store) Close() error {
	if s.db == nil {
		return ErrClosed
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Path returns the database location the store was opened with.
func (s *Store) Path() string { return s.path }

// conn returns the live database handle, or ErrClosed after Close.
func (s *Store) conn() (*sql.DB, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	return s.db, nil
}

// MergeNode inserts the node if its id is absent. The display name is set
// only on creation, so re-merging an existing node never rewrites it.
func (s *Store) MergeNode(ctx context.Context, node Node) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO nodes (id, label, name, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, node.ID, node.Label, node.Name, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("merge node %s: %w", node.ID, err)
	}
	return nil
}

// MergeEdge inserts the edge if its (source, target, type) key is absent.
// Merging the same edge twice never duplicates it.
func (s *Store) MergeEdge(ctx context.Context, edge Edge) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO edges (source_id, target_id, rel_type, behavioral, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source_id, target_id, rel_type) DO NOTHING
	`, edge.SourceID, edge.TargetID, edge.RelType, boolToInt(edge.Behavioral),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("merge edge %s-[%s]->%s: %w", edge.SourceID, edge.RelType, edge.TargetID, err)
	}
	return nil
}

// GetNode fetches one node by id.
func (s *Store) GetNode(ctx context.Context, id string) (Node, error) {
	db, err := s.conn()
	if err != nil {
		return Node{}, err
	}
	var node Node
	err = db.QueryRowContext(ctx,
		`SELECT id, label, name FROM nodes WHERE id = ?`, id,
	).Scan(&node.ID, &node.Label, &node.Name)
	if err == sql.ErrNoRows {
		return Node{}, fmt.Errorf("node %s: %w", id, ErrNodeNotFound)
	}
	if err != nil {
		return Node{}, fmt.Errorf("get node %s: %w", id, err)
	}
	return node, nil
}

// DetachDelete removes the node and every edge touching it, in one
// transaction per id. It returns the number of ids fully deleted; on error
// that count tells the caller how far the deletion got.
func (s *Store) DetachDelete(ctx context.Context, ids []string) (int, error) {
	for i, id := range ids {
		if err := s.detachDeleteOne(ctx, id); err != nil {
			return i, err
		}
	}
	return len(ids), nil
}

func (s *Store) detachDeleteOne(ctx context.Context, id string) error {
	db, err := s.conn()
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM edges WHERE source_id = ? OR target_id = ?`, id, id); err != nil {
		return fmt.Errorf("delete edges of %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete node %s: %w", id, err)
	}
	return tx.Commit()
}

// NodesWithMinRelationships returns ids of nodes with the given label having
// at least minCount relationships of the requested kind, in stable id order.
func (s *Store) NodesWithMinRelationships(ctx context.Context, label string, behavioral bool, minCount int) ([]string, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT n.id
		FROM nodes n
		JOIN edges e ON (e.source_id = n.id OR e.target_id = n.id) AND e.behavioral = ?
		WHERE n.label = ?
		GROUP BY n.id
		HAVING COUNT(*) >= ?
		ORDER BY n.id
	`, boolToInt(behavioral), label, minCount)
	if err != nil {
		return nil, fmt.Errorf("count nodes by label %s: %w", label, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// OutwardAttributes returns the non-behavioral outward relationships of a
// node: relationship type, target node label, and target display value.
func (s *Store) OutwardAttributes(ctx context.Context, id string) ([]Edge, []Node, error) {
	db, err := s.conn()
	if err != nil {
		return nil, nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT e.rel_type, t.id, t.label, t.name
		FROM edges e
		JOIN nodes t ON t.id = e.target_id
		WHERE e.source_id = ? AND e.behavioral = 0
		ORDER BY e.rel_type, t.id
	`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("attributes of %s: %w", id, err)
	}
	defer rows.Close()

	var edges []Edge
	var targets []Node
	for rows.Next() {
		var relType string
		var target Node
		if err := rows.Scan(&relType, &target.ID, &target.Label, &target.Name); err != nil {
			return nil, nil, err
		}
		edges = append(edges, Edge{SourceID: id, TargetID: target.ID, RelType: relType})
		targets = append(targets, target)
	}
	return edges, targets, rows.Err()
}

// EdgeCount returns the number of edges touching the node, optionally
// restricted to behavioral ones.
func (s *Store) EdgeCount(ctx context.Context, id string, behavioralOnly bool) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	query := `SELECT COUNT(*) FROM edges WHERE (source_id = ? OR target_id = ?)`
	if behavioralOnly {
		query += ` AND behavioral = 1`
	}
	var n int64
	if err := db.QueryRowContext(ctx, query, id, id).Scan(&n); err != nil {
		return 0, fmt.Errorf("edge count of %s: %w", id, err)
	}
	return n, nil
}

// Counts returns the node and edge census of the whole graph.
func (s *Store) Counts(ctx context.Context) (Stats, error) {
	db, err := s.conn()
	if err != nil {
		return Stats{}, err
	}
	var stats Stats
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes`).Scan(&stats.Nodes); err != nil {
		return Stats{}, fmt.Errorf("count nodes: %w", err)
	}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM edges`).Scan(&stats.Edges); err != nil {
		return Stats{}, fmt.Errorf("count edges: %w", err)
	}
	return stats, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
