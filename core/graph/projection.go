package graph

import (
	"context"
	"fmt"
	"sort"
)

// Projection is a scoped, in-memory view of selected nodes and edges,
// handed to the embedding engine as its input. Edges are undirected for
// embedding purposes; each row appears once in its stored direction.
type Projection struct {
	Nodes []Node
	Edges []Edge
}

// FullProjection materializes the whole graph.
func (s *Store) FullProjection(ctx context.Context) (*Projection, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	proj := &Projection{}

	rows, err := db.QueryContext(ctx, `SELECT id, label, name FROM nodes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("project nodes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var n Node
		if err := rows.Scan(&n.ID, &n.Label, &n.Name); err != nil {
			return nil, err
		}
		proj.Nodes = append(proj.Nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	edges, err := s.allEdges(ctx)
	if err != nil {
		return nil, err
	}
	proj.Edges = edges
	return proj, nil
}

// SubgraphProjection materializes the neighborhood of root within hops
// undirected steps, including all edges between included nodes. The hop
// radius matches the iteration-weight length of the active hyperparameter
// combination so the item sees exactly the structure the embedding can use.
func (s *Store) SubgraphProjection(ctx context.Context, rootID string, hops int) (*Projection, error) {
	if _, err := s.GetNode(ctx, rootID); err != nil {
		return nil, err
	}

	included := map[string]bool{rootID: true}
	frontier := []string{rootID}
	for range hops {
		if len(frontier) == 0 {
			break
		}
		next, err := s.neighbors(ctx, frontier)
		if err != nil {
			return nil, err
		}
		frontier = frontier[:0]
		for _, id := range next {
			if !included[id] {
				included[id] = true
				frontier = append(frontier, id)
			}
		}
	}

	ids := make([]string, 0, len(included))
	for id := range included {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	proj := &Projection{}
	for _, id := range ids {
		node, err := s.GetNode(ctx, id)
		if err != nil {
			return nil, err
		}
		proj.Nodes = append(proj.Nodes, node)
	}

	edges, err := s.allEdges(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range edges {
		if included[e.SourceID] && included[e.TargetID] {
			proj.Edges = append(proj.Edges, e)
		}
	}
	return proj, nil
}

func (s *Store) neighbors(ctx context.Context, ids []string) ([]string, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, id := range ids {
		rows, err := db.QueryContext(ctx, `
			SELECT CASE WHEN source_id = ? THEN target_id ELSE source_id END
			FROM edges
			WHERE source_id = ? OR target_id = ?
		`, id, id, id)
		if err != nil {
			return nil, fmt.Errorf("neighbors of %s: %w", id, err)
		}
		for rows.Next() {
			var neighbor string
			if err := rows.Scan(&neighbor); err != nil {
				rows.Close()
				return nil, err
			}
			out = append(out, neighbor)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

func (s *Store) allEdges(ctx context.Context) ([]Edge, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT source_id, target_id, rel_type, behavioral
		FROM edges
		ORDER BY source_id, target_id, rel_type
	`)
	if err != nil {
		return nil, fmt.Errorf("project edges: %w", err)
	}
	defer rows.Close()

	var edges []Edge
	for rows.Next() {
		var e Edge
		var behavioral int
		if err := rows.Scan(&e.SourceID, &e.TargetID, &e.RelType, &behavioral); err != nil {
			return nil, err
		}
		e.Behavioral = behavioral == 1
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

// ItemNodeID composes the graph node id for a raw item identifier.
func ItemNodeID(raw string) string { return LabelItem + ":" + raw }

// UserNodeID composes the graph node id for a raw user identifier.
func UserNodeID(raw string) string { return LabelUser + ":" + raw }

// AttributeNodeID composes the graph node id for an attribute value node.
func AttributeNodeID(label, value string) string { return label + ":" + value }
