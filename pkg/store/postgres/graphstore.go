package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/rook-mem/rook/pkg/memory"
	"github.com/rook-mem/rook/pkg/types"
)

// AddNode implements [memory.GraphStore].
func (s *Store) AddNode(ctx context.Context, node memory.GraphNode) error {
	const q = `
		INSERT INTO graph_nodes
		    (id, tenant, user_id, agent_id, session_id, name, node_type, embedding, properties, ref_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
		    name       = EXCLUDED.name,
		    node_type  = EXCLUDED.node_type,
		    embedding  = EXCLUDED.embedding,
		    properties = EXCLUDED.properties,
		    ref_count  = EXCLUDED.ref_count`

	properties, err := json.Marshal(node.Properties)
	if err != nil {
		return fmt.Errorf("postgres graphstore: add node: marshal properties: %w", err)
	}

	if _, err := s.pool.Exec(ctx, q,
		node.ID, node.Scope.Tenant, node.Scope.User, node.Scope.Agent, node.Scope.Session,
		node.Name, string(node.Type), pgvector.NewVector(node.Embedding), properties, node.RefCount,
	); err != nil {
		return fmt.Errorf("postgres graphstore: add node: %w", err)
	}
	return nil
}

// AddEdge implements [memory.GraphStore].
func (s *Store) AddEdge(ctx context.Context, edge memory.GraphEdge) error {
	const q = `
		INSERT INTO graph_edges
		    (id, tenant, user_id, agent_id, session_id, source_node_id, target_node_id,
		     relation_type, weight, provenance_memory_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
		    relation_type = EXCLUDED.relation_type,
		    weight        = EXCLUDED.weight`

	if _, err := s.pool.Exec(ctx, q,
		edge.ID, edge.Scope.Tenant, edge.Scope.User, edge.Scope.Agent, edge.Scope.Session,
		edge.SourceNodeID, edge.TargetNodeID, edge.RelationType, edge.Weight, edge.ProvenanceMemoryID,
	); err != nil {
		return fmt.Errorf("postgres graphstore: add edge: %w", err)
	}
	return nil
}

// FindSimilarNode implements [memory.GraphStore]. It restricts the
// candidate set to the given scope and node type, then returns the closest
// match by cosine similarity if it clears threshold.
func (s *Store) FindSimilarNode(ctx context.Context, scope types.Scope, name string, nodeType memory.NodeType, embedding []float32, threshold float64) (*memory.GraphNode, error) {
	const q = `
		SELECT id, tenant, user_id, agent_id, session_id, name, node_type, embedding, properties, ref_count,
		       1 - (embedding <=> $1) AS score
		FROM   graph_nodes
		WHERE  tenant = $2 AND user_id = $3 AND agent_id = $4 AND node_type = $5
		ORDER  BY embedding <=> $1
		LIMIT  1`

	row := s.pool.QueryRow(ctx, q, pgvector.NewVector(embedding), scope.Tenant, scope.User, scope.Agent, string(nodeType))

	node, score, err := scanGraphNodeWithScore(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres graphstore: find similar node: %w", err)
	}
	if score < threshold {
		return nil, nil
	}
	return node, nil
}

// GetNode implements [memory.GraphStore].
func (s *Store) GetNode(ctx context.Context, id string) (*memory.GraphNode, error) {
	const q = `
		SELECT id, tenant, user_id, agent_id, session_id, name, node_type, embedding, properties, ref_count
		FROM   graph_nodes
		WHERE  id = $1`

	row := s.pool.QueryRow(ctx, q, id)
	node, err := scanGraphNode(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("postgres graphstore: get node %q: %w", id, errNotFound)
		}
		return nil, fmt.Errorf("postgres graphstore: get node %q: %w", id, err)
	}
	return node, nil
}

// Neighbors implements [memory.GraphStore].
func (s *Store) Neighbors(ctx context.Context, id string) ([]memory.ScoredID, error) {
	const q = `
		SELECT target_node_id, weight
		FROM   graph_edges
		WHERE  source_node_id = $1`
	return s.scoredEdgeQuery(ctx, q, id, "neighbors")
}

// IncomingNeighbors implements [memory.GraphStore].
func (s *Store) IncomingNeighbors(ctx context.Context, id string) ([]memory.ScoredID, error) {
	const q = `
		SELECT source_node_id, weight
		FROM   graph_edges
		WHERE  target_node_id = $1`
	return s.scoredEdgeQuery(ctx, q, id, "incoming neighbors")
}

func (s *Store) scoredEdgeQuery(ctx context.Context, q, id, label string) ([]memory.ScoredID, error) {
	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("postgres graphstore: %s: %w", label, err)
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.ScoredID, error) {
		var sc memory.ScoredID
		if err := row.Scan(&sc.ID, &sc.Score); err != nil {
			return memory.ScoredID{}, err
		}
		return sc, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres graphstore: %s: scan rows: %w", label, err)
	}
	if results == nil {
		results = []memory.ScoredID{}
	}
	return results, nil
}

// DeleteByMemory implements [memory.GraphStore]. It removes every edge
// attributed to memoryID, then decrements the reference count of every node
// those edges touched and garbage-collects nodes left at zero.
func (s *Store) DeleteByMemory(ctx context.Context, memoryID string) error {
	const selectQ = `
		SELECT source_node_id, target_node_id
		FROM   graph_edges
		WHERE  provenance_memory_id = $1`

	rows, err := s.pool.Query(ctx, selectQ, memoryID)
	if err != nil {
		return fmt.Errorf("postgres graphstore: delete by memory %q: %w", memoryID, err)
	}

	touched := map[string]struct{}{}
	pairs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) ([2]string, error) {
		var src, dst string
		if err := row.Scan(&src, &dst); err != nil {
			return [2]string{}, err
		}
		return [2]string{src, dst}, nil
	})
	if err != nil {
		return fmt.Errorf("postgres graphstore: delete by memory %q: scan rows: %w", memoryID, err)
	}
	for _, p := range pairs {
		touched[p[0]] = struct{}{}
		touched[p[1]] = struct{}{}
	}

	if _, err := s.pool.Exec(ctx, `DELETE FROM graph_edges WHERE provenance_memory_id = $1`, memoryID); err != nil {
		return fmt.Errorf("postgres graphstore: delete by memory %q: delete edges: %w", memoryID, err)
	}

	for nodeID := range touched {
		const decQ = `
			UPDATE graph_nodes SET ref_count = GREATEST(ref_count - 1, 0)
			WHERE id = $1
			RETURNING ref_count`
		var refCount int
		if err := s.pool.QueryRow(ctx, decQ, nodeID).Scan(&refCount); err != nil {
			if err == pgx.ErrNoRows {
				continue
			}
			return fmt.Errorf("postgres graphstore: delete by memory %q: decrement node %q: %w", memoryID, nodeID, err)
		}
		if refCount == 0 {
			if _, err := s.pool.Exec(ctx, `DELETE FROM graph_nodes WHERE id = $1`, nodeID); err != nil {
				return fmt.Errorf("postgres graphstore: delete by memory %q: gc node %q: %w", memoryID, nodeID, err)
			}
		}
	}
	return nil
}

func scanGraphNode(row pgx.Row) (*memory.GraphNode, error) {
	var (
		node       memory.GraphNode
		nodeType   string
		vec        pgvector.Vector
		properties []byte
	)
	if err := row.Scan(
		&node.ID, &node.Scope.Tenant, &node.Scope.User, &node.Scope.Agent, &node.Scope.Session,
		&node.Name, &nodeType, &vec, &properties, &node.RefCount,
	); err != nil {
		return nil, err
	}
	node.Type = memory.NodeType(nodeType)
	node.Embedding = vec.Slice()
	if err := json.Unmarshal(properties, &node.Properties); err != nil {
		return nil, fmt.Errorf("unmarshal properties: %w", err)
	}
	return &node, nil
}

func scanGraphNodeWithScore(row pgx.Row) (*memory.GraphNode, float64, error) {
	var (
		node       memory.GraphNode
		nodeType   string
		vec        pgvector.Vector
		properties []byte
		score      float64
	)
	if err := row.Scan(
		&node.ID, &node.Scope.Tenant, &node.Scope.User, &node.Scope.Agent, &node.Scope.Session,
		&node.Name, &nodeType, &vec, &properties, &node.RefCount, &score,
	); err != nil {
		return nil, 0, err
	}
	node.Type = memory.NodeType(nodeType)
	node.Embedding = vec.Slice()
	if err := json.Unmarshal(properties, &node.Properties); err != nil {
		return nil, 0, fmt.Errorf("unmarshal properties: %w", err)
	}
	return &node, score, nil
}
