package memory

import (
	"context"

	"github.com/rook-mem/rook/pkg/types"
)

// ScoredID pairs a store-assigned id with a similarity or relevance score.
// Higher is always more relevant, regardless of the underlying distance
// metric a store uses internally.
type ScoredID struct {
	ID    string
	Score float64
}

// VectorStore is the capability interface over a pluggable vector
// database. The core never assumes a specific backend; pkg/store/postgres
// provides a pgvector-backed reference implementation and pkg/memory/mock
// provides an in-memory one for tests.
type VectorStore interface {
	// Insert persists new memories (with their embeddings already set).
	Insert(ctx context.Context, items []Memory) error

	// Search returns up to limit non-deleted memories matching filter,
	// nearest to vector by cosine similarity, highest score first.
	Search(ctx context.Context, vector []float32, limit int, filter Filter) ([]ScoredID, error)

	// Get fetches a single memory by id, including soft-deleted records
	// (callers that need to exclude them apply IsDeleted() themselves).
	Get(ctx context.Context, id string) (*Memory, error)

	// Update replaces the stored record for id with item in its entirety.
	// Callers are responsible for version/CAS semantics (internal/engine).
	Update(ctx context.Context, id string, item Memory) error

	// Delete permanently removes a record. Rook's own soft-delete path
	// uses Update with DeletedAt set; Delete is reserved for explicit
	// hard-delete requests.
	Delete(ctx context.Context, id string) error
}

// GraphStore is the capability interface over a pluggable graph database
// (component G).
type GraphStore interface {
	AddNode(ctx context.Context, node GraphNode) error
	AddEdge(ctx context.Context, edge GraphEdge) error

	// FindSimilarNode returns the best-matching existing node for a
	// candidate (name, type, embedding) triple, or nil if nothing clears
	// threshold. Used by the entity-merge step of component G.
	FindSimilarNode(ctx context.Context, scope types.Scope, name string, nodeType NodeType, embedding []float32, threshold float64) (*GraphNode, error)

	GetNode(ctx context.Context, id string) (*GraphNode, error)

	// Neighbors returns the nodes directly reachable by an outgoing edge
	// from id, paired with that edge's weight.
	Neighbors(ctx context.Context, id string) ([]ScoredID, error)

	// IncomingNeighbors returns the nodes with an outgoing edge into id.
	IncomingNeighbors(ctx context.Context, id string) ([]ScoredID, error)

	// DeleteByMemory cascades the removal of every edge whose provenance
	// is memoryID, then decrements and garbage-collects any node left
	// with a zero reference count.
	DeleteByMemory(ctx context.Context, memoryID string) error
}

// Reranker is an optional capability used by the Precise retrieval mode
// (component I, stage 8).
type Reranker interface {
	// Rerank scores docs against query and returns (index into docs,
	// score) pairs for up to topK results, highest score first.
	Rerank(ctx context.Context, query string, docs []string, topK int) ([]ScoredID, error)
}

// FullTextIndex is an optional capability backing the keyword stage of the
// hybrid retriever (component I, stage 3).
type FullTextIndex interface {
	Index(ctx context.Context, id string, tokens []string) error
	Query(ctx context.Context, tokens []string, limit int) ([]ScoredID, error)
}

// HistoryStore is the append-only version log capability (component B).
type HistoryStore interface {
	Append(ctx context.Context, record VersionRecord) error
	// History returns every VersionRecord for memoryID, oldest first.
	History(ctx context.Context, memoryID string) ([]VersionRecord, error)
}
