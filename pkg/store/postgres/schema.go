// Package postgres provides a PostgreSQL-backed reference implementation of
// Rook's pluggable capability interfaces: [memory.VectorStore],
// [memory.GraphStore], [memory.FullTextIndex], and [memory.HistoryStore].
//
// All four capabilities share a single [pgxpool.Pool]. The pgvector
// extension must be available in the target database; [Migrate] installs it
// automatically via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 1536)
//	if err != nil { … }
//	defer store.Close()
//
//	vectors := store // implements memory.VectorStore
//	graph := store    // implements memory.GraphStore
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlMemories = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS memories (
    id              TEXT         PRIMARY KEY,
    tenant          TEXT         NOT NULL DEFAULT '',
    user_id         TEXT         NOT NULL,
    agent_id        TEXT         NOT NULL,
    session_id      TEXT         NOT NULL DEFAULT '',
    version         INT          NOT NULL DEFAULT 1,
    created_at      TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ  NOT NULL DEFAULT now(),
    accessed_at     TIMESTAMPTZ  NOT NULL DEFAULT now(),
    access_count    INT          NOT NULL DEFAULT 0,
    deleted_at      TIMESTAMPTZ,
    delete_reason   TEXT         NOT NULL DEFAULT '',
    text            TEXT         NOT NULL,
    embedding       vector(%d),
    keywords        TEXT[]       NOT NULL DEFAULT '{}',
    modality        TEXT         NOT NULL DEFAULT 'text',
    categories      TEXT[]       NOT NULL DEFAULT '{}',
    is_key          BOOLEAN      NOT NULL DEFAULT false,
    provenance      JSONB        NOT NULL DEFAULT '{}',
    strength        JSONB        NOT NULL DEFAULT '{}',
    consolidation   JSONB        NOT NULL DEFAULT '{}',
    relations       JSONB        NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_memories_scope
    ON memories (tenant, user_id, agent_id, session_id);

CREATE INDEX IF NOT EXISTS idx_memories_embedding
    ON memories USING hnsw (embedding vector_cosine_ops);

CREATE INDEX IF NOT EXISTS idx_memories_keywords_fts
    ON memories USING GIN (keywords);
`

const ddlGraph = `
CREATE TABLE IF NOT EXISTS graph_nodes (
    id          TEXT         PRIMARY KEY,
    tenant      TEXT         NOT NULL DEFAULT '',
    user_id     TEXT         NOT NULL,
    agent_id    TEXT         NOT NULL,
    session_id  TEXT         NOT NULL DEFAULT '',
    name        TEXT         NOT NULL,
    node_type   TEXT         NOT NULL,
    embedding   vector(%d),
    properties  JSONB        NOT NULL DEFAULT '{}',
    ref_count   INT          NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_graph_nodes_scope
    ON graph_nodes (tenant, user_id, agent_id, session_id);

CREATE INDEX IF NOT EXISTS idx_graph_nodes_embedding
    ON graph_nodes USING hnsw (embedding vector_cosine_ops);

CREATE TABLE IF NOT EXISTS graph_edges (
    id                   TEXT    PRIMARY KEY,
    tenant               TEXT    NOT NULL DEFAULT '',
    user_id              TEXT    NOT NULL,
    agent_id             TEXT    NOT NULL,
    session_id           TEXT    NOT NULL DEFAULT '',
    source_node_id       TEXT    NOT NULL REFERENCES graph_nodes (id) ON DELETE CASCADE,
    target_node_id       TEXT    NOT NULL REFERENCES graph_nodes (id) ON DELETE CASCADE,
    relation_type        TEXT    NOT NULL,
    weight               DOUBLE PRECISION NOT NULL DEFAULT 1.0,
    provenance_memory_id TEXT    NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_graph_edges_source ON graph_edges (source_node_id);
CREATE INDEX IF NOT EXISTS idx_graph_edges_target ON graph_edges (target_node_id);
CREATE INDEX IF NOT EXISTS idx_graph_edges_provenance ON graph_edges (provenance_memory_id);
`

const ddlHistory = `
CREATE TABLE IF NOT EXISTS memory_history (
    memory_id   TEXT         NOT NULL,
    version     INT          NOT NULL,
    text        TEXT         NOT NULL,
    metadata    JSONB        NOT NULL DEFAULT '{}',
    changed_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    actor       TEXT         NOT NULL DEFAULT '',
    PRIMARY KEY (memory_id, version)
);
`

// ddlVectorSchema returns the memories and graph_nodes DDL with the embedding
// dimension substituted. The vector dimension is baked into the column type
// at schema creation time.
func ddlVectorSchema(embeddingDimensions int) []string {
	return []string{
		fmt.Sprintf(ddlMemories, embeddingDimensions),
		fmt.Sprintf(ddlGraph, embeddingDimensions),
		ddlHistory,
	}
}

// Migrate creates or ensures all required database tables, indexes, and
// extensions exist. It is idempotent and safe to call on every application
// start.
//
// embeddingDimensions must match the vector model configured for the
// deployment (e.g. 1536 for OpenAI text-embedding-3-small). Changing this
// value after the first migration requires a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	for _, stmt := range ddlVectorSchema(embeddingDimensions) {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
