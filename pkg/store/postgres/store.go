package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/rook-mem/rook/pkg/memory"
)

// Compile-time interface checks. Store implements every pluggable capability
// Rook's core is built against; adapters for other backends only need to
// cover the subset a deployment actually uses.
var (
	_ memory.VectorStore   = (*Store)(nil)
	_ memory.GraphStore    = (*Store)(nil)
	_ memory.FullTextIndex = (*Store)(nil)
	_ memory.HistoryStore  = (*Store)(nil)
)

// Store is the central PostgreSQL-backed store for Rook. It holds a single
// [pgxpool.Pool] and implements every capability interface the core depends
// on: vector search (via pgvector), the knowledge graph, keyword full-text
// search, and the append-only version history.
//
// All operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore establishes a connection pool to the PostgreSQL database at dsn,
// registers pgvector types on every connection, and runs [Migrate] to
// ensure all required tables and extensions exist.
//
// embeddingDimensions must match the output dimension of the embedding
// provider configured for the deployment (e.g. 1536 for OpenAI
// text-embedding-3-small). Changing this value after the first migration
// requires a manual schema change.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
