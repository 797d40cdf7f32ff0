package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rook-mem/rook/pkg/memory"
)

// Index implements [memory.FullTextIndex]. The keywords column already
// carries a GIN index (see schema.go); Index simply keeps that column in
// sync for ids that live outside the memories table's own Insert/Update
// path (e.g. graph-derived keyword sets).
func (s *Store) Index(ctx context.Context, id string, tokens []string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE memories SET keywords = $2 WHERE id = $1`, id, tokens)
	if err != nil {
		return fmt.Errorf("postgres fulltext: index %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres fulltext: index %q: %w", id, errNotFound)
	}
	return nil
}

// Query implements [memory.FullTextIndex]. It scores candidates by the
// count of overlapping tokens with the keywords column, highest overlap
// first.
func (s *Store) Query(ctx context.Context, tokens []string, limit int) ([]memory.ScoredID, error) {
	const q = `
		SELECT id, (SELECT count(*) FROM unnest(keywords) k WHERE k = ANY($1)) AS overlap
		FROM   memories
		WHERE  deleted_at IS NULL AND keywords && $1
		ORDER  BY overlap DESC
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, tokens, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres fulltext: query: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.ScoredID, error) {
		var (
			sc      memory.ScoredID
			overlap int
		)
		if err := row.Scan(&sc.ID, &overlap); err != nil {
			return memory.ScoredID{}, err
		}
		sc.Score = float64(overlap)
		return sc, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres fulltext: query: scan rows: %w", err)
	}
	if results == nil {
		results = []memory.ScoredID{}
	}
	return results, nil
}
