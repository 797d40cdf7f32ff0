package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/rook-mem/rook/pkg/memory"
)

// Insert implements [memory.VectorStore]. Each item is inserted as a new row;
// callers that need upsert semantics use Update after a prior Get.
func (s *Store) Insert(ctx context.Context, items []memory.Memory) error {
	const q = `
		INSERT INTO memories
		    (id, tenant, user_id, agent_id, session_id, version,
		     created_at, updated_at, accessed_at, access_count,
		     deleted_at, delete_reason, text, embedding, keywords,
		     modality, categories, is_key, provenance, strength,
		     consolidation, relations)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		        $16, $17, $18, $19, $20, $21, $22)`

	for _, m := range items {
		row, err := marshalMemoryRow(m)
		if err != nil {
			return fmt.Errorf("postgres vectorstore: insert: %w", err)
		}
		if _, err := s.pool.Exec(ctx, q,
			m.ID, m.Scope.Tenant, m.Scope.User, m.Scope.Agent, m.Scope.Session, m.Version,
			m.CreatedAt, m.UpdatedAt, m.AccessedAt, m.AccessCount,
			nullTime(m.DeletedAt), m.DeleteReason, m.Text, pgvector.NewVector(m.Embedding), m.Keywords,
			string(m.Modality), row.categories, m.IsKey, row.provenance, row.strength,
			row.consolidation, row.relations,
		); err != nil {
			return fmt.Errorf("postgres vectorstore: insert: %w", err)
		}
	}
	return nil
}

// Search implements [memory.VectorStore].
func (s *Store) Search(ctx context.Context, vector []float32, limit int, filter memory.Filter) ([]memory.ScoredID, error) {
	args := &filterArgs{values: []any{pgvector.NewVector(vector)}}

	where, err := translateFilter(filter, args)
	if err != nil {
		return nil, fmt.Errorf("postgres vectorstore: search: %w", err)
	}

	args.values = append(args.values, limit)
	limitArg := fmt.Sprintf("$%d", len(args.values))

	q := fmt.Sprintf(`
		SELECT id, 1 - (embedding <=> $1) AS score
		FROM   memories
		WHERE  deleted_at IS NULL AND (%s)
		ORDER  BY embedding <=> $1
		LIMIT  %s`, where, limitArg)

	rows, err := s.pool.Query(ctx, q, args.values...)
	if err != nil {
		return nil, fmt.Errorf("postgres vectorstore: search: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.ScoredID, error) {
		var sc memory.ScoredID
		if err := row.Scan(&sc.ID, &sc.Score); err != nil {
			return memory.ScoredID{}, err
		}
		return sc, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres vectorstore: search: scan rows: %w", err)
	}
	if results == nil {
		results = []memory.ScoredID{}
	}
	return results, nil
}

// Get implements [memory.VectorStore].
func (s *Store) Get(ctx context.Context, id string) (*memory.Memory, error) {
	const q = `
		SELECT id, tenant, user_id, agent_id, session_id, version,
		       created_at, updated_at, accessed_at, access_count,
		       deleted_at, delete_reason, text, embedding, keywords,
		       modality, categories, is_key, provenance, strength,
		       consolidation, relations
		FROM   memories
		WHERE  id = $1`

	row := s.pool.QueryRow(ctx, q, id)
	m, err := scanMemory(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("postgres vectorstore: get %q: %w", id, errNotFound)
		}
		return nil, fmt.Errorf("postgres vectorstore: get %q: %w", id, err)
	}
	return m, nil
}

// Update implements [memory.VectorStore].
func (s *Store) Update(ctx context.Context, id string, item memory.Memory) error {
	const q = `
		UPDATE memories SET
		    tenant = $2, user_id = $3, agent_id = $4, session_id = $5, version = $6,
		    created_at = $7, updated_at = $8, accessed_at = $9, access_count = $10,
		    deleted_at = $11, delete_reason = $12, text = $13, embedding = $14, keywords = $15,
		    modality = $16, categories = $17, is_key = $18, provenance = $19, strength = $20,
		    consolidation = $21, relations = $22
		WHERE id = $1`

	row, err := marshalMemoryRow(item)
	if err != nil {
		return fmt.Errorf("postgres vectorstore: update %q: %w", id, err)
	}

	tag, err := s.pool.Exec(ctx, q,
		id, item.Scope.Tenant, item.Scope.User, item.Scope.Agent, item.Scope.Session, item.Version,
		item.CreatedAt, item.UpdatedAt, item.AccessedAt, item.AccessCount,
		nullTime(item.DeletedAt), item.DeleteReason, item.Text, pgvector.NewVector(item.Embedding), item.Keywords,
		string(item.Modality), row.categories, item.IsKey, row.provenance, row.strength,
		row.consolidation, row.relations,
	)
	if err != nil {
		return fmt.Errorf("postgres vectorstore: update %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres vectorstore: update %q: %w", id, errNotFound)
	}
	return nil
}

// Delete implements [memory.VectorStore].
func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM memories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres vectorstore: delete %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres vectorstore: delete %q: %w", id, errNotFound)
	}
	return nil
}

// memoryRow holds the JSON/array-encoded columns of a memories row, kept
// separate from the struct fields that map to scalar columns directly.
type memoryRow struct {
	categories    []string
	provenance    []byte
	strength      []byte
	consolidation []byte
	relations     []byte
}

func marshalMemoryRow(m memory.Memory) (memoryRow, error) {
	categories := make([]string, len(m.Categories))
	for i, c := range m.Categories {
		categories[i] = string(c)
	}

	provenance, err := json.Marshal(m.Provenance)
	if err != nil {
		return memoryRow{}, fmt.Errorf("marshal provenance: %w", err)
	}
	strength, err := json.Marshal(m.Strength)
	if err != nil {
		return memoryRow{}, fmt.Errorf("marshal strength: %w", err)
	}
	consolidation, err := json.Marshal(m.Consolidation)
	if err != nil {
		return memoryRow{}, fmt.Errorf("marshal consolidation: %w", err)
	}
	relations, err := json.Marshal(m.Relations)
	if err != nil {
		return memoryRow{}, fmt.Errorf("marshal relations: %w", err)
	}

	return memoryRow{
		categories:    categories,
		provenance:    provenance,
		strength:      strength,
		consolidation: consolidation,
		relations:     relations,
	}, nil
}

// scanMemory scans a single memories row into a [memory.Memory]. row must
// have been produced by a query selecting the exact column order used
// throughout this file.
func scanMemory(row pgx.Row) (*memory.Memory, error) {
	var (
		m             memory.Memory
		deletedAt     *time.Time
		vec           pgvector.Vector
		modality      string
		categories    []string
		provenance    []byte
		strength      []byte
		consolidation []byte
		relations     []byte
	)

	if err := row.Scan(
		&m.ID, &m.Scope.Tenant, &m.Scope.User, &m.Scope.Agent, &m.Scope.Session, &m.Version,
		&m.CreatedAt, &m.UpdatedAt, &m.AccessedAt, &m.AccessCount,
		&deletedAt, &m.DeleteReason, &m.Text, &vec, &m.Keywords,
		&modality, &categories, &m.IsKey, &provenance, &strength,
		&consolidation, &relations,
	); err != nil {
		return nil, err
	}

	m.Embedding = vec.Slice()
	m.Modality = memory.Modality(modality)
	if deletedAt != nil {
		m.DeletedAt = *deletedAt
	}

	m.Categories = make([]memory.Category, len(categories))
	for i, c := range categories {
		m.Categories[i] = memory.Category(c)
	}

	if err := json.Unmarshal(provenance, &m.Provenance); err != nil {
		return nil, fmt.Errorf("unmarshal provenance: %w", err)
	}
	if err := json.Unmarshal(strength, &m.Strength); err != nil {
		return nil, fmt.Errorf("unmarshal strength: %w", err)
	}
	if err := json.Unmarshal(consolidation, &m.Consolidation); err != nil {
		return nil, fmt.Errorf("unmarshal consolidation: %w", err)
	}
	if err := json.Unmarshal(relations, &m.Relations); err != nil {
		return nil, fmt.Errorf("unmarshal relations: %w", err)
	}

	return &m, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
