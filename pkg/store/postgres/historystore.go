package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/rook-mem/rook/pkg/memory"
)

// Append implements [memory.HistoryStore].
func (s *Store) Append(ctx context.Context, record memory.VersionRecord) error {
	const q = `
		INSERT INTO memory_history (memory_id, version, text, metadata, changed_at, actor)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (memory_id, version) DO UPDATE SET
		    text       = EXCLUDED.text,
		    metadata   = EXCLUDED.metadata,
		    changed_at = EXCLUDED.changed_at,
		    actor      = EXCLUDED.actor`

	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("postgres historystore: append: marshal metadata: %w", err)
	}

	if _, err := s.pool.Exec(ctx, q,
		record.MemoryID, record.Version, record.Text, metadata, record.ChangedAt, record.Actor,
	); err != nil {
		return fmt.Errorf("postgres historystore: append: %w", err)
	}
	return nil
}

// History implements [memory.HistoryStore].
func (s *Store) History(ctx context.Context, memoryID string) ([]memory.VersionRecord, error) {
	const q = `
		SELECT memory_id, version, text, metadata, changed_at, actor
		FROM   memory_history
		WHERE  memory_id = $1
		ORDER  BY version ASC`

	rows, err := s.pool.Query(ctx, q, memoryID)
	if err != nil {
		return nil, fmt.Errorf("postgres historystore: history %q: %w", memoryID, err)
	}

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (memory.VersionRecord, error) {
		var (
			rec      memory.VersionRecord
			metadata []byte
		)
		if err := row.Scan(&rec.MemoryID, &rec.Version, &rec.Text, &metadata, &rec.ChangedAt, &rec.Actor); err != nil {
			return memory.VersionRecord{}, err
		}
		if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
			return memory.VersionRecord{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
		return rec, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres historystore: history %q: scan rows: %w", memoryID, err)
	}
	if records == nil {
		records = []memory.VersionRecord{}
	}
	return records, nil
}
