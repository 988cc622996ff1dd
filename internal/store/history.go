package store

import (
	"context"
	"fmt"
	"time"

	"github.com/paneldiff/paneldiff/internal/history"
)

// AppendHistory inserts one journal entry. The autoincrement id gives
// entries their order within a composite key.
func (s *Store) AppendHistory(ctx context.Context, rec history.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO history
		(composite_key, old_value, new_value, origin, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		rec.CompositeKey,
		rec.OldValue,
		rec.NewValue,
		string(rec.Origin),
		rec.Note,
		rec.At.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// ReadHistory returns all entries for a composite key in append order.
func (s *Store) ReadHistory(ctx context.Context, compositeKey string) ([]history.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, composite_key, old_value, new_value, origin, note, created_at
		FROM history
		WHERE composite_key = ?
		ORDER BY id
	`, compositeKey)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	defer rows.Close()

	var out []history.Record
	for rows.Next() {
		var rec history.Record
		var origin string
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.CompositeKey, &rec.OldValue, &rec.NewValue, &origin, &rec.Note, &createdAt); err != nil {
			return nil, fmt.Errorf("read history: scan: %w", err)
		}
		rec.Origin = history.Origin(origin)
		rec.At = time.Unix(0, createdAt).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return out, nil
}

// PruneHistory drops all entries for a composite key.
func (s *Store) PruneHistory(ctx context.Context, compositeKey string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM history WHERE composite_key = ?
	`, compositeKey)
	if err != nil {
		return fmt.Errorf("prune history: %w", err)
	}
	return nil
}
