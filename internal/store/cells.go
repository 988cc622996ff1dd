package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/paneldiff/paneldiff/internal/panel"
)

// UpsertCell writes one cell value, stamping updated_at. Writing the value
// a cell already holds is harmless; the caller decides whether such writes
// are worth making at all.
func (s *Store) UpsertCell(ctx context.Context, sessionID, panelID string, rowIdx int, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cell_values
		(session_id, panel_id, row_idx, storage_key, value, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, panel_id, row_idx, storage_key)
		DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`,
		sessionID, panelID, rowIdx, key, value, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert cell: %w", err)
	}
	return nil
}

// GetPanelRows reads all stored rows of one panel in row order. Each row is
// the plain storage_key -> value map; row indices are dense so the slice
// position equals row_idx.
func (s *Store) GetPanelRows(ctx context.Context, sessionID, panelID string) ([]panel.Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT row_idx, storage_key, value
		FROM cell_values
		WHERE session_id = ? AND panel_id = ?
		ORDER BY row_idx, storage_key
	`, sessionID, panelID)
	if err != nil {
		return nil, fmt.Errorf("get panel rows: %w", err)
	}
	defer rows.Close()

	var out []panel.Row
	lastIdx := -1
	for rows.Next() {
		var idx int
		var key, value string
		if err := rows.Scan(&idx, &key, &value); err != nil {
			return nil, fmt.Errorf("get panel rows: scan: %w", err)
		}
		if idx != lastIdx {
			out = append(out, panel.Row{})
			lastIdx = idx
		}
		out[len(out)-1][key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get panel rows: %w", err)
	}
	return out, nil
}

// GetSessionSnapshot reads every panel's rows for one session.
func (s *Store) GetSessionSnapshot(ctx context.Context, sessionID string) (panel.Snapshot, error) {
	snap := panel.Snapshot{SessionID: sessionID, Rows: make(map[string][]panel.Row)}

	rows, err := s.db.QueryContext(ctx, `
		SELECT panel_id, row_idx, storage_key, value
		FROM cell_values
		WHERE session_id = ?
		ORDER BY panel_id, row_idx, storage_key
	`, sessionID)
	if err != nil {
		return snap, fmt.Errorf("get session snapshot: %w", err)
	}
	defer rows.Close()

	lastPanel := ""
	lastIdx := -1
	for rows.Next() {
		var panelID, key, value string
		var idx int
		if err := rows.Scan(&panelID, &idx, &key, &value); err != nil {
			return snap, fmt.Errorf("get session snapshot: scan: %w", err)
		}
		if panelID != lastPanel || idx != lastIdx {
			snap.Rows[panelID] = append(snap.Rows[panelID], panel.Row{})
			lastPanel, lastIdx = panelID, idx
		}
		rs := snap.Rows[panelID]
		rs[len(rs)-1][key] = value
	}
	if err := rows.Err(); err != nil {
		return snap, fmt.Errorf("get session snapshot: %w", err)
	}
	return snap, nil
}

// DeleteKeys removes the given storage keys from every row of a panel.
// Used when a field is deleted: its data goes before positions renumber.
func (s *Store) DeleteKeys(ctx context.Context, sessionID, panelID string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, 0, len(keys)+2)
	args = append(args, sessionID, panelID)
	for _, k := range keys {
		args = append(args, k)
	}
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM cell_values
		WHERE session_id = ? AND panel_id = ? AND storage_key IN (%s)
	`, placeholders), args...)
	if err != nil {
		return fmt.Errorf("delete keys: %w", err)
	}
	return nil
}

// DeleteRow removes one row of a multi-row panel and re-compacts the
// remaining indices so they stay dense. Higher rows shift down one at a
// time in ascending order; shifting any other way would collide with the
// primary key.
func (s *Store) DeleteRow(ctx context.Context, sessionID, panelID string, rowIdx int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete row: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM cell_values
		WHERE session_id = ? AND panel_id = ? AND row_idx = ?
	`, sessionID, panelID, rowIdx); err != nil {
		return fmt.Errorf("delete row: %w", err)
	}

	idxRows, err := tx.QueryContext(ctx, `
		SELECT DISTINCT row_idx FROM cell_values
		WHERE session_id = ? AND panel_id = ? AND row_idx > ?
		ORDER BY row_idx
	`, sessionID, panelID, rowIdx)
	if err != nil {
		return fmt.Errorf("delete row: list higher rows: %w", err)
	}
	var higher []int
	for idxRows.Next() {
		var idx int
		if err := idxRows.Scan(&idx); err != nil {
			idxRows.Close()
			return fmt.Errorf("delete row: scan: %w", err)
		}
		higher = append(higher, idx)
	}
	idxRows.Close()
	if err := idxRows.Err(); err != nil {
		return fmt.Errorf("delete row: %w", err)
	}

	for _, idx := range higher {
		if _, err := tx.ExecContext(ctx, `
			UPDATE cell_values SET row_idx = row_idx - 1
			WHERE session_id = ? AND panel_id = ? AND row_idx = ?
		`, sessionID, panelID, idx); err != nil {
			return fmt.Errorf("delete row: shift row %d: %w", idx, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete row: commit: %w", err)
	}
	return nil
}

// ApplyKeyRemap re-homes stored cell data after renumbering, atomically.
// Moves may form swaps (two fields trading positions), so renames stage
// through a NUL-prefixed temporary key that no real storage key can carry:
// first every Old key moves to its temporary, then every temporary lands on
// its New key. A stale occupant of a target key is dropped first; keeping
// it would violate the primary key mid-transaction.
func (s *Store) ApplyKeyRemap(ctx context.Context, sessionID, panelID string, moves []panel.KeyMove) error {
	if len(moves) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("apply key remap: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, m := range moves {
		if _, err := tx.ExecContext(ctx, `
			UPDATE cell_values SET storage_key = ?
			WHERE session_id = ? AND panel_id = ? AND storage_key = ?
		`, tempKey(m.New), sessionID, panelID, m.Old); err != nil {
			return fmt.Errorf("apply key remap: stage %q: %w", m.Old, err)
		}
	}

	for _, m := range moves {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM cell_values
			WHERE session_id = ? AND panel_id = ? AND storage_key = ?
		`, sessionID, panelID, m.New); err != nil {
			return fmt.Errorf("apply key remap: clear %q: %w", m.New, err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE cell_values SET storage_key = ?
			WHERE session_id = ? AND panel_id = ? AND storage_key = ?
		`, m.New, sessionID, panelID, tempKey(m.New)); err != nil {
			return fmt.Errorf("apply key remap: land %q: %w", m.New, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("apply key remap: commit: %w", err)
	}
	return nil
}

func tempKey(k string) string {
	return "\x00" + k
}
