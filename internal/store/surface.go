package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// LoadFingerprint returns the persisted fingerprint for a surface, or ""
// when none was ever saved. Absence is not an error; an empty fingerprint
// simply never equals a computed one, so the next pass rebuilds.
func (s *Store) LoadFingerprint(ctx context.Context, surfaceID string) (string, error) {
	var fp string
	err := s.db.QueryRowContext(ctx, `
		SELECT fingerprint FROM surface_state WHERE surface_id = ?
	`, surfaceID).Scan(&fp)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load fingerprint: %w", err)
	}
	return fp, nil
}

// SaveFingerprint persists the fingerprint for a surface, replacing any
// previous value.
func (s *Store) SaveFingerprint(ctx context.Context, surfaceID, fingerprint string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO surface_state (surface_id, fingerprint, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(surface_id)
		DO UPDATE SET fingerprint = excluded.fingerprint, updated_at = excluded.updated_at
	`, surfaceID, fingerprint, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save fingerprint: %w", err)
	}
	return nil
}

// DeleteFingerprint forgets a surface. The next reconcile pass against it
// decides rebuild.
func (s *Store) DeleteFingerprint(ctx context.Context, surfaceID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM surface_state WHERE surface_id = ?
	`, surfaceID)
	if err != nil {
		return fmt.Errorf("delete fingerprint: %w", err)
	}
	return nil
}
