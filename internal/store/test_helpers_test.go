package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/paneldiff/paneldiff/internal/panel"
)

// createTestStore creates a file-backed store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedRow writes every cell of one row.
func seedRow(t *testing.T, s *Store, sessionID, panelID string, rowIdx int, row panel.Row) {
	t.Helper()
	for k, v := range row {
		if err := s.UpsertCell(context.Background(), sessionID, panelID, rowIdx, k, v); err != nil {
			t.Fatalf("UpsertCell(%q) failed: %v", k, err)
		}
	}
}
