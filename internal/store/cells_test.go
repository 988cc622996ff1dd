package store

import (
	"context"
	"testing"

	"github.com/paneldiff/paneldiff/internal/panel"
)

func TestUpsertCell_InsertThenUpdate(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.UpsertCell(ctx, "default", "character", 0, "col_1", "Alice"); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := s.UpsertCell(ctx, "default", "character", 0, "col_1", "Bob"); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	rows, err := s.GetPanelRows(ctx, "default", "character")
	if err != nil {
		t.Fatalf("GetPanelRows() failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0]["col_1"] != "Bob" {
		t.Errorf("col_1 = %q, want %q", rows[0]["col_1"], "Bob")
	}
}

func TestGetPanelRows_GroupsByRow(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seedRow(t, s, "default", "inventory", 0, panel.Row{"col_1": "sword", "col_2": "1"})
	seedRow(t, s, "default", "inventory", 1, panel.Row{"col_1": "potion", "col_2": "3"})

	rows, err := s.GetPanelRows(ctx, "default", "inventory")
	if err != nil {
		t.Fatalf("GetPanelRows() failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0]["col_1"] != "sword" || rows[1]["col_1"] != "potion" {
		t.Errorf("rows out of order: %v", rows)
	}
}

func TestGetPanelRows_Empty(t *testing.T) {
	s := createTestStore(t)

	rows, err := s.GetPanelRows(context.Background(), "default", "missing")
	if err != nil {
		t.Fatalf("GetPanelRows() failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("got %d rows, want 0", len(rows))
	}
}

func TestGetSessionSnapshot(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seedRow(t, s, "default", "character", 0, panel.Row{"col_1": "Alice"})
	seedRow(t, s, "default", "inventory", 0, panel.Row{"col_1": "sword"})
	seedRow(t, s, "default", "inventory", 1, panel.Row{"col_1": "potion"})
	// Other sessions stay invisible.
	seedRow(t, s, "alt", "character", 0, panel.Row{"col_1": "Mallory"})

	snap, err := s.GetSessionSnapshot(ctx, "default")
	if err != nil {
		t.Fatalf("GetSessionSnapshot() failed: %v", err)
	}
	if snap.SessionID != "default" {
		t.Errorf("SessionID = %q, want %q", snap.SessionID, "default")
	}
	if len(snap.Rows) != 2 {
		t.Fatalf("got %d panels, want 2", len(snap.Rows))
	}
	if len(snap.Rows["inventory"]) != 2 {
		t.Errorf("inventory rows = %d, want 2", len(snap.Rows["inventory"]))
	}
	if snap.Rows["character"][0]["col_1"] != "Alice" {
		t.Errorf("unexpected character row: %v", snap.Rows["character"])
	}
}

func TestDeleteKeys_RemovesFromAllRows(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seedRow(t, s, "default", "inventory", 0, panel.Row{"col_1": "sword", "col_2": "1"})
	seedRow(t, s, "default", "inventory", 1, panel.Row{"col_1": "potion", "col_2": "3"})

	if err := s.DeleteKeys(ctx, "default", "inventory", "col_2", "col2", "2"); err != nil {
		t.Fatalf("DeleteKeys() failed: %v", err)
	}

	rows, err := s.GetPanelRows(ctx, "default", "inventory")
	if err != nil {
		t.Fatalf("GetPanelRows() failed: %v", err)
	}
	for i, row := range rows {
		if _, ok := row["col_2"]; ok {
			t.Errorf("row %d still has col_2", i)
		}
		if _, ok := row["col_1"]; !ok {
			t.Errorf("row %d lost col_1", i)
		}
	}
}

func TestDeleteKeys_NoKeysIsNoop(t *testing.T) {
	s := createTestStore(t)
	if err := s.DeleteKeys(context.Background(), "default", "inventory"); err != nil {
		t.Fatalf("DeleteKeys() with no keys failed: %v", err)
	}
}

func TestDeleteRow_CompactsIndices(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seedRow(t, s, "default", "inventory", 0, panel.Row{"col_1": "sword"})
	seedRow(t, s, "default", "inventory", 1, panel.Row{"col_1": "potion"})
	seedRow(t, s, "default", "inventory", 2, panel.Row{"col_1": "shield"})

	if err := s.DeleteRow(ctx, "default", "inventory", 1); err != nil {
		t.Fatalf("DeleteRow() failed: %v", err)
	}

	rows, err := s.GetPanelRows(ctx, "default", "inventory")
	if err != nil {
		t.Fatalf("GetPanelRows() failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0]["col_1"] != "sword" || rows[1]["col_1"] != "shield" {
		t.Errorf("rows after delete = %v", rows)
	}

	// Indices must be dense again.
	var maxIdx int
	err = s.db.QueryRow(`
		SELECT MAX(row_idx) FROM cell_values
		WHERE session_id = 'default' AND panel_id = 'inventory'
	`).Scan(&maxIdx)
	if err != nil {
		t.Fatalf("max row_idx query failed: %v", err)
	}
	if maxIdx != 1 {
		t.Errorf("max row_idx = %d, want 1", maxIdx)
	}
}

func TestApplyKeyRemap_ShiftDown(t *testing.T) {
	// A field at position 2 of 3 was deleted: its keys go first, then the
	// field behind it renumbers 3 -> 2.
	s := createTestStore(t)
	ctx := context.Background()

	seedRow(t, s, "default", "character", 0, panel.Row{"col_1": "Alice", "col_2": "5", "col_3": "mage"})

	if err := s.DeleteKeys(ctx, "default", "character", "col_2", "col2", "2"); err != nil {
		t.Fatalf("DeleteKeys() failed: %v", err)
	}

	moves := []panel.KeyMove{
		{Old: "col_3", New: "col_2"},
		{Old: "col3", New: "col2"},
		{Old: "3", New: "2"},
	}
	if err := s.ApplyKeyRemap(ctx, "default", "character", moves); err != nil {
		t.Fatalf("ApplyKeyRemap() failed: %v", err)
	}

	rows, err := s.GetPanelRows(ctx, "default", "character")
	if err != nil {
		t.Fatalf("GetPanelRows() failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	row := rows[0]
	if row["col_1"] != "Alice" {
		t.Errorf("col_1 = %q, want Alice", row["col_1"])
	}
	if row["col_2"] != "mage" {
		t.Errorf("col_2 = %q, want mage (moved from col_3)", row["col_2"])
	}
	if _, ok := row["col_3"]; ok {
		t.Error("col_3 should be gone after the remap")
	}
}

func TestApplyKeyRemap_Swap(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seedRow(t, s, "default", "character", 0, panel.Row{"col_1": "Alice", "col_2": "5"})

	moves := []panel.KeyMove{
		{Old: "col_2", New: "col_1"},
		{Old: "col_1", New: "col_2"},
	}
	if err := s.ApplyKeyRemap(ctx, "default", "character", moves); err != nil {
		t.Fatalf("ApplyKeyRemap() failed: %v", err)
	}

	rows, err := s.GetPanelRows(ctx, "default", "character")
	if err != nil {
		t.Fatalf("GetPanelRows() failed: %v", err)
	}
	row := rows[0]
	if row["col_1"] != "5" || row["col_2"] != "Alice" {
		t.Errorf("swap failed: %v", row)
	}
}

func TestApplyKeyRemap_DropsStaleOccupant(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// Stale col_2 left behind by an earlier partial cleanup.
	seedRow(t, s, "default", "character", 0, panel.Row{"col_2": "stale", "col_3": "fresh"})

	moves := []panel.KeyMove{{Old: "col_3", New: "col_2"}}
	if err := s.ApplyKeyRemap(ctx, "default", "character", moves); err != nil {
		t.Fatalf("ApplyKeyRemap() failed: %v", err)
	}

	rows, err := s.GetPanelRows(ctx, "default", "character")
	if err != nil {
		t.Fatalf("GetPanelRows() failed: %v", err)
	}
	if rows[0]["col_2"] != "fresh" {
		t.Errorf("col_2 = %q, want fresh", rows[0]["col_2"])
	}
}

func TestApplyKeyRemap_Empty(t *testing.T) {
	s := createTestStore(t)
	if err := s.ApplyKeyRemap(context.Background(), "default", "character", nil); err != nil {
		t.Fatalf("empty remap failed: %v", err)
	}
}

func TestApplyKeyRemap_ScopedToPanelAndSession(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	seedRow(t, s, "default", "character", 0, panel.Row{"col_3": "move-me"})
	seedRow(t, s, "default", "inventory", 0, panel.Row{"col_3": "stay"})
	seedRow(t, s, "alt", "character", 0, panel.Row{"col_3": "stay-too"})

	moves := []panel.KeyMove{{Old: "col_3", New: "col_2"}}
	if err := s.ApplyKeyRemap(ctx, "default", "character", moves); err != nil {
		t.Fatalf("ApplyKeyRemap() failed: %v", err)
	}

	inv, _ := s.GetPanelRows(ctx, "default", "inventory")
	if inv[0]["col_3"] != "stay" {
		t.Errorf("inventory was touched: %v", inv[0])
	}
	alt, _ := s.GetPanelRows(ctx, "alt", "character")
	if alt[0]["col_3"] != "stay-too" {
		t.Errorf("other session was touched: %v", alt[0])
	}
}
