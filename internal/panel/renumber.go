package panel

import "fmt"

// KeyMove records one storage-key rename produced by renumbering: data
// stored under Old must be re-homed under New.
type KeyMove struct {
	Old string
	New string
}

// Renumber reassigns storage positions 1..N across the panel's enabled
// fields in display order and returns the key moves needed to re-home
// stored data. Every historical spelling of a moved position is covered
// (col_i, coli, bare i). Moves can form swaps when fields trade places, so
// appliers must stage renames through temporary keys; ApplyKeyRemap on the
// store does this inside one transaction.
func (s *Schema) Renumber(panelID string) ([]KeyMove, error) {
	if _, ok := s.byID[panelID]; !ok {
		return nil, fmt.Errorf("panel %q not found", panelID)
	}
	var moves []KeyMove
	for i, f := range s.EnabledFields(panelID) {
		newPos := i + 1
		oldPos := f.Pos
		f.Pos = newPos
		if oldPos == 0 || oldPos == newPos {
			continue
		}
		oldKeys := PositionKeyVariants(oldPos)
		newKeys := PositionKeyVariants(newPos)
		for j := range oldKeys {
			moves = append(moves, KeyMove{Old: oldKeys[j], New: newKeys[j]})
		}
	}
	return moves, nil
}

// StorageKey returns the field's canonical storage key, "col_<Pos>".
// Fields that were never renumbered have no storage position yet and
// resolve through their display name instead.
func (f *Field) StorageKey() (string, bool) {
	if f.Pos == 0 {
		return "", false
	}
	return PositionKey(f.Pos), true
}
