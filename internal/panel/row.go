package panel

import (
	"maps"
	"strings"
)

// Row is one row of raw panel data as supplied by a host: storage keys or
// display names mapped to display values. Rows are schemaless on purpose;
// key resolution decides which field each entry belongs to.
type Row map[string]string

// Snapshot is the full data set for one session, keyed by panel id. Row
// order within a panel is the host's order and is preserved end to end.
type Snapshot struct {
	SessionID string
	Rows      map[string][]Row
}

// entityIDKeys are checked in order when extracting a row's entity identity.
var entityIDKeys = []string{"id", "entityId", "entity_id"}

// EntityID returns the row's entity identifier, if present.
func (r Row) EntityID() (string, bool) {
	for _, k := range entityIDKeys {
		if v, ok := r[k]; ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// volatileKeys are bookkeeping entries excluded from structural identity.
var volatileKeys = map[string]bool{
	"updatedAt":    true,
	"updated_at":   true,
	"timestamp":    true,
	"source":       true,
	"lastModified": true,
}

// IsVolatileKey reports whether a row key is transient bookkeeping rather
// than panel content. Keys starting with "_" or "$" are always volatile.
func IsVolatileKey(k string) bool {
	if strings.HasPrefix(k, "_") || strings.HasPrefix(k, "$") {
		return true
	}
	return volatileKeys[k]
}

// StructuralKeys returns the row's non-volatile keys in map order; callers
// that need determinism sort them.
func (r Row) StructuralKeys() []string {
	out := make([]string, 0, len(r))
	for k := range r {
		if !IsVolatileKey(k) {
			out = append(out, k)
		}
	}
	return out
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	return maps.Clone(r)
}

// CloneRows deep-copies a row slice.
func CloneRows(rows []Row) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}
