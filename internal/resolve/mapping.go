package resolve

import (
	"time"

	"golang.org/x/text/unicode/norm"
)

// Mapping is the per-panel translation table from display names and legacy
// aliases to canonical storage keys. Mappings are rebuilt from the schema on
// demand and cached with a TTL, so a stale entry can survive at most one
// cache window before resolution falls back to the slower ladder steps.
type Mapping struct {
	Keys    map[string]string
	BuiltAt time.Time
}

// Lookup returns the storage key mapped for a raw spelling, trying the
// spelling as given and NFC-normalized.
func (m *Mapping) Lookup(raw string) (string, bool) {
	if m == nil {
		return "", false
	}
	if k, ok := m.Keys[raw]; ok {
		return k, true
	}
	if n := norm.NFC.String(raw); n != raw {
		if k, ok := m.Keys[n]; ok {
			return k, true
		}
	}
	return "", false
}

// RebuildMapping constructs the mapping for one panel from the current
// schema and replaces any cached entry. Enabled fields contribute their
// display name and every alias, all pointing at the field's storage key
// (or its display name while the field is still unnumbered). On duplicate
// spellings the first-declared field wins and the loser is logged.
func (r *Resolver) RebuildMapping(panelID string) *Mapping {
	m := &Mapping{Keys: make(map[string]string), BuiltAt: r.now()}
	for _, f := range r.schema.EnabledFields(panelID) {
		key, ok := f.StorageKey()
		if !ok {
			key = f.Name
		}
		r.addMappingKey(m, panelID, norm.NFC.String(f.Name), key)
		for _, alias := range f.Aliases {
			r.addMappingKey(m, panelID, norm.NFC.String(alias), key)
		}
	}
	r.cache.Add(panelID, m)
	return m
}

func (r *Resolver) addMappingKey(m *Mapping, panelID, spelling, key string) {
	if prev, ok := m.Keys[spelling]; ok {
		if prev != key {
			r.log.Warn("duplicate field spelling in panel, keeping first declaration",
				"panel", panelID,
				"spelling", spelling,
				"kept", prev,
				"ignored", key)
		}
		return
	}
	m.Keys[spelling] = key
}

// Mapping returns the cached mapping for a panel, rebuilding it when absent
// or expired.
func (r *Resolver) Mapping(panelID string) *Mapping {
	if m, ok := r.cache.Get(panelID); ok {
		return m
	}
	return r.RebuildMapping(panelID)
}

// Invalidate drops one panel's cached mapping.
func (r *Resolver) Invalidate(panelID string) {
	r.cache.Remove(panelID)
}

// InvalidateAll drops every cached mapping. Rebuild passes call this so no
// mapping built against the previous structure outlives the rebuild.
func (r *Resolver) InvalidateAll() {
	r.cache.Purge()
}
