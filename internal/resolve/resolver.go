// Package resolve maps the field references hosts use (display names,
// legacy aliases, positional spellings, namespaced forms) onto the storage
// keys actually present in row data. Resolution is a fixed priority ladder;
// every miss degrades to the next rung and a full miss is reported to the
// caller instead of failing the pass.
package resolve

import (
	"log/slog"
	"slices"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/paneldiff/paneldiff/internal/panel"
)

// Defaults for the mapping cache.
const (
	DefaultCacheSize = 64
	DefaultCacheTTL  = 30 * time.Second
)

// Step identifies which rung of the priority ladder produced a resolution.
type Step int

const (
	StepExact      Step = iota + 1 // reference spelling is a row key
	StepMapping                    // cached display-name mapping
	StepPositional                 // col_i / coli / i spellings
	StepAlias                      // panel-scoped legacy alias table
	StepNamespaced                 // entity.field added or stripped
	StepCaseFold                   // case-insensitive comparison
)

func (s Step) String() string {
	switch s {
	case StepExact:
		return "exact"
	case StepMapping:
		return "mapping"
	case StepPositional:
		return "positional"
	case StepAlias:
		return "alias"
	case StepNamespaced:
		return "namespaced"
	case StepCaseFold:
		return "casefold"
	default:
		return "unknown"
	}
}

// Resolution is a successful ladder hit.
type Resolution struct {
	Key  string // row key holding the referenced field's value
	Step Step
}

// Resolver resolves field references against one schema. Not safe for
// concurrent use; the reconciliation loop is the single goroutine that
// touches it.
type Resolver struct {
	schema    *panel.Schema
	cache     *lru.LRU[string, *Mapping]
	log       *slog.Logger
	now       func() time.Time
	cacheSize int
	cacheTTL  time.Duration
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used for schema-inconsistency warnings.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

// WithClock sets the time source stamped onto rebuilt mappings.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithCacheTTL sets how long a rebuilt mapping stays live.
func WithCacheTTL(ttl time.Duration) Option {
	return func(r *Resolver) { r.cacheTTL = ttl }
}

// WithCacheSize bounds the number of panels with live mappings.
func WithCacheSize(n int) Option {
	return func(r *Resolver) { r.cacheSize = n }
}

// New creates a Resolver over a schema.
func New(schema *panel.Schema, opts ...Option) *Resolver {
	r := &Resolver{
		schema:    schema,
		log:       slog.Default(),
		now:       time.Now,
		cacheSize: DefaultCacheSize,
		cacheTTL:  DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.cache = lru.NewLRU[string, *Mapping](r.cacheSize, nil, r.cacheTTL)
	return r
}

// Resolve finds the row key a field reference points at. The ladder runs
// top to bottom and stops at the first hit:
//
//  1. the reference spelling itself is a key in the row
//  2. the cached mapping translates it to a key in the row
//  3. a known storage position matches one of its spellings in the row
//  4. the panel's legacy alias table translates it either direction
//  5. a namespaced reference is stripped to its bare field, or the row's
//     entity id is prefixed onto a bare reference
//  6. a case-insensitive comparison against the row's keys
//
// A full miss returns ok=false; callers skip the cell and keep going.
func (r *Resolver) Resolve(panelID string, ref panel.Ref, row panel.Row) (Resolution, bool) {
	raw := ref.Key()

	// 1. exact
	if _, ok := row[raw]; ok {
		return Resolution{Key: raw, Step: StepExact}, true
	}

	// 2. cached mapping
	if key, ok := r.Mapping(panelID).Lookup(raw); ok {
		if _, present := row[key]; present {
			return Resolution{Key: key, Step: StepMapping}, true
		}
	}

	// 3. positional spellings
	if pos, ok := r.positionOf(panelID, ref); ok {
		for _, k := range panel.PositionKeyVariants(pos) {
			if _, present := row[k]; present {
				return Resolution{Key: k, Step: StepPositional}, true
			}
		}
	}

	// 4. legacy alias table, both directions
	if key, ok := r.resolveAlias(panelID, raw, row); ok {
		return Resolution{Key: key, Step: StepAlias}, true
	}

	// 5. namespaced add/strip
	if res, ok := r.resolveNamespaced(panelID, ref, raw, row); ok {
		return res, true
	}

	// 6. case-insensitive
	if key, ok := caseFoldKey(raw, row); ok {
		return Resolution{Key: key, Step: StepCaseFold}, true
	}

	return Resolution{}, false
}

// positionOf extracts the 1-based storage position implied by a reference:
// directly for positional spellings, via the schema for names and aliases.
func (r *Resolver) positionOf(panelID string, ref panel.Ref) (int, bool) {
	switch v := ref.(type) {
	case panel.Positional:
		return int(v), int(v) >= 1
	case panel.Named:
		if f, ok := r.schema.FieldByName(panelID, string(v)); ok && f.Pos > 0 {
			return f.Pos, true
		}
	case panel.LegacyAlias:
		if f, ok := r.schema.FieldByAlias(panelID, string(v)); ok && f.Pos > 0 {
			return f.Pos, true
		}
	}
	return 0, false
}

// resolveAlias walks the panel's alias table in both directions: a raw
// alias tries the field's display name and sibling aliases as row keys, a
// raw display name tries the field's aliases.
func (r *Resolver) resolveAlias(panelID, raw string, row panel.Row) (string, bool) {
	if f, ok := r.schema.FieldByAlias(panelID, raw); ok {
		for _, candidate := range append([]string{f.Name}, f.Aliases...) {
			if candidate == raw {
				continue
			}
			if _, present := row[candidate]; present {
				return candidate, true
			}
		}
	}
	if f, ok := r.schema.FieldByName(panelID, raw); ok {
		for _, alias := range f.Aliases {
			if _, present := row[alias]; present {
				return alias, true
			}
		}
	}
	return "", false
}

func (r *Resolver) resolveNamespaced(panelID string, ref panel.Ref, raw string, row panel.Row) (Resolution, bool) {
	if ns, ok := ref.(panel.Namespaced); ok {
		// Strip the namespace and rerun the ladder on the bare field.
		if res, ok := r.Resolve(panelID, panel.ParseRef(ns.Field), row); ok {
			return Resolution{Key: res.Key, Step: StepNamespaced}, true
		}
		return Resolution{}, false
	}
	// Bare reference against a row whose keys carry the entity prefix.
	if eid, ok := row.EntityID(); ok {
		prefixed := eid + "." + raw
		if _, present := row[prefixed]; present {
			return Resolution{Key: prefixed, Step: StepNamespaced}, true
		}
	}
	return Resolution{}, false
}

// caseFoldKey finds a row key equal to raw under Unicode case folding.
// Multiple folds are possible in pathological data; the smallest key wins
// so the choice never depends on map order.
func caseFoldKey(raw string, row panel.Row) (string, bool) {
	var matches []string
	for k := range row {
		if strings.EqualFold(k, raw) {
			matches = append(matches, k)
		}
	}
	if len(matches) == 0 {
		return "", false
	}
	slices.Sort(matches)
	return matches[0], true
}

// WriteKey picks the storage key under which new data for a reference
// should be written, independent of any existing row. Known fields write
// under their canonical storage key; unknown references fall through to
// their raw spelling with known=false so callers can warn and still act.
func (r *Resolver) WriteKey(panelID string, ref panel.Ref) (key string, known bool) {
	raw := ref.Key()
	if k, ok := r.Mapping(panelID).Lookup(raw); ok {
		return k, true
	}
	if pos, ok := r.positionOf(panelID, ref); ok {
		return panel.PositionKey(pos), true
	}
	if ns, ok := ref.(panel.Namespaced); ok {
		return r.WriteKey(panelID, panel.ParseRef(ns.Field))
	}
	return raw, false
}
