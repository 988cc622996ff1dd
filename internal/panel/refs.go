package panel

import (
	"fmt"
	"strconv"
	"strings"
)

// Ref is a sealed reference to a panel field as supplied by callers.
// Only Named, Positional, LegacyAlias, and Namespaced implement it.
type Ref interface {
	// Key returns the raw spelling of the reference, the string tried first
	// during resolution.
	Key() string
	fieldRef() // sealed
}

// Named references a field by its current display name.
type Named string

func (n Named) Key() string { return string(n) }
func (Named) fieldRef()     {}

// Positional references a field by 1-based storage position.
type Positional int

func (p Positional) Key() string { return PositionKey(int(p)) }
func (Positional) fieldRef()     {}

// LegacyAlias references a field by a legacy storage alias.
type LegacyAlias string

func (a LegacyAlias) Key() string { return string(a) }
func (LegacyAlias) fieldRef()     {}

// Namespaced references a field as "<entity>.<field>", the form emitted by
// hosts that prefix an update with the entity row it targets.
type Namespaced struct {
	Entity string
	Field  string
}

func (n Namespaced) Key() string { return n.Entity + "." + n.Field }
func (Namespaced) fieldRef()     {}

// ParseRef classifies a raw field reference string. Dotted forms with both
// halves non-empty become Namespaced, recognized positional spellings become
// Positional, everything else is Named. LegacyAlias is never inferred; it is
// constructed only by callers that know the spelling is an alias.
func ParseRef(raw string) Ref {
	if i := strings.IndexByte(raw, '.'); i > 0 && i < len(raw)-1 {
		return Namespaced{Entity: raw[:i], Field: raw[i+1:]}
	}
	if n, ok := ParsePositionKey(raw); ok {
		return Positional(n)
	}
	return Named(raw)
}

// PositionKey returns the canonical storage key for a 1-based position.
func PositionKey(i int) string {
	return fmt.Sprintf("col_%d", i)
}

// PositionKeyVariants returns every storage spelling historically used for a
// 1-based position: the canonical "col_i", the fused "coli", and bare "i".
func PositionKeyVariants(i int) []string {
	n := strconv.Itoa(i)
	return []string{"col_" + n, "col" + n, n}
}

// ParsePositionKey reports the 1-based position encoded in key, accepting
// any of the variants produced by PositionKeyVariants.
func ParsePositionKey(key string) (int, bool) {
	digits := key
	switch {
	case strings.HasPrefix(key, "col_"):
		digits = key[len("col_"):]
	case strings.HasPrefix(key, "col"):
		digits = key[len("col"):]
	}
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
