package fingerprint

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf16"
)

// Version prefixes. The prefix travels with the stored fingerprint so a
// future algorithm change invalidates persisted values instead of silently
// comparing across schemes.
const (
	structuralVersion = "s1" // rolling hash over canonical records
	fallbackVersion   = "t1" // timestamp taken when serialization failed
)

// Fingerprint is the compact structural identity of a rendered data set,
// formatted "<version>:<hex>".
type Fingerprint string

// IsZero reports whether no fingerprint is present.
func (f Fingerprint) IsZero() bool { return f == "" }

// IsFallback reports whether f came from the timestamp fallback path. A
// fallback never equals a structural fingerprint, so comparing one always
// decides rebuild.
func (f Fingerprint) IsFallback() bool {
	return strings.HasPrefix(string(f), fallbackVersion+":")
}

// Compute returns the structural fingerprint of a descriptor stream.
func Compute(descs []RowDescriptor) Fingerprint {
	return ComputeAt(descs, time.Now)
}

// ComputeAt is Compute with an injectable clock for the fallback path. On
// serialization failure it degrades to a timestamp fingerprint and logs a
// warning; the caller's next comparison then misses and rebuilds.
func ComputeAt(descs []RowDescriptor, now func() time.Time) Fingerprint {
	data, err := canonicalRecords(descs)
	if err != nil {
		slog.Warn("structural serialization failed, falling back to timestamp fingerprint",
			"error", err,
			"records", len(descs))
		return Fingerprint(fmt.Sprintf("%s:%016x", fallbackVersion, now().UnixNano()))
	}
	return Fingerprint(fmt.Sprintf("%s:%08x", structuralVersion, roll(data)))
}

// roll is the rolling polynomial h = h*31 + unit over UTF-16 code units,
// truncated to 32 bits each step by unsigned overflow. This mirrors the
// hash hosts compute over the same canonical text, so fingerprints agree
// across process boundaries.
func roll(data []byte) uint32 {
	var h uint32
	for _, u := range utf16.Encode([]rune(string(data))) {
		h = h*31 + uint32(u)
	}
	return h
}
