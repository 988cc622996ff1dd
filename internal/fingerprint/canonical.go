// Package fingerprint computes the value-invariant structural identity of
// rendered panel data. Two data sets with the same panels, rows, and field
// keys fingerprint identically no matter how the cell values differ; any
// drift in shape flips the fingerprint and forces a rebuild downstream.
package fingerprint

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/paneldiff/paneldiff/internal/panel"
)

// RowDescriptor is the structural record extracted from one rendered unit:
// which panel it belongs to and which field keys are present. Cell values
// never appear here, so value-only edits leave the descriptor stream
// unchanged. Fields are declared in canonical key order; the serializer
// relies on it.
type RowDescriptor struct {
	Keys   []string `json:"keys"`
	Panel  string   `json:"panel"`
	Schema bool     `json:"schema,omitempty"` // header record: the panel's own enabled-field keys
}

// Describe extracts one descriptor per data row: the panel id plus the
// sorted, NFC-normalized, non-volatile keys present in that row.
func Describe(panelID string, rows []panel.Row) []RowDescriptor {
	out := make([]RowDescriptor, 0, len(rows))
	for _, r := range rows {
		keys := r.StructuralKeys()
		for i, k := range keys {
			keys[i] = norm.NFC.String(k)
		}
		slices.SortFunc(keys, compareUTF16)
		out = append(out, RowDescriptor{Keys: keys, Panel: norm.NFC.String(panelID)})
	}
	return out
}

// DescribeSchema produces one header record per enabled panel carrying the
// storage keys of its enabled fields. Column layout drift then flips the
// fingerprint even when no data row mentions the moved column.
func DescribeSchema(s *panel.Schema) []RowDescriptor {
	out := make([]RowDescriptor, 0, len(s.Panels()))
	for _, p := range s.EnabledPanels() {
		fields := s.EnabledFields(p.ID)
		keys := make([]string, 0, len(fields))
		for _, f := range fields {
			if k, ok := f.StorageKey(); ok {
				keys = append(keys, k)
			} else {
				keys = append(keys, norm.NFC.String(f.Name))
			}
		}
		slices.SortFunc(keys, compareUTF16)
		out = append(out, RowDescriptor{Keys: keys, Panel: norm.NFC.String(p.ID), Schema: true})
	}
	return out
}

// DescribeSnapshot interleaves each enabled panel's header record with the
// descriptors of its data rows. Panels follow schema order and rows follow
// host order, so the stream is deterministic without depending on Go map
// iteration. Snapshot panels absent from the schema are not rendered and
// contribute nothing.
func DescribeSnapshot(s *panel.Schema, snap panel.Snapshot) []RowDescriptor {
	headers := DescribeSchema(s) // one per enabled panel, same order
	var out []RowDescriptor
	for i, p := range s.EnabledPanels() {
		out = append(out, headers[i])
		out = append(out, Describe(p.ID, snap.Rows[p.ID])...)
	}
	return out
}

// canonicalRecords serializes descriptors as compact JSON with NFC strings
// and no HTML escaping. Object keys are fixed by declaration in UTF-16
// order, matching how hosts serialize the same records. Invalid UTF-8
// anywhere is an error; Compute falls back on it.
func canonicalRecords(descs []RowDescriptor) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, d := range descs {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeRecord(&buf, d); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

func writeRecord(buf *bytes.Buffer, d RowDescriptor) error {
	buf.WriteString(`{"keys":[`)
	for i, k := range d.Keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := canonicalString(k)
		if err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(kb)
	}
	buf.WriteString(`],"panel":`)
	pb, err := canonicalString(d.Panel)
	if err != nil {
		return fmt.Errorf("panel id: %w", err)
	}
	buf.Write(pb)
	if d.Schema {
		buf.WriteString(`,"schema":true`)
	}
	buf.WriteByte('}')
	return nil
}

// canonicalString encodes one JSON string: NFC normalized, HTML characters
// unescaped. The json.Encoder's trailing newline is stripped.
func canonicalString(s string) ([]byte, error) {
	if !utf8.ValidString(s) {
		return nil, fmt.Errorf("invalid UTF-8 in %q", s)
	}
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, err
	}
	result := buf.Bytes()
	if n := len(result); n > 0 && result[n-1] == '\n' {
		result = result[:n-1]
	}
	return result, nil
}

// compareUTF16 orders strings by UTF-16 code units, the ordering hosts see
// when they sort keys in their own runtime. Go's native string comparison
// uses UTF-8 bytes, which disagrees outside the BMP.
func compareUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	for i := 0; i < len(a16) && i < len(b16); i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}
