// Package panel holds the in-memory model of user-configured panels: an
// arena of stable field records, per-panel display ordering, and the raw
// row data hosts feed into reconciliation.
package panel

import (
	"fmt"
	"slices"
)

// Kind distinguishes panel row shape.
type Kind string

const (
	// KindSingle panels hold one implicit row of key/value cells.
	KindSingle Kind = "single"
	// KindMulti panels hold an ordered list of entity rows.
	KindMulti Kind = "multi"
)

// FieldID is a stable arena handle for a field. It survives renames,
// reorders, and renumbering; 0 is never allocated.
type FieldID int32

// Field is one column of a panel.
type Field struct {
	ID      FieldID
	PanelID string
	Name    string   // display name, often non-ASCII
	Aliases []string // legacy storage keys equivalent to Name
	Enabled bool
	Pos     int // 1-based storage position from the last renumbering; 0 = never numbered
}

// Panel describes one user-configured panel.
type Panel struct {
	ID      string
	Name    string
	Icon    string
	Kind    Kind
	Enabled bool
	Rules   string // free-form update guidance, not interpreted by the engine

	order []FieldID
}

// Title returns the display title shown on a rendered panel header.
func (p *Panel) Title() string {
	if p.Icon == "" {
		return p.Name
	}
	return p.Icon + " " + p.Name
}

// Schema is the arena of all configured panels and fields. Field records are
// keyed by FieldID and never move; each panel keeps a separate ordering
// vector of FieldIDs, so reordering and renumbering touch the vector and the
// Pos counters without disturbing identities.
type Schema struct {
	fields []*Field // arena; FieldID is index+1
	panels []*Panel // configured order
	byID   map[string]*Panel
}

// NewSchema creates an empty schema.
func NewSchema() *Schema {
	return &Schema{byID: make(map[string]*Panel)}
}

// AddPanel registers a panel. The field ordering vector starts empty.
func (s *Schema) AddPanel(p Panel) (*Panel, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("panel id is empty")
	}
	if _, ok := s.byID[p.ID]; ok {
		return nil, fmt.Errorf("panel %q already defined", p.ID)
	}
	if p.Kind == "" {
		p.Kind = KindSingle
	}
	np := p
	np.order = nil
	s.panels = append(s.panels, &np)
	s.byID[np.ID] = &np
	return &np, nil
}

// AddField allocates an arena slot for a field and appends it to the panel's
// display order. Pos stays 0 until the next Renumber.
func (s *Schema) AddField(panelID string, f Field) (FieldID, error) {
	p, ok := s.byID[panelID]
	if !ok {
		return 0, fmt.Errorf("panel %q not found", panelID)
	}
	if f.Name == "" {
		return 0, fmt.Errorf("panel %q: field name is empty", panelID)
	}
	nf := f
	nf.ID = FieldID(len(s.fields) + 1)
	nf.PanelID = panelID
	nf.Pos = 0
	s.fields = append(s.fields, &nf)
	p.order = append(p.order, nf.ID)
	return nf.ID, nil
}

// Panel looks up a panel by id.
func (s *Schema) Panel(id string) (*Panel, bool) {
	p, ok := s.byID[id]
	return p, ok
}

// Panels returns all panels in configured order.
func (s *Schema) Panels() []*Panel {
	return s.panels
}

// EnabledPanels returns enabled panels in configured order.
func (s *Schema) EnabledPanels() []*Panel {
	out := make([]*Panel, 0, len(s.panels))
	for _, p := range s.panels {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// Field looks up a field by arena id.
func (s *Schema) Field(id FieldID) (*Field, bool) {
	if id < 1 || int(id) > len(s.fields) {
		return nil, false
	}
	return s.fields[id-1], true
}

// Fields returns the panel's fields in display order, including disabled ones.
func (s *Schema) Fields(panelID string) []*Field {
	p, ok := s.byID[panelID]
	if !ok {
		return nil
	}
	out := make([]*Field, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, s.fields[id-1])
	}
	return out
}

// EnabledFields returns the panel's enabled fields in display order.
func (s *Schema) EnabledFields(panelID string) []*Field {
	all := s.Fields(panelID)
	out := make([]*Field, 0, len(all))
	for _, f := range all {
		if f.Enabled {
			out = append(out, f)
		}
	}
	return out
}

// FieldByName finds a field by exact display name within one panel.
func (s *Schema) FieldByName(panelID, name string) (*Field, bool) {
	for _, f := range s.Fields(panelID) {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// FieldByAlias finds a field by one of its legacy aliases within one panel.
func (s *Schema) FieldByAlias(panelID, alias string) (*Field, bool) {
	for _, f := range s.Fields(panelID) {
		if slices.Contains(f.Aliases, alias) {
			return f, true
		}
	}
	return nil, false
}

// RenameField changes a field's display name. Position and aliases keep
// their values; callers decide whether the old name becomes an alias.
func (s *Schema) RenameField(id FieldID, name string) error {
	f, ok := s.Field(id)
	if !ok {
		return fmt.Errorf("field %d not found", id)
	}
	if name == "" {
		return fmt.Errorf("field %d: new name is empty", id)
	}
	f.Name = name
	return nil
}

// SetFieldEnabled toggles a field. Disabling does not renumber; the field
// keeps its Pos so re-enabling before the next Renumber restores it.
func (s *Schema) SetFieldEnabled(id FieldID, enabled bool) error {
	f, ok := s.Field(id)
	if !ok {
		return fmt.Errorf("field %d not found", id)
	}
	f.Enabled = enabled
	return nil
}

// MoveField moves the field at display index from to display index to
// within a panel. Indices are 0-based over the full (enabled and disabled)
// display order.
func (s *Schema) MoveField(panelID string, from, to int) error {
	p, ok := s.byID[panelID]
	if !ok {
		return fmt.Errorf("panel %q not found", panelID)
	}
	n := len(p.order)
	if from < 0 || from >= n || to < 0 || to >= n {
		return fmt.Errorf("panel %q: move %d -> %d out of range (len %d)", panelID, from, to, n)
	}
	id := p.order[from]
	p.order = append(p.order[:from], p.order[from+1:]...)
	p.order = slices.Insert(p.order, to, id)
	return nil
}

// RemoveField detaches a field from its panel's display order. The arena
// slot stays allocated so stale FieldIDs never alias a different field;
// Field still resolves it but no ordering walk returns it.
func (s *Schema) RemoveField(id FieldID) error {
	f, ok := s.Field(id)
	if !ok {
		return fmt.Errorf("field %d not found", id)
	}
	p, ok := s.byID[f.PanelID]
	if !ok {
		return fmt.Errorf("field %d: panel %q not found", id, f.PanelID)
	}
	idx := slices.Index(p.order, id)
	if idx < 0 {
		return fmt.Errorf("field %d already removed from panel %q", id, f.PanelID)
	}
	p.order = append(p.order[:idx], p.order[idx+1:]...)
	f.Enabled = false
	return nil
}
