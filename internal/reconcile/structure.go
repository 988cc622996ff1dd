package reconcile

import (
	"time"

	"github.com/paneldiff/paneldiff/internal/panel"
)

// RenderedCell is one displayed field value. MarkedUntil carries the
// transient changed-marker deadline; nothing clears it actively, readers
// compare it against the clock.
type RenderedCell struct {
	FieldName   string // logical reference the cell re-resolves under
	Key         string // storage key the value last came from; "" if never resolved
	Value       string
	MarkedUntil time.Time
}

// Marked reports whether the cell's changed marker is still showing at now.
func (c *RenderedCell) Marked(now time.Time) bool {
	return !c.MarkedUntil.IsZero() && c.MarkedUntil.After(now)
}

// RenderedRow is one displayed row. Index is the row's position in the
// host's data, which is also how patch passes pair rendered rows with
// incoming ones. EntityID identifies the row in multi-row panels.
type RenderedRow struct {
	Index    int
	EntityID string
	Cells    []*RenderedCell
}

// Cell finds a cell by its field name.
func (r *RenderedRow) Cell(fieldName string) (*RenderedCell, bool) {
	for _, c := range r.Cells {
		if c.FieldName == fieldName {
			return c, true
		}
	}
	return nil, false
}

// RenderedPanel is one displayed panel with its rows in display order.
type RenderedPanel struct {
	PanelID string
	Title   string
	Kind    panel.Kind
	Rows    []*RenderedRow
}

// Structure is the complete rendered state the controller owns and patches.
// Builds replace it wholesale; patches mutate cells in place.
type Structure struct {
	SessionID string
	BuiltAt   time.Time

	panels []*RenderedPanel
	byID   map[string]*RenderedPanel
}

func newStructure(sessionID string, at time.Time) *Structure {
	return &Structure{
		SessionID: sessionID,
		BuiltAt:   at,
		byID:      make(map[string]*RenderedPanel),
	}
}

func (s *Structure) add(p *RenderedPanel) {
	s.panels = append(s.panels, p)
	s.byID[p.PanelID] = p
}

// Panels returns the rendered panels in display order.
func (s *Structure) Panels() []*RenderedPanel {
	return s.panels
}

// Panel looks up a rendered panel by id.
func (s *Structure) Panel(id string) (*RenderedPanel, bool) {
	p, ok := s.byID[id]
	return p, ok
}

// CellCount returns the total number of rendered cells.
func (s *Structure) CellCount() int {
	n := 0
	for _, p := range s.panels {
		for _, r := range p.Rows {
			n += len(r.Cells)
		}
	}
	return n
}

// MarkedCount returns how many cells still show a changed marker at now.
func (s *Structure) MarkedCount(now time.Time) int {
	n := 0
	for _, p := range s.panels {
		for _, r := range p.Rows {
			for _, c := range r.Cells {
				if c.Marked(now) {
					n++
				}
			}
		}
	}
	return n
}
