package reconcile

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/paneldiff/paneldiff/internal/fingerprint"
	"github.com/paneldiff/paneldiff/internal/history"
	"github.com/paneldiff/paneldiff/internal/panel"
	"github.com/paneldiff/paneldiff/internal/resolve"
)

// DefaultMarkDuration is how long a patched cell keeps its changed marker.
const DefaultMarkDuration = 2 * time.Second

// SurfaceStore persists one fingerprint per rendering surface.
// Implemented by the SQLite store and the Redis session store.
type SurfaceStore interface {
	LoadFingerprint(ctx context.Context, surfaceID string) (string, error)
	SaveFingerprint(ctx context.Context, surfaceID, fingerprint string) error
}

// TokenGenerator generates pass tokens for log correlation.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type TokenGenerator interface {
	Generate() string
}

// Decision is the outcome of the build-or-patch choice.
type Decision int

const (
	// DecisionBuild replaces the whole rendered structure.
	DecisionBuild Decision = iota + 1
	// DecisionPatch rewrites only cells whose value changed.
	DecisionPatch
)

func (d Decision) String() string {
	switch d {
	case DecisionBuild:
		return "build"
	case DecisionPatch:
		return "patch"
	default:
		return "unknown"
	}
}

// ChangedCell records one cell rewrite made by a patch pass.
type ChangedCell struct {
	PanelID  string
	RowIndex int
	EntityID string
	Field    string
	Key      string
	Old      string
	New      string
}

// Outcome describes one completed reconciliation pass.
type Outcome struct {
	Token       string
	Decision    Decision
	Reason      string
	Fingerprint fingerprint.Fingerprint
	Previous    string // persisted fingerprint the decision compared against
	Panels      int
	Changed     []ChangedCell
}

// Controller runs the build-or-patch decision for one rendering surface.
//
// Not safe for concurrent use: the service loop is the single goroutine that
// owns it, per the package doc. A pass never returns an error; every failure
// degrades locally (see doc.go, Error Policy).
type Controller struct {
	schema    *panel.Schema
	resolver  *resolve.Resolver
	surfaces  SurfaceStore
	history   *history.Log
	surfaceID string

	structure *Structure
	applied   fingerprint.Fingerprint
	markFor   time.Duration
	tokens    TokenGenerator
	now       func() time.Time
	log       *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithMarkDuration sets how long patched cells keep their changed marker.
func WithMarkDuration(d time.Duration) Option {
	return func(c *Controller) { c.markFor = d }
}

// WithClock sets the time source for markers and fingerprint fallbacks.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithLogger sets the pass logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithTokens sets the pass token generator.
func WithTokens(g TokenGenerator) Option {
	return func(c *Controller) { c.tokens = g }
}

// New creates a Controller for one surface.
func New(
	schema *panel.Schema,
	resolver *resolve.Resolver,
	surfaces SurfaceStore,
	hist *history.Log,
	surfaceID string,
	opts ...Option,
) *Controller {
	c := &Controller{
		schema:    schema,
		resolver:  resolver,
		surfaces:  surfaces,
		history:   hist,
		surfaceID: surfaceID,
		markFor:   DefaultMarkDuration,
		tokens:    UUIDv7Generator{},
		now:       time.Now,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Reconcile runs one pass over a data snapshot: fingerprint, decide, then
// build or patch. The persisted fingerprint is written in both branches so
// the decision survives a session reload.
func (c *Controller) Reconcile(ctx context.Context, snap panel.Snapshot) Outcome {
	token := c.tokens.Generate()
	fp := fingerprint.ComputeAt(fingerprint.DescribeSnapshot(c.schema, snap), c.now)
	stored := c.loadFingerprint(ctx)

	decision, reason := c.decide(stored, fp)
	out := Outcome{
		Token:       token,
		Decision:    decision,
		Reason:      reason,
		Fingerprint: fp,
		Previous:    stored,
	}

	c.log.Debug("reconcile pass starting",
		"token", token,
		"surface", c.surfaceID,
		"session", snap.SessionID,
		"decision", decision.String(),
		"reason", reason,
	)

	switch decision {
	case DecisionBuild:
		c.build(ctx, snap, fp, &out)
	case DecisionPatch:
		c.patch(ctx, snap, fp, &out)
	}
	c.applied = fp

	c.log.Info("reconcile pass complete",
		"token", token,
		"surface", c.surfaceID,
		"decision", decision.String(),
		"panels", out.Panels,
		"changed", len(out.Changed),
		"fingerprint", string(fp),
	)
	return out
}

// decide maps the controller state onto a decision. An absent persisted
// fingerprint and a mismatching one both rebuild; only a rendered structure
// with a matching fingerprint patches.
func (c *Controller) decide(stored string, fp fingerprint.Fingerprint) (Decision, string) {
	switch {
	case c.structure == nil:
		return DecisionBuild, "no structure rendered"
	case stored == "":
		return DecisionBuild, "no persisted fingerprint"
	case stored != string(fp):
		return DecisionBuild, "fingerprint changed"
	default:
		return DecisionPatch, "fingerprint unchanged"
	}
}

// build regenerates the whole structure from schema and data. The
// replacement is constructed completely before the swap, so an observer
// never sees a half-rebuilt structure. Every cached key mapping is
// invalidated first; mappings built against the old structure must not
// serve the new one.
func (c *Controller) build(ctx context.Context, snap panel.Snapshot, fp fingerprint.Fingerprint, out *Outcome) {
	c.resolver.InvalidateAll()
	next := c.render(snap)
	c.persistFingerprint(ctx, fp)
	c.structure = next
	out.Panels = len(next.Panels())
}

// render constructs a fresh structure: enabled panels in configured order,
// single-kind panels always showing one row (blank when the snapshot has
// none), multi-kind panels showing one row per data row.
func (c *Controller) render(snap panel.Snapshot) *Structure {
	st := newStructure(snap.SessionID, c.now())
	for _, p := range c.schema.EnabledPanels() {
		view := &RenderedPanel{PanelID: p.ID, Title: p.Title(), Kind: p.Kind}
		rows := snap.Rows[p.ID]
		if p.Kind == panel.KindSingle {
			var data panel.Row
			if len(rows) > 0 {
				data = rows[0]
			}
			view.Rows = append(view.Rows, c.renderRow(p.ID, 0, data))
		} else {
			for i, data := range rows {
				view.Rows = append(view.Rows, c.renderRow(p.ID, i, data))
			}
		}
		st.add(view)
	}
	return st
}

func (c *Controller) renderRow(panelID string, idx int, data panel.Row) *RenderedRow {
	row := &RenderedRow{Index: idx}
	if eid, ok := data.EntityID(); ok {
		row.EntityID = eid
	}
	for _, f := range c.schema.EnabledFields(panelID) {
		cell := &RenderedCell{FieldName: f.Name}
		if res, ok := c.resolver.Resolve(panelID, panel.Named(f.Name), data); ok {
			cell.Key = res.Key
			cell.Value = data[res.Key]
		}
		row.Cells = append(row.Cells, cell)
	}
	return row
}

// patch walks the rendered structure against the new snapshot. Rendered
// rows pair with incoming rows by position; a rendered row with no incoming
// counterpart keeps its last-known-good cells, as does any cell whose
// reference fails to resolve. Only a cell whose resolved value differs by
// string comparison is rewritten, marked, and journaled.
func (c *Controller) patch(ctx context.Context, snap panel.Snapshot, fp fingerprint.Fingerprint, out *Outcome) {
	now := c.now()
	for _, view := range c.structure.Panels() {
		newRows := snap.Rows[view.PanelID]
		for _, row := range view.Rows {
			if row.Index >= len(newRows) {
				continue
			}
			data := newRows[row.Index]
			if eid, ok := data.EntityID(); ok {
				row.EntityID = eid
			}
			for _, cell := range row.Cells {
				res, ok := c.resolver.Resolve(view.PanelID, panel.Named(cell.FieldName), data)
				if !ok {
					continue
				}
				value := data[res.Key]
				if value == cell.Value {
					continue
				}

				old := cell.Value
				cell.Value = value
				cell.Key = res.Key
				cell.MarkedUntil = now.Add(c.markFor)

				c.history.Append(ctx, c.compositeKey(view, row, cell.FieldName),
					old, value, history.OriginExternal, "")

				out.Changed = append(out.Changed, ChangedCell{
					PanelID:  view.PanelID,
					RowIndex: row.Index,
					EntityID: row.EntityID,
					Field:    cell.FieldName,
					Key:      res.Key,
					Old:      old,
					New:      value,
				})
			}
		}
	}
	out.Panels = len(c.structure.Panels())
	c.persistFingerprint(ctx, fp)
}

// compositeKey picks the history key shape for a cell: panel-scoped for
// single-row panels, entity-scoped for multi-row ones. A multi row that
// never carried an entity id falls back to its position.
func (c *Controller) compositeKey(view *RenderedPanel, row *RenderedRow, field string) string {
	if view.Kind == panel.KindMulti {
		entity := row.EntityID
		if entity == "" {
			entity = strconv.Itoa(row.Index)
		}
		return history.EntityCellKey(entity, field)
	}
	return history.CellKey(view.PanelID, field)
}

func (c *Controller) loadFingerprint(ctx context.Context) string {
	fp, err := c.surfaces.LoadFingerprint(ctx, c.surfaceID)
	if err != nil {
		c.log.Warn("fingerprint load failed, treating surface as unseen",
			"surface", c.surfaceID,
			"error", err)
		return ""
	}
	return fp
}

func (c *Controller) persistFingerprint(ctx context.Context, fp fingerprint.Fingerprint) {
	if err := c.surfaces.SaveFingerprint(ctx, c.surfaceID, string(fp)); err != nil {
		c.log.Warn("fingerprint persist failed, next pass may rebuild",
			"surface", c.surfaceID,
			"error", err)
	}
}

// Structure returns the currently rendered structure, nil before the first
// build. Callers must not mutate it; patches do.
func (c *Controller) Structure() *Structure {
	return c.structure
}

// Fingerprint returns the fingerprint applied by the last pass.
func (c *Controller) Fingerprint() fingerprint.Fingerprint {
	return c.applied
}

// Mapping returns the cached key mapping for a panel, rebuilding on demand.
func (c *Controller) Mapping(panelID string) *resolve.Mapping {
	return c.resolver.Mapping(panelID)
}

// History reads the change journal for a composite key, oldest first.
func (c *Controller) History(ctx context.Context, compositeKey string) ([]history.Record, error) {
	return c.history.Read(ctx, compositeKey)
}

// ForceRebuild drops the rendered structure and all cached mappings so the
// next pass builds regardless of fingerprints. Called on schema and session
// changes.
func (c *Controller) ForceRebuild() {
	c.structure = nil
	c.resolver.InvalidateAll()
}
