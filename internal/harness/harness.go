package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/paneldiff/paneldiff/internal/config"
	"github.com/paneldiff/paneldiff/internal/history"
	"github.com/paneldiff/paneldiff/internal/panel"
	"github.com/paneldiff/paneldiff/internal/reconcile"
	"github.com/paneldiff/paneldiff/internal/resolve"
	"github.com/paneldiff/paneldiff/internal/store"
	"github.com/paneldiff/paneldiff/internal/testutil"
)

// Defaults applied when a scenario leaves the matching field empty.
const (
	DefaultSession = "sess-1"
	DefaultSurface = "surface-1"
)

// DefaultStart is the clock start for scenarios without a start_time.
var DefaultStart = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// runner holds the wiring one scenario executes against.
type runner struct {
	store   *store.Store
	schema  *panel.Schema
	ctrl    *reconcile.Controller
	clock   *testutil.WallClock
	session string
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory database for isolation and a
// deterministic clock and token stream for reproducible traces.
//
// Execution flow:
//  1. Validate the scenario and build its panel schema
//  2. Open a fresh in-memory store
//  3. Execute every step, recording one trace entry per pass
//  4. Evaluate assertions against the traces and the final structure
//  5. Return the result with pass/fail, traces, and errors
//
// The returned error covers infrastructure failures only; assertion
// failures land in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	doc := config.Document{Panels: scenario.Panels}
	schema, err := doc.Build()
	if err != nil {
		return nil, fmt.Errorf("build schema: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	start := DefaultStart
	if scenario.StartTime != "" {
		// Validated above.
		start, _ = time.Parse(time.RFC3339, scenario.StartTime)
	}
	clock := testutil.NewWallClock(start)

	// Suppress logs in tests.
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	resolver := resolve.New(schema,
		resolve.WithClock(clock.Now),
		resolve.WithLogger(log),
	)
	hist := history.NewLog(st,
		history.WithClock(clock.Now),
		history.WithLogger(log),
	)
	ctrl := reconcile.New(schema, resolver, st, hist, scenario.surface(),
		reconcile.WithClock(clock.Now),
		reconcile.WithLogger(log),
		reconcile.WithTokens(reconcile.NewFixedGenerator(scenario.tokens()...)),
	)

	r := &runner{
		store:   st,
		schema:  schema,
		ctrl:    ctrl,
		clock:   clock,
		session: scenario.session(),
	}

	ctx := context.Background()
	result := NewResult()
	for i, step := range scenario.Steps {
		if err := r.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for _, msg := range evaluateAssertions(ctx, scenario.Assertions, r, result) {
		result.AddError(msg)
	}

	return result, nil
}

func (s *Scenario) session() string {
	if s.Session != "" {
		return s.Session
	}
	return DefaultSession
}

func (s *Scenario) surface() string {
	if s.Surface != "" {
		return s.Surface
	}
	return DefaultSurface
}

func (s *Scenario) tokens() []string {
	if len(s.Tokens) > 0 {
		return s.Tokens
	}
	out := make([]string, len(s.Steps))
	for i := range out {
		out[i] = fmt.Sprintf("pass-%d", i+1)
	}
	return out
}

// executeStep applies one step's mutation and, unless the step is a bare
// clock advance, runs a reconciliation pass over the session's data.
func (r *runner) executeStep(ctx context.Context, idx int, step Step, result *Result) error {
	switch {
	case step.Rows != nil:
		if err := r.upsertRows(ctx, step.Rows); err != nil {
			return err
		}
	case step.DeleteRow != nil:
		if err := r.store.DeleteRow(ctx, r.session, step.DeleteRow.Panel, step.DeleteRow.Row); err != nil {
			return fmt.Errorf("delete row: %w", err)
		}
	case step.DeleteKeys != nil:
		if err := r.store.DeleteKeys(ctx, r.session, step.DeleteKeys.Panel, step.DeleteKeys.Keys...); err != nil {
			return fmt.Errorf("delete keys: %w", err)
		}
	case step.DisableField != nil:
		if err := r.toggleField(ctx, step.DisableField, false); err != nil {
			return fmt.Errorf("disable field: %w", err)
		}
	case step.EnableField != nil:
		if err := r.toggleField(ctx, step.EnableField, true); err != nil {
			return fmt.Errorf("enable field: %w", err)
		}
	case step.SwitchSession != "":
		r.session = step.SwitchSession
		r.ctrl.ForceRebuild()
	case step.Advance != "":
		d, _ := time.ParseDuration(step.Advance) // validated on load
		r.clock.Advance(d)
		return nil
	}

	return r.pass(ctx, idx, result)
}

// upsertRows writes the step's cell data. Panels and keys are walked in
// sorted order so traces never depend on map iteration.
func (r *runner) upsertRows(ctx context.Context, data map[string][]panel.Row) error {
	panelIDs := make([]string, 0, len(data))
	for id := range data {
		panelIDs = append(panelIDs, id)
	}
	slices.Sort(panelIDs)

	for _, panelID := range panelIDs {
		for rowIdx, row := range data[panelID] {
			keys := make([]string, 0, len(row))
			for k := range row {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			for _, k := range keys {
				if err := r.store.UpsertCell(ctx, r.session, panelID, rowIdx, k, row[k]); err != nil {
					return fmt.Errorf("upsert %s[%d].%s: %w", panelID, rowIdx, k, err)
				}
			}
		}
	}
	return nil
}

// toggleField flips a field's enabled flag, renumbers the panel's storage
// positions, and migrates stored data: the disabled field's keys are
// removed first so renumber moves land on free slots.
func (r *runner) toggleField(ctx context.Context, target *FieldTarget, enable bool) error {
	f, ok := r.schema.FieldByName(target.Panel, target.Field)
	if !ok {
		return fmt.Errorf("panel %q has no field %q", target.Panel, target.Field)
	}
	oldPos := f.Pos

	if err := r.schema.SetFieldEnabled(f.ID, enable); err != nil {
		return err
	}
	moves, err := r.schema.Renumber(target.Panel)
	if err != nil {
		return err
	}

	if !enable && oldPos > 0 {
		if err := r.store.DeleteKeys(ctx, r.session, target.Panel, panel.PositionKeyVariants(oldPos)...); err != nil {
			return fmt.Errorf("clear disabled field data: %w", err)
		}
	}
	if err := r.store.ApplyKeyRemap(ctx, r.session, target.Panel, moves); err != nil {
		return fmt.Errorf("remap keys: %w", err)
	}
	return nil
}

// pass loads the active session's snapshot and runs one reconciliation
// pass, recording its trace. stepIdx is 0-based.
func (r *runner) pass(ctx context.Context, stepIdx int, result *Result) error {
	snap, err := r.store.GetSessionSnapshot(ctx, r.session)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	out := r.ctrl.Reconcile(ctx, snap)
	result.AddPass(stepIdx+1, out)
	return nil
}
