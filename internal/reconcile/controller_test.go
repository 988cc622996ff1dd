package reconcile

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paneldiff/paneldiff/internal/history"
	"github.com/paneldiff/paneldiff/internal/panel"
)

func TestReconcile_FirstPassBuilds(t *testing.T) {
	f := newFixture(t)

	out := f.ctrl.Reconcile(context.Background(), characterSnap("Alice", "5"))

	assert.Equal(t, DecisionBuild, out.Decision)
	assert.Equal(t, "no structure rendered", out.Reason)
	assert.Empty(t, out.Previous)
	assert.Equal(t, 2, out.Panels)
	assert.Empty(t, out.Changed, "a build marks nothing")

	st := f.ctrl.Structure()
	require.NotNil(t, st)
	assert.Equal(t, "sess-1", st.SessionID)

	view, ok := st.Panel("character")
	require.True(t, ok)
	require.Len(t, view.Rows, 1)
	name, ok := view.Rows[0].Cell("姓名")
	require.True(t, ok)
	assert.Equal(t, "Alice", name.Value)
	assert.Equal(t, "col_1", name.Key)

	assert.Equal(t, string(out.Fingerprint), f.surfaces.get("surface-1"),
		"build should persist the fingerprint")
}

func TestReconcile_ValueChangePatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out1 := f.ctrl.Reconcile(ctx, characterSnap("Alice", "5"))
	st1 := f.ctrl.Structure()

	out2 := f.ctrl.Reconcile(ctx, characterSnap("Alice", "9"))

	assert.Equal(t, out1.Fingerprint, out2.Fingerprint,
		"value-only change must not move the fingerprint")
	assert.Equal(t, DecisionPatch, out2.Decision)
	assert.Equal(t, "fingerprint unchanged", out2.Reason)
	require.Same(t, st1, f.ctrl.Structure(), "a patch must not replace the structure")

	require.Len(t, out2.Changed, 1)
	ch := out2.Changed[0]
	assert.Equal(t, "character", ch.PanelID)
	assert.Equal(t, "年龄", ch.Field)
	assert.Equal(t, "col_2", ch.Key)
	assert.Equal(t, "5", ch.Old)
	assert.Equal(t, "9", ch.New)

	now := f.clock.Now()
	view, _ := st1.Panel("character")
	ageCell, ok := view.Rows[0].Cell("年龄")
	require.True(t, ok)
	assert.Equal(t, "9", ageCell.Value)
	assert.True(t, ageCell.Marked(now), "changed cell should carry a marker")

	nameCell, ok := view.Rows[0].Cell("姓名")
	require.True(t, ok)
	assert.False(t, nameCell.Marked(now), "untouched cell must stay unmarked")
}

func TestReconcile_FieldRemovalRebuilds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out1 := f.ctrl.Reconcile(ctx, characterSnap("Alice", "5"))
	st1 := f.ctrl.Structure()

	narrower := panel.Snapshot{
		SessionID: "sess-1",
		Rows: map[string][]panel.Row{
			"character": {{"col_1": "Alice"}},
		},
	}
	out2 := f.ctrl.Reconcile(ctx, narrower)

	assert.NotEqual(t, out1.Fingerprint, out2.Fingerprint)
	assert.Equal(t, DecisionBuild, out2.Decision)
	assert.Equal(t, "fingerprint changed", out2.Reason)
	assert.NotSame(t, st1, f.ctrl.Structure(), "a rebuild must swap in a new structure")
}

func TestReconcile_PatchIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.ctrl.Reconcile(ctx, characterSnap("Alice", "5"))
	out2 := f.ctrl.Reconcile(ctx, characterSnap("Alice", "9"))
	require.Len(t, out2.Changed, 1)

	out3 := f.ctrl.Reconcile(ctx, characterSnap("Alice", "9"))

	assert.Equal(t, DecisionPatch, out3.Decision)
	assert.Empty(t, out3.Changed, "identical input must patch nothing")
	assert.Equal(t, 1, f.hist.count("character:年龄"),
		"idempotent re-run must not append history")
}

func TestReconcile_ResolutionMissKeepsCell(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// col_3 (职业) never appears in the data.
	f.ctrl.Reconcile(ctx, characterSnap("Alice", "5"))
	view, _ := f.ctrl.Structure().Panel("character")
	occ, ok := view.Rows[0].Cell("职业")
	require.True(t, ok)
	assert.Empty(t, occ.Key, "unresolvable field renders blank")

	out := f.ctrl.Reconcile(ctx, characterSnap("Alice", "9"))

	require.Len(t, out.Changed, 1)
	assert.Equal(t, "年龄", out.Changed[0].Field)
	assert.Empty(t, occ.Value, "missed cell keeps its last-known value")
	assert.False(t, occ.Marked(f.clock.Now()))
}

func TestReconcile_EmptySingleRowRendersBlank(t *testing.T) {
	f := newFixture(t)

	out := f.ctrl.Reconcile(context.Background(), panel.Snapshot{SessionID: "sess-1"})

	assert.Equal(t, DecisionBuild, out.Decision)
	st := f.ctrl.Structure()

	character, ok := st.Panel("character")
	require.True(t, ok)
	require.Len(t, character.Rows, 1, "single panels always render one row")
	assert.Len(t, character.Rows[0].Cells, 3)
	for _, c := range character.Rows[0].Cells {
		assert.Empty(t, c.Value)
		assert.Empty(t, c.Key)
	}

	npcs, ok := st.Panel("npcs")
	require.True(t, ok)
	assert.Empty(t, npcs.Rows, "multi panels render no rows without data")
}

func TestReconcile_MultiRowPanel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	snap := func(mayorFavor string) panel.Snapshot {
		return panel.Snapshot{
			SessionID: "sess-1",
			Rows: map[string][]panel.Row{
				"npcs": {
					{"id": "npc1", "col_1": "Guard", "col_2": "10"},
					{"id": "npc2", "col_1": "Mayor", "col_2": mayorFavor},
				},
			},
		}
	}

	f.ctrl.Reconcile(ctx, snap("55"))
	view, _ := f.ctrl.Structure().Panel("npcs")
	require.Len(t, view.Rows, 2)
	assert.Equal(t, "npc1", view.Rows[0].EntityID)
	assert.Equal(t, "npc2", view.Rows[1].EntityID)

	out := f.ctrl.Reconcile(ctx, snap("60"))

	require.Len(t, out.Changed, 1)
	ch := out.Changed[0]
	assert.Equal(t, "npc2", ch.EntityID)
	assert.Equal(t, 1, ch.RowIndex)
	assert.Equal(t, "好感度", ch.Field)

	recs, err := f.hist.ReadHistory(ctx, "entity:npc2:好感度")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "55", recs[0].OldValue)
	assert.Equal(t, "60", recs[0].NewValue)
	assert.Equal(t, history.OriginExternal, recs[0].Origin)
}

func TestReconcile_MarkerExpires(t *testing.T) {
	f := newFixture(t, WithMarkDuration(2*time.Second))
	ctx := context.Background()

	f.ctrl.Reconcile(ctx, characterSnap("Alice", "5"))
	f.ctrl.Reconcile(ctx, characterSnap("Alice", "9"))

	st := f.ctrl.Structure()
	assert.Equal(t, 1, st.MarkedCount(f.clock.Now()))

	f.clock.Advance(1 * time.Second)
	assert.Equal(t, 1, st.MarkedCount(f.clock.Now()), "marker still live before the deadline")

	f.clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, 0, st.MarkedCount(f.clock.Now()), "marker expires lazily after the deadline")
}

func TestReconcile_HistoryUnavailableStillPatches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.ctrl.Reconcile(ctx, characterSnap("Alice", "5"))
	f.hist.failing = true

	out := f.ctrl.Reconcile(ctx, characterSnap("Alice", "9"))

	require.Len(t, out.Changed, 1, "history loss must not block the patch")
	view, _ := f.ctrl.Structure().Panel("character")
	cell, _ := view.Rows[0].Cell("年龄")
	assert.Equal(t, "9", cell.Value)
	assert.Equal(t, 0, f.hist.count("character:年龄"))
}

func TestReconcile_SurfaceLoadFailureForcesBuild(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.ctrl.Reconcile(ctx, characterSnap("Alice", "5"))
	f.surfaces.setLoadErr(fmt.Errorf("surface store down"))

	out := f.ctrl.Reconcile(ctx, characterSnap("Alice", "5"))

	assert.Equal(t, DecisionBuild, out.Decision)
	assert.Equal(t, "no persisted fingerprint", out.Reason,
		"an unreadable surface is treated as never seen")
}

func TestReconcile_SurfaceSaveFailureStillRenders(t *testing.T) {
	f := newFixture(t)
	f.surfaces.setSaveErr(fmt.Errorf("surface store down"))
	ctx := context.Background()

	out1 := f.ctrl.Reconcile(ctx, characterSnap("Alice", "5"))

	assert.Equal(t, DecisionBuild, out1.Decision)
	require.NotNil(t, f.ctrl.Structure(), "persist failure must not abandon the build")
	assert.Empty(t, f.surfaces.get("surface-1"))

	out2 := f.ctrl.Reconcile(ctx, characterSnap("Alice", "5"))
	assert.Equal(t, DecisionBuild, out2.Decision, "without a persisted fingerprint every pass rebuilds")
	assert.Equal(t, "no persisted fingerprint", out2.Reason)
}

func TestReconcile_ForceRebuild(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.ctrl.Reconcile(ctx, characterSnap("Alice", "5"))
	f.ctrl.Reconcile(ctx, characterSnap("Alice", "9"))

	f.ctrl.ForceRebuild()
	require.Nil(t, f.ctrl.Structure())

	out := f.ctrl.Reconcile(ctx, characterSnap("Alice", "9"))
	assert.Equal(t, DecisionBuild, out.Decision)
	assert.Equal(t, "no structure rendered", out.Reason)
}

func TestReconcile_FingerprintSurvivesReload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	out1 := f.ctrl.Reconcile(ctx, characterSnap("Alice", "5"))

	// A fresh controller over the same surface store models a reload.
	reloaded := newFixture(t)
	reloaded.surfaces = f.surfaces
	reloaded.ctrl = New(reloaded.schema, reloaded.resolver, f.surfaces,
		history.NewLog(reloaded.hist), "surface-1", WithClock(reloaded.clock.Now))

	out2 := reloaded.ctrl.Reconcile(ctx, characterSnap("Alice", "7"))
	assert.Equal(t, DecisionBuild, out2.Decision, "nothing rendered yet after reload")
	assert.Equal(t, string(out1.Fingerprint), out2.Previous,
		"the persisted fingerprint survives the reload")

	out3 := reloaded.ctrl.Reconcile(ctx, characterSnap("Alice", "8"))
	assert.Equal(t, DecisionPatch, out3.Decision,
		"once rendered, the persisted fingerprint lets value ticks patch")
}

func TestReconcile_DisabledPanelNotRendered(t *testing.T) {
	f := newFixture(t)
	npcs, ok := f.schema.Panel("npcs")
	require.True(t, ok)
	npcs.Enabled = false

	snap := panel.Snapshot{
		SessionID: "sess-1",
		Rows: map[string][]panel.Row{
			"character": {{"col_1": "Alice", "col_2": "5"}},
			"npcs":      {{"id": "npc1", "col_1": "Guard"}},
		},
	}
	out := f.ctrl.Reconcile(context.Background(), snap)

	assert.Equal(t, 1, out.Panels)
	_, ok = f.ctrl.Structure().Panel("npcs")
	assert.False(t, ok, "disabled panels contribute nothing")
}

func TestReconcile_PassTokens(t *testing.T) {
	f := newFixture(t, WithTokens(NewFixedGenerator("pass-1", "pass-2")))
	ctx := context.Background()

	out1 := f.ctrl.Reconcile(ctx, characterSnap("Alice", "5"))
	out2 := f.ctrl.Reconcile(ctx, characterSnap("Alice", "9"))

	assert.Equal(t, "pass-1", out1.Token)
	assert.Equal(t, "pass-2", out2.Token)
}

func TestReconcile_DisplayNameDataKeys(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Hosts sometimes write under display names instead of positional keys.
	snap := panel.Snapshot{
		SessionID: "sess-1",
		Rows: map[string][]panel.Row{
			"character": {{"姓名": "Alice", "年龄": "5"}},
		},
	}
	f.ctrl.Reconcile(ctx, snap)

	view, _ := f.ctrl.Structure().Panel("character")
	cell, ok := view.Rows[0].Cell("姓名")
	require.True(t, ok)
	assert.Equal(t, "姓名", cell.Key, "exact match wins before the mapping")
	assert.Equal(t, "Alice", cell.Value)
}

func TestDecision_String(t *testing.T) {
	assert.Equal(t, "build", DecisionBuild.String())
	assert.Equal(t, "patch", DecisionPatch.String())
	assert.Equal(t, "unknown", Decision(0).String())
}

func TestUUIDv7Generator_Format(t *testing.T) {
	gen := UUIDv7Generator{}
	a := gen.Generate()
	b := gen.Generate()

	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestFixedGenerator_ExhaustionPanics(t *testing.T) {
	gen := NewFixedGenerator("only")
	assert.Equal(t, "only", gen.Generate())
	assert.Panics(t, func() { gen.Generate() })
}
