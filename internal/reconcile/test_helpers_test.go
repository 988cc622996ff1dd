package reconcile

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/paneldiff/paneldiff/internal/history"
	"github.com/paneldiff/paneldiff/internal/panel"
	"github.com/paneldiff/paneldiff/internal/resolve"
	"github.com/paneldiff/paneldiff/internal/testutil"
)

// testSchema builds the shared fixture: a single-row character panel with
// three numbered fields and a multi-row npcs panel with two.
func testSchema(t *testing.T) *panel.Schema {
	t.Helper()
	s := panel.NewSchema()

	_, err := s.AddPanel(panel.Panel{ID: "character", Name: "角色", Kind: panel.KindSingle, Enabled: true})
	require.NoError(t, err)
	_, err = s.AddPanel(panel.Panel{ID: "npcs", Name: "NPC", Kind: panel.KindMulti, Enabled: true})
	require.NoError(t, err)

	addField(t, s, "character", "姓名", "name")
	addField(t, s, "character", "年龄", "age")
	addField(t, s, "character", "职业", "occupation")
	addField(t, s, "npcs", "名称", "name")
	addField(t, s, "npcs", "好感度", "favor")

	_, err = s.Renumber("character")
	require.NoError(t, err)
	_, err = s.Renumber("npcs")
	require.NoError(t, err)
	return s
}

func addField(t *testing.T, s *panel.Schema, panelID, name string, aliases ...string) {
	t.Helper()
	_, err := s.AddField(panelID, panel.Field{Name: name, Aliases: aliases, Enabled: true})
	require.NoError(t, err)
}

// memSurfaces is an in-memory SurfaceStore. Every successful save also lands
// on the saved channel so service tests can wait for pass completion without
// touching controller state from a second goroutine.
type memSurfaces struct {
	mu      sync.Mutex
	fps     map[string]string
	loadErr error
	saveErr error
	saved   chan string
}

func newMemSurfaces() *memSurfaces {
	return &memSurfaces{
		fps:   make(map[string]string),
		saved: make(chan string, 16),
	}
}

func (m *memSurfaces) LoadFingerprint(_ context.Context, surfaceID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return "", m.loadErr
	}
	return m.fps[surfaceID], nil
}

func (m *memSurfaces) SaveFingerprint(_ context.Context, surfaceID, fp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.fps[surfaceID] = fp
	select {
	case m.saved <- fp:
	default:
	}
	return nil
}

func (m *memSurfaces) setLoadErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadErr = err
}

func (m *memSurfaces) setSaveErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}

func (m *memSurfaces) get(surfaceID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fps[surfaceID]
}

// memHistory is an in-memory history.Store.
type memHistory struct {
	mu      sync.Mutex
	recs    map[string][]history.Record
	failing bool
}

func newMemHistory() *memHistory {
	return &memHistory{recs: make(map[string][]history.Record)}
}

func (m *memHistory) AppendHistory(_ context.Context, rec history.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return fmt.Errorf("history store unavailable")
	}
	rec.ID = int64(m.total() + 1)
	m.recs[rec.CompositeKey] = append(m.recs[rec.CompositeKey], rec)
	return nil
}

func (m *memHistory) ReadHistory(_ context.Context, key string) ([]history.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]history.Record(nil), m.recs[key]...), nil
}

func (m *memHistory) PruneHistory(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, key)
	return nil
}

func (m *memHistory) total() int {
	n := 0
	for _, rs := range m.recs {
		n += len(rs)
	}
	return n
}

func (m *memHistory) count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs[key])
}

// fixture bundles a controller with all its collaborators faked.
type fixture struct {
	schema   *panel.Schema
	resolver *resolve.Resolver
	surfaces *memSurfaces
	hist     *memHistory
	clock    *testutil.WallClock
	ctrl     *Controller
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		schema:   testSchema(t),
		surfaces: newMemSurfaces(),
		hist:     newMemHistory(),
		clock:    testutil.NewWallClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)),
	}
	f.resolver = resolve.New(f.schema, resolve.WithClock(f.clock.Now))
	log := history.NewLog(f.hist, history.WithClock(f.clock.Now))
	opts = append([]Option{WithClock(f.clock.Now)}, opts...)
	f.ctrl = New(f.schema, f.resolver, f.surfaces, log, "surface-1", opts...)
	return f
}

// characterSnap is the baseline snapshot: one character row under canonical
// positional keys, no npcs.
func characterSnap(name, age string) panel.Snapshot {
	return panel.Snapshot{
		SessionID: "sess-1",
		Rows: map[string][]panel.Row{
			"character": {{"col_1": name, "col_2": age}},
		},
	}
}
