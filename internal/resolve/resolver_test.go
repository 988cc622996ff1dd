package resolve

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paneldiff/paneldiff/internal/panel"
)

func testSchema(t *testing.T) *panel.Schema {
	t.Helper()
	s := panel.NewSchema()
	_, err := s.AddPanel(panel.Panel{ID: "p1", Name: "角色状态", Kind: panel.KindSingle, Enabled: true})
	require.NoError(t, err)
	for _, f := range []panel.Field{
		{Name: "姓名", Aliases: []string{"name"}, Enabled: true},
		{Name: "年龄", Aliases: []string{"age"}, Enabled: true},
		{Name: "好感度", Enabled: true},
	} {
		_, err := s.AddField("p1", f)
		require.NoError(t, err)
	}
	_, err = s.Renumber("p1")
	require.NoError(t, err)
	return s
}

func TestResolveExactKey(t *testing.T) {
	r := New(testSchema(t))
	res, ok := r.Resolve("p1", panel.Named("姓名"), panel.Row{"姓名": "Alice"})
	require.True(t, ok)
	assert.Equal(t, "姓名", res.Key)
	assert.Equal(t, StepExact, res.Step)
}

func TestResolveDisplayNameAgainstPositionalRow(t *testing.T) {
	// The field 姓名 sits at position 1, the row stores it under col_1.
	r := New(testSchema(t))
	res, ok := r.Resolve("p1", panel.Named("姓名"), panel.Row{"col_1": "Alice"})
	require.True(t, ok)
	assert.Equal(t, "col_1", res.Key)
}

func TestResolvePositionalVariants(t *testing.T) {
	r := New(testSchema(t))

	// Fused spelling is invisible to the mapping, the positional rung
	// walks the variants.
	res, ok := r.Resolve("p1", panel.Named("年龄"), panel.Row{"col2": "5"})
	require.True(t, ok)
	assert.Equal(t, "col2", res.Key)
	assert.Equal(t, StepPositional, res.Step)

	res, ok = r.Resolve("p1", panel.Named("年龄"), panel.Row{"2": "5"})
	require.True(t, ok)
	assert.Equal(t, "2", res.Key)
	assert.Equal(t, StepPositional, res.Step)
}

func TestResolvePositionalRef(t *testing.T) {
	r := New(testSchema(t))
	res, ok := r.Resolve("p1", panel.Positional(1), panel.Row{"col_1": "Alice"})
	require.True(t, ok)
	assert.Equal(t, "col_1", res.Key)
	assert.Equal(t, StepExact, res.Step, "canonical spelling is already a row key")
}

func TestResolveAliasTowardDisplayName(t *testing.T) {
	r := New(testSchema(t))
	res, ok := r.Resolve("p1", panel.LegacyAlias("name"), panel.Row{"姓名": "Alice"})
	require.True(t, ok)
	assert.Equal(t, "姓名", res.Key)
	assert.Equal(t, StepAlias, res.Step)
}

func TestResolveDisplayNameTowardAlias(t *testing.T) {
	r := New(testSchema(t))
	res, ok := r.Resolve("p1", panel.Named("姓名"), panel.Row{"name": "Alice"})
	require.True(t, ok)
	assert.Equal(t, "name", res.Key)
	assert.Equal(t, StepAlias, res.Step)
}

func TestResolveNamespacedStrip(t *testing.T) {
	r := New(testSchema(t))
	res, ok := r.Resolve("p1", panel.ParseRef("npc7.姓名"), panel.Row{"col_1": "Rin"})
	require.True(t, ok)
	assert.Equal(t, "col_1", res.Key)
	assert.Equal(t, StepNamespaced, res.Step)
}

func TestResolveNamespacedAdd(t *testing.T) {
	r := New(testSchema(t))
	row := panel.Row{"id": "npc7", "npc7.好感度": "80"}
	res, ok := r.Resolve("p1", panel.Named("好感度"), row)
	require.True(t, ok)
	assert.Equal(t, "npc7.好感度", res.Key)
	assert.Equal(t, StepNamespaced, res.Step)
}

func TestResolveCaseFold(t *testing.T) {
	r := New(testSchema(t))
	res, ok := r.Resolve("p1", panel.Named("Hp"), panel.Row{"hP": "10"})
	require.True(t, ok)
	assert.Equal(t, "hP", res.Key)
	assert.Equal(t, StepCaseFold, res.Step)
}

func TestResolveCaseFoldPicksSmallestKey(t *testing.T) {
	r := New(testSchema(t))
	res, ok := r.Resolve("p1", panel.Named("Mp"), panel.Row{"mp": "3", "MP": "4"})
	require.True(t, ok)
	assert.Equal(t, "MP", res.Key, "ties break on byte order, never map order")
}

func TestResolveMiss(t *testing.T) {
	r := New(testSchema(t))
	_, ok := r.Resolve("p1", panel.Named("不存在"), panel.Row{"col_1": "Alice"})
	assert.False(t, ok)
}

func TestMappingFirstDeclarationWins(t *testing.T) {
	s := panel.NewSchema()
	_, err := s.AddPanel(panel.Panel{ID: "p1", Name: "p", Kind: panel.KindSingle, Enabled: true})
	require.NoError(t, err)
	_, err = s.AddField("p1", panel.Field{Name: "一", Aliases: []string{"dup"}, Enabled: true})
	require.NoError(t, err)
	_, err = s.AddField("p1", panel.Field{Name: "二", Aliases: []string{"dup"}, Enabled: true})
	require.NoError(t, err)
	_, err = s.Renumber("p1")
	require.NoError(t, err)

	r := New(s)
	key, ok := r.Mapping("p1").Lookup("dup")
	require.True(t, ok)
	assert.Equal(t, "col_1", key)
}

func TestMappingExpiresAfterTTL(t *testing.T) {
	s := testSchema(t)
	r := New(s, WithCacheTTL(20*time.Millisecond))

	_, ok := r.Mapping("p1").Lookup("等级")
	require.False(t, ok)

	// Schema grows; the live mapping does not see it yet.
	_, err := s.AddField("p1", panel.Field{Name: "等级", Enabled: true})
	require.NoError(t, err)
	_, ok = r.Mapping("p1").Lookup("等级")
	assert.False(t, ok, "mapping stays cached inside the TTL window")

	time.Sleep(40 * time.Millisecond)
	_, ok = r.Mapping("p1").Lookup("等级")
	assert.True(t, ok, "expired mapping must rebuild from the current schema")
}

func TestInvalidateRebuildsImmediately(t *testing.T) {
	s := testSchema(t)
	r := New(s)

	r.Mapping("p1")
	_, err := s.AddField("p1", panel.Field{Name: "等级", Enabled: true})
	require.NoError(t, err)

	r.Invalidate("p1")
	_, ok := r.Mapping("p1").Lookup("等级")
	assert.True(t, ok)
}

func TestInvalidateAll(t *testing.T) {
	s := testSchema(t)
	r := New(s)
	before := r.Mapping("p1")

	r.InvalidateAll()
	after := r.Mapping("p1")
	assert.NotSame(t, before, after)
}

func TestWriteKey(t *testing.T) {
	r := New(testSchema(t))

	key, known := r.WriteKey("p1", panel.Named("姓名"))
	assert.True(t, known)
	assert.Equal(t, "col_1", key)

	key, known = r.WriteKey("p1", panel.LegacyAlias("age"))
	assert.True(t, known)
	assert.Equal(t, "col_2", key)

	key, known = r.WriteKey("p1", panel.Positional(5))
	assert.True(t, known)
	assert.Equal(t, "col_5", key)

	key, known = r.WriteKey("p1", panel.ParseRef("npc7.好感度"))
	assert.True(t, known)
	assert.Equal(t, "col_3", key)

	key, known = r.WriteKey("p1", panel.Named("未知字段"))
	assert.False(t, known)
	assert.Equal(t, "未知字段", key)
}

func TestMappingUnnumberedFieldKeepsDisplayName(t *testing.T) {
	s := testSchema(t)
	_, err := s.AddField("p1", panel.Field{Name: "等级", Enabled: true})
	require.NoError(t, err)

	r := New(s)
	key, ok := r.Mapping("p1").Lookup("等级")
	require.True(t, ok)
	assert.Equal(t, "等级", key, "fields without a storage position store under their name")
}
