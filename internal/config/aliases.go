package config

import "slices"

// builtinAliases maps stock panel ids to display-name → legacy storage key
// tables. Earlier releases stored cells under free-text English keys; these
// tables keep that data reachable after fields moved to display names and
// positional storage. Tables are strictly panel-scoped: the same display
// name may map to different legacy keys on different panels, and an alias
// never resolves across panels.
var builtinAliases = map[string]map[string][]string{
	"character": {
		"姓名": {"name"},
		"年龄": {"age"},
		"性别": {"gender"},
		"职业": {"occupation", "job"},
		"等级": {"level"},
		"背景": {"background"},
	},
	"attributes": {
		"力量": {"strength", "str"},
		"敏捷": {"agility", "dex"},
		"智力": {"intelligence", "int"},
		"体质": {"constitution", "con"},
		"魅力": {"charisma", "cha"},
	},
	"inventory": {
		"名称": {"name", "item_name"},
		"数量": {"count", "quantity"},
		"描述": {"description", "desc"},
	},
	"quest": {
		"标题": {"title", "quest_name"},
		"状态": {"status"},
		"奖励": {"reward"},
	},
	"organization": {
		"名称": {"name", "org_name"},
		"关系": {"relation", "relationship"},
		"声望": {"reputation"},
	},
}

// mergeAliases appends built-in aliases after the configured ones, skipping
// duplicates. Configured aliases keep their order so user intent wins.
func mergeAliases(configured, builtin []string) []string {
	out := append([]string(nil), configured...)
	for _, a := range builtin {
		if !slices.Contains(out, a) {
			out = append(out, a)
		}
	}
	return out
}

// Default returns the stock panel set a fresh deployment renders before any
// user configuration exists. Panel ids match the builtin legacy alias
// tables, so data written by earlier releases resolves immediately.
func Default() *Document {
	return &Document{Panels: []Definition{
		{ID: "character", Title: "角色", Icon: "👤", Kind: "single",
			Fields: defs("姓名", "年龄", "性别", "职业", "等级", "背景")},
		{ID: "attributes", Title: "属性", Icon: "📊", Kind: "single",
			Fields: defs("力量", "敏捷", "智力", "体质", "魅力")},
		{ID: "inventory", Title: "物品", Icon: "🎒", Kind: "multi",
			Fields: defs("名称", "数量", "描述")},
		{ID: "quest", Title: "任务", Icon: "📜", Kind: "multi",
			Fields: defs("标题", "状态", "奖励")},
		{ID: "organization", Title: "组织", Icon: "🏰", Kind: "multi",
			Fields: defs("名称", "关系", "声望")},
	}}
}

func defs(names ...string) []FieldDefinition {
	out := make([]FieldDefinition, len(names))
	for i, n := range names {
		out[i] = FieldDefinition{Name: n}
	}
	return out
}
