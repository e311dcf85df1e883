package manifest

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Fabrica-Labs/forma/core/pkg/canonical"
)

var titleCaser = cases.Title(language.Und)

// Normalize lifts a raw manifest tree — v0 or any legacy v1 shape — to
// the canonical contract. It never fails: the output is a best-effort
// canonical shape and validation decides legality. Normalize is
// idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(raw map[string]any) map[string]any {
	m, _ := canonical.DeepCopy(raw).(map[string]any)
	if m == nil {
		m = map[string]any{}
	}

	if _, ok := m["manifest_version"].(string); !ok {
		m["manifest_version"] = LegacyVersion
	}

	normalizeModule(m)
	normalizeEntities(m)
	normalizeViews(m)
	normalizePages(m)

	if wf, ok := m["workflows"]; ok {
		m["workflows"] = collectionToList(wf)
	}

	return m
}

// normalizeModule folds legacy top-level module_id/id/name/version into
// the module object.
func normalizeModule(m map[string]any) {
	module, _ := m["module"].(map[string]any)
	if module == nil {
		module = map[string]any{}
	}
	if _, ok := module["id"]; !ok {
		if id, ok := m["module_id"].(string); ok {
			module["id"] = id
		} else if id, ok := m["id"].(string); ok {
			module["id"] = id
		}
	}
	if _, ok := module["name"]; !ok {
		if name, ok := m["name"].(string); ok {
			module["name"] = name
		}
	}
	if _, ok := module["version"]; !ok {
		if ver, ok := m["version"].(string); ok {
			module["version"] = ver
		}
	}
	delete(m, "module_id")
	delete(m, "id")
	delete(m, "name")
	delete(m, "version")
	m["module"] = module
}

func normalizeEntities(m map[string]any) {
	raw, ok := m["entities"]
	if !ok {
		return
	}
	entities := collectionToList(raw)
	for _, e := range entities {
		entity, ok := e.(map[string]any)
		if !ok {
			continue
		}
		if fields, ok := entity["fields"]; ok {
			list := collectionToList(fields)
			for _, f := range list {
				normalizeField(f)
			}
			entity["fields"] = list
		}
	}
	m["entities"] = entities
}

func normalizeField(f any) {
	field, ok := f.(map[string]any)
	if !ok {
		return
	}
	if field["type"] != "enum" {
		return
	}
	options, ok := field["options"].([]any)
	if !ok {
		return
	}
	for i, opt := range options {
		if s, ok := opt.(string); ok {
			options[i] = map[string]any{"value": s, "label": titleCase(s)}
		}
	}
	field["options"] = options
}

func normalizeViews(m map[string]any) {
	raw, ok := m["views"]
	if !ok {
		return
	}
	declared := declaredEntityIDs(m)
	views := collectionToList(raw)
	for _, v := range views {
		view, ok := v.(map[string]any)
		if !ok {
			continue
		}
		// Legacy key folding.
		if kind, ok := view["type"].(string); ok {
			if _, has := view["kind"]; !has {
				view["kind"] = kind
			}
			delete(view, "type")
		}
		for _, legacy := range []string{"entity_id", "entityId"} {
			if ent, ok := view[legacy].(string); ok {
				if _, has := view["entity"]; !has {
					view["entity"] = ent
				}
				delete(view, legacy)
			}
		}
		// Prefix a bare entity id when the prefixed form is declared.
		if ent, ok := view["entity"].(string); ok && !strings.HasPrefix(ent, "entity.") {
			if declared["entity."+ent] {
				view["entity"] = "entity." + ent
			}
		}

		switch view["kind"] {
		case "list":
			if _, has := view["columns"]; !has {
				if fields, ok := view["fields"].([]any); ok {
					columns := make([]any, 0, len(fields))
					for _, f := range fields {
						if id, ok := f.(string); ok {
							columns = append(columns, map[string]any{"field_id": id})
						}
					}
					view["columns"] = columns
				}
			}
		case "form":
			if _, has := view["sections"]; !has {
				if fields, ok := view["fields"].([]any); ok {
					view["sections"] = []any{map[string]any{
						"id":     "main",
						"title":  "Main",
						"fields": fields,
					}}
				}
			}
		}
	}
	m["views"] = views
}

func normalizePages(m map[string]any) {
	raw, ok := m["pages"]
	if !ok {
		return
	}
	pages := collectionToList(raw)
	for _, p := range pages {
		page, ok := p.(map[string]any)
		if !ok {
			continue
		}
		if content, ok := page["content"].([]any); ok {
			for _, b := range content {
				normalizeBlock(b)
			}
		}
	}
	m["pages"] = pages
}

// normalizeBlock rewrites a block and recurses into its children
// (content, items, tabs).
func normalizeBlock(b any) {
	block, ok := b.(map[string]any)
	if !ok {
		return
	}
	if block["kind"] == "view" {
		if target, ok := block["target"].(string); ok && !strings.HasPrefix(target, "view:") {
			block["target"] = "view:" + target
		}
	}
	for _, key := range []string{"content", "items", "tabs"} {
		children, ok := block[key].([]any)
		if !ok {
			continue
		}
		for _, child := range children {
			childMap, ok := child.(map[string]any)
			if !ok {
				continue
			}
			// Grid items and tabs wrap nested block lists.
			if nested, ok := childMap["content"].([]any); ok {
				for _, n := range nested {
					normalizeBlock(n)
				}
			}
			if _, isBlock := childMap["kind"]; isBlock {
				normalizeBlock(childMap)
			}
		}
	}
}

// collectionToList accepts either a list of objects or a map of id to
// object and always emits a list. Map entries get their key as id when
// the object declares none; map iteration is made deterministic by
// sorting keys.
func collectionToList(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, 0, len(keys))
		for _, k := range keys {
			item := t[k]
			if obj, ok := item.(map[string]any); ok {
				if _, has := obj["id"]; !has {
					obj["id"] = k
				}
				out = append(out, obj)
			} else {
				out = append(out, item)
			}
		}
		return out
	default:
		return []any{}
	}
}

func declaredEntityIDs(m map[string]any) map[string]bool {
	out := map[string]bool{}
	entities, ok := m["entities"].([]any)
	if !ok {
		return out
	}
	for _, e := range entities {
		if entity, ok := e.(map[string]any); ok {
			if id, ok := entity["id"].(string); ok {
				out[id] = true
			}
		}
	}
	return out
}

// titleCase derives a display label from an enum value:
// "in_progress" becomes "In Progress".
func titleCase(value string) string {
	return titleCaser.String(strings.ReplaceAll(value, "_", " "))
}
