package manifest

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Fabrica-Labs/forma/core/pkg/dsl"
	"github.com/Fabrica-Labs/forma/core/pkg/issue"
)

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Validate checks a canonical manifest against the contract. It
// accumulates as many issues as possible in a single call and never
// short-circuits on the first finding. expectedModuleID may be empty.
func Validate(m map[string]any, expectedModuleID string) (errs, warns []issue.Issue) {
	v := &validator{
		m:       m,
		version: getString(m, "manifest_version"),
		fields:  map[string]map[string]map[string]any{},
		views:   map[string]map[string]any{},
		pages:   map[string]bool{},
		actions: map[string]bool{},
		modals:  map[string]bool{},
	}
	v.run(expectedModuleID)
	return v.errs.Items(), v.warns.Items()
}

type validator struct {
	m       map[string]any
	version string
	errs    issue.List
	warns   issue.List

	// fields indexes entity id -> field id -> field object.
	fields  map[string]map[string]map[string]any
	views   map[string]map[string]any
	pages   map[string]bool
	actions map[string]bool
	modals  map[string]bool
}

func (v *validator) run(expectedModuleID string) {
	v.checkTopLevel()
	v.checkModule(expectedModuleID)
	v.index()
	v.checkEntities()
	v.checkViews()
	v.checkPages()
	v.checkActions()
	v.checkWorkflows()
	v.checkTriggers()
	v.checkApp()
}

func (v *validator) checkTopLevel() {
	if strings.HasPrefix(v.version, "1") {
		for key := range v.m {
			if !allowedTopLevelKeys[key] {
				v.errs.Addf(CodeUnknownKey, "/"+key, "unknown top-level key %q", key)
			}
		}
	}
	versionDeclared := v.version != "" && v.version != LegacyVersion
	for _, key := range []string{"app", "pages"} {
		if _, ok := v.m[key]; ok && !versionDeclared {
			v.errs.Addf(CodeVersionRequired, "/"+key, "%q requires an explicit manifest_version", key)
		}
	}
}

func (v *validator) checkModule(expectedModuleID string) {
	module, _ := v.m["module"].(map[string]any)
	if module == nil {
		v.errs.Add(issue.New(CodeStructureInvalid, "/module", "module object is required"))
		return
	}
	id := getString(module, "id")
	if id == "" {
		v.errs.Add(issue.New(CodeStructureInvalid, "/module/id", "module id is required"))
	}
	if expectedModuleID != "" && id != expectedModuleID {
		v.errs.Add(issue.Newf(CodeModuleIDMismatch, "/module/id",
			"module id %q does not match expected %q", id, expectedModuleID).
			WithDetail("expected", expectedModuleID))
	}
}

// index builds the cross-reference tables before any referential checks,
// so forward references (a lookup to a later entity, a page before its
// view) resolve.
func (v *validator) index() {
	for _, e := range getList(v.m, "entities") {
		entity, ok := e.(map[string]any)
		if !ok {
			continue
		}
		id := getString(entity, "id")
		if id == "" {
			continue
		}
		fieldIndex := map[string]map[string]any{}
		for _, f := range getList(entity, "fields") {
			if field, ok := f.(map[string]any); ok {
				if fid := getString(field, "id"); fid != "" {
					fieldIndex[fid] = field
				}
			}
		}
		v.fields[id] = fieldIndex
	}
	for _, view := range getList(v.m, "views") {
		if obj, ok := view.(map[string]any); ok {
			if id := getString(obj, "id"); id != "" {
				v.views[id] = obj
			}
		}
	}
	for _, p := range getList(v.m, "pages") {
		if obj, ok := p.(map[string]any); ok {
			if id := getString(obj, "id"); id != "" {
				v.pages[id] = true
			}
		}
	}
	for _, a := range getList(v.m, "actions") {
		if obj, ok := a.(map[string]any); ok {
			if id := getString(obj, "id"); id != "" {
				v.actions[id] = true
			}
		}
	}
	for _, mo := range getList(v.m, "modals") {
		if obj, ok := mo.(map[string]any); ok {
			if id := getString(obj, "id"); id != "" {
				v.modals[id] = true
			}
		}
	}
}

func (v *validator) checkEntities() {
	seen := map[string]bool{}
	for i, e := range getList(v.m, "entities") {
		path := fmt.Sprintf("/entities/%d", i)
		entity, ok := e.(map[string]any)
		if !ok {
			v.errs.Add(issue.New(CodeStructureInvalid, path, "entity must be an object"))
			continue
		}
		id := getString(entity, "id")
		if id == "" {
			v.errs.Add(issue.New(CodeStructureInvalid, path+"/id", "entity id is required"))
			continue
		}
		if seen[id] {
			v.errs.Addf(CodeDuplicateID, path+"/id", "duplicate entity id %q", id)
		}
		seen[id] = true
		if !strings.HasPrefix(id, "entity.") {
			v.errs.Addf(CodeEntityIDInvalid, path+"/id", "entity id %q must start with %q", id, "entity.")
		}
		if df := getString(entity, "display_field"); df != "" {
			if _, ok := v.fields[id][df]; !ok {
				v.errs.Addf(CodeUnknownField, path+"/display_field", "display_field %q is not a field of %q", df, id)
			}
		}
		v.checkFields(entity, id, path)
	}
}

func (v *validator) checkFields(entity map[string]any, entityID, entityPath string) {
	seen := map[string]bool{}
	for i, f := range getList(entity, "fields") {
		path := fmt.Sprintf("%s/fields/%d", entityPath, i)
		field, ok := f.(map[string]any)
		if !ok {
			v.errs.Add(issue.New(CodeStructureInvalid, path, "field must be an object"))
			continue
		}
		id := getString(field, "id")
		if id == "" {
			v.errs.Add(issue.New(CodeStructureInvalid, path+"/id", "field id is required"))
		} else if seen[id] {
			v.errs.Addf(CodeDuplicateID, path+"/id", "duplicate field id %q", id)
		}
		seen[id] = true

		ftype := getString(field, "type")
		if !FieldTypes[ftype] {
			v.errs.Addf(CodeFieldTypeInvalid, path+"/type", "unknown field type %q", ftype)
			continue
		}

		switch ftype {
		case "enum":
			v.checkEnumOptions(field, path)
		case "lookup":
			v.checkLookup(field, path)
		}

		required, _ := field["required"].(bool)
		readonly, _ := field["readonly"].(bool)
		system, _ := field["system"].(bool)
		if required && readonly && field["default"] == nil && !system {
			v.errs.Add(issue.New(CodeRequiredReadonlyInvalid, path,
				"required readonly field needs a default"))
		}

		if def, ok := field["default"]; ok && def != nil {
			v.checkDefault(field, ftype, def, path+"/default")
		}

		for _, key := range []string{"visible_when", "disabled_when", "required_when", "domain"} {
			if node, ok := field[key]; ok {
				v.checkCondition(node, path+"/"+key)
			}
		}
	}
}

func (v *validator) checkEnumOptions(field map[string]any, path string) {
	options, ok := field["options"].([]any)
	if !ok || len(options) == 0 {
		v.errs.Add(issue.New(CodeEnumOptionsInvalid, path+"/options", "enum options must be a non-empty list"))
		return
	}
	for i, opt := range options {
		obj, ok := opt.(map[string]any)
		if !ok || getString(obj, "value") == "" {
			v.errs.Addf(CodeEnumOptionsInvalid, fmt.Sprintf("%s/options/%d", path, i),
				"enum option must be an object with value and label")
		}
	}
}

func (v *validator) checkLookup(field map[string]any, path string) {
	target := getString(field, "entity")
	display := getString(field, "display_field")
	if target == "" || display == "" {
		v.errs.Add(issue.New(CodeLookupInvalid, path, "lookup fields declare entity and display_field"))
		return
	}
	targetFields, inModule := v.fields[target]
	if !inModule {
		v.warns.Addf(CodeExternalEntity, path+"/entity", "lookup target %q is not declared in this module", target)
		return
	}
	if _, ok := targetFields[display]; !ok {
		v.errs.Addf(CodeUnknownField, path+"/display_field",
			"display_field %q is not a field of %q", display, target)
	}
}

func (v *validator) checkDefault(field map[string]any, ftype string, def any, path string) {
	mismatch := func() {
		v.errs.Addf(CodeDefaultTypeMismatch, path, "default does not match field type %q", ftype)
	}
	switch ftype {
	case "string", "text", "lookup":
		if _, ok := def.(string); !ok {
			mismatch()
		}
	case "number":
		if _, ok := asValidatorNumber(def); !ok {
			mismatch()
		}
	case "bool":
		if _, ok := def.(bool); !ok {
			mismatch()
		}
	case "date":
		s, ok := def.(string)
		if !ok || !dateRe.MatchString(s) {
			mismatch()
		}
	case "datetime":
		s, ok := def.(string)
		if !ok {
			mismatch()
			return
		}
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			mismatch()
		}
	case "uuid":
		s, ok := def.(string)
		if !ok {
			mismatch()
			return
		}
		if _, err := uuid.Parse(s); err != nil {
			mismatch()
		}
	case "enum":
		s, ok := def.(string)
		if !ok {
			mismatch()
			return
		}
		options, _ := field["options"].([]any)
		for _, opt := range options {
			if obj, ok := opt.(map[string]any); ok && getString(obj, "value") == s {
				return
			}
		}
		v.errs.Addf(CodeDefaultTypeMismatch, path, "enum default %q is not an option value", s)
	case "tags":
		if _, ok := def.([]any); !ok {
			mismatch()
		}
	}
}

func (v *validator) checkCondition(node any, path string) {
	if !conditionsAllowed(v.version) {
		v.errs.Addf(CodeConditionVersionGated, path,
			"conditions require manifest_version >= %s", conditionMinVersion)
		return
	}
	for _, iss := range dsl.ValidateCondition(node, ConditionMaxDepth) {
		iss.Path = path + iss.Path
		v.errs.Add(iss)
	}
}

// checkFieldRef asserts fieldID exists on entityID; unknown entities were
// already reported by the caller.
func (v *validator) checkFieldRef(entityID, fieldID, path string) {
	fields, ok := v.fields[entityID]
	if !ok {
		return
	}
	if _, ok := fields[fieldID]; !ok {
		v.errs.Addf(CodeUnknownField, path, "field %q is not declared on %q", fieldID, entityID)
	}
}

func (v *validator) checkViews() {
	seen := map[string]bool{}
	for i, raw := range getList(v.m, "views") {
		path := fmt.Sprintf("/views/%d", i)
		view, ok := raw.(map[string]any)
		if !ok {
			v.errs.Add(issue.New(CodeStructureInvalid, path, "view must be an object"))
			continue
		}
		id := getString(view, "id")
		if id == "" {
			v.errs.Add(issue.New(CodeStructureInvalid, path+"/id", "view id is required"))
		} else if seen[id] {
			v.errs.Addf(CodeDuplicateID, path+"/id", "duplicate view id %q", id)
		}
		seen[id] = true

		kind := getString(view, "kind")
		if !ViewKinds[kind] {
			v.errs.Addf(CodeViewKindInvalid, path+"/kind", "unknown view kind %q", kind)
			continue
		}
		entityID := getString(view, "entity")
		if entityID == "" {
			v.errs.Add(issue.New(CodeStructureInvalid, path+"/entity", "view entity is required"))
			continue
		}
		if _, ok := v.fields[entityID]; !ok {
			v.warns.Addf(CodeExternalEntity, path+"/entity",
				"view entity %q is not declared in this module", entityID)
			continue
		}

		switch kind {
		case "list":
			for j, c := range getList(view, "columns") {
				if col, ok := c.(map[string]any); ok {
					v.checkFieldRef(entityID, getString(col, "field_id"), fmt.Sprintf("%s/columns/%d/field_id", path, j))
				}
			}
			if search, ok := view["search"].(map[string]any); ok {
				for j, f := range getList(search, "fields") {
					if fid, ok := f.(string); ok {
						v.checkFieldRef(entityID, fid, fmt.Sprintf("%s/search/fields/%d", path, j))
					}
				}
			}
			if filter, ok := view["filter"].(map[string]any); ok {
				if domain, ok := filter["domain"]; ok {
					v.checkCondition(domain, path+"/filter/domain")
				}
			}
		case "form":
			for j, s := range getList(view, "sections") {
				section, ok := s.(map[string]any)
				if !ok {
					continue
				}
				for k, f := range getList(section, "fields") {
					if fid, ok := f.(string); ok {
						v.checkFieldRef(entityID, fid, fmt.Sprintf("%s/sections/%d/fields/%d", path, j, k))
					}
				}
			}
		case "kanban":
			if card, ok := view["card"].(map[string]any); ok {
				if tf := getString(card, "title_field"); tf != "" {
					v.checkFieldRef(entityID, tf, path+"/card/title_field")
				}
				for j, f := range getList(card, "fields") {
					if fid, ok := f.(string); ok {
						v.checkFieldRef(entityID, fid, fmt.Sprintf("%s/card/fields/%d", path, j))
					}
				}
			}
			if gb := getString(view, "group_by"); gb != "" {
				v.checkFieldRef(entityID, gb, path+"/group_by")
			}
		case "graph":
			for _, key := range []string{"x_field", "y_field", "value_field"} {
				if fid := getString(view, key); fid != "" {
					v.checkFieldRef(entityID, fid, path+"/"+key)
				}
			}
		case "calendar":
			if cal, ok := view["calendar"].(map[string]any); ok {
				for _, key := range []string{"start_field", "end_field", "title_field"} {
					if fid := getString(cal, key); fid != "" {
						v.checkFieldRef(entityID, fid, path+"/calendar/"+key)
					}
				}
			}
		}

		if domain, ok := view["domain"]; ok {
			v.checkCondition(domain, path+"/domain")
		}
	}
}

func (v *validator) checkPages() {
	seen := map[string]bool{}
	for i, raw := range getList(v.m, "pages") {
		path := fmt.Sprintf("/pages/%d", i)
		page, ok := raw.(map[string]any)
		if !ok {
			v.errs.Add(issue.New(CodeStructureInvalid, path, "page must be an object"))
			continue
		}
		id := getString(page, "id")
		if id == "" {
			v.errs.Add(issue.New(CodeStructureInvalid, path+"/id", "page id is required"))
		} else if seen[id] {
			v.errs.Addf(CodeDuplicateID, path+"/id", "duplicate page id %q", id)
		}
		seen[id] = true

		if layout := getString(page, "layout"); layout != "" && layout != "single" {
			v.errs.Addf(CodeStructureInvalid, path+"/layout", "unknown layout %q", layout)
		}
		if header, ok := page["header"].(map[string]any); ok {
			v.checkBlock(header, path+"/header", 1)
		}
		for j, b := range getList(page, "content") {
			v.checkBlock(b, fmt.Sprintf("%s/content/%d", path, j), 1)
		}
	}
}

func (v *validator) checkBlock(raw any, path string, depth int) {
	if depth > MaxBlockDepth {
		v.errs.Addf(CodeBlockDepthExceeded, path, "block nesting exceeds %d", MaxBlockDepth)
		return
	}
	block, ok := raw.(map[string]any)
	if !ok {
		v.errs.Add(issue.New(CodeStructureInvalid, path, "block must be an object"))
		return
	}
	kind := getString(block, "kind")
	known, allowed := blockKindAllowed(kind, v.version)
	if !known {
		v.errs.Addf(CodeBlockKindInvalid, path+"/kind", "unknown block kind %q", kind)
		return
	}
	if !allowed {
		v.errs.Add(issue.Newf(CodeBlockVersionGated, path+"/kind",
			"block kind %q requires manifest_version >= %s", kind, blockKindMinVersion[kind]).
			WithDetail("min_version", blockKindMinVersion[kind]))
	}

	switch kind {
	case "view":
		target := getString(block, "target")
		id, ok := strings.CutPrefix(target, "view:")
		if !ok || id == "" {
			v.errs.Addf(CodeNavTargetInvalid, path+"/target", "view block target must be view:<id>, got %q", target)
		} else if _, exists := v.views[id]; !exists {
			v.errs.Addf(CodeNavTargetInvalid, path+"/target", "view %q does not exist", id)
		}
	case "grid":
		// An absent columns key means the implicit 12-column grid;
		// only a declared value is checked against GridColumns.
		if cols, ok := asValidatorNumber(block["columns"]); ok && cols != GridColumns {
			v.errs.Addf(CodeGridInvalid, path+"/columns", "grid columns must equal %d", GridColumns)
		}
		for j, item := range getList(block, "items") {
			itemPath := fmt.Sprintf("%s/items/%d", path, j)
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if span, ok := asValidatorNumber(obj["span"]); ok && (span < 1 || span > GridColumns) {
				v.errs.Addf(CodeGridInvalid, itemPath+"/span", "grid span must be in 1..%d", GridColumns)
			}
			for k, child := range getList(obj, "content") {
				v.checkBlock(child, fmt.Sprintf("%s/content/%d", itemPath, k), depth+1)
			}
		}
	case "tabs":
		tabIDs := map[string]bool{}
		for j, t := range getList(block, "tabs") {
			tabPath := fmt.Sprintf("%s/tabs/%d", path, j)
			tab, ok := t.(map[string]any)
			if !ok {
				continue
			}
			tid := getString(tab, "id")
			if tid == "" {
				v.errs.Add(issue.New(CodeTabInvalid, tabPath+"/id", "tab id is required"))
			} else if tabIDs[tid] {
				v.errs.Addf(CodeTabInvalid, tabPath+"/id", "duplicate tab id %q", tid)
			}
			tabIDs[tid] = true
			for k, child := range getList(tab, "content") {
				v.checkBlock(child, fmt.Sprintf("%s/content/%d", tabPath, k), depth+1)
			}
		}
		if dt := getString(block, "default_tab"); dt != "" && !tabIDs[dt] {
			v.errs.Addf(CodeTabInvalid, path+"/default_tab", "default_tab %q is not a declared tab", dt)
		}
	default:
		for j, child := range getList(block, "content") {
			v.checkBlock(child, fmt.Sprintf("%s/content/%d", path, j), depth+1)
		}
	}

	for _, key := range []string{"visible_when", "enabled_when"} {
		if node, ok := block[key]; ok {
			v.checkCondition(node, path+"/"+key)
		}
	}
}

func (v *validator) checkActions() {
	seen := map[string]bool{}
	for i, raw := range getList(v.m, "actions") {
		path := fmt.Sprintf("/actions/%d", i)
		action, ok := raw.(map[string]any)
		if !ok {
			v.errs.Add(issue.New(CodeStructureInvalid, path, "action must be an object"))
			continue
		}
		id := getString(action, "id")
		if id == "" {
			v.errs.Add(issue.New(CodeStructureInvalid, path+"/id", "action id is required"))
		} else if seen[id] {
			v.errs.Addf(CodeDuplicateID, path+"/id", "duplicate action id %q", id)
		}
		seen[id] = true

		kind := getString(action, "kind")
		if !ActionKinds[kind] {
			v.errs.Addf(CodeActionKindInvalid, path+"/kind", "unknown action kind %q", kind)
			continue
		}
		target := getString(action, "target")
		switch kind {
		case "navigate":
			v.checkNavTarget(target, path+"/target")
		case "open_form":
			if _, ok := v.views[target]; !ok {
				v.errs.Addf(CodeNavTargetInvalid, path+"/target", "open_form target %q is not a view", target)
			}
		case "refresh":
			if target != "" {
				v.errs.Add(issue.New(CodeNavTargetInvalid, path+"/target", "refresh actions carry no target"))
			}
		case "create_record", "update_record", "bulk_update":
			if entityID := getString(action, "entity_id"); entityID != "" {
				if _, ok := v.fields[entityID]; !ok {
					v.errs.Addf(CodeUnknownEntity, path+"/entity_id", "entity %q is not declared", entityID)
				}
			}
		}
		if modalID := getString(action, "modal_id"); modalID != "" && !v.modals[modalID] {
			v.errs.Addf(CodeNavTargetInvalid, path+"/modal_id", "modal %q does not exist", modalID)
		}
		for _, key := range []string{"visible_when", "enabled_when"} {
			if node, ok := action[key]; ok {
				v.checkCondition(node, path+"/"+key)
			}
		}
	}
}

// checkNavTarget validates a page:<id> / view:<id> navigation target.
func (v *validator) checkNavTarget(target, path string) {
	if id, ok := strings.CutPrefix(target, "page:"); ok {
		if !v.pages[id] {
			v.errs.Addf(CodeNavTargetInvalid, path, "page %q does not exist", id)
		}
		return
	}
	if id, ok := strings.CutPrefix(target, "view:"); ok {
		if _, exists := v.views[id]; !exists {
			v.errs.Addf(CodeNavTargetInvalid, path, "view %q does not exist", id)
		}
		return
	}
	v.errs.Addf(CodeNavTargetInvalid, path, "target %q must use the page: or view: prefix", target)
}

func (v *validator) checkWorkflows() {
	seen := map[string]bool{}
	for i, raw := range getList(v.m, "workflows") {
		path := fmt.Sprintf("/workflows/%d", i)
		wf, ok := raw.(map[string]any)
		if !ok {
			v.errs.Add(issue.New(CodeStructureInvalid, path, "workflow must be an object"))
			continue
		}
		id := getString(wf, "id")
		if id == "" {
			v.errs.Add(issue.New(CodeStructureInvalid, path+"/id", "workflow id is required"))
		} else if seen[id] {
			v.errs.Addf(CodeDuplicateID, path+"/id", "duplicate workflow id %q", id)
		}
		seen[id] = true

		entityID := getString(wf, "entity")
		entityFields, inModule := v.fields[entityID]
		if !inModule {
			v.warns.Addf(CodeExternalEntity, path+"/entity",
				"workflow entity %q is not declared in this module", entityID)
		}
		statusField := getString(wf, "status_field")
		if statusField == "" {
			v.errs.Add(issue.New(CodeWorkflowInvalid, path+"/status_field", "status_field is required"))
		} else if inModule {
			if _, ok := entityFields[statusField]; !ok {
				v.errs.Addf(CodeUnknownField, path+"/status_field",
					"status_field %q is not a field of %q", statusField, entityID)
			}
		}

		states := map[string]bool{}
		for j, s := range getList(wf, "states") {
			statePath := fmt.Sprintf("%s/states/%d", path, j)
			state, ok := s.(map[string]any)
			if !ok {
				v.errs.Add(issue.New(CodeWorkflowInvalid, statePath, "state must be an object"))
				continue
			}
			sid := getString(state, "id")
			if sid == "" {
				v.errs.Add(issue.New(CodeWorkflowInvalid, statePath+"/id", "state id is required"))
				continue
			}
			if states[sid] {
				v.errs.Addf(CodeDuplicateID, statePath+"/id", "duplicate state id %q", sid)
			}
			states[sid] = true
			if inModule {
				for k, f := range getList(state, "required_fields") {
					if fid, ok := f.(string); ok {
						v.checkFieldRef(entityID, fid, fmt.Sprintf("%s/required_fields/%d", statePath, k))
					}
				}
			}
		}

		for j, t := range getList(wf, "transitions") {
			transPath := fmt.Sprintf("%s/transitions/%d", path, j)
			trans, ok := t.(map[string]any)
			if !ok {
				v.errs.Add(issue.New(CodeWorkflowInvalid, transPath, "transition must be an object"))
				continue
			}
			for _, key := range []string{"from", "to"} {
				ref := getString(trans, key)
				if !states[ref] {
					v.errs.Addf(CodeWorkflowStateUnknown, transPath+"/"+key,
						"transition %s %q is not a declared state", key, ref)
				}
			}
			if guard, ok := trans["guard"]; ok {
				v.checkCondition(guard, transPath+"/guard")
			}
		}

		if byState, ok := wf["required_fields_by_state"].(map[string]any); ok {
			for sid, fieldsRaw := range byState {
				keyPath := path + "/required_fields_by_state/" + sid
				if !states[sid] {
					v.errs.Addf(CodeWorkflowStateUnknown, keyPath, "key %q is not a declared state", sid)
				}
				if inModule {
					if fields, ok := fieldsRaw.([]any); ok {
						for k, f := range fields {
							if fid, ok := f.(string); ok {
								v.checkFieldRef(entityID, fid, fmt.Sprintf("%s/%d", keyPath, k))
							}
						}
					}
				}
			}
		}
	}
}

func (v *validator) checkTriggers() {
	seen := map[string]bool{}
	for i, raw := range getList(v.m, "triggers") {
		path := fmt.Sprintf("/triggers/%d", i)
		trigger, ok := raw.(map[string]any)
		if !ok {
			v.errs.Add(issue.New(CodeStructureInvalid, path, "trigger must be an object"))
			continue
		}
		id := getString(trigger, "id")
		if id == "" {
			v.errs.Add(issue.New(CodeStructureInvalid, path+"/id", "trigger id is required"))
		} else if seen[id] {
			v.errs.Addf(CodeDuplicateID, path+"/id", "duplicate trigger id %q", id)
		}
		seen[id] = true

		event := getString(trigger, "event")
		if !TriggerEvents[event] {
			v.errs.Addf(CodeTriggerEventInvalid, path+"/event", "unknown trigger event %q", event)
			continue
		}
		switch event {
		case "record.created", "record.updated", "workflow.status_changed":
			entityID := getString(trigger, "entity_id")
			if _, ok := v.fields[entityID]; !ok {
				v.errs.Addf(CodeTriggerRefUnknown, path+"/entity_id",
					"%s triggers require a known entity_id, got %q", event, entityID)
			}
		case "action.clicked":
			if actionID := getString(trigger, "action_id"); !v.actions[actionID] {
				v.errs.Addf(CodeTriggerRefUnknown, path+"/action_id",
					"action.clicked triggers require a known action_id, got %q", actionID)
			}
		}
	}
}

func (v *validator) checkApp() {
	app, ok := v.m["app"].(map[string]any)
	if !ok {
		return
	}
	if home := getString(app, "home"); home != "" {
		v.checkNavTarget(home, "/app/home")
	}
	for i, n := range getList(app, "nav") {
		if item, ok := n.(map[string]any); ok {
			if target := getString(item, "target"); target != "" {
				v.checkNavTarget(target, fmt.Sprintf("/app/nav/%d/target", i))
			}
		}
	}
}

func getList(m map[string]any, key string) []any {
	list, _ := m[key].([]any)
	return list
}

func getString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func asValidatorNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		if n, ok := v.(interface{ Float64() (float64, error) }); ok {
			if f, err := n.Float64(); err == nil {
				return f, true
			}
		}
		return 0, false
	}
}
