// Package manifest defines the canonical manifest contract: the tagged
// kinds of entities, fields, views, pages, actions, workflows, and
// triggers; the normalizer that lifts legacy shapes (v0 and early v1) to
// the current contract; and the validator that enforces structural and
// cross-referential integrity with version-gated features.
//
// Manifests travel as generic JSON trees (map[string]any) because they
// are hashed, patched, and stored content-addressed; the kind tables in
// this file are the single source of truth for what those trees may
// contain at each manifest_version.
package manifest

import "github.com/Masterminds/semver/v3"

// CurrentVersion is the newest manifest contract version.
const CurrentVersion = "1.3"

// LegacyVersion is assigned to manifests that declare no version.
const LegacyVersion = "0.x"

// FieldTypes enumerates the allowed field type tags.
var FieldTypes = map[string]bool{
	"string": true, "text": true, "number": true, "bool": true,
	"date": true, "datetime": true, "enum": true, "uuid": true,
	"lookup": true, "tags": true, "attachments": true,
}

// ViewKinds enumerates the allowed view kinds.
var ViewKinds = map[string]bool{
	"list": true, "form": true, "kanban": true, "graph": true, "calendar": true,
}

// ActionKinds enumerates the allowed action kinds.
var ActionKinds = map[string]bool{
	"navigate": true, "open_form": true, "refresh": true,
	"create_record": true, "update_record": true, "bulk_update": true,
}

// TriggerEvents enumerates the allowed trigger events.
var TriggerEvents = map[string]bool{
	"record.created": true, "record.updated": true,
	"action.clicked": true, "workflow.status_changed": true,
}

// MaxBlockDepth bounds page block tree nesting.
const MaxBlockDepth = 6

// GridColumns is the fixed page grid width.
const GridColumns = 12

// ConditionMaxDepth bounds condition nesting at authoring time.
const ConditionMaxDepth = 6

// blockKindMinVersion gates block kinds by manifest_version. Gating is
// data, not conditional code: a kind is allowed when the manifest version
// is at least the listed minimum.
var blockKindMinVersion = map[string]string{
	"view":         "1.0",
	"stack":        "1.1",
	"grid":         "1.1",
	"tabs":         "1.1",
	"text":         "1.1",
	"chatter":      "1.2",
	"container":    "1.3",
	"toolbar":      "1.3",
	"statusbar":    "1.3",
	"record":       "1.3",
	"view_modes":   "1.3",
	"related_list": "1.3",
}

// conditionMinVersion gates the condition DSL keys on fields, actions,
// and views.
const conditionMinVersion = "1.2"

// allowedTopLevelKeys is the v1 top-level allowlist.
var allowedTopLevelKeys = map[string]bool{
	"manifest_version": true, "module": true, "entities": true,
	"views": true, "pages": true, "actions": true, "workflows": true,
	"triggers": true, "relations": true, "modals": true, "app": true,
}

// parseVersion parses a manifest_version. Versions that do not parse
// (including the "0.x" legacy marker) gate as version zero: every gated
// feature is unavailable.
func parseVersion(raw string) *semver.Version {
	v, err := semver.NewVersion(raw)
	if err != nil {
		return semver.New(0, 0, 0, "", "")
	}
	return v
}

// versionAtLeast reports whether manifest version raw satisfies min.
func versionAtLeast(raw, min string) bool {
	return !parseVersion(raw).LessThan(parseVersion(min))
}

// blockKindAllowed reports whether kind exists and is available at the
// given manifest version.
func blockKindAllowed(kind, version string) (known, allowed bool) {
	min, ok := blockKindMinVersion[kind]
	if !ok {
		return false, false
	}
	return true, versionAtLeast(version, min)
}

// conditionsAllowed reports whether the condition DSL is available.
func conditionsAllowed(version string) bool {
	return versionAtLeast(version, conditionMinVersion)
}
