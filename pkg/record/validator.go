// Package record validates record payloads against an entity definition
// and provides the record store contract those records live in.
package record

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Fabrica-Labs/forma/core/pkg/canonical"
	"github.com/Fabrica-Labs/forma/core/pkg/dsl"
	"github.com/Fabrica-Labs/forma/core/pkg/issue"
)

// Issue codes raised by payload validation.
const (
	CodeUnknownField    = "RECORD_UNKNOWN_FIELD"
	CodeRequired        = "RECORD_REQUIRED"
	CodeType            = "RECORD_TYPE"
	CodeEnumValue       = "RECORD_ENUM_VALUE"
	CodeStatusUnknown   = "RECORD_STATUS_UNKNOWN"
	CodeRequiredByState = "RECORD_REQUIRED_BY_STATE"
	CodeConditionError  = "RECORD_CONDITION_ERROR"
)

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ValidatePayload checks data against the entity's field set and
// returns the accumulated issues plus the payload that should be
// stored. On create, field defaults fill missing or null values before
// any required or type check runs. The input payload is never mutated.
//
// A workflow definition, when given, pins the entity's status field to
// one of the workflow states and enforces its per-state required
// fields.
func ValidatePayload(entity map[string]any, data map[string]any, forCreate bool, workflow map[string]any) ([]issue.Issue, map[string]any) {
	var errs issue.List

	fields := fieldIndex(entity)
	out := map[string]any{}
	for k, v := range data {
		out[k] = canonical.DeepCopy(v)
	}

	for key := range out {
		if key == "id" {
			continue
		}
		if _, ok := fields[key]; !ok {
			errs.Addf(CodeUnknownField, "/"+key, "field %q is not part of the entity", key)
		}
	}

	if forCreate {
		for id, field := range fields {
			def, ok := field["default"]
			if !ok {
				continue
			}
			if v, present := out[id]; !present || v == nil {
				out[id] = canonical.DeepCopy(def)
			}
		}
	}

	scope := conditionScope(out)
	for id, field := range fields {
		value, present := out[id]
		missing := !present || value == nil

		required, _ := field["required"].(bool)
		if !required {
			if cond, ok := field["required_when"]; ok {
				v, err := dsl.EvalCondition(cond, scope)
				var derr *dsl.Error
				switch {
				case err == nil:
					required = v
				case errors.As(err, &derr) && derr.Code == dsl.CodeConditionVar:
					// An unresolved variable means the triggering field
					// is absent, so the condition cannot hold.
				default:
					errs.Addf(CodeConditionError, "/"+id, "required_when failed: %v", err)
				}
			}
		}
		if missing {
			if required && forCreate {
				errs.Addf(CodeRequired, "/"+id, "field %q is required", id)
			}
			if required && !forCreate && present {
				// An explicit null on update still violates required.
				errs.Addf(CodeRequired, "/"+id, "field %q is required", id)
			}
			continue
		}

		checkType(&errs, id, field, value)
	}

	if workflow != nil {
		checkWorkflowStatus(&errs, workflow, out)
	}

	return errs.Items(), out
}

func checkType(errs *issue.List, id string, field map[string]any, value any) {
	kind, _ := field["type"].(string)
	path := "/" + id
	switch kind {
	case "string", "text", "lookup":
		if _, ok := value.(string); !ok {
			errs.Addf(CodeType, path, "field %q expects a string, got %T", id, value)
		}
	case "number":
		if _, ok := asNumber(value); !ok {
			errs.Addf(CodeType, path, "field %q expects a number, got %T", id, value)
		}
	case "bool":
		if _, ok := value.(bool); !ok {
			errs.Addf(CodeType, path, "field %q expects a bool, got %T", id, value)
		}
	case "date":
		s, ok := value.(string)
		if !ok || !dateRe.MatchString(s) {
			errs.Addf(CodeType, path, "field %q expects a YYYY-MM-DD date", id)
			return
		}
		if _, err := time.Parse("2006-01-02", s); err != nil {
			errs.Addf(CodeType, path, "field %q expects a valid date: %v", id, err)
		}
	case "datetime":
		s, ok := value.(string)
		if !ok {
			errs.Addf(CodeType, path, "field %q expects an ISO-8601 timestamp", id)
			return
		}
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			errs.Addf(CodeType, path, "field %q expects an ISO-8601 timestamp: %v", id, err)
		}
	case "uuid":
		s, ok := value.(string)
		if !ok {
			errs.Addf(CodeType, path, "field %q expects a UUID string", id)
			return
		}
		if _, err := uuid.Parse(s); err != nil {
			errs.Addf(CodeType, path, "field %q expects a UUID: %v", id, err)
		}
	case "enum":
		s, ok := value.(string)
		if !ok {
			errs.Addf(CodeType, path, "field %q expects an enum value string", id)
			return
		}
		allowed := enumValues(field)
		if !allowed[s] {
			errs.Addf(CodeEnumValue, path, "field %q has no option %q", id, s)
		}
	case "tags":
		if _, ok := value.([]any); !ok {
			errs.Addf(CodeType, path, "field %q expects a list, got %T", id, value)
		}
	}
}

func checkWorkflowStatus(errs *issue.List, workflow map[string]any, data map[string]any) {
	statusField, _ := workflow["status_field"].(string)
	if statusField == "" {
		statusField = "status"
	}
	status, _ := data[statusField].(string)

	states := map[string]bool{}
	if list, ok := workflow["states"].([]any); ok {
		for _, raw := range list {
			if obj, ok := raw.(map[string]any); ok {
				if id, _ := obj["id"].(string); id != "" {
					states[id] = true
				}
			}
		}
	}
	if !states[status] {
		errs.Addf(CodeStatusUnknown, "/"+statusField,
			"status %q is not a workflow state", status)
		return
	}

	byState, _ := workflow["required_fields_by_state"].(map[string]any)
	needed, _ := byState[status].([]any)
	for _, raw := range needed {
		fieldID, ok := raw.(string)
		if !ok {
			continue
		}
		if v, present := data[fieldID]; !present || v == nil {
			errs.Addf(CodeRequiredByState, "/"+fieldID,
				"field %q is required in state %q", fieldID, status)
		}
	}
}

// conditionScope exposes the payload to required_when conditions under
// "record", expanding dotted field ids into nested objects so var paths
// like "record.job.status" resolve.
func conditionScope(data map[string]any) map[string]any {
	record := map[string]any{}
	for key, v := range data {
		parts := strings.Split(key, ".")
		node := record
		for i, part := range parts {
			if i == len(parts)-1 {
				node[part] = v
				break
			}
			next, ok := node[part].(map[string]any)
			if !ok {
				next = map[string]any{}
				node[part] = next
			}
			node = next
		}
	}
	return map[string]any{"record": record}
}

func fieldIndex(entity map[string]any) map[string]map[string]any {
	out := map[string]map[string]any{}
	list, _ := entity["fields"].([]any)
	for _, raw := range list {
		field, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if id, _ := field["id"].(string); id != "" {
			out[id] = field
		}
	}
	return out
}

// enumValues accepts both option shapes the normalizer knows: plain
// strings and {value, label} objects.
func enumValues(field map[string]any) map[string]bool {
	out := map[string]bool{}
	options, _ := field["options"].([]any)
	for _, raw := range options {
		switch opt := raw.(type) {
		case string:
			out[opt] = true
		case map[string]any:
			if v, _ := opt["value"].(string); v != "" {
				out[v] = true
			}
		}
	}
	return out
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
