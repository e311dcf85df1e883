package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jobEntity() map[string]any {
	return map[string]any{
		"id": "entity.job",
		"fields": []any{
			map[string]any{"id": "job.title", "type": "string", "required": true},
			map[string]any{"id": "job.priority", "type": "number", "default": float64(3)},
			map[string]any{"id": "job.done", "type": "bool"},
			map[string]any{"id": "job.due", "type": "date"},
			map[string]any{"id": "job.created", "type": "datetime"},
			map[string]any{"id": "job.owner", "type": "uuid"},
			map[string]any{"id": "job.status", "type": "enum", "options": []any{
				map[string]any{"value": "open", "label": "Open"},
				map[string]any{"value": "closed", "label": "Closed"},
			}},
			map[string]any{"id": "job.account", "type": "lookup"},
			map[string]any{"id": "job.labels", "type": "tags"},
			map[string]any{"id": "job.closed_note", "type": "text", "required_when": map[string]any{
				"op":    "eq",
				"left":  map[string]any{"var": "record.job.status"},
				"right": map[string]any{"literal": "closed"},
			}},
		},
	}
}

func TestValidatePayload_GoldenPath(t *testing.T) {
	errs, out := ValidatePayload(jobEntity(), map[string]any{
		"job.title":   "Fix the door",
		"job.done":    false,
		"job.due":     "2026-04-01",
		"job.created": "2026-03-01T12:00:00Z",
		"job.owner":   "7b7f4f3e-8a7e-4f5f-9d35-02a4a3f0a111",
		"job.status":  "open",
		"job.account": "acct-1",
		"job.labels":  []any{"urgent"},
	}, true, nil)
	assert.Empty(t, errs)
	assert.Equal(t, float64(3), out["job.priority"], "default applied on create")
}

func TestValidatePayload_UnknownFieldRejected(t *testing.T) {
	errs, _ := ValidatePayload(jobEntity(), map[string]any{
		"id":        "rec-1",
		"job.title": "ok",
		"job.bogus": 1,
	}, true, nil)
	require.Len(t, errs, 1)
	assert.Equal(t, CodeUnknownField, errs[0].Code)
	assert.Equal(t, "/job.bogus", errs[0].Path)
}

func TestValidatePayload_RequiredOnCreate(t *testing.T) {
	errs, _ := ValidatePayload(jobEntity(), map[string]any{}, true, nil)
	require.Len(t, errs, 1)
	assert.Equal(t, CodeRequired, errs[0].Code)
	assert.Equal(t, "/job.title", errs[0].Path)

	// Updates may omit required fields.
	errs, _ = ValidatePayload(jobEntity(), map[string]any{"job.done": true}, false, nil)
	assert.Empty(t, errs)

	// But an explicit null on update still violates required.
	errs, _ = ValidatePayload(jobEntity(), map[string]any{"job.title": nil}, false, nil)
	require.Len(t, errs, 1)
	assert.Equal(t, CodeRequired, errs[0].Code)
}

func TestValidatePayload_RequiredWhen(t *testing.T) {
	errs, _ := ValidatePayload(jobEntity(), map[string]any{
		"job.title":  "x",
		"job.status": "closed",
	}, true, nil)
	require.Len(t, errs, 1)
	assert.Equal(t, CodeRequired, errs[0].Code)
	assert.Equal(t, "/job.closed_note", errs[0].Path)

	errs, _ = ValidatePayload(jobEntity(), map[string]any{
		"job.title":       "x",
		"job.status":      "closed",
		"job.closed_note": "fixed",
	}, true, nil)
	assert.Empty(t, errs)
}

func TestValidatePayload_TypeChecks(t *testing.T) {
	errs, _ := ValidatePayload(jobEntity(), map[string]any{
		"job.title":    7,
		"job.priority": true,
		"job.done":     "yes",
		"job.due":      "01/04/2026",
		"job.created":  "yesterday",
		"job.owner":    "not-a-uuid",
		"job.status":   "archived",
		"job.account":  12,
		"job.labels":   "urgent",
	}, false, nil)

	byPath := map[string]string{}
	for _, e := range errs {
		byPath[e.Path] = e.Code
	}
	assert.Equal(t, CodeType, byPath["/job.title"])
	assert.Equal(t, CodeType, byPath["/job.priority"], "bool is not numeric")
	assert.Equal(t, CodeType, byPath["/job.done"])
	assert.Equal(t, CodeType, byPath["/job.due"])
	assert.Equal(t, CodeType, byPath["/job.created"])
	assert.Equal(t, CodeType, byPath["/job.owner"])
	assert.Equal(t, CodeEnumValue, byPath["/job.status"])
	assert.Equal(t, CodeType, byPath["/job.account"])
	assert.Equal(t, CodeType, byPath["/job.labels"])
}

func TestValidatePayload_DefaultNotAppliedOnUpdate(t *testing.T) {
	errs, out := ValidatePayload(jobEntity(), map[string]any{"job.done": true}, false, nil)
	assert.Empty(t, errs)
	_, present := out["job.priority"]
	assert.False(t, present)
}

func TestValidatePayload_DoesNotMutateInput(t *testing.T) {
	data := map[string]any{"job.title": "x"}
	_, out := ValidatePayload(jobEntity(), data, true, nil)
	assert.NotContains(t, data, "job.priority")
	assert.Contains(t, out, "job.priority")
}

func TestValidatePayload_WorkflowStatus(t *testing.T) {
	workflow := map[string]any{
		"status_field": "job.status",
		"states": []any{
			map[string]any{"id": "open"},
			map[string]any{"id": "closed"},
		},
		"required_fields_by_state": map[string]any{
			"closed": []any{"job.closed_note"},
		},
	}

	errs, _ := ValidatePayload(jobEntity(), map[string]any{
		"job.title":  "x",
		"job.status": "limbo",
	}, true, workflow)
	require.Len(t, errs, 2, "enum violation plus unknown state")
	codes := []string{errs[0].Code, errs[1].Code}
	assert.Contains(t, codes, CodeStatusUnknown)

	errs, _ = ValidatePayload(jobEntity(), map[string]any{
		"job.title":       "x",
		"job.status":      "closed",
		"job.closed_note": "done",
	}, true, workflow)
	assert.Empty(t, errs)

	errs, _ = ValidatePayload(jobEntity(), map[string]any{
		"job.title":  "x",
		"job.status": "open",
		"job.labels": []any{},
	}, true, workflow)
	assert.Empty(t, errs)
}

func TestValidatePayload_WorkflowRequiredByState(t *testing.T) {
	entity := map[string]any{
		"id": "entity.job",
		"fields": []any{
			map[string]any{"id": "job.status", "type": "string"},
			map[string]any{"id": "job.note", "type": "string"},
		},
	}
	workflow := map[string]any{
		"status_field": "job.status",
		"states":       []any{map[string]any{"id": "closed"}},
		"required_fields_by_state": map[string]any{
			"closed": []any{"job.note"},
		},
	}
	errs, _ := ValidatePayload(entity, map[string]any{"job.status": "closed"}, true, workflow)
	require.Len(t, errs, 1)
	assert.Equal(t, CodeRequiredByState, errs[0].Code)
	assert.Equal(t, "/job.note", errs[0].Path)
}
