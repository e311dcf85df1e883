package patch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fabrica-Labs/forma/core/pkg/canonical"
)

func sampleManifest() map[string]any {
	return map[string]any{
		"manifest_version": "1.3",
		"module":           map[string]any{"id": "crm", "requires": []any{"base"}},
		"entities": []any{map[string]any{
			"id": "entity.job",
			"fields": []any{
				map[string]any{"id": "job.title", "type": "string"},
				map[string]any{"id": "job.status", "type": "string"},
			},
		}},
	}
}

func envelopeFor(m map[string]any, ops ...Operation) *Envelope {
	hash, err := canonical.Hash(m)
	if err != nil {
		panic(err)
	}
	return &Envelope{
		PatchID:            "p-1",
		TargetModuleID:     "crm",
		TargetManifestHash: hash,
		Mode:               "preview",
		Reason:             "test change",
		Operations:         append([]Operation{}, ops...),
	}
}

func TestPreview_ReplaceHappyPath(t *testing.T) {
	m := sampleManifest()
	res := Preview(m, envelopeFor(m, Operation{
		Op:    "replace",
		Path:  "/entities/@[id=entity.job]/fields/@[id=job.status]/type",
		Value: "enum",
	}))
	require.True(t, res.OK, "%v", res.Errors)
	require.Len(t, res.ResolvedOps, 1)
	assert.Equal(t, "/entities/0/fields/1/type", res.ResolvedOps[0].Path)
	require.NotNil(t, res.Impact)
	assert.Equal(t, ImpactLow, *res.Impact)
	assert.Equal(t, []string{"/entities/0/fields/1/type"}, res.DiffSummary.Touched)
	assert.Equal(t, map[string]int{"replace": 1}, res.DiffSummary.Counts)
}

func TestPreview_HashMismatch(t *testing.T) {
	m := sampleManifest()
	env := envelopeFor(m)
	env.TargetManifestHash = "sha256:" + repeat64('0')
	res := Preview(m, env)
	assert.False(t, res.OK)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, CodeHashMismatch, res.Errors[0].Code)
}

func TestPreview_ProtectedPath(t *testing.T) {
	m := sampleManifest()
	res := Preview(m, envelopeFor(m, Operation{
		Op: "replace", Path: "/module/id", Value: "x",
	}))
	assert.False(t, res.OK)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, CodeProtectedPath, res.Errors[0].Code)

	res = Preview(m, envelopeFor(m, Operation{
		Op: "add", Path: "/module/requires/-", Value: "extra",
	}))
	assert.False(t, res.OK)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, CodeProtectedPath, res.Errors[0].Code)
}

func TestPreview_NumericIndexRejected(t *testing.T) {
	m := sampleManifest()
	res := Preview(m, envelopeFor(m, Operation{
		Op: "replace", Path: "/entities/0/id", Value: "entity.other",
	}))
	assert.False(t, res.OK)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, CodeNumericIndex, res.Errors[0].Code)
}

func TestPreview_UnsupportedOp(t *testing.T) {
	m := sampleManifest()
	res := Preview(m, envelopeFor(m, Operation{Op: "merge", Path: "/module"}))
	assert.False(t, res.OK)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, CodeOpUnsupported, res.Errors[0].Code)
	assert.Equal(t, "/operations/0/op", res.Errors[0].Path)
}

func TestPreview_AddFieldMacro(t *testing.T) {
	m := sampleManifest()
	res := Preview(m, envelopeFor(m, Operation{
		Op:           "add_field",
		EntityID:     "entity.job",
		AfterFieldID: "job.title",
		Field:        map[string]any{"id": "job.owner", "type": "string"},
	}))
	require.True(t, res.OK, "%v", res.Errors)
	require.Len(t, res.ResolvedOps, 1)
	op := res.ResolvedOps[0]
	assert.Equal(t, "add", op.Op)
	assert.Equal(t, "/entities/0/fields/1", op.Path)
	require.NotNil(t, res.Impact)
	assert.Equal(t, ImpactMedium, *res.Impact)
}

func TestPreview_AddFieldAfterLastAppends(t *testing.T) {
	m := sampleManifest()
	res := Preview(m, envelopeFor(m, Operation{
		Op:           "add_field",
		EntityID:     "entity.job",
		AfterFieldID: "job.status",
		Field:        map[string]any{"id": "job.owner", "type": "string"},
	}))
	require.True(t, res.OK, "%v", res.Errors)
	assert.Equal(t, "/entities/0/fields/2", res.ResolvedOps[0].Path)
}

func TestPreview_AddFieldUnknownAnchor(t *testing.T) {
	m := sampleManifest()
	res := Preview(m, envelopeFor(m, Operation{
		Op:           "add_field",
		EntityID:     "entity.job",
		AfterFieldID: "job.missing",
		Field:        map[string]any{"id": "job.owner", "type": "string"},
	}))
	assert.False(t, res.OK)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, CodeAddFieldInvalid, res.Errors[0].Code)
}

func TestPreview_ImpactHighOnRemove(t *testing.T) {
	m := sampleManifest()
	res := Preview(m, envelopeFor(m, Operation{
		Op: "remove", Path: "/entities/@[id=entity.job]/fields/@[id=job.status]",
	}))
	require.True(t, res.OK, "%v", res.Errors)
	require.NotNil(t, res.Impact)
	assert.Equal(t, ImpactHigh, *res.Impact)
}

func TestPreview_NoOpsNilImpact(t *testing.T) {
	m := sampleManifest()
	res := Preview(m, envelopeFor(m))
	assert.True(t, res.OK)
	assert.Nil(t, res.Impact)
	assert.Empty(t, res.DiffSummary.Touched)
}

func TestPreview_DoesNotMutateManifest(t *testing.T) {
	m := sampleManifest()
	before, err := canonical.Hash(m)
	require.NoError(t, err)
	Preview(m, envelopeFor(m, Operation{
		Op: "remove", Path: "/entities/@[id=entity.job]",
	}))
	after, err := canonical.Hash(m)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestPreview_TestOpFailureIsSimulationError(t *testing.T) {
	m := sampleManifest()
	res := Preview(m, envelopeFor(m, Operation{
		Op:    "test",
		Path:  "/entities/@[id=entity.job]/fields/@[id=job.status]/type",
		Value: "enum",
	}))
	assert.False(t, res.OK)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, CodeSimulation, res.Errors[0].Code)
	assert.Equal(t, 0, res.Errors[0].Detail["op_index"])
}

func TestApply_MoveAndAppend(t *testing.T) {
	m := sampleManifest()
	out, err := Apply(m, []ResolvedOp{
		{Op: "move", Path: "/entities/0/fields/-", From: "/entities/0/fields/0"},
		{Op: "add", Path: "/entities/0/fields/-", Value: map[string]any{"id": "job.new"}},
	})
	require.NoError(t, err)
	fields := out["entities"].([]any)[0].(map[string]any)["fields"].([]any)
	require.Len(t, fields, 3)
	assert.Equal(t, "job.status", fields[0].(map[string]any)["id"])
	assert.Equal(t, "job.title", fields[1].(map[string]any)["id"])
	assert.Equal(t, "job.new", fields[2].(map[string]any)["id"])
}

func TestApply_CopyDoesNotAlias(t *testing.T) {
	m := sampleManifest()
	out, err := Apply(m, []ResolvedOp{
		{Op: "copy", Path: "/entities/0/fields/-", From: "/entities/0/fields/0"},
	})
	require.NoError(t, err)
	fields := out["entities"].([]any)[0].(map[string]any)["fields"].([]any)
	require.Len(t, fields, 3)
	fields[2].(map[string]any)["id"] = "job.copy"
	assert.Equal(t, "job.title", fields[0].(map[string]any)["id"])
}

func TestDecodeEnvelope_SchemaViolations(t *testing.T) {
	_, issues, err := DecodeEnvelope([]byte(`{"mode":"apply"}`))
	require.NoError(t, err)
	assert.NotEmpty(t, issues)
	for _, iss := range issues {
		assert.Equal(t, CodeSchema, iss.Code)
	}

	env, issues, err := DecodeEnvelope([]byte(`{
		"patch_id": "p-1",
		"target_module_id": "crm",
		"target_manifest_hash": "sha256:` + repeat64('a') + `",
		"mode": "preview",
		"reason": "why",
		"operations": [{"op": "replace", "path": "/x", "value": 1}]
	}`))
	require.NoError(t, err)
	assert.Empty(t, issues)
	require.NotNil(t, env)
	assert.Equal(t, "p-1", env.PatchID)
	require.Len(t, env.Operations, 1)
}

func repeat64(c byte) string {
	b := make([]byte, 64)
	for i := range b {
		b[i] = c
	}
	return string(b)
}
