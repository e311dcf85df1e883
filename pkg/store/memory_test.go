package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fabrica-Labs/forma/core/pkg/canonical"
	"github.com/Fabrica-Labs/forma/core/pkg/patch"
	"github.com/Fabrica-Labs/forma/core/pkg/tenancy"
)

func testCtx() context.Context {
	return tenancy.WithOrg(context.Background(), "org-test")
}

func baseManifest() map[string]any {
	return map[string]any{
		"manifest_version": "1.3",
		"module":           map[string]any{"id": "crm"},
		"entities": []any{map[string]any{
			"id":     "entity.job",
			"fields": []any{map[string]any{"id": "job.title", "type": "string"}},
		}},
	}
}

func approvedFor(t *testing.T, m map[string]any, ops ...patch.Operation) *patch.ApprovedPreview {
	t.Helper()
	hash, err := canonical.Hash(m)
	require.NoError(t, err)
	env := &patch.Envelope{
		PatchID:            "p-1",
		TargetModuleID:     "crm",
		TargetManifestHash: hash,
		Mode:               "preview",
		Reason:             "change",
		Operations:         append([]patch.Operation{}, ops...),
	}
	preview := patch.Preview(m, env)
	require.True(t, preview.OK, "%v", preview.Errors)
	return &patch.ApprovedPreview{
		Patch:      *env,
		Preview:    *preview,
		ApprovedBy: patch.Approver{ID: "alice", Roles: []string{"admin"}},
		ApprovedAt: time.Now().UTC(),
	}
}

func TestMemory_InitIdempotent(t *testing.T) {
	s := NewMemory()
	ctx := testCtx()

	h1, err := s.InitModule(ctx, "crm", baseManifest(), "alice", "")
	require.NoError(t, err)
	h2, err := s.InitModule(ctx, "crm", baseManifest(), "alice", "")
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	history, err := s.ListHistory(ctx, "crm")
	require.NoError(t, err)
	assert.Len(t, history, 1, "re-init with identical manifest appends no audit")
	assert.Equal(t, ActionInit, history[0].Action)
}

func TestMemory_GetSnapshotDeepCopy(t *testing.T) {
	s := NewMemory()
	ctx := testCtx()
	hash, err := s.InitModule(ctx, "crm", baseManifest(), "", "")
	require.NoError(t, err)

	snap, err := s.GetSnapshot(ctx, "crm", hash)
	require.NoError(t, err)
	snap["module"].(map[string]any)["id"] = "hacked"

	again, err := s.GetSnapshot(ctx, "crm", hash)
	require.NoError(t, err)
	assert.Equal(t, "crm", again["module"].(map[string]any)["id"])
}

func TestMemory_ApplyThenRollback(t *testing.T) {
	s := NewMemory()
	ctx := testCtx()
	m := baseManifest()
	h0, err := s.InitModule(ctx, "crm", m, "alice", "")
	require.NoError(t, err)

	approved := approvedFor(t, m, patch.Operation{
		Op:   "add",
		Path: "/entities/-",
		Value: map[string]any{
			"id":     "entity.task",
			"fields": []any{},
		},
	})
	res, err := s.ApplyApprovedPreview(ctx, approved)
	require.NoError(t, err)
	require.True(t, res.OK, "%v", res.Errors)
	assert.Equal(t, h0, res.FromHash)
	h1 := res.ToHash
	assert.NotEqual(t, h0, h1)

	head, err := s.GetHead(ctx, "crm")
	require.NoError(t, err)
	assert.Equal(t, h1, head)

	// New head matches the hash of the patched snapshot.
	next, err := s.GetSnapshot(ctx, "crm", h1)
	require.NoError(t, err)
	rehashed, err := canonical.Hash(next)
	require.NoError(t, err)
	assert.Equal(t, h1, rehashed)

	history, err := s.ListHistory(ctx, "crm")
	require.NoError(t, err)
	assert.Equal(t, ActionApply, history[0].Action)

	rb, err := s.Rollback(ctx, "crm", h0, "alice", "undo")
	require.NoError(t, err)
	require.True(t, rb.OK)
	assert.Equal(t, h1, rb.FromHash)
	assert.Equal(t, h0, rb.ToHash)

	head, err = s.GetHead(ctx, "crm")
	require.NoError(t, err)
	assert.Equal(t, h0, head)

	history, err = s.ListHistory(ctx, "crm")
	require.NoError(t, err)
	assert.Equal(t, ActionRollback, history[0].Action)
	assert.Equal(t, h1, history[0].FromHash)
	assert.Equal(t, h0, history[0].ToHash)

	// Rollback created no new snapshot.
	snaps, err := s.ListSnapshots(ctx, "crm")
	require.NoError(t, err)
	assert.Len(t, snaps, 2)
}

func TestMemory_RollbackToHeadWarns(t *testing.T) {
	s := NewMemory()
	ctx := testCtx()
	h0, err := s.InitModule(ctx, "crm", baseManifest(), "", "")
	require.NoError(t, err)

	res, err := s.Rollback(ctx, "crm", h0, "alice", "noop")
	require.NoError(t, err)
	assert.True(t, res.OK)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, CodeAlreadyAtSnapshot, res.Warnings[0].Code)
}

func TestMemory_RollbackUnknownHash(t *testing.T) {
	s := NewMemory()
	ctx := testCtx()
	_, err := s.InitModule(ctx, "crm", baseManifest(), "", "")
	require.NoError(t, err)

	res, err := s.Rollback(ctx, "crm", "sha256:unknown", "alice", "undo")
	require.NoError(t, err)
	assert.False(t, res.OK)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, CodeRollbackUnknown, res.Errors[0].Code)
}

func TestMemory_ApplyRejectsStaleHash(t *testing.T) {
	s := NewMemory()
	ctx := testCtx()
	m := baseManifest()
	_, err := s.InitModule(ctx, "crm", m, "", "")
	require.NoError(t, err)

	approved := approvedFor(t, m, patch.Operation{
		Op: "add", Path: "/entities/-", Value: map[string]any{"id": "entity.a", "fields": []any{}},
	})
	first, err := s.ApplyApprovedPreview(ctx, approved)
	require.NoError(t, err)
	require.True(t, first.OK)

	// The same approved preview now targets a stale head.
	second, err := s.ApplyApprovedPreview(ctx, approved)
	require.NoError(t, err)
	assert.False(t, second.OK)
	require.Len(t, second.Errors, 1)
	assert.Equal(t, CodeApplyHashMismatch, second.Errors[0].Code)
}

func TestMemory_ConcurrentAppliesOneWins(t *testing.T) {
	s := NewMemory()
	ctx := testCtx()
	m := baseManifest()
	_, err := s.InitModule(ctx, "crm", m, "", "")
	require.NoError(t, err)

	a := approvedFor(t, m, patch.Operation{
		Op: "add", Path: "/entities/-", Value: map[string]any{"id": "entity.a", "fields": []any{}},
	})
	b := approvedFor(t, m, patch.Operation{
		Op: "add", Path: "/entities/-", Value: map[string]any{"id": "entity.b", "fields": []any{}},
	})

	var wg sync.WaitGroup
	results := make([]*MutationResult, 2)
	for i, approved := range []*patch.ApprovedPreview{a, b} {
		wg.Add(1)
		go func(i int, approved *patch.ApprovedPreview) {
			defer wg.Done()
			res, err := s.ApplyApprovedPreview(ctx, approved)
			if assert.NoError(t, err) {
				results[i] = res
			}
		}(i, approved)
	}
	wg.Wait()

	wins := 0
	for _, res := range results {
		if res.OK {
			wins++
		} else {
			require.NotEmpty(t, res.Errors)
			assert.Equal(t, CodeApplyHashMismatch, res.Errors[0].Code)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestMemory_ApplyPreconditions(t *testing.T) {
	s := NewMemory()
	ctx := testCtx()
	m := baseManifest()
	_, err := s.InitModule(ctx, "crm", m, "", "")
	require.NoError(t, err)

	approved := approvedFor(t, m)
	approved.Preview.OK = false
	res, err := s.ApplyApprovedPreview(ctx, approved)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, CodeApplyPreviewNotOK, res.Errors[0].Code)

	approved = approvedFor(t, m)
	approved.Patch.Mode = "apply"
	res, err = s.ApplyApprovedPreview(ctx, approved)
	require.NoError(t, err)
	assert.Equal(t, CodeApplyModeInvalid, res.Errors[0].Code)

	approved = approvedFor(t, m)
	approved.Preview.ResolvedOps = []patch.ResolvedOp{{
		Op: "replace", Path: "/entities/@[id=entity.job]/id", Value: "x",
	}}
	res, err = s.ApplyApprovedPreview(ctx, approved)
	require.NoError(t, err)
	assert.Equal(t, CodeApplyUnresolved, res.Errors[0].Code)
}

func TestMemory_ApplyRejectsNilResolvedOps(t *testing.T) {
	s := NewMemory()
	ctx := testCtx()
	m := baseManifest()
	h0, err := s.InitModule(ctx, "crm", m, "", "")
	require.NoError(t, err)

	// Hand-built approval whose preview never went through the pipeline:
	// resolved_ops is absent, not empty.
	forged := &patch.ApprovedPreview{
		Patch: patch.Envelope{
			PatchID: "p-forged", TargetModuleID: "crm",
			TargetManifestHash: h0, Mode: "preview",
		},
		Preview:    patch.Result{OK: true},
		ApprovedBy: patch.Approver{ID: "mallory"},
	}
	res, err := s.ApplyApprovedPreview(ctx, forged)
	require.NoError(t, err)
	assert.False(t, res.OK)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, CodeApplyUnresolved, res.Errors[0].Code)

	history, err := s.ListHistory(ctx, "crm")
	require.NoError(t, err)
	require.Len(t, history, 1, "rejected apply must not append an audit entry")
	assert.Equal(t, ActionInit, history[0].Action)

	// A genuine zero-op preview carries an empty list and still applies.
	res, err = s.ApplyApprovedPreview(ctx, approvedFor(t, m))
	require.NoError(t, err)
	assert.True(t, res.OK, "%v", res.Errors)
}

func TestMemory_VersionsMonotonic(t *testing.T) {
	s := NewMemory()
	ctx := testCtx()
	m := baseManifest()
	h0, err := s.InitModule(ctx, "crm", m, "", "")
	require.NoError(t, err)

	v1, err := s.CreateVersion(ctx, "crm", h0, "alice", "first")
	require.NoError(t, err)
	assert.Equal(t, int64(1), v1.VersionNum)

	v2, err := s.CreateVersion(ctx, "crm", h0, "alice", "second")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v2.VersionNum)
	assert.NotEqual(t, v1.VersionID, v2.VersionID)

	found, err := s.FindVersion(ctx, "crm", VersionRef{VersionNum: 2})
	require.NoError(t, err)
	assert.Equal(t, v2.VersionID, found.VersionID)

	found, err = s.FindVersion(ctx, "crm", VersionRef{Hash: h0})
	require.NoError(t, err)
	assert.Equal(t, h0, found.ManifestHash)

	_, err = s.FindVersion(ctx, "crm", VersionRef{VersionNum: 99})
	assert.ErrorIs(t, err, ErrVersionNotFound)
}

func TestMemory_TenantScoping(t *testing.T) {
	s := NewMemory()
	ctxA := tenancy.WithOrg(context.Background(), "org-a")
	ctxB := tenancy.WithOrg(context.Background(), "org-b")

	_, err := s.InitModule(ctxA, "crm", baseManifest(), "", "")
	require.NoError(t, err)

	head, err := s.GetHead(ctxB, "crm")
	require.NoError(t, err)
	assert.Empty(t, head, "org-b must not observe org-a state")

	_, err = s.GetHead(context.Background(), "crm")
	assert.ErrorIs(t, err, tenancy.ErrNoOrg)
}

func TestMemory_ModuleRecords(t *testing.T) {
	s := NewMemory()
	ctx := testCtx()

	_, err := s.GetModule(ctx, "crm")
	assert.ErrorIs(t, err, ErrModuleNotFound)

	require.NoError(t, s.PutModule(ctx, &ModuleRecord{
		ModuleID: "crm", Status: StatusInstalled,
	}))
	require.NoError(t, s.PutModule(ctx, &ModuleRecord{
		ModuleID: "old", Status: StatusInstalled, Archived: true,
	}))

	visible, err := s.ListModules(ctx, false)
	require.NoError(t, err)
	assert.Len(t, visible, 1)

	all, err := s.ListModules(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
