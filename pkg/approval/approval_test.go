package approval

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fabrica-Labs/forma/core/pkg/patch"
)

func testEnvelope() *patch.Envelope {
	return &patch.Envelope{
		PatchID:            "p-1",
		TargetModuleID:     "crm",
		TargetManifestHash: "sha256:aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Mode:               "preview",
		Reason:             "change",
	}
}

func newManager(t *testing.T) *Manager {
	t.Helper()
	ks, err := NewInMemoryKeySet()
	require.NoError(t, err)
	return NewManager(ks, time.Hour)
}

func TestApproveAndVerify(t *testing.T) {
	m := newManager(t)
	env := testEnvelope()

	token, err := m.Approve(context.Background(),
		patch.Approver{ID: "alice", Roles: []string{"admin"}},
		env.PatchID, env.TargetManifestHash)
	require.NoError(t, err)

	approver, err := m.Verify(token, env)
	require.NoError(t, err)
	assert.Equal(t, "alice", approver.ID)
	assert.Equal(t, []string{"admin"}, approver.Roles)
}

func TestVerify_RejectsWrongPatch(t *testing.T) {
	m := newManager(t)
	env := testEnvelope()
	token, err := m.Approve(context.Background(), patch.Approver{ID: "alice"},
		"p-other", env.TargetManifestHash)
	require.NoError(t, err)

	_, err = m.Verify(token, env)
	assert.ErrorIs(t, err, ErrPatchMismatch)
}

func TestVerify_RejectsWrongHash(t *testing.T) {
	m := newManager(t)
	env := testEnvelope()
	token, err := m.Approve(context.Background(), patch.Approver{ID: "alice"},
		env.PatchID, "sha256:bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	require.NoError(t, err)

	_, err = m.Verify(token, env)
	assert.ErrorIs(t, err, ErrHashMismatch)
}

func TestVerify_RejectsExpired(t *testing.T) {
	ks, err := NewInMemoryKeySet()
	require.NoError(t, err)
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewManager(ks, time.Minute).WithClock(func() time.Time { return issued })

	env := testEnvelope()
	token, err := m.Approve(context.Background(), patch.Approver{ID: "alice"},
		env.PatchID, env.TargetManifestHash)
	require.NoError(t, err)

	m.clock = func() time.Time { return issued.Add(time.Hour) }
	_, err = m.Verify(token, env)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestVerify_SurvivesRotation(t *testing.T) {
	ks, err := NewInMemoryKeySet()
	require.NoError(t, err)
	m := NewManager(ks, time.Hour)

	env := testEnvelope()
	token, err := m.Approve(context.Background(), patch.Approver{ID: "alice"},
		env.PatchID, env.TargetManifestHash)
	require.NoError(t, err)

	require.NoError(t, ks.Rotate())
	_, err = m.Verify(token, env)
	assert.NoError(t, err, "tokens signed with retired keys keep verifying")
}

func TestVerify_RejectsForeignKey(t *testing.T) {
	m := newManager(t)
	other := newManager(t)
	env := testEnvelope()

	token, err := other.Approve(context.Background(), patch.Approver{ID: "mallory"},
		env.PatchID, env.TargetManifestHash)
	require.NoError(t, err)

	_, err = m.Verify(token, env)
	assert.Error(t, err)
}

func TestApprovedPreview(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ks, err := NewInMemoryKeySet()
	require.NoError(t, err)
	m := NewManager(ks, time.Hour).WithClock(func() time.Time { return issued })

	env := testEnvelope()
	preview := &patch.Result{OK: true}
	token, err := m.Approve(context.Background(), patch.Approver{ID: "alice"},
		env.PatchID, env.TargetManifestHash)
	require.NoError(t, err)

	approved, err := m.ApprovedPreview(token, env, preview)
	require.NoError(t, err)
	assert.Equal(t, "alice", approved.ApprovedBy.ID)
	assert.Equal(t, issued, approved.ApprovedAt)
	assert.True(t, approved.Preview.OK)
}
