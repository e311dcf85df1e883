// Package approval issues and verifies signed approval tokens. A token
// binds an approver to one patch and its previewed target hash, so an
// apply call can establish approved_by without trusting the caller.
package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Fabrica-Labs/forma/core/pkg/patch"
)

const issuer = "forma/approval"

var (
	ErrPatchMismatch = errors.New("approval: token approves a different patch")
	ErrHashMismatch  = errors.New("approval: token approves a different manifest hash")
)

// Claims are the approval token payload. Subject is the approver id.
type Claims struct {
	jwt.RegisteredClaims
	Roles        []string `json:"roles,omitempty"`
	PatchID      string   `json:"patch_id"`
	ManifestHash string   `json:"manifest_hash"`
}

// KeySet signs tokens with the active key and verifies against any
// known key, so rotation needs no downtime.
type KeySet interface {
	Sign(ctx context.Context, claims jwt.Claims) (string, error)
	KeyFunc() jwt.Keyfunc
}

// Manager mints and verifies approval tokens.
type Manager struct {
	keySet KeySet
	ttl    time.Duration
	clock  func() time.Time
}

func NewManager(ks KeySet, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Manager{
		keySet: ks,
		ttl:    ttl,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the timestamp source. Test hook.
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	m.clock = clock
	return m
}

// Approve signs a token asserting that approver approves the patch
// against the manifest hash its preview was computed for.
func (m *Manager) Approve(ctx context.Context, approver patch.Approver, patchID, manifestHash string) (string, error) {
	now := m.clock()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   approver.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		Roles:        approver.Roles,
		PatchID:      patchID,
		ManifestHash: manifestHash,
	}
	return m.keySet.Sign(ctx, claims)
}

// Verify checks the token signature and expiry and that it approves
// exactly the given patch envelope. It returns the approver.
func (m *Manager) Verify(tokenString string, env *patch.Envelope) (*patch.Approver, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, m.keySet.KeyFunc(),
		jwt.WithIssuer(issuer), jwt.WithTimeFunc(m.clock))
	if err != nil {
		return nil, fmt.Errorf("approval: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("approval: %w", jwt.ErrTokenSignatureInvalid)
	}
	if claims.PatchID != env.PatchID {
		return nil, ErrPatchMismatch
	}
	if claims.ManifestHash != env.TargetManifestHash {
		return nil, ErrHashMismatch
	}
	return &patch.Approver{ID: claims.Subject, Roles: claims.Roles}, nil
}

// ApprovedPreview assembles the apply-ready envelope from a verified
// token and the preview it covers.
func (m *Manager) ApprovedPreview(tokenString string, env *patch.Envelope, preview *patch.Result) (*patch.ApprovedPreview, error) {
	approver, err := m.Verify(tokenString, env)
	if err != nil {
		return nil, err
	}
	return &patch.ApprovedPreview{
		Patch:      *env,
		Preview:    *preview,
		ApprovedBy: *approver,
		ApprovedAt: m.clock(),
	}, nil
}
