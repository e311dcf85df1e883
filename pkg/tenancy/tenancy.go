// Package tenancy carries the ambient org scope for store and registry
// calls and provides runtime isolation checks across org boundaries.
package tenancy

import (
	"context"
	"errors"
)

type contextKey struct{}

// ErrNoOrg is returned when a store call runs without an org scope.
var ErrNoOrg = errors.New("tenancy: no org_id in context")

// WithOrg returns a context scoped to orgID. The scope lives exactly as
// long as the derived context; there is no process-global tenant.
func WithOrg(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, contextKey{}, orgID)
}

// OrgID extracts the org scope established by WithOrg.
func OrgID(ctx context.Context) (string, error) {
	orgID, ok := ctx.Value(contextKey{}).(string)
	if !ok || orgID == "" {
		return "", ErrNoOrg
	}
	return orgID, nil
}
