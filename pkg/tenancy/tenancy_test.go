package tenancy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrgID_RoundTrip(t *testing.T) {
	ctx := WithOrg(context.Background(), "org-1")
	orgID, err := OrgID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "org-1", orgID)
}

func TestOrgID_MissingScope(t *testing.T) {
	_, err := OrgID(context.Background())
	assert.ErrorIs(t, err, ErrNoOrg)

	_, err = OrgID(WithOrg(context.Background(), ""))
	assert.ErrorIs(t, err, ErrNoOrg)
}

func TestIsolationChecker(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := NewIsolationChecker().WithClock(func() time.Time { return now })
	c.Register("org-1", "module:crm")
	c.Register("org-2", "module:hr")

	receipt := c.Check("org-1", []string{"module:crm", "module:new"})
	assert.True(t, receipt.Isolated)
	assert.Equal(t, 2, receipt.ChecksPassed)
	assert.Equal(t, now, receipt.At)

	receipt = c.Check("org-1", []string{"module:hr"})
	assert.False(t, receipt.Isolated)
	assert.Equal(t, 1, receipt.ChecksFailed)
	require.Len(t, receipt.Violations, 1)
	assert.NotEmpty(t, receipt.ContentHash)
}
