package record

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fabrica-Labs/forma/core/pkg/tenancy"
)

func storeCtx() context.Context {
	return tenancy.WithOrg(context.Background(), "org-test")
}

func TestMemory_CRUD(t *testing.T) {
	s := NewMemory()
	ctx := storeCtx()

	created, err := s.Create(ctx, "entity.job", map[string]any{"job.title": "first"})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := s.Get(ctx, "entity.job", created.ID)
	require.NoError(t, err)
	assert.Equal(t, "first", got.Data["job.title"])

	updated, err := s.Update(ctx, "entity.job", created.ID, map[string]any{"job.title": "second"})
	require.NoError(t, err)
	assert.Equal(t, "second", updated.Data["job.title"])

	require.NoError(t, s.Delete(ctx, "entity.job", created.ID))
	_, err = s.Get(ctx, "entity.job", created.ID)
	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "entity.job", created.ID), ErrRecordNotFound)
}

func TestMemory_GetReturnsCopy(t *testing.T) {
	s := NewMemory()
	ctx := storeCtx()
	created, err := s.Create(ctx, "entity.job", map[string]any{"job.title": "x"})
	require.NoError(t, err)

	got, err := s.Get(ctx, "entity.job", created.ID)
	require.NoError(t, err)
	got.Data["job.title"] = "mutated"

	again, err := s.Get(ctx, "entity.job", created.ID)
	require.NoError(t, err)
	assert.Equal(t, "x", again.Data["job.title"])
}

func TestMemory_ListPageKeyset(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	s := NewMemory().WithClock(func() time.Time { return now })
	ctx := storeCtx()

	for i := 0; i < 5; i++ {
		now = base.Add(time.Duration(i) * time.Minute)
		_, err := s.Create(ctx, "entity.job", map[string]any{
			"id":        fmt.Sprintf("rec-%d", i),
			"job.title": fmt.Sprintf("job %d", i),
		})
		require.NoError(t, err)
	}

	page, err := s.ListPage(ctx, "entity.job", 2, "")
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	assert.Equal(t, "rec-4", page.Records[0].ID, "newest first")
	assert.Equal(t, "rec-3", page.Records[1].ID)
	require.NotEmpty(t, page.NextCursor)

	page, err = s.ListPage(ctx, "entity.job", 2, page.NextCursor)
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	assert.Equal(t, "rec-2", page.Records[0].ID)
	assert.Equal(t, "rec-1", page.Records[1].ID)
	require.NotEmpty(t, page.NextCursor)

	page, err = s.ListPage(ctx, "entity.job", 2, page.NextCursor)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "rec-0", page.Records[0].ID)
	assert.Empty(t, page.NextCursor, "last page carries no cursor")
}

func TestMemory_ListPageTiesBreakOnID(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemory().WithClock(func() time.Time { return now })
	ctx := storeCtx()

	for _, id := range []string{"b", "c", "a"} {
		_, err := s.Create(ctx, "entity.job", map[string]any{"id": id})
		require.NoError(t, err)
	}

	page, err := s.ListPage(ctx, "entity.job", 2, "")
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	assert.Equal(t, "a", page.Records[0].ID)
	assert.Equal(t, "b", page.Records[1].ID)

	page, err = s.ListPage(ctx, "entity.job", 2, page.NextCursor)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "c", page.Records[0].ID)
}

func TestMemory_ListPageBadCursor(t *testing.T) {
	s := NewMemory()
	ctx := storeCtx()
	_, err := s.ListPage(ctx, "entity.job", 10, "not base64!")
	assert.ErrorIs(t, err, ErrBadCursor)
}

func TestCursorRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	cursor := EncodeCursor(at, "rec-1")
	gotAt, gotID, err := DecodeCursor(cursor)
	require.NoError(t, err)
	assert.True(t, at.Equal(gotAt))
	assert.Equal(t, "rec-1", gotID)
}

func TestMemory_ListLookup(t *testing.T) {
	s := NewMemory()
	ctx := storeCtx()
	_, err := s.Create(ctx, "entity.account", map[string]any{
		"id": "acct-1", "account.name": "Acme",
	})
	require.NoError(t, err)
	_, err = s.Create(ctx, "entity.account", map[string]any{
		"id": "acct-2", "account.name": "Globex",
	})
	require.NoError(t, err)

	entries, err := s.ListLookup(ctx, "entity.account", "account.name")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	labels := map[string]string{}
	for _, e := range entries {
		labels[e.ID] = e.Label
	}
	assert.Equal(t, "Acme", labels["acct-1"])
	assert.Equal(t, "Globex", labels["acct-2"])
}

func TestMemory_StoreTenantScoping(t *testing.T) {
	s := NewMemory()
	ctxA := tenancy.WithOrg(context.Background(), "org-a")
	ctxB := tenancy.WithOrg(context.Background(), "org-b")

	created, err := s.Create(ctxA, "entity.job", map[string]any{"job.title": "x"})
	require.NoError(t, err)

	_, err = s.Get(ctxB, "entity.job", created.ID)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	_, err = s.List(context.Background(), "entity.job")
	assert.ErrorIs(t, err, tenancy.ErrNoOrg)
}
