package store

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Fabrica-Labs/forma/core/pkg/canonical"
	"github.com/Fabrica-Labs/forma/core/pkg/tenancy"
)

func TestSQLStore_GetHead(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewSQLStore(db, nil)
	ctx := testCtx()

	mock.ExpectQuery("SELECT head FROM module_heads").
		WithArgs("org-test", "crm").
		WillReturnRows(sqlmock.NewRows([]string{"head"}).AddRow("sha256:abc"))
	head, err := s.GetHead(ctx, "crm")
	require.NoError(t, err)
	assert.Equal(t, "sha256:abc", head)

	mock.ExpectQuery("SELECT head FROM module_heads").
		WithArgs("org-test", "missing").
		WillReturnRows(sqlmock.NewRows([]string{"head"}))
	head, err = s.GetHead(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, head)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_GetHeadRequiresOrg(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewSQLStore(db, nil)

	_, err = s.GetHead(t.Context(), "crm")
	assert.ErrorIs(t, err, tenancy.ErrNoOrg)
}

func TestSQLStore_InitModule(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewSQLStore(db, nil).WithClock(func() time.Time { return now })
	ctx := testCtx()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT head FROM module_heads").
		WithArgs("org-test", "crm").
		WillReturnRows(sqlmock.NewRows([]string{"head"}))
	mock.ExpectExec("INSERT INTO manifest_snapshots").
		WithArgs("org-test", "crm", sqlmock.AnyArg(), sqlmock.AnyArg(), now, "alice", "init").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO module_heads").
		WithArgs("org-test", "crm", sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(seq\), 0\) \+ 1 FROM module_audit`).
		WithArgs("org-test", "crm").
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(1))
	mock.ExpectExec("INSERT INTO module_audit").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	hash, err := s.InitModule(ctx, "crm", baseManifest(), "alice", "")
	require.NoError(t, err)
	assert.Contains(t, hash, "sha256:")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_InitModuleIdempotent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewSQLStore(db, nil)
	ctx := testCtx()

	m := baseManifest()
	hash, err := canonical.Hash(m)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT head FROM module_heads").
		WithArgs("org-test", "crm").
		WillReturnRows(sqlmock.NewRows([]string{"head"}).AddRow(hash))
	mock.ExpectCommit()

	got, err := s.InitModule(ctx, "crm", m, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, hash, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_RollbackUnknownSnapshot(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewSQLStore(db, nil)
	ctx := testCtx()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(1\) FROM manifest_snapshots`).
		WithArgs("org-test", "crm", "sha256:gone").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectRollback()

	res, err := s.Rollback(ctx, "crm", "sha256:gone", "alice", "undo")
	require.NoError(t, err)
	assert.False(t, res.OK)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, CodeRollbackUnknown, res.Errors[0].Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_RollbackAdvancesHeadWithCAS(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewSQLStore(db, nil).WithClock(func() time.Time { return now })
	ctx := testCtx()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(1\) FROM manifest_snapshots`).
		WithArgs("org-test", "crm", "sha256:old").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT head FROM module_heads").
		WithArgs("org-test", "crm").
		WillReturnRows(sqlmock.NewRows([]string{"head"}).AddRow("sha256:new"))
	// The advance is guarded on the head read above.
	mock.ExpectExec("UPDATE module_heads SET head").
		WithArgs("sha256:old", now, "org-test", "crm", "sha256:new").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(seq\), 0\) \+ 1 FROM module_audit`).
		WithArgs("org-test", "crm").
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(3))
	mock.ExpectExec("INSERT INTO module_audit").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	res, err := s.Rollback(ctx, "crm", "sha256:old", "alice", "undo")
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, "sha256:new", res.FromHash)
	assert.Equal(t, "sha256:old", res.ToHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_RollbackHeadMovedConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewSQLStore(db, nil)
	ctx := testCtx()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(1\) FROM manifest_snapshots`).
		WithArgs("org-test", "crm", "sha256:old").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT head FROM module_heads").
		WithArgs("org-test", "crm").
		WillReturnRows(sqlmock.NewRows([]string{"head"}).AddRow("sha256:new"))
	// A concurrent apply moved the head between the read and the swap.
	mock.ExpectExec("UPDATE module_heads SET head").
		WithArgs("sha256:old", sqlmock.AnyArg(), "org-test", "crm", "sha256:new").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	res, err := s.Rollback(ctx, "crm", "sha256:old", "alice", "undo")
	require.NoError(t, err)
	assert.False(t, res.OK)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, CodeRollbackConflict, res.Errors[0].Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_PutModuleUpsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := NewSQLStore(db, nil).WithClock(func() time.Time { return now })
	ctx := testCtx()

	mock.ExpectExec("INSERT INTO modules_installed").
		WithArgs("org-test", "crm", "CRM", true, "sha256:abc", StatusInstalled,
			"v-1", "", false, now, now, nil, "").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = s.PutModule(ctx, &ModuleRecord{
		ModuleID: "crm", Name: "CRM", Enabled: true,
		CurrentHash: "sha256:abc", Status: StatusInstalled, ActiveVersion: "v-1",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
