package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Fabrica-Labs/forma/core/pkg/canonical"
	"github.com/Fabrica-Labs/forma/core/pkg/issue"
	"github.com/Fabrica-Labs/forma/core/pkg/patch"
	"github.com/Fabrica-Labs/forma/core/pkg/tenancy"
)

// SQLStore implements Store on database/sql. The schema and $1
// placeholders work on both Postgres (lib/pq) and SQLite
// (modernc.org/sqlite). The head CAS is an UPDATE guarded on the
// observed hash; of two racing applies exactly one update succeeds.
type SQLStore struct {
	db     *sql.DB
	logger *slog.Logger
	clock  func() time.Time
}

func NewSQLStore(db *sql.DB, logger *slog.Logger) *SQLStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLStore{db: db, logger: logger, clock: time.Now}
}

// WithClock overrides the clock for tests.
func (s *SQLStore) WithClock(clock func() time.Time) *SQLStore {
	s.clock = clock
	return s
}

const sqlSchema = `
CREATE TABLE IF NOT EXISTS manifest_snapshots (
	org_id TEXT NOT NULL,
	module_id TEXT NOT NULL,
	manifest_hash TEXT NOT NULL,
	manifest TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	actor TEXT,
	reason TEXT,
	PRIMARY KEY (org_id, module_id, manifest_hash)
);

CREATE TABLE IF NOT EXISTS module_heads (
	org_id TEXT NOT NULL,
	module_id TEXT NOT NULL,
	head TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (org_id, module_id)
);

CREATE TABLE IF NOT EXISTS module_audit (
	org_id TEXT NOT NULL,
	module_id TEXT NOT NULL,
	audit_id TEXT NOT NULL,
	seq BIGINT NOT NULL,
	audit TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	PRIMARY KEY (org_id, module_id, audit_id)
);

CREATE TABLE IF NOT EXISTS module_versions (
	org_id TEXT NOT NULL,
	module_id TEXT NOT NULL,
	version_id TEXT NOT NULL,
	version_num BIGINT NOT NULL,
	manifest_hash TEXT NOT NULL,
	manifest TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	created_by TEXT,
	notes TEXT,
	PRIMARY KEY (org_id, module_id, version_id),
	UNIQUE (org_id, module_id, version_num)
);

CREATE TABLE IF NOT EXISTS modules_installed (
	org_id TEXT NOT NULL,
	module_id TEXT NOT NULL,
	enabled BOOLEAN NOT NULL DEFAULT FALSE,
	current_hash TEXT,
	name TEXT,
	installed_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	status TEXT NOT NULL,
	active_version TEXT,
	last_error TEXT,
	archived BOOLEAN NOT NULL DEFAULT FALSE,
	icon_key TEXT,
	display_order INT,
	PRIMARY KEY (org_id, module_id)
);
`

// Init creates the schema. Explicit migration, no lazy column adds.
func (s *SQLStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqlSchema)
	return err
}

func (s *SQLStore) InitModule(ctx context.Context, moduleID string, manifest map[string]any, actor, reason string) (string, error) {
	orgID, err := tenancy.OrgID(ctx)
	if err != nil {
		return "", err
	}
	hash, err := canonical.Hash(manifest)
	if err != nil {
		return "", fmt.Errorf("init module %q: %w", moduleID, err)
	}
	if reason == "" {
		reason = "init"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	head, err := s.headTx(ctx, tx, orgID, moduleID)
	if err != nil {
		return "", err
	}
	if head == hash {
		return hash, tx.Commit()
	}
	if err := s.writeSnapshotTx(ctx, tx, orgID, moduleID, hash, manifest, actor, reason); err != nil {
		return "", err
	}
	if err := s.setHeadTx(ctx, tx, orgID, moduleID, hash); err != nil {
		return "", err
	}
	if _, err := s.appendAuditTx(ctx, tx, orgID, AuditEntry{
		ModuleID: moduleID, Action: ActionInit,
		FromHash: head, ToHash: hash, Actor: actor, Reason: reason,
	}); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	s.logger.InfoContext(ctx, "module initialized",
		slog.String("module_id", moduleID), slog.String("hash", hash))
	return hash, nil
}

func (s *SQLStore) GetHead(ctx context.Context, moduleID string) (string, error) {
	orgID, err := tenancy.OrgID(ctx)
	if err != nil {
		return "", err
	}
	var head string
	err = s.db.QueryRowContext(ctx,
		`SELECT head FROM module_heads WHERE org_id = $1 AND module_id = $2`,
		orgID, moduleID).Scan(&head)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return head, err
}

func (s *SQLStore) GetSnapshot(ctx context.Context, moduleID, hash string) (map[string]any, error) {
	orgID, err := tenancy.OrgID(ctx)
	if err != nil {
		return nil, err
	}
	var raw []byte
	err = s.db.QueryRowContext(ctx,
		`SELECT manifest FROM manifest_snapshots
		 WHERE org_id = $1 AND module_id = $2 AND manifest_hash = $3`,
		orgID, moduleID, hash).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s@%s", ErrSnapshotNotFound, moduleID, hash)
	}
	if err != nil {
		return nil, err
	}
	return decodeManifest(raw)
}

func (s *SQLStore) ListSnapshots(ctx context.Context, moduleID string) ([]Snapshot, error) {
	orgID, err := tenancy.OrgID(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT manifest_hash, manifest, created_at, actor, reason
		 FROM manifest_snapshots
		 WHERE org_id = $1 AND module_id = $2
		 ORDER BY created_at DESC`,
		orgID, moduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		snap := Snapshot{ModuleID: moduleID}
		var raw []byte
		var actor, reason sql.NullString
		if err := rows.Scan(&snap.ManifestHash, &raw, &snap.CreatedAt, &actor, &reason); err != nil {
			return nil, err
		}
		snap.Actor = actor.String
		snap.Reason = reason.String
		if snap.Manifest, err = decodeManifest(raw); err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListHistory(ctx context.Context, moduleID string) ([]AuditEntry, error) {
	orgID, err := tenancy.OrgID(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT audit FROM module_audit
		 WHERE org_id = $1 AND module_id = $2
		 ORDER BY seq DESC`,
		orgID, moduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var entry AuditEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("decode audit entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *SQLStore) ApplyApprovedPreview(ctx context.Context, approved *patch.ApprovedPreview) (*MutationResult, error) {
	orgID, err := tenancy.OrgID(ctx)
	if err != nil {
		return nil, err
	}
	res := &MutationResult{Errors: []issue.Issue{}, Warnings: []issue.Issue{}}
	if errs := checkApproved(approved); errs != nil {
		res.Errors = errs
		return res, nil
	}
	moduleID := approved.Patch.TargetModuleID

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	head, err := s.headTx(ctx, tx, orgID, moduleID)
	if err != nil {
		return nil, err
	}
	if head == "" || head != approved.Patch.TargetManifestHash {
		res.Errors = append(res.Errors, issue.Newf(CodeApplyHashMismatch, "/patch/target_manifest_hash",
			"target hash %s does not match head %s", approved.Patch.TargetManifestHash, head).
			WithDetail("head", head))
		return res, nil
	}
	current, err := s.snapshotTx(ctx, tx, orgID, moduleID, head)
	if err != nil {
		return nil, err
	}
	next, toHash, err := replayOps(current, approved.Preview.ResolvedOps)
	if err != nil {
		res.Errors = append(res.Errors, issue.Newf(CodeApplyFailed, "", "apply failed: %v", err))
		return res, nil
	}
	if err := s.writeSnapshotTx(ctx, tx, orgID, moduleID, toHash, next,
		approved.ApprovedBy.ID, approved.Patch.Reason); err != nil {
		return nil, err
	}
	swapped, err := s.casHeadTx(ctx, tx, orgID, moduleID, head, toHash)
	if err != nil {
		return nil, err
	}
	if !swapped {
		res.Errors = append(res.Errors, issue.Newf(CodeApplyHashMismatch, "/patch/target_manifest_hash",
			"head moved during apply"))
		return res, nil
	}
	auditID, err := s.appendAuditTx(ctx, tx, orgID, AuditEntry{
		ModuleID: moduleID, Action: ActionApply,
		FromHash: head, ToHash: toHash,
		PatchID: approved.Patch.PatchID,
		Actor:   approved.ApprovedBy.ID,
		Reason:  approved.Patch.Reason,
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "preview applied",
		slog.String("module_id", moduleID),
		slog.String("from_hash", head), slog.String("to_hash", toHash))
	res.OK = true
	res.FromHash = head
	res.ToHash = toHash
	res.AuditID = auditID
	return res, nil
}

func (s *SQLStore) Rollback(ctx context.Context, moduleID, toHash, actor, reason string) (*MutationResult, error) {
	orgID, err := tenancy.OrgID(ctx)
	if err != nil {
		return nil, err
	}
	res := &MutationResult{Errors: []issue.Issue{}, Warnings: []issue.Issue{}}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM manifest_snapshots
		 WHERE org_id = $1 AND module_id = $2 AND manifest_hash = $3`,
		orgID, moduleID, toHash).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists == 0 {
		res.Errors = append(res.Errors, issue.Newf(CodeRollbackUnknown, "",
			"no snapshot %s for module %q", toHash, moduleID))
		return res, nil
	}
	head, err := s.headTx(ctx, tx, orgID, moduleID)
	if err != nil {
		return nil, err
	}
	if head == toHash {
		res.Warnings = append(res.Warnings, issue.Newf(CodeAlreadyAtSnapshot, "",
			"module %q is already at %s", moduleID, toHash))
	}
	// Same CAS discipline as apply: advance only from the head observed
	// above, so a concurrent apply is never silently overwritten.
	if head == "" {
		if err := s.setHeadTx(ctx, tx, orgID, moduleID, toHash); err != nil {
			return nil, err
		}
	} else {
		swapped, err := s.casHeadTx(ctx, tx, orgID, moduleID, head, toHash)
		if err != nil {
			return nil, err
		}
		if !swapped {
			res.Errors = append(res.Errors, issue.Newf(CodeRollbackConflict, "",
				"head moved during rollback"))
			return res, nil
		}
	}
	auditID, err := s.appendAuditTx(ctx, tx, orgID, AuditEntry{
		ModuleID: moduleID, Action: ActionRollback,
		FromHash: head, ToHash: toHash, Actor: actor, Reason: reason,
	})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	res.OK = true
	res.FromHash = head
	res.ToHash = toHash
	res.AuditID = auditID
	return res, nil
}

func (s *SQLStore) AppendAudit(ctx context.Context, entry AuditEntry) (string, error) {
	orgID, err := tenancy.OrgID(ctx)
	if err != nil {
		return "", err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()
	auditID, err := s.appendAuditTx(ctx, tx, orgID, entry)
	if err != nil {
		return "", err
	}
	return auditID, tx.Commit()
}

func (s *SQLStore) CreateVersion(ctx context.Context, moduleID, hash, createdBy, notes string) (*Version, error) {
	orgID, err := tenancy.OrgID(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	manifest, err := s.snapshotTx(ctx, tx, orgID, moduleID, hash)
	if err != nil {
		return nil, err
	}
	var nextNum int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version_num), 0) + 1 FROM module_versions
		 WHERE org_id = $1 AND module_id = $2`,
		orgID, moduleID).Scan(&nextNum); err != nil {
		return nil, err
	}
	version := &Version{
		VersionID:    uuid.NewString(),
		VersionNum:   nextNum,
		ManifestHash: hash,
		Manifest:     manifest,
		CreatedAt:    s.clock().UTC(),
		CreatedBy:    createdBy,
		Notes:        notes,
	}
	raw, err := json.Marshal(manifest)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO module_versions
		 (org_id, module_id, version_id, version_num, manifest_hash, manifest, created_at, created_by, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		orgID, moduleID, version.VersionID, version.VersionNum,
		hash, raw, version.CreatedAt, createdBy, notes)
	if err != nil {
		return nil, err
	}
	return version, tx.Commit()
}

func (s *SQLStore) ListVersions(ctx context.Context, moduleID string) ([]Version, error) {
	orgID, err := tenancy.OrgID(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT version_id, version_num, manifest_hash, manifest, created_at, created_by, notes
		 FROM module_versions
		 WHERE org_id = $1 AND module_id = $2
		 ORDER BY version_num DESC`,
		orgID, moduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (s *SQLStore) FindVersion(ctx context.Context, moduleID string, ref VersionRef) (*Version, error) {
	orgID, err := tenancy.OrgID(ctx)
	if err != nil {
		return nil, err
	}
	query := `SELECT version_id, version_num, manifest_hash, manifest, created_at, created_by, notes
	 FROM module_versions WHERE org_id = $1 AND module_id = $2 AND `
	var arg any
	switch {
	case ref.VersionID != "":
		query += `version_id = $3`
		arg = ref.VersionID
	case ref.VersionNum > 0:
		query += `version_num = $3`
		arg = ref.VersionNum
	case ref.Hash != "":
		query += `manifest_hash = $3 ORDER BY version_num DESC`
		arg = ref.Hash
	default:
		return nil, ErrVersionNotFound
	}
	row := s.db.QueryRowContext(ctx, query, orgID, moduleID, arg)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrVersionNotFound
	}
	return v, err
}

func (s *SQLStore) GetModule(ctx context.Context, moduleID string) (*ModuleRecord, error) {
	orgID, err := tenancy.OrgID(ctx)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT module_id, name, enabled, current_hash, status, active_version,
		        last_error, archived, installed_at, updated_at, display_order, icon_key
		 FROM modules_installed
		 WHERE org_id = $1 AND module_id = $2`,
		orgID, moduleID)
	record, err := scanModule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, moduleID)
	}
	return record, err
}

func (s *SQLStore) PutModule(ctx context.Context, record *ModuleRecord) error {
	orgID, err := tenancy.OrgID(ctx)
	if err != nil {
		return err
	}
	now := s.clock().UTC()
	record.UpdatedAt = now
	if record.InstalledAt.IsZero() {
		record.InstalledAt = now
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO modules_installed
		 (org_id, module_id, name, enabled, current_hash, status, active_version,
		  last_error, archived, installed_at, updated_at, display_order, icon_key)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (org_id, module_id) DO UPDATE SET
		   name = $3, enabled = $4, current_hash = $5, status = $6,
		   active_version = $7, last_error = $8, archived = $9,
		   updated_at = $11, display_order = $12, icon_key = $13`,
		orgID, record.ModuleID, record.Name, record.Enabled, record.CurrentHash,
		record.Status, record.ActiveVersion, record.LastError, record.Archived,
		record.InstalledAt, record.UpdatedAt, record.DisplayOrder, record.IconKey)
	return err
}

func (s *SQLStore) ListModules(ctx context.Context, includeArchived bool) ([]ModuleRecord, error) {
	orgID, err := tenancy.OrgID(ctx)
	if err != nil {
		return nil, err
	}
	query := `SELECT module_id, name, enabled, current_hash, status, active_version,
	        last_error, archived, installed_at, updated_at, display_order, icon_key
	 FROM modules_installed WHERE org_id = $1`
	if !includeArchived {
		query += ` AND archived = FALSE`
	}
	query += ` ORDER BY display_order, module_id`
	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ModuleRecord
	for rows.Next() {
		record, err := scanModule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *record)
	}
	return out, rows.Err()
}

func (s *SQLStore) headTx(ctx context.Context, tx *sql.Tx, orgID, moduleID string) (string, error) {
	var head string
	err := tx.QueryRowContext(ctx,
		`SELECT head FROM module_heads WHERE org_id = $1 AND module_id = $2`,
		orgID, moduleID).Scan(&head)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return head, err
}

func (s *SQLStore) setHeadTx(ctx context.Context, tx *sql.Tx, orgID, moduleID, hash string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO module_heads (org_id, module_id, head, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (org_id, module_id) DO UPDATE SET head = $3, updated_at = $4`,
		orgID, moduleID, hash, s.clock().UTC())
	return err
}

// casHeadTx advances the head only if it still equals from.
func (s *SQLStore) casHeadTx(ctx context.Context, tx *sql.Tx, orgID, moduleID, from, to string) (bool, error) {
	result, err := tx.ExecContext(ctx,
		`UPDATE module_heads SET head = $1, updated_at = $2
		 WHERE org_id = $3 AND module_id = $4 AND head = $5`,
		to, s.clock().UTC(), orgID, moduleID, from)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLStore) snapshotTx(ctx context.Context, tx *sql.Tx, orgID, moduleID, hash string) (map[string]any, error) {
	var raw []byte
	err := tx.QueryRowContext(ctx,
		`SELECT manifest FROM manifest_snapshots
		 WHERE org_id = $1 AND module_id = $2 AND manifest_hash = $3`,
		orgID, moduleID, hash).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s@%s", ErrSnapshotNotFound, moduleID, hash)
	}
	if err != nil {
		return nil, err
	}
	return decodeManifest(raw)
}

func (s *SQLStore) writeSnapshotTx(ctx context.Context, tx *sql.Tx, orgID, moduleID, hash string, manifest map[string]any, actor, reason string) error {
	raw, err := canonical.Canonicalize(manifest)
	if err != nil {
		return err
	}
	// Content-addressed rows never change; re-applying an existing
	// hash is a no-op.
	_, err = tx.ExecContext(ctx,
		`INSERT INTO manifest_snapshots
		 (org_id, module_id, manifest_hash, manifest, created_at, actor, reason)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (org_id, module_id, manifest_hash) DO NOTHING`,
		orgID, moduleID, hash, raw, s.clock().UTC(), actor, reason)
	return err
}

func (s *SQLStore) appendAuditTx(ctx context.Context, tx *sql.Tx, orgID string, entry AuditEntry) (string, error) {
	if entry.AuditID == "" {
		entry.AuditID = uuid.NewString()
	}
	entry.At = s.clock().UTC()
	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM module_audit
		 WHERE org_id = $1 AND module_id = $2`,
		orgID, entry.ModuleID).Scan(&seq); err != nil {
		return "", err
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return "", err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO module_audit (org_id, module_id, audit_id, seq, audit, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		orgID, entry.ModuleID, entry.AuditID, seq, raw, entry.At)
	if err != nil {
		return "", err
	}
	return entry.AuditID, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(row rowScanner) (*Version, error) {
	var v Version
	var raw []byte
	var createdBy, notes sql.NullString
	if err := row.Scan(&v.VersionID, &v.VersionNum, &v.ManifestHash, &raw,
		&v.CreatedAt, &createdBy, &notes); err != nil {
		return nil, err
	}
	v.CreatedBy = createdBy.String
	v.Notes = notes.String
	manifest, err := decodeManifest(raw)
	if err != nil {
		return nil, err
	}
	v.Manifest = manifest
	return &v, nil
}

func scanModule(row rowScanner) (*ModuleRecord, error) {
	var record ModuleRecord
	var name, currentHash, activeVersion, lastError, iconKey sql.NullString
	var displayOrder sql.NullInt64
	if err := row.Scan(&record.ModuleID, &name, &record.Enabled, &currentHash,
		&record.Status, &activeVersion, &lastError, &record.Archived,
		&record.InstalledAt, &record.UpdatedAt, &displayOrder, &iconKey); err != nil {
		return nil, err
	}
	record.Name = name.String
	record.CurrentHash = currentHash.String
	record.ActiveVersion = activeVersion.String
	record.LastError = lastError.String
	record.IconKey = iconKey.String
	if displayOrder.Valid {
		order := int(displayOrder.Int64)
		record.DisplayOrder = &order
	}
	return &record, nil
}

func decodeManifest(raw []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode stored manifest: %w", err)
	}
	return m, nil
}
