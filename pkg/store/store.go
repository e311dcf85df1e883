// Package store persists manifest snapshots content-addressed by their
// canonical hash, with one head pointer per (org, module), an
// append-only audit log, and a per-module version table.
//
// Two implementations ship: Memory for tests and embedded use, and
// SQLStore for Postgres or SQLite via database/sql.
package store

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/Fabrica-Labs/forma/core/pkg/canonical"
	"github.com/Fabrica-Labs/forma/core/pkg/issue"
	"github.com/Fabrica-Labs/forma/core/pkg/patch"
)

// Issue codes returned in apply and rollback results.
const (
	CodeApplyHashMismatch = "APPLY_HASH_MISMATCH"
	CodeApplyPreviewNotOK = "APPLY_PREVIEW_NOT_OK"
	CodeApplyModeInvalid  = "APPLY_MODE_INVALID"
	CodeApplyUnresolved   = "APPLY_UNRESOLVED_SELECTOR"
	CodeApplyFailed       = "APPLY_FAILED"
	CodeRollbackUnknown   = "ROLLBACK_UNKNOWN_SNAPSHOT"
	CodeRollbackConflict  = "ROLLBACK_HEAD_CONFLICT"
	CodeAlreadyAtSnapshot = "MODULE_ALREADY_AT_SNAPSHOT"
	CodeModuleNoManifest  = "MODULE_NO_MANIFEST_HEAD"
)

// Audit actions.
const (
	ActionInit     = "init"
	ActionRegister = "register"
	ActionApply    = "apply"
	ActionRollback = "rollback"
	ActionInstall  = "install"
	ActionUpgrade  = "upgrade"
	ActionEnable   = "enable"
	ActionDisable  = "disable"
)

// Module statuses.
const (
	StatusInstalled = "installed"
	StatusUpgrading = "upgrading"
	StatusFailed    = "failed"
)

// Sentinel errors for lookups.
var (
	ErrSnapshotNotFound = errors.New("store: snapshot not found")
	ErrModuleNotFound   = errors.New("store: module not found")
	ErrVersionNotFound  = errors.New("store: version not found")
)

// Snapshot is an immutable manifest keyed by its canonical hash.
type Snapshot struct {
	ModuleID     string         `json:"module_id"`
	ManifestHash string         `json:"manifest_hash"`
	Manifest     map[string]any `json:"manifest"`
	CreatedAt    time.Time      `json:"created_at"`
	Actor        string         `json:"created_by,omitempty"`
	Reason       string         `json:"reason,omitempty"`
}

// AuditEntry is one append-only history record for a module.
type AuditEntry struct {
	AuditID            string    `json:"audit_id"`
	ModuleID           string    `json:"module_id"`
	Action             string    `json:"action"`
	FromHash           string    `json:"from_hash,omitempty"`
	ToHash             string    `json:"to_hash,omitempty"`
	PatchID            string    `json:"patch_id,omitempty"`
	TransactionGroupID string    `json:"transaction_group_id,omitempty"`
	Actor              string    `json:"actor,omitempty"`
	Reason             string    `json:"reason,omitempty"`
	At                 time.Time `json:"at"`
}

// Version is a numbered head advancement for a module.
type Version struct {
	VersionID    string         `json:"version_id"`
	VersionNum   int64          `json:"version_num"`
	ManifestHash string         `json:"manifest_hash"`
	Manifest     map[string]any `json:"manifest"`
	CreatedAt    time.Time      `json:"created_at"`
	CreatedBy    string         `json:"created_by,omitempty"`
	Notes        string         `json:"notes,omitempty"`
}

// ModuleRecord is the registry row for an installed module.
type ModuleRecord struct {
	ModuleID      string    `json:"module_id"`
	Name          string    `json:"name,omitempty"`
	Enabled       bool      `json:"enabled"`
	CurrentHash   string    `json:"current_hash,omitempty"`
	Status        string    `json:"status"`
	ActiveVersion string    `json:"active_version,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	Archived      bool      `json:"archived"`
	InstalledAt   time.Time `json:"installed_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	DisplayOrder  *int      `json:"display_order,omitempty"`
	IconKey       string    `json:"icon_key,omitempty"`
}

// MutationResult is the uniform shape of every store mutation: no
// raising, always {ok, errors, warnings, ...}.
type MutationResult struct {
	OK       bool          `json:"ok"`
	Errors   []issue.Issue `json:"errors"`
	Warnings []issue.Issue `json:"warnings"`
	FromHash string        `json:"from_hash,omitempty"`
	ToHash   string        `json:"to_hash,omitempty"`
	AuditID  string        `json:"audit_id,omitempty"`
}

// VersionRef selects a version for rollback; fields are tried in order
// VersionID, VersionNum, Hash.
type VersionRef struct {
	VersionID  string
	VersionNum int64
	Hash       string
}

// Store is the persistence contract for manifests, heads, audit,
// versions, and registry records. Every call is scoped by the org in
// ctx (tenancy.WithOrg).
type Store interface {
	// InitModule canonicalizes and hashes the manifest, writes the
	// snapshot, sets the head, and appends an init audit. Idempotent on
	// re-init with an identical manifest.
	InitModule(ctx context.Context, moduleID string, manifest map[string]any, actor, reason string) (string, error)

	// GetHead returns the current head hash, or "" when none exists.
	GetHead(ctx context.Context, moduleID string) (string, error)

	// GetSnapshot returns a deep copy of the stored manifest.
	GetSnapshot(ctx context.Context, moduleID, hash string) (map[string]any, error)

	ListSnapshots(ctx context.Context, moduleID string) ([]Snapshot, error)

	// ListHistory returns audit entries newest-first.
	ListHistory(ctx context.Context, moduleID string) ([]AuditEntry, error)

	// ApplyApprovedPreview replays the preview's resolved ops against
	// the head snapshot under a head CAS; at most one of two racing
	// applies wins.
	ApplyApprovedPreview(ctx context.Context, approved *patch.ApprovedPreview) (*MutationResult, error)

	// Rollback moves the head to an existing snapshot without creating
	// a new one. The head advance is a CAS on the observed head; a
	// concurrent move surfaces as ROLLBACK_HEAD_CONFLICT.
	Rollback(ctx context.Context, moduleID, toHash, actor, reason string) (*MutationResult, error)

	// AppendAudit records a lifecycle action that does not move the
	// head (register, enable, disable, install, upgrade bookkeeping).
	AppendAudit(ctx context.Context, entry AuditEntry) (string, error)

	// CreateVersion numbers the snapshot at hash with the next
	// monotonic version_num for the module.
	CreateVersion(ctx context.Context, moduleID, hash, createdBy, notes string) (*Version, error)

	ListVersions(ctx context.Context, moduleID string) ([]Version, error)
	FindVersion(ctx context.Context, moduleID string, ref VersionRef) (*Version, error)

	GetModule(ctx context.Context, moduleID string) (*ModuleRecord, error)
	PutModule(ctx context.Context, record *ModuleRecord) error
	ListModules(ctx context.Context, includeArchived bool) ([]ModuleRecord, error)
}

// checkApproved enforces the apply preconditions shared by every
// implementation. A nil return means the preview may be replayed.
func checkApproved(approved *patch.ApprovedPreview) []issue.Issue {
	var errs issue.List
	if approved == nil {
		errs.Add(issue.New(CodeApplyPreviewNotOK, "", "approved preview is required"))
		return errs.Items()
	}
	if !approved.Preview.OK {
		errs.Add(issue.New(CodeApplyPreviewNotOK, "/preview/ok", "preview was not ok"))
	}
	if approved.Patch.Mode != "preview" {
		errs.Addf(CodeApplyModeInvalid, "/patch/mode", "patch mode must be %q, got %q", "preview", approved.Patch.Mode)
	}
	// A preview without resolved_ops never came out of the pipeline; a
	// legitimate zero-op preview carries an empty list, not nil.
	if approved.Preview.ResolvedOps == nil {
		errs.Add(issue.New(CodeApplyUnresolved, "/preview/resolved_ops",
			"preview carries no resolved_ops"))
	}
	for i, op := range approved.Preview.ResolvedOps {
		if strings.Contains(op.Path, "@[id=") || strings.Contains(op.From, "@[id=") {
			errs.Addf(CodeApplyUnresolved, "/preview/resolved_ops/"+strconv.Itoa(i),
				"resolved op still carries a selector segment")
		}
	}
	if errs.Empty() {
		return nil
	}
	return errs.Items()
}

// replayOps applies the resolved ops to a deep copy of current and
// rehashes the outcome.
func replayOps(current map[string]any, ops []patch.ResolvedOp) (map[string]any, string, error) {
	next, err := patch.Apply(current, ops)
	if err != nil {
		return nil, "", err
	}
	hash, err := canonical.Hash(next)
	if err != nil {
		return nil, "", err
	}
	return next, hash, nil
}
