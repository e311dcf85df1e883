// Package registry manages the lifecycle of installed modules on top of
// the manifest store: register, install, upgrade, rollback, enable,
// disable, archive, and presentation metadata.
package registry

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Fabrica-Labs/forma/core/pkg/issue"
	"github.com/Fabrica-Labs/forma/core/pkg/patch"
	"github.com/Fabrica-Labs/forma/core/pkg/store"
)

// Issue codes raised by lifecycle operations.
const (
	CodeNoManifestHead  = "MODULE_NO_MANIFEST_HEAD"
	CodeNotFound        = "MODULE_NOT_FOUND"
	CodeEnabledNoop     = "MODULE_ENABLED_NOOP"
	CodeVersionCreated  = "MODULE_VERSION_CREATED"
	CodeVersionNotFound = "MODULE_VERSION_NOT_FOUND"
)

// Registry drives module lifecycle transitions. All persistence goes
// through the Store; the registry itself is stateless.
type Registry struct {
	store  store.Store
	logger *slog.Logger
}

func New(st store.Store, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{store: st, logger: logger}
}

// Register creates the registry record for a module whose manifest has
// already been initialized. Registering twice is a no-op.
func (r *Registry) Register(ctx context.Context, moduleID, name, actor string) (*store.MutationResult, error) {
	res := newResult()
	head, err := r.store.GetHead(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	if head == "" {
		res.Errors = append(res.Errors, issue.Newf(CodeNoManifestHead, "",
			"module %q has no manifest head; init it first", moduleID))
		return res, nil
	}
	if existing, err := r.store.GetModule(ctx, moduleID); err == nil {
		res.OK = true
		res.ToHash = existing.CurrentHash
		return res, nil
	} else if !errors.Is(err, store.ErrModuleNotFound) {
		return nil, err
	}

	record := &store.ModuleRecord{
		ModuleID:    moduleID,
		Name:        name,
		Enabled:     false,
		CurrentHash: head,
		Status:      store.StatusInstalled,
	}
	if err := r.store.PutModule(ctx, record); err != nil {
		return nil, err
	}
	auditID, err := r.store.AppendAudit(ctx, store.AuditEntry{
		ModuleID: moduleID, Action: store.ActionRegister,
		ToHash: head, Actor: actor, Reason: "register",
	})
	if err != nil {
		return nil, err
	}
	res.OK = true
	res.ToHash = head
	res.AuditID = auditID
	return res, nil
}

// Install applies an approved preview and activates the module,
// creating the registry record on first install.
func (r *Registry) Install(ctx context.Context, approved *patch.ApprovedPreview) (*store.MutationResult, error) {
	return r.lifecycle(ctx, approved, store.ActionInstall)
}

// Upgrade applies an approved preview to an already-installed module.
func (r *Registry) Upgrade(ctx context.Context, approved *patch.ApprovedPreview) (*store.MutationResult, error) {
	return r.lifecycle(ctx, approved, store.ActionUpgrade)
}

func (r *Registry) lifecycle(ctx context.Context, approved *patch.ApprovedPreview, action string) (*store.MutationResult, error) {
	res := newResult()
	if approved == nil {
		res.Errors = append(res.Errors, issue.New(store.CodeApplyPreviewNotOK, "", "approved preview is required"))
		return res, nil
	}
	moduleID := approved.Patch.TargetModuleID
	actor := approved.ApprovedBy.ID

	record, err := r.store.GetModule(ctx, moduleID)
	switch {
	case errors.Is(err, store.ErrModuleNotFound):
		if action == store.ActionUpgrade {
			res.Errors = append(res.Errors, issue.Newf(CodeNotFound, "",
				"module %q is not installed", moduleID))
			return res, nil
		}
		record = nil
	case err != nil:
		return nil, err
	}

	if action == store.ActionUpgrade && record != nil {
		record.Status = store.StatusUpgrading
		if err := r.store.PutModule(ctx, record); err != nil {
			return nil, err
		}
	}

	applied, err := r.store.ApplyApprovedPreview(ctx, approved)
	if err != nil {
		return nil, err
	}
	if !applied.OK {
		if record != nil {
			record.Status = store.StatusFailed
			record.LastError = firstMessage(applied.Errors)
			if err := r.store.PutModule(ctx, record); err != nil {
				return nil, err
			}
		}
		return applied, nil
	}

	version, err := r.store.CreateVersion(ctx, moduleID, applied.ToHash, actor, action)
	if err != nil {
		return nil, err
	}

	if record == nil {
		record = &store.ModuleRecord{ModuleID: moduleID}
	}
	record.CurrentHash = applied.ToHash
	record.ActiveVersion = version.VersionID
	record.Status = store.StatusInstalled
	record.LastError = ""
	if action == store.ActionInstall {
		record.Enabled = true
	}
	if err := r.store.PutModule(ctx, record); err != nil {
		return nil, err
	}

	auditID, err := r.store.AppendAudit(ctx, store.AuditEntry{
		ModuleID: moduleID, Action: action,
		FromHash: applied.FromHash, ToHash: applied.ToHash,
		PatchID: approved.Patch.PatchID, Actor: actor,
		Reason: approved.Patch.Reason,
	})
	if err != nil {
		return nil, err
	}
	r.logger.InfoContext(ctx, "module lifecycle transition",
		slog.String("module_id", moduleID), slog.String("action", action),
		slog.Int64("version_num", version.VersionNum))

	res.OK = true
	res.Warnings = append(res.Warnings, applied.Warnings...)
	res.FromHash = applied.FromHash
	res.ToHash = applied.ToHash
	res.AuditID = auditID
	return res, nil
}

// SetEnabled toggles a module. Toggling to the current value returns ok
// with a noop warning and appends no audit.
func (r *Registry) SetEnabled(ctx context.Context, moduleID string, enabled bool, actor, reason string) (*store.MutationResult, error) {
	res := newResult()
	record, err := r.store.GetModule(ctx, moduleID)
	if errors.Is(err, store.ErrModuleNotFound) {
		res.Errors = append(res.Errors, issue.Newf(CodeNotFound, "", "module %q is not installed", moduleID))
		return res, nil
	}
	if err != nil {
		return nil, err
	}
	if record.Enabled == enabled {
		res.OK = true
		res.Warnings = append(res.Warnings, issue.Newf(CodeEnabledNoop, "",
			"module %q enabled is already %t", moduleID, enabled))
		return res, nil
	}
	record.Enabled = enabled
	if err := r.store.PutModule(ctx, record); err != nil {
		return nil, err
	}
	action := store.ActionEnable
	if !enabled {
		action = store.ActionDisable
	}
	auditID, err := r.store.AppendAudit(ctx, store.AuditEntry{
		ModuleID: moduleID, Action: action, Actor: actor, Reason: reason,
	})
	if err != nil {
		return nil, err
	}
	res.OK = true
	res.AuditID = auditID
	return res, nil
}

// Rollback moves a module back to an earlier version, resolving the
// target by version id, then version number, then manifest hash. A
// known hash with no version row gets one created on the fly.
func (r *Registry) Rollback(ctx context.Context, moduleID string, ref store.VersionRef, actor, reason string) (*store.MutationResult, error) {
	res := newResult()
	record, err := r.store.GetModule(ctx, moduleID)
	if errors.Is(err, store.ErrModuleNotFound) {
		res.Errors = append(res.Errors, issue.Newf(CodeNotFound, "", "module %q is not installed", moduleID))
		return res, nil
	}
	if err != nil {
		return nil, err
	}

	version, err := r.store.FindVersion(ctx, moduleID, ref)
	if errors.Is(err, store.ErrVersionNotFound) {
		if ref.Hash == "" || ref.VersionID != "" || ref.VersionNum > 0 {
			res.Errors = append(res.Errors, issue.New(CodeVersionNotFound, "",
				"no version matches the rollback target"))
			return res, nil
		}
		// First rollback to an un-versioned hash numbers it now.
		version, err = r.store.CreateVersion(ctx, moduleID, ref.Hash, actor, "rollback target")
		if errors.Is(err, store.ErrSnapshotNotFound) {
			res.Errors = append(res.Errors, issue.Newf(store.CodeRollbackUnknown, "",
				"no snapshot %s for module %q", ref.Hash, moduleID))
			return res, nil
		}
		if err != nil {
			return nil, err
		}
		res.Warnings = append(res.Warnings, issue.Newf(CodeVersionCreated, "",
			"created version %d for snapshot %s", version.VersionNum, ref.Hash))
	} else if err != nil {
		return nil, err
	}

	rolled, err := r.store.Rollback(ctx, moduleID, version.ManifestHash, actor, reason)
	if err != nil {
		return nil, err
	}
	if !rolled.OK {
		rolled.Warnings = append(rolled.Warnings, res.Warnings...)
		return rolled, nil
	}

	record.CurrentHash = version.ManifestHash
	record.ActiveVersion = version.VersionID
	record.Status = store.StatusInstalled
	record.LastError = ""
	if err := r.store.PutModule(ctx, record); err != nil {
		return nil, err
	}

	res.OK = true
	res.Warnings = append(res.Warnings, rolled.Warnings...)
	res.FromHash = rolled.FromHash
	res.ToHash = rolled.ToHash
	res.AuditID = rolled.AuditID
	return res, nil
}

// SetIcon stores the icon key for a module. Metadata only, no audit.
func (r *Registry) SetIcon(ctx context.Context, moduleID, iconKey string) error {
	return r.updateRecord(ctx, moduleID, func(record *store.ModuleRecord) {
		record.IconKey = iconKey
	})
}

// ClearIcon removes the module icon.
func (r *Registry) ClearIcon(ctx context.Context, moduleID string) error {
	return r.updateRecord(ctx, moduleID, func(record *store.ModuleRecord) {
		record.IconKey = ""
	})
}

// SetDisplayOrder positions the module in listings.
func (r *Registry) SetDisplayOrder(ctx context.Context, moduleID string, order int) error {
	return r.updateRecord(ctx, moduleID, func(record *store.ModuleRecord) {
		record.DisplayOrder = &order
	})
}

// Archive hides the module from default listings. Modules are archived,
// never deleted.
func (r *Registry) Archive(ctx context.Context, moduleID string) error {
	return r.updateRecord(ctx, moduleID, func(record *store.ModuleRecord) {
		record.Archived = true
	})
}

// List returns registry records, hiding archived modules unless asked.
func (r *Registry) List(ctx context.Context, includeArchived bool) ([]store.ModuleRecord, error) {
	return r.store.ListModules(ctx, includeArchived)
}

// Get returns a single registry record.
func (r *Registry) Get(ctx context.Context, moduleID string) (*store.ModuleRecord, error) {
	return r.store.GetModule(ctx, moduleID)
}

func (r *Registry) updateRecord(ctx context.Context, moduleID string, mutate func(*store.ModuleRecord)) error {
	record, err := r.store.GetModule(ctx, moduleID)
	if err != nil {
		return err
	}
	mutate(record)
	return r.store.PutModule(ctx, record)
}

func newResult() *store.MutationResult {
	return &store.MutationResult{Errors: []issue.Issue{}, Warnings: []issue.Issue{}}
}

func firstMessage(issues []issue.Issue) string {
	if len(issues) == 0 {
		return ""
	}
	return issues[0].Error()
}
