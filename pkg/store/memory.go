package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Fabrica-Labs/forma/core/pkg/canonical"
	"github.com/Fabrica-Labs/forma/core/pkg/issue"
	"github.com/Fabrica-Labs/forma/core/pkg/patch"
	"github.com/Fabrica-Labs/forma/core/pkg/tenancy"
)

// Memory is an in-process Store. A single mutex serializes head
// advances, which gives the same CAS outcome as the SQL backend: of two
// racing applies one wins and the other observes a stale head.
type Memory struct {
	mu    sync.Mutex
	orgs  map[string]*orgState
	clock func() time.Time
}

type orgState struct {
	snapshots map[string]map[string]Snapshot // module -> hash -> snapshot
	heads     map[string]string
	audits    map[string][]AuditEntry // append order; read reversed
	versions  map[string][]Version
	modules   map[string]ModuleRecord
}

func NewMemory() *Memory {
	return &Memory{orgs: map[string]*orgState{}, clock: time.Now}
}

// WithClock overrides the clock for tests.
func (m *Memory) WithClock(clock func() time.Time) *Memory {
	m.clock = clock
	return m
}

func (m *Memory) org(ctx context.Context) (*orgState, error) {
	orgID, err := tenancy.OrgID(ctx)
	if err != nil {
		return nil, err
	}
	state, ok := m.orgs[orgID]
	if !ok {
		state = &orgState{
			snapshots: map[string]map[string]Snapshot{},
			heads:     map[string]string{},
			audits:    map[string][]AuditEntry{},
			versions:  map[string][]Version{},
			modules:   map[string]ModuleRecord{},
		}
		m.orgs[orgID] = state
	}
	return state, nil
}

func (m *Memory) InitModule(ctx context.Context, moduleID string, manifest map[string]any, actor, reason string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, err := m.org(ctx)
	if err != nil {
		return "", err
	}
	hash, err := canonical.Hash(manifest)
	if err != nil {
		return "", fmt.Errorf("init module %q: %w", moduleID, err)
	}
	if state.heads[moduleID] == hash {
		return hash, nil
	}
	if reason == "" {
		reason = "init"
	}
	state.putSnapshot(moduleID, hash, manifest, actor, reason, m.clock())
	from := state.heads[moduleID]
	state.heads[moduleID] = hash
	state.appendAudit(AuditEntry{
		ModuleID: moduleID, Action: ActionInit,
		FromHash: from, ToHash: hash, Actor: actor, Reason: reason,
	}, m.clock())
	return hash, nil
}

func (m *Memory) GetHead(ctx context.Context, moduleID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, err := m.org(ctx)
	if err != nil {
		return "", err
	}
	return state.heads[moduleID], nil
}

func (m *Memory) GetSnapshot(ctx context.Context, moduleID, hash string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, err := m.org(ctx)
	if err != nil {
		return nil, err
	}
	snap, ok := state.snapshots[moduleID][hash]
	if !ok {
		return nil, fmt.Errorf("%w: %s@%s", ErrSnapshotNotFound, moduleID, hash)
	}
	return canonical.DeepCopy(snap.Manifest).(map[string]any), nil
}

func (m *Memory) ListSnapshots(ctx context.Context, moduleID string) ([]Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, err := m.org(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Snapshot, 0, len(state.snapshots[moduleID]))
	for _, snap := range state.snapshots[moduleID] {
		snap.Manifest = canonical.DeepCopy(snap.Manifest).(map[string]any)
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) ListHistory(ctx context.Context, moduleID string) ([]AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, err := m.org(ctx)
	if err != nil {
		return nil, err
	}
	entries := state.audits[moduleID]
	out := make([]AuditEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

func (m *Memory) ApplyApprovedPreview(ctx context.Context, approved *patch.ApprovedPreview) (*MutationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, err := m.org(ctx)
	if err != nil {
		return nil, err
	}
	res := &MutationResult{Errors: []issue.Issue{}, Warnings: []issue.Issue{}}
	if errs := checkApproved(approved); errs != nil {
		res.Errors = errs
		return res, nil
	}
	moduleID := approved.Patch.TargetModuleID
	head := state.heads[moduleID]
	if head == "" || head != approved.Patch.TargetManifestHash {
		res.Errors = append(res.Errors, issue.Newf(CodeApplyHashMismatch, "/patch/target_manifest_hash",
			"target hash %s does not match head %s", approved.Patch.TargetManifestHash, head).
			WithDetail("head", head))
		return res, nil
	}
	snap := state.snapshots[moduleID][head]
	next, toHash, err := replayOps(snap.Manifest, approved.Preview.ResolvedOps)
	if err != nil {
		res.Errors = append(res.Errors, issue.Newf(CodeApplyFailed, "", "apply failed: %v", err))
		return res, nil
	}
	// The snapshot write is idempotent by hash; the apply audit is
	// still appended for traceability.
	state.putSnapshot(moduleID, toHash, next, approved.ApprovedBy.ID, approved.Patch.Reason, m.clock())
	state.heads[moduleID] = toHash
	auditID := state.appendAudit(AuditEntry{
		ModuleID: moduleID, Action: ActionApply,
		FromHash: head, ToHash: toHash,
		PatchID: approved.Patch.PatchID,
		Actor:   approved.ApprovedBy.ID,
		Reason:  approved.Patch.Reason,
	}, m.clock())
	res.OK = true
	res.FromHash = head
	res.ToHash = toHash
	res.AuditID = auditID
	return res, nil
}

func (m *Memory) Rollback(ctx context.Context, moduleID, toHash, actor, reason string) (*MutationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, err := m.org(ctx)
	if err != nil {
		return nil, err
	}
	res := &MutationResult{Errors: []issue.Issue{}, Warnings: []issue.Issue{}}
	if _, ok := state.snapshots[moduleID][toHash]; !ok {
		res.Errors = append(res.Errors, issue.Newf(CodeRollbackUnknown, "",
			"no snapshot %s for module %q", toHash, moduleID))
		return res, nil
	}
	head := state.heads[moduleID]
	if head == toHash {
		res.Warnings = append(res.Warnings, issue.Newf(CodeAlreadyAtSnapshot, "",
			"module %q is already at %s", moduleID, toHash))
	}
	state.heads[moduleID] = toHash
	auditID := state.appendAudit(AuditEntry{
		ModuleID: moduleID, Action: ActionRollback,
		FromHash: head, ToHash: toHash, Actor: actor, Reason: reason,
	}, m.clock())
	res.OK = true
	res.FromHash = head
	res.ToHash = toHash
	res.AuditID = auditID
	return res, nil
}

func (m *Memory) AppendAudit(ctx context.Context, entry AuditEntry) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, err := m.org(ctx)
	if err != nil {
		return "", err
	}
	return state.appendAudit(entry, m.clock()), nil
}

func (m *Memory) CreateVersion(ctx context.Context, moduleID, hash, createdBy, notes string) (*Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, err := m.org(ctx)
	if err != nil {
		return nil, err
	}
	snap, ok := state.snapshots[moduleID][hash]
	if !ok {
		return nil, fmt.Errorf("%w: %s@%s", ErrSnapshotNotFound, moduleID, hash)
	}
	next := int64(1)
	for _, v := range state.versions[moduleID] {
		if v.VersionNum >= next {
			next = v.VersionNum + 1
		}
	}
	version := Version{
		VersionID:    uuid.NewString(),
		VersionNum:   next,
		ManifestHash: hash,
		Manifest:     canonical.DeepCopy(snap.Manifest).(map[string]any),
		CreatedAt:    m.clock(),
		CreatedBy:    createdBy,
		Notes:        notes,
	}
	state.versions[moduleID] = append(state.versions[moduleID], version)
	out := version
	return &out, nil
}

func (m *Memory) ListVersions(ctx context.Context, moduleID string) ([]Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, err := m.org(ctx)
	if err != nil {
		return nil, err
	}
	versions := state.versions[moduleID]
	out := make([]Version, 0, len(versions))
	for i := len(versions) - 1; i >= 0; i-- {
		v := versions[i]
		v.Manifest = canonical.DeepCopy(v.Manifest).(map[string]any)
		out = append(out, v)
	}
	return out, nil
}

func (m *Memory) FindVersion(ctx context.Context, moduleID string, ref VersionRef) (*Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, err := m.org(ctx)
	if err != nil {
		return nil, err
	}
	for _, v := range state.versions[moduleID] {
		if matchVersion(v, ref) {
			v.Manifest = canonical.DeepCopy(v.Manifest).(map[string]any)
			out := v
			return &out, nil
		}
	}
	return nil, ErrVersionNotFound
}

func (m *Memory) GetModule(ctx context.Context, moduleID string) (*ModuleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, err := m.org(ctx)
	if err != nil {
		return nil, err
	}
	record, ok := state.modules[moduleID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModuleNotFound, moduleID)
	}
	out := record
	return &out, nil
}

func (m *Memory) PutModule(ctx context.Context, record *ModuleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, err := m.org(ctx)
	if err != nil {
		return err
	}
	record.UpdatedAt = m.clock()
	if record.InstalledAt.IsZero() {
		record.InstalledAt = record.UpdatedAt
	}
	state.modules[record.ModuleID] = *record
	return nil
}

func (m *Memory) ListModules(ctx context.Context, includeArchived bool) ([]ModuleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, err := m.org(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ModuleRecord, 0, len(state.modules))
	for _, record := range state.modules {
		if record.Archived && !includeArchived {
			continue
		}
		out = append(out, record)
	}
	return out, nil
}

func (s *orgState) putSnapshot(moduleID, hash string, manifest map[string]any, actor, reason string, now time.Time) {
	if s.snapshots[moduleID] == nil {
		s.snapshots[moduleID] = map[string]Snapshot{}
	}
	// Content-addressed: an existing hash is left untouched.
	if _, ok := s.snapshots[moduleID][hash]; ok {
		return
	}
	s.snapshots[moduleID][hash] = Snapshot{
		ModuleID:     moduleID,
		ManifestHash: hash,
		Manifest:     canonical.DeepCopy(manifest).(map[string]any),
		CreatedAt:    now,
		Actor:        actor,
		Reason:       reason,
	}
}

func (s *orgState) appendAudit(entry AuditEntry, now time.Time) string {
	if entry.AuditID == "" {
		entry.AuditID = uuid.NewString()
	}
	entry.At = now
	s.audits[entry.ModuleID] = append(s.audits[entry.ModuleID], entry)
	return entry.AuditID
}

func matchVersion(v Version, ref VersionRef) bool {
	switch {
	case ref.VersionID != "":
		return v.VersionID == ref.VersionID
	case ref.VersionNum > 0:
		return v.VersionNum == ref.VersionNum
	case ref.Hash != "":
		return v.ManifestHash == ref.Hash
	default:
		return false
	}
}
