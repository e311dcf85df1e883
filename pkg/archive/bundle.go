package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Fabrica-Labs/forma/core/pkg/canonical"
	"github.com/Fabrica-Labs/forma/core/pkg/store"
	"github.com/Fabrica-Labs/forma/core/pkg/tenancy"
)

// Bundle is the exported history of one module: every snapshot, the
// full audit trail, and the version table, frozen at export time.
type Bundle struct {
	OrgID      string             `json:"org_id"`
	ModuleID   string             `json:"module_id"`
	Head       string             `json:"head"`
	ExportedAt time.Time          `json:"exported_at"`
	Snapshots  []store.Snapshot   `json:"snapshots"`
	Versions   []store.Version    `json:"versions"`
	Audit      []store.AuditEntry `json:"audit"`
}

// ExportResult points at the stored bundle.
type ExportResult struct {
	BundleHash string `json:"bundle_hash"`
	Size       int    `json:"size"`
}

// Exporter reads module history from the manifest store and writes
// bundles to object storage.
type Exporter struct {
	store   store.Store
	objects ObjectStore
	logger  *slog.Logger
	clock   func() time.Time
}

func NewExporter(st store.Store, objects ObjectStore, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		store:   st,
		objects: objects,
		logger:  logger,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the timestamp source. Test hook.
func (e *Exporter) WithClock(clock func() time.Time) *Exporter {
	e.clock = clock
	return e
}

// Export assembles and stores the bundle for one module. The bundle
// body is canonical JSON, so re-exporting unchanged history yields the
// same hash and the put is a no-op.
func (e *Exporter) Export(ctx context.Context, moduleID string) (*ExportResult, error) {
	orgID, err := tenancy.OrgID(ctx)
	if err != nil {
		return nil, err
	}
	head, err := e.store.GetHead(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	if head == "" {
		return nil, fmt.Errorf("archive: module %q has no manifest head", moduleID)
	}
	snapshots, err := e.store.ListSnapshots(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	versions, err := e.store.ListVersions(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	audit, err := e.store.ListHistory(ctx, moduleID)
	if err != nil {
		return nil, err
	}

	bundle := Bundle{
		OrgID:      orgID,
		ModuleID:   moduleID,
		Head:       head,
		ExportedAt: e.clock(),
		Snapshots:  snapshots,
		Versions:   versions,
		Audit:      audit,
	}
	body, err := canonical.Canonicalize(bundle)
	if err != nil {
		return nil, fmt.Errorf("archive: encode bundle: %w", err)
	}
	hash, err := e.objects.Put(ctx, body)
	if err != nil {
		return nil, err
	}
	e.logger.InfoContext(ctx, "exported module bundle",
		slog.String("module_id", moduleID),
		slog.String("bundle_hash", hash),
		slog.Int("snapshots", len(snapshots)))
	return &ExportResult{BundleHash: hash, Size: len(body)}, nil
}

// Load fetches and decodes a stored bundle.
func (e *Exporter) Load(ctx context.Context, bundleHash string) (*Bundle, error) {
	body, err := e.objects.Get(ctx, bundleHash)
	if err != nil {
		return nil, err
	}
	var bundle Bundle
	if err := json.Unmarshal(body, &bundle); err != nil {
		return nil, fmt.Errorf("archive: decode bundle: %w", err)
	}
	return &bundle, nil
}
