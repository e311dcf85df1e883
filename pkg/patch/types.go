// Package patch implements the patch pipeline for manifests: envelope
// decoding, selector resolution, the add_field macro, protected path
// enforcement, dry-run simulation, and impact scoring.
package patch

import (
	"strings"
	"time"

	"github.com/Fabrica-Labs/forma/core/pkg/issue"
)

// Issue codes raised by the pipeline.
const (
	CodeSchema          = "PATCH_SCHEMA_ERROR"
	CodeHashMismatch    = "PATCH_HASH_MISMATCH"
	CodeOpUnsupported   = "OP_UNSUPPORTED"
	CodeNumericIndex    = "OP_NUMERIC_INDEX_PATH"
	CodeAddFieldInvalid = "ADD_FIELD_INVALID"
	CodeProtectedPath   = "PROTECTED_PATH"
	CodeSimulation      = "SIMULATION_ERROR"
)

// Impact levels derived from resolved op kinds.
const (
	ImpactLow    = "low"
	ImpactMedium = "medium"
	ImpactHigh   = "high"
)

// opKinds is the accepted operation vocabulary.
var opKinds = map[string]bool{
	"add": true, "remove": true, "replace": true,
	"move": true, "copy": true, "test": true, "add_field": true,
}

// Operation is a single envelope op. add_field uses EntityID,
// AfterFieldID, and Field; the RFC 6902 kinds use Path, From, and Value.
type Operation struct {
	Op           string         `json:"op"`
	Path         string         `json:"path,omitempty"`
	From         string         `json:"from,omitempty"`
	Value        any            `json:"value,omitempty"`
	EntityID     string         `json:"entity_id,omitempty"`
	AfterFieldID string         `json:"after_field_id,omitempty"`
	Field        map[string]any `json:"field,omitempty"`
}

// Envelope is a preview-mode patch request.
type Envelope struct {
	PatchID            string         `json:"patch_id"`
	TargetModuleID     string         `json:"target_module_id"`
	TargetManifestHash string         `json:"target_manifest_hash"`
	Mode               string         `json:"mode"`
	Reason             string         `json:"reason"`
	Operations         []Operation    `json:"operations"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

// ResolvedOp is an op whose paths are fully numeric pointers.
type ResolvedOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	From  string `json:"from,omitempty"`
	Value any    `json:"value,omitempty"`
}

// DiffSummary reports what a preview would touch.
type DiffSummary struct {
	Touched []string       `json:"touched"`
	Counts  map[string]int `json:"counts"`
}

// Result is the outcome of a preview. Impact is nil when the envelope
// carries no ops.
type Result struct {
	OK          bool          `json:"ok"`
	Errors      []issue.Issue `json:"errors"`
	Warnings    []issue.Issue `json:"warnings"`
	Impact      *string       `json:"impact"`
	ResolvedOps []ResolvedOp  `json:"resolved_ops"`
	DiffSummary DiffSummary   `json:"diff_summary"`
}

// Approver identifies who signed off on a preview.
type Approver struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

// ApprovedPreview binds a patch to the preview a reviewer accepted. The
// store replays the embedded resolved ops, never the raw envelope.
type ApprovedPreview struct {
	Patch      Envelope  `json:"patch"`
	Preview    Result    `json:"preview"`
	ApprovedBy Approver  `json:"approved_by"`
	ApprovedAt time.Time `json:"approved_at"`
}

// IsProtected reports whether a resolved pointer touches a path that
// patches may never modify.
func IsProtected(pointer string) bool {
	return pointer == "/module/id" || strings.HasPrefix(pointer, "/module/requires")
}
