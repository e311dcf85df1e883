package patch

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Fabrica-Labs/forma/core/pkg/canonical"
	"github.com/Fabrica-Labs/forma/core/pkg/issue"
	"github.com/Fabrica-Labs/forma/core/pkg/selector"
)

// Preview validates env against the current head manifest, resolves
// selectors, expands add_field, guards protected paths, and simulates
// the resolved ops on a copy. The manifest is never mutated.
func Preview(current map[string]any, env *Envelope) *Result {
	res := &Result{
		DiffSummary: DiffSummary{Touched: []string{}, Counts: map[string]int{}},
	}
	var errs, warns issue.List

	if !checkEnvelope(env, &errs) {
		return finish(res, &errs, &warns)
	}

	currentHash, err := canonical.Hash(current)
	if err != nil {
		errs.Addf(CodeSimulation, "", "hash current manifest: %v", err)
		return finish(res, &errs, &warns)
	}
	if env.TargetManifestHash != currentHash {
		errs.Add(issue.Newf(CodeHashMismatch, "/target_manifest_hash",
			"target hash %s does not match head %s", env.TargetManifestHash, currentHash).
			WithDetail("head", currentHash))
		return finish(res, &errs, &warns)
	}

	resolved := make([]ResolvedOp, 0, len(env.Operations))
	for i, op := range env.Operations {
		opPath := "/operations/" + strconv.Itoa(i)
		if !opKinds[op.Op] {
			errs.Addf(CodeOpUnsupported, opPath+"/op", "unsupported op %q", op.Op)
			continue
		}
		if op.Op == "add_field" {
			r, ok := expandAddField(current, op, opPath, &errs)
			if ok {
				resolved = append(resolved, r)
			}
			continue
		}
		r, ok := resolveOp(current, op, opPath, &errs)
		if ok {
			resolved = append(resolved, r)
		}
	}
	res.ResolvedOps = resolved

	if errs.Empty() {
		if _, err := Apply(current, resolved); err != nil {
			idx := 0
			var se *simulationError
			if errors.As(err, &se) {
				idx = se.index
			}
			errs.Add(issue.Newf(CodeSimulation, "/operations/"+strconv.Itoa(idx),
				"simulation failed: %v", err).WithDetail("op_index", idx))
		}
	}

	res.Impact = deriveImpact(resolved)
	res.DiffSummary = summarize(resolved)
	return finish(res, &errs, &warns)
}

func finish(res *Result, errs, warns *issue.List) *Result {
	if res.ResolvedOps == nil {
		res.ResolvedOps = []ResolvedOp{}
	}
	res.Errors = errs.Items()
	res.Warnings = warns.Items()
	res.OK = errs.Empty()
	return res
}

func checkEnvelope(env *Envelope, errs *issue.List) bool {
	before := errs.Len()
	for key, val := range map[string]string{
		"/patch_id":             env.PatchID,
		"/target_module_id":     env.TargetModuleID,
		"/target_manifest_hash": env.TargetManifestHash,
		"/reason":               env.Reason,
	} {
		if val == "" {
			errs.Addf(CodeSchema, key, "%s is required", strings.TrimPrefix(key, "/"))
		}
	}
	if env.Mode != "preview" {
		errs.Addf(CodeSchema, "/mode", "mode must be %q, got %q", "preview", env.Mode)
	}
	if env.Operations == nil {
		errs.Add(issue.New(CodeSchema, "/operations", "operations must be a list"))
	}
	return errs.Len() == before
}

// resolveOp turns one RFC 6902 op into its fully numeric form.
func resolveOp(doc map[string]any, op Operation, opPath string, errs *issue.List) (ResolvedOp, bool) {
	r := ResolvedOp{Op: op.Op, Value: op.Value}
	ok := true

	resolve := func(raw, key string) string {
		if selector.HasNumericStep(raw) {
			errs.Addf(CodeNumericIndex, opPath+"/"+key,
				"raw numeric array indices are not allowed in %q", raw)
			ok = false
			return ""
		}
		out, err := selector.Resolve(doc, raw)
		if err != nil {
			addSelectorIssue(errs, err, opPath+"/"+key)
			ok = false
			return ""
		}
		if IsProtected(out) {
			errs.Addf(CodeProtectedPath, opPath+"/"+key, "path %q is protected", out)
			ok = false
		}
		return out
	}

	r.Path = resolve(op.Path, "path")
	if op.Op == "move" || op.Op == "copy" {
		if op.From == "" {
			errs.Addf(CodeSchema, opPath+"/from", "%q requires a from path", op.Op)
			return r, false
		}
		r.From = resolve(op.From, "from")
	}
	return r, ok
}

// expandAddField rewrites the add_field macro into a single add that
// inserts the new field directly after after_field_id.
func expandAddField(doc map[string]any, op Operation, opPath string, errs *issue.List) (ResolvedOp, bool) {
	if op.EntityID == "" || op.AfterFieldID == "" || op.Field == nil {
		errs.Add(issue.New(CodeAddFieldInvalid, opPath,
			"add_field requires entity_id, after_field_id, and field"))
		return ResolvedOp{}, false
	}
	anchor := fmt.Sprintf("/entities/@[id=%s]/fields/@[id=%s]", op.EntityID, op.AfterFieldID)
	resolved, err := selector.Resolve(doc, anchor)
	if err != nil {
		var serr *selector.Error
		if errors.As(err, &serr) {
			errs.Add(issue.Newf(CodeAddFieldInvalid, opPath, "add_field anchor: %s", serr.Message).
				WithDetail("pointer_so_far", serr.PointerSoFar))
		} else {
			errs.Addf(CodeAddFieldInvalid, opPath, "add_field anchor: %v", err)
		}
		return ResolvedOp{}, false
	}
	tokens := selector.Split(resolved)
	idx, err := strconv.Atoi(tokens[len(tokens)-1])
	if err != nil {
		errs.Addf(CodeAddFieldInvalid, opPath, "add_field anchor did not resolve to an index")
		return ResolvedOp{}, false
	}
	tokens[len(tokens)-1] = strconv.Itoa(idx + 1)
	return ResolvedOp{Op: "add", Path: selector.Join(tokens), Value: op.Field}, true
}

func addSelectorIssue(errs *issue.List, err error, path string) {
	var serr *selector.Error
	if errors.As(err, &serr) {
		errs.Add(issue.New(serr.Code, path, serr.Message).
			WithDetail("pointer_so_far", serr.PointerSoFar))
		return
	}
	errs.Addf(selector.CodePointerResolve, path, "%v", err)
}

// deriveImpact scores the preview from resolved op kinds alone.
func deriveImpact(ops []ResolvedOp) *string {
	if len(ops) == 0 {
		return nil
	}
	level := ImpactLow
	for _, op := range ops {
		switch op.Op {
		case "remove":
			level = ImpactHigh
		case "replace":
			if strings.Contains(op.Path, "/id") {
				level = ImpactHigh
			}
		case "add":
			if level == ImpactLow {
				level = ImpactMedium
			}
		}
		if level == ImpactHigh {
			break
		}
	}
	return &level
}

func summarize(ops []ResolvedOp) DiffSummary {
	touched := map[string]bool{}
	counts := map[string]int{}
	for _, op := range ops {
		counts[op.Op]++
		if op.Path != "" {
			touched[op.Path] = true
		}
		if op.From != "" {
			touched[op.From] = true
		}
	}
	paths := make([]string, 0, len(touched))
	for p := range touched {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return DiffSummary{Touched: paths, Counts: counts}
}

// simulationError carries the failing op index through Apply.
type simulationError struct {
	index int
	cause error
}

func (e *simulationError) Error() string { return e.cause.Error() }
func (e *simulationError) Unwrap() error { return e.cause }
