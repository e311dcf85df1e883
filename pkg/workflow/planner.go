// Package workflow plans state transitions for manifest-defined
// workflows and tracks running instances with a bounded event history.
package workflow

import (
	"fmt"
	"sort"

	"github.com/Fabrica-Labs/forma/core/pkg/dsl"
	"github.com/Fabrica-Labs/forma/core/pkg/issue"
)

// Issue codes raised by the planner.
const (
	CodeInvalid             = "WORKFLOW_INVALID"
	CodeGuardError          = "WORKFLOW_GUARD_ERROR"
	CodeMultipleTransitions = "WORKFLOW_MULTIPLE_TRANSITIONS"
)

// PlanContext carries the evaluation inputs for guard conditions.
type PlanContext struct {
	Vars         map[string]any
	Actor        string
	ModuleID     string
	ManifestHash string
}

// Event is a side effect a chosen transition emits.
type Event struct {
	Name    string         `json:"name"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Plan is the deterministic outcome of planning one step.
// ChosenTransitionID is nil when no transition is eligible.
type Plan struct {
	ChosenTransitionID *string  `json:"chosen_transition_id"`
	FromState          string   `json:"from_state"`
	ToState            string   `json:"to_state,omitempty"`
	Actions            []string `json:"actions"`
	Events             []Event  `json:"events"`
}

// Result is the planner output.
type Result struct {
	OK       bool          `json:"ok"`
	Errors   []issue.Issue `json:"errors"`
	Warnings []issue.Issue `json:"warnings"`
	Plan     *Plan         `json:"plan,omitempty"`
}

type transition struct {
	id      string
	from    string
	to      string
	guard   any
	actions []string
	events  []Event
	path    string
}

// PlanStep validates the workflow definition, filters transitions
// leaving currentState, evaluates guards, and picks at most one. The
// same (definition, state, vars) always yields the same plan.
func PlanStep(definition map[string]any, currentState string, pctx PlanContext) *Result {
	res := &Result{Errors: []issue.Issue{}, Warnings: []issue.Issue{}}

	transitions, errs := parseDefinition(definition)
	if len(errs) > 0 {
		res.Errors = errs
		return res
	}

	evalCtx := guardContext(pctx)
	var eligible []transition
	for _, t := range transitions {
		if t.from != currentState {
			continue
		}
		if t.guard != nil {
			pass, err := dsl.EvalCondition(t.guard, evalCtx)
			if err != nil {
				res.Errors = append(res.Errors, issue.Newf(CodeGuardError, t.path+"/guard",
					"guard evaluation failed: %v", err))
				return res
			}
			if !pass {
				continue
			}
		}
		eligible = append(eligible, t)
	}

	res.OK = true
	if len(eligible) == 0 {
		res.Plan = &Plan{
			FromState: currentState,
			Actions:   []string{},
			Events:    []Event{},
		}
		return res
	}

	sort.Slice(eligible, func(i, j int) bool { return eligible[i].id < eligible[j].id })
	if len(eligible) > 1 {
		allowed := make([]string, len(eligible))
		for i, t := range eligible {
			allowed[i] = t.id
		}
		res.Warnings = append(res.Warnings, issue.Newf(CodeMultipleTransitions, "",
			"%d transitions eligible from %q; choosing %q", len(eligible), currentState, eligible[0].id).
			WithDetail("allowed", allowed))
	}

	chosen := eligible[0]
	id := chosen.id
	res.Plan = &Plan{
		ChosenTransitionID: &id,
		FromState:          currentState,
		ToState:            chosen.to,
		Actions:            chosen.actions,
		Events:             chosen.events,
	}
	return res
}

func parseDefinition(definition map[string]any) ([]transition, []issue.Issue) {
	var errs issue.List

	states := map[string]bool{}
	for i, raw := range listOf(definition, "states") {
		path := fmt.Sprintf("/states/%d", i)
		state, ok := raw.(map[string]any)
		if !ok {
			errs.Add(issue.New(CodeInvalid, path, "state must be an object"))
			continue
		}
		id, _ := state["id"].(string)
		if id == "" {
			errs.Add(issue.New(CodeInvalid, path+"/id", "state id must be a non-empty string"))
			continue
		}
		if states[id] {
			errs.Addf(CodeInvalid, path+"/id", "duplicate state id %q", id)
		}
		states[id] = true
	}

	var out []transition
	seen := map[string]bool{}
	for i, raw := range listOf(definition, "transitions") {
		path := fmt.Sprintf("/transitions/%d", i)
		obj, ok := raw.(map[string]any)
		if !ok {
			errs.Add(issue.New(CodeInvalid, path, "transition must be an object"))
			continue
		}
		t := transition{path: path}
		t.id, _ = obj["id"].(string)
		if t.id == "" {
			errs.Add(issue.New(CodeInvalid, path+"/id", "transition id must be a non-empty string"))
			continue
		}
		if seen[t.id] {
			errs.Addf(CodeInvalid, path+"/id", "duplicate transition id %q", t.id)
		}
		seen[t.id] = true

		t.from, _ = obj["from"].(string)
		t.to, _ = obj["to"].(string)
		for _, key := range []string{"from", "to"} {
			if ref, _ := obj[key].(string); !states[ref] {
				errs.Addf(CodeInvalid, path+"/"+key, "%s %q is not a declared state", key, ref)
			}
		}
		t.guard = obj["guard"]

		t.actions = []string{}
		for j, a := range listOf(obj, "actions") {
			name, ok := a.(string)
			if !ok || name == "" {
				errs.Addf(CodeInvalid, fmt.Sprintf("%s/actions/%d", path, j),
					"action must be a non-empty string")
				continue
			}
			t.actions = append(t.actions, name)
		}

		t.events = []Event{}
		for j, e := range listOf(obj, "emits") {
			emitPath := fmt.Sprintf("%s/emits/%d", path, j)
			emit, ok := e.(map[string]any)
			if !ok {
				errs.Add(issue.New(CodeInvalid, emitPath, "emit must be an object"))
				continue
			}
			name, _ := emit["name"].(string)
			if name == "" {
				errs.Add(issue.New(CodeInvalid, emitPath+"/name", "emit name must be a non-empty string"))
				continue
			}
			event := Event{Name: name}
			if payload, ok := emit["payload"]; ok {
				obj, ok := payload.(map[string]any)
				if !ok {
					errs.Add(issue.New(CodeInvalid, emitPath+"/payload", "emit payload must be an object"))
					continue
				}
				event.Payload = obj
			}
			t.events = append(t.events, event)
		}

		out = append(out, t)
	}

	return out, errs.Items()
}

// guardContext exposes vars at the top level plus the caller identity
// under "actor".
func guardContext(pctx PlanContext) map[string]any {
	ctx := make(map[string]any, len(pctx.Vars)+1)
	for k, v := range pctx.Vars {
		ctx[k] = v
	}
	if pctx.Actor != "" {
		ctx["actor"] = pctx.Actor
	}
	return ctx
}

func listOf(m map[string]any, key string) []any {
	list, _ := m[key].([]any)
	return list
}
