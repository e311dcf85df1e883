// Package dsl implements the sandboxed declarative rule language used by
// manifests and the workflow planner: a boolean condition form and a value
// expression form, both plain JSON trees with a fixed operator set.
//
// Evaluators are stateless and safe for concurrent use. They fail fast on
// the first structural issue so error sites stay precise; validation for
// authoring-time feedback lives in Validate, which only checks shape.
package dsl

import (
	"encoding/json"
	"fmt"
	"math"
)

// Condition error codes.
const (
	CodeConditionSchema    = "CONDITION_SCHEMA_ERROR"
	CodeConditionType      = "CONDITION_TYPE_ERROR"
	CodeConditionVar       = "CONDITION_VAR_UNRESOLVED"
	CodeConditionDepth     = "CONDITION_DEPTH_EXCEEDED"
	CodeConditionUnknownOp = "CONDITION_UNKNOWN_OP"
	CodeExprSchema         = "EXPR_SCHEMA_ERROR"
	CodeExprUnknownOp      = "EXPR_UNKNOWN_OP"
	CodeExprConditionError = "EXPR_CONDITION_ERROR"
	CodeExprDepth          = "EXPR_DEPTH_EXCEEDED"
)

// DefaultMaxDepth bounds condition/expression nesting at evaluation time.
const DefaultMaxDepth = 10

// Error is a typed evaluation failure carrying a JSON-pointer-like path
// into the offending node.
type Error struct {
	Code    string `json:"code"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at %q: %s", e.Code, e.Path, e.Message)
}

func errAt(code, path, format string, args ...any) *Error {
	return &Error{Code: code, Path: path, Message: fmt.Sprintf(format, args...)}
}

// asNumber coerces the numeric kinds that appear in decoded JSON and in
// Go-built test fixtures. The bool return is false for non-numbers and
// for booleans (bools never count as numbers).
func asNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
