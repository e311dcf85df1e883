package dsl

import (
	"encoding/json"
	"strconv"
)

// Expression operators (the "expr" key).
var expressionOps = map[string]bool{
	"coalesce": true,
	"case":     true,
}

// EvalExpression evaluates a value expression against ctx with the
// default depth limit.
func EvalExpression(node any, ctx map[string]any) (any, error) {
	return EvalExpressionDepth(node, ctx, DefaultMaxDepth)
}

// EvalExpressionDepth evaluates with an explicit remaining depth budget.
// The budget is shared with condition subcalls made by "case" branches.
func EvalExpressionDepth(node any, ctx map[string]any, depth int) (any, error) {
	return evalExpression(node, ctx, "", depth)
}

func evalExpression(node any, ctx map[string]any, path string, depth int) (any, error) {
	if depth <= 0 {
		return nil, errAt(CodeExprDepth, path, "expression nesting exceeds limit")
	}
	obj, ok := node.(map[string]any)
	if !ok {
		return nil, errAt(CodeExprSchema, path, "expression must be an object, got %T", node)
	}

	if lit, ok := obj["literal"]; ok {
		if err := checkFinite(lit, path+"/literal"); err != nil {
			return nil, err
		}
		return lit, nil
	}

	if varPath, ok := obj["var"]; ok {
		s, ok := varPath.(string)
		if !ok {
			return nil, errAt(CodeExprSchema, path, `"var" must be a string`)
		}
		v, found := lookupVar(ctx, s)
		if !found {
			return nil, errAt(CodeConditionVar, path, "variable %q is unresolved", s)
		}
		return v, nil
	}

	name, ok := obj["expr"].(string)
	if !ok {
		return nil, errAt(CodeExprSchema, path, "expression needs literal, var, or expr")
	}
	if !expressionOps[name] {
		return nil, errAt(CodeExprUnknownOp, path, "unknown expression %q", name)
	}

	switch name {
	case "coalesce":
		args, ok := obj["args"].([]any)
		if !ok || len(args) == 0 {
			return nil, errAt(CodeExprSchema, path+"/args", "coalesce requires a non-empty args list")
		}
		for i, arg := range args {
			v, err := evalExpression(arg, ctx, path+"/args/"+strconv.Itoa(i), depth-1)
			if err != nil {
				return nil, err
			}
			if v != nil {
				return v, nil
			}
		}
		return nil, nil

	case "case":
		cases, ok := obj["cases"].([]any)
		if !ok {
			return nil, errAt(CodeExprSchema, path+"/cases", "case requires a cases list")
		}
		for i, c := range cases {
			branchPath := path + "/cases/" + strconv.Itoa(i)
			branch, ok := c.(map[string]any)
			if !ok {
				return nil, errAt(CodeExprSchema, branchPath, "case branch must be an object")
			}
			when, ok := branch["when"]
			if !ok {
				return nil, errAt(CodeExprSchema, branchPath, `case branch is missing "when"`)
			}
			matched, err := evalCondition(when, ctx, branchPath+"/when", depth-1)
			if err != nil {
				return nil, errAt(CodeExprConditionError, branchPath+"/when", "condition failed: %v", err)
			}
			if matched {
				then, ok := branch["then"]
				if !ok {
					return nil, errAt(CodeExprSchema, branchPath, `case branch is missing "then"`)
				}
				return evalExpression(then, ctx, branchPath+"/then", depth-1)
			}
		}
		if elseNode, ok := obj["else"]; ok {
			return evalExpression(elseNode, ctx, path+"/else", depth-1)
		}
		return nil, nil
	}

	return nil, errAt(CodeExprUnknownOp, path, "unknown expression %q", name)
}

// checkFinite rejects NaN/Inf anywhere inside a literal value.
func checkFinite(v any, path string) *Error {
	switch t := v.(type) {
	case float64:
		if !isFinite(t) {
			return errAt(CodeExprSchema, path, "literal contains a non-finite number")
		}
	case float32:
		if !isFinite(float64(t)) {
			return errAt(CodeExprSchema, path, "literal contains a non-finite number")
		}
	case json.Number:
		if f, err := t.Float64(); err == nil && !isFinite(f) {
			return errAt(CodeExprSchema, path, "literal contains a non-finite number")
		}
	case map[string]any:
		for k, val := range t {
			if err := checkFinite(val, path+"/"+k); err != nil {
				return err
			}
		}
	case []any:
		for i, val := range t {
			if err := checkFinite(val, path+"/"+strconv.Itoa(i)); err != nil {
				return err
			}
		}
	}
	return nil
}
