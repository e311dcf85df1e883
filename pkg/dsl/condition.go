package dsl

import (
	"strconv"
	"strings"

	"github.com/Fabrica-Labs/forma/core/pkg/canonical"
)

// Condition operators.
var conditionOps = map[string]bool{
	"and": true, "or": true, "not": true,
	"eq": true, "neq": true,
	"gt": true, "gte": true, "lt": true, "lte": true,
	"in": true, "not_in": true, "contains": true,
	"exists": true, "not_exists": true,
	"all": true, "any": true,
}

// ConditionOps returns the supported operator names. The validator uses
// this to gate operators as data rather than code.
func ConditionOps() map[string]bool {
	out := make(map[string]bool, len(conditionOps))
	for k := range conditionOps {
		out[k] = true
	}
	return out
}

// EvalCondition evaluates a condition node against ctx with the default
// depth limit.
func EvalCondition(node any, ctx map[string]any) (bool, error) {
	return EvalConditionDepth(node, ctx, DefaultMaxDepth)
}

// EvalConditionDepth evaluates with an explicit remaining depth budget.
func EvalConditionDepth(node any, ctx map[string]any, depth int) (bool, error) {
	return evalCondition(node, ctx, "", depth)
}

func evalCondition(node any, ctx map[string]any, path string, depth int) (bool, error) {
	if depth <= 0 {
		return false, errAt(CodeConditionDepth, path, "condition nesting exceeds limit")
	}
	obj, ok := node.(map[string]any)
	if !ok {
		return false, errAt(CodeConditionSchema, path, "condition must be an object, got %T", node)
	}
	op, ok := obj["op"].(string)
	if !ok {
		return false, errAt(CodeConditionSchema, path, `condition is missing a string "op"`)
	}
	if !conditionOps[op] {
		return false, errAt(CodeConditionUnknownOp, path, "unknown condition op %q", op)
	}

	switch op {
	case "and", "or":
		children, ok := obj["children"].([]any)
		if !ok && obj["children"] != nil {
			return false, errAt(CodeConditionSchema, path+"/children", "children must be a list")
		}
		// Empty and -> true, empty or -> false.
		for i, child := range children {
			v, err := evalCondition(child, ctx, path+"/children/"+strconv.Itoa(i), depth-1)
			if err != nil {
				return false, err
			}
			if op == "and" && !v {
				return false, nil
			}
			if op == "or" && v {
				return true, nil
			}
		}
		return op == "and", nil

	case "not":
		child, ok := obj["child"]
		if !ok {
			return false, errAt(CodeConditionSchema, path, `"not" requires exactly one child`)
		}
		v, err := evalCondition(child, ctx, path+"/child", depth-1)
		if err != nil {
			return false, err
		}
		return !v, nil

	case "eq", "neq":
		left, right, err := binaryOperands(obj, ctx, path, depth)
		if err != nil {
			return false, err
		}
		eq := canonical.DeepEqual(left, right)
		if op == "neq" {
			return !eq, nil
		}
		return eq, nil

	case "gt", "gte", "lt", "lte":
		left, right, err := binaryOperands(obj, ctx, path, depth)
		if err != nil {
			return false, err
		}
		ln, lok := asNumber(left)
		rn, rok := asNumber(right)
		if !lok || !rok {
			return false, errAt(CodeConditionType, path, "%q requires numeric operands", op)
		}
		if !isFinite(ln) || !isFinite(rn) {
			return false, errAt(CodeConditionType, path, "%q operands must be finite", op)
		}
		switch op {
		case "gt":
			return ln > rn, nil
		case "gte":
			return ln >= rn, nil
		case "lt":
			return ln < rn, nil
		default:
			return ln <= rn, nil
		}

	case "contains":
		left, right, err := binaryOperands(obj, ctx, path, depth)
		if err != nil {
			return false, err
		}
		switch l := left.(type) {
		case string:
			r, ok := right.(string)
			if !ok {
				return false, errAt(CodeConditionType, path, "substring check requires a string right operand")
			}
			return strings.Contains(l, r), nil
		case []any:
			for _, elem := range l {
				if canonical.DeepEqual(elem, right) {
					return true, nil
				}
			}
			return false, nil
		default:
			return false, errAt(CodeConditionType, path, "contains requires a string or list left operand, got %T", left)
		}

	case "in", "not_in":
		left, right, err := binaryOperands(obj, ctx, path, depth)
		if err != nil {
			return false, err
		}
		list, ok := right.([]any)
		if !ok {
			return false, errAt(CodeConditionType, path, "%q requires a list right operand", op)
		}
		member := false
		for _, elem := range list {
			if canonical.DeepEqual(left, elem) {
				member = true
				break
			}
		}
		if op == "not_in" {
			return !member, nil
		}
		return member, nil

	case "exists", "not_exists":
		varPath, ok := obj["var"].(string)
		if !ok {
			return false, errAt(CodeConditionSchema, path, `%q requires a string "var"`, op)
		}
		// Resolution failure means "does not exist"; it never raises here.
		v, found := lookupVar(ctx, varPath)
		exists := found && v != nil
		if op == "not_exists" {
			return !exists, nil
		}
		return exists, nil

	case "all", "any":
		overNode, ok := obj["over"]
		if !ok {
			return false, errAt(CodeConditionSchema, path, `%q requires an "over" value`, op)
		}
		over, err := evalValue(overNode, ctx, path+"/over", depth-1)
		if err != nil {
			return false, err
		}
		list, ok := over.([]any)
		if !ok {
			return false, errAt(CodeConditionType, path+"/over", "%q iterates a list, got %T", op, over)
		}
		where, ok := obj["where"]
		if !ok {
			return false, errAt(CodeConditionSchema, path, `%q requires a "where" condition`, op)
		}
		// any([]) == false, all([]) == true.
		for _, item := range list {
			scoped := make(map[string]any, len(ctx)+1)
			for k, v := range ctx {
				scoped[k] = v
			}
			scoped["item"] = item
			v, err := evalCondition(where, scoped, path+"/where", depth-1)
			if err != nil {
				return false, err
			}
			if op == "any" && v {
				return true, nil
			}
			if op == "all" && !v {
				return false, nil
			}
		}
		return op == "all", nil
	}

	return false, errAt(CodeConditionUnknownOp, path, "unknown condition op %q", op)
}

func binaryOperands(obj map[string]any, ctx map[string]any, path string, depth int) (any, any, error) {
	leftNode, ok := obj["left"]
	if !ok {
		return nil, nil, errAt(CodeConditionSchema, path, `missing "left" operand`)
	}
	rightNode, ok := obj["right"]
	if !ok {
		return nil, nil, errAt(CodeConditionSchema, path, `missing "right" operand`)
	}
	left, err := evalValue(leftNode, ctx, path+"/left", depth-1)
	if err != nil {
		return nil, nil, err
	}
	right, err := evalValue(rightNode, ctx, path+"/right", depth-1)
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

// evalValue evaluates a value node: {literal: v}, {var: "a.b"}, or
// {array: [nodes...]}.
func evalValue(node any, ctx map[string]any, path string, depth int) (any, error) {
	if depth <= 0 {
		return nil, errAt(CodeConditionDepth, path, "value nesting exceeds limit")
	}
	obj, ok := node.(map[string]any)
	if !ok {
		return nil, errAt(CodeConditionSchema, path, "value node must be an object, got %T", node)
	}
	if lit, ok := obj["literal"]; ok {
		return lit, nil
	}
	if varPath, ok := obj["var"]; ok {
		s, ok := varPath.(string)
		if !ok {
			return nil, errAt(CodeConditionSchema, path, `"var" must be a string`)
		}
		v, found := lookupVar(ctx, s)
		if !found {
			return nil, errAt(CodeConditionVar, path, "variable %q is unresolved", s)
		}
		return v, nil
	}
	if arr, ok := obj["array"]; ok {
		items, ok := arr.([]any)
		if !ok {
			return nil, errAt(CodeConditionSchema, path+"/array", `"array" must be a list`)
		}
		out := make([]any, len(items))
		for i, item := range items {
			v, err := evalValue(item, ctx, path+"/array/"+strconv.Itoa(i), depth-1)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}
	return nil, errAt(CodeConditionSchema, path, "value node needs literal, var, or array")
}

// lookupVar resolves a dot-separated path against nested objects only.
func lookupVar(ctx map[string]any, path string) (any, bool) {
	var current any = ctx
	for _, seg := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := obj[seg]
		if !ok {
			return nil, false
		}
		current = v
	}
	return current, true
}
