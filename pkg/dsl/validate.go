package dsl

import (
	"strconv"

	"github.com/Fabrica-Labs/forma/core/pkg/issue"
)

// ValidateCondition checks a condition tree for shape only, without a
// variable context. The manifest validator calls this for visible_when,
// required_when, domain filters, and workflow guards at authoring time;
// maxDepth is typically tighter than the evaluation limit.
func ValidateCondition(node any, maxDepth int) []issue.Issue {
	var list issue.List
	validateCondition(node, "", maxDepth, &list)
	return list.Items()
}

func validateCondition(node any, path string, depth int, list *issue.List) {
	if depth <= 0 {
		list.Add(issue.New(CodeConditionDepth, path, "condition nesting exceeds limit"))
		return
	}
	obj, ok := node.(map[string]any)
	if !ok {
		list.Addf(CodeConditionSchema, path, "condition must be an object, got %T", node)
		return
	}
	op, ok := obj["op"].(string)
	if !ok {
		list.Add(issue.New(CodeConditionSchema, path, `condition is missing a string "op"`))
		return
	}
	if !conditionOps[op] {
		list.Addf(CodeConditionUnknownOp, path, "unknown condition op %q", op)
		return
	}

	switch op {
	case "and", "or":
		children, ok := obj["children"].([]any)
		if obj["children"] != nil && !ok {
			list.Add(issue.New(CodeConditionSchema, path+"/children", "children must be a list"))
			return
		}
		for i, child := range children {
			validateCondition(child, path+"/children/"+strconv.Itoa(i), depth-1, list)
		}

	case "not":
		child, ok := obj["child"]
		if !ok {
			list.Add(issue.New(CodeConditionSchema, path, `"not" requires exactly one child`))
			return
		}
		validateCondition(child, path+"/child", depth-1, list)

	case "eq", "neq", "gt", "gte", "lt", "lte", "contains", "in", "not_in":
		for _, side := range []string{"left", "right"} {
			operand, ok := obj[side]
			if !ok {
				list.Addf(CodeConditionSchema, path, "missing %q operand", side)
				continue
			}
			validateValue(operand, path+"/"+side, depth-1, list)
		}

	case "exists", "not_exists":
		if _, ok := obj["var"].(string); !ok {
			list.Addf(CodeConditionSchema, path, `%q requires a string "var"`, op)
		}

	case "all", "any":
		if over, ok := obj["over"]; ok {
			validateValue(over, path+"/over", depth-1, list)
		} else {
			list.Addf(CodeConditionSchema, path, `%q requires an "over" value`, op)
		}
		if where, ok := obj["where"]; ok {
			validateCondition(where, path+"/where", depth-1, list)
		} else {
			list.Addf(CodeConditionSchema, path, `%q requires a "where" condition`, op)
		}
	}
}

func validateValue(node any, path string, depth int, list *issue.List) {
	if depth <= 0 {
		list.Add(issue.New(CodeConditionDepth, path, "value nesting exceeds limit"))
		return
	}
	obj, ok := node.(map[string]any)
	if !ok {
		list.Addf(CodeConditionSchema, path, "value node must be an object, got %T", node)
		return
	}
	if _, ok := obj["literal"]; ok {
		return
	}
	if varPath, ok := obj["var"]; ok {
		if _, ok := varPath.(string); !ok {
			list.Add(issue.New(CodeConditionSchema, path, `"var" must be a string`))
		}
		return
	}
	if arr, ok := obj["array"]; ok {
		items, ok := arr.([]any)
		if !ok {
			list.Add(issue.New(CodeConditionSchema, path+"/array", `"array" must be a list`))
			return
		}
		for i, item := range items {
			validateValue(item, path+"/array/"+strconv.Itoa(i), depth-1, list)
		}
		return
	}
	list.Add(issue.New(CodeConditionSchema, path, "value node needs literal, var, or array"))
}
