// Package issue defines the wire-stable issue shape shared by the
// validator, the patch pipeline, and the store/registry results.
//
// Codes are stable identifiers (MANIFEST_*, PATCH_*, OP_*, SELECTOR_*,
// POINTER_*, PROTECTED_*, APPLY_*, ROLLBACK_*, MODULE_*, CONDITION_*,
// EXPR_*, WORKFLOW_*). Messages are advisory; clients switch on codes.
package issue

import "fmt"

// Issue is a single validation or execution finding.
type Issue struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Path    string         `json:"path"`
	Detail  map[string]any `json:"detail,omitempty"`
}

// New creates an issue with no detail map.
func New(code, path, message string) Issue {
	return Issue{Code: code, Path: path, Message: message}
}

// Newf creates an issue with a formatted message.
func Newf(code, path, format string, args ...any) Issue {
	return Issue{Code: code, Path: path, Message: fmt.Sprintf(format, args...)}
}

// WithDetail returns a copy of the issue with one detail key set.
func (i Issue) WithDetail(key string, value any) Issue {
	detail := make(map[string]any, len(i.Detail)+1)
	for k, v := range i.Detail {
		detail[k] = v
	}
	detail[key] = value
	i.Detail = detail
	return i
}

func (i Issue) Error() string {
	if i.Path != "" {
		return fmt.Sprintf("%s at %s: %s", i.Code, i.Path, i.Message)
	}
	return fmt.Sprintf("%s: %s", i.Code, i.Message)
}

// List accumulates issues. The zero value is ready to use.
type List struct {
	issues []Issue
}

// Add appends an issue.
func (l *List) Add(iss Issue) {
	l.issues = append(l.issues, iss)
}

// Addf appends a formatted issue.
func (l *List) Addf(code, path, format string, args ...any) {
	l.issues = append(l.issues, Newf(code, path, format, args...))
}

// Items returns the accumulated issues, never nil.
func (l *List) Items() []Issue {
	if l.issues == nil {
		return []Issue{}
	}
	return l.issues
}

// Empty reports whether no issues were accumulated.
func (l *List) Empty() bool {
	return len(l.issues) == 0
}

// Len returns the number of accumulated issues.
func (l *List) Len() int {
	return len(l.issues)
}
