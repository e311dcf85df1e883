// Package selector resolves selector paths against JSON documents.
//
// A selector path is an RFC 6901 pointer whose array steps may take the
// form "@[id=VALUE]", matching the single element of the preceding array
// whose "id" member equals VALUE. Resolution produces a fully numeric
// RFC 6901 pointer such as /entities/0/fields/2.
package selector

import (
	"fmt"
	"strconv"
	"strings"
)

// Error codes raised during resolution.
const (
	CodePointerResolve   = "POINTER_RESOLVE_ERROR"
	CodeSelectorNotFound = "SELECTOR_NOT_FOUND"
	CodeSelectorNotUniq  = "SELECTOR_NOT_UNIQUE"
	CodeSelectorType     = "SELECTOR_TYPE_ERROR"
)

// Error is a typed resolution failure. PointerSoFar holds the numeric
// pointer built up to the failing step.
type Error struct {
	Code         string `json:"code"`
	PointerSoFar string `json:"pointer_so_far"`
	Message      string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at %q: %s", e.Code, e.PointerSoFar, e.Message)
}

const selectorPrefix = "@[id="

// IsSelectorStep reports whether a single (unescaped) token is an
// @[id=...] selector step.
func IsSelectorStep(token string) bool {
	return strings.HasPrefix(token, selectorPrefix) && strings.HasSuffix(token, "]")
}

// HasSelector reports whether any step of path is a selector step.
func HasSelector(path string) bool {
	for _, tok := range Split(path) {
		if IsSelectorStep(tok) {
			return true
		}
	}
	return false
}

// Split breaks a pointer into unescaped tokens. The empty pointer yields
// no tokens.
func Split(path string) []string {
	if path == "" {
		return nil
	}
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = Unescape(p)
	}
	return out
}

// Join assembles unescaped tokens back into a pointer.
func Join(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}
	var b strings.Builder
	for _, tok := range tokens {
		b.WriteByte('/')
		b.WriteString(Escape(tok))
	}
	return b.String()
}

// Escape applies RFC 6901 token escaping.
func Escape(token string) string {
	token = strings.ReplaceAll(token, "~", "~0")
	return strings.ReplaceAll(token, "/", "~1")
}

// Unescape reverses RFC 6901 token escaping.
func Unescape(token string) string {
	token = strings.ReplaceAll(token, "~1", "/")
	return strings.ReplaceAll(token, "~0", "~")
}

// Resolve walks doc along path and returns the equivalent fully numeric
// pointer. Every intermediate step must exist; the final step may name a
// member or index that does not exist yet (targets of add operations),
// and "-" is accepted as a final append marker.
func Resolve(doc any, path string) (string, error) {
	tokens := Split(path)
	resolved := make([]string, 0, len(tokens))
	current := doc

	for i, tok := range tokens {
		last := i == len(tokens)-1
		switch node := current.(type) {
		case map[string]any:
			if IsSelectorStep(tok) {
				return "", &Error{
					Code:         CodeSelectorType,
					PointerSoFar: Join(resolved),
					Message:      fmt.Sprintf("selector step %q applied to an object", tok),
				}
			}
			child, ok := node[tok]
			if !ok {
				if last {
					// Target of an add: the member may not exist yet.
					resolved = append(resolved, tok)
					return Join(resolved), nil
				}
				return "", &Error{
					Code:         CodePointerResolve,
					PointerSoFar: Join(resolved),
					Message:      fmt.Sprintf("key %q not found", tok),
				}
			}
			resolved = append(resolved, tok)
			current = child

		case []any:
			switch {
			case tok == "-":
				if !last {
					return "", &Error{
						Code:         CodePointerResolve,
						PointerSoFar: Join(resolved),
						Message:      `"-" is only valid as the final step`,
					}
				}
				resolved = append(resolved, "-")
				return Join(resolved), nil

			case IsSelectorStep(tok):
				want := strings.TrimSuffix(strings.TrimPrefix(tok, selectorPrefix), "]")
				idx, err := matchByID(node, want, Join(resolved))
				if err != nil {
					return "", err
				}
				resolved = append(resolved, strconv.Itoa(idx))
				current = node[idx]

			default:
				idx, err := strconv.Atoi(tok)
				if err != nil || idx < 0 {
					return "", &Error{
						Code:         CodePointerResolve,
						PointerSoFar: Join(resolved),
						Message:      fmt.Sprintf("invalid array index %q", tok),
					}
				}
				// An add may target one past the end.
				limit := len(node) - 1
				if last {
					limit = len(node)
				}
				if idx > limit {
					return "", &Error{
						Code:         CodePointerResolve,
						PointerSoFar: Join(resolved),
						Message:      fmt.Sprintf("index %d out of range (len %d)", idx, len(node)),
					}
				}
				resolved = append(resolved, strconv.Itoa(idx))
				if idx < len(node) {
					current = node[idx]
				} else {
					current = nil
				}
			}

		default:
			code := CodePointerResolve
			if IsSelectorStep(tok) {
				code = CodeSelectorType
			}
			return "", &Error{
				Code:         code,
				PointerSoFar: Join(resolved),
				Message:      fmt.Sprintf("cannot descend into %T with step %q", current, tok),
			}
		}
	}

	return Join(resolved), nil
}

func matchByID(arr []any, want, soFar string) (int, *Error) {
	found := -1
	for i, elem := range arr {
		obj, ok := elem.(map[string]any)
		if !ok {
			continue
		}
		id, ok := obj["id"].(string)
		if !ok || id != want {
			continue
		}
		if found >= 0 {
			return 0, &Error{
				Code:         CodeSelectorNotUniq,
				PointerSoFar: soFar,
				Message:      fmt.Sprintf("id %q matches more than one element", want),
			}
		}
		found = i
	}
	if found < 0 {
		return 0, &Error{
			Code:         CodeSelectorNotFound,
			PointerSoFar: soFar,
			Message:      fmt.Sprintf("no element with id %q", want),
		}
	}
	return found, nil
}

// HasNumericStep reports whether any step of path is a bare integer
// index. Patch inputs must not contain raw numeric indices; only resolved
// pointers may.
func HasNumericStep(path string) bool {
	for _, tok := range Split(path) {
		if tok == "" || tok == "-" {
			continue
		}
		if _, err := strconv.Atoi(tok); err == nil {
			return true
		}
	}
	return false
}
