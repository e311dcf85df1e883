package patch

import (
	"fmt"
	"strconv"

	"github.com/Fabrica-Labs/forma/core/pkg/canonical"
	"github.com/Fabrica-Labs/forma/core/pkg/selector"
)

// Apply runs resolved ops against doc with RFC 6902 semantics and
// returns the patched tree. doc is never mutated; the result shares no
// structure with it. Paths must already be fully numeric pointers.
func Apply(doc map[string]any, ops []ResolvedOp) (map[string]any, error) {
	work := canonical.DeepCopy(doc)
	for i, op := range ops {
		next, err := applyOne(work, op)
		if err != nil {
			return nil, &simulationError{index: i,
				cause: fmt.Errorf("op %d (%s %s): %w", i, op.Op, op.Path, err)}
		}
		work = next
	}
	out, ok := work.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("patched document is no longer an object")
	}
	return out, nil
}

func applyOne(doc any, op ResolvedOp) (any, error) {
	tokens := selector.Split(op.Path)
	switch op.Op {
	case "add":
		return addAt(doc, tokens, canonical.DeepCopy(op.Value))
	case "remove":
		next, _, err := removeAt(doc, tokens)
		return next, err
	case "replace":
		return replaceAt(doc, tokens, canonical.DeepCopy(op.Value))
	case "move":
		from := selector.Split(op.From)
		next, moved, err := removeAt(doc, from)
		if err != nil {
			return nil, err
		}
		return addAt(next, tokens, moved)
	case "copy":
		val, err := getAt(doc, selector.Split(op.From))
		if err != nil {
			return nil, err
		}
		return addAt(doc, tokens, canonical.DeepCopy(val))
	case "test":
		val, err := getAt(doc, tokens)
		if err != nil {
			return nil, err
		}
		if !canonical.DeepEqual(val, op.Value) {
			return nil, fmt.Errorf("test failed at %q", op.Path)
		}
		return doc, nil
	default:
		return nil, fmt.Errorf("unsupported op %q", op.Op)
	}
}

// getAt returns the value at tokens. The empty pointer names doc itself.
func getAt(doc any, tokens []string) (any, error) {
	current := doc
	for _, tok := range tokens {
		switch node := current.(type) {
		case map[string]any:
			child, ok := node[tok]
			if !ok {
				return nil, fmt.Errorf("key %q not found", tok)
			}
			current = child
		case []any:
			idx, err := arrayIndex(tok, len(node), false)
			if err != nil {
				return nil, err
			}
			current = node[idx]
		default:
			return nil, fmt.Errorf("cannot descend into %T with %q", current, tok)
		}
	}
	return current, nil
}

// addAt inserts value at tokens, shifting array elements right. "-" and
// index == len both append.
func addAt(doc any, tokens []string, value any) (any, error) {
	if len(tokens) == 0 {
		return value, nil
	}
	tok, rest := tokens[0], tokens[1:]
	switch node := doc.(type) {
	case map[string]any:
		if len(rest) == 0 {
			node[tok] = value
			return node, nil
		}
		child, ok := node[tok]
		if !ok {
			return nil, fmt.Errorf("key %q not found", tok)
		}
		next, err := addAt(child, rest, value)
		if err != nil {
			return nil, err
		}
		node[tok] = next
		return node, nil
	case []any:
		if len(rest) == 0 {
			idx, err := arrayIndex(tok, len(node), true)
			if err != nil {
				return nil, err
			}
			out := make([]any, 0, len(node)+1)
			out = append(out, node[:idx]...)
			out = append(out, value)
			out = append(out, node[idx:]...)
			return out, nil
		}
		idx, err := arrayIndex(tok, len(node), false)
		if err != nil {
			return nil, err
		}
		next, err := addAt(node[idx], rest, value)
		if err != nil {
			return nil, err
		}
		node[idx] = next
		return node, nil
	default:
		return nil, fmt.Errorf("cannot descend into %T with %q", doc, tok)
	}
}

// removeAt deletes the value at tokens and returns it alongside the
// updated tree.
func removeAt(doc any, tokens []string) (any, any, error) {
	if len(tokens) == 0 {
		return nil, nil, fmt.Errorf("cannot remove the document root")
	}
	tok, rest := tokens[0], tokens[1:]
	switch node := doc.(type) {
	case map[string]any:
		child, ok := node[tok]
		if !ok {
			return nil, nil, fmt.Errorf("key %q not found", tok)
		}
		if len(rest) == 0 {
			delete(node, tok)
			return node, child, nil
		}
		next, removed, err := removeAt(child, rest)
		if err != nil {
			return nil, nil, err
		}
		node[tok] = next
		return node, removed, nil
	case []any:
		idx, err := arrayIndex(tok, len(node), false)
		if err != nil {
			return nil, nil, err
		}
		if len(rest) == 0 {
			removed := node[idx]
			out := append(node[:idx:idx], node[idx+1:]...)
			return out, removed, nil
		}
		next, removed, err := removeAt(node[idx], rest)
		if err != nil {
			return nil, nil, err
		}
		node[idx] = next
		return node, removed, nil
	default:
		return nil, nil, fmt.Errorf("cannot descend into %T with %q", doc, tok)
	}
}

// replaceAt swaps the value at tokens, which must already exist.
func replaceAt(doc any, tokens []string, value any) (any, error) {
	if len(tokens) == 0 {
		return value, nil
	}
	parent, err := getAt(doc, tokens[:len(tokens)-1])
	if err != nil {
		return nil, err
	}
	tok := tokens[len(tokens)-1]
	switch node := parent.(type) {
	case map[string]any:
		if _, ok := node[tok]; !ok {
			return nil, fmt.Errorf("key %q not found", tok)
		}
		node[tok] = value
		return doc, nil
	case []any:
		idx, err := arrayIndex(tok, len(node), false)
		if err != nil {
			return nil, err
		}
		node[idx] = value
		return doc, nil
	default:
		return nil, fmt.Errorf("cannot descend into %T with %q", parent, tok)
	}
}

// arrayIndex parses tok against an array of length n. When appending is
// allowed, "-" and n itself are legal.
func arrayIndex(tok string, n int, appending bool) (int, error) {
	if tok == "-" {
		if !appending {
			return 0, fmt.Errorf(`"-" is only valid as an add target`)
		}
		return n, nil
	}
	idx, err := strconv.Atoi(tok)
	if err != nil || idx < 0 {
		return 0, fmt.Errorf("invalid array index %q", tok)
	}
	limit := n - 1
	if appending {
		limit = n
	}
	if idx > limit {
		return 0, fmt.Errorf("index %d out of range (len %d)", idx, n)
	}
	return idx, nil
}
