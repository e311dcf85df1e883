// Package canonical provides deterministic, type-preserving JSON
// serialization and SHA-256 content addressing for manifests.
//
// Unlike RFC 8785, the canonical form here distinguishes integers from
// floats of equal value: `1` and `1.0` produce different bytes and
// therefore different hashes. Map keys are sorted lexicographically by
// UTF-8 bytes and HTML escaping is disabled.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// HashPrefix is prepended to every hex digest.
const HashPrefix = "sha256:"

// ErrNonFinite is returned when a NaN or ±Infinity reaches canonicalization.
var ErrNonFinite = errors.New("canonical: non-finite number is not representable")

// Canonicalize returns the canonical JSON bytes of v.
//
// v may be any Go value that encoding/json can marshal, or a generic JSON
// tree (map[string]any / []any / json.Number). Struct values are first
// round-tripped through encoding/json so their tags are honored, then
// re-serialized with sorted keys and exact number preservation.
func Canonicalize(v any) ([]byte, error) {
	generic, err := toGeneric(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Hash returns "sha256:" + lower-hex SHA-256 of the canonical form of v.
func Hash(v any) (string, error) {
	b, err := Canonicalize(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes computes the prefixed SHA-256 digest of raw bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return HashPrefix + hex.EncodeToString(sum[:])
}

// toGeneric converts v into a json.Number-preserving generic tree.
func toGeneric(v any) (any, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		// encoding/json reports NaN/Inf as an unsupported value.
		if strings.Contains(err.Error(), "unsupported value") {
			return nil, fmt.Errorf("%w: %v", ErrNonFinite, err)
		}
		return nil, fmt.Errorf("canonical: pre-marshal failed: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(intermediate))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonical: intermediate decode failed: %w", err)
	}
	return generic, nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case json.Number:
		return writeNumber(buf, t)
	case string:
		return writeString(buf, t)
	case []any:
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	default:
		return fmt.Errorf("canonical: unexpected value of type %T", v)
	}
}

// writeNumber emits an integer without a decimal point and a float in its
// shortest round-trip form with a type marker (".0" when otherwise whole).
func writeNumber(buf *bytes.Buffer, n json.Number) error {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		// Integer literal. Normalize through the integer parser so "-0"
		// and friends collapse; fall back to the raw literal for values
		// beyond int64 (big integers stay textual and exact).
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			buf.WriteString(strconv.FormatInt(i, 10))
			return nil
		}
		buf.WriteString(s)
		return nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("canonical: invalid number literal %q: %w", s, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ErrNonFinite
	}
	out := strconv.FormatFloat(f, 'g', -1, 64)
	// Keep the float marker so 1.0 never collides with the integer 1.
	if !strings.ContainsAny(out, ".eE") {
		out += ".0"
	}
	buf.WriteString(out)
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	// encoding/json escapes correctly; HTML escaping must stay off.
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte{'\n'}))
	return nil
}

// DeepCopy clones a generic JSON tree. Callers use it to guarantee that
// values handed out by stores cannot alias internal state.
func DeepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = DeepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = DeepCopy(val)
		}
		return out
	default:
		return t
	}
}

// DeepEqual compares two generic JSON trees structurally. Numbers compare
// by numeric value within their kind: json.Number and float64 interoperate.
func DeepEqual(a, b any) bool {
	switch ta := a.(type) {
	case map[string]any:
		tb, ok := b.(map[string]any)
		if !ok || len(ta) != len(tb) {
			return false
		}
		for k, va := range ta {
			vb, ok := tb[k]
			if !ok || !DeepEqual(va, vb) {
				return false
			}
		}
		return true
	case []any:
		tb, ok := b.([]any)
		if !ok || len(ta) != len(tb) {
			return false
		}
		for i := range ta {
			if !DeepEqual(ta[i], tb[i]) {
				return false
			}
		}
		return true
	case json.Number:
		return numberEqual(ta, b)
	case float64, int, int64:
		if nb, ok := b.(json.Number); ok {
			return numberEqual(nb, a)
		}
		fa, oka := asFloat(a)
		fb, okb := asFloat(b)
		return oka && okb && fa == fb
	default:
		if nb, ok := b.(json.Number); ok {
			return numberEqual(nb, a)
		}
		return a == b
	}
}

func numberEqual(n json.Number, other any) bool {
	fa, err := n.Float64()
	if err != nil {
		if on, ok := other.(json.Number); ok {
			return n.String() == on.String()
		}
		return false
	}
	fb, ok := asFloat(other)
	return ok && fa == fb
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
