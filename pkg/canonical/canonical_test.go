package canonical

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
)

func mustTree(t *testing.T, raw string) any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", raw, err)
	}
	return v
}

func TestCanonicalize_SortsKeys(t *testing.T) {
	b, err := Canonicalize(map[string]any{"c": 3, "a": 1, "b": 2})
	if err != nil {
		t.Fatalf("Canonicalize failed: %v", err)
	}
	if string(b) != `{"a":1,"b":2,"c":3}` {
		t.Errorf("got %s", b)
	}
}

func TestCanonicalize_NestedSorting(t *testing.T) {
	b, err := Canonicalize(map[string]any{
		"z": map[string]any{"y": "foo", "x": "bar"},
		"a": 1,
	})
	if err != nil {
		t.Fatalf("Canonicalize failed: %v", err)
	}
	if string(b) != `{"a":1,"z":{"x":"bar","y":"foo"}}` {
		t.Errorf("got %s", b)
	}
}

func TestCanonicalize_NoHTMLEscaping(t *testing.T) {
	b, err := Canonicalize(map[string]string{"html": "<b> & </b>"})
	if err != nil {
		t.Fatalf("Canonicalize failed: %v", err)
	}
	if string(b) != `{"html":"<b> & </b>"}` {
		t.Errorf("got %s", b)
	}
}

func TestHash_KeyOrderInsensitive(t *testing.T) {
	h1, err := Hash(mustTree(t, `{"b":1,"a":2}`))
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	h2, err := Hash(mustTree(t, `{"a":2,"b":1}`))
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if h1 != h2 {
		t.Errorf("hashes differ: %s vs %s", h1, h2)
	}
	if !strings.HasPrefix(h1, "sha256:") {
		t.Errorf("missing prefix: %s", h1)
	}
}

func TestHash_IntFloatDistinct(t *testing.T) {
	hi, err := Hash(mustTree(t, `{"n":1}`))
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	hf, err := Hash(mustTree(t, `{"n":1.0}`))
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hi == hf {
		t.Errorf("integer and float hashed identically: %s", hi)
	}
}

func TestCanonicalize_FloatForms(t *testing.T) {
	cases := map[string]string{
		`{"n":1.0}`:  `{"n":1.0}`,
		`{"n":1.50}`: `{"n":1.5}`,
		`{"n":0.5}`:  `{"n":0.5}`,
		`{"n":2e3}`:  `{"n":2000.0}`,
	}
	for in, want := range cases {
		b, err := Canonicalize(mustTree(t, in))
		if err != nil {
			t.Fatalf("Canonicalize(%s): %v", in, err)
		}
		if string(b) != want {
			t.Errorf("Canonicalize(%s) = %s, want %s", in, b, want)
		}
	}
}

func TestCanonicalize_RejectsNonFinite(t *testing.T) {
	for _, v := range []any{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := Canonicalize(map[string]any{"n": v})
		if !errors.Is(err, ErrNonFinite) {
			t.Errorf("value %v: expected ErrNonFinite, got %v", v, err)
		}
	}
}

func TestCanonicalize_BigInteger(t *testing.T) {
	b, err := Canonicalize(mustTree(t, `{"n":123456789012345678901234567890}`))
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if string(b) != `{"n":123456789012345678901234567890}` {
		t.Errorf("got %s", b)
	}
}

func TestDeepCopy_NoAliasing(t *testing.T) {
	orig := map[string]any{"a": []any{map[string]any{"x": 1}}}
	cp := DeepCopy(orig).(map[string]any)
	cp["a"].([]any)[0].(map[string]any)["x"] = 99
	if orig["a"].([]any)[0].(map[string]any)["x"] != 1 {
		t.Error("deep copy aliased original")
	}
}

func TestDeepEqual_NumberKinds(t *testing.T) {
	if !DeepEqual(json.Number("3"), float64(3)) {
		t.Error("json.Number(3) should equal float64(3)")
	}
	if !DeepEqual(mustTree(t, `{"a":[1,2]}`), map[string]any{"a": []any{1, 2}}) {
		t.Error("trees should be equal")
	}
	if DeepEqual(mustTree(t, `{"a":1}`), mustTree(t, `{"a":2}`)) {
		t.Error("distinct trees reported equal")
	}
}
