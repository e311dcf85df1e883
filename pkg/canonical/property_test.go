//go:build property
// +build property

package canonical

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestHashStability verifies hashing is deterministic and clone-insensitive.
func TestHashStability(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("hash(M) == hash(clone(M))", prop.ForAll(
		func(keys []string, values []string) bool {
			obj := make(map[string]any)
			for i := 0; i < len(keys) && i < len(values); i++ {
				if keys[i] != "" {
					obj[keys[i]] = values[i]
				}
			}
			h1, err1 := Hash(obj)
			h2, err2 := Hash(DeepCopy(obj))
			if err1 != nil || err2 != nil {
				return err1 != nil && err2 != nil
			}
			return h1 == h2
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.Property("distinct canonical forms hash distinctly", prop.ForAll(
		func(a, b string) bool {
			if a == b {
				return true
			}
			h1, err1 := Hash(map[string]any{"v": a})
			h2, err2 := Hash(map[string]any{"v": b})
			if err1 != nil || err2 != nil {
				return false
			}
			return h1 != h2
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
