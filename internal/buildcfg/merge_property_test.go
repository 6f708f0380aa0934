//go:build property
// +build property

package buildcfg

import (
	"bytes"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func toOptions(m map[string]int) Options {
	o := make(Options, len(m))
	for k, v := range m {
		o[k] = v
	}
	return o
}

// TestMergeProperties validates DeepMerge and identity merging.
func TestMergeProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(1234)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	keys := gen.AlphaString().Map(func(s string) string { return "k" + s })
	maps := gen.MapOf(keys, gen.IntRange(0, 100))

	properties.Property("src wins on conflicts and keys are unioned", prop.ForAll(
		func(dst, src map[string]int) bool {
			merged := DeepMerge(toOptions(dst), toOptions(src))
			for k, v := range src {
				if merged[k] != v {
					return false
				}
			}
			for k, v := range dst {
				if _, overridden := src[k]; !overridden && merged[k] != v {
					return false
				}
			}
			for k := range merged {
				_, inDst := dst[k]
				_, inSrc := src[k]
				if !inDst && !inSrc {
					return false
				}
			}
			return true
		},
		maps, maps,
	))

	properties.Property("merging is deterministic", prop.ForAll(
		func(dst, src map[string]int) bool {
			a, err1 := DeepMerge(toOptions(dst), toOptions(src)).Canonical()
			b, err2 := DeepMerge(toOptions(dst), toOptions(src)).Canonical()
			return err1 == nil && err2 == nil && bytes.Equal(a, b)
		},
		maps, maps,
	))

	names := gen.IntRange(0, 4).Map(func(i int) string {
		return []string{"replace", "@tspack/plugin-replace", "shebang", "plugin-external", "./local.js"}[i]
	})

	properties.Property("identity merge never duplicates a module", prop.ForAll(
		func(dst, src []string) bool {
			toList := func(ss []string) []any {
				out := make([]any, len(ss))
				for i, s := range ss {
					out[i] = s
				}
				return out
			}
			merged := DeepMerge(Options{KeyPlugins: toList(dst)}, Options{KeyPlugins: toList(src)})
			specs, errs := merged.PluginList(KeyPlugins)
			if len(errs) > 0 {
				return false
			}
			seen := make(map[string]bool)
			for _, s := range specs {
				if seen[s.Name] {
					return false
				}
				seen[s.Name] = true
			}
			return true
		},
		gen.SliceOf(names), gen.SliceOf(names),
	))

	properties.TestingRun(t)
}
