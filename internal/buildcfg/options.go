// Package buildcfg expands entry points into build jobs and merges the
// bundler configuration for each of them.
//
// Configuration is an Options tree (nested maps, lists and scalars, the same
// shape viper hands back from YAML). Merging is layered in a fixed order:
// defaults, then presets, then user plugins, then the user transform.
package buildcfg

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/tiendc/go-deepcopy"
)

// Keys whose list values merge by plugin identity instead of replacing.
const (
	KeyPlugins = "plugins"
	KeyPresets = "presets"
)

// Options is an opaque bundler configuration tree.
type Options map[string]any

// Clone returns an independent deep copy.
func (o Options) Clone() Options {
	if o == nil {
		return nil
	}
	var out Options
	if err := deepcopy.Copy(&out, o); err != nil {
		// Options only ever hold JSON/YAML shaped values.
		panic(fmt.Sprintf("buildcfg: cannot copy options: %v", err))
	}
	return out
}

// Canonical returns the options as JSON with sorted object keys. Identical
// trees always produce identical bytes.
func (o Options) Canonical() ([]byte, error) {
	return json.Marshal(normalize(map[string]any(o)))
}

// Get walks nested maps along keys.
func (o Options) Get(keys ...string) (any, bool) {
	var cur any = map[string]any(o)
	for _, k := range keys {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[k]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the string at keys, or "".
func (o Options) String(keys ...string) string {
	v, _ := o.Get(keys...)
	s, _ := v.(string)
	return s
}

// Bool returns the bool at keys, or false.
func (o Options) Bool(keys ...string) bool {
	v, _ := o.Get(keys...)
	b, _ := v.(bool)
	return b
}

// StringMap returns the string-valued entries of the map at keys.
func (o Options) StringMap(keys ...string) map[string]string {
	v, _ := o.Get(keys...)
	m, ok := asMap(v)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		switch s := val.(type) {
		case string:
			out[k] = s
		case fmt.Stringer:
			out[k] = s.String()
		default:
			out[k] = fmt.Sprint(s)
		}
	}
	return out
}

// StringSlice returns the list at keys as strings. A single string is
// returned as a one element list.
func (o Options) StringSlice(keys ...string) []string {
	v, _ := o.Get(keys...)
	switch list := v.(type) {
	case string:
		return []string{list}
	case []string:
		return append([]string(nil), list...)
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// DeepMerge merges src over dst and returns a new tree. Neither input is
// modified. Maps merge recursively with src winning on leaves, lists are
// replaced, except under "plugins" and "presets" where entries merge by
// resolved module identity.
func DeepMerge(dst, src Options) Options {
	out := dst.Clone()
	if out == nil {
		out = Options{}
	}
	for k, sv := range src {
		out[k] = mergeValue(k, out[k], sv)
	}
	return out
}

func mergeValue(key string, dv, sv any) any {
	if key == KeyPlugins || key == KeyPresets {
		if dl, ok := asList(dv); ok {
			if sl, ok := asList(sv); ok {
				return mergeByIdentity(kindFor(key), dl, sl)
			}
		}
	}

	dm, dok := asMap(dv)
	sm, sok := asMap(sv)
	if dok && sok {
		merged := make(map[string]any, len(dm)+len(sm))
		for k, v := range dm {
			merged[k] = v
		}
		for k, v := range sm {
			merged[k] = mergeValue(k, merged[k], v)
		}
		return merged
	}
	return cloneValue(sv)
}

func cloneValue(v any) any {
	if v == nil {
		return nil
	}
	var out any
	if err := deepcopy.Copy(&out, v); err != nil {
		return v
	}
	return out
}

// asMap accepts both map[string]any and Options.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Options:
		return map[string]any(m), true
	}
	return nil, false
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	case []map[string]any:
		out := make([]any, len(l))
		for i, m := range l {
			out[i] = m
		}
		return out, true
	}
	return nil, false
}

// normalize rewrites the tree into plain JSON types so Canonical is stable
// regardless of whether maps arrived as Options or map[string]any.
func normalize(v any) any {
	if m, ok := asMap(v); ok {
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = normalize(val)
		}
		return out
	}
	if l, ok := asList(v); ok {
		out := make([]any, len(l))
		for i, val := range l {
			out[i] = normalize(val)
		}
		return out
	}
	return v
}

// sortedKeys is used where map iteration order would leak into output.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
