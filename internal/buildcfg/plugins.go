package buildcfg

import (
	"fmt"
	"path"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Scope is the namespace short plugin and preset names resolve into.
const Scope = "@tspack"

// PluginSpec is the normalized form of a plugins/presets list item.
type PluginSpec struct {
	Name    string         `mapstructure:"name" json:"name"`
	Options map[string]any `mapstructure:"options" json:"options,omitempty"`
}

// ResolveModule canonicalizes a plugin or preset reference so that
// different spellings of the same module compare equal. kind is "plugin" or
// "preset": "replace" becomes "@tspack/plugin-replace", "@tspack/env"
// becomes "@tspack/preset-env" for presets, and paths are cleaned.
func ResolveModule(kind, name string) string {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return ""
	case strings.HasPrefix(name, "./"), strings.HasPrefix(name, "../"), strings.HasPrefix(name, "/"):
		cleaned := path.Clean(name)
		if !strings.HasPrefix(cleaned, ".") && !strings.HasPrefix(cleaned, "/") {
			cleaned = "./" + cleaned
		}
		return cleaned
	case strings.HasPrefix(name, Scope+"/"):
		short := strings.TrimPrefix(name, Scope+"/")
		if strings.HasPrefix(short, kind+"-") {
			return name
		}
		return Scope + "/" + kind + "-" + short
	case strings.HasPrefix(name, "@"):
		return name
	case strings.HasPrefix(name, kind+"-"):
		return Scope + "/" + name
	case strings.Contains(name, "-"+kind+"-"), strings.HasSuffix(name, "-"+kind):
		// Third-party package such as "esbuild-plugin-svg".
		return name
	default:
		return Scope + "/" + kind + "-" + name
	}
}

// ParsePluginSpec accepts the three spellings used in config files: a bare
// name, a [name, options] pair, or a {name, options} map.
func ParsePluginSpec(kind string, item any) (PluginSpec, error) {
	var spec PluginSpec
	switch v := item.(type) {
	case string:
		spec.Name = v
	case PluginSpec:
		spec = v
	case []any:
		if len(v) == 0 || len(v) > 2 {
			return spec, fmt.Errorf("%s entry must be [name] or [name, options], got %d items", kind, len(v))
		}
		name, ok := v[0].(string)
		if !ok {
			return spec, fmt.Errorf("%s name must be a string, got %T", kind, v[0])
		}
		spec.Name = name
		if len(v) == 2 && v[1] != nil {
			opts, ok := asMap(v[1])
			if !ok {
				return spec, fmt.Errorf("%s %q options must be a map, got %T", kind, name, v[1])
			}
			spec.Options = opts
		}
	default:
		m, ok := asMap(item)
		if !ok {
			return spec, fmt.Errorf("unsupported %s entry of type %T", kind, item)
		}
		if err := mapstructure.Decode(m, &spec); err != nil {
			return spec, fmt.Errorf("invalid %s entry: %w", kind, err)
		}
	}
	if strings.TrimSpace(spec.Name) == "" {
		return spec, fmt.Errorf("%s entry has no name", kind)
	}
	spec.Name = ResolveModule(kind, spec.Name)
	return spec, nil
}

// PluginList decodes the normalized list stored under key ("plugins" or
// "presets") of o. Invalid items are skipped and reported.
func (o Options) PluginList(key string) ([]PluginSpec, []error) {
	v, ok := o[key]
	if !ok {
		return nil, nil
	}
	list, ok := asList(v)
	if !ok {
		return nil, []error{fmt.Errorf("%s must be a list, got %T", key, v)}
	}
	var (
		specs []PluginSpec
		errs  []error
	)
	for _, item := range list {
		spec, err := ParsePluginSpec(kindFor(key), item)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		specs = append(specs, spec)
	}
	return specs, errs
}

// Plugin returns the options of the named plugin, if present.
func (o Options) Plugin(name string) (map[string]any, bool) {
	want := ResolveModule("plugin", name)
	specs, _ := o.PluginList(KeyPlugins)
	for _, s := range specs {
		if s.Name == want {
			return s.Options, true
		}
	}
	return nil, false
}

// Preset returns the options of the named preset, if present.
func (o Options) Preset(name string) (map[string]any, bool) {
	want := ResolveModule("preset", name)
	specs, _ := o.PluginList(KeyPresets)
	for _, s := range specs {
		if s.Name == want {
			return s.Options, true
		}
	}
	return nil, false
}

func kindFor(key string) string {
	if key == KeyPresets {
		return "preset"
	}
	return "plugin"
}

// mergeByIdentity merges src entries into dst. An entry resolving to a
// module already present is deep-merged into the first-seen position;
// others are appended in order. Unparseable items are kept verbatim.
func mergeByIdentity(kind string, dst, src []any) []any {
	out := make([]any, 0, len(dst)+len(src))
	index := make(map[string]int)

	add := func(item any) {
		spec, err := ParsePluginSpec(kind, item)
		if err != nil {
			out = append(out, cloneValue(item))
			return
		}
		if i, ok := index[spec.Name]; ok {
			if spec.Options == nil {
				return
			}
			existing := out[i].(map[string]any)
			prev, _ := asMap(existing["options"])
			merged := DeepMerge(Options(prev), Options(spec.Options))
			existing["options"] = map[string]any(merged)
			return
		}
		entry := map[string]any{"name": spec.Name}
		if spec.Options != nil {
			entry["options"] = map[string]any(Options(spec.Options).Clone())
		}
		index[spec.Name] = len(out)
		out = append(out, entry)
	}

	for _, item := range dst {
		add(item)
	}
	for _, item := range src {
		add(item)
	}
	return out
}
