package bundler

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/tspack/internal/buildcfg"
)

// Built-in plugin identities.
var (
	PluginExternal = buildcfg.ResolveModule("plugin", "external")
	PluginReplace  = buildcfg.ResolveModule("plugin", "replace")
	PluginShebang  = buildcfg.ResolveModule("plugin", "shebang")
)

var sourceFilter = `\.(m|c)?(t|j)sx?$`

// plugins builds the esbuild plugin list for the job's "plugins" option.
// The replace and shebang plugins both rewrite source text, so they share a
// single onLoad hook applied in list order.
func (e *Esbuild) plugins(job buildcfg.BuildJob) ([]api.Plugin, []string) {
	specs, errs := job.Options.PluginList(buildcfg.KeyPlugins)

	var warnings []string
	for _, err := range errs {
		warnings = append(warnings, err.Error())
	}

	var (
		plugins    []api.Plugin
		transforms []sourceTransform
	)
	for _, spec := range specs {
		switch spec.Name {
		case PluginExternal:
			plugins = append(plugins, externalPlugin(job.External))
		case PluginReplace:
			values := buildcfg.Options(spec.Options).StringMap("values")
			if len(values) > 0 {
				transforms = append(transforms, replaceTransform(values))
			}
		case PluginShebang:
			line := readShebang(job.Entry.Source)
			e.inv.RecordShebang(job.Entry.Source, line)
			if line != "" {
				transforms = append(transforms, stripShebang(job.Entry.Source))
			}
		default:
			warnings = append(warnings, fmt.Sprintf("plugin %s is not available and was skipped", spec.Name))
		}
	}

	if len(transforms) > 0 {
		plugins = append(plugins, loadPlugin(transforms))
	}
	return plugins, warnings
}

// externalPlugin leaves bare imports matching the predicate unbundled.
func externalPlugin(pred buildcfg.ExternalPredicate) api.Plugin {
	return api.Plugin{
		Name: PluginExternal,
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: `^[^./]`},
				func(args api.OnResolveArgs) (api.OnResolveResult, error) {
					if args.Kind == api.ResolveEntryPoint || filepath.IsAbs(args.Path) {
						return api.OnResolveResult{}, nil
					}
					if pred.IsExternal(args.Path) {
						return api.OnResolveResult{Path: args.Path, External: true}, nil
					}
					return api.OnResolveResult{}, nil
				})
		},
	}
}

// sourceTransform rewrites the text of one loaded file.
type sourceTransform func(path, contents string) string

func loadPlugin(transforms []sourceTransform) api.Plugin {
	return api.Plugin{
		Name: "tspack:load",
		Setup: func(build api.PluginBuild) {
			build.OnLoad(api.OnLoadOptions{Filter: sourceFilter, Namespace: "file"},
				func(args api.OnLoadArgs) (api.OnLoadResult, error) {
					if strings.Contains(filepath.ToSlash(args.Path), "/node_modules/") {
						return api.OnLoadResult{}, nil
					}
					data, err := os.ReadFile(args.Path)
					if err != nil {
						return api.OnLoadResult{}, err
					}
					contents := string(data)
					for _, t := range transforms {
						contents = t(args.Path, contents)
					}
					return api.OnLoadResult{
						Contents:   &contents,
						ResolveDir: filepath.Dir(args.Path),
						Loader:     loaderFor(args.Path),
					}, nil
				})
		},
	}
}

// replaceTransform substitutes identifiers with fixed text. Longer keys
// take precedence over keys that are their prefix.
func replaceTransform(values map[string]string) sourceTransform {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return func(_ string, contents string) string { return contents }
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	alternatives := make([]string, len(keys))
	for i, k := range keys {
		alternatives[i] = regexp.QuoteMeta(k)
	}
	pattern := regexp.MustCompile(strings.Join(alternatives, "|"))

	return func(_ string, contents string) string {
		var (
			b    strings.Builder
			last int
		)
		for _, loc := range pattern.FindAllStringIndex(contents, -1) {
			if !boundaryBefore(contents, loc[0]) || !boundaryAfter(contents, loc[1]) {
				continue
			}
			b.WriteString(contents[last:loc[0]])
			b.WriteString(values[contents[loc[0]:loc[1]]])
			last = loc[1]
		}
		if last == 0 {
			return contents
		}
		b.WriteString(contents[last:])
		return b.String()
	}
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func boundaryBefore(s string, i int) bool {
	return i == 0 || !isIdentByte(s[i-1]) && s[i-1] != '.'
}

func boundaryAfter(s string, i int) bool {
	return i == len(s) || !isIdentByte(s[i])
}

func stripShebang(source string) sourceTransform {
	return func(path, contents string) string {
		if path != source || !strings.HasPrefix(contents, "#!") {
			return contents
		}
		if i := strings.IndexByte(contents, '\n'); i >= 0 {
			return contents[i+1:]
		}
		return ""
	}
}

func readShebang(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && line == "" {
		return ""
	}
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "#!") {
		return ""
	}
	return line
}

func loaderFor(path string) api.Loader {
	switch filepath.Ext(path) {
	case ".ts", ".mts", ".cts":
		return api.LoaderTS
	case ".tsx":
		return api.LoaderTSX
	case ".jsx":
		return api.LoaderJSX
	default:
		return api.LoaderJS
	}
}
