package bundler

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/tspack/internal/buildcfg"
	"github.com/conneroisu/tspack/internal/entry"
)

var esTargets = map[string]api.Target{
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es6":    api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"es2023": api.ES2023,
	"es2024": api.ES2024,
	"esnext": api.ESNext,
}

var browserEngines = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"safari":  api.EngineSafari,
	"ios":     api.EngineIOS,
	"ios_saf": api.EngineIOS,
	"opera":   api.EngineOpera,
}

var versionPattern = regexp.MustCompile(`\d+(\.\d+){0,2}`)

// translate maps a job's Options tree onto esbuild options. Problems that do
// not prevent a build (unknown targets, unknown plugins) are returned as
// warnings.
func (e *Esbuild) translate(job buildcfg.BuildJob) (api.BuildOptions, []string) {
	o := job.Options
	var warnings []string

	opts := api.BuildOptions{
		EntryPoints:   []string{job.Entry.Source},
		Outfile:       filepath.Join(e.root, filepath.FromSlash(o.String("outfile"))),
		AbsWorkingDir: e.root,
		Bundle:        true,
		Write:         false,
		Metafile:      true,
		LogLevel:      api.LogLevelSilent,
		Define:        o.StringMap("define"),
		Banner:        map[string]string{},
		Footer:        map[string]string{},
	}
	if opts.Outfile == e.root {
		opts.Outfile = filepath.Join(e.root, filepath.FromSlash(job.OutputFile))
	}

	switch entry.Format(o.String("format")) {
	case entry.FormatCJS:
		opts.Format = api.FormatCommonJS
	case entry.FormatUMD, entry.FormatSystem:
		opts.Format = api.FormatIIFE
		opts.GlobalName = o.String("globalName")
	default:
		opts.Format = api.FormatESModule
	}

	switch o.String("platform") {
	case buildcfg.TargetNode:
		opts.Platform = api.PlatformNode
	case "neutral":
		opts.Platform = api.PlatformNeutral
	default:
		opts.Platform = api.PlatformBrowser
	}

	if o.Bool("minify") {
		opts.MinifyWhitespace = true
		opts.MinifyIdentifiers = true
		opts.MinifySyntax = true
	}
	if o.Bool("treeShaking") {
		opts.TreeShaking = api.TreeShakingTrue
	}

	if v, ok := o.Get("sourcemap"); ok {
		switch v {
		case true, "linked":
			opts.Sourcemap = api.SourceMapLinked
		case "inline":
			opts.Sourcemap = api.SourceMapInline
		case "external":
			opts.Sourcemap = api.SourceMapExternal
		case "both":
			opts.Sourcemap = api.SourceMapInlineAndExternal
		}
	}

	for _, t := range o.StringSlice("target") {
		target, ok := esTargets[strings.ToLower(t)]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("unknown target %q ignored", t))
			continue
		}
		opts.Target = target
	}

	if env, ok := o.Preset("env"); ok {
		engines, w := enginesFromTargets(env["targets"])
		opts.Engines = engines
		warnings = append(warnings, w...)
	}

	if e.tsconfig != "" {
		opts.Tsconfig = e.tsconfig
	}
	opts.KeepNames = o.Bool("keepNames")

	plugins, w := e.plugins(job)
	opts.Plugins = plugins
	warnings = append(warnings, w...)

	if line, ok := e.inv.Shebang(job.Entry.Source); ok {
		opts.Banner["js"] = line
	}
	if banner := o.String("banner"); banner != "" {
		opts.Banner["js"] = joinLines(opts.Banner["js"], banner)
	}
	if footer := o.String("footer"); footer != "" {
		opts.Footer["js"] = footer
	}

	switch job.Entry.Format {
	case entry.FormatUMD:
		wrapUMD(&opts, job)
	case entry.FormatSystem:
		wrapSystem(&opts, job)
	}
	return opts, warnings
}

// enginesFromTargets converts preset-env targets ({node: ">=18", browsers:
// ["chrome 90"]}) into esbuild engines. Browserslist queries other than
// "<browser> <version>" cannot be evaluated here and are reported.
func enginesFromTargets(v any) ([]api.Engine, []string) {
	targets := buildcfg.Options{}
	switch t := v.(type) {
	case map[string]any:
		targets = buildcfg.Options(t)
	case buildcfg.Options:
		targets = t
	}

	var (
		engines  []api.Engine
		warnings []string
	)
	if node := targets.String("node"); node != "" {
		if version := versionPattern.FindString(node); version != "" {
			engines = append(engines, api.Engine{Name: api.EngineNode, Version: version})
		}
	}

	for _, query := range targets.StringSlice("browsers") {
		fields := strings.Fields(strings.ToLower(query))
		if len(fields) == 2 {
			if name, ok := browserEngines[fields[0]]; ok {
				if version := versionPattern.FindString(fields[1]); version != "" {
					engines = append(engines, api.Engine{Name: name, Version: version})
					continue
				}
			}
		}
		warnings = append(warnings, fmt.Sprintf("browserslist query %q not understood, using default target", query))
	}

	sort.SliceStable(engines, func(i, j int) bool { return engines[i].Name < engines[j].Name })
	return engines, warnings
}

func joinLines(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + "\n" + b
}
