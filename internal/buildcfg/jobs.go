package buildcfg

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/conneroisu/tspack/internal/entry"
	"github.com/conneroisu/tspack/internal/errors"
	"github.com/conneroisu/tspack/internal/manifest"
)

// Env is the environment a job is built for.
type Env string

const (
	EnvNone        Env = "none"
	EnvDevelopment Env = "development"
	EnvProduction  Env = "production"
)

// Target platforms.
const (
	TargetBrowser = "browser"
	TargetNode    = "node"
)

// DefaultESTarget is the language level emitted when no preset narrows it.
const DefaultESTarget = "es2019"

// JobInfo describes the job a TransformFunc is being applied to.
type JobInfo struct {
	Entry       entry.EntryPoint
	Env         Env
	Minify      bool
	IsPrimary   bool
	Target      string
	PackageName string
}

// TransformFunc is the user escape hatch applied last. Its result is used
// as-is.
type TransformFunc func(opts Options, info JobInfo) (Options, error)

// BuildOptions are the per-invocation settings that shape every job.
type BuildOptions struct {
	// Target is "browser" (default) or "node".
	Target string
	// Minify forces minification of env-agnostic jobs as well.
	Minify            bool
	DisableProdMinify bool
	Sourcemap         bool
	// Preset is merged over the defaults. Its "presets" list merges by
	// identity with the default preset-env entry.
	Preset Options
	// Plugins is the user plugin list, merged by identity.
	Plugins []any
	// Define adds compile time replacements, e.g. from .env files.
	Define    map[string]string
	Transform TransformFunc
}

// BuildJob is one bundler invocation. Jobs are never mutated after Expand
// returns; each owns its Options.
type BuildJob struct {
	Entry      entry.EntryPoint
	Env        Env
	Minify     bool
	IsPrimary  bool
	OutputFile string
	External   ExternalPredicate
	Options    Options
}

// ID identifies the job in logs, reports and the progress cache.
func (j BuildJob) ID() string {
	if j.Env == EnvNone {
		return j.OutputFile + "#" + string(j.Entry.Format)
	}
	return j.OutputFile + "#" + string(j.Entry.Format) + "#" + string(j.Env)
}

// Info returns the JobInfo view of the job.
func (j BuildJob) Info(target, pkg string) JobInfo {
	return JobInfo{Entry: j.Entry, Env: j.Env, Minify: j.Minify, IsPrimary: j.IsPrimary, Target: target, PackageName: pkg}
}

// Expand turns entry points into build jobs in entry order. esm entries
// produce one env-agnostic job; every other format produces a development
// and a production job.
func Expand(m *manifest.PackageManifest, entries []entry.EntryPoint, opts BuildOptions) ([]BuildJob, error) {
	if opts.Target == "" {
		opts.Target = TargetBrowser
	}
	if opts.Target != TargetBrowser && opts.Target != TargetNode {
		return nil, errors.NewValidationError(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown target %q (valid: browser, node)", opts.Target))
	}

	var (
		jobs    []BuildJob
		primary = make(map[string]bool)
		outputs = make(map[string]string)
	)

	for _, e := range entries {
		for _, env := range envsFor(e.Format) {
			job := BuildJob{
				Entry:     e,
				Env:       env,
				Minify:    minifyFor(env, opts),
				IsPrimary: !primary[e.Source],
			}
			primary[e.Source] = true

			job.OutputFile = outputFile(m, e, env, job.Minify, outputs)

			job.External = externalFor(m, e.Format, opts.Target)

			options, err := mergeJobOptions(m, job, opts)
			if err != nil {
				return nil, err
			}
			job.Options = options
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

func envsFor(f entry.Format) []Env {
	if f.DualEnv() {
		return []Env{EnvDevelopment, EnvProduction}
	}
	return []Env{EnvNone}
}

func minifyFor(env Env, opts BuildOptions) bool {
	switch env {
	case EnvProduction:
		return !opts.DisableProdMinify
	case EnvDevelopment:
		return false
	default:
		return opts.Minify
	}
}

// outputFile names a job's file. Env-agnostic jobs write the entry output;
// dual-env jobs write <dir>/<stem>.<format>.<env>[.min]<ext>. When every
// stem is taken by another entry, the last one gets a -2, -3, ... suffix.
func outputFile(m *manifest.PackageManifest, e entry.EntryPoint, env Env, minify bool, used map[string]string) string {
	if env == EnvNone {
		return e.Output
	}

	dir, base := path.Split(e.Output)
	ext := path.Ext(base)
	stems := []string{outputStem(base)}
	if e.ExportPath == "." {
		if safe := m.SafeName(); safe != "" {
			stems = []string{safe, outputStem(base)}
		}
	}

	owner := e.Key()
	claim := func(stem string) (string, bool) {
		parts := []string{stem, string(e.Format), string(env)}
		if minify {
			parts = append(parts, "min")
		}
		name := path.Join(dir, strings.Join(parts, ".")+ext)
		if prev, taken := used[name]; taken && prev != owner {
			return "", false
		}
		used[name] = owner
		return name, true
	}
	for _, stem := range stems {
		if name, ok := claim(stem); ok {
			return name
		}
	}
	last := stems[len(stems)-1]
	for n := 2; ; n++ {
		if name, ok := claim(fmt.Sprintf("%s-%d", last, n)); ok {
			return name
		}
	}
}

func outputStem(base string) string {
	stem := strings.TrimSuffix(base, path.Ext(base))
	for _, marker := range []string{".umd", ".system", ".cjs", ".esm"} {
		stem = strings.TrimSuffix(stem, marker)
	}
	return stem
}

func externalFor(m *manifest.PackageManifest, f entry.Format, target string) ExternalPredicate {
	builtins := target == TargetNode
	if f == entry.FormatUMD || f == entry.FormatSystem {
		return NewExternalPredicate(builtins, m.PeerDependencies)
	}
	return NewExternalPredicate(builtins, m.Dependencies, m.PeerDependencies)
}

// DefaultOptions is the hard-coded configuration for a job before any
// user input is applied.
func DefaultOptions(m *manifest.PackageManifest, job BuildJob, opts BuildOptions) Options {
	define := map[string]any{}
	replace := map[string]any{}
	switch job.Env {
	case EnvDevelopment:
		define["process.env.NODE_ENV"] = `"development"`
		replace["__DEV__"] = "true"
	case EnvProduction:
		define["process.env.NODE_ENV"] = `"production"`
		replace["__DEV__"] = "false"
	default:
		replace["__DEV__"] = `process.env.NODE_ENV !== "production"`
	}
	for _, k := range sortedKeys(opts.Define) {
		define[k] = opts.Define[k]
	}

	o := Options{
		"format":      string(job.Entry.Format),
		"platform":    opts.Target,
		"target":      []any{DefaultESTarget},
		"entry":       job.Entry.Source,
		"outfile":     job.OutputFile,
		"minify":      job.Minify,
		"sourcemap":   opts.Sourcemap,
		"treeShaking": true,
		"define":      define,
		"plugins": []any{
			map[string]any{"name": ResolveModule("plugin", "external")},
			map[string]any{"name": ResolveModule("plugin", "replace"), "options": map[string]any{"values": replace}},
			map[string]any{"name": ResolveModule("plugin", "shebang")},
		},
		"presets": []any{
			map[string]any{"name": ResolveModule("preset", "env"), "options": map[string]any{"targets": defaultTargets(m, opts.Target)}},
		},
	}
	if job.Entry.Format == entry.FormatUMD || job.Entry.Format == entry.FormatSystem {
		o["globalName"] = m.GlobalName()
	}
	return o
}

func defaultTargets(m *manifest.PackageManifest, target string) map[string]any {
	targets := map[string]any{}
	if node := m.Engines["node"]; node != "" {
		targets["node"] = node
	} else if target == TargetNode {
		targets["node"] = "18"
	}
	if len(m.Browserslist) > 0 && target == TargetBrowser {
		list := make([]any, len(m.Browserslist))
		for i, b := range m.Browserslist {
			list[i] = b
		}
		targets["browsers"] = list
	}
	return targets
}

// mergeJobOptions applies defaults -> preset -> user plugins -> transform.
func mergeJobOptions(m *manifest.PackageManifest, job BuildJob, opts BuildOptions) (Options, error) {
	merged := DefaultOptions(m, job, opts)

	if len(opts.Preset) > 0 {
		merged = DeepMerge(merged, opts.Preset)
	}

	if len(opts.Plugins) > 0 {
		merged = DeepMerge(merged, Options{KeyPlugins: opts.Plugins})
	}

	if opts.Transform != nil {
		out, err := opts.Transform(merged.Clone(), job.Info(opts.Target, m.Name))
		if err != nil {
			return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("output transform failed for %s", job.ID()), err)
		}
		if out == nil {
			return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid,
				fmt.Sprintf("output transform returned no options for %s", job.ID()), nil)
		}
		merged = out
	}
	return merged.Clone(), nil
}

// OverrideTransform builds a TransformFunc from config overrides keyed by
// format ("esm", "cjs", ...), by env ("development", "production") or "*".
// Matching overrides are deep-merged in the order "*", format, env.
func OverrideTransform(overrides map[string]Options) TransformFunc {
	if len(overrides) == 0 {
		return nil
	}
	return func(opts Options, info JobInfo) (Options, error) {
		for _, key := range []string{"*", string(info.Entry.Format), string(info.Env)} {
			if o, ok := overrides[key]; ok {
				opts = DeepMerge(opts, o)
			}
		}
		return opts, nil
	}
}

// Fingerprint renders jobs as canonical JSON. Two resolutions of the same
// inputs produce identical fingerprints.
func Fingerprint(jobs []BuildJob) ([]byte, error) {
	type view struct {
		ID       string            `json:"id"`
		Source   string            `json:"source"`
		Format   entry.Format      `json:"format"`
		Env      Env               `json:"env"`
		Minify   bool              `json:"minify"`
		Primary  bool              `json:"primary"`
		External ExternalPredicate `json:"external"`
		Options  json.RawMessage   `json:"options"`
	}
	views := make([]view, 0, len(jobs))
	for _, j := range jobs {
		canon, err := j.Options.Canonical()
		if err != nil {
			return nil, err
		}
		views = append(views, view{
			ID: j.ID(), Source: j.Entry.Source, Format: j.Entry.Format, Env: j.Env,
			Minify: j.Minify, Primary: j.IsPrimary, External: j.External, Options: canon,
		})
	}
	return json.Marshal(views)
}
