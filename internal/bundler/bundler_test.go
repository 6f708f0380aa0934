package bundler

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/tspack/internal/buildcfg"
	"github.com/conneroisu/tspack/internal/entry"
	"github.com/conneroisu/tspack/internal/errors"
	"github.com/conneroisu/tspack/internal/invocation"
	"github.com/conneroisu/tspack/internal/logging"
	"github.com/conneroisu/tspack/internal/manifest"
)

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func expand(t *testing.T, m *manifest.PackageManifest, entries []entry.EntryPoint, opts buildcfg.BuildOptions) []buildcfg.BuildJob {
	t.Helper()
	jobs, err := buildcfg.Expand(m, entries, opts)
	require.NoError(t, err)
	return jobs
}

func TestTranslateFormats(t *testing.T) {
	root := t.TempDir()
	src := writeFile(t, root, "src/index.ts", "export const a = 1\n")
	m := &manifest.PackageManifest{Root: root, Name: "my-lib", PeerDependencies: []string{"react"}}
	e := NewEsbuild(invocation.New(root), "", logging.NewNopLogger())

	jobs := expand(t, m, []entry.EntryPoint{
		{Source: src, Output: "dist/index.mjs", Format: entry.FormatESM, ExportPath: "."},
		{Source: src, Output: "dist/index.js", Format: entry.FormatCJS, ExportPath: "."},
		{Source: src, Output: "dist/index.umd.js", Format: entry.FormatUMD, ExportPath: "."},
	}, buildcfg.BuildOptions{Target: buildcfg.TargetNode, Sourcemap: true})

	esm, warnings := e.translate(jobs[0])
	assert.Empty(t, warnings)
	assert.Equal(t, api.FormatESModule, esm.Format)
	assert.Equal(t, api.PlatformNode, esm.Platform)
	assert.Equal(t, api.ES2019, esm.Target)
	assert.Equal(t, api.SourceMapLinked, esm.Sourcemap)
	assert.Equal(t, api.TreeShakingTrue, esm.TreeShaking)
	assert.False(t, esm.Write)
	assert.True(t, esm.Metafile)
	assert.Equal(t, filepath.Join(root, "dist", "index.mjs"), esm.Outfile)
	assert.Equal(t, []api.Engine{{Name: api.EngineNode, Version: "18"}}, esm.Engines)

	dev, _ := e.translate(jobs[1])
	assert.Equal(t, api.FormatCommonJS, dev.Format)
	assert.False(t, dev.MinifyWhitespace)
	assert.Equal(t, `"development"`, dev.Define["process.env.NODE_ENV"])

	prod, _ := e.translate(jobs[2])
	assert.True(t, prod.MinifyWhitespace)
	assert.True(t, prod.MinifyIdentifiers)
	assert.True(t, prod.MinifySyntax)

	umd, _ := e.translate(jobs[3])
	assert.Equal(t, api.FormatIIFE, umd.Format)
	assert.Equal(t, "myLib", umd.GlobalName)
	assert.Contains(t, umd.Banner["js"], `define(['require', "react"], factory)`)
	assert.Contains(t, umd.Footer["js"], "return myLib;")
}

func TestTranslateWarnsOnUnknownInput(t *testing.T) {
	root := t.TempDir()
	src := writeFile(t, root, "src/index.ts", "export {}\n")
	m := &manifest.PackageManifest{Root: root, Name: "x", Browserslist: []string{"chrome 100", "> 0.5%"}}
	e := NewEsbuild(invocation.New(root), "", logging.NewNopLogger())

	jobs := expand(t, m, []entry.EntryPoint{{Source: src, Output: "dist/index.js", Format: entry.FormatESM, ExportPath: "."}},
		buildcfg.BuildOptions{
			Preset:  buildcfg.Options{"target": []any{"es1999"}},
			Plugins: []any{"does-not-exist"},
		})

	opts, warnings := e.translate(jobs[0])
	assert.Equal(t, []api.Engine{{Name: api.EngineChrome, Version: "100"}}, opts.Engines)
	require.Len(t, warnings, 3)
	assert.Contains(t, warnings[0], "es1999")
	assert.Contains(t, warnings[1], "> 0.5%")
	assert.Contains(t, warnings[2], "@tspack/plugin-does-not-exist")
}

func TestShebangIsRecordedAndReemitted(t *testing.T) {
	root := t.TempDir()
	src := writeFile(t, root, "src/cli.ts", "#!/usr/bin/env node\nconsole.log('hi')\n")
	inv := invocation.New(root)
	e := NewEsbuild(inv, "", logging.NewNopLogger())

	jobs := expand(t, &manifest.PackageManifest{Root: root, Name: "cli"},
		[]entry.EntryPoint{{Source: src, Output: "dist/cli.js", Format: entry.FormatESM, ExportPath: "./cli"}},
		buildcfg.BuildOptions{})

	opts, _ := e.translate(jobs[0])
	line, ok := inv.Shebang(src)
	require.True(t, ok)
	assert.Equal(t, "#!/usr/bin/env node", line)
	assert.True(t, strings.HasPrefix(opts.Banner["js"], "#!/usr/bin/env node"))
}

func TestRemovedShebangIsNotReemitted(t *testing.T) {
	root := t.TempDir()
	src := writeFile(t, root, "src/cli.ts", "#!/usr/bin/env node\nconsole.log('hi')\n")
	inv := invocation.New(root)
	e := NewEsbuild(inv, "", logging.NewNopLogger())

	jobs := expand(t, &manifest.PackageManifest{Root: root, Name: "cli"},
		[]entry.EntryPoint{{Source: src, Output: "dist/cli.js", Format: entry.FormatESM, ExportPath: "./cli"}},
		buildcfg.BuildOptions{})

	opts, _ := e.translate(jobs[0])
	require.True(t, strings.HasPrefix(opts.Banner["js"], "#!/usr/bin/env node"))

	writeFile(t, root, "src/cli.ts", "console.log('hi')\n")
	opts, _ = e.translate(jobs[0])
	assert.NotContains(t, opts.Banner["js"], "#!")
	_, ok := inv.Shebang(src)
	assert.False(t, ok)
}

func TestReplaceTransform(t *testing.T) {
	replace := replaceTransform(map[string]string{
		"__DEV__":             "false",
		"__DEV__X":            "nope",
		"process.env.VERSION": `"1.2.3"`,
		"":                    "ignored",
	})

	out := replace("a.ts", "if (__DEV__) log(process.env.VERSION); obj.__DEV__; my__DEV__; __DEV__X")
	assert.Equal(t, `if (false) log("1.2.3"); obj.__DEV__; my__DEV__; nope`, out)

	unchanged := "const x = 1"
	assert.Equal(t, unchanged, replace("a.ts", unchanged))
}

func TestStripShebang(t *testing.T) {
	strip := stripShebang("/p/src/cli.ts")
	assert.Equal(t, "run()\n", strip("/p/src/cli.ts", "#!/usr/bin/env node\nrun()\n"))
	assert.Equal(t, "#!/x\nrun()\n", strip("/p/src/other.ts", "#!/x\nrun()\n"))
}

func TestEsbuildBuildWritesOutput(t *testing.T) {
	root := t.TempDir()
	src := writeFile(t, root, "src/index.ts", `import { chunk } from "lodash"
export const size: number = chunk([1, 2, 3], 2).length
export const dev = __DEV__
`)
	m := &manifest.PackageManifest{Root: root, Name: "my-lib", Dependencies: []string{"lodash"}}
	e := NewEsbuild(invocation.New(root), "", logging.NewNopLogger())

	jobs := expand(t, m, []entry.EntryPoint{{Source: src, Output: "dist/index.mjs", Format: entry.FormatESM, ExportPath: "."}},
		buildcfg.BuildOptions{})

	res := e.Build(context.Background(), jobs[0])
	require.False(t, res.Failed(), "%v", res.Errors)

	data, err := os.ReadFile(filepath.Join(root, "dist", "index.mjs"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"lodash"`)
	assert.NotContains(t, string(data), "__DEV__")
	require.NotEmpty(t, res.Outputs)
	assert.Equal(t, "dist/index.mjs", res.Outputs[0].Path)
	require.NotNil(t, res.Analysis)
	assert.Equal(t, []string{"lodash"}, res.Analysis.ExternalImports)
}

func TestEsbuildRewrittenSourcesResolveRelativeImports(t *testing.T) {
	root := t.TempDir()
	src := writeFile(t, root, "src/cli.ts", "#!/usr/bin/env node\nimport { greet } from './lib/greet'\nconsole.log(greet(__DEV__))\n")
	writeFile(t, root, "src/lib/greet.ts", "export const greet = (dev: boolean) => dev ? 'hello dev' : 'hello'\n")
	e := NewEsbuild(invocation.New(root), "", logging.NewNopLogger())

	jobs := expand(t, &manifest.PackageManifest{Root: root, Name: "cli"},
		[]entry.EntryPoint{{Source: src, Output: "dist/cli.mjs", Format: entry.FormatESM, ExportPath: "./cli"}},
		buildcfg.BuildOptions{})

	res := e.Build(context.Background(), jobs[0])
	require.False(t, res.Failed(), "%v", res.Errors)

	data, err := os.ReadFile(filepath.Join(root, "dist", "cli.mjs"))
	require.NoError(t, err)
	out := string(data)
	assert.True(t, strings.HasPrefix(out, "#!/usr/bin/env node\n"))
	assert.Contains(t, out, "hello dev")
	assert.Equal(t, 1, strings.Count(out, "#!"))
}

func TestEsbuildBuildReportsLocatedErrors(t *testing.T) {
	root := t.TempDir()
	src := writeFile(t, root, "src/index.ts", "export const x = (\n")
	e := NewEsbuild(invocation.New(root), "", logging.NewNopLogger())

	jobs := expand(t, &manifest.PackageManifest{Root: root, Name: "bad"},
		[]entry.EntryPoint{{Source: src, Output: "dist/index.js", Format: entry.FormatESM, ExportPath: "."}},
		buildcfg.BuildOptions{})

	res := e.Build(context.Background(), jobs[0])
	require.True(t, res.Failed())
	require.NotEmpty(t, res.Errors)
	require.NotNil(t, res.Errors[0].Location)
	assert.Equal(t, "src/index.ts", res.Errors[0].Location.File)
	assert.Equal(t, jobs[0].ID(), res.Errors[0].Job)

	_, err := os.Stat(filepath.Join(root, "dist", "index.js"))
	assert.True(t, os.IsNotExist(err))
}

func TestEsbuildCancelledBuildWritesNothing(t *testing.T) {
	root := t.TempDir()
	src := writeFile(t, root, "src/index.ts", "export const x = 1\n")
	e := NewEsbuild(invocation.New(root), "", logging.NewNopLogger())

	jobs := expand(t, &manifest.PackageManifest{Root: root, Name: "x"},
		[]entry.EntryPoint{{Source: src, Output: "dist/index.js", Format: entry.FormatESM, ExportPath: "."}},
		buildcfg.BuildOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := e.Build(ctx, jobs[0])

	assert.True(t, res.Cancelled)
	_, err := os.Stat(filepath.Join(root, "dist", "index.js"))
	assert.True(t, os.IsNotExist(err))
}

type fakeBundler struct {
	fail    map[string]bool
	panicOn string
	calls   atomic.Int32
}

func (f *fakeBundler) Build(_ context.Context, job buildcfg.BuildJob) Result {
	f.calls.Add(1)
	if job.ID() == f.panicOn {
		panic("boom")
	}
	res := Result{Job: job, Duration: time.Millisecond}
	if f.fail[job.ID()] {
		res.Errors = []*errors.BuildError{{Job: job.ID(), Message: "syntax error", Severity: errors.ErrorSeverityError}}
		return res
	}
	res.Outputs = []OutputFile{{Path: job.OutputFile, Bytes: 10}}
	return res
}

func runnerJobs(t *testing.T) []buildcfg.BuildJob {
	m := &manifest.PackageManifest{Root: "/proj", Name: "lib"}
	return expand(t, m, []entry.EntryPoint{
		{Source: "/proj/src/index.ts", Output: "dist/index.js", Format: entry.FormatCJS, ExportPath: "."},
		{Source: "/proj/src/index.ts", Output: "dist/index.mjs", Format: entry.FormatESM, ExportPath: "."},
		{Source: "/proj/src/extra.ts", Output: "dist/extra.mjs", Format: entry.FormatESM, ExportPath: "./extra"},
	}, buildcfg.BuildOptions{})
}

func TestRunnerKeepsJobOrderAndIsolatesFailures(t *testing.T) {
	jobs := runnerJobs(t)
	fb := &fakeBundler{fail: map[string]bool{jobs[1].ID(): true}, panicOn: jobs[3].ID()}

	var completed atomic.Int32
	metrics := NewMetrics()
	r := NewRunner(fb, 2, logging.NewNopLogger()).WithMetrics(metrics)
	r.AddCallback(func(Result) { completed.Add(1) })

	results := r.Run(context.Background(), jobs)

	require.Len(t, results, len(jobs))
	for i, res := range results {
		assert.Equal(t, jobs[i].ID(), res.Job.ID())
	}
	assert.False(t, results[0].Failed())
	assert.True(t, results[1].Failed())
	assert.False(t, results[2].Failed())
	assert.True(t, results[3].Failed())
	assert.Equal(t, errors.ErrorSeverityFatal, results[3].Errors[0].Severity)
	assert.EqualValues(t, 4, fb.calls.Load())
	assert.EqualValues(t, 4, completed.Load())

	snap := metrics.Snapshot()
	assert.EqualValues(t, 4, snap.TotalJobs)
	assert.EqualValues(t, 2, snap.FailedJobs)
	assert.EqualValues(t, 20, snap.BytesWritten)
	assert.EqualValues(t, 1, snap.Runs)
	assert.InDelta(t, 50.0, snap.SuccessRate(), 0.001)

	collector := Collect(results)
	assert.ElementsMatch(t, []string{jobs[1].ID(), jobs[3].ID()}, collector.FailedJobs())
}

func TestRunnersShareSessionMetrics(t *testing.T) {
	jobs := runnerJobs(t)
	session := NewMetrics()
	fb := &fakeBundler{fail: map[string]bool{jobs[0].ID(): true}}

	for i := 0; i < 2; i++ {
		NewRunner(fb, 2, logging.NewNopLogger()).WithMetrics(session).Run(context.Background(), jobs)
	}

	snap := session.Snapshot()
	assert.EqualValues(t, 2, snap.Runs)
	assert.EqualValues(t, 2*len(jobs), snap.TotalJobs)
	assert.EqualValues(t, 2, snap.FailedJobs)
	assert.EqualValues(t, 10*(2*len(jobs)-2), snap.BytesWritten)
}

func TestWriteShims(t *testing.T) {
	root := t.TempDir()
	jobs := runnerJobs(t)
	results := []Result{{Job: jobs[0]}, {Job: jobs[1]}, {Job: jobs[2]}, {Job: jobs[3]}}

	written, err := WriteShims(root, results)
	require.NoError(t, err)
	assert.Equal(t, []string{"dist/index.js"}, written)

	data, err := os.ReadFile(filepath.Join(root, "dist", "index.js"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "require('./lib.cjs.production.min.js')")
	assert.Contains(t, string(data), "require('./lib.cjs.development.js')")
}

func TestWriteShimsSkipsFailedPairs(t *testing.T) {
	root := t.TempDir()
	jobs := runnerJobs(t)
	results := []Result{
		{Job: jobs[0]},
		{Job: jobs[1], Errors: []*errors.BuildError{{Message: "x", Severity: errors.ErrorSeverityError}}},
	}

	written, err := WriteShims(root, results)
	require.NoError(t, err)
	assert.Empty(t, written)
}

func TestProgressCache(t *testing.T) {
	dir := t.TempDir()
	jobs := runnerJobs(t)

	pc := LoadProgress(dir)
	assert.Zero(t, pc.Estimate(jobs, 2))

	pc.Record(jobs[0].ID(), 300*time.Millisecond)
	pc.Record(jobs[1].ID(), 100*time.Millisecond)
	require.NoError(t, pc.Save())

	reloaded := LoadProgress(dir)
	assert.Equal(t, 300*time.Millisecond, reloaded.Estimate(jobs, 2))
	assert.Equal(t, 400*time.Millisecond, reloaded.Estimate(jobs, 1))
}

func TestProgressCacheIgnoresCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ProgressFile), []byte("{not json"), 0644))

	pc := LoadProgress(dir)
	assert.Zero(t, pc.Estimate(runnerJobs(t), 1))
}

func TestAnalyzeMetafile(t *testing.T) {
	raw := `{
  "inputs": {"src/index.ts": {"bytes": 100}, "src/util.ts": {"bytes": 50}},
  "outputs": {
    "dist/index.js": {
      "bytes": 200,
      "inputs": {"src/index.ts": {"bytesInOutput": 150}, "src/util.ts": {"bytesInOutput": 50}},
      "imports": [{"path": "react", "kind": "import-statement", "external": true}]
    },
    "dist/index.js.map": {"bytes": 999, "inputs": {}, "imports": []}
  }
}`
	a, err := analyzeMetafile(raw, "/proj", 1)
	require.NoError(t, err)
	assert.Equal(t, 200, a.TotalBytes)
	require.Len(t, a.TopInputs, 1)
	assert.Equal(t, "src/index.ts", a.TopInputs[0].Path)
	assert.InDelta(t, 75.0, a.TopInputs[0].Percentage, 0.001)
	assert.Equal(t, []string{"react"}, a.ExternalImports)
}
