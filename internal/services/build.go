package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conneroisu/tspack/internal/buildcfg"
	"github.com/conneroisu/tspack/internal/bundler"
	"github.com/conneroisu/tspack/internal/config"
	"github.com/conneroisu/tspack/internal/entry"
	"github.com/conneroisu/tspack/internal/errors"
	"github.com/conneroisu/tspack/internal/invocation"
	"github.com/conneroisu/tspack/internal/logging"
	"github.com/conneroisu/tspack/internal/manifest"
	"github.com/conneroisu/tspack/internal/report"
	"github.com/conneroisu/tspack/internal/toolchain"
)

// BuildService handles the build pipeline for one project: manifest,
// entry points, jobs, bundling, shims and declarations.
type BuildService struct {
	config   *config.Config
	inv      *invocation.Context
	logger   logging.Logger
	bundler  bundler.Bundler
	resolver *entry.Resolver
	checker  *toolchain.TypeChecker
	metrics  *bundler.Metrics
	environ  func() []string
}

// NewBuildService creates a build service bound to an invocation context.
func NewBuildService(cfg *config.Config, inv *invocation.Context, logger logging.Logger) *BuildService {
	return &BuildService{
		config:   cfg,
		inv:      inv,
		logger:   logger.WithComponent("build"),
		bundler:  bundler.NewEsbuild(inv, cfg.Build.Tsconfig, logger),
		resolver: entry.NewResolver(nil),
		checker:  toolchain.NewTypeChecker(inv.ProjectRoot, cfg.Build.Tsconfig),
		metrics:  bundler.NewMetrics(),
		environ:  os.Environ,
	}
}

// WithBundler replaces the esbuild adapter.
func (s *BuildService) WithBundler(b bundler.Bundler) *BuildService {
	s.bundler = b
	return s
}

// WithEnviron replaces the process environment used for .env defines.
func (s *BuildService) WithEnviron(environ func() []string) *BuildService {
	s.environ = environ
	return s
}

// TypeChecker returns the declaration emitter.
func (s *BuildService) TypeChecker() *toolchain.TypeChecker {
	return s.checker
}

// Metrics returns the job totals of every Execute on this service.
func (s *BuildService) Metrics() *bundler.Metrics {
	return s.metrics
}

// Plan is a resolved job list. It stays valid until the manifest changes.
type Plan struct {
	Manifest *manifest.PackageManifest
	Entries  []entry.EntryPoint
	Jobs     []buildcfg.BuildJob
	// OutDir is the directory every output is written below, relative to
	// the project root. Empty when the outputs do not share one.
	OutDir string
}

// BuildResult contains the result of a build operation
type BuildResult struct {
	Plan         *Plan
	Results      []bundler.Result
	Shims        []string
	Declarations *toolchain.DeclarationResult
	// Errors holds every job error and warning plus failed sub-steps.
	Errors *errors.ErrorCollector
	// Warnings are degraded sub-steps, such as a missing tsc.
	Warnings  []string
	Duration  time.Duration
	Success   bool
	Cancelled bool
}

// Err joins the errors that failed the build, or nil.
func (r *BuildResult) Err() error {
	if r.Errors == nil {
		return nil
	}
	return r.Errors.Err()
}

// Summary converts the result for reporting.
func (r *BuildResult) Summary() *report.BuildSummary {
	s := report.Summarize(r.Results, r.Shims, r.Declarations, r.Duration)
	s.Success = r.Success
	return s
}

// Failed returns the results of failed jobs.
func (r *BuildResult) Failed() []bundler.Result {
	var failed []bundler.Result
	for _, res := range r.Results {
		if res.Failed() {
			failed = append(failed, res)
		}
	}
	return failed
}

// Build resolves and runs every job. Configuration and filesystem errors
// are returned as errors; job failures are reported in the result.
func (s *BuildService) Build(ctx context.Context) (*BuildResult, error) {
	start := time.Now()
	plan, err := s.Plan(ctx)
	if err != nil {
		return nil, err
	}
	res, err := s.Execute(ctx, plan, s.config.Build.Clean)
	if res != nil {
		res.Duration = time.Since(start)
	}
	return res, err
}

// Plan reads the manifest and expands it into jobs. Nothing is written.
func (s *BuildService) Plan(ctx context.Context) (*Plan, error) {
	m, err := manifest.Read(s.inv.ProjectRoot)
	if err != nil {
		return nil, err
	}

	overrides, err := s.overrides()
	if err != nil {
		return nil, err
	}
	entries, err := s.resolver.Resolve(ctx, m, overrides)
	if err != nil {
		return nil, err
	}

	opts, err := s.buildOptions()
	if err != nil {
		return nil, err
	}
	jobs, err := buildcfg.Expand(m, entries, opts)
	if err != nil {
		return nil, err
	}

	outDir := entry.OutputRoot(entries)
	s.logger.Debug(ctx, "Resolved build plan", "package", m.Name, "entries", len(entries), "jobs", len(jobs), "out_dir", outDir)
	return &Plan{Manifest: m, Entries: entries, Jobs: jobs, OutDir: outDir}, nil
}

func (s *BuildService) overrides() (entry.Overrides, error) {
	b := s.config.Build
	formats, err := entry.ParseFormats(b.Formats)
	if err != nil {
		return entry.Overrides{}, errors.NewConfigError(errors.ErrCodeConfigInvalid, "invalid --format", err)
	}
	return entry.Overrides{Entries: b.Entries, Formats: formats, OutDir: b.OutDir}, nil
}

func (s *BuildService) buildOptions() (buildcfg.BuildOptions, error) {
	b := s.config.Build
	define, err := config.EnvDefines(s.inv.ProjectRoot, b.EnvFile, b.EnvPrefix, s.environ())
	if err != nil {
		return buildcfg.BuildOptions{}, err
	}
	for k, v := range config.ParseDefines(b.Define) {
		define[k] = v
	}

	return buildcfg.BuildOptions{
		Target:            b.Target,
		Minify:            b.Minify,
		DisableProdMinify: b.DisableProdMinify,
		Sourcemap:         b.Sourcemap,
		Preset:            b.Presets,
		Plugins:           b.Plugins,
		Define:            define,
		Transform:         buildcfg.OverrideTransform(b.Output),
	}, nil
}

// Execute runs a plan's jobs. When clean is set the output directory is
// emptied first; failing to do so aborts before any job runs. If ctx is
// cancelled while jobs run, shims and declarations are skipped.
func (s *BuildService) Execute(ctx context.Context, plan *Plan, clean bool) (*BuildResult, error) {
	start := time.Now()
	b := s.config.Build

	if clean {
		if err := s.cleanOutDir(ctx, plan); err != nil {
			return nil, err
		}
	}

	runner := bundler.NewRunner(s.bundler, b.Concurrency, s.logger).WithMetrics(s.metrics)
	if b.CacheDir != "" {
		runner.WithProgress(bundler.LoadProgress(filepath.Join(s.inv.ProjectRoot, b.CacheDir)))
	}
	runner.AddCallback(func(res bundler.Result) {
		switch {
		case res.Cancelled:
			s.logger.Debug(ctx, "Job cancelled", "job", res.Job.ID())
		case res.Failed():
			s.logger.Debug(ctx, "Job failed", "job", res.Job.ID(), "errors", len(res.Errors))
		default:
			s.logger.Debug(ctx, "Job finished", "job", res.Job.ID(), "duration", res.Duration.String())
		}
	})

	result := &BuildResult{Plan: plan}
	result.Results = runner.Run(ctx, plan.Jobs)
	result.Errors = bundler.Collect(result.Results)
	for _, res := range result.Results {
		if res.Cancelled {
			result.Cancelled = true
		}
	}

	if ctx.Err() != nil {
		result.Cancelled = true
		result.Success = false
		result.Duration = time.Since(start)
		return result, nil
	}

	shims, err := bundler.WriteShims(s.inv.ProjectRoot, result.Results)
	if err != nil {
		return nil, err
	}
	result.Shims = shims

	if b.Declaration && primarySucceeded(result.Results) {
		s.emitDeclarations(ctx, result)
	}

	result.Success = !result.Errors.HasErrors()
	result.Duration = time.Since(start)
	return result, nil
}

func (s *BuildService) emitDeclarations(ctx context.Context, result *BuildResult) {
	if result.Plan.OutDir == "" {
		result.Warnings = append(result.Warnings, "outputs do not share a directory, declarations skipped")
		return
	}
	decl, err := s.checker.EmitDeclarations(ctx, result.Plan.OutDir)
	result.Declarations = decl
	switch {
	case err == nil:
	case errors.IsRecoverable(err):
		s.logger.Warn(ctx, err, "Skipping declarations")
		result.Warnings = append(result.Warnings, "tsc not found, declarations skipped")
	case s.config.Build.TranspileOnly:
		s.logger.Warn(ctx, err, "Type errors ignored in transpile-only mode")
		result.Warnings = append(result.Warnings, fmt.Sprintf("declarations: %s", err.Error()))
	default:
		s.logger.Error(ctx, err, "Declaration build failed")
		result.Errors.AddError(err)
		if decl == nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("declarations: %s", err.Error()))
		}
	}
}

func primarySucceeded(results []bundler.Result) bool {
	for _, res := range results {
		if res.Job.IsPrimary && !res.Failed() {
			return true
		}
	}
	return false
}

// cleanOutDir removes the plan's output directory. Outputs are always
// relative paths below the project root. A directory holding any entry
// source is left alone.
func (s *BuildService) cleanOutDir(ctx context.Context, plan *Plan) error {
	if plan.OutDir == "" {
		s.logger.Debug(ctx, "Outputs do not share a directory, nothing cleaned")
		return nil
	}
	dir := filepath.Join(s.inv.ProjectRoot, filepath.FromSlash(plan.OutDir))
	for _, e := range plan.Entries {
		if rel, err := filepath.Rel(dir, e.Source); err == nil && !strings.HasPrefix(rel, "..") {
			s.logger.Warn(ctx, nil, "Output directory contains sources, not cleaned", "dir", plan.OutDir, "source", e.Source)
			return nil
		}
	}
	if err := os.RemoveAll(dir); err != nil {
		return errors.FileOperationError("CLEAN", dir, "failed to clean output directory", err)
	}
	return nil
}
