package services

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/conneroisu/tspack/internal/config"
	"github.com/conneroisu/tspack/internal/errors"
	"github.com/conneroisu/tspack/internal/invocation"
	"github.com/conneroisu/tspack/internal/logging"
	"github.com/conneroisu/tspack/internal/toolchain"
)

// LintService runs eslint over the project.
type LintService struct {
	config *config.Config
	inv    *invocation.Context
	logger logging.Logger
	linter *toolchain.Linter
}

// NewLintService creates a new lint service
func NewLintService(cfg *config.Config, inv *invocation.Context, logger logging.Logger) *LintService {
	return &LintService{
		config: cfg,
		inv:    inv,
		logger: logger.WithComponent("lint"),
		linter: toolchain.NewLinter(inv.ProjectRoot),
	}
}

// Linter returns the eslint wrapper.
func (s *LintService) Linter() *toolchain.Linter {
	return s.linter
}

// LintRequest overrides the lint configuration for one run.
type LintRequest struct {
	// Paths replace lint.paths when not empty. Absolute paths must be
	// inside the project.
	Paths []string
	Fix   bool
	// MaxWarnings replaces lint.max_warnings when not nil.
	MaxWarnings *int
}

// LintOutcome is a finished lint run.
type LintOutcome struct {
	Result      *toolchain.LintResult
	MaxWarnings int
	Passed      bool
}

// Lint runs eslint and decides pass or fail from the error count and the
// warning threshold.
func (s *LintService) Lint(ctx context.Context, req LintRequest) (*LintOutcome, error) {
	paths := req.Paths
	if len(paths) == 0 {
		paths = s.config.Lint.Paths
	}
	rel := make([]string, 0, len(paths))
	for _, p := range paths {
		r, err := s.relative(p)
		if err != nil {
			return nil, err
		}
		rel = append(rel, r)
	}

	maxWarnings := s.config.Lint.MaxWarnings
	if req.MaxWarnings != nil {
		maxWarnings = *req.MaxWarnings
	}

	res, err := s.linter.Lint(ctx, toolchain.LintOptions{Paths: rel, Fix: req.Fix, MaxWarnings: maxWarnings})
	if err != nil {
		return nil, err
	}
	out := &LintOutcome{Result: res, MaxWarnings: maxWarnings, Passed: res.Passed(maxWarnings)}
	s.logger.Debug(ctx, "Lint finished", "errors", res.Errors, "warnings", res.Warnings, "passed", out.Passed)
	return out, nil
}

func (s *LintService) relative(p string) (string, error) {
	if !filepath.IsAbs(p) {
		return filepath.ToSlash(filepath.Clean(p)), nil
	}
	r, err := filepath.Rel(s.inv.ProjectRoot, p)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", errors.NewValidationError(errors.ErrCodeInvalidPath, "lint path outside the project: "+p)
	}
	return filepath.ToSlash(r), nil
}

// TestService hands control to the configured test runner.
type TestService struct {
	runner *toolchain.TestRunner
	logger logging.Logger
}

// NewTestService creates a test service from test.runner.
func NewTestService(cfg *config.Config, inv *invocation.Context, logger logging.Logger) (*TestService, error) {
	runner, err := toolchain.NewTestRunner(inv.ProjectRoot, cfg.Test.Runner)
	if err != nil {
		return nil, err
	}
	return &TestService{runner: runner, logger: logger.WithComponent("test")}, nil
}

// Runner returns the underlying test runner.
func (s *TestService) Runner() *toolchain.TestRunner {
	return s.runner
}

// Run passes args through to the runner and returns its exit code.
func (s *TestService) Run(ctx context.Context, stdout, stderr io.Writer, args ...string) (int, error) {
	s.logger.Debug(ctx, "Running tests", "runner", s.runner.Tool().Name, "args", args)
	return s.runner.Run(ctx, stdout, stderr, args...)
}
