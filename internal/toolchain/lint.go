package toolchain

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/conneroisu/tspack/internal/errors"
)

// LintOptions configures one eslint run.
type LintOptions struct {
	Paths       []string
	Fix         bool
	MaxWarnings int // negative disables the threshold
}

// LintMessage is one eslint diagnostic.
type LintMessage struct {
	RuleID   string `json:"ruleId"`
	Severity int    `json:"severity"`
	Message  string `json:"message"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
}

// LintFile is eslint's per-file JSON result.
type LintFile struct {
	FilePath     string        `json:"filePath"`
	Messages     []LintMessage `json:"messages"`
	ErrorCount   int           `json:"errorCount"`
	WarningCount int           `json:"warningCount"`
}

// LintResult aggregates an eslint run.
type LintResult struct {
	Files    []LintFile
	Errors   int
	Warnings int
	ExitCode int
}

// Passed reports whether the run is within the error and warning limits.
func (r *LintResult) Passed(maxWarnings int) bool {
	if r.Errors > 0 {
		return false
	}
	return maxWarnings < 0 || r.Warnings <= maxWarnings
}

// Linter runs eslint.
type Linter struct {
	tool *Tool
}

// NewLinter creates a linter for the project.
func NewLinter(root string) *Linter {
	return &Linter{tool: NewTool(root, "eslint")}
}

// Tool returns the underlying tool.
func (l *Linter) Tool() *Tool {
	return l.tool
}

// Lint runs eslint with JSON output and counts its diagnostics.
func (l *Linter) Lint(ctx context.Context, opts LintOptions) (*LintResult, error) {
	args := []string{"--format", "json"}
	if opts.Fix {
		args = append(args, "--fix")
	}
	if opts.MaxWarnings >= 0 {
		args = append(args, "--max-warnings", strconv.Itoa(opts.MaxWarnings))
	}
	paths := opts.Paths
	if len(paths) == 0 {
		paths = []string{"src"}
	}
	args = append(args, paths...)

	inv, err := l.tool.Run(ctx, args...)
	if err != nil {
		return nil, err
	}

	res := &LintResult{ExitCode: inv.ExitCode}
	if err := json.Unmarshal(inv.Stdout, &res.Files); err != nil {
		// eslint exits 2 with plain text on configuration problems.
		return res, errors.NewToolError("eslint", errors.ErrCodeToolFailed,
			fmt.Sprintf("unreadable eslint output (exit %d): %s", inv.ExitCode, firstLine(inv.Output())), err)
	}
	for _, f := range res.Files {
		res.Errors += f.ErrorCount
		res.Warnings += f.WarningCount
	}
	return res, nil
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i]
		}
	}
	return s
}
