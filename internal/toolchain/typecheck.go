package toolchain

import (
	"context"
	"fmt"

	"github.com/conneroisu/tspack/internal/errors"
)

// TypeChecker emits declaration files with tsc.
type TypeChecker struct {
	tool     *Tool
	tsconfig string
	parser   *errors.ErrorParser
}

// DeclarationResult is the outcome of a declaration build.
type DeclarationResult struct {
	Diagnostics []*errors.ParsedError
	Output      string
	ExitCode    int
}

// Errors returns the number of error diagnostics.
func (r *DeclarationResult) Errors() int {
	n, _ := errors.CountBySeverity(r.Diagnostics)
	return n
}

// NewTypeChecker creates a type checker for the project. tsconfig is
// relative to root; empty means tsconfig.json.
func NewTypeChecker(root, tsconfig string) *TypeChecker {
	if tsconfig == "" {
		tsconfig = "tsconfig.json"
	}
	return &TypeChecker{
		tool:     NewTool(root, "tsc"),
		tsconfig: tsconfig,
		parser:   errors.NewErrorParser(),
	}
}

// Tool returns the underlying tool, for tests and PATH overrides.
func (tc *TypeChecker) Tool() *Tool {
	return tc.tool
}

// EmitDeclarations runs tsc --emitDeclarationOnly into outDir. A non-zero
// exit returns the diagnostics together with an ERR_TOOL_FAILED error.
func (tc *TypeChecker) EmitDeclarations(ctx context.Context, outDir string) (*DeclarationResult, error) {
	inv, err := tc.tool.Run(ctx,
		"--emitDeclarationOnly",
		"--declaration",
		"--outDir", outDir,
		"-p", tc.tsconfig,
	)
	if err != nil {
		return nil, err
	}

	res := &DeclarationResult{
		Diagnostics: tc.parser.ParseError(inv.Output()),
		Output:      inv.Output(),
		ExitCode:    inv.ExitCode,
	}
	if inv.ExitCode != 0 {
		return res, errors.NewToolError("tsc", errors.ErrCodeToolFailed,
			fmt.Sprintf("declaration build failed with %d error(s)", res.Errors()), nil)
	}
	return res, nil
}
