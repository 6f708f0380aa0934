package toolchain

import (
	"context"
	"io"
	"strings"

	"github.com/conneroisu/tspack/internal/errors"
)

// DefaultTestCommand runs vitest once, without watching.
const DefaultTestCommand = "vitest run"

// TestRunner hands the command line to the project's test runner.
type TestRunner struct {
	tool *Tool
	args []string
}

// NewTestRunner parses command ("vitest run", "jest") into the tool and its
// leading arguments.
func NewTestRunner(root, command string) (*TestRunner, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		fields = strings.Fields(DefaultTestCommand)
	}
	if !allowedTools[fields[0]] {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidCommand,
			"unsupported test runner: "+fields[0])
	}
	return &TestRunner{tool: NewTool(root, fields[0]), args: fields[1:]}, nil
}

// Tool returns the underlying tool.
func (r *TestRunner) Tool() *Tool {
	return r.tool
}

// Run executes the runner with extra arguments appended and returns its
// exit code.
func (r *TestRunner) Run(ctx context.Context, stdout, stderr io.Writer, extra ...string) (int, error) {
	args := append(append([]string(nil), r.args...), extra...)
	return r.tool.Passthrough(ctx, stdout, stderr, args...)
}
