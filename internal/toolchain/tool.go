// Package toolchain runs the external Node.js tools tspack delegates to:
// tsc for declarations, eslint for linting, the project's test runner and
// the package manager that installs a new project's dependencies.
//
// Tools are looked up in the project's node_modules/.bin first and then on
// PATH. A missing tool is reported as a recoverable error wrapping
// errors.ErrToolMissing so callers can skip the step with a warning.
package toolchain

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/conneroisu/tspack/internal/errors"
	"github.com/conneroisu/tspack/internal/validation"
)

// allowedTools is the set of executables tspack may spawn.
var allowedTools = map[string]bool{
	"tsc":    true,
	"eslint": true,
	"vitest": true,
	"jest":   true,
	"mocha":  true,
	"node":   true,
	"npm":    true,
	"yarn":   true,
	"pnpm":   true,
	"bun":    true,
}

// Tool is an executable resolved for one project.
type Tool struct {
	Name string
	Root string

	// LookPath finds executables on PATH. Defaults to exec.LookPath.
	LookPath func(string) (string, error)
}

// NewTool creates a tool rooted at the project directory.
func NewTool(root, name string) *Tool {
	return &Tool{Name: name, Root: root, LookPath: exec.LookPath}
}

// Invocation is the captured outcome of one tool run.
type Invocation struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Output returns stdout followed by stderr.
func (i *Invocation) Output() string {
	return string(i.Stdout) + string(i.Stderr)
}

// Locate returns the path of the executable.
func (t *Tool) Locate() (string, error) {
	if err := validation.ValidateCommand(t.Name, allowedTools); err != nil {
		return "", errors.NewToolError(t.Name, errors.ErrCodeInvalidCommand, "tool not allowed", err)
	}

	local := filepath.Join(t.Root, "node_modules", ".bin", t.Name)
	if info, err := os.Stat(local); err == nil && !info.IsDir() {
		return local, nil
	}

	lookPath := t.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if p, err := lookPath(t.Name); err == nil {
		return p, nil
	}
	return "", errors.NewToolError(t.Name, errors.ErrCodeToolMissing,
		fmt.Sprintf("%s not found in node_modules/.bin or PATH", t.Name), errors.ErrToolMissing)
}

// Run executes the tool in the project root and captures its output. A
// non-zero exit is not an error: it is reported in ExitCode. Errors are
// returned for invalid arguments, a missing tool or a cancelled context.
func (t *Tool) Run(ctx context.Context, args ...string) (*Invocation, error) {
	for _, arg := range args {
		if err := validation.ValidateArgument(arg); err != nil {
			return nil, errors.NewToolError(t.Name, errors.ErrCodeInvalidCommand,
				fmt.Sprintf("invalid argument '%s'", arg), err)
		}
	}

	path, err := t.Locate()
	if err != nil {
		return nil, err
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = t.Root
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	inv := &Invocation{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}

	if ctx.Err() != nil {
		return inv, errors.NewToolError(t.Name, errors.ErrCodeToolFailed, "interrupted", ctx.Err())
	}
	var exitErr *exec.ExitError
	if stderrors.As(runErr, &exitErr) {
		inv.ExitCode = exitErr.ExitCode()
		return inv, nil
	}
	if runErr != nil {
		return inv, errors.NewToolError(t.Name, errors.ErrCodeToolFailed, "could not start", runErr)
	}
	return inv, nil
}

// Passthrough runs the tool attached to the terminal streams and returns
// its exit code.
func (t *Tool) Passthrough(ctx context.Context, stdout, stderr io.Writer, args ...string) (int, error) {
	for _, arg := range args {
		if err := validation.ValidateArgument(arg); err != nil {
			return 1, errors.NewToolError(t.Name, errors.ErrCodeInvalidCommand,
				fmt.Sprintf("invalid argument '%s'", arg), err)
		}
	}
	path, err := t.Locate()
	if err != nil {
		return 1, err
	}

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = t.Root
	cmd.Stdin = os.Stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err = cmd.Run()
	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return 1, errors.NewToolError(t.Name, errors.ErrCodeToolFailed, "could not start", err)
	}
	return 0, nil
}
