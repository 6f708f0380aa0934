package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/tspack/internal/errors"
	"github.com/conneroisu/tspack/internal/report"
	"github.com/conneroisu/tspack/internal/testutils"
	"github.com/conneroisu/tspack/internal/version"
)

// resetFlags restores every flag to its default so consecutive runs of the
// shared command tree do not leak state.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if s, ok := f.Value.(pflag.SliceValue); ok {
			_ = s.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// prepareCLI points the command tree at dir with fresh flags and
// configuration.
func prepareCLI(t *testing.T, dir string, args ...string) (stdout, stderr *bytes.Buffer) {
	t.Helper()
	t.Chdir(dir)
	viper.Reset()
	bindGlobalFlags()
	resetFlags(rootCmd)

	stdout, stderr = &bytes.Buffer{}, &bytes.Buffer{}
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	return stdout, stderr
}

func runCLI(t *testing.T, dir string, args ...string) (string, string, error) {
	t.Helper()
	stdout, stderr := prepareCLI(t, dir, args...)
	err := ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func fakeBin(t *testing.T, root, name, script string) {
	t.Helper()
	testutils.WriteFile(t, root, "node_modules/.bin/"+name, "#!/bin/sh\n"+script+"\n")
	require.NoError(t, os.Chmod(filepath.Join(root, "node_modules", ".bin", name), 0755))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"explicit code", &ExitError{Code: 3}, 3},
		{"wrapped code", errors.CombineErrors(&ExitError{Code: 2}), 2},
		{"plain error", stderrors.New("boom"), 1},
		{"validation error", errors.NewValidationError(errors.ErrCodeInvalidCommand, "bad"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestBuildCommand(t *testing.T) {
	root := testutils.CreateLibraryProject(t)

	stdout, _, err := runCLI(t, root, "build", "--no-declaration")
	require.NoError(t, err)

	assert.Contains(t, stdout, "dist/index.js")
	assert.Contains(t, stdout, "built 3 jobs")
	assert.Contains(t, stdout, "wrote dist/index.cjs")
	assert.FileExists(t, filepath.Join(root, "dist", "index.js"))
	assert.FileExists(t, filepath.Join(root, "dist", "index.cjs"))
}

func TestBuildCommandJSONOutput(t *testing.T) {
	root := testutils.CreateLibraryProject(t)

	stdout, _, err := runCLI(t, root, "build", "--no-declaration", "--format", "esm", "--output", "json")
	require.NoError(t, err)

	var summary report.BuildSummary
	require.NoError(t, json.Unmarshal([]byte(stdout), &summary))
	assert.True(t, summary.Success)
	require.Len(t, summary.Jobs, 1)
	assert.Equal(t, "esm", summary.Jobs[0].Format)
	assert.NoFileExists(t, filepath.Join(root, "dist", "index.cjs"))
}

func TestBuildCommandWithAnalysis(t *testing.T) {
	root := testutils.CreateLibraryProject(t)

	stdout, _, err := runCLI(t, root, "build", "--no-declaration", "--format", "esm", "--analyze")
	require.NoError(t, err)
	assert.Contains(t, stdout, "src/index.ts")
}

func TestBuildCommandUsesConfigFile(t *testing.T) {
	root := testutils.CreateLibraryProject(t)
	testutils.WriteFile(t, root, "custom.yml", "build:\n  out_dir: lib\n  declaration: false\n")

	_, _, err := runCLI(t, root, "build", "--config", "custom.yml", "--format", "esm")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "lib", "index.js"))
}

func TestBuildCommandFlagsOverrideEnvironment(t *testing.T) {
	root := testutils.CreateLibraryProject(t)
	t.Setenv("TSPACK_BUILD_OUT_DIR", "from-env")

	_, _, err := runCLI(t, root, "build", "--no-declaration", "--format", "esm")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "from-env", "index.js"))

	_, _, err = runCLI(t, root, "build", "--no-declaration", "--format", "esm", "--out-dir", "from-flag")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "from-flag", "index.js"))
}

func TestBuildCommandFailedJobExitsWithOne(t *testing.T) {
	root := testutils.CreateLibraryProject(t)
	testutils.WriteFile(t, root, "src/index.ts", "export const = ;\n")

	stdout, _, err := runCLI(t, root, "build", "--no-declaration")
	require.Error(t, err)
	assert.Equal(t, 1, ExitCode(err))
	assert.Contains(t, stdout, "jobs failed")
	var be *errors.BuildError
	assert.True(t, stderrors.As(err, &be))
}

func TestBuildCommandMissingManifest(t *testing.T) {
	_, stderr, err := runCLI(t, t.TempDir(), "build")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrManifestNotFound))
	assert.Equal(t, 1, ExitCode(err))
	assert.Contains(t, stderr, "Error:")
}

func TestBuildCommandRejectsInvalidFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown target", []string{"--target", "deno"}, "--target"},
		{"unknown format", []string{"--format", "amd"}, "--format"},
		{"escaping out dir", []string{"--out-dir", "../out"}, "--out-dir"},
		{"escaping entry", []string{"--entry", "../shared/*.ts"}, "--entry"},
		{"unknown output", []string{"--output", "xml"}, "--output"},
		{"unknown log level", []string{"--log-level", "loud"}, "log level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := testutils.CreateLibraryProject(t)

			_, stderr, err := runCLI(t, root, append([]string{"build"}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, 1, ExitCode(err))
			assert.Contains(t, stderr, tt.want)
			assert.NoDirExists(t, filepath.Join(root, "dist"))
		})
	}
}

func TestWatchCommandStopsOnCancel(t *testing.T) {
	root := testutils.CreateLibraryProject(t)
	stdout, _ := prepareCLI(t, root, "watch", "--no-declaration", "--format", "esm")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ExecuteContext(ctx) }()

	testutils.WaitForFile(t, filepath.Join(root, "dist", "index.js"), 10*time.Second)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("watch did not stop")
	}
	assert.Contains(t, stdout.String(), "watching")
	assert.Contains(t, stdout.String(), "session: ")
}

func TestCreateCommand(t *testing.T) {
	dir := t.TempDir()

	stdout, _, err := runCLI(t, dir, "create", "@acme/kit", "--template", "react")
	require.NoError(t, err)

	assert.Contains(t, stdout, "Created @acme/kit from the react template")
	assert.Contains(t, stdout, "cd kit")
	assert.Contains(t, stdout, "tspack build")
	assert.FileExists(t, filepath.Join(dir, "kit", "package.json"))
	assert.FileExists(t, filepath.Join(dir, "kit", "src", "index.tsx"))
}

func TestCreateCommandExistingDirectory(t *testing.T) {
	dir := t.TempDir()
	testutils.WriteFile(t, dir, "kit/keep.txt", "mine")

	_, stderr, err := runCLI(t, dir, "create", "kit")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrTargetExists))
	assert.Equal(t, 1, ExitCode(err))
	assert.Contains(t, stderr, "Error:")
}

func TestCreateCommandRequiresName(t *testing.T) {
	_, _, err := runCLI(t, t.TempDir(), "create")
	assert.Error(t, err)
}

const eslintWarning = `[{"filePath":"src/index.ts","messages":[{"ruleId":"prefer-const","severity":1,"message":"Use const.","line":2,"column":3}],"errorCount":0,"warningCount":1}]`

func TestLintCommand(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantOut  string
	}{
		{"warnings allowed by default", nil, 0, "0 errors, 1 warning"},
		{"warnings over the limit", []string{"--max-warnings", "0"}, 1, "too many warnings (maximum: 0)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := testutils.CreateLibraryProject(t)
			fakeBin(t, root, "eslint", "echo '"+eslintWarning+"'")

			stdout, _, err := runCLI(t, root, append([]string{"lint"}, tt.args...)...)
			assert.Equal(t, tt.wantCode, ExitCode(err))
			assert.Contains(t, stdout, tt.wantOut)
		})
	}
}

func TestTestCommandPassesArgumentsAndExitCode(t *testing.T) {
	root := testutils.CreateLibraryProject(t)
	fakeBin(t, root, "vitest", `echo "vitest $@"
exit 3`)

	stdout, _, err := runCLI(t, root, "test", "--coverage")
	require.Error(t, err)
	assert.Equal(t, 3, ExitCode(err))
	assert.Equal(t, "vitest run --coverage\n", stdout)
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := runCLI(t, t.TempDir(), "version", "--output", "json")
	require.NoError(t, err)

	var info version.Info
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GoVersion)

	stdout, _, err = runCLI(t, t.TempDir(), "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, version.Get().Short()+"\n", stdout)
}
