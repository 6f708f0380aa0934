// Package cmd provides the command-line interface for tspack with
// configuration management supporting multiple configuration sources.
//
// Configuration System:
//
//	Settings are resolved with clear precedence:
//	1. Command-line flags (--out-dir, --format, etc.) - highest priority
//	2. Individual environment variables (TSPACK_BUILD_OUT_DIR, etc.)
//	3. The file named by --config or TSPACK_CONFIG_FILE
//	4. .tspack.yml in the working directory - lowest priority
//
// Environment Variables:
//
//	TSPACK_CONFIG_FILE: Path to custom configuration file
//	TSPACK_LOG_LEVEL: Log level (debug, info, warn, error)
//	TSPACK_BUILD_OUT_DIR: Override the output directory
//	And more following the TSPACK_<SECTION>_<OPTION> pattern
package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/tspack/internal/config"
	"github.com/conneroisu/tspack/internal/errors"
	"github.com/conneroisu/tspack/internal/invocation"
	"github.com/conneroisu/tspack/internal/logging"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tspack",
	Short: "Build TypeScript libraries for every module format",
	Long: `tspack turns a TypeScript package into ready-to-publish bundles.

It reads package.json, finds the entry points named by exports (or by
module and main when exports names none, or src/index.ts by convention),
writes them below --out-dir when one is given, and builds each one
for every requested module format with esbuild. CommonJS outputs get
separate development and production builds behind a small shim.

Quick Start:
  tspack create my-lib            Scaffold a new library
  tspack build                    Build every entry point
  tspack watch                    Rebuild on change
  tspack lint                     Run eslint
  tspack test                     Run the test runner

Command Aliases:
  build (b), watch (w)`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ExitError carries a process exit code without a message. Commands
// return it after they have already reported the failure. Err, when set,
// is the failure that was reported.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("exit status %d: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exit *ExitError
	if stderrors.As(err, &exit) {
		return exit.Code
	}
	return 1
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with ctx. Errors other than
// ExitError are printed to stderr.
func ExecuteContext(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	var exit *ExitError
	if err != nil && !stderrors.As(err, &exit) {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", errors.FormatError(err))
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .tspack.yml, can also use TSPACK_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	bindGlobalFlags()
}

// bindGlobalFlags exposes the logging flags as log_level and log_format so
// they can also come from TSPACK_LOG_LEVEL or the config file.
func bindGlobalFlags() {
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// environment is everything a command needs to act on the project in the
// working directory.
type environment struct {
	cfg    *config.Config
	inv    *invocation.Context
	logger logging.Logger
}

// loadEnvironment reads the configuration and creates the logger and the
// invocation context.
//
// Configuration Loading Priority (highest to lowest):
//  1. --config flag: Explicitly specified config file path
//  2. TSPACK_CONFIG_FILE environment variable: Custom config file path
//  3. Default: .tspack.yml in current directory
func loadEnvironment(cmd *cobra.Command) (*environment, error) {
	root, err := os.Getwd()
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeInvalidPath, "cannot determine the working directory", err)
	}

	v := viper.GetViper()
	if err := config.Init(v, cfgFile); err != nil {
		return nil, err
	}
	logger, err := newLogger(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadFrom(v)
	if err != nil {
		return nil, err
	}
	if cfg.File != "" {
		logger.Debug(commandContext(cmd), "Using config file", "path", cfg.File)
	}

	return &environment{cfg: cfg, inv: invocation.New(root), logger: logger}, nil
}

func newLogger(cmd *cobra.Command) (logging.Logger, error) {
	level, err := logging.ParseLevel(viper.GetString("log_level"))
	if err != nil {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidCommand, err.Error())
	}
	format := viper.GetString("log_format")
	switch format {
	case "", "text", "json":
	default:
		return nil, errors.NewValidationError(errors.ErrCodeInvalidCommand,
			fmt.Sprintf("unknown log format %q (valid: text, json)", format))
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    format,
		Output:    cmd.ErrOrStderr(),
		Component: "tspack",
	}), nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
