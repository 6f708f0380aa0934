package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/tspack/internal/report"
	"github.com/conneroisu/tspack/internal/services"
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Build every entry point of the package",
	Long: `Build every entry point named in package.json for every requested
module format. Outputs that differ between development and production are
built twice and joined by a shim that picks one from NODE_ENV.

The command exits with status 1 if any job fails.

Examples:
  tspack build                          # Build with package.json and .tspack.yml
  tspack build --format esm,cjs         # Only these formats
  tspack build --entry "src/cli/*.ts"   # Override the entry points
  tspack build --target node --minify   # Minified Node.js build
  tspack build --output json            # Machine readable summary
  tspack build --analyze                # Show the largest inputs`,
	RunE: runBuild,
}

var (
	buildOpts    buildFlags
	buildOutput  string
	buildAnalyze bool
)

func init() {
	rootCmd.AddCommand(buildCmd)

	addBuildFlags(buildCmd, &buildOpts)
	addOutputFlag(buildCmd, &buildOutput)
	buildCmd.Flags().BoolVar(&buildAnalyze, "analyze", false, "Show the largest inputs of each output")
}

func runBuild(cmd *cobra.Command, args []string) error {
	format, err := parseOutput(buildOutput)
	if err != nil {
		return err
	}
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	if err := buildOpts.apply(env.cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := services.NewBuildService(env.cfg, env.inv, env.logger).Build(ctx)
	if err != nil {
		return err
	}

	rep := report.NewReporter(format, cmd.OutOrStdout())
	summary := res.Summary()
	if err := rep.PrintBuild(summary); err != nil {
		return err
	}
	if buildAnalyze {
		rep.PrintAnalysis(summary)
	}
	for _, w := range res.Warnings {
		rep.Line("warning: %s", w)
	}

	if !res.Success {
		return &ExitError{Code: 1, Err: res.Err()}
	}
	return nil
}
