package cmd

import (
	"github.com/spf13/cobra"

	"github.com/conneroisu/tspack/internal/report"
	"github.com/conneroisu/tspack/internal/services"
)

var lintCmd = &cobra.Command{
	Use:   "lint [paths...]",
	Short: "Run eslint over the project",
	Long: `Run the project's eslint over the given paths, or lint.paths from the
configuration. The command fails on any error, or when the warnings exceed
--max-warnings.

Examples:
  tspack lint                     # Lint the configured paths
  tspack lint src test --fix      # Lint and fix two directories
  tspack lint --max-warnings 0    # Treat warnings as failures`,
	RunE: runLint,
}

var (
	lintFix         bool
	lintMaxWarnings int
	lintOutput      string
)

func init() {
	rootCmd.AddCommand(lintCmd)

	lintCmd.Flags().BoolVar(&lintFix, "fix", false, "Apply automatic fixes")
	lintCmd.Flags().IntVar(&lintMaxWarnings, "max-warnings", -1, "Number of warnings allowed before failing (-1 for unlimited)")
	addOutputFlag(lintCmd, &lintOutput)
}

func runLint(cmd *cobra.Command, args []string) error {
	format, err := parseOutput(lintOutput)
	if err != nil {
		return err
	}
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}

	req := services.LintRequest{Paths: args, Fix: lintFix}
	if cmd.Flags().Changed("max-warnings") {
		req.MaxWarnings = &lintMaxWarnings
	}

	out, err := services.NewLintService(env.cfg, env.inv, env.logger).Lint(commandContext(cmd), req)
	if err != nil {
		return err
	}

	rep := report.NewReporter(format, cmd.OutOrStdout())
	if err := rep.PrintLint(env.inv.ProjectRoot, out.Result); err != nil {
		return err
	}
	if !out.Passed {
		if out.Result.Errors == 0 {
			rep.Line("too many warnings (maximum: %d)", out.MaxWarnings)
		}
		return &ExitError{Code: 1}
	}
	return nil
}
