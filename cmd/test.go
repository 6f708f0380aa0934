package cmd

import (
	"github.com/spf13/cobra"

	"github.com/conneroisu/tspack/internal/services"
)

var testCmd = &cobra.Command{
	Use:   "test [runner arguments...]",
	Short: "Run the project's test runner",
	Long: `Run test.runner from the configuration (vitest run by default) in the
project root. Every argument is passed to the runner unchanged and the
command exits with the runner's status.

Examples:
  tspack test
  tspack test --coverage
  tspack test src/math.test.ts`,
	DisableFlagParsing: true,
	RunE:               runTest,
}

func init() {
	rootCmd.AddCommand(testCmd)
}

func runTest(cmd *cobra.Command, args []string) error {
	if len(args) == 1 && (args[0] == "--help" || args[0] == "-h") {
		return cmd.Help()
	}

	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	svc, err := services.NewTestService(env.cfg, env.inv, env.logger)
	if err != nil {
		return err
	}

	code, err := svc.Run(commandContext(cmd), cmd.OutOrStdout(), cmd.ErrOrStderr(), args...)
	if err != nil {
		return err
	}
	if code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}
