package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conneroisu/tspack/internal/errors"
	"github.com/conneroisu/tspack/internal/report"
	"github.com/conneroisu/tspack/internal/services"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"w"},
	Short:   "Rebuild whenever a source file changes",
	Long: `Build once, then rebuild whenever a source file changes. A change
during a build cancels it and starts over. Entry points are resolved again
only when package.json changes.

Failed builds are reported and watching continues. Stop with Ctrl+C.

Examples:
  tspack watch                  # Watch with the configured settings
  tspack watch --format esm     # Only rebuild the ESM outputs`,
	RunE: runWatch,
}

var (
	watchOpts   buildFlags
	watchOutput string
)

func init() {
	rootCmd.AddCommand(watchCmd)

	addBuildFlags(watchCmd, &watchOpts)
	addOutputFlag(watchCmd, &watchOutput)
}

func runWatch(cmd *cobra.Command, args []string) error {
	format, err := parseOutput(watchOutput)
	if err != nil {
		return err
	}
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	if err := watchOpts.apply(env.cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	build := services.NewBuildService(env.cfg, env.inv, env.logger)
	svc := services.NewWatchService(build, env.cfg, env.logger)

	rep := report.NewReporter(format, cmd.OutOrStdout())
	svc.OnBuild(func(res *services.BuildResult, err error) {
		if err != nil {
			rep.Line("error: %s", errors.FormatError(err))
			return
		}
		_ = rep.PrintBuild(res.Summary())
		for _, w := range res.Warnings {
			rep.Line("warning: %s", w)
		}
	})

	rep.Line("watching %s, press Ctrl+C to stop", env.inv.ProjectRoot)
	if err := svc.Watch(ctx); err != nil {
		return err
	}
	return rep.PrintSession(build.Metrics().Snapshot())
}
