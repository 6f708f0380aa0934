package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/tspack/internal/report"
	"github.com/conneroisu/tspack/internal/version"
)

var (
	versionOutput string
	versionShort  bool
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display version information for tspack including:

- Semantic version number
- Git commit hash
- Build timestamp
- The embedded esbuild version
- Go version and target platform

Examples:
  tspack version                # Show version details
  tspack version --short        # Show the version only
  tspack version --output json  # Output as JSON`,
	RunE: runVersionCommand,
}

func init() {
	rootCmd.AddCommand(versionCmd)

	addOutputFlag(versionCmd, &versionOutput)
	versionCmd.Flags().BoolVar(&versionShort, "short", false, "Show short version only")
}

func runVersionCommand(cmd *cobra.Command, args []string) error {
	format, err := parseOutput(versionOutput)
	if err != nil {
		return err
	}
	info := version.Get()
	out := cmd.OutOrStdout()

	rep := report.NewReporter(format, out)
	if rep.Structured() {
		return rep.Print(info)
	}
	if versionShort {
		fmt.Fprintln(out, info.Short())
		return nil
	}

	fmt.Fprintf(out, "tspack %s\n", info.Short())
	if !info.BuildTime.IsZero() {
		fmt.Fprintf(out, "Built: %s\n", info.BuildTime.UTC().Format("2006-01-02 15:04:05 UTC"))
	}
	fmt.Fprintf(out, "esbuild: %s\n", info.Esbuild)
	fmt.Fprintf(out, "Go: %s\n", info.GoVersion)
	fmt.Fprintf(out, "Platform: %s\n", info.Platform)
	return nil
}
