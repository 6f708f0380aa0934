package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/tspack/internal/buildcfg"
	"github.com/conneroisu/tspack/internal/config"
	"github.com/conneroisu/tspack/internal/entry"
	"github.com/conneroisu/tspack/internal/errors"
	"github.com/conneroisu/tspack/internal/report"
	"github.com/conneroisu/tspack/internal/validation"
)

// buildFlags are the build settings shared by build and watch. Zero values
// leave the configuration untouched.
type buildFlags struct {
	Entries       []string
	Formats       []string
	Target        string
	Tsconfig      string
	OutDir        string
	Minify        bool
	NoClean       bool
	NoSourcemap   bool
	NoDeclaration bool
	TranspileOnly bool
}

func addBuildFlags(cmd *cobra.Command, flags *buildFlags) {
	cmd.Flags().StringSliceVarP(&flags.Entries, "entry", "e", nil, "Entry point glob, repeatable (replaces package.json entries)")
	cmd.Flags().StringSliceVarP(&flags.Formats, "format", "f", nil, "Module formats to build (esm, cjs, umd, system)")
	cmd.Flags().StringVarP(&flags.Target, "target", "t", "", "Build target (browser, node)")
	cmd.Flags().StringVar(&flags.Tsconfig, "tsconfig", "", "Path to tsconfig.json")
	cmd.Flags().StringVarP(&flags.OutDir, "out-dir", "d", "", "Output directory")
	cmd.Flags().BoolVar(&flags.Minify, "minify", false, "Minify every output, not only production builds")
	cmd.Flags().BoolVar(&flags.NoClean, "no-clean", false, "Keep the output directory contents")
	cmd.Flags().BoolVar(&flags.NoSourcemap, "no-sourcemap", false, "Do not write source maps")
	cmd.Flags().BoolVar(&flags.NoDeclaration, "no-declaration", false, "Do not emit .d.ts files")
	cmd.Flags().BoolVar(&flags.TranspileOnly, "transpile-only", false, "Report type errors without failing the build")
}

func addOutputFlag(cmd *cobra.Command, output *string) {
	cmd.Flags().StringVarP(output, "output", "o", "table", "Output format (table|json|yaml)")
}

// apply copies the flags that were given onto cfg.
func (f *buildFlags) apply(cfg *config.Config) error {
	b := &cfg.Build

	if len(f.Entries) > 0 {
		for _, e := range f.Entries {
			if err := validation.ValidateGlob(e); err != nil {
				return flagError("--entry", err)
			}
		}
		b.Entries = f.Entries
	}
	if len(f.Formats) > 0 {
		if _, err := entry.ParseFormats(f.Formats); err != nil {
			return flagError("--format", err)
		}
		b.Formats = f.Formats
	}
	if f.Target != "" {
		if f.Target != buildcfg.TargetBrowser && f.Target != buildcfg.TargetNode {
			return flagError("--target", fmt.Errorf("must be %q or %q, got %q", buildcfg.TargetBrowser, buildcfg.TargetNode, f.Target))
		}
		b.Target = f.Target
	}
	if f.Tsconfig != "" {
		if err := validation.ValidateRelativePath(f.Tsconfig); err != nil {
			return flagError("--tsconfig", err)
		}
		b.Tsconfig = f.Tsconfig
	}
	if f.OutDir != "" {
		if err := validation.ValidateRelativePath(f.OutDir); err != nil {
			return flagError("--out-dir", err)
		}
		b.OutDir = f.OutDir
	}

	if f.Minify {
		b.Minify = true
	}
	if f.NoClean {
		b.Clean = false
	}
	if f.NoSourcemap {
		b.Sourcemap = false
	}
	if f.NoDeclaration {
		b.Declaration = false
	}
	if f.TranspileOnly {
		b.TranspileOnly = true
	}
	return nil
}

func parseOutput(output string) (report.Format, error) {
	format, err := report.ParseFormat(output)
	if err != nil {
		return "", flagError("--output", err)
	}
	return format, nil
}

func flagError(flag string, err error) error {
	return errors.NewValidationError(errors.ErrCodeInvalidCommand, flag+": "+err.Error())
}
