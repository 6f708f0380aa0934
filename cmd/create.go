package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/conneroisu/tspack/internal/errors"
	"github.com/conneroisu/tspack/internal/invocation"
	"github.com/conneroisu/tspack/internal/services"
)

var createCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Scaffold a new TypeScript library",
	Long: `Create a new library project in a directory named after the package.
Scoped names drop the scope, so @acme/widgets is created in ./widgets.

The directory must not exist.

Templates:
  basic   A plain TypeScript library (default)
  react   A React component library

Examples:
  tspack create my-lib
  tspack create @acme/widgets --template react --install`,
	Args: cobra.ExactArgs(1),
	RunE: runCreate,
}

var (
	createTemplate string
	createAuthor   string
	createInstall  bool
)

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().StringVarP(&createTemplate, "template", "t", "basic", "Project template (basic, react)")
	createCmd.Flags().StringVar(&createAuthor, "author", "", "Author written to package.json")
	createCmd.Flags().BoolVar(&createInstall, "install", false, "Install dependencies with the detected package manager")
}

func runCreate(cmd *cobra.Command, args []string) error {
	root, err := os.Getwd()
	if err != nil {
		return errors.NewIOError(errors.ErrCodeInvalidPath, "cannot determine the working directory", err)
	}
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}

	svc := services.NewCreateService(invocation.New(root), logger)
	res, err := svc.Create(commandContext(cmd), services.CreateOptions{
		Name:     args[0],
		Template: createTemplate,
		Author:   createAuthor,
		Install:  createInstall,
		Stdout:   cmd.OutOrStdout(),
		Stderr:   cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created %s from the %s template in %s\n", args[0], res.Template, res.Dir)
	fmt.Fprintln(out, "\nNext steps:")
	for _, step := range res.NextSteps {
		fmt.Fprintf(out, "  %s\n", step)
	}
	return nil
}
