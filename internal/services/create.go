package services

import (
	"context"
	stderrors "errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/conneroisu/tspack/internal/errors"
	"github.com/conneroisu/tspack/internal/invocation"
	"github.com/conneroisu/tspack/internal/logging"
	"github.com/conneroisu/tspack/internal/scaffolding"
	"github.com/conneroisu/tspack/internal/toolchain"
)

// CreateService handles project scaffolding.
type CreateService struct {
	inv       *invocation.Context
	logger    logging.Logger
	generator *scaffolding.Generator
}

// NewCreateService creates a new create service
func NewCreateService(inv *invocation.Context, logger logging.Logger) *CreateService {
	return &CreateService{
		inv:       inv,
		logger:    logger.WithComponent("create"),
		generator: scaffolding.NewGenerator(),
	}
}

// CreateOptions contains options for project creation
type CreateOptions struct {
	Name     string
	Template string
	Author   string
	// Install runs the detected package manager in the new project.
	Install bool
	Stdout  io.Writer
	Stderr  io.Writer
}

// CreateResult describes the generated project.
type CreateResult struct {
	Dir            string
	Template       scaffolding.Template
	PackageManager invocation.PackageManager
	Installed      bool
	// NextSteps are shell commands for the user, relative to the current
	// directory.
	NextSteps []string
}

// Create generates a project below the invocation root. The target
// directory must not exist.
func (s *CreateService) Create(ctx context.Context, opts CreateOptions) (*CreateResult, error) {
	tmpl, err := scaffolding.ParseTemplate(opts.Template)
	if err != nil {
		return nil, err
	}

	dir, err := s.generator.Generate(scaffolding.GenerateOptions{
		Name:     opts.Name,
		Template: tmpl,
		Dir:      s.inv.ProjectRoot,
		Author:   opts.Author,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "Project created", "dir", dir, "template", tmpl.String())

	pm := s.inv.PackageManager()
	install := pm.InstallArgs()
	res := &CreateResult{Dir: dir, Template: tmpl, PackageManager: pm}

	rel, err := filepath.Rel(s.inv.ProjectRoot, dir)
	if err != nil {
		rel = dir
	}
	res.NextSteps = append(res.NextSteps, "cd "+rel)

	if opts.Install {
		code, err := toolchain.NewTool(dir, install[0]).Passthrough(ctx, opts.Stdout, opts.Stderr, install[1:]...)
		switch {
		case stderrors.Is(err, errors.ErrToolMissing):
			s.logger.Warn(ctx, err, "Skipping dependency install")
		case err != nil:
			return res, err
		case code != 0:
			return res, errors.NewToolError(install[0], errors.ErrCodeToolFailed,
				strings.Join(install, " ")+" failed", nil).WithContext("exit_code", code)
		default:
			res.Installed = true
		}
	}
	if !res.Installed {
		res.NextSteps = append(res.NextSteps, strings.Join(install, " "))
	}
	res.NextSteps = append(res.NextSteps, "tspack build")
	return res, nil
}
