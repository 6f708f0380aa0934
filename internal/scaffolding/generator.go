// Package scaffolding generates new library projects for `tspack create`.
package scaffolding

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/conneroisu/tspack/internal/errors"
	"github.com/conneroisu/tspack/internal/manifest"
	"github.com/conneroisu/tspack/internal/validation"
)

// GenerateOptions holds options for project generation
type GenerateOptions struct {
	Name     string
	Template Template
	Dir      string // parent directory; the project is created in Dir/<safe name>
	Author   string
}

// Generator writes project templates to disk.
type Generator struct {
	now func() time.Time
}

// NewGenerator creates a generator.
func NewGenerator() *Generator {
	return &Generator{now: time.Now}
}

var packageNamePattern = regexp.MustCompile(`^(@[a-z0-9-~][a-z0-9-._~]*/)?[a-z0-9-~][a-z0-9-._~]*$`)

// ValidatePackageName checks a name against npm's naming rules.
func ValidatePackageName(name string) error {
	switch {
	case name == "":
		return errors.NewValidationError(errors.ErrCodeManifestInvalid, "package name cannot be empty")
	case len(name) > 214:
		return errors.NewValidationError(errors.ErrCodeManifestInvalid, "package name cannot be longer than 214 characters")
	case strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_"):
		return errors.NewValidationError(errors.ErrCodeManifestInvalid, "package name cannot start with a period or underscore")
	case !packageNamePattern.MatchString(name):
		return errors.NewValidationError(errors.ErrCodeManifestInvalid,
			fmt.Sprintf("invalid package name %q: use lowercase letters, digits, '-', '.', '_' and an optional @scope/", name))
	}
	return nil
}

// Generate creates the project and returns its directory. An existing
// target is never touched. If writing fails part way, the partial project
// is removed.
func (g *Generator) Generate(opts GenerateOptions) (string, error) {
	if err := ValidatePackageName(opts.Name); err != nil {
		return "", err
	}

	m := &manifest.PackageManifest{Name: opts.Name}
	ctx := TemplateContext{
		Name:       opts.Name,
		SafeName:   m.SafeName(),
		GlobalName: m.GlobalName(),
		Year:       g.now().Year(),
		Author:     strings.TrimSpace(validation.SanitizeInput(opts.Author)),
	}
	if ctx.SafeName == "" {
		return "", errors.NewValidationError(errors.ErrCodeManifestInvalid,
			fmt.Sprintf("package name %q has no usable directory name", opts.Name))
	}

	target := filepath.Join(opts.Dir, ctx.SafeName)
	if _, err := os.Stat(target); err == nil {
		return "", errors.NewIOError(errors.ErrCodeTargetExists,
			fmt.Sprintf("%s already exists", target), errors.ErrTargetExists)
	} else if !os.IsNotExist(err) {
		return "", errors.FileOperationError("STAT", target, "cannot inspect target", err)
	}

	if err := os.MkdirAll(target, 0755); err != nil {
		return "", errors.FileOperationError("MKDIR", target, "cannot create project directory", err)
	}
	if err := g.write(target, opts.Template, ctx); err != nil {
		_ = os.RemoveAll(target)
		return "", err
	}
	return target, nil
}

func (g *Generator) write(target string, t Template, ctx TemplateContext) error {
	pkg, err := packageJSON(t, ctx)
	if err != nil {
		return errors.NewInternalError(errors.ErrCodeWriteFailed, "cannot render package.json", err)
	}
	if err := writeFile(filepath.Join(target, "package.json"), pkg); err != nil {
		return err
	}

	for _, f := range t.files() {
		content, err := render(f, ctx)
		if err != nil {
			return errors.NewInternalError(errors.ErrCodeWriteFailed, "cannot render "+f.Path, err)
		}
		if err := writeFile(filepath.Join(target, filepath.FromSlash(f.Path)), content); err != nil {
			return err
		}
	}
	return nil
}

func render(f File, ctx TemplateContext) ([]byte, error) {
	tmpl, err := template.New(f.Path).Parse(f.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return nil, fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.Bytes(), nil
}

func writeFile(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.FileOperationError("MKDIR", filepath.Dir(path), "cannot create directory", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		return errors.FileOperationError("WRITE", path, "cannot write file", err)
	}
	return nil
}

// packageFile is package.json with fields in conventional order.
type packageFile struct {
	Name             string                       `json:"name"`
	Version          string                       `json:"version"`
	License          string                       `json:"license"`
	Author           string                       `json:"author,omitempty"`
	Type             string                       `json:"type"`
	Source           string                       `json:"source"`
	Main             string                       `json:"main"`
	Module           string                       `json:"module"`
	Types            string                       `json:"types"`
	Exports          map[string]map[string]string `json:"exports"`
	Files            []string                     `json:"files"`
	Engines          map[string]string            `json:"engines"`
	Scripts          map[string]string            `json:"scripts"`
	PeerDependencies map[string]string            `json:"peerDependencies,omitempty"`
	DevDependencies  map[string]string            `json:"devDependencies"`
}

func packageJSON(t Template, ctx TemplateContext) ([]byte, error) {
	source := "src/index.ts"
	if t == TemplateReact {
		source = "src/index.tsx"
	}
	dev, peer := t.dependencies()

	pkg := packageFile{
		Name:    ctx.Name,
		Version: "0.1.0",
		License: "MIT",
		Author:  ctx.Author,
		Type:    "module",
		Source:  source,
		Main:    "./dist/index.cjs",
		Module:  "./dist/index.js",
		Types:   "./dist/index.d.ts",
		Exports: map[string]map[string]string{
			".": {
				"types":   "./dist/index.d.ts",
				"import":  "./dist/index.js",
				"require": "./dist/index.cjs",
			},
		},
		Files:   []string{"dist", "src"},
		Engines: map[string]string{"node": ">=18"},
		Scripts: map[string]string{
			"build": "tspack build",
			"start": "tspack watch",
			"test":  "tspack test",
			"lint":  "tspack lint",
		},
		PeerDependencies: peer,
		DevDependencies:  dev,
	}

	data, err := json.MarshalIndent(pkg, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
