package entry

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/tspack/internal/errors"
	"github.com/conneroisu/tspack/internal/manifest"
)

// SourceExtensions are probed, in order, when locating the source of a
// declared output.
var SourceExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mts", ".cts"}

// ConventionSource is the fallback source file relative to the project root.
const ConventionSource = "src/index.ts"

// Prober answers file existence questions.
type Prober interface {
	Exists(path string) bool
}

// OSProber checks the real filesystem.
type OSProber struct{}

// Exists reports whether path names a regular file.
func (OSProber) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Resolver turns a manifest plus overrides into entry points.
type Resolver struct {
	prober      Prober
	concurrency int
}

// NewResolver creates a resolver. A nil prober uses the real filesystem.
func NewResolver(prober Prober) *Resolver {
	if prober == nil {
		prober = OSProber{}
	}
	return &Resolver{prober: prober, concurrency: 16}
}

// candidate is an output declared by the manifest whose source still has to
// be found.
type candidate struct {
	output     string
	format     Format
	exportPath string
	probes     []string
}

// Resolve computes the ordered, deduplicated entry points for m.
func (r *Resolver) Resolve(ctx context.Context, m *manifest.PackageManifest, o Overrides) ([]EntryPoint, error) {
	var (
		entries []EntryPoint
		err     error
	)

	if len(o.Entries) > 0 {
		entries, err = r.fromGlobs(m, o)
		if err != nil {
			return nil, err
		}
	} else {
		rules := []func() []candidate{
			func() []candidate { return exportCandidates(m) },
			func() []candidate { return legacyCandidates(m) },
		}
		for _, rule := range rules {
			entries, err = r.probe(ctx, m, o, rule())
			if err != nil {
				return nil, err
			}
			if len(entries) > 0 {
				break
			}
		}
		if len(entries) == 0 {
			entries = r.convention(m, o)
		}
		entries = applyFormats(entries, o, m)
	}

	entries = Dedupe(entries)
	if len(entries) == 0 {
		return nil, errors.NewConfigError(errors.ErrCodeNoEntryPoints,
			"nothing to build: no --entry matches, exports, module/main or "+ConventionSource,
			errors.ErrNoEntryPoints).WithLocation(filepath.Join(m.Root, manifest.FileName), 0, 0)
	}
	return entries, nil
}

func (r *Resolver) fromGlobs(m *manifest.PackageManifest, o Overrides) ([]EntryPoint, error) {
	formats := o.Formats
	if len(formats) == 0 {
		formats = []Format{FormatESM}
	}

	fsys := os.DirFS(m.Root)
	var entries []EntryPoint
	for _, pattern := range o.Entries {
		pattern = strings.TrimPrefix(filepath.ToSlash(pattern), "./")
		if !doublestar.ValidatePattern(pattern) {
			return nil, errors.NewValidationError(errors.ErrCodeInvalidPath, "invalid --entry glob: "+pattern)
		}
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, errors.WrapIO(err, errors.ErrCodeInvalidPath, "cannot expand --entry glob "+pattern)
		}
		sort.Strings(matches)
		for _, match := range matches {
			rel := strings.TrimPrefix(match, "src/")
			base := strings.TrimSuffix(rel, path.Ext(rel))
			exportPath := "./" + base
			if base == "index" {
				exportPath = "."
			}
			for _, f := range formats {
				entries = append(entries, EntryPoint{
					Source:     filepath.Join(m.Root, filepath.FromSlash(match)),
					Output:     path.Join(o.outDir(), base+OutputExtension(f, m.ModuleType)),
					Format:     f,
					ExportPath: exportPath,
				})
			}
		}
	}
	return entries, nil
}

// probe locates sources for every candidate concurrently. Results are
// assembled in candidate order once all probes have finished.
// Outputs are relocated below o.OutDir after their sources are found.
func (r *Resolver) probe(ctx context.Context, m *manifest.PackageManifest, o Overrides, cands []candidate) ([]EntryPoint, error) {
	if len(cands) == 0 {
		return nil, nil
	}

	found := make([]string, len(cands))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, c := range cands {
		g.Go(func() error {
			for _, p := range c.probes {
				if err := ctx.Err(); err != nil {
					return err
				}
				abs := filepath.Join(m.Root, filepath.FromSlash(p))
				if r.prober.Exists(abs) {
					found[i] = abs
					return nil
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var entries []EntryPoint
	for i, c := range cands {
		if found[i] == "" {
			continue
		}
		entries = append(entries, EntryPoint{
			Source:     found[i],
			Output:     o.relocate(c.output),
			Format:     c.format,
			ExportPath: c.exportPath,
		})
	}
	return entries, nil
}

func (r *Resolver) convention(m *manifest.PackageManifest, o Overrides) []EntryPoint {
	src := filepath.Join(m.Root, filepath.FromSlash(ConventionSource))
	if !r.prober.Exists(src) {
		return nil
	}
	out := o.outDir()
	entries := []EntryPoint{{Source: src, Output: path.Join(out, "index.js"), Format: FormatESM, ExportPath: "."}}
	if m.ModuleType == manifest.ModuleTypeModule {
		entries = append(entries, EntryPoint{Source: src, Output: path.Join(out, "index.cjs"), Format: FormatCJS, ExportPath: "."})
	}
	return entries
}

// applyFormats narrows manifest-derived entries to the requested formats.
// A requested format with no root entry (always the case for umd and system,
// which package.json cannot declare) is added as <dir>/index<ext> for every
// root source, where dir is OutDir or the directory the manifest builds into.
func applyFormats(entries []EntryPoint, o Overrides, m *manifest.PackageManifest) []EntryPoint {
	if len(o.Formats) == 0 {
		return entries
	}

	var kept []EntryPoint
	declared := make(map[Format]bool)
	for _, e := range entries {
		if o.wants(e.Format) {
			kept = append(kept, e)
			if e.ExportPath == "." {
				declared[e.Format] = true
			}
		}
	}

	dir := OutputRoot(entries)
	if o.OutDir != "" || dir == "" {
		dir = o.outDir()
	}
	for _, f := range o.Formats {
		if declared[f] {
			continue
		}
		seen := make(map[string]bool)
		for _, e := range entries {
			if e.ExportPath != "." || seen[e.Source] {
				continue
			}
			seen[e.Source] = true
			kept = append(kept, EntryPoint{
				Source:     e.Source,
				Output:     path.Join(dir, "index"+OutputExtension(f, m.ModuleType)),
				Format:     f,
				ExportPath: ".",
			})
		}
	}
	return kept
}

// OutputExtension is the file extension used for a format's output.
func OutputExtension(f Format, mt manifest.ModuleType) string {
	switch f {
	case FormatCJS:
		if mt == manifest.ModuleTypeModule {
			return ".cjs"
		}
		return ".js"
	case FormatUMD:
		return ".umd.js"
	case FormatSystem:
		return ".system.js"
	default:
		if mt == manifest.ModuleTypeModule {
			return ".js"
		}
		return ".mjs"
	}
}

// FormatForTarget infers the module format of a declared output file.
func FormatForTarget(target string, mt manifest.ModuleType) Format {
	switch path.Ext(target) {
	case ".mjs", ".mts":
		return FormatESM
	case ".cjs", ".cts":
		return FormatCJS
	}
	if mt == manifest.ModuleTypeModule {
		return FormatESM
	}
	return FormatCJS
}
