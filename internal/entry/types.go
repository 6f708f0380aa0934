// Package entry resolves the list of entry points to build from a package
// manifest and CLI overrides.
//
// Resolution tries, in order: explicit --entry globs, the "exports" map, the
// legacy "module"/"main" fields, and finally the src/index.ts convention. The
// first rule producing at least one entry wins. The result is deduplicated by
// (output, format), keeping the first occurrence.
package entry

import (
	"fmt"
	"path"
	"strings"
)

// Format is an output module format.
type Format string

const (
	FormatESM    Format = "esm"
	FormatCJS    Format = "cjs"
	FormatUMD    Format = "umd"
	FormatSystem Format = "system"
)

// AllFormats lists the supported formats in canonical order.
var AllFormats = []Format{FormatESM, FormatCJS, FormatUMD, FormatSystem}

// ParseFormat validates a single format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatESM, FormatCJS, FormatUMD, FormatSystem:
		return f, nil
	case "es", "module":
		return FormatESM, nil
	case "commonjs":
		return FormatCJS, nil
	default:
		return "", fmt.Errorf("unknown format %q (valid: esm, cjs, umd, system)", s)
	}
}

// ParseFormats parses a comma separated list, dropping duplicates.
func ParseFormats(csv []string) ([]Format, error) {
	var formats []Format
	seen := make(map[Format]bool)
	for _, item := range csv {
		for _, part := range strings.Split(item, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			f, err := ParseFormat(part)
			if err != nil {
				return nil, err
			}
			if !seen[f] {
				seen[f] = true
				formats = append(formats, f)
			}
		}
	}
	return formats, nil
}

// DualEnv reports whether the format is built once per environment
// (development and production) rather than once.
func (f Format) DualEnv() bool {
	return f != FormatESM
}

// EntryPoint is one resolved source -> output pairing.
type EntryPoint struct {
	// Source is the absolute path of the source file.
	Source string
	// Output is the slash separated output path relative to the project root.
	Output string
	Format Format
	// ExportPath is the logical export key, "." for the package root.
	ExportPath string
}

// Key identifies an entry point for deduplication.
func (e EntryPoint) Key() string {
	return e.Output + "#" + string(e.Format)
}

// String renders the entry for logs.
func (e EntryPoint) String() string {
	return fmt.Sprintf("%s -> %s (%s)", e.Source, e.Output, e.Format)
}

// Overrides carries the CLI options that influence resolution.
type Overrides struct {
	// Entries are glob patterns relative to the project root.
	Entries []string
	// Formats restricts (and for umd/system, extends) the produced formats.
	Formats []Format
	// OutDir is the output directory. When set it replaces the leading
	// directory of outputs declared in package.json. Glob and convention
	// entries use DefaultOutDir when it is empty.
	OutDir string
}

// DefaultOutDir holds glob and convention outputs when no directory is
// configured.
const DefaultOutDir = "dist"

func (o Overrides) outDir() string {
	if o.OutDir == "" {
		return DefaultOutDir
	}
	return strings.TrimPrefix(path.Clean(strings.ReplaceAll(o.OutDir, "\\", "/")), "./")
}

// relocate moves a declared output below OutDir, keeping everything after
// its first directory: with OutDir "lib", "dist/esm/index.js" becomes
// "lib/esm/index.js" and "index.js" becomes "lib/index.js".
func (o Overrides) relocate(output string) string {
	if o.OutDir == "" {
		return output
	}
	if i := strings.Index(output, "/"); i >= 0 {
		return path.Join(o.outDir(), output[i+1:])
	}
	return path.Join(o.outDir(), output)
}

// OutputRoot returns the top-level directory shared by every entry output,
// or "" when the outputs do not share one.
func OutputRoot(entries []EntryPoint) string {
	root := ""
	for i, e := range entries {
		j := strings.Index(e.Output, "/")
		if j <= 0 {
			return ""
		}
		dir := e.Output[:j]
		if i > 0 && dir != root {
			return ""
		}
		root = dir
	}
	return root
}

func (o Overrides) wants(f Format) bool {
	if len(o.Formats) == 0 {
		return true
	}
	for _, want := range o.Formats {
		if want == f {
			return true
		}
	}
	return false
}

// Dedupe removes entries sharing (Output, Format), keeping the first.
func Dedupe(entries []EntryPoint) []EntryPoint {
	seen := make(map[string]bool, len(entries))
	out := make([]EntryPoint, 0, len(entries))
	for _, e := range entries {
		if seen[e.Key()] {
			continue
		}
		seen[e.Key()] = true
		out = append(out, e)
	}
	return out
}
