package entry

import (
	"path"
	"strings"

	"github.com/conneroisu/tspack/internal/manifest"
)

// exportCandidates walks the exports tree in file order.
func exportCandidates(m *manifest.PackageManifest) []candidate {
	root := m.Exports
	if root == nil {
		return nil
	}

	var cands []candidate
	if root.IsSubpathMap() {
		for _, e := range root.Entries {
			cands = append(cands, walkConditions(m, e.Node, e.Key)...)
		}
		return cands
	}
	return walkConditions(m, root, ".")
}

func walkConditions(m *manifest.PackageManifest, node *manifest.ExportsNode, exportPath string) []candidate {
	if node == nil {
		return nil
	}

	switch node.Kind {
	case manifest.NodeString:
		return targetCandidate(m, node.Value, FormatForTarget(node.Value, m.ModuleType), exportPath)

	case manifest.NodeArray:
		var cands []candidate
		for _, item := range node.Items {
			cands = append(cands, walkConditions(m, item, exportPath)...)
		}
		return cands

	case manifest.NodeObject:
		imp, req := node.Get("import"), node.Get("require")
		if imp == nil && req == nil {
			return walkConditions(m, node.Get("default"), exportPath)
		}
		var cands []candidate
		// Emit in declaration order so "require" first stays first.
		for _, e := range node.Entries {
			switch e.Key {
			case "import":
				if target, ok := conditionTarget(e.Node); ok {
					cands = append(cands, targetCandidate(m, target, FormatESM, exportPath)...)
				}
			case "require":
				if target, ok := conditionTarget(e.Node); ok {
					cands = append(cands, targetCandidate(m, target, FormatCJS, exportPath)...)
				}
			}
		}
		return cands
	}
	return nil
}

// conditionTarget reduces the value of an import/require condition to a
// single file, following nested "default" keys and taking the first array
// item that resolves. Nested "types" conditions are ignored.
func conditionTarget(node *manifest.ExportsNode) (string, bool) {
	if node == nil {
		return "", false
	}
	switch node.Kind {
	case manifest.NodeString:
		return node.Value, true
	case manifest.NodeObject:
		return conditionTarget(node.Get("default"))
	case manifest.NodeArray:
		for _, item := range node.Items {
			if target, ok := conditionTarget(item); ok {
				return target, true
			}
		}
	}
	return "", false
}

func legacyCandidates(m *manifest.PackageManifest) []candidate {
	var cands []candidate
	if m.Module != "" {
		cands = append(cands, targetCandidate(m, m.Module, FormatESM, ".")...)
	}
	if m.Main != "" {
		cands = append(cands, targetCandidate(m, m.Main, FormatForTarget(m.Main, m.ModuleType), ".")...)
	}
	return cands
}

func targetCandidate(m *manifest.PackageManifest, target string, f Format, exportPath string) []candidate {
	output := normalizeTarget(target)
	if output == "" || strings.HasSuffix(output, ".json") || strings.Contains(output, "*") {
		return nil
	}
	return []candidate{{
		output:     output,
		format:     f,
		exportPath: exportPath,
		probes:     sourceProbes(m, output, exportPath),
	}}
}

func normalizeTarget(target string) string {
	t := strings.TrimPrefix(strings.ReplaceAll(target, "\\", "/"), "./")
	if t == "" || strings.HasPrefix(t, "../") || strings.HasPrefix(t, "/") {
		return ""
	}
	return path.Clean(t)
}

// sourceProbes lists the candidate source files for an output, most specific
// first. The output directory is mapped onto src/, the manifest "source"
// directory is tried next, and each base is also tried as a directory with
// an index file.
func sourceProbes(m *manifest.PackageManifest, output, exportPath string) []string {
	var probes []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			probes = append(probes, p)
		}
	}

	if exportPath == "." && m.SourceEntry != "" {
		add(normalizeTarget(m.SourceEntry))
	}

	base := stripOutputExt(output)
	var bases []string
	if i := strings.Index(base, "/"); i >= 0 {
		bases = append(bases, path.Join("src", base[i+1:]))
	} else {
		bases = append(bases, path.Join("src", base))
	}
	if m.SourceEntry != "" {
		if dir := path.Dir(normalizeTarget(m.SourceEntry)); dir != "." && dir != "src" {
			bases = append(bases, path.Join(dir, path.Base(base)))
		}
	}
	bases = append(bases, path.Join("src", path.Base(base)))

	for _, b := range bases {
		for _, ext := range SourceExtensions {
			add(b + ext)
		}
		for _, ext := range SourceExtensions {
			add(b + "/index" + ext)
		}
	}
	return probes
}

// stripOutputExt removes the module extension plus format/env markers
// such as ".esm", ".umd" or ".production.min".
func stripOutputExt(output string) string {
	base := strings.TrimSuffix(output, path.Ext(output))
	for {
		ext := path.Ext(base)
		switch ext {
		case ".esm", ".es", ".cjs", ".umd", ".system", ".min", ".development", ".production", ".modern":
			base = strings.TrimSuffix(base, ext)
		default:
			return base
		}
	}
}
