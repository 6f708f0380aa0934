package bundler

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"strings"
)

// Metafile is the subset of esbuild's metafile JSON used for reporting.
type Metafile struct {
	Inputs  map[string]MetafileInput  `json:"inputs"`
	Outputs map[string]MetafileOutput `json:"outputs"`
}

// MetafileInput is an input file in the metafile
type MetafileInput struct {
	Bytes   int              `json:"bytes"`
	Imports []MetafileImport `json:"imports"`
}

// MetafileImport is an import edge in the metafile
type MetafileImport struct {
	Path     string `json:"path"`
	Kind     string `json:"kind"`
	External bool   `json:"external,omitempty"`
}

// MetafileOutput is an output file in the metafile
type MetafileOutput struct {
	Bytes      int                     `json:"bytes"`
	Inputs     map[string]InputContrib `json:"inputs"`
	Imports    []MetafileImport        `json:"imports"`
	EntryPoint string                  `json:"entryPoint,omitempty"`
}

// InputContrib is the contribution of an input to an output
type InputContrib struct {
	BytesInOutput int `json:"bytesInOutput"`
}

// Contribution is one input's share of an output, for reports.
type Contribution struct {
	Path          string  `json:"path" yaml:"path"`
	BytesInOutput int     `json:"bytes_in_output" yaml:"bytes_in_output"`
	Percentage    float64 `json:"percentage" yaml:"percentage"`
}

// Analysis summarizes one job's output.
type Analysis struct {
	TotalBytes      int            `json:"total_bytes" yaml:"total_bytes"`
	TopInputs       []Contribution `json:"top_inputs,omitempty" yaml:"top_inputs,omitempty"`
	ExternalImports []string       `json:"external_imports,omitempty" yaml:"external_imports,omitempty"`
}

// analyzeMetafile reports the largest contributors to the JavaScript output
// and the imports left external. Paths are made relative to root.
func analyzeMetafile(raw string, root string, limit int) (*Analysis, error) {
	if raw == "" {
		return &Analysis{}, nil
	}
	var meta Metafile
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, err
	}

	analysis := &Analysis{}
	externals := make(map[string]bool)
	for outPath, output := range meta.Outputs {
		if strings.HasSuffix(outPath, ".map") {
			continue
		}
		analysis.TotalBytes += output.Bytes
		for _, imp := range output.Imports {
			if imp.External {
				externals[imp.Path] = true
			}
		}
		for inputPath, contrib := range output.Inputs {
			analysis.TopInputs = append(analysis.TopInputs, Contribution{
				Path:          displayPath(inputPath, root),
				BytesInOutput: contrib.BytesInOutput,
			})
		}
	}

	for i := range analysis.TopInputs {
		if analysis.TotalBytes > 0 {
			analysis.TopInputs[i].Percentage = float64(analysis.TopInputs[i].BytesInOutput) / float64(analysis.TotalBytes) * 100
		}
	}
	sort.Slice(analysis.TopInputs, func(i, j int) bool {
		a, b := analysis.TopInputs[i], analysis.TopInputs[j]
		if a.BytesInOutput != b.BytesInOutput {
			return a.BytesInOutput > b.BytesInOutput
		}
		return a.Path < b.Path
	})
	if limit > 0 && len(analysis.TopInputs) > limit {
		analysis.TopInputs = analysis.TopInputs[:limit]
	}

	for ext := range externals {
		analysis.ExternalImports = append(analysis.ExternalImports, ext)
	}
	sort.Strings(analysis.ExternalImports)
	return analysis, nil
}

func displayPath(p, root string) string {
	if filepath.IsAbs(p) {
		if rel, err := filepath.Rel(root, p); err == nil {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(p)
}
