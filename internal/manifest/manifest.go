// Package manifest reads and normalizes a package's package.json.
//
// A PackageManifest is read once per CLI invocation and is immutable
// afterwards. Absent optional fields (exports, source, main, module) are
// zero values, not errors.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/tspack/internal/errors"
)

// FileName is the package descriptor looked up in the project root.
const FileName = "package.json"

// ModuleType is the package "type" field.
type ModuleType int

const (
	ModuleTypeCommonJS ModuleType = iota
	ModuleTypeModule
)

// String returns the package.json spelling of the module type.
func (t ModuleType) String() string {
	if t == ModuleTypeModule {
		return "module"
	}
	return "commonjs"
}

// PackageManifest is the normalized package descriptor.
type PackageManifest struct {
	Root             string
	Name             string
	Version          string
	SourceEntry      string
	ModuleType       ModuleType
	Exports          *ExportsNode
	Main             string
	Module           string
	Types            string
	Dependencies     []string
	PeerDependencies []string
	Engines          map[string]string
	Browserslist     []string
	Bin              map[string]string
	Checksum         string
}

type rawManifest struct {
	Name             string            `json:"name"`
	Version          string            `json:"version"`
	Source           string            `json:"source"`
	Type             string            `json:"type"`
	Exports          json.RawMessage   `json:"exports"`
	Main             string            `json:"main"`
	Module           string            `json:"module"`
	Types            string            `json:"types"`
	Typings          string            `json:"typings"`
	Dependencies     map[string]string `json:"dependencies"`
	PeerDependencies map[string]string `json:"peerDependencies"`
	Engines          map[string]string `json:"engines"`
	Browserslist     json.RawMessage   `json:"browserslist"`
	Bin              json.RawMessage   `json:"bin"`
}

// Read loads <projectRoot>/package.json.
func Read(projectRoot string) (*PackageManifest, error) {
	root, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeInvalidPath, "cannot resolve project root", err)
	}

	path := filepath.Join(root, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewConfigError(errors.ErrCodeManifestNotFound,
				fmt.Sprintf("no %s in %s", FileName, root), errors.ErrManifestNotFound).
				WithLocation(path, 0, 0)
		}
		return nil, errors.FileOperationError("READ", path, "cannot read manifest", err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, err
	}
	m.Root = root
	return m, nil
}

// Parse normalizes raw package.json bytes. Root is left empty.
func Parse(data []byte) (*PackageManifest, error) {
	var raw rawManifest
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeManifestParse, err.Error(), errors.ErrManifestParse)
	}

	if strings.TrimSpace(raw.Name) == "" {
		return nil, errors.NewConfigError(errors.ErrCodeManifestInvalid,
			`"name" is required`, errors.ErrManifestInvalid)
	}

	exports, err := parseExports(raw.Exports)
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeExportsMalformed, err.Error(), errors.ErrManifestParse)
	}

	sum := sha256.Sum256(data)
	m := &PackageManifest{
		Name:             raw.Name,
		Version:          raw.Version,
		SourceEntry:      raw.Source,
		Exports:          exports,
		Main:             raw.Main,
		Module:           raw.Module,
		Types:            firstNonEmpty(raw.Types, raw.Typings),
		Dependencies:     sortedKeys(raw.Dependencies),
		PeerDependencies: sortedKeys(raw.PeerDependencies),
		Engines:          raw.Engines,
		Browserslist:     stringOrList(raw.Browserslist),
		Bin:              parseBin(raw.Name, raw.Bin),
		Checksum:         hex.EncodeToString(sum[:]),
	}
	if raw.Type == "module" {
		m.ModuleType = ModuleTypeModule
	}
	return m, nil
}

var unsafeNameChars = regexp.MustCompile(`(^@.*/)|((^[^a-zA-Z]+)|[^\w.-])|([^a-zA-Z0-9]+$)`)

// SafeName is the package name reduced to a file-name stem: the scope is
// dropped, as are leading non-letters and trailing non-alphanumerics.
func (m *PackageManifest) SafeName() string {
	return unsafeNameChars.ReplaceAllString(strings.ToLower(m.Name), "")
}

// GlobalName is the camel-cased identifier used for UMD/System globals.
func (m *PackageManifest) GlobalName() string {
	parts := strings.FieldsFunc(m.SafeName(), func(r rune) bool {
		return r == '-' || r == '.' || r == '_'
	})
	if len(parts) == 0 {
		return "lib"
	}
	title := cases.Title(language.Und, cases.NoLower)
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		b.WriteString(title.String(p))
	}
	return b.String()
}

// HasDependency reports whether name is a dependency or peer dependency.
func (m *PackageManifest) HasDependency(name string) bool {
	return containsSorted(m.Dependencies, name) || containsSorted(m.PeerDependencies, name)
}

func containsSorted(list []string, s string) bool {
	i := sort.SearchStrings(list, s)
	return i < len(list) && list[i] == s
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func stringOrList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	return nil
}

func parseBin(name string, raw json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		base := name
		if i := strings.LastIndex(base, "/"); i >= 0 {
			base = base[i+1:]
		}
		return map[string]string{base: single}
	}
	var bins map[string]string
	if err := json.Unmarshal(raw, &bins); err == nil {
		return bins
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
