// Package testutils builds throwaway library projects for tests.
package testutils

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/tspack/internal/config"
)

// LibraryManifest is a dual-format package.json used by most tests.
var LibraryManifest = map[string]any{
	"name":    "@acme/widgets",
	"version": "1.2.3",
	"type":    "module",
	"exports": map[string]any{
		".": map[string]any{
			"import":  "./dist/index.js",
			"require": "./dist/index.cjs",
		},
	},
	"dependencies": map[string]any{"lodash": "^4.17.21"},
}

// LibrarySource is a small entry file with an external import and a
// __DEV__ branch.
const LibrarySource = `import { chunk } from 'lodash'

export function pairs<T>(items: T[]): T[][] {
  if (__DEV__) {
    console.debug('pairs', items.length)
  }
  return chunk(items, 2)
}
`

// CreateTempProject creates an empty project with the given package.json
// fields and returns its root.
func CreateTempProject(t *testing.T, manifest map[string]any) string {
	t.Helper()
	root := t.TempDir()
	WritePackageJSON(t, root, manifest)
	return root
}

// CreateLibraryProject creates a project from LibraryManifest with
// src/index.ts in place.
func CreateLibraryProject(t *testing.T) string {
	t.Helper()
	root := CreateTempProject(t, LibraryManifest)
	WriteFile(t, root, "src/index.ts", LibrarySource)
	return root
}

// WritePackageJSON writes package.json into root.
func WritePackageJSON(t *testing.T, root string, manifest map[string]any) {
	t.Helper()
	data, err := json.MarshalIndent(manifest, "", "  ")
	require.NoError(t, err)
	WriteFile(t, root, "package.json", string(data)+"\n")
}

// WriteFile writes content to a slash separated path below root, creating
// parent directories, and returns the absolute path.
func WriteFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// ReadFile returns the content of a slash separated path below root.
func ReadFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

// CreateTestConfig returns the default configuration with settings that
// keep tests hermetic: no declarations, no progress cache writes outside
// the project and a short debounce.
func CreateTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFrom(viper.New())
	require.NoError(t, err)
	cfg.Build.Concurrency = 2
	cfg.Build.Declaration = false
	cfg.Watch.Debounce = 20 * time.Millisecond
	return cfg
}

// WaitForFile waits until path exists.
func WaitForFile(t *testing.T, path string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("File %s did not appear within %v", path, timeout)
}

// WaitForFileChange waits for a file to be modified (useful for testing file watchers)
func WaitForFileChange(
	t *testing.T,
	filePath string,
	originalModTime time.Time,
	timeout time.Duration,
) {
	t.Helper()
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		info, err := os.Stat(filePath)
		if err == nil && info.ModTime().After(originalModTime) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("File %s was not modified within %v", filePath, timeout)
}
