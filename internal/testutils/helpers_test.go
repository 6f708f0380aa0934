package testutils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/tspack/internal/manifest"
)

func TestCreateLibraryProject(t *testing.T) {
	root := CreateLibraryProject(t)

	m, err := manifest.Read(root)
	require.NoError(t, err)
	assert.Equal(t, "@acme/widgets", m.Name)
	assert.Equal(t, manifest.ModuleTypeModule, m.ModuleType)
	assert.Equal(t, LibrarySource, ReadFile(t, root, "src/index.ts"))
}

func TestWriteFileCreatesParents(t *testing.T) {
	root := t.TempDir()
	path := WriteFile(t, root, "src/deep/nested/file.ts", "export {}\n")
	assert.FileExists(t, path)
	assert.Equal(t, filepath.Join(root, "src", "deep", "nested", "file.ts"), path)
}

func TestCreateTestConfig(t *testing.T) {
	cfg := CreateTestConfig(t)
	assert.Empty(t, cfg.Build.OutDir)
	assert.Equal(t, 2, cfg.Build.Concurrency)
	assert.False(t, cfg.Build.Declaration)
	assert.Equal(t, 20*time.Millisecond, cfg.Watch.Debounce)
}

func TestWaitForFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "later.txt")
	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = os.WriteFile(path, []byte("x"), 0644)
	}()
	WaitForFile(t, path, time.Second)
	assert.FileExists(t, path)
}

func TestWaitForFileChange(t *testing.T) {
	tempDir := t.TempDir()
	testFile := filepath.Join(tempDir, "test.txt")

	err := os.WriteFile(testFile, []byte("initial"), 0644)
	require.NoError(t, err)

	info, err := os.Stat(testFile)
	require.NoError(t, err)
	originalModTime := info.ModTime()

	go func() {
		time.Sleep(50 * time.Millisecond)
		later := originalModTime.Add(time.Second)
		_ = os.WriteFile(testFile, []byte("modified"), 0644)
		_ = os.Chtimes(testFile, later, later)
	}()

	WaitForFileChange(t, testFile, originalModTime, time.Second)

	content, err := os.ReadFile(testFile)
	require.NoError(t, err)
	assert.Equal(t, "modified", string(content))
}
