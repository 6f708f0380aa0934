// Package invocation holds the state shared by the steps of one CLI
// invocation. A Context is created by the root command, passed down through
// services, and discarded when the process exits; nothing in it is global.
package invocation

import (
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
)

// PackageManager is a JavaScript package manager used for installs.
type PackageManager string

const (
	PackageManagerNPM  PackageManager = "npm"
	PackageManagerYarn PackageManager = "yarn"
	PackageManagerPNPM PackageManager = "pnpm"
	PackageManagerBun  PackageManager = "bun"
)

// InstallArgs returns the argv that installs dependencies.
func (p PackageManager) InstallArgs() []string {
	switch p {
	case PackageManagerYarn:
		return []string{"yarn", "install"}
	case PackageManagerPNPM:
		return []string{"pnpm", "install"}
	case PackageManagerBun:
		return []string{"bun", "install"}
	default:
		return []string{"npm", "install"}
	}
}

var lockFiles = []struct {
	name string
	pm   PackageManager
}{
	{"pnpm-lock.yaml", PackageManagerPNPM},
	{"yarn.lock", PackageManagerYarn},
	{"bun.lockb", PackageManagerBun},
	{"package-lock.json", PackageManagerNPM},
}

// Context is per-invocation state.
type Context struct {
	ProjectRoot string

	// LookPath finds executables; tests replace it.
	LookPath func(file string) (string, error)

	installOnce sync.Once
	installPM   PackageManager

	mu       sync.RWMutex
	shebangs map[string]string
}

// New creates the context for an invocation rooted at projectRoot.
func New(projectRoot string) *Context {
	return &Context{
		ProjectRoot: projectRoot,
		LookPath:    exec.LookPath,
		shebangs:    make(map[string]string),
	}
}

// PackageManager detects the package manager once and returns the memoized
// answer afterwards. Lock files in the project root win, then the first of
// yarn/pnpm found on PATH, then npm.
func (c *Context) PackageManager() PackageManager {
	c.installOnce.Do(func() {
		c.installPM = c.detectPackageManager()
	})
	return c.installPM
}

func (c *Context) detectPackageManager() PackageManager {
	for _, lf := range lockFiles {
		if _, err := os.Stat(filepath.Join(c.ProjectRoot, lf.name)); err == nil {
			return lf.pm
		}
	}
	lookPath := c.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	for _, pm := range []PackageManager{PackageManagerYarn, PackageManagerPNPM} {
		if _, err := lookPath(string(pm)); err == nil {
			return pm
		}
	}
	return PackageManagerNPM
}

// RecordShebang remembers the shebang line of a source file so it can be
// re-emitted on every output built from it. An empty line forgets the
// source, so a shebang removed between watch rebuilds stops being emitted.
func (c *Context) RecordShebang(source, line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if line == "" {
		delete(c.shebangs, source)
		return
	}
	c.shebangs[source] = line
}

// Shebang returns the recorded shebang for source.
func (c *Context) Shebang(source string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	line, ok := c.shebangs[source]
	return line, ok
}

// Shebangs returns the sources with a recorded shebang, sorted.
func (c *Context) Shebangs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sources := make([]string, 0, len(c.shebangs))
	for s := range c.shebangs {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	return sources
}
