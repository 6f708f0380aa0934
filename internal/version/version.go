// Package version reports how the tspack binary was built and which
// esbuild release it embeds.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// esbuildModule is the module path of the embedded bundler.
const esbuildModule = "github.com/evanw/esbuild"

// Info contains version and build information
type Info struct {
	Version   string    `json:"version" yaml:"version"`
	Commit    string    `json:"commit" yaml:"commit"`
	BuildTime time.Time `json:"build_time,omitempty" yaml:"build_time,omitempty"`
	Dirty     bool      `json:"dirty" yaml:"dirty"`
	Esbuild   string    `json:"esbuild" yaml:"esbuild"`
	GoVersion string    `json:"go_version" yaml:"go_version"`
	Platform  string    `json:"platform" yaml:"platform"`
}

// These variables are set at build time using -ldflags
var (
	// Version is the semantic version of the application
	Version = "dev"

	// Commit is the git commit hash when the binary was built
	Commit = "unknown"

	// BuildTime is the time when the binary was built (RFC3339 format)
	BuildTime = "unknown"
)

// Get returns the build information of the running binary.
func Get() *Info {
	bi, _ := debug.ReadBuildInfo()
	return fromBuildInfo(bi)
}

// fromBuildInfo fills the gaps left by -ldflags from the module and VCS
// information the Go toolchain records. bi may be nil.
func fromBuildInfo(bi *debug.BuildInfo) *Info {
	info := &Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: parseTime(BuildTime),
		Esbuild:   "unknown",
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
	if bi == nil {
		return info
	}

	for _, dep := range bi.Deps {
		if dep.Path == esbuildModule {
			info.Esbuild = dep.Version
			if dep.Replace != nil && dep.Replace.Version != "" {
				info.Esbuild = dep.Replace.Version
			}
		}
	}

	var revision string
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			info.Dirty = s.Value == "true"
		case "vcs.time":
			if info.BuildTime.IsZero() {
				info.BuildTime = parseTime(s.Value)
			}
		}
	}
	if info.Commit == "unknown" && revision != "" {
		info.Commit = revision
	}

	if info.Version == "dev" || info.Version == "" {
		switch {
		case bi.Main.Version != "" && bi.Main.Version != "(devel)":
			info.Version = bi.Main.Version
		case len(revision) >= 7:
			info.Version = "dev-" + revision[:7]
		default:
			info.Version = "dev"
		}
	}
	return info
}

// Short returns the version with an abbreviated commit, e.g.
// "v1.2.0 (a1b2c3d)".
func (i *Info) Short() string {
	s := i.Version
	if i.Commit != "unknown" && len(i.Commit) >= 7 && !strings.HasSuffix(s, i.Commit[:7]) {
		s += " (" + i.Commit[:7] + ")"
	}
	if i.Dirty {
		s += " (dirty)"
	}
	return s
}

// IsRelease returns true if this is a release build (not dev)
func (i *Info) IsRelease() bool {
	return i.Version != "dev" && !strings.HasPrefix(i.Version, "dev-")
}

// parseTime parses an ISO 8601 time string, returns zero time on error
func parseTime(s string) time.Time {
	if s == "" || s == "unknown" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
