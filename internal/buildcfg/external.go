package buildcfg

import (
	"sort"
	"strings"
)

// nodeBuiltins are the core modules of Node.js that can be imported without
// the "node:" prefix.
var nodeBuiltins = map[string]bool{
	"assert": true, "async_hooks": true, "buffer": true, "child_process": true,
	"cluster": true, "console": true, "constants": true, "crypto": true,
	"dgram": true, "diagnostics_channel": true, "dns": true, "domain": true,
	"events": true, "fs": true, "http": true, "http2": true, "https": true,
	"inspector": true, "module": true, "net": true, "os": true, "path": true,
	"perf_hooks": true, "process": true, "punycode": true, "querystring": true,
	"readline": true, "repl": true, "stream": true, "string_decoder": true,
	"sys": true, "timers": true, "tls": true, "trace_events": true, "tty": true,
	"url": true, "util": true, "v8": true, "vm": true, "wasi": true,
	"worker_threads": true, "zlib": true,
}

// IsNodeBuiltin reports whether id names a Node.js core module, including
// subpaths such as "fs/promises".
func IsNodeBuiltin(id string) bool {
	if strings.HasPrefix(id, "node:") {
		return true
	}
	if i := strings.Index(id, "/"); i >= 0 {
		id = id[:i]
	}
	return nodeBuiltins[id]
}

// ExternalPredicate decides whether an import is left for the consumer to
// resolve at runtime instead of being bundled.
type ExternalPredicate struct {
	// Packages are kept sorted.
	Packages []string
	Builtins bool
}

// NewExternalPredicate builds a predicate over the given package names.
func NewExternalPredicate(builtins bool, packages ...[]string) ExternalPredicate {
	seen := make(map[string]bool)
	var all []string
	for _, list := range packages {
		for _, p := range list {
			if !seen[p] {
				seen[p] = true
				all = append(all, p)
			}
		}
	}
	sort.Strings(all)
	return ExternalPredicate{Packages: all, Builtins: builtins}
}

// IsExternal reports whether id equals a package or is a subpath of one.
func (p ExternalPredicate) IsExternal(id string) bool {
	if p.Builtins && IsNodeBuiltin(id) {
		return true
	}
	for _, pkg := range p.Packages {
		if id == pkg || strings.HasPrefix(id, pkg+"/") {
			return true
		}
	}
	return false
}
