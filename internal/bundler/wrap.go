package bundler

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/tspack/internal/buildcfg"
)

// esbuild has no umd or system output. Both are produced as an IIFE that
// assigns GlobalName, wrapped in a loader-specific header and footer. The
// wrapper supplies a require function so that external imports resolve
// through the host module system.

func wrapUMD(opts *api.BuildOptions, job buildcfg.BuildJob) {
	name := opts.GlobalName
	deps := quotedList(job.External.Packages)

	header := fmt.Sprintf(`(function (global, factory) {
  typeof exports === 'object' && typeof module !== 'undefined' ? module.exports = factory(require) :
  typeof define === 'function' && define.amd ? define(['require'%s], factory) :
  (global = typeof globalThis !== 'undefined' ? globalThis : global || self, global[%q] = factory(function (id) { return global[id]; }));
})(this, function (require) {`, prefixed(deps), name)
	footer := fmt.Sprintf("return %s;\n});", name)

	opts.Banner["js"] = joinLines(opts.Banner["js"], header)
	opts.Footer["js"] = joinLines(footer, opts.Footer["js"])
}

func wrapSystem(opts *api.BuildOptions, job buildcfg.BuildJob) {
	name := opts.GlobalName
	deps := quotedList(job.External.Packages)

	setters := make([]string, len(job.External.Packages))
	for i, pkg := range job.External.Packages {
		setters[i] = fmt.Sprintf("function (m) { __deps[%s] = m; }", quote(pkg))
	}

	header := fmt.Sprintf(`System.register([%s], function (_export) {
  var __deps = {};
  return {
    setters: [%s],
    execute: function () {
      var require = function (id) { return __deps[id]; };`, deps, strings.Join(setters, ", "))
	footer := fmt.Sprintf("      _export(%s);\n    }\n  };\n});", name)

	opts.Banner["js"] = joinLines(opts.Banner["js"], header)
	opts.Footer["js"] = joinLines(footer, opts.Footer["js"])
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func quotedList(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = quote(s)
	}
	return strings.Join(quoted, ", ")
}

func prefixed(list string) string {
	if list == "" {
		return ""
	}
	return ", " + list
}
