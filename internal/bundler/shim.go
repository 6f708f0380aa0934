package bundler

import (
	"fmt"
	"path"
	"path/filepath"

	"github.com/conneroisu/tspack/internal/buildcfg"
	"github.com/conneroisu/tspack/internal/entry"
	"github.com/conneroisu/tspack/internal/errors"
)

const shimTemplate = `'use strict'

if (process.env.NODE_ENV === 'production') {
  module.exports = require('./%s')
} else {
  module.exports = require('./%s')
}
`

// WriteShims writes, for each cjs entry whose development and production
// jobs both succeeded, a file at the entry output that picks one by
// NODE_ENV. It returns the written paths relative to root.
func WriteShims(root string, results []Result) ([]string, error) {
	type pair struct {
		entry     entry.EntryPoint
		dev, prod string
		failed    bool
		seenDev   bool
		seenProd  bool
	}
	var (
		order []string
		pairs = make(map[string]*pair)
	)
	for _, res := range results {
		e := res.Job.Entry
		if e.Format != entry.FormatCJS {
			continue
		}
		p, ok := pairs[e.Key()]
		if !ok {
			p = &pair{entry: e}
			pairs[e.Key()] = p
			order = append(order, e.Key())
		}
		if res.Failed() {
			p.failed = true
		}
		switch res.Job.Env {
		case buildcfg.EnvDevelopment:
			p.dev, p.seenDev = res.Job.OutputFile, true
		case buildcfg.EnvProduction:
			p.prod, p.seenProd = res.Job.OutputFile, true
		}
	}

	var written []string
	for _, key := range order {
		p := pairs[key]
		if p.failed || !p.seenDev || !p.seenProd {
			continue
		}
		dir := path.Dir(p.entry.Output)
		content := fmt.Sprintf(shimTemplate, relTo(dir, p.prod), relTo(dir, p.dev))
		target := filepath.Join(root, filepath.FromSlash(p.entry.Output))
		if err := writeOutput(target, []byte(content)); err != nil {
			return written, errors.FileOperationError("WRITE", target, "cannot write cjs entry shim", err)
		}
		written = append(written, p.entry.Output)
	}
	return written, nil
}

func relTo(dir, file string) string {
	rel, err := filepath.Rel(filepath.FromSlash(dir), filepath.FromSlash(file))
	if err != nil {
		return path.Base(file)
	}
	return filepath.ToSlash(rel)
}
