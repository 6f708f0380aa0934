// Package bundler runs build jobs through esbuild and writes their output.
package bundler

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/tspack/internal/buildcfg"
	"github.com/conneroisu/tspack/internal/errors"
	"github.com/conneroisu/tspack/internal/invocation"
	"github.com/conneroisu/tspack/internal/logging"
)

// Bundler builds one job. Failures are reported in the Result, never as a
// panic or a shared error, so every outcome is attributable to its job.
type Bundler interface {
	Build(ctx context.Context, job buildcfg.BuildJob) Result
}

// OutputFile is a file written by a job.
type OutputFile struct {
	Path  string `json:"path" yaml:"path"`
	Bytes int    `json:"bytes" yaml:"bytes"`
}

// Result is the outcome of one job.
type Result struct {
	Job       buildcfg.BuildJob
	Outputs   []OutputFile
	Errors    []*errors.BuildError
	Warnings  []*errors.BuildError
	Analysis  *Analysis
	Duration  time.Duration
	Cancelled bool
}

// Failed reports whether the job produced errors or was cancelled.
func (r Result) Failed() bool {
	return r.Cancelled || len(r.Errors) > 0
}

// Esbuild implements Bundler with the esbuild Go API.
type Esbuild struct {
	root     string
	tsconfig string
	inv      *invocation.Context
	logger   logging.Logger
	topN     int
}

// NewEsbuild creates the esbuild adapter for a project. tsconfig may be
// empty, in which case esbuild finds tsconfig.json itself.
func NewEsbuild(inv *invocation.Context, tsconfig string, logger logging.Logger) *Esbuild {
	if tsconfig != "" && !filepath.IsAbs(tsconfig) {
		tsconfig = filepath.Join(inv.ProjectRoot, tsconfig)
	}
	return &Esbuild{
		root:     inv.ProjectRoot,
		tsconfig: tsconfig,
		inv:      inv,
		logger:   logger.WithComponent("bundler"),
		topN:     5,
	}
}

// Build bundles the job in memory and writes the output files unless ctx
// was cancelled first. A superseded job therefore never overwrites newer
// output.
func (e *Esbuild) Build(ctx context.Context, job buildcfg.BuildJob) Result {
	start := time.Now()
	res := Result{Job: job}

	opts, warnings := e.translate(job)
	for _, w := range warnings {
		res.Warnings = append(res.Warnings, &errors.BuildError{Job: job.ID(), Message: w, Severity: errors.ErrorSeverityWarning})
	}

	bctx, cerr := api.Context(opts)
	if cerr != nil {
		res.Errors = convertMessages(job.ID(), cerr.Errors, errors.ErrorSeverityError, e.root)
		res.Duration = time.Since(start)
		return res
	}
	defer bctx.Dispose()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			bctx.Cancel()
		case <-done:
		}
	}()
	out := bctx.Rebuild()
	close(done)

	if ctx.Err() != nil {
		res.Cancelled = true
		res.Duration = time.Since(start)
		return res
	}

	res.Warnings = append(res.Warnings, convertMessages(job.ID(), out.Warnings, errors.ErrorSeverityWarning, e.root)...)
	if len(out.Errors) > 0 {
		res.Errors = convertMessages(job.ID(), out.Errors, errors.ErrorSeverityError, e.root)
		res.Duration = time.Since(start)
		return res
	}

	for _, f := range out.OutputFiles {
		if ctx.Err() != nil {
			res.Cancelled = true
			break
		}
		if err := writeOutput(f.Path, f.Contents); err != nil {
			res.Errors = append(res.Errors, &errors.BuildError{
				Job:      job.ID(),
				Message:  err.Error(),
				Severity: errors.ErrorSeverityError,
			})
			break
		}
		res.Outputs = append(res.Outputs, OutputFile{Path: displayPath(f.Path, e.root), Bytes: len(f.Contents)})
	}

	if analysis, err := analyzeMetafile(out.Metafile, e.root, e.topN); err == nil {
		res.Analysis = analysis
	} else {
		e.logger.Debug(ctx, "Metafile analysis skipped", "job", job.ID(), "error", err.Error())
	}

	res.Duration = time.Since(start)
	return res
}

func writeOutput(path string, contents []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, contents, 0644)
}

func convertMessages(jobID string, msgs []api.Message, severity errors.ErrorSeverity, root string) []*errors.BuildError {
	out := make([]*errors.BuildError, 0, len(msgs))
	for _, m := range msgs {
		be := &errors.BuildError{
			Job:      jobID,
			Plugin:   m.PluginName,
			Message:  messageText(m),
			Severity: severity,
		}
		if m.Location != nil {
			be.Location = &errors.Location{
				File:     displayPath(m.Location.File, root),
				Line:     m.Location.Line,
				Column:   m.Location.Column + 1,
				LineText: m.Location.LineText,
			}
		}
		out = append(out, be)
	}
	return out
}

func messageText(m api.Message) string {
	if len(m.Notes) == 0 {
		return m.Text
	}
	var b strings.Builder
	b.WriteString(m.Text)
	for _, n := range m.Notes {
		if n.Text != "" {
			b.WriteString("\n  note: ")
			b.WriteString(n.Text)
		}
	}
	return b.String()
}
