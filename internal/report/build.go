package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/conneroisu/tspack/internal/bundler"
	"github.com/conneroisu/tspack/internal/errors"
	"github.com/conneroisu/tspack/internal/toolchain"
)

// JobSummary is one job's line in a build summary.
type JobSummary struct {
	ID        string            `json:"id" yaml:"id"`
	Output    string            `json:"output" yaml:"output"`
	Format    string            `json:"format" yaml:"format"`
	Env       string            `json:"env" yaml:"env"`
	Bytes     int               `json:"bytes" yaml:"bytes"`
	Duration  time.Duration     `json:"duration_ns" yaml:"duration_ns"`
	OK        bool              `json:"ok" yaml:"ok"`
	Cancelled bool              `json:"cancelled,omitempty" yaml:"cancelled,omitempty"`
	Errors    []string          `json:"errors,omitempty" yaml:"errors,omitempty"`
	Warnings  []string          `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Analysis  *bundler.Analysis `json:"analysis,omitempty" yaml:"analysis,omitempty"`
}

// BuildSummary is the printable outcome of a build.
type BuildSummary struct {
	Jobs         []JobSummary  `json:"jobs" yaml:"jobs"`
	Shims        []string      `json:"shims,omitempty" yaml:"shims,omitempty"`
	Declarations []string      `json:"declarations,omitempty" yaml:"declarations,omitempty"`
	FailedJobs   []string      `json:"failed_jobs,omitempty" yaml:"failed_jobs,omitempty"`
	Duration     time.Duration `json:"duration_ns" yaml:"duration_ns"`
	Success      bool          `json:"success" yaml:"success"`
}

// Summarize builds a summary from job results in job order.
func Summarize(results []bundler.Result, shims []string, decl *toolchain.DeclarationResult, duration time.Duration) *BuildSummary {
	s := &BuildSummary{Shims: shims, Duration: duration, Success: true}
	collected := bundler.Collect(results)
	for _, res := range results {
		js := JobSummary{
			ID:        res.Job.ID(),
			Output:    res.Job.OutputFile,
			Format:    string(res.Job.Entry.Format),
			Env:       string(res.Job.Env),
			Duration:  res.Duration,
			OK:        !res.Failed(),
			Cancelled: res.Cancelled,
			Analysis:  res.Analysis,
		}
		for _, out := range res.Outputs {
			if strings.HasSuffix(out.Path, ".map") {
				continue
			}
			js.Bytes += out.Bytes
		}
		for _, e := range collected.ForJob(js.ID) {
			switch {
			case e.Severity < errors.ErrorSeverityError:
				js.Warnings = append(js.Warnings, e.Message)
			case !res.Cancelled:
				js.Errors = append(js.Errors, errors.FormatError(e))
			}
		}
		s.Jobs = append(s.Jobs, js)
	}
	s.FailedJobs = collected.FailedJobs()
	if collected.HasErrors() {
		s.Success = false
	}
	if decl != nil {
		for _, d := range decl.Diagnostics {
			s.Declarations = append(s.Declarations, strings.TrimSpace(d.FormatError()))
		}
		if decl.ExitCode != 0 {
			s.Success = false
		}
	}
	return s
}

// PrintBuild writes the summary.
func (r *Reporter) PrintBuild(s *BuildSummary) error {
	if r.Structured() {
		return r.Print(s)
	}

	rows := make([][]string, 0, len(s.Jobs))
	for _, j := range s.Jobs {
		env := j.Env
		if env == "none" {
			env = ""
		}
		size := ""
		if j.Bytes > 0 {
			size = humanize.Bytes(uint64(j.Bytes))
		}
		rows = append(rows, []string{
			j.Output, j.Format, env, size,
			j.Duration.Round(time.Millisecond).String(),
			r.status(j.OK, j.Cancelled),
		})
	}
	r.table([]string{"Output", "Format", "Env", "Size", "Time", "Status"}, rows)

	for _, j := range s.Jobs {
		for _, w := range j.Warnings {
			r.Line("warning [%s]: %s", j.ID, w)
		}
		for _, e := range j.Errors {
			r.Line("error [%s]: %s", j.ID, e)
		}
	}
	for _, d := range s.Declarations {
		r.Line("%s", d)
	}
	for _, shim := range s.Shims {
		r.Line("wrote %s", shim)
	}

	if failed := len(s.FailedJobs); failed > 0 {
		r.Line("%d of %d jobs failed in %s", failed, len(s.Jobs), s.Duration.Round(time.Millisecond))
	} else {
		r.Line("built %s in %s", plural(len(s.Jobs), "job"), s.Duration.Round(time.Millisecond))
	}
	return nil
}

// PrintAnalysis lists the largest inputs of each job.
func (r *Reporter) PrintAnalysis(s *BuildSummary) {
	if r.Structured() {
		return
	}
	var rows [][]string
	for _, j := range s.Jobs {
		if j.Analysis == nil {
			continue
		}
		for _, in := range j.Analysis.TopInputs {
			rows = append(rows, []string{
				j.Output, in.Path,
				humanize.Bytes(uint64(in.BytesInOutput)),
				fmt.Sprintf("%.1f%%", in.Percentage),
			})
		}
	}
	if len(rows) > 0 {
		r.table([]string{"Output", "Input", "Size", "Share"}, rows)
	}
}

// PrintSession writes the job totals of a watch session.
func (r *Reporter) PrintSession(m bundler.MetricsSnapshot) error {
	if r.Structured() {
		return r.Print(m)
	}
	r.Line("session: %s, %s (%.0f%% succeeded), %s written",
		plural(int(m.Runs), "build"), plural(int(m.TotalJobs), "job"),
		m.SuccessRate(), humanize.Bytes(uint64(m.BytesWritten)))
	return nil
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%s %ss", humanize.Comma(int64(n)), word)
}
