package bundler

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	"github.com/conneroisu/tspack/internal/buildcfg"
	"github.com/conneroisu/tspack/internal/errors"
	"github.com/conneroisu/tspack/internal/logging"
)

// Callback is called when a job completes
type Callback func(result Result)

// Runner executes jobs concurrently. A failing job never cancels its
// siblings; the caller decides pass or fail after all jobs settle.
type Runner struct {
	bundler     Bundler
	concurrency int
	logger      logging.Logger
	metrics     *Metrics
	progress    *ProgressCache
	callbacks   []Callback
}

// NewRunner creates a runner. concurrency <= 0 uses GOMAXPROCS.
func NewRunner(b Bundler, concurrency int, logger logging.Logger) *Runner {
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	return &Runner{
		bundler:     b,
		concurrency: concurrency,
		logger:      logger.WithComponent("runner"),
		metrics:     NewMetrics(),
	}
}

// WithProgress attaches a progress cache that records job durations.
func (r *Runner) WithProgress(pc *ProgressCache) *Runner {
	r.progress = pc
	return r
}

// AddCallback registers a completion callback. Callbacks run on the job's
// goroutine and must be safe for concurrent use.
func (r *Runner) AddCallback(cb Callback) {
	r.callbacks = append(r.callbacks, cb)
}

// WithMetrics makes the runner record into m instead of its own tracker.
func (r *Runner) WithMetrics(m *Metrics) *Runner {
	r.metrics = m
	return r
}


type indexedResult struct {
	index  int
	result Result
}

// Run builds all jobs and returns their results in job order.
func (r *Runner) Run(ctx context.Context, jobs []buildcfg.BuildJob) []Result {
	r.metrics.RecordRun()
	if r.progress != nil {
		if eta := r.progress.Estimate(jobs, r.concurrency); eta > 0 {
			r.logger.Info(ctx, "Starting build", "jobs", len(jobs), "estimate", eta.Round(time.Millisecond).String())
		}
	}

	p := pool.NewWithResults[indexedResult]().WithMaxGoroutines(r.concurrency)
	for i, job := range jobs {
		p.Go(func() indexedResult {
			res := r.buildOne(ctx, job)
			r.metrics.RecordBuild(res)
			if r.progress != nil && !res.Failed() {
				r.progress.Record(job.ID(), res.Duration)
			}
			for _, cb := range r.callbacks {
				cb(res)
			}
			return indexedResult{index: i, result: res}
		})
	}

	results := make([]Result, len(jobs))
	for _, ir := range p.Wait() {
		results[ir.index] = ir.result
	}

	if r.progress != nil {
		if err := r.progress.Save(); err != nil {
			r.logger.Debug(ctx, "Progress cache not saved", "error", err.Error())
		}
	}
	return results
}

// buildOne converts a panicking bundler into a failed result for that job.
func (r *Runner) buildOne(ctx context.Context, job buildcfg.BuildJob) Result {
	var res Result
	start := time.Now()
	recovered := panics.Try(func() {
		res = r.bundler.Build(ctx, job)
	})
	if recovered != nil {
		r.logger.Error(ctx, recovered.AsError(), "Bundler panicked", "job", job.ID())
		return Result{
			Job:      job,
			Duration: time.Since(start),
			Errors: []*errors.BuildError{{
				Job:      job.ID(),
				Message:  fmt.Sprintf("internal error: %v", recovered.Value),
				Severity: errors.ErrorSeverityFatal,
			}},
		}
	}
	return res
}

// Collect adds every result's errors and warnings to a collector keyed by
// job. A cancelled job is recorded as failed.
func Collect(results []Result) *errors.ErrorCollector {
	c := errors.NewErrorCollector()
	for _, res := range results {
		for _, e := range res.Errors {
			c.Add(e)
		}
		for _, w := range res.Warnings {
			c.Add(w)
		}
		if res.Cancelled {
			c.Add(&errors.BuildError{Job: res.Job.ID(), Message: "cancelled", Severity: errors.ErrorSeverityError})
		}
	}
	return c
}
