package errors

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrorSeverity represents the severity of an error
type ErrorSeverity int

const (
	ErrorSeverityInfo ErrorSeverity = iota
	ErrorSeverityWarning
	ErrorSeverityError
	ErrorSeverityFatal
)

// String returns the string representation of the severity
func (s ErrorSeverity) String() string {
	switch s {
	case ErrorSeverityInfo:
		return "info"
	case ErrorSeverityWarning:
		return "warning"
	case ErrorSeverityError:
		return "error"
	case ErrorSeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Location points at a position in a source file.
type Location struct {
	File     string
	Line     int
	Column   int
	LineText string
}

// String renders the location as file:line:column.
func (l Location) String() string {
	if l.Line == 0 {
		return l.File
	}
	if l.Column == 0 {
		return fmt.Sprintf("%s:%d", l.File, l.Line)
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// BuildError is a bundler failure for one job. Location is nil when the
// bundler could not attribute the failure to a source position.
type BuildError struct {
	Job      string
	Plugin   string
	Message  string
	Location *Location
	Severity ErrorSeverity
}

// Error implements the error interface
func (be *BuildError) Error() string {
	var b strings.Builder
	if be.Location != nil && be.Location.File != "" {
		b.WriteString(be.Location.String())
		b.WriteString(": ")
	}
	b.WriteString(be.Severity.String())
	b.WriteString(": ")
	if be.Plugin != "" {
		fmt.Fprintf(&b, "[plugin %s] ", be.Plugin)
	}
	b.WriteString(be.Message)
	return b.String()
}

// Frame renders the offending source line with a caret under the column.
func (be *BuildError) Frame() string {
	if be.Location == nil || be.Location.LineText == "" {
		return ""
	}
	gutter := fmt.Sprintf("%d | ", be.Location.Line)
	caret := strings.Repeat(" ", len(gutter)+max(be.Location.Column, 0)) + "^"
	return gutter + be.Location.LineText + "\n" + caret
}

// ErrorCollector collects per-job errors while jobs run concurrently. The
// pass/fail decision is made from it only after every job has settled.
type ErrorCollector struct {
	byJob map[string][]*BuildError
	other []error
	mutex sync.RWMutex
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		byJob: make(map[string][]*BuildError),
	}
}

// Add records a build error against its job.
func (ec *ErrorCollector) Add(err *BuildError) {
	if err == nil {
		return
	}
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.byJob[err.Job] = append(ec.byJob[err.Job], err)
}

// AddError adds a general error to the collector
func (ec *ErrorCollector) AddError(err error) {
	if err == nil {
		return
	}
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.other = append(ec.other, err)
}

// ForJob returns the errors attributed to one job.
func (ec *ErrorCollector) ForJob(job string) []*BuildError {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	result := make([]*BuildError, len(ec.byJob[job]))
	copy(result, ec.byJob[job])
	return result
}

// FailedJobs returns the ids of jobs with at least one error-level entry,
// sorted for stable reporting.
func (ec *ErrorCollector) FailedJobs() []string {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	var jobs []string
	for job, errs := range ec.byJob {
		for _, e := range errs {
			if e.Severity >= ErrorSeverityError {
				jobs = append(jobs, job)
				break
			}
		}
	}
	sort.Strings(jobs)
	return jobs
}

// HasErrors returns true if any error-level entry was recorded
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	other := len(ec.other)
	ec.mutex.RUnlock()
	return other > 0 || len(ec.FailedJobs()) > 0
}

// Err joins everything collected into one error, or nil.
func (ec *ErrorCollector) Err() error {
	if !ec.HasErrors() {
		return nil
	}
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()

	var errs []error
	jobs := make([]string, 0, len(ec.byJob))
	for job := range ec.byJob {
		jobs = append(jobs, job)
	}
	sort.Strings(jobs)
	for _, job := range jobs {
		for _, e := range ec.byJob[job] {
			if e.Severity >= ErrorSeverityError {
				errs = append(errs, e)
			}
		}
	}
	errs = append(errs, ec.other...)
	return CombineErrors(errs...)
}
