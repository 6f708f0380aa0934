package bundler

import (
	"sync"
	"time"
)

// Metrics tracks job outcomes across runs. A build service shares one
// instance with every runner it creates, so in watch mode it covers the
// whole session.
type Metrics struct {
	mutex sync.RWMutex
	snap  MetricsSnapshot
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Runs            int64         `json:"runs" yaml:"runs"`
	TotalJobs       int64         `json:"total_jobs" yaml:"total_jobs"`
	SuccessfulJobs  int64         `json:"successful_jobs" yaml:"successful_jobs"`
	FailedJobs      int64         `json:"failed_jobs" yaml:"failed_jobs"`
	CancelledJobs   int64         `json:"cancelled_jobs" yaml:"cancelled_jobs"`
	BytesWritten    int64         `json:"bytes_written" yaml:"bytes_written"`
	AverageDuration time.Duration `json:"average_duration_ns" yaml:"average_duration_ns"`
	TotalDuration   time.Duration `json:"total_duration_ns" yaml:"total_duration_ns"`
}

// NewMetrics creates a new metrics tracker
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordRun counts one runner invocation.
func (m *Metrics) RecordRun() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.snap.Runs++
}

// RecordBuild records a job result
func (m *Metrics) RecordBuild(result Result) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	s := &m.snap
	s.TotalJobs++
	s.TotalDuration += result.Duration

	switch {
	case result.Cancelled:
		s.CancelledJobs++
	case len(result.Errors) > 0:
		s.FailedJobs++
	default:
		s.SuccessfulJobs++
		for _, out := range result.Outputs {
			s.BytesWritten += int64(out.Bytes)
		}
	}

	s.AverageDuration = s.TotalDuration / time.Duration(s.TotalJobs)
}

// Snapshot returns a copy of the current metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.snap
}

// SuccessRate returns the share of finished jobs that succeeded, as a
// percentage. Cancelled jobs are not counted.
func (s MetricsSnapshot) SuccessRate() float64 {
	finished := s.SuccessfulJobs + s.FailedJobs
	if finished == 0 {
		return 0.0
	}
	return float64(s.SuccessfulJobs) / float64(finished) * 100.0
}
