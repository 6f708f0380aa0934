package bundler

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/conneroisu/tspack/internal/buildcfg"
)

// ProgressFile is the cache file name inside the cache directory.
const ProgressFile = "progress.json"

// ProgressCache remembers how long each job took last time so the next run
// can print an estimate. It only affects messages: a missing, corrupt or
// unwritable cache is ignored.
type ProgressCache struct {
	path      string
	mu        sync.Mutex
	durations map[string]time.Duration
	dirty     bool
}

type progressFile struct {
	Version   int              `json:"version"`
	Durations map[string]int64 `json:"durations_ms"`
}

// LoadProgress reads the cache from dir. It never fails.
func LoadProgress(dir string) *ProgressCache {
	pc := &ProgressCache{
		path:      filepath.Join(dir, ProgressFile),
		durations: make(map[string]time.Duration),
	}
	data, err := os.ReadFile(pc.path)
	if err != nil {
		return pc
	}
	var f progressFile
	if err := json.Unmarshal(data, &f); err != nil || f.Version != 1 {
		return pc
	}
	for id, ms := range f.Durations {
		pc.durations[id] = time.Duration(ms) * time.Millisecond
	}
	return pc
}

// Record stores the duration of a successful job.
func (pc *ProgressCache) Record(jobID string, d time.Duration) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.durations[jobID] = d
	pc.dirty = true
}

// Estimate predicts the wall time of running jobs with the given
// parallelism. Jobs never seen before contribute nothing.
func (pc *ProgressCache) Estimate(jobs []buildcfg.BuildJob, concurrency int) time.Duration {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	if concurrency < 1 {
		concurrency = 1
	}
	var total, longest time.Duration
	for _, j := range jobs {
		d := pc.durations[j.ID()]
		total += d
		if d > longest {
			longest = d
		}
	}
	estimate := total / time.Duration(concurrency)
	if longest > estimate {
		estimate = longest
	}
	return estimate
}

// Save writes the cache if anything was recorded.
func (pc *ProgressCache) Save() error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if !pc.dirty {
		return nil
	}

	f := progressFile{Version: 1, Durations: make(map[string]int64, len(pc.durations))}
	for id, d := range pc.durations {
		f.Durations[id] = d.Milliseconds()
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(pc.path), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(pc.path, data, 0644); err != nil {
		return err
	}
	pc.dirty = false
	return nil
}
