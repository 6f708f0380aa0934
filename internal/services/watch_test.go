package services

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/tspack/internal/buildcfg"
	"github.com/conneroisu/tspack/internal/bundler"
	"github.com/conneroisu/tspack/internal/logging"
	"github.com/conneroisu/tspack/internal/testutils"
	"github.com/conneroisu/tspack/internal/watcher"
)

// blockingBundler blocks every job while block is set, until the job's
// context is cancelled.
type blockingBundler struct {
	recordingBundler
	block   atomic.Bool
	started chan struct{}
	once    sync.Once
}

func (b *blockingBundler) Build(ctx context.Context, job buildcfg.BuildJob) bundler.Result {
	if b.block.Load() {
		b.once.Do(func() { close(b.started) })
		<-ctx.Done()
		return bundler.Result{Job: job, Cancelled: true}
	}
	return b.recordingBundler.Build(ctx, job)
}

type watchHarness struct {
	svc    *WatchService
	builds chan *BuildResult
	errs   chan error

	mu          sync.Mutex
	transitions []watcher.Transition
}

func newWatchHarness(t *testing.T, root string, b bundler.Bundler) *watchHarness {
	t.Helper()
	cfg := testutils.CreateTestConfig(t)
	build := newBuildService(t, root, cfg).WithBundler(b)

	h := &watchHarness{
		svc:    NewWatchService(build, cfg, logging.NewNopLogger()),
		builds: make(chan *BuildResult, 16),
		errs:   make(chan error, 16),
	}
	h.svc.OnBuild(func(res *BuildResult, err error) {
		if err != nil {
			h.errs <- err
			return
		}
		h.builds <- res
	})
	h.svc.OnTransition(func(tr watcher.Transition) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.transitions = append(h.transitions, tr)
	})
	return h
}

func (h *watchHarness) next(t *testing.T) *BuildResult {
	t.Helper()
	select {
	case res := <-h.builds:
		return res
	case err := <-h.errs:
		t.Fatalf("build returned error: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for a build")
	}
	return nil
}

func (h *watchHarness) Transitions() []watcher.Transition {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]watcher.Transition(nil), h.transitions...)
}

func sourceChange(root string) []watcher.ChangeEvent {
	return []watcher.ChangeEvent{{Type: watcher.EventTypeModified, Path: filepath.Join(root, "src", "index.ts")}}
}

func manifestChange(root string) []watcher.ChangeEvent {
	return []watcher.ChangeEvent{{Type: watcher.EventTypeModified, Path: filepath.Join(root, "package.json")}}
}

func TestWatchServiceInitialBuildSettles(t *testing.T) {
	root := testutils.CreateLibraryProject(t)
	h := newWatchHarness(t, root, &recordingBundler{})
	ctx := context.Background()

	assert.Equal(t, watcher.StateIdle, h.svc.State())
	h.svc.Start(ctx)
	res := h.next(t)
	h.svc.Wait()

	assert.True(t, res.Success)
	assert.Equal(t, watcher.StateWatching, h.svc.State())
	assert.Equal(t, []watcher.Transition{
		{From: watcher.StateIdle, To: watcher.StateBuilding, Trigger: watcher.TriggerStart},
		{From: watcher.StateBuilding, To: watcher.StateSucceeded, Trigger: watcher.TriggerJobsOK},
		{From: watcher.StateSucceeded, To: watcher.StateWatching, Trigger: watcher.TriggerSettle},
	}, h.Transitions())
}

func TestWatchServiceFailedBuildKeepsWatching(t *testing.T) {
	root := testutils.CreateLibraryProject(t)
	fake := &recordingBundler{fail: func(j buildcfg.BuildJob) bool { return j.Env == buildcfg.EnvDevelopment }}
	h := newWatchHarness(t, root, fake)
	ctx := context.Background()

	h.svc.Start(ctx)
	res := h.next(t)
	h.svc.Wait()
	assert.False(t, res.Success)
	assert.Equal(t, watcher.StateWatching, h.svc.State())

	fake.mu.Lock()
	fake.fail = nil
	fake.mu.Unlock()

	h.svc.Changed(ctx, sourceChange(root))
	res = h.next(t)
	h.svc.Wait()
	assert.True(t, res.Success)
	assert.Equal(t, watcher.StateWatching, h.svc.State())
}

func TestWatchServiceReusesJobsUntilManifestChanges(t *testing.T) {
	root := testutils.CreateLibraryProject(t)
	fake := &recordingBundler{}
	h := newWatchHarness(t, root, fake)
	ctx := context.Background()

	h.svc.Start(ctx)
	first := h.next(t)
	h.svc.Wait()
	require.Len(t, first.Plan.Jobs, 3)

	// A new export is ignored while only sources change.
	manifest := map[string]any{}
	for k, v := range testutils.LibraryManifest {
		manifest[k] = v
	}
	manifest["exports"] = map[string]any{
		".":       map[string]any{"import": "./dist/index.js", "require": "./dist/index.cjs"},
		"./utils": map[string]any{"import": "./dist/utils.js"},
	}
	testutils.WritePackageJSON(t, root, manifest)
	testutils.WriteFile(t, root, "src/utils.ts", "export const one = 1\n")

	h.svc.Changed(ctx, sourceChange(root))
	second := h.next(t)
	h.svc.Wait()
	assert.Same(t, first.Plan, second.Plan)

	h.svc.Changed(ctx, manifestChange(root))
	third := h.next(t)
	h.svc.Wait()
	assert.NotSame(t, first.Plan, third.Plan)
	assert.Len(t, third.Plan.Jobs, 4)
}

func TestWatchServiceUnchangedManifestKeepsPlan(t *testing.T) {
	root := testutils.CreateLibraryProject(t)
	h := newWatchHarness(t, root, &recordingBundler{})
	ctx := context.Background()

	h.svc.Start(ctx)
	first := h.next(t)
	h.svc.Wait()

	// Rewriting identical content keeps the checksum.
	testutils.WritePackageJSON(t, root, testutils.LibraryManifest)
	h.svc.Changed(ctx, manifestChange(root))
	second := h.next(t)
	h.svc.Wait()
	assert.Same(t, first.Plan, second.Plan)
}

func TestWatchServiceSupersedesInFlightBuild(t *testing.T) {
	root := testutils.CreateLibraryProject(t)
	fake := &blockingBundler{started: make(chan struct{})}
	fake.block.Store(true)
	h := newWatchHarness(t, root, fake)
	ctx := context.Background()

	h.svc.Start(ctx)
	select {
	case <-fake.started:
	case <-time.After(10 * time.Second):
		t.Fatal("first build never started")
	}

	fake.block.Store(false)
	h.svc.Changed(ctx, sourceChange(root))
	res := h.next(t)
	h.svc.Wait()

	assert.True(t, res.Success)
	assert.Equal(t, watcher.StateWatching, h.svc.State())
	// The superseded build reported nothing.
	assert.Empty(t, h.builds)
	assert.Contains(t, h.Transitions(), watcher.Transition{
		From: watcher.StateBuilding, To: watcher.StateBuilding, Trigger: watcher.TriggerChange,
	})
}

func TestWatchServiceReportsPlanErrors(t *testing.T) {
	root := testutils.CreateTempProject(t, map[string]any{"name": "empty"})
	h := newWatchHarness(t, root, &recordingBundler{})
	ctx := context.Background()

	h.svc.Start(ctx)
	select {
	case err := <-h.errs:
		assert.Error(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for the failed build")
	}
	h.svc.Wait()
	assert.Equal(t, watcher.StateWatching, h.svc.State())

	// Adding the conventional source recovers on the next change.
	testutils.WriteFile(t, root, "src/index.ts", "export const ok = true\n")
	h.svc.Changed(ctx, sourceChange(root))
	res := h.next(t)
	assert.True(t, res.Success)
	h.svc.Wait()
}

func TestWatchServiceRebuildsOnFileChange(t *testing.T) {
	root := testutils.CreateLibraryProject(t)
	fake := &recordingBundler{}
	h := newWatchHarness(t, root, fake)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.svc.Watch(ctx) }()

	h.next(t)
	fake.Reset()

	// Output directory writes never trigger a rebuild.
	testutils.WriteFile(t, root, "dist/ignored.js", "x")
	testutils.WriteFile(t, root, "src/index.ts", testutils.LibrarySource+"\nexport const extra = 1\n")
	res := h.next(t)
	assert.True(t, res.Success)
	assert.GreaterOrEqual(t, len(fake.IDs()), 3)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestWatchServiceIgnoresPlannedOutputDirectory(t *testing.T) {
	root := testutils.CreateLibraryProject(t)
	cfg := testutils.CreateTestConfig(t)
	cfg.Build.OutDir = "lib"
	build := newBuildService(t, root, cfg).WithBundler(&recordingBundler{})
	svc := NewWatchService(build, cfg, logging.NewNopLogger())
	done := make(chan struct{}, 1)
	svc.OnBuild(func(*BuildResult, error) { done <- struct{}{} })

	svc.Start(context.Background())
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for a build")
	}
	svc.Wait()

	assert.False(t, svc.outsideOutput(filepath.Join(root, "lib", "index.js")))
	assert.True(t, svc.outsideOutput(filepath.Join(root, "dist", "index.js")))
	assert.True(t, svc.outsideOutput(filepath.Join(root, "src", "index.ts")))
}
