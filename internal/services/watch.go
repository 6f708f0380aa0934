package services

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/conneroisu/tspack/internal/config"
	"github.com/conneroisu/tspack/internal/entry"
	"github.com/conneroisu/tspack/internal/errors"
	"github.com/conneroisu/tspack/internal/logging"
	"github.com/conneroisu/tspack/internal/manifest"
	"github.com/conneroisu/tspack/internal/watcher"
)

// WatchService rebuilds a project when its files change. The resolved job
// list is cached until package.json changes; a change arriving while a
// build runs cancels that build before it writes output and starts a new
// one.
type WatchService struct {
	build   *BuildService
	config  *config.Config
	logger  logging.Logger
	errs    *errors.ErrorHandler
	machine *watcher.Machine

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	first  bool

	planMu        sync.Mutex
	plan          *Plan
	manifestDirty bool

	onBuild      []func(*BuildResult, error)
	onTransition []func(watcher.Transition)
}

// NewWatchService creates a watch service around a build service.
func NewWatchService(build *BuildService, cfg *config.Config, logger logging.Logger) *WatchService {
	s := &WatchService{
		build:  build,
		config: cfg,
		logger: logger.WithComponent("watch"),
		first:  true,
	}
	s.errs = errors.NewErrorHandler(s.logger)
	s.machine = watcher.NewMachine(func(t watcher.Transition) {
		s.logger.Debug(context.Background(), "Watch state changed", "from", t.From.String(), "to", t.To.String(), "trigger", t.Trigger.String())
		for _, fn := range s.onTransition {
			fn(t)
		}
	})
	return s
}

// OnBuild registers a callback for every build that was not superseded.
// Register callbacks before Start.
func (s *WatchService) OnBuild(fn func(*BuildResult, error)) {
	s.onBuild = append(s.onBuild, fn)
}

// OnTransition registers a callback for state changes. It runs while the
// state machine is locked and must not fire triggers.
func (s *WatchService) OnTransition(fn func(watcher.Transition)) {
	s.onTransition = append(s.onTransition, fn)
}

// State returns the current watch state.
func (s *WatchService) State() watcher.State {
	return s.machine.State()
}

// Watch builds once, then rebuilds on every debounced batch of changes
// until ctx is cancelled. A cancelled context is a clean shutdown and
// returns nil.
func (s *WatchService) Watch(ctx context.Context) error {
	root := s.build.inv.ProjectRoot
	fw, err := watcher.NewFileWatcher(root, s.config.Watch.Debounce, s.logger)
	if err != nil {
		return err
	}
	defer func() { _ = fw.Stop() }()

	ignore := s.config.Watch.Ignore
	if s.config.Build.OutDir != "" {
		ignore = append([]string{s.config.Build.OutDir}, ignore...)
	}
	if err := fw.Ignore(ignore...); err != nil {
		return err
	}
	fw.AddFilter(watcher.SourceFilter)
	fw.AddFilter(s.outsideOutput)
	fw.AddHandler(func(events []watcher.ChangeEvent) error {
		s.Changed(ctx, events)
		return nil
	})
	if err := fw.AddRecursive(root); err != nil {
		return err
	}
	if err := fw.Start(ctx); err != nil {
		return err
	}

	s.Start(ctx)
	s.logger.Info(ctx, "Watching for changes", "root", root)

	<-ctx.Done()
	s.Wait()
	return nil
}

// Start runs the initial build.
func (s *WatchService) Start(ctx context.Context) {
	if _, err := s.machine.Fire(watcher.TriggerStart); err != nil {
		s.logger.Debug(ctx, "Start ignored", "error", err.Error())
		return
	}
	s.launch(ctx)
}

// Changed handles a batch of file changes. A change to package.json makes
// the next build re-read the manifest.
func (s *WatchService) Changed(ctx context.Context, events []watcher.ChangeEvent) {
	if ctx.Err() != nil || len(events) == 0 {
		return
	}
	manifestPath := filepath.Join(s.build.inv.ProjectRoot, manifest.FileName)
	for _, ev := range events {
		if filepath.Clean(ev.Path) == manifestPath {
			s.planMu.Lock()
			s.manifestDirty = true
			s.planMu.Unlock()
			break
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.supersede()
	if _, err := s.machine.Fire(watcher.TriggerChange); err != nil {
		s.logger.Debug(ctx, "Change ignored", "error", err.Error())
		return
	}
	s.logger.Info(ctx, "Rebuilding", "changes", len(events))
	s.launchLocked(ctx)
}

// Wait cancels the running build, if any, and waits for it to stop.
func (s *WatchService) Wait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.supersede()
}

// supersede cancels the in-flight build and waits until it has returned.
// The cancelled build fires no completion trigger. Callers hold s.mu.
func (s *WatchService) supersede() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
}

func (s *WatchService) launch(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.launchLocked(ctx)
}

func (s *WatchService) launchLocked(ctx context.Context) {
	buildCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	clean := s.first && s.config.Build.Clean
	s.first = false
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		s.run(buildCtx, clean)
	}()
}

func (s *WatchService) run(ctx context.Context, clean bool) {
	plan, err := s.currentPlan(ctx)
	var res *BuildResult
	if err == nil {
		res, err = s.build.Execute(ctx, plan, clean)
	}
	if ctx.Err() != nil {
		return
	}

	trigger := watcher.TriggerJobsOK
	if err != nil || res == nil || !res.Success {
		trigger = watcher.TriggerJobFailed
	}
	s.errs.Handle(ctx, err)
	if _, ferr := s.machine.Fire(trigger); ferr != nil {
		s.logger.Debug(ctx, "Completion ignored", "error", ferr.Error())
	} else {
		_, _ = s.machine.Fire(watcher.TriggerSettle)
	}
	for _, fn := range s.onBuild {
		fn(res, err)
	}
}

// currentPlan returns the cached plan, re-resolving it when there is none
// or when package.json changed content.
func (s *WatchService) currentPlan(ctx context.Context) (*Plan, error) {
	s.planMu.Lock()
	plan, dirty := s.plan, s.manifestDirty
	s.manifestDirty = false
	s.planMu.Unlock()

	if plan != nil && dirty {
		m, err := manifest.Read(s.build.inv.ProjectRoot)
		if err != nil {
			s.dropPlan()
			return nil, err
		}
		if m.Checksum == plan.Manifest.Checksum {
			return plan, nil
		}
		s.logger.Info(ctx, "package.json changed, resolving entry points again")
		plan = nil
	}
	if plan != nil {
		return plan, nil
	}

	plan, err := s.build.Plan(ctx)
	if err != nil {
		s.dropPlan()
		return nil, err
	}
	s.planMu.Lock()
	s.plan = plan
	s.planMu.Unlock()
	return plan, nil
}

// outsideOutput rejects paths below the current plan's output directory.
// Before the first plan, the default output directory is assumed.
func (s *WatchService) outsideOutput(path string) bool {
	s.planMu.Lock()
	dir := entry.DefaultOutDir
	if s.plan != nil {
		dir = s.plan.OutDir
	}
	s.planMu.Unlock()
	if dir == "" {
		return true
	}
	rel, err := filepath.Rel(filepath.Join(s.build.inv.ProjectRoot, filepath.FromSlash(dir)), path)
	return err != nil || strings.HasPrefix(rel, "..")
}

func (s *WatchService) dropPlan() {
	s.planMu.Lock()
	s.plan = nil
	s.planMu.Unlock()
}
