package services

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/wardenlabs/warden/internal/deploy"
	"github.com/wardenlabs/warden/internal/logger"
	"github.com/wardenlabs/warden/internal/metrics"
	"github.com/wardenlabs/warden/internal/models"
)

// driftSettle batches the burst of events an editor write produces into a
// single rebuild.
const driftSettle = 2 * time.Second

// DriftWatcher observes the managed artifacts and triggers a rebuild when
// something other than the engine edits them. Combined with full-rebuild
// semantics this makes hand edits and truncation self-healing.
type DriftWatcher struct {
	registry   *deploy.Registry
	dispatcher RebuildDispatcher
	notifier   *NotificationService

	mu         sync.Mutex
	rebuilding bool
	suppress   map[string]time.Time
	watcher    *fsnotify.Watcher
}

func NewDriftWatcher(registry *deploy.Registry, dispatcher RebuildDispatcher, notifier *NotificationService) *DriftWatcher {
	return &DriftWatcher{
		registry:   registry,
		dispatcher: dispatcher,
		notifier:   notifier,
		suppress:   map[string]time.Time{},
	}
}

// Suppress marks a path as engine-written for a short window so the
// engine's own writes do not count as drift. Registered as the deploy
// write observer, which fires just before each write lands.
func (w *DriftWatcher) Suppress(path string) {
	w.mu.Lock()
	w.suppress[path] = time.Now().Add(5 * time.Second)
	w.mu.Unlock()
}

func (w *DriftWatcher) suppressed(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	until, ok := w.suppress[path]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(w.suppress, path)
		return false
	}
	return true
}

// Start begins watching the parent directories of every known artifact.
// Directories are watched rather than files because rename-style writes
// replace the inode a file watch is bound to.
func (w *DriftWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher

	dirs := map[string]bool{}
	artifactSet := map[string]bool{}
	for _, platform := range w.registry.Platforms() {
		deployer, _ := w.registry.Get(platform)
		for _, artifact := range deployer.Artifacts() {
			artifactSet[artifact] = true
			dirs[filepath.Dir(artifact)] = true
		}
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			logger.Log().Warnf("drift watch skipped for %s: %v", dir, err)
		}
	}

	deploy.OnWrite(w.Suppress)

	go w.loop(ctx, artifactSet)
	return nil
}

func (w *DriftWatcher) Close() error {
	deploy.OnWrite(nil)
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}

func (w *DriftWatcher) loop(ctx context.Context, artifacts map[string]bool) {
	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !artifacts[event.Name] || w.suppressed(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			metrics.IncDriftEvent()
			logger.WithFields(map[string]interface{}{"artifact": event.Name}).
				Warn("external edit on managed artifact")
			if w.notifier != nil {
				w.notifier.Create(models.NotificationTypeWarning, "",
					"Managed artifact modified externally",
					event.Name+" changed outside the engine; scheduling rebuild")
			}
			if timer == nil {
				timer = time.AfterFunc(driftSettle, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(driftSettle)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Log().Warnf("drift watcher error: %v", err)
		case <-fire:
			timer = nil
			w.rebuild(ctx)
		}
	}
}

func (w *DriftWatcher) rebuild(ctx context.Context) {
	w.mu.Lock()
	if w.rebuilding {
		w.mu.Unlock()
		return
	}
	w.rebuilding = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.rebuilding = false
		w.mu.Unlock()
	}()

	if err := w.dispatcher.RebuildAll(ctx); err != nil {
		logger.Log().Error("drift-triggered rebuild failed: " + err.Error())
	}
}
