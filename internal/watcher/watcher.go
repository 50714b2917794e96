// Package watcher monitors a project's doc_root and reacts to document
// changes: it flags the project stale and can schedule an extract run.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/genglossary/genglossary/internal/pipeline"
	"github.com/genglossary/genglossary/internal/runner"
	"github.com/genglossary/genglossary/internal/types"
)

// debounceWindow coalesces editor save bursts into one trigger.
const debounceWindow = 2 * time.Second

// Watcher watches one project's doc_root.
type Watcher struct {
	root        string
	manager     *runner.Manager
	autoExtract bool
	markStale   func()
	log         zerolog.Logger

	mu      sync.Mutex
	pending *time.Timer
}

// New builds a watcher. markStale may be nil; it is invoked once per
// debounced change burst before any run is scheduled.
func New(root string, manager *runner.Manager, autoExtract bool, markStale func(), logger zerolog.Logger) *Watcher {
	return &Watcher{
		root:        root,
		manager:     manager,
		autoExtract: autoExtract,
		markStale:   markStale,
		log:         logger,
	}
}

// Run watches until ctx is cancelled. Subdirectories present at start (and
// created later) are watched recursively.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fw.Close() }()

	if err := w.addRecursive(fw, w.root); err != nil {
		return err
	}
	w.log.Info().Str("doc_root", w.root).Msg("watching doc_root")

	for {
		select {
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create != 0 {
				// New directories need their own watch.
				if err := w.addRecursive(fw, event.Name); err != nil {
					w.log.Debug().Err(err).Str("path", event.Name).Msg("watch add skipped")
				}
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !pipeline.EligibleDocument(event.Name) {
				continue
			}
			w.log.Debug().Str("path", event.Name).Msg("document change detected")
			w.trigger(ctx)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("watcher error")

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *Watcher) addRecursive(fw *fsnotify.Watcher, root string) error {
	info, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	return filepath.WalkDir(info, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return err
		}
		if name := d.Name(); name != "." && len(name) > 0 && name[0] == '.' {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
}

// trigger debounces change bursts, then flags the project stale and, when
// auto-extract is on, schedules an extract run. A run already in flight is
// logged and dropped.
func (w *Watcher) trigger(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(debounceWindow, func() {
		if ctx.Err() != nil {
			return
		}
		if w.markStale != nil {
			w.markStale()
		}
		if !w.autoExtract {
			return
		}
		run, err := w.manager.StartRun(ctx, types.ScopeExtract, "watcher")
		switch {
		case err == nil:
			w.log.Info().Int64("run_id", run.ID).Msg("auto-extract run scheduled")
		case errors.Is(err, types.ErrAlreadyRunning):
			w.log.Debug().Msg("auto-extract skipped, a run is already active")
		default:
			w.log.Warn().Err(err).Msg("auto-extract start failed")
		}
	})
}
