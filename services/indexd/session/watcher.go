// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ListFileName is the cmake listfile whose writes trigger re-indexing.
const ListFileName = "CMakeLists.txt"

// ConfigChangeHandler is called with the debounced batch of changed
// listfile paths.
type ConfigChangeHandler func(paths []string)

// ConfigWatcherOptions configures a ConfigWatcher.
type ConfigWatcherOptions struct {
	// DebounceWindow is how long to wait for further writes before
	// triggering. Default 500ms; editors often write twice per save.
	DebounceWindow time.Duration

	// BufferSize is the size of the change channel. Default 256.
	BufferSize int
}

// DefaultConfigWatcherOptions returns the defaults.
func DefaultConfigWatcherOptions() ConfigWatcherOptions {
	return ConfigWatcherOptions{
		DebounceWindow: 500 * time.Millisecond,
		BufferSize:     256,
	}
}

// ConfigWatcher watches a project tree for CMakeLists.txt writes.
//
// Description:
//
//	Watches the root recursively but reacts only to listfile events.
//	The build directory is excluded; configure runs synthesize listfiles
//	under CMakeFiles and watching those would make every refresh trigger
//	the next one.
//
// Thread Safety:
//
//	Safe for concurrent use. The handler runs on a single goroutine.
type ConfigWatcher struct {
	root     string
	buildDir string
	watcher  *fsnotify.Watcher
	handler  ConfigChangeHandler
	debounce time.Duration

	changes  chan string
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.RWMutex
	watching bool
}

// skip directories that never hold project listfiles
var ignoredDirNames = []string{".git", ".hg", ".svn", "node_modules", "__pycache__", "CMakeFiles"}

// NewConfigWatcher creates a watcher for the project at root.
//
// Inputs:
//
//	root - Project root to watch recursively.
//	buildDir - Build directory to exclude from watching.
//	handler - Called with batched listfile paths after the debounce.
//	opts - Optional configuration; nil uses defaults.
func NewConfigWatcher(root, buildDir string, handler ConfigChangeHandler, opts *ConfigWatcherOptions) (*ConfigWatcher, error) {
	if opts == nil {
		defaults := DefaultConfigWatcherOptions()
		opts = &defaults
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &ConfigWatcher{
		root:     root,
		buildDir: buildDir,
		watcher:  watcher,
		handler:  handler,
		debounce: opts.DebounceWindow,
		changes:  make(chan string, opts.BufferSize),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. Spawns the event and debounce goroutines; both
// exit on Stop or context cancellation.
func (w *ConfigWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = true
	w.mu.Unlock()

	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	go w.processEvents(ctx)
	go w.debounceLoop(ctx)

	return nil
}

// Stop stops the watcher. Safe to call more than once.
func (w *ConfigWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.watcher.Close()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

// IsWatching reports whether the watcher is active.
func (w *ConfigWatcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.watching
}

func (w *ConfigWatcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if w.shouldIgnore(path) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

func (w *ConfigWatcher) shouldIgnore(path string) bool {
	if w.buildDir != "" && w.buildDir != w.root && strings.HasPrefix(path, w.buildDir) {
		return true
	}
	base := filepath.Base(path)
	for _, name := range ignoredDirNames {
		if base == name {
			return true
		}
	}
	return false
}

func (w *ConfigWatcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if event.Has(fsnotify.Create) {
				if isDir(event.Name) && !w.shouldIgnore(event.Name) {
					_ = w.watcher.Add(event.Name)
					continue
				}
			}

			if filepath.Base(event.Name) != ListFileName || w.shouldIgnore(event.Name) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			select {
			case w.changes <- event.Name:
			default:
				// Buffer full; the pending batch already forces a refresh.
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error",
				slog.String("root", w.root),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (w *ConfigWatcher) debounceLoop(ctx context.Context) {
	var batch []string
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(batch) > 0 {
			deduped := dedupePaths(batch)
			if w.handler != nil {
				w.handler(deduped)
			}
			batch = batch[:0]
		}
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-w.done:
			flush()
			return
		case path := <-w.changes:
			batch = append(batch, path)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}
		case <-timerC:
			flush()
		}
	}
}

func dedupePaths(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
