// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cmakekit/cmakeindex/services/indexd/config"
)

// refreshTimeout bounds a watcher-triggered re-index.
const refreshTimeout = 2 * time.Minute

// EventType classifies a session lifecycle event.
type EventType string

const (
	// EventOpened fires after a session is opened and first indexed.
	EventOpened EventType = "opened"

	// EventClosed fires after a session is closed.
	EventClosed EventType = "closed"

	// EventRefreshed fires after an explicit re-index.
	EventRefreshed EventType = "refreshed"

	// EventInvalidated fires after a watcher-triggered re-index.
	EventInvalidated EventType = "invalidated"
)

// Event is a session lifecycle notification.
type Event struct {
	Type       EventType `json:"type"`
	RootDir    string    `json:"root_dir"`
	BuildDir   string    `json:"build_dir"`
	Generation int64     `json:"generation"`
	UnixMilli  int64     `json:"time_unix_milli"`
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	// WatchConfigFiles re-indexes sessions when their CMakeLists.txt
	// files change. Default true.
	WatchConfigFiles bool

	// DebounceWindow is handed to each session's watcher.
	DebounceWindow time.Duration
}

// RegistryOption mutates RegistryOptions.
type RegistryOption func(*RegistryOptions)

// DefaultRegistryOptions returns the defaults.
func DefaultRegistryOptions() RegistryOptions {
	return RegistryOptions{
		WatchConfigFiles: true,
		DebounceWindow:   500 * time.Millisecond,
	}
}

// WithoutWatcher disables listfile watching, for tests and one-shot
// tooling.
func WithoutWatcher() RegistryOption {
	return func(o *RegistryOptions) { o.WatchConfigFiles = false }
}

// WithDebounceWindow overrides the watcher debounce window.
func WithDebounceWindow(d time.Duration) RegistryOption {
	return func(o *RegistryOptions) { o.DebounceWindow = d }
}

// OpenRequest describes the session to open.
type OpenRequest struct {
	// RootDir is the project root. Required.
	RootDir string

	// BuildDir overrides discovery. Empty means: last used directory for
	// this root, else the first configured candidate with a cache, else
	// the default candidate (created on demand).
	BuildDir string

	// CacheArgs are -D definitions passed on every configure.
	CacheArgs map[string]string
}

// Registry hands out sessions keyed by build directory.
//
// Thread Safety:
//
//	Safe for concurrent use. Concurrent opens of the same build
//	directory are deduplicated; only one pipeline runs.
type Registry struct {
	cfg  *config.Config
	opts RegistryOptions

	mu       sync.RWMutex
	sessions map[string]*Session
	used     map[string]string

	flight singleflight.Group

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int

	opens int64
	hits  int64
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg *config.Config, opts ...RegistryOption) *Registry {
	options := DefaultRegistryOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &Registry{
		cfg:      cfg,
		opts:     options,
		sessions: make(map[string]*Session),
		used:     make(map[string]string),
		subs:     make(map[int]chan Event),
	}
}

// Open returns the session for a build directory, creating and indexing
// it when none exists.
//
// Description:
//
//	The fast path is a map hit. On miss, exactly one caller per build
//	directory acquires the build lock, spawns the cmake pipeline, and
//	registers the session; the rest share the result. The root's build
//	directory choice is remembered for subsequent discovery.
func (r *Registry) Open(ctx context.Context, req OpenRequest) (*Session, error) {
	if ctx == nil {
		return nil, fmt.Errorf("Open: ctx must not be nil")
	}
	start := time.Now()

	rootDir, err := filepath.Abs(req.RootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	buildDir := req.BuildDir
	if buildDir == "" {
		buildDir = r.resolveBuildDir(rootDir)
	} else if buildDir, err = filepath.Abs(buildDir); err != nil {
		return nil, fmt.Errorf("resolve build dir: %w", err)
	}

	if s, ok := r.Get(buildDir); ok {
		atomic.AddInt64(&r.hits, 1)
		return s, nil
	}

	result, err, _ := r.flight.Do(buildDir, func() (interface{}, error) {
		// Re-check under the flight; a racing open may have won.
		if s, ok := r.Get(buildDir); ok {
			return s, nil
		}
		return r.openSession(ctx, rootDir, buildDir, req.CacheArgs)
	})
	if err != nil {
		recordOpen(ctx, time.Since(start), false)
		return nil, err
	}

	recordOpen(ctx, time.Since(start), true)
	return result.(*Session), nil
}

// openSession performs the slow path under singleflight.
func (r *Registry) openSession(ctx context.Context, rootDir, buildDir string, cacheArgs map[string]string) (*Session, error) {
	if err := os.MkdirAll(buildDir, 0755); err != nil {
		return nil, fmt.Errorf("create build dir: %w", err)
	}

	lock, err := AcquireBuildLock(buildDir)
	if err != nil {
		return nil, err
	}

	s := newSession(r.cfg, rootDir, buildDir, cacheArgs)
	s.lock = lock

	if err := s.Refresh(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}

	if r.opts.WatchConfigFiles {
		if err := r.startWatcher(s); err != nil {
			slog.Warn("config watcher unavailable, sessions must be refreshed manually",
				slog.String("root_dir", rootDir),
				slog.String("error", err.Error()),
			)
		}
	}

	r.mu.Lock()
	r.sessions[buildDir] = s
	r.used[rootDir] = buildDir
	r.mu.Unlock()

	atomic.AddInt64(&r.opens, 1)
	recordActive(context.Background(), 1)
	r.publish(Event{
		Type:       EventOpened,
		RootDir:    rootDir,
		BuildDir:   buildDir,
		Generation: s.Generation(),
		UnixMilli:  time.Now().UnixMilli(),
	})
	return s, nil
}

// startWatcher wires a listfile watcher to session invalidation.
func (r *Registry) startWatcher(s *Session) error {
	opts := DefaultConfigWatcherOptions()
	opts.DebounceWindow = r.opts.DebounceWindow

	watcher, err := NewConfigWatcher(s.RootDir(), s.BuildDir(), func(paths []string) {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()

		slog.Info("listfiles changed, re-indexing",
			slog.String("build_dir", s.BuildDir()),
			slog.Int("changed", len(paths)),
		)
		if err := s.Refresh(ctx); err != nil {
			slog.Error("watcher-triggered re-index failed",
				slog.String("build_dir", s.BuildDir()),
				slog.String("error", err.Error()),
			)
			return
		}
		r.publish(Event{
			Type:       EventInvalidated,
			RootDir:    s.RootDir(),
			BuildDir:   s.BuildDir(),
			Generation: s.Generation(),
			UnixMilli:  time.Now().UnixMilli(),
		})
	}, &opts)
	if err != nil {
		return err
	}
	if err := watcher.Start(context.Background()); err != nil {
		watcher.Stop()
		return err
	}
	s.watcher = watcher
	return nil
}

// resolveBuildDir picks a build directory for a root: last used, then
// discovered, then the default candidate.
func (r *Registry) resolveBuildDir(rootDir string) string {
	r.mu.RLock()
	used, ok := r.used[rootDir]
	r.mu.RUnlock()
	if ok {
		return used
	}
	if dir := DiscoverBuildDir(rootDir, r.cfg.Discovery.BuildDirs); dir != "" {
		return dir
	}
	return DefaultBuildDir(rootDir, r.cfg.Discovery.BuildDirs)
}

// ForFile opens the session owning a file, discovering its project root
// first.
func (r *Registry) ForFile(ctx context.Context, path string) (*Session, error) {
	rootDir, err := ProjectRoot(path, r.cfg.Discovery.RootFiles)
	if err != nil {
		return nil, err
	}
	return r.Open(ctx, OpenRequest{RootDir: rootDir})
}

// Get returns the open session for a build directory.
func (r *Registry) Get(buildDir string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[buildDir]
	return s, ok
}

// Refresh re-indexes an open session.
func (r *Registry) Refresh(ctx context.Context, buildDir string) error {
	s, ok := r.Get(buildDir)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, buildDir)
	}
	if err := s.Refresh(ctx); err != nil {
		return err
	}
	r.publish(Event{
		Type:       EventRefreshed,
		RootDir:    s.RootDir(),
		BuildDir:   s.BuildDir(),
		Generation: s.Generation(),
		UnixMilli:  time.Now().UnixMilli(),
	})
	return nil
}

// Close shuts a session down and removes it from the registry.
func (r *Registry) Close(buildDir string) error {
	r.mu.Lock()
	s, ok := r.sessions[buildDir]
	if ok {
		delete(r.sessions, buildDir)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, buildDir)
	}

	err := s.Close()
	recordActive(context.Background(), -1)
	r.publish(Event{
		Type:      EventClosed,
		RootDir:   s.RootDir(),
		BuildDir:  s.BuildDir(),
		UnixMilli: time.Now().UnixMilli(),
	})
	return err
}

// CloseAll shuts every session down. Used at daemon shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		if err := s.Close(); err != nil {
			slog.Warn("session close failed",
				slog.String("build_dir", s.BuildDir()),
				slog.String("error", err.Error()),
			)
		}
		recordActive(context.Background(), -1)
	}
}

// Snapshots lists every open session, sorted by build directory.
func (r *Registry) Snapshots() []Info {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Snapshot())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].BuildDir < infos[j].BuildDir
	})
	return infos
}

// =============================================================================
// Events
// =============================================================================

// Subscribe registers an event listener.
//
// Outputs:
//
//	<-chan Event - Buffered channel of lifecycle events. Slow consumers
//	               drop events rather than block the registry.
//	func() - Cancel function; closes the channel.
func (r *Registry) Subscribe() (<-chan Event, func()) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	id := r.nextSub
	r.nextSub++
	ch := make(chan Event, 64)
	r.subs[id] = ch

	cancel := func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()
		if existing, ok := r.subs[id]; ok {
			delete(r.subs, id)
			close(existing)
		}
	}
	return ch, cancel
}

func (r *Registry) publish(evt Event) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Stats reports registry counters.
func (r *Registry) Stats() (opens, hits int64, active int) {
	r.mu.RLock()
	active = len(r.sessions)
	r.mu.RUnlock()
	return atomic.LoadInt64(&r.opens), atomic.LoadInt64(&r.hits), active
}
