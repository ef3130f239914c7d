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
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cmakekit/cmakeindex/services/indexd/cmake"
	"github.com/cmakekit/cmakeindex/services/indexd/compiledb"
	"github.com/cmakekit/cmakeindex/services/indexd/config"
	"github.com/cmakekit/cmakeindex/services/indexd/index"
)

// Session binds one build directory to its cmake server and index.
//
// Thread Safety:
//
//	Safe for concurrent use. Queries take a read lock; Refresh and Close
//	serialize on the write lock, so a query never observes a half-built
//	index.
type Session struct {
	cfg       *config.Config
	rootDir   string
	buildDir  string
	cacheArgs map[string]string

	mu         sync.RWMutex
	server     *cmake.Server
	idx        *index.Index
	generation int64
	builtAt    time.Time
	closed     bool

	lock    *BuildLock
	watcher *ConfigWatcher
}

// Info is a read-only snapshot of a session for listings.
type Info struct {
	RootDir          string `json:"root_dir"`
	BuildDir         string `json:"build_dir"`
	Generation       int64  `json:"generation"`
	BuiltAtUnixMilli int64  `json:"built_at_unix_milli"`
	ServerState      string `json:"server_state"`
	FileCount        int    `json:"file_count"`
	TargetCount      int    `json:"target_count"`
	ProjectCount     int    `json:"project_count"`
}

// newSession creates an unindexed session. The caller runs Refresh
// before handing it out.
func newSession(cfg *config.Config, rootDir, buildDir string, cacheArgs map[string]string) *Session {
	if cacheArgs == nil {
		cacheArgs = map[string]string{}
	}
	return &Session{
		cfg:       cfg,
		rootDir:   rootDir,
		buildDir:  buildDir,
		cacheArgs: cacheArgs,
	}
}

// Refresh runs the full configure, compute, codemodel, cache pipeline
// and swaps in a freshly built index.
//
// Description:
//
//	Reuses the live server when one is ready, otherwise spawns and
//	handshakes a new one. Any pipeline failure tears the server down so
//	the next refresh starts clean. With persistent servers disabled the
//	server is also torn down after a successful run.
func (s *Session) Refresh(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("Refresh: ctx must not be nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return s.refreshLocked(ctx)
}

func (s *Session) refreshLocked(ctx context.Context) error {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "Session.Refresh",
		trace.WithAttributes(attribute.String("session.build_dir", s.buildDir)),
	)
	defer span.End()

	fail := func(stage string, err error) error {
		s.teardownServerLocked()
		span.RecordError(err)
		recordRefresh(ctx, time.Since(start), false)
		return fmt.Errorf("%s: %w", stage, err)
	}

	server, err := s.ensureServerLocked(ctx)
	if err != nil {
		span.RecordError(err)
		recordRefresh(ctx, time.Since(start), false)
		return err
	}

	if err := server.Configure(ctx, s.cacheArgs); err != nil {
		return fail("configure", err)
	}
	if err := server.Generate(ctx); err != nil {
		return fail("compute", err)
	}
	codemodel, err := server.Codemodel(ctx)
	if err != nil {
		return fail("codemodel", err)
	}
	cacheReply, err := server.Cache(ctx)
	if err != nil {
		return fail("cache", err)
	}

	idx, err := index.Build(ctx, s.rootDir, s.buildDir, codemodel, cacheReply)
	if err != nil {
		s.teardownServerLocked()
		span.RecordError(err)
		recordRefresh(ctx, time.Since(start), false)
		return fmt.Errorf("build index: %w", err)
	}

	s.idx = idx
	s.generation++
	s.builtAt = time.Now()

	if !s.cfg.CMake.PersistentServer {
		s.teardownServerLocked()
	}

	recordRefresh(ctx, time.Since(start), true)
	slog.Info("session refreshed",
		slog.String("root_dir", s.rootDir),
		slog.String("build_dir", s.buildDir),
		slog.Int64("generation", s.generation),
		slog.Int("files", len(idx.Files())),
		slog.Int("targets", len(idx.Targets())),
	)
	return nil
}

// ensureServerLocked returns a ready server, spawning one when needed.
func (s *Session) ensureServerLocked(ctx context.Context) (*cmake.Server, error) {
	if s.server != nil && s.server.State() == cmake.ServerStateReady {
		return s.server, nil
	}
	s.teardownServerLocked()

	// The generator is only sent for a pristine build directory. An
	// existing cache already records one, and the server rejects a
	// handshake that names a different generator than the cache.
	generator := s.cfg.CMake.Generator
	if fileExists(filepath.Join(s.buildDir, "CMakeCache.txt")) {
		generator = ""
	}

	server := cmake.NewServer()
	socketPath := s.cfg.SocketPath(os.Getpid(), s.buildDir)
	if err := server.Start(ctx, s.cfg.CMake.Binary, socketPath); err != nil {
		return nil, fmt.Errorf("start cmake server: %w", err)
	}
	if err := server.Handshake(ctx, s.rootDir, s.buildDir, generator); err != nil {
		_ = server.Shutdown()
		return nil, fmt.Errorf("handshake: %w", err)
	}

	s.server = server
	return server, nil
}

func (s *Session) teardownServerLocked() {
	if s.server == nil {
		return
	}
	if err := s.server.Shutdown(); err != nil {
		slog.Warn("cmake server shutdown failed",
			slog.String("build_dir", s.buildDir),
			slog.String("error", err.Error()),
		)
	}
	s.server = nil
}

// Close shuts the session down: watcher, server, build lock. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.watcher != nil {
		s.watcher.Stop()
		s.watcher = nil
	}
	s.teardownServerLocked()

	if s.lock != nil {
		if err := s.lock.Release(); err != nil {
			slog.Warn("build lock release failed",
				slog.String("build_dir", s.buildDir),
				slog.String("error", err.Error()),
			)
		}
		s.lock = nil
	}
	return nil
}

// =============================================================================
// Queries
// =============================================================================

// Index returns the current index, or nil before the first refresh.
func (s *Session) Index() *index.Index {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx
}

// QueryFile looks a file up in the index.
//
// Inputs:
//
//	path - Absolute path of the file.
//	resolve - Apply directory and merge heuristics for unknown files,
//	          memoizing the result, instead of a pure exact lookup.
//
// Outputs:
//
//	*index.File - The record, or nil when unknown.
func (s *Session) QueryFile(ctx context.Context, path string, resolve bool) *index.File {
	idx := s.Index()
	if idx == nil {
		return nil
	}
	if resolve {
		return idx.Resolve(ctx, path)
	}
	return idx.Lookup(path)
}

// Target returns a target by name, or nil.
func (s *Session) Target(name string) *index.Target {
	idx := s.Index()
	if idx == nil {
		return nil
	}
	return idx.Target(name)
}

// Project returns a project by name, or nil.
func (s *Session) Project(name string) *index.Project {
	idx := s.Index()
	if idx == nil {
		return nil
	}
	return idx.Project(name)
}

// CacheVariable returns a cmake cache value by key.
func (s *Session) CacheVariable(key string) (string, bool) {
	idx := s.Index()
	if idx == nil {
		return "", false
	}
	return idx.CacheVariable(key)
}

// FlagsForFile returns the compile flags to hand a completion engine
// for a file.
//
// Description:
//
//	Resolution order: the file's indexed flags, then the configured
//	per-language defaults chosen by record language or file extension.
//	The result is never empty for C and C++ sources.
func (s *Session) FlagsForFile(ctx context.Context, path string) []string {
	file := s.QueryFile(ctx, path, true)
	if file != nil && len(file.Flags) > 0 {
		return file.Flags
	}
	return DefaultFlags(path, file, s.cfg.Flags, s.cfg.FileTypes)
}

// WriteFlagFiles writes .clang and .clang_complete next to a file.
//
// Outputs:
//
//	[]string - The paths written.
//	error - Non-nil on filesystem failure.
func (s *Session) WriteFlagFiles(ctx context.Context, path string) ([]string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	flags := s.FlagsForFile(ctx, abs)
	dir := filepath.Dir(abs)

	clangPath, err := compiledb.WriteDotClang(dir, flags)
	if err != nil {
		return nil, err
	}
	completePath, err := compiledb.WriteDotClangComplete(dir, flags)
	if err != nil {
		return nil, err
	}
	return []string{clangPath, completePath}, nil
}

// ExportDatabase writes the compilation database for the session.
//
// Outputs:
//
//	string - Path of the written compile_commands.json.
//	error - ErrNotIndexed before the first refresh, write errors after.
func (s *Session) ExportDatabase(ctx context.Context) (string, error) {
	idx := s.Index()
	if idx == nil {
		return "", ErrNotIndexed
	}
	ctx, span := tracer.Start(ctx, "Session.ExportDatabase",
		trace.WithAttributes(attribute.String("session.build_dir", s.buildDir)),
	)
	defer span.End()

	path, err := compiledb.Write(idx, s.cfg.Export.DatabaseInRoot)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	slog.Info("compilation database written",
		slog.String("path", path),
		slog.Int("records", len(idx.Files())),
	)
	return path, nil
}

// =============================================================================
// Accessors
// =============================================================================

// RootDir returns the project root directory.
func (s *Session) RootDir() string {
	return s.rootDir
}

// BuildDir returns the build directory.
func (s *Session) BuildDir() string {
	return s.buildDir
}

// Generation returns how many times the session has been indexed.
func (s *Session) Generation() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// ServerState reports the cmake server state, Stopped when none is live.
func (s *Session) ServerState() cmake.ServerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.server == nil {
		return cmake.ServerStateStopped
	}
	return s.server.State()
}

// Snapshot returns the session's listing info.
func (s *Session) Snapshot() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := Info{
		RootDir:     s.rootDir,
		BuildDir:    s.buildDir,
		Generation:  s.generation,
		ServerState: cmake.ServerStateStopped.String(),
	}
	if s.server != nil {
		info.ServerState = s.server.State().String()
	}
	if !s.builtAt.IsZero() {
		info.BuiltAtUnixMilli = s.builtAt.UnixMilli()
	}
	if s.idx != nil {
		info.FileCount = len(s.idx.Files())
		info.TargetCount = len(s.idx.Targets())
		info.ProjectCount = len(s.idx.Projects())
	}
	return info
}
