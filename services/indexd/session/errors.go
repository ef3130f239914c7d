// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"errors"
	"fmt"
)

// Sentinel errors for session and discovery failures. Callers match with
// errors.Is.
var (
	// ErrNoProjectRoot indicates no ancestor directory of the file carries
	// a project root marker.
	ErrNoProjectRoot = errors.New("no project root found")

	// ErrSessionNotFound indicates no session is open for the build
	// directory.
	ErrSessionNotFound = errors.New("no session for build directory")

	// ErrSessionClosed indicates the session was closed and cannot serve
	// further operations.
	ErrSessionClosed = errors.New("session is closed")

	// ErrNotIndexed indicates the session has no index yet.
	ErrNotIndexed = errors.New("session has no index")

	// ErrBuildDirLocked indicates another process holds the build
	// directory lock.
	ErrBuildDirLocked = errors.New("build directory is locked by another process")

	// ErrUnknownTarget indicates the named target is not in the index.
	ErrUnknownTarget = errors.New("unknown target")

	// ErrNotExecutable indicates a run command was requested for a target
	// that does not produce an executable.
	ErrNotExecutable = errors.New("target is not an executable")

	// ErrNoArtifacts indicates the target declares no build artifacts to
	// run.
	ErrNoArtifacts = errors.New("target has no artifacts")
)

// LockHolderError reports who holds a contended build directory lock.
type LockHolderError struct {
	// BuildDir is the contended build directory.
	BuildDir string

	// PID is the lock holder's process id, or 0 when unreadable.
	PID int
}

// Error implements the error interface.
func (e *LockHolderError) Error() string {
	if e.PID > 0 {
		return fmt.Sprintf("build directory %s is locked by pid %d", e.BuildDir, e.PID)
	}
	return fmt.Sprintf("build directory %s is locked", e.BuildDir)
}

// Unwrap allows errors.Is(err, ErrBuildDirLocked).
func (e *LockHolderError) Unwrap() error {
	return ErrBuildDirLocked
}
