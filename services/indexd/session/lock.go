// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

//go:build unix

package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// LockFileName is the advisory lock file placed in a build directory.
const LockFileName = ".cmake-indexd.lock"

// BuildLock is an advisory flock(2) lock on a build directory.
//
// Description:
//
//	Two daemons configuring the same build directory corrupt each
//	other's CMakeCache.txt. The lock is process scoped and released by
//	the kernel on exit, so a crashed daemon never wedges the directory.
type BuildLock struct {
	path string
	file *os.File
}

// AcquireBuildLock takes the exclusive lock for a build directory.
//
// Outputs:
//
//	*BuildLock - The held lock; release it with Release.
//	error - A *LockHolderError (matching ErrBuildDirLocked) when another
//	        process holds it, other errors on filesystem failure.
func AcquireBuildLock(buildDir string) (*BuildLock, error) {
	path := filepath.Join(buildDir, LockFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		holder := readLockHolder(f)
		_ = f.Close()
		if err == unix.EWOULDBLOCK {
			return nil, &LockHolderError{BuildDir: buildDir, PID: holder}
		}
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}

	// Record our pid for diagnostics; correctness comes from the flock.
	if err := f.Truncate(0); err == nil {
		_, _ = f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0)
		_ = f.Sync()
	}

	return &BuildLock{path: path, file: f}, nil
}

// Release drops the lock and removes the lock file.
func (l *BuildLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	_ = os.Remove(l.path)
	if err != nil {
		return fmt.Errorf("unlock %s: %w", l.path, err)
	}
	return closeErr
}

// Path returns the lock file path.
func (l *BuildLock) Path() string {
	return l.path
}

// readLockHolder best-effort reads the pid recorded in the lock file.
func readLockHolder(f *os.File) int {
	buf := make([]byte, 32)
	n, err := f.ReadAt(buf, 0)
	if n == 0 && err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(buf[:n])))
	if err != nil {
		return 0
	}
	return pid
}
