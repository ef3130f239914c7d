// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"fmt"
	"os"
	"path/filepath"
)

// ProjectRoot finds the project root directory for a file.
//
// Description:
//
//	Walks from the file's directory up to the filesystem root, collecting
//	every directory that carries one of the marker files. The OUTERMOST
//	match wins; in a superproject with nested CMakeLists.txt files, the
//	top-level listfile is the one the server must be pointed at.
//
// Inputs:
//
//	path - A file or directory inside the project.
//	rootFiles - Marker file names, e.g. CMakeLists.txt.
//
// Outputs:
//
//	string - Absolute path of the outermost marker directory.
//	error - ErrNoProjectRoot when no ancestor carries a marker.
func ProjectRoot(path string, rootFiles []string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}

	dir := abs
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		dir = filepath.Dir(abs)
	}

	var outermost string
	for {
		if containsAny(dir, rootFiles) {
			outermost = dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if outermost == "" {
		return "", fmt.Errorf("%w: searched upwards from %s", ErrNoProjectRoot, abs)
	}
	return outermost, nil
}

// DiscoverBuildDir probes the configured build directory candidates for
// an existing CMakeCache.txt.
//
// Description:
//
//	Candidates are relative to the project root and tried in order; "."
//	means the root itself. Returns "" when no candidate is configured
//	yet, which callers treat as "pick the default and configure fresh".
func DiscoverBuildDir(rootDir string, buildDirs []string) string {
	for _, sub := range buildDirs {
		dir := filepath.Join(rootDir, sub)
		if fileExists(filepath.Join(dir, "CMakeCache.txt")) {
			return dir
		}
	}
	return ""
}

// DefaultBuildDir picks the build directory to create when discovery
// finds nothing. The first candidate that is not the root itself wins;
// an all-"." configuration falls back to the root.
func DefaultBuildDir(rootDir string, buildDirs []string) string {
	for _, sub := range buildDirs {
		if sub != "." {
			return filepath.Join(rootDir, sub)
		}
	}
	return rootDir
}

func containsAny(dir string, names []string) bool {
	for _, name := range names {
		if fileExists(filepath.Join(dir, name)) {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
