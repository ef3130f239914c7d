// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session ties the cmake transport and the index model together
// into long-lived project sessions.
//
// A Session owns one build directory: the cmake server process speaking
// for it, the index built from its codemodel, and the advisory lock that
// keeps two daemons from configuring it at once. The Registry hands out
// sessions keyed by build directory, deduplicates concurrent opens, and
// re-indexes a session when its CMakeLists.txt files change on disk.
//
// Architecture:
//
//	Registry ── Open/Get/Close ──> Session
//	   │                             │
//	   │ events                      ├── cmake.Server   (configure, compute, codemodel, cache)
//	   ▼                             ├── index.Index    (queries, resolution)
//	subscribers                      ├── BuildLock      (flock on the build directory)
//	                                 └── ConfigWatcher  (re-index on CMakeLists.txt writes)
//
// Project discovery walks up from a file to the outermost directory
// holding a CMakeLists.txt, then probes the configured build directory
// candidates for a CMakeCache.txt.
package session
