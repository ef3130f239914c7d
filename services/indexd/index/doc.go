// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package index converts a cmake server codemodel into a normalized,
// queryable model of projects, targets and files.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────┐
//	│                       Index                          │
//	│                                                      │
//	│  ┌───────────┐  ┌───────────┐  ┌──────────────────┐  │
//	│  │ projects  │  │  targets  │  │      files       │  │
//	│  │ (by name) │  │ (by name) │  │ (by abs path)    │  │
//	│  └───────────┘  └───────────┘  └──────────────────┘  │
//	│        ▲              ▲                 ▲            │
//	└────────┼──────────────┼─────────────────┼────────────┘
//	         │              │                 │
//	   conversion      directory          header-matching
//	   (codemodel)     heuristics         heuristics
//
// # Components
//
//   - Conversion (convert.go): pure transformation of one codemodel
//     configuration into Project, Target and File records. Derives per-file
//     flag lists in a fixed order (free-form flags, -D defines, include
//     flags) and object file paths. Utility and interface-library targets
//     are dropped; they own no compiled files.
//
//   - Index (index.go): the queryable store. Lookup is a pure exact-path
//     read; Resolve additionally falls back to directory heuristics for
//     unknown paths and caches what it synthesizes, so the second query for
//     the same path is an exact hit. When several targets own files in the
//     queried directory their flag sets are squashed into one synthetic
//     target.
//
//   - Header matching (headers.go): a one-shot pass at build time that scans
//     each source file's #include directives for a header named like the
//     source itself and, when one exists on disk, records the pairing in
//     both directions.
//
// # Usage
//
//	idx, err := index.Build(ctx, rootDir, buildDir, codemodel, cacheReply)
//	if err != nil {
//		return err
//	}
//
//	if file := idx.Resolve(ctx, "/src/project/lib/util.cc"); file != nil {
//		flags := file.Flags
//	}
//
// Records returned by queries are shared with the index and must be treated
// as read-only by callers. The index serializes its own mutations.
package index
