// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package compiledb projects an index into the formats clang tooling
// consumes: a compile_commands.json compilation database and the per
// directory .clang / .clang_complete flag files.
package compiledb

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cmakekit/cmakeindex/services/indexd/index"
)

// DatabaseFileName is the compilation database file name clang tools look for.
const DatabaseFileName = "compile_commands.json"

// Record is one compilation database entry.
type Record struct {
	// Directory is the build directory the command runs in.
	Directory string `json:"directory"`

	// File is the absolute path of the translation unit.
	File string `json:"file"`

	// Command is the full compiler invocation.
	Command string `json:"command"`
}

// Generate projects every file record of an index into a compilation
// database entry.
//
// Description:
//
//	One record per file, in index insertion order, no deduplication or
//	sorting. The command is "<compiler> <flags> -c <path> -o <object>"
//	with the compiler resolved from the CMAKE_<LANG>_COMPILER cache
//	variable for the file's language. A missing compiler or an empty flag
//	list degrades to an empty segment, never to a failure.
//
// Inputs:
//
//	idx - The index to project; nil yields an empty database.
//
// Outputs:
//
//	[]Record - The database entries.
func Generate(idx *index.Index) []Record {
	if idx == nil {
		return []Record{}
	}

	files := idx.Files()
	records := make([]Record, 0, len(files))
	for _, file := range files {
		compiler, _ := idx.CacheVariable(compilerVariable(file.Language))
		records = append(records, Record{
			Directory: file.TreeBuildDir,
			File:      file.Path,
			Command: fmt.Sprintf("%s %s -c %s -o %s",
				compiler, strings.Join(file.Flags, " "), file.Path, file.ObjectFile),
		})
	}
	return records
}

// compilerVariable names the cache variable holding the compiler path for
// a language (e.g. CMAKE_CXX_COMPILER).
func compilerVariable(language string) string {
	return "CMAKE_" + language + "_COMPILER"
}

// Write serializes the compilation database for an index to disk.
//
// Description:
//
//	The database lands in the root directory by default, where clang
//	tooling expects it. Writing into the build directory instead is
//	supported but logged; plugins rarely look there.
//
// Inputs:
//
//	idx - The index to project.
//	inRoot - Place the database in the index root directory rather than
//	         its build directory.
//
// Outputs:
//
//	string - The path written.
//	error - Non-nil on serialization or filesystem failure.
func Write(idx *index.Index, inRoot bool) (string, error) {
	if idx == nil {
		return "", ErrNilIndex
	}

	var path string
	if inRoot {
		path = filepath.Join(idx.RootDir(), DatabaseFileName)
	} else {
		path = filepath.Join(idx.BuildDir(), DatabaseFileName)
		slog.Warn("placing compilation database in build directory, plugins are unlikely to find it",
			slog.String("path", path),
		)
	}

	data, err := json.MarshalIndent(Generate(idx), "", "    ")
	if err != nil {
		return "", fmt.Errorf("marshal compilation database: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write compilation database: %w", err)
	}
	return path, nil
}
