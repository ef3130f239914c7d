// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cmakekit/cmakeindex/pkg/ux"
	"github.com/cmakekit/cmakeindex/services/indexd/index"
	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// runQueryCommand shows the index record backing one source file.
//
// # Description
//
// Opens (or reuses) the session for the project containing the file and
// prints the file's record: owning target, language, flags, and the
// paired header or source when one was matched. Headers and files only
// known through directory heuristics are reported with their heuristic
// origin visible.
//
// # Examples
//
//	cmake-index query src/engine/render.cc
//	cmake-index query --no-resolve include/engine/render.h
//	cmake-index query --json src/main.cc | jq .flags
func runQueryCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	path := absPath(args[0])
	registry, sess := openWorkspace(ctx, filepath.Dir(path))
	defer registry.CloseAll()

	file := sess.QueryFile(ctx, path, !queryNoResolve)
	if file == nil {
		fatal("no index record for %s", path)
	}

	if jsonOutput {
		printJSON(file)
		return
	}
	outputFileRecord(file)
}

// runFlagsCommand prints the compiler flags for a file, one per line.
//
// Files missing from the index get language-appropriate defaults, so the
// output is always usable as editor configuration.
func runFlagsCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	path := absPath(args[0])
	registry, sess := openWorkspace(ctx, filepath.Dir(path))
	defer registry.CloseAll()

	flags := sess.FlagsForFile(ctx, path)

	if jsonOutput {
		printJSON(map[string]interface{}{"path": path, "flags": flags})
		return
	}
	for _, flag := range flags {
		fmt.Println(flag)
	}
}

// =============================================================================
// OUTPUT FORMATTING
// =============================================================================

func outputFileRecord(file *index.File) {
	ux.Title(file.Path)
	ux.Field("target", file.TargetName)
	if file.Language != "" {
		ux.Field("language", file.Language)
	}
	if file.Heuristic {
		ux.Field("origin", "heuristic")
	}
	if file.ObjectFile != "" {
		ux.Field("object", file.ObjectFile)
	}
	if file.HeaderFile != "" {
		ux.Field("header", file.HeaderFile)
	}
	if file.SourceFile != "" {
		ux.Field("source", file.SourceFile)
	}
	if len(file.Defines) > 0 {
		ux.Field("defines", strings.Join(file.Defines, " "))
	}
	if len(file.Includes) > 0 {
		ux.Field("includes", strings.Join(file.Includes, " "))
	}
	ux.Field("flags", strings.Join(file.Flags, " "))
}
