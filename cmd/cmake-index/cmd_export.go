// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"path/filepath"

	"github.com/cmakekit/cmakeindex/pkg/ux"
	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// runExportCompileDB writes compile_commands.json for the project.
//
// Placement follows the export.database_in_root setting; tools like
// clangd expect the database at the project root, build-dir purists keep
// it next to the cache.
func runExportCompileDB(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	registry, sess := openWorkspace(ctx, workingDir())
	defer registry.CloseAll()

	path, err := sess.ExportDatabase(ctx)
	if err != nil {
		fatal("export compilation database: %v", err)
	}

	if jsonOutput {
		printJSON(map[string]string{"path": path})
		return
	}
	ux.Success("wrote " + path)
}

// runExportFlags writes editor flag files next to one source file.
func runExportFlags(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	path := absPath(args[0])
	registry, sess := openWorkspace(ctx, filepath.Dir(path))
	defer registry.CloseAll()

	paths, err := sess.WriteFlagFiles(ctx, path)
	if err != nil {
		fatal("write flag files: %v", err)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"paths": paths})
		return
	}
	for _, p := range paths {
		ux.FileStatus(p, ux.IconSuccess, "written")
	}
}
