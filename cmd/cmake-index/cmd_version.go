// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/cmakekit/cmakeindex/pkg/ux"
	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// runVersionCommand prints version and toolchain information.
func runVersionCommand(cmd *cobra.Command, args []string) {
	cfg := loadWorkspaceConfig()

	if jsonOutput {
		printJSON(map[string]string{
			"version":      cliVersion,
			"cmake_binary": cfg.CMake.Binary,
			"generator":    cfg.CMake.Generator,
		})
		return
	}

	ux.Title("cmake-index " + cliVersion)
	ux.Field("cmake binary", cfg.CMake.Binary)
	ux.Field("generator", cfg.CMake.Generator)
}
