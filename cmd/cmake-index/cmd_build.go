// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// runBuildCommand prints the shell command that builds a target.
//
// The command goes to stdout bare so it can be substituted or eval'd:
//
//	$(cmake-index build-command engine)
func runBuildCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	registry, sess := openWorkspace(ctx, workingDir())
	defer registry.CloseAll()

	command, err := sess.BuildCommand(args[0])
	if err != nil {
		fatal("build command for %q: %v", args[0], err)
	}

	if jsonOutput {
		printJSON(map[string]string{"command": command})
		return
	}
	fmt.Println(command)
}

// runRunCommand prints the shell command that runs a target's
// executable, with any extra arguments appended.
func runRunCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	registry, sess := openWorkspace(ctx, workingDir())
	defer registry.CloseAll()

	command, err := sess.RunCommand(args[0], args[1:])
	if err != nil {
		fatal("run command for %q: %v", args[0], err)
	}

	if jsonOutput {
		printJSON(map[string]string{"command": command})
		return
	}
	fmt.Println(command)
}
