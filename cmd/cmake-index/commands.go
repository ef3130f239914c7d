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

// cliVersion is stamped into version output.
const cliVersion = "0.1.0"

// --- Global Command Variables ---
var (
	rootDirFlag      string   // Project root override (skips discovery)
	buildDirFlag     string   // Build directory override (skips discovery)
	configPathFlag   string   // Configuration file path
	defineFlags      []string // NAME=VALUE cache definitions for configure
	jsonOutput       bool     // Machine-readable JSON output
	personalityLevel string   // UX personality level (full/standard/minimal/machine)

	queryNoResolve bool // Disable directory-heuristic resolution on query

	rootCmd = &cobra.Command{
		Use:   "cmake-index",
		Short: "Query cmake build trees from the command line",
		Long: `cmake-index opens a cmake server session against a project's build
directory and answers questions about it: per-file compiler flags,
targets, projects, cache variables, and compilation database exports.

The project root is discovered by walking up from the file (or the
working directory) to the outermost CMakeLists.txt; pass --root to
skip discovery. Build directories holding a CMakeCache.txt are reused
as configured, fresh ones are configured on first use.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize UX personality from flag or environment
			if personalityLevel != "" {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
			} else {
				ux.InitPersonality()
			}
		},
	}

	// --- Queries ---
	queryCmd = &cobra.Command{
		Use:   "query [file]",
		Short: "Show the index record for a source file",
		Args:  cobra.ExactArgs(1),
		Run:   runQueryCommand, // Defined in cmd_query.go
	}
	flagsCmd = &cobra.Command{
		Use:   "flags [file]",
		Short: "Print compiler flags for a file, one per line",
		Args:  cobra.ExactArgs(1),
		Run:   runFlagsCommand, // Defined in cmd_query.go
	}
	targetsCmd = &cobra.Command{
		Use:   "targets",
		Short: "List every buildable target in the project",
		Run:   runTargetsCommand, // Defined in cmd_target.go
	}
	targetCmd = &cobra.Command{
		Use:   "target [name]",
		Short: "Show one target in detail",
		Args:  cobra.ExactArgs(1),
		Run:   runTargetCommand, // Defined in cmd_target.go
	}
	projectCmd = &cobra.Command{
		Use:   "project [name]",
		Short: "Show one project in detail",
		Args:  cobra.ExactArgs(1),
		Run:   runProjectCommand, // Defined in cmd_target.go
	}
	cacheCmd = &cobra.Command{
		Use:   "cache [variable]",
		Short: "Print a CMake cache variable",
		Args:  cobra.ExactArgs(1),
		Run:   runCacheCommand, // Defined in cmd_target.go
	}

	// --- Exports ---
	exportCmd = &cobra.Command{
		Use:   "export",
		Short: "Write index data to files other tools consume",
	}
	exportCompiledbCmd = &cobra.Command{
		Use:   "compiledb",
		Short: "Write compile_commands.json for the project",
		Run:   runExportCompileDB, // Defined in cmd_export.go
	}
	exportFlagsCmd = &cobra.Command{
		Use:   "flags [file]",
		Short: "Write editor flag files next to a source file",
		Args:  cobra.ExactArgs(1),
		Run:   runExportFlags, // Defined in cmd_export.go
	}

	// --- Build helpers ---
	buildCommandCmd = &cobra.Command{
		Use:   "build-command [target]",
		Short: "Print the shell command that builds a target",
		Args:  cobra.ExactArgs(1),
		Run:   runBuildCommand, // Defined in cmd_build.go
	}
	runCommandCmd = &cobra.Command{
		Use:   "run-command [target] [args...]",
		Short: "Print the shell command that runs a target's executable",
		Args:  cobra.MinimumNArgs(1),
		Run:   runRunCommand, // Defined in cmd_build.go
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run:   runVersionCommand, // Defined in cmd_version.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&rootDirFlag, "root", "",
		"Project root directory (default: discovered from the file or working directory)")
	rootCmd.PersistentFlags().StringVar(&buildDirFlag, "build-dir", "",
		"Build directory (default: discovered under the project root)")
	rootCmd.PersistentFlags().StringVar(&configPathFlag, "config", "",
		"Configuration file (default: CMAKE_INDEXD_CONFIG or ./cmake-indexd.yaml)")
	rootCmd.PersistentFlags().StringArrayVarP(&defineFlags, "define", "D", nil,
		"Cache definition NAME=VALUE passed to cmake configure (repeatable)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false,
		"Output as JSON for scripting")
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output style: full, standard, minimal, or machine (scripting)")

	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().BoolVar(&queryNoResolve, "no-resolve", false,
		"Report only exact index records, never directory-heuristic guesses")

	rootCmd.AddCommand(flagsCmd)
	rootCmd.AddCommand(targetsCmd)
	rootCmd.AddCommand(targetCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(cacheCmd)

	rootCmd.AddCommand(exportCmd)
	exportCmd.AddCommand(exportCompiledbCmd)
	exportCmd.AddCommand(exportFlagsCmd)

	rootCmd.AddCommand(buildCommandCmd)
	rootCmd.AddCommand(runCommandCmd)
	rootCmd.AddCommand(versionCmd)
}
