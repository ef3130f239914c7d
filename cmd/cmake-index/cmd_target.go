// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cmakekit/cmakeindex/pkg/ux"
	"github.com/cmakekit/cmakeindex/services/indexd/index"
	"github.com/spf13/cobra"
)

// targetListing is the trimmed JSON shape for target listings.
type targetListing struct {
	Name  string           `json:"name"`
	Type  string           `json:"type"`
	Kind  index.TargetKind `json:"kind"`
	Files int              `json:"files"`
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// runTargetsCommand lists every buildable target in the project.
func runTargetsCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	registry, sess := openWorkspace(ctx, workingDir())
	defer registry.CloseAll()

	idx := sess.Index()
	if idx == nil {
		fatal("session holds no index")
	}
	targets := idx.Targets()

	if jsonOutput {
		listings := make([]targetListing, 0, len(targets))
		for _, t := range targets {
			listings = append(listings, targetListing{
				Name:  t.Name,
				Type:  t.Type,
				Kind:  t.Kind,
				Files: len(t.FilePaths),
			})
		}
		printJSON(listings)
		return
	}

	ux.Title("Targets in " + sess.BuildDir())
	for _, t := range targets {
		ux.FileStatus(t.Name, ux.IconTarget, fmt.Sprintf("%s, %d files", t.Type, len(t.FilePaths)))
	}
	info := sess.Snapshot()
	ux.Summary(info.FileCount, info.TargetCount, info.ProjectCount)
}

// runTargetCommand shows one target in detail.
func runTargetCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	registry, sess := openWorkspace(ctx, workingDir())
	defer registry.CloseAll()

	target := sess.Target(args[0])
	if target == nil {
		fatal("unknown target %q", args[0])
	}

	if jsonOutput {
		printJSON(target)
		return
	}
	outputTarget(target)
}

// runProjectCommand shows one project in detail.
func runProjectCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	registry, sess := openWorkspace(ctx, workingDir())
	defer registry.CloseAll()

	project := sess.Project(args[0])
	if project == nil {
		fatal("unknown project %q", args[0])
	}

	if jsonOutput {
		printJSON(project)
		return
	}
	outputProject(project)
}

// runCacheCommand prints one CMake cache variable.
//
// The value goes to stdout bare, so shell substitution works:
//
//	CC=$(cmake-index cache CMAKE_C_COMPILER)
func runCacheCommand(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	registry, sess := openWorkspace(ctx, workingDir())
	defer registry.CloseAll()

	value, ok := sess.CacheVariable(args[0])
	if !ok {
		fatal("cache variable %q not set", args[0])
	}

	if jsonOutput {
		printJSON(map[string]string{"name": args[0], "value": value})
		return
	}
	fmt.Println(value)
}

// =============================================================================
// OUTPUT FORMATTING
// =============================================================================

func outputTarget(t *index.Target) {
	ux.Title(t.Name)
	if t.Squashed() {
		ux.Warning("synthetic target merging " + strings.ReplaceAll(t.Name, "|", ", "))
	}
	ux.Field("type", t.Type)
	ux.Field("source dir", t.SourceDir)
	ux.Field("build dir", t.BuildDir)
	if t.LinkLanguage != "" {
		ux.Field("link language", t.LinkLanguage)
	}
	if t.ResultName != "" {
		ux.Field("result", t.ResultName)
	}
	for _, artifact := range t.Artifacts {
		ux.Field("artifact", artifact)
	}
	ux.Field("files", fmt.Sprintf("%d", len(t.FilePaths)))
	if len(t.AllDefines) > 0 {
		ux.Field("defines", strings.Join(t.AllDefines, " "))
	}
	if len(t.AllIncludes) > 0 {
		ux.Field("includes", strings.Join(t.AllIncludes, " "))
	}
}

func outputProject(p *index.Project) {
	ux.Title(p.Name)
	ux.Field("source dir", p.SourceDir)
	ux.Field("build dir", p.BuildDir)
	ux.Field("targets", fmt.Sprintf("%d", len(p.Targets)))
	ux.Field("files", fmt.Sprintf("%d", len(p.Files)))

	names := make([]string, 0, len(p.Targets))
	for name := range p.Targets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ux.FileStatus(name, ux.IconTarget, p.Targets[name].Type)
	}
}
