// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package index

import (
	"path/filepath"
	"strings"

	"github.com/cmakekit/cmakeindex/services/indexd/cmake"
)

// Target types that own no compiled files and are dropped from the model.
const (
	targetTypeUtility          = "UTILITY"
	targetTypeInterfaceLibrary = "INTERFACE_LIBRARY"
)

// convertProject builds the normalized project from one wire project.
//
// Description:
//
//	Converts every target except utilities and interface libraries, then
//	assembles the project's flat file list in target order, group order,
//	source order. The returned target slice preserves wire order; the
//	project's own map is for lookup by name.
//
// Inputs:
//
//	wire - One project from the codemodel reply.
//	rootDir - Root directory of the session building the index.
//	buildDir - Build directory of the session building the index.
//
// Outputs:
//
//	*Project - The converted project.
//	[]*Target - Its targets in wire order.
//	[]*File - Its file records in conversion order.
func convertProject(wire *cmake.Project, rootDir, buildDir string) (*Project, []*Target, []*File) {
	project := &Project{
		Name:         wire.Name,
		SourceDir:    wire.SourceDirectory,
		BuildDir:     wire.BuildDirectory,
		TreeRootDir:  rootDir,
		TreeBuildDir: buildDir,
		Targets:      make(map[string]*Target),
		Files:        []*File{},
	}

	var targets []*Target
	for i := range wire.Targets {
		wireTarget := &wire.Targets[i]
		if wireTarget.Type == targetTypeUtility || wireTarget.Type == targetTypeInterfaceLibrary {
			continue
		}
		target, files := convertTarget(wireTarget, project)
		project.Targets[target.Name] = target
		project.Files = append(project.Files, files...)
		targets = append(targets, target)
	}
	return project, targets, project.Files
}

// convertTarget builds one normalized target plus its file records.
//
// The flag aggregates are concatenated across file groups; flags are
// uniform within a group, so each group contributes its first file's lists.
func convertTarget(wire *cmake.Target, project *Project) (*Target, []*File) {
	target := &Target{
		Name:          wire.Name,
		Kind:          TargetPlain,
		Type:          wire.Type,
		TreeRootDir:   project.TreeRootDir,
		TreeBuildDir:  project.TreeBuildDir,
		BuildDir:      absPath(wire.BuildDirectory),
		SourceDir:     absPath(wire.SourceDirectory),
		LinkLanguage:  wire.LinkerLanguage,
		ResultName:    wire.FullName,
		Artifacts:     wire.Artifacts,
		FilePaths:     []string{},
		AllIncludes:   []string{},
		AllDefines:    []string{},
		AllOtherFlags: []string{},
		AllFlags:      []string{},
	}
	if target.Artifacts == nil {
		target.Artifacts = []string{}
	}
	target.ObjectDir = filepath.Join(target.BuildDir, "CMakeFiles", target.Name+".dir")

	var files []*File
	for i := range wire.FileGroups {
		group := convertFileGroup(&wire.FileGroups[i], target)
		if len(group) == 0 {
			continue
		}
		for _, file := range group {
			target.FilePaths = append(target.FilePaths, file.Path)
		}
		target.AllIncludes = append(target.AllIncludes, group[0].Includes...)
		target.AllDefines = append(target.AllDefines, group[0].Defines...)
		target.AllOtherFlags = append(target.AllOtherFlags, group[0].OtherFlags...)
		target.AllFlags = append(target.AllFlags, group[0].Flags...)
		files = append(files, group...)
	}
	return target, files
}

// convertFileGroup builds one file record per source in the group.
func convertFileGroup(group *cmake.FileGroup, target *Target) []*File {
	otherFlags := strings.Fields(group.CompileFlags)
	defines := group.Defines
	if defines == nil {
		defines = []string{}
	}
	includes := includeDirs(group.IncludePath, target)
	flags := flagList(otherFlags, defines, group.IncludePath, target)

	files := make([]*File, 0, len(group.Sources))
	for _, source := range group.Sources {
		path := source
		if !filepath.IsAbs(path) {
			path = filepath.Join(target.SourceDir, path)
		}

		files = append(files, &File{
			Path:         path,
			TargetName:   target.Name,
			TreeRootDir:  target.TreeRootDir,
			TreeBuildDir: target.TreeBuildDir,
			Language:     group.Language,
			Heuristic:    false,
			OtherFlags:   otherFlags,
			Defines:      defines,
			Includes:     includes,
			Flags:        flags,
			ObjectFile:   objectFile(path, target),
		})
	}
	return files
}

// flagList assembles a file flag list in its fixed order: free-form flags,
// then -D defines, then include flags. The order is load-bearing; it keeps
// compilation-database output reproducible.
func flagList(otherFlags, defines []string, includePath []cmake.IncludePath, target *Target) []string {
	flags := make([]string, 0, len(otherFlags)+len(defines)+2*len(includePath))
	flags = append(flags, otherFlags...)
	for _, define := range defines {
		flags = append(flags, "-D"+define)
	}
	flags = append(flags, includeFlags(includePath, target)...)
	return flags
}

// includeFlags converts include directories to compiler arguments. The flag
// and its path stay separate tokens.
func includeFlags(includePath []cmake.IncludePath, target *Target) []string {
	flags := make([]string, 0, 2*len(includePath))
	for _, include := range includePath {
		if include.IsSystem {
			flags = append(flags, "-isystem")
		} else {
			flags = append(flags, "-I")
		}
		flags = append(flags, resolveIncludeDir(include.Path, target))
	}
	return flags
}

// includeDirs resolves the group's include directories in search order.
func includeDirs(includePath []cmake.IncludePath, target *Target) []string {
	dirs := make([]string, 0, len(includePath))
	for _, include := range includePath {
		dirs = append(dirs, resolveIncludeDir(include.Path, target))
	}
	return dirs
}

// resolveIncludeDir makes an include directory absolute. Per cmake-server(7)
// paths are either absolute or relative to the target source directory.
func resolveIncludeDir(path string, target *Target) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(target.SourceDir, path)
}

// objectFile derives the object path for a source file: the target object
// directory plus the source's path relative to the target source directory,
// with ".o" appended.
func objectFile(path string, target *Target) string {
	rel, err := filepath.Rel(target.SourceDir, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	return filepath.Join(target.ObjectDir, rel+".o")
}

// absPath normalizes a directory path reported by the server.
func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

// mergeTargets squashes several targets that share a directory into one
// synthetic target. Scalar attributes come from the first member; the flag
// aggregates are concatenated in member order.
func mergeTargets(members []*Target) *Target {
	names := make([]string, 0, len(members))
	for _, member := range members {
		names = append(names, member.Name)
	}

	first := members[0]
	merged := &Target{
		Name:          strings.Join(names, "|"),
		Kind:          TargetSquashed,
		Type:          first.Type,
		TreeRootDir:   first.TreeRootDir,
		TreeBuildDir:  first.TreeBuildDir,
		BuildDir:      first.BuildDir,
		SourceDir:     first.SourceDir,
		LinkLanguage:  first.LinkLanguage,
		ResultName:    first.ResultName,
		Artifacts:     first.Artifacts,
		FilePaths:     []string{},
		AllIncludes:   []string{},
		AllDefines:    []string{},
		AllOtherFlags: []string{},
		AllFlags:      []string{},
	}

	for _, member := range members {
		merged.AllIncludes = append(merged.AllIncludes, member.AllIncludes...)
		merged.AllDefines = append(merged.AllDefines, member.AllDefines...)
		merged.AllOtherFlags = append(merged.AllOtherFlags, member.AllOtherFlags...)
		merged.AllFlags = append(merged.AllFlags, member.AllFlags...)
	}
	return merged
}
