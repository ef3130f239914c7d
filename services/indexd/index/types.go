// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package index

// TargetKind discriminates real targets from synthetic merges.
type TargetKind string

const (
	// TargetPlain is a target reported directly by the codemodel.
	TargetPlain TargetKind = "plain"

	// TargetSquashed is a synthetic target merging several real targets
	// that share a directory. Produced only by directory-heuristic
	// resolution; never independently buildable.
	TargetSquashed TargetKind = "squashed"
)

// Project is one named build unit from a codemodel snapshot.
type Project struct {
	// Name is the project name, unique within one server session.
	Name string `json:"name"`

	// SourceDir is the project's top-level source directory.
	SourceDir string `json:"source_dir"`

	// BuildDir is the project's top-level build directory.
	BuildDir string `json:"build_dir"`

	// TreeRootDir is the root directory of the session that produced the index.
	TreeRootDir string `json:"tree_root_dir"`

	// TreeBuildDir is the build directory of the session that produced the index.
	TreeBuildDir string `json:"tree_build_dir"`

	// Targets maps target name to target record. Utility and
	// interface-library targets are never present.
	Targets map[string]*Target `json:"targets"`

	// Files lists the project's file records in conversion order.
	Files []*File `json:"files"`
}

// Target is one buildable unit.
type Target struct {
	// Name is the target name. Squashed targets carry a composite name,
	// the member names joined with "|".
	Name string `json:"name"`

	// Kind tells a real target from a synthetic squashed one.
	Kind TargetKind `json:"kind"`

	// Type is the cmake target type: EXECUTABLE, STATIC_LIBRARY,
	// SHARED_LIBRARY, MODULE_LIBRARY or OBJECT_LIBRARY.
	Type string `json:"type"`

	// TreeRootDir is the root directory of the owning session.
	TreeRootDir string `json:"tree_root_dir"`

	// TreeBuildDir is the build directory of the owning session.
	TreeBuildDir string `json:"tree_build_dir"`

	// BuildDir is the directory the target builds into.
	BuildDir string `json:"build_dir"`

	// SourceDir is the directory holding the target's sources.
	SourceDir string `json:"source_dir"`

	// ObjectDir is where the target's object files land. Empty on
	// squashed targets.
	ObjectDir string `json:"object_dir,omitempty"`

	// LinkLanguage is the language of the final link step.
	LinkLanguage string `json:"link_lang,omitempty"`

	// ResultName is the on-disk name of the build result, when applicable.
	ResultName string `json:"result_name,omitempty"`

	// Artifacts lists absolute paths of the build result files.
	Artifacts []string `json:"artifacts"`

	// FilePaths lists the absolute paths of the files the target owns,
	// including paths attributed to it by heuristic resolution.
	FilePaths []string `json:"filepaths"`

	// Flag aggregates, concatenated across the target's file groups in
	// group order. On squashed targets, across members in member order.
	AllIncludes   []string `json:"all_includes"`
	AllDefines    []string `json:"all_defines"`
	AllOtherFlags []string `json:"all_other_flags"`
	AllFlags      []string `json:"all_flags"`
}

// Squashed reports whether the target is a synthetic merge.
func (t *Target) Squashed() bool {
	return t.Kind == TargetSquashed
}

// File is one source or header file record.
type File struct {
	// Path is the file's absolute path.
	Path string `json:"path"`

	// TargetName names the owning target. For files attributed by
	// directory heuristics this may be a squashed target's composite name.
	TargetName string `json:"target_name"`

	// TreeRootDir is the root directory of the owning session.
	TreeRootDir string `json:"tree_root_dir"`

	// TreeBuildDir is the build directory of the owning session.
	TreeBuildDir string `json:"tree_build_dir"`

	// Language is the compile language of the file's group, or the owning
	// target's link language for heuristic records.
	Language string `json:"lang,omitempty"`

	// Heuristic marks records synthesized by resolution or header matching
	// rather than reported by the build system.
	Heuristic bool `json:"heuristics"`

	// OtherFlags holds the free-form compiler flags, tokenized.
	OtherFlags []string `json:"other_flags"`

	// Defines holds the preprocessor definitions without the -D prefix.
	Defines []string `json:"defines"`

	// Includes holds the resolved include directories in search order.
	Includes []string `json:"includes"`

	// Flags is the full compiler flag list: OtherFlags, then -D defines,
	// then include flags. Ordering is deterministic given the inputs.
	Flags []string `json:"flags"`

	// ObjectFile is the derived object path. Empty for records synthesized
	// by directory resolution.
	ObjectFile string `json:"object_file,omitempty"`

	// HeaderFile points at the paired header's path when header matching
	// found one for this source.
	HeaderFile string `json:"header_file,omitempty"`

	// SourceFile points back at the paired source's path on header records
	// produced by header matching.
	SourceFile string `json:"source_file,omitempty"`
}
