// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package index

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cmakekit/cmakeindex/services/indexd/cmake"
)

// =============================================================================
// INDEX
// =============================================================================

// Index is the queryable model built from one codemodel snapshot.
//
// Description:
//
//	Holds projects, targets and files keyed by name respectively absolute
//	path, plus the flattened configuration cache. An index is scoped to one
//	(root directory, build directory) pair for its lifetime; it is discarded
//	and rebuilt wholesale on reconfiguration, never patched.
//
//	Insertion order of files and targets is tracked: compilation-database
//	projection follows file insertion order, and squashed-target member
//	order follows target insertion order.
//
// Thread Safety:
//
//	Safe for concurrent use. Resolve mutates the index (memoized backfill)
//	under the write lock; all other queries take the read lock.
type Index struct {
	rootDir  string
	buildDir string

	mu          sync.RWMutex
	projects    map[string]*Project
	targets     map[string]*Target
	files       map[string]*File
	cache       map[string]string
	projectList []string
	targetList  []string
	fileList    []string
}

// Build converts one codemodel snapshot plus a cache dump into an index.
//
// Description:
//
//	Converts every project of the first configuration, then runs the
//	header-matching pass over all converted files, then flattens the cache
//	reply. Multi-configuration generators report several configurations;
//	the first one wins, matching single-configuration behavior.
//
// Inputs:
//
//	ctx - Context for tracing; header matching reads source files from disk.
//	rootDir - Root directory the index is scoped to.
//	buildDir - Build directory the index is scoped to.
//	codemodel - The codemodel reply.
//	cacheReply - The cache reply; may be nil when the caller skips it.
//
// Outputs:
//
//	*Index - The populated index.
//	error - ErrNoConfigurations when the codemodel is empty.
func Build(ctx context.Context, rootDir, buildDir string, codemodel *cmake.CodemodelReply, cacheReply *cmake.CacheReply) (*Index, error) {
	if codemodel == nil || len(codemodel.Configurations) == 0 {
		return nil, ErrNoConfigurations
	}

	_, span := tracer.Start(ctx, "Index.Build",
		trace.WithAttributes(attribute.String("index.build_dir", buildDir)),
	)
	defer span.End()
	start := time.Now()

	idx := &Index{
		rootDir:  rootDir,
		buildDir: buildDir,
		projects: make(map[string]*Project),
		targets:  make(map[string]*Target),
		files:    make(map[string]*File),
		cache:    make(map[string]string),
	}

	configuration := &codemodel.Configurations[0]
	for i := range configuration.Projects {
		project, targets, files := convertProject(&configuration.Projects[i], rootDir, buildDir)
		if _, exists := idx.projects[project.Name]; !exists {
			idx.projectList = append(idx.projectList, project.Name)
		}
		idx.projects[project.Name] = project
		for _, target := range targets {
			idx.insertTarget(target)
		}
		for _, file := range files {
			idx.insertFile(file)
		}
	}

	pairings := idx.pairHeaders()

	if cacheReply != nil {
		for _, entry := range cacheReply.Cache {
			idx.cache[entry.Key] = entry.Value
		}
	}

	span.SetAttributes(
		attribute.Int("index.files", len(idx.files)),
		attribute.Int("index.targets", len(idx.targets)),
		attribute.Int("index.header_pairings", pairings),
	)
	recordBuildMetrics(ctx, time.Since(start), len(idx.files), pairings)
	return idx, nil
}

// insertFile adds or replaces a file record. Replacement keeps the path's
// original position in insertion order.
func (idx *Index) insertFile(file *File) {
	if _, exists := idx.files[file.Path]; !exists {
		idx.fileList = append(idx.fileList, file.Path)
	}
	idx.files[file.Path] = file
}

// insertTarget adds or replaces a target record, keeping insertion order.
func (idx *Index) insertTarget(target *Target) {
	if _, exists := idx.targets[target.Name]; !exists {
		idx.targetList = append(idx.targetList, target.Name)
	}
	idx.targets[target.Name] = target
}

// =============================================================================
// QUERIES
// =============================================================================

// Lookup returns the file record for an absolute path, or nil when the path
// is not in the index. Lookup never mutates; unknown paths stay unknown.
func (idx *Index) Lookup(path string) *File {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.files[path]
}

// Resolve returns the file record for an absolute path, synthesizing one
// for unknown paths when directory heuristics can attribute an owner.
//
// Description:
//
//	An exact match short-circuits. On miss, every real target owning at
//	least one file in the path's directory is collected: none means the
//	file stays unknown (nil), exactly one attributes the path to that
//	target, several attribute it to a squashed target merging their flag
//	sets, registered in the target map under its composite name. The
//	synthesized record is cached, so the next Resolve or Lookup for the
//	same path is an exact hit.
//
// Inputs:
//
//	ctx - Context for tracing.
//	path - Absolute file path.
//
// Outputs:
//
//	*File - The file record, or nil when no target owns the directory.
//	        Callers treat nil as "use generic default flags", not an error.
func (idx *Index) Resolve(ctx context.Context, path string) *File {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if file, ok := idx.files[path]; ok {
		recordResolution(ctx, resolutionExact)
		return file
	}

	members := idx.targetsInDirectory(filepath.Dir(path))
	if len(members) == 0 {
		recordResolution(ctx, resolutionUnknown)
		return nil
	}

	merged := mergeTargets(members)
	file := &File{
		Path:         path,
		TargetName:   merged.Name,
		TreeRootDir:  merged.TreeRootDir,
		TreeBuildDir: merged.TreeBuildDir,
		Language:     merged.LinkLanguage,
		Heuristic:    true,
		OtherFlags:   merged.AllOtherFlags,
		Defines:      merged.AllDefines,
		Includes:     merged.AllIncludes,
		Flags:        merged.AllFlags,
	}
	idx.insertFile(file)

	// A single-member merge collapses onto the real target; a true squash
	// is registered so the file's owner stays resolvable by name.
	owner, ok := idx.targets[merged.Name]
	if !ok {
		idx.insertTarget(merged)
		owner = merged
	}
	owner.FilePaths = append(append([]string{}, owner.FilePaths...), file.Path)

	if len(members) > 1 {
		recordResolution(ctx, resolutionSquashed)
	} else {
		recordResolution(ctx, resolutionDirectory)
	}
	return file
}

// targetsInDirectory returns every real target owning at least one file in
// dir, in target insertion order. Squashed targets are resolution artifacts,
// not owners, and never participate.
func (idx *Index) targetsInDirectory(dir string) []*Target {
	var members []*Target
	for _, name := range idx.targetList {
		target := idx.targets[name]
		if target.Kind == TargetSquashed {
			continue
		}
		for _, path := range target.FilePaths {
			if filepath.Dir(path) == dir {
				members = append(members, target)
				break
			}
		}
	}
	return members
}

// Target returns the target record for a name, or nil when unknown.
// Squashed targets registered by Resolve are included.
func (idx *Index) Target(name string) *Target {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.targets[name]
}

// Project returns the project record for a name, or nil when unknown.
func (idx *Index) Project(name string) *Project {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.projects[name]
}

// CacheVariable returns the value of a configuration cache variable.
// The second result is false when the variable does not exist; values are
// never fabricated.
func (idx *Index) CacheVariable(name string) (string, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	value, ok := idx.cache[name]
	return value, ok
}

// Files returns every file record in insertion order.
func (idx *Index) Files() []*File {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	files := make([]*File, 0, len(idx.fileList))
	for _, path := range idx.fileList {
		files = append(files, idx.files[path])
	}
	return files
}

// Targets returns every target record in insertion order, squashed
// targets included.
func (idx *Index) Targets() []*Target {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	targets := make([]*Target, 0, len(idx.targetList))
	for _, name := range idx.targetList {
		targets = append(targets, idx.targets[name])
	}
	return targets
}

// Projects returns every project record in insertion order.
func (idx *Index) Projects() []*Project {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	projects := make([]*Project, 0, len(idx.projectList))
	for _, name := range idx.projectList {
		projects = append(projects, idx.projects[name])
	}
	return projects
}

// RootDir returns the root directory the index is scoped to.
func (idx *Index) RootDir() string {
	return idx.rootDir
}

// BuildDir returns the build directory the index is scoped to.
func (idx *Index) BuildDir() string {
	return idx.buildDir
}
