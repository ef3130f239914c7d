// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package index

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// pairHeaders runs the header-matching pass over every file in the index.
//
// Description:
//
//	For each converted source file, scans its #include directives for a
//	header named like the source itself and searches the source's include
//	directories for it. Each hit inserts a header record carrying the
//	source's flags plus a back-reference, and the source record gains the
//	forward reference. Pairings are collected first and applied after the
//	scan, so a header inserted for one source is never itself scanned.
//
//	Examining the directives catches headers that sit outside the include
//	path and are pulled in as "utils/stuff.hpp" or "../stuff.hpp".
//
// Outputs:
//
//	int - Number of pairings made.
func (idx *Index) pairHeaders() int {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	type pairing struct {
		source *File
		header *File
	}
	var pairings []pairing
	for _, path := range idx.fileList {
		source := idx.files[path]
		if header := matchHeader(source, cwd); header != nil {
			pairings = append(pairings, pairing{source: source, header: header})
		}
	}

	for _, p := range pairings {
		p.source.HeaderFile = p.header.Path
		idx.insertFile(p.header)
	}
	return len(pairings)
}

// matchHeader looks for the header counterpart of one source file.
//
// Description:
//
//	Scans the source's #include directives for one whose base name with the
//	extension stripped matches the source's own, then probes the working
//	directory and the source's include directories, in order, for a file at
//	that relative path. The first hit becomes the header record: a copy of
//	the source record marked heuristic, with the path swapped and a
//	back-reference added.
//
//	Only the first name-matching directive is considered. When it resolves
//	nowhere, no pairing is made at all; later directives are not tried.
//	Unreadable or undecodable sources degrade to "no pairing", never to an
//	index-build failure.
//
// Outputs:
//
//	*File - The header record, or nil when no pairing was found.
func matchHeader(source *File, cwd string) *File {
	included, err := scanIncludes(source.Path)
	if err != nil {
		return nil
	}

	base := trimExt(filepath.Base(source.Path))
	for _, name := range included {
		if trimExt(filepath.Base(name)) != base {
			continue
		}

		for _, dir := range append([]string{cwd}, source.Includes...) {
			candidate := filepath.Join(dir, name)
			info, err := os.Stat(candidate)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			header := *source
			header.Heuristic = true
			header.SourceFile = source.Path
			header.Path = absPath(candidate)
			return &header
		}
		return nil
	}
	return nil
}

// scanIncludes extracts the operand of every #include directive in a file.
// The operand keeps its relative path but loses the <> or "" delimiters.
func scanIncludes(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var included []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "#include") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || len(fields[1]) < 2 {
			continue
		}
		included = append(included, fields[1][1:len(fields[1])-1])
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return included, nil
}

// trimExt strips the extension from a file name.
func trimExt(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}
