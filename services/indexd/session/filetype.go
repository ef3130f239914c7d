// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"path/filepath"

	"github.com/cmakekit/cmakeindex/services/indexd/config"
	"github.com/cmakekit/cmakeindex/services/indexd/index"
)

// FileType classifies a file by its extension.
type FileType int

const (
	// FileTypeUnknown means the extension matched no configured set.
	FileTypeUnknown FileType = iota

	// FileTypeCPPSource is a C++ translation unit.
	FileTypeCPPSource

	// FileTypeCPPHeader is a C++ header.
	FileTypeCPPHeader

	// FileTypeCSource is a C translation unit.
	FileTypeCSource

	// FileTypeCHeader is a C header.
	FileTypeCHeader
)

// String returns a readable name for the file type.
func (t FileType) String() string {
	names := [...]string{"unknown", "cpp_source", "cpp_header", "c_source", "c_header"}
	if int(t) < len(names) {
		return names[t]
	}
	return "unknown"
}

// Language returns the cmake language name for the file type.
func (t FileType) Language() string {
	switch t {
	case FileTypeCPPSource, FileTypeCPPHeader:
		return "CXX"
	case FileTypeCSource, FileTypeCHeader:
		return "C"
	default:
		return ""
	}
}

// Classify maps a path to a file type via its extension.
//
// Description:
//
//	Extension sets are checked in a fixed order: C++ sources, C++
//	headers, C sources, C headers. The order matters for ".h", which
//	appears in both header sets and classifies as a C++ header. Matches
//	are case sensitive; the uppercase variants each set carries are
//	deliberate.
func Classify(path string, types config.FileTypeSettings) FileType {
	ext := filepath.Ext(path)
	switch {
	case containsString(types.CPPSourceExtensions, ext):
		return FileTypeCPPSource
	case containsString(types.CPPHeaderExtensions, ext):
		return FileTypeCPPHeader
	case containsString(types.CSourceExtensions, ext):
		return FileTypeCSource
	case containsString(types.CHeaderExtensions, ext):
		return FileTypeCHeader
	default:
		return FileTypeUnknown
	}
}

// DefaultFlags picks the fallback flag list for a file outside any index.
//
// Description:
//
//	When an index record exists its language decides; otherwise the file
//	extension does. Unknown extensions get the C++ defaults, which keep
//	completion usable in the common case of an unsaved or oddly named
//	buffer.
func DefaultFlags(path string, info *index.File, flags config.FlagSettings, types config.FileTypeSettings) []string {
	if info != nil {
		switch info.Language {
		case "CXX":
			return flags.CPPDefaults
		case "C":
			return flags.CDefaults
		}
	}
	switch Classify(path, types) {
	case FileTypeCSource, FileTypeCHeader:
		return flags.CDefaults
	default:
		return flags.CPPDefaults
	}
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
