// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package compiledb

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Flag file names recognized by clang-based editor plugins.
const (
	DotClangFileName         = ".clang"
	DotClangCompleteFileName = ".clang_complete"
)

// DotClang renders the body of a .clang file for a flag list.
func DotClang(flags []string) string {
	return "flags=" + strings.Join(flags, " ") + "\n"
}

// DotClangComplete renders the body of a .clang_complete file for a
// flag list.
func DotClangComplete(flags []string) string {
	return strings.Join(flags, " ") + "\n"
}

// WriteDotClang writes a .clang file into dir carrying the given flags.
// Returns the path written.
func WriteDotClang(dir string, flags []string) (string, error) {
	return writeFlagFile(filepath.Join(dir, DotClangFileName), DotClang(flags))
}

// WriteDotClangComplete writes a .clang_complete file into dir carrying
// the given flags. Returns the path written.
func WriteDotClangComplete(dir string, flags []string) (string, error) {
	return writeFlagFile(filepath.Join(dir, DotClangCompleteFileName), DotClangComplete(flags))
}

func writeFlagFile(path, contents string) (string, error) {
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		return "", fmt.Errorf("write flag file: %w", err)
	}
	return path, nil
}
