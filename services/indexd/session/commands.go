// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"fmt"
	"strings"

	"github.com/cmakekit/cmakeindex/services/indexd/index"
)

// targetTypeExecutable is the cmake target type that produces a runnable
// artifact.
const targetTypeExecutable = "EXECUTABLE"

// BuildCommand renders the shell command that builds one target.
//
// Description:
//
//	Expands the configured command template with the session's build
//	directory and the target name. Squashed targets are synthetic merge
//	records from directory resolution; building "liba|libb" is not a
//	thing cmake understands, so they are rejected.
//
// Outputs:
//
//	string - The command line.
//	error - ErrNotIndexed, ErrUnknownTarget, or index.ErrSquashedTarget.
func (s *Session) BuildCommand(targetName string) (string, error) {
	target, err := s.lookupTarget(targetName)
	if err != nil {
		return "", err
	}
	if target.Squashed() {
		return "", fmt.Errorf("%w: %s", index.ErrSquashedTarget, targetName)
	}

	command := strings.ReplaceAll(s.cfg.Build.CommandTemplate, "{build_dir}", s.buildDir)
	return strings.ReplaceAll(command, "{target}", targetName), nil
}

// RunCommand renders the shell command that runs a built executable
// target with extra arguments appended.
//
// Outputs:
//
//	string - The command line.
//	error - ErrNotIndexed, ErrUnknownTarget, index.ErrSquashedTarget,
//	        ErrNotExecutable, or ErrNoArtifacts.
func (s *Session) RunCommand(targetName string, args []string) (string, error) {
	target, err := s.lookupTarget(targetName)
	if err != nil {
		return "", err
	}
	if target.Squashed() {
		return "", fmt.Errorf("%w: %s", index.ErrSquashedTarget, targetName)
	}
	if target.Type != targetTypeExecutable {
		return "", fmt.Errorf("%w: %s is %s", ErrNotExecutable, targetName, target.Type)
	}
	if len(target.Artifacts) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoArtifacts, targetName)
	}

	parts := append([]string{target.Artifacts[0]}, args...)
	return strings.Join(parts, " "), nil
}

func (s *Session) lookupTarget(name string) (*index.Target, error) {
	idx := s.Index()
	if idx == nil {
		return nil, ErrNotIndexed
	}
	target := idx.Target(name)
	if target == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, name)
	}
	return target, nil
}
