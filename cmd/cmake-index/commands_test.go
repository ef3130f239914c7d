// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cmakekit/cmakeindex/services/indexd/config"
)

// =============================================================================
// COMMAND REGISTRATION TESTS
// =============================================================================

func TestRootCommand_RegistersAllCommands(t *testing.T) {
	want := []string{
		"query",
		"flags",
		"targets",
		"target",
		"project",
		"cache",
		"export",
		"build-command",
		"run-command",
		"version",
	}

	registered := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		registered[c.Name()] = true
	}

	for _, name := range want {
		if !registered[name] {
			t.Errorf("command %q not registered on root", name)
		}
	}
}

func TestExportCommand_RegistersSubcommands(t *testing.T) {
	want := []string{"compiledb", "flags"}

	registered := make(map[string]bool)
	for _, c := range exportCmd.Commands() {
		registered[c.Name()] = true
	}

	for _, name := range want {
		if !registered[name] {
			t.Errorf("subcommand %q not registered on export", name)
		}
	}
}

func TestRootCommand_PersistentFlags(t *testing.T) {
	for _, name := range []string{"root", "build-dir", "config", "define", "json", "personality"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("persistent flag %q not registered", name)
		}
	}
}

// =============================================================================
// parseDefines TESTS
// =============================================================================

func TestParseDefines(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		want    map[string]string
		wantErr bool
	}{
		{
			name:  "empty",
			input: nil,
			want:  nil,
		},
		{
			name:  "single define",
			input: []string{"CMAKE_BUILD_TYPE=Debug"},
			want:  map[string]string{"CMAKE_BUILD_TYPE": "Debug"},
		},
		{
			name:  "multiple defines",
			input: []string{"A=1", "B=2"},
			want:  map[string]string{"A": "1", "B": "2"},
		},
		{
			name:  "empty value",
			input: []string{"FEATURE="},
			want:  map[string]string{"FEATURE": ""},
		},
		{
			name:  "value with equals",
			input: []string{"FLAGS=-O2 -DX=1"},
			want:  map[string]string{"FLAGS": "-O2 -DX=1"},
		},
		{
			name:    "missing equals",
			input:   []string{"NOVALUE"},
			wantErr: true,
		},
		{
			name:    "empty name",
			input:   []string{"=value"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDefines(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseDefines(%v) expected error, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseDefines(%v) unexpected error: %v", tt.input, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseDefines(%v) = %v, want %v", tt.input, got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("parseDefines(%v)[%q] = %q, want %q", tt.input, k, got[k], v)
				}
			}
		})
	}
}

// =============================================================================
// resolveRootDir TESTS
// =============================================================================

func TestResolveRootDir_FlagOverride(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}

	dir := t.TempDir()
	orig := rootDirFlag
	rootDirFlag = dir
	defer func() { rootDirFlag = orig }()

	got, err := resolveRootDir(cfg, t.TempDir())
	if err != nil {
		t.Fatalf("resolveRootDir: %v", err)
	}
	if got != dir {
		t.Errorf("resolveRootDir = %q, want %q", got, dir)
	}
}

func TestResolveRootDir_Discovery(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "CMakeLists.txt"), []byte("project(demo)\n"), 0644); err != nil {
		t.Fatal(err)
	}
	nested := filepath.Join(root, "src", "engine")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	orig := rootDirFlag
	rootDirFlag = ""
	defer func() { rootDirFlag = orig }()

	got, err := resolveRootDir(cfg, nested)
	if err != nil {
		t.Fatalf("resolveRootDir: %v", err)
	}
	if got != root {
		t.Errorf("resolveRootDir = %q, want %q", got, root)
	}
}

func TestResolveRootDir_NotFound(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}

	orig := rootDirFlag
	rootDirFlag = ""
	defer func() { rootDirFlag = orig }()

	if _, err := resolveRootDir(cfg, t.TempDir()); err == nil {
		t.Error("expected error for directory without markers")
	}
}
