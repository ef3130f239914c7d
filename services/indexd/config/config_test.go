// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7756", cfg.ListenAddr)
	assert.Equal(t, "/usr/bin/cmake", cfg.CMake.Binary)
	assert.Equal(t, "Unix Makefiles", cfg.CMake.Generator)
	assert.True(t, cfg.CMake.PersistentServer)
	assert.Equal(t, "/usr/bin/cmake --build {build_dir} --target {target}", cfg.Build.CommandTemplate)
	assert.Equal(t, []string{"build", "."}, cfg.Discovery.BuildDirs)
	assert.Equal(t, []string{"CMakeLists.txt"}, cfg.Discovery.RootFiles)
	assert.True(t, cfg.Export.DatabaseInRoot)
	assert.Equal(t, "-std=c++14", cfg.Flags.CPPDefaults[0])
	assert.Contains(t, cfg.FileTypes.CPPSourceExtensions, ".cc")
	assert.Contains(t, cfg.FileTypes.CPPHeaderExtensions, ".h")
	assert.Equal(t, []string{".c"}, cfg.FileTypes.CSourceExtensions)
}

func TestLoad_OverlayFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "override.yaml")
	overlay := "listen_addr: \"0.0.0.0:9000\"\ncmake:\n  binary: \"/opt/cmake/bin/cmake\"\n"
	require.NoError(t, os.WriteFile(path, []byte(overlay), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.ListenAddr)
	assert.Equal(t, "/opt/cmake/bin/cmake", cfg.CMake.Binary)

	// Untouched keys keep their defaults.
	assert.Equal(t, "Unix Makefiles", cfg.CMake.Generator)
	assert.Equal(t, []string{"build", "."}, cfg.Discovery.BuildDirs)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: [unclosed"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_FileTooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "huge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("# "+strings.Repeat("x", MaxConfigFileSize)), 0644))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: \"not-an-address\"\n"), 0644))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSocketPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	got := cfg.SocketPath(4711, "/home/dev/proj/build")
	assert.Equal(t, "/tmp/cmake_indexd_4711_%home%dev%proj%build", got)
}

func TestLocatePath_EnvOverride(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/cmake-indexd/daemon.yaml")
	assert.Equal(t, "/etc/cmake-indexd/daemon.yaml", LocatePath())
}
