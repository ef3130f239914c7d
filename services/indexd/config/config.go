// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config provides configuration loading for cmake-indexd.
//
// Defaults are embedded in the binary; an optional YAML file overlays
// them key by key, so a deployment only states what it changes.
//
// Thread Safety:
//
//	A *Config is read-only after Load returns and safe to share.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gopkg.in/yaml.v3"
)

// MaxConfigFileSize caps how much configuration YAML Load will read.
const MaxConfigFileSize = 1024 * 1024

// EnvConfigPath names the environment variable holding the configuration
// file path when no explicit path is given.
const EnvConfigPath = "CMAKE_INDEXD_CONFIG"

//go:embed defaults.yaml
var defaultConfigYAML []byte

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	configLoadErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "indexd_config_load_errors_total",
		Help: "Total configuration load failures",
	})

	configLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "indexd_config_load_duration_seconds",
		Help:    "Duration of configuration loading",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5},
	})
)

// =============================================================================
// Types
// =============================================================================

// Config is the root configuration for the daemon.
type Config struct {
	// ListenAddr is the host:port the HTTP service binds.
	ListenAddr string `yaml:"listen_addr" validate:"required,hostname_port"`

	CMake     CMakeSettings     `yaml:"cmake"`
	Build     BuildSettings     `yaml:"build"`
	Discovery DiscoverySettings `yaml:"discovery"`
	Export    ExportSettings    `yaml:"export"`
	Flags     FlagSettings      `yaml:"flags"`
	FileTypes FileTypeSettings  `yaml:"filetypes"`
}

// CMakeSettings controls how cmake server processes are spawned.
type CMakeSettings struct {
	// Binary is the cmake executable to spawn.
	Binary string `yaml:"binary" validate:"required"`

	// Generator is used when handshaking against a build directory that
	// has no CMakeCache.txt yet. Directories with a cache reuse the
	// generator recorded there.
	Generator string `yaml:"generator" validate:"required"`

	// SocketBase is the unix socket path template. {pid} and {build_dir}
	// are substituted, with slashes in the build directory replaced so
	// the result is a single path component.
	SocketBase string `yaml:"socket_base" validate:"required,contains={pid}"`

	// PersistentServer keeps server processes alive between requests.
	// When false every session operation spawns and tears down a server.
	PersistentServer bool `yaml:"persistent_server"`
}

// BuildSettings controls build command generation.
type BuildSettings struct {
	// CommandTemplate is expanded with {build_dir} and {target}.
	CommandTemplate string `yaml:"command_template" validate:"required,contains={build_dir}"`
}

// DiscoverySettings controls project root and build directory discovery.
type DiscoverySettings struct {
	// BuildDirs are probed under the project root, in order, for a
	// CMakeCache.txt. "." means the root itself.
	BuildDirs []string `yaml:"build_dirs" validate:"min=1"`

	// RootFiles mark a directory as a project root candidate.
	RootFiles []string `yaml:"root_files" validate:"min=1"`
}

// ExportSettings controls compilation database placement.
type ExportSettings struct {
	// DatabaseInRoot places compile_commands.json in the project root
	// instead of the build directory.
	DatabaseInRoot bool `yaml:"database_in_root"`
}

// FlagSettings carries the fallback flags used when a file is not in
// any index.
type FlagSettings struct {
	CPPDefaults []string `yaml:"cpp_defaults"`
	CDefaults   []string `yaml:"c_defaults"`
}

// FileTypeSettings maps file extensions to source languages.
type FileTypeSettings struct {
	CPPSourceExtensions []string `yaml:"cpp_source_extensions" validate:"min=1"`
	CPPHeaderExtensions []string `yaml:"cpp_header_extensions" validate:"min=1"`
	CSourceExtensions   []string `yaml:"c_source_extensions" validate:"min=1"`
	CHeaderExtensions   []string `yaml:"c_header_extensions" validate:"min=1"`
}

// =============================================================================
// Loading
// =============================================================================

var configValidate = validator.New()

// Load builds a Config from the embedded defaults, overlaying the YAML
// file at path when one is given.
//
// Inputs:
//
//	path - Configuration file to overlay, or "" for pure defaults.
//
// Outputs:
//
//	*Config - The merged, validated configuration.
//	error - Non-nil on read, parse, or validation failure.
func Load(path string) (*Config, error) {
	start := time.Now()
	defer func() {
		configLoadDuration.Observe(time.Since(start).Seconds())
	}()

	cfg := &Config{}
	if err := yaml.Unmarshal(defaultConfigYAML, cfg); err != nil {
		configLoadErrors.Inc()
		return nil, fmt.Errorf("parse embedded defaults: %w", err)
	}

	if path != "" {
		data, err := readConfigFile(path)
		if err != nil {
			configLoadErrors.Inc()
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			configLoadErrors.Inc()
			return nil, fmt.Errorf("parse configuration %s: %w", path, err)
		}
		slog.Info("loaded configuration overrides",
			slog.String("path", path),
		)
	}

	if err := configValidate.Struct(cfg); err != nil {
		configLoadErrors.Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// LocatePath finds a configuration file when none was passed explicitly.
//
// Description:
//
//	Checks the CMAKE_INDEXD_CONFIG environment variable first, then a
//	small set of conventional locations. Returns "" when nothing is
//	found, which means pure defaults.
func LocatePath() string {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path
	}
	for _, loc := range []string{"./cmake-indexd.yaml", "./config/cmake-indexd.yaml"} {
		if _, err := os.Stat(loc); err == nil {
			abs, _ := filepath.Abs(loc)
			return abs
		}
	}
	return ""
}

// readConfigFile reads a configuration file with path and size checks.
func readConfigFile(path string) ([]byte, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve configuration path: %w", err)
	}
	if strings.Contains(abs, "..") {
		return nil, fmt.Errorf("%w: path traversal not allowed: %s", ErrInvalidConfig, abs)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat configuration: %w", err)
	}
	if info.Size() > MaxConfigFileSize {
		return nil, fmt.Errorf("%w: configuration file too large: %d bytes (max %d)",
			ErrInvalidConfig, info.Size(), MaxConfigFileSize)
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read configuration: %w", err)
	}
	return data, nil
}

// =============================================================================
// Derived Values
// =============================================================================

// SocketPath expands the socket template for one server instance.
//
// Description:
//
//	Substitutes {pid} and {build_dir} into the configured socket base.
//	Slashes in the build directory become percent signs so the whole
//	directory identity fits in one path component; two daemons pointed
//	at different build directories never collide.
func (c *Config) SocketPath(pid int, buildDir string) string {
	path := strings.ReplaceAll(c.CMake.SocketBase, "{pid}", strconv.Itoa(pid))
	return strings.ReplaceAll(path, "{build_dir}", strings.ReplaceAll(buildDir, "/", "%"))
}
