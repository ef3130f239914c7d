// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cmakekit/cmakeindex/pkg/ux"
	"github.com/cmakekit/cmakeindex/services/indexd/config"
	"github.com/cmakekit/cmakeindex/services/indexd/session"
)

// commandTimeout bounds one CLI invocation. A first open configures the
// whole build tree, which on large projects takes minutes.
const commandTimeout = 5 * time.Minute

// commandContext returns the context every run function operates under.
func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), commandTimeout)
}

// fatal prints an error through the personality-aware helpers and exits.
func fatal(format string, args ...interface{}) {
	ux.Error(fmt.Sprintf(format, args...))
	os.Exit(1)
}

// loadWorkspaceConfig loads configuration from --config or the
// conventional locations.
func loadWorkspaceConfig() *config.Config {
	path := configPathFlag
	if path == "" {
		path = config.LocatePath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		fatal("load configuration: %v", err)
	}
	return cfg
}

// resolveRootDir returns the project root: the --root override when
// given, else discovery upwards from startPath.
func resolveRootDir(cfg *config.Config, startPath string) (string, error) {
	if rootDirFlag != "" {
		abs, err := filepath.Abs(rootDirFlag)
		if err != nil {
			return "", fmt.Errorf("resolve --root: %w", err)
		}
		return abs, nil
	}
	root, err := session.ProjectRoot(startPath, cfg.Discovery.RootFiles)
	if err != nil {
		return "", fmt.Errorf("%w (markers: %s); pass --root",
			err, strings.Join(cfg.Discovery.RootFiles, ", "))
	}
	return root, nil
}

// parseDefines converts NAME=VALUE pairs into a cache argument map.
func parseDefines(defs []string) (map[string]string, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(defs))
	for _, def := range defs {
		key, value, found := strings.Cut(def, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("malformed define %q, want NAME=VALUE", def)
		}
		out[key] = value
	}
	return out, nil
}

// openWorkspace loads configuration, discovers the project root starting
// at startPath, and opens an indexed session against it. The caller owns
// the registry and must CloseAll when done; sessions hold a cmake server
// process and the build directory lock.
func openWorkspace(ctx context.Context, startPath string) (*session.Registry, *session.Session) {
	cfg := loadWorkspaceConfig()

	// One-shot invocations must not leave cmake servers behind. Queries
	// run against the in-memory index after the refresh pipeline anyway.
	cfg.CMake.PersistentServer = false

	rootDir, err := resolveRootDir(cfg, startPath)
	if err != nil {
		fatal("%v", err)
	}
	cacheArgs, err := parseDefines(defineFlags)
	if err != nil {
		fatal("%v", err)
	}

	registry := session.NewRegistry(cfg, session.WithoutWatcher())
	req := session.OpenRequest{
		RootDir:   rootDir,
		BuildDir:  buildDirFlag,
		CacheArgs: cacheArgs,
	}

	var sess *session.Session
	open := func() error {
		var openErr error
		sess, openErr = registry.Open(ctx, req)
		return openErr
	}

	// The spinner writes to stdout; keep it away from output that gets
	// piped or parsed.
	if !jsonOutput && ux.ShouldShowProgress() {
		err = ux.WithSpinner("Indexing "+rootDir, open)
	} else {
		err = open()
	}
	if err != nil {
		registry.CloseAll()
		fatal("open session: %v", err)
	}
	return registry, sess
}

// workingDir returns the current directory or dies trying.
func workingDir() string {
	dir, err := os.Getwd()
	if err != nil {
		fatal("resolve working directory: %v", err)
	}
	return dir
}

// absPath resolves a command line path argument.
func absPath(arg string) string {
	abs, err := filepath.Abs(arg)
	if err != nil {
		fatal("resolve %s: %v", arg, err)
	}
	return abs
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		fatal("encode JSON: %v", err)
	}
}
