// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package indexd

import (
	"github.com/cmakekit/cmakeindex/services/indexd/session"
)

// ServiceVersion is the cmake-indexd service version.
const ServiceVersion = "0.1.0"

// OpenSessionRequest is the request body for POST /v1/sessions.
type OpenSessionRequest struct {
	// RootDir is the absolute path of the project root, or any path inside
	// the project tree. Required.
	RootDir string `json:"root_dir" binding:"required"`

	// BuildDir overrides build directory discovery. Optional.
	BuildDir string `json:"build_dir"`

	// CacheEntries are CMake cache definitions applied on every configure,
	// without the -D prefix (e.g. {"CMAKE_BUILD_TYPE": "Debug"}).
	CacheEntries map[string]string `json:"cache_entries"`

	// Reconfigure forces a fresh configure/index cycle even when the
	// session was already open.
	Reconfigure bool `json:"reconfigure"`
}

// SessionListResponse is the response for GET /v1/sessions.
type SessionListResponse struct {
	// Sessions holds one snapshot per open session, ordered by build dir.
	Sessions []session.Info `json:"sessions"`

	// Opens is the number of sessions opened since startup.
	Opens int64 `json:"opens"`

	// Hits is the number of Open calls served from an existing session.
	Hits int64 `json:"hits"`
}

// InvalidateRequest is the request body for POST /v1/sessions/invalidate.
type InvalidateRequest struct {
	// BuildDir names the session to re-index. Required.
	BuildDir string `json:"build_dir" binding:"required"`
}

// CacheValueResponse is the response for GET /v1/query/cache.
type CacheValueResponse struct {
	// Name is the cache variable name that was looked up.
	Name string `json:"name"`

	// Value is the variable's value as recorded by the last configure.
	Value string `json:"value"`
}

// FlagsResponse is the response for GET /v1/query/flags.
type FlagsResponse struct {
	// Path is the file the flags apply to.
	Path string `json:"path"`

	// Flags is the complete compile flag list, either from the index or
	// the per-language defaults when the file is unknown.
	Flags []string `json:"flags"`
}

// CommandResponse is the response for the /v1/commands endpoints.
type CommandResponse struct {
	// Command is the ready-to-run shell command line.
	Command string `json:"command"`
}

// ExportRequest is the request body for POST /v1/export/compiledb.
type ExportRequest struct {
	// BuildDir names the session whose index is exported. Required.
	BuildDir string `json:"build_dir" binding:"required"`
}

// ExportResponse is the response for POST /v1/export/compiledb.
type ExportResponse struct {
	// Path is the absolute path of the written compile_commands.json.
	Path string `json:"path"`
}

// FlagFilesRequest is the request body for POST /v1/export/flags.
type FlagFilesRequest struct {
	// BuildDir names the session to take flags from. Required.
	BuildDir string `json:"build_dir" binding:"required"`

	// Path is the file whose directory receives .clang and .clang_complete.
	// Required.
	Path string `json:"path" binding:"required"`
}

// FlagFilesResponse is the response for POST /v1/export/flags.
type FlagFilesResponse struct {
	// Paths lists the flag files that were written.
	Paths []string `json:"paths"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	// Status is "healthy".
	Status string `json:"status"`

	// Version is the service version.
	Version string `json:"version"`

	// ActiveSessions is the number of currently open sessions.
	ActiveSessions int `json:"active_sessions"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the machine-readable error code.
	Code string `json:"code,omitempty"`

	// Details provides additional error context (optional).
	Details string `json:"details,omitempty"`
}
