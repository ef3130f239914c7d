// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package indexd exposes the session registry over HTTP.
//
// The service is a thin adapter: handlers bind a request, call into the
// registry or a session, and translate domain errors to statuses. All
// indexing state lives in the session and index packages.
package indexd

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cmakekit/cmakeindex/services/indexd/session"
)

// Handlers contains the HTTP handlers for cmake-indexd.
type Handlers struct {
	registry *session.Registry
}

// NewHandlers creates handlers over the given registry.
func NewHandlers(registry *session.Registry) *Handlers {
	return &Handlers{registry: registry}
}

// HandleOpenSession handles POST /v1/sessions.
//
// Description:
//
//	Opens (or returns) the session for a project, running the full
//	configure/generate/index pipeline on first open. With reconfigure
//	set, the session is re-indexed even when it already exists.
//
// Request Body:
//
//	OpenSessionRequest
//
// Response:
//
//	200 OK: session.Info
//	400 Bad Request: Validation error
//	409 Conflict: Build directory locked by another process
//	502 Bad Gateway: cmake could not be started or rejected the project
func (h *Handlers) HandleOpenSession(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleOpenSession")

	var req OpenSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	logger.Info("opening session",
		"root_dir", req.RootDir,
		"build_dir", req.BuildDir,
		"reconfigure", req.Reconfigure)

	s, err := h.registry.Open(c.Request.Context(), session.OpenRequest{
		RootDir:   req.RootDir,
		BuildDir:  req.BuildDir,
		CacheArgs: req.CacheEntries,
	})
	if err != nil {
		status, code := statusForError(err)
		logger.Error("open failed", "error", err)
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	if req.Reconfigure {
		if err := h.registry.Refresh(c.Request.Context(), s.BuildDir()); err != nil {
			status, code := statusForError(err)
			logger.Error("reconfigure failed", "error", err)
			c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
			return
		}
	}

	info := s.Snapshot()
	logger.Info("session open",
		"build_dir", info.BuildDir,
		"generation", info.Generation,
		"files", info.FileCount,
		"targets", info.TargetCount)

	c.JSON(http.StatusOK, info)
}

// HandleListSessions handles GET /v1/sessions.
//
// Response:
//
//	200 OK: SessionListResponse (sessions ordered by build directory)
func (h *Handlers) HandleListSessions(c *gin.Context) {
	opens, hits, _ := h.registry.Stats()
	c.JSON(http.StatusOK, SessionListResponse{
		Sessions: h.registry.Snapshots(),
		Opens:    opens,
		Hits:     hits,
	})
}

// HandleCloseSession handles DELETE /v1/sessions.
//
// Query Parameters:
//
//	build_dir: build directory of the session to close (required)
//
// Response:
//
//	200 OK: empty object
//	400 Bad Request: Missing build_dir
//	404 Not Found: No such session
func (h *Handlers) HandleCloseSession(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCloseSession")

	buildDir := c.Query("build_dir")
	if buildDir == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "build_dir query parameter is required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	if err := h.registry.Close(buildDir); err != nil {
		status, code := statusForError(err)
		logger.Warn("close failed", "build_dir", buildDir, "error", err)
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	logger.Info("session closed", "build_dir", buildDir)
	c.JSON(http.StatusOK, gin.H{})
}

// HandleInvalidate handles POST /v1/sessions/invalidate.
//
// Description:
//
//	Forces a configure/generate/index cycle for an open session. The
//	previous index keeps serving queries until the new one is swapped in.
//
// Request Body:
//
//	InvalidateRequest
//
// Response:
//
//	200 OK: session.Info
//	404 Not Found: No such session
//	502 Bad Gateway: cmake rejected the project
func (h *Handlers) HandleInvalidate(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleInvalidate")

	var req InvalidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	if err := h.registry.Refresh(c.Request.Context(), req.BuildDir); err != nil {
		status, code := statusForError(err)
		logger.Error("invalidate failed", "build_dir", req.BuildDir, "error", err)
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	s, ok := h.registry.Get(req.BuildDir)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: session.ErrSessionNotFound.Error(),
			Code:  "SESSION_NOT_FOUND",
		})
		return
	}

	logger.Info("session invalidated", "build_dir", req.BuildDir)
	c.JSON(http.StatusOK, s.Snapshot())
}

// HandleQueryFile handles GET /v1/query/file.
//
// Description:
//
//	Returns the File record for a source path. Without build_dir the
//	project is discovered from the path and opened on demand. With
//	resolve=true (the default) unknown files are matched to a sibling
//	record by directory and header heuristics.
//
// Query Parameters:
//
//	path: absolute path of the file (required)
//	build_dir: session to query; discovery when absent
//	resolve: "true" (default) or "false" for exact lookup only
//
// Response:
//
//	200 OK: index.File
//	404 Not Found: File not in the index, or no project found
func (h *Handlers) HandleQueryFile(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleQueryFile")

	path := c.Query("path")
	if path == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "path query parameter is required",
			Code:  "INVALID_REQUEST",
		})
		return
	}
	resolve := c.DefaultQuery("resolve", "true") == "true"

	s, err := h.sessionFor(c, path)
	if err != nil {
		status, code := statusForError(err)
		logger.Warn("no session for file", "path", path, "error", err)
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	file := s.QueryFile(c.Request.Context(), path, resolve)
	if file == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "file is not part of the project model",
			Code:  "FILE_NOT_INDEXED",
		})
		return
	}

	c.JSON(http.StatusOK, file)
}

// HandleQueryTarget handles GET /v1/query/target.
//
// Query Parameters:
//
//	build_dir: session to query (required)
//	name: target name (required)
//
// Response:
//
//	200 OK: index.Target
//	404 Not Found: No such session or target
func (h *Handlers) HandleQueryTarget(c *gin.Context) {
	buildDir, name, ok := requireBuildDirAndParam(c, "name")
	if !ok {
		return
	}

	s, found := h.registry.Get(buildDir)
	if !found {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: session.ErrSessionNotFound.Error(),
			Code:  "SESSION_NOT_FOUND",
		})
		return
	}

	target := s.Target(name)
	if target == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "no target named " + name,
			Code:  "UNKNOWN_TARGET",
		})
		return
	}

	c.JSON(http.StatusOK, target)
}

// HandleQueryProject handles GET /v1/query/project.
//
// Query Parameters:
//
//	build_dir: session to query (required)
//	name: project name (required)
//
// Response:
//
//	200 OK: index.Project
//	404 Not Found: No such session or project
func (h *Handlers) HandleQueryProject(c *gin.Context) {
	buildDir, name, ok := requireBuildDirAndParam(c, "name")
	if !ok {
		return
	}

	s, found := h.registry.Get(buildDir)
	if !found {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: session.ErrSessionNotFound.Error(),
			Code:  "SESSION_NOT_FOUND",
		})
		return
	}

	project := s.Project(name)
	if project == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "no project named " + name,
			Code:  "UNKNOWN_PROJECT",
		})
		return
	}

	c.JSON(http.StatusOK, project)
}

// HandleQueryCache handles GET /v1/query/cache.
//
// Query Parameters:
//
//	build_dir: session to query (required)
//	name: cache variable name (required)
//
// Response:
//
//	200 OK: CacheValueResponse
//	404 Not Found: No such session or variable
func (h *Handlers) HandleQueryCache(c *gin.Context) {
	buildDir, name, ok := requireBuildDirAndParam(c, "name")
	if !ok {
		return
	}

	s, found := h.registry.Get(buildDir)
	if !found {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: session.ErrSessionNotFound.Error(),
			Code:  "SESSION_NOT_FOUND",
		})
		return
	}

	value, found := s.CacheVariable(name)
	if !found {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "no cache variable named " + name,
			Code:  "CACHE_VARIABLE_NOT_FOUND",
		})
		return
	}

	c.JSON(http.StatusOK, CacheValueResponse{Name: name, Value: value})
}

// HandleQueryFlags handles GET /v1/query/flags.
//
// Description:
//
//	Returns the compile flags for a file. Files absent from the index get
//	the per-language defaults, so this endpoint always answers for an
//	open session.
//
// Query Parameters:
//
//	path: absolute path of the file (required)
//	build_dir: session to query; discovery when absent
//
// Response:
//
//	200 OK: FlagsResponse
//	404 Not Found: No project found for the path
func (h *Handlers) HandleQueryFlags(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleQueryFlags")

	path := c.Query("path")
	if path == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "path query parameter is required",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	s, err := h.sessionFor(c, path)
	if err != nil {
		status, code := statusForError(err)
		logger.Warn("no session for file", "path", path, "error", err)
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	c.JSON(http.StatusOK, FlagsResponse{
		Path:  path,
		Flags: s.FlagsForFile(c.Request.Context(), path),
	})
}

// HandleBuildCommand handles GET /v1/commands/build.
//
// Query Parameters:
//
//	build_dir: session to query (required)
//	target: target name (required)
//
// Response:
//
//	200 OK: CommandResponse
//	404 Not Found: No such session or target
//	409 Conflict: Target name is ambiguous across projects
func (h *Handlers) HandleBuildCommand(c *gin.Context) {
	buildDir, target, ok := requireBuildDirAndParam(c, "target")
	if !ok {
		return
	}

	s, found := h.registry.Get(buildDir)
	if !found {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: session.ErrSessionNotFound.Error(),
			Code:  "SESSION_NOT_FOUND",
		})
		return
	}

	command, err := s.BuildCommand(target)
	if err != nil {
		status, code := statusForError(err)
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	c.JSON(http.StatusOK, CommandResponse{Command: command})
}

// HandleRunCommand handles GET /v1/commands/run.
//
// Query Parameters:
//
//	build_dir: session to query (required)
//	target: target name (required)
//	arg: repeated, appended to the command line in order
//
// Response:
//
//	200 OK: CommandResponse
//	400 Bad Request: Target is not an executable
//	404 Not Found: No such session, target, or artifact
func (h *Handlers) HandleRunCommand(c *gin.Context) {
	buildDir, target, ok := requireBuildDirAndParam(c, "target")
	if !ok {
		return
	}

	s, found := h.registry.Get(buildDir)
	if !found {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: session.ErrSessionNotFound.Error(),
			Code:  "SESSION_NOT_FOUND",
		})
		return
	}

	command, err := s.RunCommand(target, c.QueryArray("arg"))
	if err != nil {
		status, code := statusForError(err)
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	c.JSON(http.StatusOK, CommandResponse{Command: command})
}

// HandleExportCompileDB handles POST /v1/export/compiledb.
//
// Request Body:
//
//	ExportRequest
//
// Response:
//
//	200 OK: ExportResponse
//	404 Not Found: No such session
//	409 Conflict: Session has no index yet
func (h *Handlers) HandleExportCompileDB(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleExportCompileDB")

	var req ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	s, found := h.registry.Get(req.BuildDir)
	if !found {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: session.ErrSessionNotFound.Error(),
			Code:  "SESSION_NOT_FOUND",
		})
		return
	}

	path, err := s.ExportDatabase(c.Request.Context())
	if err != nil {
		status, code := statusForError(err)
		logger.Error("export failed", "build_dir", req.BuildDir, "error", err)
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	logger.Info("compilation database written", "path", path)
	c.JSON(http.StatusOK, ExportResponse{Path: path})
}

// HandleExportFlagFiles handles POST /v1/export/flags.
//
// Request Body:
//
//	FlagFilesRequest
//
// Response:
//
//	200 OK: FlagFilesResponse
//	404 Not Found: No such session
func (h *Handlers) HandleExportFlagFiles(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleExportFlagFiles")

	var req FlagFilesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	s, found := h.registry.Get(req.BuildDir)
	if !found {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: session.ErrSessionNotFound.Error(),
			Code:  "SESSION_NOT_FOUND",
		})
		return
	}

	paths, err := s.WriteFlagFiles(c.Request.Context(), req.Path)
	if err != nil {
		status, code := statusForError(err)
		logger.Error("flag file export failed", "path", req.Path, "error", err)
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	logger.Info("flag files written", "paths", paths)
	c.JSON(http.StatusOK, FlagFilesResponse{Paths: paths})
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	_, _, active := h.registry.Stats()
	c.JSON(http.StatusOK, HealthResponse{
		Status:         "healthy",
		Version:        ServiceVersion,
		ActiveSessions: active,
	})
}

// sessionFor returns the session a file query should run against: the
// named open session when build_dir is given, otherwise the session for
// the project containing the path, opened on demand.
func (h *Handlers) sessionFor(c *gin.Context, path string) (*session.Session, error) {
	if buildDir := c.Query("build_dir"); buildDir != "" {
		s, ok := h.registry.Get(buildDir)
		if !ok {
			return nil, session.ErrSessionNotFound
		}
		return s, nil
	}
	return h.registry.ForFile(c.Request.Context(), path)
}

// requireBuildDirAndParam pulls the build_dir and one further required
// query parameter, answering 400 itself when either is missing.
func requireBuildDirAndParam(c *gin.Context, param string) (string, string, bool) {
	buildDir := c.Query("build_dir")
	value := c.Query(param)
	if buildDir == "" || value == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "build_dir and " + param + " query parameters are required",
			Code:  "INVALID_REQUEST",
		})
		return "", "", false
	}
	return buildDir, value, true
}

// getOrCreateRequestID gets or creates a request ID.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
