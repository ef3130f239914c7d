// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package indexd

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all cmake-indexd routes with the router.
//
// Description:
//
//	Registers every endpoint with the given Gin router group. The group
//	should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Session Endpoints:
//
//	POST   /v1/sessions - Open (or reconfigure) a session
//	GET    /v1/sessions - List open sessions
//	DELETE /v1/sessions?build_dir= - Close a session
//	POST   /v1/sessions/invalidate - Force a re-index
//
// Query Endpoints:
//
//	GET /v1/query/file?path=&build_dir=&resolve= - File record
//	GET /v1/query/target?build_dir=&name= - Target record
//	GET /v1/query/project?build_dir=&name= - Project record
//	GET /v1/query/cache?build_dir=&name= - Cache variable
//	GET /v1/query/flags?path=&build_dir= - Compile flags with fallback
//
// Command Endpoints:
//
//	GET /v1/commands/build?build_dir=&target= - Build command line
//	GET /v1/commands/run?build_dir=&target=&arg= - Run command line
//
// Export Endpoints:
//
//	POST /v1/export/compiledb - Write compile_commands.json
//	POST /v1/export/flags - Write .clang and .clang_complete
//
// Event Endpoint:
//
//	GET /v1/events - Websocket stream of session lifecycle events
//
// Health Endpoint:
//
//	GET /v1/health - Health check
//
// Example:
//
//	registry := session.NewRegistry(cfg)
//	handlers := indexd.NewHandlers(registry)
//
//	v1 := router.Group("/v1")
//	indexd.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	sessions := rg.Group("/sessions")
	{
		sessions.POST("", handlers.HandleOpenSession)
		sessions.GET("", handlers.HandleListSessions)
		sessions.DELETE("", handlers.HandleCloseSession)
		sessions.POST("/invalidate", handlers.HandleInvalidate)
	}

	query := rg.Group("/query")
	{
		query.GET("/file", handlers.HandleQueryFile)
		query.GET("/target", handlers.HandleQueryTarget)
		query.GET("/project", handlers.HandleQueryProject)
		query.GET("/cache", handlers.HandleQueryCache)
		query.GET("/flags", handlers.HandleQueryFlags)
	}

	commands := rg.Group("/commands")
	{
		commands.GET("/build", handlers.HandleBuildCommand)
		commands.GET("/run", handlers.HandleRunCommand)
	}

	export := rg.Group("/export")
	{
		export.POST("/compiledb", handlers.HandleExportCompileDB)
		export.POST("/flags", handlers.HandleExportFlagFiles)
	}

	rg.GET("/events", handlers.HandleEvents)
	rg.GET("/health", handlers.HandleHealth)
}
