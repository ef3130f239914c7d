// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command cmake-indexd starts the CMake index daemon.
//
// The daemon keeps one cmake server process per open build directory and
// answers model queries over HTTP, so editor plugins get compile flags
// and target information without running a configure themselves.
//
// Usage:
//
//	go run ./cmd/cmake-indexd
//	go run ./cmd/cmake-indexd -listen 127.0.0.1:9090 -debug
//
// Example requests:
//
//	# Health check
//	curl http://localhost:7756/health
//
//	# Open a project (runs configure + generate, builds the index)
//	curl -X POST http://localhost:7756/v1/sessions \
//	  -H "Content-Type: application/json" \
//	  -d '{"root_dir": "/path/to/project"}'
//
//	# Compile flags for a file
//	curl "http://localhost:7756/v1/query/flags?path=/path/to/project/src/main.cc"
//
//	# Write compile_commands.json
//	curl -X POST http://localhost:7756/v1/export/compiledb \
//	  -H "Content-Type: application/json" \
//	  -d '{"build_dir": "/path/to/project/build"}'
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/cmakekit/cmakeindex/services/indexd"
	"github.com/cmakekit/cmakeindex/services/indexd/config"
	"github.com/cmakekit/cmakeindex/services/indexd/session"
	"github.com/cmakekit/cmakeindex/services/indexd/telemetry"
)

// shutdownTimeout bounds the drain of in-flight requests and session
// teardown on SIGINT/SIGTERM.
const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to the configuration file (default: auto-discovered)")
	listenAddr := flag.String("listen", "", "Listen address, overrides the configuration")
	debug := flag.Bool("debug", false, "Enable debug logging and request logs")
	flag.Parse()

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	path := *configPath
	if path == "" {
		path = config.LocatePath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		slog.Error("failed to load configuration",
			slog.String("path", path),
			slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.DefaultConfig())
	if err != nil {
		slog.Error("failed to initialize telemetry", slog.String("error", err.Error()))
		os.Exit(1)
	}

	registry := session.NewRegistry(cfg)
	handlers := indexd.NewHandlers(registry)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("cmake-indexd"))
	if *debug {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	indexd.RegisterRoutes(v1, handlers)

	router.GET("/health", handlers.HandleHealth)
	if metricsHandler := telemetry.MetricsHandler(); metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	go func() {
		slog.Info("cmake-indexd listening",
			slog.String("address", cfg.ListenAddr),
			slog.String("cmake_binary", cfg.CMake.Binary))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down cmake-indexd")

	// Sessions hold cmake subprocesses and build-dir locks; they must be
	// torn down even when draining requests times out.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http server shutdown", slog.String("error", err.Error()))
	}
	registry.CloseAll()
	if err := telemetryShutdown(shutdownCtx); err != nil {
		slog.Warn("telemetry shutdown", slog.String("error", err.Error()))
	}
}
