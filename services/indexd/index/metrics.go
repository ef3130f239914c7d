// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package index

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level tracer and meter for index operations.
var (
	tracer = otel.Tracer("cmakeindex.index")
	meter  = otel.Meter("cmakeindex.index")
)

// Resolution outcomes recorded per Resolve call.
const (
	resolutionExact     = "exact"
	resolutionDirectory = "directory"
	resolutionSquashed  = "squashed"
	resolutionUnknown   = "unknown"
)

// Metrics for index operations.
var (
	buildLatency    metric.Float64Histogram
	buildFiles      metric.Int64Histogram
	pairingsTotal   metric.Int64Counter
	resolutionTotal metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		buildLatency, err = meter.Float64Histogram(
			"index_build_duration_seconds",
			metric.WithDescription("Duration of index builds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		buildFiles, err = meter.Int64Histogram(
			"index_build_files",
			metric.WithDescription("Number of file records per index build"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		pairingsTotal, err = meter.Int64Counter(
			"index_header_pairings_total",
			metric.WithDescription("Total number of header pairings made by the matching heuristic"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		resolutionTotal, err = meter.Int64Counter(
			"index_resolution_total",
			metric.WithDescription("Total number of file resolutions by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordBuildMetrics records metrics for one index build.
func recordBuildMetrics(ctx context.Context, duration time.Duration, files, pairings int) {
	if err := initMetrics(); err != nil {
		return
	}

	buildLatency.Record(ctx, duration.Seconds())
	buildFiles.Record(ctx, int64(files))
	pairingsTotal.Add(ctx, int64(pairings))
}

// recordResolution records the outcome of one Resolve call.
func recordResolution(ctx context.Context, outcome string) {
	if err := initMetrics(); err != nil {
		return
	}
	resolutionTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}
