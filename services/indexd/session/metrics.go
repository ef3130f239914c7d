// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("cmakeindex.session")
	meter  = otel.Meter("cmakeindex.session")

	metricsOnce sync.Once
	metricsErr  error

	openLatency    metric.Float64Histogram
	refreshLatency metric.Float64Histogram
	activeSessions metric.Int64UpDownCounter
)

func initMetrics() {
	metricsOnce.Do(func() {
		openLatency, metricsErr = meter.Float64Histogram(
			"session_open_duration_seconds",
			metric.WithDescription("Time to open and first-index a session"),
			metric.WithUnit("s"),
		)
		if metricsErr != nil {
			return
		}
		refreshLatency, metricsErr = meter.Float64Histogram(
			"session_refresh_duration_seconds",
			metric.WithDescription("Time for the configure, compute, index pipeline"),
			metric.WithUnit("s"),
		)
		if metricsErr != nil {
			return
		}
		activeSessions, metricsErr = meter.Int64UpDownCounter(
			"session_active",
			metric.WithDescription("Currently open sessions"),
		)
	})
}

func recordOpen(ctx context.Context, duration time.Duration, success bool) {
	initMetrics()
	if metricsErr != nil {
		return
	}
	openLatency.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.Bool("success", success)))
}

func recordRefresh(ctx context.Context, duration time.Duration, success bool) {
	initMetrics()
	if metricsErr != nil {
		return
	}
	refreshLatency.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.Bool("success", success)))
}

func recordActive(ctx context.Context, delta int64) {
	initMetrics()
	if metricsErr != nil {
		return
	}
	activeSessions.Add(ctx, delta)
}
