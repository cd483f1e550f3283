// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package strategy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var strategyTracer = otel.Tracer("promptsmith.strategy")

var (
	buildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "promptsmith",
			Subsystem: "strategy",
			Name:      "builds_total",
			Help:      "Completed builds by strategy and retrieval outcome: disabled, ok, degraded.",
		},
		[]string{"strategy", "knn"},
	)

	buildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "promptsmith",
			Subsystem: "strategy",
			Name:      "build_duration_seconds",
			Help:      "Build latency including retrieval.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 3},
		},
	)

	degradedBuilds = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "promptsmith",
			Subsystem: "strategy",
			Name:      "degraded_builds_total",
			Help:      "Builds that continued without examples after a transient retrieval failure.",
		},
	)
)
