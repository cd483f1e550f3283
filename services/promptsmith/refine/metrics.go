// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package refine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var refineTracer = otel.Tracer("promptsmith.refine")

var (
	loopsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "promptsmith",
			Subsystem: "refine",
			Name:      "loops_total",
			Help:      "Refinement loops by terminal status.",
		},
		[]string{"status"},
	)

	iterationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "promptsmith",
			Subsystem: "refine",
			Name:      "iterations_total",
			Help:      "Refinement iterations by outcome: success, retry, transient_error.",
		},
		[]string{"outcome"},
	)

	knnFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "promptsmith",
			Subsystem: "refine",
			Name:      "knn_failures_total",
			Help:      "Example retrieval failures inside the loop by kind: transient, bug.",
		},
		[]string{"kind"},
	)
)
