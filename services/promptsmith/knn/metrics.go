// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package knn

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var knnTracer = otel.Tracer("promptsmith.knn")

var (
	queriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "promptsmith",
			Subsystem: "knn",
			Name:      "queries_total",
			Help:      "FindExamples calls by outcome.",
		},
		[]string{"outcome"},
	)

	queryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "promptsmith",
			Subsystem: "knn",
			Name:      "query_duration_seconds",
			Help:      "FindExamples latency including query embedding.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 3},
		},
	)

	skippedRecords = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "promptsmith",
			Subsystem: "knn",
			Name:      "skipped_records_total",
			Help:      "Malformed catalog records skipped during load.",
		},
	)

	vectorizerFits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "promptsmith",
			Subsystem: "knn",
			Name:      "vectorizer_fits_total",
			Help:      "Catalog vectorizations by vectorizer and outcome.",
		},
		[]string{"vectorizer", "outcome"},
	)

	catalogRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "promptsmith",
			Subsystem: "knn",
			Name:      "catalog_records",
			Help:      "Records in the live catalog snapshot.",
		},
	)
)
