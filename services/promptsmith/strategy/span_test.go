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
	"context"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AleutianAI/promptsmith/services/promptsmith/knn"
)

// The global tracer provider delegates only once per process, so every span
// assertion in this package lives in this one test.
func TestBuild_Spans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	t.Run("degraded build", func(t *testing.T) {
		exporter.Reset()
		b := newTestBuilder(t, nil, &stubRetriever{err: &knn.TransientError{Op: "embed query", Err: syscall.ECONNREFUSED}})
		_, err := b.Build(context.Background(), Request{Idea: "fix this bug"})
		require.NoError(t, err)

		span := findSpan(t, exporter.GetSpans(), "strategy.Builder.Build")
		attrs := attrMap(span.Attributes)
		assert.Equal(t, "debug_trace", attrs["strategy"].AsString())
		assert.Equal(t, "SIMPLE", attrs["complexity"].AsString())
		assert.True(t, attrs["knn_failed"].AsBool())
		require.Len(t, span.Events, 1)
		assert.Equal(t, "knn_degraded", span.Events[0].Name)
		assert.Equal(t, codes.Unset, span.Status.Code)
	})

	t.Run("failed build", func(t *testing.T) {
		exporter.Reset()
		b := newTestBuilder(t, nil, nil)
		_, err := b.Build(context.Background(), Request{Idea: "  "})
		require.Error(t, err)

		span := findSpan(t, exporter.GetSpans(), "strategy.Builder.Build")
		assert.Equal(t, codes.Error, span.Status.Code)
		assert.Contains(t, span.Status.Description, "idea")
	})
}

func findSpan(t *testing.T, spans tracetest.SpanStubs, name string) tracetest.SpanStub {
	t.Helper()
	for _, s := range spans {
		if s.Name == name {
			return s
		}
	}
	require.Failf(t, "span not found", "no span named %q among %d", name, len(spans))
	return tracetest.SpanStub{}
}

func attrMap(kvs []attribute.KeyValue) map[string]attribute.Value {
	m := make(map[string]attribute.Value, len(kvs))
	for _, kv := range kvs {
		m[string(kv.Key)] = kv.Value
	}
	return m
}
