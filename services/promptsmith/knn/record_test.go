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
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/promptsmith/services/promptsmith/config"
	"github.com/AleutianAI/promptsmith/services/promptsmith/routing"
)

func TestExtractRecord_Valid(t *testing.T) {
	raw := map[string]any{
		"inputs": map[string]any{"idea": "  fix bug  ", "context": "nil map"},
		"outputs": map[string]any{
			"improved":        "Debug carefully",
			"role":            "Debugger",
			"directive":       "Find the root cause",
			"framework":       "scientific method",
			"guardrails":      []any{"Do not guess", "Cite the line"},
			"expected_output": "A patch",
		},
	}
	rec, rerr := extractRecord(0, raw)
	require.Nil(t, rerr)
	assert.Equal(t, ExampleRecord{
		InputIdea:      "fix bug",
		InputContext:   "nil map",
		ImprovedPrompt: "Debug carefully",
		Role:           "Debugger",
		Directive:      "Find the root cause",
		Framework:      "scientific method",
		Guardrails:     []string{"Do not guess", "Cite the line"},
		ExpectedOutput: "A patch",
	}, rec)
}

func TestExtractRecord_Malformed(t *testing.T) {
	tests := []struct {
		name      string
		raw       any
		field     string
		reason    string
		available []string
	}{
		{"not an object", "just a string", "", "expected object, got string", nil},
		{"null record", nil, "", "expected object, got null", nil},
		{"missing outputs", map[string]any{"inputs": map[string]any{"idea": "x"}}, "outputs", "missing key", []string{"inputs"}},
		{"inputs wrong type", map[string]any{"inputs": []any{}, "outputs": map[string]any{}}, "inputs", "expected object, got array", nil},
		{"missing idea", map[string]any{
			"inputs":  map[string]any{"prompt": "x"},
			"outputs": map[string]any{"improved": "y"},
		}, "idea", "missing key", []string{"prompt"}},
		{"empty idea", map[string]any{
			"inputs":  map[string]any{"idea": "   "},
			"outputs": map[string]any{"improved": "y"},
		}, "idea", "must not be empty", nil},
		{"idea wrong type", map[string]any{
			"inputs":  map[string]any{"idea": 42.0},
			"outputs": map[string]any{"improved": "y"},
		}, "idea", "expected string, got number", nil},
		{"missing improved", map[string]any{
			"inputs":  map[string]any{"idea": "x"},
			"outputs": map[string]any{"role": "r"},
		}, "improved", "missing key", []string{"role"}},
		{"role wrong type", map[string]any{
			"inputs":  map[string]any{"idea": "x"},
			"outputs": map[string]any{"improved": "y", "role": true},
		}, "role", "expected string, got bool", nil},
		{"guardrail wrong type", map[string]any{
			"inputs":  map[string]any{"idea": "x"},
			"outputs": map[string]any{"improved": "y", "guardrails": []any{"ok", 3.0}},
		}, "guardrails[1]", "expected string, got number", nil},
		{"guardrails wrong type", map[string]any{
			"inputs":  map[string]any{"idea": "x"},
			"outputs": map[string]any{"improved": "y", "guardrails": map[string]any{}},
		}, "guardrails", "expected array of strings", nil},
		{"empty guardrail fails validation", map[string]any{
			"inputs":  map[string]any{"idea": "x"},
			"outputs": map[string]any{"improved": "y", "guardrails": []any{"  "}},
		}, "", "validation", nil},
		{"role too long fails validation", map[string]any{
			"inputs":  map[string]any{"idea": "x"},
			"outputs": map[string]any{"improved": "y", "role": strings.Repeat("r", 201)},
		}, "", "validation", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, rerr := extractRecord(7, tt.raw)
			require.NotNil(t, rerr)
			assert.Equal(t, 7, rerr.Index)
			assert.Equal(t, tt.field, rerr.Field)
			assert.Contains(t, rerr.Reason, tt.reason)
			if tt.available != nil {
				assert.Equal(t, tt.available, rerr.Available)
				assert.NotEmpty(t, rerr.Expected)
			}
		})
	}
}

func TestExtractRecord_SingleStringGuardrail(t *testing.T) {
	rec, rerr := extractRecord(0, map[string]any{
		"inputs":  map[string]any{"idea": "x"},
		"outputs": map[string]any{"improved": "y", "guardrails": "Stay on topic"},
	})
	require.Nil(t, rerr)
	assert.Equal(t, []string{"Stay on topic"}, rec.Guardrails)
}

func TestLoadCatalog_LogsSkippedRecordContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cfg := config.Default()
	tags := tagger{
		analyzer:   routing.NewComplexityAnalyzer(cfg.Complexity),
		classifier: routing.NewIntentClassifier(),
	}

	raws := catalogWithBad(10, 0)
	raws = append(raws, map[string]any{
		"inputs":  map[string]any{"prompt": strings.Repeat("very long payload ", 100)},
		"outputs": map[string]any{"improved": "y"},
	})
	cat, err := loadCatalog(context.Background(), NewMemorySource("unit", raws), 0.10, 64, tags, logger)
	require.NoError(t, err)
	assert.Equal(t, LoadStats{Total: 11, Valid: 10, Skipped: 1}, cat.stats)

	line := buf.String()
	assert.Contains(t, line, `"msg":"knn: skipping malformed catalog record"`)
	assert.Contains(t, line, `"field":"idea"`)
	assert.Contains(t, line, `"expected_keys":["idea","context"]`)
	assert.Contains(t, line, `"available_keys":["prompt"]`)
	assert.Contains(t, line, `...`, "payload is truncated")
}

func TestLoadCatalog_TagsRecords(t *testing.T) {
	cfg := config.Default()
	tags := tagger{
		analyzer:   routing.NewComplexityAnalyzer(cfg.Complexity),
		classifier: routing.NewIntentClassifier(),
	}
	cat, err := loadCatalog(context.Background(), NewMemorySource("unit", []any{
		rawRecord("refactor this function for readability", "Restructure it.", ""),
	}), 0.10, 64, tags, quietLogger())
	require.NoError(t, err)
	require.Len(t, cat.records, 1)
	assert.Equal(t, routing.Intent("refactor:readability"), cat.records[0].Intent)
	assert.Equal(t, routing.ComplexitySimple, cat.records[0].Complexity)
}
