// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Helpers
// =============================================================================

const testCatalog = `
- inputs:
    idea: fix the crash when the cache is empty
  outputs:
    improved: Debug the empty cache path step by step.
    role: Debugger
- inputs:
    idea: fix the failing login test
  outputs:
    improved: Find why the login test fails.
    role: Debugger
- inputs:
    idea: write a haiku about autumn
  outputs:
    improved: Write a haiku with a seasonal word.
    role: Poet
`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// runCLI executes args and returns exit code, stdout and stderr.
func runCLI(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := run(context.Background(), args, strings.NewReader(stdin), &out, &errOut)
	return code, out.String(), errOut.String()
}

func decode[T any](t *testing.T, s string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(s), &v), "output: %s", s)
	return v
}

type promptJSON struct {
	Prompt struct {
		Template     string `json:"template"`
		IntentType   string `json:"intent_type"`
		Complexity   string `json:"complexity"`
		Mode         string `json:"mode"`
		StrategyMeta struct {
			Strategy     string `json:"strategy"`
			KNNEnabled   bool   `json:"knn_enabled"`
			KNNFailed    bool   `json:"knn_failed"`
			FewShotCount int    `json:"fewshot_count"`
			Role         string `json:"role"`
		} `json:"strategy_meta"`
	} `json:"prompt"`
	Refinement json.RawMessage `json:"refinement"`
}

// =============================================================================
// Commands
// =============================================================================

func TestStrategies_JSON(t *testing.T) {
	code, out, _ := runCLI(t, "", "strategies", "--output", "json")
	require.Equal(t, 0, code)

	entries := decode[[]map[string]string](t, out)
	require.Len(t, entries, 12)
	assert.Equal(t, map[string]string{"intent": "debug", "complexity": "COMPLEX", "strategy": "iterative_refine"}, entries[2])
}

func TestStrategies_OverridesFromConfigFile(t *testing.T) {
	cfg := writeTemp(t, "core.yaml", "strategy:\n  overrides:\n    debug/SIMPLE: direct\n")
	code, out, _ := runCLI(t, "", "strategies", "--output", "json", "--config", cfg)
	require.Equal(t, 0, code)

	entries := decode[[]map[string]string](t, out)
	assert.Equal(t, "direct", entries[0]["strategy"])
}

func TestStrategies_TextFromEnvironment(t *testing.T) {
	t.Setenv("PROMPTSMITH_OUTPUT", "text")
	code, out, _ := runCLI(t, "", "strategies")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "INTENT")
	assert.Contains(t, out, "refactor_plan")
}

func TestAnalyze_JSON(t *testing.T) {
	code, out, _ := runCLI(t, "", "analyze", "--output", "json", "write", "a", "haiku", "about", "autumn")
	require.Equal(t, 0, code)

	view := decode[analysisView](t, out)
	assert.Equal(t, "SIMPLE", string(view.Complexity))
	assert.Equal(t, len("write a haiku about autumn"), view.Length)
	assert.NotNil(t, view.TechnicalTerms)
}

func TestAnalyze_EmptyIdeaFails(t *testing.T) {
	code, _, errOut := runCLI(t, "", "analyze", "--output", "json", "   ")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "idea")
}

func TestClassify_JSON(t *testing.T) {
	code, out, _ := runCLI(t, "", "classify", "--output", "json", "the checkout page is slow")
	require.Equal(t, 0, code)

	view := decode[intentView](t, out)
	assert.Equal(t, "debug:performance", string(view.Intent))
	assert.Equal(t, "debug", string(view.Type))
	assert.Equal(t, "performance", view.SubType)
}

func TestClassify_IdeaFromStdin(t *testing.T) {
	code, out, _ := runCLI(t, "write a unit test for the parser\n", "classify", "--output", "json", "-")
	require.Equal(t, 0, code)
	assert.Equal(t, "generate:test", string(decode[intentView](t, out).Intent))
}

func TestBuild_WithoutCatalog(t *testing.T) {
	code, out, _ := runCLI(t, "", "build", "--output", "json", "fix this bug")
	require.Equal(t, 0, code)

	got := decode[promptJSON](t, out)
	assert.Equal(t, "debug", got.Prompt.IntentType)
	assert.Equal(t, "debug_trace", got.Prompt.StrategyMeta.Strategy)
	assert.False(t, got.Prompt.StrategyMeta.KNNEnabled)
	assert.Zero(t, got.Prompt.StrategyMeta.FewShotCount)
	assert.Contains(t, got.Prompt.Template, "## Task")
	assert.Empty(t, got.Refinement)
}

func TestBuild_WithCatalogUsesExamples(t *testing.T) {
	catalog := writeTemp(t, "catalog.yaml", testCatalog)
	code, out, _ := runCLI(t, "", "build", "--output", "json", "--catalog", catalog, "fix the crash in the cache")
	require.Equal(t, 0, code)

	got := decode[promptJSON](t, out)
	meta := got.Prompt.StrategyMeta
	assert.True(t, meta.KNNEnabled)
	assert.False(t, meta.KNNFailed)
	assert.Positive(t, meta.FewShotCount)
	assert.Equal(t, "Debugger", meta.Role)
	assert.Contains(t, got.Prompt.Template, "## Examples")
}

func TestBuild_KAboveMaximumFails(t *testing.T) {
	catalog := writeTemp(t, "catalog.yaml", testCatalog)
	code, _, errOut := runCLI(t, "", "build", "--output", "json", "--catalog", catalog, "--k", "20", "fix the crash in the cache")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "invalid k: must be at most 10, got 20")
}

func TestBuild_FastModeSkipsRetrieval(t *testing.T) {
	catalog := writeTemp(t, "catalog.yaml", testCatalog)
	code, out, _ := runCLI(t, "", "build", "--output", "json", "--catalog", catalog, "--mode", "fast", "fix this bug")
	require.Equal(t, 0, code)

	got := decode[promptJSON](t, out)
	assert.Equal(t, "fast", got.Prompt.Mode)
	assert.False(t, got.Prompt.StrategyMeta.KNNEnabled)
}

func TestBuild_ComplexityAndInputs(t *testing.T) {
	code, out, _ := runCLI(t, "",
		"build", "--output", "json",
		"--complexity", "complex",
		"--error", "panic: assignment to entry in nil map",
		"--language", "go",
		"fix this bug",
	)
	require.Equal(t, 0, code)

	got := decode[promptJSON](t, out)
	assert.Equal(t, "COMPLEX", got.Prompt.Complexity)
	assert.Equal(t, "iterative_refine", got.Prompt.StrategyMeta.Strategy)
	assert.Contains(t, got.Prompt.Template, "## Error")
	assert.Contains(t, got.Prompt.Template, "## Before you answer")
}

func TestBuild_TextOutput(t *testing.T) {
	code, out, _ := runCLI(t, "", "build", "--output", "text", "explain how closures capture variables")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "## Role")
	assert.Contains(t, out, "Retrieval: disabled")
}

func TestBuild_InvalidMode(t *testing.T) {
	code, _, errOut := runCLI(t, "", "build", "--output", "json", "--mode", "turbo", "fix this bug")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "mode")
}

// =============================================================================
// Catalog
// =============================================================================

func TestCatalogInfo(t *testing.T) {
	catalog := writeTemp(t, "catalog.yaml", testCatalog)
	code, out, _ := runCLI(t, "", "catalog", "info", "--output", "json", "--catalog", catalog)
	require.Equal(t, 0, code)

	view := decode[catalogView](t, out)
	assert.Equal(t, catalog, view.Source)
	assert.Equal(t, 3, view.Valid)
	assert.Zero(t, view.Skipped)
	assert.Equal(t, 3, view.VectorCount)
	assert.Positive(t, view.Dimensions)
}

func TestCatalogInfo_RequiresCatalog(t *testing.T) {
	code, _, errOut := runCLI(t, "", "catalog", "info")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "--catalog is required")
}

func TestCatalogInfo_MissingFile(t *testing.T) {
	code, _, errOut := runCLI(t, "", "catalog", "info", "--catalog", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "loading catalog")
}

func TestCatalogWatch_RejectsGCS(t *testing.T) {
	code, _, errOut := runCLI(t, "", "catalog", "watch", "--catalog", "gs://bucket/examples.yaml")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "file catalogs")
}

// =============================================================================
// Settings
// =============================================================================

func TestSettings_File(t *testing.T) {
	catalog := writeTemp(t, "catalog.yaml", testCatalog)
	settingsFile := writeTemp(t, "promptsmith.yaml", "output: json\ncatalog: "+catalog+"\n")

	code, out, _ := runCLI(t, "", "catalog", "info", "--settings", settingsFile)
	require.Equal(t, 0, code)
	assert.Equal(t, 3, decode[catalogView](t, out).Valid)
}

func TestSettings_FlagBeatsEnvironment(t *testing.T) {
	t.Setenv("PROMPTSMITH_OUTPUT", "text")
	code, out, _ := runCLI(t, "", "strategies", "--output", "json")
	require.Equal(t, 0, code)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(out), "["))
}

func TestSettings_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"output", []string{"strategies", "--output", "yaml"}, "--output"},
		{"embed", []string{"strategies", "--embed", "magic"}, "--embed"},
		{"missing settings file", []string{"strategies", "--settings", "/nonexistent/promptsmith.yaml"}, "reading settings"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, errOut := runCLI(t, "", tt.args...)
			assert.Equal(t, 1, code)
			assert.Contains(t, errOut, tt.want)
		})
	}
}

func TestParseGCSURI(t *testing.T) {
	bucket, object, err := parseGCSURI("gs://prompts/catalogs/examples.jsonl")
	require.NoError(t, err)
	assert.Equal(t, "prompts", bucket)
	assert.Equal(t, "catalogs/examples.jsonl", object)

	for _, bad := range []string{"prompts/examples.jsonl", "gs://prompts", "gs:///examples.jsonl", "gs://prompts/"} {
		_, _, err := parseGCSURI(bad)
		assert.Error(t, err, bad)
	}
}

func TestNewPrinter_AutoIsJSONOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	assert.True(t, newPrinter(&buf, "auto").asJSON)
	assert.False(t, newPrinter(&buf, "text").asJSON)
	assert.True(t, newPrinter(&buf, "json").asJSON)
}
