// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package knn retrieves curated few-shot examples by vector similarity.
//
// A Provider loads a catalog of example records from a Source, vectorizes
// every surviving record exactly once, and answers nearest-neighbor queries
// against that cached matrix until the next Reload.
package knn

import (
	"context"
	"slices"
	"time"

	"github.com/AleutianAI/promptsmith/services/promptsmith/routing"
)

// ExampleRecord is one curated idea → improved prompt pair.
//
// Records are validated when the catalog loads and never modified after.
// FindExamples returns copies, so callers may not mutate the catalog.
type ExampleRecord struct {
	InputIdea      string   `json:"input_idea" validate:"required"`
	InputContext   string   `json:"input_context,omitempty"`
	ImprovedPrompt string   `json:"improved_prompt" validate:"required"`
	Role           string   `json:"role,omitempty" validate:"max=200"`
	Directive      string   `json:"directive,omitempty"`
	Framework      string   `json:"framework,omitempty"`
	Guardrails     []string `json:"guardrails,omitempty" validate:"dive,required"`
	ExpectedOutput string   `json:"expected_output,omitempty"`

	// Intent and Complexity are derived at load time and drive pre-filtering.
	Intent     routing.Intent     `json:"intent"`
	Complexity routing.Complexity `json:"complexity"`
}

// clone returns a deep copy.
func (r ExampleRecord) clone() ExampleRecord {
	r.Guardrails = slices.Clone(r.Guardrails)
	return r
}

// document is the text a record is vectorized from.
func (r ExampleRecord) document() string {
	if r.InputContext == "" {
		return r.InputIdea
	}
	return r.InputIdea + "\n" + r.InputContext
}

// Query selects examples for one request.
type Query struct {
	// Intent and Complexity rank matching records ahead of the rest.
	// Empty values disable that tier.
	Intent     routing.Intent
	Complexity routing.Complexity

	// K is the number of examples wanted. Zero uses the configured default.
	// Negative values and values above the configured maximum are rejected.
	K int

	// Text is compared against catalog vectors. Empty text ranks purely by
	// tier and catalog order.
	Text string
}

// LoadStats summarizes one catalog load.
type LoadStats struct {
	Total   int
	Valid   int
	Skipped int
}

// CatalogInfo describes the live snapshot.
type CatalogInfo struct {
	Source      string
	Vectorizer  string
	Stats       LoadStats
	VectorCount int
	Dimensions  int
	LoadedAt    time.Time
}

// Retriever is the query side of a Provider.
type Retriever interface {
	FindExamples(ctx context.Context, q Query) ([]ExampleRecord, error)
}
