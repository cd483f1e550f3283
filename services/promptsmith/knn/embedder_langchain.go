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
	"context"

	"github.com/tmc/langchaingo/embeddings"
)

// LangChainEmbedder adapts any langchaingo embeddings.Embedder (OpenAI,
// Vertex, Ollama, ...) to the Embedder port.
type LangChainEmbedder struct {
	inner embeddings.Embedder
	model string
}

// NewLangChainEmbedder wraps inner. model is used only as the cache key and
// log label, so it should name the underlying model precisely.
func NewLangChainEmbedder(inner embeddings.Embedder, model string) *LangChainEmbedder {
	if inner == nil {
		panic("NewLangChainEmbedder: inner must not be nil")
	}
	return &LangChainEmbedder{inner: inner, model: model}
}

func (e *LangChainEmbedder) Model() string { return e.model }

func (e *LangChainEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, classifyEmbedError("langchain embed", err)
	}
	if len(vec) == 0 {
		return nil, &ProgrammingError{Op: "langchain embed", Expected: "non-empty vector", Got: "empty vector"}
	}
	return vec, nil
}
