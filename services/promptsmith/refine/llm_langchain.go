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
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"github.com/AleutianAI/promptsmith/services/promptsmith/knn"
)

// LangChainLLM adapts any langchaingo model to the LLM port.
//
// Connection and timeout failures are returned as *knn.TransientError so the
// loop retries them. Everything else is wrapped and returned as is.
//
// # Thread Safety
//
// Safe for concurrent use if the wrapped model is.
type LangChainLLM struct {
	model llms.Model
	opts  []llms.CallOption
}

// NewLangChainLLM wraps model. opts are passed to every call.
func NewLangChainLLM(model llms.Model, opts ...llms.CallOption) (*LangChainLLM, error) {
	if model == nil {
		return nil, errors.New("refine: langchain model must not be nil")
	}
	return &LangChainLLM{model: model, opts: opts}, nil
}

// Generate implements LLM.
func (l *LangChainLLM) Generate(ctx context.Context, prompt string) (string, error) {
	out, err := llms.GenerateFromSinglePrompt(ctx, l.model, prompt, l.opts...)
	if err != nil {
		if knn.IsConnectionError(err) {
			return "", &knn.TransientError{Op: "generate", Err: err}
		}
		return "", fmt.Errorf("langchain generate: %w", err)
	}
	return out, nil
}
