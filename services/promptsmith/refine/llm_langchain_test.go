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
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/AleutianAI/promptsmith/services/promptsmith/knn"
)

type fakeModel struct {
	reply  string
	err    error
	prompt string
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, part := range messages[0].Parts {
		if text, ok := part.(llms.TextContent); ok {
			f.prompt = text.Text
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestLangChainLLM_Generate(t *testing.T) {
	model := &fakeModel{reply: "improved prompt"}
	l, err := NewLangChainLLM(model, llms.WithTemperature(0.2))
	require.NoError(t, err)

	out, err := l.Generate(context.Background(), "meta prompt")
	require.NoError(t, err)
	assert.Equal(t, "improved prompt", out)
	assert.Equal(t, "meta prompt", model.prompt)
}

func TestLangChainLLM_ErrorClassification(t *testing.T) {
	l, err := NewLangChainLLM(&fakeModel{err: syscall.ECONNREFUSED})
	require.NoError(t, err)
	_, err = l.Generate(context.Background(), "x")
	assert.True(t, knn.IsTransient(err))

	provider := errors.New("invalid api key")
	l, err = NewLangChainLLM(&fakeModel{err: provider})
	require.NoError(t, err)
	_, err = l.Generate(context.Background(), "x")
	assert.ErrorIs(t, err, provider)
	assert.False(t, knn.IsTransient(err))
}

func TestNewLangChainLLM_NilModel(t *testing.T) {
	_, err := NewLangChainLLM(nil)
	assert.Error(t, err)
}
