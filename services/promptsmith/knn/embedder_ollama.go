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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const (
	defaultOllamaEmbedURL = "http://localhost:11434/api/embed"
	defaultOllamaModel    = "nomic-embed-text-v2-moe"

	// maxEmbedResponseSize bounds the response body read from the service.
	maxEmbedResponseSize = 16 << 20
)

// ollamaEmbedReq is the Ollama /api/embed request body.
type ollamaEmbedReq struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// ollamaEmbedResp is the Ollama /api/embed response body.
type ollamaEmbedResp struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// StatusError is a non-200 response from an embedding service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("embed service returned %d: %s", e.StatusCode, e.Body)
}

// OllamaEmbedder calls Ollama's /api/embed endpoint.
//
// # Thread Safety
//
// Safe for concurrent use.
type OllamaEmbedder struct {
	url    string
	model  string
	client *http.Client
}

// NewOllamaEmbedder creates an embedder for url and model.
//
// Empty values fall back to EMBEDDING_SERVICE_URL and EMBEDDING_MODEL, then
// to a local Ollama with nomic-embed-text-v2-moe. A nil client uses one with
// a 30s timeout; per-query deadlines come from the caller's context.
func NewOllamaEmbedder(url, model string, client *http.Client) *OllamaEmbedder {
	if url == "" {
		url = os.Getenv("EMBEDDING_SERVICE_URL")
	}
	if url == "" {
		url = defaultOllamaEmbedURL
	}
	if model == "" {
		model = os.Getenv("EMBEDDING_MODEL")
	}
	if model == "" {
		model = defaultOllamaModel
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &OllamaEmbedder{url: url, model: model, client: client}
}

func (e *OllamaEmbedder) Model() string { return e.model }

// Embed returns the raw (not normalized) embedding for text.
//
// Connection failures, timeouts and 502/503/504 responses are returned as
// *TransientError. An empty vector is a *ProgrammingError.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(ollamaEmbedReq{Model: e.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if IsConnectionError(err) {
			return nil, &TransientError{Op: "ollama embed", Err: err}
		}
		return nil, fmt.Errorf("embed HTTP call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxEmbedResponseSize))
	if err != nil {
		if IsConnectionError(err) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &TransientError{Op: "ollama embed", Err: err}
		}
		return nil, fmt.Errorf("read embed response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		serr := &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		switch resp.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return nil, &TransientError{Op: "ollama embed", Err: serr}
		}
		return nil, serr
	}

	var ollamaResp ollamaEmbedResp
	if err := json.Unmarshal(body, &ollamaResp); err != nil {
		return nil, &ProgrammingError{Op: "ollama embed", Expected: `{"embeddings": [[...]]}`,
			Got: "undecodable response", Err: err}
	}
	if len(ollamaResp.Embeddings) == 0 || len(ollamaResp.Embeddings[0]) == 0 {
		return nil, &ProgrammingError{Op: "ollama embed", Expected: "non-empty vector", Got: "empty vector"}
	}
	return ollamaResp.Embeddings[0], nil
}
