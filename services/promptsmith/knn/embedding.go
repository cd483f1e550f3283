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
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/promptsmith/services/promptsmith/config"
)

// =============================================================================
// Ports
// =============================================================================

// Embedder produces a dense vector for one text. It is the port to an
// external embedding model.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// Model names the embedding model. It is part of the vector cache key.
	Model() string
}

// VectorStore persists fitted catalog matrices between restarts.
//
// # Description
//
// Keyed by corpus hash, which covers every document in order plus the
// model name, so any catalog or model change is an automatic miss.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type VectorStore interface {
	// LoadVectors returns (nil, nil) on a miss.
	LoadVectors(ctx context.Context, corpusHash string) ([][]float32, error)

	// SaveVectors stores unit-normalized rows for corpusHash.
	SaveVectors(ctx context.Context, corpusHash string, vectors [][]float32) error
}

// =============================================================================
// EmbeddingVectorizer
// =============================================================================

// EmbeddingVectorizer fits a catalog by calling an external Embedder.
//
// # Description
//
// Fit embeds every document in parallel, bounded by EmbedConcurrency and
// paced by EmbedRatePerSecond. A single failed document fails the whole Fit:
// a catalog with missing rows would break the one-row-per-record invariant.
// Connection and timeout failures are returned as *TransientError.
//
// When a VectorStore is configured, Fit checks it first and persists the
// fitted matrix afterwards. Store failures are logged and never fatal.
//
// # Thread Safety
//
// Safe for concurrent use.
type EmbeddingVectorizer struct {
	embedder    Embedder
	store       VectorStore
	concurrency int
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// NewEmbeddingVectorizer wraps embedder.
//
// # Inputs
//
//   - embedder: External embedding port. Must not be nil.
//   - cfg: Concurrency and rate limits.
//   - store: Optional persistence. Nil disables it.
//   - logger: Nil uses slog.Default().
func NewEmbeddingVectorizer(embedder Embedder, cfg config.KNNConfig, store VectorStore, logger *slog.Logger) *EmbeddingVectorizer {
	if embedder == nil {
		panic("NewEmbeddingVectorizer: embedder must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.EmbedConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	limit := rate.Inf
	if cfg.EmbedRatePerSecond > 0 {
		limit = rate.Limit(cfg.EmbedRatePerSecond)
	}
	return &EmbeddingVectorizer{
		embedder:    embedder,
		store:       store,
		concurrency: concurrency,
		limiter:     rate.NewLimiter(limit, concurrency),
		logger:      logger,
	}
}

func (v *EmbeddingVectorizer) Name() string { return "embedding:" + v.embedder.Model() }

func (v *EmbeddingVectorizer) Fit(ctx context.Context, docs []string) (Index, error) {
	corpusHash := CorpusHash(docs, v.embedder.Model())

	if v.store != nil && len(docs) > 0 {
		cached, err := v.store.LoadVectors(ctx, corpusHash)
		switch {
		case err != nil:
			v.logger.Warn("knn: vector store load failed, embedding catalog",
				slog.String("error", err.Error()),
			)
		case len(cached) == len(docs):
			v.logger.Info("knn: loaded catalog vectors from store",
				slog.Int("vectors", len(cached)),
				slog.String("corpus_hash", shortHash(corpusHash)),
			)
			return &embeddingIndex{vectors: cached, parent: v}, nil
		case cached != nil:
			v.logger.Warn("knn: cached vector count does not match catalog, re-embedding",
				slog.Int("cached", len(cached)),
				slog.Int("docs", len(docs)),
			)
		}
	}

	v.logger.Info("knn: embedding catalog",
		slog.Int("docs", len(docs)),
		slog.String("model", v.embedder.Model()),
	)

	vectors := make([][]float32, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)
	for i, doc := range docs {
		g.Go(func() error {
			if err := v.limiter.Wait(gctx); err != nil {
				return err
			}
			vec, err := v.embedder.Embed(gctx, doc)
			if err != nil {
				return fmt.Errorf("doc %d: %w", i, err)
			}
			if l2Norm(vec) == 0 {
				return &ProgrammingError{Op: "embed catalog", Expected: "non-zero vector",
					Got: fmt.Sprintf("zero vector for doc %d", i)}
			}
			normalize(vec)
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, classifyEmbedError("embed catalog", err)
	}

	var dim int
	for i, vec := range vectors {
		if i == 0 {
			dim = len(vec)
			continue
		}
		if len(vec) != dim {
			return nil, &ProgrammingError{Op: "embed catalog",
				Expected: fmt.Sprintf("%d dimensions", dim),
				Got:      fmt.Sprintf("%d dimensions for doc %d", len(vec), i)}
		}
	}

	if v.store != nil && len(vectors) > 0 {
		if err := v.store.SaveVectors(ctx, corpusHash, vectors); err != nil {
			v.logger.Warn("knn: failed to persist catalog vectors",
				slog.String("error", err.Error()),
				slog.String("corpus_hash", shortHash(corpusHash)),
			)
		}
	}
	return &embeddingIndex{vectors: vectors, parent: v}, nil
}

type embeddingIndex struct {
	vectors [][]float32
	parent  *EmbeddingVectorizer
}

func (x *embeddingIndex) Vectors() [][]float32 { return x.vectors }

func (x *embeddingIndex) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := x.parent.embedder.Embed(ctx, text)
	if err != nil {
		return nil, classifyEmbedError("embed query", err)
	}
	normalize(vec)
	return vec, nil
}

// classifyEmbedError wraps connection failures as *TransientError and
// leaves already classified errors alone.
func classifyEmbedError(op string, err error) error {
	var te *TransientError
	var pe *ProgrammingError
	if errors.As(err, &te) || errors.As(err, &pe) {
		return err
	}
	if IsConnectionError(err) {
		return &TransientError{Op: op, Err: err}
	}
	return fmt.Errorf("knn: %s: %w", op, err)
}

// =============================================================================
// Corpus Hash
// =============================================================================

// CorpusHash returns the hex SHA256 of docs (in order) and the model name.
//
// Order matters: row i of a cached matrix belongs to doc i.
func CorpusHash(docs []string, model string) string {
	h := sha256.New()
	for _, d := range docs {
		fmt.Fprintf(h, "%d\t%s\n", len(d), d)
	}
	fmt.Fprintf(h, "model=%s\n", model)
	return hex.EncodeToString(h.Sum(nil))
}

// shortHash returns the first 8 characters of a hash for log display.
func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8] + "..."
	}
	return h
}
