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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/AleutianAI/promptsmith/services/promptsmith/config"
	"github.com/AleutianAI/promptsmith/services/promptsmith/knn"
	"github.com/AleutianAI/promptsmith/services/promptsmith/refine"
	badgerstore "github.com/AleutianAI/promptsmith/services/promptsmith/storage/badger"
	"github.com/AleutianAI/promptsmith/services/promptsmith/strategy"
)

// app holds the collaborators shared by every command.
type app struct {
	s      *settings
	cfg    *config.Config
	logger *slog.Logger

	// provider is nil when no catalog is configured.
	provider *knn.Provider

	closers []func() error
}

// newApp loads the core config and, when a catalog is configured, builds and
// initializes the example provider.
func newApp(ctx context.Context, s *settings, logOut io.Writer) (*app, error) {
	logger := newLogger(logOut, s.LogLevel)
	cfg, err := config.LoadFile(ctx, s.Config)
	if err != nil {
		return nil, err
	}
	a := &app{s: s, cfg: cfg, logger: logger}
	if s.Catalog == "" {
		return a, nil
	}
	if err := a.openCatalog(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// Close releases the GCS client and the vector cache, newest first.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// retriever returns the provider as a Retriever, or nil when retrieval is
// disabled. A nil *Provider must not leak into the interface.
func (a *app) retriever() knn.Retriever {
	if a.provider == nil {
		return nil
	}
	return a.provider
}

func (a *app) openCatalog(ctx context.Context) error {
	source, err := a.catalogSource(ctx)
	if err != nil {
		return err
	}
	opts := []knn.Option{knn.WithLogger(a.logger)}
	if a.s.Embed != "" {
		vec, err := a.vectorizer()
		if err != nil {
			return err
		}
		opts = append(opts, knn.WithVectorizer(vec))
	}
	p, err := knn.NewProvider(a.cfg, source, opts...)
	if err != nil {
		return err
	}
	if err := p.Init(ctx); err != nil {
		return fmt.Errorf("loading catalog %s: %w", source.Name(), err)
	}
	a.provider = p
	return nil
}

func (a *app) catalogSource(ctx context.Context) (knn.Source, error) {
	if !strings.HasPrefix(a.s.Catalog, "gs://") {
		return knn.NewFileSource(a.s.Catalog), nil
	}
	bucket, object, err := parseGCSURI(a.s.Catalog)
	if err != nil {
		return nil, err
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating GCS client: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	return knn.NewGCSSource(client, bucket, object), nil
}

// vectorizer builds the embedding vectorizer, backed by the BadgerDB vector
// cache when --cache-dir is set.
func (a *app) vectorizer() (knn.Vectorizer, error) {
	var embedder knn.Embedder
	switch a.s.Embed {
	case "ollama":
		embedder = knn.NewOllamaEmbedder(a.s.EmbedURL, a.s.EmbedModel, nil)
	case "langchain":
		model := a.s.EmbedModel
		if model == "" {
			model = "nomic-embed-text"
		}
		opts := []ollama.Option{ollama.WithModel(model)}
		if a.s.EmbedURL != "" {
			opts = append(opts, ollama.WithServerURL(a.s.EmbedURL))
		}
		client, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("creating langchain ollama client: %w", err)
		}
		inner, err := embeddings.NewEmbedder(client)
		if err != nil {
			return nil, fmt.Errorf("creating langchain embedder: %w", err)
		}
		embedder = knn.NewLangChainEmbedder(inner, "ollama:"+model)
	}

	var store knn.VectorStore
	if a.s.CacheDir != "" {
		cfg := badgerstore.DefaultConfig(a.s.CacheDir)
		cfg.Logger = a.logger
		db, err := badgerstore.OpenDB(cfg)
		if err != nil {
			return nil, fmt.Errorf("opening vector cache: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		store = knn.NewBadgerVectorStore(db, a.cfg.KNN.VectorCacheTTL, a.logger)
	}
	return knn.NewEmbeddingVectorizer(embedder, a.cfg.KNN, store, a.logger), nil
}

// builder returns a strategy builder, with a refiner attached when
// withRefiner is set.
func (a *app) builder(withRefiner bool) (*strategy.Builder, error) {
	opts := []strategy.Option{strategy.WithLogger(a.logger)}
	if withRefiner {
		r, err := a.refiner()
		if err != nil {
			return nil, err
		}
		opts = append(opts, strategy.WithRefiner(r))
	}
	return strategy.NewBuilder(a.cfg, a.retriever(), opts...)
}

func (a *app) refiner() (*refine.Refiner, error) {
	model, err := ollama.New(
		ollama.WithModel(a.s.LLMModel),
		ollama.WithServerURL(a.s.LLMURL),
	)
	if err != nil {
		return nil, fmt.Errorf("creating ollama client: %w", err)
	}
	llm, err := refine.NewLangChainLLM(model)
	if err != nil {
		return nil, err
	}
	return refine.NewRefiner(a.cfg, llm, a.retriever(), refine.WithLogger(a.logger))
}

// newLogger returns a text logger on w. Unknown levels fall back to warn.
func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
