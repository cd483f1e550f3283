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
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/promptsmith/services/promptsmith/config"
	"github.com/AleutianAI/promptsmith/services/promptsmith/routing"
)

// snapshot is one immutable loaded catalog with its fitted vectors.
type snapshot struct {
	records  []ExampleRecord
	index    Index
	vectors  [][]float32
	dim      int
	stats    LoadStats
	name     string
	loadedAt time.Time
}

// Option configures a Provider.
type Option func(*Provider)

// WithVectorizer replaces the default TF-IDF vectorizer.
func WithVectorizer(v Vectorizer) Option {
	return func(p *Provider) { p.vectorizer = v }
}

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

// Provider answers nearest-neighbor queries over a curated catalog.
//
// # Description
//
// Init loads the catalog, tags each record with its intent and complexity,
// and fits the vectorizer once. The resulting snapshot is immutable: queries
// read it without locks and never re-vectorize the catalog. Reload builds a
// fresh snapshot and swaps it in atomically; a failed reload keeps serving
// the previous one.
//
// # Thread Safety
//
// Safe for concurrent use. Concurrent first-use Init calls share one load.
type Provider struct {
	cfg        config.KNNConfig
	source     Source
	vectorizer Vectorizer
	tags       tagger
	logger     *slog.Logger

	snap     atomic.Pointer[snapshot]
	initOnce singleflight.Group
	reloadMu sync.Mutex
}

// NewProvider creates an uninitialized provider over source.
//
// # Inputs
//
//   - cfg: Full configuration. KNN settings drive loading and queries;
//     Complexity settings drive record tagging.
//   - source: Catalog source. Must not be nil.
//   - opts: WithVectorizer, WithLogger.
//
// # Outputs
//
//   - *Provider: Call Init before FindExamples.
//   - error: Non-nil if cfg or source is nil.
func NewProvider(cfg *config.Config, source Source, opts ...Option) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("knn.NewProvider: config must not be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("knn.NewProvider: source must not be nil")
	}
	p := &Provider{
		cfg:        cfg.KNN,
		source:     source,
		vectorizer: NewTFIDFVectorizer(),
		tags: tagger{
			analyzer:   routing.NewComplexityAnalyzer(cfg.Complexity),
			classifier: routing.NewIntentClassifier(),
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Init loads and vectorizes the catalog if no snapshot exists yet.
//
// Idempotent: later calls return nil immediately. Concurrent callers wait
// on a single load and share its result.
func (p *Provider) Init(ctx context.Context) error {
	if p.snap.Load() != nil {
		return nil
	}
	_, err, _ := p.initOnce.Do("init", func() (any, error) {
		if p.snap.Load() != nil {
			return nil, nil
		}
		p.reloadMu.Lock()
		defer p.reloadMu.Unlock()
		if p.snap.Load() != nil {
			return nil, nil
		}
		return nil, p.load(ctx, "init")
	})
	return err
}

// Reload rebuilds the snapshot from the source and swaps it in.
//
// On failure the previous snapshot, if any, keeps serving.
func (p *Provider) Reload(ctx context.Context) error {
	p.reloadMu.Lock()
	defer p.reloadMu.Unlock()
	return p.load(ctx, "reload")
}

// load must be called with reloadMu held.
func (p *Provider) load(ctx context.Context, op string) error {
	ctx, span := knnTracer.Start(ctx, "knn.Provider."+op,
		trace.WithAttributes(
			attribute.String("source", p.source.Name()),
			attribute.String("vectorizer", p.vectorizer.Name()),
		),
	)
	defer span.End()

	start := time.Now()
	cat, err := loadCatalog(ctx, p.source, p.cfg.CorruptionThreshold, p.cfg.PayloadPreviewLength, p.tags, p.logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Error("knn: catalog load failed",
			slog.String("op", op),
			slog.String("source", p.source.Name()),
			slog.String("error", err.Error()),
		)
		return err
	}

	docs := make([]string, len(cat.records))
	for i, rec := range cat.records {
		docs[i] = rec.document()
	}
	index, err := p.vectorizer.Fit(ctx, docs)
	if err != nil {
		vectorizerFits.WithLabelValues(p.vectorizer.Name(), "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Error("knn: vectorizer fit failed",
			slog.String("op", op),
			slog.String("vectorizer", p.vectorizer.Name()),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("knn: fit %s: %w", p.vectorizer.Name(), err)
	}
	vectorizerFits.WithLabelValues(p.vectorizer.Name(), "ok").Inc()

	vectors := index.Vectors()
	if len(vectors) != len(cat.records) {
		err := &ProgrammingError{Op: "fit", Expected: fmt.Sprintf("%d vectors", len(cat.records)),
			Got: fmt.Sprintf("%d vectors", len(vectors))}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}

	p.snap.Store(&snapshot{
		records:  cat.records,
		index:    index,
		vectors:  vectors,
		dim:      dim,
		stats:    cat.stats,
		name:     p.source.Name(),
		loadedAt: time.Now(),
	})
	catalogRecords.Set(float64(len(cat.records)))

	span.SetAttributes(
		attribute.Int("records.total", cat.stats.Total),
		attribute.Int("records.valid", cat.stats.Valid),
		attribute.Int("records.skipped", cat.stats.Skipped),
	)
	p.logger.Info("knn: catalog loaded",
		slog.String("op", op),
		slog.String("source", p.source.Name()),
		slog.String("vectorizer", p.vectorizer.Name()),
		slog.Int("total", cat.stats.Total),
		slog.Int("valid", cat.stats.Valid),
		slog.Int("skipped", cat.stats.Skipped),
		slog.Int("dimensions", dim),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// Catalog describes the live snapshot. ok is false before Init succeeds.
func (p *Provider) Catalog() (info CatalogInfo, ok bool) {
	s := p.snap.Load()
	if s == nil {
		return CatalogInfo{}, false
	}
	return CatalogInfo{
		Source:      s.name,
		Vectorizer:  p.vectorizer.Name(),
		Stats:       s.stats,
		VectorCount: len(s.vectors),
		Dimensions:  s.dim,
		LoadedAt:    s.loadedAt,
	}, true
}

// FindExamples returns up to K records ranked for q.
//
// # Description
//
// Records are ranked in tiers, then by cosine similarity to q.Text, then by
// catalog order:
//
//  1. intent type and complexity both match
//  2. intent type matches
//  3. complexity matches
//  4. everything else
//
// Tiers only order the catalog; they never exclude records, so K results
// come back whenever the catalog holds at least K.
//
// # Outputs
//
//   - []ExampleRecord: Copies of the selected records.
//   - error: ErrVectorizerNotInitialized before Init; *routing.ValidationError
//     for a negative K or one above the configured maximum; *TransientError for
//     connection or timeout failures while embedding the query;
//     *ProgrammingError for a query vector of the wrong dimension.
//
// # Thread Safety
//
// Safe for concurrent use. Lock-free.
func (p *Provider) FindExamples(ctx context.Context, q Query) (records []ExampleRecord, err error) {
	ctx, span := knnTracer.Start(ctx, "knn.Provider.FindExamples",
		trace.WithAttributes(
			attribute.String("intent", string(q.Intent)),
			attribute.String("complexity", string(q.Complexity)),
			attribute.Int("k", q.K),
		),
	)
	start := time.Now()
	defer func() {
		queryDuration.Observe(time.Since(start).Seconds())
		queriesTotal.WithLabelValues(classifyOutcome(err)).Inc()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(attribute.Int("results", len(records)))
		span.End()
	}()

	s := p.snap.Load()
	if s == nil {
		return nil, ErrVectorizerNotInitialized
	}

	k := q.K
	switch {
	case k < 0:
		return nil, &routing.ValidationError{Field: "k", Reason: fmt.Sprintf("must not be negative, got %d", k)}
	case k == 0:
		k = p.cfg.DefaultK
	case p.cfg.MaxK > 0 && k > p.cfg.MaxK:
		return nil, &routing.ValidationError{Field: "k", Reason: fmt.Sprintf("must be at most %d, got %d", p.cfg.MaxK, k)}
	}
	if len(s.records) == 0 {
		return []ExampleRecord{}, nil
	}

	var sims []float32
	if q.Text != "" {
		sims, err = p.similarities(ctx, s, q.Text)
		if err != nil {
			return nil, err
		}
	}

	order := make([]int, len(s.records))
	tiers := make([]int, len(s.records))
	for i, rec := range s.records {
		order[i] = i
		tiers[i] = tierOf(rec, q)
	}
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if tiers[ia] != tiers[ib] {
			return tiers[ia] < tiers[ib]
		}
		if sims != nil && sims[ia] != sims[ib] {
			return sims[ia] > sims[ib]
		}
		return ia < ib
	})

	if k > len(order) {
		k = len(order)
	}
	records = make([]ExampleRecord, k)
	for i := 0; i < k; i++ {
		records[i] = s.records[order[i]].clone()
	}
	return records, nil
}

// similarities embeds text and scores it against every catalog row.
func (p *Provider) similarities(ctx context.Context, s *snapshot, text string) ([]float32, error) {
	if p.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.QueryTimeout)
		defer cancel()
	}

	qvec, err := s.index.Embed(ctx, text)
	if err != nil {
		var te *TransientError
		if !errors.As(err, &te) && IsConnectionError(err) {
			err = &TransientError{Op: "embed query", Err: err}
		}
		return nil, err
	}
	if len(qvec) != s.dim {
		return nil, &ProgrammingError{Op: "embed query",
			Expected: fmt.Sprintf("%d dimensions", s.dim),
			Got:      fmt.Sprintf("%d dimensions", len(qvec))}
	}

	sims := make([]float32, len(s.vectors))
	for i, row := range s.vectors {
		sims[i] = dotProduct(qvec, row)
	}
	return sims, nil
}

func tierOf(rec ExampleRecord, q Query) int {
	intentMatch := q.Intent != "" && rec.Intent.Type() == q.Intent.Type()
	complexityMatch := q.Complexity != "" && rec.Complexity == q.Complexity
	switch {
	case intentMatch && complexityMatch:
		return 0
	case intentMatch:
		return 1
	case complexityMatch:
		return 2
	default:
		return 3
	}
}
