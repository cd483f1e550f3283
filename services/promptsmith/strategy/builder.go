// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/promptsmith/services/promptsmith/config"
	"github.com/AleutianAI/promptsmith/services/promptsmith/knn"
	"github.com/AleutianAI/promptsmith/services/promptsmith/prompt"
	"github.com/AleutianAI/promptsmith/services/promptsmith/refine"
	"github.com/AleutianAI/promptsmith/services/promptsmith/routing"
	"github.com/AleutianAI/promptsmith/services/promptsmith/textutil"
)

// ErrNoRefiner is returned by BuildAndRefine for an iterative-mode request
// when no refiner is configured.
var ErrNoRefiner = errors.New("strategy: iterative mode requires a refiner")

// Inputs are structured code and error inputs attached to a request.
type Inputs struct {
	Code     string
	Error    string
	Language string
}

// Request is one build request.
type Request struct {
	Idea    string
	Context string

	// Mode defaults to standard.
	Mode prompt.Mode

	// Complexity skips the analyzer when set.
	Complexity routing.Complexity

	Inputs *Inputs

	// K is the number of examples wanted. Zero uses the retriever default.
	K int

	// ForceReasoning adds the reasoning preamble at any complexity.
	ForceReasoning bool
}

// Refiner is the refinement loop used by BuildAndRefine.
type Refiner interface {
	RunLoop(ctx context.Context, po *prompt.PromptObject, maxIterations int) (*refine.Result, error)
}

// Option configures a Builder.
type Option func(*Builder)

// WithRefiner enables BuildAndRefine.
func WithRefiner(r Refiner) Option {
	return func(b *Builder) { b.refiner = r }
}

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// Builder turns requests into PromptObjects.
//
// # Thread Safety
//
// Immutable after NewBuilder; safe for concurrent use if the retriever and
// refiner are.
type Builder struct {
	cfg        config.StrategyConfig
	iterations int
	analyzer   *routing.ComplexityAnalyzer
	classifier *routing.IntentClassifier
	retriever  knn.Retriever
	table      *Table
	refiner    Refiner
	logger     *slog.Logger
}

// NewBuilder creates a Builder.
//
// # Inputs
//
//   - cfg: Configuration. Must not be nil. Strategy overrides are validated
//     here.
//   - retriever: Example source. Nil disables retrieval for every mode.
//   - opts: WithRefiner, WithLogger.
//
// # Outputs
//
//   - *Builder: Ready to use.
//   - error: Non-nil for a nil config or an invalid strategy override.
func NewBuilder(cfg *config.Config, retriever knn.Retriever, opts ...Option) (*Builder, error) {
	if cfg == nil {
		return nil, errors.New("strategy: config must not be nil")
	}
	table, err := NewTable(cfg.Strategy.Overrides)
	if err != nil {
		return nil, err
	}
	b := &Builder{
		cfg:        cfg.Strategy,
		iterations: cfg.Refiner.MaxIterations,
		analyzer:   routing.NewComplexityAnalyzer(cfg.Complexity),
		classifier: routing.NewIntentClassifier(),
		retriever:  retriever,
		table:      table,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Table returns the validated routing table.
func (b *Builder) Table() *Table { return b.table }

// Build assembles the PromptObject for req.
//
// # Description
//
//  1. Resolves complexity (req.Complexity or the analyzer) and intent.
//  2. Retrieves examples unless the mode is fast or no retriever is set. A
//     transient failure is logged and the build continues with zero examples
//     and KNNFailed set. Any other retrieval error is returned unmodified.
//  3. Looks up the strategy for (intent, complexity).
//  4. Renders the template. Role, task and approach are always present;
//     context, code and error sections only when supplied; the reasoning
//     preamble when complexity is COMPLEX, the strategy requires it, or
//     req.ForceReasoning is set. Guardrails from the strategy and the
//     examples are deduplicated and capped.
//
// # Outputs
//
//   - *prompt.PromptObject: Immutable result.
//   - error: *routing.ValidationError for an empty idea or unknown mode or
//     complexity; the retriever's error for non-transient retrieval failures.
//
// # Thread Safety
//
// Safe for concurrent use.
func (b *Builder) Build(ctx context.Context, req Request) (po *prompt.PromptObject, err error) {
	ctx, span := strategyTracer.Start(ctx, "strategy.Builder.Build",
		trace.WithAttributes(attribute.String("mode", string(req.Mode))),
	)
	start := time.Now()
	defer func() {
		buildDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if strings.TrimSpace(req.Idea) == "" {
		return nil, &routing.ValidationError{Field: "idea", Reason: "must not be empty"}
	}
	mode, err := prompt.ParseMode(string(req.Mode))
	if err != nil {
		return nil, &routing.ValidationError{Field: "mode", Reason: err.Error()}
	}

	complexity := req.Complexity
	if complexity == "" {
		complexity, err = b.analyzer.Analyze(req.Idea, req.Context)
	} else {
		complexity, err = routing.ParseComplexity(string(complexity))
	}
	if err != nil {
		return nil, err
	}
	intent := b.classifier.Classify(req.Idea, req.Context)
	strat := b.table.Lookup(intent, complexity)

	span.SetAttributes(
		attribute.String("intent", string(intent)),
		attribute.String("complexity", string(complexity)),
		attribute.String("strategy", string(strat.ID())),
	)

	knnEnabled := mode != prompt.ModeFast && b.retriever != nil
	var (
		examples  []knn.ExampleRecord
		knnFailed bool
	)
	if knnEnabled {
		examples, err = b.retriever.FindExamples(ctx, knn.Query{
			Intent:     intent,
			Complexity: complexity,
			K:          req.K,
			Text:       queryText(req),
		})
		switch {
		case err == nil:
		case knn.IsTransient(err):
			knnFailed = true
			examples = nil
			degradedBuilds.Inc()
			b.logger.Warn("strategy: example retrieval failed; building without examples",
				slog.String("intent", string(intent)),
				slog.String("complexity", string(complexity)),
				slog.String("strategy", string(strat.ID())),
				slog.String("error", err.Error()),
			)
			span.AddEvent("knn_degraded")
		default:
			return nil, err
		}
	}

	role := strat.DefaultRole(intent.Type())
	data := templateData{
		Role:         role,
		Task:         strings.TrimSpace(req.Idea),
		Context:      strings.TrimSpace(req.Context),
		Approach:     strat.Approach(),
		OutputFormat: strat.OutputFormat(),
		Examples:     examples,
	}
	if req.Inputs != nil {
		data.Code = strings.TrimSpace(req.Inputs.Code)
		data.Error = strings.TrimSpace(req.Inputs.Error)
		data.Language = strings.TrimSpace(req.Inputs.Language)
	}
	if len(examples) > 0 {
		// The closest example supplies the curated persona and framing.
		lead := examples[0]
		if lead.Role != "" {
			role = lead.Role
			data.Role = role
		}
		data.Directive = lead.Directive
		data.Framework = lead.Framework
		if lead.ExpectedOutput != "" {
			data.OutputFormat = joinNonEmpty("\n", data.OutputFormat, "Expected output: "+lead.ExpectedOutput)
		}
	}

	rarRequested := strat.RequiresReasoning() || req.ForceReasoning
	data.Reasoning = complexity == routing.ComplexityComplex || rarRequested
	data.Guardrails = mergeGuardrails(b.cfg.MaxGuardrails, strat.Guardrails(), examples)

	tmpl, err := render(data)
	if err != nil {
		return nil, err
	}

	po, err = prompt.New(prompt.Params{
		Template:     tmpl,
		Idea:         req.Idea,
		Context:      req.Context,
		Intent:       intent,
		Complexity:   complexity,
		Mode:         mode,
		Strategy:     strat.ID(),
		KNNEnabled:   knnEnabled,
		KNNFailed:    knnFailed,
		Role:         role,
		RaRUsed:      data.Reasoning,
		RaRRequested: rarRequested,
		Examples:     examples,
		Constraints:  data.Guardrails,
	})
	if err != nil {
		return nil, fmt.Errorf("strategy: %w", err)
	}

	buildsTotal.WithLabelValues(string(strat.ID()), knnLabel(knnEnabled, knnFailed)).Inc()
	span.SetAttributes(
		attribute.String("prompt_id", po.ID()),
		attribute.Int("fewshot_count", po.Meta().FewShotCount),
		attribute.Bool("knn_failed", knnFailed),
	)
	b.logger.Debug("strategy: prompt built",
		slog.String("prompt_id", po.ID()),
		slog.String("intent", string(intent)),
		slog.String("complexity", string(complexity)),
		slog.String("strategy", string(strat.ID())),
		slog.Int("fewshot_count", po.Meta().FewShotCount),
		slog.Bool("knn_failed", knnFailed),
		slog.Bool("rar_used", data.Reasoning),
	)
	return po, nil
}

// BuildAndRefine builds req and, when the mode is iterative or the selected
// strategy is iterative, runs the refinement loop over the result.
//
// The PromptObject is returned even when refinement fails. The Result is nil
// when no refinement ran. An iterative-mode request without a refiner fails
// with ErrNoRefiner; an iterative strategy without one just skips the loop.
// Fast mode never refines.
func (b *Builder) BuildAndRefine(ctx context.Context, req Request) (*prompt.PromptObject, *refine.Result, error) {
	po, err := b.Build(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	strat, _ := Lookup(po.Meta().Strategy)
	switch {
	case po.Mode() == prompt.ModeFast:
		return po, nil, nil
	case po.Mode() != prompt.ModeIterative && !strat.Iterative():
		return po, nil, nil
	case b.refiner == nil && po.Mode() == prompt.ModeIterative:
		return po, nil, ErrNoRefiner
	case b.refiner == nil:
		return po, nil, nil
	}

	res, err := b.refiner.RunLoop(ctx, po, b.iterations)
	return po, res, err
}

// queryText is the similarity query for a request.
func queryText(req Request) string {
	return joinNonEmpty("\n", strings.TrimSpace(req.Idea), strings.TrimSpace(req.Context))
}

// mergeGuardrails deduplicates strategy and example guardrails
// case-insensitively, keeping first-seen order, and caps the result.
func mergeGuardrails(limit int, base []string, examples []knn.ExampleRecord) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(g string) {
		g = strings.TrimSpace(g)
		key := textutil.Normalize(g)
		if g == "" || seen[key] || (limit > 0 && len(out) >= limit) {
			return
		}
		seen[key] = true
		out = append(out, g)
	}
	for _, g := range base {
		add(g)
	}
	for _, ex := range examples {
		for _, g := range ex.Guardrails {
			add(g)
		}
	}
	return out
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

func knnLabel(enabled, failed bool) string {
	switch {
	case !enabled:
		return "disabled"
	case failed:
		return "degraded"
	default:
		return "ok"
	}
}
