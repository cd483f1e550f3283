// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package refine runs the bounded refinement loop over a PromptObject.
//
// Each iteration asks an injected LLM for a better candidate, optionally
// executes it, scores it and feeds the result back into the next attempt.
// The loop is strictly sequential. The refiner performs no I/O of its own;
// the LLM, executor and retriever are ports supplied by the caller.
package refine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/promptsmith/services/promptsmith/config"
	"github.com/AleutianAI/promptsmith/services/promptsmith/knn"
)

// =============================================================================
// Ports
// =============================================================================

// LLM produces a candidate instruction from a meta-prompt.
//
// Connection and timeout failures are treated as transient. Any other error
// aborts the loop unless it matches an error registered with
// WithTransientErrors.
type LLM interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Executor runs a candidate and reports whether it achieved the goal.
//
// An error from Execute means the execution itself could not happen, which
// is different from a candidate that ran and failed.
type Executor interface {
	Execute(ctx context.Context, candidate string) (Outcome, error)
}

// Outcome is the result of executing one candidate.
type Outcome struct {
	Success  bool
	Feedback string
}

// LLMFunc adapts a function to the LLM interface.
type LLMFunc func(ctx context.Context, prompt string) (string, error)

func (f LLMFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, candidate string) (Outcome, error)

func (f ExecutorFunc) Execute(ctx context.Context, candidate string) (Outcome, error) {
	return f(ctx, candidate)
}

// =============================================================================
// Results
// =============================================================================

// Status is the terminal state of a loop.
type Status string

const (
	// StatusSuccess means a candidate succeeded.
	StatusSuccess Status = "success"
	// StatusExhausted means every iteration ran without success. It is a
	// result, not an error.
	StatusExhausted Status = "exhausted"
	// StatusCancelled means ctx ended the loop early. The best candidate so
	// far is still returned.
	StatusCancelled Status = "cancelled"
	// StatusAborted means a non-transient failure stopped the loop. The
	// error is returned alongside the partial result.
	StatusAborted Status = "aborted"
)

// Step is one entry of the refinement trajectory.
type Step struct {
	Iteration   int     `json:"iteration"`
	Instruction string  `json:"instruction"`
	Success     bool    `json:"success"`
	Score       float64 `json:"score"`
	Feedback    string  `json:"feedback"`

	// Degraded is set when examples could not be retrieved for the step.
	Degraded bool `json:"degraded,omitempty"`
}

// KNNFailure tags one retrieval failure seen during the loop. Exactly one of
// IsTransient and IsBug is set.
//
// Err keeps the original error for errors.Is/As. Message is its redacted
// text and is what serializes.
type KNNFailure struct {
	Iteration   int    `json:"iteration"`
	Err         error  `json:"-"`
	Message     string `json:"error"`
	IsTransient bool   `json:"is_transient"`
	IsBug       bool   `json:"is_bug"`
}

// Result is the outcome of RunLoop.
type Result struct {
	FinalInstruction string       `json:"final_instruction"`
	FinalScore       float64      `json:"final_score"`
	Success          bool         `json:"success"`
	Status           Status       `json:"status"`
	Iterations       int          `json:"iterations"`
	Trajectory       []Step       `json:"trajectory"`
	KNNFailures      []KNNFailure `json:"knn_failures,omitempty"`
}

// =============================================================================
// Refiner
// =============================================================================

// MaxIterations is the hard upper bound accepted by RunLoop.
const MaxIterations = 5

// Option configures a Refiner.
type Option func(*Refiner)

// WithExecutor sets the executor. Without one, success means the scorer's
// score reached the configured success threshold.
func WithExecutor(e Executor) Option {
	return func(r *Refiner) { r.executor = e }
}

// WithScorer replaces the HeuristicScorer.
func WithScorer(s Scorer) Option {
	return func(r *Refiner) { r.scorer = s }
}

// WithTransientErrors registers provider errors that should be retried on
// the next iteration instead of aborting the loop. Matching uses errors.Is.
func WithTransientErrors(errs ...error) Option {
	return func(r *Refiner) { r.transient = append(r.transient, errs...) }
}

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Refiner) {
		if l != nil {
			r.logger = l
		}
	}
}

// Refiner runs RunLoop.
//
// # Thread Safety
//
// A Refiner holds no per-loop state and is safe for concurrent use as long
// as its ports are.
type Refiner struct {
	cfg       config.RefinerConfig
	llm       LLM
	retriever knn.Retriever
	executor  Executor
	scorer    Scorer
	transient []error
	logger    *slog.Logger
}

// NewRefiner creates a Refiner.
//
// # Inputs
//
//   - cfg: Configuration. Must not be nil.
//   - llm: Candidate generator. Must not be nil.
//   - retriever: Source of fresh few-shot examples per iteration. Nil
//     disables retrieval.
//   - opts: WithExecutor, WithScorer, WithTransientErrors, WithLogger.
//
// # Outputs
//
//   - *Refiner: Ready to use.
//   - error: Non-nil when cfg or llm is nil.
func NewRefiner(cfg *config.Config, llm LLM, retriever knn.Retriever, opts ...Option) (*Refiner, error) {
	if cfg == nil {
		return nil, errors.New("refine: config must not be nil")
	}
	if llm == nil {
		return nil, errors.New("refine: llm must not be nil")
	}
	r := &Refiner{
		cfg:       cfg.Refiner,
		llm:       llm,
		retriever: retriever,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.scorer == nil {
		r.scorer = NewHeuristicScorer()
	}
	return r, nil
}

// DefaultIterations returns the configured iteration count.
func (r *Refiner) DefaultIterations() int { return r.cfg.MaxIterations }

// isTransient reports whether an LLM or executor error should be retried.
func (r *Refiner) isTransient(err error) bool {
	if knn.IsTransient(err) {
		return true
	}
	for _, target := range r.transient {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// stepFailureFeedback renders a transient failure as feedback for the next
// iteration.
func stepFailureFeedback(what string, err error) string {
	return fmt.Sprintf("the previous attempt could not complete (%s: %v); try again", what, err)
}
