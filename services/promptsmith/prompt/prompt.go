// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package prompt defines the immutable PromptObject produced by the
// strategy builder and consumed by the refiner.
package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/promptsmith/services/promptsmith/knn"
	"github.com/AleutianAI/promptsmith/services/promptsmith/routing"
)

// =============================================================================
// Strategy Identifiers
// =============================================================================

// StrategyID names one entry of the closed strategy set.
type StrategyID string

const (
	StrategyDirect          StrategyID = "direct"
	StrategyStructured      StrategyID = "structured"
	StrategyChainOfThought  StrategyID = "chain_of_thought"
	StrategyDebugTrace      StrategyID = "debug_trace"
	StrategyRefactorPlan    StrategyID = "refactor_plan"
	StrategyIterativeRefine StrategyID = "iterative_refine"
)

// StrategyIDs lists every strategy identifier.
var StrategyIDs = []StrategyID{
	StrategyDirect,
	StrategyStructured,
	StrategyChainOfThought,
	StrategyDebugTrace,
	StrategyRefactorPlan,
	StrategyIterativeRefine,
}

// Valid reports whether s is a known strategy.
func (s StrategyID) Valid() bool {
	return slices.Contains(StrategyIDs, s)
}

// ParseStrategyID returns the strategy named s (case-insensitive).
func ParseStrategyID(s string) (StrategyID, error) {
	id := StrategyID(strings.ToLower(strings.TrimSpace(s)))
	if !id.Valid() {
		return "", fmt.Errorf("unknown strategy %q (known: %v)", s, StrategyIDs)
	}
	return id, nil
}

// Mode selects how much work Build does.
type Mode string

const (
	// ModeFast skips retrieval.
	ModeFast Mode = "fast"
	// ModeStandard retrieves examples and assembles once.
	ModeStandard Mode = "standard"
	// ModeIterative also runs the refinement loop.
	ModeIterative Mode = "iterative"
)

// ParseMode returns the mode named s. Empty input is ModeStandard.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeStandard, nil
	case ModeFast, ModeStandard, ModeIterative:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q (known: fast, standard, iterative)", s)
	}
}

// =============================================================================
// PromptObject
// =============================================================================

// ErrInvalidPromptObject matches every *InvariantError.
var ErrInvalidPromptObject = errors.New("prompt: invalid prompt object")

// InvariantError reports a PromptObject that would violate an invariant.
type InvariantError struct {
	Field  string
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("prompt: %s: %s", e.Field, e.Reason)
}

func (e *InvariantError) Is(target error) bool { return target == ErrInvalidPromptObject }

// StrategyMeta records how a PromptObject was assembled.
type StrategyMeta struct {
	Strategy     StrategyID `json:"strategy"`
	KNNEnabled   bool       `json:"knn_enabled"`
	KNNFailed    bool       `json:"knn_failed"`
	FewShotCount int        `json:"fewshot_count"`
	Role         string     `json:"role"`
	RaRUsed      bool       `json:"rar_used"`
}

// Params are the inputs to New.
type Params struct {
	// ID defaults to a random UUID.
	ID string

	Template   string
	Idea       string
	Context    string
	Intent     routing.Intent
	Complexity routing.Complexity
	Mode       Mode

	Strategy   StrategyID
	KNNEnabled bool
	KNNFailed  bool
	Role       string
	RaRUsed    bool

	// RaRRequested permits RaRUsed below COMPLEX. Set when the caller forced
	// reasoning or the strategy requires it.
	RaRRequested bool

	Examples    []knn.ExampleRecord
	Constraints []string

	// CreatedAt defaults to the current UTC time.
	CreatedAt time.Time
}

// PromptObject is the immutable result of one Build.
//
// # Thread Safety
//
// Immutable. Accessors return copies of slices.
type PromptObject struct {
	id          string
	template    string
	idea        string
	context     string
	intent      routing.Intent
	complexity  routing.Complexity
	mode        Mode
	meta        StrategyMeta
	examples    []knn.ExampleRecord
	constraints []string
	createdAt   time.Time
}

// New validates p and returns the PromptObject.
//
// # Description
//
// FewShotCount is always len(Examples). New rejects, with *InvariantError:
//
//   - an empty template or idea
//   - an unknown intent type, complexity, mode or strategy
//   - KNNFailed with examples present
//   - examples when retrieval was not enabled, or KNNFailed without it
//   - RaRUsed below COMPLEX unless RaRRequested
func New(p Params) (*PromptObject, error) {
	switch {
	case strings.TrimSpace(p.Template) == "":
		return nil, &InvariantError{Field: "template", Reason: "must not be empty"}
	case strings.TrimSpace(p.Idea) == "":
		return nil, &InvariantError{Field: "idea", Reason: "must not be empty"}
	case !validIntent(p.Intent):
		return nil, &InvariantError{Field: "intent", Reason: fmt.Sprintf("unknown intent %q", p.Intent)}
	case !p.Complexity.Valid():
		return nil, &InvariantError{Field: "complexity", Reason: fmt.Sprintf("unknown complexity %q", p.Complexity)}
	case !p.Strategy.Valid():
		return nil, &InvariantError{Field: "strategy", Reason: fmt.Sprintf("unknown strategy %q", p.Strategy)}
	}

	mode := p.Mode
	if mode == "" {
		mode = ModeStandard
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, &InvariantError{Field: "mode", Reason: err.Error()}
	}

	switch {
	case p.KNNFailed && len(p.Examples) > 0:
		return nil, &InvariantError{Field: "knn_failed", Reason: "a failed retrieval cannot carry examples"}
	case !p.KNNEnabled && (len(p.Examples) > 0 || p.KNNFailed):
		return nil, &InvariantError{Field: "knn_enabled", Reason: "examples or a failure require retrieval to be enabled"}
	case p.RaRUsed && p.Complexity != routing.ComplexityComplex && !p.RaRRequested:
		return nil, &InvariantError{Field: "rar_used", Reason: "reasoning preamble requires COMPLEX or an explicit request"}
	}

	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	examples := make([]knn.ExampleRecord, len(p.Examples))
	for i, ex := range p.Examples {
		ex.Guardrails = slices.Clone(ex.Guardrails)
		examples[i] = ex
	}

	return &PromptObject{
		id:         id,
		template:   p.Template,
		idea:       p.Idea,
		context:    p.Context,
		intent:     p.Intent,
		complexity: p.Complexity,
		mode:       mode,
		meta: StrategyMeta{
			Strategy:     p.Strategy,
			KNNEnabled:   p.KNNEnabled,
			KNNFailed:    p.KNNFailed,
			FewShotCount: len(examples),
			Role:         p.Role,
			RaRUsed:      p.RaRUsed,
		},
		examples:    examples,
		constraints: slices.Clone(p.Constraints),
		createdAt:   createdAt,
	}, nil
}

// validIntent reports whether i names a known base type. Intent.Type alone
// cannot tell, since it maps unknown strings to generate.
func validIntent(i routing.Intent) bool {
	base, _, _ := strings.Cut(string(i), ":")
	return routing.IntentType(base).Valid()
}

func (p *PromptObject) ID() string                     { return p.id }
func (p *PromptObject) Template() string               { return p.template }
func (p *PromptObject) Idea() string                   { return p.idea }
func (p *PromptObject) Context() string                { return p.context }
func (p *PromptObject) Intent() routing.Intent         { return p.intent }
func (p *PromptObject) IntentType() routing.IntentType { return p.intent.Type() }
func (p *PromptObject) Complexity() routing.Complexity { return p.complexity }
func (p *PromptObject) Mode() Mode                     { return p.mode }
func (p *PromptObject) Meta() StrategyMeta             { return p.meta }
func (p *PromptObject) CreatedAt() time.Time           { return p.createdAt }

// Constraints returns a copy of the guardrails appended to the template.
func (p *PromptObject) Constraints() []string { return slices.Clone(p.constraints) }

// Examples returns copies of the few-shot examples in template order.
func (p *PromptObject) Examples() []knn.ExampleRecord {
	out := make([]knn.ExampleRecord, len(p.examples))
	for i, ex := range p.examples {
		ex.Guardrails = slices.Clone(ex.Guardrails)
		out[i] = ex
	}
	return out
}

type promptObjectJSON struct {
	ID           string             `json:"id"`
	Template     string             `json:"template"`
	Intent       routing.Intent     `json:"intent"`
	IntentType   routing.IntentType `json:"intent_type"`
	Complexity   routing.Complexity `json:"complexity"`
	Mode         Mode               `json:"mode"`
	StrategyMeta StrategyMeta       `json:"strategy_meta"`
	Constraints  []string           `json:"constraints"`
	CreatedAt    time.Time          `json:"created_at"`
}

// MarshalJSON renders the public shape of the object.
func (p *PromptObject) MarshalJSON() ([]byte, error) {
	constraints := p.constraints
	if constraints == nil {
		constraints = []string{}
	}
	return json.Marshal(promptObjectJSON{
		ID:           p.id,
		Template:     p.template,
		Intent:       p.intent,
		IntentType:   p.intent.Type(),
		Complexity:   p.complexity,
		Mode:         p.mode,
		StrategyMeta: p.meta,
		Constraints:  constraints,
		CreatedAt:    p.createdAt,
	})
}
