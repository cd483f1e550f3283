// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package strategy assembles PromptObjects from routing signals and
// retrieved examples.
//
// A fixed table maps every (intent, complexity) pair to one of a closed set
// of strategies. Each strategy contributes the approach, output format and
// guardrails of the template; the Builder adds the request, its context and
// the few-shot examples.
package strategy

import (
	"github.com/AleutianAI/promptsmith/services/promptsmith/prompt"
	"github.com/AleutianAI/promptsmith/services/promptsmith/routing"
)

// Strategy is one template-assembly approach.
type Strategy interface {
	ID() prompt.StrategyID

	// DefaultRole is the role used when no retrieved example supplies one.
	DefaultRole(t routing.IntentType) string

	// Approach is the body of the approach section. Never empty.
	Approach() string

	// OutputFormat is the body of the output format section. May be empty.
	OutputFormat() string

	Guardrails() []string

	// RequiresReasoning forces the reasoning preamble.
	RequiresReasoning() bool

	// Iterative routes BuildAndRefine through the refiner.
	Iterative() bool
}

// roles are the per-intent defaults shared by every strategy.
var roles = map[routing.IntentType]string{
	routing.IntentDebug:    "You are an experienced software engineer who diagnoses and fixes defects in production systems.",
	routing.IntentRefactor: "You are a senior software engineer who improves the structure of existing code without changing its behavior.",
	routing.IntentExplain:  "You are a patient technical educator who explains concepts precisely and at the reader's level.",
	routing.IntentGenerate: "You are a senior software engineer who writes clear, correct and well-tested code.",
}

func defaultRole(t routing.IntentType) string {
	if r, ok := roles[t]; ok {
		return r
	}
	return roles[routing.IntentGenerate]
}

// =============================================================================
// Concrete Strategies
// =============================================================================

type directStrategy struct{}

func (directStrategy) ID() prompt.StrategyID                   { return prompt.StrategyDirect }
func (directStrategy) DefaultRole(t routing.IntentType) string { return defaultRole(t) }
func (directStrategy) RequiresReasoning() bool                 { return false }
func (directStrategy) Iterative() bool                         { return false }
func (directStrategy) OutputFormat() string                    { return "" }

func (directStrategy) Approach() string {
	return "Answer the task directly and concisely. Do not add steps the task does not need."
}

func (directStrategy) Guardrails() []string {
	return []string{"Stay within the scope of the task."}
}

type structuredStrategy struct{}

func (structuredStrategy) ID() prompt.StrategyID                   { return prompt.StrategyStructured }
func (structuredStrategy) DefaultRole(t routing.IntentType) string { return defaultRole(t) }
func (structuredStrategy) RequiresReasoning() bool                 { return false }
func (structuredStrategy) Iterative() bool                         { return false }

func (structuredStrategy) Approach() string {
	return "Break the task into its component parts and address each one in its own section, in order."
}

func (structuredStrategy) OutputFormat() string {
	return "Use markdown headings for each part. Put code in fenced blocks tagged with their language."
}

func (structuredStrategy) Guardrails() []string {
	return []string{
		"Stay within the scope of the task.",
		"State any assumption you make explicitly.",
	}
}

type chainOfThoughtStrategy struct{}

func (chainOfThoughtStrategy) ID() prompt.StrategyID                   { return prompt.StrategyChainOfThought }
func (chainOfThoughtStrategy) DefaultRole(t routing.IntentType) string { return defaultRole(t) }
func (chainOfThoughtStrategy) RequiresReasoning() bool                 { return true }
func (chainOfThoughtStrategy) Iterative() bool                         { return false }

func (chainOfThoughtStrategy) Approach() string {
	return "Work through the problem step by step. Write down each intermediate conclusion before building on it, and check the final answer against the original request."
}

func (chainOfThoughtStrategy) OutputFormat() string {
	return "First the numbered reasoning steps, then a section titled \"Answer\" with the final result."
}

func (chainOfThoughtStrategy) Guardrails() []string {
	return []string{
		"State any assumption you make explicitly.",
		"Do not skip steps in the reasoning.",
	}
}

type debugTraceStrategy struct{}

func (debugTraceStrategy) ID() prompt.StrategyID   { return prompt.StrategyDebugTrace }
func (debugTraceStrategy) RequiresReasoning() bool { return false }
func (debugTraceStrategy) Iterative() bool         { return false }

func (debugTraceStrategy) DefaultRole(routing.IntentType) string {
	return roles[routing.IntentDebug]
}

func (debugTraceStrategy) Approach() string {
	return "1. Reproduce the failure and describe the observed behavior.\n" +
		"2. Narrow down where the behavior diverges from the expected one.\n" +
		"3. Form a hypothesis for the root cause and confirm it with evidence.\n" +
		"4. Propose the smallest fix and explain how to verify it."
}

func (debugTraceStrategy) OutputFormat() string {
	return "Root cause, then the fix as a unified diff, then the verification steps."
}

func (debugTraceStrategy) Guardrails() []string {
	return []string{
		"Reproduce the problem before proposing a fix.",
		"Fix the root cause, not the symptom.",
		"Do not change unrelated code.",
	}
}

type refactorPlanStrategy struct{}

func (refactorPlanStrategy) ID() prompt.StrategyID   { return prompt.StrategyRefactorPlan }
func (refactorPlanStrategy) RequiresReasoning() bool { return false }
func (refactorPlanStrategy) Iterative() bool         { return false }

func (refactorPlanStrategy) DefaultRole(routing.IntentType) string {
	return roles[routing.IntentRefactor]
}

func (refactorPlanStrategy) Approach() string {
	return "Describe the current structure and what makes it hard to change. Then propose a sequence of small, independently verifiable refactoring steps."
}

func (refactorPlanStrategy) OutputFormat() string {
	return "A numbered plan. For each step: the change, the reason, and how to confirm behavior is unchanged."
}

func (refactorPlanStrategy) Guardrails() []string {
	return []string{
		"Preserve existing behavior.",
		"Keep each step small enough to review on its own.",
		"Do not change public interfaces unless the task asks for it.",
	}
}

type iterativeRefineStrategy struct{}

func (iterativeRefineStrategy) ID() prompt.StrategyID                   { return prompt.StrategyIterativeRefine }
func (iterativeRefineStrategy) DefaultRole(t routing.IntentType) string { return defaultRole(t) }
func (iterativeRefineStrategy) RequiresReasoning() bool                 { return true }
func (iterativeRefineStrategy) Iterative() bool                         { return true }

func (iterativeRefineStrategy) Approach() string {
	return "Produce a first complete solution, then review it critically against the task and the constraints, and revise it until no issue remains."
}

func (iterativeRefineStrategy) OutputFormat() string {
	return "The final revised solution only, followed by a short list of the issues the revisions fixed."
}

func (iterativeRefineStrategy) Guardrails() []string {
	return []string{
		"State any assumption you make explicitly.",
		"Verify the solution against every requirement before finishing.",
	}
}

// registry binds every StrategyID to its implementation.
var registry = map[prompt.StrategyID]Strategy{
	prompt.StrategyDirect:          directStrategy{},
	prompt.StrategyStructured:      structuredStrategy{},
	prompt.StrategyChainOfThought:  chainOfThoughtStrategy{},
	prompt.StrategyDebugTrace:      debugTraceStrategy{},
	prompt.StrategyRefactorPlan:    refactorPlanStrategy{},
	prompt.StrategyIterativeRefine: iterativeRefineStrategy{},
}

// Lookup returns the implementation of id.
func Lookup(id prompt.StrategyID) (Strategy, bool) {
	s, ok := registry[id]
	return s, ok
}
