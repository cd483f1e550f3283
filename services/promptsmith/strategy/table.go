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
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/promptsmith/services/promptsmith/prompt"
	"github.com/AleutianAI/promptsmith/services/promptsmith/routing"
)

// cell is one (intent, complexity) table position.
type cell struct {
	intent     routing.IntentType
	complexity routing.Complexity
}

func (c cell) String() string {
	return string(c.intent) + "/" + string(c.complexity)
}

// defaultCells is the built-in routing table. Strategies that require the
// reasoning preamble only appear in COMPLEX cells so the preamble never
// appears below COMPLEX without an explicit request.
var defaultCells = map[cell]prompt.StrategyID{
	{routing.IntentDebug, routing.ComplexitySimple}:   prompt.StrategyDebugTrace,
	{routing.IntentDebug, routing.ComplexityModerate}: prompt.StrategyDebugTrace,
	{routing.IntentDebug, routing.ComplexityComplex}:  prompt.StrategyIterativeRefine,

	{routing.IntentRefactor, routing.ComplexitySimple}:   prompt.StrategyDirect,
	{routing.IntentRefactor, routing.ComplexityModerate}: prompt.StrategyRefactorPlan,
	{routing.IntentRefactor, routing.ComplexityComplex}:  prompt.StrategyRefactorPlan,

	{routing.IntentExplain, routing.ComplexitySimple}:   prompt.StrategyDirect,
	{routing.IntentExplain, routing.ComplexityModerate}: prompt.StrategyStructured,
	{routing.IntentExplain, routing.ComplexityComplex}:  prompt.StrategyChainOfThought,

	{routing.IntentGenerate, routing.ComplexitySimple}:   prompt.StrategyDirect,
	{routing.IntentGenerate, routing.ComplexityModerate}: prompt.StrategyStructured,
	{routing.IntentGenerate, routing.ComplexityComplex}:  prompt.StrategyChainOfThought,
}

// Entry is one row of a Table listing.
type Entry struct {
	Intent     routing.IntentType `json:"intent"`
	Complexity routing.Complexity `json:"complexity"`
	Strategy   prompt.StrategyID  `json:"strategy"`
}

// Table maps every (intent, complexity) pair to a Strategy.
//
// # Thread Safety
//
// Immutable after NewTable; safe for concurrent use.
type Table struct {
	cells map[cell]Strategy
}

// NewTable builds the routing table with overrides applied.
//
// # Description
//
// Override keys are "<intent>/<COMPLEXITY>" (case-insensitive, e.g.
// "debug/complex"); values are strategy identifiers. A key naming an
// unknown intent or complexity, an unknown identifier, or a strategy that
// requires the reasoning preamble outside a COMPLEX cell is rejected. Every
// pair of the closed intent and complexity sets must resolve.
//
// # Inputs
//
//   - overrides: Cell replacements. May be nil.
//
// # Outputs
//
//   - *Table: The validated table.
//   - error: Describes the first invalid override, in key order.
func NewTable(overrides map[string]string) (*Table, error) {
	ids := make(map[cell]prompt.StrategyID, len(defaultCells))
	for c, id := range defaultCells {
		ids[c] = id
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		c, err := parseCell(key)
		if err != nil {
			return nil, fmt.Errorf("strategy: override %q: %w", key, err)
		}
		id, err := prompt.ParseStrategyID(overrides[key])
		if err != nil {
			return nil, fmt.Errorf("strategy: override %q: %w", key, err)
		}
		ids[c] = id
	}

	t := &Table{cells: make(map[cell]Strategy, len(ids))}
	for _, it := range routing.IntentTypes {
		for _, cx := range routing.Complexities {
			c := cell{it, cx}
			id, ok := ids[c]
			if !ok {
				return nil, fmt.Errorf("strategy: no strategy for %s", c)
			}
			s, ok := Lookup(id)
			if !ok {
				return nil, fmt.Errorf("strategy: %s: no implementation for %q", c, id)
			}
			if s.RequiresReasoning() && cx != routing.ComplexityComplex {
				return nil, fmt.Errorf("strategy: %s: %q requires the reasoning preamble and is only allowed for %s",
					c, id, routing.ComplexityComplex)
			}
			t.cells[c] = s
		}
	}
	return t, nil
}

func parseCell(key string) (cell, error) {
	intent, complexity, ok := strings.Cut(strings.TrimSpace(key), "/")
	if !ok {
		return cell{}, fmt.Errorf("key must be <intent>/<COMPLEXITY>")
	}
	it := routing.IntentType(strings.ToLower(strings.TrimSpace(intent)))
	if !it.Valid() {
		return cell{}, fmt.Errorf("unknown intent %q (known: %v)", intent, routing.IntentTypes)
	}
	cx, err := routing.ParseComplexity(complexity)
	if err != nil {
		return cell{}, err
	}
	return cell{it, cx}, nil
}

// Lookup returns the strategy for an intent and complexity.
//
// Intents are reduced to their base type. Unknown complexities fall back to
// MODERATE; callers validate complexity before reaching the table.
func (t *Table) Lookup(intent routing.Intent, complexity routing.Complexity) Strategy {
	if !complexity.Valid() {
		complexity = routing.ComplexityModerate
	}
	return t.cells[cell{intent.Type(), complexity}]
}

// Entries lists every cell in intent then complexity order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, len(t.cells))
	for _, it := range routing.IntentTypes {
		for _, cx := range routing.Complexities {
			out = append(out, Entry{Intent: it, Complexity: cx, Strategy: t.cells[cell{it, cx}].ID()})
		}
	}
	return out
}
