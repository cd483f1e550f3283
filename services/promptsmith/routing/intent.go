// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routing

import (
	"regexp"
	"strings"

	"github.com/AleutianAI/promptsmith/services/promptsmith/textutil"
)

// =============================================================================
// Keyword Tables
// =============================================================================

// rawKeyword is an uncompiled keyword entry. Words are written lowercase
// and without accents; input is normalized the same way before matching.
type rawKeyword struct {
	word   string
	weight float64
	sub    string // sub-type this keyword points at, "" for none
}

// keyword is a compiled rawKeyword.
type keyword struct {
	pattern *regexp.Regexp
	weight  float64
	sub     string
}

// contextWeight scales keyword weights matched only in the context.
const contextWeight = 0.25

// intentRule groups the keywords for one base intent.
type intentRule struct {
	intent   IntentType
	keywords []keyword
}

var debugKeywords = []rawKeyword{
	// English
	{"fix", 1.0, ""},
	{"bug", 1.0, ""},
	{"debug", 1.0, ""},
	{"error", 0.9, ""},
	{"broken", 0.9, ""},
	{"failing", 0.9, ""},
	{"not working", 1.0, ""},
	{"diagnose", 0.9, ""},
	{"crash", 1.0, "runtime"},
	{"exception", 0.9, "runtime"},
	{"panic", 0.9, "runtime"},
	{"traceback", 1.0, "runtime"},
	{"stack trace", 1.0, "runtime"},
	{"segfault", 1.0, "runtime"},
	{"slow", 0.7, "performance"},
	{"memory leak", 1.0, "performance"},
	{"timeout", 0.7, "performance"},
	{"failing test", 1.0, "test"},
	{"flaky", 0.9, "test"},
	// Spanish
	{"arreglar", 1.0, ""},
	{"arregla", 1.0, ""},
	{"corregir", 1.0, ""},
	{"corrige", 1.0, ""},
	{"depurar", 1.0, ""},
	{"fallo", 0.9, ""},
	{"falla", 0.9, ""},
	{"no funciona", 1.0, ""},
	{"excepcion", 0.9, "runtime"},
	{"lento", 0.7, "performance"},
	// Portuguese / French
	{"consertar", 1.0, ""},
	{"erro", 0.9, ""},
	{"nao funciona", 1.0, ""},
	{"corriger", 1.0, ""},
	{"bogue", 1.0, ""},
	{"ne marche pas", 1.0, ""},
}

var refactorKeywords = []rawKeyword{
	// English
	{"refactor", 1.0, ""},
	{"restructure", 0.9, ""},
	{"reorganize", 0.9, ""},
	{"rename", 0.8, ""},
	{"extract", 0.7, ""},
	{"deduplicate", 0.9, ""},
	{"modernize", 0.8, ""},
	{"clean up", 0.9, "readability"},
	{"simplify", 0.8, "readability"},
	{"readability", 1.0, "readability"},
	{"readable", 0.9, "readability"},
	{"optimize", 0.8, "performance"},
	{"speed up", 0.8, "performance"},
	{"decouple", 0.9, "architecture"},
	{"modularize", 0.9, "architecture"},
	// Spanish
	{"refactorizar", 1.0, ""},
	{"refactoriza", 1.0, ""},
	{"reestructurar", 0.9, ""},
	{"reorganizar", 0.9, ""},
	{"limpiar", 0.8, "readability"},
	{"simplificar", 0.8, "readability"},
	{"legibilidad", 1.0, "readability"},
	{"optimizar", 0.8, "performance"},
	{"desacoplar", 0.9, "architecture"},
	// Portuguese / French
	{"refatorar", 1.0, ""},
	{"refactoriser", 1.0, ""},
	{"simplifier", 0.8, "readability"},
}

var explainKeywords = []rawKeyword{
	// English
	{"explain", 1.0, ""},
	{"describe", 0.8, ""},
	{"understand", 0.8, ""},
	{"clarify", 0.8, ""},
	{"walk me through", 1.0, "code"},
	{"how does", 0.9, "code"},
	{"what does", 0.9, "code"},
	{"why does", 0.9, "code"},
	{"what is", 0.9, "concept"},
	{"what are", 0.8, "concept"},
	{"teach me", 0.9, "concept"},
	{"difference between", 1.0, "comparison"},
	{"compare", 0.9, "comparison"},
	{"versus", 0.8, "comparison"},
	// Spanish
	{"explicar", 1.0, ""},
	{"explica", 1.0, ""},
	{"explicame", 1.0, ""},
	{"describir", 0.8, ""},
	{"entender", 0.8, ""},
	{"como funciona", 0.9, "code"},
	{"que es", 0.9, "concept"},
	{"por que", 0.7, "concept"},
	{"diferencia entre", 1.0, "comparison"},
	{"comparar", 0.9, "comparison"},
	// Portuguese / French
	{"o que e", 0.9, "concept"},
	{"expliquer", 1.0, ""},
	{"explique", 1.0, ""},
	{"qu'est-ce", 0.9, "concept"},
}

var generateKeywords = []rawKeyword{
	// English
	{"write", 0.8, ""},
	{"create", 0.8, ""},
	{"generate", 0.8, ""},
	{"build", 0.7, ""},
	{"implement", 0.9, "code"},
	{"make", 0.5, ""},
	{"draft", 0.8, "content"},
	{"compose", 0.8, "content"},
	{"design", 0.7, ""},
	{"script", 0.6, "code"},
	{"function", 0.5, "code"},
	{"unit test", 1.0, "test"},
	{"test suite", 1.0, "test"},
	{"documentation", 0.9, "docs"},
	{"readme", 1.0, "docs"},
	{"docstring", 1.0, "docs"},
	{"email", 0.8, "content"},
	{"blog post", 0.9, "content"},
	{"article", 0.8, "content"},
	// Spanish
	{"escribir", 0.8, ""},
	{"escribe", 0.8, ""},
	{"crear", 0.8, ""},
	{"crea", 0.8, ""},
	{"generar", 0.8, ""},
	{"genera", 0.8, ""},
	{"implementar", 0.9, "code"},
	{"disenar", 0.7, ""},
	{"redactar", 0.8, "content"},
	{"pruebas unitarias", 1.0, "test"},
	{"documentacion", 0.9, "docs"},
	{"correo", 0.8, "content"},
	// Portuguese / French
	{"escrever", 0.8, ""},
	{"criar", 0.8, ""},
	{"ecrire", 0.8, ""},
	{"creer", 0.8, ""},
}

// compileKeywords turns raw keywords into regexes for matchesWholeWord.
// Multi-word phrases match exactly; single words allow common suffixes
// (crash -> crashes, crashing).
func compileKeywords(raws []rawKeyword) []keyword {
	out := make([]keyword, len(raws))
	for i, rk := range raws {
		var pattern string
		if strings.ContainsAny(rk.word, " '") {
			pattern = regexp.QuoteMeta(rk.word)
		} else {
			pattern = regexp.QuoteMeta(rk.word) + `(?:es|s|ed|ing)?`
		}
		out[i] = keyword{
			pattern: wholeWordPattern(pattern),
			weight:  rk.weight,
			sub:     rk.sub,
		}
	}
	return out
}

// =============================================================================
// IntentClassifier
// =============================================================================

// IntentClassifier maps text to an intent by weighted keyword matching.
//
// # Description
//
// Each base intent owns a weighted keyword table covering English, Spanish,
// Portuguese and French cues. Input is accent-folded and lowercased before
// matching. The intent with the highest total weight wins; ties resolve in
// IntentTypes order (debug, refactor, explain, generate). The sub-type is
// taken from the heaviest matched keyword of the winning intent that names
// one. Text with no match classifies as generate.
//
// # Thread Safety
//
// Immutable after construction. Safe for concurrent use.
type IntentClassifier struct {
	rules []intentRule
}

// NewIntentClassifier compiles the keyword tables.
func NewIntentClassifier() *IntentClassifier {
	return &IntentClassifier{
		rules: []intentRule{
			{intent: IntentDebug, keywords: compileKeywords(debugKeywords)},
			{intent: IntentRefactor, keywords: compileKeywords(refactorKeywords)},
			{intent: IntentExplain, keywords: compileKeywords(explainKeywords)},
			{intent: IntentGenerate, keywords: compileKeywords(generateKeywords)},
		},
	}
}

// Classify returns the intent for an idea and its context. Never fails:
// unrecognized or empty text returns IntentGenerate.
func (c *IntentClassifier) Classify(idea, context string) Intent {
	if strings.TrimSpace(idea) == "" && strings.TrimSpace(context) == "" {
		return Intent(IntentGenerate)
	}

	// The idea states the request; context matches count a quarter so a
	// pasted error log does not outvote "explain this".
	ideaText := textutil.Normalize(idea)
	contextText := textutil.Normalize(context)

	var (
		best      IntentType
		bestScore float64
		bestSub   string
	)
	for _, rule := range c.rules {
		score, sub := scoreRule(rule, ideaText, contextText)
		if score > bestScore {
			best, bestScore, bestSub = rule.intent, score, sub
		}
	}
	if bestScore == 0 {
		return Intent(IntentGenerate)
	}
	return NewIntent(best, bestSub)
}

// scoreRule returns the total weight and strongest sub-type for one rule.
func scoreRule(rule intentRule, ideaText, contextText string) (float64, string) {
	var (
		total     float64
		sub       string
		subWeight float64
	)
	for _, kw := range rule.keywords {
		var w float64
		if matchesWholeWord(kw.pattern, ideaText) {
			w = kw.weight
		} else if contextText != "" && matchesWholeWord(kw.pattern, contextText) {
			w = kw.weight * contextWeight
		}
		if w == 0 {
			continue
		}
		total += w
		if kw.sub != "" && w > subWeight {
			sub, subWeight = kw.sub, w
		}
	}
	return total, sub
}
