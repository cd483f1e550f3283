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
	"sort"
	"strings"

	"github.com/AleutianAI/promptsmith/services/promptsmith/config"
	"github.com/AleutianAI/promptsmith/services/promptsmith/textutil"
)

// =============================================================================
// Structural Signals
// =============================================================================

var (
	headerPattern   = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s+\S`)
	bulletPattern   = regexp.MustCompile(`(?m)^\s*[-*•]\s+\S`)
	numberedPattern = regexp.MustCompile(`(?m)^\s*\d{1,3}[.)]\s+\S`)
)

// =============================================================================
// ComplexityAnalyzer
// =============================================================================

// Analysis is the scored breakdown behind a complexity level.
type Analysis struct {
	Level          Complexity
	Score          int
	Length         int
	TechnicalTerms []string // distinct matched terms, sorted
	TermMatches    int      // total matches, duplicates included
	HasCodeFence   bool
	HasStructure   bool
	OverCeiling    bool
}

// ComplexityAnalyzer scores a request from text signals.
//
// # Description
//
// Combines four signals into a score:
//   - combined idea+context length (runes)
//   - whole-word technical term matches
//   - code fences
//   - structured punctuation (markdown headers, bullets, numbered lists)
//
// Requests longer than the configured absolute ceiling are COMPLEX
// regardless of the other signals. Short requests without code or enough
// technical terms are SIMPLE.
//
// # Thread Safety
//
// Immutable after construction. Safe for concurrent use.
type ComplexityAnalyzer struct {
	cfg   config.ComplexityConfig
	terms *regexp.Regexp
}

// NewComplexityAnalyzer compiles the technical-term matcher once.
//
// # Inputs
//
//   - cfg: Thresholds. Terms are matched on accent-folded, lowercased text
//     and must stand alone as words, so "class" never matches inside
//     "classroom" or "classé".
//
// # Outputs
//
//   - *ComplexityAnalyzer: Ready to use. Never nil.
func NewComplexityAnalyzer(cfg config.ComplexityConfig) *ComplexityAnalyzer {
	return &ComplexityAnalyzer{
		cfg:   cfg,
		terms: compileTermPattern(cfg.TechnicalTerms),
	}
}

// compileTermPattern builds one alternation over all terms. Longer terms come
// first so "race condition" wins over any shorter prefix.
func compileTermPattern(terms []string) *regexp.Regexp {
	quoted := make([]string, 0, len(terms))
	seen := make(map[string]bool, len(terms))
	for _, term := range terms {
		term = textutil.Normalize(strings.TrimSpace(term))
		if term == "" || seen[term] {
			continue
		}
		seen[term] = true
		quoted = append(quoted, regexp.QuoteMeta(term))
	}
	if len(quoted) == 0 {
		return nil
	}
	sort.SliceStable(quoted, func(i, j int) bool {
		if len(quoted[i]) != len(quoted[j]) {
			return len(quoted[i]) > len(quoted[j])
		}
		return quoted[i] < quoted[j]
	})
	return wholeWordPattern(strings.Join(quoted, "|"))
}

// Analyze returns the complexity level for an idea and its context.
//
// # Inputs
//
//   - idea: Required. Empty or whitespace-only input is a *ValidationError.
//   - context: Optional supporting text.
//
// # Outputs
//
//   - Complexity: One of the three levels. Same input, same output.
//   - error: *ValidationError if idea is empty.
func (a *ComplexityAnalyzer) Analyze(idea, context string) (Complexity, error) {
	analysis, err := a.Explain(idea, context)
	if err != nil {
		return "", err
	}
	return analysis.Level, nil
}

// AnalyzeValues is Analyze for untyped input such as decoded JSON.
//
// Returns a *TypeError when either argument is not a string, nil included.
func (a *ComplexityAnalyzer) AnalyzeValues(idea, context any) (Complexity, error) {
	ideaStr, ok := idea.(string)
	if !ok {
		return "", &TypeError{Field: "idea", Expected: "string", Got: typeName(idea)}
	}
	contextStr, ok := context.(string)
	if !ok {
		return "", &TypeError{Field: "context", Expected: "string", Got: typeName(context)}
	}
	return a.Analyze(ideaStr, contextStr)
}

// Explain returns the full scored breakdown behind Analyze.
func (a *ComplexityAnalyzer) Explain(idea, context string) (Analysis, error) {
	if strings.TrimSpace(idea) == "" {
		return Analysis{}, &ValidationError{Field: "idea", Reason: "must not be empty"}
	}

	combined := strings.TrimSpace(idea)
	if ctx := strings.TrimSpace(context); ctx != "" {
		combined += "\n" + ctx
	}

	analysis := Analysis{Length: textutil.RuneLen(combined)}
	if analysis.Length > a.cfg.AbsoluteCeiling {
		analysis.OverCeiling = true
		analysis.Level = ComplexityComplex
		analysis.Score = a.cfg.ComplexScore
		return analysis, nil
	}

	analysis.TechnicalTerms, analysis.TermMatches = a.matchTerms(textutil.Normalize(combined))
	analysis.HasCodeFence = strings.Contains(combined, "```") || strings.Contains(combined, "~~~")
	analysis.HasStructure = headerPattern.MatchString(combined) ||
		bulletPattern.MatchString(combined) ||
		numberedPattern.MatchString(combined)

	score := 0
	switch {
	case analysis.Length >= a.cfg.LongMinLength:
		score += 2
	case analysis.Length >= a.cfg.ModerateMinLength:
		score++
	}
	switch {
	case analysis.TermMatches >= a.cfg.ComplexTermCount:
		score += 2
	case analysis.TermMatches >= a.cfg.ModerateTermCount:
		score++
	}
	if analysis.HasCodeFence {
		score += 2
	}
	if analysis.HasStructure {
		score++
	}
	analysis.Score = score

	short := analysis.Length <= a.cfg.SimpleMaxLength
	switch {
	case short && !analysis.HasCodeFence && analysis.TermMatches < a.cfg.ModerateTermCount:
		analysis.Level = ComplexitySimple
	case score >= a.cfg.ComplexScore:
		analysis.Level = ComplexityComplex
	case score >= a.cfg.ModerateScore:
		analysis.Level = ComplexityModerate
	default:
		analysis.Level = ComplexitySimple
	}
	return analysis, nil
}

// matchTerms returns the distinct matched terms (sorted) and the total
// number of matches. text must already be normalized.
func (a *ComplexityAnalyzer) matchTerms(text string) ([]string, int) {
	if a.terms == nil {
		return nil, 0
	}
	matches := findWholeWords(a.terms, text)
	if len(matches) == 0 {
		return nil, 0
	}
	distinct := make(map[string]bool, len(matches))
	for _, m := range matches {
		distinct[m] = true
	}
	terms := make([]string, 0, len(distinct))
	for term := range distinct {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms, len(matches)
}
