// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package refine

import (
	"regexp"
	"strings"

	"github.com/AleutianAI/promptsmith/services/promptsmith/textutil"
)

// Scorer rates a candidate in [0, 1].
//
// outcome is nil when no executor is configured.
type Scorer interface {
	Score(candidate string, outcome *Outcome) Evaluation
}

// Evaluation is a score plus the notes that explain it. Notes become the
// feedback for the next iteration when no executor is configured.
type Evaluation struct {
	Score float64
	Notes []string
}

type structureCheck struct {
	pattern *regexp.Regexp
	weight  float64
	note    string
}

// HeuristicScorer rates a candidate by the sections a well-formed
// instruction carries.
//
// # Description
//
// The structural score is the weighted share of checks that pass, plus a
// length component. With an outcome, successes score in [0.5, 1] and
// failures in [0, 0.5] so an executed success always outranks a failure.
//
// # Thread Safety
//
// Immutable; safe for concurrent use.
type HeuristicScorer struct {
	checks    []structureCheck
	minLength int
}

// NewHeuristicScorer creates the default scorer.
func NewHeuristicScorer() *HeuristicScorer {
	return &HeuristicScorer{
		checks: []structureCheck{
			{regexp.MustCompile(`(?im)^#{1,4}\s*role\b|^\s*you are\b|^role\s*:`), 0.25, "state the role the model should take"},
			{regexp.MustCompile(`(?im)^#{1,4}\s*(task|goal|objective)\b|^(task|goal)\s*:`), 0.25, "add an explicit task section"},
			{regexp.MustCompile(`(?im)^#{1,4}\s*(constraints|guardrails|rules|requirements)\b|^\s*[-*]\s+(do not|never|always|must)\b`), 0.2, "list the constraints the answer must respect"},
			{regexp.MustCompile(`(?im)^#{1,4}\s*(output|format|deliverable|response)|\b(respond|return|output) (with|as|in)\b`), 0.15, "describe the expected output format"},
		},
		minLength: 120,
	}
}

// Score implements Scorer.
func (s *HeuristicScorer) Score(candidate string, outcome *Outcome) Evaluation {
	var ev Evaluation
	text := strings.TrimSpace(candidate)
	if text == "" {
		ev.Notes = append(ev.Notes, "the candidate was empty")
		return ev
	}

	var structural float64
	for _, c := range s.checks {
		if c.pattern.MatchString(text) {
			structural += c.weight
			continue
		}
		ev.Notes = append(ev.Notes, c.note)
	}

	// The remaining 0.15 rewards enough detail to act on.
	n := textutil.RuneLen(text)
	if n >= s.minLength {
		structural += 0.15
	} else {
		structural += 0.15 * float64(n) / float64(s.minLength)
		ev.Notes = append(ev.Notes, "add enough detail for the model to act without guessing")
	}
	structural = min(structural, 1)

	switch {
	case outcome == nil:
		ev.Score = structural
	case outcome.Success:
		ev.Score = 0.5 + 0.5*structural
	default:
		ev.Score = 0.5 * structural
	}
	return ev
}
