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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeuristicScorer(t *testing.T) {
	s := NewHeuristicScorer()

	empty := s.Score("   ", nil)
	assert.Zero(t, empty.Score)
	assert.NotEmpty(t, empty.Notes)

	rich := s.Score(richCandidate, nil)
	assert.InDelta(t, 1.0, rich.Score, 1e-9)
	assert.Empty(t, rich.Notes)

	bare := s.Score("make it faster", nil)
	assert.Less(t, bare.Score, 0.1)
	assert.Contains(t, bare.Notes, "add an explicit task section")
}

func TestHeuristicScorer_OutcomeBands(t *testing.T) {
	s := NewHeuristicScorer()

	weakSuccess := s.Score("do it", &Outcome{Success: true})
	strongFailure := s.Score(richCandidate, &Outcome{Success: false})
	assert.GreaterOrEqual(t, weakSuccess.Score, 0.5)
	assert.LessOrEqual(t, strongFailure.Score, 0.5)
	assert.Greater(t, weakSuccess.Score, strongFailure.Score-1e-9)
}

func TestHeuristicScorer_Deterministic(t *testing.T) {
	s := NewHeuristicScorer()
	first := s.Score(richCandidate, nil)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, s.Score(richCandidate, nil))
	}
}
