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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindWholeWords(t *testing.T) {
	re := wholeWordPattern(`race condition|class|race`)

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"plain", "a class here", []string{"class"}},
		{"start and end", "class", []string{"class"}},
		{"adjacent", "class class", []string{"class", "class"}},
		{"glued ascii", "subclass classy", nil},
		{"glued non-ascii", "классclass classж", nil},
		{"punctuation", "(class), class.", []string{"class", "class"}},
		{"longest alternative", "a race condition", []string{"race condition"}},
		{"falls back to shorter alternative", "race conditions", []string{"race"}},
		{"skips glued start", "xrace race", []string{"race"}},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, findWholeWords(re, tt.text))
			assert.Equal(t, tt.want != nil, matchesWholeWord(re, tt.text))
		})
	}
}

func TestClassify_KeywordGluedToNonASCIILetter(t *testing.T) {
	c := NewIntentClassifier()
	assert.Equal(t, Intent(IntentGenerate), c.Classify("bugзилла", ""))
	assert.Equal(t, IntentDebug, c.Classify("bug в коде", "").Type())
}
