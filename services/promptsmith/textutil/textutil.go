// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package textutil holds the text normalization shared by the routing
// classifiers and the KNN vectorizer.
//
// Thread Safety:
//
//	All functions in this package are stateless and safe for concurrent use.
package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stopWords are dropped by Tokenize. They carry no retrieval signal and
// would otherwise dominate term frequencies in short ideas.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "of": true,
	"to": true, "in": true, "on": true, "for": true, "with": true, "is": true,
	"it": true, "this": true, "that": true, "my": true, "me": true, "be": true,
	"are": true, "as": true, "at": true, "by": true, "from": true, "please": true,
	"el": true, "la": true, "los": true, "las": true, "un": true, "una": true,
	"de": true, "del": true, "en": true, "y": true, "que": true, "por": true,
	"para": true, "con": true, "mi": true, "es": true, "le": true, "les": true,
	"et": true, "des": true, "du": true, "o": true, "os": true, "do": true,
}

// Normalize lowercases s and strips combining marks so that "Qué" and
// "que" compare equal.
//
// # Description
//
// Decomposes to NFD, removes nonspacing marks (accents), recomposes to NFC
// and lowercases. Multi-language keyword tables are written without accents
// and matched against normalized text.
//
// # Inputs
//
//   - s: Arbitrary text. Empty input returns "".
//
// # Outputs
//
//   - string: Normalized text. Never longer in runes than s.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	// transform.Chain keeps state; a fresh chain per call keeps Normalize
	// safe for concurrent use.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// Tokenize splits normalized text into terms.
//
// Letters and digits form terms; everything else is a delimiter. Terms
// shorter than two runes and stop words are dropped. Duplicates are kept
// and order is preserved so callers can compute term frequencies.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(Normalize(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 || stopWords[f] {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}

// Truncate shortens s to at most maxLen bytes for log display.
//
// Cuts at the last space past the midpoint when one exists and appends
// "...". Never splits a UTF-8 sequence.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	truncated := s[:cut]
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > maxLen/2 {
		truncated = truncated[:lastSpace]
	}
	return truncated + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// RuneLen returns the number of runes in s.
func RuneLen(s string) int {
	return len([]rune(s))
}

// Fence wraps s in a markdown code fence tagged with lang.
//
// The fence is one backtick longer than the longest backtick run inside s,
// so embedded fences cannot terminate it early.
func Fence(s, lang string) string {
	longest, run := 0, 0
	for i := 0; i < len(s); i++ {
		if s[i] == '`' {
			run++
			if run > longest {
				longest = run
			}
			continue
		}
		run = 0
	}
	fence := strings.Repeat("`", max(3, longest+1))
	return fence + lang + "\n" + strings.TrimRight(s, "\n") + "\n" + fence
}
