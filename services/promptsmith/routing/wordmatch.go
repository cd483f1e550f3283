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
	"unicode"
	"unicode/utf8"
)

// =============================================================================
// Whole-Word Matching
// =============================================================================

// RE2's \b only knows ASCII word characters, so "class" would match inside
// "classж" or "classø". Patterns built by wholeWordPattern carry a Unicode
// trailing guard; the leading guard is checked against the rune before each
// match, since RE2 has no lookbehind.

// wordGuard matches the end of text or a rune that is not a letter, digit
// or '_'.
const wordGuard = `(?:$|[^\p{L}\p{N}_])`

// wholeWordPattern wraps an alternation so group 1 is the matched word.
// Alternatives are tried in order, so a longer phrase listed first falls
// back to a shorter one when the longer is glued to a following word.
func wholeWordPattern(alternation string) *regexp.Regexp {
	return regexp.MustCompile(`(` + alternation + `)` + wordGuard)
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// nextWholeWord returns the byte span of the first match of re at or after
// pos whose preceding rune is not a word rune.
func nextWholeWord(re *regexp.Regexp, text string, pos int) (int, int, bool) {
	for pos < len(text) {
		loc := re.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			return 0, 0, false
		}
		start, end := pos+loc[2], pos+loc[3]
		if start == 0 {
			return start, end, true
		}
		if r, _ := utf8.DecodeLastRuneInString(text[:start]); !isWordRune(r) {
			return start, end, true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		pos = start + max(size, 1)
	}
	return 0, 0, false
}

// findWholeWords returns every non-overlapping whole-word match of re in
// text, left to right.
func findWholeWords(re *regexp.Regexp, text string) []string {
	var out []string
	for pos := 0; ; {
		start, end, ok := nextWholeWord(re, text, pos)
		if !ok || end == start {
			return out
		}
		out = append(out, text[start:end])
		pos = end
	}
}

// matchesWholeWord reports whether re has at least one whole-word match.
func matchesWholeWord(re *regexp.Regexp, text string) bool {
	start, end, ok := nextWholeWord(re, text, 0)
	return ok && end > start
}
