// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package textutil

import "regexp"

type redaction struct {
	pattern     *regexp.Regexp
	replacement string
}

// redactions run in order. Provider-specific key shapes come before the
// generic "sk-" shape so an Anthropic key is labeled as such.
var redactions = []redaction{
	{regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`), "[REDACTED:anthropic_key]"},
	{regexp.MustCompile(`sk-[A-Za-z0-9_-]{20,}`), "[REDACTED:api_key]"},
	{regexp.MustCompile(`AIza[A-Za-z0-9_-]{30,}`), "[REDACTED:google_key]"},
	{regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{30,}`), "[REDACTED:github_token]"},
	{regexp.MustCompile(`AKIA[0-9A-Z]{16}`), "[REDACTED:aws_key]"},
	{regexp.MustCompile(`Bearer\s+[A-Za-z0-9._~+/-]{10,}=*`), "Bearer [REDACTED]"},
	{regexp.MustCompile(`(?i)(password|passwd|secret|token|api_key)(["']?\s*[:=]\s*["']?)[^\s"'&,}]{3,}`), "${1}${2}[REDACTED]"},
	{regexp.MustCompile(`([a-z][a-z0-9+.-]*://)[^\s/:@]+:[^\s/@]+@`), "${1}[REDACTED]@"},
}

// Redact masks credential-shaped substrings before text reaches a log line.
//
// # Description
//
// Catalog records and LLM candidates are user-supplied and routinely carry
// pasted configuration. Matches are replaced with a labeled placeholder so a
// reader can tell what was removed. Detection is pattern-based; secrets in an
// unknown format pass through.
//
// # Thread Safety
//
// Safe for concurrent use.
func Redact(s string) string {
	if s == "" {
		return s
	}
	for _, r := range redactions {
		s = r.pattern.ReplaceAllString(s, r.replacement)
	}
	return s
}
