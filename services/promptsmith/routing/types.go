// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package routing classifies a prompt idea along two independent axes:
// complexity (SIMPLE, MODERATE, COMPLEX) and intent (debug, refactor,
// explain, generate). Both classifiers are pure and deterministic.
package routing

import (
	"fmt"
	"strings"
)

// =============================================================================
// Complexity
// =============================================================================

// Complexity is the routing level of a request.
type Complexity string

const (
	ComplexitySimple   Complexity = "SIMPLE"
	ComplexityModerate Complexity = "MODERATE"
	ComplexityComplex  Complexity = "COMPLEX"
)

// Complexities lists every level in ascending order.
var Complexities = []Complexity{ComplexitySimple, ComplexityModerate, ComplexityComplex}

// Valid reports whether c is one of the defined levels.
func (c Complexity) Valid() bool {
	switch c {
	case ComplexitySimple, ComplexityModerate, ComplexityComplex:
		return true
	}
	return false
}

// ParseComplexity parses a level case-insensitively.
func ParseComplexity(s string) (Complexity, error) {
	c := Complexity(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", &ValidationError{Field: "complexity", Reason: fmt.Sprintf("unknown level %q", s)}
	}
	return c, nil
}

// =============================================================================
// Intent
// =============================================================================

// IntentType is the base intent without a sub-type.
type IntentType string

const (
	IntentDebug    IntentType = "debug"
	IntentRefactor IntentType = "refactor"
	IntentExplain  IntentType = "explain"
	IntentGenerate IntentType = "generate"
)

// IntentTypes lists every base intent in tie-break priority order.
var IntentTypes = []IntentType{IntentDebug, IntentRefactor, IntentExplain, IntentGenerate}

// Valid reports whether t is a known base intent.
func (t IntentType) Valid() bool {
	switch t {
	case IntentDebug, IntentRefactor, IntentExplain, IntentGenerate:
		return true
	}
	return false
}

// intentSeparator joins a base intent and its sub-type ("debug:performance").
const intentSeparator = ":"

// Intent is a base intent with an optional sub-type suffix.
type Intent string

// NewIntent joins a base type and an optional sub-type.
func NewIntent(t IntentType, sub string) Intent {
	if sub == "" {
		return Intent(t)
	}
	return Intent(string(t) + intentSeparator + sub)
}

// Type returns the base intent. Unknown values map to IntentGenerate.
func (i Intent) Type() IntentType {
	return GetIntentType(string(i))
}

// SubType returns the sub-type suffix, or "" when absent.
func (i Intent) SubType() string {
	_, sub, found := strings.Cut(string(i), intentSeparator)
	if !found {
		return ""
	}
	return sub
}

// GetIntentType maps an intent string (with or without a sub-type) to its
// base type. Unknown strings default to IntentGenerate instead of failing.
func GetIntentType(s string) IntentType {
	base, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(s)), intentSeparator)
	t := IntentType(base)
	if !t.Valid() {
		return IntentGenerate
	}
	return t
}
