// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package knn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsConnectionError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("embed: %w", context.DeadlineExceeded), true},
		{"cancelled", context.Canceled, false},
		{"refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"reset", syscall.ECONNRESET, true},
		{"net timeout", timeoutErr{}, true},
		{"op error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("no route")}, true},
		{"plain", errors.New("key error: idea"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsConnectionError(tt.err))
		})
	}
}

func TestIsTransientAndProgramming(t *testing.T) {
	transient := &TransientError{Op: "embed query", Err: errors.New("refused")}
	programming := &ProgrammingError{Op: "embed query", Expected: "768 dimensions", Got: "384 dimensions"}

	assert.True(t, IsTransient(transient))
	assert.True(t, IsTransient(fmt.Errorf("outer: %w", transient)))
	assert.False(t, IsProgramming(transient))

	assert.True(t, IsProgramming(programming))
	assert.False(t, IsTransient(programming))
	assert.Contains(t, programming.Error(), "expected 768 dimensions, got 384 dimensions")

	assert.False(t, IsTransient(ErrVectorizerNotInitialized))
	assert.False(t, IsTransient(nil))
}

func TestCatalogError_Is(t *testing.T) {
	nf := &CatalogError{Kind: CatalogNotFound, Source: "x.json"}
	assert.ErrorIs(t, nf, ErrCatalogNotFound)
	assert.NotErrorIs(t, nf, ErrCatalogParse)

	corrupt := &CatalogError{Kind: CatalogCorrupt, Source: "x.json", Skipped: 3, Total: 10, Threshold: 0.1}
	assert.ErrorIs(t, corrupt, ErrCorruptionThresholdExceeded)
	assert.Contains(t, corrupt.Error(), "3 of 10 records malformed")

	parse := &CatalogError{Kind: CatalogParseError, Source: "x.json", Err: errors.New("unexpected EOF")}
	assert.ErrorIs(t, parse, ErrCatalogParse)
	assert.Contains(t, parse.Error(), "parse_error")
}

func TestRecordError_Message(t *testing.T) {
	err := &RecordError{Index: 4, Field: "idea", Reason: "missing key",
		Expected: []string{"idea", "context"}, Available: []string{"prompt"}}
	assert.Equal(t, `record 4 field "idea": missing key (expected keys [idea context], available [prompt])`, err.Error())
}

func TestClassifyOutcome(t *testing.T) {
	assert.Equal(t, "ok", classifyOutcome(nil))
	assert.Equal(t, "not_initialized", classifyOutcome(ErrVectorizerNotInitialized))
	assert.Equal(t, "transient", classifyOutcome(&TransientError{Op: "x", Err: errors.New("y")}))
	assert.Equal(t, "programming", classifyOutcome(&ProgrammingError{Op: "x"}))
	assert.Equal(t, "error", classifyOutcome(errors.New("other")))
}
