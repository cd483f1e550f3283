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
	"strings"
	"syscall"
)

// =============================================================================
// Sentinels
// =============================================================================

var (
	// ErrVectorizerNotInitialized is returned by FindExamples before a
	// successful Init. The provider never substitutes arbitrary records.
	ErrVectorizerNotInitialized = errors.New("knn: vectorizer not initialized")

	// ErrCatalogNotFound matches a CatalogError of kind CatalogNotFound.
	ErrCatalogNotFound = errors.New("knn: catalog not found")

	// ErrCatalogParse matches a CatalogError of kind CatalogParseError.
	ErrCatalogParse = errors.New("knn: catalog parse error")

	// ErrCorruptionThresholdExceeded matches a CatalogError of kind
	// CatalogCorrupt.
	ErrCorruptionThresholdExceeded = errors.New("knn: catalog corruption threshold exceeded")
)

// =============================================================================
// CatalogError
// =============================================================================

// CatalogErrorKind identifies why a catalog could not be loaded.
type CatalogErrorKind int

const (
	CatalogNotFound CatalogErrorKind = iota + 1
	CatalogParseError
	CatalogCorrupt
)

func (k CatalogErrorKind) String() string {
	switch k {
	case CatalogNotFound:
		return "not_found"
	case CatalogParseError:
		return "parse_error"
	case CatalogCorrupt:
		return "corruption_threshold_exceeded"
	default:
		return "unknown"
	}
}

// CatalogError is a fatal initialization error. The provider cannot serve
// queries until the catalog is corrected and reloaded.
type CatalogError struct {
	Kind   CatalogErrorKind
	Source string

	// Skipped and Total are set for CatalogCorrupt.
	Skipped   int
	Total     int
	Threshold float64

	Err error
}

func (e *CatalogError) Error() string {
	switch e.Kind {
	case CatalogCorrupt:
		return fmt.Sprintf("knn: catalog %s: %d of %d records malformed (%.1f%% > %.1f%% threshold)",
			e.Source, e.Skipped, e.Total,
			100*float64(e.Skipped)/float64(e.Total), 100*e.Threshold)
	default:
		if e.Err != nil {
			return fmt.Sprintf("knn: catalog %s: %s: %v", e.Source, e.Kind, e.Err)
		}
		return fmt.Sprintf("knn: catalog %s: %s", e.Source, e.Kind)
	}
}

func (e *CatalogError) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind.
func (e *CatalogError) Is(target error) bool {
	switch target {
	case ErrCatalogNotFound:
		return e.Kind == CatalogNotFound
	case ErrCatalogParse:
		return e.Kind == CatalogParseError
	case ErrCorruptionThresholdExceeded:
		return e.Kind == CatalogCorrupt
	}
	return false
}

// =============================================================================
// RecordError
// =============================================================================

// RecordError describes one malformed raw catalog record.
//
// Record errors never escape Load on their own: the record is logged and
// skipped, and only the aggregate ratio can fail the load.
type RecordError struct {
	Index     int
	Field     string
	Reason    string
	Expected  []string
	Available []string
}

func (e *RecordError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "record %d", e.Index)
	if e.Field != "" {
		fmt.Fprintf(&b, " field %q", e.Field)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if len(e.Expected) > 0 {
		fmt.Fprintf(&b, " (expected keys %v, available %v)", e.Expected, e.Available)
	}
	return b.String()
}

// =============================================================================
// Retrieval Errors
// =============================================================================

// TransientError wraps a connection or timeout failure from an external
// vectorizing dependency. Callers may degrade to zero examples.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("knn: transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ProgrammingError reports schema drift, a type mismatch or a dimension
// mismatch. It signals a defect and must never be absorbed.
type ProgrammingError struct {
	Op       string
	Expected string
	Got      string
	Err      error
}

func (e *ProgrammingError) Error() string {
	msg := fmt.Sprintf("knn: programming error in %s", e.Op)
	if e.Expected != "" || e.Got != "" {
		msg += fmt.Sprintf(": expected %s, got %s", e.Expected, e.Got)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProgrammingError) Unwrap() error { return e.Err }

// =============================================================================
// Classification
// =============================================================================

// IsTransient reports whether err is safe to degrade around.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	return IsConnectionError(err)
}

// IsProgramming reports whether err signals a defect.
func IsProgramming(err error) bool {
	var pe *ProgrammingError
	return errors.As(err, &pe)
}

// IsConnectionError reports whether err is a connection or timeout failure.
//
// Deadline expiry counts; caller cancellation does not.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// classifyOutcome maps a query error to a label-safe metrics value.
func classifyOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrVectorizerNotInitialized):
		return "not_initialized"
	case IsTransient(err):
		return "transient"
	case IsProgramming(err):
		return "programming"
	default:
		return "error"
	}
}
