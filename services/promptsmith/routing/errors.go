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
	"errors"
	"fmt"
)

// ErrInvalidInput matches every input validation failure raised by the core
// via errors.Is, whether the cause is a bad type or an empty field.
var ErrInvalidInput = errors.New("invalid input")

// ValidationError reports an empty or out-of-range input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is lets callers match any validation failure with ErrInvalidInput.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// TypeError reports an input that is not of the expected type.
type TypeError struct {
	Field    string
	Expected string
	Got      string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("invalid %s: expected %s, got %s", e.Field, e.Expected, e.Got)
}

// Is lets callers match any type failure with ErrInvalidInput.
func (e *TypeError) Is(target error) bool {
	return target == ErrInvalidInput
}

// typeName describes v for a TypeError.
func typeName(v any) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", v)
}
