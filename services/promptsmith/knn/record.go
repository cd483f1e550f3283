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
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	topLevelKeys = []string{"inputs", "outputs"}
	inputKeys    = []string{"idea", "context"}
	outputKeys   = []string{"improved", "role", "directive", "framework", "guardrails", "expected_output"}
)

var (
	recordValidatorOnce sync.Once
	recordValidator     *validator.Validate
)

func getRecordValidator() *validator.Validate {
	recordValidatorOnce.Do(func() {
		recordValidator = validator.New(validator.WithRequiredStructEnabled())
	})
	return recordValidator
}

// extractRecord converts one raw record into a validated ExampleRecord.
//
// This is the only place catalog decoding absorbs per-record failures: every
// problem becomes a *RecordError for the loader to log and count.
func extractRecord(index int, raw any) (ExampleRecord, *RecordError) {
	if line, ok := raw.(undecodedLine); ok {
		return ExampleRecord{}, &RecordError{
			Index:  index,
			Reason: fmt.Sprintf("line %d is not valid JSON: %v", line.Line, line.Err),
		}
	}

	top, ok := raw.(map[string]any)
	if !ok {
		return ExampleRecord{}, &RecordError{
			Index:    index,
			Reason:   fmt.Sprintf("wrong type: expected object, got %s", typeName(raw)),
			Expected: topLevelKeys,
		}
	}

	inputs, rerr := objectField(index, top, "inputs", topLevelKeys)
	if rerr != nil {
		return ExampleRecord{}, rerr
	}
	outputs, rerr := objectField(index, top, "outputs", topLevelKeys)
	if rerr != nil {
		return ExampleRecord{}, rerr
	}

	var rec ExampleRecord
	fields := []struct {
		obj      map[string]any
		name     string
		expected []string
		required bool
		dst      *string
	}{
		{inputs, "idea", inputKeys, true, &rec.InputIdea},
		{inputs, "context", inputKeys, false, &rec.InputContext},
		{outputs, "improved", outputKeys, true, &rec.ImprovedPrompt},
		{outputs, "role", outputKeys, false, &rec.Role},
		{outputs, "directive", outputKeys, false, &rec.Directive},
		{outputs, "framework", outputKeys, false, &rec.Framework},
		{outputs, "expected_output", outputKeys, false, &rec.ExpectedOutput},
	}
	for _, f := range fields {
		v, rerr := stringField(index, f.obj, f.name, f.expected, f.required)
		if rerr != nil {
			return ExampleRecord{}, rerr
		}
		*f.dst = v
	}

	guardrails, rerr := stringListField(index, outputs, "guardrails")
	if rerr != nil {
		return ExampleRecord{}, rerr
	}
	rec.Guardrails = guardrails

	if err := getRecordValidator().Struct(rec); err != nil {
		return ExampleRecord{}, &RecordError{Index: index, Reason: validationReason(err)}
	}
	return rec, nil
}

func objectField(index int, obj map[string]any, name string, expected []string) (map[string]any, *RecordError) {
	v, ok := obj[name]
	if !ok {
		return nil, &RecordError{Index: index, Field: name, Reason: "missing key",
			Expected: expected, Available: sortedKeys(obj)}
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, &RecordError{Index: index, Field: name,
			Reason: fmt.Sprintf("wrong type: expected object, got %s", typeName(v))}
	}
	return m, nil
}

func stringField(index int, obj map[string]any, name string, expected []string, required bool) (string, *RecordError) {
	v, ok := obj[name]
	if !ok || v == nil {
		if required {
			return "", &RecordError{Index: index, Field: name, Reason: "missing key",
				Expected: expected, Available: sortedKeys(obj)}
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", &RecordError{Index: index, Field: name,
			Reason: fmt.Sprintf("wrong type: expected string, got %s", typeName(v))}
	}
	s = strings.TrimSpace(s)
	if required && s == "" {
		return "", &RecordError{Index: index, Field: name, Reason: "must not be empty"}
	}
	return s, nil
}

// stringListField accepts an array of strings or a single string.
func stringListField(index int, obj map[string]any, name string) ([]string, *RecordError) {
	v, ok := obj[name]
	if !ok || v == nil {
		return nil, nil
	}
	switch list := v.(type) {
	case string:
		if s := strings.TrimSpace(list); s != "" {
			return []string{s}, nil
		}
		return nil, nil
	case []string:
		out := make([]string, len(list))
		for i, s := range list {
			out[i] = strings.TrimSpace(s)
		}
		return out, nil
	case []any:
		out := make([]string, 0, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, &RecordError{Index: index, Field: fmt.Sprintf("%s[%d]", name, i),
					Reason: fmt.Sprintf("wrong type: expected string, got %s", typeName(item))}
			}
			out = append(out, strings.TrimSpace(s))
		}
		return out, nil
	default:
		return nil, &RecordError{Index: index, Field: name,
			Reason: fmt.Sprintf("wrong type: expected array of strings, got %s", typeName(v))}
	}
}

func validationReason(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return "validation: " + strings.Join(parts, "; ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
