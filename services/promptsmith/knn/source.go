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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// maxCatalogSize bounds a single catalog document.
const maxCatalogSize = 64 << 20

// =============================================================================
// Source Interface
// =============================================================================

// Source yields the raw records of a catalog.
//
// # Description
//
// Raw records are decoded but unvalidated values, normally
// map[string]any shaped as
//
//	{"inputs": {"idea": ..., "context": ...},
//	 "outputs": {"improved": ..., "role": ..., "directive": ...,
//	             "framework": ..., "guardrails": [...]}}
//
// Malformed records are returned as-is; the provider decides whether to
// skip them. A missing source is a *CatalogError of kind CatalogNotFound and
// a structurally invalid one is kind CatalogParseError.
//
// # Thread Safety
//
// Implementations must be safe to call from Init and Reload concurrently
// with nothing else.
type Source interface {
	// Name identifies the source in logs and errors.
	Name() string

	// Records returns every raw record in catalog order.
	Records(ctx context.Context) ([]any, error)
}

// Format is a catalog serialization.
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
)

// FormatForPath picks a format from the file extension. Unknown extensions
// are read as JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return FormatJSONL
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// =============================================================================
// FileSource
// =============================================================================

// FileSource reads a catalog file from disk on every call.
type FileSource struct {
	Path string

	// Format overrides extension-based detection when set.
	Format Format
}

// NewFileSource returns a FileSource with its format detected from path.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path, Format: FormatForPath(path)}
}

func (s *FileSource) Name() string { return s.Path }

func (s *FileSource) Records(ctx context.Context) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &CatalogError{Kind: CatalogNotFound, Source: s.Path, Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("knn: stat catalog %s: %w", s.Path, err)
	}
	if info.IsDir() {
		return nil, &CatalogError{Kind: CatalogParseError, Source: s.Path, Err: errors.New("path is a directory")}
	}
	if info.Size() > maxCatalogSize {
		return nil, &CatalogError{Kind: CatalogParseError, Source: s.Path,
			Err: fmt.Errorf("catalog exceeds maximum size (%d > %d)", info.Size(), maxCatalogSize)}
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("knn: read catalog %s: %w", s.Path, err)
	}

	format := s.Format
	if format == "" {
		format = FormatForPath(s.Path)
	}
	return decodeCatalog(s.Path, format, data)
}

// =============================================================================
// MemorySource
// =============================================================================

// MemorySource serves a fixed slice of raw records.
type MemorySource struct {
	Label string
	Raw   []any
}

// NewMemorySource wraps raw records. The slice is not copied.
func NewMemorySource(label string, raw []any) *MemorySource {
	return &MemorySource{Label: label, Raw: raw}
}

func (s *MemorySource) Name() string {
	if s.Label == "" {
		return "memory"
	}
	return s.Label
}

func (s *MemorySource) Records(ctx context.Context) ([]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Raw == nil {
		return nil, &CatalogError{Kind: CatalogNotFound, Source: s.Name()}
	}
	out := make([]any, len(s.Raw))
	copy(out, s.Raw)
	return out, nil
}

// =============================================================================
// Decoding
// =============================================================================

// undecodedLine is a JSONL line that did not parse. It surfaces as a
// malformed record rather than failing the whole catalog.
type undecodedLine struct {
	Line int
	Text string
	Err  error
}

// decodeCatalog decodes a catalog document into raw records.
//
// JSON and YAML documents must be an array of records or an object with an
// "examples" array. JSONL holds one record per non-blank line.
func decodeCatalog(source string, format Format, data []byte) ([]any, error) {
	if format == FormatJSONL {
		return decodeJSONL(source, data)
	}

	var doc any
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	default:
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return nil, &CatalogError{Kind: CatalogParseError, Source: source, Err: err}
	}

	switch v := doc.(type) {
	case []any:
		return v, nil
	case map[string]any:
		if examples, ok := v["examples"].([]any); ok {
			return examples, nil
		}
	}
	return nil, &CatalogError{Kind: CatalogParseError, Source: source,
		Err: fmt.Errorf("expected an array of records, got %s", typeName(doc))}
}

func decodeJSONL(source string, data []byte) ([]any, error) {
	var records []any
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxCatalogSize)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(text), &v); err != nil {
			records = append(records, undecodedLine{Line: line, Text: text, Err: err})
			continue
		}
		records = append(records, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, &CatalogError{Kind: CatalogParseError, Source: source, Err: err}
	}
	return records, nil
}

// typeName names a decoded value's type the way catalog authors think of it.
func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case float64, int, int64, json.Number:
		return "number"
	case []any, []string:
		return "array"
	case map[string]any:
		return "object"
	case undecodedLine:
		return "undecodable line"
	default:
		return fmt.Sprintf("%T", v)
	}
}
