// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// printer writes command results as indented JSON or as text.
type printer struct {
	w      io.Writer
	asJSON bool
}

// newPrinter resolves "auto" to text on a terminal and JSON otherwise, so
// piping a command into jq needs no flag.
func newPrinter(w io.Writer, format string) *printer {
	switch format {
	case "json":
		return &printer{w: w, asJSON: true}
	case "text":
		return &printer{w: w}
	default:
		return &printer{w: w, asJSON: !isTerminal(w)}
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// emit writes v as JSON, or calls text when printing for a human.
func (p *printer) emit(v any, text func(w io.Writer)) error {
	if !p.asJSON {
		text(p.w)
		return nil
	}
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}

func rule(w io.Writer) {
	fmt.Fprintln(w, strings.Repeat("─", 72))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
