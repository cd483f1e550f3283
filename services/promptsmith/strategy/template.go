// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package strategy

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/AleutianAI/promptsmith/services/promptsmith/knn"
	"github.com/AleutianAI/promptsmith/services/promptsmith/textutil"
)

// templateData contains the data for prompt template rendering.
type templateData struct {
	Role      string
	Reasoning bool
	Task      string
	Directive string
	Context   string

	Code     string
	Language string
	Error    string

	Approach  string
	Framework string

	Examples     []knn.ExampleRecord
	Guardrails   []string
	OutputFormat string
}

// promptTemplate renders the final prompt. Role, Task and Approach are
// unconditional so the output stays well-formed with no examples.
const promptTemplate = `## Role
{{.Role}}
{{- if .Reasoning}}

## Before you answer
Restate the request in your own words, list the assumptions you are making, and name what a complete answer must contain. If something essential is missing, say so before continuing.
{{- end}}

## Task
{{.Task}}
{{- if .Directive}}

{{.Directive}}
{{- end}}
{{- if .Context}}

## Context
{{.Context}}
{{- end}}
{{- if .Code}}

## Code
{{fence .Code .Language}}
{{- end}}
{{- if .Error}}

## Error
{{fence .Error ""}}
{{- end}}

## Approach
{{.Approach}}
{{- if .Framework}}
Structure the work using the {{.Framework}} framework.
{{- end}}
{{- if .Examples}}

## Examples
{{- range $i, $ex := .Examples}}

### Example {{inc $i}}
Request: {{$ex.InputIdea}}
{{- if $ex.InputContext}}
Context: {{$ex.InputContext}}
{{- end}}
Improved prompt:
{{fence $ex.ImprovedPrompt ""}}
{{- end}}
{{- end}}
{{- if .Guardrails}}

## Constraints
{{- range .Guardrails}}
- {{.}}
{{- end}}
{{- end}}
{{- if .OutputFormat}}

## Output format
{{.OutputFormat}}
{{- end}}
`

var promptTmpl = template.Must(template.New("prompt").Funcs(template.FuncMap{
	"fence": textutil.Fence,
	"inc":   func(i int) int { return i + 1 },
}).Parse(promptTemplate))

func render(d templateData) (string, error) {
	var buf bytes.Buffer
	if err := promptTmpl.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("strategy: rendering template: %w", err)
	}
	return buf.String(), nil
}
