// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package refine

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/AleutianAI/promptsmith/services/promptsmith/knn"
	"github.com/AleutianAI/promptsmith/services/promptsmith/textutil"
)

// metaPromptData feeds metaPromptTemplate.
type metaPromptData struct {
	Iteration     int
	MaxIterations int
	Idea          string
	Context       string
	Current       string
	Feedback      string
	Examples      []knn.ExampleRecord
}

const metaPromptTemplate = `You are an expert prompt engineer. Rewrite the prompt below so a language model can carry out the request on the first try.
This is attempt {{.Iteration}} of {{.MaxIterations}}.

## Original request
{{.Idea}}
{{- if .Context}}

## Request context
{{.Context}}
{{- end}}

## Current best prompt
{{fence .Current ""}}
{{- if .Feedback}}

## Feedback on the previous attempt
{{.Feedback}}
{{- end}}
{{- if .Examples}}

## Reference improvements
{{- range $i, $ex := .Examples}}

### Example {{inc $i}}
Request: {{$ex.InputIdea}}
Improved prompt:
{{fence $ex.ImprovedPrompt ""}}
{{- end}}
{{- end}}

## Instructions
- Keep the role and task sections.
- Address every point of feedback.
- Return only the improved prompt, with no commentary before or after it.
`

var metaPrompt = template.Must(template.New("meta").Funcs(template.FuncMap{
	"fence": textutil.Fence,
	"inc":   func(i int) int { return i + 1 },
}).Parse(metaPromptTemplate))

func renderMetaPrompt(d metaPromptData) (string, error) {
	var buf bytes.Buffer
	if err := metaPrompt.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("refine: rendering meta-prompt: %w", err)
	}
	return buf.String(), nil
}
