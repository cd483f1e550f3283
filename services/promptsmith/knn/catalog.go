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
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/promptsmith/services/promptsmith/routing"
	"github.com/AleutianAI/promptsmith/services/promptsmith/textutil"
)

// tagger derives the routing tags stored on each record.
type tagger struct {
	analyzer   *routing.ComplexityAnalyzer
	classifier *routing.IntentClassifier
}

// loadedCatalog is the validated, tagged, not yet vectorized catalog.
type loadedCatalog struct {
	records []ExampleRecord
	stats   LoadStats
}

// loadCatalog reads, extracts and tags every record from src.
//
// # Description
//
// Each malformed record is logged at Warn with expected vs available keys
// and a truncated payload, then skipped. When skipped/total exceeds
// threshold the load fails with a CatalogCorrupt *CatalogError instead of
// proceeding on a mostly broken catalog. A ratio exactly at the threshold
// loads.
//
// # Outputs
//
//   - *loadedCatalog: Surviving records in source order with load stats.
//   - error: The source's *CatalogError, or CatalogCorrupt.
func loadCatalog(ctx context.Context, src Source, threshold float64, previewLen int, tags tagger, logger *slog.Logger) (*loadedCatalog, error) {
	raws, err := src.Records(ctx)
	if err != nil {
		return nil, err
	}

	out := &loadedCatalog{
		records: make([]ExampleRecord, 0, len(raws)),
		stats:   LoadStats{Total: len(raws)},
	}
	for i, raw := range raws {
		rec, rerr := extractRecord(i, raw)
		if rerr != nil {
			out.stats.Skipped++
			logger.Warn("knn: skipping malformed catalog record",
				slog.String("source", src.Name()),
				slog.Int("index", rerr.Index),
				slog.String("field", rerr.Field),
				slog.String("reason", rerr.Reason),
				slog.Any("expected_keys", rerr.Expected),
				slog.Any("available_keys", rerr.Available),
				slog.String("payload", payloadPreview(raw, previewLen)),
			)
			continue
		}

		rec.Intent = tags.classifier.Classify(rec.InputIdea, rec.InputContext)
		rec.Complexity, err = tags.analyzer.Analyze(rec.InputIdea, rec.InputContext)
		if err != nil {
			// extractRecord guarantees a non-empty idea.
			return nil, &ProgrammingError{Op: "tag record", Expected: "non-empty idea", Got: fmt.Sprintf("%q", rec.InputIdea), Err: err}
		}
		out.records = append(out.records, rec)
	}
	out.stats.Valid = len(out.records)
	skippedRecords.Add(float64(out.stats.Skipped))

	if out.stats.Total > 0 && float64(out.stats.Skipped)/float64(out.stats.Total) > threshold {
		return nil, &CatalogError{
			Kind:      CatalogCorrupt,
			Source:    src.Name(),
			Skipped:   out.stats.Skipped,
			Total:     out.stats.Total,
			Threshold: threshold,
		}
	}
	return out, nil
}

// payloadPreview renders a raw record for log display.
func payloadPreview(raw any, maxLen int) string {
	if line, ok := raw.(undecodedLine); ok {
		return textutil.Truncate(textutil.Redact(line.Text), maxLen)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return textutil.Truncate(textutil.Redact(fmt.Sprintf("%v", raw)), maxLen)
	}
	return textutil.Truncate(textutil.Redact(string(data)), maxLen)
}
