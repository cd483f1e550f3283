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
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/promptsmith/services/promptsmith/knn"
	"github.com/AleutianAI/promptsmith/services/promptsmith/prompt"
	"github.com/AleutianAI/promptsmith/services/promptsmith/routing"
	"github.com/AleutianAI/promptsmith/services/promptsmith/textutil"
)

// logPreviewLen bounds candidate text in log lines.
const logPreviewLen = 160

// loop is the state of one RunLoop call.
type loop struct {
	po       *prompt.PromptObject
	max      int
	feedback string
	res      *Result
}

// record appends a step and promotes the candidate when it is the best so
// far or succeeded.
func (l *loop) record(s Step) {
	l.res.Trajectory = append(l.res.Trajectory, s)
	l.res.Iterations = len(l.res.Trajectory)
	if s.Instruction != "" && (s.Success || s.Score > l.res.FinalScore) {
		l.res.FinalInstruction = s.Instruction
		l.res.FinalScore = s.Score
	}
	l.feedback = s.Feedback
}

// RunLoop refines po for up to maxIterations attempts.
//
// # Description
//
// Each iteration:
//
//  1. Retrieves fresh examples for the prompt's intent and complexity. A
//     transient failure is tagged and the iteration continues without
//     examples; any other failure is tagged and aborts the loop.
//  2. Renders a meta-prompt from the current best candidate, the examples
//     and the previous feedback, and asks the LLM for a new candidate.
//  3. Executes the candidate when an executor is configured, then scores it.
//
// The loop stops on the first success. The best-scoring candidate is always
// tracked; the original template is the starting point.
//
// # Inputs
//
//   - ctx: Cancellation ends the loop early with StatusCancelled and no error.
//   - po: The prompt to refine. Must not be nil or have an empty template.
//   - maxIterations: Between 1 and MaxIterations.
//
// # Outputs
//
//   - *Result: Always non-nil once validation passes, including on abort.
//   - error: A *routing.ValidationError for bad input; the unmodified
//     retrieval error when a non-transient KNN failure aborts the loop; a
//     wrapped LLM or executor error for a non-transient provider failure.
//
// # Thread Safety
//
// Safe for concurrent use; each call owns its trajectory.
func (r *Refiner) RunLoop(ctx context.Context, po *prompt.PromptObject, maxIterations int) (res *Result, err error) {
	if po == nil {
		return nil, &routing.ValidationError{Field: "prompt_object", Reason: "must not be nil"}
	}
	if strings.TrimSpace(po.Template()) == "" {
		return nil, &routing.ValidationError{Field: "template", Reason: "must not be empty"}
	}
	if maxIterations < 1 || maxIterations > MaxIterations {
		return nil, &routing.ValidationError{Field: "max_iterations",
			Reason: fmt.Sprintf("must be between 1 and %d, got %d", MaxIterations, maxIterations)}
	}

	ctx, span := refineTracer.Start(ctx, "refine.Refiner.RunLoop",
		trace.WithAttributes(
			attribute.String("prompt_id", po.ID()),
			attribute.String("strategy", string(po.Meta().Strategy)),
			attribute.Int("max_iterations", maxIterations),
		),
	)
	defer func() {
		if res != nil {
			loopsTotal.WithLabelValues(string(res.Status)).Inc()
			span.SetAttributes(
				attribute.String("status", string(res.Status)),
				attribute.Int("iterations", res.Iterations),
				attribute.Float64("final_score", res.FinalScore),
				attribute.Int("knn_failures", len(res.KNNFailures)),
			)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	// With an executor, the unexecuted template ranks like a failed run so
	// any executed candidate can replace it on merit.
	var baseline *Outcome
	if r.executor != nil {
		baseline = &Outcome{}
	}
	initial := r.scorer.Score(po.Template(), baseline)
	l := &loop{
		po:       po,
		max:      maxIterations,
		feedback: strings.Join(initial.Notes, "; "),
		res: &Result{
			FinalInstruction: po.Template(),
			FinalScore:       initial.Score,
			Status:           StatusExhausted,
			Trajectory:       make([]Step, 0, maxIterations),
		},
	}

	for i := 1; i <= maxIterations; i++ {
		if ctx.Err() != nil {
			l.res.Status = StatusCancelled
			break
		}
		done, err := r.iterate(ctx, l, i)
		if err != nil {
			if ctx.Err() != nil {
				l.res.Status = StatusCancelled
				break
			}
			l.res.Status = StatusAborted
			r.logger.Error("refine: loop aborted",
				slog.String("prompt_id", po.ID()),
				slog.Int("iteration", i),
				slog.String("error", textutil.Redact(err.Error())),
			)
			return l.res, err
		}
		if done {
			l.res.Success = true
			l.res.Status = StatusSuccess
			break
		}
	}

	r.logger.Info("refine: loop finished",
		slog.String("prompt_id", po.ID()),
		slog.String("status", string(l.res.Status)),
		slog.Int("iterations", l.res.Iterations),
		slog.Float64("final_score", l.res.FinalScore),
		slog.Int("knn_failures", len(l.res.KNNFailures)),
	)
	return l.res, nil
}

// iterate runs one attempt. It reports whether the attempt succeeded.
func (r *Refiner) iterate(ctx context.Context, l *loop, i int) (bool, error) {
	examples, degraded, err := r.examples(ctx, l, i)
	if err != nil {
		return false, err
	}

	meta, err := renderMetaPrompt(metaPromptData{
		Iteration:     i,
		MaxIterations: l.max,
		Idea:          l.po.Idea(),
		Context:       l.po.Context(),
		Current:       l.res.FinalInstruction,
		Feedback:      l.feedback,
		Examples:      examples,
	})
	if err != nil {
		return false, err
	}

	candidate, err := r.llm.Generate(ctx, meta)
	if err != nil {
		return false, r.stepFailure(ctx, l, i, "generate", err, degraded)
	}
	candidate = strings.TrimSpace(candidate)

	var outcome *Outcome
	if candidate != "" && r.executor != nil {
		out, err := r.executor.Execute(ctx, candidate)
		if err != nil {
			return false, r.stepFailure(ctx, l, i, "execute", err, degraded)
		}
		outcome = &out
	}

	ev := r.scorer.Score(candidate, outcome)
	step := Step{
		Iteration:   i,
		Instruction: candidate,
		Score:       ev.Score,
		Feedback:    strings.Join(ev.Notes, "; "),
		Degraded:    degraded,
	}
	switch {
	case candidate == "":
	case outcome != nil:
		step.Success = outcome.Success
		if outcome.Feedback != "" {
			step.Feedback = outcome.Feedback
		}
	default:
		step.Success = ev.Score >= r.cfg.SuccessThreshold
	}
	l.record(step)

	outcomeLabel := "retry"
	if step.Success {
		outcomeLabel = "success"
	}
	iterationsTotal.WithLabelValues(outcomeLabel).Inc()
	r.logger.Debug("refine: iteration complete",
		slog.String("prompt_id", l.po.ID()),
		slog.Int("iteration", i),
		slog.Bool("success", step.Success),
		slog.Float64("score", step.Score),
		slog.Bool("degraded", degraded),
		slog.String("candidate", textutil.Truncate(textutil.Redact(candidate), logPreviewLen)),
	)
	return step.Success, nil
}

// stepFailure handles an LLM or executor error. Transient errors become a
// failed step and the loop continues; anything else aborts.
func (r *Refiner) stepFailure(ctx context.Context, l *loop, i int, op string, err error, degraded bool) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if !r.isTransient(err) {
		return fmt.Errorf("refine: iteration %d: %s: %w", i, op, err)
	}
	iterationsTotal.WithLabelValues("transient_error").Inc()
	r.logger.Warn("refine: transient failure; continuing with next iteration",
		slog.String("prompt_id", l.po.ID()),
		slog.Int("iteration", i),
		slog.String("op", op),
		slog.String("error", textutil.Redact(err.Error())),
	)
	l.record(Step{
		Iteration: i,
		Feedback:  stepFailureFeedback(op, err),
		Degraded:  degraded,
	})
	return nil
}

// examples retrieves fresh examples for iteration i.
//
// Returns degraded=true after a transient failure. A non-transient failure
// is returned unmodified.
func (r *Refiner) examples(ctx context.Context, l *loop, i int) ([]knn.ExampleRecord, bool, error) {
	if r.retriever == nil || r.cfg.ExamplesPerIteration <= 0 || !l.po.Meta().KNNEnabled {
		return nil, false, nil
	}
	text := l.po.Idea()
	if l.feedback != "" {
		text += "\n" + l.feedback
	}
	records, err := r.retriever.FindExamples(ctx, knn.Query{
		Intent:     l.po.Intent(),
		Complexity: l.po.Complexity(),
		K:          r.cfg.ExamplesPerIteration,
		Text:       text,
	})
	if err == nil {
		return records, false, nil
	}
	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}

	failure := KNNFailure{Iteration: i, Err: err, Message: textutil.Redact(err.Error())}
	attrs := []any{
		slog.String("prompt_id", l.po.ID()),
		slog.Int("iteration", i),
		slog.String("intent", string(l.po.Intent())),
		slog.String("complexity", string(l.po.Complexity())),
		slog.String("error", failure.Message),
	}
	if knn.IsTransient(err) {
		failure.IsTransient = true
		l.res.KNNFailures = append(l.res.KNNFailures, failure)
		knnFailuresTotal.WithLabelValues("transient").Inc()
		r.logger.Warn("refine: example retrieval failed; continuing without examples", attrs...)
		return nil, true, nil
	}
	failure.IsBug = true
	l.res.KNNFailures = append(l.res.KNNFailures, failure)
	knnFailuresTotal.WithLabelValues("bug").Inc()
	r.logger.Error("refine: example retrieval failed with a non-transient error", attrs...)
	return nil, false, err
}
