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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/promptsmith/services/promptsmith/knn"
	"github.com/AleutianAI/promptsmith/services/promptsmith/prompt"
	"github.com/AleutianAI/promptsmith/services/promptsmith/refine"
	"github.com/AleutianAI/promptsmith/services/promptsmith/routing"
	"github.com/AleutianAI/promptsmith/services/promptsmith/strategy"
)

// =============================================================================
// analyze / classify
// =============================================================================

type analysisView struct {
	Complexity     routing.Complexity `json:"complexity"`
	Score          int                `json:"score"`
	Length         int                `json:"length"`
	TechnicalTerms []string           `json:"technical_terms"`
	TermMatches    int                `json:"term_matches"`
	HasCodeFence   bool               `json:"has_code_fence"`
	HasStructure   bool               `json:"has_structure"`
	OverCeiling    bool               `json:"over_ceiling"`
}

func (c *cli) analyzeCmd() *cobra.Command {
	var reqContext string
	cmd := &cobra.Command{
		Use:   "analyze <idea>",
		Short: "Score the complexity of a request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idea, err := c.idea(args)
			if err != nil {
				return err
			}
			a, err := c.loadApp(cmd.Context())
			if err != nil {
				return err
			}
			an, err := routing.NewComplexityAnalyzer(a.cfg.Complexity).Explain(idea, reqContext)
			if err != nil {
				return err
			}
			terms := an.TechnicalTerms
			if terms == nil {
				terms = []string{}
			}
			view := analysisView{
				Complexity:     an.Level,
				Score:          an.Score,
				Length:         an.Length,
				TechnicalTerms: terms,
				TermMatches:    an.TermMatches,
				HasCodeFence:   an.HasCodeFence,
				HasStructure:   an.HasStructure,
				OverCeiling:    an.OverCeiling,
			}
			return c.printer().emit(view, func(w io.Writer) {
				fmt.Fprintf(w, "Complexity:      %s (score %d)\n", view.Complexity, view.Score)
				fmt.Fprintf(w, "Length:          %d\n", view.Length)
				fmt.Fprintf(w, "Technical terms: %d match(es) %v\n", view.TermMatches, view.TechnicalTerms)
				fmt.Fprintf(w, "Code fence:      %s\n", yesNo(view.HasCodeFence))
				fmt.Fprintf(w, "Structured:      %s\n", yesNo(view.HasStructure))
				if view.OverCeiling {
					fmt.Fprintln(w, "Over the absolute length ceiling.")
				}
			})
		},
	}
	cmd.Flags().StringVar(&reqContext, "context", "", "Supporting context for the request")
	return cmd
}

type intentView struct {
	Intent  routing.Intent     `json:"intent"`
	Type    routing.IntentType `json:"intent_type"`
	SubType string             `json:"sub_type,omitempty"`
}

func (c *cli) classifyCmd() *cobra.Command {
	var reqContext string
	cmd := &cobra.Command{
		Use:   "classify <idea>",
		Short: "Classify the intent of a request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			idea, err := c.idea(args)
			if err != nil {
				return err
			}
			intent := routing.NewIntentClassifier().Classify(idea, reqContext)
			view := intentView{Intent: intent, Type: intent.Type(), SubType: intent.SubType()}
			return c.printer().emit(view, func(w io.Writer) {
				fmt.Fprintf(w, "Intent: %s\n", view.Intent)
			})
		},
	}
	cmd.Flags().StringVar(&reqContext, "context", "", "Supporting context for the request")
	return cmd
}

// =============================================================================
// build
// =============================================================================

type buildView struct {
	Prompt     *prompt.PromptObject `json:"prompt"`
	Refinement *refine.Result       `json:"refinement,omitempty"`
}

func (c *cli) buildCmd() *cobra.Command {
	var (
		req       strategy.Request
		mode      string
		level     string
		codeFile  string
		inputs    strategy.Inputs
		refineRun bool
	)
	cmd := &cobra.Command{
		Use:   "build <idea>",
		Short: "Build a structured prompt for a request",
		Long: `Build a structured prompt for a request.

With --catalog, the closest curated examples are used as few-shot references.
With --refine, or in iterative mode, an LLM refines the template; the loop runs
when the mode is iterative or the selected strategy is iterative.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			idea, err := c.idea(args)
			if err != nil {
				return err
			}
			req.Idea = idea
			req.Mode = prompt.Mode(mode)
			req.Complexity = routing.Complexity(level)
			if codeFile != "" {
				data, err := os.ReadFile(codeFile)
				if err != nil {
					return fmt.Errorf("reading --code-file: %w", err)
				}
				inputs.Code = string(data)
			}
			if inputs != (strategy.Inputs{}) {
				req.Inputs = &inputs
			}

			a, err := c.loadApp(cmd.Context())
			if err != nil {
				return err
			}
			withRefiner := refineRun || req.Mode == prompt.ModeIterative
			b, err := a.builder(withRefiner)
			if err != nil {
				return err
			}

			if !withRefiner {
				po, err := b.Build(cmd.Context(), req)
				if err != nil {
					return err
				}
				return c.printBuild(buildView{Prompt: po})
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), a.s.LLMTimeout)
			defer cancel()
			po, res, err := b.BuildAndRefine(ctx, req)
			if po != nil {
				if perr := c.printBuild(buildView{Prompt: po, Refinement: res}); perr != nil {
					return errors.Join(err, perr)
				}
			}
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Context, "context", "", "Supporting context for the request")
	f.StringVar(&mode, "mode", string(prompt.ModeStandard), "Build mode: fast, standard, or iterative")
	f.StringVar(&level, "complexity", "", "Skip analysis and use SIMPLE, MODERATE, or COMPLEX")
	f.IntVar(&req.K, "k", 0, "Examples to retrieve (0 uses the configured default)")
	f.BoolVar(&req.ForceReasoning, "reason", false, "Add the reasoning preamble at any complexity")
	f.StringVar(&codeFile, "code-file", "", "File whose contents go in the Code section")
	f.StringVar(&inputs.Error, "error", "", "Error message or stack trace for the Error section")
	f.StringVar(&inputs.Language, "language", "", "Language tag for the Code section")
	f.BoolVar(&refineRun, "refine", false, "Attach the LLM refiner")
	return cmd
}

func (c *cli) printBuild(v buildView) error {
	return c.printer().emit(v, func(w io.Writer) {
		meta := v.Prompt.Meta()
		fmt.Fprintln(w, v.Prompt.Template())
		rule(w)
		fmt.Fprintf(w, "Intent: %s  Complexity: %s  Strategy: %s\n", v.Prompt.Intent(), v.Prompt.Complexity(), meta.Strategy)
		fmt.Fprintf(w, "Examples: %d  Retrieval: %s  Reasoning: %s\n", meta.FewShotCount, retrievalLabel(meta), yesNo(meta.RaRUsed))
		if v.Refinement == nil {
			return
		}
		res := v.Refinement
		fmt.Fprintf(w, "Refinement: %s after %d iteration(s), score %.2f\n", res.Status, res.Iterations, res.FinalScore)
		if len(res.KNNFailures) > 0 {
			fmt.Fprintf(w, "Retrieval failures during refinement: %d\n", len(res.KNNFailures))
		}
		if res.FinalInstruction != v.Prompt.Template() {
			rule(w)
			fmt.Fprintln(w, res.FinalInstruction)
		}
	})
}

func retrievalLabel(meta prompt.StrategyMeta) string {
	switch {
	case !meta.KNNEnabled:
		return "disabled"
	case meta.KNNFailed:
		return "degraded"
	default:
		return "ok"
	}
}

// =============================================================================
// strategies
// =============================================================================

func (c *cli) strategiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "Print the strategy table, overrides applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.loadApp(cmd.Context())
			if err != nil {
				return err
			}
			b, err := a.builder(false)
			if err != nil {
				return err
			}
			entries := b.Table().Entries()
			return c.printer().emit(entries, func(w io.Writer) {
				fmt.Fprintf(w, "%-10s %-10s %s\n", "INTENT", "COMPLEXITY", "STRATEGY")
				for _, e := range entries {
					fmt.Fprintf(w, "%-10s %-10s %s\n", e.Intent, e.Complexity, e.Strategy)
				}
			})
		},
	}
}

// =============================================================================
// catalog
// =============================================================================

type catalogView struct {
	Source      string    `json:"source"`
	Vectorizer  string    `json:"vectorizer"`
	Total       int       `json:"total"`
	Valid       int       `json:"valid"`
	Skipped     int       `json:"skipped"`
	VectorCount int       `json:"vector_count"`
	Dimensions  int       `json:"dimensions"`
	LoadedAt    time.Time `json:"loaded_at"`
}

func newCatalogView(info knn.CatalogInfo) catalogView {
	return catalogView{
		Source:      info.Source,
		Vectorizer:  info.Vectorizer,
		Total:       info.Stats.Total,
		Valid:       info.Stats.Valid,
		Skipped:     info.Stats.Skipped,
		VectorCount: info.VectorCount,
		Dimensions:  info.Dimensions,
		LoadedAt:    info.LoadedAt,
	}
}

func (c *cli) catalogInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Load the catalog and print its snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.requireCatalog(cmd.Context())
			if err != nil {
				return err
			}
			info, _ := a.provider.Catalog()
			return c.printCatalog(newCatalogView(info))
		},
	}
}

func (c *cli) catalogWatchCmd() *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Reload a file catalog on every change and print the snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.HasPrefix(c.settings.Catalog, "gs://") {
				return errors.New("catalog watch only applies to file catalogs")
			}
			a, err := c.requireCatalog(cmd.Context())
			if err != nil {
				return err
			}
			info, _ := a.provider.Catalog()
			if err := c.printCatalog(newCatalogView(info)); err != nil {
				return err
			}
			return knn.Watch(cmd.Context(), &reportingReloader{c: c, p: a.provider}, c.settings.Catalog, debounce, a.logger)
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 250*time.Millisecond, "Quiet period before reloading")
	return cmd
}

// reportingReloader prints the new snapshot after each successful reload.
type reportingReloader struct {
	c *cli
	p *knn.Provider
}

func (r *reportingReloader) Reload(ctx context.Context) error {
	if err := r.p.Reload(ctx); err != nil {
		fmt.Fprintf(r.c.errOut, "Reload failed, previous snapshot kept: %v\n", err)
		return err
	}
	info, _ := r.p.Catalog()
	return r.c.printCatalog(newCatalogView(info))
}

func (c *cli) requireCatalog(ctx context.Context) (*app, error) {
	if c.settings.Catalog == "" {
		return nil, errors.New("--catalog is required")
	}
	return c.loadApp(ctx)
}

func (c *cli) printCatalog(v catalogView) error {
	return c.printer().emit(v, func(w io.Writer) {
		fmt.Fprintf(w, "Source:     %s\n", v.Source)
		fmt.Fprintf(w, "Vectorizer: %s\n", v.Vectorizer)
		fmt.Fprintf(w, "Records:    %d valid, %d skipped, %d total\n", v.Valid, v.Skipped, v.Total)
		fmt.Fprintf(w, "Vectors:    %d x %d\n", v.VectorCount, v.Dimensions)
		fmt.Fprintf(w, "Loaded:     %s\n", v.LoadedAt.Format(time.RFC3339))
	})
}

// =============================================================================
// Helpers
// =============================================================================

// idea joins the positional arguments. A single "-" reads the idea from
// standard input.
func (c *cli) idea(args []string) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(io.LimitReader(c.in, 1<<20))
		if err != nil {
			return "", fmt.Errorf("reading idea from stdin: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return strings.Join(args, " "), nil
}
