// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config defines the thresholds shared by the promptsmith core.
//
// A Config is an explicit value constructed at startup and passed to every
// collaborator. There is no package-level registry: tests build their own
// Config with Default() and adjust fields directly.
package config

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Embedded Defaults
// =============================================================================

//go:embed defaults.yaml
var defaultConfigYAML []byte

// MaxYAMLFileSize bounds user-supplied configuration files.
const MaxYAMLFileSize = 1 << 20

var configTracer = otel.Tracer("promptsmith.config")

// =============================================================================
// Configuration Types
// =============================================================================

// Config is the root configuration object.
//
// Thread Safety: Immutable after loading; safe for concurrent reads.
type Config struct {
	Complexity ComplexityConfig `yaml:"complexity"`
	KNN        KNNConfig        `yaml:"knn"`
	Strategy   StrategyConfig   `yaml:"strategy"`
	Refiner    RefinerConfig    `yaml:"refiner"`
}

// ComplexityConfig holds the ComplexityAnalyzer thresholds.
type ComplexityConfig struct {
	// SimpleMaxLength is the combined length at or below which a request
	// with no strong signal is SIMPLE.
	SimpleMaxLength int `yaml:"simple_max_length" validate:"gt=0"`

	// ModerateMinLength contributes +1 to the score when reached.
	ModerateMinLength int `yaml:"moderate_min_length" validate:"gtfield=SimpleMaxLength"`

	// LongMinLength contributes +2 to the score when reached.
	LongMinLength int `yaml:"long_min_length" validate:"gtfield=ModerateMinLength"`

	// AbsoluteCeiling classifies anything longer as COMPLEX unconditionally.
	AbsoluteCeiling int `yaml:"absolute_ceiling" validate:"gtfield=LongMinLength"`

	ModerateTermCount int `yaml:"moderate_term_count" validate:"gt=0"`
	ComplexTermCount  int `yaml:"complex_term_count" validate:"gtfield=ModerateTermCount"`

	ModerateScore int `yaml:"moderate_score" validate:"gt=0"`
	ComplexScore  int `yaml:"complex_score" validate:"gtfield=ModerateScore"`

	// TechnicalTerms are matched on word boundaries, case-insensitively.
	TechnicalTerms []string `yaml:"technical_terms" validate:"min=1,dive,required"`
}

// KNNConfig holds the example retriever settings.
type KNNConfig struct {
	// CorruptionThreshold is the maximum tolerated skipped/total ratio.
	CorruptionThreshold float64 `yaml:"corruption_threshold" validate:"gte=0,lte=1"`

	DefaultK int `yaml:"default_k" validate:"gt=0"`
	MaxK     int `yaml:"max_k" validate:"gtefield=DefaultK"`

	PayloadPreviewLength int `yaml:"payload_preview_length" validate:"gt=0"`

	QueryTimeout time.Duration `yaml:"query_timeout" validate:"gt=0"`

	EmbedConcurrency   int     `yaml:"embed_concurrency" validate:"gt=0"`
	EmbedRatePerSecond float64 `yaml:"embed_rate_per_second" validate:"gt=0"`

	VectorCacheTTL time.Duration `yaml:"vector_cache_ttl" validate:"gt=0"`
}

// StrategyConfig holds the StrategyBuilder settings.
type StrategyConfig struct {
	MaxGuardrails int `yaml:"max_guardrails" validate:"gt=0"`

	// Overrides replaces strategy table cells. Keys are "<intent>/<COMPLEXITY>"
	// (e.g. "debug/COMPLEX"); values are strategy identifiers. Unknown keys or
	// identifiers are rejected when the builder is constructed.
	Overrides map[string]string `yaml:"overrides"`
}

// RefinerConfig holds the IterativeRefiner settings.
type RefinerConfig struct {
	MaxIterations        int     `yaml:"max_iterations" validate:"min=1,max=5"`
	SuccessThreshold     float64 `yaml:"success_threshold" validate:"gt=0,lte=1"`
	ExamplesPerIteration int     `yaml:"examples_per_iteration" validate:"gte=0"`
}

// =============================================================================
// Loading
// =============================================================================

// Default returns a fresh Config populated from the embedded defaults.
//
// Panics if the embedded defaults are invalid; that is a build defect, not a
// runtime condition.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal(defaultConfigYAML, &cfg); err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	if err := Validate(&cfg); err != nil {
		panic(fmt.Sprintf("config: embedded defaults: %v", err))
	}
	return &cfg
}

// Load parses YAML overrides on top of the embedded defaults.
//
// Description:
//
//	Starts from Default(), decodes data into it so unspecified fields keep
//	their default values, then validates the result. Empty data returns the
//	defaults unchanged.
//
// Inputs:
//
//	ctx - Context for tracing.
//	data - Raw YAML bytes.
//
// Outputs:
//
//	*Config - The validated configuration.
//	error - Non-nil if the data is too large, unparseable or invalid.
func Load(ctx context.Context, data []byte) (*Config, error) {
	_, span := configTracer.Start(ctx, "config.Load")
	defer span.End()

	if len(data) > MaxYAMLFileSize {
		return nil, fmt.Errorf("config.Load: YAML data exceeds maximum size (%d > %d)", len(data), MaxYAMLFileSize)
	}

	cfg := Default()
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parsing YAML: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config.Load: validation: %w", err)
	}

	span.SetAttributes(
		attribute.Float64("corruption_threshold", cfg.KNN.CorruptionThreshold),
		attribute.Int("default_k", cfg.KNN.DefaultK),
		attribute.Int("max_iterations", cfg.Refiner.MaxIterations),
		attribute.Int("strategy_overrides", len(cfg.Strategy.Overrides)),
	)

	slog.Debug("promptsmith config loaded",
		slog.Int("technical_terms", len(cfg.Complexity.TechnicalTerms)),
		slog.Float64("corruption_threshold", cfg.KNN.CorruptionThreshold),
		slog.Int("strategy_overrides", len(cfg.Strategy.Overrides)),
	)

	return cfg, nil
}

// LoadFile reads and loads a YAML configuration file.
//
// An empty path returns the defaults.
func LoadFile(ctx context.Context, path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config.LoadFile: %w", err)
	}
	if info.Size() > MaxYAMLFileSize {
		return nil, fmt.Errorf("config.LoadFile: %s exceeds maximum size (%d > %d)", path, info.Size(), MaxYAMLFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.LoadFile: %w", err)
	}
	return Load(ctx, data)
}

// Validate checks struct constraints on cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config must not be nil")
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg); err != nil {
		return err
	}
	if cfg.Refiner.ExamplesPerIteration > cfg.KNN.MaxK {
		return fmt.Errorf("refiner.examples_per_iteration (%d) exceeds knn.max_k (%d)",
			cfg.Refiner.ExamplesPerIteration, cfg.KNN.MaxK)
	}
	return nil
}
