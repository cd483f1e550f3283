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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// envPrefix prefixes every environment override, e.g. PROMPTSMITH_CATALOG.
const envPrefix = "PROMPTSMITH"

// settings are the CLI-level knobs. Core thresholds live in the YAML file
// named by Config and are loaded by the config package.
type settings struct {
	Config   string `mapstructure:"config"`
	Catalog  string `mapstructure:"catalog"`
	CacheDir string `mapstructure:"cache-dir"`

	// Embed selects the vectorizer: "" (TF-IDF), "ollama" or "langchain".
	Embed      string `mapstructure:"embed"`
	EmbedURL   string `mapstructure:"embed-url"`
	EmbedModel string `mapstructure:"embed-model"`

	LLMURL     string        `mapstructure:"llm-url"`
	LLMModel   string        `mapstructure:"llm-model"`
	LLMTimeout time.Duration `mapstructure:"llm-timeout"`

	// Output is "auto", "json" or "text". Auto picks text on a terminal.
	Output   string `mapstructure:"output"`
	LogLevel string `mapstructure:"log-level"`
	Trace    bool   `mapstructure:"trace"`
}

// addPersistentFlags registers the settings flags on the root command.
func addPersistentFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String("settings", "", "CLI settings file (default: ./promptsmith.yaml or ~/.config/promptsmith/promptsmith.yaml)")
	f.String("config", "", "Core threshold YAML file (defaults are embedded)")
	f.String("catalog", "", "Example catalog: a .json/.jsonl/.yaml file or gs://bucket/object")
	f.String("cache-dir", "", "BadgerDB directory for cached catalog vectors (embedding vectorizers only)")
	f.String("embed", "", "Vectorizer backend: empty for TF-IDF, ollama, or langchain")
	f.String("embed-url", "", "Embedding service URL")
	f.String("embed-model", "", "Embedding model name")
	f.String("llm-url", "http://localhost:11434", "Ollama server URL for refinement")
	f.String("llm-model", "llama3.1", "Model used by the refinement loop")
	f.Duration("llm-timeout", 2*time.Minute, "Overall timeout for a refinement run")
	f.String("output", "auto", "Output format: auto, json, or text")
	f.String("log-level", "warn", "Log level: debug, info, warn, error")
	f.Bool("trace", false, "Print OpenTelemetry spans to stderr")
}

// loadSettings resolves settings with precedence flags > environment >
// settings file > flag defaults.
func loadSettings(cmd *cobra.Command) (*settings, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("binding flags: %w", err)
	}

	explicit, _ := cmd.Flags().GetString("settings")
	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.SetConfigName("promptsmith")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "promptsmith"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading settings: %w", err)
		}
	}

	s := &settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("unmarshaling settings: %w", err)
	}
	return s, s.validate()
}

func (s *settings) validate() error {
	switch s.Output {
	case "auto", "json", "text":
	default:
		return fmt.Errorf("--output must be auto, json, or text, got %q", s.Output)
	}
	switch s.Embed {
	case "", "ollama", "langchain":
	default:
		return fmt.Errorf("--embed must be empty, ollama, or langchain, got %q", s.Embed)
	}
	return nil
}

// parseGCSURI splits gs://bucket/object.
func parseGCSURI(uri string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return "", "", fmt.Errorf("not a gs:// URI: %q", uri)
	}
	bucket, object, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("gs:// URI must name a bucket and an object: %q", uri)
	}
	return bucket, object, nil
}
