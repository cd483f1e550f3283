// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// promptsmith turns a rough request into a structured prompt.
//
// Usage:
//
//	promptsmith analyze "why does the cache deadlock under load"
//	promptsmith classify "refactor the payment module"
//	promptsmith build --catalog examples.yaml "fix the crash in the parser"
//	promptsmith build --mode iterative --llm-model llama3.1 "design a rate limiter"
//	promptsmith strategies
//	promptsmith catalog info --catalog gs://bucket/examples.jsonl
//	promptsmith catalog watch --catalog examples.yaml
//
// Every persistent flag can also be set in promptsmith.yaml or through a
// PROMPTSMITH_ environment variable (PROMPTSMITH_CATALOG, PROMPTSMITH_EMBED_MODEL).
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// cli carries the streams and the lazily built app through the command tree.
type cli struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	settings *settings
	app      *app
	shutdown func(context.Context) error
}

// run executes one command line and returns the process exit code.
func run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) int {
	c := &cli{in: in, out: out, errOut: errOut}
	root := c.rootCmd()
	root.SetArgs(args)
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	err := root.ExecuteContext(ctx)
	c.close()
	if err != nil {
		fmt.Fprintf(errOut, "Error: %v\n", err)
		return 1
	}
	return 0
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "promptsmith",
		Short:         "Turn rough requests into structured prompts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			c.settings = s
			if s.Trace {
				if c.shutdown, err = setupTracing(c.errOut); err != nil {
					return err
				}
			}
			return nil
		},
	}
	addPersistentFlags(root)

	catalog := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the example catalog",
	}
	catalog.AddCommand(c.catalogInfoCmd(), c.catalogWatchCmd())

	root.AddCommand(
		c.analyzeCmd(),
		c.classifyCmd(),
		c.buildCmd(),
		c.strategiesCmd(),
		catalog,
	)
	return root
}

// loadApp builds the shared app on first use. Commands that never touch the
// catalog skip loading it.
func (c *cli) loadApp(ctx context.Context) (*app, error) {
	if c.app != nil {
		return c.app, nil
	}
	a, err := newApp(ctx, c.settings, c.errOut)
	if err != nil {
		return nil, err
	}
	c.app = a
	return a, nil
}

func (c *cli) printer() *printer {
	return newPrinter(c.out, c.settings.Output)
}

func (c *cli) close() {
	if c.app != nil {
		if err := c.app.Close(); err != nil {
			fmt.Fprintf(c.errOut, "Warning: closing resources: %v\n", err)
		}
	}
	if c.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.shutdown(ctx)
	}
}
