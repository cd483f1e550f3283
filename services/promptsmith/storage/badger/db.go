// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger wraps a BadgerDB instance with context-aware transaction
// helpers. The promptsmith vector cache is its only tenant today.
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	dgbadger "github.com/dgraph-io/badger/v4"
)

// Config controls how a DB is opened.
type Config struct {
	// Path is the on-disk directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps all data in RAM. Used by tests.
	InMemory bool

	// SyncWrites fsyncs every write. Off by default; the cache is rebuildable.
	SyncWrites bool

	// ReadOnly opens an existing directory without writing to it.
	ReadOnly bool

	// Logger receives open/close diagnostics. Nil uses slog.Default().
	// BadgerDB's own logger is always suppressed.
	Logger *slog.Logger
}

// DefaultConfig returns an on-disk configuration rooted at path.
func DefaultConfig(path string) Config {
	return Config{Path: path}
}

// InMemoryConfig returns a configuration for an ephemeral in-memory DB.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// DB is an opened BadgerDB instance.
//
// # Thread Safety
//
// Safe for concurrent use. Transactions are per call.
type DB struct {
	db     *dgbadger.DB
	logger *slog.Logger
	path   string
}

// OpenDB opens a BadgerDB with the given configuration.
//
// # Inputs
//
//   - cfg: Open configuration. Path must be non-empty unless InMemory is set.
//
// # Outputs
//
//   - *DB: The opened database. The caller owns it and must Close it.
//   - error: Non-nil if the configuration is invalid or Badger fails to open.
func OpenDB(cfg Config) (*DB, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var opts dgbadger.Options
	if cfg.InMemory {
		opts = dgbadger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("badger: path must not be empty for an on-disk DB")
		}
		opts = dgbadger.DefaultOptions(cfg.Path).
			WithSyncWrites(cfg.SyncWrites).
			WithReadOnly(cfg.ReadOnly)
	}
	opts = opts.WithLogger(nil)

	db, err := dgbadger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open %q: %w", cfg.Path, err)
	}

	logger.Debug("badger: opened",
		slog.String("path", cfg.Path),
		slog.Bool("in_memory", cfg.InMemory),
		slog.Bool("read_only", cfg.ReadOnly),
	)
	return &DB{db: db, logger: logger, path: cfg.Path}, nil
}

// WithTxn runs fn inside a read-write transaction.
//
// Returns ctx.Err() without starting a transaction when ctx is already done.
func (d *DB) WithTxn(ctx context.Context, fn func(txn *dgbadger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.Update(fn)
}

// WithReadTxn runs fn inside a read-only transaction.
//
// Returns ctx.Err() without starting a transaction when ctx is already done.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *dgbadger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.db.View(fn)
}

// RunValueLogGC reclaims space from expired entries.
//
// Returns nil when there was nothing to rewrite. In-memory DBs have no
// value log and always return nil.
func (d *DB) RunValueLogGC(discardRatio float64) error {
	if d.path == "" {
		return nil
	}
	err := d.db.RunValueLogGC(discardRatio)
	if errors.Is(err, dgbadger.ErrNoRewrite) {
		return nil
	}
	return err
}

// Close releases the database.
func (d *DB) Close() error {
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("badger: close: %w", err)
	}
	d.logger.Debug("badger: closed", slog.String("path", d.path))
	return nil
}
