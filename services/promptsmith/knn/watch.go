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
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultWatchDebounce coalesces the burst of events editors emit on save.
const defaultWatchDebounce = 250 * time.Millisecond

// Reloader is satisfied by *Provider.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Watch reloads r whenever the catalog file at path changes.
//
// # Description
//
// Watches the parent directory so atomic rename-on-save is seen. Events are
// debounced; a reload that fails is logged and the previous snapshot keeps
// serving. Blocks until ctx is done.
//
// # Inputs
//
//   - ctx: Cancel to stop watching.
//   - r: Usually the Provider built over a FileSource for path.
//   - path: Catalog file.
//   - debounce: Quiet period before reloading. Zero uses 250ms.
//   - logger: Nil uses slog.Default().
//
// # Outputs
//
//   - error: Non-nil only if the watcher cannot be started.
func Watch(ctx context.Context, r Reloader, path string, debounce time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = defaultWatchDebounce
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("knn.Watch: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("knn.Watch: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("knn.Watch: watch %s: %w", filepath.Dir(abs), err)
	}
	logger.Info("knn: watching catalog", slog.String("path", abs))

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("knn: catalog watcher error", slog.String("error", err.Error()))

		case <-timer.C:
			if err := r.Reload(ctx); err != nil {
				logger.Warn("knn: catalog reload failed, keeping previous snapshot",
					slog.String("path", abs),
					slog.String("error", err.Error()),
				)
				continue
			}
			logger.Info("knn: catalog reloaded", slog.String("path", abs))
		}
	}
}
