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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/promptsmith/services/promptsmith/config"
)

const oneRecord = `[{"inputs": {"idea": "fix bug"}, "outputs": {"improved": "Debug carefully"}}]`

const twoRecords = `[
	{"inputs": {"idea": "fix bug"}, "outputs": {"improved": "Debug carefully"}},
	{"inputs": {"idea": "write docs"}, "outputs": {"improved": "Write the README"}}
]`

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(oneRecord), 0o600))

	p, err := NewProvider(config.Default(), NewFileSource(path), WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, p.Init(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, p, path, 20*time.Millisecond, quietLogger()) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(twoRecords), 0o600))

	require.Eventually(t, func() bool {
		info, _ := p.Catalog()
		return info.Stats.Valid == 2
	}, 5*time.Second, 20*time.Millisecond)

	// A broken write keeps the previous snapshot.
	require.NoError(t, os.WriteFile(path, []byte(`{"broken`), 0o600))
	time.Sleep(200 * time.Millisecond)
	info, _ := p.Catalog()
	assert.Equal(t, 2, info.Stats.Valid)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatch_MissingDirectory(t *testing.T) {
	err := Watch(context.Background(), nil, "/nonexistent/dir/catalog.json", 0, quietLogger())
	assert.Error(t, err)
}
