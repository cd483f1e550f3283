// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"errors"
	"testing"

	dgbadger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDB_InMemoryRoundTrip(t *testing.T) {
	db, err := OpenDB(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	err = db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.Set([]byte("k"), []byte("v"))
	})
	require.NoError(t, err)

	var got []byte
	err = db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		item, err := txn.Get([]byte("k"))
		if err != nil {
			return err
		}
		got, err = item.ValueCopy(nil)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
	assert.NoError(t, db.RunValueLogGC(0.5))
}

func TestOpenDB_OnDisk(t *testing.T) {
	dir := t.TempDir()
	db, err := OpenDB(DefaultConfig(dir))
	require.NoError(t, err)

	require.NoError(t, db.WithTxn(context.Background(), func(txn *dgbadger.Txn) error {
		return txn.Set([]byte("persisted"), []byte("yes"))
	}))
	require.NoError(t, db.Close())

	reopened, err := OpenDB(DefaultConfig(dir))
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	err = reopened.WithReadTxn(context.Background(), func(txn *dgbadger.Txn) error {
		_, err := txn.Get([]byte("persisted"))
		return err
	})
	assert.NoError(t, err)
}

func TestOpenDB_EmptyPath(t *testing.T) {
	_, err := OpenDB(Config{})
	assert.Error(t, err)
}

func TestWithTxn_CancelledContext(t *testing.T) {
	db, err := OpenDB(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err = db.WithTxn(ctx, func(*dgbadger.Txn) error {
		called = true
		return nil
	})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, called)

	err = db.WithReadTxn(ctx, func(*dgbadger.Txn) error {
		called = true
		return nil
	})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, called)
}
