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
	"testing"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	badgerstore "github.com/AleutianAI/promptsmith/services/promptsmith/storage/badger"
)

func newTestStore(t *testing.T) (*BadgerVectorStore, *badgerstore.DB) {
	t.Helper()
	db, err := badgerstore.OpenDB(badgerstore.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewBadgerVectorStore(db, time.Hour, quietLogger()), db
}

func TestBadgerVectorStore_RoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	vectors := [][]float32{{1, 0}, {0.6, 0.8}}

	require.NoError(t, store.SaveVectors(ctx, "abc", vectors))
	got, err := store.LoadVectors(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, vectors, got)
}

func TestBadgerVectorStore_Miss(t *testing.T) {
	store, _ := newTestStore(t)
	got, err := store.LoadVectors(context.Background(), "nothing")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestBadgerVectorStore_EmptySaveIsNoop(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.SaveVectors(context.Background(), "abc", nil))
	got, err := store.LoadVectors(context.Background(), "abc")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestBadgerVectorStore_CorruptValue(t *testing.T) {
	store, db := newTestStore(t)
	require.NoError(t, db.WithTxn(context.Background(), func(txn *dgbadger.Txn) error {
		return txn.Set(vectorCacheKey("bad"), []byte("not gob"))
	}))
	_, err := store.LoadVectors(context.Background(), "bad")
	assert.Error(t, err)
}

func TestBadgerVectorStore_KeyLayoutAndTTL(t *testing.T) {
	store, db := newTestStore(t)
	require.NoError(t, store.SaveVectors(context.Background(), "hash1", [][]float32{{1}}))

	err := db.WithReadTxn(context.Background(), func(txn *dgbadger.Txn) error {
		item, err := txn.Get([]byte(VectorCacheKeyPrefix + "hash1"))
		if err != nil {
			return err
		}
		assert.NotZero(t, item.ExpiresAt())
		return nil
	})
	assert.NoError(t, err)
}

func TestBadgerVectorStore_CancelledContext(t *testing.T) {
	store, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, store.SaveVectors(ctx, "x", [][]float32{{1}}), context.Canceled)
	_, err := store.LoadVectors(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
}
