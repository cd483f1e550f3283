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

// =============================================================================
// BadgerVectorStore
// =============================================================================
//
// Embedding a catalog costs one model call per record. The fitted matrix
// only changes when a record or the model changes, so it is persisted in
// BadgerDB keyed by corpus hash. TF-IDF fits are never persisted; they
// rebuild in milliseconds.
//
// Storage layout:
//
//	promptsmith/knn/v1/{corpusHash}  →  gob-encoded [][]float32
//	                                     (row i = catalog record i)
//	                                     TTL: vector_cache_ttl

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	badgerstore "github.com/AleutianAI/promptsmith/services/promptsmith/storage/badger"
)

// VectorCacheKeyPrefix is prepended to the corpus hash to form the key.
const VectorCacheKeyPrefix = "promptsmith/knn/v1/"

const defaultVectorCacheTTL = 7 * 24 * time.Hour

var errCacheMiss = errors.New("cache miss")

// BadgerVectorStore implements VectorStore on a BadgerDB instance.
//
// # Thread Safety
//
// Safe for concurrent use. The caller owns the DB lifecycle.
type BadgerVectorStore struct {
	db     *badgerstore.DB
	ttl    time.Duration
	logger *slog.Logger
}

// NewBadgerVectorStore creates a store on db. A ttl of 0 uses seven days.
func NewBadgerVectorStore(db *badgerstore.DB, ttl time.Duration, logger *slog.Logger) *BadgerVectorStore {
	if db == nil {
		panic("NewBadgerVectorStore: db must not be nil")
	}
	if ttl <= 0 {
		ttl = defaultVectorCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerVectorStore{db: db, ttl: ttl, logger: logger}
}

// LoadVectors returns the cached matrix, or (nil, nil) on a miss or after
// TTL expiry.
func (s *BadgerVectorStore) LoadVectors(ctx context.Context, corpusHash string) ([][]float32, error) {
	var raw []byte
	err := s.db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		item, err := txn.Get(vectorCacheKey(corpusHash))
		if errors.Is(err, dgbadger.ErrKeyNotFound) {
			return errCacheMiss
		}
		if err != nil {
			return fmt.Errorf("get cache key: %w", err)
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, errCacheMiss) {
		s.logger.Debug("knn vector cache: miss", slog.String("hash", shortHash(corpusHash)))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("knn vector cache load: %w", err)
	}

	vectors, err := DecodeVectors(raw)
	if err != nil {
		return nil, fmt.Errorf("knn vector cache decode: %w", err)
	}
	s.logger.Debug("knn vector cache: hit",
		slog.String("hash", shortHash(corpusHash)),
		slog.Int("vectors", len(vectors)),
	)
	return vectors, nil
}

// SaveVectors stores vectors under corpusHash with the configured TTL.
func (s *BadgerVectorStore) SaveVectors(ctx context.Context, corpusHash string, vectors [][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	raw, err := EncodeVectors(vectors)
	if err != nil {
		return fmt.Errorf("knn vector cache encode: %w", err)
	}
	err = s.db.WithTxn(ctx, func(txn *dgbadger.Txn) error {
		return txn.SetEntry(dgbadger.NewEntry(vectorCacheKey(corpusHash), raw).WithTTL(s.ttl))
	})
	if err != nil {
		return fmt.Errorf("knn vector cache save: %w", err)
	}
	s.logger.Debug("knn vector cache: saved",
		slog.String("hash", shortHash(corpusHash)),
		slog.Int("vectors", len(vectors)),
		slog.Duration("ttl", s.ttl),
	)
	return nil
}

func vectorCacheKey(corpusHash string) []byte {
	return []byte(VectorCacheKeyPrefix + corpusHash)
}

// EncodeVectors gob-encodes a catalog matrix.
func EncodeVectors(vectors [][]float32) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(vectors); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeVectors reverses EncodeVectors.
func DecodeVectors(data []byte) ([][]float32, error) {
	var vectors [][]float32
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("gob decode: %w", err)
	}
	return vectors, nil
}
