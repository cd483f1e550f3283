// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// catalog_cache_dump inspects the persisted KNN catalog vector cache.
//
// When promptsmith runs with an embedding vectorizer and a cache directory,
// the catalog vectors are stored in BadgerDB keyed by corpus hash so a
// restart skips re-embedding. This tool opens the cache read-only and prints
// one block per corpus: hash, TTL remaining, row count, dimensions and the
// L2 norm range of the rows.
//
// Usage:
//
//	catalog_cache_dump [--path /path/to/cache] [--sample N]
//
// If --path is not given, reads PROMPTSMITH_CACHE_DIR from the environment,
// falling back to ~/.promptsmith/cache/knn/.
//
// Exit codes:
//
//	0 - success, including an empty or missing cache
//	1 - error opening or reading the database
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	dgbadger "github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/promptsmith/services/promptsmith/knn"
	badgerstore "github.com/AleutianAI/promptsmith/services/promptsmith/storage/badger"
)

// entry is one cached corpus.
type entry struct {
	key        string
	corpusHash string
	expiresAt  time.Time
	hasExpiry  bool
	vectors    [][]float32
	rawSize    int
	decodeErr  error
}

func main() {
	pathFlag := flag.String("path", "", "Path to the KNN cache BadgerDB directory (overrides PROMPTSMITH_CACHE_DIR)")
	sampleFlag := flag.Int("sample", 4, "Values of the first row to print per entry")
	flag.Parse()

	dbPath := *pathFlag
	if dbPath == "" {
		dbPath = os.Getenv("PROMPTSMITH_CACHE_DIR")
	}
	if dbPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fatalf("cannot resolve home directory: %v", err)
		}
		dbPath = filepath.Join(home, ".promptsmith", "cache", "knn")
	}

	fmt.Printf("KNN cache path: %s\n", dbPath)

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("Cache directory does not exist. No catalog has been embedded with a cache configured yet.")
		os.Exit(0)
	}

	cfg := badgerstore.DefaultConfig(dbPath)
	cfg.ReadOnly = true
	db, err := badgerstore.OpenDB(cfg)
	if err != nil {
		fatalf("open BadgerDB at %s: %v", dbPath, err)
	}
	defer func() { _ = db.Close() }()

	entries, err := collect(context.Background(), db)
	if err != nil {
		fatalf("read BadgerDB: %v", err)
	}
	printEntries(os.Stdout, entries, *sampleFlag, time.Now())
}

// collect reads every entry under the vector cache prefix.
func collect(ctx context.Context, db *badgerstore.DB) ([]entry, error) {
	var entries []entry
	err := db.WithReadTxn(ctx, func(txn *dgbadger.Txn) error {
		opts := dgbadger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(knn.VectorCacheKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.Key())
			e := entry{key: key, corpusHash: strings.TrimPrefix(key, knn.VectorCacheKeyPrefix)}

			// ExpiresAt is Unix seconds; 0 means no expiry.
			if expiresAt := item.ExpiresAt(); expiresAt > 0 {
				e.hasExpiry = true
				e.expiresAt = time.Unix(int64(expiresAt), 0)
			}

			raw, err := item.ValueCopy(nil)
			if err != nil {
				e.decodeErr = fmt.Errorf("copy value: %w", err)
				entries = append(entries, e)
				continue
			}
			e.rawSize = len(raw)
			if e.vectors, err = knn.DecodeVectors(raw); err != nil {
				e.decodeErr = fmt.Errorf("gob decode: %w", err)
			}
			entries = append(entries, e)
		}
		return nil
	})
	return entries, err
}

func printEntries(w io.Writer, entries []entry, sample int, now time.Time) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "\nNo catalog cache entries found.")
		return
	}

	fmt.Fprintf(w, "\nFound %d cached corpus%s:\n", len(entries), plural(len(entries), "", "es"))
	fmt.Fprintln(w, strings.Repeat("─", 80))

	for i, e := range entries {
		fmt.Fprintf(w, "\n[%d] Key:         %s\n", i+1, e.key)
		fmt.Fprintf(w, "    Corpus hash: %s\n", e.corpusHash)

		switch {
		case !e.hasExpiry:
			fmt.Fprintf(w, "    TTL:         no expiry set\n")
		case e.expiresAt.Before(now):
			fmt.Fprintf(w, "    TTL:         EXPIRED (%s ago)\n", now.Sub(e.expiresAt).Round(time.Second))
		default:
			fmt.Fprintf(w, "    TTL:         %s remaining (expires %s)\n",
				e.expiresAt.Sub(now).Round(time.Second),
				e.expiresAt.Format("2006-01-02 15:04:05 MST"),
			)
		}

		fmt.Fprintf(w, "    Raw size:    %s\n", formatBytes(e.rawSize))
		if e.decodeErr != nil {
			fmt.Fprintf(w, "    DECODE ERROR: %v\n", e.decodeErr)
			continue
		}

		dims := 0
		if len(e.vectors) > 0 {
			dims = len(e.vectors[0])
		}
		lo, hi := normRange(e.vectors)
		fmt.Fprintf(w, "    Rows:        %d\n", len(e.vectors))
		fmt.Fprintf(w, "    Dimensions:  %d\n", dims)
		fmt.Fprintf(w, "    L2 norms:    %.4f .. %.4f\n", lo, hi)
		if len(e.vectors) > 0 && sample > 0 {
			fmt.Fprintf(w, "    Row 0:       %s\n", formatSample(e.vectors[0], sample))
		}
	}

	fmt.Fprintf(w, "\n%s\n", strings.Repeat("─", 80))
	fmt.Fprintf(w, "Summary: %d corpus%s\n", len(entries), plural(len(entries), "", "es"))
}

// normRange returns the smallest and largest row norm. Unit-normalized rows
// show 1.0000 for both.
func normRange(rows [][]float32) (float64, float64) {
	if len(rows) == 0 {
		return 0, 0
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, row := range rows {
		var sum float64
		for _, x := range row {
			sum += float64(x) * float64(x)
		}
		n := math.Sqrt(sum)
		lo, hi = math.Min(lo, n), math.Max(hi, n)
	}
	return lo, hi
}

func formatSample(v []float32, n int) string {
	if len(v) == 0 {
		return "[]"
	}
	n = min(n, len(v))
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("%+.4f", v[i])
	}
	suffix := ""
	if len(v) > n {
		suffix = " ..."
	}
	return "[" + strings.Join(parts, ", ") + suffix + "]"
}

func formatBytes(n int) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}

func plural(n int, singular, pluralSuffix string) string {
	if n == 1 {
		return singular
	}
	return pluralSuffix
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "catalog_cache_dump: "+format+"\n", args...)
	os.Exit(1)
}
