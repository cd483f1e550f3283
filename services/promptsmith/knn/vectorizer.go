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
	"math"

	"github.com/AleutianAI/promptsmith/services/promptsmith/textutil"
)

// =============================================================================
// Vectorizer Interfaces
// =============================================================================

// Vectorizer turns a catalog into a fitted Index.
//
// # Description
//
// Fit is called once per catalog (re)load; the Provider never calls it on
// the query path. Implementations that call external services should wrap
// connection and timeout failures in *TransientError.
type Vectorizer interface {
	// Name identifies the vectorizer in logs, metrics and cache keys.
	Name() string

	// Fit vectorizes docs, one row per doc in the same order.
	Fit(ctx context.Context, docs []string) (Index, error)
}

// Index is a fitted vector space over one catalog.
//
// # Thread Safety
//
// Implementations must be immutable after Fit and safe for concurrent use.
type Index interface {
	// Vectors returns the unit-normalized catalog matrix. Callers must not
	// modify it.
	Vectors() [][]float32

	// Embed projects query text into the same space, unit-normalized. Text
	// sharing nothing with the catalog may return a zero vector.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// =============================================================================
// TFIDFVectorizer
// =============================================================================

// TFIDFVectorizer is the default, dependency-free vectorizer.
//
// # Description
//
// Builds a vocabulary from the catalog documents (order of first
// appearance), weights terms with sublinear TF times Lucene-smoothed IDF,
//
//	idf(t) = ln((N+1)/(df(t)+1)) + 1
//
// and L2-normalizes each row so cosine similarity is a dot product. Query
// terms outside the vocabulary are ignored. Same catalog and query always
// give the same vector.
type TFIDFVectorizer struct{}

// NewTFIDFVectorizer returns the default vectorizer.
func NewTFIDFVectorizer() *TFIDFVectorizer { return &TFIDFVectorizer{} }

func (v *TFIDFVectorizer) Name() string { return "tfidf" }

func (v *TFIDFVectorizer) Fit(ctx context.Context, docs []string) (Index, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vocab := make(map[string]int)
	var df []int
	docTerms := make([][]string, len(docs))
	for i, doc := range docs {
		terms := textutil.Tokenize(doc)
		docTerms[i] = terms
		seen := make(map[int]bool, len(terms))
		for _, t := range terms {
			idx, ok := vocab[t]
			if !ok {
				idx = len(df)
				vocab[t] = idx
				df = append(df, 0)
			}
			if !seen[idx] {
				seen[idx] = true
				df[idx]++
			}
		}
	}

	n := float64(len(docs))
	idf := make([]float64, len(df))
	for i, d := range df {
		idf[i] = math.Log((n+1)/float64(d+1)) + 1.0
	}

	idx := &tfidfIndex{vocab: vocab, idf: idf, vectors: make([][]float32, len(docs))}
	for i, terms := range docTerms {
		idx.vectors[i] = idx.weigh(terms)
	}
	return idx, nil
}

type tfidfIndex struct {
	vocab   map[string]int
	idf     []float64
	vectors [][]float32
}

func (x *tfidfIndex) Vectors() [][]float32 { return x.vectors }

func (x *tfidfIndex) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return x.weigh(textutil.Tokenize(text)), nil
}

// weigh builds a unit-normalized TF-IDF row for terms.
func (x *tfidfIndex) weigh(terms []string) []float32 {
	counts := make(map[int]int, len(terms))
	for _, t := range terms {
		if idx, ok := x.vocab[t]; ok {
			counts[idx]++
		}
	}
	vec := make([]float32, len(x.idf))
	for idx, c := range counts {
		vec[idx] = float32((1 + math.Log(float64(c))) * x.idf[idx])
	}
	normalize(vec)
	return vec
}

// =============================================================================
// Vector Helpers
// =============================================================================

// l2Norm computes the L2 (Euclidean) norm of a float32 vector.
func l2Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// normalize scales v to unit length in place. Zero vectors are left as is.
func normalize(v []float32) {
	norm := l2Norm(v)
	if norm == 0 {
		return
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}

// dotProduct computes the dot product of two equal-length vectors.
func dotProduct(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
