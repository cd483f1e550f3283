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
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// GCSSource reads a catalog object from Google Cloud Storage.
//
// The object format follows its name the same way FileSource does.
type GCSSource struct {
	Bucket string
	Object string
	Format Format

	open func(ctx context.Context) (io.ReadCloser, error)
}

// NewGCSSource returns a source reading gs://bucket/object with client.
// The caller owns the client.
func NewGCSSource(client *storage.Client, bucket, object string) *GCSSource {
	return &GCSSource{
		Bucket: bucket,
		Object: object,
		Format: FormatForPath(object),
		open: func(ctx context.Context) (io.ReadCloser, error) {
			return client.Bucket(bucket).Object(object).NewReader(ctx)
		},
	}
}

func (s *GCSSource) Name() string {
	return fmt.Sprintf("gs://%s/%s", s.Bucket, s.Object)
}

func (s *GCSSource) Records(ctx context.Context) ([]any, error) {
	r, err := s.open(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return nil, &CatalogError{Kind: CatalogNotFound, Source: s.Name(), Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("knn: open %s: %w", s.Name(), err)
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(io.LimitReader(r, maxCatalogSize+1))
	if err != nil {
		return nil, fmt.Errorf("knn: read %s: %w", s.Name(), err)
	}
	if len(data) > maxCatalogSize {
		return nil, &CatalogError{Kind: CatalogParseError, Source: s.Name(),
			Err: fmt.Errorf("catalog exceeds maximum size (%d bytes)", maxCatalogSize)}
	}
	return decodeCatalog(s.Name(), s.Format, data)
}
