// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package vectorstore defines the nearest-neighbor index capability used for
// retrieval. The index holds derived data only: every record can be rebuilt
// from the stored documents and chunks.
package vectorstore

import (
	"context"
	"errors"
	"strings"

	"github.com/poiesic/quarry/core"
)

// Metric is the similarity function an index ranks by.
type Metric string

// MetricCosine ranks by cosine similarity, higher is closer.
const MetricCosine Metric = "cosine"

// DefaultIndex is the index name used when none is configured.
const DefaultIndex = "chunks"

var (
	// ErrIndexNotFound indicates an upsert into an index that was never created.
	ErrIndexNotFound = errors.New("vector index not found")

	// ErrDimensionMismatch indicates a vector whose length differs from the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrUnsupportedMetric indicates a metric the store cannot rank by.
	ErrUnsupportedMetric = errors.New("unsupported similarity metric")

	// ErrInvalidIndexName indicates an empty or malformed index name.
	ErrInvalidIndexName = errors.New("invalid index name")
)

// Record is one entry of the index, keyed by chunk ID.
type Record struct {
	Id       string
	Vector   []float32
	Payload  string
	Metadata core.Citation
}

// Match is a record returned by a query together with its score.
type Match struct {
	Id       string
	Payload  string
	Metadata core.Citation
	Score    float32
}

// Store is a vector index capability.
// Implementations must be thread-safe for concurrent use.
type Store interface {
	// EnsureIndex creates the named index if it does not exist. Calling it for
	// an existing index with the same dimension is a no-op.
	EnsureIndex(ctx context.Context, name string, dimension int, metric Metric) error

	// Upsert writes records, replacing any record with the same Id.
	// Returns ErrIndexNotFound if the index does not exist.
	Upsert(ctx context.Context, name string, records []Record) error

	// Query returns up to k records closest to vector, best first.
	// A missing or empty index yields an empty result, not an error.
	Query(ctx context.Context, name string, vector []float32, k int) ([]Match, error)

	// Close releases resources held by the store.
	Close() error
}

// ValidateIndexName checks that name is usable as an index or collection name:
// non-empty, letters, digits and underscores only.
func ValidateIndexName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidIndexName
	}
	for _, r := range name {
		if !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return ErrInvalidIndexName
		}
	}
	return nil
}
