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


package indexing

import (
	"context"
	"fmt"

	"github.com/poiesic/quarry/ai"
	"github.com/poiesic/quarry/retry"
	"github.com/poiesic/quarry/vectorstore"
)

// BatchProcessor embeds a batch of payloads and upserts them into one index.
type BatchProcessor struct {
	embedder  ai.Embedder
	store     vectorstore.Store
	indexName string
	policy    retry.Policy
}

// NewBatchProcessor creates a new batch processor.
func NewBatchProcessor(embedder ai.Embedder, store vectorstore.Store, indexName string, policy retry.Policy) *BatchProcessor {
	return &BatchProcessor{
		embedder:  embedder,
		store:     store,
		indexName: indexName,
		policy:    policy,
	}
}

// Process fills in the vector of every record from its payload and upserts
// the batch. Embedding and upsert are retried separately, so a flaky index
// does not cost a second round of embeddings.
func (bp *BatchProcessor) Process(ctx context.Context, records []vectorstore.Record) error {
	if len(records) == 0 {
		return nil
	}

	texts := make([]string, len(records))
	for i, record := range records {
		texts[i] = record.Payload
	}

	var embeddings [][]float32
	err := retry.Do(ctx, bp.policy, func(ctx context.Context) error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	})
	if err != nil {
		return fmt.Errorf("embed batch: %w", err)
	}
	if len(embeddings) != len(records) {
		return fmt.Errorf("%w: expected %d, got %d", ErrEmbeddingCountMismatch, len(records), len(embeddings))
	}

	for i := range records {
		records[i].Vector = embeddings[i]
	}

	err = retry.Do(ctx, bp.policy, func(ctx context.Context) error {
		return bp.store.Upsert(ctx, bp.indexName, records)
	})
	if err != nil {
		return fmt.Errorf("upsert batch: %w", err)
	}
	return nil
}
