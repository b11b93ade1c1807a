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
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/quarry/ai"
	"github.com/poiesic/quarry/core"
	"github.com/poiesic/quarry/retry"
	"github.com/poiesic/quarry/storage"
	"github.com/poiesic/quarry/vectorstore"
)

// ProcessorType identifies indexing progress in the checkpoint store.
const ProcessorType = "indexing"

// Indexer rebuilds the vector index from the chunk store.
type Indexer struct {
	chunks      storage.ChunkRepository
	documents   storage.DocumentRepository
	resources   storage.ResourceRepository
	checkpoints storage.CheckpointRepository
	embedder    ai.Embedder
	store       vectorstore.Store
	dimension   int
	indexName   string
	batchSize   int
	policy      retry.Policy
	progress    io.Writer
	logger      *slog.Logger
}

// Option configures an Indexer.
type Option func(*Indexer) error

// WithIndexName sets the target index. Default is vectorstore.DefaultIndex.
func WithIndexName(name string) Option {
	return func(ix *Indexer) error {
		if err := vectorstore.ValidateIndexName(name); err != nil {
			return err
		}
		ix.indexName = name
		return nil
	}
}

// WithBatchSize sets how many chunks are embedded and upserted together.
// Default is DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(ix *Indexer) error {
		if n < 1 {
			return fmt.Errorf("%w: batch size must be positive", core.ErrInvalidArgument)
		}
		ix.batchSize = n
		return nil
	}
}

// WithRetryPolicy sets how failed embedding and upsert calls are retried.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(ix *Indexer) error {
		if policy.MaxAttempts <= 0 {
			return retry.ErrInvalidMaxAttempts
		}
		ix.policy = policy
		return nil
	}
}

// WithResources enables setting the Indexed flag on fully indexed resources.
func WithResources(repo storage.ResourceRepository) Option {
	return func(ix *Indexer) error {
		ix.resources = repo
		return nil
	}
}

// WithCheckpoints lets an interrupted run resume after the last page that
// was indexed without failures.
func WithCheckpoints(repo storage.CheckpointRepository) Option {
	return func(ix *Indexer) error {
		ix.checkpoints = repo
		return nil
	}
}

// WithProgress writes a progress line to w while indexing.
func WithProgress(w io.Writer) Option {
	return func(ix *Indexer) error {
		ix.progress = w
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(ix *Indexer) error {
		if logger == nil {
			logger = slog.Default()
		}
		ix.logger = logger
		return nil
	}
}

// NewIndexer creates an Indexer writing vectors of the given dimension.
func NewIndexer(
	chunks storage.ChunkRepository,
	documents storage.DocumentRepository,
	embedder ai.Embedder,
	store vectorstore.Store,
	dimension int,
	opts ...Option,
) (*Indexer, error) {
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if store == nil {
		return nil, ErrStoreRequired
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive", core.ErrInvalidArgument)
	}

	ix := &Indexer{
		chunks:    chunks,
		documents: documents,
		embedder:  embedder,
		store:     store,
		dimension: dimension,
		indexName: vectorstore.DefaultIndex,
		batchSize: DefaultBatchSize,
		policy:    retry.DefaultPolicy(),
		logger:    slog.Default().With("component", "indexer"),
	}
	for _, opt := range opts {
		if err := opt(ix); err != nil {
			return nil, err
		}
	}
	return ix, nil
}

// Payload is the text embedded and stored for a chunk.
func Payload(chunk *core.Chunk) string {
	return chunk.Context + "\n\n" + chunk.Text
}

// CitationFor builds the metadata stored with a chunk's vector.
func CitationFor(chunk *core.Chunk, doc *core.Document) core.Citation {
	return core.Citation{
		ChunkId:    chunk.Id,
		DocumentId: doc.Id,
		CompanyId:  doc.CompanyId,
		FilePath:   doc.FilePath,
		PageNumber: doc.PageNumber,
	}
}

// Excluded reports whether a document's file path matches the exclusion filter.
// An empty filter excludes nothing.
func Excluded(doc *core.Document, filter string) bool {
	return filter != "" && strings.Contains(doc.FilePath, filter)
}

// Failure records a batch that could not be indexed.
type Failure struct {
	ChunkIds []core.ID
	Err      error
}

// Result summarizes a Reindex run.
type Result struct {
	RunId            string
	ChunksIndexed    int
	Excluded         int
	Orphaned         int
	Failed           []Failure
	ResourcesIndexed int
	Duration         time.Duration
}

// runState tracks per-resource completeness across pages.
type runState struct {
	seen       map[core.ID]bool
	incomplete map[core.ID]bool
}

// Reindex embeds and upserts every chunk whose document does not match
// excludePath. The index is created first if it does not exist.
func (ix *Indexer) Reindex(ctx context.Context, excludePath string) (Result, error) {
	start := time.Now()
	result := Result{RunId: uuid.NewString()}
	logger := ix.logger.With("run_id", result.RunId, "index", ix.indexName)

	if err := ix.store.EnsureIndex(ctx, ix.indexName, ix.dimension, vectorstore.MetricCosine); err != nil {
		return result, fmt.Errorf("ensure index: %w", err)
	}

	var afterID core.ID
	if ix.checkpoints != nil {
		checkpoint, err := ix.checkpoints.LoadCheckpoint(ctx, ProcessorType)
		if err != nil {
			return result, fmt.Errorf("load checkpoint: %w", err)
		}
		if checkpoint != nil {
			afterID = checkpoint.LastId
			logger.Info("resuming from checkpoint", "after_chunk_id", afterID)
		}
	}

	total, err := ix.chunks.CountChunks(ctx)
	if err != nil {
		return result, fmt.Errorf("count chunks: %w", err)
	}
	logger.Info("starting reindex", "chunks", total, "exclude", excludePath, "batch_size", ix.batchSize)

	tracker := NewProgressTracker(ix.progress, "chunks", total, ix.batchSize)
	tracker.Start()

	processor := NewBatchProcessor(ix.embedder, ix.store, ix.indexName, ix.policy)
	state := runState{seen: map[core.ID]bool{}, incomplete: map[core.ID]bool{}}
	docs := map[core.ID]*core.Document{}

	iterator := NewChunkIterator(ix.chunks, ix.batchSize)
	err = iterator.ForEach(ctx, afterID, func(page []*core.Chunk) error {
		if err := ix.loadDocuments(ctx, page, docs); err != nil {
			return err
		}

		records := make([]vectorstore.Record, 0, len(page))
		ids := make([]core.ID, 0, len(page))
		batchResources := map[core.ID]bool{}
		for _, chunk := range page {
			doc := docs[chunk.DocumentId]
			if doc == nil {
				logger.Warn("parent document not found, skipping chunk",
					"chunk_id", chunk.Id, "document_id", chunk.DocumentId, "err", core.ErrDataIntegrity)
				result.Orphaned++
				continue
			}
			if doc.ResourceId != 0 {
				state.seen[doc.ResourceId] = true
			}
			if Excluded(doc, excludePath) {
				result.Excluded++
				if doc.ResourceId != 0 {
					state.incomplete[doc.ResourceId] = true
				}
				continue
			}
			records = append(records, vectorstore.Record{
				Id:       chunk.Id.String(),
				Payload:  Payload(chunk),
				Metadata: CitationFor(chunk, doc),
			})
			ids = append(ids, chunk.Id)
			if doc.ResourceId != 0 {
				batchResources[doc.ResourceId] = true
			}
		}

		if err := processor.Process(ctx, records); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("failed to index batch", "chunks", len(ids), "first_chunk_id", page[0].Id, "err", err)
			result.Failed = append(result.Failed, Failure{ChunkIds: ids, Err: err})
			for id := range batchResources {
				state.incomplete[id] = true
			}
		} else {
			result.ChunksIndexed += len(records)
		}
		tracker.Increment(len(page))

		if ix.checkpoints != nil && len(result.Failed) == 0 {
			checkpoint := &core.Checkpoint{ProcessorType: ProcessorType, LastId: page[len(page)-1].Id}
			if err := ix.checkpoints.SaveCheckpoint(ctx, checkpoint); err != nil {
				return fmt.Errorf("save checkpoint: %w", err)
			}
		}
		return nil
	})
	tracker.Finish()
	result.Duration = time.Since(start)
	if err != nil {
		return result, err
	}

	if ix.checkpoints != nil && len(result.Failed) == 0 {
		if err := ix.checkpoints.DeleteCheckpoint(ctx, ProcessorType); err != nil {
			return result, fmt.Errorf("delete checkpoint: %w", err)
		}
	}

	if err := ix.markIndexed(ctx, state, &result); err != nil {
		return result, err
	}

	logger.Info("reindex complete",
		"indexed", result.ChunksIndexed,
		"excluded", result.Excluded,
		"orphaned", result.Orphaned,
		"failed_batches", len(result.Failed),
		"resources_indexed", result.ResourcesIndexed,
		"duration", result.Duration.Round(time.Millisecond))
	return result, nil
}

// loadDocuments adds the parents of page that are not cached yet to docs.
// Missing parents are cached as nil so they are looked up only once.
func (ix *Indexer) loadDocuments(ctx context.Context, page []*core.Chunk, docs map[core.ID]*core.Document) error {
	var missing []core.ID
	for _, chunk := range page {
		if _, ok := docs[chunk.DocumentId]; !ok {
			docs[chunk.DocumentId] = nil
			missing = append(missing, chunk.DocumentId)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	loaded, err := ix.documents.GetDocuments(ctx, missing...)
	if err != nil {
		return fmt.Errorf("load documents: %w", err)
	}
	for _, doc := range loaded {
		docs[doc.Id] = doc
	}
	return nil
}

func (ix *Indexer) markIndexed(ctx context.Context, state runState, result *Result) error {
	if ix.resources == nil {
		return nil
	}
	var ids []core.ID
	for id := range state.seen {
		if !state.incomplete[id] {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	slices.Sort(ids)
	if err := ix.resources.MarkIndexed(ctx, ids...); err != nil {
		return fmt.Errorf("mark resources indexed: %w", err)
	}
	result.ResourcesIndexed = len(ids)
	return nil
}
