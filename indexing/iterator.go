package indexing

import (
	"context"

	"github.com/poiesic/quarry/core"
	"github.com/poiesic/quarry/storage"
)

// DefaultBatchSize is the number of chunks embedded and upserted together.
const DefaultBatchSize = 100

// ChunkIterator pages through chunks in ID order.
type ChunkIterator struct {
	repo      storage.ChunkRepository
	batchSize int
}

// NewChunkIterator creates an iterator. A batchSize <= 0 uses DefaultBatchSize.
func NewChunkIterator(repo storage.ChunkRepository, batchSize int) *ChunkIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ChunkIterator{repo: repo, batchSize: batchSize}
}

// ForEach calls fn with successive pages of chunks whose ID is greater than afterID.
// Only one page is held in memory at a time. Iteration stops on the first
// error from fn; context cancellation is checked between pages.
func (it *ChunkIterator) ForEach(ctx context.Context, afterID core.ID, fn func([]*core.Chunk) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := it.repo.ListChunks(ctx, afterID, it.batchSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		if err := fn(page); err != nil {
			return err
		}
		if len(page) < it.batchSize {
			return nil
		}
		afterID = page[len(page)-1].Id
	}
}
