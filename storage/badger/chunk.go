package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/quarry/core"
	"github.com/poiesic/quarry/storage"
)

// ChunkRepository implements storage.ChunkRepository for BadgerDB.
type ChunkRepository struct {
	backend *Backend
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a new ChunkRepository.
func NewChunkRepository(backend *Backend) *ChunkRepository {
	return &ChunkRepository{backend: backend}
}

// Close is a no-op; the backend owns all resources.
func (r *ChunkRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *ChunkRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// AddChunks appends chunks after any chunks the document already has.
func (r *ChunkRepository) AddChunks(ctx context.Context, documentID core.ID, chunks ...*core.Chunk) ([]*core.Chunk, error) {
	err := r.backend.Update(ctx, func(tx *badger.Txn) error {
		doc, err := readRecord(tx, makeDocumentKey(documentID), storage.UnmarshalDocument)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}

		next := len(collectIDs(tx, compositeKey(chunkDocumentPrefix, uint64(documentID))))
		for _, chunk := range chunks {
			if chunk != nil && chunk.CompanyId == 0 {
				chunk.CompanyId = doc.CompanyId
			}
			if err := core.ValidateChunk(chunk); err != nil {
				return err
			}
			chunk.DocumentId = documentID
			chunk.Seq = next
			next++
			if err := insertChunk(r.backend, tx, chunk); err != nil {
				return err
			}
		}
		return nil
	})
	return chunks, err
}

// GetChunk retrieves a chunk by ID.
func (r *ChunkRepository) GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error) {
	var result *core.Chunk
	err := r.backend.View(ctx, func(tx *badger.Txn) error {
		var err error
		result, err = readRecord(tx, makeChunkKey(id), storage.UnmarshalChunk)
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	})
	return result, err
}

// ListByDocument returns a document's chunks ordered by their position in the page text.
func (r *ChunkRepository) ListByDocument(ctx context.Context, documentID core.ID) ([]*core.Chunk, error) {
	var results []*core.Chunk
	err := r.backend.View(ctx, func(tx *badger.Txn) error {
		ids := collectIDs(tx, compositeKey(chunkDocumentPrefix, uint64(documentID)))
		results = make([]*core.Chunk, 0, len(ids))
		for _, id := range ids {
			chunk, err := readRecord(tx, makeChunkKey(id), storage.UnmarshalChunk)
			if err != nil {
				return err
			}
			if chunk != nil {
				results = append(results, chunk)
			}
		}
		return nil
	})
	return results, err
}

// ListChunks pages through all chunks in ID order.
func (r *ChunkRepository) ListChunks(ctx context.Context, afterID core.ID, limit int) ([]*core.Chunk, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidQuery
	}

	var results []*core.Chunk
	err := r.backend.View(ctx, func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(makeChunkKey(afterID + 1)); iter.Valid() && len(results) < limit; iter.Next() {
			var chunk *core.Chunk
			err := iter.Item().Value(func(val []byte) error {
				var err error
				chunk, err = storage.UnmarshalChunk(val)
				return err
			})
			if err != nil {
				return err
			}
			results = append(results, chunk)
		}
		return nil
	})
	return results, err
}

// CountChunks counts chunk keys without loading values.
func (r *ChunkRepository) CountChunks(ctx context.Context) (int, error) {
	count := 0
	err := r.backend.View(ctx, func(tx *badger.Txn) error {
		count = len(collectIDs(tx, []byte(chunkPrefix)))
		return nil
	})
	return count, err
}

// UpdateContext overwrites the context of a chunk.
func (r *ChunkRepository) UpdateContext(ctx context.Context, id core.ID, chunkContext string) error {
	return r.backend.Update(ctx, func(tx *badger.Txn) error {
		key := makeChunkKey(id)
		chunk, err := readRecord(tx, key, storage.UnmarshalChunk)
		if err != nil {
			return err
		}
		if chunk == nil {
			return storage.ErrNotFound
		}
		chunk.Context = chunkContext
		chunk.UpdatedAt = time.Now().UTC()
		return writeRecord(tx, key, chunk, storage.MarshalChunk)
	})
}
