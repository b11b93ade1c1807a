package badger

import (
	"context"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/quarry/core"
	"github.com/poiesic/quarry/storage"
)

// DocumentRepository implements storage.DocumentRepository for BadgerDB.
type DocumentRepository struct {
	backend *Backend
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(backend *Backend) *DocumentRepository {
	return &DocumentRepository{backend: backend}
}

// Close is a no-op; the backend owns all resources.
func (r *DocumentRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *DocumentRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// AddDocument stores a document and its chunks in one transaction.
func (r *DocumentRepository) AddDocument(ctx context.Context, doc *core.Document, chunks ...*core.Chunk) (*core.Document, error) {
	if err := core.ValidateDocument(doc); err != nil {
		return nil, err
	}
	for _, chunk := range chunks {
		if chunk != nil && chunk.CompanyId == 0 {
			chunk.CompanyId = doc.CompanyId
		}
		if err := core.ValidateChunk(chunk); err != nil {
			return nil, err
		}
	}

	err := r.backend.Update(ctx, func(tx *badger.Txn) error {
		nextID, err := r.backend.NextID(documentSeq)
		if err != nil {
			return err
		}
		doc.Id = core.ID(nextID)
		doc.InsertedAt = time.Now().UTC()

		if err := writeRecord(tx, makeDocumentKey(doc.Id), doc, storage.MarshalDocument); err != nil {
			return err
		}
		if doc.ResourceId != 0 {
			if err := tx.Set(makeDocumentResourceKey(doc.ResourceId, doc.PageNumber, doc.Id), storage.MarshalID(doc.Id)); err != nil {
				return err
			}
		}
		if err := tx.Set(makeDocumentCompanyKey(doc.CompanyId, doc.Id), storage.MarshalID(doc.Id)); err != nil {
			return err
		}

		for i, chunk := range chunks {
			chunk.DocumentId = doc.Id
			chunk.Seq = i
			if err := insertChunk(r.backend, tx, chunk); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// insertChunk assigns an ID to chunk and writes it with its document index entry.
func insertChunk(backend *Backend, tx *badger.Txn, chunk *core.Chunk) error {
	nextID, err := backend.NextID(chunkSeq)
	if err != nil {
		return err
	}
	chunk.Id = core.ID(nextID)
	chunk.InsertedAt = time.Now().UTC()
	chunk.UpdatedAt = chunk.InsertedAt

	if err := writeRecord(tx, makeChunkKey(chunk.Id), chunk, storage.MarshalChunk); err != nil {
		return err
	}
	return tx.Set(makeChunkDocumentKey(chunk.DocumentId, chunk.Seq, chunk.Id), storage.MarshalID(chunk.Id))
}

// GetDocument retrieves a document by ID.
func (r *DocumentRepository) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	var result *core.Document
	err := r.backend.View(ctx, func(tx *badger.Txn) error {
		var err error
		result, err = readRecord(tx, makeDocumentKey(id), storage.UnmarshalDocument)
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

// GetDocuments retrieves multiple documents by their IDs.
func (r *DocumentRepository) GetDocuments(ctx context.Context, ids ...core.ID) ([]*core.Document, error) {
	var results []*core.Document
	err := r.backend.View(ctx, func(tx *badger.Txn) error {
		var err error
		results, err = readDocuments(tx, ids)
		return err
	})
	return results, err
}

// ListByResource returns a resource's documents in page order.
func (r *DocumentRepository) ListByResource(ctx context.Context, resourceID core.ID) ([]*core.Document, error) {
	var results []*core.Document
	err := r.backend.View(ctx, func(tx *badger.Txn) error {
		ids := collectIDs(tx, compositeKey(documentResPrefix, uint64(resourceID)))
		var err error
		results, err = readDocuments(tx, ids)
		return err
	})
	return results, err
}

// ListByCompany returns a company's documents ordered by ID.
func (r *DocumentRepository) ListByCompany(ctx context.Context, companyID core.ID) ([]*core.Document, error) {
	var results []*core.Document
	err := r.backend.View(ctx, func(tx *badger.Txn) error {
		ids := collectIDs(tx, compositeKey(documentCompanyPrefix, uint64(companyID)))
		var err error
		results, err = readDocuments(tx, ids)
		return err
	})
	return results, err
}

// ListByFilePath scans all documents for a file path fragment.
func (r *DocumentRepository) ListByFilePath(ctx context.Context, fragment string) ([]*core.Document, error) {
	var results []*core.Document
	err := r.backend.View(ctx, func(tx *badger.Txn) error {
		return ScanPrefix(tx, []byte(documentPrefix), func(_, val []byte) error {
			doc, err := storage.UnmarshalDocument(val)
			if err != nil {
				return err
			}
			if strings.Contains(doc.FilePath, fragment) {
				results = append(results, doc)
			}
			return nil
		})
	})
	return results, err
}

// ListWithoutChunks returns documents with no chunk index entries.
func (r *DocumentRepository) ListWithoutChunks(ctx context.Context) ([]*core.Document, error) {
	var results []*core.Document
	err := r.backend.View(ctx, func(tx *badger.Txn) error {
		ids := collectIDs(tx, []byte(documentPrefix))
		for _, id := range ids {
			if hasPrefix(tx, compositeKey(chunkDocumentPrefix, uint64(id))) {
				continue
			}
			doc, err := readRecord(tx, makeDocumentKey(id), storage.UnmarshalDocument)
			if err != nil {
				return err
			}
			if doc != nil {
				results = append(results, doc)
			}
		}
		return nil
	})
	return results, err
}

// DeleteByResource removes a resource's documents, their chunks and all index entries.
func (r *DocumentRepository) DeleteByResource(ctx context.Context, resourceID core.ID) (int, error) {
	deleted := 0
	err := r.backend.Update(ctx, func(tx *badger.Txn) error {
		docIDs := collectIDs(tx, compositeKey(documentResPrefix, uint64(resourceID)))
		for _, id := range docIDs {
			doc, err := readRecord(tx, makeDocumentKey(id), storage.UnmarshalDocument)
			if err != nil {
				return err
			}
			if doc == nil {
				continue
			}

			chunkKeys := collectKeys(tx, compositeKey(chunkDocumentPrefix, uint64(id)))
			for _, key := range chunkKeys {
				if err := tx.Delete(makeChunkKey(lastPart(key))); err != nil {
					return err
				}
				if err := tx.Delete(key); err != nil {
					return err
				}
			}

			if err := tx.Delete(makeDocumentResourceKey(resourceID, doc.PageNumber, id)); err != nil {
				return err
			}
			if err := tx.Delete(makeDocumentCompanyKey(doc.CompanyId, id)); err != nil {
				return err
			}
			if err := tx.Delete(makeDocumentKey(id)); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// readDocuments loads documents by ID, skipping any that no longer exist.
func readDocuments(tx *badger.Txn, ids []core.ID) ([]*core.Document, error) {
	results := make([]*core.Document, 0, len(ids))
	for _, id := range ids {
		doc, err := readRecord(tx, makeDocumentKey(id), storage.UnmarshalDocument)
		if err != nil {
			return nil, err
		}
		if doc != nil {
			results = append(results, doc)
		}
	}
	return results, nil
}
