package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/quarry/core"
	"github.com/poiesic/quarry/storage"
)

// ResourceRepository implements storage.ResourceRepository for BadgerDB.
// A pending index key exists for exactly the resources that are not yet ingested.
type ResourceRepository struct {
	backend *Backend
}

var _ storage.ResourceRepository = (*ResourceRepository)(nil)

// NewResourceRepository creates a new ResourceRepository.
func NewResourceRepository(backend *Backend) *ResourceRepository {
	return &ResourceRepository{backend: backend}
}

// Close is a no-op; the backend owns all resources.
func (r *ResourceRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *ResourceRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// AddResources stores new resources and indexes them as pending.
func (r *ResourceRepository) AddResources(ctx context.Context, resources ...*core.Resource) ([]*core.Resource, error) {
	err := r.backend.Update(ctx, func(tx *badger.Txn) error {
		for _, resource := range resources {
			if err := core.ValidateResource(resource); err != nil {
				return err
			}

			var sourceKey []byte
			if resource.SourceLocation != "" {
				sourceKey = makeResourceSourceKey(resource.SourceLocation)
				if _, err := tx.Get(sourceKey); err == nil {
					return storage.ErrDuplicateKey
				} else if err != badger.ErrKeyNotFound {
					return err
				}
			}

			nextID, err := r.backend.NextID(resourceSeq)
			if err != nil {
				return err
			}
			resource.Id = core.ID(nextID)
			resource.Ingested = false
			resource.Indexed = false
			resource.InsertedAt = time.Now().UTC()
			resource.UpdatedAt = resource.InsertedAt

			if err := writeRecord(tx, makeResourceKey(resource.Id), resource, storage.MarshalResource); err != nil {
				return err
			}
			if err := tx.Set(makeResourcePendingKey(resource.Id), storage.MarshalID(resource.Id)); err != nil {
				return err
			}
			if err := tx.Set(makeResourceCompanyKey(resource.CompanyId, resource.Id), storage.MarshalID(resource.Id)); err != nil {
				return err
			}
			if sourceKey != nil {
				if err := tx.Set(sourceKey, storage.MarshalID(resource.Id)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	return resources, err
}

// GetResource retrieves a resource by ID.
func (r *ResourceRepository) GetResource(ctx context.Context, id core.ID) (*core.Resource, error) {
	var result *core.Resource
	err := r.backend.View(ctx, func(tx *badger.Txn) error {
		var err error
		result, err = readRecord(tx, makeResourceKey(id), storage.UnmarshalResource)
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

// FindBySourceLocation resolves a resource through the source location index.
func (r *ResourceRepository) FindBySourceLocation(ctx context.Context, source string) (*core.Resource, error) {
	var result *core.Resource
	err := r.backend.View(ctx, func(tx *badger.Txn) error {
		id, err := readIndexedID(tx, makeResourceSourceKey(source))
		if err != nil {
			return err
		}
		result, err = readRecord(tx, makeResourceKey(id), storage.UnmarshalResource)
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

// ListPending returns resources that still need ingestion, oldest first.
func (r *ResourceRepository) ListPending(ctx context.Context, limit int) ([]*core.Resource, error) {
	var results []*core.Resource
	err := r.backend.View(ctx, func(tx *badger.Txn) error {
		ids := collectIDs(tx, []byte(resourcePendingPrefix))
		if limit > 0 && len(ids) > limit {
			ids = ids[:limit]
		}
		var err error
		results, err = r.readResources(tx, ids)
		return err
	})
	return results, err
}

// ListByCompany returns every resource owned by a company.
func (r *ResourceRepository) ListByCompany(ctx context.Context, companyID core.ID) ([]*core.Resource, error) {
	var results []*core.Resource
	err := r.backend.View(ctx, func(tx *badger.Txn) error {
		ids := collectIDs(tx, compositeKey(resourceCompanyPrefix, uint64(companyID)))
		var err error
		results, err = r.readResources(tx, ids)
		return err
	})
	return results, err
}

// MarkIngested flips the ingested flag once and removes the resource from the pending index.
func (r *ResourceRepository) MarkIngested(ctx context.Context, id core.ID, checksum string) error {
	return r.backend.Update(ctx, func(tx *badger.Txn) error {
		resource, err := readRecord(tx, makeResourceKey(id), storage.UnmarshalResource)
		if err != nil {
			return err
		}
		if resource == nil {
			return storage.ErrNotFound
		}
		if resource.Ingested {
			return nil
		}

		resource.Ingested = true
		resource.Checksum = checksum
		resource.UpdatedAt = time.Now().UTC()
		if err := writeRecord(tx, makeResourceKey(id), resource, storage.MarshalResource); err != nil {
			return err
		}
		return tx.Delete(makeResourcePendingKey(id))
	})
}

// MarkIndexed sets the indexed flag on each resource.
func (r *ResourceRepository) MarkIndexed(ctx context.Context, ids ...core.ID) error {
	return r.backend.Update(ctx, func(tx *badger.Txn) error {
		for _, id := range ids {
			resource, err := readRecord(tx, makeResourceKey(id), storage.UnmarshalResource)
			if err != nil {
				return err
			}
			if resource == nil {
				return storage.ErrNotFound
			}
			if resource.Indexed {
				continue
			}
			resource.Indexed = true
			resource.UpdatedAt = time.Now().UTC()
			if err := writeRecord(tx, makeResourceKey(id), resource, storage.MarshalResource); err != nil {
				return err
			}
		}
		return nil
	})
}

// readResources loads resources by ID, skipping any that no longer exist.
func (r *ResourceRepository) readResources(tx *badger.Txn, ids []core.ID) ([]*core.Resource, error) {
	results := make([]*core.Resource, 0, len(ids))
	for _, id := range ids {
		resource, err := readRecord(tx, makeResourceKey(id), storage.UnmarshalResource)
		if err != nil {
			return nil, err
		}
		if resource != nil {
			results = append(results, resource)
		}
	}
	return results, nil
}
