// Package badger implements vectorstore.Store on the BadgerDB backend used
// for the rest of the data. Queries scan the whole index, which suits
// collections of up to a few hundred thousand chunks.
package badger

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/bytedance/sonic"
	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/poiesic/quarry/core"
	kv "github.com/poiesic/quarry/storage/badger"
	"github.com/poiesic/quarry/vectorstore"
)

const (
	indexPrefix  = "vi:"
	recordPrefix = "vr:"
)

type indexMeta struct {
	Dimension int                `json:"dimension"`
	Metric    vectorstore.Metric `json:"metric"`
}

type storedRecord struct {
	Id       string        `json:"id"`
	Vector   []float32     `json:"vector"`
	Payload  string        `json:"payload"`
	Metadata core.Citation `json:"metadata"`
}

// Store keeps normalized vectors under their own key prefixes.
type Store struct {
	backend *kv.Backend
	owned   bool
	logger  *slog.Logger
}

var _ vectorstore.Store = (*Store)(nil)

// New creates a store on a backend shared with the repositories.
// Close leaves the backend open.
func New(backend *kv.Backend) *Store {
	return &Store{
		backend: backend,
		logger:  slog.Default().With("component", "vectorstore-badger"),
	}
}

// Open creates a store with its own backend at path.
// If inMemory is true, path is ignored.
func Open(path string, inMemory bool) (*Store, error) {
	backend, err := kv.OpenBackend(path, inMemory)
	if err != nil {
		return nil, err
	}
	s := New(backend)
	s.owned = true
	return s, nil
}

func metaKey(name string) []byte {
	return []byte(indexPrefix + name)
}

func recordKeyPrefix(name string) []byte {
	return []byte(recordPrefix + name + ":")
}

func recordKey(name, id string) []byte {
	return append(recordKeyPrefix(name), id...)
}

func readMeta(tx *badgerdb.Txn, name string) (*indexMeta, error) {
	item, err := tx.Get(metaKey(name))
	if err == badgerdb.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var meta indexMeta
	err = item.Value(func(val []byte) error {
		return sonic.Unmarshal(val, &meta)
	})
	return &meta, err
}

// EnsureIndex creates the index metadata if it does not exist yet.
func (s *Store) EnsureIndex(ctx context.Context, name string, dimension int, metric vectorstore.Metric) error {
	if err := vectorstore.ValidateIndexName(name); err != nil {
		return err
	}
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", core.ErrInvalidArgument)
	}
	if metric != vectorstore.MetricCosine {
		return fmt.Errorf("%w: %s", vectorstore.ErrUnsupportedMetric, metric)
	}

	return s.backend.Update(ctx, func(tx *badgerdb.Txn) error {
		meta, err := readMeta(tx, name)
		if err != nil {
			return err
		}
		if meta != nil {
			if meta.Dimension != dimension {
				return fmt.Errorf("%w: index %q has dimension %d, requested %d",
					vectorstore.ErrDimensionMismatch, name, meta.Dimension, dimension)
			}
			return nil
		}

		value, err := sonic.Marshal(indexMeta{Dimension: dimension, Metric: metric})
		if err != nil {
			return err
		}
		s.logger.Info("created vector index", "index", name, "dimension", dimension, "metric", metric)
		return tx.Set(metaKey(name), value)
	})
}

// Upsert writes records, replacing existing records with the same Id.
func (s *Store) Upsert(ctx context.Context, name string, records []vectorstore.Record) error {
	if len(records) == 0 {
		return nil
	}
	return s.backend.Update(ctx, func(tx *badgerdb.Txn) error {
		meta, err := readMeta(tx, name)
		if err != nil {
			return err
		}
		if meta == nil {
			return fmt.Errorf("%w: %s", vectorstore.ErrIndexNotFound, name)
		}

		for _, record := range records {
			if strings.TrimSpace(record.Id) == "" {
				return fmt.Errorf("%w: record id is empty", core.ErrInvalidArgument)
			}
			if len(record.Vector) != meta.Dimension {
				return fmt.Errorf("%w: record %s has %d values, index has %d",
					vectorstore.ErrDimensionMismatch, record.Id, len(record.Vector), meta.Dimension)
			}
			value, err := sonic.Marshal(storedRecord{
				Id:       record.Id,
				Vector:   vectorstore.Normalize(record.Vector),
				Payload:  record.Payload,
				Metadata: record.Metadata,
			})
			if err != nil {
				return err
			}
			if err := tx.Set(recordKey(name, record.Id), value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Query ranks every record in the index by cosine similarity to vector.
func (s *Store) Query(ctx context.Context, name string, vector []float32, k int) ([]vectorstore.Match, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", core.ErrInvalidArgument)
	}

	query := vectorstore.Normalize(vector)
	matches := []vectorstore.Match{}
	err := s.backend.View(ctx, func(tx *badgerdb.Txn) error {
		meta, err := readMeta(tx, name)
		if err != nil || meta == nil {
			return err
		}
		if len(vector) != meta.Dimension {
			return fmt.Errorf("%w: query has %d values, index has %d",
				vectorstore.ErrDimensionMismatch, len(vector), meta.Dimension)
		}

		return kv.ScanPrefix(tx, recordKeyPrefix(name), func(_, val []byte) error {
			var record storedRecord
			if err := sonic.Unmarshal(val, &record); err != nil {
				return err
			}
			matches = append(matches, vectorstore.Match{
				Id:       record.Id,
				Payload:  record.Payload,
				Metadata: record.Metadata,
				Score:    vectorstore.Dot(query, record.Vector),
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(matches, func(a, b vectorstore.Match) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return strings.Compare(a.Id, b.Id)
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Count returns the number of records in an index.
func (s *Store) Count(ctx context.Context, name string) (int, error) {
	count := 0
	err := s.backend.View(ctx, func(tx *badgerdb.Txn) error {
		return kv.ScanPrefix(tx, recordKeyPrefix(name), func(_, _ []byte) error {
			count++
			return nil
		})
	})
	return count, err
}

// Close closes the backend if the store opened it.
func (s *Store) Close() error {
	if s.owned {
		return s.backend.Close()
	}
	return nil
}
