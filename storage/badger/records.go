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


package badger

import (
	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/quarry/core"
	"github.com/poiesic/quarry/storage"
)

// readRecord reads and decodes the value stored at key.
// Returns nil, nil when the key does not exist.
func readRecord[T any](tx *badger.Txn, key []byte, decode func([]byte) (*T, error)) (*T, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var record *T
	err = item.Value(func(val []byte) error {
		var decodeErr error
		record, decodeErr = decode(val)
		return decodeErr
	})
	return record, err
}

// writeRecord encodes v and stores it at key.
func writeRecord[T any](tx *badger.Txn, key []byte, v *T, encode func(*T) ([]byte, error)) error {
	value, err := encode(v)
	if err != nil {
		return err
	}
	return tx.Set(key, value)
}

// readIndexedID resolves a unique index key to the ID it points at.
// Returns storage.ErrNotFound when the key does not exist.
func readIndexedID(tx *badger.Txn, key []byte) (core.ID, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return 0, storage.ErrNotFound
		}
		return 0, err
	}
	var id core.ID
	err = item.Value(func(val []byte) error {
		var decodeErr error
		id, decodeErr = storage.UnmarshalID(val)
		return decodeErr
	})
	return id, err
}

// collectKeys returns a copy of every key under prefix.
func collectKeys(tx *badger.Txn, prefix []byte) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var keys [][]byte
	for iter.Rewind(); iter.Valid(); iter.Next() {
		keys = append(keys, iter.Item().KeyCopy(nil))
	}
	return keys
}

// collectIDs returns the trailing ID of every key under prefix.
// The iterator is closed before returning so callers may read further in the same transaction.
func collectIDs(tx *badger.Txn, prefix []byte) []core.ID {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var ids []core.ID
	for iter.Rewind(); iter.Valid(); iter.Next() {
		ids = append(ids, lastPart(iter.Item().Key()))
	}
	return ids
}
