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


// Package storage provides the persistence abstraction layer for quarry.
//
// The persistence store is the single source of truth for companies,
// resources, documents and chunks. The vector index is derived from it and
// can always be rebuilt.
//
// # Architecture
//
// The storage layer follows the Repository pattern:
//
//   - CompanyRepository: companies and their upload locations
//   - ResourceRepository: registered files and their ingested/indexed flags
//   - DocumentRepository: one record per extracted page, stored atomically with its chunks
//   - ChunkRepository: retrieval units and their generated context
//   - CheckpointRepository: resume markers for batch processors
//
// # Usage
//
// Open a backend and create repositories on it:
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//	docs := badger.NewDocumentRepository(backend)
//
// Use in tests with in-memory storage:
//
//	repos, err := badger.NewMemoryRepositories()
//
// # Atomicity
//
// Every mutating call commits its own transaction. A document and its chunks
// are written in a single transaction so a crash never leaves a document
// without its chunks.
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
