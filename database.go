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


package quarry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/quarry/ai"
	"github.com/poiesic/quarry/ai/cache"
	"github.com/poiesic/quarry/ai/langchain"
	"github.com/poiesic/quarry/contextualize"
	"github.com/poiesic/quarry/core"
	"github.com/poiesic/quarry/extract"
	"github.com/poiesic/quarry/indexing"
	"github.com/poiesic/quarry/ingestion"
	"github.com/poiesic/quarry/retrieval"
	"github.com/poiesic/quarry/source"
	"github.com/poiesic/quarry/storage"
	"github.com/poiesic/quarry/storage/badger"
	"github.com/poiesic/quarry/vectorstore"
	vsbadger "github.com/poiesic/quarry/vectorstore/badger"
	goredis "github.com/redis/go-redis/v9"
)

// ErrObjectStoreRequired is returned by operations that upload files when no
// object store was configured.
var ErrObjectStoreRequired = errors.New("object store required")

// Database ties the store, the AI provider and the vector index together.
type Database struct {
	backend   *badger.Backend
	repos     *badger.Repositories
	provider  ai.AIProvider
	embedder  ai.Embedder
	vectors   vectorstore.Store
	objects   source.ObjectStore
	locator   *source.Locator
	indexName string
	logger    *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig    *ai.Config
	provider    ai.AIProvider
	vectors     vectorstore.Store
	objects     source.ObjectStore
	indexName   string
	inMemory    bool
	redis       goredis.Cmdable
	cacheConfig *cache.Config
	logger      *slog.Logger
}

// WithAIConfig sets the configuration of the default langchain provider.
func WithAIConfig(cfg *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.aiConfig = cfg
	}
}

// WithProvider uses provider instead of building one from the AI config.
// The Database takes ownership and closes it.
func WithProvider(provider ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithVectorStore uses store instead of the badger index sharing the database.
// The Database takes ownership and closes it.
func WithVectorStore(store vectorstore.Store) DatabaseOption {
	return func(o *databaseOptions) {
		o.vectors = store
	}
}

// WithObjectStore sets where remote resources are fetched from and uploaded to.
func WithObjectStore(store source.ObjectStore) DatabaseOption {
	return func(o *databaseOptions) {
		o.objects = store
	}
}

// WithIndexName sets the vector index used for indexing and retrieval.
func WithIndexName(name string) DatabaseOption {
	return func(o *databaseOptions) {
		o.indexName = name
	}
}

// WithInMemory keeps all data in memory. The file path is ignored.
func WithInMemory() DatabaseOption {
	return func(o *databaseOptions) {
		o.inMemory = true
	}
}

// WithEmbeddingCache caches query and chunk embeddings in redis.
// A nil config uses cache.DefaultConfig.
func WithEmbeddingCache(client goredis.Cmdable, cfg *cache.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.redis = client
		o.cacheConfig = cfg
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// NewDatabase opens the database at filePath.
func NewDatabase(filePath string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		aiConfig:  ai.DefaultConfig(),
		indexName: vectorstore.DefaultIndex,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	if err := vectorstore.ValidateIndexName(options.indexName); err != nil {
		return nil, err
	}

	backend, err := badger.OpenBackend(filePath, options.inMemory)
	if err != nil {
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		provider, err = langchain.NewProvider(options.aiConfig)
		if err != nil {
			backend.Close()
			return nil, err
		}
	}

	embedder := provider.Embedder()
	if options.redis != nil {
		cfg := options.cacheConfig
		if cfg == nil {
			cfg = cache.DefaultConfig()
		}
		embedder = cache.NewEmbedder(embedder, options.redis, cfg)
	}

	vectors := options.vectors
	if vectors == nil {
		vectors = vsbadger.New(backend)
	}

	locatorOpts := []source.Option{source.WithLogger(options.logger)}
	if options.objects != nil {
		locatorOpts = append(locatorOpts, source.WithObjectStore(options.objects))
	}

	return &Database{
		backend:   backend,
		repos:     badger.NewRepositories(backend),
		provider:  provider,
		embedder:  embedder,
		vectors:   vectors,
		objects:   options.objects,
		locator:   source.NewLocator(locatorOpts...),
		indexName: options.indexName,
		logger:    options.logger,
	}, nil
}

// Close releases the provider, the vector store and the backend.
func (db *Database) Close() error {
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
	}
	if err := db.vectors.Close(); err != nil {
		db.logger.Error("error closing vector store", "err", err)
	}
	if err := db.backend.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

// Companies returns the company repository.
func (db *Database) Companies() storage.CompanyRepository {
	return db.repos.Companies
}

// Resources returns the resource repository.
func (db *Database) Resources() storage.ResourceRepository {
	return db.repos.Resources
}

// Documents returns the document repository.
func (db *Database) Documents() storage.DocumentRepository {
	return db.repos.Documents
}

// Chunks returns the chunk repository.
func (db *Database) Chunks() storage.ChunkRepository {
	return db.repos.Chunks
}

// Checkpoints returns the checkpoint repository shared by batch runs.
func (db *Database) Checkpoints() storage.CheckpointRepository {
	return db.repos.Checkpoints
}

// VectorStore returns the vector store the database writes to and queries.
func (db *Database) VectorStore() vectorstore.Store {
	return db.vectors
}

// Provider returns the AI provider. Its embedder is not wrapped by the embedding cache.
func (db *Database) Provider() ai.AIProvider {
	return db.provider
}

// IndexName returns the vector index used by indexers and retrievers.
func (db *Database) IndexName() string {
	return db.indexName
}

// NewIngestionPipeline returns a pipeline reading through the database's source locator.
// The caller must Release it.
func (db *Database) NewIngestionPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	opts = append([]ingestion.Option{ingestion.WithLogger(db.logger.With("component", "ingestion"))}, opts...)
	return ingestion.NewPipeline(db.repos.Resources, db.repos.Documents, db.repos.Chunks, db.locator, extract.NewPDFExtractor(), opts...)
}

// NewContextualizer returns a contextualizer using the provider's context model,
// with checkpoints enabled. The caller must Release it.
func (db *Database) NewContextualizer(opts ...contextualize.Option) (*contextualize.Contextualizer, error) {
	opts = append([]contextualize.Option{
		contextualize.WithLogger(db.logger.With("component", "contextualizer")),
		contextualize.WithCheckpoints(db.repos.Checkpoints),
	}, opts...)
	return contextualize.NewContextualizer(db.repos.Documents, db.repos.Chunks, db.provider.ContextModel(), opts...)
}

// NewIndexer returns an indexer writing to the database's index and marking resources indexed.
func (db *Database) NewIndexer(opts ...indexing.Option) (*indexing.Indexer, error) {
	opts = append([]indexing.Option{
		indexing.WithIndexName(db.indexName),
		indexing.WithResources(db.repos.Resources),
		indexing.WithLogger(db.logger.With("component", "indexer")),
	}, opts...)
	return indexing.NewIndexer(db.repos.Chunks, db.repos.Documents, db.embedder, db.vectors, db.provider.Dimension(), opts...)
}

// NewRetriever returns a retriever over the database's index.
func (db *Database) NewRetriever(opts ...retrieval.RetrieverOption) (*retrieval.Retriever, error) {
	opts = append([]retrieval.RetrieverOption{
		retrieval.WithIndexName(db.indexName),
		retrieval.WithRetrieverLogger(db.logger.With("component", "retriever")),
	}, opts...)
	return retrieval.NewRetriever(db.embedder, db.vectors, opts...)
}

// NewAssembler returns an assembler answering with the provider's chat model.
func (db *Database) NewAssembler(opts ...retrieval.Option) (*retrieval.Assembler, error) {
	retriever, err := db.NewRetriever()
	if err != nil {
		return nil, err
	}
	opts = append([]retrieval.Option{retrieval.WithLogger(db.logger.With("component", "assembler"))}, opts...)
	return retrieval.NewAssembler(retriever, db.provider.ChatModel(), opts...)
}

// NewUploader returns an uploader writing to the configured object store.
func (db *Database) NewUploader(region string) (*source.Uploader, error) {
	if db.objects == nil {
		return nil, ErrObjectStoreRequired
	}
	return source.NewUploader(db.objects, db.repos.Resources, region), nil
}

// Ingest runs one resource through the ingestion pipeline.
func (db *Database) Ingest(ctx context.Context, resourceID core.ID, opts ...ingestion.Option) (ingestion.Result, error) {
	pipeline, err := db.NewIngestionPipeline(opts...)
	if err != nil {
		return ingestion.Result{}, err
	}
	defer pipeline.Release()
	return pipeline.IngestByID(ctx, resourceID)
}

// IngestPending ingests up to limit resources that are not ingested yet.
func (db *Database) IngestPending(ctx context.Context, limit int, opts ...ingestion.Option) (ingestion.BatchResult, error) {
	pipeline, err := db.NewIngestionPipeline(opts...)
	if err != nil {
		return ingestion.BatchResult{}, err
	}
	defer pipeline.Release()
	return pipeline.IngestPending(ctx, limit)
}

// Reindex rebuilds the vector index, skipping documents whose path contains exclude.
func (db *Database) Reindex(ctx context.Context, exclude string, opts ...indexing.Option) (indexing.Result, error) {
	indexer, err := db.NewIndexer(opts...)
	if err != nil {
		return indexing.Result{}, err
	}
	return indexer.Reindex(ctx, exclude)
}

// Answer generates a grounded reply to a conversation.
func (db *Database) Answer(ctx context.Context, history []core.Message, opts ...retrieval.Option) (*core.Answer, error) {
	assembler, err := db.NewAssembler(opts...)
	if err != nil {
		return nil, err
	}
	return assembler.Answer(ctx, history)
}

// RegisterCompanies adds companies whose ticker is not registered yet.
// Companies with a known ticker are returned as skipped and left unchanged.
func (db *Database) RegisterCompanies(ctx context.Context, companies ...*core.Company) (added, skipped []*core.Company, err error) {
	for _, company := range companies {
		if company == nil {
			continue
		}
		existing, err := db.repos.Companies.GetCompanyByTicker(ctx, company.Ticker)
		if err == nil {
			skipped = append(skipped, existing)
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return added, skipped, err
		}
		stored, err := db.repos.Companies.AddCompanies(ctx, company)
		if err != nil {
			return added, skipped, fmt.Errorf("add company %s: %w", company.Ticker, err)
		}
		added = append(added, stored...)
	}
	return added, skipped, nil
}

// SetStorageLocation sets the "bucket/prefix" a company's uploads go to.
func (db *Database) SetStorageLocation(ctx context.Context, ticker, location string) (*core.Company, error) {
	location = strings.Trim(strings.TrimSpace(location), "/")
	if _, _, err := source.ParseStorageLocation(location); err != nil {
		return nil, err
	}
	company, err := db.repos.Companies.GetCompanyByTicker(ctx, ticker)
	if err != nil {
		return nil, err
	}
	company.StorageLocation = location
	if err := db.repos.Companies.UpdateCompany(ctx, company); err != nil {
		return nil, err
	}
	return company, nil
}
