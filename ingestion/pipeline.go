package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/quarry/chunk"
	"github.com/poiesic/quarry/core"
	"github.com/poiesic/quarry/source"
	"github.com/poiesic/quarry/storage"
)

// DefaultFetchTimeout bounds a single source fetch.
const DefaultFetchTimeout = time.Minute

// Pipeline orchestrates fetching, extraction, chunking and persistence of resources.
type Pipeline struct {
	resources         storage.ResourceRepository
	documents         storage.DocumentRepository
	chunks            storage.ChunkRepository
	fetcher           Fetcher
	extractor         Extractor
	remoteChunker     *chunk.Chunker
	localChunker      *chunk.Chunker
	pool              *ants.Pool
	fetchTimeout      time.Duration
	perDocumentCommit bool
	logger            *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the number of resources ingested concurrently by IngestPending.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		if p.pool != nil {
			p.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithRemoteChunking sets the chunking used for object storage resources.
// Default is chunk.RemoteOptions().
func WithRemoteChunking(opts chunk.Options) Option {
	return func(p *Pipeline) error {
		c, err := chunk.New(opts)
		if err != nil {
			return err
		}
		p.remoteChunker = c
		return nil
	}
}

// WithLocalChunking sets the chunking used for local files and for ChunkDocuments.
// Default is chunk.DefaultOptions().
func WithLocalChunking(opts chunk.Options) Option {
	return func(p *Pipeline) error {
		c, err := chunk.New(opts)
		if err != nil {
			return err
		}
		p.localChunker = c
		return nil
	}
}

// WithFetchTimeout bounds each source fetch. Default is DefaultFetchTimeout.
func WithFetchTimeout(timeout time.Duration) Option {
	return func(p *Pipeline) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: fetch timeout must be positive", core.ErrInvalidArgument)
		}
		p.fetchTimeout = timeout
		return nil
	}
}

// WithPerDocumentCommit commits each page's document and chunks separately
// instead of writing the whole resource in one transaction. Use it for very
// large files that exceed the store's transaction size. The resource is still
// marked ingested only after every page is stored.
func WithPerDocumentCommit() Option {
	return func(p *Pipeline) error {
		p.perDocumentCommit = true
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	resources storage.ResourceRepository,
	documents storage.DocumentRepository,
	chunks storage.ChunkRepository,
	fetcher Fetcher,
	extractor Extractor,
	opts ...Option,
) (*Pipeline, error) {
	if resources == nil {
		return nil, ErrResourceRepositoryRequired
	}
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if fetcher == nil {
		return nil, ErrFetcherRequired
	}
	if extractor == nil {
		return nil, ErrExtractorRequired
	}

	remoteChunker, err := chunk.New(chunk.RemoteOptions())
	if err != nil {
		return nil, err
	}
	localChunker, err := chunk.New(chunk.DefaultOptions())
	if err != nil {
		return nil, err
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		resources:     resources,
		documents:     documents,
		chunks:        chunks,
		fetcher:       fetcher,
		extractor:     extractor,
		remoteChunker: remoteChunker,
		localChunker:  localChunker,
		pool:          pool,
		fetchTimeout:  DefaultFetchTimeout,
		logger:        slog.Default().With("component", "ingestion"),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}
	return p, nil
}

// Result reports the outcome of ingesting one resource.
type Result struct {
	ResourceId core.ID
	OK         bool
	// AlreadyIngested is set when the resource was skipped because an earlier run completed it.
	AlreadyIngested  bool
	DocumentsCreated int
	ChunksCreated    int
}

// Ingest runs one resource through the pipeline.
//
// The stored resource state is authoritative: an already ingested resource is
// a successful no-op. On any failure the resource stays pending and no
// documents of this run survive.
//
// Errors:
//   - core.ErrInvalidArgument when resource is nil or unsaved
//   - core.ErrSourceUnavailable when the bytes cannot be fetched (retry later)
//   - core.ErrNotAPDF, core.ErrSkipped, core.ErrUnreadablePDF for content that will never ingest
func (p *Pipeline) Ingest(ctx context.Context, resource *core.Resource) (Result, error) {
	if resource == nil || resource.Id == 0 {
		return Result{}, fmt.Errorf("%w: resource must be stored before ingestion", core.ErrInvalidArgument)
	}
	return p.IngestByID(ctx, resource.Id)
}

// IngestByID loads a resource and runs it through the pipeline.
func (p *Pipeline) IngestByID(ctx context.Context, id core.ID) (Result, error) {
	result := Result{ResourceId: id}

	resource, err := p.resources.GetResource(ctx, id)
	if err != nil {
		return result, fmt.Errorf("load resource %d: %w", id, err)
	}
	if resource.Ingested {
		p.logger.Debug("resource already ingested", "resource_id", id)
		result.OK = true
		result.AlreadyIngested = true
		return result, nil
	}

	logger := p.logger.With("resource_id", id, "location", resource.StorageLocation)

	data, err := p.fetch(ctx, resource.StorageLocation)
	if err != nil {
		return result, err
	}

	pages, err := p.extractor.Extract(ctx, data)
	if err != nil {
		return result, err
	}

	chunker := p.chunkerFor(resource.StorageLocation)
	prepared := make([]pageChunks, len(pages))
	for i, page := range pages {
		texts, err := chunker.Split(page.Text)
		if err != nil {
			return result, fmt.Errorf("chunk page %d: %w", page.Number, err)
		}
		prepared[i] = pageChunks{page: page, chunks: texts}
	}

	checksum := core.Fingerprint(data)
	if p.perDocumentCommit {
		err = p.persistPerDocument(ctx, resource, prepared, checksum, &result)
	} else {
		err = p.resources.WithTransaction(ctx, func(ctx context.Context) error {
			return p.persist(ctx, resource, prepared, checksum, &result)
		})
	}
	if err != nil {
		result.DocumentsCreated = 0
		result.ChunksCreated = 0
		return result, fmt.Errorf("persist resource %d: %w", id, err)
	}

	result.OK = true
	logger.Info("ingested resource",
		"pages", len(pages),
		"documents", result.DocumentsCreated,
		"chunks", result.ChunksCreated)
	return result, nil
}

func (p *Pipeline) fetch(ctx context.Context, location string) ([]byte, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	defer cancel()

	data, err := p.fetcher.Fetch(fetchCtx, location)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, core.ErrSourceUnavailable) {
			return nil, fmt.Errorf("%w: %w", core.ErrSourceUnavailable, err)
		}
		return nil, err
	}
	return data, nil
}

func (p *Pipeline) chunkerFor(location string) *chunk.Chunker {
	if source.IsRemote(location) {
		return p.remoteChunker
	}
	return p.localChunker
}

// persist replaces whatever an interrupted earlier run left behind, stores
// every page and flips the ingested flag. It runs inside one transaction.
func (p *Pipeline) persist(ctx context.Context, resource *core.Resource, pages []pageChunks, checksum string, result *Result) error {
	if err := p.purge(ctx, resource.Id); err != nil {
		return err
	}
	for _, pc := range pages {
		if err := p.storePage(ctx, resource, pc, result); err != nil {
			return err
		}
	}
	return p.resources.MarkIngested(ctx, resource.Id, checksum)
}

// persistPerDocument stores each page in its own transaction. If a page fails
// the pages already written are removed again.
func (p *Pipeline) persistPerDocument(ctx context.Context, resource *core.Resource, pages []pageChunks, checksum string, result *Result) error {
	if err := p.purge(ctx, resource.Id); err != nil {
		return err
	}
	for _, pc := range pages {
		if err := p.storePage(ctx, resource, pc, result); err != nil {
			p.cleanup(resource.Id)
			return err
		}
	}
	if err := p.resources.MarkIngested(ctx, resource.Id, checksum); err != nil {
		p.cleanup(resource.Id)
		return err
	}
	return nil
}

func (p *Pipeline) purge(ctx context.Context, resourceID core.ID) error {
	removed, err := p.documents.DeleteByResource(ctx, resourceID)
	if err != nil {
		return fmt.Errorf("remove partial documents: %w", err)
	}
	if removed > 0 {
		p.logger.Warn("removed documents left by an interrupted run", "resource_id", resourceID, "documents", removed)
	}
	return nil
}

func (p *Pipeline) cleanup(resourceID core.ID) {
	// the caller's context may already be cancelled
	if _, err := p.documents.DeleteByResource(context.Background(), resourceID); err != nil {
		p.logger.Error("failed to remove partial documents", "resource_id", resourceID, "err", err)
	}
}

func (p *Pipeline) storePage(ctx context.Context, resource *core.Resource, pc pageChunks, result *Result) error {
	doc := &core.Document{
		CompanyId:  resource.CompanyId,
		ResourceId: resource.Id,
		PageNumber: pc.page.Number,
		Text:       pc.page.Text,
		FilePath:   resource.StorageLocation,
	}
	chunks := make([]*core.Chunk, len(pc.chunks))
	for i, text := range pc.chunks {
		chunks[i] = &core.Chunk{CompanyId: resource.CompanyId, Text: text}
	}
	if _, err := p.documents.AddDocument(ctx, doc, chunks...); err != nil {
		return fmt.Errorf("store page %d: %w", pc.page.Number, err)
	}
	result.DocumentsCreated++
	result.ChunksCreated += len(chunks)
	return nil
}

// Failure records why one unit of a batch failed.
type Failure struct {
	Id  core.ID
	Err error
}

// BatchResult summarizes an IngestPending run.
type BatchResult struct {
	RunId            string
	Total            int
	Ingested         int
	Failed           []Failure
	DocumentsCreated int
	ChunksCreated    int
	Duration         time.Duration
}

// Permanent returns the failures whose content will never ingest.
func (r BatchResult) Permanent() []Failure {
	var out []Failure
	for _, f := range r.Failed {
		if core.IsPermanent(f.Err) {
			out = append(out, f)
		}
	}
	return out
}

// IngestPending ingests up to limit pending resources concurrently.
// A limit <= 0 processes every pending resource. Individual failures are
// collected in the result; the returned error is reserved for failures that
// prevent the batch from running at all.
func (p *Pipeline) IngestPending(ctx context.Context, limit int) (BatchResult, error) {
	start := time.Now()
	batch := BatchResult{RunId: uuid.NewString()}
	logger := p.logger.With("run_id", batch.RunId)

	pending, err := p.resources.ListPending(ctx, limit)
	if err != nil {
		return batch, fmt.Errorf("list pending resources: %w", err)
	}
	batch.Total = len(pending)
	logger.Info("starting ingestion batch", "resources", len(pending))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	record := func(id core.ID, result Result, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			batch.Failed = append(batch.Failed, Failure{Id: id, Err: err})
			return
		}
		batch.Ingested++
		batch.DocumentsCreated += result.DocumentsCreated
		batch.ChunksCreated += result.ChunksCreated
	}

	for _, resource := range pending {
		if ctx.Err() != nil {
			record(resource.Id, Result{}, ctx.Err())
			continue
		}
		resource := resource
		wg.Add(1)
		submitErr := p.pool.Submit(func() {
			defer wg.Done()
			result, err := p.IngestByID(ctx, resource.Id)
			if err != nil {
				level := slog.LevelError
				if core.IsPermanent(err) {
					level = slog.LevelWarn
				}
				logger.Log(ctx, level, "resource ingestion failed", "resource_id", resource.Id, "err", err)
			}
			record(resource.Id, result, err)
		})
		if submitErr != nil {
			wg.Done()
			record(resource.Id, Result{}, submitErr)
		}
	}
	wg.Wait()

	batch.Duration = time.Since(start)
	logger.Info("ingestion batch complete",
		"total", batch.Total,
		"ingested", batch.Ingested,
		"failed", len(batch.Failed),
		"documents", batch.DocumentsCreated,
		"chunks", batch.ChunksCreated,
		"duration", batch.Duration)
	return batch, nil
}

// ChunkResult summarizes a ChunkDocuments run.
type ChunkResult struct {
	Documents     int
	ChunksCreated int
	Failed        []Failure
}

// ChunkDocuments splits every stored document that has no chunks yet, using
// the local chunking options. Blank documents are left alone.
func (p *Pipeline) ChunkDocuments(ctx context.Context) (ChunkResult, error) {
	var result ChunkResult

	docs, err := p.documents.ListWithoutChunks(ctx)
	if err != nil {
		return result, fmt.Errorf("list unchunked documents: %w", err)
	}

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		texts, err := p.localChunker.Split(doc.Text)
		if err != nil {
			result.Failed = append(result.Failed, Failure{Id: doc.Id, Err: err})
			continue
		}
		if len(texts) == 0 {
			continue
		}

		chunks := make([]*core.Chunk, len(texts))
		for i, text := range texts {
			chunks[i] = &core.Chunk{CompanyId: doc.CompanyId, Text: text}
		}
		if _, err := p.chunks.AddChunks(ctx, doc.Id, chunks...); err != nil {
			p.logger.Error("failed to chunk document", "document_id", doc.Id, "err", err)
			result.Failed = append(result.Failed, Failure{Id: doc.Id, Err: err})
			continue
		}
		result.Documents++
		result.ChunksCreated += len(chunks)
	}

	p.logger.Info("chunked documents", "documents", result.Documents, "chunks", result.ChunksCreated, "failed", len(result.Failed))
	return result, nil
}

// Release releases the worker pool. The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
