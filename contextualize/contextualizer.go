package contextualize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/quarry/ai"
	"github.com/poiesic/quarry/core"
	"github.com/poiesic/quarry/retry"
	"github.com/poiesic/quarry/storage"
	"golang.org/x/time/rate"
)

// ProcessorType identifies ContextualizeAll progress in the checkpoint store.
const ProcessorType = "contextualize"

// DefaultPageSize is the number of chunks ContextualizeAll loads at a time.
const DefaultPageSize = 100

var (
	// ErrDocumentRepositoryRequired is returned when a document repository is not provided.
	ErrDocumentRepositoryRequired = errors.New("document repository required")

	// ErrChunkRepositoryRequired is returned when a chunk repository is not provided.
	ErrChunkRepositoryRequired = errors.New("chunk repository required")

	// ErrCompleterRequired is returned when a language model is not provided.
	ErrCompleterRequired = errors.New("completer required")
)

// Contextualizer generates and stores context for chunks.
type Contextualizer struct {
	documents   storage.DocumentRepository
	chunks      storage.ChunkRepository
	completer   ai.Completer
	checkpoints storage.CheckpointRepository
	pool        *ants.Pool
	limiter     *rate.Limiter
	policy      retry.Policy
	onlyMissing bool
	pageSize    int
	logger      *slog.Logger
}

// Option configures a Contextualizer.
type Option func(*Contextualizer) error

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Contextualizer) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// WithConcurrency sets how many documents (or chunks, for ContextualizeAll)
// are processed at once. Default is 1.
func WithConcurrency(n int) Option {
	return func(c *Contextualizer) error {
		if n < 1 {
			n = 1
		}
		if c.pool != nil {
			c.pool.Release()
		}
		pool, err := ants.NewPool(n)
		if err != nil {
			return err
		}
		c.pool = pool
		return nil
	}
}

// WithRateLimit caps language model calls at rps per second with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Contextualizer) error {
		if rps <= 0 {
			return fmt.Errorf("%w: rate must be positive", core.ErrInvalidArgument)
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		return nil
	}
}

// WithRetryPolicy sets how failed language model calls are retried.
// Default is retry.DefaultPolicy().
func WithRetryPolicy(policy retry.Policy) Option {
	return func(c *Contextualizer) error {
		if policy.MaxAttempts <= 0 {
			return retry.ErrInvalidMaxAttempts
		}
		c.policy = policy
		return nil
	}
}

// WithOnlyMissing skips chunks that already carry context.
func WithOnlyMissing() Option {
	return func(c *Contextualizer) error {
		c.onlyMissing = true
		return nil
	}
}

// WithCheckpoints lets ContextualizeAll resume where an interrupted run stopped.
func WithCheckpoints(repo storage.CheckpointRepository) Option {
	return func(c *Contextualizer) error {
		c.checkpoints = repo
		return nil
	}
}

// WithPageSize sets how many chunks ContextualizeAll loads at a time.
func WithPageSize(n int) Option {
	return func(c *Contextualizer) error {
		if n < 1 {
			return fmt.Errorf("%w: page size must be positive", core.ErrInvalidArgument)
		}
		c.pageSize = n
		return nil
	}
}

// NewContextualizer creates a Contextualizer. The completer is usually
// ai.AIProvider.ContextModel().
func NewContextualizer(
	documents storage.DocumentRepository,
	chunks storage.ChunkRepository,
	completer ai.Completer,
	opts ...Option,
) (*Contextualizer, error) {
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if chunks == nil {
		return nil, ErrChunkRepositoryRequired
	}
	if completer == nil {
		return nil, ErrCompleterRequired
	}

	pool, err := ants.NewPool(1)
	if err != nil {
		return nil, err
	}
	c := &Contextualizer{
		documents: documents,
		chunks:    chunks,
		completer: completer,
		pool:      pool,
		policy:    retry.DefaultPolicy(),
		pageSize:  DefaultPageSize,
		logger:    slog.Default().With("component", "contextualizer"),
	}
	for _, opt := range opts {
		if optErr := opt(c); optErr != nil {
			c.Release()
			return nil, optErr
		}
	}
	return c, nil
}

// Failure records a chunk that could not be contextualized.
type Failure struct {
	ChunkId core.ID
	Err     error
}

// Result summarizes a contextualization run.
type Result struct {
	Documents int
	Updated   int
	Skipped   int
	Failed    []Failure
}

func (r *Result) merge(other Result) {
	r.Documents += other.Documents
	r.Updated += other.Updated
	r.Skipped += other.Skipped
	r.Failed = append(r.Failed, other.Failed...)
}

// Contextualize generates context for one chunk. It does not store anything.
func (c *Contextualizer) Contextualize(ctx context.Context, chunkText, documentText string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	messages := []core.Message{{Role: core.RoleUser, Content: BuildPrompt(chunkText, documentText)}}
	var out string
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		var err error
		out, err = c.completer.Complete(ctx, messages,
			ai.WithTemperature(DefaultTemperature),
			ai.WithMaxTokens(DefaultMaxTokens))
		return err
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// ContextualizeDocument generates and stores context for every chunk of a
// document, committing after each chunk. A chunk that fails is reported and
// the remaining chunks are still processed.
//
// Returns a zero Result and storage.ErrNotFound if the document does not exist.
func (c *Contextualizer) ContextualizeDocument(ctx context.Context, documentID core.ID) (Result, error) {
	doc, err := c.documents.GetDocument(ctx, documentID)
	if err != nil {
		return Result{}, fmt.Errorf("load document %d: %w", documentID, err)
	}
	return c.processDocument(ctx, doc)
}

func (c *Contextualizer) processDocument(ctx context.Context, doc *core.Document) (Result, error) {
	result := Result{Documents: 1}

	chunks, err := c.chunks.ListByDocument(ctx, doc.Id)
	if err != nil {
		return result, fmt.Errorf("list chunks of document %d: %w", doc.Id, err)
	}

	for _, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		updated, err := c.processChunk(ctx, chunk, doc)
		switch {
		case err != nil:
			result.Failed = append(result.Failed, Failure{ChunkId: chunk.Id, Err: err})
		case updated:
			result.Updated++
		default:
			result.Skipped++
		}
	}

	c.logger.Debug("contextualized document", "document_id", doc.Id,
		"updated", result.Updated, "skipped", result.Skipped, "failed", len(result.Failed))
	return result, nil
}

// processChunk reports whether the chunk's context was written.
func (c *Contextualizer) processChunk(ctx context.Context, chunk *core.Chunk, doc *core.Document) (bool, error) {
	if c.onlyMissing && strings.TrimSpace(chunk.Context) != "" {
		return false, nil
	}

	chunkContext, err := c.Contextualize(ctx, chunk.Text, doc.Text)
	if err != nil {
		c.logger.Warn("failed to contextualize chunk", "chunk_id", chunk.Id, "document_id", doc.Id, "err", err)
		return false, err
	}
	if err := c.chunks.UpdateContext(ctx, chunk.Id, chunkContext); err != nil {
		c.logger.Error("failed to store chunk context", "chunk_id", chunk.Id, "err", err)
		return false, err
	}
	return true, nil
}

// ContextualizeByFilePath processes every document whose file path contains
// fragment. Documents are fanned out across the worker pool.
func (c *Contextualizer) ContextualizeByFilePath(ctx context.Context, fragment string) (Result, error) {
	if strings.TrimSpace(fragment) == "" {
		return Result{}, fmt.Errorf("%w: file path filter is empty", core.ErrInvalidArgument)
	}

	docs, err := c.documents.ListByFilePath(ctx, fragment)
	if err != nil {
		return Result{}, fmt.Errorf("list documents: %w", err)
	}
	c.logger.Info("contextualizing documents", "filter", fragment, "documents", len(docs))

	var (
		mu       sync.Mutex
		total    Result
		firstErr error
	)
	c.fanOut(len(docs), func(i int) {
		result, err := c.processDocument(ctx, docs[i])
		mu.Lock()
		defer mu.Unlock()
		total.merge(result)
		if err != nil && firstErr == nil {
			firstErr = err
		}
	})

	c.logger.Info("contextualized documents", "filter", fragment,
		"documents", total.Documents, "updated", total.Updated, "failed", len(total.Failed))
	return total, firstErr
}

// ContextualizeAll walks every stored chunk in ID order. With checkpoints
// configured, progress is saved after each page whose chunks all succeeded,
// and an interrupted run resumes after the last such page. Once a chunk
// fails the checkpoint stops advancing and is kept at the end of the run.
func (c *Contextualizer) ContextualizeAll(ctx context.Context) (Result, error) {
	var total Result

	var afterID core.ID
	if c.checkpoints != nil {
		checkpoint, err := c.checkpoints.LoadCheckpoint(ctx, ProcessorType)
		if err != nil {
			return total, fmt.Errorf("load checkpoint: %w", err)
		}
		if checkpoint != nil {
			afterID = checkpoint.LastId
			c.logger.Info("resuming from checkpoint", "after_chunk_id", afterID)
		}
	}

	docs := make(map[core.ID]*core.Document)
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		page, err := c.chunks.ListChunks(ctx, afterID, c.pageSize)
		if err != nil {
			return total, fmt.Errorf("list chunks: %w", err)
		}
		if len(page) == 0 {
			break
		}

		parents, err := c.loadParents(ctx, page, docs)
		if err != nil {
			return total, err
		}

		var mu sync.Mutex
		c.fanOut(len(page), func(i int) {
			chunk := page[i]
			doc, ok := parents[chunk.DocumentId]
			var updated bool
			var err error
			if !ok {
				err = fmt.Errorf("%w: chunk %d references missing document %d", core.ErrDataIntegrity, chunk.Id, chunk.DocumentId)
				c.logger.Warn("skipping orphan chunk", "chunk_id", chunk.Id, "document_id", chunk.DocumentId)
			} else {
				updated, err = c.processChunk(ctx, chunk, doc)
			}

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				total.Failed = append(total.Failed, Failure{ChunkId: chunk.Id, Err: err})
			case updated:
				total.Updated++
			default:
				total.Skipped++
			}
		})

		if err := ctx.Err(); err != nil {
			return total, err
		}
		afterID = page[len(page)-1].Id
		// the checkpoint holds at the last clean page once anything fails
		if c.checkpoints != nil && len(total.Failed) == 0 {
			if err := c.checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{ProcessorType: ProcessorType, LastId: afterID}); err != nil {
				return total, fmt.Errorf("save checkpoint: %w", err)
			}
		}
	}
	for _, doc := range docs {
		if doc != nil {
			total.Documents++
		}
	}

	if c.checkpoints != nil && len(total.Failed) == 0 {
		if err := c.checkpoints.DeleteCheckpoint(ctx, ProcessorType); err != nil {
			return total, fmt.Errorf("delete checkpoint: %w", err)
		}
	}
	c.logger.Info("contextualized all chunks", "updated", total.Updated, "skipped", total.Skipped, "failed", len(total.Failed))
	return total, nil
}

// loadParents fills cache with the documents a page of chunks belongs to and
// returns the ones that exist.
func (c *Contextualizer) loadParents(ctx context.Context, page []*core.Chunk, cache map[core.ID]*core.Document) (map[core.ID]*core.Document, error) {
	var missing []core.ID
	for _, chunk := range page {
		if _, ok := cache[chunk.DocumentId]; !ok {
			missing = append(missing, chunk.DocumentId)
			cache[chunk.DocumentId] = nil
		}
	}
	if len(missing) > 0 {
		loaded, err := c.documents.GetDocuments(ctx, missing...)
		if err != nil {
			return nil, fmt.Errorf("load documents: %w", err)
		}
		for _, doc := range loaded {
			cache[doc.Id] = doc
		}
	}

	parents := make(map[core.ID]*core.Document)
	for _, chunk := range page {
		if doc := cache[chunk.DocumentId]; doc != nil {
			parents[doc.Id] = doc
		}
	}
	return parents, nil
}

// fanOut runs fn for 0..n-1 on the worker pool and waits for all of them.
func (c *Contextualizer) fanOut(n int, fn func(i int)) {
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		if err := c.pool.Submit(func() {
			defer wg.Done()
			fn(i)
		}); err != nil {
			// pool closed or overloaded; run inline
			fn(i)
			wg.Done()
		}
	}
	wg.Wait()
}

// Release releases the worker pool.
func (c *Contextualizer) Release() {
	if c.pool != nil {
		c.pool.Release()
	}
}
