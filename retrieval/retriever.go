package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/quarry/ai"
	"github.com/poiesic/quarry/core"
	"github.com/poiesic/quarry/retry"
	"github.com/poiesic/quarry/vectorstore"
)

// Retriever finds the passages nearest to a query in one vector index.
type Retriever struct {
	embedder  ai.Embedder
	store     vectorstore.Store
	indexName string
	policy    retry.Policy
	logger    *slog.Logger
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever) error

// WithIndexName sets the index to search. Default is vectorstore.DefaultIndex.
func WithIndexName(name string) RetrieverOption {
	return func(r *Retriever) error {
		if err := vectorstore.ValidateIndexName(name); err != nil {
			return err
		}
		r.indexName = name
		return nil
	}
}

// WithRetrieverRetryPolicy sets how embedding and query calls are retried.
func WithRetrieverRetryPolicy(policy retry.Policy) RetrieverOption {
	return func(r *Retriever) error {
		if policy.MaxAttempts <= 0 {
			return retry.ErrInvalidMaxAttempts
		}
		r.policy = policy
		return nil
	}
}

// WithRetrieverLogger sets a custom logger.
// Default is slog.Default().
func WithRetrieverLogger(logger *slog.Logger) RetrieverOption {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewRetriever creates a new retriever. The embedder must be the one the
// index was built with.
func NewRetriever(embedder ai.Embedder, store vectorstore.Store, opts ...RetrieverOption) (*Retriever, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if store == nil {
		return nil, ErrStoreRequired
	}

	r := &Retriever{
		embedder:  embedder,
		store:     store,
		indexName: vectorstore.DefaultIndex,
		policy:    retry.DefaultPolicy(),
		logger:    slog.Default().With("component", "retriever"),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Search returns up to topK passages ranked by similarity to query.
// An empty index yields an empty slice.
func (r *Retriever) Search(ctx context.Context, query string, topK int) ([]core.Passage, error) {
	return r.SearchWithMonitor(ctx, query, topK, nil)
}

// SearchWithMonitor is Search with callbacks at each stage.
func (r *Retriever) SearchWithMonitor(ctx context.Context, query string, topK int, monitor SearchMonitor) ([]core.Passage, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", core.ErrInvalidArgument, topK)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", core.ErrInvalidArgument)
	}
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	monitor.Start(query, topK)

	var embedding []float32
	err := retry.Do(ctx, r.policy, func(ctx context.Context) error {
		var err error
		embedding, err = r.embedder.EmbedText(ctx, query)
		return err
	})
	if err != nil {
		r.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, fmt.Errorf("%w: embed query: %w", ErrRetrieval, err)
	}
	monitor.AfterEmbedding(embedding)

	var matches []vectorstore.Match
	err = retry.Do(ctx, r.policy, func(ctx context.Context) error {
		var err error
		matches, err = r.store.Query(ctx, r.indexName, embedding, topK)
		return err
	})
	if err != nil {
		r.logger.Error("error querying vector index", "index", r.indexName, "err", err)
		return nil, fmt.Errorf("%w: query index: %w", ErrRetrieval, err)
	}
	monitor.AfterQuery(matches)

	passages := make([]core.Passage, 0, len(matches))
	for _, match := range matches {
		passages = append(passages, core.Passage{
			Citation: match.Metadata,
			Content:  match.Payload,
			Score:    match.Score,
		})
	}
	if len(passages) > topK {
		passages = passages[:topK]
	}
	monitor.Finish(passages)

	r.logger.Debug("retrieved passages", "query", query, "top_k", topK, "hits", len(passages))
	return passages, nil
}
