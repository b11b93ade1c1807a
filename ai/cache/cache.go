// Package cache provides a redis-backed caching decorator for ai.Embedder.
//
// Vectors are stored under a key derived from a BLAKE2b fingerprint of the
// embedding model name and the text, so re-indexing unchanged chunks does not
// pay for a second embedding call. Redis failures never fail an embedding:
// the decorator logs a warning and falls through to the wrapped embedder.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bytedance/sonic"
	"github.com/poiesic/quarry/ai"
	"github.com/poiesic/quarry/core"
	goredis "github.com/redis/go-redis/v9"
)

// Config controls the embedding cache.
type Config struct {
	// TTL is how long a cached vector lives.
	TTL time.Duration
	// KeyPrefix namespaces cache keys.
	KeyPrefix string
	// Model is mixed into every key so vectors from different models never collide.
	Model string
}

// DefaultConfig returns a cache configuration with a 24 hour TTL.
func DefaultConfig() *Config {
	return &Config{
		TTL:       24 * time.Hour,
		KeyPrefix: "emb:",
	}
}

// Embedder decorates an ai.Embedder with a redis cache.
type Embedder struct {
	next   ai.Embedder
	redis  goredis.Cmdable
	config *Config
	logger *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

// NewEmbedder wraps next. A nil config uses DefaultConfig.
func NewEmbedder(next ai.Embedder, redis goredis.Cmdable, config *Config) *Embedder {
	if config == nil {
		config = DefaultConfig()
	}
	return &Embedder{
		next:   next,
		redis:  redis,
		config: config,
		logger: slog.Default().With("component", "embedding-cache"),
	}
}

func (e *Embedder) key(text string) string {
	return e.config.KeyPrefix + core.Fingerprint([]byte(e.config.Model+"\x00"+text))
}

// lookup returns the cached vector for text, or nil on a miss.
func (e *Embedder) lookup(ctx context.Context, key string) []float32 {
	data, err := e.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			e.logger.Warn("redis get failed, falling back to embedder", "err", err)
		}
		return nil
	}

	var vector []float32
	if err := sonic.Unmarshal(data, &vector); err != nil || len(vector) == 0 {
		e.logger.Warn("discarding corrupt cached embedding", "key", key, "err", err)
		_ = e.redis.Del(ctx, key).Err()
		return nil
	}
	return vector
}

func (e *Embedder) store(ctx context.Context, key string, vector []float32) {
	data, err := sonic.Marshal(vector)
	if err != nil {
		e.logger.Warn("failed to encode embedding for caching", "err", err)
		return
	}
	if err := e.redis.Set(ctx, key, data, e.config.TTL).Err(); err != nil {
		e.logger.Warn("failed to cache embedding", "key", key, "err", err)
	}
}

// EmbedText returns the cached vector for text or embeds and caches it.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	key := e.key(text)
	if vector := e.lookup(ctx, key); vector != nil {
		e.logger.Debug("embedding cache hit", "text_length", len(text))
		return vector, nil
	}

	vector, err := e.next.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	e.store(ctx, key, vector)
	return vector, nil
}

// EmbedTexts embeds only the texts that miss the cache, in one batch.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		keys[i] = e.key(text)
		if vector := e.lookup(ctx, keys[i]); vector != nil {
			vectors[i] = vector
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		e.logger.Debug("embedding cache hit (batch)", "total", len(texts))
		return vectors, nil
	}

	e.logger.Debug("embedding cache miss (batch)", "total", len(texts), "uncached", len(missTexts))
	fresh, err := e.next.EmbedTexts(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, core.CapabilityError(errors.New("embedder returned a different number of vectors than texts"))
	}

	for j, i := range missIdx {
		vectors[i] = fresh[j]
		e.store(ctx, keys[i], fresh[j])
	}
	return vectors, nil
}
