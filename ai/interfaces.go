package ai

import (
	"context"

	"github.com/poiesic/quarry/core"
)

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Completer generates the next message of a conversation.
// Implementations must be thread-safe for concurrent use.
type Completer interface {
	// Complete sends messages to the language model and returns the generated text.
	// Errors are classified with core.CapabilityError.
	Complete(ctx context.Context, messages []core.Message, opts ...CompleteOption) (string, error)
}

// CompleteOptions tunes a single completion call.
type CompleteOptions struct {
	// Temperature is the sampling temperature. Negative means the completer's default.
	Temperature float64
	// MaxTokens bounds the response length. Zero means the completer's default.
	MaxTokens int
}

// CompleteOption is a functional option for a completion call.
type CompleteOption func(*CompleteOptions)

// WithTemperature overrides the sampling temperature.
func WithTemperature(t float64) CompleteOption {
	return func(o *CompleteOptions) {
		o.Temperature = t
	}
}

// WithMaxTokens overrides the response length bound.
func WithMaxTokens(n int) CompleteOption {
	return func(o *CompleteOptions) {
		o.MaxTokens = n
	}
}

// NewCompleteOptions applies opts over the given defaults.
func NewCompleteOptions(temperature float64, maxTokens int, opts ...CompleteOption) CompleteOptions {
	o := CompleteOptions{Temperature: temperature, MaxTokens: maxTokens}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// ChatModel returns the completer used for grounded answers and chat titles.
	ChatModel() Completer

	// ContextModel returns the completer used for chunk contextualization.
	ContextModel() Completer

	// Dimension returns the length of vectors produced by Embedder.
	Dimension() int

	// Close releases resources held by the provider and its services.
	Close() error
}
