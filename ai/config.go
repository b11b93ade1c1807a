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


package ai

import (
	"errors"
	"strings"
)

// Context providers accepted by Config.ContextProvider.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds configuration for AI service providers.
type Config struct {
	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "https://api.openai.com/v1" or "http://localhost:11434/v1"
	EmbeddingHost string

	// EmbeddingModel is the model identifier to use for text embeddings.
	EmbeddingModel string

	// EmbeddingDimension is the length of every vector the embedding model returns.
	// The vector index is created with this dimensionality.
	EmbeddingDimension int

	// ChatHost is the base URL for the OpenAI-compatible chat completion API.
	ChatHost string

	// ChatModel is the model answering grounded questions and titling chats.
	ChatModel string

	// ChatTemperature is the sampling temperature for answers.
	ChatTemperature float64

	// ContextProvider selects the API used for chunk contextualization:
	// ProviderOpenAI (served from ChatHost) or ProviderAnthropic.
	ContextProvider string

	// ContextModel is the model that situates chunks within their documents.
	ContextModel string

	// ContextTemperature is the sampling temperature for contextualization.
	ContextTemperature float64

	// ContextMaxTokens bounds the length of a generated chunk context.
	ContextMaxTokens int

	// APIKey authenticates OpenAI-compatible requests.
	// Local servers that need no key accept the placeholder "none".
	APIKey string

	// AnthropicAPIKey authenticates Anthropic requests.
	AnthropicAPIKey string
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithChatHost sets the chat service host URL.
func WithChatHost(host string) ConfigOption {
	return func(c *Config) {
		c.ChatHost = host
	}
}

// WithHost sets both embedding and chat hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.ChatHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier and its vector length.
func WithEmbeddingModel(model string, dimension int) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
		c.EmbeddingDimension = dimension
	}
}

// WithChatModel sets the chat model identifier.
func WithChatModel(model string) ConfigOption {
	return func(c *Config) {
		c.ChatModel = model
	}
}

// WithContextModel sets the provider and model used for contextualization.
func WithContextModel(provider, model string) ConfigOption {
	return func(c *Config) {
		c.ContextProvider = provider
		c.ContextModel = model
	}
}

// WithAPIKey sets the OpenAI-compatible API key.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithAnthropicAPIKey sets the Anthropic API key.
func WithAnthropicAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.AnthropicAPIKey = key
	}
}

// DefaultConfig returns a Config targeting the hosted OpenAI API.
func DefaultConfig() *Config {
	defaultHost := "https://api.openai.com/v1"
	return &Config{
		EmbeddingHost:      defaultHost,
		EmbeddingModel:     "text-embedding-ada-002",
		EmbeddingDimension: 1536,
		ChatHost:           defaultHost,
		ChatModel:          "gpt-4o",
		ChatTemperature:    0.7,
		ContextProvider:    ProviderOpenAI,
		ContextModel:       "gpt-4o-mini",
		ContextTemperature: 0.1,
		ContextMaxTokens:   300,
		APIKey:             "none",
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithHost("http://localhost:11434/v1"),
//	    WithEmbeddingModel("nomic-embed-text", 768),
//	    WithContextModel(ProviderAnthropic, "claude-3-haiku-20240307"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// OpenAI-compatible hosts get a /v1 suffix when it is missing.
func (c *Config) Normalize() {
	c.EmbeddingHost = withVersionSuffix(c.EmbeddingHost)
	c.ChatHost = withVersionSuffix(c.ChatHost)
	c.ContextProvider = strings.ToLower(strings.TrimSpace(c.ContextProvider))
	if c.ContextProvider == "" {
		c.ContextProvider = ProviderOpenAI
	}
}

func withVersionSuffix(host string) string {
	if host == "" || strings.HasSuffix(host, "/v1") {
		return host
	}
	return strings.TrimSuffix(host, "/") + "/v1"
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.ChatHost == "" {
		return errors.New("ai config: ChatHost is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.EmbeddingDimension <= 0 {
		return errors.New("ai config: EmbeddingDimension must be positive")
	}
	if c.ChatModel == "" {
		return errors.New("ai config: ChatModel is required")
	}
	if c.ContextModel == "" {
		return errors.New("ai config: ContextModel is required")
	}
	if c.ContextProvider != ProviderOpenAI && c.ContextProvider != ProviderAnthropic {
		return errors.New("ai config: ContextProvider must be openai or anthropic")
	}
	if c.ContextProvider == ProviderAnthropic && c.AnthropicAPIKey == "" {
		return errors.New("ai config: AnthropicAPIKey is required for the anthropic provider")
	}
	if c.ContextMaxTokens <= 0 {
		return errors.New("ai config: ContextMaxTokens must be positive")
	}
	return nil
}
