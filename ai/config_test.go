package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "https://api.openai.com/v1", cfg.EmbeddingHost)
	assert.Equal(t, "https://api.openai.com/v1", cfg.ChatHost)
	assert.Equal(t, 1536, cfg.EmbeddingDimension)
	assert.Equal(t, 0.7, cfg.ChatTemperature)
	assert.Equal(t, 0.1, cfg.ContextTemperature)
	assert.Equal(t, 300, cfg.ContextMaxTokens)
	assert.Equal(t, ProviderOpenAI, cfg.ContextProvider)
	require.NoError(t, cfg.Validate())
}

func TestNewConfig(t *testing.T) {
	t.Run("with custom host", func(t *testing.T) {
		cfg := NewConfig(WithHost("http://custom:8080/v1"))
		assert.Equal(t, "http://custom:8080/v1", cfg.EmbeddingHost)
		assert.Equal(t, "http://custom:8080/v1", cfg.ChatHost)
	})

	t.Run("with separate hosts", func(t *testing.T) {
		cfg := NewConfig(
			WithEmbeddingHost("http://embed:8080/v1"),
			WithChatHost("http://chat:9090/v1"),
		)
		assert.Equal(t, "http://embed:8080/v1", cfg.EmbeddingHost)
		assert.Equal(t, "http://chat:9090/v1", cfg.ChatHost)
	})

	t.Run("with models", func(t *testing.T) {
		cfg := NewConfig(
			WithEmbeddingModel("nomic-embed-text", 768),
			WithChatModel("llama3"),
			WithContextModel(ProviderAnthropic, "claude-3-haiku-20240307"),
			WithAnthropicAPIKey("secret"),
		)
		assert.Equal(t, "nomic-embed-text", cfg.EmbeddingModel)
		assert.Equal(t, 768, cfg.EmbeddingDimension)
		assert.Equal(t, "llama3", cfg.ChatModel)
		assert.Equal(t, ProviderAnthropic, cfg.ContextProvider)
		require.NoError(t, cfg.Validate())
	})
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		expected string
	}{
		{"already suffixed", "http://localhost:11434/v1", "http://localhost:11434/v1"},
		{"missing suffix", "http://localhost:11434", "http://localhost:11434/v1"},
		{"trailing slash", "http://localhost:11434/", "http://localhost:11434/v1"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{EmbeddingHost: tt.host, ChatHost: tt.host, ContextProvider: " OpenAI "}
			cfg.Normalize()
			assert.Equal(t, tt.expected, cfg.EmbeddingHost)
			assert.Equal(t, tt.expected, cfg.ChatHost)
			assert.Equal(t, ProviderOpenAI, cfg.ContextProvider)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"missing embedding host", func(c *Config) { c.EmbeddingHost = "" }, "EmbeddingHost"},
		{"missing chat host", func(c *Config) { c.ChatHost = "" }, "ChatHost"},
		{"missing embedding model", func(c *Config) { c.EmbeddingModel = "" }, "EmbeddingModel"},
		{"zero dimension", func(c *Config) { c.EmbeddingDimension = 0 }, "EmbeddingDimension"},
		{"missing chat model", func(c *Config) { c.ChatModel = "" }, "ChatModel"},
		{"missing context model", func(c *Config) { c.ContextModel = "" }, "ContextModel"},
		{"unknown provider", func(c *Config) { c.ContextProvider = "cohere" }, "ContextProvider"},
		{"anthropic without key", func(c *Config) { c.ContextProvider = ProviderAnthropic }, "AnthropicAPIKey"},
		{"zero max tokens", func(c *Config) { c.ContextMaxTokens = 0 }, "ContextMaxTokens"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestNewCompleteOptions(t *testing.T) {
	defaults := NewCompleteOptions(0.7, 0)
	assert.Equal(t, 0.7, defaults.Temperature)
	assert.Zero(t, defaults.MaxTokens)

	tuned := NewCompleteOptions(0.7, 0, WithTemperature(0.1), WithMaxTokens(300))
	assert.Equal(t, 0.1, tuned.Temperature)
	assert.Equal(t, 300, tuned.MaxTokens)
}
