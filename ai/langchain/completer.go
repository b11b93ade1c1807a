package langchain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/quarry/ai"
	"github.com/poiesic/quarry/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"
)

// Completer implements ai.Completer on any langchaingo model.
type Completer struct {
	client      llms.Model
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

// newCompleter wraps client with default sampling settings.
func newCompleter(client llms.Model, temperature float64, maxTokens int, name string) *Completer {
	return &Completer{
		client:      client,
		temperature: temperature,
		maxTokens:   maxTokens,
		logger:      slog.Default().With("component", name),
	}
}

// newChatCompleter creates the OpenAI-compatible completer used for answers.
func newChatCompleter(config *ai.Config) (*Completer, error) {
	client, err := openai.New(
		openai.WithBaseURL(config.ChatHost),
		openai.WithToken(config.APIKey),
		openai.WithModel(config.ChatModel),
	)
	if err != nil {
		return nil, err
	}
	return newCompleter(client, config.ChatTemperature, 0, "langchain-chat"), nil
}

// newContextCompleter creates the completer used for contextualization on the configured provider.
func newContextCompleter(config *ai.Config) (*Completer, error) {
	var client llms.Model
	var err error
	switch config.ContextProvider {
	case ai.ProviderAnthropic:
		client, err = anthropic.New(
			anthropic.WithToken(config.AnthropicAPIKey),
			anthropic.WithModel(config.ContextModel),
		)
	default:
		client, err = openai.New(
			openai.WithBaseURL(config.ChatHost),
			openai.WithToken(config.APIKey),
			openai.WithModel(config.ContextModel),
		)
	}
	if err != nil {
		return nil, err
	}
	return newCompleter(client, config.ContextTemperature, config.ContextMaxTokens, "langchain-context"), nil
}

// NewCompleter wraps an existing langchaingo model.
func NewCompleter(client llms.Model, temperature float64, maxTokens int) ai.Completer {
	return newCompleter(client, temperature, maxTokens, "langchain-completer")
}

// Complete sends messages to the model and returns the first choice's text.
func (c *Completer) Complete(ctx context.Context, messages []core.Message, opts ...ai.CompleteOption) (string, error) {
	options := ai.NewCompleteOptions(c.temperature, c.maxTokens, opts...)

	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		content = append(content, llms.MessageContent{
			Role:  chatMessageType(m.Role),
			Parts: []llms.ContentPart{llms.TextPart(m.Content)},
		})
	}

	callOpts := []llms.CallOption{llms.WithTemperature(options.Temperature)}
	if options.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(options.MaxTokens))
	}

	c.logger.Debug("generating completion", "messages", len(messages), "temperature", options.Temperature)
	response, err := c.client.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		c.logger.Error("failed to generate content", "err", err)
		return "", core.CapabilityError(err)
	}
	if len(response.Choices) < 1 {
		return "", fmt.Errorf("%w: no choices returned from model", core.ErrCapability)
	}

	return strings.TrimSpace(response.Choices[0].Content), nil
}

// chatMessageType maps a conversation role onto the langchaingo message type.
func chatMessageType(role core.Role) llms.ChatMessageType {
	switch role {
	case core.RoleSystem:
		return llms.ChatMessageTypeSystem
	case core.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
