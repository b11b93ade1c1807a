package langchain

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/quarry/ai"
	"github.com/poiesic/quarry/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type recordingModel struct {
	messages []llms.MessageContent
	options  llms.CallOptions
	response *llms.ContentResponse
	err      error
}

func (m *recordingModel) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	for _, opt := range options {
		opt(&m.options)
	}
	return m.response, m.err
}

func (m *recordingModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func TestComplete_MapsRolesAndOptions(t *testing.T) {
	model := &recordingModel{response: &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: "  the answer \n"}}},
	}
	completer := NewCompleter(model, 0.7, 0)

	out, err := completer.Complete(context.Background(), []core.Message{
		{Role: core.RoleSystem, Content: "be helpful"},
		{Role: core.RoleUser, Content: "question"},
		{Role: core.RoleAssistant, Content: "earlier reply"},
	})
	require.NoError(t, err)
	assert.Equal(t, "the answer", out)

	require.Len(t, model.messages, 3)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, model.messages[2].Role)
	assert.Equal(t, llms.TextPart("question"), model.messages[1].Parts[0])
	assert.Equal(t, 0.7, model.options.Temperature)
	assert.Zero(t, model.options.MaxTokens)
}

func TestComplete_OptionOverrides(t *testing.T) {
	model := &recordingModel{response: &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: "ctx"}}},
	}
	completer := NewCompleter(model, 0.7, 0)

	_, err := completer.Complete(context.Background(),
		[]core.Message{{Role: core.RoleUser, Content: "x"}},
		ai.WithTemperature(0.1), ai.WithMaxTokens(300))
	require.NoError(t, err)
	assert.Equal(t, 0.1, model.options.Temperature)
	assert.Equal(t, 300, model.options.MaxTokens)
}

func TestComplete_Errors(t *testing.T) {
	t.Run("model failure", func(t *testing.T) {
		model := &recordingModel{err: errors.New("boom")}
		_, err := NewCompleter(model, 0, 0).Complete(context.Background(), nil)
		assert.ErrorIs(t, err, core.ErrCapability)
	})

	t.Run("deadline", func(t *testing.T) {
		model := &recordingModel{err: context.DeadlineExceeded}
		_, err := NewCompleter(model, 0, 0).Complete(context.Background(), nil)
		assert.ErrorIs(t, err, core.ErrCapabilityTimeout)
	})

	t.Run("no choices", func(t *testing.T) {
		model := &recordingModel{response: &llms.ContentResponse{}}
		_, err := NewCompleter(model, 0, 0).Complete(context.Background(), nil)
		assert.ErrorIs(t, err, core.ErrCapability)
	})
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	cfg := ai.DefaultConfig()
	cfg.ChatModel = ""
	_, err := NewProvider(cfg)
	assert.Error(t, err)
}

func TestNewProvider(t *testing.T) {
	cfg := ai.NewConfig(ai.WithHost("http://localhost:11434"), ai.WithAPIKey("none"))
	provider, err := NewProvider(cfg)
	require.NoError(t, err)
	defer provider.Close()

	assert.NotNil(t, provider.Embedder())
	assert.NotNil(t, provider.ChatModel())
	assert.NotNil(t, provider.ContextModel())
	assert.Equal(t, 1536, provider.Dimension())
}
