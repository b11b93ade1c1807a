package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/poiesic/quarry/ai"
	"github.com/poiesic/quarry/ai/mock"
	"github.com/poiesic/quarry/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRetriever returns fixed passages and records the queries it receives.
type fakeRetriever struct {
	passages []core.Passage
	err      error
	queries  []string
	topKs    []int
}

func (f *fakeRetriever) Search(_ context.Context, query string, topK int) ([]core.Passage, error) {
	f.queries = append(f.queries, query)
	f.topKs = append(f.topKs, topK)
	return f.passages, f.err
}

func twoPassages() []core.Passage {
	return []core.Passage{
		{
			Citation: core.Citation{ChunkId: 11, DocumentId: 3, CompanyId: 1, FilePath: "acme/2023_annual.pdf", PageNumber: 4},
			Content:  "Revenue was $12M.",
			Score:    0.91,
		},
		{
			Citation: core.Citation{ChunkId: 12, DocumentId: 5, CompanyId: 1, FilePath: "acme/notes.pdf"},
			Content:  "Revenue grew 15%.",
			Score:    0.83,
		},
	}
}

func TestNewAssembler_Validation(t *testing.T) {
	completer := mock.NewMockCompleter()

	_, err := NewAssembler(nil, completer)
	assert.Equal(t, ErrRetrieverRequired, err)

	_, err = NewAssembler(&fakeRetriever{}, nil)
	assert.Equal(t, ErrCompleterRequired, err)

	_, err = NewAssembler(&fakeRetriever{}, completer, WithTopK(0))
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	_, err = NewAssembler(&fakeRetriever{}, completer, WithSystemPrompt(" "))
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestAnswer_GroundsInRetrievedPassages(t *testing.T) {
	retriever := &fakeRetriever{passages: twoPassages()}
	completer := &mock.MockCompleter{
		CompleteFunc: func(context.Context, []core.Message, ai.CompleteOptions) (string, error) {
			return "Revenue was $12M, up 15%.", nil
		},
	}
	a, err := NewAssembler(retriever, completer)
	require.NoError(t, err)

	answer, err := a.Answer(context.Background(), []core.Message{
		{Role: core.RoleUser, Content: "What is the revenue?"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Revenue was $12M, up 15%.", answer.Content)
	require.Len(t, answer.Citations, 2)
	assert.Equal(t, core.Citation{ChunkId: 11, DocumentId: 3, CompanyId: 1, FilePath: "acme/2023_annual.pdf", PageNumber: 4}, answer.Citations[0])
	assert.Equal(t, core.Citation{ChunkId: 12, DocumentId: 5, CompanyId: 1, FilePath: "acme/notes.pdf", PageNumber: 0}, answer.Citations[1])

	assert.Equal(t, []string{"What is the revenue?"}, retriever.queries)
	assert.Equal(t, []int{DefaultTopK}, retriever.topKs)

	require.Equal(t, 1, completer.CallCount())
	call := completer.Calls()[0]
	assert.InDelta(t, DefaultTemperature, call.Options.Temperature, 1e-9)
	require.Len(t, call.Messages, 3)
	assert.Equal(t, core.Message{
		Role:    core.RoleSystem,
		Content: "Context from knowledge base:\n\n---\nRevenue was $12M.\n---\n---\nRevenue grew 15%.\n---\n",
	}, call.Messages[0])
	assert.Equal(t, core.Message{Role: core.RoleSystem, Content: DefaultSystemPrompt}, call.Messages[1])
	assert.Equal(t, core.Message{Role: core.RoleUser, Content: "What is the revenue?"}, call.Messages[2])
}

func TestAnswer_UsesLatestUserMessage(t *testing.T) {
	retriever := &fakeRetriever{}
	completer := mock.NewMockCompleter()
	a, err := NewAssembler(retriever, completer, WithTopK(5))
	require.NoError(t, err)

	history := []core.Message{
		{Role: core.RoleUser, Content: "Tell me about Acme."},
		{Role: core.RoleAssistant, Content: "Acme runs hospitals."},
		{Role: core.RoleUser, Content: "How many beds?"},
		{Role: core.RoleAssistant, Content: "Let me check."},
	}
	_, err = a.Answer(context.Background(), history)
	require.NoError(t, err)

	assert.Equal(t, []string{"How many beds?"}, retriever.queries)
	assert.Equal(t, []int{5}, retriever.topKs)

	messages := completer.Calls()[0].Messages
	require.Len(t, messages, 5, "no context block when nothing was retrieved")
	assert.Equal(t, DefaultSystemPrompt, messages[0].Content)
	assert.Equal(t, history, messages[1:])
}

func TestAnswer_DeduplicatesPassages(t *testing.T) {
	passages := twoPassages()
	retriever := &fakeRetriever{passages: append(passages, passages[0])}
	completer := mock.NewMockCompleter()
	a, err := NewAssembler(retriever, completer)
	require.NoError(t, err)

	answer, err := a.Answer(context.Background(), []core.Message{{Role: core.RoleUser, Content: "revenue?"}})
	require.NoError(t, err)
	assert.Len(t, answer.Citations, 2)
	assert.Equal(t, 1, strings.Count(completer.Calls()[0].Messages[0].Content, "Revenue was $12M."))
}

func TestAnswer_NoUserMessageSkipsRetrieval(t *testing.T) {
	retriever := &fakeRetriever{passages: twoPassages()}
	completer := mock.NewMockCompleter()
	a, err := NewAssembler(retriever, completer)
	require.NoError(t, err)

	answer, err := a.Answer(context.Background(), []core.Message{
		{Role: core.RoleAssistant, Content: "How can I help?"},
	})
	require.NoError(t, err)
	assert.Empty(t, retriever.queries)
	assert.Empty(t, answer.Citations)
	assert.Equal(t, "How can I help?", answer.Content)
	assert.Len(t, completer.Calls()[0].Messages, 2)
}

func TestAnswer_RetrievalFailureReturnsNoCitations(t *testing.T) {
	retriever := &fakeRetriever{passages: twoPassages(), err: ErrRetrieval}
	completer := mock.NewMockCompleter()
	a, err := NewAssembler(retriever, completer)
	require.NoError(t, err)

	answer, err := a.Answer(context.Background(), []core.Message{{Role: core.RoleUser, Content: "revenue?"}})
	assert.ErrorIs(t, err, ErrRetrieval)
	assert.Nil(t, answer)
	assert.Zero(t, completer.CallCount())
}

func TestAnswer_CompletionFailure(t *testing.T) {
	completer := &mock.MockCompleter{
		CompleteFunc: func(context.Context, []core.Message, ai.CompleteOptions) (string, error) {
			return "", errors.New("bad request")
		},
	}
	a, err := NewAssembler(&fakeRetriever{}, completer, WithRetryPolicy(fastPolicy()))
	require.NoError(t, err)

	_, err = a.Answer(context.Background(), []core.Message{{Role: core.RoleUser, Content: "revenue?"}})
	assert.Error(t, err)
	assert.Equal(t, 1, completer.CallCount(), "non-transient errors are not retried")
}

func TestAnswer_EmptyHistory(t *testing.T) {
	a, err := NewAssembler(&fakeRetriever{}, mock.NewMockCompleter())
	require.NoError(t, err)

	_, err = a.Answer(context.Background(), nil)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestAnswer_WithRealRetriever(t *testing.T) {
	store := setupStore(t)
	indexPayloads(t, store, "revenue rose 15%", "margins fell", "guidance held", "beds added")
	retriever, err := NewRetriever(mock.NewMockEmbedder(), store)
	require.NoError(t, err)
	a, err := NewAssembler(retriever, mock.NewMockCompleter())
	require.NoError(t, err)

	answer, err := a.Answer(context.Background(), []core.Message{{Role: core.RoleUser, Content: "margins fell"}})
	require.NoError(t, err)
	require.Len(t, answer.Citations, DefaultTopK)
	assert.Equal(t, core.ID(2), answer.Citations[0].ChunkId)
}

func TestGenerateTitle(t *testing.T) {
	completer := &mock.MockCompleter{
		CompleteFunc: func(context.Context, []core.Message, ai.CompleteOptions) (string, error) {
			return "\"Acme Revenue Growth\"\n", nil
		},
	}
	a, err := NewAssembler(&fakeRetriever{}, completer)
	require.NoError(t, err)

	title, err := a.GenerateTitle(context.Background(), "What is the revenue?")
	require.NoError(t, err)
	assert.Equal(t, "Acme Revenue Growth", title)

	messages := completer.Calls()[0].Messages
	require.Len(t, messages, 2)
	assert.Equal(t, core.RoleSystem, messages[0].Role)
	assert.Equal(t, "Generate a short, concise title (max 6 words) for a chat that starts with: What is the revenue?", messages[1].Content)

	_, err = a.GenerateTitle(context.Background(), "")
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestBuildContext_Empty(t *testing.T) {
	assert.Empty(t, BuildContext(nil))
}
