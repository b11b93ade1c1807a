package mock

import (
	"context"
	"sync"

	"github.com/poiesic/quarry/ai"
	"github.com/poiesic/quarry/core"
)

// MockCompleter is a test double for ai.Completer.
// Every call is recorded so tests can inspect the prompts that were sent.
type MockCompleter struct {
	// CompleteFunc is called by Complete if set.
	// If nil, the content of the last message is returned.
	CompleteFunc func(ctx context.Context, messages []core.Message, opts ai.CompleteOptions) (string, error)

	// Temperature and MaxTokens are the defaults options are applied over.
	Temperature float64
	MaxTokens   int

	mu    sync.Mutex
	calls []Call
}

// Call is one recorded Complete invocation.
type Call struct {
	Messages []core.Message
	Options  ai.CompleteOptions
}

// NewMockCompleter creates a mock completer that echoes the last message.
func NewMockCompleter() *MockCompleter {
	return &MockCompleter{}
}

// Complete records the call and returns the injected or echoed response.
func (m *MockCompleter) Complete(ctx context.Context, messages []core.Message, opts ...ai.CompleteOption) (string, error) {
	options := ai.NewCompleteOptions(m.Temperature, m.MaxTokens, opts...)
	copied := append([]core.Message(nil), messages...)

	m.mu.Lock()
	m.calls = append(m.calls, Call{Messages: copied, Options: options})
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, copied, options)
	}
	if len(messages) == 0 {
		return "", nil
	}
	return messages[len(messages)-1].Content, nil
}

// CallCount returns the number of Complete calls.
func (m *MockCompleter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Calls returns a copy of every recorded call.
func (m *MockCompleter) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// Reset clears recorded calls and injected behavior.
func (m *MockCompleter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.CompleteFunc = nil
}
