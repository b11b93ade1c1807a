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


package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/quarry/ai"
	"github.com/poiesic/quarry/core"
	"github.com/poiesic/quarry/retry"
)

const (
	// DefaultTopK is the number of passages retrieved for a question.
	DefaultTopK = 3

	// DefaultTemperature is the sampling temperature for answers and titles.
	DefaultTemperature = 0.7

	// DefaultSystemPrompt is the fixed instruction given to the chat model.
	DefaultSystemPrompt = "You are a helpful AI assistant that provides accurate, " +
		"informative, and engaging responses. Always strive to give detailed explanations " +
		"and cite sources when possible."

	contextHeader = "Context from knowledge base:\n\n"

	titleSystemPrompt = "You are a helpful assistant that generates short, concise chat titles."
	titlePrompt       = "Generate a short, concise title (max 6 words) for a chat that starts with: "
)

// PassageSource finds passages for a query. *Retriever implements it.
type PassageSource interface {
	Search(ctx context.Context, query string, topK int) ([]core.Passage, error)
}

var _ PassageSource = (*Retriever)(nil)

// Assembler grounds chat completions in retrieved passages.
type Assembler struct {
	retriever    PassageSource
	completer    ai.Completer
	topK         int
	systemPrompt string
	temperature  float64
	policy       retry.Policy
	logger       *slog.Logger
}

// Option configures an Assembler.
type Option func(*Assembler) error

// WithTopK sets how many passages ground an answer. Default is DefaultTopK.
func WithTopK(k int) Option {
	return func(a *Assembler) error {
		if k <= 0 {
			return fmt.Errorf("%w: top_k must be positive, got %d", core.ErrInvalidArgument, k)
		}
		a.topK = k
		return nil
	}
}

// WithSystemPrompt replaces DefaultSystemPrompt.
func WithSystemPrompt(prompt string) Option {
	return func(a *Assembler) error {
		if strings.TrimSpace(prompt) == "" {
			return fmt.Errorf("%w: system prompt is empty", core.ErrInvalidArgument)
		}
		a.systemPrompt = prompt
		return nil
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(a *Assembler) error {
		a.temperature = t
		return nil
	}
}

// WithRetryPolicy sets how failed completion calls are retried.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(a *Assembler) error {
		if policy.MaxAttempts <= 0 {
			return retry.ErrInvalidMaxAttempts
		}
		a.policy = policy
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Assembler) error {
		if logger == nil {
			logger = slog.Default()
		}
		a.logger = logger
		return nil
	}
}

// NewAssembler creates an Assembler.
func NewAssembler(retriever PassageSource, completer ai.Completer, opts ...Option) (*Assembler, error) {
	if retriever == nil {
		return nil, ErrRetrieverRequired
	}
	if completer == nil {
		return nil, ErrCompleterRequired
	}

	a := &Assembler{
		retriever:    retriever,
		completer:    completer,
		topK:         DefaultTopK,
		systemPrompt: DefaultSystemPrompt,
		temperature:  DefaultTemperature,
		policy:       retry.DefaultPolicy(),
		logger:       slog.Default().With("component", "assembler"),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// LatestUserMessage returns the content of the last user message in history.
func LatestUserMessage(history []core.Message) (string, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == core.RoleUser {
			return history[i].Content, true
		}
	}
	return "", false
}

// Distinct drops passages whose chunk was already seen, keeping rank order.
func Distinct(passages []core.Passage) []core.Passage {
	seen := make(map[core.ID]bool, len(passages))
	result := make([]core.Passage, 0, len(passages))
	for _, p := range passages {
		if seen[p.Citation.ChunkId] {
			continue
		}
		seen[p.Citation.ChunkId] = true
		result = append(result, p)
	}
	return result
}

// BuildContext renders passages as the grounding block.
// Returns "" when there are no passages.
func BuildContext(passages []core.Passage) string {
	if len(passages) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(contextHeader)
	for _, p := range passages {
		b.WriteString("---\n")
		b.WriteString(p.Content)
		b.WriteString("\n---\n")
	}
	return b.String()
}

// BuildMessages lays out the prompt: context block, system instruction,
// then the user and assistant turns of history in order.
func BuildMessages(systemPrompt string, passages []core.Passage, history []core.Message) []core.Message {
	messages := make([]core.Message, 0, len(history)+2)
	if block := BuildContext(passages); block != "" {
		messages = append(messages, core.Message{Role: core.RoleSystem, Content: block})
	}
	messages = append(messages, core.Message{Role: core.RoleSystem, Content: systemPrompt})
	for _, m := range history {
		if m.Role == core.RoleUser || m.Role == core.RoleAssistant {
			messages = append(messages, m)
		}
	}
	return messages
}

// Answer generates the next assistant message for history. The returned
// citations are those of the distinct passages placed in the prompt, in rank order.
// A retrieval failure fails the whole call so no partial citations escape.
func (a *Assembler) Answer(ctx context.Context, history []core.Message) (*core.Answer, error) {
	if len(history) == 0 {
		return nil, fmt.Errorf("%w: conversation history is empty", core.ErrInvalidArgument)
	}

	var passages []core.Passage
	if question, ok := LatestUserMessage(history); ok && strings.TrimSpace(question) != "" {
		found, err := a.retriever.Search(ctx, question, a.topK)
		if err != nil {
			a.logger.Error("retrieval failed", "err", err)
			return nil, err
		}
		passages = Distinct(found)
	} else {
		a.logger.Debug("no user message, answering from history alone")
	}

	messages := BuildMessages(a.systemPrompt, passages, history)
	content, err := a.complete(ctx, messages)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	citations := make([]core.Citation, len(passages))
	for i, p := range passages {
		citations[i] = p.Citation
	}
	return &core.Answer{Content: content, Citations: citations}, nil
}

// GenerateTitle asks the chat model for a short title for a conversation
// opening with firstMessage. Surrounding quotes are removed.
func (a *Assembler) GenerateTitle(ctx context.Context, firstMessage string) (string, error) {
	if strings.TrimSpace(firstMessage) == "" {
		return "", fmt.Errorf("%w: first message is empty", core.ErrInvalidArgument)
	}
	title, err := a.complete(ctx, []core.Message{
		{Role: core.RoleSystem, Content: titleSystemPrompt},
		{Role: core.RoleUser, Content: titlePrompt + firstMessage},
	})
	if err != nil {
		return "", fmt.Errorf("generate title: %w", err)
	}
	return strings.Trim(strings.TrimSpace(title), `"`), nil
}

func (a *Assembler) complete(ctx context.Context, messages []core.Message) (string, error) {
	var content string
	err := retry.Do(ctx, a.policy, func(ctx context.Context) error {
		var err error
		content, err = a.completer.Complete(ctx, messages, ai.WithTemperature(a.temperature))
		return err
	})
	return content, err
}
