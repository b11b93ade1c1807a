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


package langchain

import (
	"log/slog"

	"github.com/poiesic/quarry/ai"
)

// Provider implements ai.AIProvider on langchaingo clients.
type Provider struct {
	config   *ai.Config
	embedder *Embedder
	chat     *Completer
	context  *Completer
	logger   *slog.Logger
}

// NewProvider creates a new AI provider.
// The config is validated and normalized before use.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(config)
	if err != nil {
		return nil, err
	}

	chat, err := newChatCompleter(config)
	if err != nil {
		return nil, err
	}

	contextCompleter, err := newContextCompleter(config)
	if err != nil {
		return nil, err
	}

	return &Provider{
		config:   config,
		embedder: embedder,
		chat:     chat,
		context:  contextCompleter,
		logger:   slog.Default().With("component", "langchain-provider"),
	}, nil
}

// Embedder returns the text embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// ChatModel returns the answer completer.
func (p *Provider) ChatModel() ai.Completer {
	return p.chat
}

// ContextModel returns the contextualization completer.
func (p *Provider) ContextModel() ai.Completer {
	return p.context
}

// Dimension returns the configured embedding length.
func (p *Provider) Dimension() int {
	return p.config.EmbeddingDimension
}

// Close is a no-op; the underlying HTTP clients need no cleanup.
func (p *Provider) Close() error {
	p.logger.Debug("closing langchain provider")
	return nil
}
