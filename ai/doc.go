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


// Package ai provides abstractions for the AI services used by Quarry.
//
// The package defines three interfaces:
//
//   - Embedder: generates vector embeddings from text
//   - Completer: generates chat completions from a message list
//   - AIProvider: aggregates the embedder with the chat and context completers
//
// # Implementation Packages
//
//   - ai/langchain: production implementation on langchaingo, talking to
//     OpenAI-compatible APIs and, for contextualization, optionally Anthropic
//   - ai/cache: a redis-backed caching decorator for any Embedder
//   - ai/mock: test doubles for unit testing without external services
//
// Public production constructors return interface types. Mock constructors
// return concrete types so tests can inject behavior and inspect call counts.
//
// # Usage Example
//
//	cfg := ai.NewConfig(ai.WithAPIKey(os.Getenv("OPENAI_API_KEY")))
//	provider, err := langchain.NewProvider(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vector, err := provider.Embedder().EmbedText(ctx, "quarterly revenue")
//	reply, err := provider.ChatModel().Complete(ctx, []core.Message{
//	    {Role: core.RoleUser, Content: "Hello"},
//	})
package ai
