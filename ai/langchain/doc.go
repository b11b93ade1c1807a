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


// Package langchain provides AI service implementations built on langchaingo.
//
// Embeddings and chat completions go to OpenAI or any OpenAI-compatible
// server (Ollama, LocalAI, vLLM). Chunk contextualization can instead be
// served by Anthropic when ai.Config.ContextProvider is "anthropic".
//
// # Usage
//
//	cfg := ai.NewConfig(
//	    ai.WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	    ai.WithContextModel(ai.ProviderAnthropic, "claude-3-haiku-20240307"),
//	    ai.WithAnthropicAPIKey(os.Getenv("ANTHROPIC_API_KEY")),
//	)
//
//	provider, err := langchain.NewProvider(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vector, err := provider.Embedder().EmbedText(ctx, "sample text")
package langchain
