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


// Package retrieval answers questions from the vector index.
//
// The Retriever embeds a query and returns the nearest passages together
// with their citations. The Assembler grounds a chat completion in those
// passages:
//   - the latest user message is used as the retrieval query
//   - distinct passages are rendered into a context block
//   - the full conversation follows the system instruction
//
// A conversation without a user message is answered from history alone.
package retrieval
