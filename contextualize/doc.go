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


// Package contextualize annotates chunks with a short description that
// situates them within their document, which improves retrieval of chunks
// whose text alone is ambiguous.
//
// Every chunk is committed as soon as its context is generated, so an
// interrupted run keeps its progress. Re-running overwrites existing context
// unless the Contextualizer is configured to fill in missing context only.
package contextualize
