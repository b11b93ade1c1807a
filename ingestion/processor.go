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


package ingestion

import (
	"context"

	"github.com/poiesic/quarry/extract"
)

// Fetcher resolves a storage location to raw, signature-checked bytes.
// source.Locator is the production implementation.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// Extractor turns PDF bytes into per-page text.
// extract.PDFExtractor is the production implementation.
type Extractor interface {
	Extract(ctx context.Context, data []byte) ([]extract.Page, error)
}

// pageChunks is one extracted page ready to persist.
type pageChunks struct {
	page   extract.Page
	chunks []string
}
