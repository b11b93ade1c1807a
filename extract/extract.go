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


// Package extract turns PDF bytes into per-page text.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/poiesic/quarry/core"
)

// Page is the text of one PDF page. Number is 1-based.
type Page struct {
	Number int
	Text   string
}

// PDFExtractor extracts page text with github.com/ledongthuc/pdf.
// Extraction is all-or-nothing: any unreadable page fails the whole document.
type PDFExtractor struct {
	logger *slog.Logger
}

// NewPDFExtractor creates a PDFExtractor.
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{logger: slog.Default().With("component", "pdf-extractor")}
}

// Extract returns every page in order, including pages without text.
// Failures are reported as core.ErrUnreadablePDF.
func (e *PDFExtractor) Extract(ctx context.Context, data []byte) (pages []Page, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: %v", core.ErrUnreadablePDF, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrUnreadablePDF, err)
	}

	count := reader.NumPage()
	if count == 0 {
		return nil, fmt.Errorf("%w: document has no pages", core.ErrUnreadablePDF)
	}

	pages = make([]Page, 0, count)
	for i := 1; i <= count; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, Page{Number: i})
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %w", core.ErrUnreadablePDF, i, err)
		}
		pages = append(pages, Page{Number: i, Text: strings.TrimSpace(text)})
	}

	e.logger.Debug("extracted pdf", "pages", len(pages), "size", len(data))
	return pages, nil
}
