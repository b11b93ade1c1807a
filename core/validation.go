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


package core

import (
	"fmt"
	"strings"
)

// ValidateCompany validates a Company according to domain rules.
//
// Validation rules:
//   - Ticker must not be blank
//   - Name must not be blank
func ValidateCompany(company *Company) error {
	if company == nil {
		return fmt.Errorf("%w: company is nil", ErrInvalidCompany)
	}
	if strings.TrimSpace(company.Ticker) == "" {
		return fmt.Errorf("%w: ticker: %w", ErrInvalidCompany, ErrEmptyText)
	}
	if strings.TrimSpace(company.Name) == "" {
		return fmt.Errorf("%w: name: %w", ErrInvalidCompany, ErrEmptyText)
	}
	return nil
}

// ValidateResource validates a Resource according to domain rules.
//
// Validation rules:
//   - CompanyId must be set
//   - StorageLocation must not be blank
func ValidateResource(resource *Resource) error {
	if resource == nil {
		return fmt.Errorf("%w: resource is nil", ErrInvalidResource)
	}
	if resource.CompanyId == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidResource, ErrMissingOwner)
	}
	if strings.TrimSpace(resource.StorageLocation) == "" {
		return fmt.Errorf("%w: storage location: %w", ErrInvalidResource, ErrEmptyText)
	}
	return nil
}

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - CompanyId must be set
//   - PageNumber must be positive
//   - FilePath must not be blank
//
// Text may be empty: a blank page still yields a Document.
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}
	if doc.CompanyId == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrMissingOwner)
	}
	if doc.PageNumber < 1 {
		return fmt.Errorf("%w: page number %d", ErrInvalidDocument, doc.PageNumber)
	}
	if strings.TrimSpace(doc.FilePath) == "" {
		return fmt.Errorf("%w: file path: %w", ErrInvalidDocument, ErrEmptyText)
	}
	return nil
}

// ValidateChunk validates a Chunk according to domain rules.
//
// Validation rules:
//   - CompanyId must be set
//   - Text must not be blank
//
// DocumentId is assigned when the chunk is stored with its document.
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}
	if chunk.CompanyId == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrMissingOwner)
	}
	if strings.TrimSpace(chunk.Text) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyText)
	}
	return nil
}

// NormalizeTicker returns the canonical upper-case ticker.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}
