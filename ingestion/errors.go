package ingestion

import "errors"

var (
	// ErrResourceRepositoryRequired is returned when a resource repository is not provided.
	ErrResourceRepositoryRequired = errors.New("resource repository required")

	// ErrDocumentRepositoryRequired is returned when a document repository is not provided.
	ErrDocumentRepositoryRequired = errors.New("document repository required")

	// ErrChunkRepositoryRequired is returned when a chunk repository is not provided.
	ErrChunkRepositoryRequired = errors.New("chunk repository required")

	// ErrFetcherRequired is returned when no source fetcher is provided.
	ErrFetcherRequired = errors.New("source fetcher required")

	// ErrExtractorRequired is returned when no PDF extractor is provided.
	ErrExtractorRequired = errors.New("pdf extractor required")
)
