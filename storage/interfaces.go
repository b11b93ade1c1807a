package storage

import (
	"context"

	"github.com/poiesic/quarry/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close releases resources held by the repository.
	Close() error
}

// CompanyRepository provides operations for managing companies.
type CompanyRepository interface {
	Repository
	// AddCompanies stores new companies, assigning IDs and normalizing tickers.
	// Returns ErrDuplicateKey if a ticker is already registered.
	AddCompanies(ctx context.Context, companies ...*core.Company) ([]*core.Company, error)

	// UpdateCompany replaces an existing company.
	// Returns ErrNotFound if the company doesn't exist.
	UpdateCompany(ctx context.Context, company *core.Company) error

	// GetCompany retrieves a company by ID.
	// Returns ErrNotFound if the company doesn't exist.
	GetCompany(ctx context.Context, id core.ID) (*core.Company, error)

	// GetCompanyByTicker retrieves a company by ticker, case-insensitively.
	// Returns ErrNotFound if no company carries the ticker.
	GetCompanyByTicker(ctx context.Context, ticker string) (*core.Company, error)

	// ListCompanies returns every company ordered by ID.
	ListCompanies(ctx context.Context) ([]*core.Company, error)

	// SearchCompanies returns companies whose name or ticker contains query,
	// case-insensitively, ordered by ID.
	SearchCompanies(ctx context.Context, query string) ([]*core.Company, error)
}

// ResourceRepository provides operations for managing resources and their lifecycle flags.
type ResourceRepository interface {
	Repository
	// AddResources stores new resources with Ingested and Indexed cleared.
	// Returns ErrDuplicateKey if a SourceLocation is already registered.
	AddResources(ctx context.Context, resources ...*core.Resource) ([]*core.Resource, error)

	// GetResource retrieves a resource by ID.
	// Returns ErrNotFound if the resource doesn't exist.
	GetResource(ctx context.Context, id core.ID) (*core.Resource, error)

	// FindBySourceLocation retrieves the resource registered for a local source path.
	// Returns ErrNotFound if none is registered.
	FindBySourceLocation(ctx context.Context, source string) (*core.Resource, error)

	// ListPending returns up to limit resources that are not yet ingested, ordered by ID.
	// A limit <= 0 returns all of them.
	ListPending(ctx context.Context, limit int) ([]*core.Resource, error)

	// ListByCompany returns every resource owned by a company, ordered by ID.
	ListByCompany(ctx context.Context, companyID core.ID) ([]*core.Resource, error)

	// MarkIngested flips the ingested flag and records the content checksum.
	// Marking an already ingested resource is a no-op.
	MarkIngested(ctx context.Context, id core.ID, checksum string) error

	// MarkIndexed sets the indexed flag.
	MarkIndexed(ctx context.Context, ids ...core.ID) error
}

// DocumentRepository provides operations for managing documents.
type DocumentRepository interface {
	Repository
	// AddDocument stores a document together with its chunks in one atomic unit.
	// IDs are assigned to the document and every chunk; chunks inherit the
	// document's ID and keep the order they are given in.
	AddDocument(ctx context.Context, doc *core.Document, chunks ...*core.Chunk) (*core.Document, error)

	// GetDocument retrieves a document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// GetDocuments retrieves multiple documents, skipping missing IDs.
	GetDocuments(ctx context.Context, ids ...core.ID) ([]*core.Document, error)

	// ListByResource returns a resource's documents ordered by page number.
	ListByResource(ctx context.Context, resourceID core.ID) ([]*core.Document, error)

	// ListByCompany returns a company's documents ordered by ID.
	ListByCompany(ctx context.Context, companyID core.ID) ([]*core.Document, error)

	// ListByFilePath returns documents whose FilePath contains fragment, ordered by ID.
	ListByFilePath(ctx context.Context, fragment string) ([]*core.Document, error)

	// ListWithoutChunks returns documents that have no chunks, ordered by ID.
	ListWithoutChunks(ctx context.Context) ([]*core.Document, error)

	// DeleteByResource removes every document of a resource together with its chunks.
	// Returns the number of documents removed.
	DeleteByResource(ctx context.Context, resourceID core.ID) (int, error)
}

// ChunkRepository provides operations for managing chunks.
type ChunkRepository interface {
	Repository
	// AddChunks appends chunks to an existing document.
	// Returns ErrNotFound if the document doesn't exist.
	AddChunks(ctx context.Context, documentID core.ID, chunks ...*core.Chunk) ([]*core.Chunk, error)

	// GetChunk retrieves a chunk by ID.
	// Returns ErrNotFound if the chunk doesn't exist.
	GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error)

	// ListByDocument returns a document's chunks in page-text order.
	ListByDocument(ctx context.Context, documentID core.ID) ([]*core.Chunk, error)

	// ListChunks returns up to limit chunks with ID greater than afterID, ordered by ID.
	ListChunks(ctx context.Context, afterID core.ID, limit int) ([]*core.Chunk, error)

	// CountChunks returns the number of stored chunks.
	CountChunks(ctx context.Context) (int, error)

	// UpdateContext overwrites a chunk's context. Text is never modified.
	// Returns ErrNotFound if the chunk doesn't exist.
	UpdateContext(ctx context.Context, id core.ID, chunkContext string) error
}

// CheckpointRepository persists progress markers for resumable processors.
type CheckpointRepository interface {
	// SaveCheckpoint persists a checkpoint for a processor type.
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error

	// LoadCheckpoint retrieves the checkpoint for a processor type.
	// Returns nil, nil if no checkpoint exists.
	LoadCheckpoint(ctx context.Context, processorType string) (*core.Checkpoint, error)

	// DeleteCheckpoint removes a processor's checkpoint if present.
	DeleteCheckpoint(ctx context.Context, processorType string) error
}
