// Package milvus implements vectorstore.Store on a Milvus collection per index.
//
// Each collection has a VarChar primary key holding the chunk ID, so Upsert
// replaces records in place, plus the payload and citation fields as scalar
// columns.
package milvus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
	"github.com/poiesic/quarry/core"
	"github.com/poiesic/quarry/vectorstore"
)

// Field names of every collection.
const (
	FieldId         = "id"
	FieldEmbedding  = "embedding"
	FieldPayload    = "payload"
	FieldChunkId    = "chunk_id"
	FieldDocumentId = "document_id"
	FieldCompanyId  = "company_id"
	FieldFilePath   = "file_path"
	FieldPageNumber = "page_number"
)

const (
	idMaxLength       = 64
	payloadMaxLength  = 65535
	filePathMaxLength = 2048
	ivfNList          = 128
	searchNProbe      = "16"
)

var outputFields = []string{
	FieldPayload, FieldChunkId, FieldDocumentId, FieldCompanyId, FieldFilePath, FieldPageNumber,
}

// Config holds connection settings.
type Config struct {
	Address  string
	Username string
	Password string
	Database string
	Timeout  time.Duration
}

// Store talks to Milvus through the v2 client.
type Store struct {
	client *milvusclient.Client
	logger *slog.Logger
}

var _ vectorstore.Store = (*Store)(nil)

// New connects to Milvus.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("%w: milvus address is required", core.ErrInvalidArgument)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, core.CapabilityError(fmt.Errorf("connect to milvus: %w", err))
	}
	return &Store{
		client: client,
		logger: slog.Default().With("component", "vectorstore-milvus", "address", cfg.Address),
	}, nil
}

// Schema returns the collection schema for an index.
func Schema(name string, dimension int) *entity.Schema {
	return entity.NewSchema().
		WithName(name).
		WithDescription("chunk embeddings").
		WithAutoID(false).
		WithField(entity.NewField().
			WithName(FieldId).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(idMaxLength).
			WithIsPrimaryKey(true)).
		WithField(entity.NewField().
			WithName(FieldEmbedding).
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(dimension))).
		WithField(entity.NewField().
			WithName(FieldPayload).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(payloadMaxLength)).
		WithField(entity.NewField().WithName(FieldChunkId).WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().WithName(FieldDocumentId).WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().WithName(FieldCompanyId).WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().
			WithName(FieldFilePath).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(filePathMaxLength)).
		WithField(entity.NewField().WithName(FieldPageNumber).WithDataType(entity.FieldTypeInt64))
}

// EnsureIndex creates and loads the collection if it does not exist.
func (s *Store) EnsureIndex(ctx context.Context, name string, dimension int, metric vectorstore.Metric) error {
	if err := vectorstore.ValidateIndexName(name); err != nil {
		return err
	}
	if dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", core.ErrInvalidArgument)
	}
	if metric != vectorstore.MetricCosine {
		return fmt.Errorf("%w: %s", vectorstore.ErrUnsupportedMetric, metric)
	}

	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return core.CapabilityError(fmt.Errorf("check collection: %w", err))
	}
	if exists {
		return nil
	}

	if err := s.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(name, Schema(name, dimension))); err != nil {
		return core.CapabilityError(fmt.Errorf("create collection: %w", err))
	}

	idx := index.NewIvfFlatIndex(entity.COSINE, ivfNList)
	indexTask, err := s.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(name, FieldEmbedding, idx))
	if err != nil {
		return core.CapabilityError(fmt.Errorf("create index: %w", err))
	}
	if err := indexTask.Await(ctx); err != nil {
		return core.CapabilityError(fmt.Errorf("wait for index: %w", err))
	}

	if err := s.load(ctx, name); err != nil {
		return err
	}
	s.logger.Info("created collection", "collection", name, "dimension", dimension)
	return nil
}

func (s *Store) load(ctx context.Context, name string) error {
	loadTask, err := s.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(name))
	if err != nil {
		return core.CapabilityError(fmt.Errorf("load collection: %w", err))
	}
	if err := loadTask.Await(ctx); err != nil {
		return core.CapabilityError(fmt.Errorf("wait for collection load: %w", err))
	}
	return nil
}

// Columns converts records into insert columns in schema order.
func Columns(records []vectorstore.Record, dimension int) []column.Column {
	n := len(records)
	ids := make([]string, n)
	vectors := make([][]float32, n)
	payloads := make([]string, n)
	chunkIDs := make([]int64, n)
	documentIDs := make([]int64, n)
	companyIDs := make([]int64, n)
	filePaths := make([]string, n)
	pages := make([]int64, n)

	for i, r := range records {
		ids[i] = r.Id
		vectors[i] = r.Vector
		payloads[i] = truncate(r.Payload, payloadMaxLength)
		chunkIDs[i] = int64(r.Metadata.ChunkId)
		documentIDs[i] = int64(r.Metadata.DocumentId)
		companyIDs[i] = int64(r.Metadata.CompanyId)
		filePaths[i] = truncate(r.Metadata.FilePath, filePathMaxLength)
		pages[i] = int64(r.Metadata.PageNumber)
	}

	return []column.Column{
		column.NewColumnVarChar(FieldId, ids),
		column.NewColumnFloatVector(FieldEmbedding, dimension, vectors),
		column.NewColumnVarChar(FieldPayload, payloads),
		column.NewColumnInt64(FieldChunkId, chunkIDs),
		column.NewColumnInt64(FieldDocumentId, documentIDs),
		column.NewColumnInt64(FieldCompanyId, companyIDs),
		column.NewColumnVarChar(FieldFilePath, filePaths),
		column.NewColumnInt64(FieldPageNumber, pages),
	}
}

// truncate cuts s to at most limit bytes without splitting a UTF-8 sequence.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut]
}

// Upsert writes records and flushes so they are immediately searchable.
func (s *Store) Upsert(ctx context.Context, name string, records []vectorstore.Record) error {
	if len(records) == 0 {
		return nil
	}
	dimension := len(records[0].Vector)
	for _, r := range records {
		if r.Id == "" {
			return fmt.Errorf("%w: record id is empty", core.ErrInvalidArgument)
		}
		if len(r.Vector) != dimension {
			return fmt.Errorf("%w: record %s has %d values, expected %d",
				vectorstore.ErrDimensionMismatch, r.Id, len(r.Vector), dimension)
		}
	}

	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return core.CapabilityError(fmt.Errorf("check collection: %w", err))
	}
	if !exists {
		return fmt.Errorf("%w: %s", vectorstore.ErrIndexNotFound, name)
	}

	if _, err := s.client.Upsert(ctx, milvusclient.NewColumnBasedInsertOption(name, Columns(records, dimension)...)); err != nil {
		return core.CapabilityError(fmt.Errorf("upsert into %s: %w", name, err))
	}

	flushTask, err := s.client.Flush(ctx, milvusclient.NewFlushOption(name))
	if err != nil {
		return core.CapabilityError(fmt.Errorf("flush %s: %w", name, err))
	}
	if err := flushTask.Await(ctx); err != nil {
		return core.CapabilityError(fmt.Errorf("wait for flush: %w", err))
	}
	return nil
}

// Query searches the collection. A missing collection yields no matches.
func (s *Store) Query(ctx context.Context, name string, vector []float32, k int) ([]vectorstore.Match, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive", core.ErrInvalidArgument)
	}

	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return nil, core.CapabilityError(fmt.Errorf("check collection: %w", err))
	}
	if !exists {
		return []vectorstore.Match{}, nil
	}
	if err := s.load(ctx, name); err != nil {
		return nil, err
	}

	results, err := s.client.Search(ctx, milvusclient.NewSearchOption(
		name,
		k,
		[]entity.Vector{entity.FloatVector(vector)},
	).WithANNSField(FieldEmbedding).
		WithSearchParam("nprobe", searchNProbe).
		WithOutputFields(outputFields...))
	if err != nil {
		return nil, core.CapabilityError(fmt.Errorf("search %s: %w", name, err))
	}
	if len(results) == 0 {
		return []vectorstore.Match{}, nil
	}
	return matchesFromColumns(results[0].ResultCount, results[0].IDs, results[0].Scores, results[0].Fields), nil
}

// matchesFromColumns rebuilds matches from a search result set.
func matchesFromColumns(count int, ids column.Column, scores []float32, fields []column.Column) []vectorstore.Match {
	matches := make([]vectorstore.Match, count)
	if idCol, ok := ids.(*column.ColumnVarChar); ok {
		for i := 0; i < count && i < idCol.Len(); i++ {
			matches[i].Id = idCol.Data()[i]
		}
	}
	for i := 0; i < count && i < len(scores); i++ {
		matches[i].Score = scores[i]
	}

	for _, field := range fields {
		switch col := field.(type) {
		case *column.ColumnVarChar:
			data := col.Data()
			for i := 0; i < count && i < len(data); i++ {
				switch col.Name() {
				case FieldPayload:
					matches[i].Payload = data[i]
				case FieldFilePath:
					matches[i].Metadata.FilePath = data[i]
				}
			}
		case *column.ColumnInt64:
			data := col.Data()
			for i := 0; i < count && i < len(data); i++ {
				switch col.Name() {
				case FieldChunkId:
					matches[i].Metadata.ChunkId = core.ID(data[i])
				case FieldDocumentId:
					matches[i].Metadata.DocumentId = core.ID(data[i])
				case FieldCompanyId:
					matches[i].Metadata.CompanyId = core.ID(data[i])
				case FieldPageNumber:
					matches[i].Metadata.PageNumber = int(data[i])
				}
			}
		}
	}
	return matches
}

// Close closes the client connection.
func (s *Store) Close() error {
	return s.client.Close(context.Background())
}
