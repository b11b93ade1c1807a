package quarry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/poiesic/quarry/ai/cache"
	"github.com/poiesic/quarry/ai/mock"
	"github.com/poiesic/quarry/core"
	"github.com/poiesic/quarry/extract/pdftest"
	"github.com/poiesic/quarry/source"
	"github.com/poiesic/quarry/vectorstore"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDatabase(t *testing.T, opts ...DatabaseOption) *Database {
	t.Helper()
	opts = append([]DatabaseOption{WithInMemory(), WithProvider(mock.NewMockProvider())}, opts...)
	db, err := NewDatabase("", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewDatabase(t *testing.T) {
	t.Run("create new database", func(t *testing.T) {
		tmpDir := filepath.Join(t.TempDir(), "test_db")
		db, err := NewDatabase(tmpDir, WithProvider(mock.NewMockProvider()))
		require.NoError(t, err)
		require.NotNil(t, db)
		defer db.Close()

		assert.NotNil(t, db.Companies())
		assert.NotNil(t, db.Resources())
		assert.NotNil(t, db.Documents())
		assert.NotNil(t, db.Chunks())
		assert.NotNil(t, db.Checkpoints())
		assert.NotNil(t, db.VectorStore())
		assert.Equal(t, vectorstore.DefaultIndex, db.IndexName())
	})

	t.Run("error with invalid path", func(t *testing.T) {
		tmpFile := filepath.Join(t.TempDir(), "not_a_dir")
		require.NoError(t, os.WriteFile(tmpFile, []byte("test"), 0644))

		db, err := NewDatabase(tmpFile, WithProvider(mock.NewMockProvider()))
		assert.Error(t, err)
		assert.Nil(t, db)
	})

	t.Run("error with invalid index name", func(t *testing.T) {
		db, err := NewDatabase("", WithInMemory(), WithProvider(mock.NewMockProvider()), WithIndexName("bad name"))
		assert.ErrorIs(t, err, vectorstore.ErrInvalidIndexName)
		assert.Nil(t, db)
	})
}

func TestDatabase_FactoryMethods(t *testing.T) {
	db := openTestDatabase(t)

	t.Run("can create ingestion pipeline", func(t *testing.T) {
		pipeline, err := db.NewIngestionPipeline()
		require.NoError(t, err)
		require.NotNil(t, pipeline)
		pipeline.Release()
	})

	t.Run("can create contextualizer", func(t *testing.T) {
		c, err := db.NewContextualizer()
		require.NoError(t, err)
		require.NotNil(t, c)
		c.Release()
	})

	t.Run("can create indexer", func(t *testing.T) {
		ix, err := db.NewIndexer()
		require.NoError(t, err)
		require.NotNil(t, ix)
	})

	t.Run("can create assembler", func(t *testing.T) {
		a, err := db.NewAssembler()
		require.NoError(t, err)
		require.NotNil(t, a)
	})

	t.Run("uploader needs an object store", func(t *testing.T) {
		_, err := db.NewUploader("")
		assert.ErrorIs(t, err, ErrObjectStoreRequired)
	})
}

func TestDatabase_RegisterCompanies(t *testing.T) {
	db := openTestDatabase(t)
	ctx := context.Background()

	added, skipped, err := db.RegisterCompanies(ctx, &core.Company{Ticker: "acme", Name: "Acme Health"})
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.Empty(t, skipped)
	assert.Equal(t, "ACME", added[0].Ticker)

	added, skipped, err = db.RegisterCompanies(ctx,
		&core.Company{Ticker: "ACME", Name: "Renamed"},
		&core.Company{Ticker: "GLOBEX", Name: "Globex"},
	)
	require.NoError(t, err)
	require.Len(t, added, 1)
	require.Len(t, skipped, 1)
	assert.Equal(t, "Acme Health", skipped[0].Name, "existing companies are left unchanged")

	company, err := db.SetStorageLocation(ctx, "acme", "research-bucket/acme/")
	require.NoError(t, err)
	assert.Equal(t, "research-bucket/acme", company.StorageLocation)

	_, err = db.SetStorageLocation(ctx, "acme", "no-prefix")
	assert.ErrorIs(t, err, source.ErrInvalidLocation)
}

// End to end: a local PDF is ingested, indexed and used to ground an answer.
func TestDatabase_IngestIndexAnswer(t *testing.T) {
	db := openTestDatabase(t)
	ctx := context.Background()

	added, _, err := db.RegisterCompanies(ctx, &core.Company{Ticker: "ACME", Name: "Acme Health"})
	require.NoError(t, err)
	company := added[0]

	path := filepath.Join(t.TempDir(), "annual_report.pdf")
	require.NoError(t, os.WriteFile(path, pdftest.Build("Revenue was 12 million.", "Beds grew to 900."), 0o644))
	resources, err := db.Resources().AddResources(ctx, &core.Resource{CompanyId: company.Id, StorageLocation: path})
	require.NoError(t, err)

	result, err := db.Ingest(ctx, resources[0].Id)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, 2, result.DocumentsCreated)
	assert.Equal(t, 2, result.ChunksCreated)

	indexed, err := db.Reindex(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, indexed.ChunksIndexed)
	assert.Equal(t, 1, indexed.ResourcesIndexed)

	resource, err := db.Resources().GetResource(ctx, resources[0].Id)
	require.NoError(t, err)
	assert.True(t, resource.Ingested)
	assert.True(t, resource.Indexed)

	answer, err := db.Answer(ctx, []core.Message{{Role: core.RoleUser, Content: "How many beds?"}})
	require.NoError(t, err)
	require.Len(t, answer.Citations, 2)
	pages := []int{answer.Citations[0].PageNumber, answer.Citations[1].PageNumber}
	assert.ElementsMatch(t, []int{1, 2}, pages)
	for _, c := range answer.Citations {
		assert.Equal(t, company.Id, c.CompanyId)
		assert.NotZero(t, c.ChunkId)
		assert.NotZero(t, c.DocumentId)
	}
}

func TestDatabase_IngestPendingFromObjectStore(t *testing.T) {
	root := t.TempDir()
	store := source.NewDirStore(root)
	db := openTestDatabase(t, WithObjectStore(store))
	ctx := context.Background()

	added, _, err := db.RegisterCompanies(ctx, &core.Company{Ticker: "ACME", Name: "Acme", StorageLocation: "filings/acme"})
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "q1.pdf"), pdftest.Build("Quarter one."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".DS_Store"), []byte("\x00\x00\x00\x01Bud1 finder metadata"), 0o644))

	uploader, err := db.NewUploader("")
	require.NoError(t, err)
	report, err := uploader.UploadDirectory(ctx, added[0], dir)
	require.NoError(t, err)
	assert.Equal(t, source.StatusSuccess, report.Status)
	require.Len(t, report.Uploaded, 2)

	batch, err := db.IngestPending(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Total)
	assert.Equal(t, 1, batch.Ingested)
	assert.Len(t, batch.Failed, 1)
	assert.Len(t, batch.Permanent(), 1)
}

func TestDatabase_EmbeddingCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	embedder := mock.NewMockEmbedder()
	provider := mock.NewMockProviderWithServices(embedder, mock.NewMockCompleter(), mock.NewMockCompleter())
	db := openTestDatabase(t, WithProvider(provider), WithEmbeddingCache(client, cache.DefaultConfig()))
	ctx := context.Background()

	retriever, err := db.NewRetriever()
	require.NoError(t, err)

	_, err = retriever.Search(ctx, "revenue", 3)
	require.NoError(t, err)
	_, err = retriever.Search(ctx, "revenue", 3)
	require.NoError(t, err)
	assert.Equal(t, 1, embedder.CallCount(), "second query embedding is served from redis")
}
