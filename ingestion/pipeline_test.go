package ingestion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/quarry/chunk"
	"github.com/poiesic/quarry/core"
	"github.com/poiesic/quarry/extract"
	"github.com/poiesic/quarry/extract/pdftest"
	"github.com/poiesic/quarry/source"
	"github.com/poiesic/quarry/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// longPage is a single-line page of just over 2500 characters.
var longPage = strings.TrimSpace(strings.Repeat("lorem ipsum ", 210))

type fixture struct {
	repos    *badger.Repositories
	company  *core.Company
	dir      string
	pipeline *Pipeline
}

func setupPipeline(t *testing.T, store source.ObjectStore, opts ...Option) *fixture {
	t.Helper()
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	companies, err := repos.Companies.AddCompanies(context.Background(), &core.Company{Ticker: "ACME", Name: "Acme Corp"})
	require.NoError(t, err)

	locator := source.NewLocator(source.WithObjectStore(store))
	p, err := NewPipeline(repos.Resources, repos.Documents, repos.Chunks, locator, extract.NewPDFExtractor(), opts...)
	require.NoError(t, err)
	t.Cleanup(p.Release)

	return &fixture{repos: repos, company: companies[0], dir: t.TempDir(), pipeline: p}
}

func (f *fixture) writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func (f *fixture) addResource(t *testing.T, location string) *core.Resource {
	t.Helper()
	added, err := f.repos.Resources.AddResources(context.Background(),
		&core.Resource{CompanyId: f.company.Id, StorageLocation: location})
	require.NoError(t, err)
	return added[0]
}

func (f *fixture) countChunks(t *testing.T, docs []*core.Document) int {
	t.Helper()
	total := 0
	for _, doc := range docs {
		chunks, err := f.repos.Chunks.ListByDocument(context.Background(), doc.Id)
		require.NoError(t, err)
		total += len(chunks)
	}
	return total
}

func TestNewPipeline_RequiresCollaborators(t *testing.T) {
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	locator := source.NewLocator()
	extractor := extract.NewPDFExtractor()

	_, err = NewPipeline(nil, repos.Documents, repos.Chunks, locator, extractor)
	assert.ErrorIs(t, err, ErrResourceRepositoryRequired)
	_, err = NewPipeline(repos.Resources, nil, repos.Chunks, locator, extractor)
	assert.ErrorIs(t, err, ErrDocumentRepositoryRequired)
	_, err = NewPipeline(repos.Resources, repos.Documents, nil, locator, extractor)
	assert.ErrorIs(t, err, ErrChunkRepositoryRequired)
	_, err = NewPipeline(repos.Resources, repos.Documents, repos.Chunks, nil, extractor)
	assert.ErrorIs(t, err, ErrFetcherRequired)
	_, err = NewPipeline(repos.Resources, repos.Documents, repos.Chunks, locator, nil)
	assert.ErrorIs(t, err, ErrExtractorRequired)

	_, err = NewPipeline(repos.Resources, repos.Documents, repos.Chunks, locator, extractor,
		WithLocalChunking(chunk.Options{Size: 10, Overlap: 10}))
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestIngest_TwoPagePDF(t *testing.T) {
	f := setupPipeline(t, nil)
	ctx := context.Background()

	data := pdftest.Build(longPage, "Second page of the filing")
	resource := f.addResource(t, f.writeFile(t, "annual.pdf", data))

	result, err := f.pipeline.Ingest(ctx, resource)
	require.NoError(t, err)
	assert.True(t, result.OK)
	assert.Equal(t, 2, result.DocumentsCreated)

	docs, err := f.repos.Documents.ListByResource(ctx, resource.Id)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, 1, docs[0].PageNumber)
	assert.Equal(t, 2, docs[1].PageNumber)
	assert.Equal(t, resource.StorageLocation, docs[0].FilePath)
	assert.Equal(t, f.company.Id, docs[0].CompanyId)

	first, err := f.repos.Chunks.ListByDocument(ctx, docs[0].Id)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(first), 3)
	for i, c := range first {
		assert.NotEmpty(t, strings.TrimSpace(c.Text))
		assert.Equal(t, i, c.Seq)
		assert.Equal(t, f.company.Id, c.CompanyId)
	}
	assert.Equal(t, result.ChunksCreated, f.countChunks(t, docs))

	stored, err := f.repos.Resources.GetResource(ctx, resource.Id)
	require.NoError(t, err)
	assert.True(t, stored.Ingested)
	assert.Equal(t, core.Fingerprint(data), stored.Checksum)
}

func TestIngest_NotAPDF(t *testing.T) {
	f := setupPipeline(t, nil)
	ctx := context.Background()

	resource := f.addResource(t, f.writeFile(t, "notes.pdf", []byte("plain text pretending to be a pdf")))

	result, err := f.pipeline.Ingest(ctx, resource)
	assert.ErrorIs(t, err, core.ErrNotAPDF)
	assert.False(t, result.OK)

	docs, err := f.repos.Documents.ListByResource(ctx, resource.Id)
	require.NoError(t, err)
	assert.Empty(t, docs)

	stored, err := f.repos.Resources.GetResource(ctx, resource.Id)
	require.NoError(t, err)
	assert.False(t, stored.Ingested)
}

func TestIngest_SecondRunIsNoop(t *testing.T) {
	f := setupPipeline(t, nil)
	ctx := context.Background()

	resource := f.addResource(t, f.writeFile(t, "q1.pdf", pdftest.Build("quarterly results", "outlook")))

	first, err := f.pipeline.Ingest(ctx, resource)
	require.NoError(t, err)
	docsBefore, err := f.repos.Documents.ListByResource(ctx, resource.Id)
	require.NoError(t, err)
	chunksBefore, err := f.repos.Chunks.CountChunks(ctx)
	require.NoError(t, err)

	second, err := f.pipeline.Ingest(ctx, resource)
	require.NoError(t, err)
	assert.True(t, second.OK)
	assert.True(t, second.AlreadyIngested)
	assert.Zero(t, second.DocumentsCreated)

	docsAfter, err := f.repos.Documents.ListByResource(ctx, resource.Id)
	require.NoError(t, err)
	chunksAfter, err := f.repos.Chunks.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, docsBefore, docsAfter)
	assert.Equal(t, chunksBefore, chunksAfter)
	assert.Equal(t, first.ChunksCreated, chunksAfter)
}

func TestIngest_ReplacesLeftoversOfInterruptedRun(t *testing.T) {
	f := setupPipeline(t, nil)
	ctx := context.Background()

	resource := f.addResource(t, f.writeFile(t, "report.pdf", pdftest.Build("page one", "page two")))

	// a crashed run stored page one but never marked the resource
	_, err := f.repos.Documents.AddDocument(ctx, &core.Document{
		CompanyId:  f.company.Id,
		ResourceId: resource.Id,
		PageNumber: 1,
		Text:       "page one",
		FilePath:   resource.StorageLocation,
	}, &core.Chunk{Text: "page one"})
	require.NoError(t, err)

	result, err := f.pipeline.Ingest(ctx, resource)
	require.NoError(t, err)
	assert.Equal(t, 2, result.DocumentsCreated)

	docs, err := f.repos.Documents.ListByResource(ctx, resource.Id)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
	assert.Equal(t, 2, f.countChunks(t, docs))
}

func TestIngest_RemoteResource(t *testing.T) {
	root := t.TempDir()
	store := source.NewDirStore(root)
	f := setupPipeline(t, store)
	ctx := context.Background()

	local := f.writeFile(t, "annual.pdf", pdftest.Build(longPage))
	require.NoError(t, store.Put(ctx, "filings", "acme/annual.pdf", local))

	url := source.ObjectURL("filings", source.DefaultRegion, "acme/annual.pdf")
	resource := f.addResource(t, url)

	result, err := f.pipeline.Ingest(ctx, resource)
	require.NoError(t, err)
	assert.Equal(t, 1, result.DocumentsCreated)
	assert.GreaterOrEqual(t, result.ChunksCreated, 3)

	docs, err := f.repos.Documents.ListByResource(ctx, resource.Id)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, url, docs[0].FilePath)
}

func TestIngest_MissingObjectIsRetryable(t *testing.T) {
	f := setupPipeline(t, source.NewDirStore(t.TempDir()))
	ctx := context.Background()

	resource := f.addResource(t, source.ObjectURL("filings", source.DefaultRegion, "missing.pdf"))

	_, err := f.pipeline.Ingest(ctx, resource)
	assert.ErrorIs(t, err, core.ErrSourceUnavailable)
	assert.True(t, core.IsTransient(err))

	stored, err := f.repos.Resources.GetResource(ctx, resource.Id)
	require.NoError(t, err)
	assert.False(t, stored.Ingested)
}

type failingExtractor struct{}

func (failingExtractor) Extract(context.Context, []byte) ([]extract.Page, error) {
	return nil, fmt.Errorf("%w: broken xref", core.ErrUnreadablePDF)
}

func TestIngest_UnreadablePDF(t *testing.T) {
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()
	ctx := context.Background()

	p, err := NewPipeline(repos.Resources, repos.Documents, repos.Chunks, source.NewLocator(), failingExtractor{})
	require.NoError(t, err)
	defer p.Release()

	path := filepath.Join(t.TempDir(), "broken.pdf")
	require.NoError(t, os.WriteFile(path, pdftest.Build("text"), 0644))
	added, err := repos.Resources.AddResources(ctx, &core.Resource{CompanyId: 1, StorageLocation: path})
	require.NoError(t, err)

	_, err = p.Ingest(ctx, added[0])
	assert.ErrorIs(t, err, core.ErrUnreadablePDF)
	assert.True(t, core.IsPermanent(err))

	pending, err := repos.Resources.ListPending(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

// flakyDocuments fails to store a chosen page.
type flakyDocuments struct {
	*badger.DocumentRepository
	failPage int
}

func (d *flakyDocuments) AddDocument(ctx context.Context, doc *core.Document, chunks ...*core.Chunk) (*core.Document, error) {
	if doc.PageNumber == d.failPage {
		return nil, errors.New("disk full")
	}
	return d.DocumentRepository.AddDocument(ctx, doc, chunks...)
}

func TestIngest_PersistFailureLeavesNothing(t *testing.T) {
	for _, perDocument := range []bool{false, true} {
		t.Run(fmt.Sprintf("per_document=%v", perDocument), func(t *testing.T) {
			repos, err := badger.NewMemoryRepositories()
			require.NoError(t, err)
			defer repos.Close()
			ctx := context.Background()

			var opts []Option
			if perDocument {
				opts = append(opts, WithPerDocumentCommit())
			}
			docs := &flakyDocuments{DocumentRepository: repos.Documents, failPage: 2}
			p, err := NewPipeline(repos.Resources, docs, repos.Chunks, source.NewLocator(), extract.NewPDFExtractor(), opts...)
			require.NoError(t, err)
			defer p.Release()

			path := filepath.Join(t.TempDir(), "report.pdf")
			require.NoError(t, os.WriteFile(path, pdftest.Build("one", "two", "three"), 0644))
			added, err := repos.Resources.AddResources(ctx, &core.Resource{CompanyId: 1, StorageLocation: path})
			require.NoError(t, err)

			result, err := p.Ingest(ctx, added[0])
			require.Error(t, err)
			assert.False(t, result.OK)
			assert.Zero(t, result.DocumentsCreated)

			stored, err := repos.Documents.ListByResource(ctx, added[0].Id)
			require.NoError(t, err)
			assert.Empty(t, stored)
			count, err := repos.Chunks.CountChunks(ctx)
			require.NoError(t, err)
			assert.Zero(t, count)

			resource, err := repos.Resources.GetResource(ctx, added[0].Id)
			require.NoError(t, err)
			assert.False(t, resource.Ingested)
		})
	}
}

func TestIngest_InvalidArgument(t *testing.T) {
	f := setupPipeline(t, nil)

	_, err := f.pipeline.Ingest(context.Background(), nil)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
	_, err = f.pipeline.Ingest(context.Background(), &core.Resource{StorageLocation: "x.pdf"})
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestIngestPending_IsolatesFailures(t *testing.T) {
	f := setupPipeline(t, nil, WithPoolSize(2))
	ctx := context.Background()

	good1 := f.addResource(t, f.writeFile(t, "a.pdf", pdftest.Build("alpha")))
	bad := f.addResource(t, f.writeFile(t, "b.pdf", []byte("Bud1 metadata")))
	good2 := f.addResource(t, f.writeFile(t, "c.pdf", pdftest.Build("gamma", "delta")))

	batch, err := f.pipeline.IngestPending(ctx, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, batch.RunId)
	assert.Equal(t, 3, batch.Total)
	assert.Equal(t, 2, batch.Ingested)
	assert.Equal(t, 3, batch.DocumentsCreated)
	require.Len(t, batch.Failed, 1)
	assert.Equal(t, bad.Id, batch.Failed[0].Id)
	assert.Len(t, batch.Permanent(), 1)

	pending, err := f.repos.Resources.ListPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, bad.Id, pending[0].Id)

	for _, r := range []*core.Resource{good1, good2} {
		stored, err := f.repos.Resources.GetResource(ctx, r.Id)
		require.NoError(t, err)
		assert.True(t, stored.Ingested)
	}

	again, err := f.pipeline.IngestPending(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Total)
	assert.Zero(t, again.Ingested)
}

func TestChunkDocuments(t *testing.T) {
	f := setupPipeline(t, nil)
	ctx := context.Background()

	unchunked, err := f.repos.Documents.AddDocument(ctx, &core.Document{
		CompanyId:  f.company.Id,
		PageNumber: 1,
		Text:       longPage,
		FilePath:   "/filings/legacy.pdf",
	})
	require.NoError(t, err)
	_, err = f.repos.Documents.AddDocument(ctx, &core.Document{
		CompanyId:  f.company.Id,
		PageNumber: 2,
		FilePath:   "/filings/legacy.pdf",
	})
	require.NoError(t, err)

	result, err := f.pipeline.ChunkDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Documents)
	assert.GreaterOrEqual(t, result.ChunksCreated, 3)
	assert.Empty(t, result.Failed)

	chunks, err := f.repos.Chunks.ListByDocument(ctx, unchunked.Id)
	require.NoError(t, err)
	assert.Len(t, chunks, result.ChunksCreated)

	again, err := f.pipeline.ChunkDocuments(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Documents)
}
