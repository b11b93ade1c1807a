package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/quarry/core"
	"github.com/poiesic/quarry/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
	return dir
}

func setupUploader(t *testing.T, store ObjectStore) (*Uploader, *badger.Repositories, *core.Company) {
	t.Helper()
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	added, err := repos.Companies.AddCompanies(context.Background(),
		&core.Company{Ticker: "ABC", Name: "Abc Ltd", StorageLocation: "filings/abc"})
	require.NoError(t, err)

	return NewUploader(store, repos.Resources, ""), repos, added[0]
}

func TestUploadDirectory(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"q1.pdf":          "%PDF-1.4 one",
		"2024/annual.pdf": "%PDF-1.4 two",
	})
	root := t.TempDir()
	uploader, repos, company := setupUploader(t, NewDirStore(root))
	ctx := context.Background()

	report, err := uploader.UploadDirectory(ctx, company, dir)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, report.Status)
	assert.Equal(t, 2, report.Total)
	require.Len(t, report.Uploaded, 2)

	urls := []string{report.Uploaded[0].URL, report.Uploaded[1].URL}
	assert.Contains(t, urls, "https://filings.s3.ap-south-1.amazonaws.com/abc/q1.pdf")
	assert.Contains(t, urls, "https://filings.s3.ap-south-1.amazonaws.com/abc/2024/annual.pdf")

	stored, err := os.ReadFile(filepath.Join(root, "filings", "abc", "2024", "annual.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 two", string(stored))

	pending, err := repos.Resources.ListPending(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	// A second run registers nothing new.
	again, err := uploader.UploadDirectory(ctx, company, dir)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, again.Status)
	assert.Empty(t, again.Uploaded)
	assert.Len(t, again.Skipped, 2)

	pending, err = repos.Resources.ListPending(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}

func TestUploadDirectory_Failures(t *testing.T) {
	dir := writeTree(t, map[string]string{"a.pdf": "%PDF-", "b.pdf": "%PDF-"})
	uploader, _, company := setupUploader(t, failingStore{err: errors.New("access denied")})

	report, err := uploader.UploadDirectory(context.Background(), company, dir)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, report.Status)
	assert.Len(t, report.Failed, 2)
	assert.Contains(t, report.Failed[0].Error, "access denied")
}

type selectiveStore struct {
	ObjectStore
	failKey string
}

func (s selectiveStore) Put(ctx context.Context, bucket, key, localPath string) error {
	if key == s.failKey {
		return errors.New("quota exceeded")
	}
	return s.ObjectStore.Put(ctx, bucket, key, localPath)
}

func TestUploadDirectory_PartialSuccess(t *testing.T) {
	dir := writeTree(t, map[string]string{"a.pdf": "%PDF-", "b.pdf": "%PDF-"})
	store := selectiveStore{ObjectStore: NewDirStore(t.TempDir()), failKey: "abc/b.pdf"}
	uploader, _, company := setupUploader(t, store)

	report, err := uploader.UploadDirectory(context.Background(), company, dir)
	require.NoError(t, err)
	assert.Equal(t, StatusPartialSuccess, report.Status)
	require.Len(t, report.Uploaded, 1)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "https://filings.s3.ap-south-1.amazonaws.com/abc/b.pdf", report.Failed[0].URL)
}

func TestUploadDirectory_SkipsRegisteredSource(t *testing.T) {
	dir := writeTree(t, map[string]string{"a.pdf": "%PDF-", "b.pdf": "%PDF-"})
	uploader, repos, company := setupUploader(t, NewDirStore(t.TempDir()))
	ctx := context.Background()

	abs, err := filepath.Abs(filepath.Join(dir, "a.pdf"))
	require.NoError(t, err)
	_, err = repos.Resources.AddResources(ctx, &core.Resource{
		CompanyId:       company.Id,
		StorageLocation: "elsewhere",
		SourceLocation:  abs,
	})
	require.NoError(t, err)

	report, err := uploader.UploadDirectory(ctx, company, dir)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, report.Status)
	assert.Equal(t, []string{abs}, report.Skipped)
	assert.Len(t, report.Uploaded, 1)
}

func TestUploadDirectory_Errors(t *testing.T) {
	uploader, _, company := setupUploader(t, NewDirStore(t.TempDir()))
	ctx := context.Background()

	_, err := uploader.UploadDirectory(ctx, company, t.TempDir())
	assert.ErrorIs(t, err, ErrNoFiles)

	bad := *company
	bad.StorageLocation = "nobucketprefix"
	_, err = uploader.UploadDirectory(ctx, &bad, t.TempDir())
	assert.ErrorIs(t, err, ErrInvalidLocation)
}

func TestRegisterResource(t *testing.T) {
	uploader, repos, company := setupUploader(t, nil)
	ctx := context.Background()

	resource, err := uploader.RegisterResource(ctx, company.Id, " s3://filings/abc/x.pdf ", "")
	require.NoError(t, err)
	assert.Equal(t, "s3://filings/abc/x.pdf", resource.StorageLocation)

	got, err := repos.Resources.GetResource(ctx, resource.Id)
	require.NoError(t, err)
	assert.False(t, got.Ingested)
}
