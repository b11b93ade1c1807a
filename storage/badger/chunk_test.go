package badger

import (
	"context"
	"testing"

	"github.com/poiesic/quarry/core"
	"github.com/poiesic/quarry/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddChunks_AppendsAfterExisting(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	ctx := context.Background()
	company := addTestCompany(t, repos, "ABC")
	doc, err := repos.Documents.AddDocument(ctx,
		&core.Document{CompanyId: company.Id, PageNumber: 1, Text: "a b c", FilePath: "f.pdf"},
		&core.Chunk{Text: "a"})
	require.NoError(t, err)

	added, err := repos.Chunks.AddChunks(ctx, doc.Id, &core.Chunk{Text: "b"}, &core.Chunk{Text: "c"})
	require.NoError(t, err)
	assert.Equal(t, 1, added[0].Seq)
	assert.Equal(t, 2, added[1].Seq)

	chunks, err := repos.Chunks.ListByDocument(ctx, doc.Id)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{chunks[0].Text, chunks[1].Text, chunks[2].Text})

	_, err = repos.Chunks.AddChunks(ctx, 9999, &core.Chunk{Text: "x", CompanyId: company.Id})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListChunks_Paging(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	ctx := context.Background()
	company := addTestCompany(t, repos, "ABC")

	chunks := make([]*core.Chunk, 7)
	for i := range chunks {
		chunks[i] = &core.Chunk{Text: "chunk"}
	}
	_, err = repos.Documents.AddDocument(ctx,
		&core.Document{CompanyId: company.Id, PageNumber: 1, Text: "t", FilePath: "f.pdf"}, chunks...)
	require.NoError(t, err)

	var seen []core.ID
	var after core.ID
	for {
		page, err := repos.Chunks.ListChunks(ctx, after, 3)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		assert.LessOrEqual(t, len(page), 3)
		for _, c := range page {
			seen = append(seen, c.Id)
		}
		after = page[len(page)-1].Id
	}
	require.Len(t, seen, 7)
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, seen[i], seen[i-1])
	}

	count, err := repos.Chunks.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, count)

	_, err = repos.Chunks.ListChunks(ctx, 0, 0)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestUpdateContext(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	ctx := context.Background()
	company := addTestCompany(t, repos, "ABC")
	doc, err := repos.Documents.AddDocument(ctx,
		&core.Document{CompanyId: company.Id, PageNumber: 1, Text: "t", FilePath: "f.pdf"},
		&core.Chunk{Text: "original text"})
	require.NoError(t, err)

	chunks, err := repos.Chunks.ListByDocument(ctx, doc.Id)
	require.NoError(t, err)
	id := chunks[0].Id

	require.NoError(t, repos.Chunks.UpdateContext(ctx, id, "situating context"))

	got, err := repos.Chunks.GetChunk(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "situating context", got.Context)
	assert.Equal(t, "original text", got.Text)

	assert.ErrorIs(t, repos.Chunks.UpdateContext(ctx, 9999, "x"), storage.ErrNotFound)
}
