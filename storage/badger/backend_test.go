package badger

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/quarry/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBackend_InMemory(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestOpenBackend_FileSystem(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "db")
	backend, err := OpenBackend(dir, false)
	require.NoError(t, err)
	defer backend.Close()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestOpenBackend_PathIsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	_, err := OpenBackend(file, false)
	assert.Error(t, err)
}

func TestBackendClose(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)

	_, err = backend.NextID("test")
	require.NoError(t, err)

	require.NoError(t, backend.Close())
	assert.True(t, backend.IsClosed())
}

func TestNextID(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	first, err := backend.NextID("test_sequence")
	require.NoError(t, err)
	assert.NotZero(t, first)

	second, err := backend.NextID("test_sequence")
	require.NoError(t, err)
	assert.Greater(t, second, first)

	other, err := backend.NextID("other_sequence")
	require.NoError(t, err)
	assert.NotZero(t, other)
}

func TestWithTransaction(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	ctx := context.Background()

	t.Run("commit", func(t *testing.T) {
		err := repos.Backend.WithTransaction(ctx, func(ctx context.Context) error {
			_, err := repos.Companies.AddCompanies(ctx, &core.Company{Ticker: "ACME", Name: "Acme"})
			return err
		})
		require.NoError(t, err)

		company, err := repos.Companies.GetCompanyByTicker(ctx, "acme")
		require.NoError(t, err)
		assert.Equal(t, "Acme", company.Name)
	})

	t.Run("rollback", func(t *testing.T) {
		err := repos.Backend.WithTransaction(ctx, func(ctx context.Context) error {
			if _, err := repos.Companies.AddCompanies(ctx, &core.Company{Ticker: "GONE", Name: "Gone"}); err != nil {
				return err
			}
			return assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)

		_, err = repos.Companies.GetCompanyByTicker(ctx, "GONE")
		assert.Error(t, err)
	})

	t.Run("nested joins outer", func(t *testing.T) {
		err := repos.Backend.WithTransaction(ctx, func(ctx context.Context) error {
			return repos.Companies.WithTransaction(ctx, func(ctx context.Context) error {
				_, err := repos.Companies.AddCompanies(ctx, &core.Company{Ticker: "NEST", Name: "Nested"})
				if err != nil {
					return err
				}
				return assert.AnError
			})
		})
		assert.ErrorIs(t, err, assert.AnError)

		_, err = repos.Companies.GetCompanyByTicker(ctx, "NEST")
		assert.Error(t, err)
	})
}

func TestScanPrefix_Stop(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	ctx := context.Background()
	require.NoError(t, backend.Update(ctx, func(tx *badger.Txn) error {
		for i := uint64(1); i <= 5; i++ {
			if err := tx.Set(compositeKey("t:", i), []byte("v")); err != nil {
				return err
			}
		}
		return nil
	}))

	var seen []core.ID
	err = backend.View(ctx, func(tx *badger.Txn) error {
		return ScanPrefix(tx, []byte("t:"), func(key, _ []byte) error {
			seen = append(seen, lastPart(key))
			if len(seen) == 3 {
				return ErrStopScan
			}
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, []core.ID{1, 2, 3}, seen)

	sentinel := errors.New("boom")
	err = backend.View(ctx, func(tx *badger.Txn) error {
		return ScanPrefix(tx, []byte("t:"), func(_, _ []byte) error { return sentinel })
	})
	assert.ErrorIs(t, err, sentinel)
}

func TestCompositeKeyOrdering(t *testing.T) {
	low := compositeKey("x:", 1, 255)
	high := compositeKey("x:", 2, 0)
	assert.Less(t, string(low), string(high))
	assert.Equal(t, core.ID(255), lastPart(low))
	assert.Equal(t, core.ID(0), lastPart([]byte("short")))
}
