package badger

import (
	"context"
	"testing"

	"github.com/poiesic/quarry/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckpointRoundTrip(t *testing.T) {
	repos, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	ctx := context.Background()

	missing, err := repos.Checkpoints.LoadCheckpoint(ctx, "indexer")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repos.Checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{ProcessorType: "indexer", LastId: 42}))

	loaded, err := repos.Checkpoints.LoadCheckpoint(ctx, "indexer")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, core.ID(42), loaded.LastId)
	assert.False(t, loaded.UpdatedAt.IsZero())

	require.NoError(t, repos.Checkpoints.DeleteCheckpoint(ctx, "indexer"))
	gone, err := repos.Checkpoints.LoadCheckpoint(ctx, "indexer")
	require.NoError(t, err)
	assert.Nil(t, gone)
}
