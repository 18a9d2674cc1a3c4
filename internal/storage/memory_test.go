package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pytest-insight/internal/models"
)

func TestMemoryStorageRoundTrip(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()
	start := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(ctx, makeSession("sess-1", "service-a", start)))
	require.NoError(t, store.SaveMany(ctx, []*models.TestSession{
		makeSession("sess-2", "service-a", start.Add(time.Hour)),
	}))

	sessions, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "sess-1", sessions[0].SessionID)

	require.NoError(t, store.Clear(ctx))
	sessions, err = store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestMemoryStorageSnapshotIsolation(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()
	start := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Save(ctx, makeSession("sess-1", "service-a", start)))

	snapshot, err := store.LoadAll(ctx)
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, makeSession("sess-2", "service-a", start.Add(time.Hour))))
	assert.Len(t, snapshot, 1, "earlier snapshot must not grow")
}
