package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Migrate())
	return NewStore(db)
}

func TestPosterPathUnknownCollection(t *testing.T) {
	store := newTestStore(t)

	path, err := store.PosterPath(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, path)
}

func TestSetPosterPathRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetPosterPath(ctx, "col1", "/posters/horror.jpg"))

	path, err := store.PosterPath(ctx, "col1")
	require.NoError(t, err)
	assert.Equal(t, "/posters/horror.jpg", path)

	// Upsert replaces the previous path.
	require.NoError(t, store.SetPosterPath(ctx, "col1", "https://img.example/horror.png"))

	path, err = store.PosterPath(ctx, "col1")
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/horror.png", path)
}
