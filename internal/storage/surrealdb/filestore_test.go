package surrealdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store := NewFileStore(testDB(t), testLogger())
	ctx := context.Background()

	data := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 1, 2, 3}
	require.NoError(t, store.SaveFile(ctx, "charts", "primary", data, "image/png"))

	exists, err := store.HasFile(ctx, "charts", "primary")
	require.NoError(t, err)
	assert.True(t, exists)

	got, contentType, err := store.GetFile(ctx, "charts", "primary")
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, "image/png", contentType)

	require.NoError(t, store.DeleteFile(ctx, "charts", "primary"))
	exists, err = store.HasFile(ctx, "charts", "primary")
	require.NoError(t, err)
	assert.False(t, exists)

	_, _, err = store.GetFile(ctx, "charts", "primary")
	assert.Error(t, err)
}

func TestFileStoreKeySanitization(t *testing.T) {
	store := NewFileStore(testDB(t), testLogger())
	ctx := context.Background()

	require.NoError(t, store.SaveFile(ctx, "charts", "scope/with.dots", []byte("x"), "text/plain"))

	got, _, err := store.GetFile(ctx, "charts", "scope/with.dots")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), got)
}
