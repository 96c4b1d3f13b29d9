package surrealdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemKVRoundTrip(t *testing.T) {
	store := NewInternalStore(testDB(t), testLogger())
	ctx := context.Background()

	missing, err := store.GetSystemKV(ctx, "default_scope")
	require.NoError(t, err)
	assert.Empty(t, missing)

	require.NoError(t, store.SetSystemKV(ctx, "default_scope", "primary"))

	value, err := store.GetSystemKV(ctx, "default_scope")
	require.NoError(t, err)
	assert.Equal(t, "primary", value)

	require.NoError(t, store.SetSystemKV(ctx, "default_scope", "retirement"))
	value, err = store.GetSystemKV(ctx, "default_scope")
	require.NoError(t, err)
	assert.Equal(t, "retirement", value)
}
