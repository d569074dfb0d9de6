package relay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/mcp-session-gateway/pkg/kvstore"
)

func alwaysLive(live bool) func(context.Context, string) (bool, error) {
	return func(context.Context, string) (bool, error) { return live, nil }
}

func TestOwnershipSetAndCheck(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	own := NewOwnership(store, alwaysLive(true))

	require.NoError(t, own.SetSessionOwner(ctx, "S1", "u42"))

	owned, err := own.IsSessionOwnedBy(ctx, "S1", "u42")
	require.NoError(t, err)
	assert.True(t, owned)

	owned, err = own.IsSessionOwnedBy(ctx, "S1", "someone-else")
	require.NoError(t, err)
	assert.False(t, owned)
}

func TestOwnershipDeadSessionIsNeverOwned(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	own := NewOwnership(store, alwaysLive(false))

	require.NoError(t, own.SetSessionOwner(ctx, "S1", "u42"))

	owned, err := own.IsSessionOwnedBy(ctx, "S1", "u42")
	require.NoError(t, err)
	assert.False(t, owned)
}

func TestOwnershipUnknownSessionIsNotOwned(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	own := NewOwnership(store, alwaysLive(true))

	owned, err := own.IsSessionOwnedBy(ctx, "unknown", "u42")
	require.NoError(t, err)
	assert.False(t, owned)
}

func TestOwnershipClear(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	own := NewOwnership(store, alwaysLive(true))

	require.NoError(t, own.SetSessionOwner(ctx, "S1", "u42"))
	require.NoError(t, own.ClearSessionOwner(ctx, "S1"))

	_, err := own.GetSessionOwner(ctx, "S1")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}
