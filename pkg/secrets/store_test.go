package secrets

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBundleExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.False(t, (&TokenBundle{Expiry: now.Add(time.Minute)}).Expired(now))
	assert.True(t, (&TokenBundle{Expiry: now.Add(-time.Minute)}).Expired(now))
	assert.True(t, (&TokenBundle{Expiry: now}).Expired(now))
	// A bundle without an expiry never expires on its own.
	assert.False(t, (&TokenBundle{}).Expired(now))
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	bundle := &TokenBundle{AccessToken: "access-1", RefreshToken: "refresh-1"}
	require.NoError(t, store.Put(ctx, "k1", bundle, 0))

	got, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "access-1", got.AccessToken)

	// The store hands out copies, not aliases.
	got.AccessToken = "mutated"
	again, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "access-1", again.AccessToken)

	require.NoError(t, store.Delete(ctx, "k1"))
	_, err = store.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is idempotent.
	require.NoError(t, store.Delete(ctx, "k1"))
}

func TestMemoryStoreTTL(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	require.NoError(t, store.Put(ctx, "k1", &TokenBundle{AccessToken: "access-1"}, time.Minute))

	_, err := store.Get(ctx, "k1")
	require.NoError(t, err)

	current = current.Add(2 * time.Minute)
	_, err = store.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client)

	bundle := &TokenBundle{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		IDToken:      "id-1",
		Expiry:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Put(ctx, "k1", bundle, 0))

	got, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, bundle.AccessToken, got.AccessToken)
	assert.Equal(t, bundle.RefreshToken, got.RefreshToken)
	assert.True(t, bundle.Expiry.Equal(got.Expiry))

	require.NoError(t, store.Delete(ctx, "k1"))
	_, err = store.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, store.Delete(ctx, "k1"))
}

func TestRedisStoreTTL(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client)

	require.NoError(t, store.Put(ctx, "k1", &TokenBundle{AccessToken: "access-1"}, time.Minute))

	_, err := store.Get(ctx, "k1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)
	_, err = store.Get(ctx, "k1")
	assert.ErrorIs(t, err, ErrNotFound)
}
