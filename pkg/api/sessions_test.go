package api

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cohortd/cohort/pkg/principal"
)

func TestMemorySessionRegistry(t *testing.T) {
	ctx := context.Background()
	registry := NewMemorySessionRegistry()

	session := WebSession{PrincipalID: "acct-1", Kind: principal.KindResearcher}
	require.NoError(t, registry.Bind(ctx, "sess-1", session, 0))

	got, err := registry.Resolve(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, session, got)

	// Rebinding replaces the principal.
	require.NoError(t, registry.Bind(ctx, "sess-1", WebSession{PrincipalID: "acct-2", Kind: principal.KindParticipant}, 0))
	got, err = registry.Resolve(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "acct-2", got.PrincipalID)

	require.NoError(t, registry.Drop(ctx, "sess-1"))
	_, err = registry.Resolve(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	require.NoError(t, registry.Drop(ctx, "sess-1"))
}

func TestMemorySessionRegistryTTL(t *testing.T) {
	ctx := context.Background()
	registry := NewMemorySessionRegistry()

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	registry.now = func() time.Time { return current }

	require.NoError(t, registry.Bind(ctx, "sess-1", WebSession{PrincipalID: "acct-1"}, time.Hour))

	_, err := registry.Resolve(ctx, "sess-1")
	require.NoError(t, err)

	current = current.Add(2 * time.Hour)
	_, err = registry.Resolve(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisSessionRegistry(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	registry := NewRedisSessionRegistry(client)

	session := WebSession{PrincipalID: "acct-1", Kind: principal.KindParticipant}
	require.NoError(t, registry.Bind(ctx, "sess-1", session, time.Hour))

	got, err := registry.Resolve(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, session, got)

	mr.FastForward(2 * time.Hour)
	_, err = registry.Resolve(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, registry.Bind(ctx, "sess-2", session, 0))
	require.NoError(t, registry.Drop(ctx, "sess-2"))
	_, err = registry.Resolve(ctx, "sess-2")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
