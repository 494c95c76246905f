package oidc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMemorySessionStorePopIsSingleUse(t *testing.T) {
	store := NewMemorySessionStore()
	store.Put("sess-1", FlowSession{State: "state-1"})

	session, ok := store.Pop("sess-1")
	assert.True(t, ok)
	assert.Equal(t, "state-1", session.State)

	// The second pop misses: the attempt was consumed.
	_, ok = store.Pop("sess-1")
	assert.False(t, ok)
}

func TestMemorySessionStorePutOverwrites(t *testing.T) {
	store := NewMemorySessionStore()
	store.Put("sess-1", FlowSession{State: "first"})
	store.Put("sess-1", FlowSession{State: "second"})

	session, ok := store.Pop("sess-1")
	assert.True(t, ok)
	assert.Equal(t, "second", session.State, "a new login attempt replaces the in-flight one")
}

func TestMemorySessionStoreMissingSession(t *testing.T) {
	store := NewMemorySessionStore()
	_, ok := store.Pop("never-stored")
	assert.False(t, ok)
}

func TestFlowSessionNonceExpired(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	session := FlowSession{NonceIssuedAt: issued}

	assert.False(t, session.NonceExpired(issued.Add(NonceMaxAge)), "the boundary instant is still valid")
	assert.True(t, session.NonceExpired(issued.Add(NonceMaxAge+time.Second)))
	assert.False(t, session.NonceExpired(issued.Add(time.Second)))
}
