package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/cohortd/cohort/pkg/principal"
)

// ErrSessionNotFound is returned when no binding exists for a session ID.
var ErrSessionNotFound = errors.New("session not found")

// webSessionKeyPrefix namespaces session bindings in Redis.
const webSessionKeyPrefix = "cohort:sessions:"

// WebSession binds a browser session cookie to an authenticated principal.
type WebSession struct {
	PrincipalID string         `json:"principal_id"`
	Kind        principal.Kind `json:"kind"`
}

// SessionRegistry stores the cookie-to-principal bindings established at
// login. Bind replaces any existing binding for the session ID.
type SessionRegistry interface {
	Bind(ctx context.Context, sessionID string, session WebSession, ttl time.Duration) error
	Resolve(ctx context.Context, sessionID string) (WebSession, error)
	Drop(ctx context.Context, sessionID string) error
}

// RedisSessionRegistry stores session bindings in Redis so that any node can
// resolve a session established on another.
type RedisSessionRegistry struct {
	client *redis.Client
}

// NewRedisSessionRegistry creates a registry over an existing Redis client.
func NewRedisSessionRegistry(client *redis.Client) *RedisSessionRegistry {
	return &RedisSessionRegistry{client: client}
}

// Bind stores the binding with the given TTL.
func (r *RedisSessionRegistry) Bind(ctx context.Context, sessionID string, session WebSession, ttl time.Duration) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := r.client.Set(ctx, webSessionKeyPrefix+sessionID, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// Resolve looks up the binding for a session ID.
func (r *RedisSessionRegistry) Resolve(ctx context.Context, sessionID string) (WebSession, error) {
	payload, err := r.client.Get(ctx, webSessionKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return WebSession{}, ErrSessionNotFound
	}
	if err != nil {
		return WebSession{}, fmt.Errorf("failed to load session: %w", err)
	}
	var session WebSession
	if err := json.Unmarshal(payload, &session); err != nil {
		return WebSession{}, fmt.Errorf("failed to decode session: %w", err)
	}
	return session, nil
}

// Drop removes the binding. Dropping an absent session is not an error.
func (r *RedisSessionRegistry) Drop(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, webSessionKeyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("failed to drop session: %w", err)
	}
	return nil
}

// MemorySessionRegistry is an in-process registry for tests and single-node
// deployments.
type MemorySessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]memorySession

	now func() time.Time
}

type memorySession struct {
	session   WebSession
	expiresAt time.Time
}

// NewMemorySessionRegistry creates an empty in-memory registry.
func NewMemorySessionRegistry() *MemorySessionRegistry {
	return &MemorySessionRegistry{
		sessions: make(map[string]memorySession),
		now:      time.Now,
	}
}

// Bind stores the binding, replacing any prior one for the session ID.
func (m *MemorySessionRegistry) Bind(_ context.Context, sessionID string, session WebSession, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := memorySession{session: session}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.sessions[sessionID] = entry
	return nil
}

// Resolve returns the binding, expiring it lazily.
func (m *MemorySessionRegistry) Resolve(_ context.Context, sessionID string) (WebSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.sessions[sessionID]
	if !ok {
		return WebSession{}, ErrSessionNotFound
	}
	if !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		delete(m.sessions, sessionID)
		return WebSession{}, ErrSessionNotFound
	}
	return entry.session, nil
}

// Drop removes the binding. Idempotent.
func (m *MemorySessionRegistry) Drop(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}
