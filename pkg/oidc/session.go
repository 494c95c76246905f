package oidc

import (
	"sync"
	"time"
)

// NonceMaxAge bounds how long a login attempt stays valid, independent of any
// token expiry.
const NonceMaxAge = 300 * time.Second

// FlowSession holds the per-login-attempt secrets for one browser session.
// It is created at the login redirect and consumed exactly once at the
// callback, successful or not.
type FlowSession struct {
	State         string
	Nonce         string
	NonceIssuedAt time.Time
	CodeVerifier  string
}

// NonceExpired reports whether the attempt outlived the nonce window at the
// given instant.
func (s FlowSession) NonceExpired(now time.Time) bool {
	return now.Sub(s.NonceIssuedAt) > NonceMaxAge
}

// SessionStore keeps in-flight flow sessions keyed by browser session id.
// Nothing here survives a process restart; in-flight logins simply start
// over.
type SessionStore interface {
	// Put stores the session, overwriting any prior one for the same browser
	// session. Overwriting intentionally invalidates a stale, abandoned login
	// attempt from the same session.
	Put(sessionID string, session FlowSession)
	// Pop removes and returns the session. A session can be popped once;
	// subsequent pops miss.
	Pop(sessionID string) (FlowSession, bool)
}

// MemorySessionStore is the in-process SessionStore.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]FlowSession
}

// NewMemorySessionStore creates an empty in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]FlowSession)}
}

// Put stores the session, replacing any in-flight attempt for the same id.
func (s *MemorySessionStore) Put(sessionID string, session FlowSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = session
}

// Pop removes and returns the session for the id.
func (s *MemorySessionStore) Pop(sessionID string) (FlowSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	return session, ok
}
