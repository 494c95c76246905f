// Package secrets persists provider token bundles (access, refresh and raw ID
// tokens) outside the authentication core. Bundles are addressed by an opaque
// key owned by the caller and carry their own expiry so stale entries age out
// of the backing store.
package secrets

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no bundle exists for the key.
var ErrNotFound = errors.New("token bundle not found")

// TokenBundle holds the provider tokens for one authenticated principal.
type TokenBundle struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IDToken      string    `json:"id_token,omitempty"`
	Expiry       time.Time `json:"expiry"`
}

// Expired reports whether the access token's lifetime has passed.
func (b *TokenBundle) Expired(now time.Time) bool {
	return !b.Expiry.IsZero() && !b.Expiry.After(now)
}

// Store persists token bundles. ttl bounds how long the backing store keeps
// the bundle regardless of the access token's own expiry; zero means no bound.
type Store interface {
	Put(ctx context.Context, key string, bundle *TokenBundle, ttl time.Duration) error
	Get(ctx context.Context, key string) (*TokenBundle, error)
	Delete(ctx context.Context, key string) error
}
