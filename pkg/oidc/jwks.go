package oidc

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/cohortd/cohort/pkg/observability"
)

// ErrKeyNotFound means the cached key set has no entry for the kid. The
// verifier invalidates the cache and retries once before treating it as a
// signature failure; a second miss usually means the token was signed by a
// key the provider never published.
var ErrKeyNotFound = errors.New("signing key not found")

// KeyResolver fetches and caches identity providers' public signing keys,
// keyed by JWKS endpoint. The cache has no timer: a set is refreshed only
// when a lookup misses, because published keys are supplier-versioned and
// idempotent for a given kid. Concurrent fills are serialized and the result
// is last-writer-wins, which is safe for the same reason.
type KeyResolver struct {
	client  *http.Client
	metrics *observability.Metrics

	mu   sync.RWMutex
	sets map[string]map[string]*rsa.PublicKey
}

// KeyResolverOption configures a KeyResolver.
type KeyResolverOption func(*KeyResolver)

// WithResolverMetrics enables JWKS fetch counters.
func WithResolverMetrics(m *observability.Metrics) KeyResolverOption {
	return func(r *KeyResolver) { r.metrics = m }
}

// NewKeyResolver creates a resolver. A nil client gets a default with a
// finite timeout; JWKS fetches must never block a login indefinitely.
func NewKeyResolver(client *http.Client, opts ...KeyResolverOption) *KeyResolver {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	r := &KeyResolver{
		client: client,
		sets:   make(map[string]map[string]*rsa.PublicKey),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Key returns the signing key for kid from the provider's key set, fetching
// the set on first use. A cached set missing the kid returns ErrKeyNotFound
// without a network call; Invalidate forces the next call to re-fetch.
func (r *KeyResolver) Key(ctx context.Context, jwksURL, kid string) (*rsa.PublicKey, error) {
	r.mu.RLock()
	set, cached := r.sets[jwksURL]
	r.mu.RUnlock()

	if cached {
		if key, ok := set[kid]; ok {
			return key, nil
		}
		return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
	}

	set, err := r.fill(ctx, jwksURL)
	if err != nil {
		return nil, err
	}
	if key, ok := set[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: kid %q", ErrKeyNotFound, kid)
}

// Invalidate drops the cached key set for the provider so the next lookup
// re-fetches. Used by the verifier to cover key-rotation races.
func (r *KeyResolver) Invalidate(jwksURL string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sets, jwksURL)
}

// fill fetches the key set and installs it in the cache. The write lock is
// held across the fetch so concurrent misses produce one request; the
// double-check keeps a racing fill from fetching twice.
func (r *KeyResolver) fill(ctx context.Context, jwksURL string) (map[string]*rsa.PublicKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if set, ok := r.sets[jwksURL]; ok {
		return set, nil
	}

	set, err := r.fetch(ctx, jwksURL)
	if err != nil {
		r.countFetch("failure")
		return nil, err
	}
	r.countFetch("success")
	r.sets[jwksURL] = set
	return set, nil
}

func (r *KeyResolver) countFetch(outcome string) {
	if r.metrics != nil {
		r.metrics.JWKSFetchesTotal.WithLabelValues(outcome).Inc()
	}
}

func (r *KeyResolver) fetch(ctx context.Context, jwksURL string) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build JWKS request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, authErr(KindUpstreamUnavailable, "JWKS fetch failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, authErr(KindUpstreamUnavailable,
			fmt.Sprintf("JWKS endpoint returned status %d", resp.StatusCode), nil)
	}

	var doc struct {
		Keys []struct {
			Kty string `json:"kty"`
			Kid string `json:"kid"`
			Use string `json:"use"`
			N   string `json:"n"`
			E   string `json:"e"`
		} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, authErr(KindUpstreamUnavailable, "failed to decode JWKS document", err)
	}

	set := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || k.Kid == "" {
			continue
		}
		key, err := rsaKeyFromJWK(k.N, k.E)
		if err != nil {
			continue
		}
		set[k.Kid] = key
	}
	return set, nil
}

func rsaKeyFromJWK(n, e string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("invalid modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("invalid exponent: %w", err)
	}

	exponent := 0
	for _, b := range eBytes {
		exponent = exponent<<8 + int(b)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nBytes), E: exponent}, nil
}
