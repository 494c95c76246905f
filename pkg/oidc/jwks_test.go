package oidc

import (
	"context"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyResolverFetchesOnFirstUse(t *testing.T) {
	key := newTestKey(t)
	jwks := &jwksServer{keys: map[string]*rsa.PublicKey{"kid-1": &key.PublicKey}}
	server := httptest.NewServer(jwks)
	defer server.Close()

	resolver := NewKeyResolver(server.Client())

	got, err := resolver.Key(context.Background(), server.URL, "kid-1")
	require.NoError(t, err)
	assert.Equal(t, 0, key.PublicKey.N.Cmp(got.N))
	assert.Equal(t, int64(1), jwks.fetches.Load())

	// A second lookup hits the cache.
	_, err = resolver.Key(context.Background(), server.URL, "kid-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), jwks.fetches.Load())
}

func TestKeyResolverCachedMissSkipsNetwork(t *testing.T) {
	key := newTestKey(t)
	jwks := &jwksServer{keys: map[string]*rsa.PublicKey{"kid-1": &key.PublicKey}}
	server := httptest.NewServer(jwks)
	defer server.Close()

	resolver := NewKeyResolver(server.Client())
	_, err := resolver.Key(context.Background(), server.URL, "kid-1")
	require.NoError(t, err)

	// An unknown kid against a cached set fails without a fetch.
	_, err = resolver.Key(context.Background(), server.URL, "kid-2")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.Equal(t, int64(1), jwks.fetches.Load())
}

func TestKeyResolverInvalidateForcesRefetch(t *testing.T) {
	key := newTestKey(t)
	jwks := &jwksServer{keys: map[string]*rsa.PublicKey{"kid-1": &key.PublicKey}}
	server := httptest.NewServer(jwks)
	defer server.Close()

	resolver := NewKeyResolver(server.Client())
	_, err := resolver.Key(context.Background(), server.URL, "kid-1")
	require.NoError(t, err)

	// Rotate the provider's keys, then invalidate the cached set.
	rotated := newTestKey(t)
	jwks.keys = map[string]*rsa.PublicKey{"kid-2": &rotated.PublicKey}
	resolver.Invalidate(server.URL)

	got, err := resolver.Key(context.Background(), server.URL, "kid-2")
	require.NoError(t, err)
	assert.Equal(t, 0, rotated.PublicKey.N.Cmp(got.N))
	assert.Equal(t, int64(2), jwks.fetches.Load())
}

func TestKeyResolverUpstreamFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	resolver := NewKeyResolver(server.Client())
	_, err := resolver.Key(context.Background(), server.URL, "kid-1")
	require.Error(t, err)
	assert.Equal(t, KindUpstreamUnavailable, KindOf(err))
}

func TestKeyResolverIgnoresNonRSAKeys(t *testing.T) {
	key := newTestKey(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"keys":[{"kty":"EC","kid":"ec-1","crv":"P-256"},{"kty":"RSA","n":"` +
			encodeBase64URL(key.PublicKey.N.Bytes()) + `","e":"AQAB","kid":"rsa-1"}]}`))
	}))
	defer server.Close()

	resolver := NewKeyResolver(server.Client())
	_, err := resolver.Key(context.Background(), server.URL, "rsa-1")
	require.NoError(t, err)

	_, err = resolver.Key(context.Background(), server.URL, "ec-1")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}
