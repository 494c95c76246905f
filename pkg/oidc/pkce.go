package oidc

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// RFC 7636 bounds on the code verifier length.
const (
	minVerifierLength = 43
	maxVerifierLength = 128

	// verifierBytes yields an 86-character base64url verifier, comfortably
	// inside the RFC bounds.
	verifierBytes = 64
)

// GenerateCodeVerifier produces a cryptographically random PKCE code
// verifier: URL-safe, unpadded, 43-128 characters.
func GenerateCodeVerifier() (string, error) {
	b := make([]byte, verifierBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate code verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ChallengeS256 derives the S256 code challenge for a verifier:
// base64url(sha256(verifier)) without padding.
func ChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// ValidVerifier reports whether the verifier satisfies the RFC 7636 length
// and character constraints.
func ValidVerifier(verifier string) bool {
	if len(verifier) < minVerifierLength || len(verifier) > maxVerifierLength {
		return false
	}
	for _, c := range verifier {
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '.' || c == '_' || c == '~':
		default:
			return false
		}
	}
	return true
}

// GenerateState produces a single-use CSRF token for the authorization
// redirect.
func GenerateState() (string, error) {
	return randomToken(32)
}

// GenerateNonce produces a single-use replay-protection token bound into the
// ID token.
func GenerateNonce() (string, error) {
	return randomToken(32)
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
