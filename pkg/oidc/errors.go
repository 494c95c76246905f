package oidc

import (
	"errors"
	"fmt"
)

// ErrorKind classifies authentication failures for the HTTP layer. Every kind
// except KindUpstreamUnavailable is terminal for the attempt: the caller must
// start a fresh login rather than retry.
type ErrorKind string

const (
	// KindStateMismatch is a CSRF failure: the callback state is missing,
	// already consumed, or does not match. Logged as a security event.
	KindStateMismatch ErrorKind = "state_mismatch"
	// KindNonceExpired means the login attempt outlived the nonce window.
	// Distinct from KindStateMismatch so the user sees "session expired"
	// instead of "invalid request".
	KindNonceExpired ErrorKind = "nonce_expired"
	// KindSignatureInvalid means the ID token signature did not verify, or no
	// signing key could be found for its kid.
	KindSignatureInvalid ErrorKind = "signature_invalid"
	// KindClaimInvalid covers issuer, audience, type, expiry and nonce claim
	// failures. Treated as a potential attack.
	KindClaimInvalid ErrorKind = "claim_invalid"
	// KindExchangeFailed means the provider rejected the code exchange.
	KindExchangeFailed ErrorKind = "exchange_failed"
	// KindPrincipalArchived means the claimed identity exists but is archived.
	KindPrincipalArchived ErrorKind = "principal_archived"
	// KindPrincipalNotFound means no principal matches the claimed identity
	// and the population does not auto-provision.
	KindPrincipalNotFound ErrorKind = "principal_not_found"
	// KindRefreshGrantInvalid means the refresh grant was rejected; the
	// session is over and the caller must force a fresh login.
	KindRefreshGrantInvalid ErrorKind = "refresh_grant_invalid"
	// KindUpstreamUnavailable is a network-level failure reaching the
	// provider. The only retryable kind; not attributed to the principal.
	KindUpstreamUnavailable ErrorKind = "upstream_unavailable"
)

// AuthError is a classified authentication failure. Errors compare by kind
// under errors.Is, so wrapped instances still match their sentinel.
type AuthError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is matches any AuthError of the same kind.
func (e *AuthError) Is(target error) bool {
	var t *AuthError
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel instances for errors.Is checks.
var (
	ErrStateMismatch       = &AuthError{Kind: KindStateMismatch, Message: "invalid request"}
	ErrNonceExpired        = &AuthError{Kind: KindNonceExpired, Message: "session expired"}
	ErrSignatureInvalid    = &AuthError{Kind: KindSignatureInvalid, Message: "token signature invalid"}
	ErrClaimInvalid        = &AuthError{Kind: KindClaimInvalid, Message: "token claims invalid"}
	ErrExchangeFailed      = &AuthError{Kind: KindExchangeFailed, Message: "authorization code exchange rejected"}
	ErrPrincipalArchived   = &AuthError{Kind: KindPrincipalArchived, Message: "account unavailable"}
	ErrPrincipalNotFound   = &AuthError{Kind: KindPrincipalNotFound, Message: "account not found"}
	ErrRefreshGrantInvalid = &AuthError{Kind: KindRefreshGrantInvalid, Message: "session expired, re-login required"}
	ErrUpstreamUnavailable = &AuthError{Kind: KindUpstreamUnavailable, Message: "identity provider unavailable"}
)

// authErr builds a wrapped AuthError of the given kind.
func authErr(kind ErrorKind, message string, err error) *AuthError {
	return &AuthError{Kind: kind, Message: message, Err: err}
}

// Retryable reports whether the caller may retry the failed operation with
// backoff. Everything terminal returns false.
func Retryable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable)
}

// KindOf extracts the error kind, or empty for unclassified errors.
func KindOf(err error) ErrorKind {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}
