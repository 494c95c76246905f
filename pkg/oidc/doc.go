// Package oidc implements the OpenID Connect authentication flow with PKCE
// for the administration backend.
//
// One generic Controller drives the full authorization-code flow: login
// redirect, callback handling with single-use state/nonce validation, token
// exchange bound to a PKCE code verifier, ID token verification against the
// provider's rotating JWKS keys, principal resolution behind the
// archived-principal gate, and access-token refresh. The researcher and
// participant populations share the controller and differ only in the
// PrincipalAdapter they plug in.
//
// Per-login secrets (state, nonce, code verifier) live in a FlowSession keyed
// to one browser session. The session is consumed exactly once, before any
// network call the callback makes, so a cancelled or replayed callback can
// never reuse the same state.
package oidc
