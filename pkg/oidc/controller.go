package oidc

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/cohortd/cohort/pkg/observability"
	"github.com/cohortd/cohort/pkg/principal"
	"github.com/cohortd/cohort/pkg/secrets"
)

// Config describes one OIDC client registration. Each principal kind gets its
// own registration, passed in at construction; there is no shared registry.
type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Scopes overrides the adapter's default scope list when non-empty.
	Scopes []string

	// Explicit endpoints bypass issuer discovery. Normally left empty; used
	// for providers without a discovery document and in tests.
	AuthURL  string
	TokenURL string
	JWKSURL  string

	// HTTPClient is used for all provider traffic. A nil client gets a
	// default with a finite timeout.
	HTTPClient *http.Client
}

// Controller drives the OIDC authorization-code flow for one principal kind.
// Two instances run in production, sharing the KeyResolver and differing only
// in their adapter and client registration.
type Controller struct {
	adapter  PrincipalAdapter
	oauth    *oauth2.Config
	verifier *Verifier
	sessions SessionStore
	secrets  secrets.Store
	client   *http.Client
	logger   *observability.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithControllerMetrics enables login/refresh counters.
func WithControllerMetrics(m *observability.Metrics) ControllerOption {
	return func(c *Controller) { c.metrics = m }
}

// withClock overrides the controller's clock in tests.
func withClock(now func() time.Time) ControllerOption {
	return func(c *Controller) { c.now = now }
}

// NewController builds a controller for one principal kind. Unless explicit
// endpoints are configured, the provider's discovery document is fetched once
// here to resolve the authorize, token and JWKS endpoints.
func NewController(
	ctx context.Context,
	cfg Config,
	adapter PrincipalAdapter,
	sessionStore SessionStore,
	secretStore secrets.Store,
	resolver *KeyResolver,
	logger *observability.Logger,
	opts ...ControllerOption,
) (*Controller, error) {
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client id is required")
	}
	if cfg.RedirectURL == "" {
		return nil, fmt.Errorf("redirect url is required")
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	endpoint := oauth2.Endpoint{AuthURL: cfg.AuthURL, TokenURL: cfg.TokenURL}
	jwksURL := cfg.JWKSURL
	if cfg.AuthURL == "" || cfg.TokenURL == "" || jwksURL == "" {
		provider, err := gooidc.NewProvider(gooidc.ClientContext(ctx, client), cfg.IssuerURL)
		if err != nil {
			return nil, authErr(KindUpstreamUnavailable, "provider discovery failed", err)
		}
		endpoint = provider.Endpoint()

		var discovered struct {
			JWKSURI string `json:"jwks_uri"`
		}
		if err := provider.Claims(&discovered); err != nil {
			return nil, fmt.Errorf("failed to read discovery document: %w", err)
		}
		jwksURL = discovered.JWKSURI
	}
	if jwksURL == "" {
		return nil, fmt.Errorf("provider exposes no JWKS endpoint")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = adapter.Scopes()
	}

	c := &Controller{
		adapter: adapter,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		},
		verifier: NewVerifier(cfg.IssuerURL, cfg.ClientID, jwksURL, resolver),
		sessions: sessionStore,
		secrets:  secretStore,
		client:   client,
		logger:   logger.WithField("principal_kind", string(adapter.Kind())),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.verifier.now = c.now
	return c, nil
}

// Kind names the principal population this controller authenticates.
func (c *Controller) Kind() principal.Kind {
	return c.adapter.Kind()
}

// Login starts a login attempt for the browser session: fresh state, nonce
// and PKCE verifier are generated, stored (replacing any in-flight attempt
// for the same session), and the provider authorization URL is returned for
// the redirect.
func (c *Controller) Login(ctx context.Context, sessionID string) (string, error) {
	state, err := GenerateState()
	if err != nil {
		return "", err
	}
	nonce, err := GenerateNonce()
	if err != nil {
		return "", err
	}
	verifier, err := GenerateCodeVerifier()
	if err != nil {
		return "", err
	}

	c.sessions.Put(sessionID, FlowSession{
		State:         state,
		Nonce:         nonce,
		NonceIssuedAt: c.now(),
		CodeVerifier:  verifier,
	})

	authURL := c.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("code_challenge", ChallengeS256(verifier)),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)

	c.logger.Debug("login redirect issued")
	return authURL, nil
}

// Callback completes a login attempt. The flow session is popped before any
// network call so that a cancelled or replayed callback can never reuse its
// state or nonce; every validation failure is terminal for the attempt.
func (c *Controller) Callback(ctx context.Context, sessionID, queryState, code string) (*principal.Principal, *secrets.TokenBundle, error) {
	session, ok := c.sessions.Pop(sessionID)
	if !ok || subtle.ConstantTimeCompare([]byte(session.State), []byte(queryState)) != 1 {
		c.fail(KindStateMismatch)
		c.logger.Warn("callback state mismatch")
		return nil, nil, ErrStateMismatch
	}
	if session.CodeVerifier == "" {
		c.fail(KindStateMismatch)
		return nil, nil, authErr(KindStateMismatch, "login attempt has no code verifier", nil)
	}
	if session.Nonce == "" || session.NonceExpired(c.now()) {
		c.fail(KindNonceExpired)
		return nil, nil, ErrNonceExpired
	}

	token, err := c.exchange(ctx, code, session.CodeVerifier)
	if err != nil {
		c.fail(KindOf(err))
		return nil, nil, err
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		c.fail(KindClaimInvalid)
		return nil, nil, authErr(KindClaimInvalid, "token response missing id_token", nil)
	}

	claims, err := c.verifier.Verify(ctx, rawIDToken, session.Nonce)
	if err != nil {
		c.fail(KindOf(err))
		c.countVerify("failure")
		c.logger.WithError(err).Warn("id token verification failed")
		return nil, nil, err
	}
	c.countVerify("success")

	p, err := c.resolvePrincipal(ctx, claims)
	if err != nil {
		c.fail(KindOf(err))
		return nil, nil, err
	}

	bundle := &secrets.TokenBundle{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		IDToken:      rawIDToken,
		Expiry:       token.Expiry,
	}
	if err := c.secrets.Put(ctx, c.secretKey(p.ID), bundle, 0); err != nil {
		return nil, nil, fmt.Errorf("failed to persist token bundle: %w", err)
	}

	if c.metrics != nil {
		c.metrics.LoginAttemptsTotal.WithLabelValues(string(c.Kind()), "success").Inc()
	}
	c.logger.WithField("principal_id", p.ID).Info("login succeeded")
	return p, bundle, nil
}

// resolvePrincipal maps verified claims to a principal, applying the
// archived-principal gate: an archived identity is rejected outright even
// when provisioning could otherwise create a fresh row for it.
func (c *Controller) resolvePrincipal(ctx context.Context, claims *Claims) (*principal.Principal, error) {
	identity, err := c.adapter.Identity(claims)
	if err != nil {
		return nil, err
	}

	p, err := c.adapter.Lookup(ctx, identity)
	switch {
	case err == nil:
	case errors.Is(err, principal.ErrNotFound):
		p, err = c.adapter.Provision(ctx, identity)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("principal lookup failed: %w", err)
	}

	if p.Archived {
		c.logger.WithField("principal_id", p.ID).Warn("archived principal attempted login")
		return nil, ErrPrincipalArchived
	}
	return p, nil
}

// exchange swaps the authorization code plus PKCE verifier for tokens.
func (c *Controller) exchange(ctx context.Context, code, codeVerifier string) (*oauth2.Token, error) {
	token, err := c.oauth.Exchange(c.oauthContext(ctx), code,
		oauth2.SetAuthURLParam("code_verifier", codeVerifier),
	)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, authErr(KindExchangeFailed, "token endpoint rejected code exchange", err)
		}
		return nil, authErr(KindUpstreamUnavailable, "token endpoint unreachable", err)
	}
	return token, nil
}

// RefreshAccessToken returns a valid access token bundle for the principal.
// While the stored token is unexpired this is a no-op success. A rejected
// refresh grant ends the session: the caller must force a fresh login,
// whereas network failures may simply be retried.
func (c *Controller) RefreshAccessToken(ctx context.Context, principalID string) (*secrets.TokenBundle, error) {
	key := c.secretKey(principalID)

	bundle, err := c.secrets.Get(ctx, key)
	if errors.Is(err, secrets.ErrNotFound) {
		return nil, authErr(KindRefreshGrantInvalid, "no stored session for principal", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token bundle: %w", err)
	}

	if !bundle.Expired(c.now()) {
		return bundle, nil
	}
	if bundle.RefreshToken == "" {
		return nil, authErr(KindRefreshGrantInvalid, "no refresh token available", nil)
	}

	source := c.oauth.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: bundle.RefreshToken})
	token, err := source.Token()
	if err != nil {
		c.refreshOutcome("failure")
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && invalidGrant(retrieveErr) {
			c.logger.WithField("principal_id", principalID).Info("refresh grant invalidated, re-login required")
			return nil, authErr(KindRefreshGrantInvalid, "refresh grant rejected", err)
		}
		return nil, authErr(KindUpstreamUnavailable, "token refresh failed", err)
	}

	refreshed := &secrets.TokenBundle{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		IDToken:      bundle.IDToken,
		Expiry:       token.Expiry,
	}
	if refreshed.RefreshToken == "" {
		// Providers may omit the refresh token on rotation-less refreshes.
		refreshed.RefreshToken = bundle.RefreshToken
	}
	if err := c.secrets.Put(ctx, key, refreshed, 0); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed bundle: %w", err)
	}

	c.refreshOutcome("success")
	return refreshed, nil
}

// Logout drops the principal's stored tokens and any in-flight login attempt
// for the browser session. Idempotent.
func (c *Controller) Logout(ctx context.Context, sessionID, principalID string) error {
	c.sessions.Pop(sessionID)
	if principalID == "" {
		return nil
	}
	if err := c.secrets.Delete(ctx, c.secretKey(principalID)); err != nil {
		return fmt.Errorf("failed to drop token bundle: %w", err)
	}
	return nil
}

func (c *Controller) secretKey(principalID string) string {
	return string(c.adapter.Kind()) + ":" + principalID
}

// oauthContext injects the controller's HTTP client into oauth2 calls so the
// provider timeout applies to exchanges and refreshes too.
func (c *Controller) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.client)
}

func (c *Controller) fail(kind ErrorKind) {
	if c.metrics == nil {
		return
	}
	c.metrics.LoginAttemptsTotal.WithLabelValues(string(c.Kind()), "failure").Inc()
	c.metrics.CallbackFailsTotal.WithLabelValues(string(c.Kind()), string(kind)).Inc()
}

func (c *Controller) countVerify(outcome string) {
	if c.metrics != nil {
		c.metrics.IDTokenVerifyTotal.WithLabelValues(outcome).Inc()
	}
}

func (c *Controller) refreshOutcome(outcome string) {
	if c.metrics != nil {
		c.metrics.TokenRefreshesTotal.WithLabelValues(outcome).Inc()
	}
}

// invalidGrant reports whether the token endpoint's 400-class response names
// an invalid or expired grant, which has a different remediation (re-login)
// than a transient failure (retry).
func invalidGrant(err *oauth2.RetrieveError) bool {
	if err.Response != nil && err.Response.StatusCode >= 500 {
		return false
	}
	return err.ErrorCode == "invalid_grant"
}
