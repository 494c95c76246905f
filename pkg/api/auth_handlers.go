package api

import (
	"errors"
	"net"
	"net/http"

	"github.com/cohortd/cohort/pkg/audit"
	"github.com/cohortd/cohort/pkg/httputil"
	"github.com/cohortd/cohort/pkg/oidc"
	"github.com/cohortd/cohort/pkg/principal"
)

// handleLogin starts a login attempt and redirects to the provider.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controllerFor(w, r)
	if !ok {
		return
	}
	sessionID := s.browserSession(w, r)

	authURL, err := c.Login(r.Context(), sessionID)
	if err != nil {
		s.logger.WithError(err).Error("failed to start login")
		httputil.WriteInternalError(w, errors.New("failed to start login"))
		return
	}

	s.record(r, &audit.Event{
		Action:        audit.ActionLoginStarted,
		Outcome:       audit.OutcomeSuccess,
		PrincipalKind: string(c.Kind()),
	})
	http.Redirect(w, r, authURL, http.StatusFound)
}

// handleCallback completes a login attempt. The provider redirects here with
// the authorization code and the state echo.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	c, ok := s.controllerFor(w, r)
	if !ok {
		return
	}

	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		httputil.WriteBadRequest(w, "invalid request")
		return
	}
	sessionID := cookie.Value

	query := r.URL.Query()
	if providerErr := query.Get("error"); providerErr != "" {
		s.recordLoginFailure(r, c.Kind(), providerErr)
		httputil.WriteUnauthorized(w, "login rejected by identity provider")
		return
	}
	state := query.Get("state")
	code := query.Get("code")
	if code == "" {
		httputil.WriteBadRequest(w, "missing authorization code")
		return
	}

	p, _, err := c.Callback(r.Context(), sessionID, state, code)
	if err != nil {
		s.recordLoginFailure(r, c.Kind(), string(oidc.KindOf(err)))
		s.writeAuthError(w, err)
		return
	}

	if err := s.registry.Bind(r.Context(), sessionID, WebSession{
		PrincipalID: p.ID,
		Kind:        p.Kind,
	}, sessionTTL); err != nil {
		s.logger.WithError(err).Error("failed to bind session")
		httputil.WriteInternalError(w, errors.New("failed to establish session"))
		return
	}

	s.record(r, &audit.Event{
		Action:        audit.ActionLoginSucceeded,
		Outcome:       audit.OutcomeSuccess,
		PrincipalID:   p.ID,
		PrincipalKind: string(p.Kind),
	})
	httputil.WriteSuccess(w, map[string]string{
		"principal_id": p.ID,
		"kind":         string(p.Kind),
		"username":     p.Username,
	})
}

// handleLogout ends the session: token bundle, session binding and any
// in-flight login attempt are all dropped. Idempotent.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		httputil.WriteNoContent(w)
		return
	}
	sessionID := cookie.Value

	session, err := s.registry.Resolve(r.Context(), sessionID)
	if err != nil && !errors.Is(err, ErrSessionNotFound) {
		s.logger.WithError(err).Error("failed to resolve session")
		httputil.WriteInternalError(w, errors.New("logout failed"))
		return
	}

	if c, ok := s.controllers[session.Kind]; ok {
		if err := c.Logout(r.Context(), sessionID, session.PrincipalID); err != nil {
			s.logger.WithError(err).Error("failed to drop tokens")
			httputil.WriteInternalError(w, errors.New("logout failed"))
			return
		}
	}
	if err := s.registry.Drop(r.Context(), sessionID); err != nil {
		s.logger.WithError(err).Error("failed to drop session")
		httputil.WriteInternalError(w, errors.New("logout failed"))
		return
	}
	clearSessionCookie(w)

	if session.PrincipalID != "" {
		s.record(r, &audit.Event{
			Action:        audit.ActionLogout,
			Outcome:       audit.OutcomeSuccess,
			PrincipalID:   session.PrincipalID,
			PrincipalKind: string(session.Kind),
		})
	}
	httputil.WriteNoContent(w)
}

// handleRefresh ensures the caller's access token is valid, refreshing it at
// the provider when expired. A rejected refresh grant ends the session.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	session, sessionID, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	c, ok := s.controllers[session.Kind]
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	bundle, err := c.RefreshAccessToken(r.Context(), session.PrincipalID)
	if err != nil {
		if oidc.KindOf(err) == oidc.KindRefreshGrantInvalid {
			s.registry.Drop(r.Context(), sessionID)
			clearSessionCookie(w)
		}
		s.record(r, &audit.Event{
			Action:        audit.ActionTokenRefreshed,
			Outcome:       audit.OutcomeFailure,
			PrincipalID:   session.PrincipalID,
			PrincipalKind: string(session.Kind),
			Detail:        string(oidc.KindOf(err)),
		})
		s.writeAuthError(w, err)
		return
	}

	s.record(r, &audit.Event{
		Action:        audit.ActionTokenRefreshed,
		Outcome:       audit.OutcomeSuccess,
		PrincipalID:   session.PrincipalID,
		PrincipalKind: string(session.Kind),
	})
	httputil.WriteSuccess(w, map[string]interface{}{
		"expires_at": bundle.Expiry,
	})
}

// handleWhoAmI reports the authenticated principal for the session.
func (s *Server) handleWhoAmI(w http.ResponseWriter, r *http.Request) {
	session, _, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, map[string]string{
		"principal_id": session.PrincipalID,
		"kind":         string(session.Kind),
	})
}

// authenticate resolves the session cookie to a principal binding, writing a
// 401 when the caller has no live session.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (WebSession, string, bool) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		httputil.WriteUnauthorized(w, "authentication required")
		return WebSession{}, "", false
	}
	session, err := s.registry.Resolve(r.Context(), cookie.Value)
	if errors.Is(err, ErrSessionNotFound) {
		httputil.WriteUnauthorized(w, "authentication required")
		return WebSession{}, "", false
	}
	if err != nil {
		s.logger.WithError(err).Error("failed to resolve session")
		httputil.WriteInternalError(w, errors.New("session lookup failed"))
		return WebSession{}, "", false
	}
	return session, cookie.Value, true
}

// writeAuthError maps a flow error to its HTTP status. Unrecognized errors
// are treated as internal.
func (s *Server) writeAuthError(w http.ResponseWriter, err error) {
	switch oidc.KindOf(err) {
	case oidc.KindStateMismatch:
		httputil.WriteBadRequest(w, "invalid request")
	case oidc.KindNonceExpired:
		httputil.WriteBadRequest(w, "session expired")
	case oidc.KindSignatureInvalid, oidc.KindClaimInvalid, oidc.KindExchangeFailed:
		httputil.WriteUnauthorized(w, "authentication failed")
	case oidc.KindPrincipalArchived:
		httputil.WriteForbidden(w, "account unavailable")
	case oidc.KindPrincipalNotFound:
		httputil.WriteForbidden(w, "account not registered")
	case oidc.KindRefreshGrantInvalid:
		httputil.WriteUnauthorized(w, "session expired, re-login required")
	case oidc.KindUpstreamUnavailable:
		httputil.WriteBadGateway(w, "identity provider unavailable")
	default:
		s.logger.WithError(err).Error("unexpected auth error")
		httputil.WriteInternalError(w, errors.New("authentication failed"))
	}
}

func (s *Server) recordLoginFailure(r *http.Request, kind principal.Kind, detail string) {
	s.record(r, &audit.Event{
		Action:        audit.ActionLoginFailed,
		Outcome:       audit.OutcomeFailure,
		PrincipalKind: string(kind),
		Detail:        detail,
	})
}

// record writes an audit event enriched with request metadata. Audit
// failures are logged, never surfaced to the caller.
func (s *Server) record(r *http.Request, event *audit.Event) {
	if s.audit == nil {
		return
	}
	event.IPAddress = clientIP(r)
	event.UserAgent = r.UserAgent()
	if err := s.audit.Record(r.Context(), event); err != nil {
		s.logger.WithError(err).Error("failed to record audit event")
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
