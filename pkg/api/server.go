package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/cohortd/cohort/pkg/audit"
	"github.com/cohortd/cohort/pkg/httputil"
	"github.com/cohortd/cohort/pkg/observability"
	"github.com/cohortd/cohort/pkg/oidc"
	"github.com/cohortd/cohort/pkg/principal"
	"github.com/cohortd/cohort/pkg/rbac"
)

const (
	// sessionCookieName carries the browser session ID.
	sessionCookieName = "cohort_session"

	// sessionTTL bounds how long a login binding stays valid.
	sessionTTL = 24 * time.Hour
)

// Server wires the auth controllers, the permission engine and the audit
// log into an HTTP handler.
type Server struct {
	router      *mux.Router
	controllers map[principal.Kind]*oidc.Controller
	registry    SessionRegistry
	engine      *rbac.Engine
	audit       audit.Recorder
	logger      *observability.Logger
	metrics     *observability.Metrics
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithMetrics enables request instrumentation and the /metrics endpoint.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithAuditRecorder enables audit logging of auth and authorization events.
func WithAuditRecorder(rec audit.Recorder) ServerOption {
	return func(s *Server) { s.audit = rec }
}

// NewServer creates the API server. One controller is registered per
// principal kind; requests for an unregistered kind get a 404.
func NewServer(
	controllers []*oidc.Controller,
	registry SessionRegistry,
	engine *rbac.Engine,
	logger *observability.Logger,
	opts ...ServerOption,
) *Server {
	s := &Server{
		router:      mux.NewRouter(),
		controllers: make(map[principal.Kind]*oidc.Controller, len(controllers)),
		registry:    registry,
		engine:      engine,
		logger:      logger,
	}
	for _, c := range controllers {
		s.controllers[c.Kind()] = c
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/auth/{kind}/login", s.handleLogin).Methods("GET")
	s.router.HandleFunc("/auth/{kind}/callback", s.handleCallback).Methods("GET")
	s.router.HandleFunc("/auth/logout", s.handleLogout).Methods("POST")
	s.router.HandleFunc("/auth/refresh", s.handleRefresh).Methods("POST")
	s.router.HandleFunc("/auth/me", s.handleWhoAmI).Methods("GET")

	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}

	s.router.Use(httputil.RequestIDMiddleware)
	s.router.Use(httputil.RecoveryMiddleware(s.logger))
	if s.metrics != nil {
		s.router.Use(s.metrics.InstrumentHandler)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router exposes the underlying router so callers can mount protected
// application routes behind RequirePermission.
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]string{"status": "ok"})
}

// controllerFor resolves the {kind} path segment to a registered controller.
func (s *Server) controllerFor(w http.ResponseWriter, r *http.Request) (*oidc.Controller, bool) {
	kindParam, ok := httputil.ParsePathStringOrError(w, r, "kind")
	if !ok {
		return nil, false
	}
	kind := principal.Kind(kindParam)
	c, ok := s.controllers[kind]
	if !ok {
		httputil.WriteNotFoundError(w, "unknown principal kind")
		return nil, false
	}
	return c, true
}

// browserSession returns the session ID cookie, minting one when absent.
func (s *Server) browserSession(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	sessionID := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(sessionTTL / time.Second),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
	return sessionID
}

// clearSessionCookie expires the session cookie on the client.
func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}
