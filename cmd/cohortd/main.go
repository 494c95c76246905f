package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"

	"github.com/cohortd/cohort/pkg/api"
	"github.com/cohortd/cohort/pkg/audit"
	"github.com/cohortd/cohort/pkg/config"
	"github.com/cohortd/cohort/pkg/observability"
	"github.com/cohortd/cohort/pkg/oidc"
	"github.com/cohortd/cohort/pkg/principal"
	"github.com/cohortd/cohort/pkg/rbac"
	"github.com/cohortd/cohort/pkg/secrets"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, nil).WithField("service", "cohortd")

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(nil)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := openDatabase(ctx, cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("failed to open database")
	}
	defer db.Close()

	if err := migrate(ctx, db); err != nil {
		logger.WithError(err).Fatal("failed to apply migrations")
	}

	tokenStore, registry := buildStores(cfg.TokenStore, logger)

	principalStore := principal.NewStore(db)
	rbacStore := rbac.NewStore(db)
	auditLog := audit.NewLogger(db, logger)

	engine := rbac.NewEngine(rbacStore, logger,
		rbac.WithAuditSink(auditLog),
		rbac.WithMetrics(metrics),
	)

	sessionStore := oidc.NewMemorySessionStore()
	resolver := oidc.NewKeyResolver(nil, oidc.WithResolverMetrics(metrics))

	controllers, err := buildControllers(ctx, cfg.OIDC, principalStore, sessionStore, tokenStore, resolver, logger, metrics)
	if err != nil {
		logger.WithError(err).Fatal("failed to build auth controllers")
	}

	server := api.NewServer(controllers, registry, engine, logger,
		api.WithMetrics(metrics),
		api.WithAuditRecorder(auditLog),
	)

	httpServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthServer := newHealthServer(cfg.Server, db, metrics)

	go func() {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("health server failed")
		}
	}()

	go func() {
		logger.WithField("addr", httpServer.Addr).Info("server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("health server shutdown failed")
	}
}

// newHealthServer serves liveness and readiness probes, plus metrics when
// enabled, on a port separate from the API.
func newHealthServer(cfg config.ServerConfig, db *sql.DB, metrics *observability.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	if metrics != nil {
		mux.Handle("/metrics", metrics.Handler())
	}
	return &http.Server{
		Addr:    cfg.Host + ":" + cfg.HealthPort,
		Handler: mux,
	}
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxConns)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	if err := principal.Migrate(ctx, db); err != nil {
		return err
	}
	if err := rbac.Migrate(ctx, db); err != nil {
		return err
	}
	return audit.Migrate(ctx, db)
}

// buildStores selects Redis-backed stores when configured, falling back to
// in-memory stores for single-node runs.
func buildStores(cfg config.TokenStoreConfig, logger *observability.Logger) (secrets.Store, api.SessionRegistry) {
	if cfg.RedisURL == "" {
		logger.Warn("no redis configured, using in-memory token and session stores")
		return secrets.NewMemoryStore(), api.NewMemorySessionRegistry()
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.WithError(err).Fatal("invalid redis URL")
	}
	if cfg.RedisPassword != "" {
		opts.Password = cfg.RedisPassword
	}
	opts.DB = cfg.RedisDB

	client := redis.NewClient(opts)
	return secrets.NewRedisStore(client), api.NewRedisSessionRegistry(client)
}

func buildControllers(
	ctx context.Context,
	cfg config.OIDCConfig,
	principalStore *principal.Store,
	sessionStore oidc.SessionStore,
	tokenStore secrets.Store,
	resolver *oidc.KeyResolver,
	logger *observability.Logger,
	metrics *observability.Metrics,
) ([]*oidc.Controller, error) {
	researcher, err := oidc.NewController(ctx,
		oidc.Config{
			IssuerURL:    cfg.IssuerURL,
			ClientID:     cfg.Researcher.ClientID,
			ClientSecret: cfg.Researcher.ClientSecret,
			RedirectURL:  cfg.Researcher.RedirectURL,
		},
		oidc.NewResearcherAdapter(principalStore),
		sessionStore, tokenStore, resolver, logger,
		oidc.WithControllerMetrics(metrics),
	)
	if err != nil {
		return nil, err
	}

	participant, err := oidc.NewController(ctx,
		oidc.Config{
			IssuerURL:    cfg.IssuerURL,
			ClientID:     cfg.Participant.ClientID,
			ClientSecret: cfg.Participant.ClientSecret,
			RedirectURL:  cfg.Participant.RedirectURL,
		},
		oidc.NewParticipantAdapter(principalStore),
		sessionStore, tokenStore, resolver, logger,
		oidc.WithControllerMetrics(metrics),
	)
	if err != nil {
		return nil, err
	}

	return []*oidc.Controller{researcher, participant}, nil
}
