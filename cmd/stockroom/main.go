package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/platinummonkey/stockroom/pkg/api"
	"github.com/platinummonkey/stockroom/pkg/audit"
	"github.com/platinummonkey/stockroom/pkg/config"
	"github.com/platinummonkey/stockroom/pkg/inventory"
	"github.com/platinummonkey/stockroom/pkg/middleware"
	"github.com/platinummonkey/stockroom/pkg/observability"
	"github.com/platinummonkey/stockroom/pkg/session"
	"github.com/platinummonkey/stockroom/pkg/sso"
	"github.com/platinummonkey/stockroom/pkg/users"
)

var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout)
	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("stockroom exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx := context.Background()

	otelProviders, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	var db *sql.DB
	if cfg.UsesPostgres() {
		db, err = openDatabase(ctx, cfg.Database)
		if err != nil {
			return err
		}
		logger.Info("Connected to PostgreSQL")
	}

	var redisClient *redis.Client
	if cfg.UsesRedis() {
		redisClient, err = session.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		logger.Info("Connected to Redis")
	}

	sessionStore, err := newSessionStore(ctx, cfg, db, redisClient)
	if err != nil {
		return err
	}
	directory, err := newDirectory(ctx, db, logger)
	if err != nil {
		return err
	}
	auditStore, err := newAuditStore(cfg, db)
	if err != nil {
		return err
	}
	dispatcher := audit.NewDispatcher(auditStore, cfg.Audit.BufferSize, logger, metrics)

	idp, err := sso.NewOIDCClient(sso.OIDCConfig{
		IssuerURL:    cfg.OIDC.IssuerURL,
		ClientID:     cfg.OIDC.ClientID,
		ClientSecret: cfg.OIDC.ClientSecret,
		RedirectURL:  cfg.OIDC.RedirectURL,
		Scopes:       cfg.OIDC.Scopes,
		HTTPTimeout:  cfg.OIDC.HTTPTimeout,
	}, logger, metrics)
	if err != nil {
		return err
	}

	sessions := session.NewManager(sessionStore, session.Config{
		CookieName:          cfg.Session.CookieName,
		AlwaysSecure:        cfg.Session.Secure == config.SecureAlways,
		TrustForwardedProto: cfg.Server.TrustProxy,
	}, logger)

	limiter := middleware.NewLoginRateLimiter(middleware.RateLimitConfig{
		RequestsPerMinute: cfg.RateLimit.LoginRequestsPerMinute,
		Burst:             cfg.RateLimit.LoginBurst,
		TrustProxy:        cfg.Server.TrustProxy,
	}, metrics)

	// Redis expires sessions itself
	var janitor *session.Janitor
	if cfg.Session.Backend != config.BackendRedis {
		janitor, err = session.NewJanitor(sessionStore, cfg.Session.CleanupSchedule, logger, metrics.SessionsPurgedTotal)
		if err != nil {
			return err
		}
		janitor.Start()
	}

	server := api.NewServer(api.Dependencies{
		IdP:          idp,
		Sessions:     sessions,
		Directory:    directory,
		AuditStore:   auditStore,
		Dispatcher:   dispatcher,
		Inventory:    inventory.NewMemoryStore(),
		LoginLimiter: limiter,
		TrustProxy:   cfg.Server.TrustProxy,
		Logger:       logger,
		Metrics:      metrics,
	})

	httpServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      observability.InstrumentHandler(server, "stockroom"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	opsMux := http.NewServeMux()
	observability.RegisterHealthRoutes(opsMux, observability.NewHealthChecker(db, redisClient, version))
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(opsMux, registry)
	}
	opsServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           opsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Servers stop first; the audit queue drains before the stores close
	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, httpServer, opsServer)
	shutdown.Register("audit dispatcher", dispatcher.Close)
	if path := os.Getenv(config.ConfigFileEnv); path != "" {
		// Only the log level is applied live; other settings need a restart
		watcher, err := config.Watch(path, logger, func(next *config.Config) {
			logger.SetLevel(next.Observability.Level())
		})
		if err != nil {
			logger.WithError(err).Warn("Config file changes will not be applied until restart")
		} else {
			shutdown.Register("config watcher", func(context.Context) error { return watcher.Close() })
		}
	}
	if janitor != nil {
		shutdown.Register("session janitor", janitor.Stop)
	}
	shutdown.Register("opentelemetry", otelProviders.Shutdown)
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}
	if db != nil {
		shutdown.Register("postgres", func(context.Context) error { return db.Close() })
	}

	serve(httpServer, logger.WithField("server", "api"))
	serve(opsServer, logger.WithField("server", "ops"))
	logger.WithFields(map[string]interface{}{
		"addr":            httpServer.Addr,
		"ops_addr":        opsServer.Addr,
		"session_backend": cfg.Session.Backend,
		"audit_backend":   cfg.Audit.Backend,
		"version":         version,
	}).Info("Stockroom started")

	return shutdown.WaitForShutdown()
}

func serve(srv *http.Server, logger *observability.Logger) {
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("HTTP server failed")
			os.Exit(1)
		}
	}()
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func newSessionStore(ctx context.Context, cfg *config.Config, db *sql.DB, client *redis.Client) (session.Store, error) {
	switch cfg.Session.Backend {
	case config.BackendRedis:
		return session.NewRedisStore(client), nil
	case config.BackendPostgres:
		store, err := session.NewPostgresStore(db)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return session.NewMemoryStore(), nil
	}
}

// newDirectory uses Postgres whenever a database is configured
func newDirectory(ctx context.Context, db *sql.DB, logger *observability.Logger) (users.Directory, error) {
	if db == nil {
		logger.Warn("No database configured, user directory is in memory and will not survive a restart")
		return users.NewMemoryDirectory(), nil
	}
	directory, err := users.NewPostgresDirectory(db)
	if err != nil {
		return nil, err
	}
	if err := directory.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return directory, nil
}

func newAuditStore(cfg *config.Config, db *sql.DB) (audit.Logger, error) {
	if cfg.Audit.Backend == config.BackendPostgres {
		return audit.NewDBLogger(db)
	}
	return audit.NewMemoryLogger(), nil
}
