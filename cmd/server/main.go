// Package main is the entry point for the dandi server binary.
// It dispatches the serve, migrate and version subcommands via a simple switch on
// os.Args so the binary's full CLI surface is readable in one place. The serve command
// runs auto-migration on startup so freshly deployed containers never need a separate
// migration step.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // #nosec G108 -- served only on the dedicated profiling port, never on the API listener.
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/dandi-dev/dandi/internal/analysis"
	"github.com/dandi-dev/dandi/internal/api"
	"github.com/dandi-dev/dandi/internal/auth"
	"github.com/dandi-dev/dandi/internal/config"
	"github.com/dandi-dev/dandi/internal/db"
	"github.com/dandi-dev/dandi/internal/db/repositories"
	"github.com/dandi-dev/dandi/internal/jobs"
	"github.com/dandi-dev/dandi/internal/ledger"
	"github.com/dandi-dev/dandi/internal/middleware"
	"github.com/dandi-dev/dandi/internal/scm/github"
	"github.com/dandi-dev/dandi/internal/summarizer"
	"github.com/dandi-dev/dandi/internal/telemetry"
)

const (
	version = "0.1.0"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	if command == "version" {
		fmt.Printf("dandi v%s\n", version)
		return nil
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	switch command {
	case "serve":
		return serve(cfg)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down|version>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, version", command)
	}
}

func serve(cfg *config.Config) error {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	jwtSecret, err := auth.LoadJWTSecret()
	if err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}
	sessions := auth.NewSessionManager(jwtSecret, cfg.Auth.Session.Expiry)

	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()
	slog.Info("connected to database", "host", cfg.Database.Host, "name", cfg.Database.Name)

	telemetry.StartDBStatsCollector(database)

	if err := db.RunMigrations(database, "up"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if schemaVersion, dirty, err := db.GetMigrationVersion(database); err != nil {
		slog.Warn("failed to get migration version", "error", err)
	} else {
		slog.Info("database schema ready", "version", schemaVersion, "dirty", dirty)
	}

	keys := repositories.NewAPIKeyRepository(sqlx.NewDb(database, "postgres"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline := newPipeline(ctx, cfg, keys)

	limiter, closeLimiter := newLimiter(cfg)
	defer closeLimiter()

	startSideChannels(cfg)

	var monitor *jobs.QuotaMonitor
	if cfg.Jobs.QuotaMonitorInterval > 0 {
		monitor = jobs.NewQuotaMonitor(keys, cfg.Jobs.QuotaMonitorInterval)
		go monitor.Start(ctx)
	}

	router := api.NewRouter(cfg, api.Dependencies{
		DB:       database,
		Pipeline: pipeline,
		Keys:     keys,
		Sessions: sessions,
		Limiter:  limiter,
		Version:  version,
	})

	server := &http.Server{
		Addr:              cfg.Server.GetAddress(),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", server.Addr, "tls", cfg.Security.TLS.Enabled,
			"with_metadata", cfg.Analysis.WithMetadata, "scope_to_owner", cfg.Analysis.ScopeToOwner)

		var err error
		if cfg.Security.TLS.Enabled {
			err = server.ListenAndServeTLS(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if monitor != nil {
		monitor.Stop()
	}

	slog.Info("server stopped gracefully")
	return nil
}

// newPipeline assembles the analysis pipeline from configuration.
func newPipeline(ctx context.Context, cfg *config.Config, keys *repositories.APIKeyRepository) *analysis.Orchestrator {
	gh := github.NewClient(github.Options{
		APIURL:    cfg.GitHub.APIURL,
		RawURL:    cfg.GitHub.RawURL,
		Token:     cfg.GitHub.Token,
		Timeout:   cfg.GitHub.Timeout,
		CacheSize: cfg.GitHub.CacheSize,
		CacheTTL:  cfg.GitHub.CacheTTL,
	})

	completer, err := summarizer.NewCompleter(ctx, &cfg.LLM)
	if err != nil {
		// Analyses still succeed, every summary is the fallback.
		slog.Warn("language model unavailable, summaries will use the fallback", "provider", cfg.LLM.Provider, "error", err)
		completer = nil
	}

	var opts []ledger.Option
	if cfg.Analysis.ScopeToOwner {
		opts = append(opts, ledger.WithOwnerScope(auth.PrincipalFromContext))
	}

	return analysis.NewOrchestrator(
		ledger.New(keys, opts...),
		gh,
		gh,
		summarizer.New(completer, cfg.LLM.MaxReadmeChars),
		analysis.Options{
			WithMetadata: cfg.Analysis.WithMetadata,
			UsageTimeout: cfg.Analysis.UsageTimeout,
		},
	)
}

// newLimiter builds the configured rate limiter. The returned func releases its resources.
func newLimiter(cfg *config.Config) (middleware.Limiter, func()) {
	rl := cfg.Security.RateLimiting
	if !rl.Enabled {
		return nil, func() {}
	}

	limitCfg := middleware.RateLimitConfig{
		RequestsPerMinute: rl.RequestsPerMinute,
		BurstSize:         rl.Burst,
	}

	if rl.Backend == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		slog.Info("rate limiting via redis", "addr", cfg.Redis.Addr)
		return middleware.NewRedisLimiter(rdb, limitCfg), func() {
			if err := rdb.Close(); err != nil {
				slog.Warn("failed to close redis client", "error", err)
			}
		}
	}

	limiter := middleware.NewRateLimiter(limitCfg)
	return limiter, limiter.Stop
}

// startSideChannels serves metrics and pprof on their own ports so neither is reachable
// through the public API listener.
func startSideChannels(cfg *config.Config) {
	if cfg.Telemetry.Metrics.Enabled {
		metricsAddr := fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			slog.Info("starting Prometheus metrics server", "addr", metricsAddr)
			srv := &http.Server{
				Addr:         metricsAddr,
				Handler:      mux,
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 10 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	if cfg.Telemetry.Profiling.Enabled {
		pprofAddr := fmt.Sprintf(":%d", cfg.Telemetry.Profiling.Port)
		go func() {
			slog.Info("starting pprof server", "addr", pprofAddr)
			srv := &http.Server{ // #nosec G112 -- internal-only pprof port
				Addr:         pprofAddr,
				Handler:      http.DefaultServeMux,
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 30 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("pprof server error", "error", err)
			}
		}()
	}
}

func runMigrations(cfg *config.Config, direction string) error {
	database, err := db.Connect(cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	if direction != "version" {
		slog.Info("running migrations", "direction", direction)
		if err := db.RunMigrations(database, direction); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	schemaVersion, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	slog.Info("database schema version", "version", schemaVersion, "dirty", dirty)
	return nil
}
