package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/af-corp/model-proxy/internal/audit"
	"github.com/af-corp/model-proxy/internal/config"
	"github.com/af-corp/model-proxy/internal/gateway"
	"github.com/af-corp/model-proxy/internal/provider"
	"github.com/af-corp/model-proxy/internal/ratelimit"
	"github.com/af-corp/model-proxy/internal/telemetry"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "configs/proxy.yaml", "path to the configuration file")
	flag.Parse()

	// Bootstrap logger until the configured one is known.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	loader := config.NewLoader(*configPath, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg := loader.Config()

	logger = newLogger(cfg.Telemetry)
	slog.SetDefault(logger)

	snap, err := gateway.NewSnapshot(cfg, logger)
	if err != nil {
		if errors.Is(err, provider.ErrNoProviders) {
			logger.Error("refusing to start", "error", err)
		} else {
			logger.Error("failed to build routing state", "error", err)
		}
		os.Exit(1)
	}

	var metrics *telemetry.Metrics
	if cfg.Telemetry.MetricsEnabled {
		metrics = telemetry.NewMetrics(prometheus.DefaultRegisterer)
	}

	// Request log (optional)
	var recorder audit.Recorder = audit.NopRecorder{}
	if cfg.Audit.Enabled {
		store, pool, err := openAudit(context.Background(), cfg.Audit, logger)
		if err != nil {
			logger.Error("failed to open request log", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		defer store.Close()
		recorder = store
	}

	handler := gateway.NewHandler(snap, metrics, recorder, logger)

	loader.OnReload(func(next *config.Config) {
		s, err := gateway.NewSnapshot(next, logger)
		if err != nil {
			logger.Error("config reload rejected, keeping previous routing state", "error", err)
			return
		}
		handler.Swap(s)
		logger.Info("routing state reloaded",
			"models", s.Registry.SupportedModels(),
			"max_retries", next.Routing.MaxRetries,
			"retry_delay_ms", next.Routing.RetryDelayMs,
			"request_timeout_ms", next.Routing.RequestTimeoutMs,
		)
	})
	if stop, err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	} else {
		defer stop()
	}

	opts := gateway.RouterOptions{Logger: logger}
	if metrics != nil {
		opts.Metrics = promhttp.Handler()
	}

	// Rate limiting (optional)
	if cfg.RateLimit.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		defer rdb.Close()
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable, rate limiter will allow all requests until it is", "error", err)
		} else {
			logger.Info("redis connected", "addr", cfg.Redis.Address)
		}
		limiter := ratelimit.NewLimiter(rdb, logger)
		rpm := func() int {
			c := loader.Config()
			if !c.RateLimit.Enabled {
				return 0
			}
			return c.RateLimit.RequestsPerMinute
		}
		opts.RateLimit = ratelimit.Middleware(limiter, rpm, metrics, logger)
	}

	r := gateway.NewRouter(handler, opts)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("proxy starting", "addr", addr, "version", version)
		printBanner(os.Stdout, cfg, snap)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	handler.Snapshot().Dispatcher.CloseIdleConnections()
	logger.Info("proxy stopped")
}

func newLogger(cfg config.TelemetryConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// openAudit connects to PostgreSQL, optionally applies migrations, and starts
// the request log writer.
func openAudit(ctx context.Context, cfg config.AuditConfig, logger *slog.Logger) (*audit.PostgresStore, *pgxpool.Pool, error) {
	dsn := cfg.Database.DSN()

	if cfg.AutoMigrate {
		v, err := audit.MigrateUp(cfg.MigrationsPath, dsn)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("request log schema up to date", "version", v)
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("parse database config: %w", err)
	}
	if cfg.Database.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Database.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Warn("database not reachable, request log entries will be dropped until it is", "error", err)
	} else {
		logger.Info("database connected")
	}

	return audit.NewPostgresStore(pool, 1024, cfg.WriteTimeout, logger), pool, nil
}
