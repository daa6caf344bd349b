package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/lib/pq" // Postgres driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/ocx/trustgate/internal/config"
	"github.com/ocx/trustgate/internal/gateway/clock"
	"github.com/ocx/trustgate/internal/gateway/decision"
	"github.com/ocx/trustgate/internal/gateway/metrics"
	"github.com/ocx/trustgate/internal/gateway/models"
	"github.com/ocx/trustgate/internal/gateway/pipeline"
	"github.com/ocx/trustgate/internal/gateway/ratelimit"
	"github.com/ocx/trustgate/internal/gateway/replay"
	"github.com/ocx/trustgate/internal/gateway/score"
	"github.com/ocx/trustgate/internal/gateway/telemetry"
	"github.com/ocx/trustgate/internal/gateway/verifier"
	"github.com/ocx/trustgate/internal/httpapi"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("starting trustgate", "version", cfg.AppVersion, "environment", cfg.Environment)

	realClock := clock.NewReal()

	v, err := verifier.New(verifier.Config{
		PublicKeyPath:     cfg.JWT.PublicKeyPath,
		Algorithm:         cfg.JWT.Algorithm,
		ClockDriftSeconds: cfg.JWT.ClockDriftSeconds,
	}, realClock)
	if err != nil {
		logger.Error("failed to load verifier key material, aborting startup", "error", err)
		os.Exit(1)
	}

	limiter := ratelimit.New(ratelimit.Config{
		RatePerSecond: ratelimit.RateFromPerMinute(cfg.RateLimit.RequestsPerMinute),
		Burst:         float64(cfg.RateLimit.BurstSize),
	}, realClock, logger)

	suppressor := replay.New(replay.Config{
		MaxSize:           cfg.Replay.MaxSize,
		PurgeInterval:     time.Duration(cfg.Replay.PurgeIntervalSeconds) * time.Second,
		ClockDriftSeconds: cfg.JWT.ClockDriftSeconds,
	}, realClock, logger)
	defer suppressor.Stop()

	scorer, closeScorer, err := buildScoreProvider(cfg, realClock, logger)
	if err != nil {
		logger.Error("failed to construct score provider, aborting startup", "error", err)
		os.Exit(1)
	}
	defer closeScorer()

	// /metrics/prometheus serves the default registry via promhttp.Handler,
	// so the gateway's series are registered there.
	registry, ok := prometheus.DefaultRegisterer.(*prometheus.Registry)
	if !ok {
		registry = prometheus.NewRegistry()
	}
	m := metrics.New(registry, realClock)

	var sink telemetry.Sink
	if cfg.Telemetry.EmitEnabled {
		sink = telemetry.NewWriterSink(os.Stdout)
	}
	emitter := telemetry.New(telemetry.Config{Enabled: cfg.Telemetry.EmitEnabled}, sink, logger)

	orchestrator := pipeline.New(pipeline.Collaborators{
		Limiter:    limiter,
		Verifier:   v,
		Suppressor: suppressor,
		Scorer:     scorer,
		Decider:    decisionEngine{},
		Metrics:    m,
		Telemetry:  emitter,
		Clock:      realClock,
		Logger:     logger,
	})

	server := httpapi.New(
		httpapi.Config{AppName: cfg.AppName, AppVersion: cfg.AppVersion},
		orchestrator,
		m,
		suppressor,
		realClock,
		logger,
	)

	addr := cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}

// decisionEngine adapts the stateless decision.Decide function to the
// pipeline.Decider interface.
type decisionEngine struct{}

func (decisionEngine) Decide(scoreValue int) models.Verdict { return decision.Decide(scoreValue) }

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func buildScoreProvider(cfg *config.Config, c clock.Clock, logger *slog.Logger) (score.Provider, func(), error) {
	noop := func() {}

	switch cfg.Score.ProviderType {
	case "remote":
		return score.NewRemoteProvider(cfg.Score.APIURL, cfg.Score.APIKey, nil, logger), noop, nil

	case "cached":
		store, closeStore, err := openStore(cfg, logger)
		if err != nil {
			return nil, noop, err
		}
		cache, closeCache, err := openCache(cfg, c)
		if err != nil {
			closeStore()
			return nil, noop, err
		}
		return score.NewCachedProvider(store, cache, logger), func() { closeStore(); closeCache() }, nil

	default: // "direct"
		store, closeStore, err := openStore(cfg, logger)
		if err != nil {
			return nil, noop, err
		}
		return score.NewDirectProvider(store, logger), closeStore, nil
	}
}

func openStore(cfg *config.Config, logger *slog.Logger) (*score.PostgresStore, func(), error) {
	db, err := sql.Open("postgres", cfg.Score.DatabaseDSN)
	if err != nil {
		return nil, func() {}, err
	}
	store := score.NewPostgresStore(db)
	if err := store.EnsureSchema(context.Background()); err != nil {
		logger.Warn("failed to ensure score schema, continuing", "error", err)
	}
	return store, func() { _ = db.Close() }, nil
}

func openCache(cfg *config.Config, c clock.Clock) (score.Cache, func(), error) {
	if cfg.Score.CacheBackend == "redis" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Score.RedisAddr})
		ttl := time.Duration(cfg.Score.CacheTTLSec) * time.Second
		return score.NewRedisCache(rdb, ttl), func() { _ = rdb.Close() }, nil
	}
	ttl := time.Duration(cfg.Score.CacheTTLSec) * time.Second
	return score.NewMemoryCache(ttl, c), func() {}, nil
}
