package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-groupbuy/internal/auth"
	"github.com/noah-isme/backend-groupbuy/internal/checkout"
	"github.com/noah-isme/backend-groupbuy/internal/commitment"
	"github.com/noah-isme/backend-groupbuy/internal/config"
	"github.com/noah-isme/backend-groupbuy/internal/db"
	"github.com/noah-isme/backend-groupbuy/internal/events"
	"github.com/noah-isme/backend-groupbuy/internal/health"
	"github.com/noah-isme/backend-groupbuy/internal/obs"
	"github.com/noah-isme/backend-groupbuy/internal/ratelimit"
	"github.com/noah-isme/backend-groupbuy/internal/resilience"
	"github.com/noah-isme/backend-groupbuy/internal/vat"
)

func main() {
	cfg := config.MustLoad()

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Str("component", "api").Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "groupbuy")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)
	resilience.MustRegisterMetrics(nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "groupbuy-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	if cfg.AutoMigrate {
		if err := db.Migrate(cfg.DatabaseURL, logger); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	pool := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()
	redisClient := mustInitRedis(ctx, cfg, metricsEnabled, logger)
	cancel()
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	bus := &events.Bus{
		Store:     events.PGStore{Pool: pool},
		Notifiers: []events.Notifier{events.LogNotifier{Logger: logger}},
	}
	sweeper := &commitment.Sweeper{
		Store:       commitment.NewPGStore(pool),
		Events:      bus,
		Logger:      logger.With().Str("module", "sweeper").Logger(),
		PageSize:    cfg.Sweep.PageSize,
		MaxPages:    cfg.Sweep.MaxPages,
		Concurrency: cfg.Sweep.Concurrency,
		Timeout:     cfg.Sweep.Timeout,
	}
	evaluator := &checkout.Evaluator{
		Source:        checkout.PGSource{Pool: pool},
		StandardMOQ:   cfg.Checkout.StandardMOQ,
		LookupTimeout: cfg.Checkout.PolicyLookupTimeout,
		Logger:        logger.With().Str("module", "checkout").Logger(),
	}

	authMiddleware := auth.Middleware{AccessCookie: envOrDefault("AUTH_ACCESS_COOKIE", ""), Logger: logger}
	if strings.TrimSpace(cfg.JWTSecret) != "" {
		verifier, err := auth.NewVerifier(auth.Config{
			Secret:    cfg.JWTSecret,
			Issuer:    cfg.JWTIssuer,
			Audience:  cfg.JWTAudience,
			ClockSkew: envDurationMillis("AUTH_CLOCK_SKEW_MS", 30000),
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("initialise token verifier")
		}
		authMiddleware.Parser = verifier
	} else {
		logger.Warn().Msg("JWT_SECRET not set; checkout callers are treated as anonymous")
	}

	checkoutLimit, err := ratelimit.NewRateMiddleware(redisClient, cfg.CheckoutRateLimit, "groupbuy:rl:checkout")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise checkout rate limiter")
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", "")), nil)
	}

	handler := newRouter(routerDeps{
		Logger:         logger,
		Config:         cfg,
		Tracing:        tracingEnabled,
		HTTPMetrics:    httpMetrics,
		ServeMetrics:   metricsEnabled,
		Health:         health.Handler{Checker: health.Deps{DB: pool, Redis: redisClient}, DBTimeout: envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500), RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300)},
		Expire:         commitment.Handler{Sweeper: sweeper, Secret: cfg.CronSecret, Logger: logger},
		CronLimiter:    ratelimit.Limiter{Client: redisClient, Prefix: "groupbuy:rl:cron"},
		Checkout:       &checkout.Handler{Evaluator: evaluator},
		CheckoutLimit:  checkoutLimit,
		Auth:           authMiddleware,
		VAT:            vat.Handler{DefaultRatePercent: cfg.VATRatePercent},
		SecurityHeader: envBool("SECURE_HEADERS_ENABLED", true),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-runCtx.Done():
		health.SetReady(false)
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Sweep.Timeout+5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
	}
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "groupbuy-api"
	if maxConns := envInt("DB_MAX_CONNS", 0); maxConns > 0 {
		poolConfig.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, metricsEnabled bool, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}
