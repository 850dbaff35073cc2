// Command cron fires a single commitment sweep and exits non-zero on failure.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/noah-isme/backend-groupbuy/internal/config"
	"github.com/noah-isme/backend-groupbuy/internal/obs"
	"github.com/noah-isme/backend-groupbuy/internal/trigger"
)

func main() {
	logger := obs.NewLogger(envOrDefault("OBS_LOG_FORMAT", "json"), envOrDefault("OBS_LOG_LEVEL", "info")).
		With().Str("component", "cron").Logger()

	cfg, err := config.LoadTrigger()
	if err != nil {
		logger.Fatal().Err(err).Msg("load trigger config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	budget := time.Duration(cfg.MaxAttempts)*cfg.RequestTimeout + 10*cfg.RetryBase
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	res, err := trigger.NewClient(cfg, logger).Trigger(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("sweep trigger failed")
		cancel()
		stop()
		os.Exit(1)
	}
	logger.Info().Int("expired_commitments", res.ExpiredCommitments).Msg("sweep complete")
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		if trimmed := strings.TrimSpace(val); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
