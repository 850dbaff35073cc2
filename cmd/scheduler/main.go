// Command scheduler enqueues the commitment sweep on a fixed interval through
// asynq and runs the worker that fires it.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-groupbuy/internal/config"
	"github.com/noah-isme/backend-groupbuy/internal/obs"
	"github.com/noah-isme/backend-groupbuy/internal/resilience"
	"github.com/noah-isme/backend-groupbuy/internal/trigger"
)

func main() {
	logger := obs.NewLogger(envOrDefault("OBS_LOG_FORMAT", "json"), envOrDefault("OBS_LOG_LEVEL", "info")).
		With().Str("component", "scheduler").Logger()

	cfg, err := config.LoadTrigger()
	if err != nil {
		logger.Fatal().Err(err).Msg("load trigger config")
	}
	if cfg.RedisURL == "" {
		logger.Fatal().Msg("REDIS_URL is required for the scheduler")
	}
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}

	obs.MustRegisterDomainMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "groupbuy"), nil)
	resilience.MustRegisterMetrics(nil)

	taskTimeout := time.Duration(cfg.MaxAttempts)*cfg.RequestTimeout + 10*cfg.RetryBase
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 1,
		Queues:      map[string]int{trigger.Queue: 1},
		Logger:      asynqLogger{logger: logger},
		LogLevel:    asynq.WarnLevel,
	})
	mux := asynq.NewServeMux()
	trigger.Register(mux, trigger.TaskHandler{Trigger: trigger.NewClient(cfg, logger), Logger: logger})

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: time.UTC,
		Logger:   asynqLogger{logger: logger},
		LogLevel: asynq.WarnLevel,
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("enqueue sweep task")
				return
			}
			logger.Debug().Str("task_id", info.ID).Msg("sweep task enqueued")
		},
	})
	spec := "@every " + cfg.Interval.String()
	entryID, err := scheduler.Register(spec, trigger.NewSweepTask(taskTimeout))
	if err != nil {
		logger.Fatal().Err(err).Str("spec", spec).Msg("register sweep schedule")
	}

	if err := server.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start task server")
	}
	if err := scheduler.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start scheduler")
	}
	logger.Info().Str("entry_id", entryID).Str("spec", spec).Str("target", cfg.TargetURL).Msg("scheduler running")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info().Msg("scheduler shutting down")
	scheduler.Shutdown()
	server.Shutdown()
}

// asynqLogger adapts zerolog to asynq.Logger.
type asynqLogger struct {
	logger zerolog.Logger
}

func (l asynqLogger) Debug(args ...any) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.logger.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...any) { l.logger.Fatal().Msg(fmt.Sprint(args...)) }

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		if trimmed := strings.TrimSpace(val); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
