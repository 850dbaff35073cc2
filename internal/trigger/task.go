package trigger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

const (
	// TypeSweep is the asynq task type that fires one sweep.
	TypeSweep = "groupbuy:commitments:expire"
	// Queue is the asynq queue sweep tasks run on.
	Queue = "cron"
)

// NewSweepTask returns the periodic sweep task. Retries are left to the HTTP
// client so a missed tick is simply picked up by the next one.
func NewSweepTask(timeout time.Duration) *asynq.Task {
	opts := []asynq.Option{asynq.Queue(Queue), asynq.MaxRetry(0)}
	if timeout > 0 {
		opts = append(opts, asynq.Timeout(timeout), asynq.Unique(timeout))
	}
	return asynq.NewTask(TypeSweep, nil, opts...)
}

// Triggerer runs one sweep.
type Triggerer interface {
	Trigger(ctx context.Context) (Result, error)
}

// TaskHandler processes TypeSweep tasks.
type TaskHandler struct {
	Trigger Triggerer
	Logger  zerolog.Logger
}

// ProcessTask implements asynq.Handler.
func (h TaskHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	if task.Type() != TypeSweep {
		return fmt.Errorf("trigger: unexpected task type %q: %w", task.Type(), asynq.SkipRetry)
	}
	if h.Trigger == nil {
		return fmt.Errorf("trigger: not configured: %w", asynq.SkipRetry)
	}
	res, err := h.Trigger.Trigger(ctx)
	if err != nil {
		h.Logger.Error().Err(err).Msg("sweep trigger failed")
		if errors.Is(err, ErrUnauthorized) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}
	h.Logger.Debug().Int("expired_commitments", res.ExpiredCommitments).Msg("sweep task done")
	return nil
}

// Register mounts the sweep handler on mux.
func Register(mux *asynq.ServeMux, h TaskHandler) {
	mux.Handle(TypeSweep, h)
}
