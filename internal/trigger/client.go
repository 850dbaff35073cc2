// Package trigger fires the commitment sweep endpoint on behalf of a scheduler.
package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/backend-groupbuy/internal/commitment"
	"github.com/noah-isme/backend-groupbuy/internal/config"
	"github.com/noah-isme/backend-groupbuy/internal/obs"
	"github.com/noah-isme/backend-groupbuy/internal/resilience"
)

var (
	// ErrUnauthorized means the endpoint rejected the shared secret. It is never retried.
	ErrUnauthorized = errors.New("trigger: cron secret rejected")
	// ErrSweepFailed wraps a non-success answer from the sweep endpoint.
	ErrSweepFailed = errors.New("trigger: sweep failed")
)

// Result mirrors the sweep endpoint's success body.
type Result struct {
	Success            bool `json:"success"`
	ExpiredCommitments int  `json:"expiredCommitments"`
}

// Client POSTs to the sweep endpoint with the cron secret.
type Client struct {
	URL    string
	Secret string
	HTTP   resilience.HTTPClient
	Logger zerolog.Logger
}

// NewClient builds a Client with an instrumented transport, retries on 5xx and
// a breaker guarding the target.
func NewClient(cfg *config.TriggerConfig, logger zerolog.Logger) *Client {
	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		MinRequests:  cfg.MaxAttempts,
		FailureRatio: 1,
		OpenFor:      cfg.Interval / 2,
	}).WithTarget("sweep-endpoint").WithLogger(logger)
	return &Client{
		URL:    cfg.TargetURL,
		Secret: cfg.CronSecret,
		Logger: logger,
		HTTP: resilience.HTTPClient{
			Client:      &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
			Breaker:     breaker,
			BaseBackoff: cfg.RetryBase,
			MaxAttempts: cfg.MaxAttempts,
			Jitter:      0.2,
			Timeout:     cfg.RequestTimeout,
			Target:      "sweep-endpoint",
			OnAttempt:   countAttempt,
		},
	}
}

// Trigger runs one sweep and reports how many commitments it expired.
func (c *Client) Trigger(ctx context.Context) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, http.NoBody)
	if err != nil {
		return Result{}, fmt.Errorf("trigger: build request: %w", err)
	}
	req.Header.Set(commitment.CronSecretHeader, c.Secret)
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("trigger: call sweep endpoint: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("trigger: read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return Result{}, ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return Result{}, fmt.Errorf("%w: status %d: %s", ErrSweepFailed, resp.StatusCode, errorMessage(body))
	}

	var out Result
	if err := json.Unmarshal(body, &out); err != nil {
		return Result{}, fmt.Errorf("trigger: decode response: %w", err)
	}
	if !out.Success {
		return out, fmt.Errorf("%w: endpoint reported success=false", ErrSweepFailed)
	}
	c.Logger.Info().
		Int("expired_commitments", out.ExpiredCommitments).
		Dur("elapsed", time.Since(started)).
		Msg("sweep triggered")
	return out, nil
}

func errorMessage(body []byte) string {
	var payload struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Error) == 0 {
		return string(body)
	}
	var msg string
	if err := json.Unmarshal(payload.Error, &msg); err == nil {
		return msg
	}
	var structured struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload.Error, &structured); err == nil && structured.Message != "" {
		return structured.Message
	}
	return string(payload.Error)
}

func countAttempt(_ int, resp *http.Response, err error) {
	switch {
	case err != nil:
		obs.CountTriggerAttempt("transport_error")
	case resp.StatusCode == http.StatusOK:
		obs.CountTriggerAttempt("ok")
	case resp.StatusCode == http.StatusUnauthorized:
		obs.CountTriggerAttempt("unauthorized")
	case resp.StatusCode >= http.StatusInternalServerError:
		obs.CountTriggerAttempt("server_error")
	default:
		obs.CountTriggerAttempt("client_error")
	}
}
