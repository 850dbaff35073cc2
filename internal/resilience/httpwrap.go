package resilience

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrClientNotConfigured is returned by HTTPClient.Do without an http.Client.
var ErrClientNotConfigured = errors.New("resilience: http client not configured")

// RetryPolicy decides whether an attempt outcome is worth repeating.
type RetryPolicy func(resp *http.Response, err error) bool

// RetryOnServerError retries transport failures and 5xx responses. Everything
// else, including 401 and 429, is returned to the caller as-is.
func RetryOnServerError(resp *http.Response, err error) bool {
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}
	return resp != nil && resp.StatusCode >= http.StatusInternalServerError
}

// HTTPClient wraps an http.Client with retry, timeout and circuit-breaker logic.
type HTTPClient struct {
	Client      *http.Client
	Breaker     *Breaker
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
	Timeout     time.Duration
	Retryable   RetryPolicy
	// Target labels retry metrics. Empty means "default".
	Target string
	// OnAttempt observes every attempt with its 1-based index and outcome.
	OnAttempt func(attempt int, resp *http.Response, err error)
	Fallback  func(context.Context, *http.Request, error) (*http.Response, error)
}

// Do executes req, retrying while Retryable approves the outcome. The request
// body is buffered so every attempt sends the same bytes. When attempts run out
// on a response, that last response is returned with a nil error so callers can
// read its body. Transport errors and an open breaker surface as errors unless a
// Fallback is configured.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, ErrClientNotConfigured
	}
	breaker := cl.Breaker
	maxAttempts := max(cl.MaxAttempts, 1)
	baseBackoff := cl.BaseBackoff
	if baseBackoff <= 0 {
		baseBackoff = 100 * time.Millisecond
	}
	retryable := cl.Retryable
	if retryable == nil {
		retryable = RetryOnServerError
	}

	body, err := replayableBody(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if !breaker.Allow(ctx) {
			lastErr = ErrOpenCircuit
			break
		}
		resp, err := cl.doOnce(ctx, cloneRequest(ctx, req, body))
		if cl.OnAttempt != nil {
			cl.OnAttempt(attempt, resp, err)
		}
		failed := err != nil || resp.StatusCode >= http.StatusInternalServerError
		cl.countAttempt(failed)
		breaker.Report(ctx, !failed)
		if !retryable(resp, err) || attempt == maxAttempts {
			if err == nil {
				return resp, nil
			}
			lastErr = err
			break
		}
		if resp != nil {
			drain(resp)
			lastErr = fmt.Errorf("resilience: upstream responded %s", resp.Status)
		} else {
			lastErr = err
		}
		timer := time.NewTimer(Backoff(baseBackoff, attempt, cl.Jitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if cl.Fallback != nil {
		return cl.Fallback(ctx, req, lastErr)
	}
	return nil, lastErr
}

func (cl HTTPClient) countAttempt(failed bool) {
	target := cl.Target
	if target == "" {
		target = "default"
	}
	outcome := "success"
	if failed {
		outcome = "failure"
	}
	RetryAttempts.WithLabelValues(target, outcome).Inc()
}

func (cl HTTPClient) doOnce(ctx context.Context, req *http.Request) (*http.Response, error) {
	timeout := cl.Timeout
	if timeout <= 0 {
		timeout = cl.Client.Timeout
	}
	if timeout <= 0 {
		return cl.Client.Do(req)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	resp, err := cl.Client.Do(req.WithContext(callCtx))
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// cancelOnClose keeps the per-attempt deadline alive until the body is consumed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

func replayableBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	src := req.Body
	if req.GetBody != nil {
		fresh, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		src = fresh
	}
	defer func() { _ = src.Close() }()
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func cloneRequest(ctx context.Context, req *http.Request, body []byte) *http.Request {
	clone := req.Clone(ctx)
	if body != nil {
		clone.Body = io.NopCloser(bytes.NewReader(body))
		clone.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
		clone.ContentLength = int64(len(body))
	}
	return clone
}
