package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-groupbuy/internal/checkout"
	"github.com/noah-isme/backend-groupbuy/internal/commitment"
	"github.com/noah-isme/backend-groupbuy/internal/config"
	"github.com/noah-isme/backend-groupbuy/internal/health"
	"github.com/noah-isme/backend-groupbuy/internal/ratelimit"
	"github.com/noah-isme/backend-groupbuy/internal/vat"
)

type countingSweep struct{ calls int }

func (s *countingSweep) Sweep(context.Context) (commitment.Result, error) {
	s.calls++
	return commitment.Result{Expired: 2}, nil
}

type okChecker struct{}

func (okChecker) PingDB(context.Context, time.Duration) error    { return nil }
func (okChecker) PingRedis(context.Context, time.Duration) error { return nil }

func testRouter(t *testing.T, sweep commitment.Sweep, limiter ratelimit.Allower) http.Handler {
	t.Helper()
	cfg := &config.Config{
		AppEnv:              "test",
		CronSecret:          "cron-secret",
		CronRateLimitMax:    2,
		CronRateLimitWindow: time.Minute,
	}
	return newRouter(routerDeps{
		Logger:      zerolog.Nop(),
		Config:      cfg,
		Health:      health.Handler{Checker: okChecker{}},
		Expire:      commitment.Handler{Sweeper: sweep, Secret: cfg.CronSecret, Logger: zerolog.Nop()},
		CronLimiter: limiter,
		Checkout:    &checkout.Handler{Evaluator: &checkout.Evaluator{StandardMOQ: checkout.StandardMOQ, Logger: zerolog.Nop()}},
		VAT:         vat.Handler{DefaultRatePercent: 7.5},
	})
}

func TestCronPreflightRoute(t *testing.T) {
	sweep := &countingSweep{}
	rr := httptest.NewRecorder()
	testRouter(t, sweep, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/api/v1/cron/expire-commitments", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, rr.Header().Get("Access-Control-Allow-Headers"), "x-cron-secret")
	require.Empty(t, rr.Body.String())
	require.Zero(t, sweep.calls)
}

func TestCronExpireRoute(t *testing.T) {
	sweep := &countingSweep{}
	router := testRouter(t, sweep, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/cron/expire-commitments", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.JSONEq(t, `{"error":"Unauthorized: Invalid cron secret"}`, rr.Body.String())
	require.Zero(t, sweep.calls)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cron/expire-commitments", nil)
	req.Header.Set("X-Cron-Secret", "cron-secret")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"success":true,"expiredCommitments":2}`, rr.Body.String())
	require.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, 1, sweep.calls)
}

func TestCronRouteRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sweep := &countingSweep{}
	router := testRouter(t, sweep, ratelimit.Limiter{Client: client, Prefix: "test:cron"})

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/cron/expire-commitments", nil)
		req.Header.Set("X-Cron-Secret", "cron-secret")
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		codes = append(codes, rr.Code)
	}
	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	require.Equal(t, 2, sweep.calls)
}

func TestCheckoutPolicyRouteAnonymous(t *testing.T) {
	rr := httptest.NewRecorder()
	testRouter(t, &countingSweep{}, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/checkout/policy", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"data":{"required_moq":10,"is_influencer":false,"influencer_moq_enabled":false,"paid_orders_last_30d":0}}`, rr.Body.String())
	require.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
}

func TestCheckoutAdmissionRoute(t *testing.T) {
	router := testRouter(t, &countingSweep{}, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/checkout/admission", strings.NewReader(`{"quantity":4}`)))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Equal(t, "no-store", rr.Header().Get("Cache-Control"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/checkout/admission", strings.NewReader(`{"quantity":10}`)))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestVATAndHealthRoutes(t *testing.T) {
	router := testRouter(t, &countingSweep{}, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/vat/quote?amount=100", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"total":107.5`)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}
