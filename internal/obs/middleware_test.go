package obs_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-groupbuy/internal/common"
	"github.com/noah-isme/backend-groupbuy/internal/obs"
)

func TestHTTPMetricsLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := obs.NewHTTPMetrics("groupbuy", []float64{10, 1}, registry)
	handler := obs.HTTPObs{Metrics: metrics}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cron/expire-commitments", nil)
	req = req.WithContext(obs.WithRoutePattern(req.Context(), "/api/v1/cron/expire-commitments"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.ReqTotal.WithLabelValues(http.MethodPost, "/api/v1/cron/expire-commitments", "401")))
	require.NotZero(t, testutil.CollectAndCount(metrics.ReqDur))
	require.Zero(t, testutil.ToFloat64(metrics.InFlight))

	again := obs.NewHTTPMetrics("groupbuy", nil, registry)
	require.Same(t, metrics.ReqTotal, again.ReqTotal)
}

func TestRequestLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	handler := obs.RequestLogger{Logger: logger}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/checkout/policy", nil)
	req = req.WithContext(common.WithUserID(req.Context(), "user-1"))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	require.Contains(t, out, `"level":"error"`)
	require.Contains(t, out, `"user_id":"user-1"`)
	require.Contains(t, out, `"status":500`)
}

func TestStatusRecorderKeepsFirstStatus(t *testing.T) {
	rr := httptest.NewRecorder()
	sr := obs.NewStatusRecorder(rr)
	_, _ = sr.Write([]byte("ok"))
	require.Equal(t, http.StatusOK, sr.Status())
	require.EqualValues(t, 2, sr.BytesWritten())
	require.Same(t, sr, obs.NewStatusRecorder(sr))
}

func TestParseBucketsCSV(t *testing.T) {
	require.Equal(t, []float64{5, 25}, obs.ParseBucketsCSV("5, x, -1, 25"))
	require.Nil(t, obs.ParseBucketsCSV(" "))
}

func TestDomainMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	obs.MustRegisterDomainMetrics("groupbuy", registry)

	obs.ObserveSweep("ok", 3, 1, 0, true, 12)
	obs.CountPolicyEvaluation("anonymous")

	require.Equal(t, 3.0, testutil.ToFloat64(obs.SweepCommitmentsTotal.WithLabelValues("expired")))
	require.Equal(t, 1.0, testutil.ToFloat64(obs.SweepTruncatedTotal))
	require.Equal(t, 1.0, testutil.ToFloat64(obs.PolicyEvaluationsTotal.WithLabelValues("anonymous")))
}
