package resilience_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-groupbuy/internal/resilience"
)

func TestBreakerPublishesStateAndTransitions(t *testing.T) {
	const target = "sweep-endpoint-metrics"
	ctx := context.Background()
	gauge := func() float64 { return testutil.ToFloat64(resilience.BreakerState.WithLabelValues(target)) }
	moved := func(from, to string) float64 {
		return testutil.ToFloat64(resilience.BreakerTransitions.WithLabelValues(target, from, to))
	}

	b := resilience.NewBreaker(resilience.BreakerConfig{MinRequests: 1, FailureRatio: 1, OpenFor: 20 * time.Millisecond}).WithTarget(target)
	require.Zero(t, gauge())

	b.Report(ctx, false)
	require.Equal(t, 1.0, gauge())
	require.False(t, b.Allow(ctx))

	require.Eventually(t, func() bool { return b.Allow(ctx) }, 200*time.Millisecond, 5*time.Millisecond)
	require.Equal(t, 2.0, gauge())

	b.Report(ctx, true)
	require.Zero(t, gauge())

	require.Equal(t, 1.0, moved("closed", "open"))
	require.Equal(t, 1.0, moved("open", "half_open"))
	require.Equal(t, 1.0, moved("half_open", "closed"))
	require.Equal(t, 1.0, testutil.ToFloat64(resilience.BreakerOpenedTotal.WithLabelValues(target)))
}

func TestHalfOpenFailureReopens(t *testing.T) {
	ctx := context.Background()
	b := resilience.NewBreaker(resilience.BreakerConfig{MinRequests: 1, OpenFor: time.Millisecond})
	b.Report(ctx, false)
	require.Equal(t, resilience.Open, b.State())

	require.Eventually(t, func() bool { return b.Allow(ctx) }, 100*time.Millisecond, time.Millisecond)
	b.Report(ctx, false)
	require.Equal(t, resilience.Open, b.State())
	require.Equal(t, "open", b.State().String())

	var nilBreaker *resilience.Breaker
	require.True(t, nilBreaker.Allow(ctx))
	nilBreaker.Report(ctx, false)
}
