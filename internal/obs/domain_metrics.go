package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// SweepRunsTotal counts sweep invocations by result (ok, error, unauthorized).
	SweepRunsTotal *prometheus.CounterVec
	// SweepCommitmentsTotal counts per-commitment sweep outcomes (expired, skipped, failed).
	SweepCommitmentsTotal *prometheus.CounterVec
	// SweepDuration records sweep latency in milliseconds.
	SweepDuration prometheus.Histogram
	// SweepTruncatedTotal counts sweeps that stopped at the page cap with backlog left.
	SweepTruncatedTotal prometheus.Counter
	// PolicyEvaluationsTotal counts checkout policy evaluations by outcome.
	PolicyEvaluationsTotal *prometheus.CounterVec
	// AdmissionDecisionsTotal counts checkout admission decisions.
	AdmissionDecisionsTotal *prometheus.CounterVec
	// TriggerAttemptsTotal counts sweep trigger attempts made by the scheduler side.
	TriggerAttemptsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers the domain collectors once per process.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		SweepRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commitment_sweep_runs_total",
			Help:      "Count of commitment sweep invocations by result.",
		}, []string{"result"})
		SweepCommitmentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commitment_sweep_commitments_total",
			Help:      "Count of commitments processed by the sweeper by outcome.",
		}, []string{"outcome"})
		SweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "commitment_sweep_duration_ms",
			Help:      "Latency of a single sweep invocation in milliseconds.",
			Buckets:   []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 25000},
		})
		SweepTruncatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commitment_sweep_truncated_total",
			Help:      "Number of sweeps that hit the page cap with backlog remaining.",
		})
		PolicyEvaluationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_policy_evaluations_total",
			Help:      "Count of checkout policy evaluations by outcome.",
		}, []string{"outcome"})
		AdmissionDecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_admission_decisions_total",
			Help:      "Count of checkout admission decisions.",
		}, []string{"result"})
		TriggerAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_trigger_attempts_total",
			Help:      "Count of sweep trigger HTTP attempts by result.",
		}, []string{"result"})

		mustRegisterCollector(reg, SweepRunsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SweepRunsTotal = v
			}
		})
		mustRegisterCollector(reg, SweepCommitmentsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SweepCommitmentsTotal = v
			}
		})
		mustRegisterCollector(reg, SweepDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				SweepDuration = v
			}
		})
		mustRegisterCollector(reg, SweepTruncatedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				SweepTruncatedTotal = v
			}
		})
		mustRegisterCollector(reg, PolicyEvaluationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PolicyEvaluationsTotal = v
			}
		})
		mustRegisterCollector(reg, AdmissionDecisionsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				AdmissionDecisionsTotal = v
			}
		})
		mustRegisterCollector(reg, TriggerAttemptsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				TriggerAttemptsTotal = v
			}
		})
	})
}

// Counter helpers are no-ops until MustRegisterDomainMetrics runs, so
// packages can be exercised in tests without a registry.

// ObserveSweep records the outcome of one sweep invocation.
func ObserveSweep(result string, expired, skipped, failed int, truncated bool, durationMillis float64) {
	if SweepRunsTotal == nil {
		return
	}
	SweepRunsTotal.WithLabelValues(result).Inc()
	if result == "unauthorized" {
		return
	}
	SweepCommitmentsTotal.WithLabelValues("expired").Add(float64(expired))
	SweepCommitmentsTotal.WithLabelValues("skipped").Add(float64(skipped))
	SweepCommitmentsTotal.WithLabelValues("failed").Add(float64(failed))
	SweepDuration.Observe(durationMillis)
	if truncated {
		SweepTruncatedTotal.Inc()
	}
}

// CountPolicyEvaluation increments the policy evaluation counter.
func CountPolicyEvaluation(outcome string) {
	if PolicyEvaluationsTotal != nil {
		PolicyEvaluationsTotal.WithLabelValues(outcome).Inc()
	}
}

// CountAdmission increments the admission decision counter.
func CountAdmission(result string) {
	if AdmissionDecisionsTotal != nil {
		AdmissionDecisionsTotal.WithLabelValues(result).Inc()
	}
}

// CountTriggerAttempt increments the trigger attempt counter.
func CountTriggerAttempt(result string) {
	if TriggerAttemptsTotal != nil {
		TriggerAttemptsTotal.WithLabelValues(result).Inc()
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
