package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records checkout outcomes and external call latencies.
type CheckoutMetrics struct {
	outcomes     *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_outcomes_total",
		Help: "Terminal checkout outcomes by result.",
	}, []string{"outcome"})
	callDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_call_duration_seconds",
		Help:    "Duration of external calls made during checkout.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	reg.MustRegister(outcomes, callDuration)
	return &CheckoutMetrics{
		outcomes:     outcomes,
		callDuration: callDuration,
	}
}

// IncOutcome increments the counter for a terminal outcome.
func (c *CheckoutMetrics) IncOutcome(outcome string) {
	if c == nil || c.outcomes == nil {
		return
	}
	c.outcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveCall records how long an external call took.
func (c *CheckoutMetrics) ObserveCall(operation string, duration time.Duration) {
	if c == nil || c.callDuration == nil {
		return
	}
	c.callDuration.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	label := strings.TrimSpace(strings.ToLower(value))
	if label == "" {
		return "unknown"
	}
	return strings.ReplaceAll(label, " ", "_")
}
