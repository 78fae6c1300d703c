package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConfirmationMetrics exposes counters/histograms for the confirmation cycle.
type ConfirmationMetrics struct {
	callsTotal     *prometheus.CounterVec
	outcomesTotal  *prometheus.CounterVec
	repliesTotal   *prometheus.CounterVec
	retriesTotal   prometheus.Counter
	fallbackTotal  prometheus.Counter
	deferredTotal  prometheus.Counter
	webhookLatency *prometheus.HistogramVec
}

func NewConfirmationMetrics(reg prometheus.Registerer) *ConfirmationMetrics {
	m := &ConfirmationMetrics{
		callsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "receptionist",
			Subsystem: "confirmation",
			Name:      "calls_total",
			Help:      "Total outbound confirmation call dispatches",
		}, []string{"result"}),
		outcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "receptionist",
			Subsystem: "confirmation",
			Name:      "call_outcomes_total",
			Help:      "Total call-outcome webhooks by reported outcome",
		}, []string{"outcome"}),
		repliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "receptionist",
			Subsystem: "confirmation",
			Name:      "replies_total",
			Help:      "Total confirmation replies by resolution",
		}, []string{"resolution"}),
		retriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "receptionist",
			Subsystem: "confirmation",
			Name:      "retries_scheduled_total",
			Help:      "Total retry calls scheduled after unanswered attempts",
		}),
		fallbackTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "receptionist",
			Subsystem: "confirmation",
			Name:      "sms_fallbacks_total",
			Help:      "Total SMS fallbacks after the call budget was spent",
		}),
		deferredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "receptionist",
			Subsystem: "confirmation",
			Name:      "deferred_total",
			Help:      "Total dispatches deferred by the call window",
		}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "receptionist",
			Subsystem: "confirmation",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of voice webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.callsTotal, m.outcomesTotal, m.repliesTotal, m.retriesTotal, m.fallbackTotal, m.deferredTotal, m.webhookLatency)
	return m
}

func (m *ConfirmationMetrics) ObserveCall(result string) {
	if m == nil {
		return
	}
	m.callsTotal.WithLabelValues(result).Inc()
}

func (m *ConfirmationMetrics) ObserveOutcome(outcome string) {
	if m == nil {
		return
	}
	m.outcomesTotal.WithLabelValues(outcome).Inc()
}

func (m *ConfirmationMetrics) ObserveReply(resolution string) {
	if m == nil {
		return
	}
	m.repliesTotal.WithLabelValues(resolution).Inc()
}

func (m *ConfirmationMetrics) ObserveRetryScheduled() {
	if m == nil {
		return
	}
	m.retriesTotal.Inc()
}

func (m *ConfirmationMetrics) ObserveSMSFallback() {
	if m == nil {
		return
	}
	m.fallbackTotal.Inc()
}

func (m *ConfirmationMetrics) ObserveDeferred() {
	if m == nil {
		return
	}
	m.deferredTotal.Inc()
}

func (m *ConfirmationMetrics) ObserveWebhookLatency(endpoint string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(endpoint).Observe(seconds)
}
