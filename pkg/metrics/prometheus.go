package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	eventsPublished *prometheus.CounterVec
	eventsDelivered *prometheus.CounterVec
	decisionsTotal  *prometheus.CounterVec
	skipReasons     *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	lastPrice       *prometheus.GaugeVec
	latency         *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		eventsPublished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minibot_events_published_total",
				Help: "Total number of events published per channel",
			},
			[]string{"channel"},
		),
		eventsDelivered: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minibot_events_delivered_total",
				Help: "Total number of subscriber deliveries per channel",
			},
			[]string{"channel"},
		),
		decisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minibot_decisions_total",
				Help: "Total number of decisions by action",
			},
			[]string{"action"},
		),
		skipReasons: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minibot_skip_reasons_total",
				Help: "Total number of skip decisions by reason",
			},
			[]string{"reason"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "minibot_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "minibot_last_price",
				Help: "Last resolved price for a symbol",
			},
			[]string{"symbol"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "minibot_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordEventPublished records an accepted publish on a channel.
func (r *Recorder) RecordEventPublished(channel string) {
	r.eventsPublished.WithLabelValues(channel).Inc()
}

// RecordEventDelivered records one subscriber delivery.
func (r *Recorder) RecordEventDelivered(channel string) {
	r.eventsDelivered.WithLabelValues(channel).Inc()
}

// RecordDecision records a decision by action.
func (r *Recorder) RecordDecision(action string) {
	r.decisionsTotal.WithLabelValues(action).Inc()
}

// RecordSkipReason records one skip reason occurrence.
func (r *Recorder) RecordSkipReason(reason string) {
	r.skipReasons.WithLabelValues(reason).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last resolved price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Noop is a Metrics implementation that discards everything. Used in
// tests and as the default when no recorder is wired.
type Noop struct{}

func (Noop) RecordEventPublished(string)    {}
func (Noop) RecordEventDelivered(string)    {}
func (Noop) RecordDecision(string)          {}
func (Noop) RecordSkipReason(string)        {}
func (Noop) RecordError(string)             {}
func (Noop) RecordLatency(string, float64)  {}
func (Noop) RecordLastPrice(string, float64) {}
