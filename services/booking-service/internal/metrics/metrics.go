package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the scheduling core. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	// BookingRequests counts RequestBooking outcomes by result label.
	BookingRequests *prometheus.CounterVec

	// Transitions counts status changes by target status and result.
	Transitions *prometheus.CounterVec

	// Retries counts internal retries of timed out units of work.
	Retries prometheus.Counter

	// OperationDuration is the latency of engine operations.
	OperationDuration *prometheus.HistogramVec

	OutboxPublished prometheus.Counter
	OutboxFailures  prometheus.Counter
	OutboxRecordErr prometheus.Counter
}

// New registers the metrics on reg.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BookingRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "booking_requests_total",
				Help:      "Booking requests by outcome",
			},
			[]string{"result"},
		),
		Transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "booking_transitions_total",
				Help:      "Booking status transitions by target status and outcome",
			},
			[]string{"status", "result"},
		),
		Retries: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scheduling_retries_total",
				Help:      "Units of work retried after a storage timeout",
			},
		),
		OperationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scheduling_operation_duration_seconds",
				Help:      "Latency of scheduling engine operations",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"operation"},
		),
		OutboxPublished: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbox_published_total",
				Help:      "Outbox events delivered to Kafka",
			},
		),
		OutboxFailures: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbox_publish_failures_total",
				Help:      "Outbox publish batches that failed",
			},
		),
		OutboxRecordErr: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbox_record_errors_total",
				Help:      "Domain events that could not be written to the outbox",
			},
		),
	}
}

func (m *Metrics) IncBookingRequest(result string) {
	if m == nil {
		return
	}
	m.BookingRequests.WithLabelValues(result).Inc()
}

func (m *Metrics) IncTransition(status, result string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(status, result).Inc()
}

func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.Retries.Inc()
}

// ObserveSince records the time elapsed since start for operation.
func (m *Metrics) ObserveSince(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) AddOutboxPublished(n int) {
	if m == nil {
		return
	}
	m.OutboxPublished.Add(float64(n))
}

func (m *Metrics) IncOutboxFailures() {
	if m == nil {
		return
	}
	m.OutboxFailures.Inc()
}

func (m *Metrics) IncOutboxRecordErrors() {
	if m == nil {
		return
	}
	m.OutboxRecordErr.Inc()
}
