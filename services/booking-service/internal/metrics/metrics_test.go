package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "apptcore")

	m.IncBookingRequest("created")
	m.IncBookingRequest("created")
	m.IncBookingRequest("slot_taken")
	m.IncTransition("confirmed", "ok")
	m.IncRetries()
	m.AddOutboxPublished(3)
	m.IncOutboxFailures()
	m.IncOutboxRecordErrors()
	m.ObserveSince("request_booking", time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.BookingRequests.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BookingRequests.WithLabelValues("slot_taken")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("confirmed", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Retries))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.OutboxPublished))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxRecordErr))

	count, err := testutil.GatherAndCount(reg, "apptcore_scheduling_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.IncBookingRequest("created")
	m.IncTransition("confirmed", "ok")
	m.IncRetries()
	m.ObserveSince("x", time.Now())
	m.AddOutboxPublished(1)
	m.IncOutboxFailures()
	m.IncOutboxRecordErrors()
}
