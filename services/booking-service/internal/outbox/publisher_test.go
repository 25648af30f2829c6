package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/apptcore/libs/kafkax"
	"github.com/md-rashed-zaman/apptcore/services/booking-service/internal/model"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	records   []Record
	published []int64
	failed    []int64
	reason    string
}

func (s *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *fakeStore) FetchUnpublished(_ context.Context, limit int) ([]Record, error) {
	var out []Record
	for _, r := range s.records {
		if len(out) == limit {
			break
		}
		done := false
		for _, id := range s.published {
			done = done || id == r.ID
		}
		if !done {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkPublished(_ context.Context, ids []int64) error {
	s.published = append(s.published, ids...)
	return nil
}

func (s *fakeStore) MarkFailed(_ context.Context, ids []int64, reason string) error {
	s.failed = append(s.failed, ids...)
	s.reason = reason
	return nil
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublishBatch_DeliversAndMarks(t *testing.T) {
	evt, err := NewBookingEvent(TopicBookingCreated, model.Booking{
		ID:         "b-1",
		ProviderID: "p-1",
		ClientID:   "c-1",
		StartTime:  time.Date(2030, 1, 7, 10, 0, 0, 0, time.UTC),
		EndTime:    time.Date(2030, 1, 7, 11, 0, 0, 0, time.UTC),
		Status:     model.StatusPending,
		Version:    1,
	}, "c-1", time.Now())
	require.NoError(t, err)

	store := &fakeStore{records: []Record{
		{ID: 1, EventID: "e-1", AggregateType: evt.AggregateType, AggregateID: evt.AggregateID, EventType: evt.EventType, Payload: evt.Payload},
		{ID: 2, EventID: "e-2", AggregateType: AggregateBooking, AggregateID: "b-2", EventType: TopicBookingCancelled, Payload: []byte(`{}`)},
	}}
	writer := &fakeWriter{}
	p := NewPublisher(store, testLogger(), nil, PublisherConfig{BatchSize: 10})

	n, err := p.publishBatch(context.Background(), writer)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int64{1, 2}, store.published)

	require.Len(t, writer.msgs, 2)
	assert.Equal(t, TopicBookingCreated, writer.msgs[0].Topic)
	assert.Equal(t, "b-1", string(writer.msgs[0].Key))
	assert.Equal(t, "e-1", kafkax.HeaderValue(writer.msgs[0].Headers, "event_id"))
	assert.JSONEq(t, string(evt.Payload), string(writer.msgs[0].Value))

	n, err = p.publishBatch(context.Background(), writer)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPublishBatch_WriteFailureMarksAttempt(t *testing.T) {
	store := &fakeStore{records: []Record{{ID: 7, EventType: TopicBookingConfirmed, AggregateID: "b-7"}}}
	writer := &fakeWriter{err: errors.New("broker down")}
	p := NewPublisher(store, testLogger(), nil, PublisherConfig{})

	n, err := p.publishBatch(context.Background(), writer)
	require.EqualError(t, err, "broker down")
	assert.Zero(t, n)
	assert.Empty(t, store.published)
	assert.Equal(t, []int64{7}, store.failed)
	assert.Equal(t, "broker down", store.reason)
}

func TestTopicForStatus(t *testing.T) {
	topic, ok := TopicForStatus(model.StatusInProgress)
	assert.True(t, ok)
	assert.Equal(t, TopicBookingStarted, topic)

	_, ok = TopicForStatus(model.StatusPending)
	assert.False(t, ok)
}
