// Package scheduling is the entry point for every booking and availability change.
// Each operation runs as one transaction bounded by an operation timeout; a timed out
// unit of work is retried once.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/md-rashed-zaman/apptcore/libs/clock"
	"github.com/md-rashed-zaman/apptcore/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/apptcore/services/booking-service/internal/lifecycle"
	"github.com/md-rashed-zaman/apptcore/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/apptcore/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptcore/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/apptcore/services/booking-service/internal/resolver"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Ledger interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	Create(ctx context.Context, b model.Booking) (string, error)
	Get(ctx context.Context, id string) (model.Booking, error)
	ListByProvider(ctx context.Context, providerID string, f model.ListFilter) ([]model.Booking, error)
	ListByClient(ctx context.Context, clientID string, f model.ListFilter) ([]model.Booking, error)
	ListActiveOverlapping(ctx context.Context, providerID string, start, end time.Time) ([]model.Booking, error)
	FindByIdempotencyKey(ctx context.Context, clientID, key string) (*model.Booking, error)
	ApplyTransition(ctx context.Context, id string, expectedVersion int64, status model.Status, reason string) (model.Booking, error)
	Reschedule(ctx context.Context, id string, expectedVersion int64, start, end time.Time) (model.Booking, error)
}

type AvailabilityStore interface {
	SetWindow(ctx context.Context, providerID string, w model.AvailabilityWindow) (model.AvailabilityWindow, error)
	GetWindow(ctx context.Context, id string) (model.AvailabilityWindow, error)
	DeactivateWindow(ctx context.Context, id string) (model.AvailabilityWindow, error)
	ListWindows(ctx context.Context, providerID string) ([]model.AvailabilityWindow, error)
	EffectiveAvailability(ctx context.Context, providerID string, from, to time.Time) ([]availability.Interval, error)
}

// EventRecorder stores a domain event alongside the current unit of work. A failed
// Record must leave that unit of work usable.
type EventRecorder interface {
	Record(ctx context.Context, evt outbox.Event) error
}

type Config struct {
	// OpTimeout bounds one attempt of a unit of work.
	OpTimeout time.Duration
	// MaxDuration caps the length of a booking. Zero disables the cap.
	MaxDuration time.Duration
	// MaxRange caps availability and slot queries.
	MaxRange   time.Duration
	RetryDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.OpTimeout <= 0 {
		c.OpTimeout = 5 * time.Second
	}
	if c.MaxRange <= 0 {
		c.MaxRange = 62 * 24 * time.Hour
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 50 * time.Millisecond
	}
	return c
}

type Engine struct {
	ledger    Ledger
	store     AvailabilityStore
	events    EventRecorder
	resolver  *resolver.Resolver
	lifecycle *lifecycle.Manager
	clock     clock.Clock
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	cfg       Config
}

func NewEngine(ledger Ledger, store AvailabilityStore, events EventRecorder, clk clock.Clock, logger *slog.Logger, m *metrics.Metrics, cfg Config) *Engine {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Engine{
		ledger:    ledger,
		store:     store,
		events:    events,
		resolver:  resolver.New(store, ledger),
		lifecycle: lifecycle.NewManager(ledger),
		clock:     clk,
		logger:    logger,
		metrics:   m,
		tracer:    otel.Tracer("booking-service/scheduling"),
		cfg:       cfg.withDefaults(),
	}
}

type BookingRequest struct {
	ProviderID     string
	ClientID       string
	ServiceID      string
	Start          time.Time
	End            time.Time
	IdempotencyKey string
}

// RequestBooking reserves [Start, End) for the client. Overlap-freedom rests on the
// ledger's exclusion check inside the transaction; the resolver pre-check only gives
// the caller a precise reason.
func (e *Engine) RequestBooking(ctx context.Context, req BookingRequest) (model.Booking, error) {
	started := time.Now()
	ctx, span := e.tracer.Start(ctx, "scheduling.RequestBooking", trace.WithAttributes(
		attribute.String("booking.provider_id", req.ProviderID),
		attribute.String("booking.client_id", req.ClientID),
	))
	defer span.End()
	defer e.metrics.ObserveSince("request_booking", started)

	b, err := e.requestBooking(ctx, req)
	e.metrics.IncBookingRequest(resultLabel(err, "created"))
	if err != nil {
		recordSpanError(span, err)
		return model.Booking{}, err
	}
	span.SetAttributes(attribute.String("booking.id", b.ID))
	e.logger.InfoContext(ctx, "booking requested", "booking_id", b.ID, "provider_id", b.ProviderID, "client_id", b.ClientID,
		"start", b.StartTime, "end", b.EndTime)
	return b, nil
}

func (e *Engine) requestBooking(ctx context.Context, req BookingRequest) (model.Booking, error) {
	if req.ProviderID == "" || req.ClientID == "" {
		return model.Booking{}, fmt.Errorf("%w: provider and client are required", model.ErrInvalidInterval)
	}
	if err := e.validateSlot(req.Start, req.End); err != nil {
		return model.Booking{}, err
	}

	// Generated once so a retry after an ambiguous commit finds its own row.
	id := uuid.NewString()
	var out model.Booking
	err := e.unitOfWork(ctx, func(ctx context.Context) error {
		existing, err := e.ledger.Get(ctx, id)
		if err == nil {
			out = existing
			return nil
		}
		if !errors.Is(err, model.ErrBookingNotFound) {
			return err
		}

		if req.IdempotencyKey != "" {
			prior, err := e.ledger.FindByIdempotencyKey(ctx, req.ClientID, req.IdempotencyKey)
			if err != nil {
				return err
			}
			if prior != nil {
				if !sameRequest(*prior, req) {
					return model.ErrIdempotencyConflict
				}
				out = *prior
				return nil
			}
		}

		res, err := e.resolver.CheckAvailability(ctx, req.ProviderID, req.Start, req.End)
		if err != nil {
			return err
		}
		if !res.Free {
			return res.Err()
		}

		_, err = e.ledger.Create(ctx, model.Booking{
			ID:             id,
			ProviderID:     req.ProviderID,
			ClientID:       req.ClientID,
			ServiceID:      req.ServiceID,
			StartTime:      req.Start.UTC(),
			EndTime:        req.End.UTC(),
			IdempotencyKey: req.IdempotencyKey,
		})
		if err != nil {
			return slotTaken(err)
		}
		if out, err = e.ledger.Get(ctx, id); err != nil {
			return err
		}
		e.emit(ctx, outbox.TopicBookingCreated, out, req.ClientID)
		return nil
	})
	return out, err
}

// CheckAvailability is advisory: the answer may be stale by the time the caller acts.
func (e *Engine) CheckAvailability(ctx context.Context, providerID string, start, end time.Time) (resolver.Result, error) {
	ctx, span := e.tracer.Start(ctx, "scheduling.CheckAvailability", trace.WithAttributes(attribute.String("booking.provider_id", providerID)))
	defer span.End()

	var res resolver.Result
	err := e.unitOfWork(ctx, func(ctx context.Context) error {
		var err error
		res, err = e.resolver.CheckAvailability(ctx, providerID, start, end)
		return err
	})
	if err != nil {
		recordSpanError(span, err)
	}
	return res, err
}

// TransitionBooking applies a status change and records its event in the same
// transaction.
func (e *Engine) TransitionBooking(ctx context.Context, actor model.Actor, id string, expectedVersion int64, to model.Status, reason string) (model.Booking, error) {
	started := time.Now()
	ctx, span := e.tracer.Start(ctx, "scheduling.TransitionBooking", trace.WithAttributes(
		attribute.String("booking.id", id),
		attribute.String("booking.status", string(to)),
	))
	defer span.End()
	defer e.metrics.ObserveSince("transition_booking", started)

	// The version is pinned on the first attempt. If a timed-out commit did land,
	// the retry finds the booking one version on and already in to, and reports
	// that as the result instead of an invalid transition. Its event was recorded
	// by the committed attempt.
	var (
		out      model.Booking
		pinned   = expectedVersion
		attempts int
	)
	err := e.unitOfWork(ctx, func(ctx context.Context) error {
		attempts++
		if pinned == 0 {
			current, err := e.ledger.Get(ctx, id)
			if err != nil {
				return err
			}
			pinned = current.Version
		}
		b, err := e.lifecycle.Transition(ctx, actor, id, pinned, to, reason)
		if errors.Is(err, model.ErrVersionConflict) && attempts > 1 {
			current, getErr := e.ledger.Get(ctx, id)
			if getErr == nil && current.Version == pinned+1 && current.Status == to {
				out = current
				return nil
			}
		}
		if err != nil {
			return err
		}
		out = b
		if topic, ok := outbox.TopicForStatus(b.Status); ok {
			e.emit(ctx, topic, b, actor.UserID)
		}
		return nil
	})
	e.metrics.IncTransition(string(to), resultLabel(err, "ok"))
	if err != nil {
		recordSpanError(span, err)
		return model.Booking{}, err
	}
	e.logger.InfoContext(ctx, "booking status changed", "booking_id", out.ID, "status", out.Status, "version", out.Version, "actor_id", actor.UserID)
	return out, nil
}

// RescheduleBooking moves a pending or confirmed booking to [start, end). The new slot
// must be available, ignoring the booking's own current slot.
func (e *Engine) RescheduleBooking(ctx context.Context, actor model.Actor, id string, expectedVersion int64, start, end time.Time) (model.Booking, error) {
	started := time.Now()
	ctx, span := e.tracer.Start(ctx, "scheduling.RescheduleBooking", trace.WithAttributes(attribute.String("booking.id", id)))
	defer span.End()
	defer e.metrics.ObserveSince("reschedule_booking", started)

	if err := e.validateSlot(start, end); err != nil {
		recordSpanError(span, err)
		return model.Booking{}, err
	}

	var out model.Booking
	err := e.unitOfWork(ctx, func(ctx context.Context) error {
		b, err := e.ledger.Get(ctx, id)
		if err != nil {
			return err
		}
		if expectedVersion != 0 && expectedVersion != b.Version {
			return model.ErrVersionConflict
		}
		if b.Status != model.StatusPending && b.Status != model.StatusConfirmed {
			return model.ErrInvalidTransition
		}
		if !lifecycle.CanReschedule(actor, b) {
			return model.ErrNotPermitted
		}

		res, err := e.resolver.CheckExcluding(ctx, b.ProviderID, start, end, b.ID)
		if err != nil {
			return err
		}
		if !res.Free {
			return res.Err()
		}

		moved, err := e.ledger.Reschedule(ctx, b.ID, b.Version, start.UTC(), end.UTC())
		if err != nil {
			return slotTaken(err)
		}
		out = moved
		e.emit(ctx, outbox.TopicBookingRescheduled, moved, actor.UserID)
		return nil
	})
	e.metrics.IncTransition("rescheduled", resultLabel(err, "ok"))
	if err != nil {
		recordSpanError(span, err)
		return model.Booking{}, err
	}
	e.logger.InfoContext(ctx, "booking rescheduled", "booking_id", out.ID, "start", out.StartTime, "end", out.EndTime, "version", out.Version)
	return out, nil
}

// GetBooking returns the booking if actor is one of its parties or an admin.
func (e *Engine) GetBooking(ctx context.Context, actor model.Actor, id string) (model.Booking, error) {
	var out model.Booking
	err := e.unitOfWork(ctx, func(ctx context.Context) error {
		b, err := e.ledger.Get(ctx, id)
		if err != nil {
			return err
		}
		if !canView(actor, b) {
			return model.ErrNotPermitted
		}
		out = b
		return nil
	})
	return out, err
}

func (e *Engine) ListBookingsForProvider(ctx context.Context, actor model.Actor, providerID string, f model.ListFilter) ([]model.Booking, error) {
	if actor.UserID != providerID && actor.Role != model.RoleAdmin {
		return nil, model.ErrNotPermitted
	}
	var out []model.Booking
	err := e.unitOfWork(ctx, func(ctx context.Context) error {
		var err error
		out, err = e.ledger.ListByProvider(ctx, providerID, f)
		return err
	})
	return out, err
}

func (e *Engine) ListBookingsForClient(ctx context.Context, actor model.Actor, f model.ListFilter) ([]model.Booking, error) {
	if actor.UserID == "" {
		return nil, model.ErrNotPermitted
	}
	var out []model.Booking
	err := e.unitOfWork(ctx, func(ctx context.Context) error {
		var err error
		out, err = e.ledger.ListByClient(ctx, actor.UserID, f)
		return err
	})
	return out, err
}

// SetAvailabilityWindow inserts or replaces a window. Existing bookings are never
// re-validated against the new windows.
func (e *Engine) SetAvailabilityWindow(ctx context.Context, actor model.Actor, providerID string, w model.AvailabilityWindow) (model.AvailabilityWindow, error) {
	if !canManage(actor, providerID) {
		return model.AvailabilityWindow{}, model.ErrNotPermitted
	}
	var out model.AvailabilityWindow
	err := e.unitOfWork(ctx, func(ctx context.Context) error {
		var err error
		out, err = e.store.SetWindow(ctx, providerID, w)
		return err
	})
	if err == nil {
		e.logger.InfoContext(ctx, "availability window saved", "window_id", out.ID, "provider_id", providerID, "kind", out.Kind)
	}
	return out, err
}

func (e *Engine) DeactivateAvailabilityWindow(ctx context.Context, actor model.Actor, id string) (model.AvailabilityWindow, error) {
	var out model.AvailabilityWindow
	err := e.unitOfWork(ctx, func(ctx context.Context) error {
		w, err := e.store.GetWindow(ctx, id)
		if err != nil {
			return err
		}
		if !canManage(actor, w.ProviderID) {
			return model.ErrNotPermitted
		}
		out, err = e.store.DeactivateWindow(ctx, id)
		return err
	})
	return out, err
}

func (e *Engine) ListAvailabilityWindows(ctx context.Context, providerID string) ([]model.AvailabilityWindow, error) {
	var out []model.AvailabilityWindow
	err := e.unitOfWork(ctx, func(ctx context.Context) error {
		var err error
		out, err = e.store.ListWindows(ctx, providerID)
		return err
	})
	return out, err
}

func (e *Engine) EffectiveAvailability(ctx context.Context, providerID string, from, to time.Time) ([]availability.Interval, error) {
	if err := e.validateRange(from, to); err != nil {
		return nil, err
	}
	var out []availability.Interval
	err := e.unitOfWork(ctx, func(ctx context.Context) error {
		var err error
		out, err = e.store.EffectiveAvailability(ctx, providerID, from, to)
		return err
	})
	return out, err
}

// FreeSlots lists bookable slots of length duration, every step, inside
// [from, to). Slots starting before now are skipped.
func (e *Engine) FreeSlots(ctx context.Context, providerID string, from, to time.Time, duration, step time.Duration) ([]availability.Interval, error) {
	if err := e.validateRange(from, to); err != nil {
		return nil, err
	}
	if duration <= 0 {
		return nil, fmt.Errorf("%w: slot duration must be positive", model.ErrInvalidInterval)
	}
	if step <= 0 {
		step = duration
	}

	var out []availability.Interval
	err := e.unitOfWork(ctx, func(ctx context.Context) error {
		windows, err := e.store.EffectiveAvailability(ctx, providerID, from, to)
		if err != nil {
			return err
		}
		booked, err := e.ledger.ListActiveOverlapping(ctx, providerID, from, to)
		if err != nil {
			return err
		}
		busy := make([]availability.Interval, 0, len(booked))
		for _, b := range booked {
			busy = append(busy, availability.Interval{Start: b.StartTime, End: b.EndTime})
		}
		out = availability.FreeSlots(windows, duration, step, busy, e.clock.Now())
		return nil
	})
	return out, err
}

// unitOfWork runs fn in one transaction under the operation timeout. A timeout is
// retried once; every other error is returned as is.
func (e *Engine) unitOfWork(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := 0
	op := func() (struct{}, error) {
		attempts++
		opCtx, cancel := context.WithTimeout(ctx, e.cfg.OpTimeout)
		defer cancel()

		err := e.ledger.WithTx(opCtx, fn)
		if err == nil {
			return struct{}{}, nil
		}
		if isTimeout(err) && ctx.Err() == nil {
			if attempts == 1 {
				e.metrics.IncRetries()
				e.logger.WarnContext(ctx, "unit of work timed out, retrying", "err", err)
			}
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(e.cfg.RetryDelay)),
		backoff.WithMaxTries(2),
	)
	if err != nil && isTimeout(err) && !errors.Is(err, model.ErrTimeout) {
		return fmt.Errorf("%w: %w", model.ErrTimeout, err)
	}
	return err
}

func (e *Engine) emit(ctx context.Context, topic string, b model.Booking, actorID string) {
	if e.events == nil {
		return
	}
	evt, err := outbox.NewBookingEvent(topic, b, actorID, e.clock.Now())
	if err == nil {
		err = e.events.Record(ctx, evt)
	}
	if err != nil {
		e.metrics.IncOutboxRecordErrors()
		e.logger.ErrorContext(ctx, "outbox record failed", "err", err, "booking_id", b.ID, "event_type", topic)
	}
}

func (e *Engine) validateSlot(start, end time.Time) error {
	if start.IsZero() || end.IsZero() || !start.Before(end) {
		return fmt.Errorf("%w: start must be before end", model.ErrInvalidInterval)
	}
	if start.Before(e.clock.Now()) {
		return fmt.Errorf("%w: start is in the past", model.ErrInvalidInterval)
	}
	if e.cfg.MaxDuration > 0 && end.Sub(start) > e.cfg.MaxDuration {
		return fmt.Errorf("%w: longer than %s", model.ErrInvalidInterval, e.cfg.MaxDuration)
	}
	return nil
}

func (e *Engine) validateRange(from, to time.Time) error {
	if from.IsZero() || to.IsZero() || !from.Before(to) {
		return fmt.Errorf("%w: from must be before to", model.ErrInvalidInterval)
	}
	if to.Sub(from) > e.cfg.MaxRange {
		return fmt.Errorf("%w: range longer than %s", model.ErrInvalidInterval, e.cfg.MaxRange)
	}
	return nil
}

func slotTaken(err error) error {
	if errors.Is(err, model.ErrDuplicateReservation) {
		return fmt.Errorf("%w: %w", model.ErrSlotTaken, err)
	}
	return err
}

func sameRequest(b model.Booking, req BookingRequest) bool {
	return b.ProviderID == req.ProviderID &&
		b.ServiceID == req.ServiceID &&
		b.StartTime.Equal(req.Start) &&
		b.EndTime.Equal(req.End)
}

func canView(actor model.Actor, b model.Booking) bool {
	if actor.Role == model.RoleAdmin {
		return true
	}
	return actor.UserID != "" && (actor.UserID == b.ClientID || actor.UserID == b.ProviderID)
}

func canManage(actor model.Actor, providerID string) bool {
	if actor.Role == model.RoleAdmin {
		return true
	}
	return actor.UserID != "" && actor.UserID == providerID
}

func isTimeout(err error) bool {
	return errors.Is(err, model.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

func resultLabel(err error, success string) string {
	switch {
	case err == nil:
		return success
	case errors.Is(err, model.ErrInvalidInterval):
		return "invalid_interval"
	case errors.Is(err, model.ErrOutsideAvailability):
		return "outside_availability"
	case errors.Is(err, model.ErrSlotTaken):
		return "slot_taken"
	case errors.Is(err, model.ErrVersionConflict):
		return "version_conflict"
	case errors.Is(err, model.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, model.ErrNotPermitted):
		return "not_permitted"
	case errors.Is(err, model.ErrIdempotencyConflict):
		return "idempotency_conflict"
	case errors.Is(err, model.ErrTimeout):
		return "timeout"
	}
	return "error"
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
