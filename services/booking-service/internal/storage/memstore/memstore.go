// Package memstore is an in-memory booking ledger, availability store and outbox sink
// with the same contract as the Postgres repositories. Transactions are serialised
// and roll back by restoring a snapshot.
package memstore

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/apptcore/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/apptcore/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptcore/services/booking-service/internal/outbox"
)

type txKey struct{}

type Store struct {
	txSem chan struct{}

	mu       sync.Mutex
	bookings map[string]model.Booking
	windows  map[string]model.AvailabilityWindow
	events   []outbox.Event
	faults   map[string][]error
	now      func() time.Time
}

func New() *Store {
	return &Store{
		txSem:    make(chan struct{}, 1),
		bookings: make(map[string]model.Booking),
		windows:  make(map[string]model.AvailabilityWindow),
		faults:   make(map[string][]error),
		now:      time.Now,
	}
}

// FailNext makes the next call of op ("create", "transition", "reschedule",
// "record", "tx") return err. "commit" keeps the transaction's writes and then
// returns err, as when the commit acknowledgement is lost.
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = append(s.faults[op], err)
}

func (s *Store) fault(op string) error {
	queue := s.faults[op]
	if len(queue) == 0 {
		return nil
	}
	s.faults[op] = queue[1:]
	return queue[0]
}

type snapshot struct {
	bookings map[string]model.Booking
	windows  map[string]model.AvailabilityWindow
	events   []outbox.Event
}

// WithTx runs fn exclusively. Nested calls join the outer transaction. Waiting for
// the transaction slot honours ctx.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}
	select {
	case s.txSem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.txSem }()

	s.mu.Lock()
	if err := s.fault("tx"); err != nil {
		s.mu.Unlock()
		return err
	}
	snap := s.snapshot()
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	if err := ctx.Err(); err != nil {
		s.restore(snap)
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fault("commit")
}

func (s *Store) snapshot() snapshot {
	return snapshot{
		bookings: maps.Clone(s.bookings),
		windows:  maps.Clone(s.windows),
		events:   slices.Clone(s.events),
	}
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings = snap.bookings
	s.windows = snap.windows
	s.events = snap.events
}

// write runs fn under the data lock inside a transaction, opening one if needed.
func (s *Store) write(ctx context.Context, fn func() error) error {
	return s.WithTx(ctx, func(context.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		return fn()
	})
}

func (s *Store) Create(ctx context.Context, b model.Booking) (string, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	err := s.write(ctx, func() error {
		if err := s.fault("create"); err != nil {
			return err
		}
		if !b.StartTime.Before(b.EndTime) {
			return model.ErrInvalidInterval
		}
		if _, ok := s.bookings[b.ID]; ok {
			return model.ErrIdempotencyConflict
		}
		for _, other := range s.bookings {
			if b.IdempotencyKey != "" && other.ClientID == b.ClientID && other.IdempotencyKey == b.IdempotencyKey {
				return model.ErrIdempotencyConflict
			}
			if other.ProviderID == b.ProviderID && other.Status.Active() && other.Overlaps(b.StartTime, b.EndTime) {
				return model.ErrDuplicateReservation
			}
		}
		now := s.now().UTC()
		b.StartTime = b.StartTime.UTC()
		b.EndTime = b.EndTime.UTC()
		b.Status = model.StatusPending
		b.Version = 1
		b.CreatedAt = now
		b.UpdatedAt = now
		s.bookings[b.ID] = b
		return nil
	})
	if err != nil {
		return "", err
	}
	return b.ID, nil
}

func (s *Store) Get(_ context.Context, id string) (model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return model.Booking{}, model.ErrBookingNotFound
	}
	return b, nil
}

func (s *Store) ListByProvider(_ context.Context, providerID string, f model.ListFilter) ([]model.Booking, error) {
	return s.list(func(b model.Booking) bool { return b.ProviderID == providerID }, f), nil
}

func (s *Store) ListByClient(_ context.Context, clientID string, f model.ListFilter) ([]model.Booking, error) {
	return s.list(func(b model.Booking) bool { return b.ClientID == clientID }, f), nil
}

func (s *Store) list(owned func(model.Booking) bool, f model.ListFilter) []model.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Booking
	for _, b := range s.bookings {
		if !owned(b) {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, b.Status) {
			continue
		}
		if !f.From.IsZero() && !b.EndTime.After(f.From) {
			continue
		}
		if !f.To.IsZero() && !b.StartTime.Before(f.To) {
			continue
		}
		out = append(out, b)
	}
	sortBookings(out)
	if limit := f.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *Store) ListActiveOverlapping(_ context.Context, providerID string, start, end time.Time) ([]model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Booking
	for _, b := range s.bookings {
		if b.ProviderID == providerID && b.Status.Active() && b.Overlaps(start, end) {
			out = append(out, b)
		}
	}
	sortBookings(out)
	return out, nil
}

func (s *Store) FindByIdempotencyKey(_ context.Context, clientID, key string) (*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bookings {
		if b.ClientID == clientID && b.IdempotencyKey == key {
			return &b, nil
		}
	}
	return nil, nil
}

func (s *Store) ApplyTransition(ctx context.Context, id string, expectedVersion int64, status model.Status, reason string) (model.Booking, error) {
	var out model.Booking
	err := s.write(ctx, func() error {
		if err := s.fault("transition"); err != nil {
			return err
		}
		b, err := s.casLocked(id, expectedVersion)
		if err != nil {
			return err
		}
		b.Status = status
		if reason != "" {
			b.Reason = reason
		}
		out = s.bumpLocked(b)
		return nil
	})
	return out, err
}

func (s *Store) Reschedule(ctx context.Context, id string, expectedVersion int64, start, end time.Time) (model.Booking, error) {
	var out model.Booking
	err := s.write(ctx, func() error {
		if err := s.fault("reschedule"); err != nil {
			return err
		}
		b, err := s.casLocked(id, expectedVersion)
		if err != nil {
			return err
		}
		if !start.Before(end) {
			return model.ErrInvalidInterval
		}
		if b.Status.Active() {
			for _, other := range s.bookings {
				if other.ID != id && other.ProviderID == b.ProviderID && other.Status.Active() && other.Overlaps(start, end) {
					return model.ErrDuplicateReservation
				}
			}
		}
		b.StartTime = start.UTC()
		b.EndTime = end.UTC()
		out = s.bumpLocked(b)
		return nil
	})
	return out, err
}

func (s *Store) casLocked(id string, expectedVersion int64) (model.Booking, error) {
	b, ok := s.bookings[id]
	if !ok {
		return model.Booking{}, model.ErrBookingNotFound
	}
	if b.Version != expectedVersion {
		return model.Booking{}, model.ErrVersionConflict
	}
	return b, nil
}

func (s *Store) bumpLocked(b model.Booking) model.Booking {
	b.Version++
	b.UpdatedAt = s.now().UTC()
	s.bookings[b.ID] = b
	return b
}

func (s *Store) SetWindow(ctx context.Context, providerID string, w model.AvailabilityWindow) (model.AvailabilityWindow, error) {
	w = w.Prepare(providerID)
	if err := w.Validate(); err != nil {
		return model.AvailabilityWindow{}, err
	}

	err := s.write(ctx, func() error {
		now := s.now().UTC()
		if w.ID != "" {
			existing, ok := s.windows[w.ID]
			if !ok || existing.ProviderID != providerID {
				return model.ErrWindowNotFound
			}
			w.CreatedAt = existing.CreatedAt
		} else {
			w.ID = uuid.NewString()
			w.CreatedAt = now
		}
		w.UpdatedAt = now
		if err := w.CheckPlacement(slices.Collect(maps.Values(s.windows))); err != nil {
			return err
		}
		s.windows[w.ID] = w
		return nil
	})
	if err != nil {
		return model.AvailabilityWindow{}, err
	}
	return w, nil
}

func (s *Store) GetWindow(_ context.Context, id string) (model.AvailabilityWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[id]
	if !ok {
		return model.AvailabilityWindow{}, model.ErrWindowNotFound
	}
	return w, nil
}

func (s *Store) DeactivateWindow(ctx context.Context, id string) (model.AvailabilityWindow, error) {
	var out model.AvailabilityWindow
	err := s.write(ctx, func() error {
		w, ok := s.windows[id]
		if !ok {
			return model.ErrWindowNotFound
		}
		w.Active = false
		w.UpdatedAt = s.now().UTC()
		s.windows[id] = w
		out = w
		return nil
	})
	return out, err
}

func (s *Store) ListWindows(_ context.Context, providerID string) ([]model.AvailabilityWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.AvailabilityWindow
	for _, w := range s.windows {
		if w.ProviderID == providerID {
			out = append(out, w)
		}
	}
	slices.SortFunc(out, func(a, b model.AvailabilityWindow) int {
		if c := strings.Compare(string(a.Kind), string(b.Kind)); c != 0 {
			return c
		}
		if c := int(a.Weekday) - int(b.Weekday); c != 0 {
			return c
		}
		if c := a.StartMinute - b.StartMinute; c != 0 {
			return c
		}
		if c := a.StartTime.Compare(b.StartTime); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *Store) EffectiveAvailability(ctx context.Context, providerID string, from, to time.Time) ([]availability.Interval, error) {
	windows, err := s.ListWindows(ctx, providerID)
	if err != nil {
		return nil, err
	}
	return availability.FromWindows(windows, from, to), nil
}

// Record appends evt to the in-memory outbox. A failure leaves the transaction usable.
func (s *Store) Record(_ context.Context, evt outbox.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("record"); err != nil {
		return err
	}
	s.events = append(s.events, evt)
	return nil
}

// Events returns a copy of every committed outbox event.
func (s *Store) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

func sortBookings(bs []model.Booking) {
	slices.SortFunc(bs, func(a, b model.Booking) int {
		if c := a.StartTime.Compare(b.StartTime); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
