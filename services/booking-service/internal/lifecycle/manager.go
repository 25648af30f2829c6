package lifecycle

import (
	"context"

	"github.com/md-rashed-zaman/apptcore/services/booking-service/internal/model"
)

type Ledger interface {
	Get(ctx context.Context, id string) (model.Booking, error)
	ApplyTransition(ctx context.Context, id string, expectedVersion int64, status model.Status, reason string) (model.Booking, error)
}

// Manager applies status changes through the ledger's compare-and-swap.
type Manager struct {
	ledger Ledger
}

func NewManager(ledger Ledger) *Manager {
	return &Manager{ledger: ledger}
}

// Transition validates and applies to. expectedVersion 0 means the version just read;
// a stale non-zero version fails with ErrVersionConflict before any other check. The
// edge is checked before the actor's permission.
func (m *Manager) Transition(ctx context.Context, actor model.Actor, id string, expectedVersion int64, to model.Status, reason string) (model.Booking, error) {
	if !to.Valid() {
		return model.Booking{}, model.ErrInvalidTransition
	}
	b, err := m.ledger.Get(ctx, id)
	if err != nil {
		return model.Booking{}, err
	}
	if expectedVersion != 0 && expectedVersion != b.Version {
		return model.Booking{}, model.ErrVersionConflict
	}
	if !CanTransition(b.Status, to) {
		return model.Booking{}, model.ErrInvalidTransition
	}
	if !Permitted(actor, b, to) {
		return model.Booking{}, model.ErrNotPermitted
	}

	version := expectedVersion
	if version == 0 {
		version = b.Version
	}
	return m.ledger.ApplyTransition(ctx, id, version, to, reason)
}
