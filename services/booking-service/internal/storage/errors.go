package storage

import (
	"fmt"

	"github.com/md-rashed-zaman/apptcore/libs/db"
	"github.com/md-rashed-zaman/apptcore/services/booking-service/internal/model"
)

// classify wraps a driver error with the domain sentinel it corresponds to. The
// original error stays in the chain for logging.
func classify(op string, err error, onExclusion error) error {
	switch {
	case err == nil:
		return nil
	case db.IsTimeout(err):
		return fmt.Errorf("%s: %w: %w", op, model.ErrTimeout, err)
	case db.IsExclusionViolation(err) && onExclusion != nil:
		return fmt.Errorf("%s: %w", op, onExclusion)
	case db.IsUniqueViolation(err):
		return fmt.Errorf("%s: %w", op, model.ErrIdempotencyConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}
