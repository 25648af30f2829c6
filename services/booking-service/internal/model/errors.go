package model

import "errors"

var (
	ErrInvalidInterval      = errors.New("invalid interval")
	ErrOutsideAvailability  = errors.New("requested time is outside provider availability")
	ErrSlotTaken            = errors.New("time slot already booked")
	ErrDuplicateReservation = errors.New("overlapping reservation committed concurrently")
	ErrVersionConflict      = errors.New("booking was updated concurrently")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrTimeout              = errors.New("scheduling storage timed out")
	ErrNotPermitted         = errors.New("actor not permitted to perform this change")
	ErrBookingNotFound      = errors.New("booking not found")
	ErrWindowNotFound       = errors.New("availability window not found")
	ErrWindowConflict       = errors.New("availability window overlaps an active window")
	ErrInvalidWindow        = errors.New("invalid availability window")
	ErrIdempotencyConflict  = errors.New("idempotency key reused with different parameters")
)
