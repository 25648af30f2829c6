package model

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusRejected   Status = "rejected"
	StatusCancelled  Status = "cancelled"
)

// ActiveStatuses hold the provider's time. Only these take part in the overlap check.
var ActiveStatuses = []Status{StatusPending, StatusConfirmed, StatusInProgress}

func (s Status) Active() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusInProgress:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	return s.Active() || s.Terminal()
}

func ParseStatus(raw string) (Status, bool) {
	s := Status(raw)
	return s, s.Valid()
}

type Booking struct {
	ID             string
	ProviderID     string
	ClientID       string
	ServiceID      string
	StartTime      time.Time
	EndTime        time.Time
	Status         Status
	Version        int64
	IdempotencyKey string
	Reason         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Overlaps uses half-open intervals: [s,e) and [b.Start,b.End) share an instant iff
// s < b.End && b.Start < e.
func (b Booking) Overlaps(start, end time.Time) bool {
	return b.StartTime.Before(end) && start.Before(b.EndTime)
}

type Role string

const (
	RoleClient   Role = "client"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
)

// Actor is the authenticated caller as supplied by the identity collaborator.
type Actor struct {
	UserID string
	Role   Role
}

// ListFilter narrows ledger listings. Zero values mean "no constraint".
type ListFilter struct {
	Statuses []Status
	From     time.Time
	To       time.Time
	Limit    int
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

func (f ListFilter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		return MaxListLimit
	}
	return f.Limit
}
