package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/apptcore/libs/db"
	"github.com/md-rashed-zaman/apptcore/services/booking-service/internal/model"
)

const bookingColumns = `id::text, provider_id, client_id, service_id, start_time, end_time, status, version,
	COALESCE(idempotency_key, ''), reason, created_at, updated_at`

// BookingRepository is the Postgres booking ledger. Overlap-freedom among active
// bookings is enforced by the bookings_no_overlap exclusion constraint.
type BookingRepository struct {
	pool   *db.Pool
	txOpts db.TxOptions
}

func NewBookingRepository(pool *db.Pool, txOpts db.TxOptions) *BookingRepository {
	return &BookingRepository{pool: pool, txOpts: txOpts}
}

func (r *BookingRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.pool.WithTx(ctx, r.txOpts, fn)
}

// Create inserts b as a pending booking at version 1. An empty ID is generated.
func (r *BookingRepository) Create(ctx context.Context, b model.Booking) (string, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	var idemKey any
	if b.IdempotencyKey != "" {
		idemKey = b.IdempotencyKey
	}

	var id string
	err := r.pool.Q(ctx).QueryRow(ctx, `
		INSERT INTO bookings
			(id, provider_id, client_id, service_id, start_time, end_time, status, version, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, 'pending', 1, $7)
		RETURNING id::text
	`, b.ID, b.ProviderID, b.ClientID, b.ServiceID, b.StartTime.UTC(), b.EndTime.UTC(), idemKey).Scan(&id)
	if err != nil {
		if db.IsCheckViolation(err) {
			return "", fmt.Errorf("insert booking: %w", model.ErrInvalidInterval)
		}
		return "", classify("insert booking", err, model.ErrDuplicateReservation)
	}
	return id, nil
}

func (r *BookingRepository) Get(ctx context.Context, id string) (model.Booking, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Booking{}, model.ErrBookingNotFound
	}
	b, err := scanBooking(r.pool.Q(ctx).QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if err != nil {
		if db.IsNotFound(err) || db.IsInvalidText(err) {
			return model.Booking{}, model.ErrBookingNotFound
		}
		return model.Booking{}, classify("get booking", err, nil)
	}
	return b, nil
}

func (r *BookingRepository) ListByProvider(ctx context.Context, providerID string, f model.ListFilter) ([]model.Booking, error) {
	return r.list(ctx, "provider_id", providerID, f)
}

func (r *BookingRepository) ListByClient(ctx context.Context, clientID string, f model.ListFilter) ([]model.Booking, error) {
	return r.list(ctx, "client_id", clientID, f)
}

func (r *BookingRepository) list(ctx context.Context, ownerColumn, ownerID string, f model.ListFilter) ([]model.Booking, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + bookingColumns + ` FROM bookings WHERE ` + ownerColumn + ` = $1`)
	args := []any{ownerID}

	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			statuses = append(statuses, string(s))
		}
		args = append(args, statuses)
		fmt.Fprintf(&sb, " AND status = ANY($%d)", len(args))
	}
	if !f.From.IsZero() {
		args = append(args, f.From.UTC())
		fmt.Fprintf(&sb, " AND end_time > $%d", len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To.UTC())
		fmt.Fprintf(&sb, " AND start_time < $%d", len(args))
	}
	args = append(args, f.EffectiveLimit())
	fmt.Fprintf(&sb, " ORDER BY start_time ASC, id ASC LIMIT $%d", len(args))

	return r.query(ctx, "list bookings", sb.String(), args...)
}

// ListActiveOverlapping returns active bookings b with b.start < end && start < b.end.
func (r *BookingRepository) ListActiveOverlapping(ctx context.Context, providerID string, start, end time.Time) ([]model.Booking, error) {
	return r.query(ctx, "list overlapping bookings", `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE provider_id = $1
			AND status IN ('pending', 'confirmed', 'in_progress')
			AND start_time < $3
			AND end_time > $2
		ORDER BY start_time ASC
	`, providerID, start.UTC(), end.UTC())
}

// FindByIdempotencyKey returns nil when the client never used key.
func (r *BookingRepository) FindByIdempotencyKey(ctx context.Context, clientID, key string) (*model.Booking, error) {
	b, err := scanBooking(r.pool.Q(ctx).QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE client_id = $1 AND idempotency_key = $2
	`, clientID, key))
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, classify("find booking by idempotency key", err, nil)
	}
	return &b, nil
}

// ApplyTransition moves the booking to status if it is still at expectedVersion.
// An empty reason keeps the stored one.
func (r *BookingRepository) ApplyTransition(ctx context.Context, id string, expectedVersion int64, status model.Status, reason string) (model.Booking, error) {
	return r.compareAndSwap(ctx, "apply transition", id, expectedVersion, `
		UPDATE bookings
		SET status = $3,
			reason = CASE WHEN $4 = '' THEN reason ELSE $4 END,
			version = version + 1,
			updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING `+bookingColumns, string(status), reason)
}

// Reschedule moves the booking to [start, end) if it is still at expectedVersion.
func (r *BookingRepository) Reschedule(ctx context.Context, id string, expectedVersion int64, start, end time.Time) (model.Booking, error) {
	return r.compareAndSwap(ctx, "reschedule booking", id, expectedVersion, `
		UPDATE bookings
		SET start_time = $3,
			end_time = $4,
			version = version + 1,
			updated_at = now()
		WHERE id = $1 AND version = $2
		RETURNING `+bookingColumns, start.UTC(), end.UTC())
}

func (r *BookingRepository) compareAndSwap(ctx context.Context, op, id string, expectedVersion int64, sql string, args ...any) (model.Booking, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Booking{}, model.ErrBookingNotFound
	}
	q := r.pool.Q(ctx)
	b, err := scanBooking(q.QueryRow(ctx, sql, append([]any{id, expectedVersion}, args...)...))
	if err == nil {
		return b, nil
	}
	if !db.IsNotFound(err) {
		if db.IsCheckViolation(err) {
			return model.Booking{}, fmt.Errorf("%s: %w", op, model.ErrInvalidInterval)
		}
		return model.Booking{}, classify(op, err, model.ErrDuplicateReservation)
	}

	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bookings WHERE id = $1)`, id).Scan(&exists); err != nil {
		return model.Booking{}, classify(op, err, nil)
	}
	if !exists {
		return model.Booking{}, model.ErrBookingNotFound
	}
	return model.Booking{}, model.ErrVersionConflict
}

func (r *BookingRepository) query(ctx context.Context, op, sql string, args ...any) ([]model.Booking, error) {
	rows, err := r.pool.Q(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(op, err, nil)
	}
	defer rows.Close()

	var bookings []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, classify(op, err, nil)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err, nil)
	}
	return bookings, nil
}

func scanBooking(row pgx.Row) (model.Booking, error) {
	var b model.Booking
	var status string
	err := row.Scan(
		&b.ID,
		&b.ProviderID,
		&b.ClientID,
		&b.ServiceID,
		&b.StartTime,
		&b.EndTime,
		&status,
		&b.Version,
		&b.IdempotencyKey,
		&b.Reason,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return model.Booking{}, err
	}
	b.Status = model.Status(status)
	b.StartTime = b.StartTime.UTC()
	b.EndTime = b.EndTime.UTC()
	return b, nil
}
