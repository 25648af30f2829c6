package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/apptcore/libs/db"
	"github.com/md-rashed-zaman/apptcore/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/apptcore/services/booking-service/internal/model"
)

const windowColumns = `id::text, provider_id, kind, weekday, start_minute, end_minute, timezone,
	start_time, end_time, active, created_at, updated_at`

type AvailabilityRepository struct {
	pool   *db.Pool
	txOpts db.TxOptions
}

func NewAvailabilityRepository(pool *db.Pool, txOpts db.TxOptions) *AvailabilityRepository {
	return &AvailabilityRepository{pool: pool, txOpts: txOpts}
}

// SetWindow inserts w for providerID, or replaces the stored window when w.ID is set.
// Recurring windows are always saved active; a dated window saved inactive is a
// blackout and takes no part in the overlap check.
func (r *AvailabilityRepository) SetWindow(ctx context.Context, providerID string, w model.AvailabilityWindow) (model.AvailabilityWindow, error) {
	w = w.Prepare(providerID)
	if err := w.Validate(); err != nil {
		return model.AvailabilityWindow{}, err
	}

	var saved model.AvailabilityWindow
	err := r.pool.WithTx(ctx, r.txOpts, func(ctx context.Context) error {
		q := r.pool.Q(ctx)

		// Serialise window edits per provider so the application check below sees
		// every committed window.
		if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, providerID); err != nil {
			return classify("lock provider windows", err, nil)
		}

		if w.ID != "" {
			existing, err := r.getWindow(ctx, w.ID)
			if err != nil {
				return err
			}
			if existing.ProviderID != providerID {
				return model.ErrWindowNotFound
			}
		}

		current, err := r.ListWindows(ctx, providerID)
		if err != nil {
			return err
		}
		if err := w.CheckPlacement(current); err != nil {
			return err
		}

		weekday, startMinute, endMinute, startTime, endTime := windowArgs(w)
		var row pgx.Row
		if w.ID == "" {
			row = q.QueryRow(ctx, `
				INSERT INTO availability_windows
					(id, provider_id, kind, weekday, start_minute, end_minute, timezone, start_time, end_time, active)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				RETURNING `+windowColumns,
				uuid.NewString(), providerID, string(w.Kind), weekday, startMinute, endMinute, w.Timezone, startTime, endTime, w.Active)
		} else {
			row = q.QueryRow(ctx, `
				UPDATE availability_windows
				SET kind = $2,
					weekday = $3,
					start_minute = $4,
					end_minute = $5,
					timezone = $6,
					start_time = $7,
					end_time = $8,
					active = $9,
					updated_at = now()
				WHERE id = $1
				RETURNING `+windowColumns,
				w.ID, string(w.Kind), weekday, startMinute, endMinute, w.Timezone, startTime, endTime, w.Active)
		}
		saved, err = scanWindow(row)
		if err != nil {
			if db.IsCheckViolation(err) {
				return model.ErrInvalidWindow
			}
			return classify("save availability window", err, model.ErrWindowConflict)
		}
		return nil
	})
	if err != nil {
		return model.AvailabilityWindow{}, err
	}
	return saved, nil
}

func (r *AvailabilityRepository) GetWindow(ctx context.Context, id string) (model.AvailabilityWindow, error) {
	return r.getWindow(ctx, id)
}

// DeactivateWindow keeps the row for history. A deactivated dated window becomes a
// blackout.
func (r *AvailabilityRepository) DeactivateWindow(ctx context.Context, id string) (model.AvailabilityWindow, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.AvailabilityWindow{}, model.ErrWindowNotFound
	}
	w, err := scanWindow(r.pool.Q(ctx).QueryRow(ctx, `
		UPDATE availability_windows
		SET active = FALSE, updated_at = now()
		WHERE id = $1
		RETURNING `+windowColumns, id))
	if err != nil {
		if db.IsNotFound(err) {
			return model.AvailabilityWindow{}, model.ErrWindowNotFound
		}
		return model.AvailabilityWindow{}, classify("deactivate availability window", err, nil)
	}
	return w, nil
}

func (r *AvailabilityRepository) ListWindows(ctx context.Context, providerID string) ([]model.AvailabilityWindow, error) {
	return r.queryWindows(ctx, "list availability windows", `
		SELECT `+windowColumns+`
		FROM availability_windows
		WHERE provider_id = $1
		ORDER BY kind, weekday NULLS LAST, start_minute NULLS LAST, start_time NULLS LAST, id
	`, providerID)
}

// EffectiveAvailability reads the windows relevant to [from, to) in one statement and
// resolves them with availability.FromWindows.
func (r *AvailabilityRepository) EffectiveAvailability(ctx context.Context, providerID string, from, to time.Time) ([]availability.Interval, error) {
	if !to.After(from) {
		return nil, nil
	}
	windows, err := r.queryWindows(ctx, "load availability windows", `
		SELECT `+windowColumns+`
		FROM availability_windows
		WHERE provider_id = $1
			AND (
				(kind = 'recurring' AND active)
				OR (kind = 'dated' AND start_time < $3 AND end_time > $2)
			)
	`, providerID, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	return availability.FromWindows(windows, from, to), nil
}

func (r *AvailabilityRepository) getWindow(ctx context.Context, id string) (model.AvailabilityWindow, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.AvailabilityWindow{}, model.ErrWindowNotFound
	}
	w, err := scanWindow(r.pool.Q(ctx).QueryRow(ctx, `SELECT `+windowColumns+` FROM availability_windows WHERE id = $1`, id))
	if err != nil {
		if db.IsNotFound(err) {
			return model.AvailabilityWindow{}, model.ErrWindowNotFound
		}
		return model.AvailabilityWindow{}, classify("get availability window", err, nil)
	}
	return w, nil
}

func (r *AvailabilityRepository) queryWindows(ctx context.Context, op, sql string, args ...any) ([]model.AvailabilityWindow, error) {
	rows, err := r.pool.Q(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(op, err, nil)
	}
	defer rows.Close()

	var windows []model.AvailabilityWindow
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, classify(op, err, nil)
		}
		windows = append(windows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err, nil)
	}
	return windows, nil
}

func windowArgs(w model.AvailabilityWindow) (weekday, startMinute, endMinute, startTime, endTime any) {
	switch w.Kind {
	case model.WindowRecurring:
		return int16(w.Weekday), int32(w.StartMinute), int32(w.EndMinute), nil, nil
	default:
		return nil, nil, nil, w.StartTime.UTC(), w.EndTime.UTC()
	}
}

func scanWindow(row pgx.Row) (model.AvailabilityWindow, error) {
	var (
		w                      model.AvailabilityWindow
		kind                   string
		weekday                *int16
		startMinute, endMinute *int32
		startTime, endTime     *time.Time
	)
	err := row.Scan(
		&w.ID,
		&w.ProviderID,
		&kind,
		&weekday,
		&startMinute,
		&endMinute,
		&w.Timezone,
		&startTime,
		&endTime,
		&w.Active,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return model.AvailabilityWindow{}, err
	}
	w.Kind = model.WindowKind(kind)
	if weekday != nil {
		w.Weekday = time.Weekday(*weekday)
	}
	if startMinute != nil {
		w.StartMinute = int(*startMinute)
	}
	if endMinute != nil {
		w.EndMinute = int(*endMinute)
	}
	if startTime != nil {
		w.StartTime = startTime.UTC()
	}
	if endTime != nil {
		w.EndTime = endTime.UTC()
	}
	return w, nil
}

