package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/turnomed/turnomed/libs/db"
	"github.com/turnomed/turnomed/services/booking-service/internal/availability"
	"github.com/turnomed/turnomed/services/booking-service/internal/booking"
	"github.com/turnomed/turnomed/services/booking-service/internal/model"
)

// AppointmentRepository persists appointments. A partial unique index on
// (professional_id, day, slot) WHERE status <> 'cancelled' is the arbiter
// for slot races; unique violations surface as booking.ErrSlotTaken.
type AppointmentRepository struct {
	pool *db.Pool
}

func NewAppointmentRepository(pool *db.Pool) *AppointmentRepository {
	return &AppointmentRepository{pool: pool}
}

const appointmentColumns = `
	id::text, professional_id::text, service_id::text, patient_id::text, site_id::text,
	COALESCE(room_id::text, ''), day, slot, status, no_show, qr_code,
	COALESCE(rating, 0), COALESCE(cancel_reason, ''), cancelled_at, created_at`

func (r *AppointmentRepository) ActiveSlotsOn(ctx context.Context, professionalID string, day time.Time) ([]availability.TimeOfDay, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT slot
		FROM appointments
		WHERE professional_id = $1
			AND day = $2
			AND status <> 'cancelled'
		ORDER BY slot ASC
	`, professionalID, availability.DateOnly(day))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []availability.TimeOfDay
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		slot, err := availability.ParseTimeOfDay(raw)
		if err != nil {
			return nil, fmt.Errorf("stored slot %q: %w", raw, err)
		}
		slots = append(slots, slot)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return slots, nil
}

func (r *AppointmentRepository) ListOn(ctx context.Context, professionalID string, day time.Time) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE professional_id = $1 AND day = $2
		ORDER BY slot ASC
	`, professionalID, availability.DateOnly(day))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *AppointmentRepository) Create(ctx context.Context, appt *model.Appointment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointments
			(id, professional_id, service_id, patient_id, site_id, room_id, day, slot, status, qr_code, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::uuid, $7, $8, $9, $10, $11)
	`, appt.ID, appt.ProfessionalID, appt.ServiceID, appt.PatientID, appt.SiteID, appt.RoomID,
		appt.Day, appt.Slot.String(), string(appt.Status), appt.QRCode, appt.CreatedAt)
	return mapWriteError(err)
}

func (r *AppointmentRepository) Move(ctx context.Context, id string, day time.Time, slot availability.TimeOfDay) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET day = $2, slot = $3
		WHERE id = $1 AND status IN ('pending', 'confirmed')
	`, id, availability.DateOnly(day), slot.String())
	if err != nil {
		return mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return booking.ErrAlreadyFinal
	}
	return nil
}

// Cancel soft-cancels inside one transaction and reports whether the
// appointment's room has no other active holder left on that day.
func (r *AppointmentRepository) Cancel(ctx context.Context, id string, reason string) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var roomID string
	var day time.Time
	err = tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = now(),
			cancel_reason = $2
		WHERE id = $1 AND status IN ('pending', 'confirmed')
		RETURNING COALESCE(room_id::text, ''), day
	`, id, reason).Scan(&roomID, &day)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either missing or already in a terminal state; look again to tell
		// the caller which.
		var exists bool
		if lookErr := r.pool.QueryRow(ctx, `SELECT true FROM appointments WHERE id = $1`, id).Scan(&exists); lookErr != nil {
			if errors.Is(lookErr, pgx.ErrNoRows) {
				return false, booking.ErrNotFound
			}
			return false, lookErr
		}
		return false, booking.ErrAlreadyFinal
	}
	if err != nil {
		return false, err
	}

	roomReleased := false
	if roomID != "" {
		var holders int
		err = tx.QueryRow(ctx, `
			SELECT count(*)
			FROM appointments
			WHERE room_id = $1
				AND day = $2
				AND status NOT IN ('cancelled', 'completed')
		`, roomID, day).Scan(&holders)
		if err != nil {
			return false, err
		}
		roomReleased = holders == 0
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return roomReleased, nil
}

func (r *AppointmentRepository) Transition(ctx context.Context, id string, from, to model.AppointmentStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET status = $3
		WHERE id = $1 AND status = $2
	`, id, string(from), string(to))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT true FROM appointments WHERE id = $1`, id).Scan(&exists); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return booking.ErrNotFound
			}
			return err
		}
		return booking.ErrInvalidTransition
	}
	return nil
}

func (r *AppointmentRepository) MarkNoShow(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET no_show = true, status = 'completed'
		WHERE id = $1 AND status IN ('confirmed', 'in_progress')
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return booking.ErrInvalidTransition
	}
	return nil
}

func (r *AppointmentRepository) Rate(ctx context.Context, id string, rating int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET rating = $2
		WHERE id = $1 AND status = 'completed'
	`, id, rating)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return booking.ErrInvalidTransition
	}
	return nil
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var rawSlot, status string
	var cancelledAt *time.Time
	err := row.Scan(
		&appt.ID,
		&appt.ProfessionalID,
		&appt.ServiceID,
		&appt.PatientID,
		&appt.SiteID,
		&appt.RoomID,
		&appt.Day,
		&rawSlot,
		&status,
		&appt.NoShow,
		&appt.QRCode,
		&appt.Rating,
		&appt.CancelReason,
		&cancelledAt,
		&appt.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, booking.ErrNotFound
	}
	if err != nil {
		return model.Appointment{}, err
	}
	slot, err := availability.ParseTimeOfDay(rawSlot)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("stored slot %q: %w", rawSlot, err)
	}
	appt.Slot = slot
	appt.Status = model.AppointmentStatus(status)
	appt.CancelledAt = cancelledAt
	return appt, nil
}

// mapWriteError translates the slot arbiter's unique violation (and the
// exclusion-constraint code, should the schema ever switch to one) into the
// domain sentinel.
func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "23505" || pgErr.Code == "23P01") {
		return booking.ErrSlotTaken
	}
	return err
}
