package booking

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/turnomed/turnomed/services/booking-service/internal/availability"
	"github.com/turnomed/turnomed/services/booking-service/internal/model"
	"github.com/turnomed/turnomed/services/booking-service/internal/notify"
	"github.com/turnomed/turnomed/services/booking-service/internal/policy"
)

// RuleStore loads a professional's availability rules.
type RuleStore interface {
	RulesFor(ctx context.Context, professionalID string) ([]availability.Rule, error)
}

// AppointmentStore is the persistence contract for appointments. Create and
// Move must be atomic against concurrent bookings of the same slot and
// return ErrSlotTaken when the slot is occupied by a non-cancelled row.
type AppointmentStore interface {
	ActiveSlotsOn(ctx context.Context, professionalID string, day time.Time) ([]availability.TimeOfDay, error)
	ListOn(ctx context.Context, professionalID string, day time.Time) ([]model.Appointment, error)
	Get(ctx context.Context, id string) (model.Appointment, error)
	Create(ctx context.Context, appt *model.Appointment) error
	Move(ctx context.Context, id string, day time.Time, slot availability.TimeOfDay) error
	Cancel(ctx context.Context, id string, reason string) (roomReleased bool, err error)
	Transition(ctx context.Context, id string, from, to model.AppointmentStatus) error
	MarkNoShow(ctx context.Context, id string) error
	Rate(ctx context.Context, id string, rating int) error
}

// Coordinator validates slot choices against current state at commit time
// and owns the appointment lifecycle. It is stateless per call; everything
// it needs arrives through the stores.
type Coordinator struct {
	rules    RuleStore
	appts    AppointmentStore
	policy   policy.CancellationPolicy
	notifier notify.Port
	logger   *slog.Logger
	now      func() time.Time
}

func NewCoordinator(rules RuleStore, appts AppointmentStore, cancelPolicy policy.CancellationPolicy, notifier notify.Port, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		rules:    rules,
		appts:    appts,
		policy:   cancelPolicy,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the coordinator's clock. Tests only.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

type BookRequest struct {
	ProfessionalID string
	ServiceID      string
	SiteID         string
	PatientID      string
	RoomID         string
	Day            time.Time
	Slot           availability.TimeOfDay
}

// Slots recomputes the current bookable slots for a professional on day.
func (c *Coordinator) Slots(ctx context.Context, professionalID string, day time.Time) ([]availability.TimeOfDay, error) {
	rules, err := c.rules.RulesFor(ctx, professionalID)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	booked, err := c.appts.ActiveSlotsOn(ctx, professionalID, day)
	if err != nil {
		return nil, fmt.Errorf("load booked slots: %w", err)
	}
	return availability.ComputeSlots(rules, booked, day, c.now()), nil
}

// Book re-validates the chosen slot against freshly recomputed availability
// and creates the appointment. Stale slots surface as ErrUnavailableSlot;
// losing the write race surfaces as ErrSlotTaken.
func (c *Coordinator) Book(ctx context.Context, req BookRequest) (model.Appointment, error) {
	if req.ProfessionalID == "" || req.ServiceID == "" || req.SiteID == "" || req.PatientID == "" {
		return model.Appointment{}, fmt.Errorf("%w: professional, service, site and patient are required", ErrInvalidInput)
	}
	if req.Day.IsZero() {
		return model.Appointment{}, fmt.Errorf("%w: day is required", ErrInvalidInput)
	}

	slots, err := c.Slots(ctx, req.ProfessionalID, req.Day)
	if err != nil {
		return model.Appointment{}, err
	}
	if !containsSlot(slots, req.Slot) {
		return model.Appointment{}, ErrUnavailableSlot
	}

	appt := model.Appointment{
		ID:             uuid.NewString(),
		ProfessionalID: req.ProfessionalID,
		ServiceID:      req.ServiceID,
		PatientID:      req.PatientID,
		SiteID:         req.SiteID,
		RoomID:         req.RoomID,
		Day:            availability.DateOnly(req.Day),
		Slot:           req.Slot,
		Status:         model.StatusPending,
		QRCode:         uuid.NewString(),
		CreatedAt:      c.now().UTC(),
	}
	if err := c.appts.Create(ctx, &appt); err != nil {
		return model.Appointment{}, err
	}

	c.send(ctx, notify.Notification{
		UserID: appt.PatientID,
		Kind:   notify.KindAppointmentConfirmed,
		Ref:    appt.ID,
		Payload: map[string]any{
			"appointment_id":  appt.ID,
			"professional_id": appt.ProfessionalID,
			"day":             appt.Day.Format("2006-01-02"),
			"slot":            appt.Slot.String(),
			"qr_code":         appt.QRCode,
		},
	})
	return appt, nil
}

// Cancel soft-cancels an appointment. The lead-time policy gates it; the
// reserved room is released when no other active appointment holds it.
func (c *Coordinator) Cancel(ctx context.Context, id string, reason string) (model.Appointment, error) {
	appt, err := c.appts.Get(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if appt.Final() {
		return model.Appointment{}, ErrAlreadyFinal
	}
	if appt.Status != model.StatusPending && appt.Status != model.StatusConfirmed {
		return model.Appointment{}, ErrInvalidTransition
	}

	if d := c.policy.CanCancel(appt.StartAt(), c.now()); !d.Allowed {
		return model.Appointment{}, &PolicyDeniedError{Reason: d.Reason}
	}

	roomReleased, err := c.appts.Cancel(ctx, id, reason)
	if err != nil {
		return model.Appointment{}, err
	}

	c.send(ctx, notify.Notification{
		UserID: appt.ProfessionalID,
		Kind:   notify.KindAppointmentCancelled,
		Ref:    appt.ID,
		Payload: map[string]any{
			"appointment_id": appt.ID,
			"patient_id":     appt.PatientID,
			"day":            appt.Day.Format("2006-01-02"),
			"slot":           appt.Slot.String(),
			"room_released":  roomReleased,
		},
	})

	appt.Status = model.StatusCancelled
	appt.CancelReason = reason
	return appt, nil
}

// Reschedule moves an appointment to a new day/slot after running the same
// validation as Book. Identity, QR code and history are preserved.
func (c *Coordinator) Reschedule(ctx context.Context, id string, day time.Time, slot availability.TimeOfDay) (model.Appointment, error) {
	appt, err := c.appts.Get(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if appt.Final() {
		return model.Appointment{}, ErrAlreadyFinal
	}

	slots, err := c.Slots(ctx, appt.ProfessionalID, day)
	if err != nil {
		return model.Appointment{}, err
	}
	if !containsSlot(slots, slot) {
		return model.Appointment{}, ErrUnavailableSlot
	}

	if err := c.appts.Move(ctx, id, day, slot); err != nil {
		return model.Appointment{}, err
	}

	c.send(ctx, notify.Notification{
		UserID: appt.PatientID,
		Kind:   notify.KindAppointmentRescheduled,
		Ref:    appt.ID,
		Payload: map[string]any{
			"appointment_id": appt.ID,
			"day":            availability.DateOnly(day).Format("2006-01-02"),
			"slot":           slot.String(),
		},
	})

	appt.Day = availability.DateOnly(day)
	appt.Slot = slot
	return appt, nil
}

// Status returns the appointment as stored.
func (c *Coordinator) Status(ctx context.Context, id string) (model.Appointment, error) {
	return c.appts.Get(ctx, id)
}

// Agenda lists a professional's appointments for one day.
func (c *Coordinator) Agenda(ctx context.Context, professionalID string, day time.Time) ([]model.Appointment, error) {
	return c.appts.ListOn(ctx, professionalID, day)
}

// Confirm moves a pending appointment to confirmed.
func (c *Coordinator) Confirm(ctx context.Context, id string) error {
	return c.appts.Transition(ctx, id, model.StatusPending, model.StatusConfirmed)
}

// Start moves a confirmed appointment to in_progress.
func (c *Coordinator) Start(ctx context.Context, id string) error {
	return c.appts.Transition(ctx, id, model.StatusConfirmed, model.StatusInProgress)
}

// Complete moves an in_progress appointment to completed.
func (c *Coordinator) Complete(ctx context.Context, id string) error {
	return c.appts.Transition(ctx, id, model.StatusInProgress, model.StatusCompleted)
}

// MarkNoShow flags a missed appointment.
func (c *Coordinator) MarkNoShow(ctx context.Context, id string) error {
	return c.appts.MarkNoShow(ctx, id)
}

// Rate records a 1..5 rating on a completed appointment.
func (c *Coordinator) Rate(ctx context.Context, id string, rating int) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidInput)
	}
	return c.appts.Rate(ctx, id, rating)
}

func (c *Coordinator) send(ctx context.Context, n notify.Notification) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Send(ctx, n); err != nil {
		// Notification delivery never fails the state change it follows.
		c.logger.Warn("notification dispatch failed", "kind", string(n.Kind), "ref", n.Ref, "err", err)
	}
}

func containsSlot(slots []availability.TimeOfDay, want availability.TimeOfDay) bool {
	for _, s := range slots {
		if s == want {
			return true
		}
	}
	return false
}
