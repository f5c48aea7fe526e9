package model

import (
	"time"

	"github.com/turnomed/turnomed/services/booking-service/internal/availability"
)

type AppointmentStatus string

const (
	StatusPending    AppointmentStatus = "pending"
	StatusConfirmed  AppointmentStatus = "confirmed"
	StatusInProgress AppointmentStatus = "in_progress"
	StatusCompleted  AppointmentStatus = "completed"
	StatusCancelled  AppointmentStatus = "cancelled"
)

// Appointment is a cita: a pre-booked visit at a fixed day and slot.
// Appointments are never deleted; cancellation is a status change.
type Appointment struct {
	ID             string
	ProfessionalID string
	ServiceID      string
	PatientID      string
	SiteID         string
	RoomID         string // consultorio reserved for the visit; empty when none
	Day            time.Time
	Slot           availability.TimeOfDay
	Status         AppointmentStatus
	NoShow         bool
	QRCode         string
	Rating         int // 1..5, 0 until rated
	CancelReason   string
	CancelledAt    *time.Time
	CreatedAt      time.Time
}

// Blocking reports whether the appointment still occupies its slot.
func (a Appointment) Blocking() bool {
	return a.Status != StatusCancelled
}

// Final reports whether no further state transitions are possible.
func (a Appointment) Final() bool {
	return a.Status == StatusCancelled || a.Status == StatusCompleted
}

// StartAt combines Day and Slot into the appointment's start instant.
func (a Appointment) StartAt() time.Time {
	return time.Date(a.Day.Year(), a.Day.Month(), a.Day.Day(), a.Slot.Hour, a.Slot.Minute, 0, 0, a.Day.Location())
}
