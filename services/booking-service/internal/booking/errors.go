package booking

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks malformed requests (missing ids, bad dates).
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnavailableSlot means the requested day/slot is not currently
	// offered: holiday, weekend, same-day, or outside the computed slot set.
	ErrUnavailableSlot = errors.New("slot not available")

	// ErrSlotTaken means another booking won the race for the same
	// (professional, day, slot). Callers should re-offer fresh slots.
	ErrSlotTaken = errors.New("slot already taken")

	// ErrNotFound means the appointment does not exist.
	ErrNotFound = errors.New("appointment not found")

	// ErrAlreadyFinal means the appointment is cancelled or completed and
	// cannot transition further.
	ErrAlreadyFinal = errors.New("appointment already in a final state")

	// ErrInvalidTransition means the requested status change is not legal
	// from the appointment's current status.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// PolicyDeniedError is returned when the cancellation policy rejects the
// request, carrying the policy's reason for the caller.
type PolicyDeniedError struct {
	Reason string
}

func (e *PolicyDeniedError) Error() string {
	return fmt.Sprintf("cancellation denied by policy: %s", e.Reason)
}
