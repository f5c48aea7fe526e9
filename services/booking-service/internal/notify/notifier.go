package notify

import (
	"context"
	"encoding/json"

	"github.com/turnomed/turnomed/libs/db"
	"github.com/turnomed/turnomed/libs/outbox"
)

type Kind string

const (
	KindAppointmentConfirmed   Kind = "appointment-confirmed"
	KindAppointmentCancelled   Kind = "appointment-cancelled"
	KindAppointmentRescheduled Kind = "appointment-rescheduled"
)

// eventTypes maps notification kinds to the Kafka topics the
// notification-service consumes.
var eventTypes = map[Kind]string{
	KindAppointmentConfirmed:   "booking.appointment.confirmed.v1",
	KindAppointmentCancelled:   "booking.appointment.cancelled.v1",
	KindAppointmentRescheduled: "booking.appointment.rescheduled.v1",
}

type Notification struct {
	UserID string
	Kind   Kind
	// Ref identifies the appointment the notification is about.
	Ref     string
	Payload map[string]any
}

// Port dispatches a notification. Fire-and-forget from the booking flow's
// perspective: a Send error must never abort the state change it follows.
type Port interface {
	Send(ctx context.Context, n Notification) error
}

// OutboxPort stages notifications as outbox events; delivery happens
// asynchronously via the publisher and the notification-service.
type OutboxPort struct {
	pool *db.Pool
	repo *outbox.Repository
}

func NewOutboxPort(pool *db.Pool, repo *outbox.Repository) *OutboxPort {
	return &OutboxPort{pool: pool, repo: repo}
}

func (p *OutboxPort) Send(ctx context.Context, n Notification) error {
	eventType, ok := eventTypes[n.Kind]
	if !ok {
		eventType = string(n.Kind)
	}

	body := map[string]any{"user_id": n.UserID}
	for k, v := range n.Payload {
		body[k] = v
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := p.repo.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   n.Ref,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
