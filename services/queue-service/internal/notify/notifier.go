package notify

import (
	"context"
	"encoding/json"

	"github.com/turnomed/turnomed/libs/db"
	"github.com/turnomed/turnomed/libs/outbox"
)

type Kind string

const (
	KindTurnReady    Kind = "turn-ready"
	KindTurnUpcoming Kind = "turn-upcoming"
)

var eventTypes = map[Kind]string{
	KindTurnReady:    "queue.turn.ready.v1",
	KindTurnUpcoming: "queue.turn.upcoming.v1",
}

type Notification struct {
	UserID string
	Kind   Kind
	// Ref is the ticket the notification is about.
	Ref     string
	Payload map[string]any
}

// Port dispatches a notification. Best-effort from the queue's
// perspective; errors are the caller's to log and swallow.
type Port interface {
	Send(ctx context.Context, n Notification) error
}

// OutboxPort stages turn notifications as outbox events for the publisher
// to drain to Kafka.
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

	body := map[string]any{"user_id": n.UserID, "ticket_id": n.Ref}
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
		AggregateType: "turn",
		AggregateID:   n.Ref,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
