package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/turnomed/turnomed/services/queue-service/internal/model"
	"github.com/turnomed/turnomed/services/queue-service/internal/notify"
)

// Store is the persistence contract for queues and turns. Issue, CallNext
// and Transfer must serialize number assignment per queue; concurrent
// callers never observe two turns with the same number in one queue.
type Store interface {
	GetQueue(ctx context.Context, id string) (model.Queue, error)
	QueuesBySite(ctx context.Context, siteID string) ([]model.Queue, error)
	SetActive(ctx context.Context, id string, active bool, reason string) error
	GetTurn(ctx context.Context, id string) (model.Turn, error)
	FindByTicket(ctx context.Context, ticketID string) (model.Turn, error)
	Issue(ctx context.Context, queueID, userID, ticketID string) (model.Turn, error)
	CallNext(ctx context.Context, queueID string) (model.Turn, error)
	NextWaiting(ctx context.Context, queueID string, limit int) ([]model.Turn, error)
	WaitingNumbers(ctx context.Context, queueID string) ([]int, error)
	Transfer(ctx context.Context, turnID, destQueueID string) (model.Turn, error)
	MarkServed(ctx context.Context, turnID string) error
	CancelTurn(ctx context.Context, turnID string) error
}

// Board mirrors the now-serving number for waiting-room displays. A zero
// number means nothing has been called yet.
type Board interface {
	SetNowServing(ctx context.Context, queueID string, number int) error
	NowServing(ctx context.Context, queueID string) (int, error)
}

// upcomingWindow is how many waiting turns behind the one being called get
// a "you are next" heads-up.
const upcomingWindow = 3

type Coordinator struct {
	store    Store
	board    Board
	notifier notify.Port
	logger   *slog.Logger
}

func NewCoordinator(store Store, board Board, notifier notify.Port, logger *slog.Logger) *Coordinator {
	return &Coordinator{store: store, board: board, notifier: notifier, logger: logger}
}

// TrackInfo is the read-side projection for one turn: where it stands and
// how long the wait looks. Position and ETA are recomputed on every read.
type TrackInfo struct {
	Turn       model.Turn
	Position   int
	ETAMinutes int
	NowServing int
}

// Issue creates a new turn at the back of the queue. The queue must be
// active; the number is assigned atomically by the store.
func (c *Coordinator) Issue(ctx context.Context, queueID, userID string) (model.Turn, error) {
	if queueID == "" || userID == "" {
		return model.Turn{}, fmt.Errorf("%w: queue and user are required", ErrInvalidInput)
	}
	turn, err := c.store.Issue(ctx, queueID, userID, uuid.NewString())
	if err != nil {
		return model.Turn{}, err
	}
	return turn, nil
}

// CallNext moves the smallest-numbered waiting turn to in_service, tells
// that user it is their turn and gives the next few a heads-up. An empty
// queue is a normal state, reported as ErrQueueEmpty so callers can poll
// without alarming.
func (c *Coordinator) CallNext(ctx context.Context, queueID string) (model.Turn, error) {
	turn, err := c.store.CallNext(ctx, queueID)
	if err != nil {
		return model.Turn{}, err
	}

	if c.board != nil {
		if err := c.board.SetNowServing(ctx, queueID, turn.Number); err != nil {
			c.logger.Warn("board update failed", "queue_id", queueID, "err", err)
		}
	}

	c.send(ctx, notify.Notification{
		UserID: turn.UserID,
		Kind:   notify.KindTurnReady,
		Ref:    turn.TicketID,
		Payload: map[string]any{
			"queue_id": turn.QueueID,
			"number":   turn.Number,
		},
	})

	upcoming, err := c.store.NextWaiting(ctx, queueID, upcomingWindow)
	if err != nil {
		c.logger.Warn("upcoming lookup failed", "queue_id", queueID, "err", err)
		return turn, nil
	}
	for i, u := range upcoming {
		c.send(ctx, notify.Notification{
			UserID: u.UserID,
			Kind:   notify.KindTurnUpcoming,
			Ref:    u.TicketID,
			Payload: map[string]any{
				"queue_id": u.QueueID,
				"number":   u.Number,
				"ahead":    i + 1,
			},
		})
	}
	return turn, nil
}

// Track reports the live position and wait estimate for a ticket.
func (c *Coordinator) Track(ctx context.Context, ticketID string) (TrackInfo, error) {
	turn, err := c.store.FindByTicket(ctx, ticketID)
	if err != nil {
		return TrackInfo{}, err
	}
	q, err := c.store.GetQueue(ctx, turn.QueueID)
	if err != nil {
		return TrackInfo{}, err
	}

	info := TrackInfo{Turn: turn}
	if turn.Status == model.TurnWaiting {
		waiting, err := c.store.WaitingNumbers(ctx, turn.QueueID)
		if err != nil {
			return TrackInfo{}, err
		}
		info.Position = Position(waiting, turn.Number)
		info.ETAMinutes = ETAMinutes(info.Position, q.AvgServiceMinutes)
	}
	// Served or cancelled tickets report final status only; the live board
	// belongs to whoever is still in line.
	if c.board != nil && turn.Active() {
		if now, err := c.board.NowServing(ctx, turn.QueueID); err == nil {
			info.NowServing = now
		}
	}
	return info, nil
}

// Transfer moves a waiting turn to another queue serving the same service.
// The source row is cancelled and a fresh row (new queue-local number,
// same user and ticket) appears at the back of the destination.
func (c *Coordinator) Transfer(ctx context.Context, turnID, destQueueID string) (model.Turn, error) {
	turn, err := c.store.GetTurn(ctx, turnID)
	if err != nil {
		return model.Turn{}, err
	}
	if turn.Status != model.TurnWaiting {
		return model.Turn{}, fmt.Errorf("%w: turn is %s", ErrTransferIneligible, turn.Status)
	}
	if turn.QueueID == destQueueID {
		return model.Turn{}, fmt.Errorf("%w: already in that queue", ErrTransferIneligible)
	}

	src, err := c.store.GetQueue(ctx, turn.QueueID)
	if err != nil {
		return model.Turn{}, err
	}
	dest, err := c.store.GetQueue(ctx, destQueueID)
	if err != nil {
		return model.Turn{}, err
	}
	if dest.ServiceID != src.ServiceID {
		return model.Turn{}, fmt.Errorf("%w: queues serve different services", ErrTransferIneligible)
	}
	if !dest.IsActive {
		return model.Turn{}, fmt.Errorf("%w: destination queue is closed", ErrTransferIneligible)
	}

	moved, err := c.store.Transfer(ctx, turnID, destQueueID)
	if err != nil {
		return model.Turn{}, err
	}
	return moved, nil
}

// MarkServed closes out the turn currently in service.
func (c *Coordinator) MarkServed(ctx context.Context, turnID string) error {
	return c.store.MarkServed(ctx, turnID)
}

// CancelTurn withdraws a waiting turn.
func (c *Coordinator) CancelTurn(ctx context.Context, turnID string) error {
	return c.store.CancelTurn(ctx, turnID)
}

// OpenQueue reactivates a queue and clears any closed reason.
func (c *Coordinator) OpenQueue(ctx context.Context, queueID string) error {
	return c.store.SetActive(ctx, queueID, true, "")
}

// CloseQueue stops new turns from being issued. Turns already in the queue
// keep being served.
func (c *Coordinator) CloseQueue(ctx context.Context, queueID, reason string) error {
	return c.store.SetActive(ctx, queueID, false, reason)
}

func (c *Coordinator) send(ctx context.Context, n notify.Notification) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Send(ctx, n); err != nil {
		// A missed heads-up never fails the call that triggered it.
		c.logger.Warn("notification dispatch failed", "kind", string(n.Kind), "ref", n.Ref, "err", err)
	}
}
