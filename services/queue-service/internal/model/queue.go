package model

import "time"

type TurnStatus string

const (
	TurnWaiting   TurnStatus = "waiting"
	TurnInService TurnStatus = "in_service"
	TurnServed    TurnStatus = "served"
	TurnCancelled TurnStatus = "cancelled"
)

// Queue is one live numbered line at a site, bound to a service so turns
// can only transfer between queues dispensing the same service.
type Queue struct {
	ID                string
	SiteID            string
	ServiceID         string
	Name              string
	IsActive          bool
	ClosedReason      string
	AvgServiceMinutes int
	CreatedAt         time.Time
}

// Turn is a numbered ticket in a queue. TicketID survives transfers so the
// patient keeps tracking with the same reference; ID and Number are
// per-queue and change when the turn moves.
type Turn struct {
	ID        string
	QueueID   string
	UserID    string
	TicketID  string
	Number    int
	Status    TurnStatus
	CreatedAt time.Time
	CalledAt  *time.Time
}

func (t Turn) Active() bool {
	return t.Status == TurnWaiting || t.Status == TurnInService
}
