package policy

import (
	"fmt"
	"time"
)

// Decision is the outcome of a cancellation policy check.
type Decision struct {
	Allowed bool
	Reason  string
}

// CancellationPolicy decides whether an appointment starting at startAt may
// still be cancelled at now. The rule is externalized so clinics can swap it
// without touching the booking flow.
type CancellationPolicy interface {
	CanCancel(startAt time.Time, now time.Time) Decision
}

type leadTimePolicy struct {
	minLead time.Duration
}

// NewLeadTimePolicy allows cancellation only while at least minLead remains
// before the appointment starts.
func NewLeadTimePolicy(minLead time.Duration) CancellationPolicy {
	if minLead < 0 {
		minLead = 0
	}
	return &leadTimePolicy{minLead: minLead}
}

func (p *leadTimePolicy) CanCancel(startAt time.Time, now time.Time) Decision {
	if startAt.Sub(now) >= p.minLead {
		return Decision{Allowed: true}
	}
	return Decision{
		Allowed: false,
		Reason:  fmt.Sprintf("cancellations require at least %s notice", p.minLead),
	}
}
