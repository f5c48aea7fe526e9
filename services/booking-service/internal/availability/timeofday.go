package availability

import (
	"fmt"
	"time"
)

// TimeOfDay is a clock value with minute precision, independent of date and zone.
// Appointment slots are stored and compared as TimeOfDay values.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func At(hour, minute int) TimeOfDay {
	return TimeOfDay{Hour: hour, Minute: minute}
}

// ParseTimeOfDay parses "15:04" strings.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) Before(o TimeOfDay) bool {
	return t.totalMinutes() < o.totalMinutes()
}

func (t TimeOfDay) totalMinutes() int {
	return t.Hour*60 + t.Minute
}

// ClockOf extracts the TimeOfDay from an instant, in that instant's location.
func ClockOf(at time.Time) TimeOfDay {
	return TimeOfDay{Hour: at.Hour(), Minute: at.Minute()}
}

// DateOnly truncates an instant to its calendar day, normalized to UTC
// midnight. Normalizing the zone keeps day comparisons working when the
// inputs were observed in different locations: a date parsed from a request
// and the server's local clock compare by their printed date, not by instant.
func DateOnly(at time.Time) time.Time {
	return time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// SlotMinutes is the fixed booking granularity.
const SlotMinutes = 30

// canonicalSlots is the master list of slot origins the clinic ever offers:
// half-hour boundaries from 08:00 through 12:30 and from 14:00 through 19:30.
// The 13:00-14:00 hour is the lunch gap. A work shift window can narrow this
// list but never add origins outside it.
var canonicalSlots = buildCanonicalSlots()

func buildCanonicalSlots() []TimeOfDay {
	var out []TimeOfDay
	appendRange := func(from, to TimeOfDay) {
		for m := from.totalMinutes(); m <= to.totalMinutes(); m += SlotMinutes {
			out = append(out, TimeOfDay{Hour: m / 60, Minute: m % 60})
		}
	}
	appendRange(At(8, 0), At(12, 30))
	appendRange(At(14, 0), At(19, 30))
	return out
}

// CanonicalSlots returns a copy of the master slot list, ascending.
func CanonicalSlots() []TimeOfDay {
	out := make([]TimeOfDay, len(canonicalSlots))
	copy(out, canonicalSlots)
	return out
}
