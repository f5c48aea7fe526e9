package availability

import "time"

var (
	// After lateBookingCutoff, tomorrow's morning slots can no longer be taken.
	lateBookingCutoff = At(20, 0)
	morningEnd        = At(14, 0)
)

// ComputeSlots returns the bookable slot origins for a professional on day,
// ascending. It is a pure function over the professional's rules and the
// times already held by non-cancelled appointments on that day; callers must
// filter cancelled appointments out of booked beforehand.
//
// An empty result is a normal "no availability" state, not an error.
func ComputeSlots(rules []Rule, booked []TimeOfDay, day time.Time, now time.Time) []TimeOfDay {
	day = DateOnly(day)
	today := DateOnly(now)

	// Same-day booking is categorically disallowed; the earliest bookable
	// day is tomorrow.
	if !day.After(today) {
		return nil
	}
	if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return nil
	}
	for _, r := range rules {
		if r.BlocksDay(day) {
			return nil
		}
	}

	winStart, winEnd, hasShift := shiftWindowFor(rules, day)

	bookedSet := make(map[TimeOfDay]struct{}, len(booked))
	for _, t := range booked {
		bookedSet[t] = struct{}{}
	}

	// Booking for tomorrow after the evening cutoff loses the morning:
	// there is no time left to confirm an early slot.
	dropMorning := sameDay(day, today.AddDate(0, 0, 1)) && !ClockOf(now).Before(lateBookingCutoff)

	var out []TimeOfDay
	for _, slot := range canonicalSlots {
		// A professional with no configured shift stays bookable for the
		// whole canonical day.
		if hasShift && (slot.Before(winStart) || !slot.Before(winEnd)) {
			continue
		}
		if _, taken := bookedSet[slot]; taken {
			continue
		}
		if dropMorning && slot.Before(morningEnd) {
			continue
		}
		out = append(out, slot)
	}
	return out
}

func shiftWindowFor(rules []Rule, day time.Time) (TimeOfDay, TimeOfDay, bool) {
	for _, r := range rules {
		if start, end, ok := r.ShiftWindow(day); ok {
			return start, end, true
		}
	}
	return TimeOfDay{}, TimeOfDay{}, false
}
