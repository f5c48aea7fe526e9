package availability

import "time"

type RuleKind string

const (
	KindWorkShift RuleKind = "work_shift"
	KindAbsence   RuleKind = "absence"
	KindHoliday   RuleKind = "holiday"
	KindVacation  RuleKind = "vacation"
)

// Rule is a tagged union over the availability rule kinds. Which fields are
// meaningful depends on Kind; use the constructors rather than building
// literals so the combinations stay valid:
//
//   - work shift: Weekday + Start/End, recurring or bounded by [From, To]
//   - absence/vacation: [From, To]
//   - holiday: a single day (From == To)
type Rule struct {
	Kind      RuleKind
	Recurring bool
	Weekday   time.Weekday
	From      time.Time // inclusive, midnight-normalized
	To        time.Time // inclusive, midnight-normalized
	Start     TimeOfDay
	End       TimeOfDay
}

// RecurringShift is a weekly work shift: every Weekday, Start to End.
func RecurringShift(weekday time.Weekday, start, end TimeOfDay) Rule {
	return Rule{
		Kind:      KindWorkShift,
		Recurring: true,
		Weekday:   weekday,
		Start:     start,
		End:       end,
	}
}

// RangedShift is a work shift that applies only on the given weekday within
// [from, to], e.g. "Thursdays 09:00-13:00 during March".
func RangedShift(from, to time.Time, weekday time.Weekday, start, end TimeOfDay) Rule {
	return Rule{
		Kind:    KindWorkShift,
		Weekday: weekday,
		From:    DateOnly(from),
		To:      DateOnly(to),
		Start:   start,
		End:     end,
	}
}

// Holiday marks a single non-bookable day for the professional's site.
func Holiday(day time.Time) Rule {
	day = DateOnly(day)
	return Rule{Kind: KindHoliday, From: day, To: day}
}

// Vacation marks an inclusive non-bookable date range.
func Vacation(from, to time.Time) Rule {
	return Rule{Kind: KindVacation, From: DateOnly(from), To: DateOnly(to)}
}

// Absence marks an inclusive non-bookable date range (sick leave, conferences).
func Absence(from, to time.Time) Rule {
	return Rule{Kind: KindAbsence, From: DateOnly(from), To: DateOnly(to)}
}

// BlocksDay reports whether the rule makes day entirely non-bookable.
func (r Rule) BlocksDay(day time.Time) bool {
	switch r.Kind {
	case KindHoliday, KindVacation, KindAbsence:
		return r.coversDay(day)
	default:
		return false
	}
}

// ShiftWindow returns the working window for day, if this rule is a work
// shift matching day's weekday (and date range, for non-recurring shifts).
func (r Rule) ShiftWindow(day time.Time) (start, end TimeOfDay, ok bool) {
	if r.Kind != KindWorkShift {
		return TimeOfDay{}, TimeOfDay{}, false
	}
	if day.Weekday() != r.Weekday {
		return TimeOfDay{}, TimeOfDay{}, false
	}
	if !r.Recurring && !r.coversDay(day) {
		return TimeOfDay{}, TimeOfDay{}, false
	}
	return r.Start, r.End, true
}

func (r Rule) coversDay(day time.Time) bool {
	day = DateOnly(day)
	if r.From.IsZero() || r.To.IsZero() {
		return false
	}
	return !day.Before(r.From) && !day.After(r.To)
}
