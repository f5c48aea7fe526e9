package availability

import (
	"testing"
	"time"
)

// 2026-01-05 is a Monday.
var (
	mon = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	tue = mon.AddDate(0, 0, 1)
	wed = mon.AddDate(0, 0, 2)
	sat = mon.AddDate(0, 0, 5)
	sun = mon.AddDate(0, 0, 6)
)

func clockAt(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, time.UTC)
}

func TestComputeSlots_NoShiftFallsBackToFullDay(t *testing.T) {
	now := clockAt(mon, 9, 0)
	slots := ComputeSlots(nil, nil, wed, now)

	want := CanonicalSlots()
	if len(slots) != len(want) {
		t.Fatalf("expected %d slots, got %d", len(want), len(slots))
	}
	for i := range want {
		if slots[i] != want[i] {
			t.Fatalf("slot %d: expected %s, got %s", i, want[i], slots[i])
		}
	}
}

func TestComputeSlots_SameDayRejected(t *testing.T) {
	now := clockAt(mon, 8, 0)
	if slots := ComputeSlots(nil, nil, mon, now); len(slots) != 0 {
		t.Fatalf("expected no slots for today, got %d", len(slots))
	}
	if slots := ComputeSlots(nil, nil, mon.AddDate(0, 0, -3), now); len(slots) != 0 {
		t.Fatalf("expected no slots for a past date, got %d", len(slots))
	}
}

func TestComputeSlots_SameDayRejectedAcrossZones(t *testing.T) {
	// A request date arrives as UTC midnight; the server clock may sit in
	// another zone. The calendar date, not the instant, decides "today".
	tokyo := time.FixedZone("UTC+9", 9*60*60)
	now := time.Date(2026, 1, 5, 9, 0, 0, 0, tokyo)

	if slots := ComputeSlots(nil, nil, mon, now); len(slots) != 0 {
		t.Fatalf("expected no slots for the server's own date, got %d", len(slots))
	}
	if slots := ComputeSlots(nil, nil, tue, now); len(slots) == 0 {
		t.Fatal("expected tomorrow to stay bookable")
	}
}

func TestComputeSlots_WeekendRejected(t *testing.T) {
	now := clockAt(mon, 9, 0)
	if slots := ComputeSlots(nil, nil, sat, now); len(slots) != 0 {
		t.Fatalf("expected no slots on Saturday, got %d", len(slots))
	}
	if slots := ComputeSlots(nil, nil, sun, now); len(slots) != 0 {
		t.Fatalf("expected no slots on Sunday, got %d", len(slots))
	}
}

func TestComputeSlots_BlockedDays(t *testing.T) {
	now := clockAt(mon, 9, 0)

	holiday := []Rule{Holiday(wed)}
	if slots := ComputeSlots(holiday, nil, wed, now); len(slots) != 0 {
		t.Fatalf("expected no slots on a holiday, got %d", len(slots))
	}

	vacation := []Rule{Vacation(tue, wed.AddDate(0, 0, 7))}
	if slots := ComputeSlots(vacation, nil, wed, now); len(slots) != 0 {
		t.Fatalf("expected no slots during vacation, got %d", len(slots))
	}

	absence := []Rule{Absence(wed, wed)}
	if slots := ComputeSlots(absence, nil, wed, now); len(slots) != 0 {
		t.Fatalf("expected no slots during absence, got %d", len(slots))
	}
}

func TestComputeSlots_RecurringShiftWindow(t *testing.T) {
	rules := []Rule{RecurringShift(time.Monday, At(9, 0), At(12, 0))}
	now := clockAt(mon, 9, 0)
	nextMon := mon.AddDate(0, 0, 7)

	slots := ComputeSlots(rules, nil, nextMon, now)

	want := []TimeOfDay{At(9, 0), At(9, 30), At(10, 0), At(10, 30), At(11, 0), At(11, 30)}
	if len(slots) != len(want) {
		t.Fatalf("expected %d slots, got %d (%v)", len(want), len(slots), slots)
	}
	for i := range want {
		if slots[i] != want[i] {
			t.Fatalf("slot %d: expected %s, got %s", i, want[i], slots[i])
		}
	}
}

func TestComputeSlots_RangedShiftAppliesOnlyInRange(t *testing.T) {
	rules := []Rule{RangedShift(mon, mon.AddDate(0, 0, 11), time.Wednesday, At(10, 0), At(12, 0))}
	now := clockAt(mon, 9, 0)

	inRange := ComputeSlots(rules, nil, wed, now)
	if len(inRange) != 4 {
		t.Fatalf("expected 4 slots inside the range, got %d (%v)", len(inRange), inRange)
	}
	if inRange[0] != At(10, 0) {
		t.Fatalf("expected first slot 10:00, got %s", inRange[0])
	}

	// Outside the range the shift does not match; with no other shift
	// configured, the full canonical day applies.
	afterRange := ComputeSlots(rules, nil, wed.AddDate(0, 0, 14), now)
	if len(afterRange) != len(CanonicalSlots()) {
		t.Fatalf("expected full day outside the range, got %d slots", len(afterRange))
	}
}

func TestComputeSlots_BookedSlotsExcluded(t *testing.T) {
	rules := []Rule{RecurringShift(time.Wednesday, At(9, 0), At(12, 0))}
	now := clockAt(mon, 9, 0)
	booked := []TimeOfDay{At(9, 30), At(11, 0)}

	slots := ComputeSlots(rules, booked, wed, now)

	want := []TimeOfDay{At(9, 0), At(10, 0), At(10, 30), At(11, 30)}
	if len(slots) != len(want) {
		t.Fatalf("expected %d slots, got %d (%v)", len(want), len(slots), slots)
	}
	for i := range want {
		if slots[i] != want[i] {
			t.Fatalf("slot %d: expected %s, got %s", i, want[i], slots[i])
		}
	}
}

func TestComputeSlots_Idempotent(t *testing.T) {
	rules := []Rule{RecurringShift(time.Wednesday, At(9, 0), At(13, 0))}
	now := clockAt(mon, 9, 0)

	first := ComputeSlots(rules, nil, wed, now)
	second := ComputeSlots(rules, nil, wed, now)

	if len(first) != len(second) {
		t.Fatalf("recomputation changed slot count: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("recomputation changed slot %d: %s vs %s", i, first[i], second[i])
		}
	}
}

func TestComputeSlots_TomorrowEveningCutoffDropsMorning(t *testing.T) {
	rules := []Rule{RecurringShift(time.Tuesday, At(8, 0), At(19, 0))}
	now := clockAt(mon, 20, 5)

	slots := ComputeSlots(rules, nil, tue, now)

	if len(slots) == 0 {
		t.Fatal("expected afternoon slots to remain")
	}
	if slots[0] != At(14, 0) {
		t.Fatalf("expected first slot 14:00 after the cutoff, got %s", slots[0])
	}
	for _, s := range slots {
		if s.Before(At(14, 0)) {
			t.Fatalf("morning slot %s should have been dropped", s)
		}
	}
}

func TestComputeSlots_CutoffOnlyAppliesToTomorrow(t *testing.T) {
	rules := []Rule{RecurringShift(time.Wednesday, At(8, 0), At(19, 0))}
	now := clockAt(mon, 20, 5)

	slots := ComputeSlots(rules, nil, wed, now)

	if len(slots) == 0 {
		t.Fatal("expected slots for the day after tomorrow")
	}
	if slots[0] != At(8, 0) {
		t.Fatalf("expected 08:00 to stay available past tomorrow, got %s", slots[0])
	}
}
