package availability

import (
	"testing"
	"time"
)

func TestRule_BlocksDay(t *testing.T) {
	day := time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC)

	if !Holiday(day).BlocksDay(day) {
		t.Fatal("holiday should block its own day")
	}
	if Holiday(day).BlocksDay(day.AddDate(0, 0, 1)) {
		t.Fatal("holiday should not block the next day")
	}

	vac := Vacation(day, day.AddDate(0, 0, 6))
	if !vac.BlocksDay(day.AddDate(0, 0, 3)) {
		t.Fatal("vacation should block days inside the range")
	}
	if !vac.BlocksDay(day.AddDate(0, 0, 6)) {
		t.Fatal("vacation range is inclusive of its last day")
	}
	if vac.BlocksDay(day.AddDate(0, 0, 7)) {
		t.Fatal("vacation should not block days after the range")
	}

	shift := RecurringShift(day.Weekday(), At(9, 0), At(12, 0))
	if shift.BlocksDay(day) {
		t.Fatal("a work shift never blocks a day")
	}
}

func TestRule_ShiftWindow(t *testing.T) {
	wed := time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC)

	shift := RecurringShift(time.Wednesday, At(9, 0), At(12, 0))
	start, end, ok := shift.ShiftWindow(wed)
	if !ok {
		t.Fatal("expected recurring shift to match its weekday")
	}
	if start != At(9, 0) || end != At(12, 0) {
		t.Fatalf("unexpected window %s-%s", start, end)
	}

	if _, _, ok := shift.ShiftWindow(wed.AddDate(0, 0, 1)); ok {
		t.Fatal("shift must not match a different weekday")
	}

	ranged := RangedShift(wed, wed.AddDate(0, 0, 7), time.Wednesday, At(10, 0), At(13, 0))
	if _, _, ok := ranged.ShiftWindow(wed); !ok {
		t.Fatal("ranged shift should match inside its range")
	}
	if _, _, ok := ranged.ShiftWindow(wed.AddDate(0, 0, 14)); ok {
		t.Fatal("ranged shift must not match outside its range")
	}

	if _, _, ok := Holiday(wed).ShiftWindow(wed); ok {
		t.Fatal("non-shift rules have no window")
	}
}

func TestParseTimeOfDay(t *testing.T) {
	got, err := ParseTimeOfDay("09:30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != At(9, 30) {
		t.Fatalf("expected 09:30, got %s", got)
	}

	if _, err := ParseTimeOfDay("25:00"); err == nil {
		t.Fatal("expected error for invalid hour")
	}
	if got.String() != "09:30" {
		t.Fatalf("expected string 09:30, got %s", got.String())
	}
}
