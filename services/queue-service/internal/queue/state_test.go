package queue

import "testing"

func TestPosition(t *testing.T) {
	waiting := []int{3, 5, 8, 12}

	if got := Position(waiting, 3); got != 0 {
		t.Fatalf("lowest number should be next in line, got position %d", got)
	}
	if got := Position(waiting, 8); got != 2 {
		t.Fatalf("expected two ahead of 8, got %d", got)
	}
	if got := Position(waiting, 12); got != 3 {
		t.Fatalf("expected three ahead of 12, got %d", got)
	}
	if got := Position(nil, 1); got != 0 {
		t.Fatalf("empty queue should give position 0, got %d", got)
	}
}

func TestPosition_IgnoresHigherNumbers(t *testing.T) {
	// Served and cancelled turns never appear in the waiting set, so gaps
	// in numbering do not affect position.
	waiting := []int{7, 20}
	if got := Position(waiting, 20); got != 1 {
		t.Fatalf("expected position 1, got %d", got)
	}
}

func TestETAMinutes(t *testing.T) {
	if got := ETAMinutes(0, 10); got != 0 {
		t.Fatalf("next in line waits zero estimated minutes, got %d", got)
	}
	if got := ETAMinutes(3, 10); got != 30 {
		t.Fatalf("expected 30 minutes, got %d", got)
	}
	if got := ETAMinutes(2, 0); got != 2*DefaultAvgServiceMinutes {
		t.Fatalf("expected default average to apply, got %d", got)
	}
}

func TestNextNumber(t *testing.T) {
	if got := NextNumber(nil); got != 1 {
		t.Fatalf("empty queue should start at 1, got %d", got)
	}
	if got := NextNumber([]int{1, 4, 9}); got != 10 {
		t.Fatalf("expected 10, got %d", got)
	}
}
