package dispatch

import (
	"strings"
	"testing"
)

func TestRender_Confirmed(t *testing.T) {
	msg, ok := Render("booking.appointment.confirmed.v1", map[string]any{
		"day":     "2026-01-07",
		"slot":    "10:00",
		"qr_code": "abc-123",
	})
	if !ok {
		t.Fatal("expected confirmed event to render")
	}
	if msg.Subject != "Appointment confirmed" {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	for _, want := range []string{"2026-01-07", "10:00", "abc-123"} {
		if !strings.Contains(msg.Body, want) {
			t.Fatalf("body missing %q: %s", want, msg.Body)
		}
	}
}

func TestRender_TurnReady(t *testing.T) {
	// JSON decoding delivers numbers as float64.
	msg, ok := Render("queue.turn.ready.v1", map[string]any{"number": float64(7)})
	if !ok {
		t.Fatal("expected turn-ready event to render")
	}
	if !strings.Contains(msg.Body, "Number 7") {
		t.Fatalf("body missing number: %s", msg.Body)
	}
}

func TestRender_UnknownEventSkipped(t *testing.T) {
	if _, ok := Render("billing.invoice.created.v1", nil); ok {
		t.Fatal("unknown event types must not render")
	}
}

func TestRender_MissingFieldsDoNotPanic(t *testing.T) {
	msg, ok := Render("booking.appointment.cancelled.v1", nil)
	if !ok {
		t.Fatal("expected cancelled event to render")
	}
	if !strings.Contains(msg.Body, "-") {
		t.Fatalf("expected placeholder for missing fields: %s", msg.Body)
	}
}
