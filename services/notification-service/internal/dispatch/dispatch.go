package dispatch

import (
	"fmt"
	"strings"
)

// Message is a rendered notification ready for any channel; SMS uses Body
// only.
type Message struct {
	Subject string
	Body    string
}

// Render builds the user-facing text for a consumed event. The second
// return is false for event types this service does not deliver.
func Render(eventType string, payload map[string]any) (Message, bool) {
	switch eventType {
	case "booking.appointment.confirmed.v1":
		return Message{
			Subject: "Appointment confirmed",
			Body: fmt.Sprintf("Your appointment on %s at %s is confirmed. Show code %s at reception.",
				str(payload, "day"), str(payload, "slot"), str(payload, "qr_code")),
		}, true
	case "booking.appointment.cancelled.v1":
		return Message{
			Subject: "Appointment cancelled",
			Body: fmt.Sprintf("The appointment on %s at %s was cancelled.",
				str(payload, "day"), str(payload, "slot")),
		}, true
	case "booking.appointment.rescheduled.v1":
		return Message{
			Subject: "Appointment rescheduled",
			Body: fmt.Sprintf("Your appointment moved to %s at %s.",
				str(payload, "day"), str(payload, "slot")),
		}, true
	case "queue.turn.ready.v1":
		return Message{
			Subject: "It's your turn",
			Body:    fmt.Sprintf("Number %s is being called now. Please come to the desk.", num(payload, "number")),
		}, true
	case "queue.turn.upcoming.v1":
		return Message{
			Subject: "You're almost up",
			Body:    fmt.Sprintf("Number %s will be called soon (%s ahead of you).", num(payload, "number"), num(payload, "ahead")),
		}, true
	default:
		return Message{}, false
	}
}

func str(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return "-"
}

func num(payload map[string]any, key string) string {
	switch v := payload[key].(type) {
	case float64:
		return fmt.Sprintf("%d", int(v))
	case int:
		return fmt.Sprintf("%d", v)
	default:
		return "-"
	}
}
