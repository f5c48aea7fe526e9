package outbox

// Event is an outbound integration event staged in the same transaction
// as the state change that caused it.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}
