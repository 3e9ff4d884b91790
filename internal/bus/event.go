package bus

import "time"

// Event is a domain event published on the bus. Kind is a dot-separated
// name such as "inbox.updated", "sync.failed" or "stream.connected";
// subscribers filter on a Kind prefix.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
