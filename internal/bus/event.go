package bus

import "time"

// Event is a change notification published on the bus. Kind is a dot-
// separated name (e.g. "change.messages.insert"); subscribers match on a
// prefix of it.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
