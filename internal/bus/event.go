package bus

import "time"

// Event represents a domain event published on the bus. Kinds are
// dot-separated names grouped by namespace:
//
//	conn.    connection lifecycle (state changes, reconnect exhaustion)
//	socket.  inbound transport events, one kind per wire event name
//	match.   musician-search state machine snapshots
//	notify.  ingested, deduplicated notifications
//	alert.   platform-level alert requests
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
