package client

// EventKind tags the lifecycle notifications a client emits.
type EventKind int

// Event kinds.
const (
	// EventConnected fires once after the initial connect succeeds.
	EventConnected EventKind = iota

	// EventDisconnected fires when a live connection is lost and a
	// reconnect is about to start.
	EventDisconnected

	// EventReconnected fires when a reconnect attempt reaches Ready.
	EventReconnected

	// EventConnectionLost fires when the reconnect budget is exhausted
	// and the client transitions to Closed.
	EventConnectionLost

	// EventSlowConsumer fires when a subscription's pending queue
	// overflows and old messages are dropped.
	EventSlowConsumer

	// EventError fires for asynchronous broker errors that do not tear
	// down the connection.
	EventError

	// EventClosed fires exactly once when the client reaches Closed.
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventReconnected:
		return "reconnected"
	case EventConnectionLost:
		return "connection_lost"
	case EventSlowConsumer:
		return "slow_consumer"
	case EventError:
		return "error"
	case EventClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Event is one lifecycle notification. Fields beyond Kind are populated
// where they apply: Err for error-carrying events, URL for connection
// events, Subscription for slow-consumer events.
type Event struct {
	Kind         EventKind
	Err          error
	URL          string
	Subscription *Subscription
}

// emit delivers an event without ever blocking the caller. The event
// channel is bounded; when no reader is keeping up the event is dropped.
func (c *Client) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
	}
}

// Events returns the lifecycle event stream. The channel is never closed
// while the client is open; EventClosed is the final event.
func (c *Client) Events() <-chan Event {
	return c.events
}
