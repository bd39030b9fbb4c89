package wire

import "strconv"

// Status is a broker status code carried in the header block of a message
// that has no application payload semantics of its own.
type Status int

const (
	// StatusControl marks flow control and idle heartbeat messages.
	StatusControl Status = 100

	// StatusNoMessages signals an empty pull batch.
	StatusNoMessages Status = 404

	// StatusRequestTimeout signals a pull request that expired server side.
	StatusRequestTimeout Status = 408

	// StatusExceededLimits signals a pull request exceeding consumer limits.
	StatusExceededLimits Status = 409

	// StatusNoResponders signals a request published to a subject with no
	// active subscribers.
	StatusNoResponders Status = 503
)

func (s Status) String() string {
	switch s {
	case StatusControl:
		return "control"
	case StatusNoMessages:
		return "no messages"
	case StatusRequestTimeout:
		return "request timeout"
	case StatusExceededLimits:
		return "exceeded limits"
	case StatusNoResponders:
		return "no responders"
	default:
		return strconv.Itoa(int(s))
	}
}
