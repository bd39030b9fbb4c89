package client

// Status represents the state of the connection lifecycle. At most one
// live socket exists per client; the status describes where that socket
// (or its absence) sits in the lifecycle.
type Status int

// Possible connection statuses.
const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusAuthenticating
	StatusReady
	StatusReconnecting
	StatusDraining
	StatusClosed
)

// String returns the string representation of Status.
func (s Status) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusAuthenticating:
		return "authenticating"
	case StatusReady:
		return "ready"
	case StatusReconnecting:
		return "reconnecting"
	case StatusDraining:
		return "draining"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}
