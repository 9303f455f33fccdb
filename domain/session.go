package domain

// SessionState is the lifecycle of one live connection.
//
//	connecting -> authenticated <-> joined -> closed
//
// Any state may jump to closed; closed is terminal.
type SessionState int

const (
	StateConnecting SessionState = iota
	StateAuthenticated
	StateJoined
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
