package session

// ConnState is the connection lifecycle state of a Session.
//
// Transitions: Idle → Connecting on Connect; Connecting → Open on a
// successful handshake; Open → Reconnecting on unexpected close;
// Reconnecting → Connecting on a retry attempt; any state → Closed on an
// explicit Close; Reconnecting → Closed once the attempt budget is spent.
type ConnState int

const (
	StateIdle ConnState = iota
	StateConnecting
	StateOpen
	StateReconnecting
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
