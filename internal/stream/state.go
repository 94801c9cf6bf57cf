package stream

import "time"

// State is the live-connection lifecycle of a Client.
type State int32

const (
	Disconnected State = iota
	Connecting
	Open
	Closing
	ReconnectPending
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case ReconnectPending:
		return "reconnect-pending"
	default:
		return "disconnected"
	}
}

// Backoff returns the delay before retry n: base*n, never above ceiling.
// Both connect failures and abnormal closes use this linear rule.
func Backoff(base, ceiling time.Duration, n int) time.Duration {
	if n <= 0 || base <= 0 {
		return 0
	}
	d := base * time.Duration(n)
	if d/time.Duration(n) != base || (ceiling > 0 && d > ceiling) {
		return ceiling
	}
	return d
}
