package bridge

import "sync/atomic"

// LinkState describes the current status of one side's connection.
type LinkState int32

const (
	StateDisconnected LinkState = iota
	StateConnecting
	StateConnected
	StateClosing
)

func (s LinkState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return "disconnected"
	}
}

// linkState is an atomically updated LinkState, read by observers while the
// owning handler transitions it.
type linkState struct {
	v atomic.Int32
}

func (s *linkState) get() LinkState {
	return LinkState(s.v.Load())
}

func (s *linkState) set(next LinkState) {
	s.v.Store(int32(next))
}
