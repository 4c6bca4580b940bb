package handshake

import (
	"errors"

	dragonboatLogger "github.com/lni/dragonboat/v4/logger"
)

var logger = dragonboatLogger.GetLogger("handshake")

var (
	// ErrNotConnected is returned by Send before the handshake finished or after the connection closed
	ErrNotConnected = errors.New("not connected")
	// ErrUnknownConnection is returned for connection ids the server does not know
	ErrUnknownConnection = errors.New("unknown connection")
)

// Refusal reasons sent by the server
const (
	ReasonInvalidCredentials = "invalid credentials"
	ReasonUnsupportedVersion = "unsupported protocol version"
	ReasonServerFull         = "server full"
)

// State is the state of a handshake
type State uint8

const (
	StateInitial State = iota
	StateWaitingForHello
	StateConnected
	StateDisconnected
)

var stateNames = [...]string{
	StateInitial:         "INITIAL",
	StateWaitingForHello: "WAITING_FOR_HELLO",
	StateConnected:       "CONNECTED",
	StateDisconnected:    "DISCONNECTED",
}

// String returns the string representation of the state
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "UNKNOWN"
}

// CanTransition reports whether the machine may move from s to next
func (s State) CanTransition(next State) bool {
	switch s {
	case StateInitial:
		return next == StateWaitingForHello
	case StateWaitingForHello:
		return next == StateConnected || next == StateDisconnected
	case StateConnected:
		return next == StateDisconnected
	case StateDisconnected:
		return false
	default:
		return false
	}
}

// fsm holds a state and enforces the transition table
type fsm struct {
	state State
}

// transition moves to next or panics if the move is illegal
func (f *fsm) transition(next State) {
	if !f.state.CanTransition(next) {
		logger.Panicf("illegal handshake transition %s -> %s", f.state, next)
	}
	f.state = next
}
