package gobayeux

import (
	"sync/atomic"
)

// StateRepresentation represents the current state of a connection as a
// string
type StateRepresentation string

const (
	unconnected int32 = iota
	handshaking
	connected
	connecting
	disconnected
)

const (
	// UnconnectedState is the state before a handshake and after the server
	// asked for a new one
	UnconnectedState StateRepresentation = "UNCONNECTED"
	// HandshakingState is the state while a handshake is in flight
	HandshakingState StateRepresentation = "HANDSHAKING"
	// ConnectedState is the state of a session holding a clientId with no
	// connect request outstanding
	ConnectedState StateRepresentation = "CONNECTED"
	// ConnectingState is the state while a /meta/connect is in flight
	ConnectingState StateRepresentation = "CONNECTING"
	// DisconnectedState is terminal
	DisconnectedState StateRepresentation = "DISCONNECTED"
)

var stateNames = []StateRepresentation{
	UnconnectedState,
	HandshakingState,
	ConnectedState,
	ConnectingState,
	DisconnectedState,
}

func stateName(state int32) string {
	s := int(state)
	if s < 0 || s >= len(stateNames) {
		return "unknown"
	}

	return string(stateNames[s])
}

// Event represents and event that can change the state of a state machine
type Event string

const (
	handshakeSent      Event = "handshake request sent"
	handshakeSucceeded Event = "successful handshake response"
	handshakeFailed    Event = "failed handshake"
	connectSent        Event = "connect request sent"
	connectSucceeded   Event = "successful connect response"
	connectFailed      Event = "failed connect"
	rehandshake        Event = "rehandshake advised"
	disconnectSent     Event = "disconnect request sent"
)

// ConnectionStateMachine handles managing the connection's state
//
// See also: https://docs.cometd.org/current/reference/#_client_state_table
type ConnectionStateMachine struct {
	currentState *int32
}

// NewConnectionStateMachine creates a new ConnectionStateMachine to manage a
// connection's state
func NewConnectionStateMachine() *ConnectionStateMachine {
	defaultState := unconnected
	return &ConnectionStateMachine{&defaultState}
}

// IsConnected reflects whether the session holds a valid clientId, whether or
// not a connect request is outstanding
func (csm *ConnectionStateMachine) IsConnected() bool {
	s := atomic.LoadInt32(csm.currentState)
	return s == connected || s == connecting
}

// IsDisconnected reports whether the terminal state was reached
func (csm *ConnectionStateMachine) IsDisconnected() bool {
	return atomic.LoadInt32(csm.currentState) == disconnected
}

// CurrentState provides a string representation of the current state of the
// state machine
func (csm *ConnectionStateMachine) CurrentState() StateRepresentation {
	currentState := atomic.LoadInt32(csm.currentState)
	switch currentState {
	case handshaking:
		return HandshakingState
	case connected:
		return ConnectedState
	case connecting:
		return ConnectingState
	case disconnected:
		return DisconnectedState
	default:
		return UnconnectedState
	}
}

// ProcessEvent handles an event
func (csm *ConnectionStateMachine) ProcessEvent(e Event) error {
	switch e {
	case handshakeSent:
		if !csm.swap(unconnected, handshaking) {
			return newBadHandshake(csm.load(), unconnected, handshaking)
		}
	case handshakeSucceeded:
		if !csm.swap(handshaking, connected) {
			return newBadHandshake(csm.load(), handshaking, connected)
		}
	case handshakeFailed:
		if !csm.swap(handshaking, unconnected) {
			return newBadHandshake(csm.load(), handshaking, unconnected)
		}
	case connectSent:
		if !csm.swap(connected, connecting) {
			return newBadConnection(csm.load(), connected, connecting)
		}
	case connectSucceeded, connectFailed:
		if !csm.swap(connecting, connected) {
			return newBadConnection(csm.load(), connecting, connected)
		}
	case rehandshake:
		for {
			current := atomic.LoadInt32(csm.currentState)
			if current == disconnected {
				return &BadStateError{
					Message:      "cannot rehandshake a disconnected session",
					CurrentState: current,
					FromState:    current,
					ToState:      unconnected,
				}
			}
			if atomic.CompareAndSwapInt32(csm.currentState, current, unconnected) {
				return nil
			}
		}
	case disconnectSent:
		atomic.StoreInt32(csm.currentState, disconnected)
	default:
		return UnknownEventTypeError{e}
	}
	return nil
}

func (csm *ConnectionStateMachine) swap(from, to int32) bool {
	return atomic.CompareAndSwapInt32(csm.currentState, from, to)
}

func (csm *ConnectionStateMachine) load() int32 {
	return atomic.LoadInt32(csm.currentState)
}
