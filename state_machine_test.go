package gobayeux

import (
	"errors"
	"testing"
)

func TestNewConnectionStateMachineDefaults(t *testing.T) {
	csm := NewConnectionStateMachine()
	if csm.IsConnected() == true {
		t.Error("expected IsConnected() to be false, got true")
	}
	if got := csm.CurrentState(); got != UnconnectedState {
		t.Errorf("expected %s, got %s", UnconnectedState, got)
	}
	*csm.currentState = connected
	if csm.IsConnected() != true {
		t.Error("expected IsConnected() to be true, got false")
	}
	*csm.currentState = connecting
	if csm.IsConnected() != true {
		t.Error("expected IsConnected() to be true while a connect is outstanding")
	}
	*csm.currentState = disconnected
	if !csm.IsDisconnected() {
		t.Error("expected IsDisconnected() to be true")
	}
}

func TestProcessEvent(t *testing.T) {
	testCases := []struct {
		name          string
		startingState int32
		event         Event
		shouldErr     bool
		endingState   int32
	}{
		{
			"unconnected state machine gets handshake request sent event",
			unconnected,
			handshakeSent,
			false,
			handshaking,
		},
		{
			"unconnected state machine gets successful connect response",
			unconnected,
			connectSucceeded,
			true,
			unconnected,
		},
		{
			"unconnected state machine gets unknown event",
			unconnected,
			"random",
			true,
			unconnected,
		},
		{
			"handshaking state machine gets successful handshake",
			handshaking,
			handshakeSucceeded,
			false,
			connected,
		},
		{
			"handshaking state machine gets failed handshake",
			handshaking,
			handshakeFailed,
			false,
			unconnected,
		},
		{
			"handshaking state machine gets second handshake request",
			handshaking,
			handshakeSent,
			true,
			handshaking,
		},
		{
			"connected state machine gets connect request sent",
			connected,
			connectSent,
			false,
			connecting,
		},
		{
			"connected state machine gets rehandshake",
			connected,
			rehandshake,
			false,
			unconnected,
		},
		{
			"connected state machine gets disconnect request sent",
			connected,
			disconnectSent,
			false,
			disconnected,
		},
		{
			"connected state machine gets unknown event",
			connected,
			"random",
			true,
			connected,
		},
		{
			"connecting state machine gets successful connect response",
			connecting,
			connectSucceeded,
			false,
			connected,
		},
		{
			"connecting state machine gets failed connect",
			connecting,
			connectFailed,
			false,
			connected,
		},
		{
			"connecting state machine gets second connect request",
			connecting,
			connectSent,
			true,
			connecting,
		},
		{
			"connecting state machine gets disconnect request sent",
			connecting,
			disconnectSent,
			false,
			disconnected,
		},
		{
			"disconnected state machine gets handshake request sent",
			disconnected,
			handshakeSent,
			true,
			disconnected,
		},
		{
			"disconnected state machine gets rehandshake",
			disconnected,
			rehandshake,
			true,
			disconnected,
		},
		{
			"disconnected state machine gets late connect response",
			disconnected,
			connectSucceeded,
			true,
			disconnected,
		},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			startingState := tc.startingState
			csm := &ConnectionStateMachine{&startingState}
			err := csm.ProcessEvent(tc.event)
			if tc.shouldErr && err == nil {
				t.Error("expected ProcessEvent to error but it didn't")
			}
			if !tc.shouldErr && err != nil {
				t.Errorf("didn't expect ProcessEvent to error but it did: %q", err)
			}
			if tc.endingState != *csm.currentState {
				t.Errorf("unexpected ending state: want %s, got %s", stateName(tc.endingState), stateName(*csm.currentState))
			}
		})
	}
}

func TestProcessEventErrorTypes(t *testing.T) {
	startingState := connected
	csm := &ConnectionStateMachine{&startingState}

	err := csm.ProcessEvent(handshakeSent)
	var badHandshake *BadHandshakeError
	if !errors.As(err, &badHandshake) {
		t.Fatalf("expected a *BadHandshakeError, got %T", err)
	}
	if badHandshake.CurrentState != connected {
		t.Errorf("expected current state %s in error, got %s", stateName(connected), stateName(badHandshake.CurrentState))
	}

	err = csm.ProcessEvent(connectSucceeded)
	var badConnection *BadConnectionError
	if !errors.As(err, &badConnection) {
		t.Fatalf("expected a *BadConnectionError, got %T", err)
	}

	err = csm.ProcessEvent("random")
	var unknown UnknownEventTypeError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected an UnknownEventTypeError, got %T", err)
	}
}

func TestStateName(t *testing.T) {
	testCases := []struct {
		state int32
		want  string
	}{
		{unconnected, "UNCONNECTED"},
		{handshaking, "HANDSHAKING"},
		{connected, "CONNECTED"},
		{connecting, "CONNECTING"},
		{disconnected, "DISCONNECTED"},
		{42, "unknown"},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.want, func(t *testing.T) {
			if got := stateName(tc.state); got != tc.want {
				t.Errorf("want %s, got %s", tc.want, got)
			}
		})
	}
}
