package gobayeux

import (
	"fmt"
)

const (
	// ErrClientNotConnected is returned when the client is not connected
	ErrClientNotConnected = sentinel("client not connected to server")

	// ErrClientDisconnected is returned once a client reached its terminal
	// state. A new Client is required to talk to the server again.
	ErrClientDisconnected = sentinel("client has been disconnected")

	// ErrReconnectNone is reported when the server advised reconnect "none"
	ErrReconnectNone = sentinel("server advised against reconnecting")

	// ErrBadChannel is returned when the handshake response is on the wrong channel
	ErrBadChannel = sentinel("handshake responses must come back via the /meta/handshake channel")

	// ErrMissingResponse is returned when a request's reply is absent from
	// the response batch
	ErrMissingResponse = sentinel("no response to request in reply batch")

	// ErrNoSupportedConnectionTypes is returned when the client and server
	// aren't able to agree on a connection type
	ErrNoSupportedConnectionTypes = sentinel("no supported connection types provided")

	// ErrNoVersion is returned when a version is not provided
	ErrNoVersion = sentinel("no version specified")

	// ErrMissingClientID is returned when the client id has not been set
	ErrMissingClientID = sentinel("missing clientID value")

	// ErrMissingConnectionType is returned when the connection type is unset
	ErrMissingConnectionType = sentinel("missing connectionType value")

	// ErrNilCallback is returned when registering a nil callback
	ErrNilCallback = sentinel("callback must not be nil")

	// ErrCallbackTimeout is reported when a callback outlives the dispatch
	// timeout
	ErrCallbackTimeout = sentinel("callback did not return before the dispatch timeout")
)

type sentinel string

func (s sentinel) Error() string {
	return string(s)
}

// TransportErrorKind classifies a TransportError
type TransportErrorKind string

const (
	// TransportNetwork covers dial, read and write failures
	TransportNetwork TransportErrorKind = "network"
	// TransportTimeout is a request that exceeded its deadline
	TransportTimeout TransportErrorKind = "timeout"
	// TransportHTTPStatus is a non-200 response from the server
	TransportHTTPStatus TransportErrorKind = "http_status"
	// TransportMalformedBody is a response body that was not a Bayeux batch
	TransportMalformedBody TransportErrorKind = "malformed_body"
)

// TransportError is returned by a Transport when it could not obtain and
// decode a response
type TransportError struct {
	Kind TransportErrorKind
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s error (%s)", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError is returned when the server answers a meta request with
// successful=false and gives no advice on how to proceed
type ProtocolError struct {
	Channel Channel
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s was not successful: %s", e.Channel, e.Message)
}

// ConnectionFailedError is returned whenever Connect is called and it fails
type ConnectionFailedError struct {
	Err error
}

func (e ConnectionFailedError) Error() string {
	return fmt.Sprintf("connection failed (%s)", e.Err)
}

func (e ConnectionFailedError) Unwrap() error {
	return e.Err
}

// HandshakeFailedError is returned whenever the handshake fails
type HandshakeFailedError struct {
	Err error
}

func (e HandshakeFailedError) Error() string {
	return e.Err.Error()
}

func (e HandshakeFailedError) Unwrap() error {
	return e.Err
}

func newHandshakeError(msg string) HandshakeFailedError {
	return HandshakeFailedError{
		&ProtocolError{Channel: MetaHandshake, Message: msg},
	}
}

// SubscriptionFailedError is returned for any errors on Subscribe
type SubscriptionFailedError struct {
	Channels []Channel
	Err      error
}

func (e SubscriptionFailedError) Error() string {
	return fmt.Sprintf("subscription to %v failed (%s)", e.Channels, e.Err)
}

func (e SubscriptionFailedError) Unwrap() error {
	return e.Err
}

// UnsubscribeFailedError is returned for any errors on Unsubscribe
type UnsubscribeFailedError struct {
	Channels []Channel
	Err      error
}

func (e UnsubscribeFailedError) Error() string {
	return fmt.Sprintf("unsubscribe from %v failed (%s)", e.Channels, e.Err)
}

func (e UnsubscribeFailedError) Unwrap() error {
	return e.Err
}

// ActionFailedError is a general purpose error returned by the BayeuxClient
type ActionFailedError struct {
	Action       string
	ErrorMessage string
}

func (e ActionFailedError) Error() string {
	return fmt.Sprintf("unable to %s channels: %s", e.Action, e.ErrorMessage)
}

func newSubscribeError(msg string) *ActionFailedError {
	return &ActionFailedError{"subscribe to", msg}
}

func newUnsubscribeError(msg string) *ActionFailedError {
	return &ActionFailedError{"unsubscribe from", msg}
}

// DisconnectFailedError is returned when the call to Disconnect fails
type DisconnectFailedError struct {
	Err error
}

func (e DisconnectFailedError) Error() string {
	msg := "unable to disconnect from Bayeux server"

	if e.Err == nil {
		return msg
	}

	return fmt.Sprintf("%s (%s)", msg, e.Err)
}

func (e DisconnectFailedError) Unwrap() error {
	return e.Err
}

// RetriesExhaustedError is the terminal error reported once consecutive
// failures pass the configured ceiling
type RetriesExhaustedError struct {
	Attempts int
	Err      error
}

func (e RetriesExhaustedError) Error() string {
	return fmt.Sprintf("giving up after %d failed attempts (%s)", e.Attempts, e.Err)
}

func (e RetriesExhaustedError) Unwrap() error {
	return e.Err
}

// CallbackError wraps a failure raised by a subscriber callback
type CallbackError struct {
	Channel      Channel
	Subscription Channel
	Err          error
}

func (e CallbackError) Error() string {
	return fmt.Sprintf("callback for %s failed on message from %s (%s)", e.Subscription, e.Channel, e.Err)
}

func (e CallbackError) Unwrap() error {
	return e.Err
}

// AlreadyRegisteredError signifies that the given MessageExtender is already
// registered with the client
type AlreadyRegisteredError struct {
	MessageExtender
}

func (e AlreadyRegisteredError) Error() string {
	return fmt.Sprintf("extension already registered: %s", e.MessageExtender)
}

// BadResponseError is returned when we get an unexpected HTTP response from the server
type BadResponseError struct {
	StatusCode int
	Status     string
	Body       []byte
}

func (e BadResponseError) Error() string {
	return fmt.Sprintf(
		"expected 200 response from bayeux server, got %d with status '%s' and body '%s'",
		e.StatusCode,
		e.Status,
		e.Body,
	)
}

// BadConnectionTypeError is returned when we don't know how to handle the
// requested connection type
type BadConnectionTypeError struct {
	ConnectionType string
}

func (e BadConnectionTypeError) Error() string {
	return fmt.Sprintf("%q is not a valid connection type", e.ConnectionType)
}

// BadConnectionVersionError is returned when we can't support the requested
// version number
type BadConnectionVersionError struct {
	Version string
}

func (e BadConnectionVersionError) Error() string {
	return fmt.Sprintf("version %q is invalid for Bayeux protocol", e.Version)
}

// InvalidChannelError is the result of a failure to validate a channel name
type InvalidChannelError struct {
	Channel
}

func (e InvalidChannelError) Error() string {
	return fmt.Sprintf("channel %q appears to not be a valid channel", e.Channel)
}

// EmptySliceError is returned when an empty slice is unexpected
type EmptySliceError string

func (e EmptySliceError) Error() string {
	return fmt.Sprintf("no %s provided", string(e))
}

// ErrMessageUnparsable is returned when we fail to parse a message
type ErrMessageUnparsable string

func (e ErrMessageUnparsable) Error() string {
	return fmt.Sprintf("error message not parseable: %s", string(e))
}

// BadStateError is returned when the state machine transition is not valid
type BadStateError struct {
	CurrentState int32
	FromState    int32
	ToState      int32
	Message      string
}

func (e BadStateError) Error() string {
	return fmt.Sprintf("%s, (current: %s, from: %s, to: %s)", e.Message, stateName(e.CurrentState), stateName(e.FromState), stateName(e.ToState))
}

// BadHandshakeError is returned when trying to handshake but not unconnected
type BadHandshakeError struct {
	*BadStateError
}

func newBadHandshake(current, from, to int32) *BadHandshakeError {
	return &BadHandshakeError{
		&BadStateError{
			Message:      "attempting to handshake but not in unconnected state",
			CurrentState: current,
			FromState:    from,
			ToState:      to,
		},
	}
}

// BadConnectionError is returned when a connect transition is attempted from
// the wrong state
type BadConnectionError struct {
	*BadStateError
}

func newBadConnection(current, from, to int32) *BadConnectionError {
	return &BadConnectionError{
		&BadStateError{
			Message:      "invalid state for connect event",
			CurrentState: current,
			FromState:    from,
			ToState:      to,
		},
	}
}

// UnknownEventTypeError is returned when the next state is unknown
type UnknownEventTypeError struct {
	Event
}

func (e UnknownEventTypeError) Error() string {
	return fmt.Sprintf("unknown event type (%q)", e.Event)
}
