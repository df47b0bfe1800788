package gobayeux

import (
	"strconv"
	"strings"
)

func validConnectionType(connectionType string) bool {
	switch connectionType {
	case ConnectionTypeCallbackPolling, ConnectionTypeLongPolling, ConnectionTypeIFrame:
		return true
	}
	return false
}

func validVersion(version string) bool {
	if len(version) < 1 {
		return false
	}
	pieces := strings.SplitN(version, ".", 2)
	_, err := strconv.Atoi(pieces[0])
	return err == nil
}

// HandshakeRequestBuilder provides a way to safely and confidently create
// handshake requests to /meta/handshake.
//
// See also: https://docs.cometd.org/current/reference/#_handshake_request
type HandshakeRequestBuilder struct {
	// Required fields
	version                  string
	supportedConnectionTypes []string
	// Optional fields
	minimumVersion string
}

// NewHandshakeRequestBuilder provides an easy way to build a Message that can
// be sent as a Handshake Request as documented in
// https://docs.cometd.org/current/reference/#_handshake_request
func NewHandshakeRequestBuilder() *HandshakeRequestBuilder {
	return &HandshakeRequestBuilder{
		supportedConnectionTypes: make([]string, 0),
	}
}

// AddSupportedConnectionType accepts a string and will add it to the list of
// supported connection types for the /meta/handshake request. It validates
// the connection type and de-duplicates.
func (b *HandshakeRequestBuilder) AddSupportedConnectionType(connectionType string) error {
	if !validConnectionType(connectionType) {
		return BadConnectionTypeError{connectionType}
	}
	for _, ct := range b.supportedConnectionTypes {
		if ct == connectionType {
			return nil
		}
	}
	b.supportedConnectionTypes = append(b.supportedConnectionTypes, connectionType)
	return nil
}

// AddVersion accepts the version of the Bayeux protocol that the client
// supports.
func (b *HandshakeRequestBuilder) AddVersion(version string) error {
	if !validVersion(version) {
		return BadConnectionVersionError{version}
	}
	b.version = version
	return nil
}

// AddMinimumVersion adds the minimum supported version
func (b *HandshakeRequestBuilder) AddMinimumVersion(version string) error {
	if !validVersion(version) {
		return BadConnectionVersionError{version}
	}
	b.minimumVersion = version
	return nil
}

// Build generates the final Message to be sent as a Handshake Request
func (b *HandshakeRequestBuilder) Build() ([]Message, error) {
	if len(b.supportedConnectionTypes) < 1 {
		return nil, ErrNoSupportedConnectionTypes
	}
	if len(b.version) == 0 {
		return nil, ErrNoVersion
	}
	m := Message{
		Channel:                  MetaHandshake,
		Version:                  b.version,
		MinimumVersion:           b.minimumVersion,
		SupportedConnectionTypes: b.supportedConnectionTypes,
	}
	return []Message{m}, nil
}

// ConnectRequestBuilder provides a way to safely build a Message that can be
// sent as a /meta/connect request as documented in
// https://docs.cometd.org/current/reference/#_connect_request
type ConnectRequestBuilder struct {
	clientID       string
	connectionType string
}

// NewConnectRequestBuilder initializes a ConnectRequestBuilder as an easy way
// to build a Message that can be sent as a /meta/connect request.
func NewConnectRequestBuilder() *ConnectRequestBuilder {
	return &ConnectRequestBuilder{}
}

// AddClientID adds the previously provided clientId to the request
func (b *ConnectRequestBuilder) AddClientID(clientID string) {
	b.clientID = clientID
}

// AddConnectionType adds the connection type used by the client for the
// purposes of this connection to the request
func (b *ConnectRequestBuilder) AddConnectionType(connectionType string) error {
	if !validConnectionType(connectionType) {
		return BadConnectionTypeError{connectionType}
	}
	b.connectionType = connectionType
	return nil
}

// Build generates the final Message to be sent as a Connect Request
func (b *ConnectRequestBuilder) Build() ([]Message, error) {
	if b.clientID == "" {
		return nil, ErrMissingClientID
	}

	if b.connectionType == "" {
		return nil, ErrMissingConnectionType
	}

	return []Message{{
		Channel:        MetaConnect,
		ClientID:       b.clientID,
		ConnectionType: b.connectionType,
	}}, nil
}

// subscriptionBuilder is shared by the subscribe and unsubscribe builders;
// they only differ in the channel they target.
type subscriptionBuilder struct {
	channel      Channel
	clientID     string
	subscription []Channel
}

func (b *subscriptionBuilder) AddClientID(clientID string) {
	b.clientID = clientID
}

func (b *subscriptionBuilder) AddSubscription(c Channel) error {
	if !c.IsValid() {
		return InvalidChannelError{c}
	}

	for _, s := range b.subscription {
		if s == c {
			return nil
		}
	}
	b.subscription = append(b.subscription, c)
	return nil
}

// Build emits one message per channel so every subscription gets its own
// reply.
func (b *subscriptionBuilder) Build() ([]Message, error) {
	if b.clientID == "" {
		return nil, ErrMissingClientID
	}

	if len(b.subscription) < 1 {
		return nil, EmptySliceError("subscriptions")
	}

	ms := make([]Message, len(b.subscription))
	for i := range b.subscription {
		ms[i] = Message{
			Channel:      b.channel,
			ClientID:     b.clientID,
			Subscription: b.subscription[i],
		}
	}
	return ms, nil
}

// SubscribeRequestBuilder provides an easy way to build a /meta/subscribe
// request per the Bayeux protocol in
// https://docs.cometd.org/current/reference/#_subscribe_request
type SubscribeRequestBuilder struct {
	subscriptionBuilder
}

// NewSubscribeRequestBuilder initializes a SubscribeRequestBuilder
func NewSubscribeRequestBuilder() *SubscribeRequestBuilder {
	return &SubscribeRequestBuilder{subscriptionBuilder{channel: MetaSubscribe}}
}

// UnsubscribeRequestBuilder provides an easy way to build a /meta/unsubscribe
// request per the Bayeux protocol in
// https://docs.cometd.org/current/reference/#_unsubscribe_request
type UnsubscribeRequestBuilder struct {
	subscriptionBuilder
}

// NewUnsubscribeRequestBuilder initializes an UnsubscribeRequestBuilder
func NewUnsubscribeRequestBuilder() *UnsubscribeRequestBuilder {
	return &UnsubscribeRequestBuilder{subscriptionBuilder{channel: MetaUnsubscribe}}
}

// DisconnectRequestBuilder provides an easy way to build a /meta/disconnect
// request per the Bayeux protocol in
// https://docs.cometd.org/current/reference/#_bayeux_meta_disconnect
type DisconnectRequestBuilder struct {
	clientID string
}

// NewDisconnectRequestBuilder initializes a DisconnectRequestBuilder as an
// easy way to build a Message that can be sent as a /meta/disconnect request.
func NewDisconnectRequestBuilder() *DisconnectRequestBuilder {
	return &DisconnectRequestBuilder{}
}

// AddClientID adds the previously provided clientId to the request
func (b *DisconnectRequestBuilder) AddClientID(clientID string) {
	b.clientID = clientID
}

// Build generates the final Message to be sent as a Disconnect Request
func (b *DisconnectRequestBuilder) Build() ([]Message, error) {
	if b.clientID == "" {
		return nil, ErrMissingClientID
	}

	return []Message{{Channel: MetaDisconnect, ClientID: b.clientID}}, nil
}
