package gobayeux

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// BayeuxClient is the low-level protocol client. It owns the session: the
// state machine, the clientId, the current advice and message ids. Each
// method performs exactly one request through the Transport; scheduling and
// retries are left to the caller, normally a Client.
type BayeuxClient struct {
	stateMachine *ConnectionStateMachine
	transport    Transport
	state        *clientState
	messageID    uint64

	connectionTypes []string

	extLock sync.RWMutex
	exts    []MessageExtender

	logger  Logger
	metrics MetricsCollector
}

// NewBayeuxClient initializes a BayeuxClient for the given server. Only the
// transport, logger, connection type, metrics and extension options apply.
func NewBayeuxClient(serverAddress string, opts ...Option) (*BayeuxClient, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	transport, err := buildTransport(serverAddress, options)
	if err != nil {
		return nil, err
	}

	b := newBayeuxClient(transport, options)
	for _, ext := range options.Extensions {
		if err := b.UseExtension(ext); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func newBayeuxClient(transport Transport, options Options) *BayeuxClient {
	logger := options.Logger
	if logger == nil {
		logger = newNullLogger()
	}
	metrics := options.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	connectionTypes := options.SupportedConnectionTypes
	if len(connectionTypes) == 0 {
		connectionTypes = []string{ConnectionTypeLongPolling}
	}

	return &BayeuxClient{
		stateMachine:    NewConnectionStateMachine(),
		transport:       transport,
		state:           newClientState(),
		connectionTypes: connectionTypes,
		logger:          logger,
		metrics:         metrics,
	}
}

func buildTransport(serverAddress string, options Options) (Transport, error) {
	if options.Transport != nil {
		return options.Transport, nil
	}
	client := options.HTTPClient
	if client == nil {
		var err error
		client, err = newDefaultHTTPClient(options.HTTPTransport)
		if err != nil {
			return nil, err
		}
	} else if options.HTTPTransport != nil {
		copied := *client
		copied.Transport = options.HTTPTransport
		client = &copied
	}
	return NewHTTPTransport(client, serverAddress)
}

// State returns the current session state
func (b *BayeuxClient) State() StateRepresentation {
	return b.stateMachine.CurrentState()
}

// ClientID returns the clientId assigned at the last successful handshake,
// or "" when there is none
func (b *BayeuxClient) ClientID() string {
	return b.state.GetClientID()
}

// Advice returns the advice currently in effect
func (b *BayeuxClient) Advice() Advice {
	return b.state.GetAdvice()
}

// Handshake sends the handshake request to the Bayeux Server. Messages the
// server piggybacks on the handshake reply are returned along with it.
func (b *BayeuxClient) Handshake(ctx context.Context) ([]Message, error) {
	logger := b.logger.WithField("at", "handshake")
	start := time.Now()
	logger.Debug("starting")
	if err := b.processEvent(handshakeSent); err != nil {
		logger.WithError(err).Debug("invalid action for current state")
		return nil, HandshakeFailedError{err}
	}

	ms, err := b.buildHandshake()
	if err != nil {
		_ = b.processEvent(handshakeFailed)
		return nil, HandshakeFailedError{err}
	}

	response, err := b.send(ctx, ms)
	if err != nil {
		logger.WithError(err).Debug("error during request")
		_ = b.processEvent(handshakeFailed)
		return nil, HandshakeFailedError{err}
	}

	message, ok := replyTo(ms[0], response)
	if !ok {
		_ = b.processEvent(handshakeFailed)
		return response, HandshakeFailedError{ErrBadChannel}
	}
	b.applyAdvice(message)
	if !message.Successful {
		logger.Debug("handshake refused", "error", message.Error)
		_ = b.processEvent(handshakeFailed)
		return response, newHandshakeError(message.Error)
	}

	connectionType, ok := b.negotiateConnectionType(message.SupportedConnectionTypes)
	if !ok {
		_ = b.processEvent(handshakeFailed)
		return response, HandshakeFailedError{ErrNoSupportedConnectionTypes}
	}
	if message.ClientID == "" {
		_ = b.processEvent(handshakeFailed)
		return response, HandshakeFailedError{ErrMissingClientID}
	}

	b.state.SetSession(message.ClientID, connectionType)
	if err := b.processEvent(handshakeSucceeded); err != nil {
		// Closed while the handshake was in flight.
		b.state.SetSession("", "")
		logger.WithError(err).Debug("session closed during handshake")
		return response, HandshakeFailedError{err}
	}
	logger.WithField("duration", time.Since(start)).Debug("finishing", "clientId", message.ClientID)
	return response, nil
}

func (b *BayeuxClient) buildHandshake() ([]Message, error) {
	builder := NewHandshakeRequestBuilder()
	if err := builder.AddVersion(ProtocolVersion); err != nil {
		return nil, err
	}
	if err := builder.AddMinimumVersion(MinimumProtocolVersion); err != nil {
		return nil, err
	}
	for _, ct := range b.connectionTypes {
		if err := builder.AddSupportedConnectionType(ct); err != nil {
			return nil, err
		}
	}
	return builder.Build()
}

// negotiateConnectionType picks our first connection type the server also
// offers. A server that lists none is assumed to accept our preferred one.
func (b *BayeuxClient) negotiateConnectionType(offered []string) (string, bool) {
	if len(offered) == 0 {
		return b.connectionTypes[0], true
	}
	for _, ours := range b.connectionTypes {
		for _, theirs := range offered {
			if ours == theirs {
				return ours, true
			}
		}
	}
	return "", false
}

// Connect sends the connect request to the Bayeux Server. The protocol
// says that clients MUST maintain only one outstanding connect request. See
// https://docs.cometd.org/current/reference/#_bayeux_meta_connect
//
// The whole reply batch is returned, connect acknowledgement included, so
// the caller can deliver any data messages it carries.
func (b *BayeuxClient) Connect(ctx context.Context) ([]Message, error) {
	logger := b.logger.WithField("at", "connect")
	start := time.Now()
	logger.Debug("starting")
	clientID, connectionType := b.state.GetSession()
	if clientID == "" {
		return nil, ConnectionFailedError{ErrClientNotConnected}
	}
	if err := b.processEvent(connectSent); err != nil {
		logger.WithError(err).Debug("invalid action for current state")
		return nil, ConnectionFailedError{err}
	}

	builder := NewConnectRequestBuilder()
	builder.AddClientID(clientID)
	if err := builder.AddConnectionType(connectionType); err != nil {
		_ = b.processEvent(connectFailed)
		return nil, ConnectionFailedError{err}
	}
	ms, err := builder.Build()
	if err != nil {
		_ = b.processEvent(connectFailed)
		return nil, ConnectionFailedError{err}
	}

	response, err := b.send(ctx, ms)
	if err != nil {
		logger.WithError(err).Debug("error during request")
		_ = b.processEvent(connectFailed)
		return nil, ConnectionFailedError{err}
	}

	ack, ok := replyTo(ms[0], response)
	if !ok {
		_ = b.processEvent(connectFailed)
		return response, ConnectionFailedError{ErrMissingResponse}
	}
	b.applyAdvice(ack)
	if !ack.Successful {
		_ = b.processEvent(connectFailed)
		return response, ConnectionFailedError{&ProtocolError{Channel: MetaConnect, Message: ack.Error}}
	}

	_ = b.processEvent(connectSucceeded)
	logger.WithField("duration", time.Since(start)).Debug("finishing", "messages", len(response))
	return response, nil
}

// Subscribe issues a MetaSubscribe request to the server to subscribe to the
// channels in the subscriptions slice. The returned error lists only the
// channels the server refused.
func (b *BayeuxClient) Subscribe(ctx context.Context, subscriptions []Channel) ([]Message, error) {
	logger := b.logger.WithField("at", "subscribe")
	start := time.Now()
	logger.Debug("starting", "channels", subscriptions)
	clientID := b.state.GetClientID()
	if !b.stateMachine.IsConnected() || clientID == "" {
		logger.Debug("cannot subscribe because client is not connected")
		return nil, SubscriptionFailedError{subscriptions, ErrClientNotConnected}
	}

	builder := NewSubscribeRequestBuilder()
	builder.AddClientID(clientID)
	for _, s := range subscriptions {
		if err := builder.AddSubscription(s); err != nil {
			return nil, SubscriptionFailedError{subscriptions, err}
		}
	}

	ms, err := builder.Build()
	if err != nil {
		return nil, SubscriptionFailedError{subscriptions, err}
	}

	response, err := b.send(ctx, ms)
	if err != nil {
		return nil, SubscriptionFailedError{subscriptions, err}
	}

	failed, reason := b.collectFailures(ms, response)
	if len(failed) > 0 {
		return response, SubscriptionFailedError{
			Channels: failed,
			Err:      newSubscribeError(reason),
		}
	}
	logger.WithField("duration", time.Since(start)).Debug("finishing")
	return response, nil
}

// Unsubscribe issues a MetaUnsubscribe request to the server to unsubscribe
// from the channels in the subscriptions slice
func (b *BayeuxClient) Unsubscribe(ctx context.Context, subscriptions []Channel) ([]Message, error) {
	logger := b.logger.WithField("at", "unsubscribe")
	start := time.Now()
	logger.Debug("starting", "channels", subscriptions)
	clientID := b.state.GetClientID()
	if !b.stateMachine.IsConnected() || clientID == "" {
		return nil, UnsubscribeFailedError{subscriptions, ErrClientNotConnected}
	}

	builder := NewUnsubscribeRequestBuilder()
	builder.AddClientID(clientID)
	for _, s := range subscriptions {
		if err := builder.AddSubscription(s); err != nil {
			return nil, UnsubscribeFailedError{subscriptions, err}
		}
	}

	ms, err := builder.Build()
	if err != nil {
		return nil, UnsubscribeFailedError{subscriptions, err}
	}

	response, err := b.send(ctx, ms)
	if err != nil {
		return nil, UnsubscribeFailedError{subscriptions, err}
	}

	failed, reason := b.collectFailures(ms, response)
	if len(failed) > 0 {
		return response, UnsubscribeFailedError{
			Channels: failed,
			Err:      newUnsubscribeError(reason),
		}
	}
	logger.WithField("duration", time.Since(start)).Debug("finishing")
	return response, nil
}

// collectFailures matches every subscription request with its reply and
// returns the channels that were refused or left unanswered.
func (b *BayeuxClient) collectFailures(requests, response []Message) ([]Channel, string) {
	var failed []Channel
	reason := ""
	for _, request := range requests {
		reply, ok := replyTo(request, response)
		if !ok {
			failed = append(failed, request.Subscription)
			reason = ErrMissingResponse.Error()
			continue
		}
		b.applyAdvice(reply)
		if !reply.Successful {
			failed = append(failed, request.Subscription)
			reason = reply.Error
		}
	}
	return failed, reason
}

// Disconnect sends a /meta/disconnect request to the Bayeux server to
// terminate the session. The session is DISCONNECTED once this returns,
// whatever the server answered; calling it again sends nothing.
func (b *BayeuxClient) Disconnect(ctx context.Context) ([]Message, error) {
	logger := b.logger.WithField("at", "disconnect")
	if b.stateMachine.IsDisconnected() {
		return nil, nil
	}
	clientID := b.state.GetClientID()
	_ = b.processEvent(disconnectSent)
	b.state.SetSession("", "")
	if clientID == "" {
		logger.Debug("never handshook, nothing to send")
		return nil, nil
	}

	builder := NewDisconnectRequestBuilder()
	builder.AddClientID(clientID)
	ms, err := builder.Build()
	if err != nil {
		return nil, DisconnectFailedError{err}
	}

	response, err := b.send(ctx, ms)
	if err != nil {
		logger.WithError(err).Debug("error during request")
		return nil, DisconnectFailedError{err}
	}

	reply, ok := replyTo(ms[0], response)
	if !ok {
		return response, DisconnectFailedError{ErrMissingResponse}
	}
	if !reply.Successful {
		return response, DisconnectFailedError{&ProtocolError{Channel: MetaDisconnect, Message: reply.Error}}
	}
	return response, nil
}

// Close moves the session to DISCONNECTED without telling the server. It is
// used once the server advised against reconnecting or retries ran out.
func (b *BayeuxClient) Close() {
	if b.stateMachine.IsDisconnected() {
		return
	}
	_ = b.processEvent(disconnectSent)
	b.state.SetSession("", "")
}

// Rehandshake drops the clientId so the next step is a new handshake
func (b *BayeuxClient) Rehandshake() error {
	b.state.SetSession("", "")
	return b.processEvent(rehandshake)
}

// UseExtension adds the provided MessageExtender to the list of known
// extensions
func (b *BayeuxClient) UseExtension(ext MessageExtender) error {
	b.extLock.Lock()
	defer b.extLock.Unlock()
	for _, registered := range b.exts {
		if ext == registered {
			return AlreadyRegisteredError{ext}
		}
	}
	b.exts = append(b.exts, ext)
	ext.Registered(fmt.Sprintf("%T", ext), b)
	return nil
}

// RemoveExtension unregisters a MessageExtender
func (b *BayeuxClient) RemoveExtension(ext MessageExtender) {
	b.extLock.Lock()
	defer b.extLock.Unlock()
	for i, registered := range b.exts {
		if ext == registered {
			b.exts = append(b.exts[:i], b.exts[i+1:]...)
			ext.Unregistered()
			return
		}
	}
}

func (b *BayeuxClient) extensions() []MessageExtender {
	b.extLock.RLock()
	defer b.extLock.RUnlock()
	return append([]MessageExtender(nil), b.exts...)
}

// send stamps ids on the batch, runs the extensions and performs the request.
// ms is updated in place so callers can correlate replies by id.
func (b *BayeuxClient) send(ctx context.Context, ms []Message) ([]Message, error) {
	exts := b.extensions()
	for i := range ms {
		ms[i].ID = b.nextMessageID()
		for _, ext := range exts {
			ext.Outgoing(&ms[i])
		}
	}

	start := time.Now()
	response, err := b.transport.Send(ctx, ms)
	b.metrics.ObserveRequest(ms[0].Channel, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	for i := range response {
		for _, ext := range exts {
			ext.Incoming(&response[i])
		}
	}
	return response, nil
}

func (b *BayeuxClient) nextMessageID() string {
	return strconv.FormatUint(atomic.AddUint64(&b.messageID, 1), 10)
}

func (b *BayeuxClient) applyAdvice(m Message) {
	if m.Advice != nil {
		b.state.SetAdvice(*m.Advice)
	}
}

func (b *BayeuxClient) processEvent(e Event) error {
	if err := b.stateMachine.ProcessEvent(e); err != nil {
		return err
	}
	b.metrics.ObserveState(b.stateMachine.CurrentState())
	return nil
}

// replyTo finds the reply to request in a response batch. Servers echo the
// id so that is tried first; otherwise the first reply on the same meta
// channel (and subscription, for subscribe requests) is used.
func replyTo(request Message, response []Message) (Message, bool) {
	if request.ID != "" {
		for _, m := range response {
			if m.ID == request.ID && m.Channel == request.Channel {
				return m, true
			}
		}
	}
	for _, m := range response {
		if m.Channel != request.Channel {
			continue
		}
		if request.Subscription != emptyChannel && m.Subscription != emptyChannel && m.Subscription != request.Subscription {
			continue
		}
		if m.ID != "" && request.ID != "" && m.ID != request.ID {
			continue
		}
		return m, true
	}
	return Message{}, false
}

func defaultAdvice() Advice {
	return Advice{
		Reconnect: ReconnectRetry,
		Timeout:   int(defaultAdviceTimeout / time.Millisecond),
	}
}

type clientState struct {
	lock           sync.RWMutex
	clientID       string
	connectionType string
	advice         Advice
}

func newClientState() *clientState {
	return &clientState{advice: defaultAdvice()}
}

func (cs *clientState) GetClientID() string {
	cs.lock.RLock()
	defer cs.lock.RUnlock()
	return cs.clientID
}

func (cs *clientState) GetSession() (string, string) {
	cs.lock.RLock()
	defer cs.lock.RUnlock()
	return cs.clientID, cs.connectionType
}

func (cs *clientState) SetSession(clientID, connectionType string) {
	cs.lock.Lock()
	defer cs.lock.Unlock()
	cs.clientID = clientID
	cs.connectionType = connectionType
}

func (cs *clientState) GetAdvice() Advice {
	cs.lock.RLock()
	defer cs.lock.RUnlock()
	return cs.advice
}

func (cs *clientState) SetAdvice(advice Advice) {
	cs.lock.Lock()
	defer cs.lock.Unlock()
	cs.advice = advice
}
