package gobayeux

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// pollLoop drives one session: handshake, the connect cycle, pending
// subscription changes and retries. Everything here runs on the single
// goroutine started by Client.Start, so its fields need no locking.
type pollLoop struct {
	bayeux     *BayeuxClient
	registry   *ChannelRegistry
	dispatcher *Dispatcher
	options    Options
	logger     Logger
	wake       <-chan struct{}
	sleep      func(context.Context, time.Duration) bool

	backoff *backoff
	// serverSubs holds the patterns the server acknowledged for the current
	// clientId; refused holds the ones it turned down with advice.
	serverSubs map[Channel]bool
	refused    map[Channel]bool
	// connectFailures counts consecutive failed connects since the last
	// handshake; attempts counts failures of any request since the last
	// successful connect.
	connectFailures int
	attempts        int
}

type connectResult struct {
	messages []Message
	err      error
}

func (l *pollLoop) run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		var err error
		switch l.bayeux.State() {
		case DisconnectedState:
			return nil
		case UnconnectedState:
			err = l.handshake(ctx)
		default:
			err = l.connect(ctx)
		}
		if err != nil {
			return err
		}
	}
}

func (l *pollLoop) handshake(ctx context.Context) error {
	ms, err := l.bayeux.Handshake(ctx)
	if ctx.Err() != nil {
		return nil
	}
	l.dispatcher.DeliverBatch(ctx, ms)
	if err != nil {
		if l.bayeux.State() == DisconnectedState {
			return nil
		}
		advice := l.bayeux.Advice()
		if advice.MustNotRetryOrHandshake() {
			l.logger.WithError(err).Warn("handshake refused and server advised against reconnecting")
			return ErrReconnectNone
		}
		return l.retry(ctx, err, advice.IntervalAsDuration())
	}

	l.logger.Info("handshake succeeded", "clientId", l.bayeux.ClientID())
	// attempts and the backoff only reset once a connect succeeds.
	l.serverSubs = make(map[Channel]bool)
	l.refused = make(map[Channel]bool)
	l.connectFailures = 0
	if err := l.flushSubscriptions(ctx); err != nil {
		return l.handshakeAgain(ctx, err)
	}
	return nil
}

// connect performs one connect cycle. Subscription changes made while the
// long poll is outstanding are sent on a separate request.
func (l *pollLoop) connect(ctx context.Context) error {
	if err := l.flushSubscriptions(ctx); err != nil {
		return l.handshakeAgain(ctx, err)
	}

	advice := l.bayeux.Advice()
	timeout := advice.TimeoutAsDuration()
	if timeout <= 0 {
		timeout = defaultAdviceTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout+l.options.RequestGrace)
	defer cancel()

	result := make(chan connectResult, 1)
	go func() {
		ms, err := l.bayeux.Connect(reqCtx)
		result <- connectResult{ms, err}
	}()

	for {
		select {
		case r := <-result:
			return l.handleConnect(ctx, r.messages, r.err)
		case <-l.wake:
			if err := l.flushSubscriptions(ctx); err != nil {
				cancel()
				<-result
				return l.handshakeAgain(ctx, err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (l *pollLoop) handleConnect(ctx context.Context, ms []Message, err error) error {
	// Messages ride along with failed acks too; deliver them either way.
	l.dispatcher.DeliverBatch(ctx, ms)
	if ctx.Err() != nil {
		return nil
	}

	advice := l.bayeux.Advice()
	if err == nil {
		l.connectFailures = 0
		l.attempts = 0
		l.backoff.Reset()
		if interval := advice.IntervalAsDuration(); interval > 0 {
			l.sleep(ctx, interval)
		}
		return nil
	}

	if l.bayeux.State() == DisconnectedState {
		return nil
	}

	var protocolErr *ProtocolError
	switch {
	case advice.MustNotRetryOrHandshake():
		l.logger.WithError(err).Warn("connect failed and server advised against reconnecting")
		return ErrReconnectNone
	case advice.ShouldHandshake():
		l.logger.WithError(err).Info("server advised a new handshake")
		l.rehandshake()
		return l.retry(ctx, err, advice.IntervalAsDuration())
	case errors.As(err, &protocolErr) && !ackHasAdvice(ms):
		l.logger.WithError(err).Info("connect refused without advice, handshaking again")
		l.rehandshake()
		return l.retry(ctx, err, 0)
	}

	l.connectFailures++
	if threshold := l.options.ConnectFailureThreshold; threshold > 0 && l.connectFailures >= threshold {
		l.logger.WithError(err).Warn("too many failed connects, handshaking again", "failures", l.connectFailures)
		l.rehandshake()
	}
	return l.retry(ctx, err, advice.IntervalAsDuration())
}

// handshakeAgain drops the session after the server refused a subscription
// without advice
func (l *pollLoop) handshakeAgain(ctx context.Context, err error) error {
	if l.bayeux.State() == DisconnectedState || ctx.Err() != nil {
		return nil
	}
	l.logger.WithError(err).Info("subscription refused without advice, handshaking again")
	l.rehandshake()
	return l.retry(ctx, err, 0)
}

func (l *pollLoop) rehandshake() {
	l.connectFailures = 0
	if err := l.bayeux.Rehandshake(); err != nil {
		l.logger.WithError(err).Debug("rehandshake rejected")
	}
}

// retry waits out the backoff delay, or the advised interval when that is
// longer. It returns a RetriesExhaustedError once MaxRetries is passed.
func (l *pollLoop) retry(ctx context.Context, cause error, minimum time.Duration) error {
	l.attempts++
	if max := l.options.MaxRetries; max > 0 && l.attempts > max {
		return RetriesExhaustedError{Attempts: l.attempts, Err: cause}
	}

	delay := l.backoff.Next()
	if minimum > delay {
		delay = minimum
	}
	l.logger.WithError(cause).Warn("request failed, backing off", "delay", delay, "attempt", l.attempts)
	l.sleep(ctx, delay)
	return nil
}

// flushSubscriptions brings the server in line with the registry: patterns
// without a server subscription are subscribed and server subscriptions
// without a local callback are dropped. Meta patterns stay local.
//
// A refusal that carries advice is remembered until the next handshake. One
// without advice is returned as a *ProtocolError and the session has to
// handshake again.
func (l *pollLoop) flushSubscriptions(ctx context.Context) error {
	state := l.bayeux.State()
	if state != ConnectedState && state != ConnectingState {
		return nil
	}

	var add, remove []Channel
	for _, pattern := range l.registry.Patterns() {
		if pattern.Type() == MetaChannel || l.serverSubs[pattern] || l.refused[pattern] {
			continue
		}
		add = append(add, pattern)
	}
	for pattern := range l.serverSubs {
		if !l.registry.Has(pattern) {
			remove = append(remove, pattern)
		}
	}
	for pattern := range l.refused {
		if !l.registry.Has(pattern) {
			delete(l.refused, pattern)
		}
	}
	sort.Slice(remove, func(i, j int) bool { return remove[i] < remove[j] })

	if len(add) > 0 {
		ms, err := l.bayeux.Subscribe(ctx, add)
		l.dispatcher.DeliverBatch(ctx, ms)
		failed := map[Channel]bool{}
		var unadvised []Channel
		var subErr SubscriptionFailedError
		if err != nil {
			l.logger.WithError(err).Warn("subscribe failed", "channels", add)
			if errors.As(err, &subErr) && ms != nil {
				for _, ch := range subErr.Channels {
					failed[ch] = true
					reply, ok := subscribeRefusal(ms, ch)
					switch {
					case !ok:
						// Unanswered; asked again on the next flush.
					case reply.Advice != nil:
						l.refused[ch] = true
					default:
						unadvised = append(unadvised, ch)
					}
				}
			} else {
				for _, ch := range add {
					failed[ch] = true
				}
			}
		}
		for _, ch := range add {
			if !failed[ch] {
				l.serverSubs[ch] = true
			}
		}
		if len(unadvised) > 0 {
			return &ProtocolError{
				Channel: MetaSubscribe,
				Message: fmt.Sprintf("subscription to %v refused (%s)", unadvised, subErr.Err),
			}
		}
	}

	if len(remove) > 0 {
		ms, err := l.bayeux.Unsubscribe(ctx, remove)
		l.dispatcher.DeliverBatch(ctx, ms)
		if err != nil {
			l.logger.WithError(err).Warn("unsubscribe failed", "channels", remove)
			if ms == nil {
				return nil
			}
		}
		// A refused unsubscribe leaves nothing to undo locally.
		for _, ch := range remove {
			delete(l.serverSubs, ch)
		}
	}
	return nil
}

func subscribeRefusal(ms []Message, ch Channel) (Message, bool) {
	for _, m := range ms {
		if m.Channel == MetaSubscribe && m.Subscription == ch && !m.Successful {
			return m, true
		}
	}
	return Message{}, false
}

func ackHasAdvice(ms []Message) bool {
	for _, m := range ms {
		if m.Channel == MetaConnect {
			return m.Advice != nil
		}
	}
	return false
}

// sleepContext waits for d and reports whether it did so before ctx was done
func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
