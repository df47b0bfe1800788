package gobayeux

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

const errorBufferSize = 16

// Client is a high-level abstraction over BayeuxClient. It runs the
// handshake and long-poll cycle on a background goroutine, keeps the server's
// subscriptions in line with the registered callbacks and recovers from
// failures according to the server's advice.
type Client struct {
	bayeux     *BayeuxClient
	registry   *ChannelRegistry
	dispatcher *Dispatcher
	options    Options
	logger     Logger

	wake  chan struct{}
	sleep func(context.Context, time.Duration) bool

	lock    sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
	errs    chan error

	stopOnce sync.Once
	stopErr  error
}

// NewClient creates a new high-level client
func NewClient(serverAddress string, opts ...Option) (*Client, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = newNullLogger()
	}
	if options.Metrics == nil {
		options.Metrics = nopMetrics{}
	}
	if options.IgnoreError == nil {
		options.IgnoreError = func(error) bool { return false }
	}

	transport, err := buildTransport(serverAddress, options)
	if err != nil {
		return nil, err
	}

	bc := newBayeuxClient(transport, options)
	for _, ext := range options.Extensions {
		if err := bc.UseExtension(ext); err != nil {
			return nil, err
		}
	}

	c := &Client{
		bayeux:   bc,
		registry: NewChannelRegistry(),
		options:  options,
		logger:   options.Logger,
		wake:     make(chan struct{}, 1),
		sleep:    sleepContext,
		done:     make(chan struct{}),
		errs:     make(chan error, errorBufferSize),
	}
	c.dispatcher = NewDispatcher(c.registry, options.DispatchTimeout, c.report)
	c.dispatcher.logger = options.Logger
	c.dispatcher.metrics = options.Metrics
	c.registry.OnChange(func(Channel, RegistryChange) { c.notify() })
	return c, nil
}

// Register adds a callback for every message on channels matching pattern.
// It may be called before Start; the server subscription is sent once the
// session is connected.
func (c *Client) Register(pattern Channel, callback Callback) (SubscriptionHandle, error) {
	return c.registry.Register(pattern, callback)
}

// Unregister removes a callback. The server subscription is dropped when the
// last callback for its pattern goes away.
func (c *Client) Unregister(handle SubscriptionHandle) bool {
	return c.registry.Unregister(handle)
}

// UseExtension registers a MessageExtender with the underlying session
func (c *Client) UseExtension(ext MessageExtender) error {
	return c.bayeux.UseExtension(ext)
}

// State returns the current session state
func (c *Client) State() StateRepresentation {
	return c.bayeux.State()
}

// ClientID returns the clientId of the current session, if any
func (c *Client) ClientID() string {
	return c.bayeux.ClientID()
}

// Start begins the background process that talks to the server. The
// returned channel carries callback failures and the terminal error, and is
// closed once the session ends. Calling Start again returns the same channel,
// and starting a stopped client returns an already closed one.
func (c *Client) Start(ctx context.Context) <-chan error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.started {
		return c.errs
	}
	c.started = true

	if c.bayeux.State() == DisconnectedState {
		c.errs <- ErrClientDisconnected
		close(c.errs)
		close(c.done)
		return c.errs
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	loop := &pollLoop{
		bayeux:     c.bayeux,
		registry:   c.registry,
		dispatcher: c.dispatcher,
		options:    c.options,
		logger:     c.logger.WithField("at", "loop"),
		wake:       c.wake,
		sleep:      c.sleep,
		backoff:    newBackoff(c.options.Backoff, rand.New(rand.NewSource(time.Now().UnixNano()))),
		serverSubs: make(map[Channel]bool),
		refused:    make(map[Channel]bool),
	}
	go c.run(loopCtx, loop)
	return c.errs
}

func (c *Client) run(ctx context.Context, loop *pollLoop) {
	defer close(c.done)
	defer close(c.errs)

	err := loop.run(ctx)
	if err != nil {
		c.logger.WithError(err).Error("session terminated")
		c.bayeux.Close()
		// The session is over on the server side too; Stop sends nothing.
		c.stopOnce.Do(func() {})
		c.report(err)
		return
	}
	_ = c.shutdown(context.Background())
}

// Stop ends the session. It stops scheduling connect cycles, waits for the
// background goroutine up to the shutdown timeout and sends at most one
// /meta/disconnect request. The client is DISCONNECTED afterwards and cannot
// be started again.
func (c *Client) Stop(ctx context.Context) error {
	c.lock.Lock()
	cancel := c.cancel
	started := c.started
	c.started = true
	c.lock.Unlock()

	if cancel != nil {
		cancel()
		timer := time.NewTimer(c.options.ShutdownTimeout)
		defer timer.Stop()
		select {
		case <-c.done:
		case <-timer.C:
			c.logger.Warn("session goroutine did not exit before the shutdown timeout")
		case <-ctx.Done():
		}
	} else if !started {
		close(c.errs)
		close(c.done)
	}

	return c.shutdown(ctx)
}

func (c *Client) shutdown(ctx context.Context) error {
	c.stopOnce.Do(func() {
		dctx, cancel := context.WithTimeout(ctx, c.options.ShutdownTimeout)
		defer cancel()
		if _, err := c.bayeux.Disconnect(dctx); err != nil {
			c.logger.WithError(err).Warn("disconnect failed")
			c.stopErr = err
		}
	})
	return c.stopErr
}

// notify wakes the loop so pending subscription changes go out without
// waiting for the long poll to return
func (c *Client) notify() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// report hands err to the error handler and the Start channel. It is only
// called from the session goroutine.
func (c *Client) report(err error) {
	if c.options.IgnoreError(err) {
		return
	}
	if c.options.ErrorHandler != nil {
		c.options.ErrorHandler(err)
	}
	select {
	case c.errs <- err:
	default:
		c.logger.WithError(err).Warn("error channel full, dropping error")
	}
}
