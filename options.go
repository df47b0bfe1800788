package gobayeux

import (
	"net/http"
	"time"
)

const (
	defaultConnectFailureThreshold = 3
	defaultDispatchTimeout         = 10 * time.Second
	defaultShutdownTimeout         = 5 * time.Second
	defaultRequestGrace            = 10 * time.Second
	defaultAdviceTimeout           = 30 * time.Second
)

// Options holds the tunables of a Client. Use the With* functions rather than
// filling it in directly.
type Options struct {
	Logger Logger

	// HTTPClient and HTTPTransport configure the default long-polling
	// transport. They are ignored when Transport is set.
	HTTPClient    *http.Client
	HTTPTransport http.RoundTripper
	Transport     Transport

	// SupportedConnectionTypes is offered on handshake; the first one the
	// server also supports is used for /meta/connect.
	SupportedConnectionTypes []string

	// Backoff is applied between consecutive failed handshakes and connects.
	Backoff BackoffConfig
	// MaxRetries is the number of consecutive failures after which the
	// session gives up and reports a RetriesExhaustedError. Zero retries
	// forever.
	MaxRetries int
	// ConnectFailureThreshold is the number of consecutive failed connects
	// under retry advice after which the session handshakes again.
	ConnectFailureThreshold int

	// DispatchTimeout bounds every callback invocation. Zero waits forever.
	DispatchTimeout time.Duration
	// ShutdownTimeout bounds Stop, including the /meta/disconnect request.
	ShutdownTimeout time.Duration
	// RequestGrace is added to the advised timeout to get the deadline of a
	// /meta/connect request.
	RequestGrace time.Duration

	// ErrorHandler observes callback failures and terminal session errors.
	ErrorHandler func(error)
	// IgnoreError filters errors before they are reported.
	IgnoreError func(error) bool

	Metrics    MetricsCollector
	Extensions []MessageExtender
}

// Option configures a Client
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		Logger:                   newNullLogger(),
		SupportedConnectionTypes: []string{ConnectionTypeLongPolling},
		Backoff:                  DefaultBackoffConfig(),
		ConnectFailureThreshold:  defaultConnectFailureThreshold,
		DispatchTimeout:          defaultDispatchTimeout,
		ShutdownTimeout:          defaultShutdownTimeout,
		RequestGrace:             defaultRequestGrace,
		IgnoreError:              func(error) bool { return false },
		Metrics:                  nopMetrics{},
	}
}

// WithHTTPClient uses the given http.Client for the long-polling transport
func WithHTTPClient(client *http.Client) Option {
	return func(options *Options) {
		options.HTTPClient = client
	}
}

// WithHTTPTransport sets the http.RoundTripper of the long-polling transport
func WithHTTPTransport(transport http.RoundTripper) Option {
	return func(options *Options) {
		options.HTTPTransport = transport
	}
}

// WithTransport replaces the long-polling transport entirely
func WithTransport(transport Transport) Option {
	return func(options *Options) {
		options.Transport = transport
	}
}

// WithConnectionTypes overrides the connection types offered on handshake
func WithConnectionTypes(connectionTypes ...string) Option {
	return func(options *Options) {
		options.SupportedConnectionTypes = connectionTypes
	}
}

// WithBackoff sets the delay schedule between failed requests
func WithBackoff(cfg BackoffConfig) Option {
	return func(options *Options) {
		options.Backoff = cfg
	}
}

// WithMaxRetries caps consecutive failures before the session gives up
func WithMaxRetries(n int) Option {
	return func(options *Options) {
		options.MaxRetries = n
	}
}

// WithConnectFailureThreshold sets how many consecutive connect failures
// trigger a new handshake
func WithConnectFailureThreshold(n int) Option {
	return func(options *Options) {
		options.ConnectFailureThreshold = n
	}
}

// WithDispatchTimeout bounds each callback invocation
func WithDispatchTimeout(d time.Duration) Option {
	return func(options *Options) {
		options.DispatchTimeout = d
	}
}

// WithShutdownTimeout bounds Stop
func WithShutdownTimeout(d time.Duration) Option {
	return func(options *Options) {
		options.ShutdownTimeout = d
	}
}

// WithRequestGrace sets the slack added to the advised long-poll timeout
func WithRequestGrace(d time.Duration) Option {
	return func(options *Options) {
		options.RequestGrace = d
	}
}

// WithErrorHandler registers a function observing callback and terminal
// errors. It is called from the session goroutine and must not block.
func WithErrorHandler(fn func(error)) Option {
	return func(options *Options) {
		options.ErrorHandler = fn
	}
}

// WithIgnoreError filters errors before they are reported
func WithIgnoreError(fn func(error) bool) Option {
	return func(options *Options) {
		options.IgnoreError = fn
	}
}

// WithMetrics registers a MetricsCollector
func WithMetrics(m MetricsCollector) Option {
	return func(options *Options) {
		options.Metrics = m
	}
}

// WithExtension registers a MessageExtender
func WithExtension(ext MessageExtender) Option {
	return func(options *Options) {
		options.Extensions = append(options.Extensions, ext)
	}
}
