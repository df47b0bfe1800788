package gobayeuxtest

import (
	"time"

	"github.com/dkmadigan/gobayeux"
)

type ServerOpts interface {
	apply(s *Server)
}

type serverOptFn func(s *Server)

func (opt serverOptFn) apply(s *Server) {
	opt(s)
}

// WithHandshakeError makes every handshake fail with a 400 response
func WithHandshakeError(handshakeError bool) ServerOpts {
	return serverOptFn(func(s *Server) {
		s.handshakeError = handshakeError
	})
}

// WithAdvice sets the advice attached to handshake and connect replies
func WithAdvice(advice gobayeux.Advice) ServerOpts {
	return serverOptFn(func(s *Server) {
		s.advice = advice
	})
}

// WithConnectHold sets how long an idle /meta/connect is held open
func WithConnectHold(d time.Duration) ServerOpts {
	return serverOptFn(func(s *Server) {
		s.hold = d
	})
}

// WithConnectNetworkErrors fails the first n /meta/connect requests before
// they reach the server
func WithConnectNetworkErrors(n int) ServerOpts {
	return serverOptFn(func(s *Server) {
		s.connectNetworkErrors = n
	})
}

// WithConnectRefusal answers every /meta/connect with successful=false and
// the given reconnect advice
func WithConnectRefusal(reconnect gobayeux.Reconnect) ServerOpts {
	return serverOptFn(func(s *Server) {
		s.connectRefusal = reconnect
	})
}

// WithRefusedSubscription makes subscribe requests for ch fail
func WithRefusedSubscription(ch gobayeux.Channel) ServerOpts {
	return serverOptFn(func(s *Server) {
		s.refused[ch] = true
	})
}

// WithConnectRejections answers the first n /meta/connect requests of known
// sessions with successful=false and no advice
func WithConnectRejections(n int) ServerOpts {
	return serverOptFn(func(s *Server) {
		s.connectRejections = n
	})
}

// WithSubscriptionRefusalAdvice attaches advice to refused subscribe replies
func WithSubscriptionRefusalAdvice(advice gobayeux.Advice) ServerOpts {
	return serverOptFn(func(s *Server) {
		s.refusalAdvice = &advice
	})
}
