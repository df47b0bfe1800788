// Package gobayeuxtest provides an in-memory Bayeux server for tests. It
// implements http.RoundTripper so a client can use it as its HTTP transport.
package gobayeuxtest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dkmadigan/gobayeux"
)

// ErrConnectionReset is returned by RoundTrip for injected network failures
var ErrConnectionReset = errors.New("connection reset by peer")

type Logger interface {
	Log(args ...any)
	Logf(format string, args ...any)
}

type session struct {
	subs  []gobayeux.Channel
	queue []gobayeux.Message
}

// Server is a minimal long-polling Bayeux server
type Server struct {
	log Logger

	mu       sync.Mutex
	running  bool
	sessions map[string]*session
	changed  chan struct{}
	requests map[gobayeux.Channel]int
	nextID   int

	advice               gobayeux.Advice
	hold                 time.Duration
	handshakeError       bool
	connectNetworkErrors int
	connectRefusal       gobayeux.Reconnect
	connectRejections    int
	refused              map[gobayeux.Channel]bool
	refusalAdvice        *gobayeux.Advice
}

// NewServer creates a stopped Server
func NewServer(logger Logger, opts ...ServerOpts) *Server {
	server := &Server{
		log:      logger,
		sessions: make(map[string]*session),
		changed:  make(chan struct{}),
		requests: make(map[gobayeux.Channel]int),
		advice: gobayeux.Advice{
			Reconnect: gobayeux.ReconnectRetry,
			Timeout:   1000,
		},
		hold:    50 * time.Millisecond,
		refused: make(map[gobayeux.Channel]bool),
	}

	for _, opt := range opts {
		opt.apply(server)
	}

	return server
}

func (s *Server) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = true

	return nil
}

func (s *Server) Stop(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false

	return nil
}

// Publish queues data on ch for every session subscribed to a matching
// pattern. Each session gets the message once however many of its patterns
// match. It returns the number of sessions the message was queued for.
func (s *Server) Publish(ch gobayeux.Channel, data any) (int, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delivered := 0
	for _, sess := range s.sessions {
		for _, sub := range sess.subs {
			if sub.Match(ch) {
				s.nextID++
				sess.queue = append(sess.queue, gobayeux.Message{
					Channel: ch,
					ID:      fmt.Sprintf("srv-%d", s.nextID),
					Data:    raw,
				})
				delivered++
				break
			}
		}
	}
	if delivered > 0 {
		close(s.changed)
		s.changed = make(chan struct{})
	}
	return delivered, nil
}

// Requests returns how many messages were received on a meta channel,
// injected failures included
func (s *Server) Requests(ch gobayeux.Channel) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[ch]
}

// Subscriptions returns the patterns any session is subscribed to
func (s *Server) Subscriptions() []gobayeux.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := map[gobayeux.Channel]bool{}
	for _, sess := range s.sessions {
		for _, sub := range sess.subs {
			seen[sub] = true
		}
	}
	out := make([]gobayeux.Channel, 0, len(seen))
	for ch := range seen {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Sessions returns the number of live sessions
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) RoundTrip(req *http.Request) (*http.Response, error) {
	defer func() {
		if err := req.Body.Close(); err != nil {
			s.log.Logf("could not close test server request body: %+v", err)
		}
	}()

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("issue reading body (%w)", err)
	}

	msgs, err := gobayeux.DecodeMessages(body)
	if err != nil {
		return &http.Response{
			StatusCode: http.StatusUnprocessableEntity,
			Status:     http.StatusText(http.StatusUnprocessableEntity),
			Header:     make(http.Header),
			Body:       io.NopCloser(bytes.NewReader(nil)),
			Request:    req,
		}, nil
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil, errors.New("server not running")
	}
	for _, msg := range msgs {
		s.requests[msg.Channel]++
	}
	for _, msg := range msgs {
		if msg.Channel == gobayeux.MetaConnect && s.connectNetworkErrors > 0 {
			s.connectNetworkErrors--
			s.mu.Unlock()
			return nil, ErrConnectionReset
		}
		if msg.Channel == gobayeux.MetaHandshake && s.handshakeError {
			s.mu.Unlock()
			return &http.Response{
				StatusCode: http.StatusBadRequest,
				Status:     http.StatusText(http.StatusBadRequest),
				Header:     make(http.Header),
				Body:       io.NopCloser(bytes.NewReader([]byte(`{"error":"Invalid request"}`))),
				Request:    req,
			}, nil
		}
	}
	s.mu.Unlock()

	replies := []gobayeux.Message{}
	for _, msg := range msgs {
		replies = append(replies, s.handle(req.Context(), msg)...)
	}

	reply, err := gobayeux.EncodeMessages(replies)
	if err != nil {
		return nil, fmt.Errorf("issue marshaling body (%w)", err)
	}

	return &http.Response{
		StatusCode: http.StatusOK,
		Status:     http.StatusText(http.StatusOK),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader(reply)),
		Request:    req,
	}, nil
}

func (s *Server) handle(ctx context.Context, msg gobayeux.Message) []gobayeux.Message {
	switch msg.Channel {
	case gobayeux.MetaHandshake:
		return s.handshake(msg)
	case gobayeux.MetaConnect:
		return s.connect(ctx, msg)
	case gobayeux.MetaSubscribe:
		return s.subscribe(msg)
	case gobayeux.MetaUnsubscribe:
		return s.unsubscribe(msg)
	case gobayeux.MetaDisconnect:
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.sessions, msg.ClientID)
		return []gobayeux.Message{{
			Channel:    gobayeux.MetaDisconnect,
			ID:         msg.ID,
			ClientID:   msg.ClientID,
			Successful: true,
		}}
	default:
		s.log.Logf("unhandled: %+v", msg)
		return nil
	}
}

func (s *Server) handshake(msg gobayeux.Message) []gobayeux.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	clientID := uuid.NewString()
	s.sessions[clientID] = &session{}
	advice := s.advice
	return []gobayeux.Message{{
		Channel:                  gobayeux.MetaHandshake,
		Version:                  gobayeux.ProtocolVersion,
		SupportedConnectionTypes: []string{gobayeux.ConnectionTypeLongPolling},
		ClientID:                 clientID,
		Successful:               true,
		AuthSuccessful:           true,
		Advice:                   &advice,
		ID:                       msg.ID,
	}}
}

func (s *Server) connect(ctx context.Context, msg gobayeux.Message) []gobayeux.Message {
	s.mu.Lock()
	sess, ok := s.sessions[msg.ClientID]
	if !ok {
		s.mu.Unlock()
		return []gobayeux.Message{{
			Channel:  gobayeux.MetaConnect,
			ID:       msg.ID,
			ClientID: msg.ClientID,
			Error:    "402::Unknown client",
			Advice:   &gobayeux.Advice{Reconnect: gobayeux.ReconnectHandshake},
		}}
	}
	if s.connectRefusal != "" {
		s.mu.Unlock()
		return []gobayeux.Message{{
			Channel:  gobayeux.MetaConnect,
			ID:       msg.ID,
			ClientID: msg.ClientID,
			Error:    "403::connect refused",
			Advice:   &gobayeux.Advice{Reconnect: s.connectRefusal},
		}}
	}
	if s.connectRejections > 0 {
		s.connectRejections--
		s.mu.Unlock()
		return []gobayeux.Message{{
			Channel:  gobayeux.MetaConnect,
			ID:       msg.ID,
			ClientID: msg.ClientID,
			Error:    "403::connect rejected",
		}}
	}

	if len(sess.queue) == 0 && s.hold > 0 {
		changed := s.changed
		s.mu.Unlock()
		timer := time.NewTimer(s.hold)
		select {
		case <-changed:
		case <-timer.C:
		case <-ctx.Done():
		}
		timer.Stop()
		s.mu.Lock()
	}

	replies := append([]gobayeux.Message(nil), sess.queue...)
	sess.queue = nil
	advice := s.advice
	s.mu.Unlock()

	return append(replies, gobayeux.Message{
		Channel:    gobayeux.MetaConnect,
		Successful: true,
		ClientID:   msg.ClientID,
		Advice:     &advice,
		ID:         msg.ID,
	})
}

func (s *Server) subscribe(msg gobayeux.Message) []gobayeux.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	reply := gobayeux.Message{
		Channel:      gobayeux.MetaSubscribe,
		ID:           msg.ID,
		ClientID:     msg.ClientID,
		Successful:   true,
		Subscription: msg.Subscription,
	}

	sess, ok := s.sessions[msg.ClientID]
	switch {
	case !ok:
		reply.Successful = false
		reply.Error = "402::Unknown client"
	case s.refused[msg.Subscription]:
		reply.Successful = false
		reply.Error = fmt.Sprintf("403:%s:subscription denied", msg.Subscription)
		if s.refusalAdvice != nil {
			advice := *s.refusalAdvice
			reply.Advice = &advice
		}
	default:
		for _, ch := range sess.subs {
			if ch == msg.Subscription {
				reply.Successful = false
				reply.Error = fmt.Sprintf("403:%s:already subscribed", msg.Subscription)
			}
		}
		if reply.Successful {
			sess.subs = append(sess.subs, msg.Subscription)
		}
	}

	return []gobayeux.Message{reply}
}

func (s *Server) unsubscribe(msg gobayeux.Message) []gobayeux.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	reply := gobayeux.Message{
		Channel:      gobayeux.MetaUnsubscribe,
		ID:           msg.ID,
		ClientID:     msg.ClientID,
		Successful:   true,
		Subscription: msg.Subscription,
	}

	sess, ok := s.sessions[msg.ClientID]
	if !ok {
		reply.Successful = false
		reply.Error = "402::Unknown client"
		return []gobayeux.Message{reply}
	}

	found := false
	subs := []gobayeux.Channel{}
	for _, ch := range sess.subs {
		if ch == msg.Subscription {
			found = true
			continue
		}
		subs = append(subs, ch)
	}
	sess.subs = subs

	if !found {
		reply.Successful = false
		reply.Error = fmt.Sprintf("403:%s:not subscribed", msg.Subscription)
	}

	return []gobayeux.Message{reply}
}
