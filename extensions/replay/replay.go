// Package replay implements the Salesforce "replay" Bayeux extension. It
// remembers the last replayId seen on every broadcast channel and asks the
// server to resume from it when the channel is subscribed again, so events
// published while a session was being re-established are not lost.
package replay

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/dkmadigan/gobayeux"
)

const (
	// ExtensionName is the key the extension uses in a message's ext field
	ExtensionName string = "replay"

	// ReplayNewEvents asks for events published after the subscription
	ReplayNewEvents int64 = -1
	// ReplayAllEvents asks for every event the server still retains
	ReplayAllEvents int64 = -2
)

// Extension negotiates replay support on handshake and attaches replay ids to
// subscribe requests once the server has agreed to it.
type Extension struct {
	supportedByServer atomic.Bool
	store             IDStorer
	fallback          int64
}

// IDStorer stores the last replay id seen per channel
type IDStorer interface {
	Set(channel gobayeux.Channel, replayID int64)
	Get(channel gobayeux.Channel) (int64, bool)
	Delete(channel gobayeux.Channel)
	AsMap() map[gobayeux.Channel]int64
}

// Option configures an Extension
type Option func(*Extension)

// WithStore keeps replay ids in store instead of an in-memory map
func WithStore(store IDStorer) Option {
	return func(e *Extension) {
		e.store = store
	}
}

// WithFallback sets the replay id requested for channels without a stored
// one. It defaults to ReplayNewEvents.
func WithFallback(replayID int64) Option {
	return func(e *Extension) {
		e.fallback = replayID
	}
}

// New creates a new extension instance
func New(opts ...Option) *Extension {
	e := &Extension{fallback: ReplayNewEvents}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		e.store = NewMapStorage()
	}
	return e
}

// Store returns the ids the extension tracks
func (e *Extension) Store() IDStorer {
	return e.store
}

// Outgoing attaches any additional metadata to a message
func (e *Extension) Outgoing(ms *gobayeux.Message) {
	switch ms.Channel {
	case gobayeux.MetaHandshake:
		ms.GetExt(true)[ExtensionName] = true
	case gobayeux.MetaSubscribe:
		if !e.isSupported() || ms.Subscription == "" {
			return
		}
		replayID, ok := e.store.Get(ms.Subscription)
		if !ok {
			replayID = e.fallback
		}
		ms.GetExt(true)[ExtensionName] = map[gobayeux.Channel]int64{ms.Subscription: replayID}
	}
}

// Incoming reads the server's answer to the handshake and the replay ids of
// delivered events
func (e *Extension) Incoming(ms *gobayeux.Message) {
	switch ms.Channel.Type() {
	case gobayeux.MetaChannel:
		switch ms.Channel {
		case gobayeux.MetaHandshake:
			if !ms.Successful {
				return
			}
			supported, _ := ms.GetExt(false)[ExtensionName].(bool)
			e.supportedByServer.Store(supported)
		case gobayeux.MetaUnsubscribe:
			if ms.Successful && ms.Subscription != "" {
				e.store.Delete(ms.Subscription)
			}
		}
	case gobayeux.BroadcastChannel:
		e.updateReplayID(ms)
	}
}

// Registered is called after an extension has been successfully registered
func (e *Extension) Registered(extensionName string, client *gobayeux.BayeuxClient) {
}

// Unregistered is called when an extension is unregistered
func (e *Extension) Unregistered() {
	e.supportedByServer.Store(false)
}

type eventData struct {
	Event struct {
		ReplayID *int64 `json:"replayId"`
	} `json:"event"`
}

func (e *Extension) updateReplayID(ms *gobayeux.Message) {
	if len(ms.Data) == 0 {
		return
	}
	var data eventData
	if err := json.Unmarshal(ms.Data, &data); err != nil {
		return
	}
	if data.Event.ReplayID == nil {
		return
	}
	e.store.Set(ms.Channel, *data.Event.ReplayID)
}

func (e *Extension) isSupported() bool {
	return e.supportedByServer.Load()
}

// MapStorage implements the IDStorer interface over a regular map with a
// RWMutex protecting the access
type MapStorage struct {
	store map[gobayeux.Channel]int64
	lock  sync.RWMutex
}

// NewMapStorage creates a new MapStorage instance
func NewMapStorage() *MapStorage {
	return &MapStorage{store: make(map[gobayeux.Channel]int64)}
}

// Set implements the IDStorer interface
func (s *MapStorage) Set(channel gobayeux.Channel, replayID int64) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.store[channel] = replayID
}

// Get implements the IDStorer interface
func (s *MapStorage) Get(channel gobayeux.Channel) (replayID int64, ok bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	replayID, ok = s.store[channel]
	return
}

// Delete implements the IDStorer interface
func (s *MapStorage) Delete(channel gobayeux.Channel) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.store, channel)
}

// AsMap implements the IDStorer interface
func (s *MapStorage) AsMap() map[gobayeux.Channel]int64 {
	s.lock.RLock()
	defer s.lock.RUnlock()
	replay := make(map[gobayeux.Channel]int64, len(s.store))
	for k, v := range s.store {
		replay[k] = v
	}
	return replay
}
