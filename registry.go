package gobayeux

import (
	"sort"
	"sync"
)

// Callback receives messages published on a subscribed channel. A returned
// error or a panic is reported to the client's error handler and never
// affects other callbacks or the session.
type Callback func(Message) error

// SubscriptionHandle identifies one Register call so it can be undone
type SubscriptionHandle struct {
	id      uint64
	pattern Channel
}

// Channel returns the pattern the handle was registered for
func (h SubscriptionHandle) Channel() Channel {
	return h.pattern
}

// Subscription is a registered callback and the pattern it listens on
type Subscription struct {
	Pattern  Channel
	Callback Callback
	id       uint64
}

// RegistryChange describes how the set of distinct patterns changed
type RegistryChange int

const (
	// PatternAdded means the first callback for a pattern was registered
	PatternAdded RegistryChange = iota
	// PatternRemoved means the last callback for a pattern went away
	PatternRemoved
)

// ChannelRegistry maps channel patterns to subscriber callbacks. It is safe
// for concurrent use.
type ChannelRegistry struct {
	lock     sync.RWMutex
	nextID   uint64
	subs     map[Channel][]Subscription
	listener func(Channel, RegistryChange)
}

// NewChannelRegistry creates an empty registry
func NewChannelRegistry() *ChannelRegistry {
	return &ChannelRegistry{subs: make(map[Channel][]Subscription)}
}

// OnChange installs a function called whenever a pattern gains its first
// callback or loses its last one. It runs outside the registry lock.
func (r *ChannelRegistry) OnChange(fn func(Channel, RegistryChange)) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.listener = fn
}

// Register adds callback under pattern. The pattern may end in a * or **
// wildcard segment.
func (r *ChannelRegistry) Register(pattern Channel, callback Callback) (SubscriptionHandle, error) {
	if !pattern.IsValid() {
		return SubscriptionHandle{}, InvalidChannelError{pattern}
	}
	if callback == nil {
		return SubscriptionHandle{}, ErrNilCallback
	}

	r.lock.Lock()
	r.nextID++
	id := r.nextID
	existing := r.subs[pattern]
	r.subs[pattern] = append(existing, Subscription{Pattern: pattern, Callback: callback, id: id})
	listener := r.listener
	r.lock.Unlock()

	if len(existing) == 0 && listener != nil {
		listener(pattern, PatternAdded)
	}
	return SubscriptionHandle{id: id, pattern: pattern}, nil
}

// Unregister removes the callback behind handle. It reports whether the
// handle was still registered.
func (r *ChannelRegistry) Unregister(handle SubscriptionHandle) bool {
	r.lock.Lock()
	subs := r.subs[handle.pattern]
	index := -1
	for i, s := range subs {
		if s.id == handle.id {
			index = i
			break
		}
	}
	if index < 0 {
		r.lock.Unlock()
		return false
	}

	remaining := make([]Subscription, 0, len(subs)-1)
	remaining = append(remaining, subs[:index]...)
	remaining = append(remaining, subs[index+1:]...)
	if len(remaining) == 0 {
		delete(r.subs, handle.pattern)
	} else {
		r.subs[handle.pattern] = remaining
	}
	listener := r.listener
	r.lock.Unlock()

	if len(remaining) == 0 && listener != nil {
		listener(handle.pattern, PatternRemoved)
	}
	return true
}

// Resolve returns the subscriptions matching a concrete channel name. Exact
// matches come first, then * wildcards, then ** wildcards from the deepest
// ancestor up; within a pattern callbacks keep registration order.
func (r *ChannelRegistry) Resolve(name Channel) []Subscription {
	if !name.IsValid() || name.HasWildcard() {
		return nil
	}

	r.lock.RLock()
	defer r.lock.RUnlock()
	var out []Subscription
	for _, pattern := range name.candidatePatterns() {
		out = append(out, r.subs[pattern]...)
	}
	return out
}

// Has reports whether any callback is registered for exactly pattern
func (r *ChannelRegistry) Has(pattern Channel) bool {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.subs[pattern]) > 0
}

// Patterns lists the distinct registered patterns in sorted order
func (r *ChannelRegistry) Patterns() []Channel {
	r.lock.RLock()
	patterns := make([]Channel, 0, len(r.subs))
	for pattern := range r.subs {
		patterns = append(patterns, pattern)
	}
	r.lock.RUnlock()

	sort.Slice(patterns, func(i, j int) bool { return patterns[i] < patterns[j] })
	return patterns
}

// Len is the number of registered callbacks
func (r *ChannelRegistry) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	n := 0
	for _, subs := range r.subs {
		n += len(subs)
	}
	return n
}
