package gobayeux

import "strings"

// Channel represents a Bayeux Channel which is defined as "a string that
// looks like a URL path such as `/foo/bar`, `/meta/connect`, or
// `/service/chat`."
//
// See also: https://docs.cometd.org/current/reference/#_concepts_channels
type Channel string

const (
	// MetaHandshake is the Channel for the first message a new client sends.
	MetaHandshake Channel = "/meta/handshake"
	// MetaConnect is the Channel used for connect messages after a successful
	// handshake.
	MetaConnect Channel = "/meta/connect"
	// MetaDisconnect is the Channel used for disconnect messages.
	MetaDisconnect Channel = "/meta/disconnect"
	// MetaSubscribe is the Channel used by a client to subscribe to channels.
	MetaSubscribe Channel = "/meta/subscribe"
	// MetaUnsubscribe is the Channel used by a client to unsubscribe to
	// channels.
	MetaUnsubscribe Channel = "/meta/unsubscribe"
	emptyChannel    Channel = ""
)

// ChannelType is used to define the three types of channels:
// - meta channels, channels starting with `/meta/`
// - service channels, channels starting with `/service/`
// - broadcast channels, all other channels
type ChannelType string

const (
	// MetaChannel represents the `/meta/` channel type
	MetaChannel ChannelType = "meta"
	// ServiceChannel represents the `/service/` channel type
	ServiceChannel ChannelType = "service"
	// BroadcastChannel represents all other channels
	BroadcastChannel ChannelType = "broadcast"
)

const (
	metaPrefix     string = "/meta/"
	servicePrefix  string = "/service/"
	singleWildcard string = "*"
	multiWildcard  string = "**"
)

// Type provides the type of Channel this struct represents
func (c Channel) Type() ChannelType {
	s := string(c)
	switch {
	case strings.HasPrefix(s, metaPrefix):
		return MetaChannel
	case strings.HasPrefix(s, servicePrefix):
		return ServiceChannel
	default:
		return BroadcastChannel
	}
}

// segments splits the channel on "/" dropping the leading empty segment.
func (c Channel) segments() []string {
	return strings.Split(strings.TrimPrefix(string(c), "/"), "/")
}

// HasWildcard indicates whether the last segment of the Channel is * or **
//
// See also: https://docs.cometd.org/current/reference/#_concepts_channels_wild
func (c Channel) HasWildcard() bool {
	segs := c.segments()
	last := segs[len(segs)-1]
	if last != singleWildcard && last != multiWildcard {
		return false
	}
	return !strings.Contains(strings.Join(segs[:len(segs)-1], "/"), "*")
}

// IsValid does its best to check the validity of a Channel. Wildcards are
// only allowed as the whole of the last segment.
func (c Channel) IsValid() bool {
	s := string(c)
	if len(s) < 2 || !strings.HasPrefix(s, "/") {
		return false
	}
	segs := c.segments()
	for i, seg := range segs {
		if seg == "" {
			return false
		}
		if !strings.Contains(seg, "*") {
			continue
		}
		if i != len(segs)-1 || (seg != singleWildcard && seg != multiWildcard) {
			return false
		}
	}
	return true
}

// Match checks if a given Channel matches this Channel.
// Note wildcards are only valid after the last /.
//
// See also: https://docs.cometd.org/current/reference/#_concepts_channels_wild
func (c Channel) Match(other Channel) bool {
	return c.matchKind(other) != matchNone
}

// MatchString checks if a given string matches this Channel.
func (c Channel) MatchString(other string) bool {
	return c.Match(Channel(other))
}

// matchKind orders how specifically a pattern matches a channel. Lower values
// take precedence when resolving callbacks.
type matchKind int

const (
	matchExact matchKind = iota
	matchSingle
	matchMulti
	matchNone
)

func (c Channel) matchKind(other Channel) matchKind {
	if !c.IsValid() || !other.IsValid() || strings.Contains(string(other), "*") {
		return matchNone
	}
	if !c.HasWildcard() {
		if c == other {
			return matchExact
		}
		return matchNone
	}

	pattern := c.segments()
	name := other.segments()
	prefix := pattern[:len(pattern)-1]
	if len(name) <= len(prefix) {
		return matchNone
	}
	for i := range prefix {
		if prefix[i] != name[i] {
			return matchNone
		}
	}

	switch pattern[len(pattern)-1] {
	case singleWildcard:
		if len(name) == len(pattern) {
			return matchSingle
		}
	case multiWildcard:
		return matchMulti
	}
	return matchNone
}

// candidatePatterns lists every pattern that could match name, most specific
// first: the name itself, its single-segment wildcard, then multi-segment
// wildcards from the deepest ancestor up to the root.
func (c Channel) candidatePatterns() []Channel {
	segs := c.segments()
	out := make([]Channel, 0, len(segs)+2)
	out = append(out, c)
	parent := "/" + strings.Join(segs[:len(segs)-1], "/")
	if len(segs) == 1 {
		parent = ""
	}
	out = append(out, Channel(parent+"/"+singleWildcard))
	for i := len(segs) - 1; i >= 0; i-- {
		prefix := strings.Join(segs[:i], "/")
		if prefix == "" {
			out = append(out, Channel("/"+multiWildcard))
			continue
		}
		out = append(out, Channel("/"+prefix+"/"+multiWildcard))
	}
	return out
}
