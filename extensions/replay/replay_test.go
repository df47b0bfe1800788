package replay

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkmadigan/gobayeux"
)

func supportedExtension(t *testing.T, opts ...Option) *Extension {
	t.Helper()
	e := New(opts...)
	e.Incoming(&gobayeux.Message{
		Channel:    gobayeux.MetaHandshake,
		Successful: true,
		Ext:        map[string]interface{}{ExtensionName: true},
	})
	require.True(t, e.isSupported())
	return e
}

func TestNewInitializesOurState(t *testing.T) {
	e := New()
	assert.False(t, e.isSupported())
	assert.NotNil(t, e.Store())
	assert.Equal(t, ReplayNewEvents, e.fallback)
}

func TestOutgoingMetaHandshake(t *testing.T) {
	e := New()
	m := gobayeux.Message{Channel: gobayeux.MetaHandshake}
	require.Nil(t, m.Ext)

	e.Outgoing(&m)

	assert.Equal(t, true, m.Ext[ExtensionName])
}

func TestSupportedOutgoingMetaSubscribe(t *testing.T) {
	testCases := []struct {
		name   string
		stored map[gobayeux.Channel]int64
		opts   []Option
		want   int64
	}{
		{"stored id", map[gobayeux.Channel]int64{"/foo/bar": 1234}, nil, 1234},
		{"new events by default", nil, nil, ReplayNewEvents},
		{"configured fallback", nil, []Option{WithFallback(ReplayAllEvents)}, ReplayAllEvents},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			e := supportedExtension(t, tc.opts...)
			for ch, id := range tc.stored {
				e.Store().Set(ch, id)
			}
			m := gobayeux.Message{Channel: gobayeux.MetaSubscribe, Subscription: "/foo/bar"}
			e.Outgoing(&m)

			value, ok := m.Ext[ExtensionName].(map[gobayeux.Channel]int64)
			require.True(t, ok, "replay extension value has type %T", m.Ext[ExtensionName])
			assert.Equal(t, map[gobayeux.Channel]int64{"/foo/bar": tc.want}, value)
		})
	}
}

func TestOutgoingSubscribeEncodesAsObject(t *testing.T) {
	e := supportedExtension(t)
	e.Store().Set("/event/Order__e", 42)
	m := gobayeux.Message{Channel: gobayeux.MetaSubscribe, Subscription: "/event/Order__e"}
	e.Outgoing(&m)

	raw, err := json.Marshal(m.Ext)
	require.NoError(t, err)
	assert.JSONEq(t, `{"replay":{"/event/Order__e":42}}`, string(raw))
}

func TestUnsupportedOutgoingMetaSubscribe(t *testing.T) {
	e := New()
	e.Store().Set("/foo/bar", 1)
	m := gobayeux.Message{Channel: gobayeux.MetaSubscribe, Subscription: "/foo/bar"}
	e.Outgoing(&m)

	assert.NotContains(t, m.Ext, ExtensionName)
}

func TestHandshakeNegotiation(t *testing.T) {
	testCases := []struct {
		name string
		msg  gobayeux.Message
		want bool
	}{
		{
			"server agrees",
			gobayeux.Message{Channel: gobayeux.MetaHandshake, Successful: true, Ext: map[string]interface{}{ExtensionName: true}},
			true,
		},
		{
			"server declines",
			gobayeux.Message{Channel: gobayeux.MetaHandshake, Successful: true, Ext: map[string]interface{}{ExtensionName: false}},
			false,
		},
		{
			"no ext",
			gobayeux.Message{Channel: gobayeux.MetaHandshake, Successful: true},
			false,
		},
		{
			"failed handshake",
			gobayeux.Message{Channel: gobayeux.MetaHandshake, Ext: map[string]interface{}{ExtensionName: true}},
			false,
		},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			e := New()
			e.Incoming(&tc.msg)
			assert.Equal(t, tc.want, e.isSupported())
		})
	}
}

func TestUnregisteredForgetsSupport(t *testing.T) {
	e := supportedExtension(t)
	e.Unregistered()
	assert.False(t, e.isSupported())
}

func TestIncomingMetaUnsubscribeRemovesChannel(t *testing.T) {
	e := New()
	e.Store().Set("/foo/bar", 1)
	e.Store().Set("/bar/*", 2)

	e.Incoming(&gobayeux.Message{Channel: gobayeux.MetaUnsubscribe, Subscription: "/foo/bar"})
	_, ok := e.Store().Get("/foo/bar")
	assert.True(t, ok, "a failed unsubscribe must not drop the replay id")

	e.Incoming(&gobayeux.Message{Channel: gobayeux.MetaUnsubscribe, Successful: true, Subscription: "/foo/bar"})
	_, ok = e.Store().Get("/foo/bar")
	assert.False(t, ok)
	_, ok = e.Store().Get("/bar/*")
	assert.True(t, ok)
}

func TestIncomingEdges(t *testing.T) {
	testCases := []struct {
		name    string
		channel gobayeux.Channel
	}{
		{"connect", gobayeux.MetaConnect},
		{"subscribe", gobayeux.MetaSubscribe},
		{"service channel", "/service/foo"},
		{"broadcast without data", "/foo/bar"},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			e := New()
			e.Incoming(&gobayeux.Message{Channel: tc.channel})
			assert.Empty(t, e.Store().AsMap())
		})
	}
}

func TestIncomingUpdatesReplayIDStore(t *testing.T) {
	testCases := []struct {
		name string
		data string
		want int64
	}{
		{"valid data updates the id in the store", `{"event": {"replayId": 2, "body": "data"}}`, 2},
		{"large replay ids survive", `{"event": {"replayId": 9007199254740993}}`, 9007199254740993},
		{"missing event in data", `{"not_an_event": {"replayId": 2}}`, 1},
		{"non-object event", `{"event": [{"replayId": 2}]}`, 1},
		{"no replay key in event object", `{"event": {"body": "data"}}`, 1},
		{"message data isn't an object", `"just some plain text"`, 1},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			e := New()
			e.Store().Set("/foo/bar", 1)
			e.Incoming(&gobayeux.Message{Channel: "/foo/bar", Data: json.RawMessage(tc.data)})

			got, ok := e.Store().Get("/foo/bar")
			require.True(t, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestWithStore(t *testing.T) {
	store := NewMapStorage()
	e := New(WithStore(store))
	e.Incoming(&gobayeux.Message{Channel: "/foo/bar", Data: json.RawMessage(`{"event":{"replayId":7}}`)})

	got, ok := store.Get("/foo/bar")
	require.True(t, ok)
	assert.Equal(t, int64(7), got)
}

func TestMapStorage(t *testing.T) {
	s := NewMapStorage()
	_, ok := s.Get("/foo/bar")
	assert.False(t, ok)

	s.Set("/foo/bar", 1234)
	got, ok := s.Get("/foo/bar")
	assert.True(t, ok)
	assert.Equal(t, int64(1234), got)

	m := s.AsMap()
	m["/foo/bar"] = 1
	got, _ = s.Get("/foo/bar")
	assert.Equal(t, int64(1234), got, "AsMap must return a copy")

	s.Delete("/foo/bar")
	assert.Empty(t, s.AsMap())
}
