package gobayeux

import (
	"errors"
	"testing"
)

func TestHandshakeRequestBuilder_AddSupportedConnectionType(t *testing.T) {
	testCases := []struct {
		name      string
		ct        string
		shouldErr bool
	}{
		{
			"valid long-polling",
			"long-polling",
			false,
		},
		{
			"valid callback-polling",
			"callback-polling",
			false,
		},
		{
			"valid iframe",
			"iframe",
			false,
		},
		{
			"invalid connection type",
			"invalid-polling",
			true,
		},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			b := NewHandshakeRequestBuilder()
			err := b.AddSupportedConnectionType(tc.ct)
			if err != nil && !tc.shouldErr {
				t.Errorf("expected connection type %s to be valid but got err %q", tc.ct, err)
			}
			if err == nil && tc.shouldErr {
				t.Error("expected an error but didn't get one")
			}
		})
	}
}

func TestHandshakeRequestBuilder_AddVersion(t *testing.T) {
	testCases := []struct {
		name      string
		version   string
		shouldErr bool
	}{
		{
			"valid version 1.0",
			"1.0",
			false,
		},
		{
			"valid version 1.0beta",
			"1.0beta",
			false,
		},
		{
			"valid version 10.0",
			"10.0",
			false,
		},
		{
			"invalid version .0",
			".0",
			true,
		},
		{
			"invalid version a.0",
			"a.0",
			true,
		},
		{
			"invalid version (empty)",
			"",
			true,
		},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			b := NewHandshakeRequestBuilder()
			err := b.AddVersion(tc.version)
			if err != nil && !tc.shouldErr {
				t.Errorf("expected version %s to be valid but got err %q", tc.version, err)
			}
			if err == nil && tc.shouldErr {
				t.Error("expected an error but didn't get one")
			}
			if err := b.AddMinimumVersion(tc.version); (err != nil) != tc.shouldErr {
				t.Errorf("expected AddMinimumVersion(%q) to agree with AddVersion, got %v", tc.version, err)
			}
		})
	}
}

func TestBuildErrors(t *testing.T) {
	withClientID := func(b interface{ AddClientID(string) }) {
		b.AddClientID("Un1q31d3nt1f13r")
	}
	testCases := []struct {
		name  string
		build func() ([]Message, error)
		want  error
	}{
		{
			"handshake without connection types",
			func() ([]Message, error) {
				b := NewHandshakeRequestBuilder()
				_ = b.AddVersion("1.0")
				return b.Build()
			},
			ErrNoSupportedConnectionTypes,
		},
		{
			"handshake without version",
			func() ([]Message, error) {
				b := NewHandshakeRequestBuilder()
				_ = b.AddSupportedConnectionType(ConnectionTypeLongPolling)
				return b.Build()
			},
			ErrNoVersion,
		},
		{
			"connect without clientId",
			func() ([]Message, error) {
				b := NewConnectRequestBuilder()
				_ = b.AddConnectionType(ConnectionTypeLongPolling)
				return b.Build()
			},
			ErrMissingClientID,
		},
		{
			"connect without connection type",
			func() ([]Message, error) {
				b := NewConnectRequestBuilder()
				withClientID(b)
				return b.Build()
			},
			ErrMissingConnectionType,
		},
		{
			"subscribe without clientId",
			func() ([]Message, error) {
				b := NewSubscribeRequestBuilder()
				_ = b.AddSubscription("/foo")
				return b.Build()
			},
			ErrMissingClientID,
		},
		{
			"subscribe without subscriptions",
			func() ([]Message, error) {
				b := NewSubscribeRequestBuilder()
				withClientID(b)
				return b.Build()
			},
			EmptySliceError("subscriptions"),
		},
		{
			"unsubscribe without clientId",
			func() ([]Message, error) {
				b := NewUnsubscribeRequestBuilder()
				_ = b.AddSubscription("/foo")
				return b.Build()
			},
			ErrMissingClientID,
		},
		{
			"disconnect without clientId",
			func() ([]Message, error) {
				return NewDisconnectRequestBuilder().Build()
			},
			ErrMissingClientID,
		},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			ms, err := tc.build()
			if !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
			if ms != nil {
				t.Errorf("expected no messages alongside an error, got %v", ms)
			}
		})
	}
}

func TestSubscribeRequestBuilder_AddSubscription(t *testing.T) {
	testCases := []struct {
		name      string
		channel   Channel
		shouldErr bool
	}{
		{"plain channel", "/foo/bar", false},
		{"single segment wildcard", "/foo/*", false},
		{"multi segment wildcard", "/foo/**", false},
		{"wildcard in the middle", "/foo/*/bar", true},
		{"missing leading slash", "foo/bar", true},
		{"empty segment", "/foo//bar", true},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			b := NewSubscribeRequestBuilder()
			err := b.AddSubscription(tc.channel)
			var invalid InvalidChannelError
			if tc.shouldErr && !errors.As(err, &invalid) {
				t.Errorf("expected InvalidChannelError, got %v", err)
			}
			if !tc.shouldErr && err != nil {
				t.Errorf("expected %s to be accepted, got %v", tc.channel, err)
			}
		})
	}
}
