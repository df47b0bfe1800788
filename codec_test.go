package gobayeux

import (
	"testing"
)

func TestDecodeMessages(t *testing.T) {
	testCases := []struct {
		name      string
		body      string
		want      []Channel
		shouldErr bool
	}{
		{"array keeps server order", `[{"channel":"/foo/bar"},{"channel":"/meta/connect","successful":true}]`, []Channel{"/foo/bar", MetaConnect}, false},
		{"single object", `{"channel":"/meta/handshake","successful":true}`, []Channel{MetaHandshake}, false},
		{"empty array", `[]`, []Channel{}, false},
		{"surrounding whitespace", "\n [{\"channel\":\"/a\"}] \n", []Channel{"/a"}, false},
		{"empty body", ``, nil, true},
		{"html error page", `<html>oops</html>`, nil, true},
		{"truncated", `[{"channel":"/a"`, nil, true},
	}

	for _, testCase := range testCases {
		tc := testCase
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeMessages([]byte(tc.body))
			if tc.shouldErr {
				if err == nil {
					t.Fatal("expected an error but didn't get one")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error decoding %q: %q", tc.body, err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("expected %d messages, got %d", len(tc.want), len(got))
			}
			for i := range got {
				if got[i].Channel != tc.want[i] {
					t.Errorf("message %d: want channel %s, got %s", i, tc.want[i], got[i].Channel)
				}
			}
		})
	}
}

func TestEncodeMessages(t *testing.T) {
	body, err := EncodeMessages([]Message{
		{Channel: MetaConnect, ClientID: "abc", ID: "2", ConnectionType: ConnectionTypeLongPolling},
		{Channel: MetaSubscribe, ClientID: "abc", ID: "3", Subscription: "/foo/*"},
	})
	if err != nil {
		t.Fatalf("unexpected error %q", err)
	}
	want := `[{"id":"2","channel":"/meta/connect","clientId":"abc","connectionType":"long-polling"},` +
		`{"id":"3","channel":"/meta/subscribe","clientId":"abc","subscription":"/foo/*"}]`
	if string(body) != want {
		t.Errorf("unexpected encoding\nwant %s\ngot  %s", want, body)
	}

	empty, err := EncodeMessages(nil)
	if err != nil {
		t.Fatalf("unexpected error %q", err)
	}
	if string(empty) != "[]" {
		t.Errorf("expected nil batch to encode as [], got %s", empty)
	}
}
