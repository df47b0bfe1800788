package gobayeux

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EncodeMessages renders a batch in the wire form, a JSON array of message
// objects in batch order.
func EncodeMessages(ms []Message) ([]byte, error) {
	if ms == nil {
		ms = []Message{}
	}
	return json.Marshal(ms)
}

// DecodeMessages parses a response body into a batch. Some servers answer a
// single message without the surrounding array so a lone object is accepted
// too.
func DecodeMessages(body []byte) ([]Message, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, EmptySliceError("response body")
	}

	switch trimmed[0] {
	case '[':
		messages := make([]Message, 0)
		if err := json.Unmarshal(trimmed, &messages); err != nil {
			return nil, err
		}
		return messages, nil
	case '{':
		var m Message
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return nil, err
		}
		return []Message{m}, nil
	default:
		return nil, fmt.Errorf("unexpected %q at start of bayeux response", trimmed[0])
	}
}
