package gobayeux

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"golang.org/x/net/publicsuffix"
)

const maxErrorBodyBytes = 4096

// Transport sends one batch of messages as a single request and returns the
// reply batch in the order the server produced it. Implementations carry no
// protocol semantics and never retry; failures are reported as
// *TransportError.
type Transport interface {
	Send(ctx context.Context, ms []Message) ([]Message, error)
}

// TransportFunc adapts a function to the Transport interface
type TransportFunc func(ctx context.Context, ms []Message) ([]Message, error)

// Send implements Transport
func (fn TransportFunc) Send(ctx context.Context, ms []Message) ([]Message, error) {
	return fn(ctx, ms)
}

// HTTPTransport is the long-polling Transport: every batch is POSTed as a
// JSON array to the server address.
type HTTPTransport struct {
	client        *http.Client
	serverAddress *url.URL
}

// NewHTTPTransport builds an HTTPTransport. A nil client gets a fresh
// http.Client with a cookie jar so server affinity cookies survive between
// the handshake and later requests.
func NewHTTPTransport(client *http.Client, serverAddress string) (*HTTPTransport, error) {
	parsedAddress, err := url.Parse(serverAddress)
	if err != nil {
		return nil, err
	}

	if client == nil {
		client, err = newDefaultHTTPClient(nil)
		if err != nil {
			return nil, err
		}
	}

	return &HTTPTransport{client: client, serverAddress: parsedAddress}, nil
}

func newDefaultHTTPClient(rt http.RoundTripper) (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	if rt == nil {
		rt = http.DefaultTransport
	}
	return &http.Client{Jar: jar, Transport: rt}, nil
}

// Send implements Transport
func (t *HTTPTransport) Send(ctx context.Context, ms []Message) ([]Message, error) {
	body, err := EncodeMessages(ms)
	if err != nil {
		return nil, &TransportError{Kind: TransportMalformedBody, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.serverAddress.String(), bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Kind: TransportNetwork, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &TransportError{Kind: classifyRequestError(ctx, err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &TransportError{
			Kind: TransportHTTPStatus,
			Err:  BadResponseError{resp.StatusCode, resp.Status, excerpt},
		}
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Kind: classifyRequestError(ctx, err), Err: err}
	}

	messages, err := DecodeMessages(payload)
	if err != nil {
		return nil, &TransportError{Kind: TransportMalformedBody, Err: err}
	}
	return messages, nil
}

func classifyRequestError(ctx context.Context, err error) TransportErrorKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return TransportTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return TransportTimeout
	}
	return TransportNetwork
}
