// Package auth provides an http.RoundTripper that adds a bearer token to the
// requests a gobayeux client sends. Plug it in with gobayeux.WithHTTPTransport.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNoToken is returned when the token source produced an empty token
var ErrNoToken = errors.New("no token provided to authenticator transport")

// TokenSource returns the credential to send. It is called for every request
// so it may refresh the token as it sees fit.
type TokenSource func(ctx context.Context) (string, error)

// StaticToken returns a TokenSource that always yields token
func StaticToken(token string) TokenSource {
	return func(context.Context) (string, error) {
		return token, nil
	}
}

// BearerTokenAuthenticator adds an "Authorization: Bearer" header to requests
// bound for matching hosts
type BearerTokenAuthenticator struct {
	// Source supplies the token
	Source TokenSource
	// HostSuffix restricts authentication to hosts ending in it, for example
	// "salesforce.com". Requests to other hosts pass through untouched. An
	// empty HostSuffix authenticates every request.
	HostSuffix string
	// Transport is any http transport that satisfies the http.RoundTripper
	// interface. http.DefaultTransport is used when nil.
	Transport http.RoundTripper
}

// RoundTrip implements the RoundTripper interface
func (t *BearerTokenAuthenticator) RoundTrip(request *http.Request) (*http.Response, error) {
	transport := t.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	if t.HostSuffix != "" && !strings.HasSuffix(request.URL.Hostname(), t.HostSuffix) {
		return transport.RoundTrip(request)
	}
	if t.Source == nil {
		return nil, ErrNoToken
	}

	token, err := t.Source(request.Context())
	if err != nil {
		return nil, fmt.Errorf("unable to obtain token: %w", err)
	}
	if token == "" {
		return nil, ErrNoToken
	}

	newRequest := request.Clone(request.Context())
	newRequest.Header.Set("Authorization", "Bearer "+token)
	return transport.RoundTrip(newRequest)
}
