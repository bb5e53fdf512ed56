package vendorapi

import (
	"context"
	"net/http"

	"github.com/hive-corporation/sochub/internal/core/ports"
)

// AuthProvider attaches the vendor's credential to an outbound request.
// API-key vendors use a static header or query parameter; OAuth2 vendors go
// through a TokenSource.
type AuthProvider interface {
	Apply(ctx context.Context, req *http.Request) error
}

// HeaderAuth sets a fixed header, e.g. x-apikey or Authorization: Bearer <key>.
type HeaderAuth struct {
	Header string
	Value  string
}

func (a HeaderAuth) Apply(_ context.Context, req *http.Request) error {
	req.Header.Set(a.Header, a.Value)
	return nil
}

// QueryAuth appends the key as a query parameter (Shodan style).
type QueryAuth struct {
	Param string
	Value string
}

func (a QueryAuth) Apply(_ context.Context, req *http.Request) error {
	q := req.URL.Query()
	q.Set(a.Param, a.Value)
	req.URL.RawQuery = q.Encode()
	return nil
}

// TokenAuth resolves a bearer token from a TokenSource on every request.
// The source caches tokens, so this is a network call only on expiry.
type TokenAuth struct {
	Source ports.TokenSource
}

func (a TokenAuth) Apply(ctx context.Context, req *http.Request) error {
	token, err := a.Source.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token.Value)
	return nil
}
