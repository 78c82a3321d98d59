// Package auth attaches gateway credentials to outgoing requests.
//
//go:generate mockgen -destination=./mocks/auth.go . Authenticator
package auth

import (
	"net/http"
	"sort"
	"strings"
)

// Authenticator decorates a gateway request with credentials.
type Authenticator interface {
	Apply(req *http.Request) error
	Type() Type
	// Redacted describes the credential without exposing secrets.
	Redacted() string
}

// Type names an authentication scheme.
type Type string

// Authentication schemes understood by gateways.
const (
	BasicAuthType  Type = "basic"
	HeaderAuthType Type = "header"
	BearerAuthType Type = "bearer"
)

// BasicAuth sends HTTP Basic credentials.
type BasicAuth struct {
	Username string
	Password string
}

// HeaderAuth sends fixed headers, typically an indexer API key.
type HeaderAuth struct {
	Headers map[string]string
}

// BearerAuth sends an Authorization: Bearer token.
type BearerAuth struct {
	Token string
}

// Apply sets the Basic Authorization header.
func (b BasicAuth) Apply(req *http.Request) error {
	req.SetBasicAuth(b.Username, b.Password)
	return nil
}

// Type returns BasicAuthType.
func (b BasicAuth) Type() Type { return BasicAuthType }

// Redacted shows the user name only.
func (b BasicAuth) Redacted() string { return "basic " + b.Username + ":***" }

// Apply sets every configured header, replacing existing values.
func (h HeaderAuth) Apply(req *http.Request) error {
	for k, v := range h.Headers {
		req.Header.Set(k, v)
	}
	return nil
}

// Type returns HeaderAuthType.
func (h HeaderAuth) Type() Type { return HeaderAuthType }

// Redacted lists header names in sorted order.
func (h HeaderAuth) Redacted() string {
	names := make([]string, 0, len(h.Headers))
	for k := range h.Headers {
		names = append(names, http.CanonicalHeaderKey(k))
	}
	sort.Strings(names)
	return "header " + strings.Join(names, ",")
}

// Apply sets the Bearer Authorization header.
func (b BearerAuth) Apply(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+b.Token)
	return nil
}

// Type returns BearerAuthType.
func (b BearerAuth) Type() Type { return BearerAuthType }

// Redacted hides the token.
func (b BearerAuth) Redacted() string { return "bearer ***" }
