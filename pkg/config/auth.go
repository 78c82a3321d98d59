package config

import (
	"github.com/dara-forge/forge/pkg/auth"
	"github.com/dara-forge/forge/pkg/errors"
)

// AuthConfig holds the credentials for one endpoint. Exactly one scheme may be set.
type AuthConfig struct {
	BasicAuth  *BasicAuth  `yaml:"basic,omitempty"`
	HeaderAuth *HeaderAuth `yaml:"header,omitempty"`
	BearerAuth *BearerAuth `yaml:"bearer,omitempty"`
}

// BasicAuth holds configuration for HTTP Basic Authentication.
type BasicAuth struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// HeaderAuth holds fixed request headers such as an indexer API key.
type HeaderAuth struct {
	Headers map[string]string `yaml:"headers"`
}

// BearerAuth holds a bearer token.
type BearerAuth struct {
	Token string `yaml:"token"`
}

// Validate rejects auth blocks naming zero or several schemes. A nil block is valid.
func (a *AuthConfig) Validate() error {
	if a == nil {
		return nil
	}
	n := 0
	for _, set := range []bool{a.BasicAuth != nil, a.HeaderAuth != nil, a.BearerAuth != nil} {
		if set {
			n++
		}
	}
	if n != 1 {
		return errors.ErrInvalidAuth
	}
	return nil
}

// ToAuthenticator converts the block to an Authenticator, or nil when unset.
func (a *AuthConfig) ToAuthenticator() auth.Authenticator {
	switch {
	case a == nil:
		return nil
	case a.BasicAuth != nil:
		return auth.BasicAuth{Username: a.BasicAuth.Username, Password: a.BasicAuth.Password}
	case a.HeaderAuth != nil:
		return auth.HeaderAuth{Headers: a.HeaderAuth.Headers}
	case a.BearerAuth != nil:
		return auth.BearerAuth{Token: a.BearerAuth.Token}
	default:
		return nil
	}
}

// Authenticators maps enabled endpoint names to their credentials.
// Returns nil when no endpoint is authenticated.
func (c *Config) Authenticators() map[string]auth.Authenticator {
	results := make(map[string]auth.Authenticator)
	for _, ep := range c.Endpoints {
		if !ep.IsEnabled() {
			continue
		}
		if a := ep.Auth.ToAuthenticator(); a != nil {
			results[ep.Name] = a
		}
	}
	if len(results) == 0 {
		return nil
	}
	return results
}
