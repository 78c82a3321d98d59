package gateway

import (
	"net/url"
	"sort"
	"strings"

	"github.com/dara-forge/forge/pkg/errors"
)

// Endpoint is a gateway base URL that can serve content by fingerprint.
// Lower Priority values are tried first.
type Endpoint struct {
	Name     string
	BaseURL  string
	Priority int
}

// String returns the endpoint name, or its URL when unnamed.
func (e Endpoint) String() string {
	if e.Name != "" {
		return e.Name
	}
	return e.BaseURL
}

// Validate checks that the base URL is usable. Errors here are not retryable.
func (e Endpoint) Validate() error {
	if strings.TrimSpace(e.BaseURL) == "" {
		return errors.Wrapf(errors.ErrEmptyEndpoint, "endpoint %q", e.Name)
	}
	u, err := url.Parse(e.BaseURL)
	if err != nil {
		return errors.Wrapf(errors.ErrInvalidEndpoint, "%s: %v", e.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.Wrapf(errors.ErrInvalidEndpoint, "%s: unsupported scheme %q", e.BaseURL, u.Scheme)
	}
	if u.Host == "" {
		return errors.Wrapf(errors.ErrInvalidEndpoint, "%s: missing host", e.BaseURL)
	}
	return nil
}

// SortEndpoints returns a copy ordered by priority, keeping the given order for ties.
func SortEndpoints(eps []Endpoint) []Endpoint {
	out := make([]Endpoint, len(eps))
	copy(out, eps)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}
