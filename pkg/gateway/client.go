package gateway

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/dara-forge/forge/pkg/auth"
	"github.com/dara-forge/forge/pkg/errors"
	"github.com/dara-forge/forge/pkg/fingerprint"
)

// DefaultUserAgent identifies forge to gateways.
const DefaultUserAgent = "forge/1.0"

// filePath is the indexer route serving content by root.
const filePath = "file"

// Client issues requests against gateway file routes.
type Client struct {
	client    *http.Client
	userAgent string
	auth      map[string]auth.Authenticator
}

// NewClient creates a gateway client with the given per-request timeout.
func NewClient(timeout time.Duration, userAgent string) *Client {
	return NewClientWithHTTP(&http.Client{Timeout: timeout}, userAgent)
}

// NewStreamingClient creates a client for whole-object transfers.
// headerTimeout bounds only the wait for response headers; reading the body
// is limited by the request context.
func NewStreamingClient(headerTimeout time.Duration, userAgent string) *Client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.ResponseHeaderTimeout = headerTimeout
	return NewClientWithHTTP(&http.Client{Transport: tr}, userAgent)
}

// NewClientWithHTTP wraps an existing http.Client.
func NewClientWithHTTP(hc *http.Client, userAgent string) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Client{client: hc, userAgent: userAgent}
}

// SetAuthenticators installs credentials keyed by endpoint name.
// Endpoints without an entry are contacted anonymously.
func (c *Client) SetAuthenticators(m map[string]auth.Authenticator) {
	c.auth = m
}

// UserAgent returns the configured user agent.
func (c *Client) UserAgent() string { return c.userAgent }

// HTTPClient exposes the underlying client.
func (c *Client) HTTPClient() *http.Client { return c.client }

// FileURL builds <base>/file?root=<fp>[&name=<name>].
func (c *Client) FileURL(ep Endpoint, fp fingerprint.Fingerprint, name string) (string, error) {
	if err := ep.Validate(); err != nil {
		return "", err
	}
	if fp.IsZero() {
		return "", errors.ErrMalformedFingerprint
	}
	u, err := url.Parse(ep.BaseURL)
	if err != nil {
		return "", errors.Wrap(errors.ErrInvalidEndpoint, err.Error())
	}
	u.Path, err = url.JoinPath(u.Path, filePath)
	if err != nil {
		return "", errors.Wrap(err, "failed to build file URL")
	}
	q := u.Query()
	q.Set("root", fp.String())
	if name != "" {
		q.Set("name", name)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Do sends a request to ep with the client's user agent, any extra headers
// and the endpoint's credentials.
func (c *Client) Do(ctx context.Context, ep Endpoint, method, rawURL string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, http.NoBody)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", c.userAgent)
	if a, ok := c.auth[ep.Name]; ok && a != nil {
		if err := a.Apply(req); err != nil {
			return nil, errors.Wrapf(err, "failed to authenticate against %s", ep)
		}
	}
	return c.client.Do(req)
}
