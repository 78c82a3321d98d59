//go:generate mockgen -destination=./mocks/gateway.go . Prober

package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dara-forge/forge/internal/logger"
	"github.com/dara-forge/forge/pkg/fingerprint"
)

// ProbeStatus classifies one availability check.
type ProbeStatus int

const (
	// Available means the content can be downloaded now.
	Available ProbeStatus = iota + 1
	// NotYetAvailable means the gateway does not have the content yet.
	NotYetAvailable
	// TransientError is a failure that may resolve on retry.
	TransientError
	// FatalError is a configuration or input error retrying cannot fix.
	FatalError
)

func (s ProbeStatus) String() string {
	switch s {
	case Available:
		return "available"
	case NotYetAvailable:
		return "not_yet_available"
	case TransientError:
		return "transient_error"
	case FatalError:
		return "fatal_error"
	default:
		return "unknown"
	}
}

// ProbeResult is the outcome of a single probe.
type ProbeResult struct {
	Status     ProbeStatus
	Reason     string
	StatusCode int
}

func (r ProbeResult) String() string {
	if r.Reason == "" {
		return r.Status.String()
	}
	return fmt.Sprintf("%s (%s)", r.Status, r.Reason)
}

// Prober checks whether an endpoint can serve a fingerprint.
type Prober interface {
	Probe(ctx context.Context, ep Endpoint, fp fingerprint.Fingerprint) ProbeResult
}

// ProbeMethod selects how availability is checked.
type ProbeMethod string

const (
	// MethodRange issues GET with Range: bytes=0-0.
	MethodRange ProbeMethod = "range"
	// MethodHead issues HEAD and falls back to a ranged GET when HEAD is rejected or inconclusive.
	MethodHead ProbeMethod = "head"
)

// Valid reports whether m is a known probe method.
func (m ProbeMethod) Valid() bool {
	return m == MethodRange || m == MethodHead
}

// MaxEnvelopeBody bounds how much of a structured body is inspected
// for an error envelope.
const MaxEnvelopeBody = 64 * 1024

// HTTPProber probes gateway file routes over HTTP.
type HTTPProber struct {
	client     *Client
	method     ProbeMethod
	classifier BodyClassifier
}

// ProberOption customizes an HTTPProber.
type ProberOption func(*HTTPProber)

// WithMethod sets the probe method.
func WithMethod(m ProbeMethod) ProberOption {
	return func(p *HTTPProber) {
		if m.Valid() {
			p.method = m
		}
	}
}

// WithClassifier replaces the body classifier.
func WithClassifier(c BodyClassifier) ProberOption {
	return func(p *HTTPProber) {
		if c != nil {
			p.classifier = c
		}
	}
}

// NewHTTPProber creates a prober that uses ranged GETs and the JSON envelope classifier by default.
func NewHTTPProber(client *Client, opts ...ProberOption) *HTTPProber {
	p := &HTTPProber{
		client:     client,
		method:     MethodRange,
		classifier: NewJSONEnvelopeClassifier(nil),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe implements Prober.
func (p *HTTPProber) Probe(ctx context.Context, ep Endpoint, fp fingerprint.Fingerprint) ProbeResult {
	if fp.IsZero() {
		return ProbeResult{Status: FatalError, Reason: "malformed fingerprint"}
	}
	fileURL, err := p.client.FileURL(ep, fp, "")
	if err != nil {
		return ProbeResult{Status: FatalError, Reason: err.Error()}
	}

	res, fallback := p.probeOnce(ctx, ep, p.method, fileURL)
	if fallback {
		logger.Debug("HEAD inconclusive, falling back to ranged GET", logger.Fields{"endpoint": ep.String()})
		res, _ = p.probeOnce(ctx, ep, MethodRange, fileURL)
	}

	fields := logger.Fields{"endpoint": ep.String(), "root": fp.String(), "status": res.Status.String()}
	if res.Reason != "" {
		fields["reason"] = res.Reason
	}
	logger.Debug("probe", fields)
	return res
}

// probeOnce reports fallback=true when a HEAD answer cannot be trusted on its own:
// the gateway rejected HEAD, or a 2xx carries a structured type whose body HEAD omits.
func (p *HTTPProber) probeOnce(ctx context.Context, ep Endpoint, method ProbeMethod, fileURL string) (ProbeResult, bool) {
	httpMethod := http.MethodGet
	header := http.Header{}
	if method == MethodHead {
		httpMethod = http.MethodHead
	} else {
		header.Set("Range", "bytes=0-0")
	}

	resp, err := p.client.Do(ctx, ep, httpMethod, fileURL, header)
	if err != nil {
		return ClassifyError(err), false
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, MaxEnvelopeBody))
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
		if method == MethodHead && IsStructured(resp.Header.Get("Content-Type")) {
			return ProbeResult{}, true
		}
		return p.classifyBody(resp, httpMethod), false
	case http.StatusRequestedRangeNotSatisfiable:
		// Zero-length content cannot satisfy bytes=0-0 but exists.
		return ProbeResult{Status: Available, StatusCode: resp.StatusCode}, false
	case http.StatusMethodNotAllowed, http.StatusNotImplemented:
		if method == MethodHead {
			return ProbeResult{}, true
		}
	}
	return ClassifyStatus(resp.StatusCode), false
}

func (p *HTTPProber) classifyBody(resp *http.Response, httpMethod string) ProbeResult {
	ct := resp.Header.Get("Content-Type")
	if httpMethod == http.MethodHead || !IsStructured(ct) {
		return ProbeResult{Status: Available, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxEnvelopeBody))
	if err != nil {
		return ProbeResult{Status: TransientError, Reason: "reading probe body: " + err.Error(), StatusCode: resp.StatusCode}
	}

	switch p.classifier.Classify(resp.StatusCode, ct, body) {
	case VerdictNotFound:
		return ProbeResult{Status: NotYetAvailable, Reason: "gateway reported not found: " + snippet(body), StatusCode: resp.StatusCode}
	case VerdictTransient:
		return ProbeResult{Status: TransientError, Reason: "gateway error: " + snippet(body), StatusCode: resp.StatusCode}
	default:
		return ProbeResult{Status: Available, StatusCode: resp.StatusCode}
	}
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 120 {
		s = s[:120] + "..."
	}
	return s
}
