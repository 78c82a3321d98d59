package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"regexp"
	"strings"
)

// Verdict is a body classifier's opinion about a success-looking response.
type Verdict int

const (
	// VerdictUnknown defers to the next classifier, or to Available if none objects.
	VerdictUnknown Verdict = iota
	VerdictAvailable
	VerdictNotFound
	VerdictTransient
)

func (v Verdict) String() string {
	switch v {
	case VerdictAvailable:
		return "available"
	case VerdictNotFound:
		return "not_found"
	case VerdictTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// BodyClassifier inspects the body of a 2xx structured response.
type BodyClassifier interface {
	Classify(statusCode int, contentType string, body []byte) Verdict
}

// ClassifierFunc adapts a function to BodyClassifier.
type ClassifierFunc func(statusCode int, contentType string, body []byte) Verdict

// Classify implements BodyClassifier.
func (f ClassifierFunc) Classify(statusCode int, contentType string, body []byte) Verdict {
	return f(statusCode, contentType, body)
}

// ChainClassifier returns the first verdict that is not VerdictUnknown.
type ChainClassifier []BodyClassifier

// Classify implements BodyClassifier.
func (c ChainClassifier) Classify(statusCode int, contentType string, body []byte) Verdict {
	for _, cl := range c {
		if cl == nil {
			continue
		}
		if v := cl.Classify(statusCode, contentType, body); v != VerdictUnknown {
			return v
		}
	}
	return VerdictUnknown
}

// DefaultNotFoundCodes are indexer error codes meaning "file not found".
var DefaultNotFoundCodes = []int{101}

var notFoundPattern = regexp.MustCompile(`(?i)not\s*found`)

// JSONEnvelopeClassifier recognizes the indexer's {"code":..,"message":..} error envelope.
// It is a heuristic over an undocumented format and may miss new error shapes.
type JSONEnvelopeClassifier struct {
	NotFoundCodes []int
}

// NewJSONEnvelopeClassifier returns a classifier for the given codes, or the defaults when empty.
func NewJSONEnvelopeClassifier(codes []int) *JSONEnvelopeClassifier {
	if len(codes) == 0 {
		codes = DefaultNotFoundCodes
	}
	return &JSONEnvelopeClassifier{NotFoundCodes: codes}
}

type envelope struct {
	Code    *json.Number `json:"code"`
	Message *string      `json:"message"`
	Error   *string      `json:"error"`
}

// Classify implements BodyClassifier.
func (c *JSONEnvelopeClassifier) Classify(_ int, _ string, body []byte) Verdict {
	var env envelope
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return VerdictUnknown
	}

	msg := ""
	if env.Message != nil {
		msg = *env.Message
	}
	if env.Error != nil && msg == "" {
		msg = *env.Error
	}

	if env.Code != nil {
		code, err := env.Code.Int64()
		if err == nil {
			for _, nf := range c.NotFoundCodes {
				if int64(nf) == code {
					return VerdictNotFound
				}
			}
		}
		if msg != "" && notFoundPattern.MatchString(msg) {
			return VerdictNotFound
		}
		if err == nil && code != 0 && (env.Message != nil || env.Error != nil) {
			return VerdictTransient
		}
		return VerdictUnknown
	}

	if env.Error != nil && notFoundPattern.MatchString(*env.Error) {
		return VerdictNotFound
	}
	return VerdictUnknown
}

// IsStructured reports whether a content type carries machine-readable data
// that might encode an error despite a 2xx status.
func IsStructured(contentType string) bool {
	if contentType == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	return mt == "application/json" || mt == "text/json" || strings.HasSuffix(mt, "+json")
}

// ClassifyStatus maps a non-success HTTP status onto a probe status.
func ClassifyStatus(statusCode int) ProbeResult {
	reason := fmt.Sprintf("HTTP %d", statusCode)
	switch {
	case statusCode == http.StatusNotFound:
		return ProbeResult{Status: NotYetAvailable, Reason: reason, StatusCode: statusCode}
	case statusCode == http.StatusRequestTimeout,
		statusCode == http.StatusTooEarly,
		statusCode == http.StatusTooManyRequests,
		statusCode >= 500:
		return ProbeResult{Status: TransientError, Reason: reason, StatusCode: statusCode}
	case statusCode >= 400:
		return ProbeResult{Status: FatalError, Reason: reason, StatusCode: statusCode}
	default:
		return ProbeResult{Status: TransientError, Reason: "unexpected " + reason, StatusCode: statusCode}
	}
}

// ClassifyError maps a transport error onto a probe status.
func ClassifyError(err error) ProbeResult {
	if err == nil {
		return ProbeResult{Status: Available}
	}
	if errors.Is(err, context.Canceled) {
		return ProbeResult{Status: TransientError, Reason: "canceled"}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ProbeResult{Status: TransientError, Reason: "timeout"}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ProbeResult{Status: TransientError, Reason: "dns: " + dnsErr.Err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ProbeResult{Status: TransientError, Reason: "timeout"}
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "unsupported protocol scheme") {
		return ProbeResult{Status: FatalError, Reason: err.Error()}
	}
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "connection reset") {
		return ProbeResult{Status: TransientError, Reason: "connection failed"}
	}
	return ProbeResult{Status: TransientError, Reason: err.Error()}
}
