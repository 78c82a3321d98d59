package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"

	"github.com/dara-forge/forge/pkg/fingerprint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONEnvelopeClassifier(t *testing.T) {
	tests := []struct {
		name  string
		codes []int
		body  string
		want  Verdict
	}{
		{name: "not found code", body: `{"code":101,"message":"file not found"}`, want: VerdictNotFound},
		{name: "not found code without message", body: `{"code":101}`, want: VerdictNotFound},
		{name: "message only", body: `{"error":"root not found"}`, want: VerdictNotFound},
		{name: "message with odd spacing", body: `{"code":3,"message":"NotFound"}`, want: VerdictNotFound},
		{name: "success envelope", body: `{"code":0,"message":"ok","data":{}}`, want: VerdictUnknown},
		{name: "other error", body: `{"code":12,"message":"too busy"}`, want: VerdictTransient},
		{name: "code without message", body: `{"code":12}`, want: VerdictUnknown},
		{name: "custom codes", codes: []int{404}, body: `{"code":404,"message":"missing"}`, want: VerdictNotFound},
		{name: "default code not in custom list", codes: []int{404}, body: `{"code":101,"message":"busy"}`, want: VerdictTransient},
		{name: "truncated json", body: `{"code":1`, want: VerdictUnknown},
		{name: "array", body: `[1,2,3]`, want: VerdictUnknown},
		{name: "non numeric code", body: `{"code":"abc"}`, want: VerdictUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewJSONEnvelopeClassifier(tt.codes)
			assert.Equal(t, tt.want, c.Classify(http.StatusOK, "application/json", []byte(tt.body)))
		})
	}
}

func TestChainClassifier_FirstDecisiveWins(t *testing.T) {
	calls := 0
	counting := ClassifierFunc(func(int, string, []byte) Verdict {
		calls++
		return VerdictTransient
	})
	chain := ChainClassifier{nil, NewJSONEnvelopeClassifier(nil), counting}

	assert.Equal(t, VerdictNotFound, chain.Classify(200, "application/json", []byte(`{"code":101}`)))
	assert.Equal(t, 0, calls)

	assert.Equal(t, VerdictTransient, chain.Classify(200, "application/json", []byte(`{}`)))
	assert.Equal(t, 1, calls)
}

func TestIsStructured(t *testing.T) {
	assert.True(t, IsStructured("application/json"))
	assert.True(t, IsStructured("application/json; charset=utf-8"))
	assert.True(t, IsStructured("text/json"))
	assert.True(t, IsStructured("application/problem+json"))
	assert.False(t, IsStructured("application/octet-stream"))
	assert.False(t, IsStructured("text/plain"))
	assert.False(t, IsStructured(""))
}

func TestClassifyStatus(t *testing.T) {
	tests := map[int]ProbeStatus{
		http.StatusNotFound:            NotYetAvailable,
		http.StatusRequestTimeout:      TransientError,
		http.StatusTooManyRequests:     TransientError,
		http.StatusInternalServerError: TransientError,
		http.StatusServiceUnavailable:  TransientError,
		http.StatusBadRequest:          FatalError,
		http.StatusUnauthorized:        FatalError,
		http.StatusFound:               TransientError,
	}
	for code, want := range tests {
		t.Run(fmt.Sprint(code), func(t *testing.T) {
			res := ClassifyStatus(code)
			assert.Equal(t, want, res.Status)
			assert.Equal(t, code, res.StatusCode)
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ProbeStatus
	}{
		{name: "canceled", err: context.Canceled, want: TransientError},
		{name: "deadline", err: fmt.Errorf("get: %w", context.DeadlineExceeded), want: TransientError},
		{name: "dns", err: &net.DNSError{Err: "no such host", Name: "indexer.invalid"}, want: TransientError},
		{name: "net timeout", err: timeoutErr{}, want: TransientError},
		{name: "refused", err: errors.New("dial tcp: connection refused"), want: TransientError},
		{name: "bad scheme", err: errors.New(`unsupported protocol scheme "ftp"`), want: FatalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(tt.err).Status)
		})
	}
	assert.Equal(t, Available, ClassifyError(nil).Status)
}

func TestClient_FileURL(t *testing.T) {
	c := NewClient(0, "")
	assert.Equal(t, DefaultUserAgent, c.UserAgent())

	fp, err := fingerprint.Compute(fingerprint.SHA256, []byte("hello world"))
	require.NoError(t, err)

	u, err := c.FileURL(Endpoint{BaseURL: "https://indexer.example.com/api/"}, fp, "data set.csv")
	require.NoError(t, err)
	assert.Equal(t, "https://indexer.example.com/api/file?name=data+set.csv&root="+fp.String(), u)

	_, err = c.FileURL(Endpoint{BaseURL: ""}, fp, "")
	require.Error(t, err)

	_, err = c.FileURL(Endpoint{BaseURL: "https://indexer.example.com"}, fingerprint.Fingerprint{}, "")
	require.Error(t, err)
}

func TestSortEndpoints(t *testing.T) {
	eps := []Endpoint{
		{Name: "c", Priority: 2},
		{Name: "a", Priority: 1},
		{Name: "b", Priority: 1},
		{Name: "d", Priority: 0},
	}
	sorted := SortEndpoints(eps)
	names := make([]string, 0, len(sorted))
	for _, ep := range sorted {
		names = append(names, ep.Name)
	}
	assert.Equal(t, []string{"d", "a", "b", "c"}, names)
	assert.Equal(t, "c", eps[0].Name, "input must not be reordered")
}

func TestEndpoint_Validate(t *testing.T) {
	assert.NoError(t, Endpoint{BaseURL: "http://localhost:5678"}.Validate())
	assert.Error(t, Endpoint{BaseURL: "  "}.Validate())
	assert.Error(t, Endpoint{BaseURL: "localhost:5678"}.Validate())
	assert.Error(t, Endpoint{BaseURL: "http://"}.Validate())
	assert.Equal(t, "http://x", Endpoint{BaseURL: "http://x"}.String())
	assert.Equal(t, "mirror", Endpoint{Name: "mirror", BaseURL: "http://x"}.String())
}
