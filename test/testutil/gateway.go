// Package testutil provides a scripted storage gateway for tests.
package testutil

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dara-forge/forge/pkg/fingerprint"
)

// NotFoundStyle selects how the gateway reports missing content.
type NotFoundStyle int

const (
	// SoftNotFound answers 200 OK with a JSON error envelope.
	SoftNotFound NotFoundStyle = iota
	// HardNotFound answers 404.
	HardNotFound
)

// SoftNotFoundBody is the indexer's disguised not-found payload.
const SoftNotFoundBody = `{"code":101,"message":"file not found","data":null}`

type object struct {
	data        []byte
	contentType string
}

// Gateway is an httptest server that mimics the indexer's /file route.
type Gateway struct {
	Server *httptest.Server

	mu       sync.Mutex
	objects  map[string]object
	misses   map[string]int
	failures []int
	style    NotFoundStyle
	hits     map[string]int
	methods  []string
}

// NewGateway starts a gateway that is closed with the test.
func NewGateway(t *testing.T) *Gateway {
	t.Helper()
	g := &Gateway{
		objects: make(map[string]object),
		misses:  make(map[string]int),
		hits:    make(map[string]int),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/file", g.serveFile)
	g.Server = httptest.NewServer(mux)
	t.Cleanup(g.Server.Close)
	return g
}

// URL returns the gateway base URL.
func (g *Gateway) URL() string { return g.Server.URL }

// Put stores data under its fingerprint, as an upload would, and returns the fingerprint.
func (g *Gateway) Put(t *testing.T, algo fingerprint.Algorithm, data []byte) fingerprint.Fingerprint {
	t.Helper()
	fp, err := fingerprint.Compute(algo, data)
	if err != nil {
		t.Fatalf("computing fingerprint: %v", err)
	}
	g.PutAs(fp, data, "")
	return fp
}

// PutAs stores arbitrary bytes under root, which need not match their fingerprint.
func (g *Gateway) PutAs(root fingerprint.Fingerprint, data []byte, contentType string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.objects[root.String()] = object{data: append([]byte(nil), data...), contentType: contentType}
}

// DelayAvailability makes the next n requests for root answer "not found".
func (g *Gateway) DelayAvailability(root fingerprint.Fingerprint, n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.misses[root.String()] = n
}

// FailNext makes the next requests answer with the given status codes, in order.
func (g *Gateway) FailNext(codes ...int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures = append(g.failures, codes...)
}

// SetNotFoundStyle switches between disguised and plain not-found answers.
func (g *Gateway) SetNotFoundStyle(s NotFoundStyle) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.style = s
}

// Hits returns how many requests were made for root.
func (g *Gateway) Hits(root fingerprint.Fingerprint) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hits[root.String()]
}

// Methods returns the HTTP methods received, in order.
func (g *Gateway) Methods() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.methods...)
}

func (g *Gateway) serveFile(w http.ResponseWriter, r *http.Request) {
	root := r.URL.Query().Get("root")
	fp, err := fingerprint.Parse(root)
	if err != nil {
		http.Error(w, fmt.Sprintf(`{"code":400,"message":%q}`, err.Error()), http.StatusBadRequest)
		return
	}
	key := fp.String()

	g.mu.Lock()
	g.hits[key]++
	g.methods = append(g.methods, r.Method)
	if len(g.failures) > 0 {
		code := g.failures[0]
		g.failures = g.failures[1:]
		g.mu.Unlock()
		w.WriteHeader(code)
		return
	}
	obj, ok := g.objects[key]
	if ok && g.misses[key] > 0 {
		g.misses[key]--
		ok = false
	}
	style := g.style
	g.mu.Unlock()

	if !ok {
		if style == HardNotFound {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(SoftNotFoundBody))
		return
	}

	ct := obj.contentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(obj.data))
}
