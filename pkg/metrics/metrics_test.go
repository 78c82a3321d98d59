package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dara-forge/forge/pkg/cache"
	"github.com/dara-forge/forge/pkg/gateway"
)

func TestObserveProbe(t *testing.T) {
	m := New()
	ep := gateway.Endpoint{Name: "primary", BaseURL: "http://x"}

	m.ObserveProbe(ep, gateway.ProbeResult{Status: gateway.NotYetAvailable}, 10*time.Millisecond)
	m.ObserveProbe(ep, gateway.ProbeResult{Status: gateway.NotYetAvailable}, 10*time.Millisecond)
	m.ObserveProbe(ep, gateway.ProbeResult{Status: gateway.Available}, 5*time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(m.probes.WithLabelValues("primary", "not_yet_available")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.probes.WithLabelValues("primary", "available")), 0)
}

func TestObserveRetrievalAndCache(t *testing.T) {
	m := New()
	m.ObserveRetrieval("success", time.Second)
	m.ObserveRetrieval("timeout", 20*time.Second)
	m.ObserveCache(true)
	m.ObserveCache(false)
	m.ObserveCache(false)

	assert.InDelta(t, 1, testutil.ToFloat64(m.retrievals.WithLabelValues("success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.retrievals.WithLabelValues("timeout")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")), 0)
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/file", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	for range 3 {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/file?root=0x00", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	assert.InDelta(t, 3, testutil.ToFloat64(m.requests.WithLabelValues("GET", "/file", "404")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.requests.WithLabelValues("GET", "unmatched", "404")), 0)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, `forge_http_requests_total{method="GET",route="/file",status="404"} 3`), body)
	assert.Contains(t, body, "go_goroutines")
}

type fixedStats int

func (n fixedStats) Stats() cache.Stats { return cache.Stats{Entries: int(n)} }

func TestWatchCache(t *testing.T) {
	m := New()
	m.WatchCache(fixedStats(3))

	expected := `
# HELP forge_cache_entries Objects held by the content cache.
# TYPE forge_cache_entries gauge
forge_cache_entries 3
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "forge_cache_entries"))
}
