// Package server is the HTTP face of forge: a proxy that holds requests
// until content is retrievable, streams it, and verifies it on demand.
package server

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/singleflight"

	"github.com/dara-forge/forge/internal/logger"
	"github.com/dara-forge/forge/pkg/cache"
	"github.com/dara-forge/forge/pkg/gateway"
	"github.com/dara-forge/forge/pkg/manifest"
	"github.com/dara-forge/forge/pkg/metrics"
	"github.com/dara-forge/forge/pkg/orchestrator"
	"github.com/dara-forge/forge/pkg/poller"
)

const (
	// DefaultRetryAfter is the Retry-After value, in seconds, on not-ready answers.
	DefaultRetryAfter = 5

	shutdownTimeout = 10 * time.Second
	maxManifestBody = 4 << 20
)

// Retriever runs bounded retrievals and manifest checks.
type Retriever interface {
	RetrieveAndVerify(ctx context.Context, req orchestrator.Request) (orchestrator.Outcome, error)
	VerifyManifest(ctx context.Context, m *manifest.Manifest, opts orchestrator.ManifestOptions) (orchestrator.ManifestReport, error)
}

// Options configure a Server.
type Options struct {
	Endpoints []gateway.Endpoint
	// Policy bounds how long GET requests wait for content.
	Policy              poller.Policy
	RetryAfter          int
	ManifestConcurrency int
}

// Server routes proxy requests to the orchestrator.
type Server struct {
	engine  *gin.Engine
	retr    Retriever
	checker orchestrator.Poller
	cache   *cache.ContentCache
	metrics *metrics.Metrics
	opts    Options
	flight  singleflight.Group
}

// New builds the gin engine. cache and m may be nil.
func New(retr Retriever, checker orchestrator.Poller, c *cache.ContentCache, m *metrics.Metrics, opts Options) *Server {
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = DefaultRetryAfter
	}
	if opts.Policy.Interval <= 0 {
		opts.Policy.Interval = poller.DefaultInterval
	}
	opts.Endpoints = gateway.SortEndpoints(opts.Endpoints)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog())
	if m != nil {
		r.Use(m.Middleware())
		if c != nil {
			m.WatchCache(c)
		}
	}

	s := &Server{engine: r, retr: retr, checker: checker, cache: c, metrics: m, opts: opts}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.HEAD("/file", s.headFile)
	s.engine.GET("/file", s.getFile)
	s.engine.GET("/verify", s.verify)
	s.engine.POST("/manifest/verify", s.verifyManifest)
	s.engine.GET("/healthz", s.health)
	if s.metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
}

// Handler exposes the engine, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is canceled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("proxy listening", logger.Fields{"addr": ln.Addr().String(), "endpoints": len(s.opts.Endpoints)})
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down proxy")
	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(stopCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) retryAfter(c *gin.Context) {
	c.Header("Retry-After", strconv.Itoa(s.opts.RetryAfter))
}

func (s *Server) observe(out orchestrator.Outcome) {
	if s.metrics != nil {
		s.metrics.ObserveRetrieval(out.Status.String(), out.Elapsed)
	}
}

func (s *Server) cached(root string) (cache.Entry, bool) {
	if s.cache == nil {
		return cache.Entry{}, false
	}
	e, ok := s.cache.Get(root)
	if s.metrics != nil {
		s.metrics.ObserveCache(ok)
	}
	return e, ok
}

// evict drops cached bytes for root after they failed verification.
func (s *Server) evict(root string) {
	if s.cache != nil {
		s.cache.Delete(root)
	}
}

func (s *Server) store(root string, out orchestrator.Outcome) {
	if s.cache == nil || out.Status != orchestrator.Success {
		return
	}
	err := s.cache.Set(root, cache.Entry{Data: out.Data, ContentType: out.ContentType, Verified: out.Verified})
	if err != nil {
		logger.Debug("not caching content", logger.Fields{"root": root, "error": err.Error()})
	}
}
