package server

import (
	"context"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dara-forge/forge/pkg/fingerprint"
	"github.com/dara-forge/forge/pkg/manifest"
	"github.com/dara-forge/forge/pkg/orchestrator"
	"github.com/dara-forge/forge/pkg/poller"
)

const notReady = "not ready"

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

type verifyResponse struct {
	OK       bool   `json:"ok"`
	Root     string `json:"root"`
	Computed string `json:"computed,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type fileResponse struct {
	Name     string `json:"name"`
	Root     string `json:"root"`
	Size     int64  `json:"size,omitempty"`
	OK       bool   `json:"ok"`
	Status   string `json:"status"`
	Endpoint string `json:"endpoint,omitempty"`
	Computed string `json:"computed,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

type manifestResponse struct {
	OK             bool           `json:"ok"`
	Dataset        string         `json:"dataset,omitempty"`
	ManifestRootOK *bool          `json:"manifest_root_ok,omitempty"`
	ListingRoot    string         `json:"listing_root,omitempty"`
	Files          []fileResponse `json:"files"`
}

func (s *Server) fail(c *gin.Context, code int, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(code, errorResponse{Error: err.Error(), RequestID: RequestID(c)})
}

// parseRoot answers 400 for a missing or malformed root.
func (s *Server) parseRoot(c *gin.Context) (fingerprint.Fingerprint, bool) {
	fp, err := fingerprint.Parse(c.Query("root"))
	if err != nil {
		if c.Request.Method == http.MethodHead {
			c.AbortWithStatus(http.StatusBadRequest)
		} else {
			s.fail(c, http.StatusBadRequest, err)
		}
		return fingerprint.Fingerprint{}, false
	}
	return fp, true
}

// headFile runs a single probe cycle.
func (s *Server) headFile(c *gin.Context) {
	fp, ok := s.parseRoot(c)
	if !ok {
		return
	}
	if _, hit := s.cached(fp.String()); hit {
		c.Status(http.StatusOK)
		return
	}

	res, err := s.checker.PollUntilAvailable(c.Request.Context(), s.opts.Endpoints, fp, poller.Policy{Interval: s.opts.Policy.Interval})
	if err != nil {
		_ = c.Error(err)
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	if !res.Available {
		s.retryAfter(c)
		c.Status(http.StatusNotFound)
		return
	}
	c.Status(http.StatusOK)
}

// retrieve shares one retrieval between concurrent requests for the same
// key. The retrieval outlives a disconnecting client; the policy bounds it.
func (s *Server) retrieve(c *gin.Context, key string, req orchestrator.Request) (orchestrator.Outcome, error) {
	ctx := context.WithoutCancel(c.Request.Context())
	v, err, shared := s.flight.Do(key, func() (any, error) {
		out, err := s.retr.RetrieveAndVerify(ctx, req)
		if err != nil {
			return out, err
		}
		s.observe(out)
		s.store(req.Root, out)
		return out, nil
	})
	if shared {
		c.Set(sharedKey, true)
	}
	out, _ := v.(orchestrator.Outcome)
	return out, err
}

func (s *Server) getFile(c *gin.Context) {
	fp, ok := s.parseRoot(c)
	if !ok {
		return
	}
	root := fp.String()
	name := c.Query("name")

	if e, hit := s.cached(root); hit {
		writeContent(c, e.Data, e.ContentType, name)
		return
	}

	out, err := s.retrieve(c, "file:"+root, orchestrator.Request{
		Endpoints: s.opts.Endpoints,
		Root:      root,
		Policy:    s.opts.Policy,
		Name:      name,
	})
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}

	switch out.Status {
	case orchestrator.Success:
		writeContent(c, out.Data, out.ContentType, name)
	case orchestrator.Timeout:
		s.retryAfter(c)
		c.String(http.StatusNotFound, notReady)
	default:
		c.AbortWithStatusJSON(http.StatusBadGateway, errorResponse{Error: out.Reason, RequestID: RequestID(c)})
	}
}

func (s *Server) verify(c *gin.Context) {
	fp, ok := s.parseRoot(c)
	if !ok {
		return
	}
	root := fp.String()

	if e, hit := s.cached(root); hit && e.Verified {
		c.JSON(http.StatusOK, verifyResponse{OK: true, Root: root, Computed: root})
		return
	}

	out, err := s.retrieve(c, "verify:"+root, orchestrator.Request{
		Endpoints: s.opts.Endpoints,
		Root:      root,
		Expected:  root,
		Policy:    s.opts.Policy,
	})
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, verifyResponse{Root: root, Reason: err.Error()})
		return
	}

	resp := verifyResponse{OK: out.Verified, Root: root, Computed: out.Computed}
	switch {
	case out.Status == orchestrator.Success:
		c.JSON(http.StatusOK, resp)
	case out.Status == orchestrator.Timeout:
		resp.Reason = notReady
		s.retryAfter(c)
		c.JSON(http.StatusNotFound, resp)
	case out.Reason == orchestrator.ReasonIntegrityMismatch:
		s.evict(root)
		resp.Reason = out.Reason
		c.JSON(http.StatusUnprocessableEntity, resp)
	default:
		resp.Reason = out.Reason
		c.JSON(http.StatusInternalServerError, resp)
	}
}

func (s *Server) verifyManifest(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxManifestBody+1))
	if err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	if len(body) > maxManifestBody {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, errorResponse{Error: "manifest too large", RequestID: RequestID(c)})
		return
	}
	m, err := manifest.Parse(body)
	if err != nil {
		s.fail(c, http.StatusBadRequest, err)
		return
	}

	rep, err := s.retr.VerifyManifest(c.Request.Context(), m, orchestrator.ManifestOptions{
		Endpoints:   s.opts.Endpoints,
		Policy:      s.opts.Policy,
		Concurrency: s.opts.ManifestConcurrency,
	})
	if err != nil {
		s.fail(c, http.StatusInternalServerError, err)
		return
	}

	resp := manifestResponse{OK: rep.OK, Dataset: m.Dataset, Files: make([]fileResponse, 0, len(rep.Files))}
	if rep.RootChecked {
		resp.ManifestRootOK = &rep.RootOK
		resp.ListingRoot = rep.ListingRoot
	}
	for _, f := range rep.Files {
		s.observe(f.Outcome)
		if f.OK {
			s.store(f.Root, f.Outcome)
		}
		resp.Files = append(resp.Files, fileResponse{
			Name:     f.Name,
			Root:     f.Root,
			Size:     f.Size,
			OK:       f.OK,
			Status:   f.Outcome.Status.String(),
			Endpoint: f.Outcome.Endpoint,
			Computed: f.Outcome.Computed,
			Reason:   f.Outcome.Reason,
		})
	}

	code := http.StatusOK
	if !rep.OK {
		code = http.StatusUnprocessableEntity
	}
	c.JSON(code, resp)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "endpoints": len(s.opts.Endpoints)})
}

func writeContent(c *gin.Context, data []byte, upstream, name string) {
	if name != "" {
		c.Header("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": name}))
	}
	c.Data(http.StatusOK, contentType(upstream, name), data)
}

// contentType prefers a specific upstream type, then the file extension.
func contentType(upstream, name string) string {
	if upstream != "" && !strings.HasPrefix(upstream, "application/octet-stream") {
		return upstream
	}
	if name != "" {
		if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
			return ct
		}
	}
	return "application/octet-stream"
}
