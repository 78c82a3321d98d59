package download

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dara-forge/forge/internal/logger"
	pkgerrors "github.com/dara-forge/forge/pkg/errors"
	"github.com/dara-forge/forge/pkg/fingerprint"
	"github.com/dara-forge/forge/pkg/fsutil"
	"github.com/dara-forge/forge/pkg/gateway"
)

// Manager downloads whole objects from gateway file routes. A download is
// attempted once; retrying is the poller's job.
type Manager struct {
	client     *gateway.Client
	classifier gateway.BodyClassifier
}

// NewManager creates a download manager. headerTimeout bounds the wait for
// response headers only; Options.Timeout bounds a whole transfer.
func NewManager(headerTimeout time.Duration, userAgent string) *Manager {
	return NewManagerWithClient(gateway.NewStreamingClient(headerTimeout, userAgent), nil)
}

// NewManagerWithClient uses an existing gateway client, which should not carry
// a whole-request timeout. classifier detects not-found envelopes served with
// a success status; nil uses the JSON envelope default.
func NewManagerWithClient(client *gateway.Client, classifier gateway.BodyClassifier) *Manager {
	if classifier == nil {
		classifier = gateway.NewJSONEnvelopeClassifier(nil)
	}
	return &Manager{client: client, classifier: classifier}
}

// Download fetches the complete object for fp from ep.
func (m *Manager) Download(ctx context.Context, ep gateway.Endpoint, fp fingerprint.Fingerprint, opts Options) (*Object, error) {
	fileURL, err := m.client.FileURL(ep, fp, opts.Name)
	if err != nil {
		return nil, err
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := m.client.Do(ctx, ep, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrDownloadFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d: %w", resp.StatusCode, pkgerrors.ErrDownloadFailed)
	}

	data, err := readLimited(resp.Body, opts.MaxBytes)
	if err != nil {
		return nil, err
	}

	ct := resp.Header.Get("Content-Type")
	if m.notFoundEnvelope(ct, data, opts) {
		return nil, fmt.Errorf("gateway answered with a not-found error envelope: %w", pkgerrors.ErrDownloadFailed)
	}

	logger.Debug("downloaded object", logger.Fields{
		"endpoint": ep.String(),
		"root":     fp.String(),
		"bytes":    len(data),
		"took":     time.Since(start).String(),
	})
	return &Object{Data: data, ContentType: ct, URL: fileURL}, nil
}

// notFoundEnvelope reports whether a 200 body is the indexer's not-found
// envelope instead of content. Bodies the caller verifies and bodies larger
// than any envelope are left alone; structured content may look like an
// envelope with an unrelated code.
func (m *Manager) notFoundEnvelope(contentType string, data []byte, opts Options) bool {
	if opts.Verify || len(data) > gateway.MaxEnvelopeBody || !gateway.IsStructured(contentType) {
		return false
	}
	return m.classifier.Classify(http.StatusOK, contentType, data) == gateway.VerdictNotFound
}

func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("reading body: %v: %w", err, pkgerrors.ErrDownloadFailed)
		}
		return data, nil
	}
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading body: %v: %w", err, pkgerrors.ErrDownloadFailed)
	}
	if n > maxBytes {
		return nil, fmt.Errorf("more than %d bytes: %w", maxBytes, pkgerrors.ErrObjectTooLarge)
	}
	return buf.Bytes(), nil
}

// WriteFile atomically stores data at path.
func WriteFile(path string, data []byte) error {
	if _, err := fsutil.WriteFileAtomic(path, bytes.NewReader(data), fsutil.FileModeDefault); err != nil {
		return pkgerrors.Wrap(err, "could not save download")
	}
	return nil
}
