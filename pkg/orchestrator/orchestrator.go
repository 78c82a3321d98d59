package orchestrator

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dara-forge/forge/internal/logger"
	"github.com/dara-forge/forge/pkg/download"
	"github.com/dara-forge/forge/pkg/errors"
	"github.com/dara-forge/forge/pkg/fingerprint"
	"github.com/dara-forge/forge/pkg/gateway"
	"github.com/dara-forge/forge/pkg/hooks"
	"github.com/dara-forge/forge/pkg/manifest"
)

// New constructs an Orchestrator from its collaborators. scripts may be nil.
func New(p Poller, dl Downloader, v *fingerprint.Verifier, scripts HookRunner, h Hooks) *Orchestrator {
	return &Orchestrator{
		Poller:   p,
		DL:       dl,
		Verifier: v,
		Scripts:  scripts,
		Hooks:    h,
	}
}

func emit(h Hooks, e Event) {
	if h.OnEvent != nil {
		h.OnEvent(e)
	}
}

// RetrieveAndVerify waits for req.Root to become available, downloads it once
// from the endpoint that answered, and verifies it against req.Expected.
// Timeouts, download failures and mismatches are reported in the Outcome;
// the error is reserved for bad input, configuration problems and cancellation.
func (o *Orchestrator) RetrieveAndVerify(ctx context.Context, req Request) (Outcome, error) {
	if o.Poller == nil || o.DL == nil {
		return Outcome{}, errors.ErrOrchestratorMissing
	}
	fp, err := fingerprint.Parse(req.Root)
	if err != nil {
		return Outcome{}, err
	}
	var expected fingerprint.Fingerprint
	if req.Expected != "" {
		if expected, err = fingerprint.Parse(req.Expected); err != nil {
			return Outcome{}, errors.Wrap(err, "expected fingerprint")
		}
	}

	start := time.Now()
	id := fp.String()
	fail := func(out Outcome, reason string) Outcome {
		out.Status = Error
		out.Reason = reason
		out.Elapsed = time.Since(start)
		emit(o.Hooks, Event{Phase: "error", ID: id, Msg: reason})
		return out
	}

	emit(o.Hooks, Event{Phase: "polling", ID: id, Msg: fmt.Sprintf("%d endpoints", len(req.Endpoints))})
	polled, err := o.Poller.PollUntilAvailable(ctx, gateway.SortEndpoints(req.Endpoints), fp, req.Policy)
	out := Outcome{Attempts: polled.Attempts}
	if err != nil {
		return fail(out, err.Error()), err
	}
	if !polled.Available || polled.Endpoint == nil {
		out.Status = Timeout
		out.Reason = fmt.Sprintf("not available after %s", polled.Elapsed.Round(time.Millisecond))
		out.Elapsed = time.Since(start)
		emit(o.Hooks, Event{Phase: "done", ID: id, Msg: Timeout.String()})
		return out, nil
	}

	ep := *polled.Endpoint
	out.Endpoint = ep.String()
	emit(o.Hooks, Event{Phase: "downloading", ID: id, Msg: out.Endpoint})
	obj, err := o.DL.Download(ctx, ep, fp, download.Options{
		Name:     req.Name,
		MaxBytes: o.MaxObject,
		Timeout:  o.DownloadTimeout,
		Verify:   !expected.IsZero(),
	})
	if err != nil {
		if ctx.Err() != nil {
			return fail(out, "canceled"), ctx.Err()
		}
		logger.Warn("download failed", logger.Fields{"root": id, "endpoint": out.Endpoint, "error": err.Error()})
		return fail(out, err.Error()), nil
	}
	out.Data = obj.Data
	out.ContentType = obj.ContentType

	if !expected.IsZero() {
		emit(o.Hooks, Event{Phase: "verifying", ID: id})
		res := o.verifier().VerifyFingerprint(obj.Data, expected)
		out.Expected = res.Expected.String()
		out.Computed = res.Actual.String()
		switch res.Status {
		case fingerprint.Verified:
			out.Verified = true
		case fingerprint.Mismatch:
			logger.Warn(ReasonIntegrityMismatch, logger.Fields{
				"root":     id,
				"endpoint": out.Endpoint,
				"expected": out.Expected,
				"computed": out.Computed,
			})
			out.Data = nil
			return fail(out, ReasonIntegrityMismatch), nil
		default:
			return fail(out, res.String()), nil
		}
	}

	out.Status = Success
	out.Elapsed = time.Since(start)
	o.runPostRetrieve(fp, req.Name, out)
	emit(o.Hooks, Event{Phase: "done", ID: id, Msg: Success.String()})
	return out, nil
}

func (o *Orchestrator) verifier() *fingerprint.Verifier {
	if o.Verifier == nil {
		return fingerprint.NewVerifier(fingerprint.DefaultAlgorithm)
	}
	return o.Verifier
}

func (o *Orchestrator) runPostRetrieve(fp fingerprint.Fingerprint, name string, out Outcome) {
	if o.Scripts == nil {
		return
	}
	err := o.Scripts.Execute(hooks.PostRetrieve, hooks.HookContext{
		Root:     fp.String(),
		Endpoint: out.Endpoint,
		Name:     name,
		Size:     int64(len(out.Data)),
		Verified: out.Verified,
	})
	if err != nil {
		logger.Warn("post-retrieve hook failed", logger.Fields{"root": fp.String(), "error": err.Error()})
	}
}

// VerifyManifest retrieves and verifies every manifest file, at most
// opts.Concurrency at a time. Reports keep manifest order. A declared
// manifest_root is checked against the file listing; a mismatch fails the
// report but the files are still checked.
func (o *Orchestrator) VerifyManifest(ctx context.Context, m *manifest.Manifest, opts ManifestOptions) (ManifestReport, error) {
	if m == nil {
		return ManifestReport{}, errors.ErrInvalidManifest
	}
	if err := m.Validate(); err != nil {
		return ManifestReport{}, err
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = max(2, runtime.NumCPU()/2)
	}

	reports := make([]FileReport, len(m.Files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for i, f := range m.Files {
		g.Go(func() error {
			out, err := o.RetrieveAndVerify(gctx, Request{
				Endpoints: opts.Endpoints,
				Root:      f.Root,
				Expected:  f.Root,
				Policy:    opts.Policy,
				Name:      f.Name,
			})
			if err != nil {
				return errors.Wrapf(err, "file %s", f.Name)
			}
			rep := FileReport{Name: f.Name, Root: f.Fingerprint().String(), Size: f.Size, Outcome: out}
			rep.OK = out.Status == Success && out.Verified
			if rep.OK && f.Size > 0 && int64(len(out.Data)) != f.Size {
				rep.OK = false
				rep.Outcome.Reason = fmt.Sprintf("size mismatch: declared %d, got %d", f.Size, len(out.Data))
			}
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ManifestReport{}, err
	}

	report := ManifestReport{Files: reports, OK: true}
	for _, r := range reports {
		if !r.OK {
			report.OK = false
		}
	}
	if m.ManifestRoot != "" {
		res := o.verifier().Verify(m.Listing(), m.ManifestRoot)
		report.RootChecked = true
		report.RootOK = res.OK()
		report.ListingRoot = res.Actual.String()
		if !report.RootOK {
			report.OK = false
			logger.Warn("manifest root mismatch", logger.Fields{
				"dataset":  m.Dataset,
				"expected": m.ManifestRoot,
				"computed": report.ListingRoot,
			})
		}
	}
	logger.Debug("manifest verified", logger.Fields{"files": len(reports), "ok": report.OK})
	return report, nil
}
