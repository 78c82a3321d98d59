package poller

import (
	"context"
	"time"

	"github.com/dara-forge/forge/internal/logger"
	"github.com/dara-forge/forge/pkg/errors"
	"github.com/dara-forge/forge/pkg/fingerprint"
	"github.com/dara-forge/forge/pkg/gateway"
)

const (
	// DefaultBudget is the total polling time for a retrieval.
	DefaultBudget = 20 * time.Second
	// DefaultInterval is the pause between polling cycles.
	DefaultInterval = 800 * time.Millisecond

	// probeGrace lets a probe started just before the budget ends finish its round trip.
	probeGrace = 250 * time.Millisecond
)

// Policy bounds a poll.
type Policy struct {
	Budget   time.Duration
	Interval time.Duration
}

// DefaultPolicy returns the 20s/800ms policy.
func DefaultPolicy() Policy {
	return Policy{Budget: DefaultBudget, Interval: DefaultInterval}
}

// Validate rejects negative budgets and non-positive intervals when a budget is set.
func (p Policy) Validate() error {
	if p.Budget < 0 {
		return errors.Wrapf(errors.ErrInvalidPollPolicy, "negative budget %s", p.Budget)
	}
	if p.Budget > 0 && p.Interval <= 0 {
		return errors.Wrapf(errors.ErrInvalidPollPolicy, "interval must be positive, got %s", p.Interval)
	}
	return nil
}

// Result summarizes a poll.
type Result struct {
	Available bool
	// Endpoint is the endpoint that reported availability, nil otherwise.
	Endpoint *gateway.Endpoint
	Attempts int
	Elapsed  time.Duration
	// Last holds the most recent probe result per endpoint.
	Last map[string]gateway.ProbeResult
}

// Observer is notified after every probe.
type Observer func(ep gateway.Endpoint, res gateway.ProbeResult, took time.Duration)

// Option customizes a Poller.
type Option func(*Poller)

// WithObserver registers a probe observer.
func WithObserver(o Observer) Option {
	return func(p *Poller) {
		p.observer = o
	}
}

// Poller repeatedly probes endpoints until content is available or the budget runs out.
type Poller struct {
	prober   gateway.Prober
	observer Observer
}

// New creates a Poller around prober.
func New(prober gateway.Prober, opts ...Option) *Poller {
	p := &Poller{prober: prober}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PollUntilAvailable probes endpoints in order, one at a time, and returns as soon
// as one reports the content available. Endpoints that fail fatally are dropped
// for the rest of the poll. At least one full pass always runs.
func (p *Poller) PollUntilAvailable(ctx context.Context, endpoints []gateway.Endpoint, fp fingerprint.Fingerprint, policy Policy) (Result, error) {
	result := Result{Last: make(map[string]gateway.ProbeResult, len(endpoints))}
	if len(endpoints) == 0 {
		return result, errors.ErrNoEndpoints
	}
	if fp.IsZero() {
		return result, errors.ErrMalformedFingerprint
	}
	if err := policy.Validate(); err != nil {
		return result, err
	}

	start := time.Now()
	pctx := ctx
	if policy.Budget > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithDeadline(ctx, start.Add(policy.Budget+probeGrace))
		defer cancel()
	}

	active := make([]gateway.Endpoint, len(endpoints))
	copy(active, endpoints)

	for cycle := 1; ; cycle++ {
		for i := 0; i < len(active); {
			ep := active[i]
			probeStart := time.Now()
			res := p.prober.Probe(pctx, ep, fp)
			result.Attempts++
			result.Last[ep.String()] = res
			if p.observer != nil {
				p.observer(ep, res, time.Since(probeStart))
			}

			if ctx.Err() != nil {
				result.Elapsed = time.Since(start)
				return result, ctx.Err()
			}

			switch res.Status {
			case gateway.Available:
				found := ep
				result.Available = true
				result.Endpoint = &found
				result.Elapsed = time.Since(start)
				logger.Debug("content available", logger.Fields{
					"endpoint": ep.String(),
					"root":     fp.String(),
					"attempts": result.Attempts,
					"elapsed":  result.Elapsed.String(),
				})
				return result, nil
			case gateway.FatalError:
				logger.Warn("dropping endpoint", logger.Fields{"endpoint": ep.String(), "reason": res.Reason})
				active = append(active[:i], active[i+1:]...)
				continue
			}

			if pctx.Err() != nil {
				break
			}
			i++
		}

		if len(active) == 0 {
			result.Elapsed = time.Since(start)
			return result, errors.ErrNoUsableEndpoints
		}

		elapsed := time.Since(start)
		if elapsed >= policy.Budget {
			result.Elapsed = elapsed
			logger.Debug("poll budget exhausted", logger.Fields{
				"root":     fp.String(),
				"cycles":   cycle,
				"attempts": result.Attempts,
			})
			return result, nil
		}

		wait := policy.Interval
		if remaining := policy.Budget - elapsed; wait > remaining {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			result.Elapsed = time.Since(start)
			return result, ctx.Err()
		case <-timer.C:
		}
	}
}
