//go:generate mockgen -destination=./mocks/orchestrator.go . Poller,Downloader,HookRunner

package orchestrator

import (
	"context"
	"time"

	"github.com/dara-forge/forge/pkg/download"
	"github.com/dara-forge/forge/pkg/fingerprint"
	"github.com/dara-forge/forge/pkg/gateway"
	"github.com/dara-forge/forge/pkg/hooks"
	"github.com/dara-forge/forge/pkg/poller"
)

// Poller is the subset of the poller used by the orchestrator.
type Poller interface {
	PollUntilAvailable(ctx context.Context, endpoints []gateway.Endpoint, fp fingerprint.Fingerprint, policy poller.Policy) (poller.Result, error)
}

// Downloader fetches a whole object from one endpoint.
type Downloader interface {
	Download(ctx context.Context, ep gateway.Endpoint, fp fingerprint.Fingerprint, opts download.Options) (*download.Object, error)
}

// HookRunner runs user scripts after retrieval.
type HookRunner interface {
	Execute(hookType hooks.HookType, ctx hooks.HookContext) error
}

// Orchestrator ties polling, downloading and verification together.
type Orchestrator struct {
	Poller    Poller
	DL        Downloader
	Verifier  *fingerprint.Verifier
	Scripts   HookRunner // optional post-retrieve scripts
	Hooks     Hooks      // progress notifications
	MaxObject int64      // per-object byte limit, zero for none
	// DownloadTimeout bounds each object transfer, zero for none.
	DownloadTimeout time.Duration
}

// Event represents a simple progress notification.
type Event struct {
	Phase string // polling|downloading|verifying|done|error
	ID    string // content root
	Msg   string
}

// Hooks carries callbacks for progress events.
type Hooks struct {
	OnEvent func(Event)
}

// Status is the terminal state of a retrieval.
type Status int

const (
	// Success means the bytes were retrieved, and verified when an expectation was given.
	Success Status = iota + 1
	// Timeout means no endpoint reported the content within the budget.
	Timeout
	// Error covers download failures and integrity mismatches.
	Error
)

func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case Timeout:
		return "timeout"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// ReasonIntegrityMismatch is the Outcome reason for content that does not hash to the expected root.
const ReasonIntegrityMismatch = "integrity mismatch"

// Request describes one retrieval.
type Request struct {
	Endpoints []gateway.Endpoint
	Root      string
	// Expected is compared with the downloaded bytes; empty skips verification.
	Expected string
	Policy   poller.Policy
	Name     string
}

// Outcome is the result of RetrieveAndVerify.
type Outcome struct {
	Status      Status
	Data        []byte
	ContentType string
	Endpoint    string
	Reason      string
	// Verified is true when an expectation was given and matched.
	Verified bool
	Expected string
	Computed string
	Attempts int
	Elapsed  time.Duration
}

// ManifestOptions control VerifyManifest.
type ManifestOptions struct {
	Endpoints   []gateway.Endpoint
	Policy      poller.Policy
	Concurrency int
}

// FileReport is the verification result for one manifest entry.
type FileReport struct {
	Name    string
	Root    string
	Size    int64
	OK      bool
	Outcome Outcome
}

// ManifestReport lists file reports in manifest order.
type ManifestReport struct {
	Files []FileReport
	OK    bool
	// RootChecked is set when the manifest declares manifest_root.
	RootChecked bool
	RootOK      bool
	ListingRoot string
}
