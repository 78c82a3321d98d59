package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/dara-forge/forge/internal/logger"
	"github.com/dara-forge/forge/pkg/archive"
	"github.com/dara-forge/forge/pkg/config"
	"github.com/dara-forge/forge/pkg/download"
	"github.com/dara-forge/forge/pkg/errors"
	"github.com/dara-forge/forge/pkg/orchestrator"
	"github.com/dara-forge/forge/pkg/poller"
)

type fetchOptions struct {
	out      string
	name     string
	expect   string
	noVerify bool
	extract  string
	budget   time.Duration
	interval time.Duration
	endpoint string

	budgetSet   bool
	intervalSet bool
}

type fetchResult struct {
	Root      string   `json:"root"`
	Path      string   `json:"path,omitempty"`
	Size      int      `json:"size"`
	Endpoint  string   `json:"endpoint"`
	Verified  bool     `json:"verified"`
	Computed  string   `json:"computed,omitempty"`
	Attempts  int      `json:"attempts"`
	Elapsed   string   `json:"elapsed"`
	Extracted []string `json:"extracted,omitempty"`
}

// NewFetchCmd creates the fetch command.
func NewFetchCmd() *cobra.Command {
	var opts fetchOptions

	cmd := &cobra.Command{
		Use:   "fetch ROOT",
		Short: "Wait for content, download and verify it",
		Long: `Poll the configured endpoints until ROOT is retrievable, download it once
and check it hashes to ROOT (or to --expect). Use -o - to write to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.budgetSet = cmd.Flags().Changed("budget")
			opts.intervalSet = cmd.Flags().Changed("interval")
			return runFetch(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "output file (default: <download_dir>/<name or root>)")
	cmd.Flags().StringVar(&opts.name, "name", "", "file name hint sent to the gateway")
	cmd.Flags().StringVar(&opts.expect, "expect", "", "expected fingerprint (default: ROOT)")
	cmd.Flags().BoolVar(&opts.noVerify, "no-verify", false, "skip integrity verification")
	cmd.Flags().StringVar(&opts.extract, "extract", "", "extract the downloaded archive into DIR")
	cmd.Flags().DurationVar(&opts.budget, "budget", poller.DefaultBudget, "total polling budget, 0 for a single pass")
	cmd.Flags().DurationVar(&opts.interval, "interval", poller.DefaultInterval, "pause between polling cycles")
	cmd.Flags().StringVar(&opts.endpoint, "endpoint", "", "use only this endpoint")

	return cmd
}

func runFetch(ctx context.Context, root string, opts fetchOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fp, err := parseRoot(root)
	if err != nil {
		return err
	}
	eps, err := selectEndpoints(cfg, opts.endpoint)
	if err != nil {
		return err
	}
	if opts.noVerify && opts.expect != "" {
		return fmt.Errorf("--expect and --no-verify are mutually exclusive")
	}

	policy := cfg.PollPolicy()
	if opts.budgetSet {
		policy.Budget = opts.budget
	}
	if opts.intervalSet {
		policy.Interval = opts.interval
	}

	expected := fp.String()
	switch {
	case opts.noVerify:
		expected = ""
	case opts.expect != "":
		exp, err := parseRoot(opts.expect)
		if err != nil {
			return errors.Wrap(err, "--expect")
		}
		expected = exp.String()
	}

	rt, err := buildRuntime(cfg, nil, orchestrator.Hooks{OnEvent: progress})
	if err != nil {
		return err
	}

	logger.Info("waiting for content", logger.Fields{"root": fp.String(), "budget": policy.Budget.String(), "endpoints": len(eps)})
	out, err := rt.orch.RetrieveAndVerify(ctx, orchestrator.Request{
		Endpoints: eps,
		Root:      fp.String(),
		Expected:  expected,
		Policy:    policy,
		Name:      opts.name,
	})
	if err != nil {
		return err
	}
	if err := outcomeError(out); err != nil {
		return err
	}

	res := fetchResult{
		Root:     fp.String(),
		Size:     len(out.Data),
		Endpoint: out.Endpoint,
		Verified: out.Verified,
		Computed: out.Computed,
		Attempts: out.Attempts,
		Elapsed:  out.Elapsed.Round(time.Millisecond).String(),
	}

	if opts.out == "-" {
		_, err := os.Stdout.Write(out.Data)
		return err
	}

	res.Path = outputPath(cfg, opts, fp.String())
	if err := download.WriteFile(res.Path, out.Data); err != nil {
		return err
	}

	if opts.extract != "" {
		files, err := archive.NewManager().ExtractAll(ctx, res.Path, opts.extract)
		if err != nil {
			return errors.Wrapf(err, "extracting %s", res.Path)
		}
		res.Extracted = files
	}

	if jsonOutput(cfg) {
		return printJSON(res)
	}

	status := "unverified"
	if res.Verified {
		status = "verified"
	}
	fmt.Printf("%s\t%d bytes\t%s\tfrom %s after %d probes (%s)\n", res.Path, res.Size, status, res.Endpoint, res.Attempts, res.Elapsed)
	for _, f := range res.Extracted {
		fmt.Printf("  %s\n", f)
	}
	return nil
}

// outcomeError turns a non-success outcome into the matching sentinel error.
func outcomeError(out orchestrator.Outcome) error {
	switch out.Status {
	case orchestrator.Success:
		return nil
	case orchestrator.Timeout:
		return fmt.Errorf("%w: %s", errors.ErrRetrievalTimeout, out.Reason)
	}
	if out.Reason == orchestrator.ReasonIntegrityMismatch {
		return fmt.Errorf("%w: expected %s, computed %s", errors.ErrIntegrityMismatch, out.Expected, out.Computed)
	}
	return fmt.Errorf("%w: %s", errors.ErrDownloadFailed, out.Reason)
}

func outputPath(cfg *config.Config, opts fetchOptions, root string) string {
	if opts.out != "" {
		return opts.out
	}
	name := root
	if opts.name != "" {
		name = filepath.Base(opts.name)
	}
	return filepath.Join(cfg.GetDownloadDir(), name)
}
