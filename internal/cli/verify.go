package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dara-forge/forge/internal/logger"
	"github.com/dara-forge/forge/pkg/errors"
	"github.com/dara-forge/forge/pkg/fingerprint"
	"github.com/dara-forge/forge/pkg/orchestrator"
)

type verifyResult struct {
	Root     string `json:"root"`
	OK       bool   `json:"ok"`
	Computed string `json:"computed,omitempty"`
	Source   string `json:"source"`
}

// NewVerifyCmd creates the verify command.
func NewVerifyCmd() *cobra.Command {
	var (
		file     string
		endpoint string
		budget   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "verify ROOT",
		Short: "Check that content hashes to its root",
		Long: `Retrieve ROOT from the endpoints, or read --file, and check that the bytes
hash to ROOT. Exits non-zero on a mismatch.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if file != "" {
				return runVerifyFile(args[0], file)
			}
			if !cmd.Flags().Changed("budget") {
				budget = -1
			}
			return runVerifyRemote(cmd.Context(), args[0], endpoint, budget)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "verify a local file instead of retrieving")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "use only this endpoint")
	cmd.Flags().DurationVar(&budget, "budget", 0, "total polling budget (default from config)")

	return cmd
}

func runVerifyFile(root, path string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fp, err := parseRoot(root)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	res := fingerprint.NewVerifier(fingerprint.Algorithm(cfg.Settings.Algorithm)).VerifyReader(f, fp.String())
	if res.Status == fingerprint.Failed {
		return errors.Wrapf(res.Err, "verifying %s", path)
	}
	return reportVerify(jsonOutput(cfg), verifyResult{
		Root:     fp.String(),
		OK:       res.OK(),
		Computed: res.Actual.String(),
		Source:   path,
	}, res.Status == fingerprint.Mismatch)
}

func runVerifyRemote(ctx context.Context, root, endpoint string, budget time.Duration) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fp, err := parseRoot(root)
	if err != nil {
		return err
	}
	eps, err := selectEndpoints(cfg, endpoint)
	if err != nil {
		return err
	}
	policy := cfg.PollPolicy()
	if budget >= 0 {
		policy.Budget = budget
	}

	rt, err := buildRuntime(cfg, nil, orchestrator.Hooks{OnEvent: progress})
	if err != nil {
		return err
	}
	out, err := rt.orch.RetrieveAndVerify(ctx, orchestrator.Request{
		Endpoints: eps,
		Root:      fp.String(),
		Expected:  fp.String(),
		Policy:    policy,
	})
	if err != nil {
		return err
	}

	mismatch := out.Status == orchestrator.Error && out.Reason == orchestrator.ReasonIntegrityMismatch
	if out.Status != orchestrator.Success && !mismatch {
		return outcomeError(out)
	}
	return reportVerify(jsonOutput(cfg), verifyResult{
		Root:     fp.String(),
		OK:       out.Verified,
		Computed: out.Computed,
		Source:   out.Endpoint,
	}, mismatch)
}

func reportVerify(asJSON bool, res verifyResult, mismatch bool) error {
	if asJSON {
		if err := printJSON(res); err != nil {
			return err
		}
	} else if res.OK {
		fmt.Printf("OK\t%s\t%s\n", res.Root, res.Source)
	} else {
		fmt.Printf("MISMATCH\t%s\t%s\tcomputed %s\n", res.Root, res.Source, res.Computed)
	}

	if mismatch {
		logger.Warn("content does not match its root", logger.Fields{"root": res.Root, "computed": res.Computed})
		return fmt.Errorf("%w: %s", errors.ErrIntegrityMismatch, res.Root)
	}
	if !res.OK {
		return fmt.Errorf("%w: %s could not be verified", errors.ErrIntegrityMismatch, res.Root)
	}
	return nil
}
