package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dara-forge/forge/pkg/errors"
	"github.com/dara-forge/forge/pkg/fingerprint"
	"github.com/dara-forge/forge/pkg/manifest"
	"github.com/dara-forge/forge/pkg/orchestrator"
)

type manifestLine struct {
	Name     string `json:"name"`
	Root     string `json:"root"`
	OK       bool   `json:"ok"`
	Status   string `json:"status"`
	Endpoint string `json:"endpoint,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// NewManifestCmd creates the manifest command with subcommands.
func NewManifestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Work with dataset manifests",
		Long:  "Retrieve and verify every file a dataset manifest lists",
	}

	cmd.AddCommand(newManifestVerifyCmd(), newManifestRootCmd())

	return cmd
}

func newManifestVerifyCmd() *cobra.Command {
	var (
		endpoint    string
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "verify FILE",
		Short: "Verify all files of a manifest",
		Long: `Retrieve each file listed in the manifest, verify it against its root and
declared size, and report per file. A declared manifest_root is checked against
the file listing. Exits non-zero if any check fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runManifestVerify(cmd.Context(), args[0], endpoint, concurrency)
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "", "use only this endpoint")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "files verified in parallel (default: max_concurrent)")

	return cmd
}

func runManifestVerify(ctx context.Context, path, endpoint string, concurrency int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	m, err := manifest.Load(path)
	if err != nil {
		return err
	}
	eps, err := selectEndpoints(cfg, endpoint)
	if err != nil {
		return err
	}
	if concurrency <= 0 {
		concurrency = cfg.Settings.MaxConcurrent
	}

	rt, err := buildRuntime(cfg, nil, orchestrator.Hooks{OnEvent: progress})
	if err != nil {
		return err
	}
	report, err := rt.orch.VerifyManifest(ctx, m, orchestrator.ManifestOptions{
		Endpoints:   eps,
		Policy:      cfg.PollPolicy(),
		Concurrency: concurrency,
	})
	if err != nil {
		return err
	}

	lines := make([]manifestLine, 0, len(report.Files))
	failed := 0
	for _, f := range report.Files {
		if !f.OK {
			failed++
		}
		lines = append(lines, manifestLine{
			Name:     f.Name,
			Root:     f.Root,
			OK:       f.OK,
			Status:   f.Outcome.Status.String(),
			Endpoint: f.Outcome.Endpoint,
			Reason:   f.Outcome.Reason,
		})
	}

	if jsonOutput(cfg) {
		doc := map[string]any{"dataset": m.Dataset, "ok": report.OK, "files": lines}
		if report.RootChecked {
			doc["manifest_root_ok"] = report.RootOK
			doc["listing_root"] = report.ListingRoot
		}
		if err := printJSON(doc); err != nil {
			return err
		}
	} else {
		tabWriter := tabwriter.NewWriter(os.Stdout, 0, 0, TabWidth, ' ', 0)
		_, _ = fmt.Fprintln(tabWriter, "FILE\tRESULT\tSTATUS\tENDPOINT\tREASON")
		for _, l := range lines {
			result := "OK"
			if !l.OK {
				result = "FAIL"
			}
			_, _ = fmt.Fprintf(tabWriter, "%s\t%s\t%s\t%s\t%s\n", l.Name, result, l.Status, l.Endpoint, l.Reason)
		}
		_ = tabWriter.Flush()
		if report.RootChecked {
			result := "OK"
			if !report.RootOK {
				result = "MISMATCH"
			}
			fmt.Printf("\nmanifest_root\t%s\t%s\n", result, report.ListingRoot)
		}
	}

	if report.RootChecked && !report.RootOK {
		return fmt.Errorf("%w: manifest_root does not match the file listing (computed %s)", errors.ErrIntegrityMismatch, report.ListingRoot)
	}
	if !report.OK {
		return fmt.Errorf("%w: %d of %d files failed", errors.ErrIntegrityMismatch, failed, len(lines))
	}
	return nil
}

func newManifestRootCmd() *cobra.Command {
	var algorithm string

	cmd := &cobra.Command{
		Use:   "root FILE",
		Short: "Compute the manifest_root of a manifest",
		Long: `Print the fingerprint of the manifest's file listing. Publish it as
manifest_root so that edits to the file list are detected on verify.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runManifestRoot(args[0], algorithm)
		},
	}

	cmd.Flags().StringVar(&algorithm, "algorithm", "", "fingerprint algorithm (default: configured algorithm)")

	return cmd
}

func runManifestRoot(path, algorithm string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	m, err := manifest.Load(path)
	if err != nil {
		return err
	}
	if algorithm == "" {
		algorithm = cfg.Settings.Algorithm
	}
	algo := fingerprint.Algorithm(algorithm)
	if !algo.Valid() {
		return fmt.Errorf("%w: %q", errors.ErrInvalidAlgorithm, algorithm)
	}

	root, err := m.ComputeRoot(algo)
	if err != nil {
		return err
	}
	if jsonOutput(cfg) {
		return printJSON(map[string]any{"manifest": path, "algorithm": algo, "manifest_root": root.String()})
	}
	fmt.Println(root.String())
	return nil
}
