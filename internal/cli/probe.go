package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dara-forge/forge/pkg/fingerprint"
	"github.com/dara-forge/forge/pkg/orchestrator"
)

type probeLine struct {
	Endpoint   string `json:"endpoint"`
	Status     string `json:"status"`
	StatusCode int    `json:"status_code,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Took       string `json:"took"`
}

// NewProbeCmd creates the probe command.
func NewProbeCmd() *cobra.Command {
	var endpoint string

	cmd := &cobra.Command{
		Use:   "probe ROOT",
		Short: "Check once whether endpoints can serve content",
		Long: `Probe every enabled endpoint once for ROOT and report what each answered.
ROOT is a 0x-prefixed hex fingerprint or a sha256 CIDv1.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(cmd.Context(), args[0], endpoint)
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "", "probe only this endpoint")

	return cmd
}

func runProbe(ctx context.Context, root, endpoint string) error {
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
	rt, err := buildRuntime(cfg, nil, orchestrator.Hooks{})
	if err != nil {
		return err
	}

	lines := make([]probeLine, 0, len(eps))
	for _, ep := range eps {
		start := time.Now()
		res := rt.prober.Probe(ctx, ep, fp)
		lines = append(lines, probeLine{
			Endpoint:   ep.String(),
			Status:     res.Status.String(),
			StatusCode: res.StatusCode,
			Reason:     res.Reason,
			Took:       time.Since(start).Round(time.Millisecond).String(),
		})
	}

	if jsonOutput(cfg) {
		return printJSON(lines)
	}

	tabWriter := tabwriter.NewWriter(os.Stdout, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintln(tabWriter, "ENDPOINT\tSTATUS\tCODE\tTOOK\tREASON")
	for _, l := range lines {
		_, _ = fmt.Fprintf(tabWriter, "%s\t%s\t%d\t%s\t%s\n", l.Endpoint, l.Status, l.StatusCode, l.Took, l.Reason)
	}
	return tabWriter.Flush()
}

// parseRoot accepts the hex form or, for sha256 content, a CIDv1.
func parseRoot(s string) (fingerprint.Fingerprint, error) {
	fp, err := fingerprint.Parse(s)
	if err == nil {
		return fp, nil
	}
	if strings.HasPrefix(s, "b") {
		if fromCID, cidErr := fingerprint.FromCID(s); cidErr == nil {
			return fromCID, nil
		}
	}
	return fingerprint.Fingerprint{}, err
}
