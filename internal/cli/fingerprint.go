package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dara-forge/forge/pkg/errors"
	"github.com/dara-forge/forge/pkg/fingerprint"
)

type fingerprintLine struct {
	File      string `json:"file"`
	Algorithm string `json:"algorithm"`
	Root      string `json:"root"`
	CID       string `json:"cid,omitempty"`
	Size      int64  `json:"size"`
}

// NewFingerprintCmd creates the fingerprint command.
func NewFingerprintCmd() *cobra.Command {
	var (
		algorithm string
		withCID   bool
	)

	cmd := &cobra.Command{
		Use:   "fingerprint FILE...",
		Short: "Compute content fingerprints",
		Long: `Compute the content root of local files, as the storage network would.
The default algorithm is taken from the configuration (merkle-keccak256).`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runFingerprint(args, algorithm, withCID)
		},
	}

	cmd.Flags().StringVar(&algorithm, "algorithm", "", "fingerprint algorithm (merkle-keccak256, sha256)")
	cmd.Flags().BoolVar(&withCID, "cid", false, "also print the CIDv1 form (sha256 only)")

	return cmd
}

func runFingerprint(files []string, algorithm string, withCID bool) error {
	cfg, err := loadConfig()
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
	if withCID && algo != fingerprint.SHA256 {
		return fmt.Errorf("--cid requires --algorithm %s: %w", fingerprint.SHA256, errors.ErrInvalidAlgorithm)
	}

	lines := make([]fingerprintLine, 0, len(files))
	for _, path := range files {
		line, err := fingerprintFile(path, algo, withCID)
		if err != nil {
			return err
		}
		lines = append(lines, line)
	}

	if jsonOutput(cfg) {
		return printJSON(lines)
	}

	tabWriter := tabwriter.NewWriter(os.Stdout, 0, 0, TabWidth, ' ', 0)
	for _, l := range lines {
		if withCID {
			_, _ = fmt.Fprintf(tabWriter, "%s\t%s\t%s\n", l.Root, l.CID, l.File)
		} else {
			_, _ = fmt.Fprintf(tabWriter, "%s\t%s\n", l.Root, l.File)
		}
	}
	return tabWriter.Flush()
}

func fingerprintFile(path string, algo fingerprint.Algorithm, withCID bool) (fingerprintLine, error) {
	f, err := os.Open(path)
	if err != nil {
		return fingerprintLine{}, err
	}
	defer func() { _ = f.Close() }()

	fp, n, err := fingerprint.ComputeReader(algo, f)
	if err != nil {
		return fingerprintLine{}, errors.Wrapf(err, "fingerprinting %s", path)
	}
	line := fingerprintLine{File: path, Algorithm: string(algo), Root: fp.String(), Size: n}
	if withCID {
		c, err := fingerprint.CID(algo, fp)
		if err != nil {
			return fingerprintLine{}, err
		}
		line.CID = c.String()
	}
	return line, nil
}
