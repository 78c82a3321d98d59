// Package manifest reads dataset manifests: the list of files, each with its
// content root, that make up a published dataset.
package manifest

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dara-forge/forge/pkg/errors"
	"github.com/dara-forge/forge/pkg/fingerprint"
)

// File is one manifest entry.
type File struct {
	Name string `yaml:"name" json:"name"`
	Root string `yaml:"root" json:"root"`
	// Size is the declared length in bytes; zero means undeclared.
	Size int64 `yaml:"size,omitempty" json:"size,omitempty"`
}

// Manifest describes a dataset.
type Manifest struct {
	Dataset string `yaml:"dataset,omitempty" json:"dataset,omitempty"`
	// ManifestRoot, when set, is the fingerprint of Listing.
	ManifestRoot string `yaml:"manifest_root,omitempty" json:"manifest_root,omitempty"`
	Files        []File `yaml:"files" json:"files"`
}

// Load reads and validates a manifest file. YAML and JSON are both accepted.
func Load(path string) (*Manifest, error) {
	if path == "" {
		return nil, errors.ErrInvalidPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read manifest %s", path)
	}
	return Parse(data)
}

// Parse decodes and validates a manifest.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidManifest, "decode: %v", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate requires at least one file, unique non-empty names, well-formed
// roots and non-negative sizes.
func (m *Manifest) Validate() error {
	if len(m.Files) == 0 {
		return errors.Wrap(errors.ErrInvalidManifest, "no files listed")
	}
	if m.ManifestRoot != "" {
		if _, err := fingerprint.Parse(m.ManifestRoot); err != nil {
			return errors.Wrapf(errors.ErrInvalidManifest, "manifest_root: %v", err)
		}
	}
	seen := make(map[string]struct{}, len(m.Files))
	for i, f := range m.Files {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return errors.Wrapf(errors.ErrInvalidManifest, "file %d has no name", i)
		}
		if _, dup := seen[name]; dup {
			return errors.Wrapf(errors.ErrInvalidManifest, "duplicate file name %q", name)
		}
		seen[name] = struct{}{}
		if _, err := fingerprint.Parse(f.Root); err != nil {
			return errors.Wrapf(errors.ErrInvalidManifest, "file %q: %v", name, err)
		}
		if f.Size < 0 {
			return errors.Wrapf(errors.ErrInvalidManifest, "file %q has negative size", name)
		}
	}
	return nil
}

// Fingerprint returns the parsed root of f. It assumes the manifest was validated.
func (f File) Fingerprint() fingerprint.Fingerprint {
	fp, _ := fingerprint.Parse(f.Root)
	return fp
}

// Listing renders the file list in the form manifest_root is computed over:
// one "name<TAB>root<TAB>size" line per file in manifest order, roots in
// canonical hex. Document format and key order do not change it.
func (m *Manifest) Listing() []byte {
	var b bytes.Buffer
	for _, f := range m.Files {
		_, _ = fmt.Fprintf(&b, "%s\t%s\t%d\n", strings.TrimSpace(f.Name), f.Fingerprint(), f.Size)
	}
	return b.Bytes()
}

// ComputeRoot fingerprints the listing with algo.
func (m *Manifest) ComputeRoot(algo fingerprint.Algorithm) (fingerprint.Fingerprint, error) {
	return fingerprint.Compute(algo, m.Listing())
}
