package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dara-forge/forge/pkg/errors"
	"github.com/dara-forge/forge/pkg/fingerprint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	rootA = "0x" + strings.Repeat("aa", 32)
	rootB = "0x" + strings.Repeat("bb", 32)
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		files   int
	}{
		{
			name: "yaml",
			input: `
dataset: survey-2024
files:
  - name: data.csv
    root: ` + rootA + `
    size: 11
  - name: README.md
    root: ` + strings.TrimPrefix(rootB, "0x") + `
`,
			files: 2,
		},
		{
			name:  "json",
			input: `{"manifest_root":"` + rootB + `","files":[{"name":"data.csv","root":"` + rootA + `"}]}`,
			files: 1,
		},
		{name: "no files", input: `dataset: empty`, wantErr: true},
		{name: "duplicate names", input: `{"files":[{"name":"a","root":"` + rootA + `"},{"name":"a","root":"` + rootB + `"}]}`, wantErr: true},
		{name: "missing name", input: `{"files":[{"root":"` + rootA + `"}]}`, wantErr: true},
		{name: "malformed root", input: `{"files":[{"name":"a","root":"0x1234"}]}`, wantErr: true},
		{name: "malformed manifest root", input: `{"manifest_root":"nope","files":[{"name":"a","root":"` + rootA + `"}]}`, wantErr: true},
		{name: "negative size", input: `{"files":[{"name":"a","root":"` + rootA + `","size":-1}]}`, wantErr: true},
		{name: "unknown field", input: `{"files":[{"name":"a","root":"` + rootA + `","sha":"x"}]}`, wantErr: true},
		{name: "not a manifest", input: `[1, 2`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Parse([]byte(tt.input))
			if tt.wantErr {
				require.ErrorIs(t, err, errors.ErrInvalidManifest)
				return
			}
			require.NoError(t, err)
			assert.Len(t, m.Files, tt.files)
		})
	}
}

func TestFileFingerprint(t *testing.T) {
	m, err := Parse([]byte(`{"files":[{"name":"a","root":"` + strings.ToUpper(strings.TrimPrefix(rootA, "0x")) + `"}]}`))
	require.NoError(t, err)
	assert.Equal(t, rootA, m.Files[0].Fingerprint().String())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte("files:\n  - name: a\n    root: "+rootA+"\n"), 0o600))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "a", m.Files[0].Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load("")
	assert.ErrorIs(t, err, errors.ErrInvalidPath)
}

func TestListingIgnoresDocumentFormat(t *testing.T) {
	fromYAML, err := Parse([]byte("dataset: survey\nfiles:\n  - {name: data.csv, root: " + rootA + ", size: 8}\n  - {name: README.md, root: " + strings.ToUpper(rootB[2:]) + "}\n"))
	require.NoError(t, err)
	fromJSON, err := Parse([]byte(`{"files":[{"size":8,"root":"` + rootA + `","name":" data.csv"},{"name":"README.md","root":"` + rootB + `"}]}`))
	require.NoError(t, err)

	assert.Equal(t, "data.csv\t"+rootA+"\t8\nREADME.md\t"+rootB+"\t0\n", string(fromYAML.Listing()))
	assert.Equal(t, fromYAML.Listing(), fromJSON.Listing())

	a, err := fromYAML.ComputeRoot(fingerprint.SHA256)
	require.NoError(t, err)
	b, err := fromJSON.ComputeRoot(fingerprint.SHA256)
	require.NoError(t, err)
	assert.True(t, a.Equal(b))

	fromJSON.Files[0].Size = 9
	c, err := fromJSON.ComputeRoot(fingerprint.SHA256)
	require.NoError(t, err)
	assert.False(t, a.Equal(c))
}
