package archive

import (
	"archive/tar"
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/mholt/archives"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dara-forge/forge/pkg/errors"
)

var datasetFiles = map[string]string{
	"manifest.yaml":          "dataset: survey\n",
	"data/responses.csv":     "a,b\n1,2\n",
	"data/raw/wave1.json":    `{"wave":1}`,
	"docs/README.md":         "# survey",
	"docs/figures/plot.tsv":  "x\ty\n",
	"data/raw/wave2.json":    `{"wave":2}`,
	"data/raw/notes/one.txt": "first",
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for path, content := range files {
		full := filepath.Join(root, filepath.FromSlash(path))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func createArchive(t *testing.T, format archives.Archiver, sourceDir, archivePath string) {
	t.Helper()
	ctx := context.Background()
	abs, err := filepath.Abs(sourceDir)
	require.NoError(t, err)
	files, err := archives.FilesFromDisk(ctx, nil, map[string]string{abs + string(os.PathSeparator): ""})
	require.NoError(t, err)

	out, err := os.Create(archivePath)
	require.NoError(t, err)
	defer func() { _ = out.Close() }()
	require.NoError(t, format.Archive(ctx, out, files))
}

func TestExtractAll(t *testing.T) {
	tests := []struct {
		name   string
		file   string
		format archives.Archiver
	}{
		{name: "tar.gz", file: "dataset.tar.gz", format: archives.CompressedArchive{Compression: archives.Gz{}, Archival: archives.Tar{}}},
		{name: "zip", file: "dataset.zip", format: archives.Zip{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := t.TempDir()
			source := filepath.Join(tempDir, "source")
			writeTree(t, source, datasetFiles)

			archivePath := filepath.Join(tempDir, tt.file)
			createArchive(t, tt.format, source, archivePath)

			dest := filepath.Join(tempDir, "extracted")
			got, err := NewManager().ExtractAll(context.Background(), archivePath, dest)
			require.NoError(t, err)

			want := make([]string, 0, len(datasetFiles))
			for path := range datasetFiles {
				want = append(want, path)
			}
			sort.Strings(want)
			sort.Strings(got)
			assert.Equal(t, want, got)

			for path, content := range datasetFiles {
				data, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(path)))
				require.NoError(t, err, path)
				assert.Equal(t, content, string(data), path)
			}
		})
	}
}

func TestExtractAll_NotAnArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644))

	_, err := NewManager().ExtractAll(context.Background(), path, t.TempDir())
	assert.ErrorIs(t, err, ErrNotArchive)
}

func TestExtractAll_MissingFile(t *testing.T) {
	_, err := NewManager().ExtractAll(context.Background(), filepath.Join(t.TempDir(), "missing.tar"), t.TempDir())
	assert.Error(t, err)
}

func TestSafeJoin(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out")

	got, err := safeJoin(dest, "data/file.csv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dest, "data", "file.csv"), got)

	for _, name := range []string{"../evil", "data/../../evil", ".."} {
		_, err := safeJoin(dest, name)
		assert.ErrorIs(t, err, errors.ErrInvalidPath, name)
	}
}

func TestExtractAll_SkipsSymlinks(t *testing.T) {
	tempDir := t.TempDir()
	archivePath := filepath.Join(tempDir, "links.tar")

	f, err := os.Create(archivePath)
	require.NoError(t, err)
	tw := tar.NewWriter(f)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "data.txt", Mode: 0o644, Size: 4, Typeflag: tar.TypeReg}))
	_, err = tw.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "passwd", Linkname: "/etc/passwd", Mode: 0o777, Typeflag: tar.TypeSymlink}))
	require.NoError(t, tw.Close())
	require.NoError(t, f.Close())

	dest := filepath.Join(tempDir, "out")
	got, err := NewManager().ExtractAll(context.Background(), archivePath, dest)
	require.NoError(t, err)
	assert.Equal(t, []string{"data.txt"}, got)
	_, err = os.Lstat(filepath.Join(dest, "passwd"))
	assert.True(t, os.IsNotExist(err))
}
