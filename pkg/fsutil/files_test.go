package fsutil

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMove(t *testing.T) {
	tempDir := t.TempDir()
	src := filepath.Join(tempDir, "root.bin")
	dst := filepath.Join(tempDir, "nested", "dataset.bin")
	require.NoError(t, os.WriteFile(src, []byte("hello world"), 0o600))

	require.NoError(t, Move(src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))
	assert.NoFileExists(t, src)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(dst)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}
}

func TestMove_Errors(t *testing.T) {
	tempDir := t.TempDir()

	err := Move("", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be empty")

	err = Move(filepath.Join(tempDir, "missing"), filepath.Join(tempDir, "dst"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to stat source")

	err = Move(tempDir, filepath.Join(t.TempDir(), "dst"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot move directory")
}

func TestIsCrossFilesystemError(t *testing.T) {
	assert.False(t, isCrossFilesystemError(nil))
	assert.False(t, isCrossFilesystemError(errors.New("permission denied")))
	assert.True(t, isCrossFilesystemError(&os.LinkError{Op: "rename", Old: "a", New: "b", Err: syscall.EXDEV}))
	assert.True(t, isCrossFilesystemError(errors.New("rename a b: invalid cross-device link")))
}

func TestCopy(t *testing.T) {
	tempDir := t.TempDir()
	src := filepath.Join(tempDir, "src")
	dst := filepath.Join(tempDir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("segment"), 0o644))

	require.NoError(t, Copy(src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "segment", string(got))
	assert.FileExists(t, src)
}

func TestWriteFileAtomic(t *testing.T) {
	tempDir := t.TempDir()
	path := filepath.Join(tempDir, "out", "data.csv")

	n, err := WriteFileAtomic(path, strings.NewReader("a,b\n1,2\n"), FileModeDefault)
	require.NoError(t, err)
	assert.EqualValues(t, 8, n)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(got))

	n, err = WriteFileAtomic(path, strings.NewReader("replaced"), FileModeDefault)
	require.NoError(t, err)
	assert.EqualValues(t, 8, n)
	got, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "replaced", string(got))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(FileModeDefault), info.Mode().Perm())
	}
}

func TestWriteFileAtomic_EmptyPath(t *testing.T) {
	_, err := WriteFileAtomic("", strings.NewReader("x"), FileModeDefault)
	require.Error(t, err)
}

func TestEnsureFileDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "file.txt")
	require.NoError(t, EnsureFileDir(path))
	assert.DirExists(t, filepath.Dir(path))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(filepath.Dir(path))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(DirModeDefault), info.Mode().Perm())
	}
}

func TestEnsureDir_PermissionDenied(t *testing.T) {
	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced here")
	}
	readonly := filepath.Join(t.TempDir(), "readonly")
	require.NoError(t, os.Mkdir(readonly, 0o555))

	assert.Error(t, EnsureDir(filepath.Join(readonly, "child")))
}

func TestGetDownloadDir(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG layout only applies on Linux")
	}
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg-data")

	dir, err := GetDownloadDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/tmp/xdg-data", AppName, "downloads"), dir)
}
