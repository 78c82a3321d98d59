// Package archive unpacks retrieved dataset archives (tar, zip and their
// compressed variants) once their fingerprint has been checked.
package archive

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mholt/archives"

	"github.com/dara-forge/forge/internal/logger"
	"github.com/dara-forge/forge/pkg/errors"
	"github.com/dara-forge/forge/pkg/fsutil"
)

// ErrNotArchive is returned for files no archive format recognises.
var ErrNotArchive = fmt.Errorf("not a supported archive")

// Manager extracts archives.
type Manager struct{}

// NewManager creates a new Manager instance.
func NewManager() *Manager {
	return &Manager{}
}

// ExtractAll unpacks archivePath into destDir and returns the extracted file
// paths relative to destDir, in walk order. Entries that would land outside
// destDir are rejected and symlinks are skipped.
func (am *Manager) ExtractAll(ctx context.Context, archivePath, destDir string) ([]string, error) {
	fsys, err := archives.FileSystem(ctx, archivePath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive file: %w", err)
	}
	if closer, ok := fsys.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}
	switch fsys.(type) {
	case archives.FileFS, *archives.FileFS:
		return nil, errors.Wrap(ErrNotArchive, archivePath)
	}

	if err := fsutil.EnsureDir(destDir); err != nil {
		return nil, fmt.Errorf("failed to create destination directory: %w", err)
	}

	var extracted []string
	err = fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		wrote, err := am.extractEntry(fsys, path, destDir, d)
		if err != nil {
			return err
		}
		if wrote {
			extracted = append(extracted, filepath.ToSlash(path))
		}
		return nil
	})
	if err != nil {
		return extracted, err
	}
	return extracted, nil
}

// safeJoin resolves an archive path under destDir.
func safeJoin(destDir, name string) (string, error) {
	target := filepath.Join(destDir, filepath.FromSlash(name))
	rel, err := filepath.Rel(destDir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", errors.Wrapf(errors.ErrInvalidPath, "archive entry %q escapes destination", name)
	}
	return target, nil
}

func (am *Manager) extractEntry(fsys fs.FS, path, destDir string, d fs.DirEntry) (bool, error) {
	if path == "." {
		return false, nil
	}

	targetPath, err := safeJoin(destDir, path)
	if err != nil {
		return false, err
	}

	if d.IsDir() {
		return false, fsutil.EnsureDir(targetPath)
	}

	info, err := d.Info()
	if err != nil {
		return false, fmt.Errorf("failed to get file info for %s: %w", path, err)
	}

	if info.Mode()&os.ModeSymlink != 0 {
		logger.Warn("skipping symlink in archive", logger.Fields{"entry": path})
		return false, nil
	}
	if !info.Mode().IsRegular() {
		return false, nil
	}

	return true, am.writeRegularFile(fsys, path, targetPath, info)
}

func (am *Manager) writeRegularFile(fsys fs.FS, path, targetPath string, info fs.FileInfo) error {
	srcFile, err := fsys.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", path, err)
	}
	defer func() { _ = srcFile.Close() }()

	perm := info.Mode().Perm()
	if perm == 0 {
		perm = fsutil.FileModeDefault
	}
	if _, err := fsutil.WriteFileAtomic(targetPath, srcFile, perm); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if !info.ModTime().IsZero() {
		if err := os.Chtimes(targetPath, info.ModTime(), info.ModTime()); err != nil {
			return fmt.Errorf("failed to set modification time for %s: %w", targetPath, err)
		}
	}
	return nil
}
