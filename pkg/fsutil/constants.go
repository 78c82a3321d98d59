// Package fsutil holds the file system helpers shared by downloads, extraction and config.
package fsutil

// Permission modes used for files forge writes.
const (
	FileModeDefault = 0o644 // -rw-r--r--: downloaded content
	FileModeSecure  = 0o640 // -rw-r-----: config files

	DirModeDefault = 0o755 // drwxr-xr-x
	DirModeSecure  = 0o750 // drwxr-x---
)
