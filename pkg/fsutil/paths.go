package fsutil

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
)

// AppName names forge's per-user directories.
const AppName = "forge"

// getAppDataDir returns the platform base data directory:
// %LOCALAPPDATA% on Windows, ~/Library/Application Support on macOS,
// and $XDG_DATA_HOME or ~/.local/share elsewhere.
func getAppDataDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			return "", errors.New("LOCALAPPDATA environment variable not set")
		}
		return localAppData, nil
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support"), nil
	default:
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			return xdgDataHome, nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "share"), nil
	}
}

// GetDataDir returns the per-user data directory for forge.
func GetDataDir() (string, error) {
	baseDir, err := getAppDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(baseDir, AppName), nil
}

// GetDownloadDir returns where fetched content lands when no output path is given.
// Format: <data_dir>/downloads/
func GetDownloadDir() (string, error) {
	dataDir, err := GetDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "downloads"), nil
}
