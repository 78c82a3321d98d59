//go:build integration

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// runCLI executes the root command with args and returns what it wrote to stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		done <- buf.String()
	}()

	cmd := newRootCmd()
	cmd.SetArgs(args)
	runErr := cmd.ExecuteContext(context.Background())

	_ = w.Close()
	os.Stdout = oldStdout
	return <-done, runErr
}

// writeConfig creates a config file with one endpoint pointing at gatewayURL.
// An empty gatewayURL writes a config without endpoints.
func writeConfig(t *testing.T, gatewayURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")

	content := `version: "1.0"
settings:
  poll_budget: 2s
  poll_interval: 20ms
  http_timeout: 2s
  download_dir: ` + filepath.Join(t.TempDir(), "downloads") + `
`
	if gatewayURL != "" {
		content = fmt.Sprintf(`version: "1.0"
endpoints:
  - name: primary
    url: %s
    priority: 0
settings:
  poll_budget: 2s
  poll_interval: 20ms
  http_timeout: 2s
  download_dir: %s
`, gatewayURL, filepath.Join(t.TempDir(), "downloads"))
	}

	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
