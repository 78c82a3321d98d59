package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dara-forge/forge/pkg/config"
	pkgerrors "github.com/dara-forge/forge/pkg/errors"
	"github.com/dara-forge/forge/pkg/fingerprint"
	"github.com/dara-forge/forge/pkg/gateway"
	"github.com/dara-forge/forge/pkg/orchestrator"
	"github.com/dara-forge/forge/test/testutil"
)

func TestAuthFromFlags(t *testing.T) {
	tests := []struct {
		name      string
		opts      endpointAddOptions
		expectNil bool
		expectErr error
		redacted  string
	}{
		{name: "none", expectNil: true},
		{name: "bearer", opts: endpointAddOptions{bearer: "tok"}, redacted: "bearer ***"},
		{name: "basic", opts: endpointAddOptions{basic: "alice:pw"}, redacted: "basic alice:***"},
		{name: "headers", opts: endpointAddOptions{headers: []string{"x-api-key=1", "X-Client-Id=2"}}, redacted: "header X-Api-Key,X-Client-Id"},
		{name: "basic without password separator", opts: endpointAddOptions{basic: "alice"}, expectErr: pkgerrors.ErrInvalidAuth},
		{name: "header without value", opts: endpointAddOptions{headers: []string{"X-Api-Key"}}, expectErr: pkgerrors.ErrInvalidAuth},
		{name: "two schemes", opts: endpointAddOptions{bearer: "tok", basic: "a:b"}, expectErr: pkgerrors.ErrInvalidAuth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := authFromFlags(tt.opts)
			if tt.expectErr != nil {
				require.ErrorIs(t, err, tt.expectErr)
				return
			}
			require.NoError(t, err)
			if tt.expectNil {
				assert.Nil(t, a)
				return
			}
			require.NotNil(t, a)
			assert.Equal(t, tt.redacted, a.ToAuthenticator().Redacted())
		})
	}
}

func TestOutcomeError(t *testing.T) {
	tests := []struct {
		name      string
		outcome   orchestrator.Outcome
		expectErr error
	}{
		{name: "success", outcome: orchestrator.Outcome{Status: orchestrator.Success}},
		{name: "timeout", outcome: orchestrator.Outcome{Status: orchestrator.Timeout}, expectErr: pkgerrors.ErrRetrievalTimeout},
		{
			name:      "mismatch",
			outcome:   orchestrator.Outcome{Status: orchestrator.Error, Reason: orchestrator.ReasonIntegrityMismatch},
			expectErr: pkgerrors.ErrIntegrityMismatch,
		},
		{
			name:      "download failure",
			outcome:   orchestrator.Outcome{Status: orchestrator.Error, Reason: "unexpected status code: 500"},
			expectErr: pkgerrors.ErrDownloadFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := outcomeError(tt.outcome)
			if tt.expectErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.expectErr)
		})
	}
}

func TestParseRoot(t *testing.T) {
	sha, err := fingerprint.Compute(fingerprint.SHA256, []byte("x"))
	require.NoError(t, err)
	c, err := fingerprint.CID(fingerprint.SHA256, sha)
	require.NoError(t, err)

	fromHex, err := parseRoot(strings.ToUpper(strings.TrimPrefix(sha.String(), "0x")))
	require.NoError(t, err)
	assert.True(t, sha.Equal(fromHex))

	fromCID, err := parseRoot(c.String())
	require.NoError(t, err)
	assert.True(t, sha.Equal(fromCID))

	_, err = parseRoot("bogus")
	assert.ErrorIs(t, err, pkgerrors.ErrMalformedFingerprint)
}

func TestOutputPath(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Settings.DownloadDir = "/data/downloads"
	root := "0x" + strings.Repeat("ab", fingerprint.Size)

	assert.Equal(t, "out.bin", outputPath(cfg, fetchOptions{out: "out.bin"}, root))
	assert.Equal(t, filepath.Join("/data/downloads", root), outputPath(cfg, fetchOptions{}, root))
	assert.Equal(t, filepath.Join("/data/downloads", "notes.txt"), outputPath(cfg, fetchOptions{name: "../../notes.txt"}, root))
}

func TestSelectEndpoints(t *testing.T) {
	cfg := config.DefaultConfig()
	_, err := selectEndpoints(cfg, "")
	require.ErrorIs(t, err, pkgerrors.ErrNoEndpoints)

	require.NoError(t, cfg.AddEndpoint("a", "https://a.example.com", 2))
	require.NoError(t, cfg.AddEndpoint("b", "https://b.example.com", 1))
	cfg.EnableEndpoint("a", false)

	eps, err := selectEndpoints(cfg, "")
	require.NoError(t, err)
	require.Len(t, eps, 1)
	assert.Equal(t, "b", eps[0].Name)

	eps, err = selectEndpoints(cfg, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", eps[0].Name)

	_, err = selectEndpoints(cfg, "c")
	require.ErrorIs(t, err, pkgerrors.ErrEndpointNotFound)
}

func TestBuildClassifier(t *testing.T) {
	cfg := config.DefaultConfig()
	c, err := buildClassifier(cfg)
	require.NoError(t, err)
	assert.Equal(t, gateway.VerdictNotFound, c.Classify(200, "application/json", []byte(testutil.SoftNotFoundBody)))

	script := filepath.Join(t.TempDir(), "classify.tengo")
	require.NoError(t, os.WriteFile(script, []byte(`
text := import("text")
if text.contains(body, "pending") {
    result = "not_found"
}`), 0o600))
	cfg.Settings.Hooks.ClassifierScript = script

	c, err = buildClassifier(cfg)
	require.NoError(t, err)
	assert.Equal(t, gateway.VerdictNotFound, c.Classify(200, "application/json", []byte(`{"state":"pending"}`)))
	assert.Equal(t, gateway.VerdictNotFound, c.Classify(200, "application/json", []byte(testutil.SoftNotFoundBody)))

	cfg.Settings.Hooks.ClassifierScript = filepath.Join(t.TempDir(), "missing.tengo")
	_, err = buildClassifier(cfg)
	assert.ErrorIs(t, err, pkgerrors.ErrHookLoad)
}

func TestBuildRuntime(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Settings.MaxObjectBytes = 1024

	rt, err := buildRuntime(cfg, nil, orchestrator.Hooks{})
	require.NoError(t, err)
	assert.Equal(t, int64(1024), rt.orch.MaxObject)
	assert.Equal(t, fingerprint.MerkleKeccak256, rt.verifier.Algorithm())
	assert.Equal(t, userAgent(), rt.client.UserAgent())

	cfg.Settings.Hooks.PostRetrieveScript = filepath.Join(t.TempDir(), "missing.tengo")
	_, err = buildRuntime(cfg, nil, orchestrator.Hooks{})
	assert.ErrorIs(t, err, pkgerrors.ErrHookLoad)
}
