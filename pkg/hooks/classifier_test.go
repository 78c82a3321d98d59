package hooks_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dara-forge/forge/pkg/errors"
	"github.com/dara-forge/forge/pkg/gateway"
	"github.com/dara-forge/forge/pkg/hooks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScriptClassifier(t *testing.T) {
	c, err := hooks.NewScriptClassifier(`
		text := import("text")
		if status != 200 {
			result = "transient"
		} else if text.contains(body, "\"pending\"") {
			result = "not_found"
		} else if text.has_prefix(contentType, "application/vnd.forge") {
			result = "available"
		}
	`)
	require.NoError(t, err)

	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		want        gateway.Verdict
	}{
		{name: "pending", status: 200, contentType: "application/json", body: `{"state":"pending"}`, want: gateway.VerdictNotFound},
		{name: "vendor type", status: 200, contentType: "application/vnd.forge+json", body: `{}`, want: gateway.VerdictAvailable},
		{name: "defer", status: 200, contentType: "application/json", body: `{"ok":true}`, want: gateway.VerdictUnknown},
		{name: "partial content", status: 206, contentType: "application/json", body: `{}`, want: gateway.VerdictTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.status, tt.contentType, []byte(tt.body)))
		})
	}
}

func TestScriptClassifier_ConcurrentUse(t *testing.T) {
	c, err := hooks.NewScriptClassifier(hooks.ClassifierTemplate())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := `{"state":"done"}`
			want := gateway.VerdictUnknown
			if i%2 == 0 {
				body = `{"state":"pending"}`
				want = gateway.VerdictNotFound
			}
			assert.Equal(t, want, c.Classify(200, "application/json", []byte(body)))
		}(i)
	}
	wg.Wait()
}

func TestScriptClassifier_Errors(t *testing.T) {
	_, err := hooks.NewScriptClassifier(`result = (`)
	assert.ErrorIs(t, err, errors.ErrHookLoad)

	c, err := hooks.NewScriptClassifier(`result = undefined_fn()`)
	if err == nil {
		assert.Equal(t, gateway.VerdictUnknown, c.Classify(200, "application/json", nil))
	}

	c, err = hooks.NewScriptClassifier(`result = "maybe"`)
	require.NoError(t, err)
	assert.Equal(t, gateway.VerdictUnknown, c.Classify(200, "application/json", nil))

	_, err = hooks.LoadScriptClassifier(filepath.Join(t.TempDir(), "missing.tengo"))
	assert.ErrorIs(t, err, errors.ErrHookLoad)
}

func TestScriptClassifier_InChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "classifier.tengo")
	require.NoError(t, os.WriteFile(path, []byte(hooks.ClassifierTemplate()), 0o600))
	script, err := hooks.LoadScriptClassifier(path)
	require.NoError(t, err)

	chain := gateway.ChainClassifier{script, gateway.NewJSONEnvelopeClassifier(nil)}
	assert.Equal(t, gateway.VerdictNotFound, chain.Classify(200, "application/json", []byte(`{"code":101}`)))
	assert.Equal(t, gateway.VerdictNotFound, chain.Classify(200, "application/json", []byte(`{"state":"pending"}`)))
	assert.Equal(t, gateway.VerdictUnknown, chain.Classify(200, "application/json", []byte(`{"state":"done"}`)))
}
