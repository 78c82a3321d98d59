package config

import (
	"testing"
	"time"

	"github.com/dara-forge/forge/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetValue(t *testing.T) {
	tests := []struct {
		key   string
		value string
		want  string
	}{
		{key: "log_level", value: "debug", want: "debug"},
		{key: "poll_budget", value: "1m30s", want: "1m30s"},
		{key: "poll_interval", value: "250ms", want: "250ms"},
		{key: "download_timeout", value: "30m", want: "30m0s"},
		{key: "max_concurrent", value: "8", want: "8"},
		{key: "max_object_bytes", value: "1048576", want: "1048576"},
		{key: "not_found_codes", value: "101, 404", want: "101,404"},
		{key: "hooks.post_retrieve_script", value: "/tmp/hook.tengo", want: "/tmp/hook.tengo"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			cfg := DefaultConfig()
			require.NoError(t, cfg.SetValue(tt.key, tt.value))

			got, err := cfg.GetValue(tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetValue_TypedFields(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.SetValue("poll_budget", "2s"))
	assert.Equal(t, 2*time.Second, cfg.Settings.PollBudget)
	require.NoError(t, cfg.SetValue("not_found_codes", "7"))
	assert.Equal(t, []int{7}, cfg.Settings.NotFoundCodes)
}

func TestSetValue_Errors(t *testing.T) {
	cfg := DefaultConfig()

	assert.ErrorIs(t, cfg.SetValue("color_output", "true"), errors.ErrUnknownConfigKey)
	assert.ErrorIs(t, cfg.SetValue("hooks", "x"), errors.ErrUnknownConfigKey)
	assert.ErrorIs(t, cfg.SetValue("log_level.x", "x"), errors.ErrUnknownConfigKey)
	assert.Error(t, cfg.SetValue("poll_budget", "soon"))
	assert.Error(t, cfg.SetValue("max_concurrent", "many"))
	assert.Error(t, cfg.SetValue("not_found_codes", "101,x"))

	_, err := cfg.GetValue("nope")
	assert.ErrorIs(t, err, errors.ErrUnknownConfigKey)
}

func TestToMap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Settings.Hooks.ClassifierScript = "/etc/forge/classify.tengo"

	m := cfg.ToMap()
	assert.Equal(t, "20s", m["poll_budget"])
	assert.Equal(t, "800ms", m["poll_interval"])
	assert.Equal(t, "101", m["not_found_codes"])
	assert.Equal(t, "range", m["probe_method"])
	assert.Equal(t, "0s", m["download_timeout"])
	assert.Equal(t, "/etc/forge/classify.tengo", m["hooks.classifier_script"])
	assert.Contains(t, m, "hooks.post_retrieve_script")
	assert.NotContains(t, m, "hooks")
}
