// Package config loads, validates and saves forge's YAML configuration:
// the retrieval endpoints and the settings that drive polling, the proxy
// server, caching and logging. A missing file yields the defaults.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	version "github.com/hashicorp/go-version"
	"gopkg.in/yaml.v3"

	"github.com/dara-forge/forge/pkg/errors"
	"github.com/dara-forge/forge/pkg/fingerprint"
	"github.com/dara-forge/forge/pkg/fsutil"
	"github.com/dara-forge/forge/pkg/gateway"
	"github.com/dara-forge/forge/pkg/poller"
)

// Config represents the application configuration.
type Config struct {
	Version   string            `yaml:"version"`
	Endpoints []*EndpointConfig `yaml:"endpoints"`
	Settings  Settings          `yaml:"settings"`
}

// EndpointConfig is a configured gateway. Enabled defaults to true when omitted.
type EndpointConfig struct {
	Name     string      `yaml:"name"`
	URL      string      `yaml:"url"`
	Priority int         `yaml:"priority"`
	Enabled  *bool       `yaml:"enabled,omitempty"`
	Auth     *AuthConfig `yaml:"auth,omitempty"`
}

// HookSettings points at optional tengo scripts.
type HookSettings struct {
	ClassifierScript   string `yaml:"classifier_script,omitempty"`
	PostRetrieveScript string `yaml:"post_retrieve_script,omitempty"`
}

// Settings represents general application settings.
type Settings struct {
	// Polling
	PollBudget   time.Duration `yaml:"poll_budget"`
	PollInterval time.Duration `yaml:"poll_interval"`

	// Network
	HTTPTimeout   time.Duration `yaml:"http_timeout"`
	ProbeMethod   string        `yaml:"probe_method"`
	NotFoundCodes []int         `yaml:"not_found_codes"`

	// DownloadTimeout bounds a whole object transfer; zero means no limit.
	// http_timeout still bounds the wait for response headers.
	DownloadTimeout time.Duration `yaml:"download_timeout"`

	// Verification and download
	Algorithm      string `yaml:"algorithm"`
	MaxObjectBytes int64  `yaml:"max_object_bytes"`
	MaxConcurrent  int    `yaml:"max_concurrent"`
	DownloadDir    string `yaml:"download_dir,omitempty"`

	// Proxy server
	ListenAddr   string        `yaml:"listen_addr"`
	ServerBudget time.Duration `yaml:"server_budget"`
	RetryAfter   int           `yaml:"retry_after"`
	CacheMaxMB   int           `yaml:"cache_max_mb"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`

	// Output and logging
	OutputFormat  string `yaml:"output_format"` // text, json
	LogLevel      string `yaml:"log_level"`     // debug, info, warn, error
	LogFile       string `yaml:"log_file,omitempty"`
	LogMaxSizeMB  int    `yaml:"log_max_size_mb"`
	LogMaxBackups int    `yaml:"log_max_backups"`

	Hooks HookSettings `yaml:"hooks,omitempty"`
}

// Default configuration values.
const (
	// SchemaVersion is written into new configuration files.
	SchemaVersion = "1.0"
	// SupportedVersions constrains the version field of loaded files.
	SupportedVersions = ">= 1.0, < 2.0"

	DefaultHTTPTimeout    = 10 * time.Second
	DefaultMaxObjectBytes = 256 << 20
	DefaultMaxConcurrent  = 4
	DefaultListenAddr     = "127.0.0.1:8080"
	DefaultServerBudget   = poller.DefaultBudget
	DefaultRetryAfter     = 5
	DefaultCacheMaxMB     = 256
	DefaultCacheTTL       = time.Hour
	DefaultLogMaxSizeMB   = 50
	DefaultLogMaxBackups  = 3

	// YAMLIndent is the number of spaces to use for YAML indentation.
	YAMLIndent = 2
)

// DefaultConfig returns a configuration with sensible defaults and no endpoints.
func DefaultConfig() *Config {
	return &Config{
		Version:   SchemaVersion,
		Endpoints: []*EndpointConfig{},
		Settings: Settings{
			PollBudget:     poller.DefaultBudget,
			PollInterval:   poller.DefaultInterval,
			HTTPTimeout:    DefaultHTTPTimeout,
			ProbeMethod:    string(gateway.MethodRange),
			NotFoundCodes:  append([]int(nil), gateway.DefaultNotFoundCodes...),
			Algorithm:      string(fingerprint.DefaultAlgorithm),
			MaxObjectBytes: DefaultMaxObjectBytes,
			MaxConcurrent:  DefaultMaxConcurrent,
			ListenAddr:     DefaultListenAddr,
			ServerBudget:   DefaultServerBudget,
			RetryAfter:     DefaultRetryAfter,
			CacheMaxMB:     DefaultCacheMaxMB,
			CacheTTL:       DefaultCacheTTL,
			OutputFormat:   "text",
			LogLevel:       "info",
			LogMaxSizeMB:   DefaultLogMaxSizeMB,
			LogMaxBackups:  DefaultLogMaxBackups,
		},
	}
}

// LoadConfig loads configuration from a file. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errors.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfigPath, err.Error())
	}

	file, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, errors.Wrapf(err, "failed to open config file: %s", path)
	}
	defer func() { _ = file.Close() }()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config data")
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrap(errors.ErrConfigParse, err.Error())
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrConfigValidation, err)
	}

	return &config, nil
}

// SaveConfig writes the configuration to path, replacing it atomically.
func (c *Config) SaveConfig(path string) error {
	if path == "" {
		return errors.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(errors.ErrInvalidConfigPath, err.Error())
	}

	if err := fsutil.EnsureFileDir(absPath); err != nil {
		return errors.Wrap(errors.ErrConfigDirectory, err.Error())
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(YAMLIndent)
	if err := encoder.Encode(c); err != nil {
		return errors.Wrap(errors.ErrConfigEncode, err.Error())
	}
	_ = encoder.Close()

	if _, err := fsutil.WriteFileAtomic(absPath, &buf, fsutil.FileModeSecure); err != nil {
		return errors.Wrap(errors.ErrConfigFileRename, err.Error())
	}
	return nil
}

// InitConfig writes the default configuration to path. An existing file is
// only replaced when force is set.
func InitConfig(path string, force bool) (*Config, error) {
	if path == "" {
		return nil, errors.ErrEmptyConfigPath
	}
	if _, err := os.Stat(path); err == nil && !force {
		return nil, errors.Wrap(errors.ErrConfigFileExists, path)
	}
	cfg := DefaultConfig()
	if err := cfg.SaveConfig(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ToYAML converts the config to YAML bytes.
func (c *Config) ToYAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(errors.ErrConfigMarshal, err.Error())
	}
	return data, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c == nil {
		return errors.ErrConfigValidation
	}
	if err := validateVersion(c.Version); err != nil {
		return err
	}
	if err := validateEndpoints(c.Endpoints); err != nil {
		return err
	}
	return validateSettings(c.Settings)
}

func validateVersion(v string) error {
	if v == "" {
		return nil
	}
	parsed, err := version.NewVersion(v)
	if err != nil {
		return errors.Wrapf(errors.ErrConfigVersion, "%q: %v", v, err)
	}
	constraint, err := version.NewConstraint(SupportedVersions)
	if err != nil {
		return errors.Wrap(errors.ErrConfigVersion, err.Error())
	}
	if !constraint.Check(parsed) {
		return errors.Wrapf(errors.ErrConfigVersion, "%s does not satisfy %s", v, SupportedVersions)
	}
	return nil
}

func validateEndpoints(eps []*EndpointConfig) error {
	names := make(map[string]bool)
	for i, ep := range eps {
		if ep == nil || ep.Name == "" {
			return errors.Wrapf(errors.ErrEndpointNameEmpty, "endpoint at index %d", i)
		}
		if names[ep.Name] {
			return errors.Wrap(errors.ErrEndpointExists, ep.Name)
		}
		names[ep.Name] = true
		if err := ep.Endpoint().Validate(); err != nil {
			return err
		}
		if err := ep.Auth.Validate(); err != nil {
			return errors.Wrapf(err, "endpoint %s", ep.Name)
		}
	}
	return nil
}

func validateSettings(s Settings) error {
	if s.HTTPTimeout < 0 {
		return errors.ErrHTTPTimeoutNegative
	}
	if s.DownloadTimeout < 0 {
		return errors.ErrDownloadTimeoutNegative
	}
	if s.PollBudget < 0 || s.ServerBudget < 0 {
		return errors.ErrPollBudgetNegative
	}
	if s.PollInterval <= 0 {
		return errors.ErrPollIntervalInvalid
	}
	if s.MaxConcurrent < 1 {
		return errors.ErrMaxConcurrentInvalid
	}
	if s.MaxObjectBytes < 0 {
		return errors.ErrMaxObjectSizeNegative
	}
	if s.CacheMaxMB < 0 || s.CacheTTL < 0 || s.RetryAfter < 0 {
		return errors.ErrCacheSettingNegative
	}
	if !gateway.ProbeMethod(s.ProbeMethod).Valid() {
		return errors.Wrapf(errors.ErrInvalidProbeMethod, "%q (want range or head)", s.ProbeMethod)
	}
	if !fingerprint.Algorithm(s.Algorithm).Valid() {
		return errors.Wrapf(errors.ErrInvalidAlgorithm, "%q", s.Algorithm)
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[s.OutputFormat] {
		return errors.Wrapf(errors.ErrInvalidOutputFormat, "%q (want text or json)", s.OutputFormat)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(s.LogLevel)] {
		return errors.Wrapf(errors.ErrInvalidLogLevel, "%q", s.LogLevel)
	}
	return nil
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, fsutil.AppName, "config.yaml"), nil
}

// IsEnabled reports whether the endpoint takes part in retrieval.
func (e *EndpointConfig) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// Endpoint converts the configuration entry to a gateway endpoint.
func (e *EndpointConfig) Endpoint() gateway.Endpoint {
	return gateway.Endpoint{Name: e.Name, BaseURL: e.URL, Priority: e.Priority}
}

// AddEndpoint adds a gateway. Names must be unique.
func (c *Config) AddEndpoint(name, url string, priority int) error {
	if name == "" {
		return errors.ErrEndpointNameEmpty
	}
	if c.GetEndpoint(name) != nil {
		return errors.Wrap(errors.ErrEndpointExists, name)
	}
	ep := &EndpointConfig{Name: name, URL: url, Priority: priority}
	if err := ep.Endpoint().Validate(); err != nil {
		return err
	}
	c.Endpoints = append(c.Endpoints, ep)
	return nil
}

// RemoveEndpoint removes a gateway by name.
func (c *Config) RemoveEndpoint(name string) bool {
	for i, ep := range c.Endpoints {
		if ep.Name == name {
			c.Endpoints = append(c.Endpoints[:i], c.Endpoints[i+1:]...)
			return true
		}
	}
	return false
}

// GetEndpoint gets an endpoint configuration by name.
func (c *Config) GetEndpoint(name string) *EndpointConfig {
	for _, ep := range c.Endpoints {
		if ep.Name == name {
			return ep
		}
	}
	return nil
}

// EnableEndpoint enables or disables an endpoint.
func (c *Config) EnableEndpoint(name string, enabled bool) bool {
	ep := c.GetEndpoint(name)
	if ep == nil {
		return false
	}
	ep.Enabled = &enabled
	return true
}

// EnabledEndpoints returns the enabled gateways in configuration order.
func (c *Config) EnabledEndpoints() []gateway.Endpoint {
	out := make([]gateway.Endpoint, 0, len(c.Endpoints))
	for _, ep := range c.Endpoints {
		if ep.IsEnabled() {
			out = append(out, ep.Endpoint())
		}
	}
	return out
}

// PollPolicy returns the configured client-side polling policy.
func (c *Config) PollPolicy() poller.Policy {
	return poller.Policy{Budget: c.Settings.PollBudget, Interval: c.Settings.PollInterval}
}

// ServerPolicy returns the polling policy used by the proxy server.
func (c *Config) ServerPolicy() poller.Policy {
	return poller.Policy{Budget: c.Settings.ServerBudget, Interval: c.Settings.PollInterval}
}

// GetDownloadDir returns the directory fetch writes into when no output is given.
func (c *Config) GetDownloadDir() string {
	if c.Settings.DownloadDir != "" {
		return c.Settings.DownloadDir
	}
	dir, err := fsutil.GetDownloadDir()
	if err != nil {
		return "."
	}
	return dir
}

// applyDefaults fills in missing values with defaults.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	s := &c.Settings
	d := defaults.Settings

	if c.Version == "" {
		c.Version = defaults.Version
	}
	if s.PollBudget == 0 {
		s.PollBudget = d.PollBudget
	}
	if s.PollInterval == 0 {
		s.PollInterval = d.PollInterval
	}
	if s.HTTPTimeout == 0 {
		s.HTTPTimeout = d.HTTPTimeout
	}
	if s.ProbeMethod == "" {
		s.ProbeMethod = d.ProbeMethod
	}
	if len(s.NotFoundCodes) == 0 {
		s.NotFoundCodes = d.NotFoundCodes
	}
	if s.Algorithm == "" {
		s.Algorithm = d.Algorithm
	}
	if s.MaxObjectBytes == 0 {
		s.MaxObjectBytes = d.MaxObjectBytes
	}
	if s.MaxConcurrent == 0 {
		s.MaxConcurrent = d.MaxConcurrent
	}
	if s.ListenAddr == "" {
		s.ListenAddr = d.ListenAddr
	}
	if s.ServerBudget == 0 {
		s.ServerBudget = d.ServerBudget
	}
	if s.RetryAfter == 0 {
		s.RetryAfter = d.RetryAfter
	}
	if s.CacheMaxMB == 0 {
		s.CacheMaxMB = d.CacheMaxMB
	}
	if s.CacheTTL == 0 {
		s.CacheTTL = d.CacheTTL
	}
	if s.OutputFormat == "" {
		s.OutputFormat = d.OutputFormat
	}
	if s.LogLevel == "" {
		s.LogLevel = d.LogLevel
	}
	if s.LogMaxSizeMB == 0 {
		s.LogMaxSizeMB = d.LogMaxSizeMB
	}
	if s.LogMaxBackups == 0 {
		s.LogMaxBackups = d.LogMaxBackups
	}
	if c.Endpoints == nil {
		c.Endpoints = []*EndpointConfig{}
	}
}
