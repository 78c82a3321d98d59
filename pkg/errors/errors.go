package errors

import "fmt"

// Common error types.
var (
	// Config errors.
	ErrEmptyConfigPath         = fmt.Errorf("config file path cannot be empty")
	ErrInvalidConfigPath       = fmt.Errorf("invalid config file path")
	ErrConfigParse             = fmt.Errorf("failed to parse config")
	ErrConfigValidation        = fmt.Errorf("invalid configuration")
	ErrConfigEncode            = fmt.Errorf("failed to encode config")
	ErrConfigMarshal           = fmt.Errorf("failed to marshal config")
	ErrConfigDirectory         = fmt.Errorf("failed to create config directory")
	ErrConfigFileCreate        = fmt.Errorf("failed to create config file")
	ErrConfigFileRename        = fmt.Errorf("failed to replace config file")
	ErrConfigFileChmod         = fmt.Errorf("failed to set config file permissions")
	ErrConfigFileExists        = fmt.Errorf("config file already exists")
	ErrConfigVersion           = fmt.Errorf("unsupported config version")
	ErrUnknownConfigKey        = fmt.Errorf("unknown configuration key")
	ErrEndpointExists          = fmt.Errorf("endpoint already exists")
	ErrEndpointNameEmpty       = fmt.Errorf("endpoint name cannot be empty")
	ErrEndpointNotFound        = fmt.Errorf("endpoint not found")
	ErrHTTPTimeoutNegative     = fmt.Errorf("http_timeout cannot be negative")
	ErrDownloadTimeoutNegative = fmt.Errorf("download_timeout cannot be negative")
	ErrPollBudgetNegative      = fmt.Errorf("poll_budget cannot be negative")
	ErrPollIntervalInvalid     = fmt.Errorf("poll_interval must be positive")
	ErrMaxConcurrentInvalid    = fmt.Errorf("max_concurrent must be at least 1")
	ErrInvalidOutputFormat     = fmt.Errorf("invalid output format")
	ErrInvalidLogLevel         = fmt.Errorf("invalid log level")
	ErrInvalidProbeMethod      = fmt.Errorf("invalid probe method")
	ErrInvalidAlgorithm        = fmt.Errorf("unknown fingerprint algorithm")
	ErrMaxObjectSizeNegative   = fmt.Errorf("max_object_bytes cannot be negative")
	ErrCacheSettingNegative    = fmt.Errorf("cache settings cannot be negative")
	ErrInvalidAuth             = fmt.Errorf("endpoint auth must name exactly one scheme")

	// Fingerprint errors.
	ErrMalformedFingerprint = fmt.Errorf("malformed content fingerprint")
	ErrIntegrityMismatch    = fmt.Errorf("integrity mismatch")

	// Gateway and retrieval errors.
	ErrEmptyEndpoint       = fmt.Errorf("endpoint base URL cannot be empty")
	ErrInvalidEndpoint     = fmt.Errorf("invalid endpoint URL")
	ErrNoEndpoints         = fmt.Errorf("no retrieval endpoints configured")
	ErrNoUsableEndpoints   = fmt.Errorf("no usable retrieval endpoints left")
	ErrInvalidPollPolicy   = fmt.Errorf("invalid poll policy")
	ErrDownloadFailed      = fmt.Errorf("download failed")
	ErrObjectTooLarge      = fmt.Errorf("object exceeds size limit")
	ErrRetrievalTimeout    = fmt.Errorf("content not retrievable within budget")
	ErrInvalidManifest     = fmt.Errorf("invalid manifest")
	ErrInvalidPath         = fmt.Errorf("invalid path")
	ErrOrchestratorMissing = fmt.Errorf("orchestrator dependency is not configured")

	// Hook errors.
	ErrHookTypeEmpty = fmt.Errorf("hook type cannot be empty")
	ErrHookExecution = fmt.Errorf("error executing hook")
	ErrHookScript    = fmt.Errorf("hook script error")
	ErrHookLoad      = fmt.Errorf("failed to load hook")
)

// Wrap wraps an error with additional context.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf wraps an error with additional formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
