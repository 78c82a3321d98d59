package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dara-forge/forge/internal/logger"
	"github.com/dara-forge/forge/pkg/config"
	"github.com/dara-forge/forge/pkg/download"
	"github.com/dara-forge/forge/pkg/errors"
	"github.com/dara-forge/forge/pkg/fingerprint"
	"github.com/dara-forge/forge/pkg/gateway"
	"github.com/dara-forge/forge/pkg/hooks"
	"github.com/dara-forge/forge/pkg/orchestrator"
	"github.com/dara-forge/forge/pkg/poller"
)

// These variables will be set by the main package
var (
	ConfigPath   *string
	Verbose      *bool
	OutputFormat *string
)

// loadConfig reads the configuration and initializes logging from it. Global
// flags override the loaded values for this invocation only and are never saved.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if _, err := outputFormat(cfg); err != nil {
		return nil, err
	}

	initLogging(cfg)
	return cfg, nil
}

func initLogging(cfg *config.Config) {
	s := cfg.Settings
	level := s.LogLevel
	if Verbose != nil && *Verbose {
		level = "debug"
	}
	logger.SetFile(logger.FileOptions{
		Path:       s.LogFile,
		MaxSizeMB:  s.LogMaxSizeMB,
		MaxBackups: s.LogMaxBackups,
		Compress:   true,
	})
	// Log records stay text on stderr; --output only changes what goes to stdout.
	logger.InitLogger(level, logger.FormatText)
}

func outputFormat(cfg *config.Config) (logger.OutputFormat, error) {
	format := cfg.Settings.OutputFormat
	if OutputFormat != nil && *OutputFormat != "" {
		format = *OutputFormat
	}
	switch logger.OutputFormat(format) {
	case logger.FormatText, logger.FormatJSON:
		return logger.OutputFormat(format), nil
	}
	return "", fmt.Errorf("%w: %q", errors.ErrInvalidOutputFormat, format)
}

func jsonOutput(cfg *config.Config) bool {
	format, _ := outputFormat(cfg)
	return format == logger.FormatJSON
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// runtime is the wired retrieval stack for one command invocation.
type runtime struct {
	cfg      *config.Config
	client   *gateway.Client
	prober   *gateway.HTTPProber
	poller   *poller.Poller
	orch     *orchestrator.Orchestrator
	verifier *fingerprint.Verifier
}

// buildRuntime wires gateway client, prober, poller, downloader, verifier and
// hook scripts from cfg. observer may be nil.
func buildRuntime(cfg *config.Config, observer poller.Observer, events orchestrator.Hooks) (*runtime, error) {
	s := cfg.Settings

	client := gateway.NewClient(s.HTTPTimeout, userAgent())
	client.SetAuthenticators(cfg.Authenticators())

	classifier, err := buildClassifier(cfg)
	if err != nil {
		return nil, err
	}

	prober := gateway.NewHTTPProber(client,
		gateway.WithMethod(gateway.ProbeMethod(s.ProbeMethod)),
		gateway.WithClassifier(classifier),
	)

	var opts []poller.Option
	if observer != nil {
		opts = append(opts, poller.WithObserver(observer))
	}
	p := poller.New(prober, opts...)

	scripts := hooks.NewHookManager()
	if err := hooks.LoadHookFile(scripts, hooks.PostRetrieve, s.Hooks.PostRetrieveScript); err != nil {
		return nil, err
	}

	// Probes keep the whole-request timeout; transfers only bound the header wait.
	transfer := gateway.NewStreamingClient(s.HTTPTimeout, userAgent())
	transfer.SetAuthenticators(cfg.Authenticators())

	verifier := fingerprint.NewVerifier(fingerprint.Algorithm(s.Algorithm))
	orch := orchestrator.New(p, download.NewManagerWithClient(transfer, classifier), verifier, scripts, events)
	orch.MaxObject = s.MaxObjectBytes
	orch.DownloadTimeout = s.DownloadTimeout

	return &runtime{
		cfg:      cfg,
		client:   client,
		prober:   prober,
		poller:   p,
		orch:     orch,
		verifier: verifier,
	}, nil
}

// buildClassifier puts a configured script in front of the JSON envelope check.
func buildClassifier(cfg *config.Config) (gateway.BodyClassifier, error) {
	envelope := gateway.NewJSONEnvelopeClassifier(cfg.Settings.NotFoundCodes)
	path := cfg.Settings.Hooks.ClassifierScript
	if path == "" {
		return envelope, nil
	}
	script, err := hooks.LoadScriptClassifier(path)
	if err != nil {
		return nil, err
	}
	logger.Debug("loaded classifier script", logger.Fields{"path": path})
	return gateway.ChainClassifier{script, envelope}, nil
}

// selectEndpoints returns the enabled endpoints, or only the named one.
func selectEndpoints(cfg *config.Config, name string) ([]gateway.Endpoint, error) {
	if name != "" {
		ep := cfg.GetEndpoint(name)
		if ep == nil {
			return nil, fmt.Errorf("%w: %s", errors.ErrEndpointNotFound, name)
		}
		return []gateway.Endpoint{ep.Endpoint()}, nil
	}
	eps := cfg.EnabledEndpoints()
	if len(eps) == 0 {
		return nil, fmt.Errorf("%w (add one with 'forge endpoint add')", errors.ErrNoEndpoints)
	}
	return eps, nil
}

func progress(e orchestrator.Event) {
	logger.Debug("retrieval "+e.Phase, logger.Fields{"root": e.ID, "detail": e.Msg})
}

func userAgent() string {
	return "forge/" + Version
}
