package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dara-forge/forge/internal/logger"
	"github.com/dara-forge/forge/pkg/config"
	"github.com/dara-forge/forge/pkg/errors"
)

type endpointLine struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Priority int    `json:"priority"`
	Enabled  bool   `json:"enabled"`
	Auth     string `json:"auth,omitempty"`
}

// NewEndpointCmd creates the endpoint command with subcommands.
func NewEndpointCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "endpoint",
		Short: "Manage retrieval endpoints",
		Long:  "Add, remove, list, enable and disable storage gateways",
	}

	cmd.AddCommand(
		newEndpointAddCmd(),
		newEndpointRemoveCmd(),
		newEndpointListCmd(),
		newEndpointToggleCmd("enable", true),
		newEndpointToggleCmd("disable", false),
	)

	return cmd
}

type endpointAddOptions struct {
	priority int
	bearer   string
	basic    string
	headers  []string
}

func newEndpointAddCmd() *cobra.Command {
	var opts endpointAddOptions

	cmd := &cobra.Command{
		Use:   "add NAME URL",
		Short: "Add an endpoint",
		Long: `Add a gateway base URL. Lower priorities are tried first.
At most one of --bearer, --basic and --header may be given.`,
		Args: cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return runEndpointAdd(args[0], args[1], opts)
		},
	}

	cmd.Flags().IntVar(&opts.priority, "priority", 0, "endpoint priority (lower is tried first)")
	cmd.Flags().StringVar(&opts.bearer, "bearer", "", "bearer token")
	cmd.Flags().StringVar(&opts.basic, "basic", "", "basic auth as USER:PASSWORD")
	cmd.Flags().StringArrayVar(&opts.headers, "header", nil, "request header as NAME=VALUE (repeatable)")

	return cmd
}

func newEndpointRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove NAME",
		Short: "Remove an endpoint",
		Long:  "Remove an endpoint by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runEndpointRemove(args[0])
		},
	}

	return cmd
}

func newEndpointListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured endpoints",
		Long:  "List all configured endpoints in priority order",
		Args:  cobra.NoArgs,
		RunE:  runEndpointList,
	}

	return cmd
}

func newEndpointToggleCmd(use string, enabled bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " NAME",
		Short: strings.ToUpper(use[:1]) + use[1:] + " an endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runEndpointToggle(args[0], enabled)
		},
	}

	return cmd
}

func runEndpointAdd(name, url string, opts endpointAddOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	authCfg, err := authFromFlags(opts)
	if err != nil {
		return err
	}
	if err := cfg.AddEndpoint(name, url, opts.priority); err != nil {
		return fmt.Errorf("failed to add endpoint '%s': %w", name, err)
	}
	cfg.GetEndpoint(name).Auth = authCfg

	if err := cfg.SaveConfig(getConfigPath()); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	logger.Success("Endpoint added", logger.Fields{"name": name, "url": url, "priority": opts.priority})
	return nil
}

func authFromFlags(opts endpointAddOptions) (*config.AuthConfig, error) {
	a := &config.AuthConfig{}
	if opts.bearer != "" {
		a.BearerAuth = &config.BearerAuth{Token: opts.bearer}
	}
	if opts.basic != "" {
		user, pass, ok := strings.Cut(opts.basic, ":")
		if !ok || user == "" {
			return nil, fmt.Errorf("%w: --basic wants USER:PASSWORD", errors.ErrInvalidAuth)
		}
		a.BasicAuth = &config.BasicAuth{Username: user, Password: pass}
	}
	if len(opts.headers) > 0 {
		headers := make(map[string]string, len(opts.headers))
		for _, h := range opts.headers {
			k, v, ok := strings.Cut(h, "=")
			if !ok || strings.TrimSpace(k) == "" {
				return nil, fmt.Errorf("%w: --header wants NAME=VALUE, got %q", errors.ErrInvalidAuth, h)
			}
			headers[strings.TrimSpace(k)] = v
		}
		a.HeaderAuth = &config.HeaderAuth{Headers: headers}
	}
	if a.BearerAuth == nil && a.BasicAuth == nil && a.HeaderAuth == nil {
		return nil, nil
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

func runEndpointRemove(name string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.RemoveEndpoint(name) {
		return fmt.Errorf("failed to remove endpoint '%s': %w", name, errors.ErrEndpointNotFound)
	}
	if err := cfg.SaveConfig(getConfigPath()); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	logger.Success("Endpoint removed", logger.Fields{"name": name})
	return nil
}

func runEndpointToggle(name string, enabled bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.EnableEndpoint(name, enabled) {
		return fmt.Errorf("endpoint '%s': %w", name, errors.ErrEndpointNotFound)
	}
	if err := cfg.SaveConfig(getConfigPath()); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	logger.Success("Endpoint updated", logger.Fields{"name": name, "enabled": enabled})
	return nil
}

func runEndpointList(*cobra.Command, []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	lines := endpointLines(cfg)
	if jsonOutput(cfg) {
		return printJSON(lines)
	}
	if len(lines) == 0 {
		fmt.Println("No endpoints configured")
		return nil
	}

	tabWriter := tabwriter.NewWriter(os.Stdout, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintln(tabWriter, "NAME\tURL\tPRIORITY\tENABLED\tAUTH")
	for _, l := range lines {
		_, _ = fmt.Fprintf(tabWriter, "%s\t%s\t%d\t%t\t%s\n", l.Name, l.URL, l.Priority, l.Enabled, l.Auth)
	}
	return tabWriter.Flush()
}

// endpointLines lists endpoints in the order they are tried.
func endpointLines(cfg *config.Config) []endpointLine {
	lines := make([]endpointLine, 0, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		l := endpointLine{Name: ep.Name, URL: ep.URL, Priority: ep.Priority, Enabled: ep.IsEnabled()}
		if a := ep.Auth.ToAuthenticator(); a != nil {
			l.Auth = a.Redacted()
		}
		lines = append(lines, l)
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Priority < lines[j].Priority })
	return lines
}
