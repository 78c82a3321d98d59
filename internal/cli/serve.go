package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dara-forge/forge/internal/logger"
	"github.com/dara-forge/forge/pkg/cache"
	"github.com/dara-forge/forge/pkg/metrics"
	"github.com/dara-forge/forge/pkg/orchestrator"
	"github.com/dara-forge/forge/pkg/server"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the verifying retrieval proxy",
		Long: `Serve /file, /verify and /manifest/verify over HTTP. Requests wait up to
server_budget for content to become retrievable; /metrics exposes Prometheus metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), listen)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default: listen_addr from config)")

	return cmd
}

func runServe(ctx context.Context, listen string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	eps, err := selectEndpoints(cfg, "")
	if err != nil {
		return err
	}
	if listen == "" {
		listen = cfg.Settings.ListenAddr
	}

	m := metrics.New()
	rt, err := buildRuntime(cfg, m.ObserveProbe, orchestrator.Hooks{OnEvent: progress})
	if err != nil {
		return err
	}

	contentCache, err := cache.New(ctx, cache.Options{
		MaxMB:         cfg.Settings.CacheMaxMB,
		TTL:           cfg.Settings.CacheTTL,
		MaxEntryBytes: cfg.Settings.MaxObjectBytes,
	})
	if err != nil {
		return err
	}
	defer func() { _ = contentCache.Close() }()

	srv := server.New(rt.orch, rt.poller, contentCache, m, server.Options{
		Endpoints:           eps,
		Policy:              cfg.ServerPolicy(),
		RetryAfter:          cfg.Settings.RetryAfter,
		ManifestConcurrency: cfg.Settings.MaxConcurrent,
	})

	logger.Info("starting proxy", logger.Fields{
		"listen":    listen,
		"budget":    cfg.Settings.ServerBudget.String(),
		"cache_mb":  cfg.Settings.CacheMaxMB,
		"algorithm": cfg.Settings.Algorithm,
	})
	return srv.Run(ctx, listen)
}
