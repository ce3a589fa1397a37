package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cubegate/cubegate/pkg/api"
	"github.com/cubegate/cubegate/pkg/auth"
	"github.com/cubegate/cubegate/pkg/config"
	"github.com/cubegate/cubegate/pkg/contextcache"
	"github.com/cubegate/cubegate/pkg/driver"
	"github.com/cubegate/cubegate/pkg/logger"
	"github.com/cubegate/cubegate/pkg/metrics"
	"github.com/cubegate/cubegate/pkg/upstream"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the cubegate resolution server",
		Long: `Start the REST server that resolves security contexts into driver
configuration and serves the known-tenant list for scheduled refreshes.`,
		RunE: runServe,
	}

	flags := cmd.Flags()
	flags.String("address", ":8686", "Address to listen on")
	flags.String("upstream-url", "", "Base URL of the upstream identity/config service")
	flags.String("upstream-email", "", "Service account email for the upstream login")
	flags.String("upstream-password", "", "Service account password for the upstream login")
	flags.String("api-secret", "", "Shared HS256 secret for security context tokens")
	flags.String("default-dataset", "", "Dataset substituted when the inbound context has none")
	flags.String("credential-source", config.SourceRemote, "Credential source: remote or static")
	flags.Bool("enable-token-endpoint", false, "Expose POST /api/v1/token (development only)")
	flags.Duration("context-ttl", 0, "Freshness window of the tenant context cache")
	flags.Duration("refresh-interval", 0, "Period of the background pre-warm loop")
	flags.Duration("upstream-timeout", 0, "Timeout applied to every upstream call")
	flags.String("static-type", "", "Static mode: destination type (postgres)")
	flags.String("static-hostname", "", "Static mode: destination hostname")
	flags.Int("static-port", 5432, "Static mode: destination port")
	flags.String("static-database", "", "Static mode: destination database")
	flags.String("static-username", "", "Static mode: destination username")
	flags.String("static-password", "", "Static mode: destination password")

	if err := viper.BindPFlags(flags); err != nil {
		logger.Fatalf("Failed to bind serve flags: %v", err)
	}
	viper.SetEnvPrefix("CUBEGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	return cmd
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewProm(reg)

	var source driver.Source
	var fetcher contextcache.Fetcher

	switch cfg.CredentialSource {
	case config.SourceStatic:
		static := driver.NewStaticSource(cfg.StaticDestination)
		source, fetcher = static, static
		logger.Info("using static credential source")
	default:
		client := upstream.New(cfg.UpstreamBaseURL, cfg.UpstreamEmail, cfg.UpstreamPassword,
			upstream.WithTimeout(cfg.UpstreamTimeout),
			upstream.WithMetrics(m),
		)
		source, fetcher = driver.NewRemoteSource(client), client
		logger.Infow("using remote credential source", "upstream", cfg.UpstreamBaseURL)
	}

	cache := contextcache.New(fetcher,
		contextcache.WithTTL(cfg.ContextTTL),
		contextcache.WithMetrics(m),
	)
	defer cache.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Pre-warm the tenant list and keep it fresh; request handling never
	// waits on this loop.
	cache.Start(ctx, cfg.RefreshInterval)

	deps := api.Deps{
		Resolver: driver.NewResolver(source, cache, m),
		Cache:    cache,
		Gate:     auth.NewGate(cfg.APISecret, cfg.DefaultDataset),
		Gatherer: reg,
	}
	if cfg.EnableTokenEndpoint {
		deps.Issuer = auth.NewIssuer(cfg.APISecret)
		logger.Warn("token endpoint enabled; do not expose this in production")
	}

	return api.Serve(ctx, cfg.Address, deps)
}
