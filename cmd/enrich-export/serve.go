package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Sternrassler/enrich-export/internal/config"
	"github.com/Sternrassler/enrich-export/internal/server"
	"github.com/Sternrassler/enrich-export/pkg/logging"
	"github.com/Sternrassler/enrich-export/pkg/ratelimit"
)

func newServeCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve TSV exports over HTTP",
		Long: `Serve TSV exports over HTTP.

Endpoints: /enrich/download, /enrichpair/download, /term-search/download,
/health and /metrics.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	bindServeFlags(v, cmd)
	return cmd
}

// bindServeFlags binds the cobra cmd flags to the equivalent config value being managed
// by viper. This bridges the config between cobra flags and viper flags.
func bindServeFlags(v *viper.Viper, command *cobra.Command) {
	defaults := config.DefaultConfig()
	flags := command.Flags()

	flags.String("http-addr", defaults.HTTP.Addr, "the host:port address to serve the HTTP server on")
	mustBindPFlag(v, "http.addr", flags.Lookup("http-addr"))
	mustBindEnv(v, "http.addr", "ENRICH_EXPORT_HTTP_ADDR")

	flags.Duration("http-shutdown-timeout", defaults.HTTP.ShutdownTimeout, "how long in-flight exports may run after a shutdown signal")
	mustBindPFlag(v, "http.shutdown-timeout", flags.Lookup("http-shutdown-timeout"))
	mustBindEnv(v, "http.shutdown-timeout", "ENRICH_EXPORT_HTTP_SHUTDOWN_TIMEOUT")

	flags.Int("export-page-size", defaults.Export.PageSize, "the number of nodes requested per upstream page")
	mustBindPFlag(v, "export.page-size", flags.Lookup("export-page-size"))
	mustBindEnv(v, "export.page-size", "ENRICH_EXPORT_EXPORT_PAGE_SIZE")

	flags.Int("export-max-top-n", defaults.Export.MaxTopN, "the largest topn a caller may request")
	mustBindPFlag(v, "export.max-top-n", flags.Lookup("export-max-top-n"))
	mustBindEnv(v, "export.max-top-n", "ENRICH_EXPORT_EXPORT_MAX_TOP_N")

	flags.Int("export-max-total-limit", defaults.Export.MaxTotalLimit, "the largest maxTotal a caller may request")
	mustBindPFlag(v, "export.max-total-limit", flags.Lookup("export-max-total-limit"))
	mustBindEnv(v, "export.max-total-limit", "ENRICH_EXPORT_EXPORT_MAX_TOTAL_LIMIT")

	flags.Int("export-max-concurrent", defaults.Export.MaxConcurrent, "the number of exports allowed to run at once across all instances sharing Redis")
	mustBindPFlag(v, "export.max-concurrent", flags.Lookup("export-max-concurrent"))
	mustBindEnv(v, "export.max-concurrent", "ENRICH_EXPORT_EXPORT_MAX_CONCURRENT")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := configFrom(cmd)
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := logging.NewLogger("enrich-export")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	upstream, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer upstream.Close()

	rdb, err := openRedis(ctx, cfg)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")
	} else {
		logger.Info().Msg("Redis not configured - gene-set cache off, export slots per instance")
	}

	tracker := ratelimit.NewTracker(rdb, ratelimit.Config{
		Limit:         cfg.Export.MaxConcurrent,
		SlotTTL:       ratelimit.DefaultSlotTTL,
		ThrottleDelay: ratelimit.DefaultThrottleDelay,
	}, logging.NewLogger("ratelimit"))

	srv := server.New(server.Options{
		Querier:  upstream,
		Resolver: newResolver(upstream, rdb, cfg),
		Tracker:  tracker,
		Export:   cfg.Export,
		Logger:   logger,
	})

	logger.Info().
		Str("upstream", cfg.Upstream.Endpoint).
		Int("page_size", cfg.Export.PageSize).
		Int("max_concurrent", cfg.Export.MaxConcurrent).
		Msg("Export service configured")

	return srv.ListenAndServe(ctx, cfg.HTTP.Addr, cfg.HTTP.ShutdownTimeout)
}
