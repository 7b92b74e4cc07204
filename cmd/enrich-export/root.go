package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Sternrassler/enrich-export/internal/config"
	"github.com/Sternrassler/enrich-export/pkg/cache"
	"github.com/Sternrassler/enrich-export/pkg/client"
	"github.com/Sternrassler/enrich-export/pkg/enrich"
	"github.com/Sternrassler/enrich-export/pkg/logging"
)

type configKey struct{}

// newRootCommand enables all children commands to read flags from CLI flags,
// environment variables prefixed with ENRICH_EXPORT, or config.yaml (in that
// order).
func newRootCommand(v *viper.Viper) *cobra.Command {
	config.Init(v)
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "enrich-export",
		Short: "Stream gene-set enrichment results as TSV",
		Long: `Stream gene-set enrichment results as TSV.

enrich-export pages through the results of an enrichment GraphQL API and
writes them as tab-separated files, either over HTTP (serve) or to a file
(export).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Read(v)
			if err != nil {
				return err
			}
			logging.Setup(logging.Config{
				Level:  logging.LogLevel(cfg.Log.Level),
				Pretty: cfg.Log.Pretty,
				Output: os.Stderr,
			})
			cmd.SetContext(context.WithValue(cmd.Context(), configKey{}, cfg))
			return nil
		},
	}

	flags := cmd.PersistentFlags()

	flags.String("upstream-endpoint", defaults.Upstream.Endpoint, "the absolute URL of the enrichment GraphQL API")
	mustBindPFlag(v, "upstream.endpoint", flags.Lookup("upstream-endpoint"))
	mustBindEnv(v, "upstream.endpoint", "ENRICH_EXPORT_UPSTREAM_ENDPOINT")

	flags.Duration("upstream-timeout", defaults.Upstream.Timeout, "the timeout of a single upstream page request")
	mustBindPFlag(v, "upstream.timeout", flags.Lookup("upstream-timeout"))
	mustBindEnv(v, "upstream.timeout", "ENRICH_EXPORT_UPSTREAM_TIMEOUT")

	flags.String("redis-addr", defaults.Redis.Addr, "the host:port of the shared Redis; empty disables the gene-set cache")
	mustBindPFlag(v, "redis.addr", flags.Lookup("redis-addr"))
	mustBindEnv(v, "redis.addr", "ENRICH_EXPORT_REDIS_ADDR")

	flags.String("log-level", defaults.Log.Level, "the log level (debug, info, warn, error)")
	mustBindPFlag(v, "log.level", flags.Lookup("log-level"))
	mustBindEnv(v, "log.level", "ENRICH_EXPORT_LOG_LEVEL")

	flags.Bool("log-pretty", defaults.Log.Pretty, "write human-readable logs instead of JSON")
	mustBindPFlag(v, "log.pretty", flags.Lookup("log-pretty"))
	mustBindEnv(v, "log.pretty", "ENRICH_EXPORT_LOG_PRETTY")

	return cmd
}

func configFrom(cmd *cobra.Command) *config.Config {
	if cfg, ok := cmd.Context().Value(configKey{}).(*config.Config); ok {
		return cfg
	}
	return config.DefaultConfig()
}

func newClient(cfg *config.Config) (*client.Client, error) {
	return client.New(client.Config{
		Endpoint:  cfg.Upstream.Endpoint,
		UserAgent: cfg.Upstream.UserAgent,
		Timeout:   cfg.Upstream.Timeout,
	})
}

// openRedis connects to the configured Redis, or returns nil when none is
// configured.
func openRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	if !cfg.Redis.Enabled() {
		return nil, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	return rdb, nil
}

// newResolver builds the gene-set resolver, cached when rdb is set.
func newResolver(q enrich.Querier, rdb *redis.Client, cfg *config.Config) *enrich.Resolver {
	if rdb == nil {
		return enrich.NewResolver(q, nil)
	}
	return enrich.NewResolver(q, cache.NewManager(rdb, cfg.Cache.GeneSetTTL))
}
