// Package config loads the service configuration from flags, ENRICH_EXPORT_*
// environment variables and config.yaml, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Sternrassler/enrich-export/pkg/logging"
)

// EnvPrefix prefixes every environment variable read by the service.
const EnvPrefix = "ENRICH_EXPORT"

// ConfigPaths are searched for config.yaml.
var ConfigPaths = []string{"/etc/enrich-export", "$HOME/.enrich-export", "."}

// Config is the complete service configuration.
type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Export   ExportConfig   `mapstructure:"export"`
	Log      LogConfig      `mapstructure:"log"`
}

// HTTPConfig configures the export server.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout"`
}

// UpstreamConfig configures the enrichment GraphQL API.
type UpstreamConfig struct {
	Endpoint  string        `mapstructure:"endpoint"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user-agent"`
}

// RedisConfig configures the shared Redis. An empty Addr disables the gene-set
// cache and makes export slots per-instance.
type RedisConfig struct {
	Addr string `mapstructure:"addr"`
	DB   int    `mapstructure:"db"`
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.Addr) != ""
}

// CacheConfig configures the gene-set cache.
type CacheConfig struct {
	GeneSetTTL time.Duration `mapstructure:"gene-set-ttl"`
}

// ExportConfig bounds exports.
type ExportConfig struct {
	PageSize        int `mapstructure:"page-size"`
	DefaultTopN     int `mapstructure:"default-top-n"`
	MaxTopN         int `mapstructure:"max-top-n"`
	DefaultMaxTotal int `mapstructure:"default-max-total"`
	MaxTotalLimit   int `mapstructure:"max-total-limit"`
	MaxConcurrent   int `mapstructure:"max-concurrent"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: 30 * time.Second,
		},
		Upstream: UpstreamConfig{
			Timeout:   60 * time.Second,
			UserAgent: "enrich-export/0.1.0",
		},
		Cache: CacheConfig{
			GeneSetTTL: 24 * time.Hour,
		},
		Export: ExportConfig{
			PageSize:        500,
			DefaultTopN:     10000,
			MaxTopN:         50000,
			DefaultMaxTotal: 100000,
			MaxTotalLimit:   500000,
			MaxConcurrent:   8,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Init prepares v to read config.yaml and ENRICH_EXPORT_* variables, and
// registers every key with its default so environment overrides apply even
// without a config file.
func Init(v *viper.Viper) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	for _, path := range ConfigPaths {
		v.AddConfigPath(path)
	}

	d := DefaultConfig()
	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.shutdown-timeout", d.HTTP.ShutdownTimeout)
	v.SetDefault("upstream.endpoint", d.Upstream.Endpoint)
	v.SetDefault("upstream.timeout", d.Upstream.Timeout)
	v.SetDefault("upstream.user-agent", d.Upstream.UserAgent)
	v.SetDefault("redis.addr", d.Redis.Addr)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("cache.gene-set-ttl", d.Cache.GeneSetTTL)
	v.SetDefault("export.page-size", d.Export.PageSize)
	v.SetDefault("export.default-top-n", d.Export.DefaultTopN)
	v.SetDefault("export.max-top-n", d.Export.MaxTopN)
	v.SetDefault("export.default-max-total", d.Export.DefaultMaxTotal)
	v.SetDefault("export.max-total-limit", d.Export.MaxTotalLimit)
	v.SetDefault("export.max-concurrent", d.Export.MaxConcurrent)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.pretty", d.Log.Pretty)
}

// Read returns the configuration held by v. A missing config file is not an
// error.
func Read(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()

	v.SetTypeByDefaultValue(true)
	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}

	if c.Upstream.Endpoint == "" {
		return errors.New("upstream.endpoint is required")
	}
	u, err := url.Parse(c.Upstream.Endpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("upstream.endpoint must be an absolute URL (got %q)", c.Upstream.Endpoint)
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream.timeout must be positive (got %s)", c.Upstream.Timeout)
	}

	if c.Redis.DB < 0 {
		return fmt.Errorf("redis.db must not be negative (got %d)", c.Redis.DB)
	}
	if c.Redis.Enabled() && c.Cache.GeneSetTTL <= 0 {
		return fmt.Errorf("cache.gene-set-ttl must be positive (got %s)", c.Cache.GeneSetTTL)
	}

	e := c.Export
	switch {
	case e.PageSize <= 0:
		return fmt.Errorf("export.page-size must be positive (got %d)", e.PageSize)
	case e.MaxConcurrent <= 0:
		return fmt.Errorf("export.max-concurrent must be positive (got %d)", e.MaxConcurrent)
	case e.DefaultTopN <= 0 || e.DefaultTopN > e.MaxTopN:
		return fmt.Errorf("export.default-top-n must be in 1..export.max-top-n (got %d, max %d)", e.DefaultTopN, e.MaxTopN)
	case e.DefaultMaxTotal < 0 || e.DefaultMaxTotal > e.MaxTotalLimit:
		return fmt.Errorf("export.default-max-total must be in 0..export.max-total-limit (got %d, limit %d)", e.DefaultMaxTotal, e.MaxTotalLimit)
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}
