// Package config loads application configuration from config.yaml and
// MARKETFLOW_-prefixed environment variables.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/marketflow-cli/internal/collector"
)

// Config holds the full application configuration.
type Config struct {
	DataDir   string          `yaml:"data_dir" mapstructure:"data_dir"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Reconcile ReconcileConfig `yaml:"reconcile" mapstructure:"reconcile"`
	Sources   SourcesConfig   `yaml:"sources" mapstructure:"sources"`
	Sync      SyncConfig      `yaml:"sync" mapstructure:"sync"`
	Audit     AuditConfig     `yaml:"audit" mapstructure:"audit"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// CacheConfig tunes the tiered cache.
type CacheConfig struct {
	MaxEntries    int `yaml:"max_entries" mapstructure:"max_entries"`       // memory tier
	MaxRows       int `yaml:"max_rows" mapstructure:"max_rows"`             // per table per store db
	PruneInterval int `yaml:"prune_interval" mapstructure:"prune_interval"` // writes between prunes
}

// ReconcileConfig points at the optional threshold override file.
type ReconcileConfig struct {
	ConfigPath string `yaml:"config_path" mapstructure:"config_path"`
	WindowDays int    `yaml:"window_days" mapstructure:"window_days"`
}

// SourcesConfig configures the live secondary sources.
type SourcesConfig struct {
	// Priority lists source names highest first; empty uses the
	// registry default.
	Priority        []string `yaml:"priority" mapstructure:"priority"`
	ExchangeBaseURL string   `yaml:"exchange_base_url" mapstructure:"exchange_base_url"`
	VendorBaseURL   string   `yaml:"vendor_base_url" mapstructure:"vendor_base_url"`
	VendorAPIKey    string   `yaml:"vendor_api_key" mapstructure:"vendor_api_key"`
}

// SyncConfig lists the remote drops mirrored into the data dir.
type SyncConfig struct {
	Jobs []collector.SyncJob `yaml:"jobs" mapstructure:"jobs"`
}

// AuditConfig configures the Postgres audit trail. An empty DSN
// disables auditing.
type AuditConfig struct {
	DSN string `yaml:"dsn" mapstructure:"dsn"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads config.yaml (optional) and the environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("MARKETFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("data_dir", "./data")
	v.SetDefault("cache.max_entries", 256)
	v.SetDefault("cache.max_rows", 512)
	v.SetDefault("cache.prune_interval", 32)
	v.SetDefault("reconcile.window_days", 5)
	v.SetDefault("sources.exchange_base_url", "https://api.jpx-data.example.co.jp")
	v.SetDefault("sources.vendor_base_url", "https://quotes.vendor.example.com")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
