// Package config loads NamazPro24 runtime configuration.
//
// Sources, lowest precedence first: built-in defaults, an optional YAML file,
// a .env file in the working directory, and NAMAZPRO_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "github.com/ahmed11551/namazpro24/internal/errors"
)

// EnvPrefix is the prefix for environment overrides, e.g. NAMAZPRO_SYNC_INTERVAL=45s.
const EnvPrefix = "NAMAZPRO"

// Config is the full configuration of the CLI, the agent and the stub server.
type Config struct {
	DataDir string       `mapstructure:"data_dir"`
	Remote  RemoteConfig `mapstructure:"remote"`
	Sync    SyncConfig   `mapstructure:"sync"`
	Agent   AgentConfig  `mapstructure:"agent"`
	Server  ServerConfig `mapstructure:"server"`
	Log     LogConfig    `mapstructure:"log"`
	OTel    OTelConfig   `mapstructure:"otel"`
}

// RemoteConfig locates the remote API events are delivered to.
type RemoteConfig struct {
	BaseURL string `mapstructure:"base_url"`
	// HealthURL is probed for reachability. Empty means no connectivity signal.
	HealthURL string `mapstructure:"health_url"`
}

// SyncConfig tunes the sync engine, its triggers and the connectivity probe.
type SyncConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout"`
	ProbeInterval   time.Duration `mapstructure:"probe_interval"`
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`
	Retention       time.Duration `mapstructure:"retention"`
}

// AgentConfig configures the local desktop agent.
type AgentConfig struct {
	Listen string `mapstructure:"listen"`
}

// ServerConfig configures the stub remote API server.
type ServerConfig struct {
	Listen        string `mapstructure:"listen"`
	SnowflakeNode int64  `mapstructure:"snowflake_node"`
}

// LogConfig selects the log level and optional rotating log file.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// OTelConfig configures OTLP trace export.
type OTelConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	Headers        string `mapstructure:"headers"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
}

// Enabled reports whether an OTLP endpoint is configured.
func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "./data")

	v.SetDefault("remote.base_url", "http://localhost:3000")
	v.SetDefault("remote.health_url", "")

	v.SetDefault("sync.interval", 30*time.Second)
	v.SetDefault("sync.dispatch_timeout", 10*time.Second)
	v.SetDefault("sync.probe_interval", 15*time.Second)
	v.SetDefault("sync.probe_timeout", 5*time.Second)
	v.SetDefault("sync.max_retries", 5)
	v.SetDefault("sync.retention", 30*24*time.Hour)

	v.SetDefault("agent.listen", "127.0.0.1:8090")

	v.SetDefault("server.listen", ":3000")
	v.SetDefault("server.snowflake_node", 1)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", false)

	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.headers", "")
	v.SetDefault("otel.service_name", "namazpro")
	v.SetDefault("otel.service_version", "dev")
}

// newViper builds a viper instance bound to defaults, env and the config file.
// An empty path searches for namazpro.yaml in the working directory and
// tolerates its absence; an explicit path must exist.
func newViper(path string) (*viper.Viper, error) {
	_ = godotenv.Load(".env")

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrConfig, fmt.Sprintf("read config %s", path), err)
		}
		return v, nil
	}

	v.SetConfigName("namazpro")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, apperrors.Wrap(apperrors.ErrConfig, "read config", err)
		}
	}
	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrConfig, "decode config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads the configuration once.
func Load(path string) (*Config, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

// Validate rejects values the sync core cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.DataDir == "":
		return apperrors.New(apperrors.ErrConfig, "data_dir is required")
	case c.Remote.BaseURL == "":
		return apperrors.New(apperrors.ErrConfig, "remote.base_url is required")
	case c.Sync.Interval <= 0:
		return apperrors.New(apperrors.ErrConfig, "sync.interval must be positive")
	case c.Sync.DispatchTimeout <= 0:
		return apperrors.New(apperrors.ErrConfig, "sync.dispatch_timeout must be positive")
	case c.Sync.ProbeInterval <= 0:
		return apperrors.New(apperrors.ErrConfig, "sync.probe_interval must be positive")
	case c.Sync.ProbeTimeout <= 0:
		return apperrors.New(apperrors.ErrConfig, "sync.probe_timeout must be positive")
	case c.Sync.MaxRetries < 1:
		return apperrors.New(apperrors.ErrConfig, "sync.max_retries must be at least 1")
	case c.Sync.Retention <= 0:
		return apperrors.New(apperrors.ErrConfig, "sync.retention must be positive")
	}
	return nil
}

// Watch loads the configuration and, when it came from a file, re-decodes it
// on every change and hands the result to onChange. Invalid edits are
// reported through onChange's error argument and leave the caller's config alone.
func Watch(path string, onChange func(cfg *Config, ev fsnotify.Event, err error)) (*Config, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	if v.ConfigFileUsed() == "" {
		return cfg, nil
	}

	v.OnConfigChange(func(ev fsnotify.Event) {
		if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
			return
		}
		next, err := decode(v)
		onChange(next, ev, err)
	})
	v.WatchConfig()
	return cfg, nil
}
