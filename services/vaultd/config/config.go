package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	if value.Value == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for vaultd.
type Config struct {
	ListenAddress   string        `yaml:"listen"`
	DataDir         string        `yaml:"data_dir"`
	GenesisPath     string        `yaml:"genesis"`
	JournalDSN      string        `yaml:"journal"`
	InboxPath       string        `yaml:"inbox"`
	ExportDir       string        `yaml:"export_dir"`
	ShutdownTimeout Duration      `yaml:"shutdown_timeout"`
	Auth            AuthConfig    `yaml:"auth"`
	RateLimits      RateLimits    `yaml:"rate_limits"`
	Logging         LoggingConfig `yaml:"logging"`
	DevMode         bool          `yaml:"dev_mode"`
}

// AuthConfig configures JWT bearer validation.
type AuthConfig struct {
	HMACSecret    string   `yaml:"hmac_secret"`
	HMACSecretEnv string   `yaml:"hmac_secret_env"`
	Issuer        string   `yaml:"issuer"`
	Audience      string   `yaml:"audience"`
	ClockSkew     Duration `yaml:"clock_skew"`
}

// RateLimit is a token bucket.
type RateLimit struct {
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// RateLimits groups limits per route class.
type RateLimits struct {
	User     RateLimit `yaml:"user"`
	Operator RateLimit `yaml:"operator"`
	Relayer  RateLimit `yaml:"relayer"`
	Public   RateLimit `yaml:"public"`
}

// LoggingConfig controls log level and optional file rotation.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Load reads configuration from the supplied path.
func Load(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	ApplyDefaults(&cfg)
	if err := resolveSecret(&cfg); err != nil {
		return cfg, err
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields.
func ApplyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7090"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./vault-data"
	}
	if cfg.GenesisPath == "" {
		cfg.GenesisPath = cfg.DataDir + "/vault.toml"
	}
	if cfg.JournalDSN == "" {
		cfg.JournalDSN = cfg.DataDir + "/journal.sqlite"
	}
	if cfg.InboxPath == "" {
		cfg.InboxPath = cfg.DataDir + "/inbox.bolt"
	}
	if cfg.ExportDir == "" {
		cfg.ExportDir = cfg.DataDir + "/exports"
	}
	if cfg.ShutdownTimeout.Duration == 0 {
		cfg.ShutdownTimeout.Duration = 10 * time.Second
	}
	if cfg.Auth.ClockSkew.Duration == 0 {
		cfg.Auth.ClockSkew.Duration = 2 * time.Minute
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "defipool"
	}
	if cfg.Auth.Audience == "" {
		cfg.Auth.Audience = "vaultd"
	}
	defaultLimit(&cfg.RateLimits.User, 5, 10)
	defaultLimit(&cfg.RateLimits.Operator, 2, 5)
	defaultLimit(&cfg.RateLimits.Relayer, 20, 50)
	defaultLimit(&cfg.RateLimits.Public, 20, 40)
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func defaultLimit(limit *RateLimit, rate float64, burst int) {
	if limit.RatePerSecond <= 0 {
		limit.RatePerSecond = rate
	}
	if limit.Burst <= 0 {
		limit.Burst = burst
	}
}

func resolveSecret(cfg *Config) error {
	if strings.TrimSpace(cfg.Auth.HMACSecret) != "" {
		return nil
	}
	env := strings.TrimSpace(cfg.Auth.HMACSecretEnv)
	if env == "" {
		return nil
	}
	value := strings.TrimSpace(os.Getenv(env))
	if value == "" {
		return fmt.Errorf("auth: environment variable %s is empty", env)
	}
	cfg.Auth.HMACSecret = value
	return nil
}

// Validate checks a defaulted configuration.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Auth.HMACSecret) == "" {
		return fmt.Errorf("auth: hmac_secret or hmac_secret_env must be configured")
	}
	if len(strings.TrimSpace(cfg.Auth.HMACSecret)) < 16 {
		return fmt.Errorf("auth: hmac secret must be at least 16 characters")
	}
	if cfg.ShutdownTimeout.Duration < 0 {
		return fmt.Errorf("shutdown_timeout must not be negative")
	}
	return nil
}

// IsPostgres reports whether the journal DSN names a postgres database.
func (c Config) IsPostgres() bool {
	dsn := strings.ToLower(strings.TrimSpace(c.JournalDSN))
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.HasPrefix(dsn, "host=")
}
