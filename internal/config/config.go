// Package config provides application configuration loaded from a YAML file
// with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// envPrefix is the prefix for environment overrides. Nesting uses a double
// underscore: GATHERLY_DATABASE__URL sets database.url.
const envPrefix = "GATHERLY_"

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Log           LogConfig           `koanf:"log"`
	Auth          AuthConfig          `koanf:"auth"`
	Notifications NotificationsConfig `koanf:"notifications"`
	Reminders     RemindersConfig     `koanf:"reminders"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig contains PostgreSQL configuration.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	Migrate         bool          `koanf:"migrate"`
	MigrationsPath  string        `koanf:"migrations_path"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// AuthConfig contains service-token authentication configuration.
type AuthConfig struct {
	SecretKey string        `koanf:"secret_key"`
	TokenTTL  time.Duration `koanf:"token_ttl"`
}

// NotificationsConfig contains delivery worker and sender configuration.
type NotificationsConfig struct {
	WorkerEnabled bool         `koanf:"worker_enabled"`
	Worker        WorkerConfig `koanf:"worker"`
	Email         EmailConfig  `koanf:"email"`
}

// WorkerConfig contains delivery worker tuning.
type WorkerConfig struct {
	PollInterval time.Duration `koanf:"poll_interval"`
	DrainLimit   int           `koanf:"drain_limit"`
	NumWorkers   int           `koanf:"num_workers"`
}

// EmailConfig contains SMTP sender configuration.
type EmailConfig struct {
	Enabled      bool    `koanf:"enabled"`
	SMTPHost     string  `koanf:"smtp_host"`
	SMTPPort     int     `koanf:"smtp_port"`
	SMTPUser     string  `koanf:"smtp_user"`
	SMTPPassword string  `koanf:"smtp_password"`
	FromAddress  string  `koanf:"from_address"`
	RateLimit    float64 `koanf:"rate_limit"`
}

// RemindersConfig contains event reminder scheduler configuration.
type RemindersConfig struct {
	Enabled     bool          `koanf:"enabled"`
	Interval    time.Duration `koanf:"interval"`
	Window      time.Duration `koanf:"window"`
	LinkBaseURL string        `koanf:"link_base_url"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
			MigrationsPath:  "migrations",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Notifications: NotificationsConfig{
			WorkerEnabled: true,
			Worker: WorkerConfig{
				PollInterval: 5 * time.Second,
				DrainLimit:   100,
				NumWorkers:   2,
			},
			Email: EmailConfig{
				SMTPPort:  587,
				RateLimit: 10,
			},
		},
		Reminders: RemindersConfig{
			Enabled:  true,
			Interval: 5 * time.Minute,
			Window:   24 * time.Hour,
		},
	}
}

// Load reads configuration from the optional YAML file at path, applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("config: database.url is required")
	}
	if c.Auth.SecretKey == "" {
		return errors.New("config: auth.secret_key is required")
	}
	if c.Reminders.Enabled && c.Reminders.LinkBaseURL == "" {
		return errors.New("config: reminders.link_base_url is required when the scheduler is enabled")
	}
	return nil
}
