// Package config loads service settings from a YAML file, the environment
// and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/bryan-buckman/buildlog/internal/events"
	"github.com/bryan-buckman/buildlog/internal/janitor"
	"github.com/bryan-buckman/buildlog/internal/mail"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Mail      mail.Config     `yaml:"mail"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	AMQP      events.Config   `yaml:"amqp"`
	Janitor   janitor.Config  `yaml:"janitor"`
	LogLevel  string          `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	PublicURL       string        `yaml:"public_url"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// MaxBody is a size such as "10KiB" or "16KB".
	MaxBody      string `yaml:"max_body"`
	MaxBodyBytes int64  `yaml:"-"`
	// TrustProxy makes the client IP come from X-Forwarded-For / X-Real-IP.
	TrustProxy bool `yaml:"trust_proxy"`
}

type DatabaseConfig struct {
	Driver     string `yaml:"driver"` // "sqlite" or "postgres"
	DSN        string `yaml:"dsn"`
	BcryptCost int    `yaml:"bcrypt_cost"`
}

type RateLimitConfig struct {
	// Backend is "database" or "memory". Empty picks database for shared
	// stores and memory for SQLite.
	Backend string `yaml:"backend"`
}

type RealtimeConfig struct {
	Throttle time.Duration `yaml:"throttle"`
}

// Load reads path, expanding ${VAR} references from the environment. A
// missing file yields the defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	default:
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv lets the common deployment knobs be set without a file.
func (c *Config) applyEnv() {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.Driver = "postgres"
		c.Database.DSN = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Addr = ":" + v
	}
	if v := os.Getenv("RESEND_API_KEY"); v != "" && c.Mail.APIKey == "" {
		c.Mail.Provider = "resend"
		c.Mail.APIKey = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		c.AMQP.URL = v
	}
}

func (c *Config) setDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.PublicURL == "" {
		c.Server.PublicURL = "http://localhost:8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.Server.MaxBody == "" {
		c.Server.MaxBody = "10KiB"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "buildlog.db"
	}
	if c.Mail.Provider == "" {
		c.Mail.Provider = "log"
	}
	if c.Mail.From == "" {
		c.Mail.From = "buildlog <noreply@buildlog.local>"
	}
	c.Mail.SiteURL = c.Server.PublicURL
	if c.Realtime.Throttle == 0 {
		c.Realtime.Throttle = 3 * time.Second
	}
	if c.AMQP.URL != "" {
		if c.AMQP.Exchange == "" {
			c.AMQP.Exchange = "buildlog"
		}
		if c.AMQP.RoutingKey == "" {
			c.AMQP.RoutingKey = "post.created"
		}
	}
	if c.Janitor.Interval == 0 {
		c.Janitor.Interval = janitor.DefaultInterval
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
}

func (c *Config) validate() error {
	n, err := humanize.ParseBytes(c.Server.MaxBody)
	if err != nil || n == 0 {
		return fmt.Errorf("invalid server max_body %q", c.Server.MaxBody)
	}
	c.Server.MaxBodyBytes = int64(n)
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required for %s", c.Database.Driver)
	}
	switch c.RateLimit.Backend {
	case "", "database", "memory":
	default:
		return fmt.Errorf("unknown ratelimit backend %q", c.RateLimit.Backend)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}
