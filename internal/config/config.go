package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config represents the global ~/.freightdesk/config.toml.
type Config struct {
	DefaultInstance string        `toml:"default_instance"`
	HTTP            HTTPConfig    `toml:"http"`
	Store           StoreConfig   `toml:"store"`
	Feed            FeedConfig    `toml:"feed"`
	Session         SessionConfig `toml:"session"`
	Log             LogConfig     `toml:"log"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr           string   `toml:"addr"`
	AllowedOrigins []string `toml:"allowed_origins"`
	// TrustUserHeader accepts X-Freight-User from a fronting gateway.
	TrustUserHeader bool `toml:"trust_user_header"`
}

// StoreConfig selects the relational backend. An empty DatabaseURL with the
// sqlite driver means the instance's own database file.
type StoreConfig struct {
	Driver      string `toml:"driver"`
	DatabaseURL string `toml:"database_url"`
}

// FeedConfig selects how message changes reach subscribers.
type FeedConfig struct {
	Driver   string `toml:"driver"`
	RedisURL string `toml:"redis_url"`
	Channel  string `toml:"channel"`
}

// SessionConfig configures the identity cookie.
type SessionConfig struct {
	Secret     string `toml:"secret"`
	CookieName string `toml:"cookie_name"`
}

// LogConfig sets the daemon log level (debug, info, warn, error).
type LogConfig struct {
	Level string `toml:"level"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:           "127.0.0.1:8787",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Store:   StoreConfig{Driver: "sqlite"},
		Feed:    FeedConfig{Driver: "memory", Channel: "message_changes"},
		Session: SessionConfig{CookieName: "freightdesk"},
		Log:     LogConfig{Level: "info"},
	}
}

// Load reads config from the given path on top of the defaults. Returns nil
// config and error if file missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// ApplyEnv overrides fields from FREIGHT_* environment variables. Variables
// in the given dotenv files are loaded first without overriding the real
// environment; missing files are ignored.
func (c *Config) ApplyEnv(dotenvFiles ...string) {
	for _, f := range dotenvFiles {
		_ = godotenv.Load(f)
	}

	setString(&c.DefaultInstance, "FREIGHT_INSTANCE")
	setString(&c.HTTP.Addr, "FREIGHT_HTTP_ADDR")
	if v := os.Getenv("FREIGHT_ALLOWED_ORIGINS"); v != "" {
		c.HTTP.AllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.HTTP.AllowedOrigins = append(c.HTTP.AllowedOrigins, o)
			}
		}
	}
	if v := os.Getenv("FREIGHT_TRUST_USER_HEADER"); v != "" {
		c.HTTP.TrustUserHeader = v == "true" || v == "1"
	}
	setString(&c.Store.Driver, "FREIGHT_STORE_DRIVER")
	setString(&c.Store.DatabaseURL, "DATABASE_URL")
	setString(&c.Store.DatabaseURL, "FREIGHT_DATABASE_URL")
	setString(&c.Feed.Driver, "FREIGHT_FEED_DRIVER")
	setString(&c.Feed.RedisURL, "REDIS_URL")
	setString(&c.Feed.RedisURL, "FREIGHT_REDIS_URL")
	setString(&c.Feed.Channel, "FREIGHT_FEED_CHANNEL")
	setString(&c.Session.Secret, "FREIGHT_SESSION_SECRET")
	setString(&c.Session.CookieName, "FREIGHT_COOKIE_NAME")
	setString(&c.Log.Level, "FREIGHT_LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks driver combinations.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("store.database_url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	switch c.Feed.Driver {
	case "memory":
	case "postgres":
		if c.Store.Driver != "postgres" {
			return fmt.Errorf("feed.driver postgres requires store.driver postgres")
		}
	case "redis":
		if c.Feed.RedisURL == "" {
			return fmt.Errorf("feed.redis_url is required for the redis driver")
		}
	default:
		return fmt.Errorf("unknown feed.driver %q", c.Feed.Driver)
	}
	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}
	return nil
}
