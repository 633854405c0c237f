// Package config loads ticketd's daemon configuration.
//
// Values are layered, later layers winning:
//
//  1. Defaults (Default)
//  2. A YAML file, if a path is given
//  3. TICKETD_* environment variables
//  4. Command-line flags, applied by the caller
//
// Example file:
//
//	http_addr: ":3000"
//	socket_addrs:
//	  - "127.0.0.1:3001"
//	  - "unix:/run/ticketd.sock"
//	log_level: info
//	log_format: json
//	shutdown_timeout: 5s
//	events:
//	  redis_url: "redis://localhost:6379/0"
//	  stream: tickets.events
//	  check_interval: 10s
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete daemon configuration.
type Config struct {
	// HTTPAddr is the HTTP API listen address.
	HTTPAddr string `yaml:"http_addr"`

	// SocketAddrs lists raw CBOR socket listeners: "host:port" for TCP,
	// "unix:/path" for Unix sockets. Empty disables the socket transport.
	SocketAddrs []string `yaml:"socket_addrs"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// LogFormat is json or text.
	LogFormat string `yaml:"log_format"`

	// ShutdownTimeout bounds graceful shutdown of the HTTP server.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	Events EventsConfig `yaml:"events"`
}

// EventsConfig configures lifecycle event publication.
type EventsConfig struct {
	// RedisURL enables publishing to a Redis stream when set.
	RedisURL string `yaml:"redis_url"`

	// Stream is the Redis stream key.
	Stream string `yaml:"stream"`

	// CheckInterval is how often the Redis connection is pinged.
	CheckInterval time.Duration `yaml:"check_interval"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTPAddr:        ":3000",
		LogLevel:        "info",
		LogFormat:       "json",
		ShutdownTimeout: 5 * time.Second,
		Events: EventsConfig{
			Stream:        "tickets.events",
			CheckInterval: 10 * time.Second,
		},
	}
}

// Load builds a configuration from defaults, the file at path (skipped if
// path is empty) and the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err := decode(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// decode rejects unknown keys so typos fail loudly.
func decode(data []byte, cfg *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.HTTPAddr = getenv("TICKETD_HTTP_ADDR", cfg.HTTPAddr)
	cfg.LogLevel = getenv("TICKETD_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getenv("TICKETD_LOG_FORMAT", cfg.LogFormat)
	cfg.Events.RedisURL = getenv("TICKETD_REDIS_URL", cfg.Events.RedisURL)
	cfg.Events.Stream = getenv("TICKETD_REDIS_STREAM", cfg.Events.Stream)
	if v := os.Getenv("TICKETD_SOCKET_ADDRS"); v != "" {
		cfg.SocketAddrs = SplitList(v)
	}
}

// SplitList splits a comma-separated list, dropping empty entries.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.HTTPAddr == "" {
		return errors.New("http_addr is required")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("log_format %q must be json or text", c.LogFormat)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive, got %s", c.ShutdownTimeout)
	}
	if c.Events.RedisURL != "" && c.Events.Stream == "" {
		return errors.New("events.stream is required when events.redis_url is set")
	}
	if c.Events.RedisURL != "" && c.Events.CheckInterval <= 0 {
		return fmt.Errorf("events.check_interval must be positive, got %s", c.Events.CheckInterval)
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level %q must be debug, info, warn or error", c.LogLevel)
	}
	return level, nil
}

// NewLogger builds the process logger described by c, writing to w.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := c.Level()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// getenv retrieves an environment variable with a default fallback value.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
