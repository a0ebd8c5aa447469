// Package config loads the review service configuration.
//
// Values come from built-in defaults, an optional YAML file and
// APREVIEW_-prefixed environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Storage backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

// Config holds the complete service configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Form          FormConfig          `koanf:"form"`
	Storage       StorageConfig       `koanf:"storage"`
	Webhook       WebhookConfig       `koanf:"webhook"`
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	// RateLimit is the sustained requests per second allowed per client IP.
	// Zero disables rate limiting.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
	BodyLimit string  `koanf:"body_limit"`
}

// FormConfig selects the questionnaire and session lifetime.
type FormConfig struct {
	// Definition is a YAML questionnaire path. Empty uses the built-in form.
	Definition string   `koanf:"definition"`
	Ceiling    int      `koanf:"ceiling"`
	SessionTTL Duration `koanf:"session_ttl"`
}

// StorageConfig selects where sessions and submissions live.
type StorageConfig struct {
	Backend    string `koanf:"backend"`
	SQLitePath string `koanf:"sqlite_path"`
	CSVPath    string `koanf:"csv_path"`
}

// WebhookConfig holds the downstream endpoint every submission is posted to.
type WebhookConfig struct {
	URL     Secret   `koanf:"url"`
	Timeout Duration `koanf:"timeout"`
}

// LoggingConfig holds the user-facing logging knobs.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ObservabilityConfig holds OpenTelemetry export settings.
type ObservabilityConfig struct {
	EnableTelemetry bool    `koanf:"enable_telemetry"`
	Endpoint        string  `koanf:"endpoint"`
	Protocol        string  `koanf:"protocol"`
	Insecure        bool    `koanf:"insecure"`
	TLSSkipVerify   bool    `koanf:"tls_skip_verify"`
	ServiceName     string  `koanf:"service_name"`
	SampleRate      float64 `koanf:"sample_rate"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// applyDefaults fills zero values. Booleans keep their zero value.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = 20
	}
	if cfg.Server.BodyLimit == "" {
		cfg.Server.BodyLimit = "1M"
	}

	if cfg.Form.Ceiling == 0 {
		cfg.Form.Ceiling = 28
	}
	if cfg.Form.SessionTTL == 0 {
		cfg.Form.SessionTTL = Duration(2 * time.Hour)
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = BackendMemory
	}
	if cfg.Storage.CSVPath == "" {
		cfg.Storage.CSVPath = "ap_peer_review_responses.csv"
	}
	if cfg.Storage.Backend == BackendSQLite && cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "apreview.db"
	}

	if cfg.Webhook.Timeout == 0 {
		cfg.Webhook.Timeout = Duration(30 * time.Second)
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "apreview"
	}
	if cfg.Observability.Endpoint == "" {
		cfg.Observability.Endpoint = "localhost:4317"
	}
	if cfg.Observability.Protocol == "" {
		cfg.Observability.Protocol = "grpc"
	}
	if cfg.Observability.SampleRate == 0 {
		cfg.Observability.SampleRate = 1.0
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("rate limit cannot be negative: %v", c.Server.RateLimit)
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
		return fmt.Errorf("rate burst must be at least 1 when rate limiting, got %d", c.Server.RateBurst)
	}

	if c.Form.Ceiling < 1 {
		return fmt.Errorf("form ceiling must be positive, got %d", c.Form.Ceiling)
	}
	if c.Form.SessionTTL < 0 {
		return errors.New("session ttl cannot be negative")
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			return errors.New("storage.sqlite_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q (want %q or %q)", c.Storage.Backend, BackendMemory, BackendSQLite)
	}
	if c.Storage.CSVPath == "" {
		return errors.New("storage.csv_path is required")
	}

	if err := validateWebhookURL(c.Webhook.URL); err != nil {
		return err
	}
	if c.Webhook.Timeout <= 0 {
		return errors.New("webhook timeout must be positive")
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}
	return nil
}

func validateWebhookURL(s Secret) error {
	if !s.IsSet() {
		return errors.New("webhook.url is required")
	}
	u, err := url.Parse(s.Value())
	if err != nil {
		// The parse error echoes the URL, which may carry a signature.
		return errors.New("webhook.url is not a valid URL")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("webhook.url must be an absolute http(s) URL")
	}
	return nil
}
