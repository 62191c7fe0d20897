// Package config loads and validates the typed configuration recognized by
// the sending subsystem (spec.md §6). Loading itself is treated as an
// external collaborator by spec.md §1 — this package exists only to give
// every other package a typed, validated value to depend on instead of
// reading os.Getenv ad hoc.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every option spec.md §6 recognizes, plus the connection
// settings needed to reach Postgres/Redis/the chosen transport.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Sending   SendingConfig   `yaml:"sending"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Bounce    BounceConfig    `yaml:"bounce"`
	Transport TransportConfig `yaml:"transport"`
	HTTP      HTTPConfig      `yaml:"http"`

	// SubscriberModel selects the SubscriberRepository implementation via
	// the subscriberreg registry (spec.md §9 NUNTIUS_SUBSCRIBER_MODEL).
	SubscriberModel SubscriberModel `yaml:"subscriber_model"`
}

// HTTPConfig holds the listen address for cmd/server, which exposes the
// tracking (C9) and webhook (C10) HTTP surfaces.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// SubscriberModel names the repository.SubscriberRepository implementation
// to resolve through the subscriberreg registry (spec.md §9
// NUNTIUS_SUBSCRIBER_MODEL).
type SubscriberModel string

// DatabaseConfig holds the Postgres DSN.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig holds the Redis address backing the cross-process token
// bucket (C1). Empty Addr falls back to an in-process
// mutex-protected limiter, which is sufficient for a single-process
// deployment (spec.md §9 "Process supervision").
type RedisConfig struct {
	Addr string `yaml:"addr"`
}

// SendingConfig maps MAX_SENDING_RATE, MAX_CONCURRENT_SENDERS,
// MAX_MESSAGES_PER_CONNECTION, and POLLING_INTERVAL (spec.md §6).
type SendingConfig struct {
	MaxSendingRate           float64       `yaml:"max_sending_rate"`
	MaxConcurrentSenders     int           `yaml:"max_concurrent_senders"`
	MaxMessagesPerConnection int           `yaml:"max_messages_per_connection"`
	PollingInterval          time.Duration `yaml:"polling_interval"`
	BucketCapacity           int           `yaml:"bucket_capacity"`
}

// TrackingConfig maps PUBLIC_URL (spec.md §6).
type TrackingConfig struct {
	PublicURL string `yaml:"public_url"`
	Mount     string `yaml:"mount"`
}

// BounceConfig maps BOUNCE_PARAMS.{consecutive,duration,limit} (spec.md §6,
// §4.11).
type BounceConfig struct {
	Consecutive int `yaml:"consecutive"`
	DurationDays int `yaml:"duration_days"`
	Limit       int `yaml:"limit"`
}

// TransportConfig maps EMAIL_BACKEND (spec.md §6) plus the credentials each
// backend needs.
type TransportConfig struct {
	Backend string       `yaml:"backend"` // "smtp", "ses", or "http"
	SMTP    SMTPConfig   `yaml:"smtp"`
	SES     SESConfig    `yaml:"ses"`
	HTTP    HTTPAPIConfig `yaml:"http"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type SESConfig struct {
	Region string `yaml:"region"`
}

type HTTPAPIConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
}

func defaults() Config {
	return Config{
		Sending: SendingConfig{
			MaxSendingRate:           10,
			MaxConcurrentSenders:     4,
			MaxMessagesPerConnection: 100,
			PollingInterval:          2 * time.Second,
			BucketCapacity:           10,
		},
		Tracking: TrackingConfig{
			PublicURL: "http://localhost:8000",
			Mount:     "",
		},
		Bounce: BounceConfig{
			Consecutive:  1,
			DurationDays: 7,
			Limit:        3,
		},
		Transport: TransportConfig{
			Backend: "smtp",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		SubscriberModel: "postgres",
	}
}

// Load reads a YAML config file (if path is non-empty and exists) layered
// over defaults, then applies environment variable overrides. It also loads
// a local .env file if present, mirroring the teacher's LoadFromEnv: secrets
// live in .env locally and in real environment variables in production.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("MAX_SENDING_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Sending.MaxSendingRate = f
		}
	}
	if v := os.Getenv("MAX_CONCURRENT_SENDERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sending.MaxConcurrentSenders = n
		}
	}
	if v := os.Getenv("MAX_MESSAGES_PER_CONNECTION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sending.MaxMessagesPerConnection = n
		}
	}
	if v := os.Getenv("POLLING_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Sending.PollingInterval = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("PUBLIC_URL"); v != "" {
		cfg.Tracking.PublicURL = v
	}
	if v := os.Getenv("EMAIL_BACKEND"); v != "" {
		cfg.Transport.Backend = v
	}
	if v := os.Getenv("BOUNCE_PARAMS_CONSECUTIVE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Bounce.Consecutive = n
		}
	}
	if v := os.Getenv("BOUNCE_PARAMS_DURATION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Bounce.DurationDays = n
		}
	}
	if v := os.Getenv("BOUNCE_PARAMS_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Bounce.Limit = n
		}
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.Transport.SMTP.Host = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Transport.SMTP.Port = n
		}
	}
	if v := os.Getenv("SMTP_USERNAME"); v != "" {
		cfg.Transport.SMTP.Username = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.Transport.SMTP.Password = v
	}
	if v := os.Getenv("AWS_SES_REGION"); v != "" {
		cfg.Transport.SES.Region = v
	}
	if v := os.Getenv("TRANSACTIONAL_API_BASE_URL"); v != "" {
		cfg.Transport.HTTP.BaseURL = v
	}
	if v := os.Getenv("TRANSACTIONAL_API_KEY"); v != "" {
		cfg.Transport.HTTP.APIKey = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("NUNTIUS_SUBSCRIBER_MODEL"); v != "" {
		cfg.SubscriberModel = SubscriberModel(v)
	}
}

// Validate rejects a configuration the sending subsystem cannot run with.
func (c *Config) Validate() error {
	if c.Sending.MaxSendingRate <= 0 {
		return fmt.Errorf("config: sending.max_sending_rate must be > 0")
	}
	if c.Sending.MaxConcurrentSenders <= 0 {
		return fmt.Errorf("config: sending.max_concurrent_senders must be > 0")
	}
	if c.Sending.MaxMessagesPerConnection <= 0 {
		return fmt.Errorf("config: sending.max_messages_per_connection must be > 0")
	}
	if c.Sending.PollingInterval <= 0 {
		return fmt.Errorf("config: sending.polling_interval must be > 0")
	}
	switch c.Transport.Backend {
	case "smtp", "ses", "http":
	default:
		return fmt.Errorf("config: transport.backend %q must be one of smtp, ses, http", c.Transport.Backend)
	}
	return nil
}
