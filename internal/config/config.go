// Package config loads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Prefix is the environment variable prefix, e.g. GYMHUB_ADDR.
const Prefix = "GYMHUB"

// Config holds every tunable of the server. Field names map to GYMHUB_<SPLIT_WORDS>.
type Config struct {
	Addr          string `envconfig:"ADDR" default:":8080"`
	DBPath        string `envconfig:"DB_PATH" default:"gymhub.db"`
	AudioDir      string `envconfig:"AUDIO_DIR" default:"data/audio"`
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL" default:""`
	Env           string `envconfig:"ENV" default:"development"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile  string `envconfig:"LOG_FILE" default:"logs/gymhub.log"`

	BroadcastRetention time.Duration `envconfig:"BROADCAST_RETENTION" default:"10m"`
	SweepInterval      time.Duration `envconfig:"SWEEP_INTERVAL" default:"30s"`

	AdminEmail    string `envconfig:"ADMIN_EMAIL" default:"admin@gymhub.local"`
	AdminPassword string `envconfig:"ADMIN_PASSWORD" default:""`

	CSRFKey string `envconfig:"CSRF_KEY" default:""`

	RateLimitPerSecond float64 `envconfig:"RATE_LIMIT_PER_SECOND" default:"10"`
	RateLimitBurst     int     `envconfig:"RATE_LIMIT_BURST" default:"30"`
	// MessagesPerMinute throttles chat posts per account; 0 disables it.
	MessagesPerMinute int `envconfig:"MESSAGES_PER_MINUTE" default:"30"`

	SlowRequestMs int `envconfig:"SLOW_REQUEST_MS" default:"500"`
	SlowQueryMs   int `envconfig:"SLOW_QUERY_MS" default:"50"`
}

// Load reads an optional .env file then the process environment.
// A missing .env file is not an error.
// POST: Returned config has passed Validate
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && len(envFiles) > 0 {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// IsProduction reports whether the server runs with production defaults.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// MessageLimitEnabled reports whether chat posts are throttled per account.
func (c Config) MessageLimitEnabled() bool {
	return c.MessagesPerMinute > 0
}

// Validate checks cross-field constraints envconfig cannot express.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("GYMHUB_ADDR cannot be empty")
	}
	if c.DBPath == "" {
		return errors.New("GYMHUB_DB_PATH cannot be empty")
	}
	if c.SweepInterval <= 0 {
		return errors.New("GYMHUB_SWEEP_INTERVAL must be positive")
	}
	if c.BroadcastRetention < 0 {
		return errors.New("GYMHUB_BROADCAST_RETENTION cannot be negative")
	}
	if c.RateLimitPerSecond <= 0 || c.RateLimitBurst <= 0 {
		return errors.New("rate limit must be positive")
	}
	if c.MessagesPerMinute < 0 {
		return errors.New("GYMHUB_MESSAGES_PER_MINUTE cannot be negative")
	}
	if c.IsProduction() && len(c.CSRFKey) != 32 {
		return errors.New("GYMHUB_CSRF_KEY must be 32 bytes in production")
	}
	return nil
}
