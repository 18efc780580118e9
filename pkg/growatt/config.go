package growatt

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	// DefaultBaseURL is the standard Growatt web endpoint.
	DefaultBaseURL = "https://server.growatt.com"
	// AlternateBaseURL is the vendor's alternate endpoint.
	AlternateBaseURL = "https://openapi.growatt.com"

	DefaultSessionDuration = 30 * time.Minute
	DefaultTimeout         = 30 * time.Second
)

// Config holds everything needed to build a Client. ConfigFromEnv fills it
// from the environment; the zero value is usable and means "defaults, no
// credentials".
type Config struct {
	Username string `env:"GROWATT_USERNAME"`
	Password string `env:"GROWATT_PASSWORD"`
	BaseURL  string `env:"GROWATT_BASE_URL" envDefault:"https://server.growatt.com"`
	// SessionDurationMinutes is how long a login is trusted before the
	// client logs in again on next use.
	SessionDurationMinutes int           `env:"GROWATT_SESSION_DURATION" envDefault:"30"`
	Timeout                time.Duration `env:"GROWATT_TIMEOUT" envDefault:"30s"`
}

// ConfigFromEnv loads a .env file from the working directory when there is
// one, then reads the GROWATT_* variables. Variables already set in the
// environment win over the .env file.
func ConfigFromEnv() (Config, error) {
	// the .env file is optional
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse growatt environment: %w", err)
	}
	return cfg, nil
}

// SessionDuration returns the configured duration, falling back to
// DefaultSessionDuration when it is not positive.
func (c Config) SessionDuration() time.Duration {
	if c.SessionDurationMinutes <= 0 {
		return DefaultSessionDuration
	}
	return time.Duration(c.SessionDurationMinutes) * time.Minute
}

// Options converts the config into client options. Unset fields are skipped
// so the client defaults apply.
func (c Config) Options() []Option {
	var opts []Option
	if c.BaseURL != "" {
		opts = append(opts, WithBaseURL(c.BaseURL))
	}
	opts = append(opts, WithSessionDuration(c.SessionDuration()))
	if c.Timeout > 0 {
		opts = append(opts, WithTimeout(c.Timeout))
	}
	if c.Username != "" && c.Password != "" {
		opts = append(opts, WithCredentials(c.Username, c.Password))
	}
	return opts
}
