package session

import (
	"os"
	"time"
)

// Config defines runtime configuration for the session controller.
type Config struct {
	// RefreshLead is how long before the bearer's exp the background refresh fires.
	RefreshLead time.Duration `yaml:"refresh_lead"`

	// MinRefreshGap floors the delay between consecutive background refreshes,
	// so a server issuing already-expiring tokens cannot cause a tight loop.
	MinRefreshGap time.Duration `yaml:"refresh_min_gap"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		RefreshLead:   60 * time.Second,
		MinRefreshGap: 5 * time.Second,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Optional (durations must be valid Go duration strings):
//   - TASKLANE_REFRESH_LEAD
//   - TASKLANE_REFRESH_MIN_GAP
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	return ConfigFromEnv(DefaultConfig())
}

// ConfigFromEnv overlays environment variables on base.
func ConfigFromEnv(base Config) (Config, error) {
	cfg := base

	if v := os.Getenv("TASKLANE_REFRESH_LEAD"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.RefreshLead = d
	}

	if v := os.Getenv("TASKLANE_REFRESH_MIN_GAP"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.MinRefreshGap = d
	}

	return cfg, nil
}
