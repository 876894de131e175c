package authapi

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls the REST client.
type Config struct {
	BaseURL      string        `yaml:"base_url"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	Platform     string        `yaml:"platform"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:      "http://127.0.0.1:8080",
		Timeout:      15 * time.Second,
		MaxBodyBytes: 1 << 20, // 1 MiB
		Platform:     "web",
	}
}

// LoadConfigFromEnv loads client config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	return ConfigFromEnv(DefaultConfig())
}

// ConfigFromEnv overlays environment variables on base. Unset or invalid
// values keep the base value.
func ConfigFromEnv(base Config) Config {
	cfg := Config{
		BaseURL:      envString("TASKLANE_API_URL", base.BaseURL),
		Timeout:      envDuration("TASKLANE_API_TIMEOUT", base.Timeout),
		MaxBodyBytes: envInt64("TASKLANE_API_MAX_BODY_BYTES", base.MaxBodyBytes),
		Platform:     envString("TASKLANE_API_PLATFORM", base.Platform),
	}
	return cfg.normalized()
}

func (c Config) normalized() Config {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if strings.TrimSpace(c.Platform) == "" {
		c.Platform = "web"
	}
	return c
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
