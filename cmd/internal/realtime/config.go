package realtime

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls the hub connection.
type Config struct {
	// Enabled gates every network operation. Disabled managers log and return.
	Enabled bool   `yaml:"enabled"`
	HubURL  string `yaml:"url"`

	// ReconnectBase scales the backoff schedule (0, 1x, 5x, 15x).
	ReconnectBase time.Duration `yaml:"reconnect_base"`
	// MaxReconnectAttempts is the number of consecutive failed reconnect attempts after
	// which the manager disables itself for the rest of the process.
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts"`

	DialTimeout   time.Duration `yaml:"dial_timeout"`
	InvokeTimeout time.Duration `yaml:"invoke_timeout"`

	// HeaderAuth sends the bearer token as an Authorization header. When false
	// it is sent as the access_token query parameter.
	HeaderAuth bool `yaml:"header_auth"`

	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `yaml:"heartbeat_timeout"`
}

// DefaultConfig returns the built-in defaults. The hub is off unless enabled.
func DefaultConfig() Config {
	return Config{
		Enabled:              false,
		HubURL:               "ws://127.0.0.1:8080/hubs/notifications",
		ReconnectBase:        2 * time.Second,
		MaxReconnectAttempts: 4,
		DialTimeout:          10 * time.Second,
		InvokeTimeout:        10 * time.Second,
		HeaderAuth:           true,
		HeartbeatInterval:    heartbeatInterval,
		HeartbeatTimeout:     heartbeatTimeout,
	}
}

// LoadConfigFromEnv loads hub configuration from environment variables.
func LoadConfigFromEnv() (Config, error) {
	return ConfigFromEnv(DefaultConfig())
}

// ConfigFromEnv overlays environment variables on base.
//
// Recognized:
//   - TASKLANE_HUB_ENABLED
//   - TASKLANE_HUB_URL
//   - TASKLANE_HUB_RECONNECT_BASE
//   - TASKLANE_HUB_MAX_RECONNECT_ATTEMPTS
//   - TASKLANE_HUB_DIAL_TIMEOUT
//   - TASKLANE_HUB_INVOKE_TIMEOUT
//   - TASKLANE_HUB_HEADER_AUTH
//   - TASKLANE_HUB_HEARTBEAT_INTERVAL
//   - TASKLANE_HUB_HEARTBEAT_TIMEOUT
//
// Returns ErrConfig if the resulting configuration is invalid.
func ConfigFromEnv(base Config) (Config, error) {
	cfg := Config{
		Enabled:              envBoolHub("TASKLANE_HUB_ENABLED", base.Enabled),
		HubURL:               envStringHub("TASKLANE_HUB_URL", base.HubURL),
		ReconnectBase:        envDurationHub("TASKLANE_HUB_RECONNECT_BASE", base.ReconnectBase),
		MaxReconnectAttempts: envIntHub("TASKLANE_HUB_MAX_RECONNECT_ATTEMPTS", base.MaxReconnectAttempts),
		DialTimeout:          envDurationHub("TASKLANE_HUB_DIAL_TIMEOUT", base.DialTimeout),
		InvokeTimeout:        envDurationHub("TASKLANE_HUB_INVOKE_TIMEOUT", base.InvokeTimeout),
		HeaderAuth:           envBoolHub("TASKLANE_HUB_HEADER_AUTH", base.HeaderAuth),
		HeartbeatInterval:    envDurationHub("TASKLANE_HUB_HEARTBEAT_INTERVAL", base.HeartbeatInterval),
		HeartbeatTimeout:     envDurationHub("TASKLANE_HUB_HEARTBEAT_TIMEOUT", base.HeartbeatTimeout),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the fields a Manager relies on. A disabled config is always valid.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	u, err := url.Parse(strings.TrimSpace(c.HubURL))
	if err != nil || u.Host == "" {
		return ErrConfig
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return ErrConfig
	}
	if c.ReconnectBase < 0 || c.MaxReconnectAttempts <= 0 {
		return ErrConfig
	}
	return nil
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ReconnectBase < 0 {
		c.ReconnectBase = d.ReconnectBase
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = d.MaxReconnectAttempts
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.InvokeTimeout <= 0 {
		c.InvokeTimeout = d.InvokeTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = d.HeartbeatTimeout
	}
	return c
}

func envStringHub(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envBoolHub(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envIntHub(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationHub(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return def
	}
	return d
}
