package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	authapi "tasklane/cmd/internal/auth/api"
	"tasklane/cmd/internal/auth/session"
	"tasklane/cmd/internal/realtime"
)

// Config contains all runtime configuration. Sources, lowest precedence first:
// built-in defaults, the YAML file named by TASKLANE_CONFIG, environment variables.
type Config struct {
	HTTPAddr  string `yaml:"http_addr"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes    int           `yaml:"max_header_bytes"`

	// DatabaseURL enables the Postgres project-access verifier. Empty means the
	// auth API answers access checks.
	DatabaseURL string `yaml:"database_url"`
	DBMaxConns  int32  `yaml:"db_max_conns"`
	DBMinConns  int32  `yaml:"db_min_conns"`
	DBSchema    string `yaml:"db_schema"`

	// RedisURL enables the durable credential tier. Empty means durable
	// credentials live in process memory only.
	RedisURL string `yaml:"redis_url"`
	// Profile namespaces durable keys so several sessions can share one Redis.
	Profile string `yaml:"profile"`

	// If true, /readyz returns 503 unless the durable tier is Redis and reachable.
	ReadinessRequireRedis bool `yaml:"readiness_require_redis"`

	// If true, TASKLANE_TOKEN_FINGERPRINT_KEY must be set (>= 32 bytes).
	RequireFingerprintKey bool `yaml:"require_fingerprint_key"`

	API     authapi.Config  `yaml:"api"`
	Session session.Config  `yaml:"session"`
	Hub     realtime.Config `yaml:"hub"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:  "127.0.0.1:8090",
		LogLevel:  "info",
		LogFormat: "pretty",

		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,

		DBMaxConns: 4,
		DBMinConns: 0,
		DBSchema:   "tasklane",

		Profile: "default",

		API:     authapi.DefaultConfig(),
		Session: session.DefaultConfig(),
		Hub:     realtime.DefaultConfig(),
	}
}

// LoadConfig loads defaults, then the YAML file at TASKLANE_CONFIG (if set),
// then environment overrides.
func LoadConfig() (Config, error) {
	return LoadConfigFile(EnvString("TASKLANE_CONFIG", ""))
}

// LoadConfigFile is LoadConfig with an explicit file path. An empty path skips the file.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg = Config{
		HTTPAddr:  EnvString("TASKLANE_HTTP_ADDR", cfg.HTTPAddr),
		LogLevel:  EnvString("TASKLANE_LOG_LEVEL", cfg.LogLevel),
		LogFormat: EnvString("TASKLANE_LOG_FORMAT", cfg.LogFormat),

		ReadHeaderTimeout: EnvDuration("TASKLANE_HTTP_READ_HEADER_TIMEOUT", cfg.ReadHeaderTimeout),
		ReadTimeout:       EnvDuration("TASKLANE_HTTP_READ_TIMEOUT", cfg.ReadTimeout),
		WriteTimeout:      EnvDuration("TASKLANE_HTTP_WRITE_TIMEOUT", cfg.WriteTimeout),
		IdleTimeout:       EnvDuration("TASKLANE_HTTP_IDLE_TIMEOUT", cfg.IdleTimeout),
		MaxHeaderBytes:    EnvInt("TASKLANE_HTTP_MAX_HEADER_BYTES", cfg.MaxHeaderBytes),

		DatabaseURL: EnvString("TASKLANE_DATABASE_URL", cfg.DatabaseURL),
		DBMaxConns:  int32(EnvInt("TASKLANE_DB_MAX_CONNS", int(cfg.DBMaxConns))),
		DBMinConns:  cfg.DBMinConns,
		DBSchema:    EnvString("TASKLANE_DB_SCHEMA", cfg.DBSchema),

		RedisURL: EnvString("TASKLANE_REDIS_URL", cfg.RedisURL),
		Profile:  EnvString("TASKLANE_PROFILE", cfg.Profile),

		ReadinessRequireRedis: EnvBool("TASKLANE_READINESS_REQUIRE_REDIS", cfg.ReadinessRequireRedis),
		RequireFingerprintKey: EnvBool("TASKLANE_REQUIRE_FINGERPRINT_KEY", cfg.RequireFingerprintKey),

		API: authapi.ConfigFromEnv(cfg.API),
	}

	var err error
	if cfg.Session, err = session.ConfigFromEnv(cfg.Session); err != nil {
		return Config{}, fmt.Errorf("session config: %w", err)
	}
	if cfg.Hub, err = realtime.ConfigFromEnv(cfg.Hub); err != nil {
		return Config{}, fmt.Errorf("hub config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints not covered by the package configs.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTPAddr) == "" {
		errs = append(errs, errors.New("http_addr is required"))
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "pretty":
	default:
		errs = append(errs, fmt.Errorf("log_format must be json or pretty, got %q", c.LogFormat))
	}
	if strings.TrimSpace(c.Profile) == "" {
		errs = append(errs, errors.New("profile is required"))
	}
	if strings.TrimSpace(c.API.BaseURL) == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	}
	return errors.Join(errs...)
}

// EnvString reads a string env var with a default.
func EnvString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

// EnvBool reads a bool env var with a default.
func EnvBool(key string, def bool) bool {
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

// EnvInt reads a positive int env var with a default.
func EnvInt(key string, def int) int {
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

// EnvDuration reads a positive duration env var with a default.
func EnvDuration(key string, def time.Duration) time.Duration {
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
