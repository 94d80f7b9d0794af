package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"quiz-rewards-api/internal/features"
	"quiz-rewards-api/internal/records"
	"quiz-rewards-api/internal/validation"
)

// Record backends.
const (
	BackendCSV    = "csv"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Security  SecurityConfig  `json:"security"`
	RateLimit RateLimitConfig `json:"rate_limit"`
	Session   SessionConfig   `json:"session"`
	Catalog   CatalogConfig   `json:"catalog"`
	Records   RecordsConfig   `json:"records"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Tracing   TracingConfig   `json:"tracing"`
	Log       LogConfig       `json:"log"`
	// Feature flag overrides, e.g. {"shuffle_choices": false}
	Features map[string]bool `json:"features"`
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port     string `json:"port"`
	Host     string `json:"host"`
	CertFile string `json:"cert_file"`
	KeyFile  string `json:"key_file"`
}

// TLSEnabled reports whether both certificate files are set.
func (s ServerConfig) TLSEnabled() bool {
	return s.CertFile != "" && s.KeyFile != ""
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	// Max request body size in bytes (default: 1MB)
	MaxRequestBodySize int64 `json:"max_request_body_size"`
	// Allowed CORS origins (comma-separated)
	AllowedOrigins string `json:"allowed_origins"`
	// Take the client address from X-Forwarded-For/X-Real-IP. Only safe
	// behind a proxy that overwrites them.
	TrustProxyHeaders bool `json:"trust_proxy_headers"`
}

// Origins splits AllowedOrigins into a list.
func (s SecurityConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(s.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool `json:"enabled"`
	Rate    int  `json:"rate"`
	Window  int  `json:"window"` // in seconds
}

// SessionConfig holds the token signing key. An empty key means one is
// generated at startup.
type SessionConfig struct {
	SecretKey string `json:"-"`
}

// CatalogConfig points at the quiz, code and wheel definitions.
type CatalogConfig struct {
	Path string `json:"path"`
}

// RecordsConfig selects where user records go.
type RecordsConfig struct {
	Backend       string `json:"backend"`
	Path          string `json:"path"`
	Workers       int    `json:"workers"`
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"-"`
	RedisDB       int    `json:"redis_db"`
	RedisKey      string `json:"redis_key"`
}

// SchedulerConfig controls the background jobs.
type SchedulerConfig struct {
	Enabled  bool   `json:"enabled"`
	Interval string `json:"interval"`
}

// IntervalDuration parses Interval.
func (s SchedulerConfig) IntervalDuration() (time.Duration, error) {
	return time.ParseDuration(s.Interval)
}

// TracingConfig holds Jaeger settings.
type TracingConfig struct {
	Enabled     bool   `json:"enabled"`
	Endpoint    string `json:"endpoint"`
	Environment string `json:"environment"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `json:"level"`
}

// LoadConfig loads configuration from environment variables and/or config file.
// Environment variables take precedence over config file values.
func LoadConfig(configFile string) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnv("SERVER_PORT", "8080"),
			Host:     getEnv("SERVER_HOST", ""),
			CertFile: getEnv("SERVER_CERT_FILE", ""),
			KeyFile:  getEnv("SERVER_KEY_FILE", ""),
		},
		Security: SecurityConfig{
			MaxRequestBodySize: getEnvInt64("MAX_REQUEST_BODY_SIZE", 1<<20),
			AllowedOrigins:     getEnv("ALLOWED_ORIGINS", "*"),
			TrustProxyHeaders:  getEnvBool("TRUST_PROXY_HEADERS", false),
		},
		RateLimit: RateLimitConfig{
			Enabled: getEnvBool("RATE_LIMIT_ENABLED", true),
			Rate:    getEnvInt("RATE_LIMIT_RATE", 100),
			Window:  getEnvInt("RATE_LIMIT_WINDOW", 60),
		},
		Session: SessionConfig{
			SecretKey: getEnv("SECRET_KEY", ""),
		},
		Catalog: CatalogConfig{
			Path: getEnv("CATALOG_PATH", "quiz.toml"),
		},
		Records: RecordsConfig{
			Backend:       getEnv("RECORDS_BACKEND", BackendCSV),
			Path:          getEnv("RECORDS_PATH", "users.csv"),
			Workers:       getEnvInt("RECORDS_WORKERS", records.DefaultWorkers),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
			RedisKey:      getEnv("REDIS_KEY", records.DefaultRedisKey),
		},
		Scheduler: SchedulerConfig{
			Enabled:  getEnvBool("SCHEDULER_ENABLED", true),
			Interval: getEnv("SCHEDULER_INTERVAL", "1m"),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvBool("TRACING_ENABLED", false),
			Endpoint:    getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
			Environment: getEnv("ENVIRONMENT", "development"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	// Load from config file if provided
	if configFile != "" {
		if err := loadFromFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Environment variables win over the file
	overrideFromEnv(cfg)

	if list := os.Getenv("FEATURES"); list != "" {
		overrides, err := features.ParseList(list)
		if err != nil {
			return nil, fmt.Errorf("invalid FEATURES: %w", err)
		}
		if cfg.Features == nil {
			cfg.Features = make(map[string]bool)
		}
		for name, enabled := range overrides {
			cfg.Features[name] = enabled
		}
	}

	return cfg, nil
}

// loadFromFile loads configuration from a JSON file.
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, cfg)
}

// overrideFromEnv re-applies every set environment variable on top of
// the file values.
func overrideFromEnv(cfg *Config) {
	setString(&cfg.Server.Port, "SERVER_PORT")
	setString(&cfg.Server.Host, "SERVER_HOST")
	setString(&cfg.Server.CertFile, "SERVER_CERT_FILE")
	setString(&cfg.Server.KeyFile, "SERVER_KEY_FILE")

	if maxBodySize := os.Getenv("MAX_REQUEST_BODY_SIZE"); maxBodySize != "" {
		if size, err := strconv.ParseInt(maxBodySize, 10, 64); err == nil {
			cfg.Security.MaxRequestBodySize = size
		}
	}
	setString(&cfg.Security.AllowedOrigins, "ALLOWED_ORIGINS")
	setBool(&cfg.Security.TrustProxyHeaders, "TRUST_PROXY_HEADERS")

	setBool(&cfg.RateLimit.Enabled, "RATE_LIMIT_ENABLED")
	setInt(&cfg.RateLimit.Rate, "RATE_LIMIT_RATE")
	setInt(&cfg.RateLimit.Window, "RATE_LIMIT_WINDOW")

	setString(&cfg.Session.SecretKey, "SECRET_KEY")
	setString(&cfg.Catalog.Path, "CATALOG_PATH")

	setString(&cfg.Records.Backend, "RECORDS_BACKEND")
	setString(&cfg.Records.Path, "RECORDS_PATH")
	setInt(&cfg.Records.Workers, "RECORDS_WORKERS")
	setString(&cfg.Records.RedisAddr, "REDIS_ADDR")
	setString(&cfg.Records.RedisPassword, "REDIS_PASSWORD")
	setInt(&cfg.Records.RedisDB, "REDIS_DB")
	setString(&cfg.Records.RedisKey, "REDIS_KEY")

	setBool(&cfg.Scheduler.Enabled, "SCHEDULER_ENABLED")
	setString(&cfg.Scheduler.Interval, "SCHEDULER_INTERVAL")

	setBool(&cfg.Tracing.Enabled, "TRACING_ENABLED")
	setString(&cfg.Tracing.Endpoint, "JAEGER_ENDPOINT")
	setString(&cfg.Tracing.Environment, "ENVIRONMENT")

	setString(&cfg.Log.Level, "LOG_LEVEL")
}

func setString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func setBool(dst *bool, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = parseBool(value)
	}
}

func setInt(dst *int, key string) {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			*dst = i
		}
	}
}

func parseBool(value string) bool {
	return strings.ToLower(value) == "true" || value == "1"
}

// getEnv gets an environment variable or returns the default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable or returns the default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return parseBool(value)
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable or returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvInt64 gets an int64 environment variable or returns the default value.
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if (c.Server.CertFile == "") != (c.Server.KeyFile == "") {
		return fmt.Errorf("cert file and key file must be set together")
	}
	if c.Session.SecretKey != "" {
		if err := validation.ValidateSecretKey(c.Session.SecretKey); err != nil {
			return err
		}
	}
	if c.Catalog.Path == "" {
		return fmt.Errorf("catalog path is required")
	}

	switch c.Records.Backend {
	case BackendCSV, BackendSQLite:
		if c.Records.Path == "" {
			return fmt.Errorf("records path is required for %s backend", c.Records.Backend)
		}
	case BackendRedis:
		if c.Records.RedisAddr == "" {
			return fmt.Errorf("redis address is required for redis backend")
		}
	default:
		return fmt.Errorf("unknown records backend %q", c.Records.Backend)
	}
	if c.Records.Workers <= 0 {
		return fmt.Errorf("records workers must be positive")
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Rate <= 0 {
			return fmt.Errorf("rate limit rate must be positive")
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate limit window must be positive")
		}
	}

	if err := features.Defaults().Apply(c.Features); err != nil {
		return err
	}

	if c.Scheduler.Enabled {
		d, err := c.Scheduler.IntervalDuration()
		if err != nil {
			return fmt.Errorf("invalid scheduler interval: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("scheduler interval must be positive")
		}
	}
	return nil
}
