package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Resolver  ResolverConfig  `yaml:"resolver"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Cache     CacheConfig     `yaml:"cache"`
	Batch     BatchConfig     `yaml:"batch"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string `yaml:"host"` // default: "0.0.0.0"
	Port int    `yaml:"port"` // default: 8080
	Mode string `yaml:"mode"` // "debug", "release", "test"; default: "release"
}

// ResolverConfig controls how redirect chains are chased.
type ResolverConfig struct {
	// MaxSteps is the number of fetches allowed per resolution.
	MaxSteps int `yaml:"max_steps"` // default: 5

	// MaxStepsLimit caps the max_steps a client may request.
	MaxStepsLimit int `yaml:"max_steps_limit"` // default: 20

	// RequestTimeout bounds a single fetch, including the body read.
	RequestTimeout time.Duration `yaml:"request_timeout"` // default: 15s

	// CookieJarPath persists cookies across fetches and restarts.
	// Empty disables the cookie store.
	CookieJarPath string `yaml:"cookie_jar_path"` // default: "cookie.txt"

	// UserAgent overrides the desktop Chrome User-Agent.
	UserAgent string `yaml:"user_agent"`

	// Proxy is an optional upstream proxy URL.
	Proxy string `yaml:"proxy"`

	// MaxBodyBytes truncates response bodies beyond this size.
	MaxBodyBytes int64 `yaml:"max_body_bytes"` // default: 10MB

	// ChromeTLS dials HTTPS with a Chrome TLS fingerprint.
	ChromeTLS bool `yaml:"chrome_tls"` // default: true
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	Enabled bool     `yaml:"enabled"` // default: true
	APIKeys []string `yaml:"api_keys"`
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"` // default: 5
	Burst             int     `yaml:"burst"`               // default: 10
}

// CacheConfig controls the resolve response cache.
type CacheConfig struct {
	MaxEntries int           `yaml:"max_entries"` // default: 1000
	TTL        time.Duration `yaml:"ttl"`         // default: 1h
}

// BatchConfig controls batch resolution.
type BatchConfig struct {
	MaxURLs     int `yaml:"max_urls"`    // default: 100
	Concurrency int `yaml:"concurrency"` // default: 5
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // default: "info"
	Format string `yaml:"format"` // "json" or "text"; default: "json"
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080, Mode: "release"},
		Resolver: ResolverConfig{
			MaxSteps:       5,
			MaxStepsLimit:  20,
			RequestTimeout: 15 * time.Second,
			CookieJarPath:  "cookie.txt",
			MaxBodyBytes:   10 << 20,
			ChromeTLS:      true,
		},
		Auth:      AuthConfig{Enabled: true},
		RateLimit: RateLimitConfig{RequestsPerSecond: 5.0, Burst: 10},
		Cache:     CacheConfig{MaxEntries: 1000, TTL: time.Hour},
		Batch:     BatchConfig{MaxURLs: 100, Concurrency: 5},
		Log:       LogConfig{Level: "info", Format: "json"},
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// UNHIDE_CONFIG (if set), then environment variables.
func Load() (*Config, error) {
	cfg := Defaults()
	if path := os.Getenv("UNHIDE_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Host = envOr("UNHIDE_HOST", c.Server.Host)
	c.Server.Port = envIntOr("UNHIDE_PORT", c.Server.Port)
	c.Server.Mode = envOr("UNHIDE_MODE", c.Server.Mode)

	c.Resolver.MaxSteps = envIntOr("UNHIDE_MAX_STEPS", c.Resolver.MaxSteps)
	c.Resolver.MaxStepsLimit = envIntOr("UNHIDE_MAX_STEPS_LIMIT", c.Resolver.MaxStepsLimit)
	c.Resolver.RequestTimeout = envDurationOr("UNHIDE_REQUEST_TIMEOUT", c.Resolver.RequestTimeout)
	c.Resolver.CookieJarPath = envOr("UNHIDE_COOKIE_JAR", c.Resolver.CookieJarPath)
	c.Resolver.UserAgent = envOr("UNHIDE_USER_AGENT", c.Resolver.UserAgent)
	c.Resolver.Proxy = envOr("UNHIDE_PROXY", c.Resolver.Proxy)
	c.Resolver.MaxBodyBytes = int64(envIntOr("UNHIDE_MAX_BODY_BYTES", int(c.Resolver.MaxBodyBytes)))
	c.Resolver.ChromeTLS = envBoolOr("UNHIDE_CHROME_TLS", c.Resolver.ChromeTLS)

	c.Auth.Enabled = envBoolOr("UNHIDE_AUTH_ENABLED", c.Auth.Enabled)
	c.Auth.APIKeys = envSliceOr("UNHIDE_API_KEYS", c.Auth.APIKeys)

	c.RateLimit.RequestsPerSecond = envFloatOr("UNHIDE_RATE_RPS", c.RateLimit.RequestsPerSecond)
	c.RateLimit.Burst = envIntOr("UNHIDE_RATE_BURST", c.RateLimit.Burst)

	c.Cache.MaxEntries = envIntOr("UNHIDE_CACHE_MAX_ENTRIES", c.Cache.MaxEntries)
	c.Cache.TTL = envDurationOr("UNHIDE_CACHE_TTL", c.Cache.TTL)

	c.Batch.MaxURLs = envIntOr("UNHIDE_BATCH_MAX_URLS", c.Batch.MaxURLs)
	c.Batch.Concurrency = envIntOr("UNHIDE_BATCH_CONCURRENCY", c.Batch.Concurrency)

	c.Log.Level = envOr("UNHIDE_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOr("UNHIDE_LOG_FORMAT", c.Log.Format)
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
