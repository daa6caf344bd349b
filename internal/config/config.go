// Package config loads gateway configuration from an optional YAML file
// with environment-variable overrides, matching the OCX backend's own
// internal/config layering (YAML decode, then getEnv/getEnvInt/
// getEnvBool overrides, then applyDefaults) — generalized here to the
// gateway's own settings instead of the OCX backend's many subsystems.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// JWTConfig controls the credential verifier (C3).
type JWTConfig struct {
	PublicKeyPath     string `yaml:"public_key_path"`
	Algorithm         string `yaml:"algorithm"`
	ClockDriftSeconds int64  `yaml:"clock_drift_seconds"`
}

// RateLimitConfig controls the token-bucket limiter (C2).
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	BurstSize         int `yaml:"burst_size"`
}

// ScoreConfig controls the score provider backend (C5).
type ScoreConfig struct {
	ProviderType string `yaml:"provider_type"` // direct | cached | remote
	APIURL       string `yaml:"api_url"`
	APIKey       string `yaml:"api_key"`
	CacheTTLSec  int    `yaml:"cache_ttl_seconds"`
	DatabaseDSN  string `yaml:"database_dsn"`
	RedisAddr    string `yaml:"redis_addr"`
	CacheBackend string `yaml:"cache_backend"` // memory | redis, only for "cached"
}

// ReplayConfig controls the replay suppressor (C4).
type ReplayConfig struct {
	PurgeIntervalSeconds int `yaml:"purge_interval_seconds"`
	MaxSize              int `yaml:"max_size"`
}

// TelemetryConfig controls the telemetry emitter (C8).
type TelemetryConfig struct {
	EmitEnabled bool `yaml:"emit_enabled"`
}

// Config is the gateway's complete configuration surface.
type Config struct {
	AppName     string `yaml:"app_name"`
	AppVersion  string `yaml:"app_version"`
	Environment string `yaml:"environment"` // development | staging | production
	LogLevel    string `yaml:"log_level"`

	Server    ServerConfig    `yaml:"server"`
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Score     ScoreConfig     `yaml:"score"`
	Replay    ReplayConfig    `yaml:"replay"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// Load reads an optional YAML file at path (a missing file is not an
// error — defaults and env vars still apply), applies environment
// overrides, fills in defaults, then validates. In "production" a
// missing required security value aborts startup rather than silently
// running insecurely.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if path != "" {
		if f, err := os.Open(path); err == nil {
			defer f.Close()
			if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.AppName = getEnv("APP_NAME", c.AppName)
	c.AppVersion = getEnv("APP_VERSION", c.AppVersion)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.Server.Host = getEnv("HOST", c.Server.Host)
	if v := getEnvInt("PORT", 0); v > 0 {
		c.Server.Port = v
	}

	c.JWT.PublicKeyPath = getEnv("JWT_PUBLIC_KEY_PATH", c.JWT.PublicKeyPath)
	c.JWT.Algorithm = getEnv("JWT_ALGORITHM", c.JWT.Algorithm)
	if v := getEnvInt("JWT_CLOCK_DRIFT_SECONDS", -1); v >= 0 {
		c.JWT.ClockDriftSeconds = int64(v)
	}

	if v := getEnvInt("RATE_LIMIT_REQUESTS_PER_MINUTE", 0); v > 0 {
		c.RateLimit.RequestsPerMinute = v
	}
	if v := getEnvInt("RATE_LIMIT_BURST_SIZE", 0); v > 0 {
		c.RateLimit.BurstSize = v
	}

	c.Score.ProviderType = getEnv("SCORE_PROVIDER_TYPE", c.Score.ProviderType)
	c.Score.APIURL = getEnv("SCORE_API_URL", c.Score.APIURL)
	c.Score.APIKey = getEnv("SCORE_API_KEY", c.Score.APIKey)
	if v := getEnvInt("SCORE_CACHE_TTL_SECONDS", 0); v > 0 {
		c.Score.CacheTTLSec = v
	}
	c.Score.DatabaseDSN = getEnv("SCORE_DATABASE_DSN", c.Score.DatabaseDSN)
	c.Score.RedisAddr = getEnv("SCORE_REDIS_ADDR", c.Score.RedisAddr)
	c.Score.CacheBackend = getEnv("SCORE_CACHE_BACKEND", c.Score.CacheBackend)

	if v := getEnvInt("REPLAY_CACHE_PURGE_INTERVAL_SECONDS", 0); v > 0 {
		c.Replay.PurgeIntervalSeconds = v
	}
	if v := getEnvInt("REPLAY_CACHE_MAX_SIZE", 0); v > 0 {
		c.Replay.MaxSize = v
	}

	if _, ok := os.LookupEnv("TELEMETRY_EMIT_ENABLED"); ok {
		c.Telemetry.EmitEnabled = getEnvBool("TELEMETRY_EMIT_ENABLED", c.Telemetry.EmitEnabled)
	}
}

func (c *Config) applyDefaults() {
	if c.AppName == "" {
		c.AppName = "trustgate"
	}
	if c.AppVersion == "" {
		c.AppVersion = "0.1.0"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.JWT.Algorithm == "" {
		c.JWT.Algorithm = "RS256"
	}
	if c.JWT.ClockDriftSeconds == 0 {
		c.JWT.ClockDriftSeconds = 30
	}
	if c.RateLimit.RequestsPerMinute == 0 {
		c.RateLimit.RequestsPerMinute = 100
	}
	if c.RateLimit.BurstSize == 0 {
		c.RateLimit.BurstSize = 120
	}
	if c.Score.ProviderType == "" {
		c.Score.ProviderType = "direct"
	}
	if c.Score.CacheTTLSec == 0 {
		c.Score.CacheTTLSec = 300
	}
	if c.Score.CacheBackend == "" {
		c.Score.CacheBackend = "memory"
	}
	if c.Replay.PurgeIntervalSeconds == 0 {
		c.Replay.PurgeIntervalSeconds = 300
	}
	if c.Replay.MaxSize == 0 {
		c.Replay.MaxSize = 1_000_000
	}
}

// validate enforces that production deployments cannot start with
// missing required security values.
func (c *Config) validate() error {
	if c.JWT.PublicKeyPath == "" {
		return fmt.Errorf("JWT_PUBLIC_KEY_PATH is required")
	}
	if !c.IsProduction() {
		return nil
	}
	if c.Score.ProviderType == "remote" && (c.Score.APIURL == "" || c.Score.APIKey == "") {
		return fmt.Errorf("production requires SCORE_API_URL and SCORE_API_KEY when SCORE_PROVIDER_TYPE=remote")
	}
	if c.Score.ProviderType == "direct" && c.Score.DatabaseDSN == "" {
		return fmt.Errorf("production requires SCORE_DATABASE_DSN when SCORE_PROVIDER_TYPE=direct")
	}
	return nil
}

// IsProduction reports whether the environment is "production".
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
