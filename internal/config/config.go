// Package config loads tokenguardd settings from the environment, with an
// optional .env file, into a tokenguard.Config plus service settings.
package config

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/MrEthical07/tokenguard"
)

const keySize = 32

type HTTPConfig struct {
	Addr                 string
	UniformRefreshErrors bool
	TrustProxy           bool
}

type StoreConfig struct {
	// Backend is "redis", "postgres" or "memory".
	Backend        string
	RedisAddr      string
	RedisPassword  string
	DatabaseURL    string
	DatabaseDriver string
}

// BootstrapUser is created at startup when Email is set and the account
// does not exist yet.
type BootstrapUser struct {
	Email    string
	Password string
	Role     string
}

// Config is everything cmd/tokenguardd needs.
type Config struct {
	Engine       tokenguard.Config
	HTTP         HTTPConfig
	Store        StoreConfig
	Bootstrap    BootstrapUser
	Production   bool
	AuditLogPath string
}

// Load reads .env when present and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv and validates the engine part.
// Every malformed or missing variable is reported, joined into one error
// that wraps tokenguard.ErrConfiguration.
func FromEnv(getenv func(string) string) (*Config, error) {
	env := envReader{get: getenv}
	cfg := &Config{Engine: tokenguard.DefaultConfig()}

	appEnv := env.first("APP_ENV", "NODE_ENV")
	cfg.Production = strings.EqualFold(appEnv, "production")
	cfg.Engine.Security.ProductionMode = cfg.Production

	secret := env.required("JWT_SECRET")
	cfg.Engine.JWT.PrivateKey = []byte(secret)
	cfg.Engine.JWT.AccessTTL = env.duration("JWT_EXPIRES_IN", "15m")
	cfg.Engine.JWT.Issuer = env.str("JWT_ISSUER", "")
	cfg.Engine.JWT.Audience = env.str("JWT_AUDIENCE", "")
	cfg.Engine.Refresh.TTL = env.duration("REFRESH_TOKEN_EXPIRES_IN", "7d")

	if rawKey := env.required("ENCRYPTION_KEY"); rawKey != "" {
		key, err := ParseEncryptionKey(rawKey)
		if err != nil {
			env.errs = append(env.errs, err)
		}
		cfg.Engine.Encryption.Key = key
	}

	cfg.Engine.CSRF.Enabled = env.boolean("CSRF_ENABLED", true)

	if max := env.integer("REFRESH_MAX_ATTEMPTS", 0); max > 0 {
		cfg.Engine.Security.EnableRefreshThrottle = true
		cfg.Engine.Security.MaxRefreshAttempts = max
	}
	cfg.Engine.Security.RefreshWindow = env.duration("REFRESH_WINDOW", "1m")
	if max := env.integer("LOGIN_MAX_ATTEMPTS", 0); max > 0 {
		cfg.Engine.Security.EnableLoginThrottle = true
		cfg.Engine.Security.MaxLoginAttempts = max
	}
	cfg.Engine.Security.LoginWindow = env.duration("LOGIN_WINDOW", "15m")

	cfg.AuditLogPath = env.str("AUDIT_LOG_PATH", "")
	cfg.Engine.Audit.Enabled = cfg.AuditLogPath != ""
	cfg.Engine.Metrics.Enabled = env.boolean("METRICS_ENABLED", true)
	cfg.Engine.Metrics.EnableLatencyHistograms = cfg.Engine.Metrics.Enabled

	cfg.HTTP = HTTPConfig{
		Addr:                 env.str("HTTP_ADDR", ":8080"),
		UniformRefreshErrors: env.boolean("UNIFORM_REFRESH_ERRORS", true),
		TrustProxy:           env.boolean("TRUST_PROXY", false),
	}
	cfg.Store = StoreConfig{
		Backend:        strings.ToLower(env.str("STORE_BACKEND", "redis")),
		RedisAddr:      env.str("REDIS_ADDR", "localhost:6379"),
		RedisPassword:  env.str("REDIS_PASSWORD", ""),
		DatabaseURL:    env.str("DATABASE_URL", ""),
		DatabaseDriver: env.str("DATABASE_DRIVER", "pgx"),
	}

	cfg.Bootstrap = BootstrapUser{
		Email:    env.str("BOOTSTRAP_EMAIL", ""),
		Password: env.str("BOOTSTRAP_PASSWORD", ""),
		Role:     env.str("BOOTSTRAP_ROLE", "admin"),
	}

	if len(env.errs) > 0 {
		return nil, errors.Join(env.errs...)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case "redis", "memory":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return configErr("DATABASE_URL is required for the postgres backend")
		}
	default:
		return configErr("unknown STORE_BACKEND %q", c.Store.Backend)
	}
	if c.Bootstrap.Email != "" && c.Bootstrap.Password == "" {
		return configErr("BOOTSTRAP_PASSWORD is required with BOOTSTRAP_EMAIL")
	}
	if (c.Engine.Security.EnableRefreshThrottle || c.Engine.Security.EnableLoginThrottle) && c.Store.Backend == "memory" {
		return configErr("throttles need redis; unset REFRESH_MAX_ATTEMPTS and LOGIN_MAX_ATTEMPTS for the memory backend")
	}
	return c.Engine.Validate()
}

// ParseEncryptionKey accepts 32 raw bytes, 64 hex characters or standard
// base64 of 32 bytes.
func ParseEncryptionKey(s string) ([]byte, error) {
	if len(s) == 2*keySize {
		if b, err := hex.DecodeString(s); err == nil {
			return b, nil
		}
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == keySize {
		return b, nil
	}
	if len(s) == keySize {
		return []byte(s), nil
	}
	return nil, configErr("ENCRYPTION_KEY must be 32 bytes, 64 hex chars or base64 of 32 bytes")
}

func configErr(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{tokenguard.ErrConfiguration}, args...)...)
}

type envReader struct {
	get  func(string) string
	errs []error
}

func (e *envReader) str(key, def string) string {
	if v := strings.TrimSpace(e.get(key)); v != "" {
		return v
	}
	return def
}

func (e *envReader) required(key string) string {
	v := e.str(key, "")
	if v == "" {
		e.errs = append(e.errs, configErr("%s is required", key))
	}
	return v
}

func (e *envReader) first(keys ...string) string {
	for _, k := range keys {
		if v := e.str(k, ""); v != "" {
			return v
		}
	}
	return ""
}

func (e *envReader) duration(key, def string) time.Duration {
	v := e.str(key, def)
	parsed, err := tokenguard.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %w", key, err))
		return 0
	}
	return parsed
}

func (e *envReader) boolean(key string, def bool) bool {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, configErr("%s: invalid boolean %q", key, v))
		return def
	}
	return b
}

func (e *envReader) integer(key string, def int) int {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, configErr("%s: invalid integer %q", key, v))
		return def
	}
	return n
}
