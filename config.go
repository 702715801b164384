package tokenguard

import (
	"fmt"
	"time"

	"github.com/MrEthical07/tokenguard/encryption"
)

// Config defines a public type used by tokenguard APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	JWT        JWTConfig
	Refresh    RefreshConfig
	Encryption EncryptionConfig
	CSRF       CSRFConfig
	Password   PasswordConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
	Security   SecurityConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls access token signing and validation.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte // HMAC secret for hs256
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig controls refresh envelope lifetime and store key layout.
type RefreshConfig struct {
	TTL         time.Duration
	RedisPrefix string
}

// EncryptionConfig holds the AES-256 key shared by refresh envelopes and CSRF cookies.
type EncryptionConfig struct {
	Key []byte
}

// CSRFConfig configures the double-submit guard.
type CSRFConfig struct {
	Enabled    bool
	TTL        time.Duration
	CookieName string
	HeaderName string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds the argon2id parameters used by Login and HashPassword.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// AuditConfig controls the buffered audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds production hardening switches and throttles.
// ProductionMode marks cookies Secure.
type SecurityConfig struct {
	ProductionMode        bool
	EnableRefreshThrottle bool
	MaxRefreshAttempts    int
	RefreshWindow         time.Duration
	EnableLoginThrottle   bool
	MaxLoginAttempts      int
	LoginWindow           time.Duration
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration. JWT.PrivateKey and
// Encryption.Key have no default and must be set.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			SigningMethod: "hs256",
		},
		Refresh: RefreshConfig{
			TTL:         7 * 24 * time.Hour,
			RedisPrefix: "tg",
		},
		CSRF: CSRFConfig{
			Enabled:    true,
			TTL:        time.Hour,
			CookieName: "csrf_token",
			HeaderName: "x-csrf-token",
		},
		Password: PasswordConfig{
			Memory:      65536,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Security: SecurityConfig{
			ProductionMode:        false,
			EnableRefreshThrottle: false,
			MaxRefreshAttempts:    20,
			RefreshWindow:         time.Minute,
			EnableLoginThrottle:   false,
			MaxLoginAttempts:      5,
			LoginWindow:           15 * time.Minute,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.Encryption.Key = cloneBytes(cfg.Encryption.Key)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func configError(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConfiguration}, args...)...)
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration problem as an error wrapping
// ErrConfiguration.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return configError("JWT AccessTTL must be > 0")
	}
	switch c.JWT.SigningMethod {
	case "hs256", "ed25519":
	default:
		return configError("unsupported JWT signing method %q", c.JWT.SigningMethod)
	}
	if len(c.JWT.PrivateKey) == 0 {
		return configError("JWT secret is required")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return configError("JWT Leeway must be within [0, 2m]")
	}

	// Refresh
	if c.Refresh.TTL <= 0 {
		return configError("Refresh TTL must be > 0")
	}
	if c.Refresh.RedisPrefix == "" {
		return configError("Refresh RedisPrefix must not be empty")
	}

	// Encryption
	if len(c.Encryption.Key) != encryption.KeySize {
		return configError("Encryption Key must be %d bytes, got %d", encryption.KeySize, len(c.Encryption.Key))
	}

	// CSRF
	if c.CSRF.Enabled {
		if c.CSRF.TTL <= 0 {
			return configError("CSRF TTL must be > 0")
		}
		if c.CSRF.CookieName == "" || c.CSRF.HeaderName == "" {
			return configError("CSRF CookieName and HeaderName are required")
		}
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return configError("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return configError("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return configError("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return configError("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return configError("Password KeyLength must be >= 16")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return configError("Audit BufferSize must be > 0 when enabled")
	}

	// Security
	if c.Security.EnableRefreshThrottle {
		if c.Security.MaxRefreshAttempts <= 0 || c.Security.RefreshWindow <= 0 {
			return configError("refresh throttle requires MaxRefreshAttempts and RefreshWindow > 0")
		}
	}
	if c.Security.EnableLoginThrottle {
		if c.Security.MaxLoginAttempts <= 0 || c.Security.LoginWindow <= 0 {
			return configError("login throttle requires MaxLoginAttempts and LoginWindow > 0")
		}
	}
	if c.Security.ProductionMode && c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) < 32 {
		return configError("hs256 secret must be at least 32 bytes in production")
	}

	return nil
}
