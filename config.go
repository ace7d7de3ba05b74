package goSession

import (
	"errors"
	"strings"
	"time"
)

// Config is the complete engine configuration. Start from [DefaultConfig]
// and override fields; [Builder.Build] validates and deep-copies it.
type Config struct {
	JWT       JWTConfig
	Password  PasswordConfig
	Refresh   RefreshConfig
	Session   SessionConfig
	RateLimit RateLimitConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures the token codec. Both secrets must be at least 32
// bytes and must differ.
type JWTConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds argon2id parameters. Memory is in KiB.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig configures refresh-secret hashing. HashKey keys the HMAC
// that turns refresh secrets into stored token hashes.
type RefreshConfig struct {
	HashKey []byte
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures the refresh-record store.
type SessionConfig struct {
	RedisPrefix string
	// Retention keeps inactive records past expiry so replays of recently
	// rotated tokens are still recognized as reuse.
	Retention time.Duration
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

type RateLimitConfig struct {
	EnableLoginThrottle     bool
	EnableIPThrottle        bool
	MaxLoginAttempts        int
	LoginCooldownDuration   time.Duration
	EnableRefreshThrottle   bool
	MaxRefreshAttempts      int
	RefreshCooldownDuration time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig tunes the audit dispatcher. Enabled only matters when no sink
// is passed to [Builder.WithAuditSink]. DropIfFull never applies to reuse,
// revocation or session-version events.
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
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the baseline configuration. Secrets and the refresh
// hash key are left empty and must be supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:    15 * time.Minute,
			RefreshTTL:   30 * 24 * time.Hour,
			Issuer:       "goSession",
			Leeway:       30 * time.Second,
			MaxFutureIAT: 10 * time.Minute,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 1,
			SaltLength:  16,
			KeyLength:   32,
		},
		Session: SessionConfig{
			RedisPrefix: "gs",
			Retention:   time.Hour,
		},
		RateLimit: RateLimitConfig{
			EnableLoginThrottle:     true,
			EnableIPThrottle:        false,
			MaxLoginAttempts:        5,
			LoginCooldownDuration:   15 * time.Minute,
			EnableRefreshThrottle:   false,
			MaxRefreshAttempts:      20,
			RefreshCooldownDuration: time.Minute,
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
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
	out.Refresh.HashKey = cloneBytes(cfg.Refresh.HashKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration problem found, or nil.
func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.AccessSecret) < 32 {
		return errors.New("JWT AccessSecret must be >= 32 bytes")
	}
	if len(c.JWT.RefreshSecret) < 32 {
		return errors.New("JWT RefreshSecret must be >= 32 bytes")
	}
	if string(c.JWT.AccessSecret) == string(c.JWT.RefreshSecret) {
		return errors.New("JWT AccessSecret and RefreshSecret must differ")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be > AccessTTL")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}
	if c.JWT.MaxFutureIAT < 0 || c.JWT.MaxFutureIAT > 24*time.Hour {
		return errors.New("JWT MaxFutureIAT must be between 0 and 24h")
	}
	if c.JWT.Issuer != "" && strings.TrimSpace(c.JWT.Issuer) == "" {
		return errors.New("JWT Issuer must not be blank")
	}
	if c.JWT.Audience != "" && strings.TrimSpace(c.JWT.Audience) == "" {
		return errors.New("JWT Audience must not be blank")
	}

	// Password
	if c.Password.Memory < 64*1024 {
		return errors.New("Password Memory must be >= 65536 KiB")
	}
	if c.Password.Time < 3 {
		return errors.New("Password Time must be >= 3")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Refresh
	if len(c.Refresh.HashKey) < 32 {
		return errors.New("Refresh HashKey must be >= 32 bytes")
	}

	// Session
	if strings.TrimSpace(c.Session.RedisPrefix) == "" {
		return errors.New("Session RedisPrefix must not be empty")
	}
	if strings.ContainsAny(c.Session.RedisPrefix, " \t\r\n{}") {
		return errors.New("Session RedisPrefix contains invalid characters")
	}
	if c.Session.Retention < 0 {
		return errors.New("Session Retention must be >= 0")
	}

	// Rate limits
	if c.RateLimit.EnableLoginThrottle {
		if c.RateLimit.MaxLoginAttempts <= 0 {
			return errors.New("RateLimit MaxLoginAttempts must be > 0")
		}
		if c.RateLimit.LoginCooldownDuration <= 0 {
			return errors.New("RateLimit LoginCooldownDuration must be > 0")
		}
	}
	if c.RateLimit.EnableRefreshThrottle {
		if c.RateLimit.MaxRefreshAttempts <= 0 {
			return errors.New("RateLimit MaxRefreshAttempts must be > 0")
		}
		if c.RateLimit.RefreshCooldownDuration <= 0 {
			return errors.New("RateLimit RefreshCooldownDuration must be > 0")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
