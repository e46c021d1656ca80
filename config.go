package authcore

import (
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/refresh"
)

// Config is the complete engine configuration. Start from [DefaultConfig]
// and override what differs.
type Config struct {
	JWT      JWTConfig
	Refresh  RefreshConfig
	Session  SessionConfig
	Store    StoreConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
	Security SecurityConfig
	Profile  ProfileConfig
}

// JWTConfig configures self-issued access tokens.
type JWTConfig struct {
	Secret    []byte
	AccessTTL time.Duration
	Issuer    string
	Audience  string
	Leeway    time.Duration
}

// RefreshConfig configures opaque refresh tokens.
type RefreshConfig struct {
	TTL        time.Duration
	ByteLength int
}

// SessionConfig configures Redis session tracking. It only applies when a
// Redis client is supplied to the Builder.
type SessionConfig struct {
	RedisPrefix string
	TTL         time.Duration
}

// StoreConfig bounds refresh store calls.
type StoreConfig struct {
	OperationTimeout time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// SecurityConfig holds deployment posture and throttling settings.
// Throttles require a Redis client.
type SecurityConfig struct {
	ProductionMode          bool
	EnableIPThrottle        bool
	EnableRefreshThrottle   bool
	MaxLoginAttempts        int
	LoginCooldownDuration   time.Duration
	MaxRefreshAttempts      int
	RefreshCooldownDuration time.Duration
}

// ProfileConfig controls the profile gate and external-token placeholders.
type ProfileConfig struct {
	RequireApproval     bool
	ExternalDefaultTier string
	ExternalDefaultRole string
}

// DefaultConfig returns development defaults. JWT.Secret, Issuer, and
// Audience must still be set.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL: jwt.DefaultAccessTTL,
		},
		Refresh: RefreshConfig{
			TTL:        7 * 24 * time.Hour,
			ByteLength: refresh.DefaultByteLength,
		},
		Session: SessionConfig{
			RedisPrefix: "ac",
			TTL:         7 * 24 * time.Hour,
		},
		Store: StoreConfig{
			OperationTimeout: 5 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Security: SecurityConfig{
			ProductionMode:          false,
			EnableIPThrottle:        false,
			EnableRefreshThrottle:   true,
			MaxLoginAttempts:        5,
			LoginCooldownDuration:   15 * time.Minute,
			MaxRefreshAttempts:      20,
			RefreshCooldownDuration: time.Minute,
		},
		Profile: ProfileConfig{
			RequireApproval:     true,
			ExternalDefaultTier: "free",
			ExternalDefaultRole: "user",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
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

// Validate checks the configuration and returns an error wrapping
// ErrConfiguration for the first problem found.
func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.Secret) == 0 {
		return configErr("JWT Secret is required")
	}
	if len(c.JWT.Secret) < jwt.MinSecretLength {
		return configErr("JWT Secret must be at least %d bytes", jwt.MinSecretLength)
	}
	if c.JWT.AccessTTL <= 0 {
		return configErr("JWT AccessTTL must be > 0")
	}
	if strings.TrimSpace(c.JWT.Issuer) == "" {
		return configErr("JWT Issuer is required")
	}
	if strings.TrimSpace(c.JWT.Audience) == "" {
		return configErr("JWT Audience is required")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > jwt.MaxLeeway {
		return configErr("JWT Leeway must be within [0, %s]", jwt.MaxLeeway)
	}

	// Refresh
	if c.Refresh.TTL <= 0 {
		return configErr("Refresh TTL must be > 0")
	}
	if c.Refresh.ByteLength < refresh.MinByteLength {
		return configErr("Refresh ByteLength must be >= %d", refresh.MinByteLength)
	}

	// Session
	if c.Session.TTL <= 0 {
		return configErr("Session TTL must be > 0")
	}
	if strings.TrimSpace(c.Session.RedisPrefix) == "" {
		return configErr("Session RedisPrefix is required")
	}

	// Store
	if c.Store.OperationTimeout <= 0 {
		return configErr("Store OperationTimeout must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return configErr("Audit BufferSize must be > 0 when enabled")
	}

	// Security
	if c.Security.MaxLoginAttempts <= 0 {
		return configErr("Security MaxLoginAttempts must be > 0")
	}
	if c.Security.LoginCooldownDuration <= 0 {
		return configErr("Security LoginCooldownDuration must be > 0")
	}
	if c.Security.EnableRefreshThrottle {
		if c.Security.MaxRefreshAttempts <= 0 {
			return configErr("Security MaxRefreshAttempts must be > 0 when refresh throttle is enabled")
		}
		if c.Security.RefreshCooldownDuration <= 0 {
			return configErr("Security RefreshCooldownDuration must be > 0 when refresh throttle is enabled")
		}
	}

	return nil
}

func configErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// LintWarning is a non-fatal configuration finding.
type LintWarning struct {
	Code    string
	Message string
}

// LintResult is the ordered list of warnings produced by [Config.Lint].
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// Lint reports settings that are valid but risky. It never fails.
func (c *Config) Lint() LintResult {
	var out LintResult
	add := func(code, msg string) {
		out = append(out, LintWarning{Code: code, Message: msg})
	}

	if c.JWT.Leeway > 30*time.Second {
		add("leeway_large", "JWT leeway above 30s widens the replay window of expired access tokens")
	}
	if c.JWT.AccessTTL > 24*time.Hour {
		add("access_ttl_long", "access tokens live longer than 24h and cannot be revoked before expiry")
	}
	if c.Refresh.TTL > 30*24*time.Hour {
		add("refresh_ttl_long", "refresh tokens live longer than 30 days")
	}
	if c.Session.TTL < c.Refresh.TTL {
		add("session_shorter_than_refresh", "sessions expire before their refresh tokens; strict checks will fail early")
	}
	if !c.Security.EnableIPThrottle && !c.Security.EnableRefreshThrottle {
		add("rate_limits_disabled", "both IP login throttle and refresh throttle are disabled")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", "audit events are disabled; reuse detections will only be logged")
	}
	if !c.Security.ProductionMode {
		add("not_production", "ProductionMode is off; refresh cookies are sent without the Secure flag")
	}
	if !c.Profile.RequireApproval {
		add("approval_not_required", "unapproved profiles may log in")
	}
	return out
}
