// Package config loads the operator configuration for authd: defaults,
// then an optional YAML file, then a .env file, then process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrEthical07/authcore"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config is the complete authd configuration.
type Config struct {
	Environment string         `yaml:"environment"`
	HTTP        HTTPConfig     `yaml:"http"`
	Log         LogConfig      `yaml:"log"`
	JWT         JWTConfig      `yaml:"jwt"`
	Refresh     RefreshConfig  `yaml:"refresh"`
	Database    DatabaseConfig `yaml:"database"`
	Redis       RedisConfig    `yaml:"redis"`
	NATS        NATSConfig     `yaml:"nats"`
	Supabase    SupabaseConfig `yaml:"supabase"`
	Google      GoogleConfig   `yaml:"google"`
	Local       LocalConfig    `yaml:"local"`
	Audit       AuditConfig    `yaml:"audit"`
	Security    SecurityConfig `yaml:"security"`
	Profile     ProfileConfig  `yaml:"profile"`
	Metrics     MetricsConfig  `yaml:"metrics"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	TrustProxy      bool          `yaml:"trust_proxy"`
	StrictMe        bool          `yaml:"strict_me"`
	CookieDomain    string        `yaml:"cookie_domain"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is text or json.
	Format string `yaml:"format"`
}

type JWTConfig struct {
	Secret    string        `yaml:"secret"`
	Issuer    string        `yaml:"issuer"`
	Audience  string        `yaml:"audience"`
	AccessTTL time.Duration `yaml:"access_ttl"`
	Leeway    time.Duration `yaml:"leeway"`
}

type RefreshConfig struct {
	TTL              time.Duration `yaml:"ttl"`
	OperationTimeout time.Duration `yaml:"operation_timeout"`
}

type DatabaseConfig struct {
	URL             string        `yaml:"url"`
	Driver          string        `yaml:"driver"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

type RedisConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type SupabaseConfig struct {
	URL     string `yaml:"url"`
	AnonKey string `yaml:"anon_key"`
}

type GoogleConfig struct {
	ClientID string `yaml:"client_id"`
}

// LocalConfig seeds the in-process password directory used when no
// Supabase project is configured. Not allowed in production.
type LocalConfig struct {
	Users []LocalUser `yaml:"users"`
}

type LocalUser struct {
	ID    string `yaml:"id"`
	Email string `yaml:"email"`
	// PasswordHash is an argon2id PHC string, as printed by authd hash-password.
	PasswordHash string `yaml:"password_hash"`
}

type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	Postgres   bool `yaml:"postgres"`
	Stdout     bool `yaml:"stdout"`
}

type SecurityConfig struct {
	IPThrottle       bool          `yaml:"ip_throttle"`
	RefreshThrottle  bool          `yaml:"refresh_throttle"`
	MaxLoginAttempts int           `yaml:"max_login_attempts"`
	LoginCooldown    time.Duration `yaml:"login_cooldown"`
	MaxRefreshPerIP  int           `yaml:"max_refresh_per_ip"`
	RefreshWindow    time.Duration `yaml:"refresh_window"`
}

type ProfileConfig struct {
	RequireApproval bool `yaml:"require_approval"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns a development configuration. JWT secret, issuer, and
// audience still need to be provided.
func Default() *Config {
	core := authcore.DefaultConfig()
	return &Config{
		Environment: EnvDevelopment,
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: 15 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		JWT: JWTConfig{
			AccessTTL: core.JWT.AccessTTL,
			Leeway:    core.JWT.Leeway,
		},
		Refresh: RefreshConfig{
			TTL:              core.Refresh.TTL,
			OperationTimeout: core.Store.OperationTimeout,
		},
		Database: DatabaseConfig{
			Driver:       "pgx",
			MaxOpenConns: 20,
			MaxIdleConns: 5,
		},
		Redis: RedisConfig{Prefix: core.Session.RedisPrefix},
		Audit: AuditConfig{
			Enabled:    core.Audit.Enabled,
			BufferSize: core.Audit.BufferSize,
			Postgres:   true,
		},
		Security: SecurityConfig{
			IPThrottle:       core.Security.EnableIPThrottle,
			RefreshThrottle:  core.Security.EnableRefreshThrottle,
			MaxLoginAttempts: core.Security.MaxLoginAttempts,
			LoginCooldown:    core.Security.LoginCooldownDuration,
			MaxRefreshPerIP:  core.Security.MaxRefreshAttempts,
			RefreshWindow:    core.Security.RefreshCooldownDuration,
		},
		Profile: ProfileConfig{RequireApproval: core.Profile.RequireApproval},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// Load builds the configuration. path may be empty; envFile may be empty
// or name a missing file, both of which are skipped.
func Load(path, envFile string) (*Config, error) {
	return load(path, envFile, (*Config).Validate)
}

// LoadMaintenance is Load for commands that only touch the database, such
// as migrate and gc. It does not require JWT settings.
func LoadMaintenance(path, envFile string) (*Config, error) {
	return load(path, envFile, (*Config).validateDatabase)
}

func load(path, envFile string, validate func(*Config) error) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if envFile != "" {
		// godotenv never overrides variables already set in the process
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("ENVIRONMENT", &c.Environment)
	str("HTTP_ADDR", &c.HTTP.Addr)
	str("LOG_LEVEL", &c.Log.Level)
	str("AUTHCORE_JWT_SECRET", &c.JWT.Secret)
	str("AUTHCORE_JWT_ISSUER", &c.JWT.Issuer)
	str("AUTHCORE_JWT_AUDIENCE", &c.JWT.Audience)
	str("DATABASE_URL", &c.Database.URL)
	str("REDIS_URL", &c.Redis.URL)
	str("NATS_URL", &c.NATS.URL)
	str("SUPABASE_URL", &c.Supabase.URL)
	str("SUPABASE_ANON_KEY", &c.Supabase.AnonKey)
	str("GOOGLE_CLIENT_ID", &c.Google.ClientID)

	if v, ok := lookup("AUTHCORE_ACCESS_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("AUTHCORE_ACCESS_TTL: %w", err)
		}
		c.JWT.AccessTTL = d
	}
	if v, ok := lookup("AUTHCORE_REQUIRE_APPROVAL"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AUTHCORE_REQUIRE_APPROVAL: %w", err)
		}
		c.Profile.RequireApproval = b
	}
	return nil
}

// Production reports whether the environment is production.
func (c *Config) Production() bool {
	return strings.EqualFold(c.Environment, EnvProduction)
}

// Validate checks operator-level settings. Engine-level checks run again in
// authcore.Builder.Build.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Environment) {
	case EnvDevelopment, EnvProduction, "test":
	default:
		return fmt.Errorf("environment must be development, production, or test, got %q", c.Environment)
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required (AUTHCORE_JWT_SECRET)")
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if (c.Supabase.URL == "") != (c.Supabase.AnonKey == "") {
		return errors.New("supabase.url and supabase.anon_key must be set together")
	}
	if len(c.Local.Users) > 0 {
		if c.Production() {
			return errors.New("local.users is not allowed in production")
		}
		if c.Supabase.URL != "" {
			return errors.New("local.users and supabase are mutually exclusive")
		}
		for i, u := range c.Local.Users {
			if u.ID == "" || u.Email == "" || u.PasswordHash == "" {
				return fmt.Errorf("local.users[%d]: id, email, and password_hash are required", i)
			}
			if _, err := uuid.Parse(u.ID); err != nil {
				return fmt.Errorf("local.users[%d]: id must be a UUID: %w", i, err)
			}
		}
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required (DATABASE_URL)")
	}
	return nil
}

// Engine maps the operator config onto authcore.Config.
func (c *Config) Engine() authcore.Config {
	core := authcore.DefaultConfig()

	core.JWT.Secret = []byte(c.JWT.Secret)
	core.JWT.Issuer = c.JWT.Issuer
	core.JWT.Audience = c.JWT.Audience
	core.JWT.AccessTTL = c.JWT.AccessTTL
	core.JWT.Leeway = c.JWT.Leeway

	core.Refresh.TTL = c.Refresh.TTL
	core.Store.OperationTimeout = c.Refresh.OperationTimeout
	core.Session.RedisPrefix = c.Redis.Prefix
	core.Session.TTL = c.Refresh.TTL

	core.Audit.Enabled = c.Audit.Enabled
	core.Audit.BufferSize = c.Audit.BufferSize
	core.Metrics.Enabled = c.Metrics.Enabled

	core.Security.ProductionMode = c.Production()
	core.Security.EnableIPThrottle = c.Security.IPThrottle
	core.Security.EnableRefreshThrottle = c.Security.RefreshThrottle
	core.Security.MaxLoginAttempts = c.Security.MaxLoginAttempts
	core.Security.LoginCooldownDuration = c.Security.LoginCooldown
	core.Security.MaxRefreshAttempts = c.Security.MaxRefreshPerIP
	core.Security.RefreshCooldownDuration = c.Security.RefreshWindow

	core.Profile.RequireApproval = c.Profile.RequireApproval
	return core
}
