package authcore

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/session"
	"github.com/MrEthical07/authcore/store"
)

// Builder assembles an [Engine]. Builder instances are configured during
// initialization and used exactly once.
type Builder struct {
	config Config
	store  store.Store
	redis  redis.UniversalClient

	profiles      ProfileProvider
	identity      IdentityProvider
	introspectors []jwt.Introspector

	auditSink AuditSink
	logger    *slog.Logger
	clock     func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the refresh token store. Required.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithRedis enables session tracking, strict validation, and throttling.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithProfiles sets the profile source used by Login, Refresh, and Me.
func (b *Builder) WithProfiles(p ProfileProvider) *Builder {
	b.profiles = p
	return b
}

// WithIdentityProvider sets the password sign-in backend used by Login.
func (b *Builder) WithIdentityProvider(p IdentityProvider) *Builder {
	b.identity = p
	return b
}

// WithExternalVerifier appends a fallback access-token introspector. Fallbacks
// are consulted in the order added, after self-issued verification fails.
func (b *Builder) WithExternalVerifier(in jwt.Introspector) *Builder {
	if in != nil {
		b.introspectors = append(b.introspectors, in)
	}
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides the engine clock. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.store == nil {
		return nil, fmt.Errorf("%w: refresh store required", ErrConfiguration)
	}

	clock := b.clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	jm, err := jwt.NewManager(jwt.Config{
		Secret:    cloneBytes(cfg.JWT.Secret),
		AccessTTL: cfg.JWT.AccessTTL,
		Issuer:    cfg.JWT.Issuer,
		Audience:  cfg.JWT.Audience,
		Leeway:    cfg.JWT.Leeway,
		Now:       clock,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	// -------- VERIFIER CHAIN --------
	chain := jwt.Chain{jwt.SelfIssued{Manager: jm}}
	for _, in := range b.introspectors {
		chain = append(chain, jwt.External{
			Introspector: in,
			DefaultTier:  cfg.Profile.ExternalDefaultTier,
			DefaultRole:  cfg.Profile.ExternalDefaultRole,
		})
	}

	engine := &Engine{
		config:     cloneConfig(cfg),
		store:      b.store,
		profiles:   b.profiles,
		identity:   b.identity,
		jwtManager: jm,
		verifier:   chain,
		logger:     logger,
		clock:      clock,
	}

	// -------- REDIS-BACKED COMPONENTS --------
	var sessions flows.SessionStore
	if b.redis != nil {
		engine.sessionStore = session.NewStore(b.redis, cfg.Session.RedisPrefix)
		sessions = engine.sessionStore
		engine.rateLimiter = rate.New(b.redis, rate.Config{
			EnableIPThrottle:        cfg.Security.EnableIPThrottle,
			EnableRefreshThrottle:   cfg.Security.EnableRefreshThrottle,
			MaxLoginAttempts:        cfg.Security.MaxLoginAttempts,
			LoginCooldownDuration:   cfg.Security.LoginCooldownDuration,
			MaxRefreshAttempts:      cfg.Security.MaxRefreshAttempts,
			RefreshCooldownDuration: cfg.Security.RefreshCooldownDuration,
		})
	}

	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	// -------- FLOWS --------
	common := flows.Common{
		Store:            b.store,
		Sessions:         sessions,
		Now:              clock,
		OperationTimeout: cfg.Store.OperationTimeout,
		Warn: func(msg string, args ...any) {
			logger.Warn(msg, args...)
		},
	}
	byteLength := cfg.Refresh.ByteLength
	generate := func() (string, error) { return refresh.Generate(byteLength) }

	engine.flows = flows.Deps{
		Issue: flows.IssueDeps{
			Common:        common,
			GenerateToken: generate,
			HashToken:     refresh.Hash,
			NewID:         uuid.NewString,
			RefreshTTL:    cfg.Refresh.TTL,
			SessionTTL:    cfg.Session.TTL,
		},
		Rotate: flows.RotateDeps{
			Common:        common,
			GenerateToken: generate,
			HashToken:     refresh.Hash,
			NewID:         uuid.NewString,
			RefreshTTL:    cfg.Refresh.TTL,
			SessionTTL:    cfg.Session.TTL,
		},
		Logout: flows.LogoutDeps{
			Common:    common,
			HashToken: refresh.Hash,
		},
		Invalidate: flows.InvalidateDeps{
			Common: common,
		},
	}

	b.built = true
	return engine, nil
}
