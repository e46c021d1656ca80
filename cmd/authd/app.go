package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/config"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/provider/google"
	"github.com/MrEthical07/authcore/provider/local"
	"github.com/MrEthical07/authcore/provider/supabase"
	"github.com/MrEthical07/authcore/store/postgres"
)

// app owns every long-lived connection behind an engine.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *sql.DB
	redis  redis.UniversalClient
	engine *authcore.Engine
	close  []func()
}

func loadConfig(g *globalFlags) (*config.Config, *slog.Logger, error) {
	return loadConfigWith(g, config.Load)
}

func loadConfigWith(g *globalFlags, load func(path, envFile string) (*config.Config, error)) (*config.Config, *slog.Logger, error) {
	cfg, err := load(g.configPath, g.envFile)
	if err != nil {
		return nil, nil, err
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Log.Format = g.logFormat
	}
	logger := newLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	return postgres.Open(ctx, cfg.Database.Driver, cfg.Database.URL, postgres.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
}

func openRedis(ctx context.Context, url string) (redis.UniversalClient, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// newApp connects to Postgres, Redis, and NATS as configured and builds the
// engine. Callers must call shutdown.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.shutdown()
		}
	}()

	a.db, err = openDB(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.close = append(a.close, func() { _ = a.db.Close() })

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, a.db, postgres.MigrateUp); err != nil {
			return nil, err
		}
	}

	b := authcore.New().
		WithConfig(cfg.Engine()).
		WithStore(postgres.NewStore(a.db)).
		WithProfiles(postgres.NewProfiles(a.db)).
		WithLogger(logger)

	if cfg.Redis.URL != "" {
		a.redis, err = openRedis(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		a.close = append(a.close, func() { _ = a.redis.Close() })
		b = b.WithRedis(a.redis)
	} else {
		logger.Warn("REDIS_URL not set; sessions and throttling disabled")
	}

	var sinks authcore.MultiSink
	if cfg.Audit.Postgres {
		sinks = append(sinks, postgres.NewAuditSink(a.db, cfg.Refresh.OperationTimeout, logger))
	}
	if cfg.Audit.Stdout {
		sinks = append(sinks, authcore.NewJSONWriterSink(os.Stdout))
	}
	if cfg.NATS.URL != "" {
		conn, err := audit.DialNATS(cfg.NATS.URL, "authd", logger)
		if err != nil {
			return nil, err
		}
		a.close = append(a.close, func() { _ = conn.Drain() })
		sinks = append(sinks, audit.NewNATSSink(conn, cfg.NATS.SubjectPrefix, logger))
	}
	b = b.WithAuditSink(sinks)

	if cfg.Supabase.URL != "" {
		sb, err := supabase.New(supabase.Config{URL: cfg.Supabase.URL, AnonKey: cfg.Supabase.AnonKey})
		if err != nil {
			return nil, err
		}
		b = b.WithIdentityProvider(sb).WithExternalVerifier(sb)
	}
	if len(cfg.Local.Users) > 0 {
		dir, err := newLocalDirectory(cfg.Local.Users)
		if err != nil {
			return nil, err
		}
		logger.Warn("using local password directory", "accounts", dir.Len())
		b = b.WithIdentityProvider(dir)
	}
	if cfg.Google.ClientID != "" {
		b = b.WithExternalVerifier(google.NewVerifier(cfg.Google.ClientID))
	}

	a.engine, err = b.Build()
	if err != nil {
		return nil, err
	}

	// audit must drain before its sinks' connections close
	a.close = append(a.close, a.engine.Close)

	core := cfg.Engine()
	for _, w := range core.Lint() {
		logger.Warn("config lint", "code", w.Code, "message", w.Message)
	}
	return a, nil
}

func newLocalDirectory(users []config.LocalUser) (*local.Directory, error) {
	h, err := password.NewHasher(password.DefaultParams())
	if err != nil {
		return nil, err
	}
	dir, err := local.NewDirectory(h)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if err := dir.AddHash(u.ID, u.Email, u.PasswordHash); err != nil {
			return nil, fmt.Errorf("local user %s: %w", u.Email, err)
		}
	}
	return dir, nil
}

func (a *app) shutdown() {
	for i := len(a.close) - 1; i >= 0; i-- {
		a.close[i]()
	}
	a.close = nil
}
