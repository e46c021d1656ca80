//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/store"
	"github.com/MrEthical07/authcore/store/storetest"
)

func setupPostgres(t *testing.T, driver string) *sql.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("authcore"),
		tcpostgres.WithUsername("authcore"),
		tcpostgres.WithPassword("authcore"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := Open(ctx, driver, dsn, PoolConfig{MaxOpenConns: 16})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(ctx, db, MigrateUp))
	return db
}

func truncate(t *testing.T, db *sql.DB) {
	t.Helper()
	_, err := db.Exec(`TRUNCATE refresh_tokens, profiles, audit_logs`)
	require.NoError(t, err)
}

func TestStoreConformance(t *testing.T) {
	for _, driver := range []string{DriverPGX, DriverPQ} {
		t.Run(driver, func(t *testing.T) {
			db := setupPostgres(t, driver)
			storetest.Run(t, func(t *testing.T) store.Store {
				truncate(t, db)
				return NewStore(db)
			})
		})
	}
}

func TestProfilesAndAuditAgainstPostgres(t *testing.T) {
	db := setupPostgres(t, DriverPGX)
	ctx := context.Background()
	id := uuid.NewString()

	_, err := db.ExecContext(ctx,
		`INSERT INTO profiles (id, email, tier, role, is_approved) VALUES ($1, $2, 'pro', 'admin', TRUE)`,
		id, "ada@example.com")
	require.NoError(t, err)

	p, err := NewProfiles(db).GetProfile(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "pro", p.Tier)
	require.True(t, p.IsApproved)
	require.Nil(t, p.DeletedAt)

	_, err = NewProfiles(db).GetProfile(ctx, uuid.NewString())
	require.ErrorIs(t, err, authcore.ErrProfileMissing)

	NewAuditSink(db, time.Second, nil).Emit(ctx, authcore.AuditEvent{
		Timestamp: time.Now().UTC(),
		Action:    "refresh_reuse_detected",
		Severity:  authcore.SeverityCritical,
		UserID:    id,
		Details:   map[string]string{"record_id": "r-1"},
	})

	var severity, recordID string
	err = db.QueryRowContext(ctx,
		`SELECT severity, details->>'record_id' FROM audit_logs WHERE user_id = $1`, id).Scan(&severity, &recordID)
	require.NoError(t, err)
	require.Equal(t, "critical", severity)
	require.Equal(t, "r-1", recordID)
}

func TestEngineRotationAgainstPostgres(t *testing.T) {
	db := setupPostgres(t, DriverPGX)
	ctx := context.Background()

	cfg := authcore.DefaultConfig()
	cfg.JWT.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.JWT.Issuer = "authcore-it"
	cfg.JWT.Audience = "authcore-it"

	engine, err := authcore.New().WithConfig(cfg).WithStore(NewStore(db)).Build()
	require.NoError(t, err)
	defer engine.Close()

	user := uuid.NewString()
	t1, err := engine.Issue(ctx, user)
	require.NoError(t, err)

	first := engine.Rotate(ctx, t1)
	require.True(t, first.Success)

	again := engine.Rotate(ctx, t1)
	require.Equal(t, authcore.RotationReuseDetected, again.ErrorKind)

	next := engine.Rotate(ctx, first.NewRawToken)
	require.Equal(t, authcore.RotationReuseDetected, next.ErrorKind, "containment revokes the successor")
}
