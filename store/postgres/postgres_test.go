package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/store"
)

const (
	insertQ     = `INSERT\s+INTO\s+refresh_tokens\s*\(id,\s*user_id,\s*session_id,\s*token_hash,\s*expires_at,\s*revoked,\s*revoked_at,\s*created_at\)`
	findQ       = `SELECT\s+id::text,.*FROM\s+refresh_tokens\s+WHERE\s+token_hash\s*=\s*\$1`
	rotateQ     = `UPDATE\s+refresh_tokens\s+SET\s+revoked\s*=\s*TRUE,\s*revoked_at\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$1\s+AND\s+revoked\s*=\s*FALSE`
	revokeAllQ  = `UPDATE\s+refresh_tokens\s+SET\s+revoked\s*=\s*TRUE,\s*revoked_at\s*=\s*\$2\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+revoked\s*=\s*FALSE`
	revokeSessQ = `UPDATE\s+refresh_tokens\s+SET\s+revoked\s*=\s*TRUE,\s*revoked_at\s*=\s*\$2\s+WHERE\s+session_id\s*=\s*\$1\s+AND\s+revoked\s*=\s*FALSE`
	listQ       = `(?s)SELECT\s+id::text,.*FROM\s+refresh_tokens\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+revoked\s*=\s*FALSE\s+AND\s+expires_at\s*>\s*\$2\s+ORDER\s+BY\s+created_at\s+DESC`
	purgeQ      = `DELETE\s+FROM\s+refresh_tokens\s+WHERE`
)

var recordCols = []string{"id", "user_id", "session_id", "token_hash", "expires_at", "revoked", "revoked_at", "created_at"}

func newStoreWithMock(t *testing.T) (*Store, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return NewStore(db), mock, db
}

func testRecord() store.Record {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	return store.Record{
		ID:        "11111111-1111-1111-1111-111111111111",
		UserID:    "22222222-2222-2222-2222-222222222222",
		SessionID: "33333333-3333-3333-3333-333333333333",
		TokenHash: "aa",
		ExpiresAt: now.Add(7 * 24 * time.Hour),
		CreatedAt: now,
	}
}

func TestInsert_Success(t *testing.T) {
	s, mock, _ := newStoreWithMock(t)
	rec := testRecord()

	mock.ExpectExec(insertQ).
		WithArgs(rec.ID, rec.UserID, rec.SessionID, rec.TokenHash, rec.ExpiresAt, false, nil, rec.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.Insert(context.Background(), rec); err != nil {
		t.Fatalf("Insert error: %v", err)
	}
}

func TestInsert_UniqueViolation(t *testing.T) {
	for name, dbErr := range map[string]error{
		"pgx": &pgconn.PgError{Code: "23505"},
		"pq":  &pq.Error{Code: "23505"},
	} {
		t.Run(name, func(t *testing.T) {
			s, mock, _ := newStoreWithMock(t)
			mock.ExpectExec(insertQ).WillReturnError(dbErr)

			if err := s.Insert(context.Background(), testRecord()); !errors.Is(err, store.ErrDuplicateHash) {
				t.Fatalf("expected ErrDuplicateHash, got %v", err)
			}
		})
	}
}

func TestInsert_DBErrorIsUnavailable(t *testing.T) {
	s, mock, _ := newStoreWithMock(t)
	mock.ExpectExec(insertQ).WillReturnError(errors.New("db down"))

	if err := s.Insert(context.Background(), testRecord()); !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestFindByHash(t *testing.T) {
	s, mock, _ := newStoreWithMock(t)
	rec := testRecord()
	revokedAt := rec.CreatedAt.Add(time.Hour)

	mock.ExpectQuery(findQ).WithArgs("aa").WillReturnRows(
		sqlmock.NewRows(recordCols).AddRow(rec.ID, rec.UserID, rec.SessionID, rec.TokenHash, rec.ExpiresAt, true, revokedAt, rec.CreatedAt))

	got, err := s.FindByHash(context.Background(), "aa")
	if err != nil {
		t.Fatalf("FindByHash error: %v", err)
	}
	if got.ID != rec.ID || !got.Revoked || got.RevokedAt == nil || !got.RevokedAt.Equal(revokedAt) {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestFindByHash_NotFound(t *testing.T) {
	s, mock, _ := newStoreWithMock(t)
	mock.ExpectQuery(findQ).WithArgs("missing").WillReturnError(sql.ErrNoRows)

	if _, err := s.FindByHash(context.Background(), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRotate_Commits(t *testing.T) {
	s, mock, _ := newStoreWithMock(t)
	next := testRecord()
	next.ID = "44444444-4444-4444-4444-444444444444"
	now := next.CreatedAt

	mock.ExpectBegin()
	mock.ExpectExec(rotateQ).WithArgs("old-id", now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertQ).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := s.Rotate(context.Background(), "old-id", next, now); err != nil {
		t.Fatalf("Rotate error: %v", err)
	}
}

func TestRotate_LostRaceRollsBack(t *testing.T) {
	s, mock, _ := newStoreWithMock(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(rotateQ).WithArgs("old-id", now).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	if err := s.Rotate(context.Background(), "old-id", testRecord(), now); !errors.Is(err, store.ErrAlreadyRevoked) {
		t.Fatalf("expected ErrAlreadyRevoked, got %v", err)
	}
}

func TestRotate_InsertFailureRollsBack(t *testing.T) {
	s, mock, _ := newStoreWithMock(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(rotateQ).WithArgs("old-id", now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertQ).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.Rotate(context.Background(), "old-id", testRecord(), now)
	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestRevokeAllAndSession(t *testing.T) {
	s, mock, _ := newStoreWithMock(t)
	now := time.Now().UTC()

	rec := testRecord()

	mock.ExpectExec(revokeAllQ).WithArgs(rec.UserID, now).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(revokeSessQ).WithArgs(rec.SessionID, now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(rotateQ).WithArgs(rec.ID, now).WillReturnResult(sqlmock.NewResult(0, 0))

	if n, err := s.RevokeAllForUser(context.Background(), rec.UserID, now); err != nil || n != 3 {
		t.Fatalf("RevokeAllForUser n=%d err=%v", n, err)
	}
	if n, err := s.RevokeSession(context.Background(), rec.SessionID, now); err != nil || n != 1 {
		t.Fatalf("RevokeSession n=%d err=%v", n, err)
	}
	if ok, err := s.Revoke(context.Background(), rec.ID, now); err != nil || ok {
		t.Fatalf("Revoke of already revoked ok=%v err=%v", ok, err)
	}
}

func TestNonUUIDKeysMatchNothing(t *testing.T) {
	s, _, _ := newStoreWithMock(t)
	now := time.Now().UTC()
	ctx := context.Background()

	if n, err := s.RevokeAllForUser(ctx, "1234567890", now); err != nil || n != 0 {
		t.Fatalf("RevokeAllForUser n=%d err=%v", n, err)
	}
	if n, err := s.RevokeSession(ctx, "s-1", now); err != nil || n != 0 {
		t.Fatalf("RevokeSession n=%d err=%v", n, err)
	}
	if ok, err := s.Revoke(ctx, "r-1", now); err != nil || ok {
		t.Fatalf("Revoke ok=%v err=%v", ok, err)
	}
	got, err := s.ListActive(ctx, "google-oauth2|42", now)
	if err != nil || len(got) != 0 {
		t.Fatalf("ListActive got=%d err=%v", len(got), err)
	}

	rec := testRecord()
	rec.UserID = "1234567890"
	err = s.Insert(ctx, rec)
	if !errors.Is(err, store.ErrInvalidID) || errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}

func TestInvalidTextRepresentationIsNotTransient(t *testing.T) {
	for name, dbErr := range map[string]error{
		"pgx": &pgconn.PgError{Code: "22P02", Message: `invalid input syntax for type uuid: "old-id"`},
		"pq":  &pq.Error{Code: "22P02", Message: `invalid input syntax for type uuid: "old-id"`},
	} {
		t.Run(name, func(t *testing.T) {
			s, mock, _ := newStoreWithMock(t)
			now := time.Now().UTC()

			mock.ExpectBegin()
			mock.ExpectExec(rotateQ).WithArgs("old-id", now).WillReturnError(dbErr)
			mock.ExpectRollback()

			err := s.Rotate(context.Background(), "old-id", testRecord(), now)
			if !errors.Is(err, store.ErrInvalidID) {
				t.Fatalf("expected ErrInvalidID, got %v", err)
			}
			if errors.Is(err, store.ErrUnavailable) {
				t.Fatalf("22P02 must not read as an outage: %v", err)
			}
		})
	}
}

func TestListActiveAndPurge(t *testing.T) {
	s, mock, _ := newStoreWithMock(t)
	rec := testRecord()
	now := rec.CreatedAt

	mock.ExpectQuery(listQ).WithArgs(rec.UserID, now).WillReturnRows(
		sqlmock.NewRows(recordCols).
			AddRow(rec.ID, rec.UserID, rec.SessionID, "h1", rec.ExpiresAt, false, nil, rec.CreatedAt).
			AddRow("55555555-5555-5555-5555-555555555555", rec.UserID, rec.SessionID, "h2", rec.ExpiresAt, false, nil, rec.CreatedAt))
	mock.ExpectExec(purgeQ).WithArgs(now).WillReturnResult(sqlmock.NewResult(0, 7))

	got, err := s.ListActive(context.Background(), rec.UserID, now)
	if err != nil || len(got) != 2 {
		t.Fatalf("ListActive got=%d err=%v", len(got), err)
	}
	if got[0].RevokedAt != nil {
		t.Fatal("revoked_at must stay nil for active rows")
	}
	if n, err := s.PurgeExpired(context.Background(), now); err != nil || n != 7 {
		t.Fatalf("PurgeExpired n=%d err=%v", n, err)
	}
}

func TestProfiles(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	q := `SELECT\s+id::text,\s*email,\s*tier,\s*role,\s*is_approved,\s*deleted_at\s+FROM\s+profiles\s+WHERE\s+id\s*=\s*\$1`
	id := "22222222-2222-2222-2222-222222222222"
	deleted := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(q).WithArgs(id).WillReturnRows(
		sqlmock.NewRows([]string{"id", "email", "tier", "role", "is_approved", "deleted_at"}).
			AddRow(id, "ada@example.com", "pro", "admin", true, deleted))
	mock.ExpectQuery(q).WithArgs(id).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(q).WithArgs(id).WillReturnError(errors.New("conn reset"))

	p := NewProfiles(db)
	got, err := p.GetProfile(context.Background(), id)
	if err != nil {
		t.Fatalf("GetProfile error: %v", err)
	}
	if got.Tier != "pro" || !got.IsApproved || got.DeletedAt == nil || !got.DeletedAt.Equal(deleted) {
		t.Fatalf("unexpected profile: %+v", got)
	}
	if _, err := p.GetProfile(context.Background(), id); !errors.Is(err, authcore.ErrProfileMissing) {
		t.Fatalf("expected ErrProfileMissing, got %v", err)
	}
	if _, err := p.GetProfile(context.Background(), id); err == nil || errors.Is(err, authcore.ErrProfileMissing) {
		t.Fatalf("expected infrastructure error, got %v", err)
	}
	if _, err := p.GetProfile(context.Background(), "1234567890"); !errors.Is(err, authcore.ErrProfileMissing) {
		t.Fatalf("non-uuid ids have no profile, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuditSink(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	var logs bytes.Buffer
	sink := NewAuditSink(db, time.Second, slog.New(slog.NewTextHandler(&logs, nil)))
	ts := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	q := `INSERT\s+INTO\s+audit_logs`
	mock.ExpectExec(q).
		WithArgs(ts, "refresh_reuse_detected", "critical", "u-1", nil, nil, false, "refresh_reuse", `{"record_id":"r-1"}`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(q).WillReturnError(errors.New("db down"))

	ev := authcore.AuditEvent{
		Timestamp: ts,
		Action:    "refresh_reuse_detected",
		Severity:  authcore.SeverityCritical,
		UserID:    "u-1",
		Error:     "refresh_reuse",
		Details:   map[string]string{"record_id": "r-1"},
	}
	sink.Emit(context.Background(), ev)
	sink.Emit(context.Background(), ev)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
	if !bytes.Contains(logs.Bytes(), []byte("audit insert failed")) {
		t.Fatalf("expected failure to be logged, got %q", logs.String())
	}
}

func TestMigrate(t *testing.T) {
	orig := gooseRun
	defer func() { gooseRun = orig }()

	var got string
	gooseRun = func(_ context.Context, command string, _ *sql.DB, dir string) error {
		got = command + ":" + dir
		return nil
	}

	if err := Migrate(context.Background(), nil, MigrateUp); err != nil {
		t.Fatalf("Migrate error: %v", err)
	}
	if got != "up:." {
		t.Fatalf("unexpected goose call %q", got)
	}
	if err := Migrate(context.Background(), nil, "sideways"); err == nil {
		t.Fatal("expected unknown command error")
	}
}
