package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/authcore/store"
)

const recordColumns = `id::text, user_id::text, session_id::text, token_hash, expires_at, revoked, revoked_at, created_at`

// Store is the Postgres-backed store.Store.
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// NewStore returns a Store over db.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert returns store.ErrInvalidID when any id is not a UUID.
func (s *Store) Insert(ctx context.Context, rec store.Record) error {
	if err := insertRecord(ctx, s.db, rec); err != nil {
		return classify(err)
	}
	return nil
}

func insertRecord(ctx context.Context, db DBTX, rec store.Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	for _, id := range [...]string{rec.ID, rec.UserID, rec.SessionID} {
		if !validID(id) {
			return fmt.Errorf("%w: %q", store.ErrInvalidID, id)
		}
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO refresh_tokens (id, user_id, session_id, token_hash, expires_at, revoked, revoked_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := db.ExecContext(ctx, query,
		rec.ID, rec.UserID, rec.SessionID, rec.TokenHash, rec.ExpiresAt, rec.Revoked, rec.RevokedAt, rec.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateHash
		}
		return err
	}
	return nil
}

func (s *Store) FindByHash(ctx context.Context, tokenHash string) (*store.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM refresh_tokens WHERE token_hash = $1`

	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, tokenHash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, classify(err)
	}
	return rec, nil
}

// Rotate revokes presentedID only if it is still active and inserts
// successor in the same transaction.
func (s *Store) Rotate(ctx context.Context, presentedID string, successor store.Record, now time.Time) error {
	err := WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1 AND revoked = FALSE`,
			presentedID, now)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return store.ErrAlreadyRevoked
		}
		return insertRecord(ctx, tx, successor)
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

// Revoke, RevokeAllForUser, RevokeSession and ListActive treat a non-UUID
// key as matching nothing.
func (s *Store) Revoke(ctx context.Context, id string, now time.Time) (bool, error) {
	if !validID(id) {
		return false, nil
	}
	n, err := s.exec(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1 AND revoked = FALSE`,
		id, now)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) RevokeAllForUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	if !validID(userID) {
		return 0, nil
	}
	return s.exec(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE user_id = $1 AND revoked = FALSE`,
		userID, now)
}

func (s *Store) RevokeSession(ctx context.Context, sessionID string, now time.Time) (int64, error) {
	if !validID(sessionID) {
		return 0, nil
	}
	return s.exec(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE session_id = $1 AND revoked = FALSE`,
		sessionID, now)
}

func (s *Store) ListActive(ctx context.Context, userID string, now time.Time) ([]store.Record, error) {
	if !validID(userID) {
		return []store.Record{}, nil
	}
	query := `SELECT ` + recordColumns + ` FROM refresh_tokens
		WHERE user_id = $1 AND revoked = FALSE AND expires_at > $2
		ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID, now)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	out := make([]store.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// PurgeExpired deletes rows that expired, or were revoked, before olderThan.
func (s *Store) PurgeExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	return s.exec(ctx,
		`DELETE FROM refresh_tokens WHERE (revoked = TRUE AND revoked_at < $1) OR expires_at < $1`,
		olderThan)
}

// Ping checks database reachability.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*store.Record, error) {
	var (
		rec       store.Record
		revokedAt sql.NullTime
	)
	if err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.SessionID,
		&rec.TokenHash,
		&rec.ExpiresAt,
		&rec.Revoked,
		&revokedAt,
		&rec.CreatedAt,
	); err != nil {
		return nil, err
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		rec.RevokedAt = &t
	}
	return &rec, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// classify passes domain errors through, maps rejected literals to
// ErrInvalidID and wraps everything else as ErrUnavailable.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrAlreadyRevoked),
		errors.Is(err, store.ErrDuplicateHash),
		errors.Is(err, store.ErrInvalidID),
		errors.Is(err, store.ErrNotFound):
		return err
	case isInvalidText(err):
		return fmt.Errorf("%w: %v", store.ErrInvalidID, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
}
