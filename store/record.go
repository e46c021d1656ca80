package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record matches the lookup key.
	ErrNotFound = errors.New("refresh token not found")
	// ErrAlreadyRevoked is returned by Rotate when the presented record was
	// revoked before the conditional update ran.
	ErrAlreadyRevoked = errors.New("refresh token already revoked")
	// ErrDuplicateHash is returned when a token hash is already stored.
	ErrDuplicateHash = errors.New("refresh token hash already exists")
	// ErrInvalidID is returned when an identifier cannot be stored by the
	// backend, such as a non-UUID user id in Postgres. Retrying will not help.
	ErrInvalidID = errors.New("refresh token identifier not valid for store")
	// ErrUnavailable wraps infrastructure failures.
	ErrUnavailable = errors.New("refresh token store unavailable")
)

// Record is a persisted refresh token. Only TokenHash is stored, never the raw token.
type Record struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	SessionID string     `json:"session_id"`
	TokenHash string     `json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
	Revoked   bool       `json:"revoked"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// State is the derived lifecycle state of a record.
type State string

const (
	StateActive  State = "active"
	StateRotated State = "rotated"
	StateExpired State = "expired"
)

// StateAt derives the record state at now. Revocation wins over expiry.
func (r *Record) StateAt(now time.Time) State {
	switch {
	case r.Revoked:
		return StateRotated
	case !now.Before(r.ExpiresAt):
		return StateExpired
	default:
		return StateActive
	}
}

// Store persists refresh-token records.
type Store interface {
	Insert(ctx context.Context, rec Record) error
	FindByHash(ctx context.Context, tokenHash string) (*Record, error)

	// Rotate revokes presentedID and inserts successor as one unit. It returns
	// ErrAlreadyRevoked and leaves no partial state when presentedID was not
	// active at update time.
	Rotate(ctx context.Context, presentedID string, successor Record, now time.Time) error

	Revoke(ctx context.Context, id string, now time.Time) (bool, error)
	RevokeAllForUser(ctx context.Context, userID string, now time.Time) (int64, error)
	RevokeSession(ctx context.Context, sessionID string, now time.Time) (int64, error)
	ListActive(ctx context.Context, userID string, now time.Time) ([]Record, error)
	PurgeExpired(ctx context.Context, olderThan time.Time) (int64, error)
}
