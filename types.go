package authcore

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/jwt"
)

// Profile is the account record owned by the profile store. The core only
// reads it; Tier and Role are authoritative here, not in access tokens.
type Profile struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	Tier       string     `json:"tier"`
	Role       string     `json:"role"`
	IsApproved bool       `json:"isApproved"`
	DeletedAt  *time.Time `json:"deletedAt,omitempty"`
}

// ProfileProvider loads profiles by account id. Implementations return
// ErrProfileMissing when no profile exists.
type ProfileProvider interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
}

// StaticProfiles is an in-memory ProfileProvider keyed by account id.
type StaticProfiles map[string]Profile

// GetProfile returns a copy of the stored profile.
func (s StaticProfiles) GetProfile(_ context.Context, userID string) (*Profile, error) {
	p, ok := s[userID]
	if !ok {
		return nil, ErrProfileMissing
	}
	return &p, nil
}

// IdentityProvider authenticates email/password credentials against the
// external identity service and returns the account id. Implementations
// return ErrInvalidCredentials for rejected credentials.
type IdentityProvider interface {
	SignInWithPassword(ctx context.Context, email, password string) (string, error)
}

// SessionTokens is the result of a login or refresh. RefreshToken is the raw
// token and must only ever be written to the refresh cookie. A refresh that
// fails after rotating returns SessionTokens with an empty AccessToken.
type SessionTokens struct {
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
	UserID           string
	SessionID        string
	Profile          *Profile
}

// SessionInfo describes one active login lineage of an account.
type SessionInfo struct {
	SessionID     string    `json:"sessionId"`
	LastRotatedAt time.Time `json:"lastRotatedAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
	Tracked       bool      `json:"tracked"`
}

// RotationErrorKind classifies why a rotation failed.
type RotationErrorKind string

const (
	RotationNotFound         RotationErrorKind = "not_found"
	RotationExpired          RotationErrorKind = "expired"
	RotationReuseDetected    RotationErrorKind = "reuse_detected"
	RotationStoreUnavailable RotationErrorKind = "store_unavailable"
)

// Err maps the kind onto its sentinel error.
func (k RotationErrorKind) Err() error {
	switch k {
	case RotationNotFound:
		return ErrRefreshNotFound
	case RotationExpired:
		return ErrRefreshExpired
	case RotationReuseDetected:
		return ErrRefreshReuse
	case RotationStoreUnavailable:
		return ErrStoreUnavailable
	default:
		return nil
	}
}

// RotationResult is the outcome of [Engine.Rotate]. On success NewRawToken
// replaces the presented token; on failure ErrorKind is set.
type RotationResult struct {
	Success     bool
	NewRawToken string
	UserID      string
	SessionID   string
	ErrorKind   RotationErrorKind
}

// AccessPayload is the verified content of an access token.
type AccessPayload = jwt.Payload
