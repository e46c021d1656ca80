package authcore

import "errors"

var (
	// ErrConfiguration is returned by Build and Validate for unusable settings.
	ErrConfiguration = errors.New("invalid configuration")
	// ErrEngineNotReady is returned when a required dependency was not wired.
	ErrEngineNotReady = errors.New("engine not ready")

	// ErrRefreshNotFound means the presented refresh token is unknown.
	ErrRefreshNotFound = errors.New("refresh token not found")
	// ErrRefreshExpired means the presented refresh token is past its expiry.
	ErrRefreshExpired = errors.New("refresh token expired")
	// ErrRefreshReuse means a rotated refresh token was presented again.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrRefreshRateLimited is returned when the per-IP refresh budget is spent.
	ErrRefreshRateLimited = errors.New("refresh rate limited")
	// ErrStoreUnavailable wraps transient storage failures.
	ErrStoreUnavailable = errors.New("token store unavailable")

	// ErrInvalidCredentials is returned when the identity provider rejects a sign-in.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLoginRateLimited is returned when the login budget is spent.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrIdentityUnavailable wraps transient identity provider failures.
	ErrIdentityUnavailable = errors.New("identity provider unavailable")
	// ErrProfileMissing means no profile exists for the account.
	ErrProfileMissing = errors.New("profile missing")
	// ErrAccountUnapproved means the profile has not been approved yet.
	ErrAccountUnapproved = errors.New("account not approved")
	// ErrAccountDeleted means the profile was soft-deleted.
	ErrAccountDeleted = errors.New("account deleted")

	// ErrUnauthorized is returned for missing or invalid access tokens.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrSessionNotFound is returned by strict checks when the Redis session is gone.
	ErrSessionNotFound = errors.New("session not found")
)

// IsSessionInvalid reports whether err means the client must log in again.
func IsSessionInvalid(err error) bool {
	return errors.Is(err, ErrRefreshNotFound) ||
		errors.Is(err, ErrRefreshExpired) ||
		errors.Is(err, ErrRefreshReuse) ||
		errors.Is(err, ErrProfileMissing) ||
		errors.Is(err, ErrAccountUnapproved) ||
		errors.Is(err, ErrAccountDeleted)
}
