package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/session"
	"github.com/MrEthical07/authcore/store"
)

// DefaultOperationTimeout bounds store calls when no timeout is configured.
const DefaultOperationTimeout = 5 * time.Second

// SessionStore is the subset of *session.Store the flows depend on.
type SessionStore interface {
	Save(ctx context.Context, sess *session.Session, ttl time.Duration) error
	Touch(ctx context.Context, sessionID string, ttl time.Duration) error
	Delete(ctx context.Context, sessionID string) error
	DeleteAllForUser(ctx context.Context, userID string) (int, error)
}

// Common holds dependencies shared by every flow. Sessions may be nil when
// Redis is not configured; session tracking is then skipped.
type Common struct {
	Store            store.Store
	Sessions         SessionStore
	Now              func() time.Time
	OperationTimeout time.Duration
	Warn             func(msg string, args ...any)
}

// Deps groups flow dependency sets. The root engine builds this once and
// delegates request methods to the matching flow implementation.
type Deps struct {
	Issue      IssueDeps
	Rotate     RotateDeps
	Logout     LogoutDeps
	Invalidate InvalidateDeps
}

func (c Common) now() time.Time {
	if c.Now == nil {
		return time.Now().UTC()
	}
	return c.Now()
}

func (c Common) timeout() time.Duration {
	if c.OperationTimeout <= 0 {
		return DefaultOperationTimeout
	}
	return c.OperationTimeout
}

// bounded returns ctx limited by the operation timeout.
func (c Common) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout())
}

// detached returns a context that ignores cancellation of ctx but keeps its
// values, limited by the operation timeout.
func (c Common) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.timeout())
}

func (c Common) warn(msg string, args ...any) {
	if c.Warn != nil {
		c.Warn(msg, args...)
	}
}
