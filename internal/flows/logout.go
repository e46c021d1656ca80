package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/store"
)

// LogoutDeps captures logout dependencies.
type LogoutDeps struct {
	Common
	HashToken func(string) string
}

// LogoutResult describes the lineage that was terminated, if any.
type LogoutResult struct {
	Found         bool
	UserID        string
	SessionID     string
	RevokedTokens int64
}

// RunLogout revokes every record in the presented token's lineage and
// deletes its Redis session. Unknown or empty tokens succeed with
// Found=false.
func RunLogout(ctx context.Context, raw string, deps LogoutDeps) (LogoutResult, error) {
	if raw == "" {
		return LogoutResult{}, nil
	}

	findCtx, cancel := deps.bounded(ctx)
	rec, err := deps.Store.FindByHash(findCtx, deps.HashToken(raw))
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return LogoutResult{}, nil
		}
		return LogoutResult{}, err
	}

	opCtx, cancel := deps.detached(ctx)
	defer cancel()

	res := LogoutResult{Found: true, UserID: rec.UserID, SessionID: rec.SessionID}

	n, err := deps.Store.RevokeSession(opCtx, rec.SessionID, deps.now())
	res.RevokedTokens = n
	if err != nil {
		return res, err
	}

	if deps.Sessions != nil {
		if err := deps.Sessions.Delete(opCtx, rec.SessionID); err != nil {
			return res, err
		}
	}

	return res, nil
}
