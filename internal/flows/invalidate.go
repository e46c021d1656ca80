package flows

import (
	"context"
	"fmt"
)

// InvalidateDeps captures invalidate-all dependencies.
type InvalidateDeps struct {
	Common
}

// InvalidateResult reports how much was torn down.
type InvalidateResult struct {
	RevokedTokens   int64
	DeletedSessions int
}

// RunInvalidateAll revokes every refresh record of userID and deletes every
// Redis session of userID. It runs detached from request cancellation.
func RunInvalidateAll(ctx context.Context, userID string, deps InvalidateDeps) (InvalidateResult, error) {
	if userID == "" {
		return InvalidateResult{}, fmt.Errorf("invalidate: empty user id")
	}

	opCtx, cancel := deps.detached(ctx)
	defer cancel()

	return containUser(opCtx, userID, deps.Common)
}

// containUser revokes all refresh records and then all sessions of userID.
// Session deletion is attempted even when revocation fails.
func containUser(ctx context.Context, userID string, c Common) (InvalidateResult, error) {
	var res InvalidateResult

	n, revokeErr := c.Store.RevokeAllForUser(ctx, userID, c.now())
	res.RevokedTokens = n

	if c.Sessions != nil {
		deleted, err := c.Sessions.DeleteAllForUser(ctx, userID)
		res.DeletedSessions = deleted
		if err != nil {
			if revokeErr != nil {
				return res, revokeErr
			}
			return res, err
		}
	}

	return res, revokeErr
}
