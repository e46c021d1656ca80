package flows

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/authcore/session"
	"github.com/MrEthical07/authcore/store"
)

// IssueDeps captures login issuance dependencies.
type IssueDeps struct {
	Common
	GenerateToken func() (string, error)
	HashToken     func(string) string
	NewID         func() string
	RefreshTTL    time.Duration
	SessionTTL    time.Duration
}

// IssueInput identifies the account and client starting a new lineage.
type IssueInput struct {
	UserID    string
	IP        string
	UserAgent string
}

// IssueResult carries the raw refresh token of a fresh lineage.
type IssueResult struct {
	RawToken  string
	RecordID  string
	SessionID string
	UserID    string
	ExpiresAt time.Time
}

// RunIssue starts a new login lineage: one ACTIVE refresh record plus,
// when sessions are tracked, one Redis session. If the session cannot be
// saved the record is revoked again before returning the error.
func RunIssue(ctx context.Context, in IssueInput, deps IssueDeps) (IssueResult, error) {
	if in.UserID == "" {
		return IssueResult{}, fmt.Errorf("issue: empty user id")
	}

	raw, err := deps.GenerateToken()
	if err != nil {
		return IssueResult{}, fmt.Errorf("issue: generate token: %w", err)
	}

	newID := deps.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	now := deps.now()
	rec := store.Record{
		ID:        newID(),
		UserID:    in.UserID,
		SessionID: newID(),
		TokenHash: deps.HashToken(raw),
		ExpiresAt: now.Add(deps.RefreshTTL),
		CreatedAt: now,
	}

	opCtx, cancel := deps.bounded(ctx)
	defer cancel()

	if err := deps.Store.Insert(opCtx, rec); err != nil {
		return IssueResult{}, err
	}

	if deps.Sessions != nil {
		sess := session.New(rec.SessionID, rec.UserID, in.IP, in.UserAgent, now, deps.SessionTTL)
		if err := deps.Sessions.Save(opCtx, sess, deps.SessionTTL); err != nil {
			undoCtx, undoCancel := deps.detached(ctx)
			defer undoCancel()
			if _, undoErr := deps.Store.Revoke(undoCtx, rec.ID, deps.now()); undoErr != nil {
				deps.warn("authcore: revoke after failed session save", "record_id", rec.ID, "error", undoErr)
			}
			return IssueResult{}, err
		}
	}

	return IssueResult{
		RawToken:  raw,
		RecordID:  rec.ID,
		SessionID: rec.SessionID,
		UserID:    rec.UserID,
		ExpiresAt: rec.ExpiresAt,
	}, nil
}
