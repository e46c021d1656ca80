package flows

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/store"
)

// RotateFailureKind classifies rotation failures for root-level mapping.
type RotateFailureKind int

const (
	RotateFailureNone RotateFailureKind = iota
	RotateFailureNotFound
	RotateFailureExpired
	RotateFailureReuse
	RotateFailureUnavailable
)

func (k RotateFailureKind) String() string {
	switch k {
	case RotateFailureNone:
		return "none"
	case RotateFailureNotFound:
		return "not_found"
	case RotateFailureExpired:
		return "expired"
	case RotateFailureReuse:
		return "reuse_detected"
	case RotateFailureUnavailable:
		return "store_unavailable"
	default:
		return "unknown"
	}
}

// RotateResult carries either the successor token or failure metadata.
// RecordID is the presented record; RevokedAt is its original revocation
// time when reuse was detected on an already-rotated record.
type RotateResult struct {
	Failure     RotateFailureKind
	Err         error
	RecordID    string
	UserID      string
	SessionID   string
	NewRawToken string
	RevokedAt   *time.Time
	LostRace    bool
	Contained   InvalidateResult
}

// RotateDeps captures rotation dependencies.
type RotateDeps struct {
	Common
	GenerateToken func() (string, error)
	HashToken     func(string) string
	NewID         func() string
	RefreshTTL    time.Duration
	SessionTTL    time.Duration
}

// RunRotate exchanges a presented raw refresh token for a successor.
//
// A presented record that is already revoked, or that loses the conditional
// revoke to a concurrent rotation, is treated as reuse: every refresh record
// and every session of the owner is torn down.
func RunRotate(ctx context.Context, raw string, deps RotateDeps) RotateResult {
	if raw == "" {
		return RotateResult{Failure: RotateFailureNotFound, Err: store.ErrNotFound}
	}

	presented := deps.HashToken(raw)
	findCtx, cancel := deps.bounded(ctx)
	rec, err := deps.Store.FindByHash(findCtx, presented)
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return RotateResult{Failure: RotateFailureNotFound, Err: err}
		}
		return RotateResult{Failure: RotateFailureUnavailable, Err: err}
	}
	// stores may match case-insensitively or pad fixed-width columns
	if !refresh.Equal(rec.TokenHash, presented) {
		return RotateResult{Failure: RotateFailureNotFound, Err: store.ErrNotFound}
	}

	res := RotateResult{
		RecordID:  rec.ID,
		UserID:    rec.UserID,
		SessionID: rec.SessionID,
	}

	now := deps.now()
	switch rec.StateAt(now) {
	case store.StateRotated:
		res.RevokedAt = rec.RevokedAt
		return contain(ctx, res, store.ErrAlreadyRevoked, deps)
	case store.StateExpired:
		res.Failure = RotateFailureExpired
		return res
	}

	newRaw, err := deps.GenerateToken()
	if err != nil {
		res.Failure = RotateFailureUnavailable
		res.Err = err
		return res
	}

	newID := deps.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	successor := store.Record{
		ID:        newID(),
		UserID:    rec.UserID,
		SessionID: rec.SessionID,
		TokenHash: deps.HashToken(newRaw),
		ExpiresAt: now.Add(deps.RefreshTTL),
		CreatedAt: now,
	}

	opCtx, cancel := deps.detached(ctx)
	defer cancel()

	if err := deps.Store.Rotate(opCtx, rec.ID, successor, now); err != nil {
		if errors.Is(err, store.ErrAlreadyRevoked) {
			res.LostRace = true
			return contain(ctx, res, err, deps)
		}
		res.Failure = RotateFailureUnavailable
		res.Err = err
		return res
	}

	if deps.Sessions != nil {
		if err := deps.Sessions.Touch(opCtx, rec.SessionID, deps.SessionTTL); err != nil {
			deps.warn("authcore: session touch after rotation failed",
				"session_id", rec.SessionID, "error", err)
		}
	}

	res.NewRawToken = newRaw
	return res
}

func contain(ctx context.Context, res RotateResult, cause error, deps RotateDeps) RotateResult {
	res.Failure = RotateFailureReuse
	res.Err = cause

	opCtx, cancel := deps.detached(ctx)
	defer cancel()

	contained, err := containUser(opCtx, res.UserID, deps.Common)
	res.Contained = contained
	if err != nil {
		deps.warn("authcore: reuse containment incomplete", "user_id", res.UserID, "error", err)
	}
	return res
}
