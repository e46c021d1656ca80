// Package storetest holds a behavioural suite every store.Store implementation must pass.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/store"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

// Run executes the conformance suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	t.Run("InsertFind", func(t *testing.T) { testInsertFind(t, newStore(t)) })
	t.Run("DuplicateHash", func(t *testing.T) { testDuplicateHash(t, newStore(t)) })
	t.Run("RotateRevokesAndInserts", func(t *testing.T) { testRotate(t, newStore(t)) })
	t.Run("RotateLosesRace", func(t *testing.T) { testRotateTwice(t, newStore(t)) })
	t.Run("ConcurrentRotateSingleWinner", func(t *testing.T) { testConcurrentRotate(t, newStore(t)) })
	t.Run("RevokeIdempotent", func(t *testing.T) { testRevoke(t, newStore(t)) })
	t.Run("RevokeAllForUser", func(t *testing.T) { testRevokeAll(t, newStore(t)) })
	t.Run("RevokeSession", func(t *testing.T) { testRevokeSession(t, newStore(t)) })
	t.Run("ListActive", func(t *testing.T) { testListActive(t, newStore(t)) })
	t.Run("PurgeExpired", func(t *testing.T) { testPurge(t, newStore(t)) })
}

// NewRecord builds an active record for userID/sessionID with a fresh token.
// It returns the record and the raw token it hashes.
func NewRecord(t *testing.T, userID, sessionID string, expiresAt time.Time) (store.Record, string) {
	t.Helper()
	raw, err := refresh.Generate(refresh.DefaultByteLength)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return store.Record{
		ID:        uuid.NewString(),
		UserID:    userID,
		SessionID: sessionID,
		TokenHash: refresh.Hash(raw),
		ExpiresAt: expiresAt.UTC().Truncate(time.Microsecond),
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}, raw
}

func mustInsert(t *testing.T, s store.Store, rec store.Record) {
	t.Helper()
	if err := s.Insert(context.Background(), rec); err != nil {
		t.Fatalf("insert: %v", err)
	}
}

func mustFind(t *testing.T, s store.Store, hash string) *store.Record {
	t.Helper()
	rec, err := s.FindByHash(context.Background(), hash)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	return rec
}

func userID() string { return uuid.NewString() }

func testInsertFind(t *testing.T, s store.Store) {
	ctx := context.Background()
	uid, sid := userID(), uuid.NewString()
	rec, raw := NewRecord(t, uid, sid, time.Now().Add(time.Hour))
	mustInsert(t, s, rec)

	got := mustFind(t, s, refresh.Hash(raw))
	if got.ID != rec.ID || got.UserID != uid || got.SessionID != sid {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.Revoked || got.RevokedAt != nil {
		t.Fatalf("new record must be active: %+v", got)
	}

	if _, err := s.FindByHash(ctx, refresh.Hash("missing")); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testDuplicateHash(t *testing.T, s store.Store) {
	rec, _ := NewRecord(t, userID(), uuid.NewString(), time.Now().Add(time.Hour))
	mustInsert(t, s, rec)

	dup := rec
	dup.ID = uuid.NewString()
	if err := s.Insert(context.Background(), dup); !errors.Is(err, store.ErrDuplicateHash) {
		t.Fatalf("expected ErrDuplicateHash, got %v", err)
	}
}

func testRotate(t *testing.T, s store.Store) {
	ctx := context.Background()
	uid, sid := userID(), uuid.NewString()
	rec, raw := NewRecord(t, uid, sid, time.Now().Add(time.Hour))
	mustInsert(t, s, rec)

	next, nextRaw := NewRecord(t, uid, sid, time.Now().Add(2*time.Hour))
	now := time.Now().UTC().Truncate(time.Microsecond)
	if err := s.Rotate(ctx, rec.ID, next, now); err != nil {
		t.Fatalf("rotate: %v", err)
	}

	old := mustFind(t, s, refresh.Hash(raw))
	if !old.Revoked || old.RevokedAt == nil || !old.RevokedAt.Equal(now) {
		t.Fatalf("presented record not revoked at %v: %+v", now, old)
	}
	succ := mustFind(t, s, refresh.Hash(nextRaw))
	if succ.Revoked || succ.UserID != uid || succ.SessionID != sid {
		t.Fatalf("unexpected successor: %+v", succ)
	}
}

func testRotateTwice(t *testing.T, s store.Store) {
	ctx := context.Background()
	uid, sid := userID(), uuid.NewString()
	rec, raw := NewRecord(t, uid, sid, time.Now().Add(time.Hour))
	mustInsert(t, s, rec)

	first, _ := NewRecord(t, uid, sid, time.Now().Add(time.Hour))
	if err := s.Rotate(ctx, rec.ID, first, time.Now()); err != nil {
		t.Fatalf("first rotate: %v", err)
	}
	revokedAt := mustFind(t, s, refresh.Hash(raw)).RevokedAt

	second, secondRaw := NewRecord(t, uid, sid, time.Now().Add(time.Hour))
	if err := s.Rotate(ctx, rec.ID, second, time.Now().Add(time.Minute)); !errors.Is(err, store.ErrAlreadyRevoked) {
		t.Fatalf("expected ErrAlreadyRevoked, got %v", err)
	}
	if _, err := s.FindByHash(ctx, refresh.Hash(secondRaw)); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("losing successor must not be inserted, got %v", err)
	}
	again := mustFind(t, s, refresh.Hash(raw)).RevokedAt
	if again == nil || revokedAt == nil || !again.Equal(*revokedAt) {
		t.Fatalf("revoked_at must be set exactly once: %v then %v", revokedAt, again)
	}
}

func testConcurrentRotate(t *testing.T, s store.Store) {
	uid, sid := userID(), uuid.NewString()
	rec, _ := NewRecord(t, uid, sid, time.Now().Add(time.Hour))
	mustInsert(t, s, rec)

	const workers = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		lostRace int
	)
	for i := 0; i < workers; i++ {
		succ, _ := NewRecord(t, uid, sid, time.Now().Add(time.Hour))
		wg.Add(1)
		go func(succ store.Record) {
			defer wg.Done()
			err := s.Rotate(context.Background(), rec.ID, succ, time.Now())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, store.ErrAlreadyRevoked):
				lostRace++
			default:
				t.Errorf("unexpected rotate error: %v", err)
			}
		}(succ)
	}
	wg.Wait()

	if wins != 1 || lostRace != workers-1 {
		t.Fatalf("wins=%d lost=%d, want 1/%d", wins, lostRace, workers-1)
	}
	active, err := s.ListActive(context.Background(), uid, time.Now())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected exactly one active successor, got %d", len(active))
	}
}

func testRevoke(t *testing.T, s store.Store) {
	ctx := context.Background()
	rec, _ := NewRecord(t, userID(), uuid.NewString(), time.Now().Add(time.Hour))
	mustInsert(t, s, rec)

	ok, err := s.Revoke(ctx, rec.ID, time.Now())
	if err != nil || !ok {
		t.Fatalf("first revoke ok=%v err=%v", ok, err)
	}
	ok, err = s.Revoke(ctx, rec.ID, time.Now())
	if err != nil || ok {
		t.Fatalf("second revoke ok=%v err=%v, want false,nil", ok, err)
	}
}

func testRevokeAll(t *testing.T, s store.Store) {
	ctx := context.Background()
	uid, other := userID(), userID()
	for i := 0; i < 3; i++ {
		rec, _ := NewRecord(t, uid, uuid.NewString(), time.Now().Add(time.Hour))
		mustInsert(t, s, rec)
	}
	keep, keepRaw := NewRecord(t, other, uuid.NewString(), time.Now().Add(time.Hour))
	mustInsert(t, s, keep)

	n, err := s.RevokeAllForUser(ctx, uid, time.Now())
	if err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if n != 3 {
		t.Fatalf("revoked %d, want 3", n)
	}
	active, err := s.ListActive(ctx, uid, time.Now())
	if err != nil || len(active) != 0 {
		t.Fatalf("expected no active records, got %d err=%v", len(active), err)
	}
	if mustFind(t, s, refresh.Hash(keepRaw)).Revoked {
		t.Fatal("other user's record must stay active")
	}
}

func testRevokeSession(t *testing.T, s store.Store) {
	ctx := context.Background()
	uid := userID()
	sidA, sidB := uuid.NewString(), uuid.NewString()
	a, _ := NewRecord(t, uid, sidA, time.Now().Add(time.Hour))
	b, bRaw := NewRecord(t, uid, sidB, time.Now().Add(time.Hour))
	mustInsert(t, s, a)
	mustInsert(t, s, b)

	n, err := s.RevokeSession(ctx, sidA, time.Now())
	if err != nil || n != 1 {
		t.Fatalf("revoke session n=%d err=%v", n, err)
	}
	if mustFind(t, s, refresh.Hash(bRaw)).Revoked {
		t.Fatal("other session must stay active")
	}
}

func testListActive(t *testing.T, s store.Store) {
	ctx := context.Background()
	uid := userID()
	live, _ := NewRecord(t, uid, uuid.NewString(), time.Now().Add(time.Hour))
	expired, _ := NewRecord(t, uid, uuid.NewString(), time.Now().Add(-time.Minute))
	revoked, _ := NewRecord(t, uid, uuid.NewString(), time.Now().Add(time.Hour))
	mustInsert(t, s, live)
	mustInsert(t, s, expired)
	mustInsert(t, s, revoked)
	if _, err := s.Revoke(ctx, revoked.ID, time.Now()); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	active, err := s.ListActive(ctx, uid, time.Now())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 1 || active[0].ID != live.ID {
		t.Fatalf("expected only %s, got %+v", live.ID, active)
	}
}

func testPurge(t *testing.T, s store.Store) {
	ctx := context.Background()
	uid := userID()
	old, oldRaw := NewRecord(t, uid, uuid.NewString(), time.Now().Add(-48*time.Hour))
	live, liveRaw := NewRecord(t, uid, uuid.NewString(), time.Now().Add(time.Hour))
	mustInsert(t, s, old)
	mustInsert(t, s, live)

	n, err := s.PurgeExpired(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("purged %d, want 1", n)
	}
	if _, err := s.FindByHash(ctx, refresh.Hash(oldRaw)); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected purged record to be gone, got %v", err)
	}
	mustFind(t, s, refresh.Hash(liveRaw))
}
