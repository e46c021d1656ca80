package flows

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authcore/refresh"
	"github.com/MrEthical07/authcore/session"
	"github.com/MrEthical07/authcore/store"
)

type fixture struct {
	store    *store.MemoryStore
	sessions *session.Store
	mr       *miniredis.Miniredis
	now      time.Time
	deps     Deps
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})

	f := &fixture{
		store:    store.NewMemoryStore(),
		sessions: session.NewStore(rdb, "ac"),
		mr:       mr,
		now:      time.Now().UTC().Truncate(time.Second),
	}
	f.deps = f.buildDeps(f.store)
	return f
}

func (f *fixture) buildDeps(s store.Store) Deps {
	common := Common{
		Store:            s,
		Sessions:         f.sessions,
		Now:              func() time.Time { return f.now },
		OperationTimeout: time.Second,
	}
	gen := func() (string, error) { return refresh.Generate(refresh.DefaultByteLength) }
	return Deps{
		Issue: IssueDeps{
			Common:        common,
			GenerateToken: gen,
			HashToken:     refresh.Hash,
			RefreshTTL:    7 * 24 * time.Hour,
			SessionTTL:    7 * 24 * time.Hour,
		},
		Rotate: RotateDeps{
			Common:        common,
			GenerateToken: gen,
			HashToken:     refresh.Hash,
			RefreshTTL:    7 * 24 * time.Hour,
			SessionTTL:    7 * 24 * time.Hour,
		},
		Logout:     LogoutDeps{Common: common, HashToken: refresh.Hash},
		Invalidate: InvalidateDeps{Common: common},
	}
}

func (f *fixture) issue(t *testing.T, userID string) IssueResult {
	t.Helper()
	res, err := RunIssue(context.Background(), IssueInput{UserID: userID, IP: "198.51.100.1", UserAgent: "ua"}, f.deps.Issue)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return res
}

func TestIssueCreatesActiveRecordAndSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res := f.issue(t, "user-1")

	rec, err := f.store.FindByHash(ctx, refresh.Hash(res.RawToken))
	if err != nil {
		t.Fatalf("find issued record: %v", err)
	}
	if rec.StateAt(f.now) != store.StateActive || rec.UserID != "user-1" || rec.SessionID != res.SessionID {
		t.Fatalf("unexpected record %+v", rec)
	}
	if !rec.ExpiresAt.Equal(f.now.Add(7 * 24 * time.Hour)) {
		t.Fatalf("unexpected expiry %v", rec.ExpiresAt)
	}
	ok, err := f.sessions.Exists(ctx, res.SessionID)
	if err != nil || !ok {
		t.Fatalf("session missing ok=%v err=%v", ok, err)
	}
}

func TestIssueRevokesRecordWhenSessionSaveFails(t *testing.T) {
	f := newFixture(t)
	f.mr.Close()

	_, err := RunIssue(context.Background(), IssueInput{UserID: "user-1"}, f.deps.Issue)
	if !errors.Is(err, session.ErrRedisUnavailable) {
		t.Fatalf("expected redis unavailable, got %v", err)
	}
	active, _ := f.store.ListActive(context.Background(), "user-1", f.now)
	if len(active) != 0 {
		t.Fatalf("expected compensating revoke, found %d active", len(active))
	}
}

func TestRotateHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued := f.issue(t, "user-1")

	res := RunRotate(ctx, issued.RawToken, f.deps.Rotate)
	if res.Failure != RotateFailureNone {
		t.Fatalf("rotate failed: %v (%v)", res.Failure, res.Err)
	}
	if res.NewRawToken == "" || res.NewRawToken == issued.RawToken {
		t.Fatal("expected a fresh successor token")
	}
	if res.UserID != "user-1" || res.SessionID != issued.SessionID {
		t.Fatalf("unexpected identity %+v", res)
	}

	old, _ := f.store.FindByHash(ctx, refresh.Hash(issued.RawToken))
	if !old.Revoked || old.RevokedAt == nil {
		t.Fatal("presented record must be revoked")
	}
	next, err := f.store.FindByHash(ctx, refresh.Hash(res.NewRawToken))
	if err != nil || next.StateAt(f.now) != store.StateActive || next.SessionID != issued.SessionID {
		t.Fatalf("successor not active: %+v err=%v", next, err)
	}
}

func TestRotateUnknownToken(t *testing.T) {
	f := newFixture(t)
	for _, raw := range []string{"", "never-issued"} {
		res := RunRotate(context.Background(), raw, f.deps.Rotate)
		if res.Failure != RotateFailureNotFound {
			t.Fatalf("raw %q: expected not_found, got %v", raw, res.Failure)
		}
	}
}

func TestRotateExpiredHasNoContainment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued := f.issue(t, "user-1")
	other := f.issue(t, "user-1")

	f.now = f.now.Add(8 * 24 * time.Hour)
	res := RunRotate(ctx, issued.RawToken, f.deps.Rotate)
	if res.Failure != RotateFailureExpired {
		t.Fatalf("expected expired, got %v", res.Failure)
	}

	rec, _ := f.store.FindByHash(ctx, refresh.Hash(other.RawToken))
	if rec.Revoked {
		t.Fatal("expiry must not revoke sibling lineages")
	}
}

func TestRotateReuseContainsUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.issue(t, "user-1")
	b := f.issue(t, "user-1")
	bystander := f.issue(t, "user-2")

	first := RunRotate(ctx, a.RawToken, f.deps.Rotate)
	if first.Failure != RotateFailureNone {
		t.Fatalf("first rotate: %v", first.Failure)
	}

	second := RunRotate(ctx, a.RawToken, f.deps.Rotate)
	if second.Failure != RotateFailureReuse {
		t.Fatalf("expected reuse_detected, got %v", second.Failure)
	}
	if second.RevokedAt == nil || second.LostRace {
		t.Fatalf("expected original revocation time, got %+v", second)
	}
	if second.Contained.RevokedTokens != 2 || second.Contained.DeletedSessions != 2 {
		t.Fatalf("unexpected containment %+v", second.Contained)
	}

	for _, raw := range []string{first.NewRawToken, b.RawToken} {
		rec, _ := f.store.FindByHash(ctx, refresh.Hash(raw))
		if !rec.Revoked {
			t.Fatal("every record of the user must be revoked after reuse")
		}
	}
	if ok, _ := f.sessions.Exists(ctx, b.SessionID); ok {
		t.Fatal("sessions of the user must be deleted")
	}

	rec, _ := f.store.FindByHash(ctx, refresh.Hash(bystander.RawToken))
	if rec.Revoked {
		t.Fatal("other users must be unaffected")
	}
	if ok, _ := f.sessions.Exists(ctx, bystander.SessionID); !ok {
		t.Fatal("other users' sessions must be unaffected")
	}

	third := RunRotate(ctx, first.NewRawToken, f.deps.Rotate)
	if third.Failure != RotateFailureReuse {
		t.Fatalf("successor revoked by containment must also be reuse, got %v", third.Failure)
	}
}

func TestRotateConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)
	issued := f.issue(t, "user-1")

	const workers = 8
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		reuses    atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res := RunRotate(context.Background(), issued.RawToken, f.deps.Rotate)
			switch res.Failure {
			case RotateFailureNone:
				successes.Add(1)
			case RotateFailureReuse:
				reuses.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if successes.Load() != 1 {
		t.Fatalf("expected exactly one success, got %d", successes.Load())
	}
	if reuses.Load() != workers-1 {
		t.Fatalf("expected %d reuse results, got %d", workers-1, reuses.Load())
	}
}

type failingStore struct {
	store.Store
	findErr   error
	rotateErr error
}

func (s failingStore) FindByHash(ctx context.Context, h string) (*store.Record, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.Store.FindByHash(ctx, h)
}

func (s failingStore) Rotate(ctx context.Context, id string, next store.Record, now time.Time) error {
	if s.rotateErr != nil {
		return s.rotateErr
	}
	return s.Store.Rotate(ctx, id, next, now)
}

func TestRotateStoreUnavailable(t *testing.T) {
	f := newFixture(t)
	issued := f.issue(t, "user-1")

	deps := f.buildDeps(failingStore{Store: f.store, findErr: store.ErrUnavailable})
	res := RunRotate(context.Background(), issued.RawToken, deps.Rotate)
	if res.Failure != RotateFailureUnavailable {
		t.Fatalf("expected store_unavailable on lookup, got %v", res.Failure)
	}

	deps = f.buildDeps(failingStore{Store: f.store, rotateErr: store.ErrUnavailable})
	res = RunRotate(context.Background(), issued.RawToken, deps.Rotate)
	if res.Failure != RotateFailureUnavailable {
		t.Fatalf("expected store_unavailable on rotate, got %v", res.Failure)
	}
	rec, _ := f.store.FindByHash(context.Background(), refresh.Hash(issued.RawToken))
	if rec.Revoked {
		t.Fatal("failed rotation must leave the presented record active")
	}
}

type looseMatchStore struct {
	store.Store
}

func (s looseMatchStore) FindByHash(ctx context.Context, h string) (*store.Record, error) {
	return s.Store.FindByHash(ctx, strings.ToLower(h))
}

func TestRotateRequiresExactHashMatch(t *testing.T) {
	f := newFixture(t)
	issued := f.issue(t, "user-1")

	deps := f.buildDeps(looseMatchStore{Store: f.store})
	deps.Rotate.HashToken = func(raw string) string { return strings.ToUpper(refresh.Hash(raw)) }

	res := RunRotate(context.Background(), issued.RawToken, deps.Rotate)
	if res.Failure != RotateFailureNotFound || !errors.Is(res.Err, store.ErrNotFound) {
		t.Fatalf("expected not_found for a loose match, got %v (%v)", res.Failure, res.Err)
	}
	rec, _ := f.store.FindByHash(context.Background(), refresh.Hash(issued.RawToken))
	if rec.Revoked {
		t.Fatal("a loose match must not rotate or contain")
	}
	active, _ := f.store.ListActive(context.Background(), "user-1", f.now)
	if len(active) != 1 {
		t.Fatalf("expected the issued record to stay active, found %d", len(active))
	}
}

func TestRotateLostRaceIsReuse(t *testing.T) {
	f := newFixture(t)
	issued := f.issue(t, "user-1")

	deps := f.buildDeps(failingStore{Store: f.store, rotateErr: store.ErrAlreadyRevoked})
	res := RunRotate(context.Background(), issued.RawToken, deps.Rotate)
	if res.Failure != RotateFailureReuse || !res.LostRace {
		t.Fatalf("expected lost race reuse, got %+v", res)
	}
	if res.Contained.RevokedTokens != 1 {
		t.Fatalf("expected containment, got %+v", res.Contained)
	}
}

func TestRotateGeneratorFailure(t *testing.T) {
	f := newFixture(t)
	issued := f.issue(t, "user-1")
	f.deps.Rotate.GenerateToken = func() (string, error) { return "", errors.New("entropy") }

	res := RunRotate(context.Background(), issued.RawToken, f.deps.Rotate)
	if res.Failure != RotateFailureUnavailable {
		t.Fatalf("expected store_unavailable, got %v", res.Failure)
	}
}

func TestRotateSurvivesCancelledRequestAfterLookup(t *testing.T) {
	f := newFixture(t)
	issued := f.issue(t, "user-1")

	ctx, cancel := context.WithCancel(context.Background())
	deps := f.buildDeps(cancelAfterFind{Store: f.store, cancel: cancel})
	res := RunRotate(ctx, issued.RawToken, deps.Rotate)
	if res.Failure != RotateFailureNone {
		t.Fatalf("rotation must complete despite cancellation, got %v (%v)", res.Failure, res.Err)
	}
}

type cancelAfterFind struct {
	store.Store
	cancel context.CancelFunc
}

func (s cancelAfterFind) FindByHash(ctx context.Context, h string) (*store.Record, error) {
	rec, err := s.Store.FindByHash(ctx, h)
	s.cancel()
	return rec, err
}

func TestLogoutIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	issued := f.issue(t, "user-1")
	other := f.issue(t, "user-1")

	res, err := RunLogout(ctx, issued.RawToken, f.deps.Logout)
	if err != nil || !res.Found || res.RevokedTokens != 1 {
		t.Fatalf("logout res=%+v err=%v", res, err)
	}
	if ok, _ := f.sessions.Exists(ctx, issued.SessionID); ok {
		t.Fatal("session must be deleted on logout")
	}

	res, err = RunLogout(ctx, issued.RawToken, f.deps.Logout)
	if err != nil || res.RevokedTokens != 0 {
		t.Fatalf("second logout res=%+v err=%v", res, err)
	}
	if res, err := RunLogout(ctx, "unknown", f.deps.Logout); err != nil || res.Found {
		t.Fatalf("unknown token res=%+v err=%v", res, err)
	}

	rec, _ := f.store.FindByHash(ctx, refresh.Hash(other.RawToken))
	if rec.Revoked {
		t.Fatal("logout must only end the presented lineage")
	}
}

func TestInvalidateAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.issue(t, "user-1")
	f.issue(t, "user-1")

	res, err := RunInvalidateAll(ctx, "user-1", f.deps.Invalidate)
	if err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if res.RevokedTokens != 2 || res.DeletedSessions != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, err := RunInvalidateAll(ctx, "", f.deps.Invalidate); err == nil {
		t.Fatal("expected error for empty user id")
	}
}

func TestFlowsWithoutSessions(t *testing.T) {
	f := newFixture(t)
	deps := f.buildDeps(f.store)
	deps.Issue.Sessions = nil
	deps.Rotate.Sessions = nil

	issued, err := RunIssue(context.Background(), IssueInput{UserID: "user-1"}, deps.Issue)
	if err != nil {
		t.Fatalf("issue without redis: %v", err)
	}
	res := RunRotate(context.Background(), issued.RawToken, deps.Rotate)
	if res.Failure != RotateFailureNone {
		t.Fatalf("rotate without redis: %v", res.Failure)
	}
}
