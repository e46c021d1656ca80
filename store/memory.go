package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a mutex-guarded Store with the same semantics as the
// Postgres implementation.
type MemoryStore struct {
	mu     sync.Mutex
	byID   map[string]*Record
	byHash map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:   make(map[string]*Record),
		byHash: make(map[string]string),
	}
}

func (s *MemoryStore) Insert(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(rec)
}

func (s *MemoryStore) insertLocked(rec Record) error {
	if _, exists := s.byHash[rec.TokenHash]; exists {
		return ErrDuplicateHash
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	stored := cloneRecord(rec)
	s.byID[rec.ID] = &stored
	s.byHash[rec.TokenHash] = rec.ID
	return nil
}

func (s *MemoryStore) FindByHash(ctx context.Context, tokenHash string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHash[tokenHash]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneRecord(*s.byID[id])
	return &out, nil
}

func (s *MemoryStore) Rotate(ctx context.Context, presentedID string, successor Record, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[presentedID]
	if !ok || rec.Revoked {
		return ErrAlreadyRevoked
	}
	if _, exists := s.byHash[successor.TokenHash]; exists {
		return ErrDuplicateHash
	}

	revokedAt := now
	rec.Revoked = true
	rec.RevokedAt = &revokedAt
	return s.insertLocked(successor)
}

func (s *MemoryStore) Revoke(ctx context.Context, id string, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok || rec.Revoked {
		return false, nil
	}
	revokeLocked(rec, now)
	return true, nil
}

func (s *MemoryStore) RevokeAllForUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	return s.revokeWhere(ctx, now, func(r *Record) bool { return r.UserID == userID })
}

func (s *MemoryStore) RevokeSession(ctx context.Context, sessionID string, now time.Time) (int64, error) {
	return s.revokeWhere(ctx, now, func(r *Record) bool { return r.SessionID == sessionID })
}

func (s *MemoryStore) revokeWhere(ctx context.Context, now time.Time, match func(*Record) bool) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, rec := range s.byID {
		if rec.Revoked || !match(rec) {
			continue
		}
		revokeLocked(rec, now)
		n++
	}
	return n, nil
}

func (s *MemoryStore) ListActive(ctx context.Context, userID string, now time.Time) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0)
	for _, rec := range s.byID {
		if rec.UserID == userID && rec.StateAt(now) == StateActive {
			out = append(out, cloneRecord(*rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) PurgeExpired(ctx context.Context, olderThan time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, rec := range s.byID {
		if !purgeable(rec, olderThan) {
			continue
		}
		delete(s.byHash, rec.TokenHash)
		delete(s.byID, id)
		n++
	}
	return n, nil
}

// Len returns the number of stored records, active or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func purgeable(rec *Record, olderThan time.Time) bool {
	if rec.Revoked && rec.RevokedAt != nil && rec.RevokedAt.Before(olderThan) {
		return true
	}
	return rec.ExpiresAt.Before(olderThan)
}

func revokeLocked(rec *Record, now time.Time) {
	revokedAt := now
	rec.Revoked = true
	rec.RevokedAt = &revokedAt
}

func cloneRecord(r Record) Record {
	out := r
	if r.RevokedAt != nil {
		t := *r.RevokedAt
		out.RevokedAt = &t
	}
	return out
}
