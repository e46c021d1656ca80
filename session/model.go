package session

import (
	"crypto/sha256"
	"time"
)

// Session is the Redis record of one login lineage.
type Session struct {
	SessionID string
	UserID    string

	IPHash        [32]byte
	UserAgentHash [32]byte

	CreatedAt int64
	ExpiresAt int64
}

// New returns a session for userID expiring ttl after now. ip and userAgent
// are hashed; empty values leave the hash zeroed.
func New(sessionID, userID, ip, userAgent string, now time.Time, ttl time.Duration) *Session {
	s := &Session{
		SessionID: sessionID,
		UserID:    userID,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}
	if ip != "" {
		s.IPHash = sha256.Sum256([]byte(ip))
	}
	if userAgent != "" {
		s.UserAgentHash = sha256.Sum256([]byte(userAgent))
	}
	return s
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return now.Unix() >= s.ExpiresAt
}
