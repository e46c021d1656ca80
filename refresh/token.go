package refresh

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	// DefaultByteLength is the entropy used for refresh tokens unless configured otherwise.
	DefaultByteLength = 32
	// MinByteLength is the smallest accepted token entropy.
	MinByteLength = 16
)

// ErrByteLength is returned by Generate when the requested entropy is below MinByteLength.
var ErrByteLength = errors.New("refresh token byte length too small")

// Generate returns byteLength random bytes encoded as unpadded base64url.
// The result never contains '+', '/', or '='.
func Generate(byteLength int) (string, error) {
	if byteLength < MinByteLength {
		return "", fmt.Errorf("%w: %d < %d", ErrByteLength, byteLength, MinByteLength)
	}

	raw := make([]byte, byteLength)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Hash returns the lowercase hex SHA-256 digest of raw.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Equal compares a and b in constant time. Inputs of different lengths
// return false immediately; only equal-length comparisons are timing safe.
func Equal(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
