package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKiB   uint32 = 8 * 1024
	minIterations  uint32 = 1
	minThreads     uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithm             = "argon2id"

	// MinPasswordBytes is the shortest password Hash accepts.
	MinPasswordBytes = 10
	// MaxPasswordBytes bounds the work an attacker can force per attempt.
	MaxPasswordBytes = 1024
)

var (
	ErrPasswordLength = errors.New("password length out of range")
	ErrMalformedHash  = errors.New("malformed password hash")
)

// Params are the Argon2id cost parameters.
type Params struct {
	MemoryKiB  uint32
	Iterations uint32
	Threads    uint8
	SaltLength uint32
	KeyLength  uint32
}

// DefaultParams follows the OWASP baseline for Argon2id.
func DefaultParams() Params {
	return Params{
		MemoryKiB:  64 * 1024,
		Iterations: 3,
		Threads:    2,
		SaltLength: 16,
		KeyLength:  32,
	}
}

// Hasher is safe for concurrent use.
type Hasher struct {
	params Params
}

func NewHasher(p Params) (*Hasher, error) {
	switch {
	case p.MemoryKiB < minMemoryKiB:
		return nil, fmt.Errorf("argon2 memory must be >= %d KiB", minMemoryKiB)
	case p.Iterations < minIterations:
		return nil, errors.New("argon2 iterations must be >= 1")
	case p.Threads < minThreads:
		return nil, errors.New("argon2 threads must be >= 1")
	case p.SaltLength < minSaltLength:
		return nil, fmt.Errorf("argon2 salt length must be >= %d", minSaltLength)
	case p.KeyLength < minKeyLength:
		return nil, fmt.Errorf("argon2 key length must be >= %d", minKeyLength)
	}
	return &Hasher{params: p}, nil
}

// Hash returns the PHC encoding of password under a fresh salt. Password
// bytes are used as given, without Unicode normalization.
func (h *Hasher) Hash(password string) (string, error) {
	if len(password) < MinPasswordBytes || len(password) > MaxPasswordBytes {
		return "", fmt.Errorf("%w: must be %d..%d bytes", ErrPasswordLength, MinPasswordBytes, MaxPasswordBytes)
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(password), salt, h.params.Iterations, h.params.MemoryKiB, h.params.Threads, h.params.KeyLength)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithm,
		argon2.Version,
		h.params.MemoryKiB,
		h.params.Iterations,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encoded. Oversized passwords are
// rejected before any hashing work.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	if len(password) > MaxPasswordBytes {
		return false, ErrPasswordLength
	}
	d, err := decode(encoded)
	if err != nil {
		return false, err
	}
	key := argon2.IDKey([]byte(password), d.salt, d.params.Iterations, d.params.MemoryKiB, d.params.Threads, d.params.KeyLength)
	return subtle.ConstantTimeCompare(key, d.key) == 1, nil
}

// NeedsRehash reports whether encoded was produced with weaker parameters
// than h uses now.
func (h *Hasher) NeedsRehash(encoded string) (bool, error) {
	d, err := decode(encoded)
	if err != nil {
		return false, err
	}
	p := d.params
	return h.params.MemoryKiB > p.MemoryKiB ||
		h.params.Iterations > p.Iterations ||
		h.params.Threads > p.Threads ||
		h.params.KeyLength != p.KeyLength, nil
}

type decoded struct {
	params Params
	salt   []byte
	key    []byte
}

func decode(encoded string) (*decoded, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithm {
		return nil, ErrMalformedHash
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || !strings.HasPrefix(parts[2], "v=") {
		return nil, ErrMalformedHash
	}
	if version != argon2.Version {
		return nil, fmt.Errorf("%w: argon2 version %d", ErrMalformedHash, version)
	}

	d := &decoded{}
	if err := parseParams(parts[3], &d.params); err != nil {
		return nil, err
	}

	d.salt, err = decodeB64(parts[4])
	if err != nil || uint32(len(d.salt)) < minSaltLength {
		return nil, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	d.key, err = decodeB64(parts[5])
	if err != nil || len(d.key) == 0 {
		return nil, fmt.Errorf("%w: key", ErrMalformedHash)
	}
	d.params.SaltLength = uint32(len(d.salt))
	d.params.KeyLength = uint32(len(d.key))
	return d, nil
}

// decodeB64 accepts padded and unpadded standard base64.
func decodeB64(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

func parseParams(s string, p *Params) error {
	var seen int
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("%w: parameter %q", ErrMalformedHash, pair)
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("%w: parameter %q", ErrMalformedHash, pair)
		}
		switch k {
		case "m":
			if uint32(n) < minMemoryKiB {
				return fmt.Errorf("%w: memory", ErrMalformedHash)
			}
			p.MemoryKiB = uint32(n)
		case "t":
			if uint32(n) < minIterations {
				return fmt.Errorf("%w: iterations", ErrMalformedHash)
			}
			p.Iterations = uint32(n)
		case "p":
			if n < uint64(minThreads) || n > 255 {
				return fmt.Errorf("%w: threads", ErrMalformedHash)
			}
			p.Threads = uint8(n)
		default:
			return fmt.Errorf("%w: parameter %q", ErrMalformedHash, k)
		}
		seen++
	}
	if seen != 3 {
		return fmt.Errorf("%w: want m, t and p", ErrMalformedHash)
	}
	return nil
}
