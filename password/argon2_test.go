package password

import (
	"errors"
	"strings"
	"testing"
)

func testParams() Params {
	return Params{
		MemoryKiB:  8 * 1024,
		Iterations: 1,
		Threads:    1,
		SaltLength: 16,
		KeyLength:  32,
	}
}

func newTestHasher(t *testing.T, p Params) *Hasher {
	t.Helper()
	h, err := NewHasher(p)
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	return h
}

func TestHashAndVerify(t *testing.T) {
	h := newTestHasher(t, testParams())

	encoded, err := h.Hash("correct-horse-battery")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected encoding %q", encoded)
	}

	ok, err := h.Verify("correct-horse-battery", encoded)
	if err != nil || !ok {
		t.Fatalf("Verify correct = %v, %v", ok, err)
	}
	ok, err = h.Verify("wrong-horse-battery", encoded)
	if err != nil || ok {
		t.Fatalf("Verify wrong = %v, %v", ok, err)
	}
}

func TestHashSaltsDiffer(t *testing.T) {
	h := newTestHasher(t, testParams())
	a, _ := h.Hash("same-password")
	b, _ := h.Hash("same-password")
	if a == b {
		t.Fatal("two hashes of one password must differ")
	}
}

func TestHashLengthBounds(t *testing.T) {
	h := newTestHasher(t, testParams())
	for _, pw := range []string{"", "short", strings.Repeat("x", MaxPasswordBytes+1)} {
		if _, err := h.Hash(pw); !errors.Is(err, ErrPasswordLength) {
			t.Fatalf("Hash(len %d) err = %v", len(pw), err)
		}
	}
	if _, err := h.Hash(strings.Repeat("x", MaxPasswordBytes)); err != nil {
		t.Fatalf("max length rejected: %v", err)
	}
	if _, err := h.Verify(strings.Repeat("x", MaxPasswordBytes+1), "$argon2id$"); !errors.Is(err, ErrPasswordLength) {
		t.Fatalf("Verify oversized err = %v", err)
	}
}

func TestNeedsRehash(t *testing.T) {
	weak := newTestHasher(t, testParams())
	encoded, err := weak.Hash("correct-horse-battery")
	if err != nil {
		t.Fatal(err)
	}

	if again, err := weak.NeedsRehash(encoded); err != nil || again {
		t.Fatalf("same params: %v, %v", again, err)
	}

	stronger := testParams()
	stronger.Iterations = 2
	if again, err := newTestHasher(t, stronger).NeedsRehash(encoded); err != nil || !again {
		t.Fatalf("stronger params: %v, %v", again, err)
	}
}

func TestVerifyMalformed(t *testing.T) {
	h := newTestHasher(t, testParams())
	bad := []string{
		"",
		"plain",
		"$bcrypt$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=1,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1$c2FsdHNhbHRzYWx0c2FsdA$aGFzaA",
		"$argon2id$v=19$m=8192,t=1,p=1$c2hvcnQ$aGFzaA",
	}
	for _, enc := range bad {
		if _, err := h.Verify("correct-horse-battery", enc); !errors.Is(err, ErrMalformedHash) {
			t.Fatalf("Verify(%q) err = %v", enc, err)
		}
	}
}

func TestNewHasherRejectsWeakParams(t *testing.T) {
	p := testParams()
	p.MemoryKiB = 1024
	if _, err := NewHasher(p); err == nil {
		t.Fatal("expected error for low memory")
	}
	p = testParams()
	p.SaltLength = 8
	if _, err := NewHasher(p); err == nil {
		t.Fatal("expected error for short salt")
	}
}
