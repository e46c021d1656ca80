// Package local is a password identity provider backed by an in-process
// directory of Argon2id hashes. It serves development setups and tests that
// run without a Supabase project.
package local

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/password"
)

// ErrDuplicateEmail is returned by Add for an email already in the directory.
var ErrDuplicateEmail = errors.New("local: email already registered")

type account struct {
	userID string
	hash   string
}

// Directory maps lowercased emails to account ids and password hashes. It is
// safe for concurrent use.
type Directory struct {
	hasher *password.Hasher

	mu       sync.RWMutex
	accounts map[string]account

	// dummy is verified against unknown emails so both paths cost one hash.
	dummy string
}

func NewDirectory(hasher *password.Hasher) (*Directory, error) {
	if hasher == nil {
		return nil, errors.New("local: nil hasher")
	}
	dummy, err := hasher.Hash("unknown-account-placeholder")
	if err != nil {
		return nil, err
	}
	return &Directory{
		hasher:   hasher,
		accounts: make(map[string]account),
		dummy:    dummy,
	}, nil
}

// Add registers email with a plaintext password.
func (d *Directory) Add(userID, email, pw string) error {
	hash, err := d.hasher.Hash(pw)
	if err != nil {
		return fmt.Errorf("local: hash password for %s: %w", email, err)
	}
	return d.AddHash(userID, email, hash)
}

// AddHash registers email with an existing PHC-encoded hash.
func (d *Directory) AddHash(userID, email, hash string) error {
	email = normalizeEmail(email)
	if userID == "" || email == "" {
		return errors.New("local: user id and email required")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.accounts[email]; ok {
		return ErrDuplicateEmail
	}
	d.accounts[email] = account{userID: userID, hash: hash}
	return nil
}

// SignInWithPassword implements [authcore.IdentityProvider].
func (d *Directory) SignInWithPassword(ctx context.Context, email, pw string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	d.mu.RLock()
	acct, found := d.accounts[normalizeEmail(email)]
	d.mu.RUnlock()

	hash := acct.hash
	if !found {
		hash = d.dummy
	}
	ok, err := d.hasher.Verify(pw, hash)
	if errors.Is(err, password.ErrPasswordLength) {
		return "", authcore.ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("local: verify %s: %w", email, err)
	}
	if !found || !ok {
		return "", authcore.ErrInvalidCredentials
	}
	return acct.userID, nil
}

// Len reports the number of registered accounts.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.accounts)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
