package jwt

import (
	"context"
	"strings"
)

// Verifier checks an access token. A miss is (nil, false); implementations
// never surface errors for invalid tokens.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Payload, bool)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, token string) (*Payload, bool)

// Verify calls f.
func (f VerifierFunc) Verify(ctx context.Context, token string) (*Payload, bool) {
	return f(ctx, token)
}

// Introspector resolves an access token issued by an external identity
// provider. Any error means the token is not accepted.
type Introspector interface {
	Introspect(ctx context.Context, token string) (*ExternalIdentity, error)
}

// SelfIssued verifies tokens minted by Manager.
type SelfIssued struct {
	Manager *Manager
}

// Verify parses token with the shared secret.
func (v SelfIssued) Verify(_ context.Context, token string) (*Payload, bool) {
	if v.Manager == nil || token == "" {
		return nil, false
	}
	payload, err := v.Manager.Parse(token)
	if err != nil {
		return nil, false
	}
	return payload, true
}

// External accepts tokens the identity provider vouches for and fills in
// placeholder tier and role.
type External struct {
	Introspector Introspector
	DefaultTier  string
	DefaultRole  string
}

// Verify asks the introspector about token. The returned payload has no
// iat/exp and its tier/role are the configured defaults.
func (v External) Verify(ctx context.Context, token string) (*Payload, bool) {
	if v.Introspector == nil || token == "" {
		return nil, false
	}
	identity, err := v.Introspector.Introspect(ctx, token)
	if err != nil || identity == nil || strings.TrimSpace(identity.Subject) == "" {
		return nil, false
	}
	return &Payload{
		Subject: identity.Subject,
		Email:   identity.Email,
		Tier:    v.DefaultTier,
		Role:    v.DefaultRole,
		Issuer:  identity.Issuer,
		Source:  SourceExternal,
	}, true
}

// Chain tries each verifier in order and returns the first hit.
type Chain []Verifier

// Verify returns the first accepting verifier's payload, or nil when all miss.
func (c Chain) Verify(ctx context.Context, token string) (*Payload, bool) {
	for _, v := range c {
		if v == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, false
		}
		if payload, ok := v.Verify(ctx, token); ok && payload != nil {
			return payload, true
		}
	}
	return nil, false
}
