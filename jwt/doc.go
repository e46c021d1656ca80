// Package jwt mints and verifies HS256 access tokens and composes access-token
// verifiers into an ordered fallback chain.
//
// # Architecture boundaries
//
// Manager owns signing-secret validation, claim layout, and strict parsing.
// Chain owns the order in which self-issued and externally issued tokens are
// tried. Profile lookups and session checks belong to the Engine.
//
// # What this package must NOT do
//
//   - Access Postgres or Redis.
//   - Return errors from Verifier.Verify; an invalid token is a miss.
//   - Invent tier or role values for external tokens beyond the configured defaults.
package jwt
