// Package refresh generates, hashes, and compares opaque refresh tokens.
//
// # Token format
//
// A refresh token is N cryptographically random bytes (default 32) encoded as
// unpadded base64url, so it is safe in cookies and URLs. Only the lowercase hex
// SHA-256 of the token is ever persisted.
//
// # Architecture boundaries
//
// This package owns token generation and hashing. Rotation policy, reuse
// detection, and revocation are handled by the rotation flow and the token
// store.
//
// # What this package must NOT do
//
//   - Access Postgres, Redis, or any I/O besides the system CSPRNG.
//   - Import authcore, jwt, store, or session.
//   - Implement rotation or replay logic.
package refresh
