// Package session provides Redis-backed tracking of active logins and a
// compact binary encoding for session records.
//
// # Binary encoding
//
// Records are stored as a versioned binary blob. Decoding rejects unknown
// versions and trailing garbage; new versions may only append fields.
//
// # Architecture boundaries
//
// This package owns the [Store] (Redis operations) and the [Session] model.
// Refresh-token state lives in the token store, not here. Losing a session
// record only makes strict validation fail; it never makes a refresh token valid.
//
// # What this package must NOT do
//
//   - Import authcore, jwt, or store (no upward imports).
//   - Store raw tokens, IP addresses, or user agents; only their hashes.
package session
