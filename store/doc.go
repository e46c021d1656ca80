// Package store defines refresh-token persistence: the Record model, the Store
// contract, and an in-memory implementation.
//
// # Architecture boundaries
//
// A Store persists hashed refresh tokens and enforces the single-use property
// with a conditional revoke. It never sees raw tokens and never deletes rows
// outside PurgeExpired.
//
// # What this package must NOT do
//
//   - Hash or generate tokens.
//   - Decide what a revoked-token presentation means; that is the rotation flow's job.
package store
