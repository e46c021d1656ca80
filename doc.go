// Package authcore is the authentication and session core of the builder/LMS
// backend: short-lived HS256 access tokens, rotating opaque refresh tokens
// with reuse detection, and Redis-tracked login sessions.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// and value types ([RotationResult], [SessionTokens], [Profile]). Flow
// orchestration, rate limiting, and audit dispatch live under internal/.
// Refresh records are persisted through a [store.Store]; the Postgres
// implementation lives in store/postgres.
//
// # Refresh lineage
//
// A login starts a lineage: one ACTIVE refresh record and one Redis session
// sharing a session id. Each rotation revokes the presented record and inserts
// its successor in one unit of work. Presenting a revoked record again is
// treated as theft: every record and every session of the owning account is
// torn down.
//
// # What this package must NOT do
//
//   - Persist or log raw refresh tokens.
//   - Rewrite a store outage into an invalid-session answer.
//   - Import any sub-package that re-imports authcore (no import cycles).
package authcore
