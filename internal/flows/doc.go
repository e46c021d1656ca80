// Package flows contains the orchestrators behind the Engine's refresh-token
// operations: issue, rotate, logout, and invalidate-all.
//
// Each Run* function accepts a typed dependency struct and returns a result
// value. Flows coordinate the refresh store, the Redis session store, and the
// token generator. They do not own any of these resources; ownership stays
// with the Engine.
//
// # Atomic unit
//
// The revoke-and-insert step of a rotation runs on a context detached from
// request cancellation and bounded by the configured operation timeout, so
// an aborted request never leaves a half-rotated lineage.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authcore (to avoid import cycles).
//   - Emit audit events or metrics. Results carry enough detail for the
//     caller to do that.
package flows
