// Package rate provides Redis-backed fixed-window throttles for login and
// refresh requests.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - rl:e: login per email
//   - rl:i: login per IP
//   - rr:i: refresh per IP
//
// # What this package must NOT do
//
//   - Decide what a throttled request returns to the client.
//   - Be imported outside the authcore module.
package rate
