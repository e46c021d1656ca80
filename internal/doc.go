// Package internal groups packages private to authcore.
//
// # Sub-packages
//
//   - audit: async audit dispatch, sinks, and the NATS publisher
//   - config: operator configuration for cmd/authd (YAML, dotenv, env)
//   - flows: issue, rotate, logout, and invalidate orchestration over the stores
//   - rate: Redis-backed login and refresh throttling
package internal
