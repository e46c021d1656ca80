// Package middleware guards downstream HTTP routes with authcore access
// tokens.
//
//   - [RequireJWTOnly] verifies the bearer token statelessly (self-issued or
//     accepted by an external verifier).
//   - [RequireStrict] additionally requires a live Redis session behind a
//     self-issued token.
//
// The verified [jwt.Payload] is available to handlers via [PayloadFromContext].
package middleware
