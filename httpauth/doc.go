// Package httpauth is the HTTP session boundary: a chi router mounted at
// /api/auth that issues, rotates, and revokes refresh-token lineages.
//
// The refresh token travels only in an HttpOnly, SameSite=Strict cookie
// scoped to the auth path. Access tokens travel only in JSON bodies.
// Invalid sessions of any kind collapse to a single 401 so clients cannot
// distinguish reuse from expiry; store outages surface as 503 with
// Retry-After and leave the cookie in place.
package httpauth
