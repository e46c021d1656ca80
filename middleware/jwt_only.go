package middleware

import (
	"net/http"

	"github.com/MrEthical07/authcore"
)

// RequireJWTOnly accepts any token the engine's verifier chain accepts and
// never touches Redis.
func RequireJWTOnly(engine *authcore.Engine) func(http.Handler) http.Handler {
	return Guard(engine, ModeJWTOnly)
}
