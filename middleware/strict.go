package middleware

import (
	"net/http"

	"github.com/MrEthical07/authcore"
)

// RequireStrict rejects tokens whose session was logged out or contained,
// even before the access token expires. Externally issued tokens carry no
// session and are rejected.
func RequireStrict(engine *authcore.Engine) func(http.Handler) http.Handler {
	return Guard(engine, ModeStrict)
}
