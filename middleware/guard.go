package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/jwt"
)

// Mode selects how much state a guard consults.
type Mode int

const (
	// ModeJWTOnly trusts a verified token without any session lookup.
	ModeJWTOnly Mode = iota
	// ModeStrict also requires the token's Redis session to be live.
	ModeStrict
)

type payloadContextKey struct{}

// PayloadFromContext returns the payload stored by a guard.
func PayloadFromContext(ctx context.Context) (*jwt.Payload, bool) {
	p, ok := ctx.Value(payloadContextKey{}).(*jwt.Payload)
	return p, ok && p != nil
}

// WithPayload stores p in ctx the same way a guard does.
func WithPayload(ctx context.Context, p *jwt.Payload) context.Context {
	return context.WithValue(ctx, payloadContextKey{}, p)
}

func Guard(engine *authcore.Engine, mode Mode) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			payload := engine.VerifyAccessToken(r.Context(), token)
			if payload == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if mode == ModeStrict {
				if err := engine.ValidateSession(r.Context(), payload); err != nil {
					if errors.Is(err, authcore.ErrStoreUnavailable) {
						if d := engine.RetryAfter(err); d > 0 {
							w.Header().Set("Retry-After", strconv.Itoa(int(d.Seconds())))
						}
						http.Error(w, "service unavailable", http.StatusServiceUnavailable)
						return
					}
					http.Error(w, "unauthorized", http.StatusUnauthorized)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithPayload(r.Context(), payload)))
		})
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
