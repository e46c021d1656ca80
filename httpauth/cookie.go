package httpauth

import (
	"net/http"
	"time"
)

const (
	// RefreshCookieName names the cookie carrying the raw refresh token.
	RefreshCookieName = "refresh_token"
	// BasePath is where the auth routes are mounted.
	BasePath = "/api/auth"
)

type cookieConfig struct {
	domain string
	secure bool
	maxAge time.Duration
}

func (c cookieConfig) set(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     BasePath,
		Domain:   c.domain,
		MaxAge:   int(c.maxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (c cookieConfig) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     BasePath,
		Domain:   c.domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func refreshCookie(r *http.Request) string {
	c, err := r.Cookie(RefreshCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
