package httpauth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/middleware"
)

const maxBodyBytes = 1 << 16

// Options tunes the boundary.
type Options struct {
	Logger *slog.Logger
	// TrustProxy takes the client IP from X-Forwarded-For / X-Real-IP.
	TrustProxy bool
	// StrictMe requires a live Redis session for GET /me.
	StrictMe     bool
	CookieDomain string
}

// Handler serves the auth routes for one Engine.
type Handler struct {
	engine   *authcore.Engine
	logger   *slog.Logger
	cookie   cookieConfig
	strictMe bool
	trust    bool
}

func NewHandler(engine *authcore.Engine, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		engine: engine,
		logger: logger,
		cookie: cookieConfig{
			domain: opts.CookieDomain,
			secure: engine.ProductionMode(),
			maxAge: engine.RefreshTTL(),
		},
		strictMe: opts.StrictMe,
		trust:    opts.TrustProxy,
	}
}

// NewRouter returns a router with the auth routes mounted at [BasePath].
func NewRouter(engine *authcore.Engine, opts Options) chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Mount(BasePath, NewHandler(engine, opts).Routes())
	return r
}

// Routes returns the auth routes relative to their mount point.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	if h.trust {
		r.Use(chimw.RealIP)
	}
	r.Use(h.clientMeta)

	r.Post("/login", h.Login)
	r.Post("/refresh", h.Refresh)
	r.Get("/me", h.Me)
	r.Post("/logout", h.Logout)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireJWTOnly(h.engine))
		r.Post("/logout-all", h.LogoutAll)
		r.Get("/sessions", h.Sessions)
	})
	return r
}

func (h *Handler) clientMeta(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		ctx := authcore.WithClientIP(r.Context(), ip)
		ctx = authcore.WithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"accessToken"`
	User        any    `json:"user"`
}

type userRef struct {
	ID string `json:"id"`
}

func sessionBody(t *authcore.SessionTokens) tokenResponse {
	resp := tokenResponse{AccessToken: t.AccessToken, User: userRef{ID: t.UserID}}
	if t.Profile != nil {
		resp.User = t.Profile
	}
	return resp
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	tokens, err := h.engine.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.loginError(w, r, err)
		return
	}

	h.cookie.set(w, tokens.RefreshToken)
	writeJSON(w, http.StatusOK, sessionBody(tokens))
}

func (h *Handler) loginError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, authcore.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, authcore.ErrLoginRateLimited):
		setRetryAfter(w, h.engine.RetryAfter(err))
		writeError(w, http.StatusTooManyRequests, "too many login attempts")
	case errors.Is(err, authcore.ErrAccountUnapproved):
		writeError(w, http.StatusForbidden, "account pending approval")
	case errors.Is(err, authcore.ErrAccountDeleted):
		writeError(w, http.StatusForbidden, "account deleted")
	case errors.Is(err, authcore.ErrProfileMissing):
		writeError(w, http.StatusForbidden, "account not found")
	default:
		h.unavailableOrInternal(w, r, "login", err)
	}
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	raw := refreshCookie(r)
	if raw == "" {
		h.cookie.clear(w)
		writeError(w, http.StatusUnauthorized, msgSessionExpired)
		return
	}

	tokens, err := h.engine.Refresh(r.Context(), raw)
	if err != nil {
		switch {
		case authcore.IsSessionInvalid(err):
			h.logger.InfoContext(r.Context(), "refresh rejected", "reason", err.Error())
			h.cookie.clear(w)
			writeError(w, http.StatusUnauthorized, msgSessionExpired)
		case errors.Is(err, authcore.ErrRefreshRateLimited):
			setRetryAfter(w, h.engine.RetryAfter(err))
			writeError(w, http.StatusTooManyRequests, "too many refresh attempts")
		default:
			// the rotation committed even though no access token was minted
			if tokens != nil && tokens.RefreshToken != "" {
				h.cookie.set(w, tokens.RefreshToken)
			}
			h.unavailableOrInternal(w, r, "refresh", err)
		}
		return
	}

	h.cookie.set(w, tokens.RefreshToken)
	writeJSON(w, http.StatusOK, sessionBody(tokens))
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	profile, _, err := h.engine.Me(r.Context(), token, h.strictMe)
	if err != nil {
		switch {
		case errors.Is(err, authcore.ErrUnauthorized), errors.Is(err, authcore.ErrSessionNotFound):
			writeError(w, http.StatusUnauthorized, "unauthorized")
		case errors.Is(err, authcore.ErrAccountUnapproved):
			writeError(w, http.StatusForbidden, "account pending approval")
		case errors.Is(err, authcore.ErrAccountDeleted), errors.Is(err, authcore.ErrProfileMissing):
			writeError(w, http.StatusForbidden, "account not found")
		default:
			h.unavailableOrInternal(w, r, "me", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if raw := refreshCookie(r); raw != "" {
		if err := h.engine.Logout(r.Context(), raw); err != nil {
			h.unavailableOrInternal(w, r, "logout", err)
			return
		}
	}
	h.cookie.clear(w)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	payload, _ := middleware.PayloadFromContext(r.Context())
	if err := h.engine.LogoutAll(r.Context(), payload.Subject); err != nil {
		h.unavailableOrInternal(w, r, "logout-all", err)
		return
	}
	h.cookie.clear(w)
	w.WriteHeader(http.StatusNoContent)
}

type sessionsResponse struct {
	Sessions []authcore.SessionInfo `json:"sessions"`
}

func (h *Handler) Sessions(w http.ResponseWriter, r *http.Request) {
	payload, _ := middleware.PayloadFromContext(r.Context())
	sessions, err := h.engine.ActiveSessions(r.Context(), payload.Subject)
	if err != nil {
		h.unavailableOrInternal(w, r, "sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: sessions})
}

func (h *Handler) unavailableOrInternal(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, authcore.ErrStoreUnavailable) || errors.Is(err, authcore.ErrIdentityUnavailable) {
		h.logger.WarnContext(r.Context(), "auth dependency unavailable", "op", op, "error", err)
		setRetryAfter(w, h.engine.RetryAfter(err))
		writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
		return
	}
	h.logger.ErrorContext(r.Context(), "auth request failed", "op", op, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}
