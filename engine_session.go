package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/jwt"
)

// Login authenticates email/password with the identity provider, applies
// the profile gate, and starts a new lineage.
func (e *Engine) Login(ctx context.Context, email, password string) (*SessionTokens, error) {
	if e == nil || e.identity == nil || e.profiles == nil {
		return nil, ErrEngineNotReady
	}

	email = strings.ToLower(strings.TrimSpace(email))
	ip := clientIPFromContext(ctx)

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckLogin(ctx, email, ip); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				e.metricInc(MetricLoginRateLimited)
				e.emitAudit(ctx, auditEventLoginRateLimited, SeverityWarning, false, "", "", ErrLoginRateLimited, func() map[string]string {
					return map[string]string{"email": email}
				})
				return nil, ErrLoginRateLimited
			}
			e.logger.WarnContext(ctx, "login throttle unavailable", "error", err)
		}
	}

	if email == "" || password == "" {
		return nil, e.loginFailed(ctx, email, "", ErrInvalidCredentials)
	}

	userID, err := e.identity.SignInWithPassword(ctx, email, password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return nil, e.loginFailed(ctx, email, "", ErrInvalidCredentials)
		}
		e.logger.WarnContext(ctx, "identity provider sign-in failed", "error", err)
		e.metricInc(MetricLoginFailure)
		return nil, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.ResetLogin(ctx, email, ip); err != nil {
			e.logger.WarnContext(ctx, "login throttle reset failed", "error", err)
		}
	}

	profile, err := e.gateProfile(ctx, userID)
	if err != nil {
		if IsSessionInvalid(err) {
			return nil, e.loginFailed(ctx, email, userID, err)
		}
		e.metricInc(MetricLoginFailure)
		return nil, err
	}

	issued, err := e.issue(ctx, userID)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.logger.WarnContext(ctx, "login issue failed", "user_id", userID, "error", err)
		return nil, err
	}

	access, err := e.mintFor(userID, profile, issued.SessionID)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, SeverityInfo, true, userID, issued.SessionID, nil, nil)

	return &SessionTokens{
		AccessToken:      access,
		RefreshToken:     issued.RawToken,
		RefreshExpiresAt: issued.ExpiresAt,
		UserID:           userID,
		SessionID:        issued.SessionID,
		Profile:          profile,
	}, nil
}

func (e *Engine) loginFailed(ctx context.Context, email, userID string, cause error) error {
	e.metricInc(MetricLoginFailure)
	if e.rateLimiter != nil && errors.Is(cause, ErrInvalidCredentials) {
		if err := e.rateLimiter.IncrementLogin(ctx, email, clientIPFromContext(ctx)); err != nil && !errors.Is(err, rate.ErrRateLimited) {
			e.logger.WarnContext(ctx, "login throttle increment failed", "error", err)
		}
	}
	e.emitAudit(ctx, auditEventLoginFailure, SeverityWarning, false, userID, "", cause, func() map[string]string {
		return map[string]string{"email": email}
	})
	return cause
}

// Refresh rotates raw, re-reads the profile, and mints a new access token
// carrying the profile's authoritative tier and role.
//
// A missing, unapproved, or deleted profile terminates the fresh lineage
// and fails. When the profile store is unreachable no access token is
// minted and the error wraps ErrStoreUnavailable, but the rotation has
// already committed: the returned SessionTokens still carries the successor
// RefreshToken, which the caller must hand to the client.
func (e *Engine) Refresh(ctx context.Context, raw string) (*SessionTokens, error) {
	if e == nil || e.store == nil || e.profiles == nil {
		return nil, ErrEngineNotReady
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.CheckRefresh(ctx, clientIPFromContext(ctx)); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				e.metricInc(MetricRefreshRateLimited)
				e.emitAudit(ctx, auditEventRefreshRateLimited, SeverityWarning, false, "", "", ErrRefreshRateLimited, nil)
				return nil, ErrRefreshRateLimited
			}
			e.logger.WarnContext(ctx, "refresh throttle unavailable", "error", err)
		}
	}

	res := e.Rotate(ctx, raw)
	if !res.Success {
		return nil, res.ErrorKind.Err()
	}

	rotated := &SessionTokens{
		RefreshToken:     res.NewRawToken,
		RefreshExpiresAt: e.now().Add(e.config.Refresh.TTL),
		UserID:           res.UserID,
		SessionID:        res.SessionID,
	}

	profile, err := e.gateProfile(ctx, res.UserID)
	if err != nil {
		if IsSessionInvalid(err) {
			e.rejectSuccessor(ctx, res, err)
			return nil, err
		}
		e.metricInc(MetricRefreshFailure)
		e.logger.WarnContext(ctx, "profile lookup failed after rotation; access token withheld",
			"user_id", res.UserID, "session_id", res.SessionID, "error", err)
		e.emitAudit(ctx, auditEventRefreshProfileBlocked, SeverityWarning, false, res.UserID, res.SessionID, err, nil)
		return rotated, err
	}

	access, err := e.mintFor(res.UserID, profile, res.SessionID)
	if err != nil {
		return rotated, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, SeverityInfo, true, res.UserID, res.SessionID, nil, nil)

	rotated.AccessToken = access
	rotated.Profile = profile
	return rotated, nil
}

func (e *Engine) rejectSuccessor(ctx context.Context, res RotationResult, cause error) {
	e.metricInc(MetricRefreshProfileRejected)
	e.metricInc(MetricRefreshFailure)
	if _, err := flows.RunLogout(ctx, res.NewRawToken, e.flows.Logout); err != nil {
		e.logger.ErrorContext(ctx, "revoke successor after profile rejection failed",
			"user_id", res.UserID, "session_id", res.SessionID, "error", err)
	}
	e.emitAudit(ctx, auditEventRefreshProfileBlocked, SeverityWarning, false, res.UserID, res.SessionID, cause, nil)
}

// Logout terminates the lineage of raw and deletes its session. Unknown
// tokens succeed.
func (e *Engine) Logout(ctx context.Context, raw string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	res, err := flows.RunLogout(ctx, raw, e.flows.Logout)
	if err != nil {
		return e.mapStoreError(err)
	}
	if !res.Found {
		return nil
	}

	e.metricInc(MetricLogout)
	if e.sessionStore != nil {
		e.metricInc(MetricSessionInvalidated)
	}
	e.emitAudit(ctx, auditEventLogoutSession, SeverityInfo, true, res.UserID, res.SessionID, nil, func() map[string]string {
		return map[string]string{"revoked_tokens": fmt.Sprint(res.RevokedTokens)}
	})
	return nil
}

// LogoutAll is the explicit "log out everywhere" action.
func (e *Engine) LogoutAll(ctx context.Context, userID string) error {
	if err := e.InvalidateAll(ctx, userID); err != nil {
		e.emitAudit(ctx, auditEventLogoutAll, SeverityWarning, false, userID, "", err, nil)
		return err
	}
	e.metricInc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, SeverityInfo, true, userID, "", nil, nil)
	return nil
}

// Me verifies accessToken and re-reads the profile so tier and role are
// authoritative even for externally issued tokens. With strict set, a
// self-issued token must also map to a live Redis session.
func (e *Engine) Me(ctx context.Context, accessToken string, strict bool) (*Profile, *jwt.Payload, error) {
	if e == nil || e.profiles == nil {
		return nil, nil, ErrEngineNotReady
	}

	payload := e.VerifyAccessToken(ctx, accessToken)
	if payload == nil {
		return nil, nil, ErrUnauthorized
	}

	if strict {
		if err := e.ValidateSession(ctx, payload); err != nil {
			return nil, nil, err
		}
	}

	profile, err := e.gateProfile(ctx, payload.Subject)
	if err != nil {
		return nil, nil, err
	}
	return profile, payload, nil
}

// ValidateSession requires a live Redis session behind a self-issued
// payload. Externally issued payloads carry no session and are rejected.
func (e *Engine) ValidateSession(ctx context.Context, payload *jwt.Payload) error {
	if e == nil || e.sessionStore == nil {
		return ErrEngineNotReady
	}
	if payload == nil || payload.Source != jwt.SourceSelf || payload.SessionID == "" {
		return ErrSessionNotFound
	}

	ok, err := e.sessionStore.Exists(ctx, payload.SessionID)
	if err != nil {
		return e.mapStoreError(err)
	}
	if !ok {
		return ErrSessionNotFound
	}
	return nil
}

// ActiveSessions lists the active lineages of userID, newest first. Tracked
// reports whether a live Redis session backs the lineage.
func (e *Engine) ActiveSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	if e == nil || e.store == nil {
		return nil, ErrEngineNotReady
	}

	opCtx, cancel := context.WithTimeout(ctx, e.config.Store.OperationTimeout)
	defer cancel()

	records, err := e.store.ListActive(opCtx, userID, e.now())
	if err != nil {
		return nil, e.mapStoreError(err)
	}

	var live map[string]struct{}
	if e.sessionStore != nil {
		sessions, err := e.sessionStore.ListForUser(opCtx, userID)
		if err != nil {
			return nil, e.mapStoreError(err)
		}
		live = make(map[string]struct{}, len(sessions))
		for _, sess := range sessions {
			live[sess.SessionID] = struct{}{}
		}
	}

	seen := make(map[string]struct{}, len(records))
	out := make([]SessionInfo, 0, len(records))
	for _, rec := range records {
		if _, ok := seen[rec.SessionID]; ok {
			continue
		}
		seen[rec.SessionID] = struct{}{}

		_, tracked := live[rec.SessionID]
		out = append(out, SessionInfo{
			SessionID:     rec.SessionID,
			LastRotatedAt: rec.CreatedAt,
			ExpiresAt:     rec.ExpiresAt,
			Tracked:       tracked,
		})
	}
	return out, nil
}

// gateProfile loads the profile of userID and rejects missing, deleted, or
// (when approval is required) unapproved accounts.
func (e *Engine) gateProfile(ctx context.Context, userID string) (*Profile, error) {
	opCtx, cancel := context.WithTimeout(ctx, e.config.Store.OperationTimeout)
	defer cancel()

	profile, err := e.profiles.GetProfile(opCtx, userID)
	if err != nil {
		if errors.Is(err, ErrProfileMissing) {
			return nil, ErrProfileMissing
		}
		e.metricInc(MetricStoreUnavailable)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if profile == nil {
		return nil, ErrProfileMissing
	}
	if profile.DeletedAt != nil {
		return nil, ErrAccountDeleted
	}
	if e.config.Profile.RequireApproval && !profile.IsApproved {
		return nil, ErrAccountUnapproved
	}
	return profile, nil
}

func (e *Engine) mintFor(userID string, profile *Profile, sessionID string) (string, error) {
	return e.MintAccessToken(jwt.Claims{
		Subject:   userID,
		Email:     profile.Email,
		Tier:      profile.Tier,
		Role:      profile.Role,
		SessionID: sessionID,
	})
}
