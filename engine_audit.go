package authcore

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventLoginSuccess          = "login_success"
	auditEventLoginFailure          = "login_failure"
	auditEventLoginRateLimited      = "login_rate_limited"
	auditEventRefreshSuccess        = "refresh_success"
	auditEventRefreshInvalid        = "refresh_invalid"
	auditEventRefreshRateLimited    = "refresh_rate_limited"
	auditEventRefreshReuseDetected  = "refresh_reuse_detected"
	auditEventRefreshProfileBlocked = "refresh_profile_rejected"
	auditEventLogoutSession         = "logout_session"
	auditEventLogoutAll             = "logout_all"
)

// AuditErrorCode is the stable error label written into audit events.
type AuditErrorCode string

const (
	auditErrUnauthorized       AuditErrorCode = "unauthorized"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrRefreshReuse       AuditErrorCode = "refresh_reuse"
	auditErrRefreshNotFound    AuditErrorCode = "refresh_not_found"
	auditErrRefreshExpired     AuditErrorCode = "refresh_expired"
	auditErrSessionNotFound    AuditErrorCode = "session_not_found"
	auditErrProfileMissing     AuditErrorCode = "profile_missing"
	auditErrAccountUnapproved  AuditErrorCode = "account_unapproved"
	auditErrAccountDeleted     AuditErrorCode = "account_deleted"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	action string,
	severity AuditSeverity,
	success bool,
	userID string,
	sessionID string,
	err error,
	detailsBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var details map[string]string
	if detailsBuilder != nil {
		details = detailsBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now(),
		Action:    action,
		Severity:  severity,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Details:   details,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrLoginRateLimited),
		errors.Is(err, ErrRefreshRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrRefreshReuse):
		return auditErrRefreshReuse
	case errors.Is(err, ErrRefreshNotFound):
		return auditErrRefreshNotFound
	case errors.Is(err, ErrRefreshExpired):
		return auditErrRefreshExpired
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrProfileMissing):
		return auditErrProfileMissing
	case errors.Is(err, ErrAccountUnapproved):
		return auditErrAccountUnapproved
	case errors.Is(err, ErrAccountDeleted):
		return auditErrAccountDeleted
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrIdentityUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
