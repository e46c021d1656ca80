package authcore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/rate"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/session"
	"github.com/MrEthical07/authcore/store"
)

// Engine is the composed authentication core. It is safe for concurrent use
// after [Builder.Build].
type Engine struct {
	config       Config
	store        store.Store
	sessionStore *session.Store
	rateLimiter  *rate.Limiter
	profiles     ProfileProvider
	identity     IdentityProvider
	jwtManager   *jwt.Manager
	verifier     jwt.Chain
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
	logger       *slog.Logger
	clock        func() time.Time
	flows        flows.Deps
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
		if n := e.audit.Dropped(); n > 0 {
			dropped := e.audit.DroppedBySeverity()
			e.logger.Warn("audit events lost",
				"total", n,
				"critical", dropped[SeverityCritical],
				"warning", dropped[SeverityWarning],
				"info", dropped[SeverityInfo])
		}
	}
}

// AuditDropped reports audit events lost to backpressure or shutdown, per
// severity. Every severity is present.
func (e *Engine) AuditDropped() map[AuditSeverity]uint64 {
	if e == nil {
		return (*internalaudit.Dispatcher)(nil).DroppedBySeverity()
	}
	return e.audit.DroppedBySeverity()
}

// MetricsSnapshot returns a copy of every in-process metric.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// SessionsEnabled reports whether a Redis client was wired.
func (e *Engine) SessionsEnabled() bool {
	return e != nil && e.sessionStore != nil
}

// ProductionMode reports Security.ProductionMode.
func (e *Engine) ProductionMode() bool {
	return e != nil && e.config.Security.ProductionMode
}

// RefreshTTL returns the refresh token lifetime.
func (e *Engine) RefreshTTL() time.Duration {
	return e.config.Refresh.TTL
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now().UTC()
	}
	return e.clock()
}

// Issue starts a new login lineage for userID and returns the raw refresh
// token. It performs no credential or profile checks.
func (e *Engine) Issue(ctx context.Context, userID string) (string, error) {
	res, err := e.issue(ctx, userID)
	if err != nil {
		return "", err
	}
	return res.RawToken, nil
}

func (e *Engine) issue(ctx context.Context, userID string) (flows.IssueResult, error) {
	if e == nil || e.store == nil {
		return flows.IssueResult{}, ErrEngineNotReady
	}

	res, err := flows.RunIssue(ctx, flows.IssueInput{
		UserID:    userID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
	}, e.flows.Issue)
	if err != nil {
		return flows.IssueResult{}, e.mapStoreError(err)
	}

	e.metricInc(MetricSessionCreated)
	return res, nil
}

// Rotate exchanges a raw refresh token for its successor. It never returns
// an error; failures are reported through RotationResult.ErrorKind.
func (e *Engine) Rotate(ctx context.Context, raw string) RotationResult {
	if e == nil || e.store == nil {
		return RotationResult{ErrorKind: RotationStoreUnavailable}
	}

	start := time.Now()
	res := flows.RunRotate(ctx, raw, e.flows.Rotate)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricRotateLatency, time.Since(start))
	}

	out := RotationResult{
		UserID:    res.UserID,
		SessionID: res.SessionID,
	}

	switch res.Failure {
	case flows.RotateFailureNone:
		out.Success = true
		out.NewRawToken = res.NewRawToken
		return out

	case flows.RotateFailureNotFound:
		out.ErrorKind = RotationNotFound
		e.metricInc(MetricRefreshNotFound)
		e.logger.InfoContext(ctx, "refresh rotation rejected", "kind", out.ErrorKind)

	case flows.RotateFailureExpired:
		out.ErrorKind = RotationExpired
		e.metricInc(MetricRefreshExpired)
		e.logger.InfoContext(ctx, "refresh rotation rejected",
			"kind", out.ErrorKind, "user_id", res.UserID, "record_id", res.RecordID)

	case flows.RotateFailureReuse:
		out.ErrorKind = RotationReuseDetected
		e.handleReuse(ctx, res)

	default:
		out.ErrorKind = RotationStoreUnavailable
		e.metricInc(MetricStoreUnavailable)
		e.logger.WarnContext(ctx, "refresh rotation failed", "kind", out.ErrorKind, "error", res.Err)
	}

	e.metricInc(MetricRefreshFailure)
	if out.ErrorKind != RotationReuseDetected {
		err := out.ErrorKind.Err()
		e.emitAudit(ctx, auditEventRefreshInvalid, SeverityInfo, false, res.UserID, res.SessionID, err, nil)
	}
	return out
}

func (e *Engine) handleReuse(ctx context.Context, res flows.RotateResult) {
	e.metricInc(MetricRefreshReuseDetected)
	if e.metrics != nil {
		e.metrics.Add(MetricSessionInvalidated, uint64(res.Contained.DeletedSessions))
	}

	e.logger.ErrorContext(ctx, "refresh token reuse detected",
		"user_id", res.UserID,
		"session_id", res.SessionID,
		"record_id", res.RecordID,
		"revoked_at", formatTime(res.RevokedAt),
		"lost_race", res.LostRace,
		"revoked_tokens", res.Contained.RevokedTokens,
		"deleted_sessions", res.Contained.DeletedSessions,
	)

	e.emitAudit(ctx, auditEventRefreshReuseDetected, SeverityCritical, false, res.UserID, res.SessionID, ErrRefreshReuse, func() map[string]string {
		return map[string]string{
			"record_id":        res.RecordID,
			"revoked_at":       formatTime(res.RevokedAt),
			"lost_race":        strconv.FormatBool(res.LostRace),
			"revoked_tokens":   strconv.FormatInt(res.Contained.RevokedTokens, 10),
			"deleted_sessions": strconv.Itoa(res.Contained.DeletedSessions),
		}
	})
}

// InvalidateAll revokes every refresh token and deletes every session of
// userID.
func (e *Engine) InvalidateAll(ctx context.Context, userID string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	res, err := flows.RunInvalidateAll(ctx, userID, e.flows.Invalidate)
	if e.metrics != nil {
		e.metrics.Add(MetricSessionInvalidated, uint64(res.DeletedSessions))
	}
	if err != nil {
		return e.mapStoreError(err)
	}
	return nil
}

// MintAccessToken signs claims with the shared secret.
func (e *Engine) MintAccessToken(claims jwt.Claims) (string, error) {
	if e == nil || e.jwtManager == nil {
		return "", ErrEngineNotReady
	}
	return e.jwtManager.Mint(claims)
}

// VerifyAccessToken tries self-issued verification, then each external
// verifier. It returns nil for any token no verifier accepts.
func (e *Engine) VerifyAccessToken(ctx context.Context, token string) *jwt.Payload {
	if e == nil {
		return nil
	}
	payload, ok := e.verifier.Verify(ctx, token)
	if !ok {
		e.metricInc(MetricVerifyMiss)
		return nil
	}
	switch payload.Source {
	case jwt.SourceExternal:
		e.metricInc(MetricVerifyExternal)
	default:
		e.metricInc(MetricVerifySelfIssued)
	}
	return payload
}

// mapStoreError folds infrastructure failures into ErrStoreUnavailable.
func (e *Engine) mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrStoreUnavailable):
		return err
	case errors.Is(err, store.ErrUnavailable),
		errors.Is(err, session.ErrRedisUnavailable),
		errors.Is(err, rate.ErrRedisUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		e.metricInc(MetricStoreUnavailable)
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	default:
		return err
	}
}

// RetryAfter suggests how long a client should wait after err. It returns
// zero for errors that retrying will not fix.
func (e *Engine) RetryAfter(err error) time.Duration {
	if e == nil {
		return 0
	}
	switch {
	case errors.Is(err, ErrLoginRateLimited):
		return e.config.Security.LoginCooldownDuration
	case errors.Is(err, ErrRefreshRateLimited):
		return e.config.Security.RefreshCooldownDuration
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrIdentityUnavailable):
		return e.config.Store.OperationTimeout
	default:
		return 0
	}
}
