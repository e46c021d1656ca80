package postgres

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/MrEthical07/authcore"
)

// AuditSink appends audit events to the audit_logs table. Write failures are
// logged and never propagated.
type AuditSink struct {
	db      DBTX
	timeout time.Duration
	logger  *slog.Logger
}

var _ authcore.AuditSink = (*AuditSink)(nil)

// NewAuditSink returns a sink writing through db. A zero timeout means 5s.
func NewAuditSink(db DBTX, timeout time.Duration, logger *slog.Logger) *AuditSink {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditSink{db: db, timeout: timeout, logger: logger}
}

func (s *AuditSink) Emit(ctx context.Context, event authcore.AuditEvent) {
	if s == nil || s.db == nil {
		return
	}

	var details []byte
	if len(event.Details) > 0 {
		var err error
		details, err = json.Marshal(event.Details)
		if err != nil {
			s.logger.Warn("audit details not encodable", "action", event.Action, "error", err)
			details = nil
		}
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_logs (occurred_at, action, severity, user_id, session_id, ip, success, error, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		event.Timestamp,
		event.Action,
		string(event.Severity),
		nullString(event.UserID),
		nullString(event.SessionID),
		nullString(event.IP),
		event.Success,
		nullString(event.Error),
		nullBytes(details),
	)
	if err != nil {
		s.logger.Error("audit insert failed", "action", event.Action, "error", err)
	}
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
