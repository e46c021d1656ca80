package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is the NATS subject prefix for audit events.
const DefaultSubjectPrefix = "authcore.audit"

// Publisher is the subset of *nats.Conn used by NATSSink.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes each event as JSON on <prefix>.<action>.
type NATSSink struct {
	conn   Publisher
	prefix string
	logger *slog.Logger
}

// NewNATSSink returns a sink publishing through conn.
func NewNATSSink(conn Publisher, prefix string, logger *slog.Logger) *NATSSink {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSSink{
		conn:   conn,
		prefix: strings.TrimSuffix(prefix, "."),
		logger: logger,
	}
}

// Subject returns the subject an event with action is published on.
func (s *NATSSink) Subject(action string) string {
	if action == "" {
		action = "unknown"
	}
	return s.prefix + "." + action
}

func (s *NATSSink) Emit(_ context.Context, event Event) {
	if s == nil || s.conn == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("audit: marshal event for nats", "action", event.Action, "error", err)
		return
	}
	if err := s.conn.Publish(s.Subject(event.Action), data); err != nil {
		s.logger.Warn("audit: publish to nats", "action", event.Action, "error", err)
	}
}

// DialNATS connects to url with reconnect settings suitable for a
// long-running audit publisher.
func DialNATS(url, clientName string, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url,
		nats.Name(clientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("audit: nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("audit: nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return conn, nil
}
