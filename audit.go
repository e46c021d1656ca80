package authcore

import (
	"io"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
)

// AuditEvent is the canonical audit event. Severity is its only severity field.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the async dispatcher.
type AuditSink = internalaudit.Sink

// AuditSeverity grades an audit event.
type AuditSeverity = internalaudit.Severity

const (
	SeverityInfo     = internalaudit.SeverityInfo
	SeverityWarning  = internalaudit.SeverityWarning
	SeverityCritical = internalaudit.SeverityCritical
)

// AuditSeverities lists every severity in reporting order.
var AuditSeverities = internalaudit.Severities

type (
	NoOpSink       = internalaudit.NoOpSink
	ChannelSink    = internalaudit.ChannelSink
	JSONWriterSink = internalaudit.JSONWriterSink
	MultiSink      = internalaudit.MultiSink
)

// NewChannelSink returns a sink that buffers events into a channel.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink writing one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
