// Package audit defines the write-only sink for authentication events.
// The sink is strictly best-effort: a failing or slow sink must never block
// or fail the operation that produced the event.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Result represents the outcome of an audited action.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
)

// Event is a single audit record.
type Event struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	UserID    string         `json:"user_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Result    Result         `json:"result"`
	Error     string         `json:"error,omitempty"`
	IP        string         `json:"ip,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Sink receives audit events.
type Sink interface {
	Record(ctx context.Context, event Event) error
}

// EventOption applies optional fields to an Event.
type EventOption func(*Event)

// WithUser attaches the acting user.
func WithUser(userID string) EventOption {
	return func(e *Event) { e.UserID = userID }
}

// WithSession attaches the session handle.
func WithSession(sessionID string) EventOption {
	return func(e *Event) { e.SessionID = sessionID }
}

// WithConnection attaches client connection details.
func WithConnection(ip, userAgent string) EventOption {
	return func(e *Event) {
		e.IP = ip
		e.UserAgent = userAgent
	}
}

// WithMetadata adds a metadata entry.
func WithMetadata(key string, value any) EventOption {
	return func(e *Event) {
		if e.Metadata == nil {
			e.Metadata = make(map[string]any)
		}
		e.Metadata[key] = value
	}
}

// WithError marks the event as failed and records the cause.
func WithError(err error) EventOption {
	return func(e *Event) {
		e.Result = ResultFailure
		if err != nil {
			e.Error = err.Error()
		}
	}
}

// Record builds an event and hands it to the sink, swallowing any sink
// error. This is the only way core components emit audit events, which
// keeps the never-blocks contract in one place.
func Record(ctx context.Context, sink Sink, action string, opts ...EventOption) {
	if sink == nil {
		return
	}

	event := Event{
		ID:        uuid.New().String(),
		Action:    action,
		Result:    ResultSuccess,
		CreatedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(&event)
	}

	_ = sink.Record(ctx, event)
}

// SlogSink writes audit events to a structured logger.
type SlogSink struct {
	log *slog.Logger
}

// NewSlogSink creates a sink logging at INFO level under the "audit" component.
func NewSlogSink(log *slog.Logger) *SlogSink {
	return &SlogSink{log: log}
}

func (s *SlogSink) Record(ctx context.Context, event Event) error {
	s.log.InfoContext(ctx, "audit event",
		slog.String("component", "audit"),
		slog.String("audit_id", event.ID),
		slog.String("action", event.Action),
		slog.String("result", string(event.Result)),
		slog.String("user_id", event.UserID),
		slog.String("session_id", event.SessionID),
		slog.String("ip", event.IP),
		slog.String("error", event.Error),
	)
	return nil
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Record(context.Context, Event) error { return nil }
