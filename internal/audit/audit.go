// Package audit persists security-relevant events and feeds the live
// activity stream. Recording is strictly best-effort: an audit failure is
// logged and must never fail the flow that triggered it.
package audit

import (
	"context"
	"time"

	"github.com/Ahmedtambal/ZomiSaas-sub001/internal/auth"
	"github.com/Ahmedtambal/ZomiSaas-sub001/internal/ids"
	"github.com/Ahmedtambal/ZomiSaas-sub001/internal/obs"
	"github.com/Ahmedtambal/ZomiSaas-sub001/internal/stream"
)

// Meta is per-request context attached to every recorded event.
type Meta struct {
	RequestID string
	IP        string
	UserAgent string
}

type metaKey struct{}

// WithRequestMeta attaches request metadata to the context for later
// recording.
func WithRequestMeta(ctx context.Context, m Meta) context.Context {
	return context.WithValue(ctx, metaKey{}, m)
}

// RequestMeta returns the request metadata, if present.
func RequestMeta(ctx context.Context) (Meta, bool) {
	m, ok := ctx.Value(metaKey{}).(Meta)
	return m, ok
}

// Recorder writes audit entries to the store and publishes them to the hub.
type Recorder struct {
	sink auth.AuditStore
	hub  *stream.Hub
	now  func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithRecorderClock overrides the time source (useful for tests).
func WithRecorderClock(fn func() time.Time) Option {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRecorder constructs a Recorder. The hub may be nil when no live feed is
// wanted.
func NewRecorder(sink auth.AuditStore, hub *stream.Hub, opts ...Option) *Recorder {
	r := &Recorder{
		sink: sink,
		hub:  hub,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record persists the event, emits a structured log line, and publishes it to
// live subscribers. Failures are swallowed after logging.
func (r *Recorder) Record(ctx context.Context, e auth.AuditEvent) {
	entry := &auth.AuditEntry{
		ID:             ids.New(),
		UserID:         e.UserID,
		OrganizationID: e.OrganizationID,
		Action:         e.Action,
		Resource:       e.Resource,
		Details:        e.Details,
		CreatedAt:      r.now().UTC(),
	}
	if m, ok := RequestMeta(ctx); ok {
		entry.IPAddress = m.IP
		entry.UserAgent = m.UserAgent
		if m.RequestID != "" {
			if entry.Details == nil {
				entry.Details = map[string]any{}
			}
			entry.Details["request_id"] = m.RequestID
		}
	}

	if r.sink != nil {
		if err := r.sink.Append(ctx, entry); err != nil {
			obs.Log("error", "audit_append_failed", map[string]any{
				"action": entry.Action,
				"error":  err.Error(),
			})
		}
	}

	obs.Log("info", "audit", map[string]any{
		"action":          entry.Action,
		"resource":        entry.Resource,
		"user_id":         entry.UserID,
		"organization_id": entry.OrganizationID,
	})

	if r.hub != nil && entry.OrganizationID != "" {
		r.hub.Publish(stream.Event{
			ID:             entry.ID,
			Action:         entry.Action,
			Resource:       entry.Resource,
			UserID:         entry.UserID,
			OrganizationID: entry.OrganizationID,
			Details:        entry.Details,
			At:             entry.CreatedAt,
		})
	}
}
