package evauthz

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oarkflow/evauthz/logger"
)

// ============================================================================
// AUDIT
// ============================================================================

// DenialRecord is the diagnostic emitted for a denied decision when denial tracing is
// on. It carries identifiers only.
type DenialRecord struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	TenantID  string    `json:"tenant_id"`
	ActorID   string    `json:"actor_id"`
	Role      Role      `json:"role"`
	Resource  Entity    `json:"resource"`
	Action    Action    `json:"action"`
	Context   []string  `json:"context"`
	Trace     []string  `json:"trace"`
}

// Security event names
const (
	EventUserProvisioned = "user-provisioned"
	EventUserRestored    = "user-restored"
	EventTagRejected     = "tag-rejected"
)

// SecurityEvent records an identity change made by a workflow.
type SecurityEvent struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	TenantID  string         `json:"tenant_id"`
	Event     string         `json:"event"`
	UserID    string         `json:"user_id,omitempty"`
	TagID     string         `json:"tag_id,omitempty"`
	StationID string         `json:"station_id,omitempty"`
	Action    string         `json:"action,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// AuditSink receives denial traces and security events.
type AuditSink interface {
	RecordDenial(ctx context.Context, rec *DenialRecord) error
	RecordSecurityEvent(ctx context.Context, ev *SecurityEvent) error
}

func newRecordID() string {
	return uuid.NewString()
}

// LoggerAuditSink writes audit records to a Logger.
type LoggerAuditSink struct {
	log logger.Logger
}

func NewLoggerAuditSink(l logger.Logger) *LoggerAuditSink {
	if l == nil {
		l = logger.NewNullLogger()
	}
	return &LoggerAuditSink{log: l}
}

func (s *LoggerAuditSink) RecordDenial(_ context.Context, rec *DenialRecord) error {
	s.log.Debug("authorization denied",
		"tenant", rec.TenantID,
		"actor", rec.ActorID,
		"role", string(rec.Role),
		"resource", string(rec.Resource),
		"action", string(rec.Action),
		"context", rec.Context,
		"trace", rec.Trace,
	)
	return nil
}

func (s *LoggerAuditSink) RecordSecurityEvent(_ context.Context, ev *SecurityEvent) error {
	s.log.Info("security event",
		"tenant", ev.TenantID,
		"event", ev.Event,
		"user", ev.UserID,
		"tag", ev.TagID,
		"station", ev.StationID,
		"action", ev.Action,
	)
	return nil
}

// MemoryAuditSink keeps records in memory; useful in tests and the CLI.
type MemoryAuditSink struct {
	mu      sync.RWMutex
	denials []*DenialRecord
	events  []*SecurityEvent
}

func NewMemoryAuditSink() *MemoryAuditSink {
	return &MemoryAuditSink{}
}

func (s *MemoryAuditSink) RecordDenial(_ context.Context, rec *DenialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dup := *rec
	s.denials = append(s.denials, &dup)
	return nil
}

func (s *MemoryAuditSink) RecordSecurityEvent(_ context.Context, ev *SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dup := *ev
	s.events = append(s.events, &dup)
	return nil
}

func (s *MemoryAuditSink) Denials() []*DenialRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*DenialRecord, len(s.denials))
	copy(out, s.denials)
	return out
}

// Events returns recorded security events, optionally filtered by event name.
func (s *MemoryAuditSink) Events(name string) []*SecurityEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*SecurityEvent, 0, len(s.events))
	for _, ev := range s.events {
		if name == "" || ev.Event == name {
			out = append(out, ev)
		}
	}
	return out
}
