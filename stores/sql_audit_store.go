package stores

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/evauthz"
)

// SQLAuditStore persists denial traces and security events in SQL
type SQLAuditStore struct {
	db *squealx.DB
}

func NewSQLAuditStore(db *squealx.DB) (*SQLAuditStore, error) {
	if db == nil {
		return nil, errors.New("audit store: nil db")
	}
	return &SQLAuditStore{db: db}, nil
}

func (s *SQLAuditStore) RecordDenial(ctx context.Context, rec *evauthz.DenialRecord) error {
	ctxB, _ := json.Marshal(rec.Context)
	traceB, _ := json.Marshal(rec.Trace)
	q := `INSERT INTO denials(id, timestamp, tenant_id, actor_id, role, resource, action, context_json, trace_json) VALUES(:id, :timestamp, :tenant_id, :actor_id, :role, :resource, :action, :context_json, :trace_json)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":           rec.ID,
		"timestamp":    sqlNullTimeOrNil(rec.Timestamp),
		"tenant_id":    rec.TenantID,
		"actor_id":     rec.ActorID,
		"role":         string(rec.Role),
		"resource":     string(rec.Resource),
		"action":       string(rec.Action),
		"context_json": string(ctxB),
		"trace_json":   string(traceB),
	})
	return err
}

func (s *SQLAuditStore) RecordSecurityEvent(ctx context.Context, ev *evauthz.SecurityEvent) error {
	metaB, _ := json.Marshal(ev.Metadata)
	q := `INSERT INTO security_events(id, timestamp, tenant_id, event, user_id, tag_id, station_id, action, metadata_json) VALUES(:id, :timestamp, :tenant_id, :event, :user_id, :tag_id, :station_id, :action, :metadata_json)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":            ev.ID,
		"timestamp":     sqlNullTimeOrNil(ev.Timestamp),
		"tenant_id":     ev.TenantID,
		"event":         ev.Event,
		"user_id":       ev.UserID,
		"tag_id":        ev.TagID,
		"station_id":    ev.StationID,
		"action":        ev.Action,
		"metadata_json": string(metaB),
	})
	return err
}

// AuditFilter narrows audit queries. Zero fields are ignored.
type AuditFilter struct {
	TenantID  string
	ActorID   string
	Event     string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

func applyFilter(q string, filter AuditFilter, actorColumn string) (string, map[string]any) {
	params := map[string]any{}
	if filter.TenantID != "" {
		q += " AND tenant_id = :tenant_id"
		params["tenant_id"] = filter.TenantID
	}
	if filter.ActorID != "" {
		q += " AND " + actorColumn + " = :actor"
		params["actor"] = filter.ActorID
	}
	if !filter.StartTime.IsZero() {
		q += " AND timestamp >= :start"
		params["start"] = sqlNullTimeOrNil(filter.StartTime)
	}
	if !filter.EndTime.IsZero() {
		q += " AND timestamp <= :end"
		params["end"] = sqlNullTimeOrNil(filter.EndTime)
	}
	return q, params
}

func limitClause(q string, params map[string]any, limit int) string {
	q += " ORDER BY timestamp"
	if limit > 0 {
		params["limit"] = limit
		return q + " LIMIT :limit"
	}
	return q + " LIMIT 100"
}

func (s *SQLAuditStore) ListDenials(ctx context.Context, filter AuditFilter) ([]*evauthz.DenialRecord, error) {
	q, params := applyFilter(`SELECT id, timestamp, tenant_id, actor_id, role, resource, action, context_json, trace_json FROM denials WHERE 1=1`, filter, "actor_id")
	q = limitClause(q, params, filter.Limit)
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*evauthz.DenialRecord, 0)
	for r.Next() {
		var id, tenant, actor, role, resource, action, ctxJSON, traceJSON string
		var timestampRaw interface{}
		if err := r.Scan(&id, &timestampRaw, &tenant, &actor, &role, &resource, &action, &ctxJSON, &traceJSON); err != nil {
			return nil, err
		}
		rec := &evauthz.DenialRecord{
			ID:        id,
			Timestamp: scanTime(timestampRaw),
			TenantID:  tenant,
			ActorID:   actor,
			Role:      evauthz.Role(role),
			Resource:  evauthz.Entity(resource),
			Action:    evauthz.Action(action),
		}
		_ = json.Unmarshal([]byte(ctxJSON), &rec.Context)
		_ = json.Unmarshal([]byte(traceJSON), &rec.Trace)
		out = append(out, rec)
	}
	return out, nil
}

func (s *SQLAuditStore) ListSecurityEvents(ctx context.Context, filter AuditFilter) ([]*evauthz.SecurityEvent, error) {
	q, params := applyFilter(`SELECT id, timestamp, tenant_id, event, user_id, tag_id, station_id, action, metadata_json FROM security_events WHERE 1=1`, filter, "user_id")
	if filter.Event != "" {
		q += " AND event = :event"
		params["event"] = filter.Event
	}
	q = limitClause(q, params, filter.Limit)
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*evauthz.SecurityEvent, 0)
	for r.Next() {
		ev := &evauthz.SecurityEvent{}
		var timestampRaw interface{}
		var metaJSON string
		if err := r.Scan(&ev.ID, &timestampRaw, &ev.TenantID, &ev.Event, &ev.UserID, &ev.TagID, &ev.StationID, &ev.Action, &metaJSON); err != nil {
			return nil, err
		}
		ev.Timestamp = scanTime(timestampRaw)
		_ = json.Unmarshal([]byte(metaJSON), &ev.Metadata)
		out = append(out, ev)
	}
	return out, nil
}
