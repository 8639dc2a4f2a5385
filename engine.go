package evauthz

import (
	"context"
	"fmt"
	"time"

	"github.com/oarkflow/evauthz/logger"
)

// ============================================================================
// PERMISSION ENGINE
// ============================================================================

// Decision is the outcome of a permission check.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Reason    string    `json:"reason"`
	MatchedBy string    `json:"matched_by"`
	Trace     []string  `json:"trace,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	reasonNoActor       = "no actor"
	reasonNoGrant       = "no grant for role"
	reasonConditions    = "no grant condition satisfied"
	reasonUnconditioned = "unconditioned grant"
	reasonCondition     = "grant condition satisfied"
)

// EngineOption configures an Engine.
type EngineOption func(*Engine) error

// Engine evaluates (actor, resource, action, context) against a Catalog. Matching grants
// are OR'd: one satisfied grant is enough.
type Engine struct {
	catalog     *Catalog
	logger      logger.Logger
	audit       AuditSink
	denialTrace bool
	now         func() time.Time
}

// NewEngine binds an engine to a compiled catalog.
func NewEngine(catalog *Catalog, opts ...EngineOption) (*Engine, error) {
	if catalog == nil {
		return nil, configErrorf("engine", "nil catalog")
	}
	e := &Engine{
		catalog: catalog,
		logger:  logger.NewNullLogger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// WithAuditSink sets where denial traces go when denial tracing is enabled.
func WithAuditSink(s AuditSink) EngineOption {
	return func(e *Engine) error {
		e.audit = s
		return nil
	}
}

// WithDenialTrace turns on the per-denial diagnostic record. Off by default.
func WithDenialTrace(on bool) EngineOption {
	return func(e *Engine) error {
		e.denialTrace = on
		return nil
	}
}

// WithClock overrides the decision timestamp source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) error {
		if now == nil {
			return fmt.Errorf("nil clock")
		}
		e.now = now
		return nil
	}
}

// Catalog returns the catalog the engine evaluates against.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// Decide evaluates a request. Unknown resources or actions are programmer errors and
// are returned as errors; a missing or malformed context simply denies.
func (e *Engine) Decide(ctx context.Context, actor *Actor, resource Entity, action Action, c Context) (*Decision, error) {
	if err := checkIdentifiers(resource, action); err != nil {
		return nil, err
	}
	d := e.decide(actor, resource, action, c, false)
	if !d.Allowed && e.denialTrace {
		e.recordDenial(ctx, actor, resource, action, c)
	}
	return d, nil
}

// Can is Decide reduced to a boolean. It panics on unknown identifiers, which only
// happens when a call site passes something outside the Entity/Action enumerations.
func (e *Engine) Can(ctx context.Context, actor *Actor, resource Entity, action Action, c Context) bool {
	d, err := e.Decide(ctx, actor, resource, action, c)
	if err != nil {
		panic(err)
	}
	return d.Allowed
}

// Explain evaluates like Decide but always fills Trace with one line per candidate
// grant. It never writes to the audit sink.
func (e *Engine) Explain(_ context.Context, actor *Actor, resource Entity, action Action, c Context) (*Decision, error) {
	if err := checkIdentifiers(resource, action); err != nil {
		return nil, err
	}
	return e.decide(actor, resource, action, c, true), nil
}

func checkIdentifiers(resource Entity, action Action) error {
	if !KnownEntity(resource) {
		return fmt.Errorf("%w: %q", ErrUnknownResource, resource)
	}
	if !KnownAction(action) {
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return nil
}

func (e *Engine) decide(actor *Actor, resource Entity, action Action, c Context, includeTrace bool) *Decision {
	d := &Decision{Timestamp: e.now()}
	if actor == nil {
		d.Reason = reasonNoActor
		if includeTrace {
			d.Trace = append(d.Trace, "DENY: no actor")
		}
		return d
	}
	grants := e.catalog.matching(actor.Role, resource, action)
	if len(grants) == 0 {
		d.Reason = reasonNoGrant
		if includeTrace {
			d.Trace = append(d.Trace, fmt.Sprintf("DENY: role=%s has no grant for %s:%s", actor.Role, resource, action))
		}
		return d
	}
	for i := range grants {
		g := &grants[i]
		ok := Evaluate(g.Condition, c)
		if includeTrace {
			cond := "true"
			if g.Condition != nil {
				cond = g.Condition.String()
			}
			d.Trace = append(d.Trace, fmt.Sprintf("grant[%d] %s cond=%q result=%v", i, g.Resource, cond, ok))
		}
		if !ok {
			continue
		}
		d.Allowed = true
		d.MatchedBy = string(actor.Role)
		if g.Condition == nil {
			d.Reason = reasonUnconditioned
		} else {
			d.Reason = reasonCondition
		}
		if !includeTrace {
			return d
		}
	}
	if !d.Allowed {
		d.Reason = reasonConditions
	}
	return d
}

func (e *Engine) recordDenial(ctx context.Context, actor *Actor, resource Entity, action Action, c Context) {
	traced := e.decide(actor, resource, action, c, true)
	rec := &DenialRecord{
		ID:        newRecordID(),
		Timestamp: traced.Timestamp,
		Resource:  resource,
		Action:    action,
		Context:   c.Snapshot(),
		Trace:     traced.Trace,
	}
	if actor != nil {
		rec.TenantID = actor.TenantID
		rec.ActorID = actor.ID
		rec.Role = actor.Role
	}
	e.logger.Debug("permission denied",
		"tenant", rec.TenantID,
		"actor", rec.ActorID,
		"role", string(rec.Role),
		"resource", string(resource),
		"action", string(action),
		"reason", traced.Reason,
	)
	if e.audit == nil {
		return
	}
	if err := e.audit.RecordDenial(ctx, rec); err != nil {
		e.logger.Error("record denial", "error", err)
	}
}
