package stores

import (
	"context"
	"testing"
	"time"

	"github.com/oarkflow/evauthz"
)

func TestSQLAuditStoreDenialsFromEngine(t *testing.T) {
	ctx := context.Background()
	store, _ := NewSQLAuditStore(newTestDB(t))
	catalog, err := evauthz.DefaultCatalog()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	engine, err := evauthz.NewEngine(catalog,
		evauthz.WithAuditSink(store),
		evauthz.WithDenialTrace(true),
		evauthz.WithClock(func() time.Time { return testNow }),
	)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	actor := &evauthz.Actor{ID: "u1", TenantID: "t1", Role: evauthz.RoleBasic}
	if engine.Can(ctx, actor, evauthz.EntityTenant, evauthz.ActionCreate, nil) {
		t.Fatalf("basic users cannot create tenants")
	}

	denials, err := store.ListDenials(ctx, AuditFilter{})
	if err != nil {
		t.Fatalf("list denials: %v", err)
	}
	if len(denials) != 1 {
		t.Fatalf("expected 1 denial, got %d", len(denials))
	}
	got := denials[0]
	if got.ActorID != "u1" || got.Resource != evauthz.EntityTenant || got.Action != evauthz.ActionCreate {
		t.Fatalf("unexpected denial %+v", got)
	}
	if !got.Timestamp.Equal(testNow) {
		t.Fatalf("expected timestamp %s got %s", testNow, got.Timestamp)
	}
	if len(got.Trace) == 0 {
		t.Fatalf("expected a trace to be stored")
	}
}

func TestSQLAuditStoreEventFilters(t *testing.T) {
	ctx := context.Background()
	store, _ := NewSQLAuditStore(newTestDB(t))
	events := []*evauthz.SecurityEvent{
		{ID: "e1", Timestamp: testNow, TenantID: "t1", Event: evauthz.EventUserProvisioned, UserID: "u1", TagID: "A"},
		{ID: "e2", Timestamp: testNow.Add(time.Minute), TenantID: "t1", Event: evauthz.EventTagRejected, UserID: "u1", TagID: "A"},
		{ID: "e3", Timestamp: testNow.Add(2 * time.Minute), TenantID: "t1", Event: evauthz.EventUserRestored, UserID: "u2", TagID: "B",
			Metadata: map[string]any{"status": "inactive"}},
		{ID: "e4", Timestamp: testNow.Add(3 * time.Minute), TenantID: "t2", Event: evauthz.EventUserProvisioned, UserID: "u3"},
	}
	for _, ev := range events {
		if err := store.RecordSecurityEvent(ctx, ev); err != nil {
			t.Fatalf("record %s: %v", ev.ID, err)
		}
	}

	byTenant, err := store.ListSecurityEvents(ctx, AuditFilter{TenantID: "t1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(byTenant) != 3 || byTenant[0].ID != "e1" || byTenant[2].ID != "e3" {
		t.Fatalf("expected e1..e3 in order, got %d events", len(byTenant))
	}
	if byTenant[2].Metadata["status"] != "inactive" {
		t.Fatalf("metadata not restored: %+v", byTenant[2].Metadata)
	}

	byUser, _ := store.ListSecurityEvents(ctx, AuditFilter{ActorID: "u1"})
	if len(byUser) != 2 {
		t.Fatalf("expected 2 events for u1, got %d", len(byUser))
	}

	window, _ := store.ListSecurityEvents(ctx, AuditFilter{
		StartTime: testNow.Add(30 * time.Second),
		EndTime:   testNow.Add(150 * time.Second),
	})
	if len(window) != 2 || window[0].ID != "e2" || window[1].ID != "e3" {
		t.Fatalf("expected e2 and e3 in window, got %d", len(window))
	}

	limited, _ := store.ListSecurityEvents(ctx, AuditFilter{Limit: 1})
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
}

func TestNewSQLAuditStoreRequiresDB(t *testing.T) {
	if store, err := NewSQLAuditStore(nil); err == nil || store != nil {
		t.Fatalf("expected nil db to be refused, got %v %v", store, err)
	}
}
