package evauthz

import (
	"context"
	"errors"
	"testing"
)

type guardFixture struct {
	guard    *SessionGuard
	identity *MemoryIdentityStore
	org      *MemoryOrgStore
}

func newGuardFixture(t *testing.T, components ...string) *guardFixture {
	t.Helper()
	ctx := context.Background()
	identity := NewMemoryIdentityStore()
	org := NewMemoryOrgStore()
	org.PutTenant(&Tenant{ID: "t1", Name: "Fleet", Components: components})
	org.PutSite(&Site{ID: "s1", TenantID: "t1"})
	org.PutSiteArea(&SiteArea{ID: "sa1", TenantID: "t1", SiteID: "s1", AccessControl: true})
	if err := identity.SaveUser(ctx, &User{
		ID: "u1", TenantID: "t1", Role: RoleBasic, Status: UserStatusActive,
		Tags: []string{"GOOD"}, SiteIDs: []string{"s1"},
	}); err != nil {
		t.Fatalf("save user: %v", err)
	}
	if err := identity.SaveUser(ctx, &User{
		ID: "u2", TenantID: "t1", Role: RoleBasic, Status: UserStatusActive,
		Tags: []string{"ELSEWHERE"}, SiteIDs: []string{"s9"},
	}); err != nil {
		t.Fatalf("save user: %v", err)
	}
	resolver := NewTagResolver(identity, &MemoryNotifier{}, NewMemoryAuditSink())
	guard := NewSessionGuard(resolver, org, org, newTestAuthorizer(t), nil)
	return &guardFixture{guard: guard, identity: identity, org: org}
}

func TestGuardAuthorizesSiteMember(t *testing.T) {
	fx := newGuardFixture(t, ComponentOrganization)
	station := &ChargingStation{ID: "cs1", TenantID: "t1", SiteAreaID: "sa1"}
	u, ok, err := fx.guard.AuthorizeTag(context.Background(), "t1", station, "GOOD", ActionRemoteStart)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if !ok || u.ID != "u1" {
		t.Fatalf("expected u1 to be authorized, got %v %v", u, ok)
	}
	_, ok, err = fx.guard.AuthorizeTag(context.Background(), "t1", station, "ELSEWHERE", ActionRemoteStop)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if ok {
		t.Fatalf("non-member must be denied")
	}
}

func TestGuardWithoutOrganizationTreatsStationAsUnattached(t *testing.T) {
	fx := newGuardFixture(t)
	station := &ChargingStation{ID: "cs1", TenantID: "t1"}
	_, ok, err := fx.guard.AuthorizeTag(context.Background(), "t1", station, "ELSEWHERE", ActionRemoteStart)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if !ok {
		t.Fatalf("station outside any site should be open")
	}
}

func TestGuardUnknownTagProvisions(t *testing.T) {
	fx := newGuardFixture(t, ComponentOrganization)
	station := &ChargingStation{ID: "cs1", TenantID: "t1", SiteAreaID: "sa1"}
	_, ok, err := fx.guard.AuthorizeTag(context.Background(), "t1", station, "FRESH", ActionRemoteStart)
	if ok || !errors.Is(err, ErrIdentityProvisioning) {
		t.Fatalf("expected provisioning error, got ok=%v err=%v", ok, err)
	}
	u, _ := fx.identity.FindUserByTag(context.Background(), "t1", "FRESH")
	if u == nil || u.Status != UserStatusInactive {
		t.Fatalf("placeholder not stored: %+v", u)
	}
}

func TestGuardMisconfiguredStation(t *testing.T) {
	fx := newGuardFixture(t, ComponentOrganization)
	station := &ChargingStation{ID: "loose", TenantID: "t1"}
	_, _, err := fx.guard.AuthorizeTag(context.Background(), "t1", station, "GOOD", ActionRemoteStart)
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestGuardUnknownTenant(t *testing.T) {
	fx := newGuardFixture(t)
	station := &ChargingStation{ID: "cs1", TenantID: "t1"}
	fx.guard.tenants = NewMemoryOrgStore()
	_, _, err := fx.guard.AuthorizeTag(context.Background(), "t1", station, "GOOD", ActionRemoteStart)
	var ie *InconsistentStateError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InconsistentStateError, got %v", err)
	}
}

func TestGuardRejectsUnknownActionBeforeResolving(t *testing.T) {
	fx := newGuardFixture(t, ComponentOrganization)
	station := &ChargingStation{ID: "cs1", TenantID: "t1", SiteAreaID: "sa1"}
	for _, tag := range []string{"GOOD", "NEVER-SEEN"} {
		u, ok, err := fx.guard.AuthorizeTag(context.Background(), "t1", station, tag, Action("Authorize"))
		if !errors.Is(err, ErrUnknownAction) {
			t.Fatalf("%s: expected ErrUnknownAction, got %v", tag, err)
		}
		if u != nil || ok {
			t.Fatalf("%s: expected no user, got %v %v", tag, u, ok)
		}
	}
	if n := fx.identity.Count("t1"); n != 2 {
		t.Fatalf("expected no user provisioned, got %d users", n)
	}
}
