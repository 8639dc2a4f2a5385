package stores

import (
	"context"
	"testing"

	"github.com/oarkflow/evauthz"
)

func seedOrg(t *testing.T, s *SQLOrgStore) {
	t.Helper()
	ctx := context.Background()
	if err := s.SaveTenant(ctx, &evauthz.Tenant{ID: "t1", Name: "Fleet", Components: []string{evauthz.ComponentOrganization}}); err != nil {
		t.Fatalf("save tenant: %v", err)
	}
	if err := s.SaveSite(ctx, &evauthz.Site{ID: "s1", TenantID: "t1", CompanyID: "c1", Name: "Depot", AllowAllUsersToStop: true}); err != nil {
		t.Fatalf("save site: %v", err)
	}
	if err := s.SaveSiteArea(ctx, &evauthz.SiteArea{ID: "a1", TenantID: "t1", SiteID: "s1", Name: "Bay", AccessControl: true}); err != nil {
		t.Fatalf("save site area: %v", err)
	}
	if err := s.SaveChargingStation(ctx, &evauthz.ChargingStation{ID: "cs1", TenantID: "t1", SiteAreaID: "a1"}); err != nil {
		t.Fatalf("save station: %v", err)
	}
}

func TestSQLOrgStoreTenant(t *testing.T) {
	s := NewSQLOrgStore(newTestDB(t))
	seedOrg(t, s)
	tenant, err := s.FindTenant(context.Background(), "t1")
	if err != nil {
		t.Fatalf("find tenant: %v", err)
	}
	if tenant == nil || !tenant.HasComponent(evauthz.ComponentOrganization) {
		t.Fatalf("expected tenant with organization component, got %+v", tenant)
	}
	missing, err := s.FindTenant(context.Background(), "t9")
	if err != nil || missing != nil {
		t.Fatalf("expected nil tenant, got %+v err=%v", missing, err)
	}
}

func TestSQLOrgStoreHierarchy(t *testing.T) {
	ctx := context.Background()
	s := NewSQLOrgStore(newTestDB(t))
	seedOrg(t, s)

	// the station passed in does not carry its area; the stored row does
	area, err := s.SiteAreaOfStation(ctx, &evauthz.ChargingStation{ID: "cs1", TenantID: "t1"})
	if err != nil {
		t.Fatalf("site area: %v", err)
	}
	if area == nil || area.ID != "a1" || !area.AccessControl {
		t.Fatalf("unexpected area %+v", area)
	}
	site, err := s.SiteOfSiteArea(ctx, area)
	if err != nil {
		t.Fatalf("site: %v", err)
	}
	if site == nil || site.ID != "s1" || !site.AllowAllUsersToStop || site.CompanyID != "c1" {
		t.Fatalf("unexpected site %+v", site)
	}

	orphan, err := s.SiteAreaOfStation(ctx, &evauthz.ChargingStation{ID: "cs-unknown", TenantID: "t1"})
	if err != nil || orphan != nil {
		t.Fatalf("expected no area for unknown station, got %+v err=%v", orphan, err)
	}
	noSite, err := s.SiteOfSiteArea(ctx, &evauthz.SiteArea{ID: "a2", TenantID: "t1"})
	if err != nil || noSite != nil {
		t.Fatalf("expected no site for detached area, got %+v err=%v", noSite, err)
	}
}

func TestSQLOrgStoreMembership(t *testing.T) {
	ctx := context.Background()
	s := NewSQLOrgStore(newTestDB(t))
	site := &evauthz.Site{ID: "s1", TenantID: "t1"}

	if err := s.AddSiteMember(ctx, "t1", "s1", "u1"); err != nil {
		t.Fatalf("add member: %v", err)
	}
	// adding twice is a no-op
	if err := s.AddSiteMember(ctx, "t1", "s1", "u1"); err != nil {
		t.Fatalf("add member again: %v", err)
	}
	ok, err := s.IsUserMemberOfSite(ctx, site, "u1")
	if err != nil || !ok {
		t.Fatalf("expected u1 to be a member, ok=%v err=%v", ok, err)
	}
	if ok, _ := s.IsUserMemberOfSite(ctx, site, "u2"); ok {
		t.Fatalf("u2 is not a member")
	}
	if err := s.RemoveSiteMember(ctx, "t1", "s1", "u1"); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	if ok, _ := s.IsUserMemberOfSite(ctx, site, "u1"); ok {
		t.Fatalf("u1 should have been removed")
	}
	if ok, _ := s.IsUserMemberOfSite(ctx, nil, "u1"); ok {
		t.Fatalf("nil site has no members")
	}
}

func TestSQLOrgStoreTransactions(t *testing.T) {
	ctx := context.Background()
	s := NewSQLOrgStore(newTestDB(t))
	tx := &evauthz.Transaction{
		ID: 42, TenantID: "t1", ChargingStationID: "cs1", ConnectorID: 2,
		SiteID: "s1", SiteAreaID: "a1", TagID: "AB12", UserID: "u1", StartedAt: testNow,
	}
	if err := s.SaveTransaction(ctx, tx); err != nil {
		t.Fatalf("save transaction: %v", err)
	}
	got, err := s.FindTransaction(ctx, "t1", 42)
	if err != nil {
		t.Fatalf("find transaction: %v", err)
	}
	if got == nil || got.UserID != "u1" || got.ConnectorID != 2 || got.StopUserID != "" || !got.StartedAt.Equal(testNow) {
		t.Fatalf("unexpected transaction %+v", got)
	}
	if missing, err := s.FindTransaction(ctx, "t1", 43); err != nil || missing != nil {
		t.Fatalf("expected nil transaction, got %+v err=%v", missing, err)
	}
}

func TestConnectorAuthorizerOverSQLOrgStore(t *testing.T) {
	ctx := context.Background()
	s := NewSQLOrgStore(newTestDB(t))
	seedOrg(t, s)
	if err := s.AddSiteMember(ctx, "t1", "s1", "u1"); err != nil {
		t.Fatalf("add member: %v", err)
	}
	if err := s.SaveTransaction(ctx, &evauthz.Transaction{ID: 7, TenantID: "t1", ChargingStationID: "cs1", ConnectorID: 1, SiteID: "s1", UserID: "u2"}); err != nil {
		t.Fatalf("save transaction: %v", err)
	}
	catalog, err := evauthz.DefaultCatalog()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	engine, err := evauthz.NewEngine(catalog)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	calc := evauthz.NewConnectorAuthorizer(evauthz.NewAuthorizer(engine), s, s)

	actor := &evauthz.Actor{
		ID: "u1", TenantID: "t1", Role: evauthz.RoleBasic,
		Sites: []string{"s1"}, Components: []string{evauthz.ComponentOrganization},
	}
	station := &evauthz.ChargingStation{ID: "cs1", TenantID: "t1", SiteAreaID: "a1"}
	flags, err := calc.Compute(ctx, actor, station, &evauthz.Connector{ID: 1, ActiveTransactionID: 7}, nil, nil)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	// the site lets anyone stop, but another user's session stays hidden
	if !flags.CanStop || flags.CanView {
		t.Fatalf("unexpected flags %+v", flags)
	}
}
