package evauthz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectorTableScenarios(t *testing.T) {
	base := ConnectorInputs{BaseStart: true, BaseStop: true}

	t.Run("basic, org off, access control, same user", func(t *testing.T) {
		in := base
		in.AccessControlEnabled = true
		in.SameUserAsTransaction = true
		f := ApplyConnectorTable(RoleBasic, in)
		assert.True(t, f.CanStop)
		assert.True(t, f.CanView)
	})

	t.Run("basic, org off, access control, other user", func(t *testing.T) {
		in := base
		in.AccessControlEnabled = true
		f := ApplyConnectorTable(RoleBasic, in)
		assert.False(t, f.CanStop)
		assert.False(t, f.CanView)
	})

	t.Run("basic, org on, assigned, allow all to stop", func(t *testing.T) {
		in := base
		in.OrgActive = true
		in.AccessControlEnabled = true
		in.AssignedToSite = true
		in.AllowAllToStop = true
		f := ApplyConnectorTable(RoleBasic, in)
		assert.True(t, f.CanStop)
		assert.False(t, f.CanView)
	})

	t.Run("demo never starts or stops", func(t *testing.T) {
		for mask := 0; mask < 1<<7; mask++ {
			in := ConnectorInputs{
				OrgActive:             mask&1 != 0,
				AccessControlEnabled:  mask&2 != 0,
				AllowAllToStop:        mask&4 != 0,
				AssignedToSite:        mask&8 != 0,
				SameUserAsTransaction: mask&16 != 0,
				BaseStart:             mask&32 != 0,
				BaseStop:              mask&64 != 0,
			}
			f := ApplyConnectorTable(RoleDemo, in)
			require.False(t, f.CanStart, "mask %b", mask)
			require.False(t, f.CanStop, "mask %b", mask)
		}
	})

	t.Run("admin, org on, not assigned", func(t *testing.T) {
		in := base
		in.OrgActive = true
		f := ApplyConnectorTable(RoleAdmin, in)
		assert.Equal(t, ConnectorFlags{}, f)
	})
}

func TestConnectorTableNeverExceedsBase(t *testing.T) {
	roles := append([]Role{"unlisted"}, knownRoles...)
	for _, role := range roles {
		for mask := 0; mask < 1<<5; mask++ {
			in := ConnectorInputs{
				OrgActive:             mask&1 != 0,
				AccessControlEnabled:  mask&2 != 0,
				AllowAllToStop:        mask&4 != 0,
				AssignedToSite:        mask&8 != 0,
				SameUserAsTransaction: mask&16 != 0,
			}
			f := ApplyConnectorTable(role, in)
			require.False(t, f.CanStart, "%s mask %b", role, mask)
			require.False(t, f.CanStop, "%s mask %b", role, mask)
		}
	}
}

func TestConnectorTableUnlistedRoles(t *testing.T) {
	f := ApplyConnectorTable(RoleSuperAdmin, ConnectorInputs{OrgActive: true, BaseStart: true, BaseStop: false})
	assert.Equal(t, ConnectorFlags{CanStart: true}, f)
}

type connectorFixture struct {
	org     *MemoryOrgStore
	calc    *ConnectorAuthorizer
	station *ChargingStation
}

func newConnectorFixture(t *testing.T) *connectorFixture {
	t.Helper()
	org := NewMemoryOrgStore()
	org.PutSite(&Site{ID: "s1", TenantID: "t1", AllowAllUsersToStop: false})
	org.PutSiteArea(&SiteArea{ID: "sa1", TenantID: "t1", SiteID: "s1", AccessControl: true})
	org.PutTransaction(&Transaction{ID: 100, TenantID: "t1", UserID: "u1", SiteID: "s1"})
	org.AddSiteMember("t1", "s1", "u1")
	org.AddSiteMember("t1", "s1", "u2")
	station := &ChargingStation{
		ID: "cs1", TenantID: "t1", SiteAreaID: "sa1",
		Connectors: []Connector{{ID: 1, ActiveTransactionID: 100}, {ID: 2}},
	}
	calc := NewConnectorAuthorizer(newTestAuthorizer(t), org, org)
	return &connectorFixture{org: org, calc: calc, station: station}
}

func orgActor(id string, role Role) *Actor {
	return &Actor{TenantID: "t1", ID: id, Role: role, Sites: []string{"s1"}, Components: []string{ComponentOrganization}}
}

func TestComputeSameUserCanStop(t *testing.T) {
	fx := newConnectorFixture(t)
	ctx := context.Background()

	f, err := fx.calc.Compute(ctx, orgActor("u1", RoleBasic), fx.station, &fx.station.Connectors[0], nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ConnectorFlags{ConnectorID: 1, CanStart: true, CanStop: true, CanView: true}, f)

	f, err = fx.calc.Compute(ctx, orgActor("u2", RoleBasic), fx.station, &fx.station.Connectors[0], nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ConnectorFlags{ConnectorID: 1, CanStart: true}, f)
}

func TestComputeAdminNotAssigned(t *testing.T) {
	fx := newConnectorFixture(t)
	admin := orgActor("a1", RoleAdmin)
	f, err := fx.calc.Compute(context.Background(), admin, fx.station, &fx.station.Connectors[1], nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ConnectorFlags{ConnectorID: 2}, f)

	fx.org.AddSiteMember("t1", "s1", "a1")
	f, err = fx.calc.Compute(context.Background(), admin, fx.station, &fx.station.Connectors[1], nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ConnectorFlags{ConnectorID: 2, CanStart: true, CanStop: true, CanView: true}, f)
}

func TestComputeOrgFeatureOff(t *testing.T) {
	fx := newConnectorFixture(t)
	actor := &Actor{TenantID: "t1", ID: "u1", Role: RoleBasic}
	station := &ChargingStation{ID: "cs2", TenantID: "t1", Connectors: []Connector{{ID: 1, ActiveTransactionID: 100}}}
	f, err := fx.calc.Compute(context.Background(), actor, station, &station.Connectors[0], nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ConnectorFlags{ConnectorID: 1, CanStart: true, CanStop: true, CanView: true}, f)

	other := &Actor{TenantID: "t1", ID: "u2", Role: RoleBasic}
	f, err = fx.calc.Compute(context.Background(), other, station, &station.Connectors[0], nil, nil)
	require.NoError(t, err)
	assert.False(t, f.CanStop)
	assert.False(t, f.CanView)
}

func TestComputeMissingHierarchyIsConfigurationError(t *testing.T) {
	fx := newConnectorFixture(t)
	orphan := &ChargingStation{ID: "lost", TenantID: "t1", Connectors: []Connector{{ID: 1}}}
	_, err := fx.calc.Compute(context.Background(), orgActor("u1", RoleBasic), orphan, &orphan.Connectors[0], nil, nil)
	var ce *ConfigurationError
	require.True(t, errors.As(err, &ce), "got %v", err)

	noSite := &ChargingStation{ID: "half", TenantID: "t1", SiteAreaID: "sa-x", Connectors: []Connector{{ID: 1}}}
	fx.org.PutSiteArea(&SiteArea{ID: "sa-x", TenantID: "t1", SiteID: "gone"})
	_, err = fx.calc.Compute(context.Background(), orgActor("u1", RoleBasic), noSite, &noSite.Connectors[0], nil, nil)
	require.True(t, errors.As(err, &ce), "got %v", err)
}

func TestComputeMissingTransactionIsInconsistentState(t *testing.T) {
	fx := newConnectorFixture(t)
	fx.station.Connectors[1].ActiveTransactionID = 404
	_, err := fx.calc.Compute(context.Background(), orgActor("u1", RoleBasic), fx.station, &fx.station.Connectors[1], nil, nil)
	var ie *InconsistentStateError
	require.True(t, errors.As(err, &ie), "got %v", err)
	assert.Equal(t, "404", ie.ID)
	assert.Equal(t, EntityTransaction, ie.Entity)
}

func TestComputeAll(t *testing.T) {
	fx := newConnectorFixture(t)
	flags, err := fx.calc.ComputeAll(context.Background(), orgActor("u1", RoleBasic), fx.station, nil, nil)
	require.NoError(t, err)
	require.Len(t, flags, 2)
	assert.Equal(t, ConnectorFlags{ConnectorID: 1, CanStart: true, CanStop: true, CanView: true}, flags[0])
	assert.Equal(t, ConnectorFlags{ConnectorID: 2, CanStart: true}, flags[1])

	fx.station.Connectors[1].ActiveTransactionID = 404
	_, err = fx.calc.ComputeAll(context.Background(), orgActor("u1", RoleBasic), fx.station, nil, nil)
	var ie *InconsistentStateError
	require.True(t, errors.As(err, &ie))
}
