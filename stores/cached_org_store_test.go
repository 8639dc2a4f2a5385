package stores

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oarkflow/evauthz"
)

type countingOrgStore struct {
	evauthz.OrgStore
	areas, sites, members int32
}

func (c *countingOrgStore) SiteAreaOfStation(ctx context.Context, station *evauthz.ChargingStation) (*evauthz.SiteArea, error) {
	atomic.AddInt32(&c.areas, 1)
	return c.OrgStore.SiteAreaOfStation(ctx, station)
}

func (c *countingOrgStore) SiteOfSiteArea(ctx context.Context, area *evauthz.SiteArea) (*evauthz.Site, error) {
	atomic.AddInt32(&c.sites, 1)
	return c.OrgStore.SiteOfSiteArea(ctx, area)
}

func (c *countingOrgStore) IsUserMemberOfSite(ctx context.Context, site *evauthz.Site, userID string) (bool, error) {
	atomic.AddInt32(&c.members, 1)
	return c.OrgStore.IsUserMemberOfSite(ctx, site, userID)
}

func newCountingOrg() *countingOrgStore {
	mem := evauthz.NewMemoryOrgStore()
	mem.PutSite(&evauthz.Site{ID: "s1", TenantID: "t1"})
	mem.PutSiteArea(&evauthz.SiteArea{ID: "a1", TenantID: "t1", SiteID: "s1", AccessControl: true})
	mem.AddSiteMember("t1", "s1", "u1")
	return &countingOrgStore{OrgStore: mem}
}

func TestCachedOrgStoreServesRepeatLookups(t *testing.T) {
	ctx := context.Background()
	backend := newCountingOrg()
	cached, err := NewCachedOrgStore(backend, CacheConfig{TTL: time.Minute})
	require.NoError(t, err)
	defer cached.Close()

	station := &evauthz.ChargingStation{ID: "cs1", TenantID: "t1", SiteAreaID: "a1"}
	area, err := cached.SiteAreaOfStation(ctx, station)
	require.NoError(t, err)
	site, err := cached.SiteOfSiteArea(ctx, area)
	require.NoError(t, err)
	member, err := cached.IsUserMemberOfSite(ctx, site, "u1")
	require.NoError(t, err)
	require.True(t, member)
	cached.Wait()

	for i := 0; i < 3; i++ {
		a, err := cached.SiteAreaOfStation(ctx, station)
		require.NoError(t, err)
		assert.Equal(t, "a1", a.ID)
		s, err := cached.SiteOfSiteArea(ctx, a)
		require.NoError(t, err)
		assert.Equal(t, "s1", s.ID)
		ok, err := cached.IsUserMemberOfSite(ctx, s, "u1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&backend.areas))
	assert.Equal(t, int32(1), atomic.LoadInt32(&backend.sites))
	assert.Equal(t, int32(1), atomic.LoadInt32(&backend.members))

	cached.Invalidate()
	_, err = cached.SiteAreaOfStation(ctx, station)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&backend.areas))
}

func TestCachedOrgStoreDoesNotCacheMisses(t *testing.T) {
	ctx := context.Background()
	backend := newCountingOrg()
	cached, err := NewCachedOrgStore(backend, CacheConfig{})
	require.NoError(t, err)
	defer cached.Close()

	orphan := &evauthz.ChargingStation{ID: "cs9", TenantID: "t1", SiteAreaID: "a9"}
	for i := 0; i < 2; i++ {
		area, err := cached.SiteAreaOfStation(ctx, orphan)
		require.NoError(t, err)
		assert.Nil(t, area)
		cached.Wait()
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&backend.areas))
}

func TestCachedOrgStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	cached, err := NewCachedOrgStore(newCountingOrg(), CacheConfig{})
	require.NoError(t, err)
	defer cached.Close()

	station := &evauthz.ChargingStation{ID: "cs1", TenantID: "t1", SiteAreaID: "a1"}
	area, err := cached.SiteAreaOfStation(ctx, station)
	require.NoError(t, err)
	cached.Wait()
	area.AccessControl = false

	again, err := cached.SiteAreaOfStation(ctx, station)
	require.NoError(t, err)
	assert.True(t, again.AccessControl)
}
