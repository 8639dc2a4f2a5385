package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/oarkflow/evauthz"
)

// CacheConfig sizes the org cache. Every entry costs 1, so MaxCost is an entry
// count. Zero values fall back to small defaults.
type CacheConfig struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	TTL         time.Duration
}

// CachedOrgStore is a read-through TTL cache in front of an OrgStore. Only
// hierarchy lookups and membership answers are cached; misses (nil results) are
// not, so a newly attached station resolves on its next scan.
type CachedOrgStore struct {
	next  evauthz.OrgStore
	cache *ristretto.Cache
	ttl   time.Duration
}

func NewCachedOrgStore(next evauthz.OrgStore, cfg CacheConfig) (*CachedOrgStore, error) {
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = 10000
	}
	if cfg.MaxCost <= 0 {
		cfg.MaxCost = 1000
	}
	if cfg.BufferItems <= 0 {
		cfg.BufferItems = 64
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        cfg.NumCounters,
		MaxCost:            cfg.MaxCost,
		BufferItems:        cfg.BufferItems,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("org cache: %w", err)
	}
	return &CachedOrgStore{next: next, cache: c, ttl: cfg.TTL}, nil
}

func (c *CachedOrgStore) put(key string, v any) {
	c.cache.SetWithTTL(key, v, 1, c.ttl)
}

func (c *CachedOrgStore) SiteAreaOfStation(ctx context.Context, station *evauthz.ChargingStation) (*evauthz.SiteArea, error) {
	if station == nil {
		return nil, nil
	}
	key := "area:" + station.TenantID + "/" + station.ID + "/" + station.SiteAreaID
	if v, ok := c.cache.Get(key); ok {
		area := *v.(*evauthz.SiteArea)
		return &area, nil
	}
	area, err := c.next.SiteAreaOfStation(ctx, station)
	if err != nil || area == nil {
		return area, err
	}
	cp := *area
	c.put(key, &cp)
	return area, nil
}

func (c *CachedOrgStore) SiteOfSiteArea(ctx context.Context, area *evauthz.SiteArea) (*evauthz.Site, error) {
	if area == nil {
		return nil, nil
	}
	key := "site:" + area.TenantID + "/" + area.ID + "/" + area.SiteID
	if v, ok := c.cache.Get(key); ok {
		site := *v.(*evauthz.Site)
		return &site, nil
	}
	site, err := c.next.SiteOfSiteArea(ctx, area)
	if err != nil || site == nil {
		return site, err
	}
	cp := *site
	c.put(key, &cp)
	return site, nil
}

func (c *CachedOrgStore) IsUserMemberOfSite(ctx context.Context, site *evauthz.Site, userID string) (bool, error) {
	if site == nil {
		return false, nil
	}
	key := "member:" + site.TenantID + "/" + site.ID + "/" + userID
	if v, ok := c.cache.Get(key); ok {
		return v.(bool), nil
	}
	member, err := c.next.IsUserMemberOfSite(ctx, site, userID)
	if err != nil {
		return false, err
	}
	c.put(key, member)
	return member, nil
}

// Wait blocks until pending cache writes are visible.
func (c *CachedOrgStore) Wait() { c.cache.Wait() }

// Invalidate drops every cached answer.
func (c *CachedOrgStore) Invalidate() { c.cache.Clear() }

func (c *CachedOrgStore) Close() { c.cache.Close() }
