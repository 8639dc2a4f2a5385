package stores

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/oarkflow/evauthz"
)

// RedisSiteMembership stores site->users in Redis sets (key: sitemem:{tenant}:{site}).
// The rest of the hierarchy is delegated to another OrgStore.
type RedisSiteMembership struct {
	evauthz.OrgStore
	client *redis.Client
	keyFmt string
}

func NewRedisSiteMembership(client *redis.Client, hierarchy evauthz.OrgStore) *RedisSiteMembership {
	return &RedisSiteMembership{OrgStore: hierarchy, client: client, keyFmt: "sitemem:%s:%s"}
}

func (r *RedisSiteMembership) key(tenantID, siteID string) string {
	return fmt.Sprintf(r.keyFmt, tenantID, siteID)
}

func (r *RedisSiteMembership) AddMember(ctx context.Context, tenantID, siteID, userID string) error {
	return r.client.SAdd(ctx, r.key(tenantID, siteID), userID).Err()
}

func (r *RedisSiteMembership) RemoveMember(ctx context.Context, tenantID, siteID, userID string) error {
	return r.client.SRem(ctx, r.key(tenantID, siteID), userID).Err()
}

func (r *RedisSiteMembership) ListMembers(ctx context.Context, tenantID, siteID string) ([]string, error) {
	res, err := r.client.SMembers(ctx, r.key(tenantID, siteID)).Result()
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (r *RedisSiteMembership) IsUserMemberOfSite(ctx context.Context, site *evauthz.Site, userID string) (bool, error) {
	if site == nil {
		return false, nil
	}
	return r.client.SIsMember(ctx, r.key(site.TenantID, site.ID), userID).Result()
}
