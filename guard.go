package evauthz

import (
	"context"
	"fmt"

	"github.com/oarkflow/evauthz/logger"
)

// SessionGuard authorizes remote actions triggered by a badge presented at a station.
type SessionGuard struct {
	resolver *TagResolver
	tenants  TenantStore
	org      OrgStore
	authz    *Authorizer
	logger   logger.Logger
}

func NewSessionGuard(resolver *TagResolver, tenants TenantStore, org OrgStore, authz *Authorizer, l logger.Logger) *SessionGuard {
	if l == nil {
		l = logger.NewNullLogger()
	}
	return &SessionGuard{resolver: resolver, tenants: tenants, org: org, authz: authz, logger: l}
}

// AuthorizeTag resolves tagID and checks whether its owner may perform action on the
// station. A denial is (user, false, nil). Provisioning outcomes and configuration
// problems come back as errors.
func (g *SessionGuard) AuthorizeTag(ctx context.Context, tenantID string, station *ChargingStation, tagID string, action Action) (*User, bool, error) {
	if station == nil {
		return nil, false, fmt.Errorf("authorize tag %q: nil station", tagID)
	}
	if !KnownAction(action) {
		return nil, false, fmt.Errorf("authorize tag %q: %w: %q", tagID, ErrUnknownAction, action)
	}
	user, err := g.resolver.Resolve(ctx, tenantID, station, tagID, string(action))
	if err != nil {
		return nil, false, err
	}
	tenant, err := g.tenants.FindTenant(ctx, tenantID)
	if err != nil {
		return nil, false, fmt.Errorf("find tenant %q: %w", tenantID, err)
	}
	if tenant == nil {
		return nil, false, &InconsistentStateError{TenantID: tenantID, Entity: EntityTenant, ID: tenantID, Detail: "tenant not found"}
	}
	siteID := ""
	if tenant.HasComponent(ComponentOrganization) {
		_, site, err := resolveHierarchy(ctx, g.org, station, nil, nil)
		if err != nil {
			return nil, false, err
		}
		siteID = site.ID
	}
	actor := ActorFromUser(user, tenant)
	ok := g.authz.CanPerformActionOnChargingStation(ctx, actor, action, siteID)
	if !ok {
		g.logger.Debug("badge action denied",
			"tenant", tenantID, "station", station.ID, "tag", tagID, "user", user.ID, "action", string(action))
	}
	return user, ok, nil
}

// resolveHierarchy fills in the site area and site of station. With the organization
// component on both must exist, so a miss is a configuration error.
func resolveHierarchy(ctx context.Context, org OrgStore, station *ChargingStation, area *SiteArea, site *Site) (*SiteArea, *Site, error) {
	var err error
	if area == nil {
		if area, err = org.SiteAreaOfStation(ctx, station); err != nil {
			return nil, nil, fmt.Errorf("site area of station %q: %w", station.ID, err)
		}
		if area == nil {
			return nil, nil, configErrorf("organization", "charging station %q is not assigned to a site area", station.ID)
		}
	}
	if site == nil {
		if site, err = org.SiteOfSiteArea(ctx, area); err != nil {
			return nil, nil, fmt.Errorf("site of site area %q: %w", area.ID, err)
		}
		if site == nil {
			return nil, nil, configErrorf("organization", "site area %q of charging station %q has no site", area.ID, station.ID)
		}
	}
	return area, site, nil
}
