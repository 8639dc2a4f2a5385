package evauthz

import (
	"context"
	"slices"

	"github.com/oarkflow/evauthz/utils"
)

// Authorizer exposes one check per guarded operation. Each check assembles the
// context its catalog conditions reference and asks the engine.
type Authorizer struct {
	engine *Engine
}

func NewAuthorizer(engine *Engine) *Authorizer {
	return &Authorizer{engine: engine}
}

// Engine returns the underlying permission engine.
func (a *Authorizer) Engine() *Engine {
	return a.engine
}

func (a *Authorizer) can(ctx context.Context, actor *Actor, resource Entity, action Action, c Context) bool {
	return a.engine.Can(ctx, actor, resource, action, c)
}

// ============================================================================
// ROLES & SCOPES
// ============================================================================

func (a *Authorizer) IsSuperAdmin(actor *Actor) bool { return actor != nil && actor.Role == RoleSuperAdmin }
func (a *Authorizer) IsAdmin(actor *Actor) bool      { return actor != nil && actor.Role == RoleAdmin }
func (a *Authorizer) IsBasic(actor *Actor) bool      { return actor != nil && actor.Role == RoleBasic }
func (a *Authorizer) IsDemo(actor *Actor) bool       { return actor != nil && actor.Role == RoleDemo }

// IsSiteAdmin reports whether actor administers siteID. Admins administer every site.
func (a *Authorizer) IsSiteAdmin(actor *Actor, siteID string) bool {
	if actor == nil {
		return false
	}
	return actor.Role == RoleAdmin || slices.Contains(actor.SitesAdmin, siteID)
}

// IsSiteOwner reports whether actor is the financial owner of siteID.
func (a *Authorizer) IsSiteOwner(actor *Actor, siteID string) bool {
	if actor == nil {
		return false
	}
	return actor.Role == RoleAdmin || slices.Contains(actor.SitesOwner, siteID)
}

// ScopesFor advertises what role may do, as sorted "resource:action" strings.
func (a *Authorizer) ScopesFor(role Role) []string {
	return a.engine.catalog.ActionsFor(role)
}

// ScopesMatching filters ScopesFor by a pattern such as "transaction:*".
func (a *Authorizer) ScopesMatching(role Role, pattern string) []string {
	all := a.engine.catalog.ActionsFor(role)
	out := all[:0]
	for _, s := range all {
		if utils.MatchScope(s, pattern) {
			out = append(out, s)
		}
	}
	return out
}

// ============================================================================
// USERS & TAGS
// ============================================================================

func userContext(actor *Actor, userID string) Context {
	return Context{KeyUser: userID, KeyOwner: actor.ID}
}

func (a *Authorizer) CanListUsers(ctx context.Context, actor *Actor) bool {
	return a.can(ctx, actor, EntityUser, ActionList, nil)
}

func (a *Authorizer) CanCreateUser(ctx context.Context, actor *Actor) bool {
	return a.can(ctx, actor, EntityUser, ActionCreate, nil)
}

func (a *Authorizer) CanExportUsers(ctx context.Context, actor *Actor) bool {
	return a.can(ctx, actor, EntityUser, ActionExport, nil)
}

func (a *Authorizer) CanReadUser(ctx context.Context, actor *Actor, userID string) bool {
	return actor != nil && a.can(ctx, actor, EntityUser, ActionRead, userContext(actor, userID))
}

func (a *Authorizer) CanUpdateUser(ctx context.Context, actor *Actor, userID string) bool {
	return actor != nil && a.can(ctx, actor, EntityUser, ActionUpdate, userContext(actor, userID))
}

func (a *Authorizer) CanDeleteUser(ctx context.Context, actor *Actor, userID string) bool {
	return actor != nil && a.can(ctx, actor, EntityUser, ActionDelete, userContext(actor, userID))
}

func tagContext(actor *Actor, tagID string) Context {
	return Context{KeyTag: tagID, KeyTagIDs: slices.Clone(actor.TagIDs), KeyOwner: actor.ID}
}

func (a *Authorizer) CanListTags(ctx context.Context, actor *Actor) bool {
	return a.can(ctx, actor, EntityTag, ActionList, nil)
}

func (a *Authorizer) CanReadTag(ctx context.Context, actor *Actor, tagID string) bool {
	return actor != nil && a.can(ctx, actor, EntityTag, ActionRead, tagContext(actor, tagID))
}

func (a *Authorizer) CanCreateTag(ctx context.Context, actor *Actor) bool {
	return a.can(ctx, actor, EntityTag, ActionCreate, nil)
}

func (a *Authorizer) CanUpdateTag(ctx context.Context, actor *Actor, tagID string) bool {
	return actor != nil && a.can(ctx, actor, EntityTag, ActionUpdate, tagContext(actor, tagID))
}

func (a *Authorizer) CanDeleteTag(ctx context.Context, actor *Actor, tagID string) bool {
	return actor != nil && a.can(ctx, actor, EntityTag, ActionDelete, tagContext(actor, tagID))
}

// ============================================================================
// ORGANIZATION: COMPANIES, SITES, SITE AREAS
// ============================================================================

func (a *Authorizer) CanListCompanies(ctx context.Context, actor *Actor) bool {
	return a.can(ctx, actor, EntityCompany, ActionList, nil)
}

func (a *Authorizer) CanReadCompany(ctx context.Context, actor *Actor, companyID string) bool {
	if actor == nil {
		return false
	}
	return a.can(ctx, actor, EntityCompany, ActionRead, Context{
		KeyCompany:   companyID,
		KeyCompanies: slices.Clone(actor.Companies),
	})
}

func (a *Authorizer) CanCreateCompany(ctx context.Context, actor *Actor) bool {
	return a.can(ctx, actor, EntityCompany, ActionCreate, nil)
}

func (a *Authorizer) CanUpdateCompany(ctx context.Context, actor *Actor, companyID string) bool {
	return a.can(ctx, actor, EntityCompany, ActionUpdate, Context{KeyCompany: companyID})
}

func (a *Authorizer) CanDeleteCompany(ctx context.Context, actor *Actor, companyID string) bool {
	return a.can(ctx, actor, EntityCompany, ActionDelete, Context{KeyCompany: companyID})
}

// siteContext carries the target site and every site membership list of the actor.
func siteContext(actor *Actor, siteID string) Context {
	c := actorLists(actor)
	c[KeySite] = nullable(siteID)
	return c
}

func (a *Authorizer) CanListSites(ctx context.Context, actor *Actor) bool {
	return a.can(ctx, actor, EntitySite, ActionList, nil)
}

func (a *Authorizer) CanReadSite(ctx context.Context, actor *Actor, siteID string) bool {
	return actor != nil && a.can(ctx, actor, EntitySite, ActionRead, siteContext(actor, siteID))
}

func (a *Authorizer) CanCreateSite(ctx context.Context, actor *Actor) bool {
	return a.can(ctx, actor, EntitySite, ActionCreate, nil)
}

func (a *Authorizer) CanUpdateSite(ctx context.Context, actor *Actor, siteID string) bool {
	return actor != nil && a.can(ctx, actor, EntitySite, ActionUpdate, siteContext(actor, siteID))
}

func (a *Authorizer) CanDeleteSite(ctx context.Context, actor *Actor, siteID string) bool {
	return actor != nil && a.can(ctx, actor, EntitySite, ActionDelete, siteContext(actor, siteID))
}

func (a *Authorizer) CanListSiteAreas(ctx context.Context, actor *Actor) bool {
	return a.can(ctx, actor, EntitySiteArea, ActionList, nil)
}

// CanReadSiteArea needs the site-area grant and read access to the parent site.
func (a *Authorizer) CanReadSiteArea(ctx context.Context, actor *Actor, area *SiteArea) bool {
	if actor == nil || area == nil {
		return false
	}
	return a.can(ctx, actor, EntitySiteArea, ActionRead, nil) &&
		a.CanReadSite(ctx, actor, area.SiteID)
}

func (a *Authorizer) CanCreateSiteArea(ctx context.Context, actor *Actor, siteID string) bool {
	return actor != nil && a.can(ctx, actor, EntitySiteArea, ActionCreate, siteContext(actor, siteID))
}

func (a *Authorizer) CanUpdateSiteArea(ctx context.Context, actor *Actor, siteID string) bool {
	return actor != nil && a.can(ctx, actor, EntitySiteArea, ActionUpdate, siteContext(actor, siteID))
}

func (a *Authorizer) CanDeleteSiteArea(ctx context.Context, actor *Actor, siteID string) bool {
	return actor != nil && a.can(ctx, actor, EntitySiteArea, ActionDelete, siteContext(actor, siteID))
}

// ============================================================================
// CHARGING STATIONS
// ============================================================================

func (a *Authorizer) CanListChargingStations(ctx context.Context, actor *Actor) bool {
	return a.can(ctx, actor, EntityChargingStation, ActionList, nil)
}

func (a *Authorizer) CanReadChargingStation(ctx context.Context, actor *Actor) bool {
	return a.can(ctx, actor, EntityChargingStation, ActionRead, nil)
}

func (a *Authorizer) CanExportChargingStations(ctx context.Context, actor *Actor, siteID string) bool {
	return actor != nil && a.can(ctx, actor, EntityChargingStation, ActionExport, siteContext(actor, siteID))
}

func (a *Authorizer) CanUpdateChargingStation(ctx context.Context, actor *Actor, siteID string) bool {
	return actor != nil && a.can(ctx, actor, EntityChargingStation, ActionUpdate, siteContext(actor, siteID))
}

func (a *Authorizer) CanDeleteChargingStation(ctx context.Context, actor *Actor, siteID string) bool {
	return actor != nil && a.can(ctx, actor, EntityChargingStation, ActionDelete, siteContext(actor, siteID))
}

// CanPerformActionOnChargingStation checks a station-level command. siteID is the
// station's site, or "" when the station is not attached to any site.
func (a *Authorizer) CanPerformActionOnChargingStation(ctx context.Context, actor *Actor, action Action, siteID string) bool {
	return actor != nil && a.can(ctx, actor, EntityChargingStation, action, siteContext(actor, siteID))
}

// CanStartTransaction is the base remote-start permission on a station.
func (a *Authorizer) CanStartTransaction(ctx context.Context, actor *Actor, siteID string) bool {
	return a.CanPerformActionOnChargingStation(ctx, actor, ActionRemoteStart, siteID)
}

// CanStopTransaction is the base remote-stop permission on a station.
func (a *Authorizer) CanStopTransaction(ctx context.Context, actor *Actor, siteID string) bool {
	return a.CanPerformActionOnChargingStation(ctx, actor, ActionRemoteStop, siteID)
}

// ============================================================================
// TRANSACTIONS
// ============================================================================

// transactionContext is empty for sessions without a user, which leaves only
// unconditioned grants able to match.
func transactionContext(actor *Actor, tx *Transaction) Context {
	if !tx.HasUser() {
		return nil
	}
	c := actorLists(actor)
	c[KeyUser] = tx.UserID
	c[KeySite] = nullable(tx.SiteID)
	return c
}

func (a *Authorizer) CanListTransactions(ctx context.Context, actor *Actor) bool {
	return a.can(ctx, actor, EntityTransaction, ActionList, nil)
}

func (a *Authorizer) CanListTransactionsInError(ctx context.Context, actor *Actor) bool {
	return a.can(ctx, actor, EntityTransaction, ActionListInError, nil)
}

func (a *Authorizer) CanExportTransactions(ctx context.Context, actor *Actor) bool {
	return a.can(ctx, actor, EntityTransaction, ActionExport, nil)
}

func (a *Authorizer) CanReadTransaction(ctx context.Context, actor *Actor, tx *Transaction) bool {
	if actor == nil || tx == nil {
		return false
	}
	return a.can(ctx, actor, EntityTransaction, ActionRead, transactionContext(actor, tx))
}

func (a *Authorizer) CanUpdateTransaction(ctx context.Context, actor *Actor, tx *Transaction) bool {
	if actor == nil || tx == nil {
		return false
	}
	return a.can(ctx, actor, EntityTransaction, ActionUpdate, transactionContext(actor, tx))
}

func (a *Authorizer) CanDeleteTransaction(ctx context.Context, actor *Actor, tx *Transaction) bool {
	if actor == nil || tx == nil {
		return false
	}
	return a.can(ctx, actor, EntityTransaction, ActionDelete, transactionContext(actor, tx))
}

// CanRefundTransaction: admins may refund any session, including ones without a user.
// Everyone else needs a linked user and a satisfied grant.
func (a *Authorizer) CanRefundTransaction(ctx context.Context, actor *Actor, tx *Transaction) bool {
	if actor == nil || tx == nil {
		return false
	}
	if a.IsAdmin(actor) {
		return true
	}
	if !tx.HasUser() {
		return false
	}
	return a.can(ctx, actor, EntityTransaction, ActionRefundTransaction, transactionContext(actor, tx))
}

// ============================================================================
// PLATFORM: SETTINGS, TENANTS, LOGGINGS, REPORTS, PRICING, BILLING, ROAMING
// ============================================================================

func (a *Authorizer) CanListSettings(ctx context.Context, actor *Actor) bool {
	return a.can(ctx, actor, EntitySetting, ActionList, nil)
}

func (a *Authorizer) CanReadSetting(ctx context.Context, actor *Actor) bool {
	return a.can(ctx, actor, EntitySetting, ActionRead, nil)
}

func (a *Authorizer) CanCreateSetting(ctx context.Context, actor *Actor) bool {
	return a.can(ctx, actor, EntitySetting, ActionCreate, nil)
}

func (a *Authorizer) CanUpdateSetting(ctx context.Context, actor *Actor) bool {
	return a.can(ctx, actor, EntitySetting, ActionUpdate, nil)
}

func (a *Authorizer) CanDeleteSetting(ctx context.Context, actor *Actor) bool {
	return a.can(ctx, actor, EntitySetting, ActionDelete, nil)
}

func (a *Authorizer) CanListTenants(ctx context.Context, actor *Actor) bool {
	return a.can(ctx, actor, EntityTenant, ActionList, nil)
}

func (a *Authorizer) CanReadTenant(ctx context.Context, actor *Actor) bool {
	return a.can(ctx, actor, EntityTenant, ActionRead, nil)
}

func (a *Authorizer) CanCreateTenant(ctx context.Context, actor *Actor) bool {
	return a.can(ctx, actor, EntityTenant, ActionCreate, nil)
}

func (a *Authorizer) CanUpdateTenant(ctx context.Context, actor *Actor) bool {
	return a.can(ctx, actor, EntityTenant, ActionUpdate, nil)
}

func (a *Authorizer) CanDeleteTenant(ctx context.Context, actor *Actor) bool {
	return a.can(ctx, actor, EntityTenant, ActionDelete, nil)
}

func (a *Authorizer) CanListLoggings(ctx context.Context, actor *Actor) bool {
	return a.can(ctx, actor, EntityLogging, ActionList, nil)
}

func (a *Authorizer) CanReadLogging(ctx context.Context, actor *Actor) bool {
	return a.can(ctx, actor, EntityLogging, ActionRead, nil)
}

func (a *Authorizer) CanReadReport(ctx context.Context, actor *Actor) bool {
	return a.can(ctx, actor, EntityReport, ActionRead, nil)
}

func (a *Authorizer) CanReadPricing(ctx context.Context, actor *Actor) bool {
	return a.can(ctx, actor, EntityPricing, ActionRead, nil)
}

func (a *Authorizer) CanUpdatePricing(ctx context.Context, actor *Actor) bool {
	return a.can(ctx, actor, EntityPricing, ActionUpdate, nil)
}

func (a *Authorizer) CanListConnections(ctx context.Context, actor *Actor) bool {
	return a.can(ctx, actor, EntityConnection, ActionList, nil)
}

// Connections belong to a user; userID is the connection's owner.
func (a *Authorizer) CanCreateConnection(ctx context.Context, actor *Actor, userID string) bool {
	return actor != nil && a.can(ctx, actor, EntityConnection, ActionCreate, userContext(actor, userID))
}

func (a *Authorizer) CanReadConnection(ctx context.Context, actor *Actor, userID string) bool {
	return actor != nil && a.can(ctx, actor, EntityConnection, ActionRead, userContext(actor, userID))
}

func (a *Authorizer) CanDeleteConnection(ctx context.Context, actor *Actor, userID string) bool {
	return actor != nil && a.can(ctx, actor, EntityConnection, ActionDelete, userContext(actor, userID))
}

func (a *Authorizer) CanListInvoices(ctx context.Context, actor *Actor) bool {
	return a.can(ctx, actor, EntityInvoice, ActionList, nil)
}

// CanReadInvoice: userID is the invoiced user.
func (a *Authorizer) CanReadInvoice(ctx context.Context, actor *Actor, userID string) bool {
	return actor != nil && a.can(ctx, actor, EntityInvoice, ActionRead, userContext(actor, userID))
}
