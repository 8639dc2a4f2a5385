package evauthz

import (
	"slices"
	"time"
)

// ============================================================================
// ROLES, ENTITIES, ACTIONS
// ============================================================================

// Role is the closed set of user roles known to the catalog.
type Role string

const (
	RoleSuperAdmin Role = "super-admin"
	RoleAdmin      Role = "admin"
	RoleBasic      Role = "basic"
	RoleDemo       Role = "demo"
	RoleSiteAdmin  Role = "site-admin"
	RoleSiteOwner  Role = "site-owner"
)

// Entity identifies a resource type a grant applies to.
type Entity string

const (
	EntityUser            Entity = "user"
	EntityTag             Entity = "tag"
	EntityCompany         Entity = "company"
	EntitySite            Entity = "site"
	EntitySiteArea        Entity = "site-area"
	EntityChargingStation Entity = "charging-station"
	EntityTransaction     Entity = "transaction"
	EntitySetting         Entity = "setting"
	EntityTenant          Entity = "tenant"
	EntityLogging         Entity = "logging"
	EntityReport          Entity = "report"
	EntityPricing         Entity = "pricing"
	EntityConnection      Entity = "connection"
	EntityInvoice         Entity = "invoice"
)

// Action is what an actor attempts on a resource.
type Action string

const (
	ActionCreate              Action = "create"
	ActionRead                Action = "read"
	ActionUpdate              Action = "update"
	ActionDelete              Action = "delete"
	ActionList                Action = "list"
	ActionExport              Action = "export"
	ActionRemoteStart         Action = "remote-start-transaction"
	ActionRemoteStop          Action = "remote-stop-transaction"
	ActionUnlockConnector     Action = "unlock-connector"
	ActionReset               Action = "reset"
	ActionClearCache          Action = "clear-cache"
	ActionGetConfiguration    Action = "get-configuration"
	ActionChangeConfiguration Action = "change-configuration"
	ActionRefundTransaction   Action = "refund-transaction"
	ActionListInError         Action = "list-in-error"
)

var knownRoles = []Role{RoleSuperAdmin, RoleAdmin, RoleBasic, RoleDemo, RoleSiteAdmin, RoleSiteOwner}

var knownEntities = map[Entity]struct{}{
	EntityUser: {}, EntityTag: {}, EntityCompany: {}, EntitySite: {}, EntitySiteArea: {},
	EntityChargingStation: {}, EntityTransaction: {}, EntitySetting: {}, EntityTenant: {},
	EntityLogging: {}, EntityReport: {}, EntityPricing: {}, EntityConnection: {}, EntityInvoice: {},
}

var knownActions = map[Action]struct{}{
	ActionCreate: {}, ActionRead: {}, ActionUpdate: {}, ActionDelete: {}, ActionList: {},
	ActionExport: {}, ActionRemoteStart: {}, ActionRemoteStop: {}, ActionUnlockConnector: {},
	ActionReset: {}, ActionClearCache: {}, ActionGetConfiguration: {},
	ActionChangeConfiguration: {}, ActionRefundTransaction: {}, ActionListInError: {},
}

// KnownEntity reports whether e is a resource identifier the engine understands.
func KnownEntity(e Entity) bool {
	_, ok := knownEntities[e]
	return ok
}

// KnownAction reports whether a is an action identifier the engine understands.
func KnownAction(a Action) bool {
	_, ok := knownActions[a]
	return ok
}

// KnownRole reports whether r belongs to the closed role enumeration.
func KnownRole(r Role) bool {
	return slices.Contains(knownRoles, r)
}

// Tenant components
const (
	ComponentOrganization = "organization"
	ComponentPricing      = "pricing"
	ComponentBilling      = "billing"
	ComponentRoaming      = "ocpi"
)

// ============================================================================
// ACTOR
// ============================================================================

// Actor is the authenticated caller. It is loaded once per request and never mutated.
type Actor struct {
	TenantID   string   `json:"tenant_id"`
	ID         string   `json:"id"`
	Role       Role     `json:"role"`
	Companies  []string `json:"companies,omitempty"`
	Sites      []string `json:"sites,omitempty"`
	SitesAdmin []string `json:"sites_admin,omitempty"`
	SitesOwner []string `json:"sites_owner,omitempty"`
	TagIDs     []string `json:"tag_ids,omitempty"`
	Components []string `json:"components,omitempty"`
}

// HasComponent reports whether the actor's tenant had the component active at login.
func (a *Actor) HasComponent(component string) bool {
	return a != nil && slices.Contains(a.Components, component)
}

// OrganizationActive is shorthand for HasComponent(ComponentOrganization).
func (a *Actor) OrganizationActive() bool {
	return a.HasComponent(ComponentOrganization)
}

// ActorFromUser builds the actor used for badge-driven flows, where no login token exists.
func ActorFromUser(u *User, t *Tenant) *Actor {
	if u == nil {
		return nil
	}
	a := &Actor{
		TenantID:   u.TenantID,
		ID:         u.ID,
		Role:       u.Role,
		Companies:  slices.Clone(u.CompanyIDs),
		Sites:      slices.Clone(u.SiteIDs),
		SitesAdmin: slices.Clone(u.SitesAdmin),
		SitesOwner: slices.Clone(u.SitesOwner),
		TagIDs:     slices.Clone(u.Tags),
	}
	if t != nil {
		a.Components = slices.Clone(t.Components)
	}
	return a
}

// ============================================================================
// DOMAIN OBJECTS
// ============================================================================

// UserStatus is the lifecycle status of a user account.
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
	UserStatusBlocked  UserStatus = "blocked"
	UserStatusPending  UserStatus = "pending"
)

type User struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenant_id"`
	Role       Role       `json:"role"`
	Status     UserStatus `json:"status"`
	Deleted    bool       `json:"deleted"`
	Name       string     `json:"name"`
	FirstName  string     `json:"first_name"`
	Email      string     `json:"email"`
	Phone      string     `json:"phone,omitempty"`
	Mobile     string     `json:"mobile,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
	SiteIDs    []string   `json:"site_ids,omitempty"`
	SitesAdmin []string   `json:"sites_admin,omitempty"`
	SitesOwner []string   `json:"sites_owner,omitempty"`
	CompanyIDs []string   `json:"company_ids,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Clone returns a deep copy so stores never hand out shared slices.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	dup := *u
	dup.Tags = slices.Clone(u.Tags)
	dup.SiteIDs = slices.Clone(u.SiteIDs)
	dup.SitesAdmin = slices.Clone(u.SitesAdmin)
	dup.SitesOwner = slices.Clone(u.SitesOwner)
	dup.CompanyIDs = slices.Clone(u.CompanyIDs)
	return &dup
}

type Tenant struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Components []string `json:"components,omitempty"`
}

// HasComponent reports whether the tenant has the component active.
func (t *Tenant) HasComponent(component string) bool {
	return t != nil && slices.Contains(t.Components, component)
}

type Site struct {
	ID                  string `json:"id"`
	TenantID            string `json:"tenant_id"`
	CompanyID           string `json:"company_id"`
	Name                string `json:"name"`
	AllowAllUsersToStop bool   `json:"allow_all_users_to_stop"`
}

type SiteArea struct {
	ID            string `json:"id"`
	TenantID      string `json:"tenant_id"`
	SiteID        string `json:"site_id"`
	Name          string `json:"name"`
	AccessControl bool   `json:"access_control"`
}

type Connector struct {
	ID                  int   `json:"id"`
	ActiveTransactionID int64 `json:"active_transaction_id,omitempty"`
}

type ChargingStation struct {
	ID         string      `json:"id"`
	TenantID   string      `json:"tenant_id"`
	SiteAreaID string      `json:"site_area_id,omitempty"`
	Connectors []Connector `json:"connectors,omitempty"`
}

// Transaction is a charging session. UserID is empty for sessions started by an
// unidentified badge.
type Transaction struct {
	ID                int64     `json:"id"`
	TenantID          string    `json:"tenant_id"`
	ChargingStationID string    `json:"charging_station_id"`
	ConnectorID       int       `json:"connector_id"`
	SiteID            string    `json:"site_id,omitempty"`
	SiteAreaID        string    `json:"site_area_id,omitempty"`
	TagID             string    `json:"tag_id"`
	UserID            string    `json:"user_id,omitempty"`
	StopUserID        string    `json:"stop_user_id,omitempty"`
	StartedAt         time.Time `json:"started_at"`
}

// HasUser reports whether the session is linked to a known user.
func (t *Transaction) HasUser() bool {
	return t != nil && t.UserID != ""
}
