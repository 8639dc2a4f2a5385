package evauthz

import "context"

// ============================================================================
// COLLABORATORS
// ============================================================================
// Finders return (nil, nil) when nothing matches.

// IdentityStore persists users and the tags that identify them.
type IdentityStore interface {
	FindUserByTag(ctx context.Context, tenantID, tagID string) (*User, error)
	FindUserByID(ctx context.Context, tenantID, userID string) (*User, error)
	// CreateUserWithTag inserts user with tagID attached unless the tag is already
	// claimed. It returns the user owning the tag afterwards and whether this call
	// created it. Implementations must make the claim atomic and must fail with
	// ErrUserExists, claiming nothing, when user.ID is already taken.
	CreateUserWithTag(ctx context.Context, user *User, tagID string) (*User, bool, error)
	// SaveUser upserts user. Tags missing from user.Tags are released if user still
	// owns them.
	SaveUser(ctx context.Context, user *User) error
}

// OrgStore resolves the organization hierarchy around a station.
type OrgStore interface {
	SiteAreaOfStation(ctx context.Context, station *ChargingStation) (*SiteArea, error)
	SiteOfSiteArea(ctx context.Context, area *SiteArea) (*Site, error)
	IsUserMemberOfSite(ctx context.Context, site *Site, userID string) (bool, error)
}

type TransactionStore interface {
	FindTransaction(ctx context.Context, tenantID string, id int64) (*Transaction, error)
}

type TenantStore interface {
	FindTenant(ctx context.Context, tenantID string) (*Tenant, error)
}

// Notifier tells operators about badges nobody has seen before.
type Notifier interface {
	NotifyUnknownBadge(ctx context.Context, station *ChargingStation, tagID string, user *User) error
}
