package evauthz

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/oarkflow/evauthz/logger"
)

// ============================================================================
// TAG RESOLUTION
// ============================================================================

// TagState classifies the owner of a scanned badge.
type TagState int

const (
	TagUnknown TagState = iota
	TagActive
	TagDeleted
	TagNotActive
)

func (s TagState) String() string {
	switch s {
	case TagActive:
		return "active"
	case TagDeleted:
		return "deleted"
	case TagNotActive:
		return "not-active"
	default:
		return "unknown"
	}
}

// ClassifyTag decides what a scan means for the user owning the tag, nil when the tag
// is unknown. It has no side effects.
func ClassifyTag(u *User) TagState {
	switch {
	case u == nil:
		return TagUnknown
	case u.Deleted:
		return TagDeleted
	case u.Status != UserStatusActive:
		return TagNotActive
	default:
		return TagActive
	}
}

const (
	defaultPlaceholderDomain = "badge.invalid"
	placeholderName          = "Unknown"
	placeholderFirstName     = "User"
)

// TagResolverOption configures a TagResolver.
type TagResolverOption func(*TagResolver)

// WithPlaceholderDomain sets the mail domain of synthesized contact addresses.
func WithPlaceholderDomain(domain string) TagResolverOption {
	return func(r *TagResolver) {
		if domain != "" {
			r.domain = strings.TrimPrefix(domain, "@")
		}
	}
}

func WithResolverLogger(l logger.Logger) TagResolverOption {
	return func(r *TagResolver) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithResolverClock(now func() time.Time) TagResolverOption {
	return func(r *TagResolver) {
		if now != nil {
			r.now = now
		}
	}
}

// WithPlaceholderIDs overrides how ids of auto-provisioned users are minted. Ids must
// be fresh: stores refuse to create a user whose id is taken.
func WithPlaceholderIDs(next func() string) TagResolverOption {
	return func(r *TagResolver) {
		if next != nil {
			r.newID = next
		}
	}
}

// TagResolver turns a physical badge scan into a user identity, provisioning or
// restoring placeholder users as needed.
type TagResolver struct {
	identity IdentityStore
	notifier Notifier
	audit    AuditSink
	logger   logger.Logger
	domain   string
	now      func() time.Time
	newID    func() string
	group    singleflight.Group
}

// NewTagResolver builds a resolver. notifier and audit may be nil.
func NewTagResolver(identity IdentityStore, notifier Notifier, audit AuditSink, opts ...TagResolverOption) *TagResolver {
	r := &TagResolver{
		identity: identity,
		notifier: notifier,
		audit:    audit,
		logger:   logger.NewNullLogger(),
		domain:   defaultPlaceholderDomain,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *TagResolver) placeholderEmail(tagID string) string {
	return strings.ToLower(tagID) + "@" + r.domain
}

// Resolve returns the active user owning tagID. Any other outcome comes back as an
// *IdentityProvisioningError carrying the user involved:
//   - unknown tag: a placeholder user is created (ProvisionCreated)
//   - soft-deleted owner: the user is restored as inactive (ProvisionRestored)
//   - inactive, blocked or pending owner: ProvisionNotActive
//
// Concurrent scans of the same tag in this process share one lookup. The shared
// lookup does not inherit the cancellation of whichever caller started it; each
// caller stops waiting when its own ctx is done.
func (r *TagResolver) Resolve(ctx context.Context, tenantID string, station *ChargingStation, tagID, action string) (*User, error) {
	if tagID == "" {
		return nil, fmt.Errorf("resolve tag: empty tag id")
	}
	shared := context.WithoutCancel(ctx)
	ch := r.group.DoChan(tenantID+"/"+tagID, func() (any, error) {
		u, err := r.identity.FindUserByTag(shared, tenantID, tagID)
		if err != nil {
			return nil, fmt.Errorf("find user by tag %q: %w", tagID, err)
		}
		return r.settle(shared, tenantID, station, tagID, action, u)
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("resolve tag %q: %w", tagID, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*User).Clone(), nil
	}
}

func (r *TagResolver) settle(ctx context.Context, tenantID string, station *ChargingStation, tagID, action string, u *User) (*User, error) {
	switch ClassifyTag(u) {
	case TagActive:
		return u, nil
	case TagDeleted:
		return nil, r.restore(ctx, station, tagID, action, u)
	case TagNotActive:
		r.logger.Warn("badge owner not active",
			"tenant", tenantID, "tag", tagID, "user", u.ID, "status", string(u.Status))
		r.event(ctx, &SecurityEvent{
			TenantID: tenantID,
			Event:    EventTagRejected,
			UserID:   u.ID,
			TagID:    tagID,
			Action:   action,
			Metadata: map[string]any{"status": string(u.Status)},
		}, station)
		return nil, &IdentityProvisioningError{Kind: ProvisionNotActive, TagID: tagID, User: u}
	default:
		return r.provision(ctx, tenantID, station, tagID, action)
	}
}

// restore revives a soft-deleted user as an inactive placeholder. Repeating it yields
// the same state.
func (r *TagResolver) restore(ctx context.Context, station *ChargingStation, tagID, action string, u *User) error {
	u.Deleted = false
	u.Status = UserStatusInactive
	u.Name = placeholderName
	u.FirstName = placeholderFirstName
	u.Email = r.placeholderEmail(tagID)
	u.Phone = ""
	u.Mobile = ""
	u.UpdatedAt = r.now()
	if !slices.Contains(u.Tags, tagID) {
		u.Tags = append(u.Tags, tagID)
	}
	if err := r.identity.SaveUser(ctx, u); err != nil {
		return fmt.Errorf("restore user %q: %w", u.ID, err)
	}
	r.logger.Info("deleted user restored by badge scan", "tenant", u.TenantID, "tag", tagID, "user", u.ID)
	r.event(ctx, &SecurityEvent{
		TenantID: u.TenantID,
		Event:    EventUserRestored,
		UserID:   u.ID,
		TagID:    tagID,
		Action:   action,
	}, station)
	return &IdentityProvisioningError{Kind: ProvisionRestored, TagID: tagID, User: u}
}

func (r *TagResolver) provision(ctx context.Context, tenantID string, station *ChargingStation, tagID, action string) (*User, error) {
	now := r.now()
	placeholder := &User{
		ID:        r.newID(),
		TenantID:  tenantID,
		Role:      RoleBasic,
		Status:    UserStatusInactive,
		Name:      placeholderName,
		FirstName: placeholderFirstName,
		Email:     r.placeholderEmail(tagID),
		Tags:      []string{tagID},
		CreatedAt: now,
		UpdatedAt: now,
	}
	owner, created, err := r.identity.CreateUserWithTag(ctx, placeholder, tagID)
	if err != nil {
		return nil, fmt.Errorf("provision user for tag %q: %w", tagID, err)
	}
	if !created {
		// Another process claimed the tag after our lookup.
		if owner == nil {
			return nil, fmt.Errorf("provision user for tag %q: tag claimed but owner not found", tagID)
		}
		return r.settle(ctx, tenantID, station, tagID, action, owner)
	}
	r.logger.Info("unknown badge provisioned", "tenant", tenantID, "tag", tagID, "user", owner.ID)
	if r.notifier != nil {
		if err := r.notifier.NotifyUnknownBadge(ctx, station, tagID, owner); err != nil {
			r.logger.Error("notify unknown badge", "tenant", tenantID, "tag", tagID, "error", err)
		}
	}
	r.event(ctx, &SecurityEvent{
		TenantID: tenantID,
		Event:    EventUserProvisioned,
		UserID:   owner.ID,
		TagID:    tagID,
		Action:   action,
	}, station)
	return nil, &IdentityProvisioningError{Kind: ProvisionCreated, TagID: tagID, User: owner}
}

func (r *TagResolver) event(ctx context.Context, ev *SecurityEvent, station *ChargingStation) {
	if r.audit == nil {
		return
	}
	ev.ID = newRecordID()
	ev.Timestamp = r.now()
	if station != nil {
		ev.StationID = station.ID
	}
	if err := r.audit.RecordSecurityEvent(ctx, ev); err != nil {
		r.logger.Error("record security event", "event", ev.Event, "error", err)
	}
}
