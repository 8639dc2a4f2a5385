package evauthz

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// MemoryIdentityStore keeps users and tag claims in memory for tests and demos.
type MemoryIdentityStore struct {
	mu    sync.RWMutex
	users map[string]*User  // tenant/user -> user
	tags  map[string]string // tenant/tag -> user id
}

func NewMemoryIdentityStore() *MemoryIdentityStore {
	return &MemoryIdentityStore{users: make(map[string]*User), tags: make(map[string]string)}
}

func scoped(tenantID, id string) string { return tenantID + "/" + id }

func (s *MemoryIdentityStore) FindUserByTag(_ context.Context, tenantID, tagID string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	uid, ok := s.tags[scoped(tenantID, tagID)]
	if !ok {
		return nil, nil
	}
	return s.users[scoped(tenantID, uid)].Clone(), nil
}

func (s *MemoryIdentityStore) FindUserByID(_ context.Context, tenantID, userID string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[scoped(tenantID, userID)].Clone(), nil
}

// CreateUserWithTag claims tagID under one lock, so concurrent callers see exactly one
// creation.
func (s *MemoryIdentityStore) CreateUserWithTag(_ context.Context, user *User, tagID string) (*User, bool, error) {
	if user == nil || user.ID == "" {
		return nil, false, fmt.Errorf("create user: missing id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tk := scoped(user.TenantID, tagID)
	if uid, ok := s.tags[tk]; ok {
		return s.users[scoped(user.TenantID, uid)].Clone(), false, nil
	}
	if _, taken := s.users[scoped(user.TenantID, user.ID)]; taken {
		return nil, false, fmt.Errorf("create user %q: %w", user.ID, ErrUserExists)
	}
	dup := user.Clone()
	if !slices.Contains(dup.Tags, tagID) {
		dup.Tags = append(dup.Tags, tagID)
	}
	s.users[scoped(dup.TenantID, dup.ID)] = dup
	s.tags[tk] = dup.ID
	return dup.Clone(), true, nil
}

func (s *MemoryIdentityStore) SaveUser(_ context.Context, user *User) error {
	if user == nil || user.ID == "" {
		return fmt.Errorf("save user: missing id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dup := user.Clone()
	if prev, ok := s.users[scoped(dup.TenantID, dup.ID)]; ok {
		for _, t := range prev.Tags {
			tk := scoped(dup.TenantID, t)
			if s.tags[tk] == dup.ID && !slices.Contains(dup.Tags, t) {
				delete(s.tags, tk)
			}
		}
	}
	s.users[scoped(dup.TenantID, dup.ID)] = dup
	for _, t := range dup.Tags {
		s.tags[scoped(dup.TenantID, t)] = dup.ID
	}
	return nil
}

// Count returns the number of users stored for tenantID.
func (s *MemoryIdentityStore) Count(tenantID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, u := range s.users {
		if u.TenantID == tenantID {
			n++
		}
	}
	return n
}

// MemoryOrgStore holds the organization hierarchy in memory.
type MemoryOrgStore struct {
	mu      sync.RWMutex
	areas   map[string]*SiteArea
	sites   map[string]*Site
	members map[string]map[string]struct{} // site -> user ids
	tenants map[string]*Tenant
	txs     map[string]*Transaction
}

func NewMemoryOrgStore() *MemoryOrgStore {
	return &MemoryOrgStore{
		areas:   make(map[string]*SiteArea),
		sites:   make(map[string]*Site),
		members: make(map[string]map[string]struct{}),
		tenants: make(map[string]*Tenant),
		txs:     make(map[string]*Transaction),
	}
}

func (s *MemoryOrgStore) PutSite(site *Site) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dup := *site
	s.sites[scoped(site.TenantID, site.ID)] = &dup
}

func (s *MemoryOrgStore) PutSiteArea(area *SiteArea) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dup := *area
	s.areas[scoped(area.TenantID, area.ID)] = &dup
}

func (s *MemoryOrgStore) PutTenant(t *Tenant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dup := *t
	dup.Components = slices.Clone(t.Components)
	s.tenants[t.ID] = &dup
}

func (s *MemoryOrgStore) PutTransaction(tx *Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dup := *tx
	s.txs[scoped(tx.TenantID, fmt.Sprint(tx.ID))] = &dup
}

func (s *MemoryOrgStore) AddSiteMember(tenantID, siteID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := scoped(tenantID, siteID)
	if s.members[k] == nil {
		s.members[k] = make(map[string]struct{})
	}
	s.members[k][userID] = struct{}{}
}

func (s *MemoryOrgStore) SiteAreaOfStation(_ context.Context, station *ChargingStation) (*SiteArea, error) {
	if station == nil || station.SiteAreaID == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.areas[scoped(station.TenantID, station.SiteAreaID)]
	if !ok {
		return nil, nil
	}
	dup := *a
	return &dup, nil
}

func (s *MemoryOrgStore) SiteOfSiteArea(_ context.Context, area *SiteArea) (*Site, error) {
	if area == nil || area.SiteID == "" {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	site, ok := s.sites[scoped(area.TenantID, area.SiteID)]
	if !ok {
		return nil, nil
	}
	dup := *site
	return &dup, nil
}

func (s *MemoryOrgStore) IsUserMemberOfSite(_ context.Context, site *Site, userID string) (bool, error) {
	if site == nil {
		return false, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[scoped(site.TenantID, site.ID)][userID]
	return ok, nil
}

func (s *MemoryOrgStore) FindTransaction(_ context.Context, tenantID string, id int64) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.txs[scoped(tenantID, fmt.Sprint(id))]
	if !ok {
		return nil, nil
	}
	dup := *tx
	return &dup, nil
}

func (s *MemoryOrgStore) FindTenant(_ context.Context, tenantID string) (*Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return nil, nil
	}
	dup := *t
	dup.Components = slices.Clone(t.Components)
	return &dup, nil
}

// BadgeNotice is one unknown-badge notification.
type BadgeNotice struct {
	StationID string
	TagID     string
	UserID    string
}

// MemoryNotifier records notifications instead of delivering them.
type MemoryNotifier struct {
	mu      sync.Mutex
	notices []BadgeNotice
}

func (n *MemoryNotifier) NotifyUnknownBadge(_ context.Context, station *ChargingStation, tagID string, user *User) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	notice := BadgeNotice{TagID: tagID}
	if station != nil {
		notice.StationID = station.ID
	}
	if user != nil {
		notice.UserID = user.ID
	}
	n.notices = append(n.notices, notice)
	return nil
}

func (n *MemoryNotifier) Notices() []BadgeNotice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.notices)
}
