package stores

import (
	"context"
	"fmt"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/evauthz"
)

// SQLIdentityStore implements evauthz.IdentityStore backed by a SQL DB (squealx).
// Tag ownership lives in the tags table whose primary key (tenant_id, tag_id) makes
// the claim atomic.
type SQLIdentityStore struct {
	db *squealx.DB
}

func NewSQLIdentityStore(db *squealx.DB) *SQLIdentityStore {
	return &SQLIdentityStore{db: db}
}

const userColumns = `id, tenant_id, role, status, deleted, name, first_name, email, phone, mobile, sites_admin, sites_owner, company_ids, created_at, updated_at`

func userParams(u *evauthz.User) map[string]any {
	return map[string]any{
		"id":          u.ID,
		"tenant_id":   u.TenantID,
		"role":        string(u.Role),
		"status":      string(u.Status),
		"deleted":     boolToInt(u.Deleted),
		"name":        u.Name,
		"first_name":  u.FirstName,
		"email":       u.Email,
		"phone":       u.Phone,
		"mobile":      u.Mobile,
		"sites_admin": encodeList(u.SitesAdmin),
		"sites_owner": encodeList(u.SitesOwner),
		"company_ids": encodeList(u.CompanyIDs),
		"created_at":  sqlNullTimeOrNil(u.CreatedAt),
		"updated_at":  sqlNullTimeOrNil(u.UpdatedAt),
	}
}

func (s *SQLIdentityStore) FindUserByTag(ctx context.Context, tenantID, tagID string) (*evauthz.User, error) {
	userID, ok, err := s.tagOwner(ctx, tenantID, tagID)
	if err != nil || !ok {
		return nil, err
	}
	return s.FindUserByID(ctx, tenantID, userID)
}

func (s *SQLIdentityStore) tagOwner(ctx context.Context, tenantID, tagID string) (string, bool, error) {
	q := `SELECT user_id FROM tags WHERE tenant_id = :tenant_id AND tag_id = :tag_id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"tenant_id": tenantID, "tag_id": tagID})
	if err != nil {
		return "", false, err
	}
	defer r.Close()
	if !r.Next() {
		return "", false, nil
	}
	var userID string
	if err := r.Scan(&userID); err != nil {
		return "", false, err
	}
	return userID, true, nil
}

func (s *SQLIdentityStore) FindUserByID(ctx context.Context, tenantID, userID string) (*evauthz.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE tenant_id = :tenant_id AND id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"tenant_id": tenantID, "id": userID})
	if err != nil {
		return nil, err
	}
	if !r.Next() {
		r.Close()
		return nil, nil
	}
	var (
		u                                 evauthz.User
		role, status                      string
		deleted                           int
		sitesAdmin, sitesOwner, companies string
		createdRaw, updatedRaw            interface{}
	)
	err = r.Scan(&u.ID, &u.TenantID, &role, &status, &deleted, &u.Name, &u.FirstName, &u.Email,
		&u.Phone, &u.Mobile, &sitesAdmin, &sitesOwner, &companies, &createdRaw, &updatedRaw)
	r.Close()
	if err != nil {
		return nil, err
	}
	u.Role = evauthz.Role(role)
	u.Status = evauthz.UserStatus(status)
	u.Deleted = deleted != 0
	u.SitesAdmin = decodeList(sitesAdmin)
	u.SitesOwner = decodeList(sitesOwner)
	u.CompanyIDs = decodeList(companies)
	u.CreatedAt = scanTime(createdRaw)
	u.UpdatedAt = scanTime(updatedRaw)

	if u.Tags, err = s.listStrings(ctx, `SELECT tag_id FROM tags WHERE tenant_id = :tenant_id AND user_id = :user_id ORDER BY tag_id`, tenantID, userID); err != nil {
		return nil, err
	}
	if u.SiteIDs, err = s.listStrings(ctx, `SELECT site_id FROM site_users WHERE tenant_id = :tenant_id AND user_id = :user_id ORDER BY site_id`, tenantID, userID); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *SQLIdentityStore) listStrings(ctx context.Context, q, tenantID, userID string) ([]string, error) {
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"tenant_id": tenantID, "user_id": userID})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var out []string
	for r.Next() {
		var v string
		if err := r.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// CreateUserWithTag inserts the user row, then claims the tag with INSERT OR IGNORE.
// Whoever inserts the tag row created the identity; everyone else gets the current
// owner back. An existing user id is refused before any tag is claimed.
func (s *SQLIdentityStore) CreateUserWithTag(ctx context.Context, user *evauthz.User, tagID string) (*evauthz.User, bool, error) {
	if user == nil || user.ID == "" {
		return nil, false, fmt.Errorf("create user: missing id")
	}
	q := `INSERT OR IGNORE INTO users(` + userColumns + `) VALUES(:id, :tenant_id, :role, :status, :deleted, :name, :first_name, :email, :phone, :mobile, :sites_admin, :sites_owner, :company_ids, :created_at, :updated_at)`
	res, err := s.db.NamedExecContext(ctx, q, userParams(user))
	if err != nil {
		return nil, false, fmt.Errorf("insert user: %w", err)
	}
	insertedUser, _ := res.RowsAffected()
	if insertedUser == 0 {
		if ownerID, ok, err := s.tagOwner(ctx, user.TenantID, tagID); err != nil {
			return nil, false, err
		} else if ok {
			owner, err := s.FindUserByID(ctx, user.TenantID, ownerID)
			return owner, false, err
		}
		return nil, false, fmt.Errorf("create user %q: %w", user.ID, evauthz.ErrUserExists)
	}

	claim := `INSERT OR IGNORE INTO tags(tenant_id, tag_id, user_id) VALUES(:tenant_id, :tag_id, :user_id)`
	res, err = s.db.NamedExecContext(ctx, claim, map[string]any{"tenant_id": user.TenantID, "tag_id": tagID, "user_id": user.ID})
	if err != nil {
		return nil, false, fmt.Errorf("claim tag: %w", err)
	}
	claimed, _ := res.RowsAffected()
	if claimed == 1 {
		if err := s.replaceSites(ctx, user); err != nil {
			return nil, false, err
		}
		u, err := s.FindUserByID(ctx, user.TenantID, user.ID)
		return u, true, err
	}

	ownerID, ok, err := s.tagOwner(ctx, user.TenantID, tagID)
	if err != nil {
		return nil, false, err
	}
	if ownerID != user.ID {
		// our row lost the race; it owns no tag
		del := `DELETE FROM users WHERE tenant_id = :tenant_id AND id = :id`
		if _, err := s.db.NamedExecContext(ctx, del, map[string]any{"tenant_id": user.TenantID, "id": user.ID}); err != nil {
			return nil, false, fmt.Errorf("drop unclaimed user: %w", err)
		}
	}
	if !ok {
		return nil, false, nil
	}
	owner, err := s.FindUserByID(ctx, user.TenantID, ownerID)
	return owner, false, err
}

// SaveUser upserts the user row and replaces its tag and site assignments.
func (s *SQLIdentityStore) SaveUser(ctx context.Context, user *evauthz.User) error {
	if user == nil || user.ID == "" {
		return fmt.Errorf("save user: missing id")
	}
	q := `INSERT INTO users(` + userColumns + `) VALUES(:id, :tenant_id, :role, :status, :deleted, :name, :first_name, :email, :phone, :mobile, :sites_admin, :sites_owner, :company_ids, :created_at, :updated_at)
ON CONFLICT(tenant_id, id) DO UPDATE SET role = excluded.role, status = excluded.status, deleted = excluded.deleted,
name = excluded.name, first_name = excluded.first_name, email = excluded.email, phone = excluded.phone, mobile = excluded.mobile,
sites_admin = excluded.sites_admin, sites_owner = excluded.sites_owner, company_ids = excluded.company_ids,
created_at = COALESCE(users.created_at, excluded.created_at), updated_at = excluded.updated_at`
	if _, err := s.db.NamedExecContext(ctx, q, userParams(user)); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	params := map[string]any{"tenant_id": user.TenantID, "user_id": user.ID}
	if _, err := s.db.NamedExecContext(ctx, `DELETE FROM tags WHERE tenant_id = :tenant_id AND user_id = :user_id`, params); err != nil {
		return fmt.Errorf("clear tags: %w", err)
	}
	for _, tag := range user.Tags {
		tq := `INSERT OR REPLACE INTO tags(tenant_id, tag_id, user_id) VALUES(:tenant_id, :tag_id, :user_id)`
		if _, err := s.db.NamedExecContext(ctx, tq, map[string]any{"tenant_id": user.TenantID, "tag_id": tag, "user_id": user.ID}); err != nil {
			return fmt.Errorf("assign tag %s: %w", tag, err)
		}
	}
	return s.replaceSites(ctx, user)
}

func (s *SQLIdentityStore) replaceSites(ctx context.Context, user *evauthz.User) error {
	params := map[string]any{"tenant_id": user.TenantID, "user_id": user.ID}
	if _, err := s.db.NamedExecContext(ctx, `DELETE FROM site_users WHERE tenant_id = :tenant_id AND user_id = :user_id`, params); err != nil {
		return fmt.Errorf("clear site memberships: %w", err)
	}
	for _, site := range user.SiteIDs {
		q := `INSERT OR IGNORE INTO site_users(tenant_id, site_id, user_id) VALUES(:tenant_id, :site_id, :user_id)`
		if _, err := s.db.NamedExecContext(ctx, q, map[string]any{"tenant_id": user.TenantID, "site_id": site, "user_id": user.ID}); err != nil {
			return fmt.Errorf("add site membership %s: %w", site, err)
		}
	}
	return nil
}
