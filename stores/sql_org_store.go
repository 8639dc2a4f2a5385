package stores

import (
	"context"
	"fmt"

	"github.com/oarkflow/squealx"

	"github.com/oarkflow/evauthz"
)

// SQLOrgStore serves the organization hierarchy, tenants and transactions from SQL.
// It implements evauthz.OrgStore, evauthz.TenantStore and evauthz.TransactionStore.
type SQLOrgStore struct {
	db *squealx.DB
}

func NewSQLOrgStore(db *squealx.DB) *SQLOrgStore {
	return &SQLOrgStore{db: db}
}

func (s *SQLOrgStore) SaveTenant(ctx context.Context, t *evauthz.Tenant) error {
	q := `INSERT OR REPLACE INTO tenants(id, name, components) VALUES(:id, :name, :components)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": t.ID, "name": t.Name, "components": encodeList(t.Components)})
	return err
}

func (s *SQLOrgStore) FindTenant(ctx context.Context, tenantID string) (*evauthz.Tenant, error) {
	q := `SELECT id, name, components FROM tenants WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": tenantID})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, nil
	}
	var t evauthz.Tenant
	var components string
	if err := r.Scan(&t.ID, &t.Name, &components); err != nil {
		return nil, err
	}
	t.Components = decodeList(components)
	return &t, nil
}

func (s *SQLOrgStore) SaveSite(ctx context.Context, site *evauthz.Site) error {
	q := `INSERT OR REPLACE INTO sites(tenant_id, id, company_id, name, allow_all_users_to_stop) VALUES(:tenant_id, :id, :company_id, :name, :allow_all)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"tenant_id":  site.TenantID,
		"id":         site.ID,
		"company_id": site.CompanyID,
		"name":       site.Name,
		"allow_all":  boolToInt(site.AllowAllUsersToStop),
	})
	return err
}

func (s *SQLOrgStore) SaveSiteArea(ctx context.Context, area *evauthz.SiteArea) error {
	q := `INSERT OR REPLACE INTO site_areas(tenant_id, id, site_id, name, access_control) VALUES(:tenant_id, :id, :site_id, :name, :access_control)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"tenant_id":      area.TenantID,
		"id":             area.ID,
		"site_id":        nullString(area.SiteID),
		"name":           area.Name,
		"access_control": boolToInt(area.AccessControl),
	})
	return err
}

func (s *SQLOrgStore) SaveChargingStation(ctx context.Context, cs *evauthz.ChargingStation) error {
	q := `INSERT OR REPLACE INTO charging_stations(tenant_id, id, site_area_id) VALUES(:tenant_id, :id, :site_area_id)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"tenant_id":    cs.TenantID,
		"id":           cs.ID,
		"site_area_id": nullString(cs.SiteAreaID),
	})
	return err
}

func (s *SQLOrgStore) AddSiteMember(ctx context.Context, tenantID, siteID, userID string) error {
	q := `INSERT OR IGNORE INTO site_users(tenant_id, site_id, user_id) VALUES(:tenant_id, :site_id, :user_id)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"tenant_id": tenantID, "site_id": siteID, "user_id": userID})
	return err
}

func (s *SQLOrgStore) RemoveSiteMember(ctx context.Context, tenantID, siteID, userID string) error {
	q := `DELETE FROM site_users WHERE tenant_id = :tenant_id AND site_id = :site_id AND user_id = :user_id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"tenant_id": tenantID, "site_id": siteID, "user_id": userID})
	return err
}

// SiteAreaOfStation uses the station's own SiteAreaID when set, the stored station
// row otherwise.
func (s *SQLOrgStore) SiteAreaOfStation(ctx context.Context, station *evauthz.ChargingStation) (*evauthz.SiteArea, error) {
	if station == nil {
		return nil, nil
	}
	areaID := station.SiteAreaID
	if areaID == "" {
		q := `SELECT COALESCE(site_area_id, '') FROM charging_stations WHERE tenant_id = :tenant_id AND id = :id`
		r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"tenant_id": station.TenantID, "id": station.ID})
		if err != nil {
			return nil, err
		}
		if r.Next() {
			err = r.Scan(&areaID)
		}
		r.Close()
		if err != nil {
			return nil, err
		}
		if areaID == "" {
			return nil, nil
		}
	}
	q := `SELECT tenant_id, id, COALESCE(site_id, ''), name, access_control FROM site_areas WHERE tenant_id = :tenant_id AND id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"tenant_id": station.TenantID, "id": areaID})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, nil
	}
	var a evauthz.SiteArea
	var ac int
	if err := r.Scan(&a.TenantID, &a.ID, &a.SiteID, &a.Name, &ac); err != nil {
		return nil, err
	}
	a.AccessControl = ac != 0
	return &a, nil
}

func (s *SQLOrgStore) SiteOfSiteArea(ctx context.Context, area *evauthz.SiteArea) (*evauthz.Site, error) {
	if area == nil || area.SiteID == "" {
		return nil, nil
	}
	q := `SELECT tenant_id, id, company_id, name, allow_all_users_to_stop FROM sites WHERE tenant_id = :tenant_id AND id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"tenant_id": area.TenantID, "id": area.SiteID})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, nil
	}
	var site evauthz.Site
	var allowAll int
	if err := r.Scan(&site.TenantID, &site.ID, &site.CompanyID, &site.Name, &allowAll); err != nil {
		return nil, err
	}
	site.AllowAllUsersToStop = allowAll != 0
	return &site, nil
}

func (s *SQLOrgStore) IsUserMemberOfSite(ctx context.Context, site *evauthz.Site, userID string) (bool, error) {
	if site == nil {
		return false, nil
	}
	q := `SELECT COUNT(1) FROM site_users WHERE tenant_id = :tenant_id AND site_id = :site_id AND user_id = :user_id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"tenant_id": site.TenantID, "site_id": site.ID, "user_id": userID})
	if err != nil {
		return false, err
	}
	defer r.Close()
	var n int
	if r.Next() {
		if err := r.Scan(&n); err != nil {
			return false, err
		}
	}
	return n > 0, nil
}

func (s *SQLOrgStore) SaveTransaction(ctx context.Context, tx *evauthz.Transaction) error {
	q := `INSERT OR REPLACE INTO transactions(tenant_id, id, charging_station_id, connector_id, site_id, site_area_id, tag_id, user_id, stop_user_id, started_at)
VALUES(:tenant_id, :id, :charging_station_id, :connector_id, :site_id, :site_area_id, :tag_id, :user_id, :stop_user_id, :started_at)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"tenant_id":           tx.TenantID,
		"id":                  tx.ID,
		"charging_station_id": tx.ChargingStationID,
		"connector_id":        tx.ConnectorID,
		"site_id":             nullString(tx.SiteID),
		"site_area_id":        nullString(tx.SiteAreaID),
		"tag_id":              tx.TagID,
		"user_id":             nullString(tx.UserID),
		"stop_user_id":        nullString(tx.StopUserID),
		"started_at":          sqlNullTimeOrNil(tx.StartedAt),
	})
	if err != nil {
		return fmt.Errorf("save transaction %d: %w", tx.ID, err)
	}
	return nil
}

func (s *SQLOrgStore) FindTransaction(ctx context.Context, tenantID string, id int64) (*evauthz.Transaction, error) {
	q := `SELECT tenant_id, id, charging_station_id, connector_id, COALESCE(site_id, ''), COALESCE(site_area_id, ''), tag_id,
COALESCE(user_id, ''), COALESCE(stop_user_id, ''), started_at FROM transactions WHERE tenant_id = :tenant_id AND id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"tenant_id": tenantID, "id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, nil
	}
	var tx evauthz.Transaction
	var startedRaw interface{}
	if err := r.Scan(&tx.TenantID, &tx.ID, &tx.ChargingStationID, &tx.ConnectorID, &tx.SiteID, &tx.SiteAreaID,
		&tx.TagID, &tx.UserID, &tx.StopUserID, &startedRaw); err != nil {
		return nil, err
	}
	tx.StartedAt = scanTime(startedRaw)
	return &tx, nil
}
