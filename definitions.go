package evauthz

var all = []string{"*"}

func acts(a ...Action) []Action { return a }

var (
	crudl       = acts(ActionList, ActionCreate, ActionRead, ActionUpdate, ActionDelete)
	stationOps  = acts(ActionUpdate, ActionDelete, ActionReset, ActionClearCache, ActionGetConfiguration, ActionChangeConfiguration, ActionUnlockConnector, ActionRemoteStart, ActionRemoteStop, ActionExport)
	sessionOps  = acts(ActionRemoteStart, ActionRemoteStop, ActionUnlockConnector)
	ownRecord   = Eq(KeyUser, KeyOwner)
	notOwnSelf  = Ne(KeyUser, KeyOwner)
	onMySite    = In(KeySites, KeySite)
	adminOfSite = In(KeySitesAdmin, KeySite)
	ownerOfSite = In(KeySitesOwner, KeySite)
)

// DefaultDefinitions is the built-in fleet catalog. site-admin and site-owner extend
// basic; everything else stands alone.
func DefaultDefinitions() []RoleDefinition {
	return []RoleDefinition{
		{
			Role: RoleSuperAdmin,
			Grants: []Grant{
				{Resource: EntityUser, Actions: crudl, Attributes: all},
				{Resource: EntityTenant, Actions: crudl, Attributes: all},
				{Resource: EntityLogging, Actions: acts(ActionList, ActionRead), Attributes: all},
				{Resource: EntitySetting, Actions: acts(ActionList, ActionRead), Attributes: all},
			},
		},
		{
			Role: RoleAdmin,
			Grants: []Grant{
				{Resource: EntityUser, Actions: acts(ActionList, ActionCreate, ActionRead, ActionUpdate, ActionExport), Attributes: all},
				{Resource: EntityUser, Actions: acts(ActionDelete), Attributes: all, Condition: notOwnSelf},
				{Resource: EntityTag, Actions: crudl, Attributes: all},
				{Resource: EntityCompany, Actions: crudl, Attributes: all},
				{Resource: EntitySite, Actions: crudl, Attributes: all},
				{Resource: EntitySiteArea, Actions: crudl, Attributes: all},
				{Resource: EntityChargingStation, Actions: append(acts(ActionList, ActionRead), stationOps...), Attributes: all},
				{Resource: EntityTransaction, Actions: acts(ActionList, ActionListInError, ActionRead, ActionUpdate, ActionDelete, ActionExport, ActionRefundTransaction), Attributes: all},
				{Resource: EntitySetting, Actions: crudl, Attributes: all},
				{Resource: EntityLogging, Actions: acts(ActionList, ActionRead), Attributes: all},
				{Resource: EntityReport, Actions: acts(ActionRead), Attributes: all},
				{Resource: EntityPricing, Actions: acts(ActionRead, ActionUpdate), Attributes: all},
				{Resource: EntityConnection, Actions: acts(ActionList, ActionCreate, ActionRead, ActionDelete), Attributes: all},
				{Resource: EntityInvoice, Actions: acts(ActionList, ActionRead), Attributes: all},
			},
		},
		{
			Role: RoleBasic,
			Grants: []Grant{
				{Resource: EntityUser, Actions: acts(ActionRead, ActionUpdate), Attributes: all, Condition: ownRecord},
				{Resource: EntityTag, Actions: acts(ActionList)},
				{Resource: EntityTag, Actions: acts(ActionRead), Attributes: all, Condition: In(KeyTagIDs, KeyTag)},
				{Resource: EntityCompany, Actions: acts(ActionList)},
				{Resource: EntityCompany, Actions: acts(ActionRead), Attributes: all, Condition: In(KeyCompanies, KeyCompany)},
				{Resource: EntitySite, Actions: acts(ActionList)},
				{Resource: EntitySite, Actions: acts(ActionRead), Attributes: all, Condition: onMySite},
				{Resource: EntitySiteArea, Actions: acts(ActionList, ActionRead), Attributes: all},
				{Resource: EntityChargingStation, Actions: acts(ActionList, ActionRead), Attributes: all},
				{Resource: EntityChargingStation, Actions: sessionOps, Attributes: all, Condition: AnyOf(IsNull(KeySite), onMySite)},
				{Resource: EntityTransaction, Actions: acts(ActionList)},
				{Resource: EntityTransaction, Actions: acts(ActionRead), Attributes: all, Condition: ownRecord},
				{Resource: EntitySetting, Actions: acts(ActionList, ActionRead)},
				{Resource: EntityConnection, Actions: acts(ActionList)},
				{Resource: EntityConnection, Actions: acts(ActionCreate, ActionRead, ActionDelete), Attributes: all, Condition: ownRecord},
				{Resource: EntityInvoice, Actions: acts(ActionList)},
				{Resource: EntityInvoice, Actions: acts(ActionRead), Attributes: all, Condition: ownRecord},
			},
		},
		{
			Role: RoleDemo,
			Grants: []Grant{
				{Resource: EntityCompany, Actions: acts(ActionList, ActionRead), Attributes: all},
				{Resource: EntitySite, Actions: acts(ActionList, ActionRead), Attributes: all},
				{Resource: EntitySiteArea, Actions: acts(ActionList, ActionRead), Attributes: all},
				{Resource: EntityChargingStation, Actions: acts(ActionList, ActionRead), Attributes: all},
				{Resource: EntityTransaction, Actions: acts(ActionList, ActionRead), Attributes: all},
				{Resource: EntitySetting, Actions: acts(ActionList, ActionRead)},
				{Resource: EntityReport, Actions: acts(ActionRead)},
			},
		},
		{
			Role:    RoleSiteAdmin,
			Extends: RoleBasic,
			Grants: []Grant{
				{Resource: EntityUser, Actions: acts(ActionList, ActionRead), Attributes: all},
				{Resource: EntitySite, Actions: acts(ActionRead, ActionUpdate), Attributes: all, Condition: adminOfSite},
				{Resource: EntitySiteArea, Actions: acts(ActionCreate, ActionUpdate, ActionDelete), Attributes: all, Condition: adminOfSite},
				{Resource: EntityChargingStation, Actions: stationOps, Attributes: all, Condition: adminOfSite},
				{Resource: EntityTransaction, Actions: acts(ActionRead, ActionRefundTransaction), Attributes: all, Condition: AnyOf(ownRecord, adminOfSite)},
				{Resource: EntityReport, Actions: acts(ActionRead)},
			},
		},
		{
			Role:    RoleSiteOwner,
			Extends: RoleBasic,
			Grants: []Grant{
				{Resource: EntitySite, Actions: acts(ActionRead), Attributes: all, Condition: ownerOfSite},
				{Resource: EntityTransaction, Actions: acts(ActionRead, ActionRefundTransaction), Attributes: all, Condition: AnyOf(ownRecord, ownerOfSite)},
				{Resource: EntityReport, Actions: acts(ActionRead)},
			},
		},
	}
}
