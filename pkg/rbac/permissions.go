package rbac

import (
	"github.com/platinummonkey/homestead/pkg/autherr"
)

// Permission keys used by the core's own administrative surface. Product
// modules register their own keys in the same catalog.
const (
	PermMembersView       = "TENANT_MEMBERS_VIEW"
	PermMembersManage     = "TENANT_MEMBERS_MANAGE"
	PermInvitationsManage = "TENANT_INVITATIONS_MANAGE"
	PermRolesView         = "TENANT_ROLES_VIEW"
	PermAuditView         = "TENANT_AUDIT_VIEW"

	PermPlatformTenantsManage = "PLATFORM_TENANTS_MANAGE"
	PermPlatformUsersManage   = "PLATFORM_USERS_MANAGE"
	PermPlatformRolesManage   = "PLATFORM_ROLES_MANAGE"
	PermPlatformAuditView     = "PLATFORM_AUDIT_VIEW"

	PermContactsView   = "CRM_CONTACTS_VIEW"
	PermContactsEdit   = "CRM_CONTACTS_EDIT"
	PermDealsView      = "CRM_DEALS_VIEW"
	PermDealsEdit      = "CRM_DEALS_EDIT"
	PermPropertiesView = "CRM_PROPERTIES_VIEW"
	PermPropertiesEdit = "CRM_PROPERTIES_EDIT"
	PermCalendarView   = "CALENDAR_EVENTS_VIEW"
	PermReportsExport  = "REPORTS_EXPORT"
)

// DefaultCatalog is seeded on start-up
func DefaultCatalog() []Permission {
	return []Permission{
		{Key: PermMembersView, Description: "View tenant members"},
		{Key: PermMembersManage, Description: "Disable, enable and change roles of tenant members"},
		{Key: PermInvitationsManage, Description: "Invite, resend and revoke tenant invitations"},
		{Key: PermRolesView, Description: "View tenant roles"},
		{Key: PermAuditView, Description: "View the tenant audit trail"},
		{Key: PermPlatformTenantsManage, Description: "Suspend and reactivate tenants"},
		{Key: PermPlatformUsersManage, Description: "Reset user credentials"},
		{Key: PermPlatformRolesManage, Description: "Change role permission bundles"},
		{Key: PermPlatformAuditView, Description: "View the audit trail of every tenant"},
		{Key: PermContactsView, Description: "View contacts"},
		{Key: PermContactsEdit, Description: "Create and edit contacts"},
		{Key: PermDealsView, Description: "View deals"},
		{Key: PermDealsEdit, Description: "Create and edit deals"},
		{Key: PermPropertiesView, Description: "View properties"},
		{Key: PermPropertiesEdit, Description: "Create and edit properties"},
		{Key: PermCalendarView, Description: "View calendar events"},
		{Key: PermReportsExport, Description: "Export reports"},
	}
}

var (
	errPlatformRoleWithTenant  = autherr.InvalidInput("invalid_assignment", "platform role cannot be assigned within a tenant")
	errTenantRoleWithoutTenant = autherr.InvalidInput("invalid_assignment", "tenant role requires a tenant")
	errRoleOwnedByOtherTenant  = autherr.InvalidInput("invalid_assignment", "role belongs to another tenant")
	errUnknownScope            = autherr.InvalidInput("invalid_scope", "role scope must be PLATFORM or TENANT")
)
