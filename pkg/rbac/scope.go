package rbac

// Matches reports whether an assignment contributes to a resolution context.
//
// Platform context counts only PLATFORM roles assigned without a tenant.
// Tenant context counts only TENANT roles assigned for that same tenant.
func Matches(key SubjectKey, a Assignment) bool {
	if a.UserID != key.UserID {
		return false
	}
	switch key.Kind {
	case SubjectPlatform:
		return a.RoleScope == ScopePlatform && a.TenantID == nil
	case SubjectTenant:
		return a.RoleScope == ScopeTenant && a.TenantID != nil && *a.TenantID == key.TenantID
	default:
		return false
	}
}

// ValidateAssignment checks the scope/tenant invariant of an assignment
func ValidateAssignment(role *Role, tenantID *int64) error {
	switch role.Scope {
	case ScopePlatform:
		if tenantID != nil {
			return errPlatformRoleWithTenant
		}
	case ScopeTenant:
		if tenantID == nil {
			return errTenantRoleWithoutTenant
		}
		if role.TenantID != nil && *role.TenantID != *tenantID {
			return errRoleOwnedByOtherTenant
		}
	default:
		return errUnknownScope
	}
	return nil
}
