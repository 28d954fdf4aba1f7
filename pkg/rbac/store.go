package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/homestead/pkg/autherr"
	"github.com/platinummonkey/homestead/pkg/storage"
)

// Store handles RBAC data persistence
type Store struct {
	q   storage.Querier
	db  storage.TxBeginner
	now func() time.Time
}

// NewStore creates a new RBAC store
func NewStore(db *sql.DB) *Store {
	return &Store{
		q:   db,
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the store's clock
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// WithTx returns a copy of the store bound to a transaction
func (s *Store) WithTx(tx *sql.Tx) *Store {
	return &Store{q: tx, now: s.now}
}

// InTx runs fn on a transaction-bound store. A store that is already bound
// to a transaction runs fn directly.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.db == nil {
		return fn(s)
	}
	return storage.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(s.WithTx(tx))
	})
}

// CreatePermission adds a key to the catalog. Keys are immutable.
func (s *Store) CreatePermission(ctx context.Context, perm *Permission) error {
	perm.Key = strings.TrimSpace(perm.Key)
	if perm.Key == "" {
		return autherr.InvalidInput("permission_key_required", "permission key is required")
	}

	var exists bool
	err := s.q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM permissions WHERE name = $1)`, perm.Key).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check permission: %w", err)
	}
	if exists {
		return autherr.Conflict("permission_exists", fmt.Sprintf("permission %s already exists", perm.Key))
	}

	now := s.now()
	err = s.q.QueryRowContext(ctx, `
		INSERT INTO permissions (name, description, created_at)
		VALUES ($1, $2, $3)
		RETURNING id
	`, perm.Key, perm.Description, now).Scan(&perm.ID)
	if err != nil {
		return fmt.Errorf("failed to create permission: %w", err)
	}
	perm.CreatedAt = now
	return nil
}

// EnsurePermissions inserts any catalog keys that are missing and returns
// the keys that were created.
func (s *Store) EnsurePermissions(ctx context.Context, perms []Permission) ([]string, error) {
	var created []string
	now := s.now()
	for _, perm := range perms {
		result, err := s.q.ExecContext(ctx, `
			INSERT INTO permissions (name, description, created_at)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING
		`, perm.Key, perm.Description, now)
		if err != nil {
			return created, fmt.Errorf("failed to ensure permission %s: %w", perm.Key, err)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			created = append(created, perm.Key)
		}
	}
	return created, nil
}

// ListPermissionKeys returns the full permission universe
func (s *Store) ListPermissionKeys(ctx context.Context) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT name FROM permissions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	return scanStrings(rows)
}

// CreateRole creates a new role
func (s *Store) CreateRole(ctx context.Context, role *Role) error {
	if strings.TrimSpace(role.Name) == "" {
		return autherr.InvalidInput("role_name_required", "role name is required")
	}
	if !role.Scope.Valid() {
		return errUnknownScope
	}
	if role.Scope == ScopePlatform && role.TenantID != nil {
		return autherr.InvalidInput("invalid_scope", "platform roles cannot belong to a tenant")
	}

	now := s.now()
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO roles (name, description, scope, tenant_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		RETURNING id
	`, role.Name, role.Description, string(role.Scope), storage.NullInt64(role.TenantID), now).Scan(&role.ID)
	if err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}

	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

const roleColumns = `id, name, description, scope, tenant_id, created_at, updated_at`

// GetRole retrieves a role by ID
func (s *Store) GetRole(ctx context.Context, roleID int64) (*Role, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, roleID)
	role, err := scanRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, autherr.NotFound("role_not_found", fmt.Sprintf("role not found: %d", roleID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	return role, nil
}

// GetRoles retrieves several roles, failing with NotFound if any is missing
func (s *Store) GetRoles(ctx context.Context, roleIDs []int64) ([]Role, error) {
	ids := dedupeIDs(roleIDs)
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders, args := inClause(1, ids)
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+roleColumns+` FROM roles WHERE id IN (`+placeholders+`) ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get roles: %w", err)
	}
	defer rows.Close()

	roles, err := scanRoles(rows)
	if err != nil {
		return nil, err
	}
	if len(roles) != len(ids) {
		found := make(map[int64]bool, len(roles))
		for _, r := range roles {
			found[r.ID] = true
		}
		for _, id := range ids {
			if !found[id] {
				return nil, autherr.NotFound("role_not_found", fmt.Sprintf("role not found: %d", id))
			}
		}
	}
	return roles, nil
}

// ListRoles lists roles visible to a tenant (shared definitions plus the
// tenant's own), or only platform-wide definitions when tenantID is nil.
func (s *Store) ListRoles(ctx context.Context, tenantID *int64) ([]Role, error) {
	var rows *sql.Rows
	var err error
	if tenantID == nil {
		rows, err = s.q.QueryContext(ctx,
			`SELECT `+roleColumns+` FROM roles WHERE tenant_id IS NULL ORDER BY name`)
	} else {
		rows, err = s.q.QueryContext(ctx,
			`SELECT `+roleColumns+` FROM roles WHERE scope = $1 AND (tenant_id IS NULL OR tenant_id = $2) ORDER BY name`,
			string(ScopeTenant), *tenantID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	return scanRoles(rows)
}

// AddPermissionsToRole adds keys to a role's bundle. Adding a key the role
// already has is a no-op.
func (s *Store) AddPermissionsToRole(ctx context.Context, roleID int64, keys []string) error {
	if _, err := s.GetRole(ctx, roleID); err != nil {
		return err
	}
	ids, err := s.permissionIDs(ctx, keys)
	if err != nil {
		return err
	}

	for _, permID := range ids {
		_, err := s.q.ExecContext(ctx, `
			INSERT INTO role_permissions (role_id, permission_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, roleID, permID)
		if err != nil {
			return fmt.Errorf("failed to add permission to role: %w", err)
		}
	}
	return nil
}

// SetRolePermissions replaces a role's bundle. Run inside InTx to make the
// replacement atomic.
func (s *Store) SetRolePermissions(ctx context.Context, roleID int64, keys []string) error {
	if _, err := s.GetRole(ctx, roleID); err != nil {
		return err
	}
	ids, err := s.permissionIDs(ctx, keys)
	if err != nil {
		return err
	}

	if _, err := s.q.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("failed to clear role permissions: %w", err)
	}
	for _, permID := range ids {
		if _, err := s.q.ExecContext(ctx,
			`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`, roleID, permID); err != nil {
			return fmt.Errorf("failed to set role permission: %w", err)
		}
	}
	return nil
}

// RolePermissionKeys lists the keys in a role's bundle
func (s *Store) RolePermissionKeys(ctx context.Context, roleID int64) ([]string, error) {
	return s.PermissionKeys(ctx, []int64{roleID})
}

// PermissionKeys returns the union of the bundles of the given roles
func (s *Store) PermissionKeys(ctx context.Context, roleIDs []int64) ([]string, error) {
	ids := dedupeIDs(roleIDs)
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders, args := inClause(1, ids)
	rows, err := s.q.QueryContext(ctx, `
		SELECT DISTINCT p.name
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id IN (`+placeholders+`)
		ORDER BY p.name
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get role permissions: %w", err)
	}
	defer rows.Close()

	return scanStrings(rows)
}

// GrantRole assigns a role to a user. Granting an existing assignment is a
// no-op.
func (s *Store) GrantRole(ctx context.Context, a *Assignment) error {
	role, err := s.GetRole(ctx, a.RoleID)
	if err != nil {
		return err
	}
	if err := ValidateAssignment(role, a.TenantID); err != nil {
		return err
	}
	a.RoleScope = role.Scope

	now := s.now()
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO user_roles (user_id, role_id, tenant_id, granted_by, granted_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT DO NOTHING
	`, a.UserID, a.RoleID, storage.NullInt64(a.TenantID), storage.NullInt64(a.GrantedBy), now)
	if err != nil {
		return fmt.Errorf("failed to grant role: %w", err)
	}
	a.GrantedAt = now
	return nil
}

// RevokeRole removes an assignment. Revoking a missing assignment is a
// no-op.
func (s *Store) RevokeRole(ctx context.Context, userID, roleID int64, tenantID *int64) error {
	_, err := s.q.ExecContext(ctx, `
		DELETE FROM user_roles
		WHERE user_id = $1 AND role_id = $2 AND COALESCE(tenant_id, 0) = COALESCE($3, 0)
	`, userID, roleID, storage.NullInt64(tenantID))
	if err != nil {
		return fmt.Errorf("failed to revoke role: %w", err)
	}
	return nil
}

// ReplaceTenantRoles replaces the user's assignments within one tenant.
// Callers validate the roles first and run this inside InTx.
func (s *Store) ReplaceTenantRoles(ctx context.Context, userID, tenantID int64, roleIDs []int64, grantedBy *int64) error {
	if _, err := s.q.ExecContext(ctx,
		`DELETE FROM user_roles WHERE user_id = $1 AND tenant_id = $2`, userID, tenantID); err != nil {
		return fmt.Errorf("failed to clear tenant roles: %w", err)
	}

	now := s.now()
	for _, roleID := range dedupeIDs(roleIDs) {
		_, err := s.q.ExecContext(ctx, `
			INSERT INTO user_roles (user_id, role_id, tenant_id, granted_by, granted_at)
			VALUES ($1, $2, $3, $4, $5)
		`, userID, roleID, tenantID, storage.NullInt64(grantedBy), now)
		if err != nil {
			return fmt.Errorf("failed to assign tenant role: %w", err)
		}
	}
	return nil
}

// ValidateTenantRoles checks that every role exists, is TENANT scoped and
// is usable in the tenant. The whole set is rejected on the first failure.
func (s *Store) ValidateTenantRoles(ctx context.Context, tenantID int64, roleIDs []int64) ([]Role, error) {
	roles, err := s.GetRoles(ctx, roleIDs)
	if err != nil {
		return nil, err
	}
	for i := range roles {
		role := &roles[i]
		if role.Scope != ScopeTenant {
			return nil, autherr.InvalidState("role_not_tenant_scoped",
				fmt.Sprintf("role %s is not a tenant role", role.Name))
		}
		if role.TenantID != nil && *role.TenantID != tenantID {
			return nil, autherr.InvalidState("role_owned_by_other_tenant",
				fmt.Sprintf("role %s belongs to another tenant", role.Name))
		}
	}
	return roles, nil
}

// ListAssignments returns every role assignment of a user
func (s *Store) ListAssignments(ctx context.Context, userID int64) ([]Assignment, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT ur.id, ur.user_id, ur.role_id, r.scope, ur.tenant_id, ur.granted_by, ur.granted_at
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY ur.id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []Assignment
	for rows.Next() {
		var a Assignment
		var scope string
		var tenantID, grantedBy sql.NullInt64
		if err := rows.Scan(&a.ID, &a.UserID, &a.RoleID, &scope, &tenantID, &grantedBy, &a.GrantedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		a.RoleScope = Scope(scope)
		a.TenantID = storage.Int64Ptr(tenantID)
		a.GrantedBy = storage.Int64Ptr(grantedBy)
		assignments = append(assignments, a)
	}
	return assignments, rows.Err()
}

// ListTenantRoles returns the roles a user holds inside one tenant
func (s *Store) ListTenantRoles(ctx context.Context, userID, tenantID int64) ([]Role, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT r.id, r.name, r.description, r.scope, r.tenant_id, r.created_at, r.updated_at
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1 AND ur.tenant_id = $2 AND r.scope = $3
		ORDER BY r.name
	`, userID, tenantID, string(ScopeTenant))
	if err != nil {
		return nil, fmt.Errorf("failed to list tenant roles: %w", err)
	}
	defer rows.Close()

	return scanRoles(rows)
}

// ListUserIDsByRole returns every user currently holding a role
func (s *Store) ListUserIDsByRole(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM user_roles WHERE role_id = $1 ORDER BY user_id`, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list role holders: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SubjectProfile reports whether a user exists and is active, and whether
// they are a super-admin. Inactive users are reported as not found.
func (s *Store) SubjectProfile(ctx context.Context, userID int64) (found bool, superAdmin bool, err error) {
	var globalRole string
	var active bool
	err = s.q.QueryRowContext(ctx,
		`SELECT global_role, is_active FROM users WHERE id = $1`, userID).Scan(&globalRole, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("failed to load user: %w", err)
	}
	if !active {
		return false, false, nil
	}
	return true, globalRole == "super_admin", nil
}

func (s *Store) permissionIDs(ctx context.Context, keys []string) ([]int64, error) {
	unique := dedupeStrings(keys)
	if len(unique) == 0 {
		return nil, nil
	}

	args := make([]interface{}, len(unique))
	marks := make([]string, len(unique))
	for i, k := range unique {
		args[i] = k
		marks[i] = "$" + strconv.Itoa(i+1)
	}
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, name FROM permissions WHERE name IN (`+strings.Join(marks, ", ")+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve permissions: %w", err)
	}
	defer rows.Close()

	byKey := make(map[string]int64, len(unique))
	for rows.Next() {
		var id int64
		var key string
		if err := rows.Scan(&id, &key); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		byKey[key] = id
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(unique))
	for _, k := range unique {
		id, ok := byKey[k]
		if !ok {
			return nil, autherr.NotFound("permission_not_found", fmt.Sprintf("permission not found: %s", k))
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func scanRole(scanner interface {
	Scan(dest ...interface{}) error
}) (*Role, error) {
	var role Role
	var scope string
	var tenantID sql.NullInt64
	err := scanner.Scan(
		&role.ID,
		&role.Name,
		&role.Description,
		&scope,
		&tenantID,
		&role.CreatedAt,
		&role.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	role.Scope = Scope(scope)
	role.TenantID = storage.Int64Ptr(tenantID)
	return &role, nil
}

func scanRoles(rows *sql.Rows) ([]Role, error) {
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, *role)
	}
	return roles, rows.Err()
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// inClause renders $start..$n placeholders for ids
func inClause(start int, ids []int64) (string, []interface{}) {
	marks := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		marks[i] = "$" + strconv.Itoa(start+i)
		args[i] = id
	}
	return strings.Join(marks, ", "), args
}

func dedupeIDs(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
