package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatches(t *testing.T) {
	tenant5 := int64Ptr(5)
	tenant6 := int64Ptr(6)

	tests := []struct {
		name string
		key  SubjectKey
		a    Assignment
		want bool
	}{
		{
			name: "platform role in platform context",
			key:  PlatformKey(1),
			a:    Assignment{UserID: 1, RoleScope: ScopePlatform},
			want: true,
		},
		{
			name: "platform role never counts in tenant context",
			key:  TenantKey(1, 5),
			a:    Assignment{UserID: 1, RoleScope: ScopePlatform},
			want: false,
		},
		{
			name: "tenant role never counts in platform context",
			key:  PlatformKey(1),
			a:    Assignment{UserID: 1, RoleScope: ScopeTenant, TenantID: tenant5},
			want: false,
		},
		{
			name: "tenant role in its tenant",
			key:  TenantKey(1, 5),
			a:    Assignment{UserID: 1, RoleScope: ScopeTenant, TenantID: tenant5},
			want: true,
		},
		{
			name: "tenant role in another tenant",
			key:  TenantKey(1, 5),
			a:    Assignment{UserID: 1, RoleScope: ScopeTenant, TenantID: tenant6},
			want: false,
		},
		{
			name: "other user",
			key:  TenantKey(2, 5),
			a:    Assignment{UserID: 1, RoleScope: ScopeTenant, TenantID: tenant5},
			want: false,
		},
		{
			name: "malformed platform assignment with tenant",
			key:  PlatformKey(1),
			a:    Assignment{UserID: 1, RoleScope: ScopePlatform, TenantID: tenant5},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.key, tt.a))
		})
	}
}

func TestValidateAssignment(t *testing.T) {
	tenant5 := int64Ptr(5)
	tenant6 := int64Ptr(6)

	tests := []struct {
		name     string
		role     Role
		tenantID *int64
		wantErr  bool
	}{
		{"platform without tenant", Role{Scope: ScopePlatform}, nil, false},
		{"platform with tenant", Role{Scope: ScopePlatform}, tenant5, true},
		{"shared tenant role", Role{Scope: ScopeTenant}, tenant5, false},
		{"tenant role without tenant", Role{Scope: ScopeTenant}, nil, true},
		{"custom role in owner tenant", Role{Scope: ScopeTenant, TenantID: tenant5}, tenant5, false},
		{"custom role in other tenant", Role{Scope: ScopeTenant, TenantID: tenant5}, tenant6, true},
		{"unknown scope", Role{Scope: "GLOBAL"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAssignment(&tt.role, tt.tenantID)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSubjectKey(t *testing.T) {
	assert.Equal(t, "1:platform", PlatformKey(1).String())
	assert.Equal(t, "1:tenant:5", TenantKey(1, 5).String())
	assert.Equal(t, PlatformKey(3), KeyFor(3, nil))
	assert.Equal(t, TenantKey(3, 9), KeyFor(3, int64Ptr(9)))
	assert.NotEqual(t, PlatformKey(3), TenantKey(3, 0))
}

func TestPermissionSet(t *testing.T) {
	set := NewPermissionSet(PermContactsView, PermDealsView)

	assert.True(t, set.Has(PermContactsView))
	assert.False(t, set.Has(PermDealsEdit))
	assert.True(t, set.HasAny(PermDealsEdit, PermDealsView))
	assert.False(t, set.HasAny())
	assert.True(t, set.HasAll(PermContactsView, PermDealsView))
	assert.False(t, set.HasAll(PermContactsView, PermDealsEdit))
	assert.True(t, set.HasAll())
	assert.Equal(t, []string{PermContactsView, PermDealsView}, set.Keys())
}
